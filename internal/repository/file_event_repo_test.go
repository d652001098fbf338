package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/hitoshi/oauthrelay/internal/model"
)

type seqEntry struct {
	Seq     int    `json:"seq"`
	Payload string `json:"payload,omitempty"`
}

func newTestFileEventLogRepo(t *testing.T) *FileEventLogRepo {
	t.Helper()
	repo, err := NewFileEventLogRepo(filepath.Join(t.TempDir(), "logs"))
	if err != nil {
		t.Fatalf("NewFileEventLogRepo() error = %v", err)
	}
	return repo
}

func decodeSeqs(t *testing.T, raw []json.RawMessage) []int {
	t.Helper()
	seqs := make([]int, 0, len(raw))
	for _, r := range raw {
		var e seqEntry
		if err := json.Unmarshal(r, &e); err != nil {
			t.Fatalf("failed to decode entry %s: %v", r, err)
		}
		seqs = append(seqs, e.Seq)
	}
	return seqs
}

func TestNewFileEventLogRepo_CreatesStreamFiles(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "logs")
	if _, err := NewFileEventLogRepo(dir); err != nil {
		t.Fatalf("NewFileEventLogRepo() error = %v", err)
	}

	for _, name := range []string{"auth.log", "actions.log", "errors.log"} {
		if _, err := os.Stat(filepath.Join(dir, name)); err != nil {
			t.Errorf("expected %s to exist: %v", name, err)
		}
	}
}

func TestFileEventLogRepo_Tail_ReturnsLastEntriesInWriteOrder(t *testing.T) {
	repo := newTestFileEventLogRepo(t)
	ctx := context.Background()

	for i := 1; i <= 10; i++ {
		if err := repo.Append(ctx, model.LogStreamAuth, seqEntry{Seq: i}); err != nil {
			t.Fatalf("Append() error = %v", err)
		}
	}

	tests := []struct {
		name  string
		limit int
		want  []int
	}{
		{"limit smaller than size", 3, []int{8, 9, 10}},
		{"limit equal to size", 10, []int{1, 2, 3, 4, 5, 6, 7, 8, 9, 10}},
		{"limit larger than size", 100, []int{1, 2, 3, 4, 5, 6, 7, 8, 9, 10}},
		{"limit one", 1, []int{10}},
		{"limit zero", 0, []int{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			raw, err := repo.Tail(ctx, model.LogStreamAuth, tt.limit)
			if err != nil {
				t.Fatalf("Tail() error = %v", err)
			}
			got := decodeSeqs(t, raw)
			if fmt.Sprint(got) != fmt.Sprint(tt.want) {
				t.Errorf("Tail(%d) = %v, want %v", tt.limit, got, tt.want)
			}
		})
	}
}

func TestFileEventLogRepo_StreamsAreIndependent(t *testing.T) {
	repo := newTestFileEventLogRepo(t)
	ctx := context.Background()

	repo.Append(ctx, model.LogStreamAuth, seqEntry{Seq: 1})
	repo.Append(ctx, model.LogStreamActions, seqEntry{Seq: 2})
	repo.Append(ctx, model.LogStreamErrors, seqEntry{Seq: 3})

	for stream, want := range map[model.LogStream]int{
		model.LogStreamAuth:    1,
		model.LogStreamActions: 2,
		model.LogStreamErrors:  3,
	} {
		raw, err := repo.Tail(ctx, stream, 10)
		if err != nil {
			t.Fatalf("Tail(%s) error = %v", stream, err)
		}
		got := decodeSeqs(t, raw)
		if len(got) != 1 || got[0] != want {
			t.Errorf("Tail(%s) = %v, want [%d]", stream, got, want)
		}
	}
}

func TestFileEventLogRepo_Tail_SkipsMalformedLines(t *testing.T) {
	repo := newTestFileEventLogRepo(t)
	ctx := context.Background()

	repo.Append(ctx, model.LogStreamErrors, seqEntry{Seq: 1})

	f, err := os.OpenFile(repo.Path(model.LogStreamErrors), os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		t.Fatalf("failed to open log file: %v", err)
	}
	f.WriteString("this is not json\n")
	f.WriteString("{\"seq\": 2, \"broken\"\n")
	f.WriteString("\n")
	f.Close()

	repo.Append(ctx, model.LogStreamErrors, seqEntry{Seq: 3})

	raw, err := repo.Tail(ctx, model.LogStreamErrors, 100)
	if err != nil {
		t.Fatalf("Tail() error = %v", err)
	}
	got := decodeSeqs(t, raw)
	if fmt.Sprint(got) != fmt.Sprint([]int{1, 3}) {
		t.Errorf("Tail() = %v, want [1 3]", got)
	}
}

func TestFileEventLogRepo_Tail_MissingFile_ReturnsEmpty(t *testing.T) {
	repo := newTestFileEventLogRepo(t)
	os.Remove(repo.Path(model.LogStreamActions))

	raw, err := repo.Tail(context.Background(), model.LogStreamActions, 10)
	if err != nil {
		t.Fatalf("Tail() error = %v", err)
	}
	if len(raw) != 0 {
		t.Errorf("len = %d, want 0", len(raw))
	}
}

func TestFileEventLogRepo_UnknownStream_ReturnsError(t *testing.T) {
	repo := newTestFileEventLogRepo(t)
	ctx := context.Background()

	if err := repo.Append(ctx, model.LogStream("debug"), seqEntry{Seq: 1}); err == nil {
		t.Error("expected error for unknown stream on Append")
	}
	if _, err := repo.Tail(ctx, model.LogStream("debug"), 1); err == nil {
		t.Error("expected error for unknown stream on Tail")
	}
}

func TestFileEventLogRepo_ConcurrentAppends_DoNotInterleave(t *testing.T) {
	repo := newTestFileEventLogRepo(t)
	ctx := context.Background()

	const writers = 16
	const perWriter = 50
	payload := strings.Repeat("x", 2048)

	var wg sync.WaitGroup
	for w := 0; w < writers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < perWriter; i++ {
				if err := repo.Append(ctx, model.LogStreamActions, seqEntry{Seq: w*perWriter + i, Payload: payload}); err != nil {
					t.Errorf("Append() error = %v", err)
				}
			}
		}(w)
	}
	wg.Wait()

	data, err := os.ReadFile(repo.Path(model.LogStreamActions))
	if err != nil {
		t.Fatalf("failed to read log file: %v", err)
	}
	lines := strings.Split(strings.TrimRight(string(data), "\n"), "\n")
	if len(lines) != writers*perWriter {
		t.Fatalf("lines = %d, want %d", len(lines), writers*perWriter)
	}

	seen := make(map[int]bool, len(lines))
	for _, line := range lines {
		var e seqEntry
		if err := json.Unmarshal([]byte(line), &e); err != nil {
			t.Fatalf("interleaved or partial line: %v", err)
		}
		seen[e.Seq] = true
	}
	if len(seen) != writers*perWriter {
		t.Errorf("distinct entries = %d, want %d", len(seen), writers*perWriter)
	}
}
