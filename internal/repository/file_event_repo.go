package repository

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/hitoshi/oauthrelay/internal/model"
)

// FileEventLogRepo はストリームごとに改行区切りJSONファイルへ追記するリポジトリ。
type FileEventLogRepo struct {
	dir   string
	locks map[model.LogStream]*sync.Mutex
}

// NewFileEventLogRepo はFileEventLogRepoを生成する。
// ディレクトリと各ストリームのファイルが存在しない場合は作成する。
func NewFileEventLogRepo(dir string) (*FileEventLogRepo, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create log directory: %w", err)
	}

	r := &FileEventLogRepo{
		dir:   dir,
		locks: make(map[model.LogStream]*sync.Mutex, len(model.LogStreams)),
	}
	for _, s := range model.LogStreams {
		r.locks[s] = &sync.Mutex{}

		f, err := os.OpenFile(r.Path(s), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, fmt.Errorf("failed to create log file for %s: %w", s, err)
		}
		f.Close()
	}

	return r, nil
}

// Path はストリームのファイルパスを返す。
func (r *FileEventLogRepo) Path(stream model.LogStream) string {
	return filepath.Join(r.dir, string(stream)+".log")
}

// Append はエントリをJSON化し、改行付きの1回のWriteで追記する。
func (r *FileEventLogRepo) Append(ctx context.Context, stream model.LogStream, entry any) error {
	mu, ok := r.locks[stream]
	if !ok {
		return fmt.Errorf("unknown log stream: %q", stream)
	}

	line, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("failed to encode log entry: %w", err)
	}
	line = append(line, '\n')

	mu.Lock()
	defer mu.Unlock()

	f, err := os.OpenFile(r.Path(stream), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("failed to open log file: %w", err)
	}

	if _, err := f.Write(line); err != nil {
		f.Close()
		return fmt.Errorf("failed to append log entry: %w", err)
	}

	return f.Close()
}

// Tail は末尾からlimit件のエントリを書き込み順で返す。
// JSONとして解析できない行は読み飛ばす。ファイルが存在しない場合は空を返す。
func (r *FileEventLogRepo) Tail(ctx context.Context, stream model.LogStream, limit int) ([]json.RawMessage, error) {
	mu, ok := r.locks[stream]
	if !ok {
		return nil, fmt.Errorf("unknown log stream: %q", stream)
	}
	if limit <= 0 {
		return []json.RawMessage{}, nil
	}

	mu.Lock()
	defer mu.Unlock()

	f, err := os.Open(r.Path(stream))
	if errors.Is(err, os.ErrNotExist) {
		return []json.RawMessage{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open log file: %w", err)
	}
	defer f.Close()

	// limit件のリングバッファで末尾を保持する
	ring := make([]json.RawMessage, limit)
	n := 0

	reader := bufio.NewReader(f)
	for {
		line, readErr := reader.ReadBytes('\n')
		line = bytes.TrimSpace(line)
		if len(line) > 0 && json.Valid(line) {
			ring[n%limit] = json.RawMessage(line)
			n++
		}
		if readErr != nil {
			if errors.Is(readErr, io.EOF) {
				break
			}
			return nil, fmt.Errorf("failed to read log file: %w", readErr)
		}
	}

	count := min(n, limit)
	out := make([]json.RawMessage, 0, count)
	for i := n - count; i < n; i++ {
		out = append(out, ring[i%limit])
	}

	return out, nil
}

// compile-time interface check
var _ EventLogRepository = (*FileEventLogRepo)(nil)
