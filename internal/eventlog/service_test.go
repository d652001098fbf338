package eventlog

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/hitoshi/oauthrelay/internal/metrics"
	"github.com/hitoshi/oauthrelay/internal/model"
	"github.com/hitoshi/oauthrelay/internal/repository"
)

// --- モック定義 ---

type failingRepo struct {
	err error
}

func (r *failingRepo) Append(ctx context.Context, stream model.LogStream, entry any) error {
	return r.err
}

func (r *failingRepo) Tail(ctx context.Context, stream model.LogStream, limit int) ([]json.RawMessage, error) {
	return nil, r.err
}

type recordingMetrics struct {
	metrics.Nop
	failures []string
}

func (m *recordingMetrics) RecordEventLogFailure(stream string) {
	m.failures = append(m.failures, stream)
}

var fixedNow = time.Date(2026, 2, 3, 4, 5, 6, 0, time.UTC)

func newTestService(repo repository.EventLogRepository, buf *bytes.Buffer, opts ...Option) *Service {
	logger := slog.New(slog.NewJSONHandler(buf, nil))
	opts = append([]Option{WithClock(func() time.Time { return fixedNow })}, opts...)
	return NewService(repo, logger, opts...)
}

func tailOne(t *testing.T, svc *Service, stream model.LogStream) map[string]any {
	t.Helper()
	raw, err := svc.Tail(context.Background(), stream, 10)
	if err != nil {
		t.Fatalf("Tail() error = %v", err)
	}
	if len(raw) != 1 {
		t.Fatalf("len(entries) = %d, want 1", len(raw))
	}
	var entry map[string]any
	if err := json.Unmarshal(raw[0], &entry); err != nil {
		t.Fatalf("failed to decode entry: %v", err)
	}
	return entry
}

// --- テスト ---

func TestService_LogAuth_WritesAuthEntry(t *testing.T) {
	var buf bytes.Buffer
	svc := newTestService(repository.NewMemoryEventLogRepo(), &buf)

	svc.LogAuth(context.Background(), model.AuthEventLoginSuccess, "42", "alice", map[string]any{"method": "discord"})

	entry := tailOne(t, svc, model.LogStreamAuth)
	if entry["event_type"] != "LOGIN_SUCCESS" {
		t.Errorf("event_type = %v, want LOGIN_SUCCESS", entry["event_type"])
	}
	if entry["user_id"] != "42" || entry["username"] != "alice" {
		t.Errorf("user = %v/%v, want 42/alice", entry["user_id"], entry["username"])
	}
	if entry["timestamp"] != fixedNow.Format(time.RFC3339) {
		t.Errorf("timestamp = %v, want %v", entry["timestamp"], fixedNow.Format(time.RFC3339))
	}
	details, _ := entry["details"].(map[string]any)
	if details["method"] != "discord" {
		t.Errorf("details = %v", entry["details"])
	}
}

func TestService_LogAction_DefaultsIPAndDetails(t *testing.T) {
	var buf bytes.Buffer
	svc := newTestService(repository.NewMemoryEventLogRepo(), &buf)

	svc.LogAction(context.Background(), model.ActionOAuthLoginInitiated, "", "anonymous", nil, "")

	entry := tailOne(t, svc, model.LogStreamActions)
	if entry["action_type"] != "OAUTH_LOGIN_INITIATED" {
		t.Errorf("action_type = %v", entry["action_type"])
	}
	if entry["ip_address"] != UnknownIP {
		t.Errorf("ip_address = %v, want %q", entry["ip_address"], UnknownIP)
	}
	if details, ok := entry["action_details"].(map[string]any); !ok || len(details) != 0 {
		t.Errorf("action_details = %v, want empty object", entry["action_details"])
	}
	// 匿名の操作でもuser_idキーはnullとして残る
	if v, ok := entry["user_id"]; !ok || v != nil {
		t.Errorf("user_id = %v (present=%v), want null", v, ok)
	}
	if entry["username"] != "anonymous" {
		t.Errorf("username = %v, want anonymous", entry["username"])
	}
}

func TestService_AnonymousEntries_KeepUserKeysAsNull(t *testing.T) {
	var buf bytes.Buffer
	svc := newTestService(repository.NewMemoryEventLogRepo(), &buf)
	ctx := context.Background()

	svc.LogAuth(ctx, model.AuthEventCSRFWarning, "", "", nil)
	svc.LogError(ctx, model.ErrorTypeNotFound, nil, "", nil, "10.0.0.1")

	auth := tailOne(t, svc, model.LogStreamAuth)
	for _, key := range []string{"user_id", "username"} {
		if v, ok := auth[key]; !ok || v != nil {
			t.Errorf("auth %s = %v (present=%v), want null", key, v, ok)
		}
	}

	errEntry := tailOne(t, svc, model.LogStreamErrors)
	if v, ok := errEntry["user_id"]; !ok || v != nil {
		t.Errorf("error user_id = %v (present=%v), want null", v, ok)
	}
}

func TestService_LogError_RecordsMessage(t *testing.T) {
	var buf bytes.Buffer
	svc := newTestService(repository.NewMemoryEventLogRepo(), &buf)

	svc.LogError(context.Background(), model.ErrorTypeJWTInvalid, errors.New("signature is invalid"), "", map[string]any{"token": "eyJhbGciOi"}, "10.0.0.1")

	entry := tailOne(t, svc, model.LogStreamErrors)
	if entry["error_type"] != "JWT_INVALID" {
		t.Errorf("error_type = %v", entry["error_type"])
	}
	if entry["error_message"] != "signature is invalid" {
		t.Errorf("error_message = %v", entry["error_message"])
	}
	if entry["ip_address"] != "10.0.0.1" {
		t.Errorf("ip_address = %v", entry["ip_address"])
	}
}

func TestService_AppendFailure_IsSwallowedAndReported(t *testing.T) {
	var buf bytes.Buffer
	m := &recordingMetrics{}
	svc := newTestService(&failingRepo{err: errors.New("disk full")}, &buf, WithMetrics(m))

	// panicもエラーも返さないこと
	svc.LogAuth(context.Background(), model.AuthEventLogout, "42", "alice", nil)
	svc.LogAction(context.Background(), model.ActionUserLogout, "42", "alice", nil, "127.0.0.1")
	svc.LogError(context.Background(), model.ErrorTypeInternal, errors.New("x"), "", nil, "")

	if len(m.failures) != 3 {
		t.Fatalf("failures = %v, want 3 entries", m.failures)
	}
	if m.failures[0] != "auth" || m.failures[1] != "actions" || m.failures[2] != "errors" {
		t.Errorf("failures = %v, want [auth actions errors]", m.failures)
	}

	out := buf.String()
	if !strings.Contains(out, "failed to write event log") {
		t.Errorf("fallback log should mention the failure, got: %s", out)
	}
	if !strings.Contains(out, "disk full") {
		t.Errorf("fallback log should include the cause, got: %s", out)
	}
}

func TestService_Tail_PropagatesReadError(t *testing.T) {
	var buf bytes.Buffer
	svc := newTestService(&failingRepo{err: errors.New("read failed")}, &buf)

	if _, err := svc.Tail(context.Background(), model.LogStreamAuth, 10); err == nil {
		t.Error("expected error from Tail")
	}
}
