// Package eventlog は認証・操作・エラーの3ストリームへのイベント記録を提供する。
// 記録の失敗は呼び出し元に伝播させず、フォールバックのロガーへ出力する。
package eventlog

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/hitoshi/oauthrelay/internal/metrics"
	"github.com/hitoshi/oauthrelay/internal/model"
	"github.com/hitoshi/oauthrelay/internal/repository"
)

// UnknownIP はIPアドレスが取得できない場合に記録する値。
const UnknownIP = "N/A"

// Service はイベントログの記録と参照を行う。
type Service struct {
	repo     repository.EventLogRepository
	metrics  metrics.MetricsCollector
	fallback *slog.Logger
	now      func() time.Time
}

// Option はServiceの任意設定。
type Option func(*Service)

// WithClock は時刻取得関数を差し替える。
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithMetrics はメトリクスの記録先を設定する。
func WithMetrics(m metrics.MetricsCollector) Option {
	return func(s *Service) { s.metrics = m }
}

// NewService はServiceを生成する。
// fallbackには書き込み失敗時の出力先を渡す（本番ではstderrのロガー）。
func NewService(repo repository.EventLogRepository, fallback *slog.Logger, opts ...Option) *Service {
	s := &Service{
		repo:     repo,
		metrics:  metrics.Nop{},
		fallback: fallback,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.fallback == nil {
		s.fallback = slog.Default()
	}
	return s
}

// LogAuth は認証イベントを記録する。
func (s *Service) LogAuth(ctx context.Context, eventType, userID, username string, details map[string]any) {
	s.append(ctx, model.LogStreamAuth, &model.AuthEvent{
		Timestamp: s.now(),
		EventType: eventType,
		UserID:    orNull(userID),
		Username:  orNull(username),
		Details:   orEmpty(details),
	})
}

// LogAction はユーザー操作イベントを記録する。
func (s *Service) LogAction(ctx context.Context, actionType, userID, username string, details map[string]any, ip string) {
	s.append(ctx, model.LogStreamActions, &model.ActionEvent{
		Timestamp:     s.now(),
		ActionType:    actionType,
		UserID:        orNull(userID),
		Username:      orNull(username),
		ActionDetails: orEmpty(details),
		IPAddress:     orUnknownIP(ip),
	})
}

// LogError はエラーイベントを記録する。errがnilの場合はメッセージを空にする。
func (s *Service) LogError(ctx context.Context, errorType string, err error, userID string, details map[string]any, ip string) {
	msg := ""
	if err != nil {
		msg = err.Error()
	}
	s.append(ctx, model.LogStreamErrors, &model.ErrorEvent{
		Timestamp:    s.now(),
		ErrorType:    errorType,
		ErrorMessage: msg,
		UserID:       orNull(userID),
		Details:      orEmpty(details),
		IPAddress:    orUnknownIP(ip),
	})
}

// Tail は指定ストリームの末尾limit件を書き込み順で返す。
func (s *Service) Tail(ctx context.Context, stream model.LogStream, limit int) ([]json.RawMessage, error) {
	return s.repo.Tail(ctx, stream, limit)
}

// append は書き込みに失敗してもエラーを返さない。
// 失敗はフォールバックロガーとメトリクスにだけ残す。
func (s *Service) append(ctx context.Context, stream model.LogStream, entry any) {
	if err := s.repo.Append(ctx, stream, entry); err != nil {
		s.metrics.RecordEventLogFailure(string(stream))
		s.fallback.Error("failed to write event log",
			slog.String("stream", string(stream)),
			slog.String("error", err.Error()),
			slog.Any("entry", entry),
		)
	}
}

func orEmpty(m map[string]any) map[string]any {
	if m == nil {
		return map[string]any{}
	}
	return m
}

// orNull は空文字をJSONのnullにする。
func orNull(v string) *string {
	if v == "" {
		return nil
	}
	return &v
}

func orUnknownIP(ip string) string {
	if ip == "" {
		return UnknownIP
	}
	return ip
}
