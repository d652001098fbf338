package middleware

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"runtime/debug"

	"github.com/hitoshi/oauthrelay/internal/model"
)

// ErrorLogger はエラーイベントの記録先。
type ErrorLogger interface {
	LogError(ctx context.Context, errorType string, err error, userID string, details map[string]any, ip string)
}

// NewRecoveryMiddleware はpanic発生時にプロセスクラッシュを防ぎ、
// INTERNAL_ERRORイベントを記録して500レスポンスを返すミドルウェアを生成する。
func NewRecoveryMiddleware(events ErrorLogger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				rec := recover()
				if rec == nil {
					return
				}
				if rec == http.ErrAbortHandler {
					panic(rec)
				}

				slog.Error("panic recovered",
					slog.Any("panic", rec),
					slog.String("method", r.Method),
					slog.String("path", r.URL.Path),
					slog.String("request_id", RequestIDFromContext(r.Context())),
					slog.String("stack", string(debug.Stack())),
				)
				if events != nil {
					events.LogError(r.Context(), model.ErrorTypeInternal, fmt.Errorf("panic: %v", rec), "",
						map[string]any{"path": r.URL.Path, "method": r.Method}, ClientIP(r))
				}
				WriteInternalServerError(w)
			}()
			next.ServeHTTP(w, r)
		})
	}
}
