package middleware

import (
	"crypto/subtle"
	"errors"
	"log/slog"
	"net/http"

	"github.com/hitoshi/oauthrelay/internal/model"
)

const (
	// AdminTokenHeader は管理者トークンを渡すヘッダー名。
	AdminTokenHeader = "X-Admin-Token"
	// AdminTokenQueryParam は互換性のために受け付けるクエリパラメータ名。
	AdminTokenQueryParam = "admin_token"
)

var errAdminUnauthorized = errors.New("invalid admin token")

// NewAdminGateMiddleware は管理者トークンを検証するミドルウェアを返す。
// ヘッダーを優先し、なければクエリパラメータを使う。
// 不一致・未指定はどちらも同じ401を返し、ADMIN_UNAUTHORIZEDイベントを記録する。
func NewAdminGateMiddleware(adminToken string, events ErrorLogger) func(next http.Handler) http.Handler {
	expected := []byte(adminToken)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			supplied := r.Header.Get(AdminTokenHeader)
			if supplied == "" {
				supplied = r.URL.Query().Get(AdminTokenQueryParam)
			}

			if len(expected) == 0 || subtle.ConstantTimeCompare([]byte(supplied), expected) != 1 {
				slog.Warn("admin authentication failed",
					slog.String("path", r.URL.Path),
					slog.String("client_ip", ClientIP(r)),
				)
				if events != nil {
					events.LogError(r.Context(), model.ErrorTypeAdminUnauthorized, errAdminUnauthorized, "",
						map[string]any{"path": r.URL.Path}, ClientIP(r))
				}
				WriteErrorResponse(w, http.StatusUnauthorized, "Unauthorized")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
