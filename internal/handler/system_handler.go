package handler

import (
	"errors"
	"net/http"
	"time"

	"github.com/hitoshi/oauthrelay/internal/middleware"
	"github.com/hitoshi/oauthrelay/internal/model"
)

// SystemHandlerConfig はシステムエンドポイントの設定。
type SystemHandlerConfig struct {
	Name    string
	Version string
	// Now は現在時刻を返す。nilの場合はtime.Now。
	Now func() time.Time
}

// SystemHandler はヘルスチェック、エンドポイント一覧、404を扱う。
type SystemHandler struct {
	config SystemHandlerConfig
	events middleware.ErrorLogger
}

// NewSystemHandler はSystemHandlerを生成する。
func NewSystemHandler(config SystemHandlerConfig, events middleware.ErrorLogger) *SystemHandler {
	if config.Now == nil {
		config.Now = time.Now
	}
	return &SystemHandler{
		config: config,
		events: events,
	}
}

// Health はヘルスチェックの結果を返す。
// GET /health
func (h *SystemHandler) Health(w http.ResponseWriter, r *http.Request) {
	middleware.WriteJSON(w, http.StatusOK, map[string]any{
		"status":    "healthy",
		"timestamp": h.config.Now().Format(time.RFC3339),
		"version":   h.config.Version,
	})
}

// Index は公開しているエンドポイントの一覧を返す。
// GET /
func (h *SystemHandler) Index(w http.ResponseWriter, r *http.Request) {
	middleware.WriteJSON(w, http.StatusOK, map[string]any{
		"name":    h.config.Name,
		"version": h.config.Version,
		"endpoints": map[string]any{
			"auth":    []string{"/auth/discord/login", "/auth/discord/callback", "/auth/logout"},
			"api":     []string{"/api/validate-token", "/api/log-action", "/api/users", "/api/logs"},
			"health":  "/health",
			"metrics": "/metrics",
		},
	})
}

// NotFound は未定義のルートに404を返し、NOT_FOUNDイベントを記録する。
func (h *SystemHandler) NotFound(w http.ResponseWriter, r *http.Request) {
	if h.events != nil {
		h.events.LogError(r.Context(), model.ErrorTypeNotFound, errors.New("route not found"), "",
			map[string]any{"path": r.URL.Path, "method": r.Method}, middleware.ClientIP(r))
	}
	middleware.WriteErrorResponse(w, http.StatusNotFound, "Not found")
}

// MethodNotAllowed は定義済みパスへの未対応メソッドに405を返す。
func (h *SystemHandler) MethodNotAllowed(w http.ResponseWriter, r *http.Request) {
	middleware.WriteErrorResponse(w, http.StatusMethodNotAllowed, "Method not allowed")
}
