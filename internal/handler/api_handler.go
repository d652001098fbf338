package handler

import (
	"context"
	"errors"
	"net/http"

	"github.com/hitoshi/oauthrelay/internal/auth"
	"github.com/hitoshi/oauthrelay/internal/middleware"
	"github.com/hitoshi/oauthrelay/internal/model"
	"github.com/hitoshi/oauthrelay/internal/token"
)

// APIServiceInterface はローカルアプリ向けAPIハンドラーが必要とするサービスインターフェース。
type APIServiceInterface interface {
	Validate(ctx context.Context, tokenString, ip string) (*token.Payload, error)
	RecordAction(ctx context.Context, tokenString, actionType string, details map[string]any, ip string) (*token.Payload, error)
}

// APIHandler はローカルアプリからのトークン検証と操作記録を扱う。
type APIHandler struct {
	service APIServiceInterface
	events  middleware.ErrorLogger
}

// NewAPIHandler はAPIHandlerを生成する。
func NewAPIHandler(service APIServiceInterface, events middleware.ErrorLogger) *APIHandler {
	return &APIHandler{
		service: service,
		events:  events,
	}
}

// ValidateTokenResponse はトークン検証成功時のレスポンス。
type ValidateTokenResponse struct {
	Valid    bool   `json:"valid"`
	UserID   string `json:"user_id"`
	Username string `json:"username"`
	Exp      int64  `json:"exp"`
}

// ValidateToken はトークンを検証する。
// POST /api/validate-token
func (h *APIHandler) ValidateToken(w http.ResponseWriter, r *http.Request) {
	var req tokenRequest
	if err := decodeJSONBody(w, r, &req); err != nil {
		h.logInvalidRequest(r, err)
		middleware.WriteJSON(w, http.StatusBadRequest, map[string]any{"valid": false, "message": "Invalid JSON body"})
		return
	}

	tok := tokenFromRequest(r, req.Token)
	if tok == "" {
		middleware.WriteJSON(w, http.StatusBadRequest, map[string]any{"valid": false, "message": "Token required"})
		return
	}

	// 期限切れと不正は記録上は区別するが、レスポンスは同じにする
	payload, err := h.service.Validate(r.Context(), tok, middleware.ClientIP(r))
	if err != nil {
		middleware.WriteJSON(w, http.StatusUnauthorized, map[string]any{"valid": false, "message": "Invalid or expired token"})
		return
	}

	middleware.WriteJSON(w, http.StatusOK, ValidateTokenResponse{
		Valid:    true,
		UserID:   payload.UserID,
		Username: payload.Username,
		Exp:      payload.ExpiresAt.Unix(),
	})
}

// logActionRequest は操作記録のリクエストボディ。
type logActionRequest struct {
	Token         string         `json:"token"`
	ActionType    string         `json:"action_type"`
	ActionDetails map[string]any `json:"action_details"`
}

// LogAction はローカルアプリで行われた操作を記録する。
// POST /api/log-action
func (h *APIHandler) LogAction(w http.ResponseWriter, r *http.Request) {
	var req logActionRequest
	if err := decodeJSONBody(w, r, &req); err != nil {
		h.logInvalidRequest(r, err)
		middleware.WriteJSON(w, http.StatusBadRequest, map[string]any{"success": false, "message": "Invalid JSON body"})
		return
	}

	_, err := h.service.RecordAction(r.Context(), tokenFromRequest(r, req.Token), req.ActionType, req.ActionDetails, middleware.ClientIP(r))
	switch {
	case errors.Is(err, auth.ErrMissingActionType):
		middleware.WriteJSON(w, http.StatusBadRequest, map[string]any{"success": false, "message": "action_type required"})
		return
	case err != nil:
		middleware.WriteJSON(w, http.StatusUnauthorized, map[string]any{"success": false, "message": "Invalid token"})
		return
	}

	middleware.WriteJSON(w, http.StatusOK, map[string]any{"success": true, "message": "Action logged"})
}

func (h *APIHandler) logInvalidRequest(r *http.Request, err error) {
	if h.events == nil {
		return
	}
	h.events.LogError(r.Context(), model.ErrorTypeInvalidRequest, err, "", map[string]any{"path": r.URL.Path}, middleware.ClientIP(r))
}
