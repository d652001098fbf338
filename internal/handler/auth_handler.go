// Package handler はHTTPハンドラーを提供する。
package handler

import (
	"context"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/hitoshi/oauthrelay/internal/auth"
	"github.com/hitoshi/oauthrelay/internal/middleware"
	"github.com/hitoshi/oauthrelay/internal/model"
	"github.com/hitoshi/oauthrelay/internal/token"
)

const (
	oauthStateCookie    = "oauth_state"
	oauthRedirectCookie = "oauth_redirect"
	oauthCookieMaxAge   = 600 // 10分

	redirectURIParam = "redirect_uri"
)

// AuthServiceInterface は認証ハンドラーが必要とするサービスインターフェース。
type AuthServiceInterface interface {
	LoginURL(ctx context.Context, state, ip string) string
	HandleCallback(ctx context.Context, req auth.CallbackRequest) (*auth.CallbackResult, error)
	Logout(ctx context.Context, tokenString, ip string) (*token.Payload, error)
}

// AuthHandlerConfig は認証ハンドラーの設定。
type AuthHandlerConfig struct {
	// StateSecret はstateクッキーのHMAC鍵。
	StateSecret string
	// DefaultRedirect はredirect_uriが指定されなかったときの戻り先。
	DefaultRedirect string
	CookieSecure    bool
}

// AuthHandler はOAuth認証関連のHTTPハンドラー。
type AuthHandler struct {
	service AuthServiceInterface
	config  AuthHandlerConfig
}

// NewAuthHandler はAuthHandlerを生成する。
func NewAuthHandler(service AuthServiceInterface, config AuthHandlerConfig) *AuthHandler {
	return &AuthHandler{
		service: service,
		config:  config,
	}
}

// Login はDiscord OAuthフローを開始する。
// GET /auth/discord/login?redirect_uri=...
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	state, err := generateState()
	if err != nil {
		slog.Error("failed to generate oauth state", slog.String("error", err.Error()))
		middleware.WriteInternalServerError(w)
		return
	}

	// stateをCookieに保存（CSRF対策）
	h.setCookie(w, oauthStateCookie, h.signState(state), oauthCookieMaxAge)

	// 戻り先はコールバックまで覚えておく
	if redirectURI := r.URL.Query().Get(redirectURIParam); redirectURI != "" {
		h.setCookie(w, oauthRedirectCookie, url.QueryEscape(redirectURI), oauthCookieMaxAge)
	}

	loginURL := h.service.LoginURL(r.Context(), state, middleware.ClientIP(r))
	http.Redirect(w, r, loginURL, http.StatusFound)
}

// Callback はOAuthコールバックを処理し、トークンを付けてローカルアプリにリダイレクトする。
// GET /auth/discord/callback?code=xxx&state=yyy
//
// 失敗時もリダイレクトで返し、errorクエリに理由を載せる。
func (h *AuthHandler) Callback(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	target := h.redirectTarget(r)
	stateValid := h.verifyState(r, q.Get("state"))

	// 一度きりのクッキーを削除
	h.setCookie(w, oauthStateCookie, "", -1)
	h.setCookie(w, oauthRedirectCookie, "", -1)

	result, err := h.service.HandleCallback(r.Context(), auth.CallbackRequest{
		Code:          q.Get("code"),
		StateValid:    stateValid,
		ProviderError: q.Get("error"),
		IP:            middleware.ClientIP(r),
	})
	if err != nil {
		slog.Warn("oauth callback failed", slog.String("error", err.Error()))
		http.Redirect(w, r, withQuery(target, url.Values{"error": {callbackErrorCode(err)}}), http.StatusFound)
		return
	}

	http.Redirect(w, r, withQuery(target, url.Values{
		"token":    {result.Token},
		"user_id":  {result.Payload.UserID},
		"username": {result.Payload.Username},
	}), http.StatusFound)
}

// Logout はトークンの持ち主のログアウトを記録する。
// POST /auth/logout
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	var req tokenRequest
	if err := decodeJSONBody(w, r, &req); err != nil {
		middleware.WriteJSON(w, http.StatusBadRequest, map[string]any{"success": false, "message": "Invalid JSON body"})
		return
	}

	if _, err := h.service.Logout(r.Context(), tokenFromRequest(r, req.Token), middleware.ClientIP(r)); err != nil {
		middleware.WriteJSON(w, http.StatusUnauthorized, map[string]any{"success": false, "message": "Invalid token"})
		return
	}

	middleware.WriteJSON(w, http.StatusOK, map[string]any{"success": true, "message": "Logged out successfully"})
}

// redirectTarget はコールバック後の戻り先を決める。
// クエリ、クッキー、デフォルトの順に優先する。
func (h *AuthHandler) redirectTarget(r *http.Request) string {
	if v := r.URL.Query().Get(redirectURIParam); v != "" {
		return v
	}
	if c, err := r.Cookie(oauthRedirectCookie); err == nil && c.Value != "" {
		if v, err := url.QueryUnescape(c.Value); err == nil && v != "" {
			return v
		}
	}
	return h.config.DefaultRedirect
}

func (h *AuthHandler) setCookie(w http.ResponseWriter, name, value string, maxAge int) {
	http.SetCookie(w, &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/auth",
		MaxAge:   maxAge,
		HttpOnly: true,
		Secure:   h.config.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	})
}

// signState はstate値に署名を付けたクッキー値を返す。
func (h *AuthHandler) signState(state string) string {
	return state + "." + h.stateMAC(state)
}

// verifyState はクッキーの署名とクエリのstateが一致するか検証する。
func (h *AuthHandler) verifyState(r *http.Request, state string) bool {
	if state == "" {
		return false
	}
	c, err := r.Cookie(oauthStateCookie)
	if err != nil {
		return false
	}
	value, mac, ok := strings.Cut(c.Value, ".")
	if !ok || value != state {
		return false
	}
	return hmac.Equal([]byte(mac), []byte(h.stateMAC(value)))
}

func (h *AuthHandler) stateMAC(state string) string {
	m := hmac.New(sha256.New, []byte(h.config.StateSecret))
	m.Write([]byte(state))
	return hex.EncodeToString(m.Sum(nil))
}

// callbackErrorCode はコールバックのエラーをリダイレクト用のコードに変換する。
func callbackErrorCode(err error) string {
	var denied *auth.DeniedError
	switch {
	case errors.As(err, &denied):
		return denied.Reason
	case errors.Is(err, auth.ErrMissingCode):
		return model.ErrCodeMissingCode
	case errors.Is(err, token.ErrTokenGeneration):
		return model.ErrCodeTokenFailed
	default:
		return model.ErrCodeOAuthFailed
	}
}

// withQuery はtargetのクエリにparamsを追加したURLを返す。
// targetが解釈できない場合は文字列として連結する。
func withQuery(target string, params url.Values) string {
	u, err := url.Parse(target)
	if err != nil {
		return target + "?" + params.Encode()
	}
	q := u.Query()
	for k, vs := range params {
		q[k] = vs
	}
	u.RawQuery = q.Encode()
	return u.String()
}

// generateState はCSRF対策用のランダムなstate値を生成する。
func generateState() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
