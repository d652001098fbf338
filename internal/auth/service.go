// Package auth はDiscord OAuthによるログインフローとトークン検証を提供する。
package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"golang.org/x/oauth2"

	"github.com/hitoshi/oauthrelay/internal/metrics"
	"github.com/hitoshi/oauthrelay/internal/model"
	"github.com/hitoshi/oauthrelay/internal/token"
)

var (
	// ErrUpstreamAuth はプロバイダーとのコード交換またはユーザー情報取得の失敗を表す。
	ErrUpstreamAuth = errors.New("upstream auth failed")
	// ErrMissingCode はコールバックに認可コードが含まれていないことを表す。
	ErrMissingCode = errors.New("authorization code is missing")
	// ErrMissingActionType は操作記録にaction_typeが指定されていないことを表す。
	ErrMissingActionType = errors.New("action type is required")
)

// ログイン結果のメトリクスラベル
const (
	LoginOutcomeSuccess     = "success"
	LoginOutcomeDenied      = "denied"
	LoginOutcomeMissingCode = "missing_code"
	LoginOutcomeOAuthFailed = "oauth_failed"
	LoginOutcomeTokenFailed = "token_failed"
)

// DeniedError はプロバイダー側でログインが拒否されたことを表す。
// Reasonにはプロバイダーが返したerrorクエリの値が入る。
type DeniedError struct {
	Reason string
}

func (e *DeniedError) Error() string {
	return "login denied by provider: " + e.Reason
}

// OAuthProvider はOAuth認証プロバイダーのインターフェース。
type OAuthProvider interface {
	// AuthCodeURL は認可URLを生成する。
	AuthCodeURL(state string) string
	// Exchange は認可コードをアクセストークンに交換する。
	Exchange(ctx context.Context, code string) (*oauth2.Token, error)
	// FetchIdentity はアクセストークンでユーザー情報を取得する。
	FetchIdentity(ctx context.Context, tok *oauth2.Token) (*model.Identity, error)
}

// LoginRecorder はログインをユーザーストアに反映する。
type LoginRecorder interface {
	RecordLogin(ctx context.Context, identity *model.Identity) (*model.UserRecord, error)
}

// TokenService はトークンの発行と検証を行う。
type TokenService interface {
	Issue(userID, username string) (string, *token.Payload, error)
	Verify(tokenString string) (*token.Payload, error)
}

// EventLogger はイベントログの記録先。
type EventLogger interface {
	LogAuth(ctx context.Context, eventType, userID, username string, details map[string]any)
	LogAction(ctx context.Context, actionType, userID, username string, details map[string]any, ip string)
	LogError(ctx context.Context, errorType string, err error, userID string, details map[string]any, ip string)
}

// Service は認証フローに関するビジネスロジックを提供する。
type Service struct {
	provider OAuthProvider
	users    LoginRecorder
	tokens   TokenService
	events   EventLogger
	metrics  metrics.MetricsCollector
}

// NewService はServiceを生成する。mがnilの場合はメトリクスを記録しない。
func NewService(
	provider OAuthProvider,
	users LoginRecorder,
	tokens TokenService,
	events EventLogger,
	m metrics.MetricsCollector,
) *Service {
	if m == nil {
		m = metrics.Nop{}
	}
	return &Service{
		provider: provider,
		users:    users,
		tokens:   tokens,
		events:   events,
		metrics:  m,
	}
}

// LoginURL はプロバイダーの認可URLを生成し、ログイン開始を記録する。
func (s *Service) LoginURL(ctx context.Context, state, ip string) string {
	s.events.LogAction(ctx, model.ActionOAuthLoginInitiated, "", "anonymous", nil, ip)
	return s.provider.AuthCodeURL(state)
}

// CallbackRequest はOAuthコールバックの入力。
type CallbackRequest struct {
	Code string
	// StateValid はstateがクッキーの値と一致したかどうか。
	StateValid bool
	// ProviderError はプロバイダーが返したerrorクエリの値。
	ProviderError string
	IP            string
}

// CallbackResult はログイン成功時の結果。
type CallbackResult struct {
	Token   string
	Payload *token.Payload
	User    *model.UserRecord
}

// HandleCallback はOAuthコールバックを処理し、トークンを発行する。
//
// stateの不一致は警告として記録するだけで処理を続ける。
// ユーザーストアへの保存に失敗してもログインは継続する。
// 返すエラーは*DeniedError、ErrMissingCode、ErrUpstreamAuth、token.ErrTokenGenerationのいずれかをラップする。
func (s *Service) HandleCallback(ctx context.Context, req CallbackRequest) (*CallbackResult, error) {
	if req.ProviderError != "" {
		s.events.LogAuth(ctx, model.AuthEventLoginDenied, "", "", map[string]any{"error": req.ProviderError})
		s.metrics.RecordLogin(LoginOutcomeDenied)
		return nil, &DeniedError{Reason: req.ProviderError}
	}

	if !req.StateValid {
		slog.Warn("oauth state mismatch", slog.String("client_ip", req.IP))
		s.events.LogAuth(ctx, model.AuthEventCSRFWarning, "", "", map[string]any{
			"message":    "OAuth state parameter mismatch",
			"ip_address": req.IP,
		})
	}

	if req.Code == "" {
		s.events.LogError(ctx, model.ErrorTypeOAuthCallback, ErrMissingCode, "", nil, req.IP)
		s.metrics.RecordLogin(LoginOutcomeMissingCode)
		return nil, ErrMissingCode
	}

	// 1. 認可コードをトークンに交換し、ユーザー情報を取得
	identity, err := s.fetchIdentity(ctx, req.Code)
	if err != nil {
		s.events.LogError(ctx, model.ErrorTypeOAuthCallback, err, "", nil, req.IP)
		s.metrics.RecordLogin(LoginOutcomeOAuthFailed)
		return nil, err
	}

	// 2. ユーザーストアに反映（失敗してもログインは継続）
	rec, err := s.users.RecordLogin(ctx, identity)
	if err != nil {
		slog.Error("failed to save user",
			slog.String("user_id", identity.ExternalID),
			slog.String("error", err.Error()),
		)
		s.events.LogError(ctx, model.ErrorTypeSaveUser, err, identity.ExternalID, nil, req.IP)
		rec = &model.UserRecord{
			ExternalID:    identity.ExternalID,
			Username:      identity.Username,
			Email:         identity.Email,
			Avatar:        identity.Avatar,
			Discriminator: identity.Discriminator,
		}
	}

	// 3. トークンを発行（ユーザー名はプロバイダーの最新値を使う）
	tok, payload, err := s.tokens.Issue(identity.ExternalID, identity.Username)
	if err != nil {
		s.events.LogError(ctx, model.ErrorTypeJWTGeneration, err, rec.ExternalID, nil, req.IP)
		s.events.LogError(ctx, model.ErrorTypeTokenGenFailed, err, rec.ExternalID, nil, req.IP)
		s.metrics.RecordLogin(LoginOutcomeTokenFailed)
		return nil, fmt.Errorf("failed to issue token for %s: %w", rec.ExternalID, err)
	}
	s.metrics.RecordTokenIssued()

	s.events.LogAuth(ctx, model.AuthEventLoginSuccess, payload.UserID, payload.Username, map[string]any{
		"email":       identity.Email,
		"login_count": rec.LoginCount,
	})
	s.events.LogAction(ctx, model.ActionUserLogin, payload.UserID, payload.Username, map[string]any{
		"method": "discord_oauth",
	}, req.IP)
	s.metrics.RecordLogin(LoginOutcomeSuccess)

	slog.Info("user logged in",
		slog.String("user_id", rec.ExternalID),
		slog.Int("login_count", rec.LoginCount),
	)

	return &CallbackResult{
		Token:   tok,
		Payload: payload,
		User:    rec,
	}, nil
}

func (s *Service) fetchIdentity(ctx context.Context, code string) (*model.Identity, error) {
	oauthToken, err := s.provider.Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUpstreamAuth, err)
	}
	identity, err := s.provider.FetchIdentity(ctx, oauthToken)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUpstreamAuth, err)
	}
	return identity, nil
}

// ValidateToken はトークンを検証する。
// 失敗はJWT_EXPIREDまたはJWT_INVALIDとして記録し、token.ErrTokenExpiredかtoken.ErrTokenInvalidを返す。
func (s *Service) ValidateToken(ctx context.Context, tokenString, ip string) (*token.Payload, error) {
	payload, err := s.tokens.Verify(tokenString)
	if err != nil {
		errorType := model.ErrorTypeJWTInvalid
		result := metrics.VerifyResultInvalid
		if errors.Is(err, token.ErrTokenExpired) {
			errorType = model.ErrorTypeJWTExpired
			result = metrics.VerifyResultExpired
		}
		s.events.LogError(ctx, errorType, err, "", map[string]any{"token": token.Prefix(tokenString)}, ip)
		s.metrics.RecordTokenVerification(result)
		return nil, err
	}
	s.metrics.RecordTokenVerification(metrics.VerifyResultValid)
	return payload, nil
}

// Validate はトークンを検証し、成功を操作ログに記録する。
func (s *Service) Validate(ctx context.Context, tokenString, ip string) (*token.Payload, error) {
	payload, err := s.ValidateToken(ctx, tokenString, ip)
	if err != nil {
		return nil, err
	}
	s.events.LogAction(ctx, model.ActionTokenValidated, payload.UserID, payload.Username, nil, ip)
	return payload, nil
}

// Logout はトークンの持ち主のログアウトを記録する。
// トークンはサーバー側に保存していないため無効化はしない。
func (s *Service) Logout(ctx context.Context, tokenString, ip string) (*token.Payload, error) {
	payload, err := s.ValidateToken(ctx, tokenString, ip)
	if err != nil {
		return nil, err
	}
	s.events.LogAuth(ctx, model.AuthEventLogout, payload.UserID, payload.Username, map[string]any{"ip_address": ip})
	s.events.LogAction(ctx, model.ActionUserLogout, payload.UserID, payload.Username, nil, ip)
	return payload, nil
}

// RecordAction はローカルアプリから報告された操作を記録する。
func (s *Service) RecordAction(ctx context.Context, tokenString, actionType string, details map[string]any, ip string) (*token.Payload, error) {
	payload, err := s.ValidateToken(ctx, tokenString, ip)
	if err != nil {
		return nil, err
	}
	if actionType == "" {
		return nil, ErrMissingActionType
	}
	s.events.LogAction(ctx, actionType, payload.UserID, payload.Username, details, ip)
	return payload, nil
}
