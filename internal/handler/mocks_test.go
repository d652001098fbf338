package handler

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/hitoshi/oauthrelay/internal/auth"
	"github.com/hitoshi/oauthrelay/internal/model"
	"github.com/hitoshi/oauthrelay/internal/token"
)

// --- モック定義 ---

type mockAuthService struct {
	loginURLFn       func(ctx context.Context, state, ip string) string
	handleCallbackFn func(ctx context.Context, req auth.CallbackRequest) (*auth.CallbackResult, error)
	logoutFn         func(ctx context.Context, tokenString, ip string) (*token.Payload, error)
}

func (m *mockAuthService) LoginURL(ctx context.Context, state, ip string) string {
	if m.loginURLFn != nil {
		return m.loginURLFn(ctx, state, ip)
	}
	return ""
}

func (m *mockAuthService) HandleCallback(ctx context.Context, req auth.CallbackRequest) (*auth.CallbackResult, error) {
	if m.handleCallbackFn != nil {
		return m.handleCallbackFn(ctx, req)
	}
	return nil, nil
}

func (m *mockAuthService) Logout(ctx context.Context, tokenString, ip string) (*token.Payload, error) {
	if m.logoutFn != nil {
		return m.logoutFn(ctx, tokenString, ip)
	}
	return nil, nil
}

type mockAPIService struct {
	validateFn     func(ctx context.Context, tokenString, ip string) (*token.Payload, error)
	recordActionFn func(ctx context.Context, tokenString, actionType string, details map[string]any, ip string) (*token.Payload, error)
}

func (m *mockAPIService) Validate(ctx context.Context, tokenString, ip string) (*token.Payload, error) {
	if m.validateFn != nil {
		return m.validateFn(ctx, tokenString, ip)
	}
	return nil, token.ErrTokenInvalid
}

func (m *mockAPIService) RecordAction(ctx context.Context, tokenString, actionType string, details map[string]any, ip string) (*token.Payload, error) {
	if m.recordActionFn != nil {
		return m.recordActionFn(ctx, tokenString, actionType, details, ip)
	}
	return nil, token.ErrTokenInvalid
}

type mockUserLister struct {
	listFn func(ctx context.Context) (map[string]*model.UserRecord, error)
}

func (m *mockUserLister) List(ctx context.Context) (map[string]*model.UserRecord, error) {
	return m.listFn(ctx)
}

type mockEvents struct {
	mu     sync.Mutex
	errors []string
	tailFn func(ctx context.Context, stream model.LogStream, limit int) ([]json.RawMessage, error)
}

func (m *mockEvents) LogError(ctx context.Context, errorType string, err error, userID string, details map[string]any, ip string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.errors = append(m.errors, errorType)
}

func (m *mockEvents) Tail(ctx context.Context, stream model.LogStream, limit int) ([]json.RawMessage, error) {
	if m.tailFn != nil {
		return m.tailFn(ctx, stream, limit)
	}
	return nil, nil
}

func (m *mockEvents) errorTypes() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.errors...)
}

// --- compile-time interface checks ---
var (
	_ AuthServiceInterface = (*mockAuthService)(nil)
	_ APIServiceInterface  = (*mockAPIService)(nil)
	_ UserLister           = (*mockUserLister)(nil)
	_ EventService         = (*mockEvents)(nil)
	_ AuthServiceInterface = (*auth.Service)(nil)
	_ APIServiceInterface  = (*auth.Service)(nil)
)
