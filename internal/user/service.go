// Package user はユーザーストアのドメインロジックを提供する。
package user

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/hitoshi/oauthrelay/internal/model"
	"github.com/hitoshi/oauthrelay/internal/repository"
)

// ErrorLogger はエラーイベントの記録先。
type ErrorLogger interface {
	LogError(ctx context.Context, errorType string, err error, userID string, details map[string]any, ip string)
}

// Service はユーザーストアのサービス層。
// ログイン時のマージ方針と、読み込み失敗時のフェイルソフトを提供する。
type Service struct {
	repo   repository.UserRepository
	events ErrorLogger
	now    func() time.Time
}

// NewService はServiceの新しいインスタンスを生成する。
// nowがnilの場合はtime.Nowを使う。
func NewService(repo repository.UserRepository, events ErrorLogger, now func() time.Time) *Service {
	if now == nil {
		now = time.Now
	}
	return &Service{
		repo:   repo,
		events: events,
		now:    now,
	}
}

// RecordLogin はOAuthログインをユーザーストアに反映する。
// マージ方針はMergeLoginを参照。
func (s *Service) RecordLogin(ctx context.Context, identity *model.Identity) (*model.UserRecord, error) {
	if identity == nil || identity.ExternalID == "" {
		return nil, fmt.Errorf("identity with external ID is required")
	}

	now := s.now()
	rec, err := s.repo.Upsert(ctx, identity.ExternalID, func(existing *model.UserRecord) (*model.UserRecord, error) {
		return MergeLogin(existing, identity, now), nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to save user %s: %w", identity.ExternalID, err)
	}

	slog.Debug("user login recorded",
		slog.String("user_id", rec.ExternalID),
		slog.Int("login_count", rec.LoginCount),
	)
	return rec, nil
}

// List は全ユーザーを返す。
// 読み込みに失敗した場合はLOAD_USERSエラーイベントを記録し、空のマップとエラーを返す。
// 呼び出し側は空のマップをそのまま使ってよい。
func (s *Service) List(ctx context.Context) (map[string]*model.UserRecord, error) {
	users, err := s.repo.List(ctx)
	if err != nil {
		s.events.LogError(ctx, model.ErrorTypeLoadUsers, err, "", nil, "")
		return map[string]*model.UserRecord{}, err
	}
	return users, nil
}

// MergeLogin は既存レコードとプロバイダーの情報から新しいレコードを作る。
//
// 初回ログインではプロフィール項目をidentityから埋め、login_countを1にする。
// 2回目以降はlogin_countを1増やしlast_loginを更新するだけで、
// username・email・avatar・discriminatorは初回の値のまま保持する。
// 毎回プロフィールを更新する案もあるが、現状の挙動を変える前に利用者と合意すること。
func MergeLogin(existing *model.UserRecord, identity *model.Identity, now time.Time) *model.UserRecord {
	if existing != nil {
		next := *existing
		next.LastLogin = now
		next.LoginCount++
		if next.LoginCount < 1 {
			next.LoginCount = 1
		}
		if next.ExternalID == "" {
			next.ExternalID = identity.ExternalID
		}
		return &next
	}

	discriminator := identity.Discriminator
	if discriminator == "" {
		discriminator = model.DefaultDiscriminator
	}

	return &model.UserRecord{
		ExternalID:    identity.ExternalID,
		Username:      identity.Username,
		Email:         identity.Email,
		Avatar:        identity.Avatar,
		Discriminator: discriminator,
		FirstLogin:    now,
		LastLogin:     now,
		LoginCount:    1,
	}
}
