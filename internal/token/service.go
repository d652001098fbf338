// Package token はローカルアプリ向けベアラートークンの発行と検証を提供する。
// トークンはHS256署名のJWTで、サーバー側には保存しない。
package token

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const (
	// DefaultTTL はトークンの有効期間（7日）。
	DefaultTTL = 7 * 24 * time.Hour
	// DefaultLeeway は有効期限判定で許容する時計のずれ。
	DefaultLeeway = 30 * time.Second
)

var (
	// ErrTokenInvalid は署名不正、形式不正、必須クレーム欠落を表す。
	ErrTokenInvalid = errors.New("token invalid")
	// ErrTokenExpired は署名は正しいが有効期限を過ぎたトークンを表す。
	ErrTokenExpired = errors.New("token expired")
	// ErrTokenGeneration は署名処理の失敗を表す。リトライしない。
	ErrTokenGeneration = errors.New("token generation failed")
)

// Config はトークンサービスの設定。
type Config struct {
	Secret string
	TTL    time.Duration
	Leeway time.Duration

	// Now は現在時刻を返す。nilの場合はtime.Now。
	Now func() time.Time
}

// Claims はJWTに載せるクレーム。
type Claims struct {
	UserID   string `json:"user_id"`
	Username string `json:"username"`
	jwt.RegisteredClaims
}

// Payload は検証済みトークンの内容。
type Payload struct {
	UserID    string
	Username  string
	TokenID   string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// Service はトークンの発行と検証を行う。状態を持たない。
type Service struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
	parser *jwt.Parser
}

// NewService はServiceを生成する。
// TTLが0以下の場合はDefaultTTL、Leewayが負の場合はDefaultLeewayを使う。
func NewService(cfg Config) *Service {
	if cfg.TTL <= 0 {
		cfg.TTL = DefaultTTL
	}
	if cfg.Leeway < 0 {
		cfg.Leeway = DefaultLeeway
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	return &Service{
		secret: []byte(cfg.Secret),
		ttl:    cfg.TTL,
		now:    cfg.Now,
		parser: jwt.NewParser(
			jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
			jwt.WithLeeway(cfg.Leeway),
			jwt.WithTimeFunc(cfg.Now),
			jwt.WithExpirationRequired(),
		),
	}
}

// TTL はトークンの有効期間を返す。
func (s *Service) TTL() time.Duration {
	return s.ttl
}

// Issue はユーザーIDとユーザー名を含むトークンを発行する。
// 有効期限は発行時刻+TTL。
func (s *Service) Issue(userID, username string) (string, *Payload, error) {
	if userID == "" {
		return "", nil, fmt.Errorf("%w: user ID is required", ErrTokenGeneration)
	}

	// JWTの時刻は秒精度のため、Payloadも秒に丸める
	now := s.now().Truncate(time.Second)
	exp := now.Add(s.ttl)
	tokenID := uuid.New().String()

	claims := &Claims{
		UserID:   userID,
		Username: username,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        tokenID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", nil, fmt.Errorf("%w: %v", ErrTokenGeneration, err)
	}

	return signed, &Payload{
		UserID:    userID,
		Username:  username,
		TokenID:   tokenID,
		IssuedAt:  now,
		ExpiresAt: exp,
	}, nil
}

// Verify はトークンの署名と有効期限を検証する。
// 署名が正しく期限切れの場合はErrTokenExpired、それ以外の失敗はErrTokenInvalidを返す。
// 署名検証は期限判定より先に行われるため、改ざんされたトークンは常にErrTokenInvalidになる。
func (s *Service) Verify(tokenString string) (*Payload, error) {
	if tokenString == "" {
		return nil, fmt.Errorf("%w: empty token", ErrTokenInvalid)
	}

	claims := &Claims{}
	tok, err := s.parser.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (any, error) {
		return s.secret, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, fmt.Errorf("%w: %v", ErrTokenExpired, err)
		}
		return nil, fmt.Errorf("%w: %v", ErrTokenInvalid, err)
	}
	if !tok.Valid {
		return nil, fmt.Errorf("%w: token not valid", ErrTokenInvalid)
	}
	if claims.UserID == "" {
		return nil, fmt.Errorf("%w: missing user_id claim", ErrTokenInvalid)
	}

	payload := &Payload{
		UserID:    claims.UserID,
		Username:  claims.Username,
		TokenID:   claims.ID,
		ExpiresAt: claims.ExpiresAt.Time,
	}
	if claims.IssuedAt != nil {
		payload.IssuedAt = claims.IssuedAt.Time
	}

	return payload, nil
}

// Prefix はログ出力用にトークン先頭の数文字だけを返す。
func Prefix(tokenString string) string {
	const n = 10
	if len(tokenString) <= n {
		return tokenString
	}
	return tokenString[:n]
}
