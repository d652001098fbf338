// Package config は環境変数からアプリケーション設定を読み込む。
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"strconv"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// 開発用のデフォルト値。本番で使われていないかWarningsで確認する。
const (
	DefaultSecretKey           = "dev-secret-key-change-in-production"
	DefaultJWTSecret           = "jwt-secret-key-change-in-production"
	DefaultAdminToken          = "admin123"
	DefaultDiscordClientSecret = "your_secret"
	DefaultDiscordBotToken     = "your_bot_token"
)

// ストアの種別
const (
	StoreDriverFile     = "file"
	StoreDriverPostgres = "postgres"
)

// Config はアプリケーション全体の設定を保持する。
// 環境変数から起動時に1回読み込み、イミュータブルとして扱う。
// すべての値にローカル開発用のデフォルトがある。
type Config struct {
	// OAuth stateクッキーの署名鍵。
	SecretKey string `env:"SECRET_KEY" envDefault:"dev-secret-key-change-in-production"`

	// Discord OAuth
	DiscordClientID     string `env:"DISCORD_CLIENT_ID"     envDefault:"1234567890"`
	DiscordClientSecret string `env:"DISCORD_CLIENT_SECRET" envDefault:"your_secret"`
	DiscordBotToken     string `env:"DISCORD_BOT_TOKEN"     envDefault:"your_bot_token"`
	DiscordRedirectURI  string `env:"DISCORD_REDIRECT_URI"  envDefault:"http://localhost:5001/auth/discord/callback"`

	// Token
	JWTSecret   string        `env:"JWT_SECRET"   envDefault:"jwt-secret-key-change-in-production"`
	TokenTTL    time.Duration `env:"TOKEN_TTL"    envDefault:"168h"`
	TokenLeeway time.Duration `env:"TOKEN_LEEWAY" envDefault:"30s"`

	// Admin
	AdminToken string `env:"ADMIN_TOKEN" envDefault:"admin123"`

	// Server
	Port  int  `env:"PORT"  envDefault:"5001"`
	Debug bool `env:"DEBUG" envDefault:"true"`

	// Storage
	DataDir     string `env:"DATA_DIR"     envDefault:"data"`
	LogDir      string `env:"LOG_DIR"      envDefault:"logs"`
	StoreDriver string `env:"STORE_DRIVER" envDefault:"file"`
	DatabaseURL string `env:"DATABASE_URL"`

	// Client
	DefaultClientRedirect string `env:"DEFAULT_CLIENT_REDIRECT" envDefault:"http://localhost:5000"`

	// CORS
	CORSAllowedOrigins []string `env:"CORS_ALLOWED_ORIGINS" envDefault:"*" envSeparator:","`

	// Rate Limit
	RateLimitPerMinute int `env:"RATE_LIMIT_PER_MINUTE" envDefault:"120"`
}

// Load は.envファイル（存在すれば）と環境変数からConfigを読み込む。
// 既に設定されている環境変数は.envで上書きしない。
func Load(envFiles ...string) (*Config, error) {
	if len(envFiles) == 0 {
		envFiles = []string{".env"}
	}
	for _, f := range envFiles {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("failed to load %s: %w", f, err)
		}
	}

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	var errs []error

	if c.Port <= 0 || c.Port > 65535 {
		errs = append(errs, fmt.Errorf("PORT must be between 1 and 65535, got %d", c.Port))
	}
	if c.TokenTTL <= 0 {
		errs = append(errs, fmt.Errorf("TOKEN_TTL must be positive, got %s", c.TokenTTL))
	}
	if c.TokenLeeway < 0 {
		errs = append(errs, fmt.Errorf("TOKEN_LEEWAY must not be negative, got %s", c.TokenLeeway))
	}
	if c.RateLimitPerMinute <= 0 {
		errs = append(errs, fmt.Errorf("RATE_LIMIT_PER_MINUTE must be positive, got %d", c.RateLimitPerMinute))
	}

	switch c.StoreDriver {
	case StoreDriverFile:
	case StoreDriverPostgres:
		if c.DatabaseURL == "" {
			errs = append(errs, fmt.Errorf("DATABASE_URL is required when STORE_DRIVER=%s", StoreDriverPostgres))
		}
	default:
		errs = append(errs, fmt.Errorf("STORE_DRIVER must be %q or %q, got %q", StoreDriverFile, StoreDriverPostgres, c.StoreDriver))
	}

	return errors.Join(errs...)
}

// Addr はHTTPサーバーの待ち受けアドレスを返す。
func (c *Config) Addr() string {
	return ":" + strconv.Itoa(c.Port)
}

// UsersFile はユーザーストアのファイルパスを返す。
func (c *Config) UsersFile() string {
	return filepath.Join(c.DataDir, "users.json")
}

// Warnings は開発用デフォルトのまま使われているシークレットを列挙する。
func (c *Config) Warnings() []string {
	var warnings []string
	check := func(name, value, def string) {
		if value == def {
			warnings = append(warnings, name+" is using the development default")
		}
	}
	check("SECRET_KEY", c.SecretKey, DefaultSecretKey)
	check("JWT_SECRET", c.JWTSecret, DefaultJWTSecret)
	check("ADMIN_TOKEN", c.AdminToken, DefaultAdminToken)
	check("DISCORD_CLIENT_SECRET", c.DiscordClientSecret, DefaultDiscordClientSecret)
	check("DISCORD_BOT_TOKEN", c.DiscordBotToken, DefaultDiscordBotToken)
	return warnings
}
