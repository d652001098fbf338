package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/hitoshi/oauthrelay/internal/auth"
	"github.com/hitoshi/oauthrelay/internal/config"
	"github.com/hitoshi/oauthrelay/internal/database"
	"github.com/hitoshi/oauthrelay/internal/eventlog"
	"github.com/hitoshi/oauthrelay/internal/handler"
	"github.com/hitoshi/oauthrelay/internal/logger"
	"github.com/hitoshi/oauthrelay/internal/metrics"
	"github.com/hitoshi/oauthrelay/internal/middleware"
	"github.com/hitoshi/oauthrelay/internal/repository"
	"github.com/hitoshi/oauthrelay/internal/token"
	"github.com/hitoshi/oauthrelay/internal/user"
)

const (
	// Name はアプリケーション名。
	Name = "oauthrelay"
	// Version は/healthと/で返すバージョン。
	Version = "1.0.0"

	readTimeout     = 15 * time.Second
	writeTimeout    = 15 * time.Second
	idleTimeout     = 60 * time.Second
	shutdownTimeout = 30 * time.Second
)

// Init はアプリケーションの初期化を行う。
// .envと環境変数からConfigを読み込み、JSON構造化ログをセットアップする。
// writerが指定された場合はログ出力先としてそのwriterを使用する。
func Init(w io.Writer, envFiles ...string) (*config.Config, error) {
	// 1. ログの初期化（設定読み込み前にログを使えるようにする）
	logger.SetupDefault(w, false)

	// 2. 設定を読み込む
	cfg, err := config.Load(envFiles...)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	// 3. DEBUGに合わせてログレベルを再設定
	logger.SetupDefault(w, cfg.Debug)

	for _, warning := range cfg.Warnings() {
		slog.Warn("insecure configuration", slog.String("detail", warning))
	}

	return cfg, nil
}

// Server はワイヤリング済みのHTTPサーバーと、停止時に解放するリソースを保持する。
type Server struct {
	HTTP *http.Server

	closers []func() error
}

// NewServer は設定から全依存関係をワイヤリングしてServerを構築する。
// 呼び出し側はCloseでリソースを解放すること。
func NewServer(ctx context.Context, cfg *config.Config) (*Server, error) {
	s := &Server{}

	// 1. メトリクス
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	collector := metrics.NewCollector(reg)

	// 2. リポジトリの初期化
	userRepo, err := s.openUserRepository(ctx, cfg)
	if err != nil {
		s.Close()
		return nil, err
	}
	eventRepo, err := repository.NewFileEventLogRepo(cfg.LogDir)
	if err != nil {
		s.Close()
		return nil, fmt.Errorf("failed to open event log: %w", err)
	}

	// 3. ドメインサービスの初期化
	events := eventlog.NewService(eventRepo, logger.Fallback(nil), eventlog.WithMetrics(collector))
	users := user.NewService(userRepo, events, nil)
	tokens := token.NewService(token.Config{
		Secret: cfg.JWTSecret,
		TTL:    cfg.TokenTTL,
		Leeway: cfg.TokenLeeway,
	})
	provider := auth.NewDiscordOAuthProvider(auth.DiscordOAuthConfig{
		ClientID:     cfg.DiscordClientID,
		ClientSecret: cfg.DiscordClientSecret,
		RedirectURL:  cfg.DiscordRedirectURI,
		HTTPClient:   &http.Client{Timeout: 10 * time.Second},
	})
	authService := auth.NewService(provider, users, tokens, events, collector)

	// 4. ルーターの構築
	limiter := middleware.NewRateLimiter(middleware.DefaultRateLimiterConfig(cfg.RateLimitPerMinute))
	s.closers = append(s.closers, func() error {
		limiter.Stop()
		return nil
	})

	router := handler.NewRouter(&handler.RouterDeps{
		Logger:             slog.Default(),
		Metrics:            collector,
		CORSAllowedOrigins: cfg.CORSAllowedOrigins,
		RateLimiter:        limiter,
		AdminToken:         cfg.AdminToken,

		AuthService: authService,
		AuthConfig: handler.AuthHandlerConfig{
			StateSecret:     cfg.SecretKey,
			DefaultRedirect: cfg.DefaultClientRedirect,
			CookieSecure:    strings.HasPrefix(cfg.DiscordRedirectURI, "https://"),
		},

		APIService: authService,

		UserService: users,
		Events:      events,

		System: handler.SystemHandlerConfig{
			Name:    Name,
			Version: Version,
		},
		MetricsHandler: metrics.Handler(reg),
	})

	s.HTTP = &http.Server{
		Addr:         cfg.Addr(),
		Handler:      router,
		ReadTimeout:  readTimeout,
		WriteTimeout: writeTimeout,
		IdleTimeout:  idleTimeout,
	}
	return s, nil
}

// openUserRepository はSTORE_DRIVERに応じたユーザーストアを開く。
func (s *Server) openUserRepository(ctx context.Context, cfg *config.Config) (repository.UserRepository, error) {
	switch cfg.StoreDriver {
	case config.StoreDriverPostgres:
		db, err := database.Open(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, err
		}
		s.closers = append(s.closers, db.Close)

		if err := database.RunMigrations(cfg.DatabaseURL); err != nil {
			return nil, err
		}
		slog.Info("database connection established")
		return repository.NewPostgresUserRepo(db), nil
	default:
		repo, err := repository.NewFileUserRepo(cfg.UsersFile())
		if err != nil {
			return nil, fmt.Errorf("failed to open user store: %w", err)
		}
		return repo, nil
	}
}

// Serve はlnでHTTPサーバーを起動し、ctxがキャンセルされるとグレースフルシャットダウンを行う。
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	errCh := make(chan error, 1)
	go func() {
		slog.Info("API server starting", slog.String("addr", ln.Addr().String()))
		if err := s.HTTP.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err, ok := <-errCh:
		if ok {
			return fmt.Errorf("server listen error: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	slog.Info("shutting down API server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := s.HTTP.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	slog.Info("API server stopped gracefully")
	return nil
}

// Close はレート制限のクリーンアップやDB接続などのリソースを解放する。
func (s *Server) Close() error {
	var errs []error
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	s.closers = nil
	return errors.Join(errs...)
}

// runServe はAPIサーバーモードで起動する。
// ctxがキャンセルされる（SIGINT/SIGTERM）まで待ち受ける。
func runServe(ctx context.Context, cfg *config.Config) error {
	slog.Info("starting "+Name,
		slog.Int("port", cfg.Port),
		slog.Bool("debug", cfg.Debug),
		slog.String("store", cfg.StoreDriver),
	)

	srv, err := NewServer(ctx, cfg)
	if err != nil {
		return err
	}
	defer srv.Close()

	ln, err := net.Listen("tcp", srv.HTTP.Addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", srv.HTTP.Addr, err)
	}

	return srv.Serve(ctx, ln)
}

// runMigrate はデータベースマイグレーションを実行する。
// すべての未適用マイグレーションを順番に適用する。
func runMigrate(cfg *config.Config) error {
	if cfg.DatabaseURL == "" {
		return errors.New("DATABASE_URL is required for migrate")
	}

	slog.Info("running database migrations",
		slog.String("database_url", maskDatabaseURL(cfg.DatabaseURL)),
	)

	if err := database.RunMigrations(cfg.DatabaseURL); err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}

	slog.Info("database migrations completed successfully")
	return nil
}

// runHealthcheck はヘルスチェックを実行する。
// distroless環境でのDockerヘルスチェック用サブコマンド。
// /health エンドポイントにHTTPリクエストを送り、結果を返す。
func runHealthcheck(ctx context.Context, port string) error {
	target := fmt.Sprintf("http://localhost:%s/health", port)
	client := &http.Client{Timeout: 5 * time.Second}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health check returned status %d", resp.StatusCode)
	}

	return nil
}

// maskDatabaseURL はデータベースURLの認証情報をマスクする。
func maskDatabaseURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return "***"
	}
	if u.User != nil {
		u.User = url.User("***")
	}
	return u.Redacted()
}
