package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/hitoshi/shelterlink/internal/auth"
	"github.com/hitoshi/shelterlink/internal/backend"
	"github.com/hitoshi/shelterlink/internal/config"
	"github.com/hitoshi/shelterlink/internal/database"
	"github.com/hitoshi/shelterlink/internal/facade"
	"github.com/hitoshi/shelterlink/internal/handler"
	"github.com/hitoshi/shelterlink/internal/logger"
	"github.com/hitoshi/shelterlink/internal/metrics"
	"github.com/hitoshi/shelterlink/internal/middleware"
	"github.com/hitoshi/shelterlink/internal/profile"
	"github.com/hitoshi/shelterlink/internal/repository"
	"github.com/hitoshi/shelterlink/internal/security"
	"github.com/hitoshi/shelterlink/internal/session"
	"github.com/hitoshi/shelterlink/internal/shelter"
	"github.com/hitoshi/shelterlink/internal/worker/cleanup"
)

// dbPingTimeout は起動時のDB疎通確認の上限時間。
const dbPingTimeout = 5 * time.Second

// Init はアプリケーションの初期化を行う。
// 環境変数からConfigを読み込み、JSON構造化ログをセットアップする。
// writerが指定された場合はログ出力先としてそのwriterを使用する。
func Init(w io.Writer) (*config.Config, error) {
	// 1. ログの初期化（設定読み込み前にログを使えるようにする）
	logger.SetupDefault(w, slog.LevelInfo)

	// 2. 環境変数から設定を読み込む
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	// 3. 設定されたログレベルで再設定する
	logger.SetupDefault(w, logger.ParseLevel(cfg.LogLevel))
	return cfg, nil
}

// Run はアプリケーションのメインエントリーポイント。
// コマンドライン引数からサブコマンドを解析し、対応するモードで起動する。
// argsにはos.Args[1:]を渡す。
func Run(w io.Writer, args []string) error {
	cmd := ParseCommand(args)

	if !cmd.needsConfig() {
		port := os.Getenv("SERVER_PORT")
		if port == "" {
			port = "8080"
		}
		return runHealthcheck(port)
	}

	cfg, err := Init(w)
	if err != nil {
		return fmt.Errorf("initialization failed: %w", err)
	}

	slog.Info("starting application",
		slog.String("command", string(cmd)),
		slog.String("port", cfg.ServerPort),
		slog.String("base_url", cfg.BaseURL),
	)

	switch cmd {
	case CommandMigrate:
		return runMigrate(cfg)
	default:
		return runServe(cfg)
	}
}

// Server はワイヤリング済みのHTTPハンドラーとバックグラウンドジョブをまとめる。
type Server struct {
	Handler  http.Handler
	Sessions *session.Manager
	Sweeper  *cleanup.SessionSweepJob
	Registry *prometheus.Registry

	rateLimiter *middleware.RateLimiter
}

// Close はバックグラウンドのリソースを解放する。
func (s *Server) Close() {
	s.rateLimiter.Stop()
}

// Authenticator はIDトークンの検証と認証ユーザーの作成・削除を行う。
// auth.FirebaseAuthenticator が実装する。
type Authenticator interface {
	session.TokenVerifier
	auth.IdentityProvider
}

// Components は外部依存のうち、テストで差し替え可能なもの。
// SessionRepo が nil の場合は DB を使うPostgreSQLリポジトリを用いる。
type Components struct {
	DB          *sql.DB
	SessionRepo session.Repository
	Auth        Authenticator
	Backend     *backend.Client
	Registry    *prometheus.Registry
}

// NewServer は設定と外部依存から全コンポーネントをワイヤリングする。
func NewServer(cfg *config.Config, c Components) *Server {
	log := slog.Default()

	registry := c.Registry
	if registry == nil {
		registry = prometheus.NewRegistry()
		registry.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
	}
	collector := metrics.NewCollector(registry)

	// 1. バックエンドとプロフィール解決
	c.Backend.SetRecorder(collector)
	resolver := profile.NewResolver(c.Backend, log, cfg.ProfileRetryAttempts, cfg.ProfileRetryDelay)
	resolver.SetRecorder(collector)
	sanitizer := security.NewTextSanitizer()

	// 2. セッションごとのFacade
	newFacade := func() *facade.Facade {
		return facade.New(facade.Deps{
			Backend:   c.Backend,
			Resolver:  resolver,
			Identity:  c.Auth,
			Sanitizer: sanitizer,
			Recorder:  collector,
			Logger:    log,
		})
	}

	// 3. セッション管理
	sessionRepo := c.SessionRepo
	if sessionRepo == nil {
		sessionRepo = repository.NewPostgresSessionRepo(c.DB)
	}
	sessions := session.NewManager(sessionRepo, c.Auth, newFacade, log, session.Config{
		MaxAge:      time.Duration(cfg.SessionMaxAge) * time.Second,
		InitTimeout: cfg.SessionInitTimeout,
	})
	sessions.SetRecorder(collector)

	sweeper := cleanup.NewSessionSweepJob(sessions, log)
	sweeper.Interval = cfg.SessionSweepInterval

	// 4. 登録
	registration := auth.NewRegistrationService(c.Auth, c.Backend, sanitizer, log)

	var pinger handler.Pinger
	if c.DB != nil {
		pinger = c.DB
	}

	// 5. ルーターの構築
	rateLimiter := middleware.NewRateLimiter(middleware.NewRateLimiterConfig(cfg.RateLimitGeneral, cfg.RateLimitSubmit))
	router := handler.NewRouter(&handler.RouterDeps{
		Logger:            log,
		StatusRecorder:    collector,
		SessionResolver:   sessions,
		CORSAllowedOrigin: cfg.CORSAllowedOrigin,
		RateLimiter:       rateLimiter,
		CSRFConfig: middleware.CSRFConfig{
			CookieSecure: cfg.CookieSecure,
			CookieDomain: cfg.CookieDomain,
		},

		Registrar: registration,
		Sessions:  sessions,
		AuthConfig: handler.AuthHandlerConfig{
			CookieDomain:  cfg.CookieDomain,
			CookieSecure:  cfg.CookieSecure,
			SessionMaxAge: cfg.SessionMaxAge,
		},

		ShelterFinder: shelter.NewLocator(c.Backend),

		Pinger:         pinger,
		MetricsHandler: metrics.SetupMetricsRoute(registry),
	})

	return &Server{
		Handler:     router,
		Sessions:    sessions,
		Sweeper:     sweeper,
		Registry:    registry,
		rateLimiter: rateLimiter,
	}
}

// runServe はAPIサーバーモードで起動する。
// DB接続を開き、全依存関係をワイヤリングし、HTTPサーバーとセッションクリーンアップを起動する。
// SIGINTまたはSIGTERMシグナルを受信するとグレースフルシャットダウンを行う。
func runServe(cfg *config.Config) error {
	// 1. DB接続
	db, err := database.Open(cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()

	if err := database.Ping(context.Background(), db, dbPingTimeout); err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	slog.Info("database connection established")

	// 2. 認証プロバイダー
	authenticator, err := auth.NewFirebaseAuthenticator(context.Background(), auth.FirebaseConfig{
		ProjectID:             cfg.FirebaseProjectID,
		CredentialsFile:       cfg.FirebaseCredentialsFile,
		CredentialsJSONBase64: cfg.FirebaseCredentialsJSONBase64,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize firebase: %w", err)
	}

	// 3. バックエンドクライアント
	backendClient := backend.NewClient(&http.Client{Timeout: cfg.BackendTimeout}, slog.Default(), cfg.BackendURL)

	srv := NewServer(cfg, Components{DB: db, Auth: authenticator, Backend: backendClient})
	defer srv.Close()

	// 4. HTTPサーバーの起動
	server := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      srv.Handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: cfg.SessionInitTimeout + 15*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// セッションクリーンアップをバックグラウンドで実行
	go srv.Sweeper.Start(ctx)

	errCh := make(chan error, 1)
	go func() {
		slog.Info("API server starting",
			slog.String("addr", server.Addr),
		)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("server listen error: %w", err)
	case <-ctx.Done():
	}
	slog.Info("shutting down API server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	slog.Info("API server stopped gracefully")
	return nil
}

// runMigrate はデータベースマイグレーションを実行する。
// すべての未適用マイグレーションを順番に適用する。
func runMigrate(cfg *config.Config) error {
	slog.Info("running database migrations",
		slog.String("database_url", maskDatabaseURL(cfg.DatabaseURL)),
	)

	v, err := database.RunMigrations(cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}

	if !v.Changed() {
		slog.Info("schema is up to date", slog.Uint64("version", uint64(v.After)))
		return nil
	}
	slog.Info("schema migrated",
		slog.Uint64("from_version", uint64(v.Before)),
		slog.Uint64("to_version", uint64(v.After)),
	)
	return nil
}

// runHealthcheck はヘルスチェックを実行する。
// distroless環境でのDockerヘルスチェック用サブコマンド。
// /health エンドポイントにHTTPリクエストを送り、結果を返す。
func runHealthcheck(port string) error {
	url := fmt.Sprintf("http://localhost:%s/health", port)
	client := &http.Client{Timeout: 5 * time.Second}

	resp, err := client.Get(url)
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
func maskDatabaseURL(url string) string {
	if len(url) > 20 {
		return url[:12] + "***@..."
	}
	return "***"
}
