package app

import (
	"context"
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

	"github.com/hitoshi/authgate/internal/auth"
	"github.com/hitoshi/authgate/internal/config"
	"github.com/hitoshi/authgate/internal/database"
	"github.com/hitoshi/authgate/internal/handler"
	"github.com/hitoshi/authgate/internal/logger"
	"github.com/hitoshi/authgate/internal/metrics"
	"github.com/hitoshi/authgate/internal/repository"
	"github.com/hitoshi/authgate/internal/security"
	"github.com/hitoshi/authgate/internal/worker/cleanup"
)

const (
	startupTimeout  = 30 * time.Second
	shutdownTimeout = 30 * time.Second
)

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

	// 3. LOG_LEVELを反映
	logger.SetupDefault(w, logger.ParseLevel(cfg.LogLevel))

	return cfg, nil
}

// Run はアプリケーションのメインエントリーポイント。
// コマンドライン引数からサブコマンドを解析し、対応するモードで起動する。
// 未知のサブコマンドでは何も起動せずにエラーを返す。argsにはos.Args[1:]を渡す。
func Run(w io.Writer, args []string) error {
	cmd, err := ParseCommand(args)
	if err != nil {
		return err
	}

	// healthcheck は軽量サブコマンドのため、フル初期化をスキップする
	if cmd == CommandHealthcheck {
		port := os.Getenv("SERVER_PORT")
		if port == "" {
			port = "5000"
		}
		return runHealthcheck(port)
	}

	cfg, err := Init(w)
	if err != nil {
		return fmt.Errorf("initialization failed: %w", err)
	}

	slog.Info("starting application",
		slog.String("command", string(cmd)),
		slog.Any("config", cfg),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	switch cmd {
	case CommandWorker:
		return runWorker(ctx, cfg)
	case CommandMigrate:
		return runMigrate(ctx, cfg)
	default:
		return runServe(ctx, cfg)
	}
}

// application はserveモードで組み立てた依存関係。
type application struct {
	router  http.Handler
	sweeper *cleanup.CleanupJob
}

// newApplication はストアと設定から認証サービス、ルーター、セッション掃除ジョブを組み立てる。
func newApplication(cfg *config.Config, st *stores, registry *prometheus.Registry) *application {
	collector := metrics.NewCollector(registry)

	provider := auth.NewGoogleProvider(auth.GoogleConfig{
		ClientID:     cfg.GoogleClientID,
		ClientSecret: cfg.GoogleClientSecret,
		RedirectURL:  cfg.GoogleCallbackURL,
		HTTPClient:   security.NewProviderClient(cfg.ProviderTimeout),
	})
	service := auth.NewService(
		provider,
		auth.NewResolver(st.users, collector, cfg.StoreTimeout),
		auth.NewSessionManager(st.users, st.sessions, cfg.SessionMaxAge),
		collector,
		auth.ServiceConfig{
			ProviderTimeout: cfg.ProviderTimeout,
			StoreTimeout:    cfg.StoreTimeout,
		},
	)
	signer := auth.NewCookieSigner(cfg.SessionSecret)

	router := handler.NewRouter(&handler.RouterDeps{
		Logger:         slog.Default(),
		AllowedOrigins: cfg.AllowedOrigins,
		AuthService:    service,
		Cookies:        signer,
		Authenticator:  service,
		AuthConfig: handler.AuthHandlerConfig{
			Cookie:     cfg.Cookie,
			SuccessURL: cfg.FrontendSuccessURL,
			FailureURL: cfg.FrontendFailureURL,
			LogoutURL:  cfg.FrontendLogoutURL,
		},
		Unauthorized:   collector,
		HealthChecks:   st.checks,
		MetricsHandler: metrics.Handler(registry),
	})

	return &application{
		router:  router,
		sweeper: cleanup.NewCleanupJob(st.sessions, collector, slog.Default()),
	}
}

// runServe はAPIサーバーモードで起動する。
// ストアに接続し、全依存関係をワイヤリングし、HTTPサーバーとセッション掃除ジョブを起動する。
// ctxがキャンセルされる（SIGINT/SIGTERM）とグレースフルシャットダウンを行う。
func runServe(ctx context.Context, cfg *config.Config) error {
	// 1. ストア接続
	startCtx, cancel := context.WithTimeout(ctx, startupTimeout)
	st, err := openStores(startCtx, cfg)
	cancel()
	if err != nil {
		return err
	}
	defer st.Close(context.Background())

	// 2. メトリクスレジストリ
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	// 3. ワイヤリング
	app := newApplication(cfg, st, registry)

	// 4. セッション掃除ジョブをバックグラウンドで起動
	go app.sweeper.Start(ctx, cfg.SessionSweepInterval)

	// 5. HTTPサーバーの起動
	server := &http.Server{
		Addr:              ":" + cfg.ServerPort,
		Handler:           app.router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      cfg.ProviderTimeout + cfg.StoreTimeout + 5*time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("API server starting", slog.String("addr", server.Addr))
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

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	slog.Info("API server stopped gracefully")
	return nil
}

// runWorker はワーカーモードで起動する。
// セッションストアに接続し、期限切れセッションの掃除ジョブを実行する。
// ctxがキャンセルされるとシャットダウンする。
func runWorker(ctx context.Context, cfg *config.Config) error {
	startCtx, cancel := context.WithTimeout(ctx, startupTimeout)
	st, err := openStores(startCtx, cfg)
	cancel()
	if err != nil {
		return err
	}
	defer st.Close(context.Background())

	collector := metrics.NewCollector(prometheus.NewRegistry())
	job := cleanup.NewCleanupJob(st.sessions, collector, slog.Default())

	slog.Info("worker starting", slog.Duration("sweep_interval", cfg.SessionSweepInterval))

	// ブロッキング
	job.Start(ctx, cfg.SessionSweepInterval)

	slog.Info("worker stopped gracefully")
	return nil
}

// runMigrate はストアのスキーマを最新にする。
// PostgreSQLではマイグレーションを適用し、MongoDBではインデックスを作成する。
func runMigrate(ctx context.Context, cfg *config.Config) error {
	slog.Info("running store migrations",
		slog.String("store", string(cfg.Store)),
		slog.String("store_url", config.MaskURL(cfg.StoreURL)),
	)

	switch cfg.Store {
	case config.StorePostgres:
		if err := database.RunMigrations(cfg.StoreURL); err != nil {
			return fmt.Errorf("migration failed: %w", err)
		}

	case config.StoreMongo:
		ctx, cancel := context.WithTimeout(ctx, startupTimeout)
		defer cancel()

		client, err := database.OpenMongo(ctx, cfg.StoreURL)
		if err != nil {
			return fmt.Errorf("failed to connect to mongodb: %w", err)
		}
		defer client.Disconnect(context.Background())

		if err := repository.EnsureMongoIndexes(ctx, client.Database(cfg.StoreDatabase)); err != nil {
			return fmt.Errorf("migration failed: %w", err)
		}

	default:
		slog.Info("store has no schema to migrate")
		return nil
	}

	slog.Info("store migrations completed successfully")
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
