// Package app はコマンドの解析と依存関係のワイヤリングを行う。
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
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/hitoshi/furuhon/internal/auth"
	"github.com/hitoshi/furuhon/internal/cache"
	"github.com/hitoshi/furuhon/internal/config"
	"github.com/hitoshi/furuhon/internal/database"
	"github.com/hitoshi/furuhon/internal/handler"
	"github.com/hitoshi/furuhon/internal/listing"
	"github.com/hitoshi/furuhon/internal/logger"
	"github.com/hitoshi/furuhon/internal/metrics"
	"github.com/hitoshi/furuhon/internal/middleware"
	"github.com/hitoshi/furuhon/internal/remote"
	"github.com/hitoshi/furuhon/internal/repository"
	"github.com/hitoshi/furuhon/internal/security"
	"github.com/hitoshi/furuhon/internal/worker/cleanup"
	"github.com/hitoshi/furuhon/internal/worker/syncworker"
)

const (
	dbPingTimeout   = 5 * time.Second
	shutdownTimeout = 30 * time.Second
)

// Init はアプリケーションの初期化を行う。
// 環境変数からConfigを読み込み、JSON構造化ログをセットアップする。
// writerが指定された場合はログ出力先としてそのwriterを使用する。
func Init(w io.Writer) (*config.Config, *slog.Logger, error) {
	// 設定読み込みの失敗もログに残せるよう、先にInfoレベルで初期化する
	log := logger.SetupDefault(w, slog.LevelInfo)

	cfg, err := config.Load()
	if err != nil {
		log.Error("設定の読み込みに失敗しました", slog.String("error", err.Error()))
		return nil, nil, fmt.Errorf("failed to load config: %w", err)
	}

	if level := logger.ParseLevel(cfg.LogLevel); level != slog.LevelInfo {
		log = logger.SetupDefault(w, level)
	}
	return cfg, log, nil
}

// Run はアプリケーションのメインエントリーポイント。
// コマンドライン引数からサブコマンドを解析し、対応するモードで起動する。
// argsにはos.Args[1:]を渡す。SIGINTまたはSIGTERMでグレースフルシャットダウンする。
func Run(w io.Writer, args []string) error {
	cmd := ParseCommand(args)

	if cmd == CommandHelp {
		_, err := io.WriteString(w, Usage())
		return err
	}

	// healthcheck は軽量サブコマンドのため、フル初期化をスキップする
	if cmd == CommandHealthcheck {
		port := os.Getenv("SERVER_PORT")
		if port == "" {
			port = "8080"
		}
		return runHealthcheck(port)
	}

	cfg, log, err := Init(w)
	if err != nil {
		return fmt.Errorf("initialization failed: %w", err)
	}

	log.Info("starting application",
		slog.String("command", string(cmd)),
		slog.String("port", cfg.ServerPort),
		slog.String("remote_base_url", cfg.RemoteBaseURL),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	switch cmd {
	case CommandWorker:
		return runWorker(ctx, cfg, log)
	case CommandMigrate:
		return runMigrate(cfg, log)
	default:
		return runServe(ctx, cfg, log)
	}
}

// components はserveとworkerが共有する依存関係。
type components struct {
	store    *repository.PostgresInsertionRepo
	session  *auth.Session
	remote   *remote.Client
	registry *prometheus.Registry
	metrics  *metrics.Collector
}

// openDatabase はDB接続を開き、到達できることを確認する。
func openDatabase(ctx context.Context, cfg *config.Config, log *slog.Logger) (*sql.DB, error) {
	db, err := database.Open(cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := database.Ping(ctx, db, dbPingTimeout); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	log.Info("database connection established",
		slog.String("database_url", maskDatabaseURL(cfg.DatabaseURL)),
	)
	return db, nil
}

// newComponents はレコードストア、セッション、リモートクライアントを構築し、
// 保存されたログイン状態を復元する。
func newComponents(ctx context.Context, db *sql.DB, cfg *config.Config, log *slog.Logger) *components {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	mc := metrics.NewCollector(reg)

	session := auth.NewSession(repository.NewPostgresSessionRepo(db), log)
	if err := session.Restore(ctx); err != nil {
		// 復元できなくても未ログインとして起動を続ける
		log.Warn("ログイン状態を復元できませんでした", slog.String("error", err.Error()))
	}

	client := remote.NewClient(newRemoteHTTPClient(cfg), remote.Options{
		BaseURL:   cfg.RemoteBaseURL,
		Token:     cfg.RemoteAPIToken,
		RateLimit: rate.Limit(cfg.RemoteRateLimit),
		Burst:     cfg.RemoteBurst,
	}, log, mc)
	client.SetSession(session)

	return &components{
		store:    repository.NewPostgresInsertionRepo(db),
		session:  session,
		remote:   client,
		registry: reg,
		metrics:  mc,
	}
}

// newRemoteHTTPClient はリモートAPI用のHTTPクライアントを返す。
// REMOTE_RESTRICT_NETWORK が有効な場合はプライベートアドレスへの接続を拒否する。
func newRemoteHTTPClient(cfg *config.Config) *http.Client {
	if cfg.RemoteRestrictNetwork {
		return security.NewRestrictedClient(cfg.RemoteTimeout)
	}
	return &http.Client{Timeout: cfg.RemoteTimeout}
}

// newBackgroundJobs は同期ワーカーとクリーンアップジョブを構築する。
func newBackgroundJobs(db *sql.DB, c *components, cfg *config.Config, log *slog.Logger) (*syncworker.Worker, *cleanup.CleanupJob) {
	worker := syncworker.NewWorker(c.store, c.remote, c.session,
		log.With(slog.String("job", "sync")), c.metrics, cfg.SyncPageSize)
	job := cleanup.NewCleanupJob(db, log.With(slog.String("job", "cleanup")), cfg.StoreRetentionDays)
	return worker, job
}

var (
	_ periodicJob   = (*syncworker.Worker)(nil)
	_ cleanupRunner = (*cleanup.CleanupJob)(nil)
)

// periodicJob は interval ごとに処理を繰り返し、ctx の終了で戻るジョブ。
type periodicJob interface {
	Start(ctx context.Context, interval time.Duration)
}

// cleanupRunner は起動直後に1回実行してから定期実行に移るジョブ。
type cleanupRunner interface {
	periodicJob
	Run(ctx context.Context) error
}

// runBackgroundJobs は同期とクリーンアップを g で起動する。クリーンアップは起動直後に1回実行する。
// 初回のクリーンアップが失敗しても定期実行は続ける。
func runBackgroundJobs(ctx context.Context, g *errgroup.Group, worker periodicJob, job cleanupRunner, cfg *config.Config, log *slog.Logger) {
	g.Go(func() error {
		worker.Start(ctx, cfg.SyncInterval)
		return nil
	})
	g.Go(func() error {
		if err := job.Run(ctx); err != nil {
			log.Warn("初回のクリーンアップに失敗したため次回の定期実行で再試行します",
				slog.Any("error", err),
				slog.Duration("cleanup_interval", cfg.CleanupInterval),
			)
		}
		job.Start(ctx, cfg.CleanupInterval)
		return nil
	})
}

// newRouter はキャッシュと一覧コントローラを構築し、HTTPブリッジのルーターを返す。
// ログアウト時にキャッシュと全コントローラを破棄する。
func newRouter(db *sql.DB, c *components, cfg *config.Config, log *slog.Logger, limiter *middleware.RateLimiter) http.Handler {
	repo := cache.NewRepository(c.store, c.remote, c.session, cache.Config{PageSize: cfg.PageSize},
		log.With(slog.String("component", "cache")), c.metrics)
	controllers := listing.NewSet(repo, log.With(slog.String("component", "listing")))

	c.session.OnLogout(repo.Clear)
	c.session.OnLogout(controllers.ResetAll)

	return handler.NewRouter(&handler.RouterDeps{
		Logger:            log,
		Metrics:           c.metrics,
		MetricsHandler:    metrics.Handler(c.registry),
		HealthChecker:     db,
		CORSAllowedOrigin: cfg.CORSAllowedOrigin,
		RateLimiter:       limiter,
		Session:           c.session,
		Auth:              c.session,
		Controllers:       controllers,
		Toggler:           repo,
	})
}

// runServe はAPIサーバーモードで起動する。
// ServeSync が有効な場合は同期ワーカーとクリーンアップも同じプロセスで実行する。
func runServe(ctx context.Context, cfg *config.Config, log *slog.Logger) error {
	db, err := openDatabase(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer db.Close()

	c := newComponents(ctx, db, cfg, log)

	limiter := middleware.NewRateLimiter(middleware.DefaultRateLimiterConfig(), log)
	defer limiter.Stop()

	server := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      newRouter(db, c, cfg, log, limiter),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("API server starting", slog.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server listen error: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutting down API server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown failed: %w", err)
		}
		return nil
	})

	if cfg.ServeSync {
		worker, job := newBackgroundJobs(db, c, cfg, log)
		runBackgroundJobs(gctx, g, worker, job, cfg, log)
	}

	if err := g.Wait(); err != nil {
		return err
	}
	log.Info("API server stopped gracefully")
	return nil
}

// runWorker はワーカーモードで起動する。
// 同期ワーカーとクリーンアップジョブだけを実行し、HTTPブリッジは起動しない。
func runWorker(ctx context.Context, cfg *config.Config, log *slog.Logger) error {
	db, err := openDatabase(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer db.Close()

	c := newComponents(ctx, db, cfg, log)
	worker, job := newBackgroundJobs(db, c, cfg, log)

	log.Info("worker starting",
		slog.Duration("sync_interval", cfg.SyncInterval),
		slog.Int("sync_page_size", cfg.SyncPageSize),
		slog.Int("retention_days", cfg.StoreRetentionDays),
	)

	g, gctx := errgroup.WithContext(ctx)
	runBackgroundJobs(gctx, g, worker, job, cfg, log)
	if err := g.Wait(); err != nil {
		return err
	}

	log.Info("worker stopped gracefully")
	return nil
}

// runMigrate はデータベースマイグレーションを実行する。
// すべての未適用マイグレーションを順番に適用する。
func runMigrate(cfg *config.Config, log *slog.Logger) error {
	log.Info("running database migrations",
		slog.String("database_url", maskDatabaseURL(cfg.DatabaseURL)),
	)

	version, err := database.RunMigrations(cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}

	log.Info("database migrations completed successfully", slog.Uint64("version", uint64(version)))
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
