package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/hitoshi/scanscore/internal/compare"
	"github.com/hitoshi/scanscore/internal/config"
	"github.com/hitoshi/scanscore/internal/database"
	"github.com/hitoshi/scanscore/internal/handler"
	"github.com/hitoshi/scanscore/internal/history"
	"github.com/hitoshi/scanscore/internal/logger"
	"github.com/hitoshi/scanscore/internal/metrics"
	"github.com/hitoshi/scanscore/internal/middleware"
	"github.com/hitoshi/scanscore/internal/openfoodfacts"
	"github.com/hitoshi/scanscore/internal/oracle"
	"github.com/hitoshi/scanscore/internal/preferences"
	"github.com/hitoshi/scanscore/internal/repository"
	"github.com/hitoshi/scanscore/internal/scan"
	"github.com/hitoshi/scanscore/internal/security"
	"github.com/hitoshi/scanscore/internal/worker/cleanup"
)

// cleanupInterval はスキャン履歴クリーンアップの実行間隔。
const cleanupInterval = 24 * time.Hour

// Init はアプリケーションの初期化を行う。
// 環境変数からConfigを読み込み、JSON構造化ログをセットアップする。
// writerが指定された場合はログ出力先としてそのwriterを使用する。
func Init(w io.Writer) (*config.Config, error) {
	// 1. ログの初期化（設定読み込み前にログを使えるようにする）
	logger.SetupDefault(w, logger.ParseLevel(os.Getenv("LOG_LEVEL")))

	// 2. 環境変数から設定を読み込む
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	return cfg, nil
}

// Run はアプリケーションのメインエントリーポイント。
// コマンドライン引数からサブコマンドを解析し、対応するモードで起動する。
// argsにはos.Args[1:]を渡す。
func Run(w io.Writer, args []string) error {
	cmd := ParseCommand(args)

	if !cmd.NeedsConfig() {
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
		slog.String("oracle_backend", cfg.OracleBackend),
		slog.String("oracle_model", cfg.OracleModel),
	)

	switch cmd {
	case CommandWorker:
		return runWorker(cfg)
	case CommandMigrate:
		return runMigrate(cfg)
	default:
		return runServe(cfg)
	}
}

// openDatabase はDB接続を開き、疎通を確認する。
func openDatabase(databaseURL string) (*sql.DB, database.Dialect, error) {
	db, dialect, err := database.Open(databaseURL)
	if err != nil {
		return nil, "", fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, "", fmt.Errorf("failed to connect to database: %w", err)
	}
	return db, dialect, nil
}

// newRegistry はGo・プロセスのメトリクスを登録済みのPrometheusレジストリを返す。
func newRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg
}

// api はserveモードで組み立てた依存関係一式。
type api struct {
	router      http.Handler
	rateLimiter *middleware.RateLimiter
	socket      *handler.CompareSocket
}

// close はバックグラウンド処理とwebsocket接続を停止する。
func (a *api) close() {
	a.socket.CloseAll()
	a.rateLimiter.Stop()
}

// newAPI は全依存関係をワイヤリングし、ルーターを構築する。
// completerは計測前の生のオラクルを渡す。
func newAPI(
	cfg *config.Config,
	db *sql.DB,
	dialect database.Dialect,
	completer oracle.Completer,
	reg *prometheus.Registry,
	log *slog.Logger,
) *api {
	// 1. メトリクス
	collector := metrics.NewCollector(reg)

	// 2. リポジトリ
	scanRepo := repository.NewSQLScanRepo(db, dialect)
	prefsRepo := repository.NewSQLPreferencesRepo(db, dialect)

	// 3. セキュリティ・外部参照
	urlGuard := security.NewURLGuard()
	sanitizer := security.NewTextSanitizer()
	offClient := openfoodfacts.NewClient(
		urlGuard.NewSafeClient(cfg.NutritionLookupTimeout),
		log, urlGuard, cfg.OFFBaseURL,
	)

	// 4. ドメインサービス
	instrumented := oracle.Instrument(completer, collector)
	historyService := history.NewService(scanRepo, collector, log, cfg.HistoryMax)
	prefsService := preferences.NewService(prefsRepo)
	enricher := scan.NewAlternativeEnricher(
		offClient, collector, log, cfg.ImageLookupTimeout, cfg.ImageLookupConcurrency,
	)
	scanService := scan.NewService(
		instrumented, offClient, enricher, historyService, sanitizer, collector, log, cfg.OracleTimeout,
	)
	compareService := compare.NewService(
		instrumented, offClient, sanitizer, collector, log, cfg.OracleTimeout, cfg.NutritionLookupTimeout,
	)

	// 5. ミドルウェア依存
	rlCfg := middleware.DefaultRateLimiterConfig()
	rlCfg.GeneralRate = middleware.PerMinute(cfg.RateLimitGeneral)
	rlCfg.GeneralBurst = cfg.RateLimitGeneral
	rlCfg.AnalysisRate = middleware.PerMinute(cfg.RateLimitAnalysis)
	rlCfg.AnalysisBurst = cfg.RateLimitAnalysis
	rateLimiter := middleware.NewRateLimiter(rlCfg, log)

	socket := handler.NewCompareSocket(compareService, cfg.CORSAllowedOrigin, log)
	metrics.RegisterConnectionGauge(reg, socket.ActiveConnections)

	// 6. ルーター
	router := handler.NewRouter(&handler.RouterDeps{
		Logger:            log,
		CORSAllowedOrigin: cfg.CORSAllowedOrigin,
		RateLimiter:       rateLimiter,
		StatusRecorder:    collector,
		HealthChecker:     db,
		MetricsHandler:    metrics.Handler(reg),

		Analyzer:    scanService,
		Comparer:    compareService,
		Preferences: prefsService,
		History:     historyService,

		CompareSocket: socket,
	})

	return &api{router: router, rateLimiter: rateLimiter, socket: socket}
}

// runServe はAPIサーバーモードで起動する。
// DB接続とオラクルを開き、全依存関係をワイヤリングし、HTTPサーバーを起動する。
// SIGINTまたはSIGTERMシグナルを受信するとグレースフルシャットダウンを行う。
func runServe(cfg *config.Config) error {
	db, dialect, err := openDatabase(cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer db.Close()

	slog.Info("database connection established", slog.String("dialect", string(dialect)))

	completer, err := oracle.NewCompleter(context.Background(), cfg.OracleConfig())
	if err != nil {
		return fmt.Errorf("failed to create oracle client: %w", err)
	}
	if c, ok := completer.(io.Closer); ok {
		defer c.Close()
	}

	a := newAPI(cfg, db, dialect, completer, newRegistry(), slog.Default())
	defer a.close()

	// WriteTimeoutはオラクル呼び出しの待ち時間を含める
	server := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      a.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: cfg.OracleTimeout + 30*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// グレースフルシャットダウンのためのシグナルハンドリング
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(stop)

	serveErr := make(chan error, 1)
	go func() {
		slog.Info("API server starting",
			slog.String("addr", server.Addr),
		)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
	}()

	select {
	case err := <-serveErr:
		return fmt.Errorf("server listen error: %w", err)
	case <-stop:
	}
	slog.Info("shutting down API server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	// Shutdownはhijackされたwebsocket接続を待たないため先に閉じる
	a.socket.CloseAll()
	if err := server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	slog.Info("API server stopped gracefully")
	return nil
}

// runWorker はワーカーモードで起動する。
// DB接続を開き、保持期間を超過したスキャン履歴のクリーンアップを日次で実行する。
// WORKER_METRICS_PORTが設定されている場合はメトリクスを公開する。
// SIGINTまたはSIGTERMシグナルを受信するとシャットダウンする。
func runWorker(cfg *config.Config) error {
	db, dialect, err := openDatabase(cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer db.Close()

	slog.Info("database connection established (worker)", slog.String("dialect", string(dialect)))

	scanRepo := repository.NewSQLScanRepo(db, dialect)
	reg := newRegistry()
	cleanupJob := cleanup.NewCleanupJob(scanRepo, slog.Default(), cfg.HistoryRetentionDays)
	cleanupJob.Evictions = metrics.NewCollector(reg)

	// グレースフルシャットダウンのためのシグナルハンドリング
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if cfg.WorkerMetricsPort != "" {
		metricsServer := &http.Server{
			Addr:              ":" + cfg.WorkerMetricsPort,
			Handler:           metrics.SetupMetricsRoute(reg),
			ReadHeaderTimeout: 5 * time.Second,
		}
		go func() {
			if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				slog.Error("worker metrics server error", slog.String("error", err.Error()))
			}
		}()
		defer metricsServer.Close()
	}

	slog.Info("worker starting",
		slog.Duration("cleanup_interval", cleanupInterval),
		slog.Int("retention_days", cleanupJob.RetentionDays),
	)

	// クリーンアップジョブをメインgoroutineで実行（ブロッキング）
	cleanupJob.Start(ctx, cleanupInterval)

	slog.Info("worker stopped gracefully")
	return nil
}

// runMigrate はデータベースマイグレーションを実行する。
// すべての未適用マイグレーションを順番に適用する。
func runMigrate(cfg *config.Config) error {
	slog.Info("running database migrations",
		slog.String("database_url", maskDatabaseURL(cfg.DatabaseURL)),
	)

	if err := database.RunMigrations(cfg.DatabaseURL); err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}

	version, dirty, err := database.SchemaVersion(cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}

	slog.Info("database migrations completed successfully",
		slog.Uint64("schema_version", uint64(version)),
		slog.Bool("dirty", dirty),
	)
	return nil
}

// runHealthcheck はヘルスチェックを実行する。
// distroless環境でのDockerヘルスチェック用サブコマンド。
// /health エンドポイントにHTTPリクエストを送り、結果を返す。
func runHealthcheck(port string) error {
	target := fmt.Sprintf("http://localhost:%s/health", port)
	client := &http.Client{Timeout: 5 * time.Second}

	resp, err := client.Get(target)
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
// SQLiteのファイルパスはそのまま返す。
func maskDatabaseURL(databaseURL string) string {
	u, err := url.Parse(databaseURL)
	if err != nil || u.Scheme == "" {
		return "***"
	}
	if u.User != nil {
		u.User = url.User("***")
	}
	u.RawQuery = ""
	return u.String()
}
