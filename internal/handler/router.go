package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/hitoshi/scanscore/internal/middleware"
)

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	// ミドルウェア依存
	Logger            *slog.Logger
	CORSAllowedOrigin string
	RateLimiter       *middleware.RateLimiter
	StatusRecorder    middleware.StatusRecorder
	HealthChecker     HealthChecker
	MetricsHandler    http.Handler

	// 解析・比較
	Analyzer    ScanAnalyzer
	Comparer    Comparer
	Preferences interface {
		PreferencesService
		PreferencesResolver
	}

	// 履歴
	History HistoryService

	// websocket
	CompareSocket *CompareSocket
}

// NewRouter は全APIエンドポイントのルーティングとミドルウェアチェーンを構成したchi.Routerを返す。
//
// ミドルウェアスタックの実行順序:
//
//	RealIP → RequestID → Recovery → Logging → SecurityHeaders → CORS → RateLimit(General) → Device
//
// 解析・比較エンドポイントにはRateLimit(Analysis)を追加する。
// /health と /metrics はレート制限の外に配置する。
func NewRouter(deps *RouterDeps) http.Handler {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	r := chi.NewRouter()

	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.RequestID)
	r.Use(middleware.NewRecoveryMiddleware(logger))
	r.Use(middleware.NewLoggingMiddleware(logger, deps.StatusRecorder))
	r.Use(middleware.NewSecurityHeadersMiddleware())
	r.Use(middleware.NewCORSMiddleware(deps.CORSAllowedOrigin))

	scanHandler := NewScanHandler(deps.Analyzer, deps.Preferences)
	compareHandler := NewCompareHandler(deps.Comparer, deps.History)
	historyHandler := NewHistoryHandler(deps.History)
	prefsHandler := NewPreferencesHandler(deps.Preferences)

	r.Get("/health", NewHealthHandler(deps.HealthChecker))
	if deps.MetricsHandler != nil {
		r.Handle("/metrics", deps.MetricsHandler)
	}

	rl := deps.RateLimiter
	if rl == nil {
		rl = middleware.NewRateLimiter(middleware.DefaultRateLimiterConfig(), logger)
	}

	r.Group(func(r chi.Router) {
		r.Use(rl.GeneralMiddleware())

		if deps.CompareSocket != nil {
			r.Get("/ws", deps.CompareSocket.ServeHTTP)
		}

		// 解析・比較（端末IDは任意。指定時は履歴に保存する）
		r.Group(func(r chi.Router) {
			r.Use(rl.AnalysisMiddleware())
			r.Use(middleware.NewDeviceMiddleware(false))

			r.Post("/api/analyze", scanHandler.AnalyzeImage)
			r.Post("/api/analyze-barcode", scanHandler.AnalyzeBarcode)
			r.Post("/api/compare", compareHandler.Compare)
		})

		// 端末ごとのデータ（端末IDが必須）
		r.Group(func(r chi.Router) {
			r.Use(middleware.NewDeviceMiddleware(true))

			r.Route("/api/history", func(r chi.Router) {
				r.Get("/", historyHandler.List)
				r.Post("/", historyHandler.Add)
				r.Delete("/", historyHandler.Clear)
				r.Get("/stats", historyHandler.Stats)
				r.With(rl.AnalysisMiddleware()).Post("/compare", compareHandler.CompareFromHistory)

				r.Route("/{id}", func(r chi.Router) {
					r.Get("/", historyHandler.Get)
					r.Delete("/", historyHandler.Remove)
					r.Put("/favorite", historyHandler.SetFavorite)
				})
			})

			r.Route("/api/preferences", func(r chi.Router) {
				r.Get("/", prefsHandler.Get)
				r.Put("/", prefsHandler.Update)
			})
		})
	})

	return r
}
