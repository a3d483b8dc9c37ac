package middleware

import (
	"log/slog"
	"math"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/hitoshi/scanscore/internal/model"
)

// RateLimiterConfig はレート制限の設定を保持する。
type RateLimiterConfig struct {
	GeneralRate     rate.Limit    // API全般のレート（req/sec）
	GeneralBurst    int           // API全般のバーストサイズ
	AnalysisRate    rate.Limit    // 解析・比較のレート（req/sec）
	AnalysisBurst   int           // 解析・比較のバーストサイズ
	CleanupInterval time.Duration // 期限切れエントリのクリーンアップ間隔
}

// PerMinute は1分あたりのリクエスト数をrate.Limitに変換する。
func PerMinute(n int) rate.Limit {
	return rate.Limit(float64(n) / 60.0)
}

// DefaultRateLimiterConfig はデフォルトのレート制限設定を返す。
// API全般 60 req/min/client、解析・比較 10 req/min/client。
func DefaultRateLimiterConfig() RateLimiterConfig {
	return RateLimiterConfig{
		GeneralRate:     PerMinute(60),
		GeneralBurst:    60,
		AnalysisRate:    PerMinute(10),
		AnalysisBurst:   10,
		CleanupInterval: 5 * time.Minute,
	}
}

// clientLimiter はクライアントごとのレートリミッターとアクセス時刻を保持する。
type clientLimiter struct {
	limiter    *rate.Limiter
	lastAccess time.Time
}

// limiterTier は1種類のレート制限に属するクライアント別リミッターの集合。
type limiterTier struct {
	name  string
	limit rate.Limit
	burst int

	mu       sync.Mutex
	limiters map[string]*clientLimiter
}

func newLimiterTier(name string, limit rate.Limit, burst int) *limiterTier {
	return &limiterTier{
		name:     name,
		limit:    limit,
		burst:    burst,
		limiters: make(map[string]*clientLimiter),
	}
}

func (t *limiterTier) allow(key string, now time.Time) bool {
	t.mu.Lock()
	cl, ok := t.limiters[key]
	if !ok {
		cl = &clientLimiter{limiter: rate.NewLimiter(t.limit, t.burst)}
		t.limiters[key] = cl
	}
	cl.lastAccess = now
	t.mu.Unlock()

	return cl.limiter.AllowN(now, 1)
}

func (t *limiterTier) count() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.limiters)
}

func (t *limiterTier) evictIdle(now time.Time, ttl time.Duration) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for key, cl := range t.limiters {
		if now.Sub(cl.lastAccess) > ttl {
			delete(t.limiters, key)
		}
	}
}

// RateLimiter はクライアントIPごとのレート制限を管理する。
// API全般のレート制限と、外部AIを呼び出す解析・比較のレート制限の2種類を提供する。
type RateLimiter struct {
	config   RateLimiterConfig
	general  *limiterTier
	analysis *limiterTier
	logger   *slog.Logger
	stopOnce sync.Once
	stopCh   chan struct{}
}

// NewRateLimiter は新しいRateLimiterを生成する。
// バックグラウンドで期限切れエントリのクリーンアップを開始する。
func NewRateLimiter(config RateLimiterConfig, logger *slog.Logger) *RateLimiter {
	if logger == nil {
		logger = slog.Default()
	}
	if config.CleanupInterval <= 0 {
		config.CleanupInterval = 5 * time.Minute
	}
	rl := &RateLimiter{
		config:   config,
		general:  newLimiterTier("general", config.GeneralRate, config.GeneralBurst),
		analysis: newLimiterTier("analysis", config.AnalysisRate, config.AnalysisBurst),
		logger:   logger,
		stopCh:   make(chan struct{}),
	}

	go rl.cleanupLoop()

	return rl
}

// Stop はクリーンアップのバックグラウンドゴルーチンを停止する。
func (rl *RateLimiter) Stop() {
	rl.stopOnce.Do(func() { close(rl.stopCh) })
}

// GeneralMiddleware はAPI全般のレート制限ミドルウェアを返す。
func (rl *RateLimiter) GeneralMiddleware() func(next http.Handler) http.Handler {
	return rl.middleware(rl.general)
}

// AnalysisMiddleware は解析・比較エンドポイント用のレート制限ミドルウェアを返す。
// API全般のレート制限とは独立に動作する。
func (rl *RateLimiter) AnalysisMiddleware() func(next http.Handler) http.Handler {
	return rl.middleware(rl.analysis)
}

// GeneralLimiterCount は現在管理されているAPI全般リミッターのエントリ数を返す。
func (rl *RateLimiter) GeneralLimiterCount() int {
	return rl.general.count()
}

// AnalysisLimiterCount は現在管理されている解析リミッターのエントリ数を返す。
func (rl *RateLimiter) AnalysisLimiterCount() int {
	return rl.analysis.count()
}

func (rl *RateLimiter) middleware(tier *limiterTier) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := ClientIP(r)
			if !tier.allow(key, time.Now()) {
				writeRateLimitResponse(w, tier.limit)
				rl.logger.Warn("rate limit exceeded",
					slog.String("client_ip", key),
					slog.String("limit_type", tier.name),
					slog.String("path", r.URL.Path),
				)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// ClientIP はリクエストのクライアントIPを返す。
// プロキシ配下ではchiのRealIPミドルウェアでRemoteAddrを書き換えてから使う。
func ClientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// cleanupLoop はバックグラウンドで期限切れエントリを定期的にクリーンアップする。
func (rl *RateLimiter) cleanupLoop() {
	ticker := time.NewTicker(rl.config.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			rl.cleanup(time.Now())
		case <-rl.stopCh:
			return
		}
	}
}

// cleanup は最終アクセス時刻がCleanupIntervalの2倍を超えたエントリを削除する。
func (rl *RateLimiter) cleanup(now time.Time) {
	ttl := rl.config.CleanupInterval * 2
	rl.general.evictIdle(now, ttl)
	rl.analysis.evictIdle(now, ttl)
}

// writeRateLimitResponse は429 Too Many Requestsレスポンスを書き込む。
// Retry-Afterヘッダーにはトークンが補充されるまでの推定秒数を設定する。
func writeRateLimitResponse(w http.ResponseWriter, r rate.Limit) {
	retryAfterSec := 1
	if r > 0 {
		retryAfterSec = int(math.Ceil(1.0 / float64(r)))
	}
	if retryAfterSec < 1 {
		retryAfterSec = 1
	}

	w.Header().Set("Retry-After", strconv.Itoa(retryAfterSec))
	WriteErrorResponse(w, http.StatusTooManyRequests, model.NewRateLimitedError())
}
