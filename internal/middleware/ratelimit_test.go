package middleware

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/hitoshi/scanscore/internal/model"
)

func testRateLimiter(t *testing.T, cfg RateLimiterConfig) (*RateLimiter, *bytes.Buffer) {
	t.Helper()
	var buf bytes.Buffer
	rl := NewRateLimiter(cfg, slog.New(slog.NewJSONHandler(&buf, nil)))
	t.Cleanup(rl.Stop)
	return rl, &buf
}

func requestFrom(remoteAddr string) *http.Request {
	req := httptest.NewRequest(http.MethodPost, "/api/analyze", nil)
	req.RemoteAddr = remoteAddr
	return req
}

var okHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
})

func TestRateLimitMiddleware_AllowsRequestsWithinLimit(t *testing.T) {
	rl, _ := testRateLimiter(t, RateLimiterConfig{
		GeneralRate:     2,
		GeneralBurst:    5,
		AnalysisRate:    1,
		AnalysisBurst:   1,
		CleanupInterval: time.Minute,
	})
	handler := rl.GeneralMiddleware()(okHandler)

	for i := 0; i < 5; i++ {
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, requestFrom("203.0.113.1:5000"))
		if w.Code != http.StatusOK {
			t.Errorf("request %d: status = %d, want %d", i, w.Code, http.StatusOK)
		}
	}
}

func TestRateLimitMiddleware_Returns429WhenLimitExceeded(t *testing.T) {
	rl, logs := testRateLimiter(t, RateLimiterConfig{
		GeneralRate:     100,
		GeneralBurst:    100,
		AnalysisRate:    PerMinute(10),
		AnalysisBurst:   2,
		CleanupInterval: time.Minute,
	})
	handler := rl.AnalysisMiddleware()(okHandler)

	for i := 0; i < 2; i++ {
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, requestFrom("203.0.113.2:1234"))
		if w.Code != http.StatusOK {
			t.Fatalf("request %d: status = %d", i, w.Code)
		}
	}

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, requestFrom("203.0.113.2:9999"))

	if w.Code != http.StatusTooManyRequests {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusTooManyRequests)
	}
	retryAfter, err := strconv.Atoi(w.Header().Get("Retry-After"))
	if err != nil || retryAfter != 6 {
		t.Errorf("Retry-After = %q, want 6", w.Header().Get("Retry-After"))
	}

	var body ErrorResponseBody
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if body.Error != model.ErrCodeRateLimited || body.Message != "Too many requests. Please try again later." {
		t.Errorf("body = %+v", body)
	}
	if !strings.Contains(logs.String(), `"limit_type":"analysis"`) {
		t.Errorf("制限超過がログに出力されるべき: %s", logs.String())
	}
}

func TestRateLimitMiddleware_IsolatesClients(t *testing.T) {
	rl, _ := testRateLimiter(t, RateLimiterConfig{
		GeneralRate:     PerMinute(1),
		GeneralBurst:    1,
		AnalysisRate:    PerMinute(1),
		AnalysisBurst:   1,
		CleanupInterval: time.Minute,
	})
	handler := rl.GeneralMiddleware()(okHandler)

	first := httptest.NewRecorder()
	handler.ServeHTTP(first, requestFrom("198.51.100.1:1"))
	blocked := httptest.NewRecorder()
	handler.ServeHTTP(blocked, requestFrom("198.51.100.1:2"))
	other := httptest.NewRecorder()
	handler.ServeHTTP(other, requestFrom("198.51.100.2:1"))

	if first.Code != http.StatusOK || blocked.Code != http.StatusTooManyRequests {
		t.Errorf("同一クライアント: %d, %d", first.Code, blocked.Code)
	}
	if other.Code != http.StatusOK {
		t.Errorf("別クライアントは独立して制限されるべき: %d", other.Code)
	}
	if rl.GeneralLimiterCount() != 2 {
		t.Errorf("GeneralLimiterCount = %d, want 2", rl.GeneralLimiterCount())
	}
}

func TestRateLimitMiddleware_TiersAreIndependent(t *testing.T) {
	rl, _ := testRateLimiter(t, RateLimiterConfig{
		GeneralRate:     PerMinute(60),
		GeneralBurst:    10,
		AnalysisRate:    PerMinute(1),
		AnalysisBurst:   1,
		CleanupInterval: time.Minute,
	})
	analysis := rl.AnalysisMiddleware()(okHandler)
	general := rl.GeneralMiddleware()(okHandler)

	analysis.ServeHTTP(httptest.NewRecorder(), requestFrom("192.0.2.1:1"))
	w := httptest.NewRecorder()
	analysis.ServeHTTP(w, requestFrom("192.0.2.1:1"))
	if w.Code != http.StatusTooManyRequests {
		t.Fatalf("analysis status = %d, want 429", w.Code)
	}

	w = httptest.NewRecorder()
	general.ServeHTTP(w, requestFrom("192.0.2.1:1"))
	if w.Code != http.StatusOK {
		t.Errorf("解析の制限はAPI全般に影響しないべき: %d", w.Code)
	}
	if rl.AnalysisLimiterCount() != 1 {
		t.Errorf("AnalysisLimiterCount = %d, want 1", rl.AnalysisLimiterCount())
	}
}

func TestRateLimiter_CleanupRemovesIdleEntries(t *testing.T) {
	rl, _ := testRateLimiter(t, RateLimiterConfig{
		GeneralRate:     1,
		GeneralBurst:    1,
		AnalysisRate:    1,
		AnalysisBurst:   1,
		CleanupInterval: time.Hour,
	})
	rl.GeneralMiddleware()(okHandler).ServeHTTP(httptest.NewRecorder(), requestFrom("192.0.2.9:1"))
	rl.AnalysisMiddleware()(okHandler).ServeHTTP(httptest.NewRecorder(), requestFrom("192.0.2.9:1"))

	rl.cleanup(time.Now().Add(time.Hour))
	if rl.GeneralLimiterCount() != 1 {
		t.Errorf("TTL内のエントリは残るべき: %d", rl.GeneralLimiterCount())
	}

	rl.cleanup(time.Now().Add(3 * time.Hour))
	if rl.GeneralLimiterCount() != 0 || rl.AnalysisLimiterCount() != 0 {
		t.Errorf("期限切れエントリは削除されるべき: %d, %d", rl.GeneralLimiterCount(), rl.AnalysisLimiterCount())
	}
}

func TestRateLimiter_StopIsIdempotent(t *testing.T) {
	rl := NewRateLimiter(DefaultRateLimiterConfig(), nil)
	rl.Stop()
	rl.Stop()
}

func TestClientIP(t *testing.T) {
	tests := []struct {
		remoteAddr string
		want       string
	}{
		{"203.0.113.5:4321", "203.0.113.5"},
		{"[2001:db8::1]:443", "2001:db8::1"},
		{"203.0.113.5", "203.0.113.5"},
	}
	for _, tt := range tests {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.RemoteAddr = tt.remoteAddr
		if got := ClientIP(req); got != tt.want {
			t.Errorf("ClientIP(%q) = %q, want %q", tt.remoteAddr, got, tt.want)
		}
	}
}

func TestDefaultRateLimiterConfig(t *testing.T) {
	cfg := DefaultRateLimiterConfig()

	if cfg.GeneralRate != PerMinute(60) || cfg.GeneralBurst != 60 {
		t.Errorf("general = %v/%d", cfg.GeneralRate, cfg.GeneralBurst)
	}
	if cfg.AnalysisRate != PerMinute(10) || cfg.AnalysisBurst != 10 {
		t.Errorf("analysis = %v/%d", cfg.AnalysisRate, cfg.AnalysisBurst)
	}
	if cfg.CleanupInterval != 5*time.Minute {
		t.Errorf("CleanupInterval = %v", cfg.CleanupInterval)
	}
}
