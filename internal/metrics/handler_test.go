package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
)

// TestSetupMetricsRoute_ServesWorkerEvictions はワーカーが記録した削除件数を/metricsで公開できることを検証する。
func TestSetupMetricsRoute_ServesWorkerEvictions(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)
	c.RecordHistoryEvictions(3)

	w := httptest.NewRecorder()
	SetupMetricsRoute(reg).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	resp := w.Result()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want %d", resp.StatusCode, http.StatusOK)
	}
	body, _ := io.ReadAll(resp.Body)
	if !strings.Contains(string(body), "scanscore_history_evictions_total 3") {
		t.Errorf("response should contain evictions counter, got:\n%s", body)
	}
}

// TestSetupMetricsRoute_OtherPathsNotFound は/metrics以外のパスが404になることを検証する。
func TestSetupMetricsRoute_OtherPathsNotFound(t *testing.T) {
	handler := SetupMetricsRoute(prometheus.NewRegistry())

	for _, path := range []string{"/", "/health", "/api/compare"} {
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
		if w.Code != http.StatusNotFound {
			t.Errorf("GET %s status = %d, want %d", path, w.Code, http.StatusNotFound)
		}
	}
}

// TestHandler_EmptyRegistry は未登録のレジストリでも200を返すことを検証する。
func TestHandler_EmptyRegistry(t *testing.T) {
	w := httptest.NewRecorder()
	Handler(prometheus.NewRegistry()).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	if w.Code != http.StatusOK {
		t.Errorf("status = %d, want %d", w.Code, http.StatusOK)
	}
}
