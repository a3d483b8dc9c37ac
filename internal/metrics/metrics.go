// Package metrics はPrometheusメトリクスの収集と公開を提供する。
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// 比較結果の区分
const (
	OutcomeOK       = "ok"
	OutcomeDegraded = "degraded"
	OutcomeInvalid  = "invalid"
	OutcomeFailed   = "failed"
)

// 画像検索結果の区分
const (
	ImageFound   = "found"
	ImageMissing = "missing"
	ImageFailed  = "failed"
)

// MetricsCollector はメトリクス収集のインターフェース。
// サービス層・ミドルウェア・ワーカーから利用する。
type MetricsCollector interface {
	RecordComparison(outcome string)
	RecordOracleCall(purpose string, outcome string, duration time.Duration)
	RecordAnalysis(source string, outcome string)
	RecordImageLookup(outcome string)
	RecordHistoryEvictions(count int)
	RecordHTTPStatus(statusCode int)
}

// Collector はPrometheusメトリクスを収集する実装。
type Collector struct {
	comparisons      *prometheus.CounterVec
	oracleCalls      *prometheus.CounterVec
	oracleLatency    *prometheus.HistogramVec
	analyses         *prometheus.CounterVec
	imageLookups     *prometheus.CounterVec
	historyEvictions prometheus.Counter
	httpStatus       *prometheus.CounterVec
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		comparisons: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "scanscore_comparisons_total",
			Help: "製品比較の結果区分別の合計数",
		}, []string{"outcome"}),
		oracleCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "scanscore_oracle_calls_total",
			Help: "オラクル呼び出しの用途・結果別の合計数",
		}, []string{"purpose", "outcome"}),
		oracleLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "scanscore_oracle_latency_seconds",
			Help:    "オラクル呼び出しのレイテンシ（秒）",
			Buckets: []float64{0.5, 1, 2.5, 5, 10, 20, 30, 45, 60},
		}, []string{"purpose"}),
		analyses: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "scanscore_analyses_total",
			Help: "スキャン解析の入力種別・結果別の合計数",
		}, []string{"source", "outcome"}),
		imageLookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "scanscore_image_lookups_total",
			Help: "代替製品の画像検索の結果別の合計数",
		}, []string{"outcome"}),
		historyEvictions: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "scanscore_history_evictions_total",
			Help: "上限超過またはリテンションで削除された履歴の合計数",
		}),
		httpStatus: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "scanscore_http_status_total",
			Help: "HTTPステータスコード別のレスポンス数",
		}, []string{"status_code"}),
	}

	reg.MustRegister(
		c.comparisons,
		c.oracleCalls,
		c.oracleLatency,
		c.analyses,
		c.imageLookups,
		c.historyEvictions,
		c.httpStatus,
	)

	return c
}

// RecordComparison は比較の結果区分を記録する。
func (c *Collector) RecordComparison(outcome string) {
	c.comparisons.WithLabelValues(outcome).Inc()
}

// RecordOracleCall はオラクル呼び出しの結果とレイテンシを記録する。
func (c *Collector) RecordOracleCall(purpose string, outcome string, duration time.Duration) {
	c.oracleCalls.WithLabelValues(purpose, outcome).Inc()
	c.oracleLatency.WithLabelValues(purpose).Observe(duration.Seconds())
}

// RecordAnalysis はスキャン解析の結果を記録する。
func (c *Collector) RecordAnalysis(source string, outcome string) {
	c.analyses.WithLabelValues(source, outcome).Inc()
}

// RecordImageLookup は画像検索の結果を記録する。
func (c *Collector) RecordImageLookup(outcome string) {
	c.imageLookups.WithLabelValues(outcome).Inc()
}

// RecordHistoryEvictions は削除された履歴件数を記録する。
func (c *Collector) RecordHistoryEvictions(count int) {
	if count <= 0 {
		return
	}
	c.historyEvictions.Add(float64(count))
}

// RecordHTTPStatus はHTTPステータスコードを記録する。
func (c *Collector) RecordHTTPStatus(statusCode int) {
	c.httpStatus.WithLabelValues(strconv.Itoa(statusCode)).Inc()
}

// RegisterConnectionGauge は接続数をスクレイプ時に読み出すゲージを登録する。
func RegisterConnectionGauge(reg prometheus.Registerer, count func() int) {
	reg.MustRegister(prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Name: "scanscore_compare_socket_connections",
			Help: "Number of open compare websocket connections",
		},
		func() float64 { return float64(count()) },
	))
}

// Handler はPrometheusスクレイプ用のHTTPハンドラーを返す。
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// SetupMetricsRoute は/metricsエンドポイントを提供するHTTPハンドラーを返す。
func SetupMetricsRoute(gatherer prometheus.Gatherer) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", Handler(gatherer))
	return mux
}

// Nop は何も記録しないMetricsCollector。メトリクス無効時やテストで使用する。
type Nop struct{}

func (Nop) RecordComparison(string)                        {}
func (Nop) RecordOracleCall(string, string, time.Duration) {}
func (Nop) RecordAnalysis(string, string)                  {}
func (Nop) RecordImageLookup(string)                       {}
func (Nop) RecordHistoryEvictions(int)                     {}
func (Nop) RecordHTTPStatus(int)                           {}

var (
	_ MetricsCollector = (*Collector)(nil)
	_ MetricsCollector = Nop{}
)
