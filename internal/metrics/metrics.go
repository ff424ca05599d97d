// Package metrics はPrometheusメトリクスの収集と公開を提供する。
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsCollector はメトリクス収集のインターフェース。
// バックエンドクライアント、プロフィール解決、ファサード、セッション管理から利用する。
type MetricsCollector interface {
	RecordBackendCall(operation string, statusCode int, duration time.Duration)
	RecordProfileResolution(outcome string, attempts int)
	RecordFacadeTransition(from, to string)
	RecordMatchResolution(status string)
	RecordOrphanedMatches(count int)
	RecordActiveSessions(count int)
	RecordHTTPStatus(statusCode int)
}

// Collector はPrometheusメトリクスを収集する実装。
type Collector struct {
	backendCalls      *prometheus.CounterVec
	backendLatency    *prometheus.HistogramVec
	profileResolution *prometheus.CounterVec
	profileAttempts   prometheus.Histogram
	facadeTransitions *prometheus.CounterVec
	matchResolutions  *prometheus.CounterVec
	orphanedMatches   prometheus.Counter
	activeSessions    prometheus.Gauge
	httpStatus        *prometheus.CounterVec
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		backendCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "shelterlink_backend_calls_total",
			Help: "バックエンドAPI呼び出しの合計数",
		}, []string{"operation", "status_code"}),
		backendLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "shelterlink_backend_latency_seconds",
			Help:    "バックエンドAPI呼び出しのレイテンシ（秒）",
			Buckets: prometheus.DefBuckets,
		}, []string{"operation"}),
		profileResolution: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "shelterlink_profile_resolutions_total",
			Help: "プロフィール解決の結果別の合計数",
		}, []string{"outcome"}),
		profileAttempts: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "shelterlink_profile_resolution_attempts",
			Help:    "プロフィール解決に要した試行回数",
			Buckets: []float64{1, 2, 3, 5},
		}),
		facadeTransitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "shelterlink_facade_transitions_total",
			Help: "セッション状態遷移の合計数",
		}, []string{"from", "to"}),
		matchResolutions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "shelterlink_match_resolutions_total",
			Help: "マッチ承認後のステータス別の合計数",
		}, []string{"status"}),
		orphanedMatches: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "shelterlink_orphaned_matches_removed_total",
			Help: "対応するアイテムがないため削除されたマッチの合計数",
		}),
		activeSessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "shelterlink_active_sessions",
			Help: "メモリ上のアクティブなセッション数",
		}),
		httpStatus: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "shelterlink_http_status_total",
			Help: "HTTPステータスコード別のレスポンス数",
		}, []string{"status_code"}),
	}

	reg.MustRegister(
		c.backendCalls,
		c.backendLatency,
		c.profileResolution,
		c.profileAttempts,
		c.facadeTransitions,
		c.matchResolutions,
		c.orphanedMatches,
		c.activeSessions,
		c.httpStatus,
	)

	return c
}

// RecordBackendCall はバックエンド呼び出しの結果とレイテンシを記録する。
// statusCode が0の場合は通信エラーを表す。
func (c *Collector) RecordBackendCall(operation string, statusCode int, duration time.Duration) {
	status := "error"
	if statusCode > 0 {
		status = strconv.Itoa(statusCode)
	}
	c.backendCalls.WithLabelValues(operation, status).Inc()
	c.backendLatency.WithLabelValues(operation).Observe(duration.Seconds())
}

// RecordProfileResolution はプロフィール解決の結果を記録する。
func (c *Collector) RecordProfileResolution(outcome string, attempts int) {
	c.profileResolution.WithLabelValues(outcome).Inc()
	c.profileAttempts.Observe(float64(attempts))
}

// RecordFacadeTransition はセッション状態の遷移を記録する。
func (c *Collector) RecordFacadeTransition(from, to string) {
	c.facadeTransitions.WithLabelValues(from, to).Inc()
}

// RecordMatchResolution はマッチ承認後のステータスを記録する。
func (c *Collector) RecordMatchResolution(status string) {
	c.matchResolutions.WithLabelValues(status).Inc()
}

// RecordOrphanedMatches は削除された孤立マッチ数を記録する。
func (c *Collector) RecordOrphanedMatches(count int) {
	c.orphanedMatches.Add(float64(count))
}

// RecordActiveSessions はアクティブなセッション数を記録する。
func (c *Collector) RecordActiveSessions(count int) {
	c.activeSessions.Set(float64(count))
}

// RecordHTTPStatus はHTTPステータスコードを記録する。
func (c *Collector) RecordHTTPStatus(statusCode int) {
	c.httpStatus.WithLabelValues(strconv.Itoa(statusCode)).Inc()
}

// Handler はPrometheusスクレイプ用のHTTPハンドラーを返す。
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// SetupMetricsRoute は/metricsエンドポイントを提供するHTTPハンドラーを返す。
// Prometheusスクレイプに対応する。
func SetupMetricsRoute(gatherer prometheus.Gatherer) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", Handler(gatherer))
	return mux
}
