// Package metrics はPrometheusメトリクスの収集と公開を提供する。
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// API呼び出し結果のラベル値
const (
	OutcomeSuccess = "success"
)

// MetricsCollector はメトリクス収集のインターフェース。
// APIクライアントとお気に入り管理から利用する。
type MetricsCollector interface {
	RecordRequest(operation, outcome string)
	RecordLatency(operation string, duration time.Duration)
	RecordFavoriteConflict()
}

// Collector はPrometheusメトリクスを収集する実装。
type Collector struct {
	requests          *prometheus.CounterVec
	latency           *prometheus.HistogramVec
	favoriteConflicts prometheus.Counter
	httpStatus        *prometheus.CounterVec
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "snooze_api_requests_total",
			Help: "API呼び出しの操作別・結果別の合計数",
		}, []string{"operation", "outcome"}),
		latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "snooze_api_request_duration_seconds",
			Help:    "API呼び出しのレイテンシ（秒）",
			Buckets: prometheus.DefBuckets,
		}, []string{"operation"}),
		favoriteConflicts: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "snooze_favorite_conflicts_total",
			Help: "処理中のため拒否されたお気に入り更新の合計数",
		}),
		httpStatus: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "snooze_fake_api_http_status_total",
			Help: "フェイクAPIサーバーのHTTPステータスコード別レスポンス数",
		}, []string{"status_code"}),
	}

	reg.MustRegister(
		c.requests,
		c.latency,
		c.favoriteConflicts,
		c.httpStatus,
	)

	return c
}

// RecordRequest はAPI呼び出しの結果を記録する。outcomeは成功時OutcomeSuccess、失敗時はエラーカテゴリ。
func (c *Collector) RecordRequest(operation, outcome string) {
	c.requests.WithLabelValues(operation, outcome).Inc()
}

// RecordLatency はAPI呼び出しのレイテンシを記録する。
func (c *Collector) RecordLatency(operation string, duration time.Duration) {
	c.latency.WithLabelValues(operation).Observe(duration.Seconds())
}

// RecordFavoriteConflict は処理中のため拒否したお気に入り更新を記録する。
func (c *Collector) RecordFavoriteConflict() {
	c.favoriteConflicts.Inc()
}

// FavoriteConflicts は拒否したお気に入り更新のカウンターを返す。
func (c *Collector) FavoriteConflicts() prometheus.Counter {
	return c.favoriteConflicts
}

// RecordHTTPStatus はフェイクAPIサーバーが返したHTTPステータスコードを記録する。
func (c *Collector) RecordHTTPStatus(statusCode int) {
	c.httpStatus.WithLabelValues(strconv.Itoa(statusCode)).Inc()
}

// Nop は何も記録しないMetricsCollector。
type Nop struct{}

func (Nop) RecordRequest(string, string)        {}
func (Nop) RecordLatency(string, time.Duration) {}
func (Nop) RecordFavoriteConflict()             {}

// Handler はPrometheusスクレイプ用のHTTPハンドラーを返す。
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// WriteTextfile はgathererのメトリクスをnode_exporterのtextfile形式でpathに書き出す。
// 短命なCLIプロセスのメトリクスを残すために使用する。
func WriteTextfile(path string, gatherer prometheus.Gatherer) error {
	return prometheus.WriteToTextfile(path, gatherer)
}
