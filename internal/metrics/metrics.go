// Package metrics はPrometheusメトリクスの収集と公開を提供する。
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// 保存状態切り替えの結果ラベル
const (
	ToggleSaved        = "saved"
	ToggleUnsaved      = "unsaved"
	ToggleRemoteFailed = "remote_failed"
	ToggleUnconfirmed  = "unconfirmed"
)

// 一覧データの取得元ラベル
const (
	SourceCache  = "cache"
	SourceStore  = "store"
	SourceRemote = "remote"
	SourceStale  = "stale"
	SourceNone   = "none"
)

// MetricsCollector はメトリクス収集のインターフェース。
// キャッシュ、リモートクライアント、同期ワーカーから利用する。
type MetricsCollector interface {
	RecordCacheRead(view, source string)
	RecordFallback(view string)
	RecordToggle(outcome string)
	RecordRemoteLatency(op string, duration time.Duration)
	RecordSyncedItems(count int)
	RecordHTTPStatus(statusCode int)
}

// Collector はPrometheusメトリクスを収集する実装。
type Collector struct {
	cacheReads    *prometheus.CounterVec
	fallbacks     *prometheus.CounterVec
	toggles       *prometheus.CounterVec
	remoteLatency *prometheus.HistogramVec
	syncedItems   prometheus.Counter
	httpStatus    *prometheus.CounterVec
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		cacheReads: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "furuhon_cache_reads_total",
			Help: "一覧の読み込み回数（一覧種別・取得元別）",
		}, []string{"view", "source"}),
		fallbacks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "furuhon_source_fallback_total",
			Help: "優先データソースの失敗による代替ソースへの切り替え回数",
		}, []string{"view"}),
		toggles: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "furuhon_toggle_total",
			Help: "保存状態切り替えの結果別の回数",
		}, []string{"outcome"}),
		remoteLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "furuhon_remote_latency_seconds",
			Help:    "リモートAPI呼び出しのレイテンシ（秒）",
			Buckets: prometheus.DefBuckets,
		}, []string{"op"}),
		syncedItems: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "furuhon_sync_items_total",
			Help: "同期ワーカーがローカルに保存した出品の合計数",
		}),
		httpStatus: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "furuhon_http_status_total",
			Help: "HTTPステータスコード別のレスポンス数",
		}, []string{"status_code"}),
	}

	reg.MustRegister(
		c.cacheReads,
		c.fallbacks,
		c.toggles,
		c.remoteLatency,
		c.syncedItems,
		c.httpStatus,
	)

	return c
}

// RecordCacheRead は一覧の読み込みと取得元を記録する。
func (c *Collector) RecordCacheRead(view, source string) {
	c.cacheReads.WithLabelValues(view, source).Inc()
}

// RecordFallback は代替ソースへの切り替えを記録する。
func (c *Collector) RecordFallback(view string) {
	c.fallbacks.WithLabelValues(view).Inc()
}

// RecordToggle は保存状態切り替えの結果を記録する。
func (c *Collector) RecordToggle(outcome string) {
	c.toggles.WithLabelValues(outcome).Inc()
}

// RecordRemoteLatency はリモートAPI呼び出しのレイテンシを記録する。
func (c *Collector) RecordRemoteLatency(op string, duration time.Duration) {
	c.remoteLatency.WithLabelValues(op).Observe(duration.Seconds())
}

// RecordSyncedItems は同期した出品数を記録する。
func (c *Collector) RecordSyncedItems(count int) {
	c.syncedItems.Add(float64(count))
}

// RecordHTTPStatus はHTTPステータスコードを記録する。
func (c *Collector) RecordHTTPStatus(statusCode int) {
	c.httpStatus.WithLabelValues(strconv.Itoa(statusCode)).Inc()
}

// Nop は何も記録しないMetricsCollector。
type Nop struct{}

func (Nop) RecordCacheRead(string, string)            {}
func (Nop) RecordFallback(string)                     {}
func (Nop) RecordToggle(string)                       {}
func (Nop) RecordRemoteLatency(string, time.Duration) {}
func (Nop) RecordSyncedItems(int)                     {}
func (Nop) RecordHTTPStatus(int)                      {}

// Handler はPrometheusスクレイプ用のHTTPハンドラーを返す。
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

var (
	_ MetricsCollector = (*Collector)(nil)
	_ MetricsCollector = Nop{}
)
