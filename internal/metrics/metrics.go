// Package metrics はPrometheusメトリクスの収集と公開を提供する。
package metrics

import (
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// 予約枠クエリの結果ラベル
const (
	ResultOK       = "ok"
	ResultEmpty    = "empty"
	ResultError    = "error"
	ResultRevoked  = "revoked"
	ResultNotFound = "not_found"
)

// MetricsCollector はメトリクス収集のインターフェース。
// ワーカーやサービス層から利用する。
type MetricsCollector interface {
	RecordSlotQuery(result string, slots int, duration time.Duration)
	RecordBusyFetch(source, result string)
	RecordTokenRefresh(result string)
	RecordHTTPStatus(statusCode int)
	RecordCleanup(target string, deleted int64)
}

// Collector はPrometheusメトリクスを収集する実装。
type Collector struct {
	slotQueries   *prometheus.CounterVec
	slotsReturned prometheus.Histogram
	slotCompute   prometheus.Histogram
	busyFetch     *prometheus.CounterVec
	tokenRefresh  *prometheus.CounterVec
	httpStatus    *prometheus.CounterVec
	cleanup       *prometheus.CounterVec
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		slotQueries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "slotbook_slot_queries_total",
			Help: "予約枠クエリの結果別の合計数",
		}, []string{"result"}),
		slotsReturned: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "slotbook_slots_returned",
			Help:    "1回のクエリで返した予約枠の数",
			Buckets: []float64{0, 1, 2, 4, 8, 16, 32, 64, 128},
		}),
		slotCompute: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "slotbook_slot_compute_seconds",
			Help:    "予約枠計算（予定取得を含む）のレイテンシ（秒）",
			Buckets: prometheus.DefBuckets,
		}),
		busyFetch: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "slotbook_busy_fetch_total",
			Help: "外部カレンダーからの予定取得のソース・結果別の合計数",
		}, []string{"source", "result"}),
		tokenRefresh: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "slotbook_token_refresh_total",
			Help: "Googleトークン更新の結果別の合計数",
		}, []string{"result"}),
		httpStatus: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "slotbook_http_status_total",
			Help: "HTTPステータスコード別のレスポンス数",
		}, []string{"status_code"}),
		cleanup: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "slotbook_cleanup_deleted_total",
			Help: "定期クリーンアップで削除したレコード数",
		}, []string{"target"}),
	}

	reg.MustRegister(
		c.slotQueries,
		c.slotsReturned,
		c.slotCompute,
		c.busyFetch,
		c.tokenRefresh,
		c.httpStatus,
		c.cleanup,
	)

	return c
}

// RecordSlotQuery は予約枠クエリの結果・件数・所要時間を記録する。
// エラー時は件数を記録しない。
func (c *Collector) RecordSlotQuery(result string, slots int, duration time.Duration) {
	c.slotQueries.WithLabelValues(result).Inc()
	c.slotCompute.Observe(duration.Seconds())
	if result != ResultError {
		c.slotsReturned.Observe(float64(slots))
	}
}

// RecordBusyFetch は外部カレンダーからの予定取得を記録する。
func (c *Collector) RecordBusyFetch(source, result string) {
	c.busyFetch.WithLabelValues(source, result).Inc()
}

// RecordTokenRefresh はトークン更新の結果を記録する。
func (c *Collector) RecordTokenRefresh(result string) {
	c.tokenRefresh.WithLabelValues(result).Inc()
}

// RecordHTTPStatus はHTTPステータスコードを記録する。
func (c *Collector) RecordHTTPStatus(statusCode int) {
	c.httpStatus.WithLabelValues(strconv.Itoa(statusCode)).Inc()
}

// RecordCleanup はクリーンアップで削除した件数を記録する。
func (c *Collector) RecordCleanup(target string, deleted int64) {
	c.cleanup.WithLabelValues(target).Add(float64(deleted))
}

// Handler はPrometheusスクレイプ用のHTTPハンドラーを返す。
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// SetupMetricsRoute はワーカー用の単独HTTPサーバーのハンドラーを返す。
// /metrics と、コンテナのヘルスチェック用の /health を提供する。
func SetupMetricsRoute(gatherer prometheus.Gatherer) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("GET /metrics", Handler(gatherer))
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		_, _ = io.WriteString(w, "ok")
	})
	return mux
}

// Nop は何も記録しないMetricsCollector。テストやメトリクス無効時に使う。
type Nop struct{}

func (Nop) RecordSlotQuery(string, int, time.Duration) {}
func (Nop) RecordBusyFetch(string, string)             {}
func (Nop) RecordTokenRefresh(string)                  {}
func (Nop) RecordHTTPStatus(int)                       {}
func (Nop) RecordCleanup(string, int64)                {}

var (
	_ MetricsCollector = (*Collector)(nil)
	_ MetricsCollector = Nop{}
)
