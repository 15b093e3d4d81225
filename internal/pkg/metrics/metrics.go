package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics はアプリケーションのメトリクスを管理する
type Metrics struct {
	// HTTPリクエストの総数（method, path, status_code）
	HTTPRequestsTotal *prometheus.CounterVec

	// HTTPリクエストのレイテンシ（method, path）
	HTTPRequestDuration *prometheus.HistogramVec

	// 予約作成の総数（status: success, pin_conflict, error）
	ReservationsTotal *prometheus.CounterVec

	// PIN確定試行の総数（result: success, not_found, already_confirmed,
	// expired, not_yet_active, lock_failed, rate_limited, error）
	PinConfirmationsTotal *prometheus.CounterVec

	// フォールバックPIN生成の総数（一意性を保証しない経路の監視用）
	PinFallbacksTotal prometheus.Counter

	// 分散ロックの操作時間（operation: acquire/release, status: success/failed）
	DistributedLockDuration *prometheus.HistogramVec

	// フェーズ別の予約数（phase: inactive, active, expired, confirmed）
	ReservationsByPhase *prometheus.GaugeVec
}

// New は新しいMetricsインスタンスを作成し、デフォルトレジストリに登録する
func New() *Metrics {
	return NewWithRegistry(prometheus.DefaultRegisterer)
}

// NewWithRegistry は指定したレジストリにメトリクスを登録する
func NewWithRegistry(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status_code"},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "HTTP request latency in seconds",
				Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
			},
			[]string{"method", "path"},
		),
		ReservationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "reservations_total",
				Help: "Total number of reservation creation attempts",
			},
			[]string{"status"},
		),
		PinConfirmationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pin_confirmations_total",
				Help: "Total number of PIN confirmation attempts",
			},
			[]string{"result"},
		),
		PinFallbacksTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "pin_fallback_codes_total",
				Help: "Total number of PIN codes generated via the non-unique fallback path",
			},
		),
		DistributedLockDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "distributed_lock_duration_seconds",
				Help:    "Time spent on distributed lock operations",
				Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
			},
			[]string{"operation", "status"},
		),
		ReservationsByPhase: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "reservations_by_phase",
				Help: "Current number of reservations per derived lifecycle phase",
			},
			[]string{"phase"},
		),
	}

	// レジストリに登録
	reg.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.ReservationsTotal,
		m.PinConfirmationsTotal,
		m.PinFallbacksTotal,
		m.DistributedLockDuration,
		m.ReservationsByPhase,
	)

	return m
}

// デフォルトのメトリクスインスタンス
var defaultMetrics *Metrics

// Init はデフォルトのメトリクスインスタンスを初期化する
func Init() *Metrics {
	defaultMetrics = New()
	return defaultMetrics
}

// Get はデフォルトのメトリクスインスタンスを返す
func Get() *Metrics {
	return defaultMetrics
}

// Set はデフォルトのメトリクスインスタンスを差し替える（テスト用）
func Set(m *Metrics) {
	defaultMetrics = m
}
