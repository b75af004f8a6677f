package monitor

import (
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Monitor Prometheus监控指标收集器
type Monitor struct {
	registry *prometheus.Registry

	// 订单指标
	orderAttempts *prometheus.CounterVec
	orderAccepted *prometheus.CounterVec
	orderRejected *prometheus.CounterVec
	orderErrors   *prometheus.CounterVec
	orderLatency  *prometheus.HistogramVec
	ordersCancel  prometheus.Counter
	waves         prometheus.Counter
	surplusFills  prometheus.Counter

	// 行情/持仓指标
	lastPrice   prometheus.Gauge
	buyPrice    prometheus.Gauge
	targetPrice prometheus.Gauge
	phase       prometheus.Gauge

	// 系统指标
	wsConnections prometheus.Counter
	wsDisconnects prometheus.Counter
	restRequests  *prometheus.CounterVec
	restErrors    *prometheus.CounterVec
	restLatency   *prometheus.HistogramVec
}

// Config 监控配置
type Config struct {
	Namespace string
	Subsystem string
}

// DefaultConfig 返回默认配置
func DefaultConfig() Config {
	return Config{
		Namespace: "sniper",
		Subsystem: "spot",
	}
}

// New 创建新的Monitor实例
func New(cfg Config) *Monitor {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	counterVec := func(name, help string, labels ...string) *prometheus.CounterVec {
		return factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: cfg.Namespace, Subsystem: cfg.Subsystem, Name: name, Help: help,
		}, labels)
	}
	counter := func(name, help string) prometheus.Counter {
		return factory.NewCounter(prometheus.CounterOpts{
			Namespace: cfg.Namespace, Subsystem: cfg.Subsystem, Name: name, Help: help,
		})
	}
	gauge := func(name, help string) prometheus.Gauge {
		return factory.NewGauge(prometheus.GaugeOpts{
			Namespace: cfg.Namespace, Subsystem: cfg.Subsystem, Name: name, Help: help,
		})
	}

	return &Monitor{
		registry: reg,

		orderAttempts: counterVec("order_attempts_total", "下单尝试次数", "side"),
		orderAccepted: counterVec("order_accepted_total", "交易所接受的订单数", "side"),
		orderRejected: counterVec("order_rejected_total", "交易所拒绝的订单数", "side"),
		orderErrors:   counterVec("order_errors_total", "网络/解析失败的下单请求", "side"),
		orderLatency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: cfg.Namespace,
			Subsystem: cfg.Subsystem,
			Name:      "order_latency_seconds",
			Help:      "下单请求延迟分布（秒）",
			Buckets:   []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5},
		}, []string{"side"}),
		ordersCancel: counter("orders_canceled_total", "撤销的多余订单数"),
		waves:        counter("burst_waves_total", "已发出的抢单波次"),
		surplusFills: counter("surplus_fills_total", "同一轮中多余被接受的买单数"),

		lastPrice:   gauge("last_price", "最近一次截断后的最新价"),
		buyPrice:    gauge("approx_buy_price", "确认成交时采样的近似买入价"),
		targetPrice: gauge("target_price", "止盈目标价"),
		phase:       gauge("phase", "当前阶段(0=SCHEDULED..5=DONE)"),

		wsConnections: counter("ws_connections_total", "WebSocket连接次数"),
		wsDisconnects: counter("ws_disconnects_total", "WebSocket断开次数"),
		restRequests:  counterVec("rest_requests_total", "REST请求总数", "endpoint"),
		restErrors:    counterVec("rest_errors_total", "REST错误总数", "endpoint"),
		restLatency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: cfg.Namespace,
			Subsystem: cfg.Subsystem,
			Name:      "rest_latency_seconds",
			Help:      "REST请求延迟（秒）",
			Buckets:   prometheus.DefBuckets,
		}, []string{"endpoint"}),
	}
}

// 订单相关方法
func (m *Monitor) RecordOrderResult(side string, accepted bool, err error, latency time.Duration) {
	m.orderAttempts.WithLabelValues(side).Inc()
	m.orderLatency.WithLabelValues(side).Observe(latency.Seconds())
	switch {
	case err != nil:
		m.orderErrors.WithLabelValues(side).Inc()
	case accepted:
		m.orderAccepted.WithLabelValues(side).Inc()
	default:
		m.orderRejected.WithLabelValues(side).Inc()
	}
}

func (m *Monitor) RecordOrderCanceled() {
	m.ordersCancel.Inc()
}

func (m *Monitor) RecordWave() {
	m.waves.Inc()
}

func (m *Monitor) RecordSurplusFills(n int) {
	if n > 0 {
		m.surplusFills.Add(float64(n))
	}
}

// 行情相关方法
func (m *Monitor) UpdateLastPrice(v float64) {
	m.lastPrice.Set(v)
}

func (m *Monitor) UpdateBuyPrice(v float64) {
	m.buyPrice.Set(v)
}

func (m *Monitor) UpdateTargetPrice(v float64) {
	m.targetPrice.Set(v)
}

func (m *Monitor) UpdatePhase(ordinal int) {
	m.phase.Set(float64(ordinal))
}

// 系统相关方法
func (m *Monitor) RecordWSConnection() {
	m.wsConnections.Inc()
}

func (m *Monitor) RecordWSDisconnect() {
	m.wsDisconnects.Inc()
}

// ObserveRequest 实现 gateway.RequestObserver。
func (m *Monitor) ObserveRequest(endpoint string, elapsed time.Duration, err error) {
	m.restRequests.WithLabelValues(endpoint).Inc()
	m.restLatency.WithLabelValues(endpoint).Observe(elapsed.Seconds())
	if err != nil {
		m.restErrors.WithLabelValues(endpoint).Inc()
	}
}

// Handler 返回HTTP handler用于暴露指标
func (m *Monitor) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry 返回prometheus registry
func (m *Monitor) Registry() *prometheus.Registry {
	return m.registry
}

// Serve 在 addr 上暴露 /metrics，返回的 server 由调用方负责 Shutdown。
func (m *Monitor) Serve(addr string, onError func(error)) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) && onError != nil {
			onError(err)
		}
	}()
	return srv
}
