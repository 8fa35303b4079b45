// Package metrics 提供 Prometheus 指标集合，覆盖定价运行、单次重复与 HTTP 请求
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "pricing"

// 运行状态标签取值
const (
	StatusSuccess = "success"
	StatusFailed  = "failed"
	StatusCached  = "cached"
)

// Metrics 指标集合
type Metrics struct {
	registry *prometheus.Registry

	// 定价运行计数，按状态区分
	RunsTotal *prometheus.CounterVec
	// 定价运行耗时
	RunDuration prometheus.Histogram
	// 已完成的重复次数
	RepetitionsTotal prometheus.Counter
	// 单次重复耗时
	RepetitionDuration prometheus.Histogram
	// 因无价内路径而跳过的回归步数
	SkippedStepsTotal prometheus.Counter
	// 设计矩阵秩亏的回归步数
	RankDeficientStepsTotal prometheus.Counter
	// 最近一次运行的价格与标准差
	LastPrice  prometheus.Gauge
	LastStdDev prometheus.Gauge

	// HTTP 请求计数
	HTTPRequestsTotal *prometheus.CounterVec
	// HTTP 请求耗时
	HTTPRequestDuration *prometheus.HistogramVec
}

// New 创建指标实例并注册到独立的 registry
func New(serviceName string) *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),

		RunsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: serviceName,
			Name:      "runs_total",
			Help:      "Total LSMC pricing runs by status",
		}, []string{"status"}),
		RunDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: serviceName,
			Name:      "run_duration_seconds",
			Help:      "LSMC pricing run duration in seconds",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
		}),
		RepetitionsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: serviceName,
			Name:      "repetitions_total",
			Help:      "Total completed simulation repetitions",
		}),
		RepetitionDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: serviceName,
			Name:      "repetition_duration_seconds",
			Help:      "Single repetition duration in seconds",
			Buckets:   prometheus.DefBuckets,
		}),
		SkippedStepsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: serviceName,
			Name:      "skipped_regression_steps_total",
			Help:      "Backward induction steps without in-the-money paths",
		}),
		RankDeficientStepsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: serviceName,
			Name:      "rank_deficient_regressions_total",
			Help:      "Regressions solved with a rank deficient design matrix",
		}),
		LastPrice: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: serviceName,
			Name:      "last_price",
			Help:      "Price estimate of the most recent run",
		}),
		LastStdDev: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: serviceName,
			Name:      "last_std_dev",
			Help:      "Standard deviation of the most recent run",
		}),

		HTTPRequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: serviceName,
			Name:      "http_requests_total",
			Help:      "Total HTTP requests",
		}, []string{"method", "path", "code"}),
		HTTPRequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: serviceName,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "path"}),
	}

	m.registry.MustRegister(
		m.RunsTotal,
		m.RunDuration,
		m.RepetitionsTotal,
		m.RepetitionDuration,
		m.SkippedStepsTotal,
		m.RankDeficientStepsTotal,
		m.LastPrice,
		m.LastStdDev,
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
	)
	return m
}

// ObserveRepetition 记录单次重复
func (m *Metrics) ObserveRepetition(elapsed time.Duration, skipped, rankDeficient int) {
	m.RepetitionsTotal.Inc()
	m.RepetitionDuration.Observe(elapsed.Seconds())
	m.SkippedStepsTotal.Add(float64(skipped))
	m.RankDeficientStepsTotal.Add(float64(rankDeficient))
}

// ObserveRun 记录一次定价运行
func (m *Metrics) ObserveRun(status string, elapsed time.Duration, price, stdDev float64) {
	m.RunsTotal.WithLabelValues(status).Inc()
	if status != StatusSuccess {
		return
	}
	m.RunDuration.Observe(elapsed.Seconds())
	m.LastPrice.Set(price)
	m.LastStdDev.Set(stdDev)
}

// Registry 返回底层 registry
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler 返回 /metrics 处理器
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}
