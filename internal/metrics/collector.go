// Package metrics provides internal metrics collection.
// This package is internal and should not be imported by external projects.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"
)

// =============================================================================
// 📊 指标收集器
// =============================================================================

// Collector 指标收集器
type Collector struct {
	// HTTP 指标
	httpRequestsTotal   *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec
	httpRequestSize     *prometheus.HistogramVec
	httpResponseSize    *prometheus.HistogramVec

	// 扫描指标
	scansTotal     *prometheus.CounterVec
	scanDuration   *prometheus.HistogramVec
	issuesTotal    *prometheus.CounterVec
	linterFailures *prometheus.CounterVec

	// 执行指标
	executionsTotal    *prometheus.CounterVec
	executionDuration  *prometheus.HistogramVec
	executionsInFlight prometheus.Gauge
	artifactSize       *prometheus.HistogramVec

	// 产物发布指标
	publishTotal *prometheus.CounterVec

	// 扫描结论缓存
	verdictCacheTotal *prometheus.CounterVec

	logger *zap.Logger
}

// NewCollector 创建指标收集器
func NewCollector(namespace string, logger *zap.Logger) *Collector {
	if logger == nil {
		logger = zap.NewNop()
	}
	c := &Collector{
		logger: logger.With(zap.String("component", "metrics")),
	}

	// HTTP 指标
	c.httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	c.httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	c.httpRequestSize = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_size_bytes",
			Help:      "HTTP request size in bytes",
			Buckets:   prometheus.ExponentialBuckets(100, 10, 8),
		},
		[]string{"method", "path"},
	)

	c.httpResponseSize = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_response_size_bytes",
			Help:      "HTTP response size in bytes",
			Buckets:   prometheus.ExponentialBuckets(100, 10, 8),
		},
		[]string{"method", "path"},
	)

	// 扫描指标
	c.scansTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "scans_total",
			Help:      "Total number of script scans by verdict",
		},
		[]string{"verdict"}, // accepted, rejected
	)

	c.scanDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "scan_duration_seconds",
			Help:      "Script scan duration in seconds",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5, 10},
		},
		[]string{"verdict"},
	)

	c.issuesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "scan_issues_total",
			Help:      "Total number of scan issues by kind and severity",
		},
		[]string{"kind", "severity"},
	)

	c.linterFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "linter_failures_total",
			Help:      "Total number of linter runs that could not complete",
		},
		[]string{"linter"},
	)

	// 执行指标
	c.executionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "executions_total",
			Help:      "Total number of pipeline results by status",
		},
		[]string{"status", "format"},
	)

	c.executionDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "execution_duration_seconds",
			Help:      "Script execution duration in seconds",
			Buckets:   []float64{0.05, 0.1, 0.5, 1, 2, 5, 10, 30, 60, 120, 300},
		},
		[]string{"status"},
	)

	c.executionsInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "executions_in_flight",
			Help:      "Number of scripts currently executing",
		},
	)

	c.artifactSize = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "artifact_size_bytes",
			Help:      "Rendered artifact size in bytes",
			Buckets:   prometheus.ExponentialBuckets(1024, 4, 8),
		},
		[]string{"format"},
	)

	c.publishTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "artifact_publish_total",
			Help:      "Total number of artifact uploads by outcome",
		},
		[]string{"status"},
	)

	c.verdictCacheTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "verdict_cache_total",
			Help:      "Scan verdict cache lookups by result",
		},
		[]string{"result"},
	)

	c.logger.Info("metrics collector initialized", zap.String("namespace", namespace))

	return c
}

// =============================================================================
// 🎯 HTTP 指标记录
// =============================================================================

// RecordHTTPRequest 记录 HTTP 请求
func (c *Collector) RecordHTTPRequest(method, path string, status int, duration time.Duration, requestSize, responseSize int64) {
	c.httpRequestsTotal.WithLabelValues(method, path, statusCode(status)).Inc()
	c.httpRequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
	c.httpRequestSize.WithLabelValues(method, path).Observe(float64(requestSize))
	c.httpResponseSize.WithLabelValues(method, path).Observe(float64(responseSize))
}

// =============================================================================
// 🔍 扫描指标记录
// =============================================================================

// RecordScan 记录一次扫描结论
func (c *Collector) RecordScan(accepted bool, duration time.Duration) {
	verdict := "rejected"
	if accepted {
		verdict = "accepted"
	}
	c.scansTotal.WithLabelValues(verdict).Inc()
	c.scanDuration.WithLabelValues(verdict).Observe(duration.Seconds())
}

// RecordIssue 记录一条扫描问题
func (c *Collector) RecordIssue(kind, severity string) {
	c.issuesTotal.WithLabelValues(kind, severity).Inc()
}

// RecordLinterFailure 记录无法完成的 linter 运行
func (c *Collector) RecordLinterFailure(linter string) {
	c.linterFailures.WithLabelValues(linter).Inc()
}

// =============================================================================
// ⚙️ 执行指标记录
// =============================================================================

// RecordExecution 记录流水线最终状态；artifactBytes 为 0 时不记录产物大小
func (c *Collector) RecordExecution(status, format string, duration time.Duration, artifactBytes int) {
	c.executionsTotal.WithLabelValues(status, format).Inc()
	c.executionDuration.WithLabelValues(status).Observe(duration.Seconds())
	if artifactBytes > 0 {
		c.artifactSize.WithLabelValues(format).Observe(float64(artifactBytes))
	}
}

// ExecutionStarted 执行中计数加一
func (c *Collector) ExecutionStarted() { c.executionsInFlight.Inc() }

// ExecutionFinished 执行中计数减一
func (c *Collector) ExecutionFinished() { c.executionsInFlight.Dec() }

// RecordPublish 记录产物上传结果
func (c *Collector) RecordPublish(ok bool) {
	status := "error"
	if ok {
		status = "success"
	}
	c.publishTotal.WithLabelValues(status).Inc()
}

// RecordVerdictCache 记录扫描结论缓存的命中情况
func (c *Collector) RecordVerdictCache(hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	c.verdictCacheTotal.WithLabelValues(result).Inc()
}

// =============================================================================
// 🔧 辅助函数
// =============================================================================

// statusCode 将 HTTP 状态码转换为字符串
func statusCode(code int) string {
	switch {
	case code >= 200 && code < 300:
		return "2xx"
	case code >= 300 && code < 400:
		return "3xx"
	case code >= 400 && code < 500:
		return "4xx"
	case code >= 500:
		return "5xx"
	default:
		return "unknown"
	}
}
