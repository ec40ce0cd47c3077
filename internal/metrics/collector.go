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

	// 发布周期指标
	cyclesTotal    *prometheus.CounterVec
	cycleDuration  *prometheus.HistogramVec
	stageDuration  *prometheus.HistogramVec
	busyRejections prometheus.Counter
	artifactsTotal *prometheus.CounterVec
	artifactBytes  *prometheus.HistogramVec
	workflowBusy   prometheus.Gauge
	previewHandles prometheus.Gauge

	// Relay 指标
	relayUploadsTotal *prometheus.CounterVec
	relayTokensTotal  *prometheus.CounterVec

	// 分享索引指标
	indexHits   *prometheus.CounterVec
	indexMisses *prometheus.CounterVec

	// 数据库指标
	dbConnectionsOpen *prometheus.GaugeVec
	dbConnectionsIdle *prometheus.GaugeVec
	dbQueryDuration   *prometheus.HistogramVec

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

	// 发布周期指标
	c.cyclesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "publish_cycles_total",
			Help:      "Total number of export-and-publish cycles",
		},
		[]string{"strategy", "status"}, // status: success 或错误码
	)

	c.cycleDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "publish_cycle_duration_seconds",
			Help:      "Export-and-publish cycle duration in seconds",
			Buckets:   []float64{0.5, 1, 2, 5, 10, 30, 60, 120},
		},
		[]string{"strategy"},
	)

	c.stageDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "publish_stage_duration_seconds",
			Help:      "Duration of a single workflow stage in seconds",
			Buckets:   []float64{0.05, 0.1, 0.5, 1, 2, 5, 10, 30, 60},
		},
		[]string{"stage"},
	)

	c.busyRejections = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "publish_busy_rejections_total",
			Help:      "Triggers rejected because a cycle was in flight",
		},
	)

	c.artifactsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "export_artifacts_total",
			Help:      "Total number of exported artifacts",
		},
		[]string{"format", "placeholder"},
	)

	c.artifactBytes = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "export_artifact_size_bytes",
			Help:      "Exported artifact size in bytes",
			Buckets:   prometheus.ExponentialBuckets(1024, 4, 10),
		},
		[]string{"format"},
	)

	c.workflowBusy = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "workflow_busy",
			Help:      "1 while a publish cycle is in flight",
		},
	)

	c.previewHandles = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "preview_handles_active",
			Help:      "Number of live local preview handles",
		},
	)

	// Relay 指标
	c.relayUploadsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "relay_uploads_total",
			Help:      "Total number of uploads received by the relay",
		},
		[]string{"encoding", "status"},
	)

	c.relayTokensTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "relay_tokens_total",
			Help:      "Upload tokens issued and consumed by the relay",
		},
		[]string{"event"}, // event: issued, accepted, rejected
	)

	// 分享索引指标
	c.indexHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "share_index_hits_total",
			Help:      "Total number of share index hits",
		},
		[]string{"index"},
	)

	c.indexMisses = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "share_index_misses_total",
			Help:      "Total number of share index misses",
		},
		[]string{"index"},
	)

	// 数据库指标
	c.dbConnectionsOpen = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "db_connections_open",
			Help:      "Number of open database connections",
		},
		[]string{"database"},
	)

	c.dbConnectionsIdle = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "db_connections_idle",
			Help:      "Number of idle database connections",
		},
		[]string{"database"},
	)

	c.dbQueryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "db_query_duration_seconds",
			Help:      "Database query duration in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"database", "operation"},
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
// 🚀 发布周期指标记录
// =============================================================================

// RecordCycle 记录一次完整的发布周期
func (c *Collector) RecordCycle(strategy, status string, duration time.Duration) {
	c.cyclesTotal.WithLabelValues(strategy, status).Inc()
	c.cycleDuration.WithLabelValues(strategy).Observe(duration.Seconds())
}

// RecordStage 记录单个阶段耗时
func (c *Collector) RecordStage(stage string, duration time.Duration) {
	c.stageDuration.WithLabelValues(stage).Observe(duration.Seconds())
}

// RecordBusyRejection 记录忙碌拒绝
func (c *Collector) RecordBusyRejection() {
	c.busyRejections.Inc()
}

// RecordArtifact 记录导出产物
func (c *Collector) RecordArtifact(format string, placeholder bool, size int64) {
	p := "false"
	if placeholder {
		p = "true"
	}
	c.artifactsTotal.WithLabelValues(format, p).Inc()
	c.artifactBytes.WithLabelValues(format).Observe(float64(size))
}

// SetBusy 更新忙碌状态
func (c *Collector) SetBusy(busy bool) {
	if busy {
		c.workflowBusy.Set(1)
		return
	}
	c.workflowBusy.Set(0)
}

// SetPreviewHandles 更新预览句柄数
func (c *Collector) SetPreviewHandles(n int) {
	c.previewHandles.Set(float64(n))
}

// =============================================================================
// 📡 Relay 指标记录
// =============================================================================

// RecordRelayUpload 记录 relay 收到的上传
func (c *Collector) RecordRelayUpload(encoding, status string) {
	c.relayUploadsTotal.WithLabelValues(encoding, status).Inc()
}

// RecordRelayToken 记录令牌事件
func (c *Collector) RecordRelayToken(event string) {
	c.relayTokensTotal.WithLabelValues(event).Inc()
}

// =============================================================================
// 💾 分享索引指标记录
// =============================================================================

// RecordIndexHit 记录索引命中
func (c *Collector) RecordIndexHit(index string) {
	c.indexHits.WithLabelValues(index).Inc()
}

// RecordIndexMiss 记录索引未命中
func (c *Collector) RecordIndexMiss(index string) {
	c.indexMisses.WithLabelValues(index).Inc()
}

// =============================================================================
// 🗄️ 数据库指标记录
// =============================================================================

// RecordDBConnections 记录数据库连接数
func (c *Collector) RecordDBConnections(database string, open, idle int) {
	c.dbConnectionsOpen.WithLabelValues(database).Set(float64(open))
	c.dbConnectionsIdle.WithLabelValues(database).Set(float64(idle))
}

// RecordDBQuery 记录数据库查询
func (c *Collector) RecordDBQuery(database, operation string, duration time.Duration) {
	c.dbQueryDuration.WithLabelValues(database, operation).Observe(duration.Seconds())
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
