// Package server Prometheus 指标导出
package server

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics 包含所有 API Server 指标
type Metrics struct {
	// HTTP 请求指标
	HTTPRequestsTotal    *prometheus.CounterVec
	HTTPRequestDuration  *prometheus.HistogramVec
	HTTPRequestsInFlight prometheus.Gauge

	// 提交任务指标
	SubmissionsTotal   *prometheus.CounterVec
	SubmissionDuration *prometheus.HistogramVec
	WorkerBusy         prometheus.Gauge

	// 认证指标
	AuthRequestsTotal *prometheus.CounterVec
	AuthSessionsLive  prometheus.Gauge

	// WebSocket 指标
	WSConnectionsActive prometheus.Gauge
	WSMessagesTotal     *prometheus.CounterVec
}

// NewMetrics 创建指标实例
func NewMetrics(namespace string) *Metrics {
	return &Metrics{
		HTTPRequestsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "http_requests_total",
				Help:      "Total HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		HTTPRequestDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "http_request_duration_seconds",
				Help:      "HTTP request duration in seconds",
				Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
			},
			[]string{"method", "path"},
		),
		HTTPRequestsInFlight: promauto.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "http_requests_in_flight",
				Help:      "Current number of HTTP requests being processed",
			},
		),
		SubmissionsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "submissions_total",
				Help:      "Total submission tasks by target site and resulting status",
			},
			[]string{"site", "status"},
		),
		SubmissionDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "submission_duration_seconds",
				Help:      "End-to-end submission duration in seconds",
				Buckets:   []float64{1, 5, 10, 30, 60, 120, 300, 600},
			},
			[]string{"site", "status"},
		),
		WorkerBusy: promauto.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "worker_busy",
				Help:      "Whether the browser worker is currently occupied (0/1)",
			},
		),
		AuthRequestsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "auth_requests_total",
				Help:      "Total simple-auth handshakes by carrier and outcome",
			},
			[]string{"carrier", "outcome"},
		),
		AuthSessionsLive: promauto.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "auth_sessions_live",
				Help:      "Auth sessions currently registered in memory",
			},
		),
		WSConnectionsActive: promauto.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "websocket_connections_active",
				Help:      "Active WebSocket connections",
			},
		),
		WSMessagesTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "websocket_messages_total",
				Help:      "Total WebSocket messages",
			},
			[]string{"direction", "type"},
		),
	}
}

// MetricsMiddleware 创建 HTTP 指标中间件
func (m *Metrics) MetricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		m.HTTPRequestsInFlight.Inc()
		defer m.HTTPRequestsInFlight.Dec()

		// 包装 ResponseWriter 以捕获状态码
		wrapped := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

		next.ServeHTTP(wrapped, r)

		duration := time.Since(start).Seconds()
		path := normalizePath(r.URL.Path)
		status := strconv.Itoa(wrapped.statusCode)

		m.HTTPRequestsTotal.WithLabelValues(r.Method, path, status).Inc()
		m.HTTPRequestDuration.WithLabelValues(r.Method, path).Observe(duration)
	})
}

// responseWriter 包装 http.ResponseWriter 以捕获状态码
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// normalizePath 规范化路径，将 ID 替换为占位符，避免高基数
func normalizePath(path string) string {
	switch {
	case strings.HasPrefix(path, "/api/v1/tasks/"):
		rest := path[len("/api/v1/tasks/"):]
		if i := strings.IndexByte(rest, '/'); i >= 0 {
			return "/api/v1/tasks/{id}" + rest[i:]
		}
		return "/api/v1/tasks/{id}"
	case strings.HasPrefix(path, "/api/v1/simple-auth/") && path != "/api/v1/simple-auth/request":
		rest := path[len("/api/v1/simple-auth/"):]
		if i := strings.IndexByte(rest, '/'); i >= 0 {
			return "/api/v1/simple-auth/{sessionId}" + rest[i:]
		}
		return "/api/v1/simple-auth/{sessionId}"
	default:
		return path
	}
}

// MetricsHandler 返回 Prometheus HTTP Handler
func MetricsHandler() http.Handler {
	return promhttp.Handler()
}

// RecordSubmission 记录一次提交受理
func (m *Metrics) RecordSubmission(site, status string) {
	m.SubmissionsTotal.WithLabelValues(site, status).Inc()
}

// RecordSubmissionCompleted 记录提交完成耗时
func (m *Metrics) RecordSubmissionCompleted(site, status string, duration time.Duration) {
	m.SubmissionDuration.WithLabelValues(site, status).Observe(duration.Seconds())
}

// RecordAuthRequest 记录一次简易认证
func (m *Metrics) RecordAuthRequest(carrier, outcome string) {
	m.AuthRequestsTotal.WithLabelValues(carrier, outcome).Inc()
}

// SetWorkerBusy 设置 Worker 占用状态
func (m *Metrics) SetWorkerBusy(busy bool) {
	if busy {
		m.WorkerBusy.Set(1)
	} else {
		m.WorkerBusy.Set(0)
	}
}

// SetAuthSessionsLive 设置内存中认证会话数量
func (m *Metrics) SetAuthSessionsLive(n int) {
	m.AuthSessionsLive.Set(float64(n))
}

// RecordWSMessage 记录 WebSocket 消息
func (m *Metrics) RecordWSMessage(direction, msgType string) {
	m.WSMessagesTotal.WithLabelValues(direction, msgType).Inc()
}

// WSConnectionOpened WebSocket 连接打开
func (m *Metrics) WSConnectionOpened() {
	m.WSConnectionsActive.Inc()
}

// WSConnectionClosed WebSocket 连接关闭
func (m *Metrics) WSConnectionClosed() {
	m.WSConnectionsActive.Dec()
}
