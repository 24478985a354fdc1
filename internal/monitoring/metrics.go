package monitoring

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics 监控指标
type Metrics struct {
	// HTTP 请求指标
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	// 认证指标
	AuthSuccessTotal  *prometheus.CounterVec
	AuthFailuresTotal *prometheus.CounterVec

	// 授权指标
	OwnershipDenialsTotal prometheus.Counter

	// 规则操作指标
	RuleOperationsTotal *prometheus.CounterVec

	// 限流指标
	RateLimitRejectsTotal *prometheus.CounterVec

	// 错误指标
	PanicsTotal prometheus.Counter
}

// NewMetrics 创建监控指标
func NewMetrics() *Metrics {
	return &Metrics{
		HTTPRequestsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "mailguard_http_requests_total",
			Help: "HTTP 请求总数",
		}, []string{"method", "path", "status"}),
		HTTPRequestDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "mailguard_http_request_duration_seconds",
			Help:    "HTTP 请求耗时分布",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "path"}),
		AuthSuccessTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "mailguard_auth_success_total",
			Help: "认证成功次数",
		}, []string{"path_kind"}),
		AuthFailuresTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "mailguard_auth_failures_total",
			Help: "认证失败次数",
		}, []string{"path_kind"}),
		OwnershipDenialsTotal: promauto.NewCounter(prometheus.CounterOpts{
			Name: "mailguard_ownership_denials_total",
			Help: "邮箱所有权校验拒绝次数",
		}),
		RuleOperationsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "mailguard_rule_operations_total",
			Help: "规则操作次数",
		}, []string{"action", "list", "outcome"}),
		RateLimitRejectsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "mailguard_rate_limit_rejects_total",
			Help: "限流拒绝次数",
		}, []string{"scope"}),
		PanicsTotal: promauto.NewCounter(prometheus.CounterOpts{
			Name: "mailguard_panics_total",
			Help: "请求处理 panic 次数",
		}),
	}
}

// GinMiddleware 采集 HTTP 请求指标的 gin 中间件。
func (m *Metrics) GinMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}

		m.HTTPRequestsTotal.WithLabelValues(
			c.Request.Method,
			path,
			strconv.Itoa(c.Writer.Status()),
		).Inc()
		m.HTTPRequestDuration.WithLabelValues(
			c.Request.Method,
			path,
		).Observe(time.Since(start).Seconds())
	}
}

// Handler 返回 Prometheus 抓取端点。
func (m *Metrics) Handler() http.Handler {
	return promhttp.Handler()
}
