package middleware

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// httpMetrics 按路由模式而非实际路径打标签，避免高基数。
type httpMetrics struct {
	requests     *prometheus.CounterVec
	duration     *prometheus.HistogramVec
	requestSize  *prometheus.HistogramVec
	responseSize *prometheus.HistogramVec
	active       prometheus.Gauge
}

func newHTTPMetrics(reg prometheus.Registerer) *httpMetrics {
	factory := promauto.With(reg)
	return &httpMetrics{
		requests: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "dropzone",
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests",
		}, []string{"method", "path", "status"}),
		duration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "dropzone",
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 2.5, 5, 10, 30},
		}, []string{"method", "path"}),
		requestSize: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "dropzone",
			Name:      "http_request_size_bytes",
			Help:      "HTTP request size in bytes",
			// 上传请求体可达数 MB。
			Buckets: prometheus.ExponentialBuckets(256, 8, 8),
		}, []string{"method", "path"}),
		responseSize: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "dropzone",
			Name:      "http_response_size_bytes",
			Help:      "HTTP response size in bytes",
			Buckets:   prometheus.ExponentialBuckets(100, 10, 8),
		}, []string{"method", "path"}),
		active: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "dropzone",
			Name:      "http_active_requests",
			Help:      "Number of active HTTP requests",
		}),
	}
}

// Metrics 创建 Prometheus 指标收集中间件；reg 为 nil 时注册到默认注册表。
func Metrics(reg prometheus.Registerer) func(http.Handler) http.Handler {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	m := newHTTPMetrics(reg)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			m.active.Inc()
			defer m.active.Dec()

			rw := newResponseWriter(w)
			next.ServeHTTP(rw, r)

			routePattern := "unknown"
			if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
				routePattern = rctx.RoutePattern()
			}

			method := r.Method
			m.requests.WithLabelValues(method, routePattern, strconv.Itoa(rw.statusCode)).Inc()
			m.duration.WithLabelValues(method, routePattern).Observe(time.Since(start).Seconds())
			m.responseSize.WithLabelValues(method, routePattern).Observe(float64(rw.bytes))
			if r.ContentLength > 0 {
				m.requestSize.WithLabelValues(method, routePattern).Observe(float64(r.ContentLength))
			}
		})
	}
}
