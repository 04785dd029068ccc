package api

import (
	"log/slog"
	"net/http"
	"time"

	dzmiddleware "github.com/Renedz21/client/internal/middleware"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// RouterConfig 汇总会话服务的路由依赖。
type RouterConfig struct {
	Handler            *SessionHandler
	Logger             *slog.Logger
	CORSAllowedOrigins []string
	RateLimitRequests  int
	RateLimitWindow    time.Duration
	// Registry 为 nil 时使用 Prometheus 默认注册表。
	Registry *prometheus.Registry
}

// NewRouter 构建 HTTP 路由，集中注册所有对外服务的端点。
func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	if cfg.Logger != nil {
		r.Use(dzmiddleware.RequestLogger(cfg.Logger))
	}
	r.Use(chimiddleware.Recoverer)
	r.Use(dzmiddleware.CORS(cfg.CORSAllowedOrigins))
	// 预览与事件流不计入限流。
	r.Use(dzmiddleware.RateLimit(cfg.RateLimitRequests, cfg.RateLimitWindow,
		"/healthz", "/metrics", "/previews/", "/api/session/events"))

	var reg prometheus.Registerer = prometheus.DefaultRegisterer
	var gatherer prometheus.Gatherer = prometheus.DefaultGatherer
	if cfg.Registry != nil {
		reg, gatherer = cfg.Registry, cfg.Registry
	}
	r.Use(dzmiddleware.Metrics(reg))

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	r.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))

	if cfg.Handler != nil {
		r.Handle("/previews/*", cfg.Handler.session.Previews())
		r.Route("/api", cfg.Handler.RegisterRoutes)
	}

	return r
}
