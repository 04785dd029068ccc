package endpoint

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

// RouterConfig 汇总参考接口的路由依赖。
type RouterConfig struct {
	Handler            *ImageHandler
	Logger             *slog.Logger
	CORSAllowedOrigins []string
	RateLimitRequests  int
	RateLimitWindow    time.Duration
	Registry           *prometheus.Registry
}

// NewRouter 把图片接口挂载在 /api 下。
func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	if cfg.Logger != nil {
		r.Use(dzmiddleware.RequestLogger(cfg.Logger))
	}
	r.Use(chimiddleware.Recoverer)
	r.Use(dzmiddleware.CORS(cfg.CORSAllowedOrigins))
	r.Use(dzmiddleware.RateLimit(cfg.RateLimitRequests, cfg.RateLimitWindow, "/healthz", "/metrics"))

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
		r.Route("/api", cfg.Handler.RegisterRoutes)
	}
	return r
}
