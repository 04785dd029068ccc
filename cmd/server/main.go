package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Renedz21/client/internal/api"
	"github.com/Renedz21/client/internal/app"
	"github.com/Renedz21/client/internal/config"
	"github.com/Renedz21/client/internal/logging"
	"github.com/Renedz21/client/internal/metrics"
	"github.com/Renedz21/client/internal/upload"

	"github.com/prometheus/client_golang/prometheus"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	logger := logging.New(cfg.LogLevel, cfg.LogFormat)
	logger.Info("配置加载完成，开始启动服务")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	transport, err := app.NewTransport(ctx, cfg, logger)
	if err != nil {
		logger.Error("初始化上传传输失败", "error", err)
		os.Exit(1)
	}

	broker := upload.NewBroker(1024)
	uploads := metrics.NewUploads(prometheus.DefaultRegisterer)
	events, unsubscribe := broker.Subscribe()
	go uploads.Watch(ctx, events)

	session, err := api.NewSession(api.SessionConfig{
		Rules:       cfg.UploadRules(),
		Transport:   transport,
		Broker:      broker,
		Gallery:     app.NewGallery(cfg),
		Logger:      logger,
		Concurrency: cfg.UploadConcurrency,
		Timeout:     cfg.UploadTimeout,
		Hooks: upload.Hooks{
			OnError: func(id string, err error) {
				logger.Debug("upload error hook", "id", id, "error", err)
			},
		},
	})
	if err != nil {
		logger.Error("创建会话失败", "error", err)
		os.Exit(1)
	}

	rules := cfg.UploadRules()
	maxRequest := int64(0)
	if rules.MaxSizeBytes > 0 && rules.MaxFiles > 0 {
		// 超出的文件会被校验拒绝，但仍需完整读入，这里只挡住明显异常的请求体。
		maxRequest = rules.MaxSizeBytes*int64(rules.MaxFiles) + 32<<20
	}

	router := api.NewRouter(api.RouterConfig{
		Handler:            api.NewSessionHandler(session, maxRequest),
		Logger:             logger,
		CORSAllowedOrigins: cfg.CORSAllowedOrigins,
		RateLimitRequests:  cfg.RateLimitRequests,
		RateLimitWindow:    cfg.RateLimitWindow,
	})

	srv := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       120 * time.Second,
		Handler:           router,
	}

	logger.Info("服务监听端口", "addr", srv.Addr)

	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("监听失败", "error", err)
			stop()
		}
	}()

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("优雅关闭失败", "error", err)
	}
	session.Close()
	unsubscribe()

	logger.Info("服务已停止")
}
