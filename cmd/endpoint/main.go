package main

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/Renedz21/client/internal/app"
	"github.com/Renedz21/client/internal/config"
	"github.com/Renedz21/client/internal/endpoint"
	"github.com/Renedz21/client/internal/logging"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	logger := logging.New(cfg.LogLevel, cfg.LogFormat).With("component", "endpoint")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := app.OpenStorage(ctx, cfg)
	if err != nil {
		logger.Error("初始化存储失败", "driver", cfg.StorageDriver, "error", err)
		os.Exit(1)
	}

	rawBase := "http://localhost:" + cfg.EndpointPort + "/api"
	if u, err := url.Parse(cfg.APIBaseURL); err == nil && u.Port() == cfg.EndpointPort {
		rawBase = strings.TrimRight(cfg.APIBaseURL, "/")
	}
	svc := endpoint.NewImageService(endpoint.NewMemoryCatalog(), store, func(id string) string {
		return rawBase + "/images/" + id + "/raw"
	})

	router := endpoint.NewRouter(endpoint.RouterConfig{
		Handler:            endpoint.NewImageHandler(svc, cfg.UploadRules().MaxSizeBytes, logger),
		Logger:             logger,
		CORSAllowedOrigins: cfg.CORSAllowedOrigins,
		RateLimitRequests:  cfg.RateLimitRequests,
		RateLimitWindow:    cfg.RateLimitWindow,
	})

	srv := &http.Server{
		Addr:              ":" + cfg.EndpointPort,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       120 * time.Second,
		Handler:           router,
	}

	logger.Info("参考接口监听端口", "addr", srv.Addr, "driver", cfg.StorageDriver)

	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("监听失败", "error", err)
			stop()
		}
	}()

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("优雅关闭失败", "error", err)
	}
	logger.Info("服务已停止")
}
