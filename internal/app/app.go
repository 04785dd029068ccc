// Package app 根据配置装配存储、传输与图库等组件，供各个命令复用。
package app

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"

	"github.com/Renedz21/client/internal/config"
	"github.com/Renedz21/client/internal/gallery"
	"github.com/Renedz21/client/internal/storage"
	"github.com/Renedz21/client/internal/storage/awss3"
	"github.com/Renedz21/client/internal/storage/local"
	"github.com/Renedz21/client/internal/storage/s3"
	"github.com/Renedz21/client/internal/transport/httpx"
	"github.com/Renedz21/client/internal/transport/objectstore"
	"github.com/Renedz21/client/internal/upload"
)

// OpenStorage 按 STORAGE_DRIVER 创建存储后端。
func OpenStorage(ctx context.Context, cfg *config.Config) (storage.Storage, error) {
	switch cfg.StorageDriver {
	case "local":
		if err := cfg.EnsureStorageDir(); err != nil {
			return nil, err
		}
		return local.New(cfg.StorageDir, cfg.PublicBaseURL), nil
	case "s3":
		store, err := s3.New(ctx, s3.Config{
			Endpoint:      cfg.S3Endpoint,
			AccessKey:     cfg.S3AccessKey,
			SecretKey:     cfg.S3SecretKey,
			Bucket:        cfg.S3Bucket,
			Region:        cfg.S3Region,
			UseSSL:        cfg.S3UseSSL,
			PathStyle:     cfg.S3PathStyle,
			PublicBaseURL: cfg.PublicBaseURL,
		})
		if err != nil {
			return nil, fmt.Errorf("open s3 storage: %w", err)
		}
		return store, nil
	case "aws":
		store, err := awss3.New(ctx, awss3.Config{
			Endpoint:      awsEndpoint(cfg),
			AccessKey:     cfg.S3AccessKey,
			SecretKey:     cfg.S3SecretKey,
			Bucket:        cfg.S3Bucket,
			Region:        cfg.S3Region,
			PathStyle:     cfg.S3PathStyle,
			PublicBaseURL: cfg.PublicBaseURL,
		})
		if err != nil {
			return nil, fmt.Errorf("open aws storage: %w", err)
		}
		return store, nil
	default:
		return nil, fmt.Errorf("unknown storage driver %q", cfg.StorageDriver)
	}
}

// awsEndpoint 把 MinIO 风格的 host:port 端点补全为 URL；
// 未显式设置 S3_ENDPOINT 时的默认值只对 MinIO 有意义，这里视为使用 AWS 默认端点。
func awsEndpoint(cfg *config.Config) string {
	endpoint := cfg.S3Endpoint
	if endpoint == "" || endpoint == "localhost:9000" && cfg.S3AccessKey == "minioadmin" {
		return ""
	}
	if u, err := url.Parse(endpoint); err == nil && u.Scheme != "" && u.Host != "" {
		return endpoint
	}
	scheme := "http"
	if cfg.S3UseSSL {
		scheme = "https"
	}
	return scheme + "://" + endpoint
}

// NewTransport 按 UPLOAD_TRANSPORT 选择 HTTP 上传或直写对象存储。
func NewTransport(ctx context.Context, cfg *config.Config, logger *slog.Logger) (upload.Transport, error) {
	switch cfg.UploadTransport {
	case "store":
		store, err := OpenStorage(ctx, cfg)
		if err != nil {
			return nil, err
		}
		logger.Info("uploading directly to storage", "driver", cfg.StorageDriver)
		return objectstore.New(store, "uploads"), nil
	default:
		logger.Info("uploading over http", "api", cfg.APIBaseURL)
		return httpx.New(cfg.APIBaseURL, nil), nil
	}
}

// NewGallery 创建带缓存的图库查询。
func NewGallery(cfg *config.Config) *gallery.Cache {
	return gallery.NewCache(gallery.NewClient(cfg.APIBaseURL, httpx.DefaultHTTPClient()), cfg.GalleryTTL)
}
