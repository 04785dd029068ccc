package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/Renedz21/client/internal/upload"

	"github.com/joho/godotenv"
)

const (
	defaultAccept       = "image/svg+xml,image/png,image/jpeg,image/jpg,image/gif"
	defaultMaxSizeMB    = 5
	defaultMaxFiles     = 50
	defaultAPIBaseURL   = "http://localhost:4000/api"
	defaultGalleryTTL   = 30 * time.Second
	defaultStorageDir   = "./data"
	defaultHTTPPort     = "8080"
	defaultEndpointPort = "4000"
	defaultCORSOrigins  = "http://localhost:5173"
)

// Config 聚合服务与命令行启动需要的配置。
type Config struct {
	HTTPPort     string
	EndpointPort string
	APIBaseURL   string

	// 上传规则
	UploadAccept      []string
	UploadMaxSizeMB   int
	UploadMaxFiles    int
	UploadMultiple    bool
	UploadConcurrency int           // 0 表示不限制
	UploadTimeout     time.Duration // 0 表示不设超时
	UploadTransport   string        // "http" 或 "store"
	GalleryTTL        time.Duration

	CORSAllowedOrigins []string
	RateLimitRequests  int
	RateLimitWindow    time.Duration

	LogLevel  string
	LogFormat string

	// 存储配置
	StorageDriver string // "local"、"s3"（MinIO 客户端）或 "aws"
	StorageDir    string
	PublicBaseURL string
	S3Endpoint    string
	S3AccessKey   string
	S3SecretKey   string
	S3Bucket      string
	S3Region      string
	S3UseSSL      bool
	S3PathStyle   bool
}

// Load 先读取 .env（不存在时忽略），再从环境变量加载配置并填充默认值。
func Load(envFiles ...string) (*Config, error) {
	if err := loadDotEnv(envFiles...); err != nil {
		return nil, err
	}

	maxSizeMB, err := parseIntEnv("UPLOAD_MAX_SIZE_MB", defaultMaxSizeMB)
	if err != nil {
		return nil, err
	}
	maxFiles, err := parseIntEnv("UPLOAD_MAX_FILES", defaultMaxFiles)
	if err != nil {
		return nil, err
	}
	concurrency, err := parseNonNegativeIntEnv("UPLOAD_CONCURRENCY", 0)
	if err != nil {
		return nil, err
	}
	timeout, err := parseDurationEnv("UPLOAD_TIMEOUT", 0)
	if err != nil {
		return nil, err
	}
	galleryTTL, err := parseDurationEnv("GALLERY_TTL", defaultGalleryTTL)
	if err != nil {
		return nil, err
	}
	rateLimitRequests, err := parseIntEnv("RATE_LIMIT_REQUESTS", 120)
	if err != nil {
		return nil, err
	}
	rateLimitWindow, err := parseDurationEnv("RATE_LIMIT_WINDOW", time.Minute)
	if err != nil {
		return nil, err
	}

	transport := strings.ToLower(envOrDefault("UPLOAD_TRANSPORT", "http"))
	if transport != "http" && transport != "store" {
		return nil, fmt.Errorf("UPLOAD_TRANSPORT 取值无效: %q", transport)
	}
	driver := strings.ToLower(envOrDefault("STORAGE_DRIVER", "local"))
	switch driver {
	case "local", "s3", "aws":
	default:
		return nil, fmt.Errorf("STORAGE_DRIVER 取值无效: %q", driver)
	}

	accept := upload.ParseAccept(envOrDefault("UPLOAD_ACCEPT", defaultAccept))

	return &Config{
		HTTPPort:           envOrDefault("PORT", defaultHTTPPort),
		EndpointPort:       envOrDefault("ENDPOINT_PORT", defaultEndpointPort),
		APIBaseURL:         strings.TrimRight(envOrDefault("API_BASE_URL", defaultAPIBaseURL), "/"),
		UploadAccept:       accept,
		UploadMaxSizeMB:    maxSizeMB,
		UploadMaxFiles:     maxFiles,
		UploadMultiple:     parseBoolEnv("UPLOAD_MULTIPLE", true),
		UploadConcurrency:  concurrency,
		UploadTimeout:      timeout,
		UploadTransport:    transport,
		GalleryTTL:         galleryTTL,
		CORSAllowedOrigins: parseList(envOrDefault("CORS_ALLOWED_ORIGINS", defaultCORSOrigins)),
		RateLimitRequests:  rateLimitRequests,
		RateLimitWindow:    rateLimitWindow,
		LogLevel:           envOrDefault("LOG_LEVEL", "info"),
		LogFormat:          envOrDefault("LOG_FORMAT", "text"),
		StorageDriver:      driver,
		StorageDir:         envOrDefault("STORAGE_DIR", defaultStorageDir),
		PublicBaseURL:      os.Getenv("PUBLIC_BASE_URL"),
		S3Endpoint:         envOrDefault("S3_ENDPOINT", "localhost:9000"),
		S3AccessKey:        envOrDefault("S3_ACCESS_KEY", "minioadmin"),
		S3SecretKey:        envOrDefault("S3_SECRET_KEY", "minioadmin"),
		S3Bucket:           envOrDefault("S3_BUCKET", "dropzone"),
		S3Region:           envOrDefault("S3_REGION", "us-east-1"),
		S3UseSSL:           parseBoolEnv("S3_USE_SSL", false),
		S3PathStyle:        parseBoolEnv("S3_PATH_STYLE", true),
	}, nil
}

// UploadRules 把配置转换为校验规则。
func (c *Config) UploadRules() upload.Rules {
	return upload.Rules{
		Accept:       c.UploadAccept,
		MaxSizeBytes: int64(c.UploadMaxSizeMB) * 1024 * 1024,
		MaxFiles:     c.UploadMaxFiles,
		Multiple:     c.UploadMultiple,
	}
}

// EnsureStorageDir 只在使用本地存储时需要。
func (c *Config) EnsureStorageDir() error {
	if c.StorageDriver != "local" {
		return nil
	}
	if err := ensureDir(c.StorageDir); err != nil {
		return fmt.Errorf("确保存储目录失败: %w", err)
	}
	return nil
}

func loadDotEnv(files ...string) error {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, file := range files {
		if err := godotenv.Load(file); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return fmt.Errorf("读取 %s 失败: %w", file, err)
		}
	}
	return nil
}

func ensureDir(path string) error {
	info, err := os.Stat(path)
	if err == nil {
		if !info.IsDir() {
			return fmt.Errorf("路径 %s 已存在但不是目录", path)
		}
		return nil
	}

	if os.IsNotExist(err) {
		return os.MkdirAll(path, 0o755)
	}

	return err
}

func parseList(raw string) []string {
	if raw == "" {
		return nil
	}

	items := strings.Split(raw, ",")
	out := make([]string, 0, len(items))
	for _, item := range items {
		trimmed := strings.TrimSpace(item)
		if trimmed == "" {
			continue
		}
		out = append(out, trimmed)
	}
	return out
}

func parseIntEnv(key string, defaultValue int) (int, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return defaultValue, nil
	}

	value, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("解析 %s 失败: %w", key, err)
	}
	if value <= 0 {
		return defaultValue, nil
	}
	return value, nil
}

// parseNonNegativeIntEnv 与 parseIntEnv 不同，0 是合法值。
func parseNonNegativeIntEnv(key string, defaultValue int) (int, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return defaultValue, nil
	}

	value, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("解析 %s 失败: %w", key, err)
	}
	if value < 0 {
		return 0, fmt.Errorf("%s 不能为负数", key)
	}
	return value, nil
}

func parseDurationEnv(key string, defaultValue time.Duration) (time.Duration, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return defaultValue, nil
	}

	value, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("解析 %s 失败: %w", key, err)
	}
	if value < 0 {
		return defaultValue, nil
	}
	return value, nil
}

func parseBoolEnv(key string, defaultValue bool) bool {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return defaultValue
	}
	switch strings.ToLower(raw) {
	case "true", "1", "yes":
		return true
	case "false", "0", "no":
		return false
	default:
		return defaultValue
	}
}

func envOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
