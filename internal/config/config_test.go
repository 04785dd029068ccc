package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var configKeys = []string{
	"PORT", "ENDPOINT_PORT", "API_BASE_URL", "UPLOAD_ACCEPT", "UPLOAD_MAX_SIZE_MB", "UPLOAD_MAX_FILES",
	"UPLOAD_MULTIPLE", "UPLOAD_CONCURRENCY", "UPLOAD_TIMEOUT", "UPLOAD_TRANSPORT",
	"GALLERY_TTL", "CORS_ALLOWED_ORIGINS", "RATE_LIMIT_REQUESTS", "RATE_LIMIT_WINDOW",
	"LOG_LEVEL", "LOG_FORMAT", "STORAGE_DRIVER", "STORAGE_DIR", "PUBLIC_BASE_URL",
	"S3_ENDPOINT", "S3_BUCKET",
}

// clearEnv 清空相关变量，t.Setenv 在测试结束后恢复原值。
func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range configKeys {
		t.Setenv(key, "")
		require.NoError(t, os.Unsetenv(key))
	}
}

func missingEnvFile(t *testing.T) string {
	return filepath.Join(t.TempDir(), "missing.env")
}

func TestLoad_Defaults(t *testing.T) {
	clearEnv(t)

	cfg, err := Load(missingEnvFile(t))
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.HTTPPort)
	assert.Equal(t, "4000", cfg.EndpointPort)
	assert.Equal(t, "http://localhost:4000/api", cfg.APIBaseURL)
	assert.Equal(t, []string{"image/svg+xml", "image/png", "image/jpeg", "image/jpg", "image/gif"}, cfg.UploadAccept)
	assert.True(t, cfg.UploadMultiple)
	assert.Zero(t, cfg.UploadConcurrency)
	assert.Zero(t, cfg.UploadTimeout)
	assert.Equal(t, "http", cfg.UploadTransport)
	assert.Equal(t, "local", cfg.StorageDriver)

	rules := cfg.UploadRules()
	assert.Equal(t, int64(5*1024*1024), rules.MaxSizeBytes)
	assert.Equal(t, 50, rules.MaxFiles)
}

func TestLoad_Overrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("UPLOAD_ACCEPT", "image/*, .pdf")
	t.Setenv("UPLOAD_MAX_SIZE_MB", "10")
	t.Setenv("UPLOAD_MULTIPLE", "false")
	t.Setenv("UPLOAD_CONCURRENCY", "3")
	t.Setenv("UPLOAD_TIMEOUT", "45s")
	t.Setenv("UPLOAD_TRANSPORT", "STORE")
	t.Setenv("API_BASE_URL", "http://api.test/api/")
	t.Setenv("STORAGE_DRIVER", "aws")

	cfg, err := Load(missingEnvFile(t))
	require.NoError(t, err)

	assert.Equal(t, []string{"image/*", ".pdf"}, cfg.UploadAccept)
	assert.False(t, cfg.UploadMultiple)
	assert.Equal(t, 3, cfg.UploadConcurrency)
	assert.Equal(t, 45*time.Second, cfg.UploadTimeout)
	assert.Equal(t, "store", cfg.UploadTransport)
	assert.Equal(t, "http://api.test/api", cfg.APIBaseURL)
	assert.Equal(t, int64(10*1024*1024), cfg.UploadRules().MaxSizeBytes)
	assert.NoError(t, cfg.EnsureStorageDir(), "non-local drivers skip the directory")
}

func TestLoad_InvalidValues(t *testing.T) {
	cases := map[string]string{
		"UPLOAD_MAX_FILES":   "many",
		"UPLOAD_CONCURRENCY": "-1",
		"UPLOAD_TIMEOUT":     "soon",
		"UPLOAD_TRANSPORT":   "ftp",
		"STORAGE_DRIVER":     "gcs",
	}
	for key, value := range cases {
		t.Run(key, func(t *testing.T) {
			clearEnv(t)
			t.Setenv(key, value)
			_, err := Load(missingEnvFile(t))
			assert.Error(t, err)
		})
	}
}

func TestLoad_DotEnvFile(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(path, []byte("PORT=9999\nUPLOAD_MAX_FILES=3\n"), 0o600))
	t.Cleanup(func() {
		os.Unsetenv("PORT")
		os.Unsetenv("UPLOAD_MAX_FILES")
	})

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "9999", cfg.HTTPPort)
	assert.Equal(t, 3, cfg.UploadMaxFiles)
}

func TestEnsureStorageDir(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested", "data")
	cfg := &Config{StorageDriver: "local", StorageDir: dir}

	require.NoError(t, cfg.EnsureStorageDir())
	info, err := os.Stat(dir)
	require.NoError(t, err)
	assert.True(t, info.IsDir())

	file := filepath.Join(t.TempDir(), "file")
	require.NoError(t, os.WriteFile(file, nil, 0o600))
	assert.Error(t, (&Config{StorageDriver: "local", StorageDir: file}).EnsureStorageDir())
}

func TestParseBoolEnv(t *testing.T) {
	t.Setenv("FLAG", "no")
	assert.False(t, parseBoolEnv("FLAG", true))
	t.Setenv("FLAG", "maybe")
	assert.True(t, parseBoolEnv("FLAG", true))
}
