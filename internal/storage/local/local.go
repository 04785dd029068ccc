package local

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"path/filepath"

	"github.com/Renedz21/client/internal/storage"
)

// Store 将对象写入本地文件系统。
type Store struct {
	BaseDir string
	BaseURL string
}

func New(baseDir, baseURL string) *Store {
	return &Store{BaseDir: baseDir, BaseURL: baseURL}
}

func (s *Store) path(key string) (string, string, error) {
	if s == nil {
		return "", "", fmt.Errorf("local store uninitialized")
	}
	cleanKey, err := storage.CleanKey(key)
	if err != nil {
		return "", "", err
	}
	return cleanKey, filepath.Join(s.BaseDir, filepath.FromSlash(cleanKey)), nil
}

// Write 先写临时文件再原子重命名，避免读到半截内容。
func (s *Store) Write(ctx context.Context, obj storage.Object, r io.Reader) (storage.Location, error) {
	key, targetPath, err := s.path(obj.Key)
	if err != nil {
		return storage.Location{}, err
	}
	if err := ctx.Err(); err != nil {
		return storage.Location{}, err
	}

	if err := os.MkdirAll(filepath.Dir(targetPath), 0o755); err != nil {
		return storage.Location{}, fmt.Errorf("ensure dir: %w", err)
	}

	tempPath := targetPath + ".tmp"
	file, err := os.Create(tempPath)
	if err != nil {
		return storage.Location{}, fmt.Errorf("create temp file: %w", err)
	}

	if _, err := io.Copy(file, contextReader{ctx: ctx, r: r}); err != nil {
		file.Close()
		os.Remove(tempPath)
		return storage.Location{}, fmt.Errorf("write file: %w", err)
	}
	if err := file.Sync(); err != nil {
		file.Close()
		os.Remove(tempPath)
		return storage.Location{}, fmt.Errorf("sync file: %w", err)
	}
	if err := file.Close(); err != nil {
		os.Remove(tempPath)
		return storage.Location{}, fmt.Errorf("close file: %w", err)
	}
	if err := os.Rename(tempPath, targetPath); err != nil {
		return storage.Location{}, fmt.Errorf("rename temp file: %w", err)
	}

	loc := storage.Location{Key: key, Path: targetPath}
	if s.BaseURL != "" {
		if u, err := url.JoinPath(s.BaseURL, key); err == nil {
			loc.URL = u
		}
	}
	return loc, nil
}

// Read 打开并返回指定 key 对应的文件内容。
func (s *Store) Read(ctx context.Context, key string) (io.ReadCloser, error) {
	_, targetPath, err := s.path(key)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	file, err := os.Open(targetPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%s: %w", key, storage.ErrNotFound)
		}
		return nil, fmt.Errorf("open file: %w", err)
	}
	return file, nil
}

func (s *Store) Delete(ctx context.Context, key string) error {
	_, targetPath, err := s.path(key)
	if err != nil {
		return err
	}
	if err := os.Remove(targetPath); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("%s: %w", key, storage.ErrNotFound)
		}
		return fmt.Errorf("remove file: %w", err)
	}
	return nil
}

// contextReader 在上下文取消后中断拷贝。
type contextReader struct {
	ctx context.Context
	r   io.Reader
}

func (c contextReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	return c.r.Read(p)
}
