package storage

import (
	"context"
	"errors"
	"io"
	"path"
	"strings"
)

// ErrNotFound 表示对象不存在。
var ErrNotFound = errors.New("storage: object not found")

// Object 描述一次写入的对象元数据。Size 为 -1 表示未知。
type Object struct {
	Key         string
	ContentType string
	Size        int64
}

// Writer 定义对象存储写接口，支持流式写入。
type Writer interface {
	Write(ctx context.Context, obj Object, r io.Reader) (Location, error)
}

// Reader 定义对象存储读接口，支持流式读取。
type Reader interface {
	Read(ctx context.Context, key string) (io.ReadCloser, error)
}

// Deleter 删除对象。
type Deleter interface {
	Delete(ctx context.Context, key string) error
}

// Storage 组合了读写删能力的完整存储接口。
type Storage interface {
	Writer
	Reader
	Deleter
}

// Location 描述已经写入对象的可访问信息。
type Location struct {
	Key  string
	Path string
	URL  string
}

// CleanKey 把 key 规范化为不含前导斜杠的相对路径，拒绝越出根目录。
func CleanKey(key string) (string, error) {
	cleaned := path.Clean("/" + strings.ReplaceAll(key, "\\", "/"))
	cleaned = strings.TrimPrefix(cleaned, "/")
	if cleaned == "" || cleaned == "." {
		return "", errors.New("storage: empty key")
	}
	return cleaned, nil
}
