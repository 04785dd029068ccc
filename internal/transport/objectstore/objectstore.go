// Package objectstore 把文件直接写入对象存储，作为 HTTP 上传之外的另一种传输方式。
package objectstore

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"path"
	"strings"

	"github.com/Renedz21/client/internal/storage"
	"github.com/Renedz21/client/internal/transport"
	"github.com/Renedz21/client/internal/upload"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"
)

// Transport 实现 upload.Transport。
type Transport struct {
	writer storage.Writer
	prefix string
}

// New prefix 为空时对象直接放在桶根目录下。
func New(writer storage.Writer, prefix string) *Transport {
	return &Transport{writer: writer, prefix: strings.Trim(prefix, "/")}
}

func (t *Transport) Send(ctx context.Context, file upload.LocalFile, onProgress func(upload.Progress)) (upload.ServerFile, error) {
	if t == nil || t.writer == nil {
		return upload.ServerFile{}, &upload.TransportError{Message: "Storage is not configured"}
	}

	contentType := file.Type
	if contentType == "" {
		contentType = upload.DetectType(upload.RawFile{Name: file.Name, Data: file.Data})
	}

	id := uuid.NewString()
	key := objectKey(t.prefix, id, file.Name, contentType)
	size := int64(len(file.Data))

	// bytes.Reader 可 Seek，SDK 计算校验和时会回绕，进度随之重置。
	body := transport.NewProgressReader(bytes.NewReader(file.Data), size, onProgress)

	loc, err := t.writer.Write(ctx, storage.Object{Key: key, ContentType: contentType, Size: size}, body)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			msg := "Upload was aborted"
			if errors.Is(ctxErr, context.DeadlineExceeded) {
				msg = "Upload timed out"
			}
			return upload.ServerFile{}, &upload.TransportError{Message: msg, Err: ctxErr}
		}
		return upload.ServerFile{}, &upload.TransportError{Message: "Storage write failed", Err: err}
	}

	url := loc.URL
	if url == "" {
		url = loc.Path
	}
	return upload.ServerFile{
		ID:   id,
		URL:  url,
		Name: file.Name,
		Size: size,
		Type: contentType,
	}, nil
}

// objectKey 优先沿用原文件扩展名，没有时按内容类型推断。
func objectKey(prefix, id, name, contentType string) string {
	ext := strings.ToLower(path.Ext(name))
	if ext == "" && contentType != "" {
		if mt := mimetype.Lookup(contentType); mt != nil {
			ext = mt.Extension()
		}
	}
	key := id + ext
	if prefix != "" {
		key = fmt.Sprintf("%s/%s", prefix, key)
	}
	return key
}
