package upload

import (
	"bytes"
	"net/http"
	"path"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// Previews 为本地文件分配可撤销的预览句柄。
type Previews interface {
	Acquire(file RawFile) (*PreviewHandle, error)
}

// PreviewHandle 由唯一的条目持有。释放只能由注册表触发且只生效一次。
type PreviewHandle struct {
	url     string
	once    sync.Once
	release func()
}

// NewPreviewHandle 供 Previews 实现构造句柄。
func NewPreviewHandle(url string, release func()) *PreviewHandle {
	return &PreviewHandle{url: url, release: release}
}

func (h *PreviewHandle) URL() string {
	if h == nil {
		return ""
	}
	return h.url
}

func (h *PreviewHandle) close() {
	if h == nil {
		return
	}
	h.once.Do(func() {
		if h.release != nil {
			h.release()
		}
	})
}

type previewBlob struct {
	name        string
	contentType string
	data        []byte
	created     time.Time
}

// MemoryPreviews 在内存中保存预览内容，并以 HTTP 形式提供，相当于浏览器的 blob URL。
type MemoryPreviews struct {
	basePath string

	mu    sync.RWMutex
	blobs map[string]previewBlob

	acquired atomic.Int64
	released atomic.Int64
}

// NewMemoryPreviews basePath 形如 "/previews"。
func NewMemoryPreviews(basePath string) *MemoryPreviews {
	return &MemoryPreviews{
		basePath: "/" + strings.Trim(basePath, "/"),
		blobs:    make(map[string]previewBlob),
	}
}

func (m *MemoryPreviews) Acquire(file RawFile) (*PreviewHandle, error) {
	key := uuid.NewString()

	m.mu.Lock()
	m.blobs[key] = previewBlob{
		name:        file.Name,
		contentType: DetectType(file),
		data:        file.Data,
		created:     time.Now(),
	}
	m.mu.Unlock()
	m.acquired.Add(1)

	return NewPreviewHandle(path.Join(m.basePath, key), func() {
		m.mu.Lock()
		delete(m.blobs, key)
		m.mu.Unlock()
		m.released.Add(1)
	}), nil
}

// Live 当前尚未释放的句柄数。
func (m *MemoryPreviews) Live() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.blobs)
}

func (m *MemoryPreviews) Acquired() int64 { return m.acquired.Load() }
func (m *MemoryPreviews) Released() int64 { return m.released.Load() }

// ServeHTTP 按句柄返回预览内容，已释放的句柄返回 404。
func (m *MemoryPreviews) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	key := path.Base(r.URL.Path)

	m.mu.RLock()
	blob, ok := m.blobs[key]
	m.mu.RUnlock()
	if !ok {
		http.NotFound(w, r)
		return
	}

	if blob.contentType != "" {
		w.Header().Set("Content-Type", blob.contentType)
	}
	w.Header().Set("Cache-Control", "no-store")
	http.ServeContent(w, r, blob.name, blob.created, bytes.NewReader(blob.data))
}
