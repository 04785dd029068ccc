package endpoint

import (
	"context"
	"errors"
	"sync"
	"time"
)

var ErrNotFound = errors.New("image not found")

// ImageRecord 是已存储图片的元数据。
type ImageRecord struct {
	ID           string    `json:"id"`
	Key          string    `json:"-"`
	OriginalName string    `json:"originalName"`
	MimeType     string    `json:"type"`
	SizeBytes    int64     `json:"size"`
	URL          string    `json:"url"`
	Format       string    `json:"format,omitempty"`
	Width        int       `json:"width,omitempty"`
	Height       int       `json:"height,omitempty"`
	CreatedAt    time.Time `json:"createdAt"`
}

// Catalog 统一图片元数据的存取接口。
type Catalog interface {
	Create(ctx context.Context, record *ImageRecord) (*ImageRecord, error)
	GetByID(ctx context.Context, id string) (*ImageRecord, error)
	List(ctx context.Context) ([]ImageRecord, error)
}

// MemoryCatalog 进程内目录，按写入顺序的逆序（最新在前）列出。
type MemoryCatalog struct {
	mu      sync.RWMutex
	records map[string]*ImageRecord
	order   []string
}

func NewMemoryCatalog() *MemoryCatalog {
	return &MemoryCatalog{records: make(map[string]*ImageRecord)}
}

func (c *MemoryCatalog) Create(ctx context.Context, record *ImageRecord) (*ImageRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if record == nil || record.ID == "" {
		return nil, errors.New("record id is required")
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if _, exists := c.records[record.ID]; exists {
		return nil, errors.New("duplicate record id")
	}
	stored := *record
	c.records[record.ID] = &stored
	c.order = append(c.order, record.ID)
	out := stored
	return &out, nil
}

func (c *MemoryCatalog) GetByID(ctx context.Context, id string) (*ImageRecord, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	record, ok := c.records[id]
	if !ok {
		return nil, ErrNotFound
	}
	out := *record
	return &out, nil
}

func (c *MemoryCatalog) List(ctx context.Context) ([]ImageRecord, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]ImageRecord, 0, len(c.order))
	for i := len(c.order) - 1; i >= 0; i-- {
		out = append(out, *c.records[c.order[i]])
	}
	return out, nil
}
