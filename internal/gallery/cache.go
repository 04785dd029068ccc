package gallery

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

const imagesKey = "images"

// Fetcher 由 *Client 实现，测试中可替换。
type Fetcher interface {
	FetchImages(ctx context.Context) (Images, error)
}

// Cache 按查询键缓存图库结果；上传成功后调用 Invalidate 使下一次读取重新请求。
type Cache struct {
	fetcher Fetcher
	lru     *expirable.LRU[string, Images]

	// 串行化回源，避免并发读取在失效后重复请求。
	fetchMu sync.Mutex

	invalidations atomic.Int64
	fetches       atomic.Int64
}

// NewCache ttl 为 0 时条目不过期，只靠 Invalidate 失效。
func NewCache(fetcher Fetcher, ttl time.Duration) *Cache {
	return &Cache{
		fetcher: fetcher,
		lru:     expirable.NewLRU[string, Images](8, nil, ttl),
	}
}

func (c *Cache) Images(ctx context.Context) (Images, error) {
	if images, ok := c.lru.Get(imagesKey); ok {
		return images, nil
	}

	c.fetchMu.Lock()
	defer c.fetchMu.Unlock()
	if images, ok := c.lru.Get(imagesKey); ok {
		return images, nil
	}

	gen := c.invalidations.Load()
	images, err := c.fetcher.FetchImages(ctx)
	c.fetches.Add(1)
	if err != nil {
		return Images{}, err
	}
	// 回源期间发生过失效，结果可能已经过时，不写入缓存。
	if c.invalidations.Load() == gen {
		c.lru.Add(imagesKey, images)
	}
	return images, nil
}

// Invalidate 实现 upload.Invalidator。
func (c *Cache) Invalidate() {
	c.invalidations.Add(1)
	c.lru.Remove(imagesKey)
}

func (c *Cache) Invalidations() int64 { return c.invalidations.Load() }

func (c *Cache) Fetches() int64 { return c.fetches.Load() }
