package endpoint_test

import (
	"context"
	"net/http/httptest"
	"testing"

	"github.com/Renedz21/client/internal/endpoint"
	"github.com/Renedz21/client/internal/gallery"
	"github.com/Renedz21/client/internal/storage/local"
	"github.com/Renedz21/client/internal/transport/httpx"
	"github.com/Renedz21/client/internal/upload"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// 上传客户端与参考接口端到端联调：上传成功后图库缓存失效并能查到新图片。
func TestUploadQueueAgainstEndpoint(t *testing.T) {
	var srv *httptest.Server
	svc := endpoint.NewImageService(endpoint.NewMemoryCatalog(), local.New(t.TempDir(), ""), func(id string) string {
		return srv.URL + "/api/images/" + id + "/raw"
	})
	srv = httptest.NewServer(endpoint.NewRouter(endpoint.RouterConfig{
		Handler:  endpoint.NewImageHandler(svc, 5*1024*1024, nil),
		Registry: prometheus.NewRegistry(),
	}))
	defer srv.Close()

	apiBase := srv.URL + "/api"
	cache := gallery.NewCache(gallery.NewClient(apiBase, nil), 0)

	before, err := cache.Images(context.Background())
	require.NoError(t, err)
	assert.Empty(t, before.Data)

	reg := upload.NewRegistry(upload.RegistryConfig{Previews: upload.NewMemoryPreviews("/previews")})
	_, err = reg.Ingest([]upload.RawFile{
		{Name: "a.gif", Type: "image/gif", Data: []byte("GIF89a\x01\x00\x01\x00\x00\x00\x00;")},
		{Name: "b.gif", Type: "image/gif", Data: []byte("GIF89a\x02\x00\x02\x00\x00\x00\x00;")},
	})
	require.NoError(t, err)

	var succeeded []string
	queue := upload.NewQueue(upload.QueueConfig{
		Registry:    reg,
		Transport:   httpx.New(apiBase, nil),
		Invalidator: cache,
		Hooks: upload.Hooks{
			OnSuccess: func(id string, _ upload.ServerFile) { succeeded = append(succeeded, id) },
		},
		Concurrency: 1,
	})

	outcomes := queue.UploadAll(context.Background())
	require.Len(t, outcomes, 2)
	for _, o := range outcomes {
		require.NoError(t, o.Err)
	}
	assert.Len(t, succeeded, 2)
	assert.Equal(t, 2, reg.Count(func(e upload.FileEntry) bool { return e.Status == upload.StatusUploaded }))

	after, err := cache.Images(context.Background())
	require.NoError(t, err)
	require.Len(t, after.Data, 2)
	assert.Equal(t, "b.gif", after.Data[0].OriginalName)
	require.NotNil(t, after.Data[0].Dimensions)
	assert.Equal(t, 2, after.Data[0].Dimensions.Width)
	assert.Equal(t, int64(2), cache.Invalidations())
}
