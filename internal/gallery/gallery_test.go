package gallery

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Renedz21/client/internal/upload"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var _ upload.Invalidator = (*Cache)(nil)

func TestClient_FetchImages(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/images", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"data":[
			{"url":"http://cdn/a.png","publicId":"a","originalName":"a.png","size":12,
			 "dimensions":{"width":4,"height":3},"format":"png"},
			{"url":"http://cdn/b.gif","publicId":"b"}
		]}`))
	}))
	defer srv.Close()

	images, err := NewClient(srv.URL+"/api", nil).FetchImages(context.Background())

	require.NoError(t, err)
	require.Len(t, images.Data, 2)
	assert.Equal(t, "a.png", images.Data[0].OriginalName)
	assert.Equal(t, &Dimensions{Width: 4, Height: 3}, images.Data[0].Dimensions)
	assert.Nil(t, images.Data[1].Dimensions)
}

func TestClient_FetchImagesErrors(t *testing.T) {
	cases := []struct {
		name    string
		status  int
		body    string
		message string
	}{
		{"server error", http.StatusInternalServerError, "boom", "Failed to fetch images with status 500"},
		{"missing publicId", http.StatusOK, `{"data":[{"url":"u"}]}`, "Invalid response format"},
		{"missing data", http.StatusOK, `{}`, "Invalid response format"},
		{"garbage", http.StatusOK, `nope`, "Invalid response format"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tc.status)
				_, _ = w.Write([]byte(tc.body))
			}))
			defer srv.Close()

			_, err := NewClient(srv.URL, nil).FetchImages(context.Background())

			var te *upload.TransportError
			require.ErrorAs(t, err, &te)
			assert.Equal(t, tc.message, te.Message)
			assert.Equal(t, tc.status, te.Status)
		})
	}
}

type stubFetcher struct {
	calls atomic.Int64
	err   error
}

func (s *stubFetcher) FetchImages(ctx context.Context) (Images, error) {
	n := s.calls.Add(1)
	if s.err != nil {
		return Images{}, s.err
	}
	return Images{Data: make([]Image, n)}, nil
}

func TestCache_InvalidateForcesRefetch(t *testing.T) {
	fetcher := &stubFetcher{}
	cache := NewCache(fetcher, time.Minute)
	ctx := context.Background()

	first, err := cache.Images(ctx)
	require.NoError(t, err)
	second, err := cache.Images(ctx)
	require.NoError(t, err)
	assert.Len(t, first.Data, 1)
	assert.Equal(t, first, second)
	assert.Equal(t, int64(1), fetcher.calls.Load())

	cache.Invalidate()
	third, err := cache.Images(ctx)
	require.NoError(t, err)
	assert.Len(t, third.Data, 2)
	assert.Equal(t, int64(1), cache.Invalidations())
	assert.Equal(t, int64(2), cache.Fetches())
}

func TestCache_ErrorsAreNotCached(t *testing.T) {
	fetcher := &stubFetcher{err: errors.New("down")}
	cache := NewCache(fetcher, time.Minute)

	_, err := cache.Images(context.Background())
	require.Error(t, err)
	_, err = cache.Images(context.Background())
	require.Error(t, err)
	assert.Equal(t, int64(2), fetcher.calls.Load())
}

func TestCache_ExpiresAfterTTL(t *testing.T) {
	fetcher := &stubFetcher{}
	cache := NewCache(fetcher, 20*time.Millisecond)

	_, err := cache.Images(context.Background())
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		_, _ = cache.Images(context.Background())
		return fetcher.calls.Load() >= 2
	}, time.Second, 10*time.Millisecond)
}
