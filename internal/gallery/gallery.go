// Package gallery 查询远端已上传图片列表，并在本地做带过期时间的缓存。
package gallery

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/Renedz21/client/internal/upload"
)

const maxErrorBodySize = 64 * 1024

type Dimensions struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

type ResponsiveURLs struct {
	Thumbnail string `json:"thumbnail"`
	Small     string `json:"small"`
	Medium    string `json:"medium"`
	Large     string `json:"large"`
	Original  string `json:"original"`
}

// Image 是图库中的一张图片，只有 URL 与 PublicID 必填。
type Image struct {
	URL            string          `json:"url"`
	PublicID       string          `json:"publicId"`
	OriginalName   string          `json:"originalName,omitempty"`
	Size           int64           `json:"size,omitempty"`
	Dimensions     *Dimensions     `json:"dimensions,omitempty"`
	Format         string          `json:"format,omitempty"`
	OptimizedSize  int64           `json:"optimizedSize,omitempty"`
	ResponsiveURLs *ResponsiveURLs `json:"responsiveUrls,omitempty"`
}

// Images 对应接口返回的 {"data": [...]}。
type Images struct {
	Data []Image `json:"data"`
}

// Client 请求 GET {baseURL}/images。
type Client struct {
	baseURL string
	http    *http.Client
}

func NewClient(baseURL string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Client{baseURL: strings.TrimRight(baseURL, "/"), http: httpClient}
}

func (c *Client) FetchImages(ctx context.Context) (Images, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/images", nil)
	if err != nil {
		return Images{}, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return Images{}, ctx.Err()
		}
		return Images{}, &upload.TransportError{Message: "Network error occurred", Err: err}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 32<<20))
	if err != nil {
		return Images{}, &upload.TransportError{Message: "Network error occurred", Status: resp.StatusCode, Err: err}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body := raw
		if len(body) > maxErrorBodySize {
			body = body[:maxErrorBodySize]
		}
		return Images{}, &upload.TransportError{
			Message: fmt.Sprintf("Failed to fetch images with status %d", resp.StatusCode),
			Status:  resp.StatusCode,
			Body:    string(body),
		}
	}

	images, err := decodeImages(raw)
	if err != nil {
		return Images{}, &upload.TransportError{Message: "Invalid response format", Status: resp.StatusCode, Err: err}
	}
	return images, nil
}

func decodeImages(raw []byte) (Images, error) {
	var images Images
	if err := json.Unmarshal(raw, &images); err != nil {
		return Images{}, fmt.Errorf("decode images: %w", err)
	}
	if images.Data == nil {
		return Images{}, errors.New("response is missing data")
	}
	for i, img := range images.Data {
		if img.URL == "" || img.PublicID == "" {
			return Images{}, fmt.Errorf("image %d is missing url or publicId", i)
		}
	}
	return images, nil
}
