// Package httpx 通过 multipart/form-data POST 把文件上传到远端 API。
package httpx

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strings"
	"time"

	"github.com/Renedz21/client/internal/transport"
	"github.com/Renedz21/client/internal/upload"
)

const (
	uploadPath       = "/images/upload"
	fileField        = "file"
	maxErrorBodySize = 64 * 1024
)

// Client 实现 upload.Transport。
type Client struct {
	baseURL string
	http    *http.Client
}

// New baseURL 形如 "http://localhost:4000/api"；httpClient 为 nil 时使用默认客户端。
// 引擎本身不设超时，超时由上传队列的配置决定。
func New(baseURL string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = DefaultHTTPClient()
	}
	return &Client{baseURL: strings.TrimRight(baseURL, "/"), http: httpClient}
}

// Send 发送一次上传请求，不做重试。
func (c *Client) Send(ctx context.Context, file upload.LocalFile, onProgress func(upload.Progress)) (upload.ServerFile, error) {
	body, contentType, err := encodeMultipart(file)
	if err != nil {
		return upload.ServerFile{}, &upload.TransportError{Message: "Invalid upload payload", Err: err}
	}

	total := int64(body.Len())
	reader := transport.NewProgressReader(bytes.NewReader(body.Bytes()), total, onProgress)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+uploadPath, reader)
	if err != nil {
		return upload.ServerFile{}, &upload.TransportError{Message: "Invalid upload request", Err: err}
	}
	req.ContentLength = total
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return upload.ServerFile{}, &upload.TransportError{Message: "Upload was aborted", Err: ctx.Err()}
		}
		return upload.ServerFile{}, &upload.TransportError{Message: "Network error occurred", Err: err}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodySize+1))
	if err != nil {
		if ctx.Err() != nil {
			return upload.ServerFile{}, &upload.TransportError{Message: "Upload was aborted", Status: resp.StatusCode, Err: ctx.Err()}
		}
		return upload.ServerFile{}, &upload.TransportError{Message: "Network error occurred", Status: resp.StatusCode, Err: err}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return upload.ServerFile{}, &upload.TransportError{
			Message: fmt.Sprintf("Upload failed with status %d", resp.StatusCode),
			Status:  resp.StatusCode,
			Body:    truncate(raw),
		}
	}

	result, err := DecodeServerFile(raw, file)
	if err != nil {
		return upload.ServerFile{}, &upload.TransportError{
			Message: "Invalid response format",
			Status:  resp.StatusCode,
			Body:    truncate(raw),
			Err:     err,
		}
	}
	return result, nil
}

func encodeMultipart(file upload.LocalFile) (*bytes.Buffer, string, error) {
	var body bytes.Buffer
	writer := multipart.NewWriter(&body)

	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", fmt.Sprintf(`form-data; name="%s"; filename="%s"`, fileField, escapeQuotes(file.Name)))
	contentType := file.Type
	if contentType == "" {
		contentType = upload.DetectType(upload.RawFile{Name: file.Name, Data: file.Data})
	}
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	header.Set("Content-Type", contentType)

	part, err := writer.CreatePart(header)
	if err != nil {
		return nil, "", fmt.Errorf("create form file: %w", err)
	}
	if _, err := part.Write(file.Data); err != nil {
		return nil, "", fmt.Errorf("write form file: %w", err)
	}
	if err := writer.Close(); err != nil {
		return nil, "", fmt.Errorf("close writer: %w", err)
	}
	return &body, writer.FormDataContentType(), nil
}

var quoteEscaper = strings.NewReplacer("\\", "\\\\", `"`, "\\\"")

func escapeQuotes(s string) string {
	return quoteEscaper.Replace(s)
}

// serverFilePayload 用指针区分缺失字段与零值。
type serverFilePayload struct {
	ID   *string `json:"id"`
	URL  *string `json:"url"`
	Name *string `json:"name"`
	Size *int64  `json:"size"`
	Type *string `json:"type"`
}

// DecodeServerFile 严格解析上传响应：id、url 必须存在且非空；
// name/size/type 缺失时回落到本地文件的值。也接受 {"data": {...}} 包装。
func DecodeServerFile(raw []byte, file upload.LocalFile) (upload.ServerFile, error) {
	var envelope struct {
		Data json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return upload.ServerFile{}, fmt.Errorf("decode response: %w", err)
	}
	if len(envelope.Data) > 0 && envelope.Data[0] == '{' {
		raw = envelope.Data
	}

	var payload serverFilePayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		return upload.ServerFile{}, fmt.Errorf("decode response: %w", err)
	}
	if payload.ID == nil || *payload.ID == "" {
		return upload.ServerFile{}, errors.New("response is missing id")
	}
	if payload.URL == nil || *payload.URL == "" {
		return upload.ServerFile{}, errors.New("response is missing url")
	}

	result := upload.ServerFile{
		ID:   *payload.ID,
		URL:  *payload.URL,
		Name: file.Name,
		Size: file.Size,
		Type: file.Type,
	}
	if payload.Name != nil && *payload.Name != "" {
		result.Name = *payload.Name
	}
	if payload.Size != nil {
		if *payload.Size < 0 {
			return upload.ServerFile{}, errors.New("response has negative size")
		}
		result.Size = *payload.Size
	}
	if payload.Type != nil && *payload.Type != "" {
		result.Type = *payload.Type
	}
	return result, nil
}

func truncate(raw []byte) string {
	if len(raw) > maxErrorBodySize {
		raw = raw[:maxErrorBodySize]
	}
	return string(raw)
}

// DefaultHTTPClient 返回带连接级超时、但不限制整体请求时长的客户端。
func DefaultHTTPClient() *http.Client {
	return &http.Client{
		Transport: &http.Transport{
			Proxy:               http.ProxyFromEnvironment,
			MaxIdleConnsPerHost: 8,
			IdleConnTimeout:     90 * time.Second,
			TLSHandshakeTimeout: 10 * time.Second,
		},
	}
}
