package main

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/Renedz21/client/internal/api"
	"github.com/Renedz21/client/internal/endpoint"
	"github.com/Renedz21/client/internal/storage/local"
	"github.com/Renedz21/client/internal/transport/httpx"
	"github.com/Renedz21/client/internal/upload"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func startEndpoint(t *testing.T) *httptest.Server {
	t.Helper()
	var srv *httptest.Server
	svc := endpoint.NewImageService(endpoint.NewMemoryCatalog(), local.New(t.TempDir(), ""), func(id string) string {
		return srv.URL + "/api/images/" + id + "/raw"
	})
	srv = httptest.NewServer(endpoint.NewRouter(endpoint.RouterConfig{
		Handler:  endpoint.NewImageHandler(svc, 1024, nil),
		Registry: prometheus.NewRegistry(),
	}))
	t.Cleanup(srv.Close)
	return srv
}

func imageRules() upload.Rules {
	return upload.Rules{
		Accept:       upload.ParseAccept("image/png,image/gif"),
		MaxSizeBytes: 4096,
		Multiple:     true,
	}
}

func TestRunUpload(t *testing.T) {
	srv := startEndpoint(t)
	session, err := api.NewSession(api.SessionConfig{
		Rules:     imageRules(),
		Transport: httpx.New(srv.URL+"/api", nil),
		Broker:    upload.NewBroker(256),
	})
	require.NoError(t, err)
	defer session.Close()

	var out bytes.Buffer
	err = runUpload(context.Background(), session, []upload.RawFile{
		{Name: "a.gif", Type: "image/gif", Size: 6, Data: []byte("GIF89a")},
		{Name: "notes.txt", Type: "text/plain", Size: 2, Data: []byte("hi")},
	}, &out, true)

	require.NoError(t, err)
	text := out.String()
	assert.Contains(t, text, "skip   notes.txt (2 B): invalid file type")
	assert.Contains(t, text, "done   a.gif -> "+srv.URL+"/api/images/")
	assert.Contains(t, text, "100%   a.gif")
}

func TestRunUpload_ReportsFailures(t *testing.T) {
	srv := startEndpoint(t)
	session, err := api.NewSession(api.SessionConfig{
		Rules:     imageRules(),
		Transport: httpx.New(srv.URL+"/api", nil),
	})
	require.NoError(t, err)
	defer session.Close()

	// 参考接口限制 1024 字节，客户端规则允许 4096。
	big := bytes.Repeat([]byte("x"), 2048)
	var out bytes.Buffer
	err = runUpload(context.Background(), session, []upload.RawFile{
		{Name: "big.png", Type: "image/png", Size: int64(len(big)), Data: big},
	}, &out, false)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "1 of 1 uploads failed")
	assert.Contains(t, out.String(), "failed big.png: Upload failed with status 413")
}

func TestRunUpload_NothingAccepted(t *testing.T) {
	session, err := api.NewSession(api.SessionConfig{Rules: imageRules()})
	require.NoError(t, err)
	defer session.Close()

	err = runUpload(context.Background(), session, []upload.RawFile{{Name: "a.txt", Type: "text/plain"}}, io.Discard, false)
	assert.EqualError(t, err, "no files to upload")
}

func TestReadFiles(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "pic.png")
	require.NoError(t, os.WriteFile(path, []byte("\x89PNG"), 0o600))

	files, err := readFiles([]string{path})
	require.NoError(t, err)
	require.Len(t, files, 1)
	assert.Equal(t, "pic.png", files[0].Name)
	assert.Equal(t, int64(4), files[0].Size)

	_, err = readFiles([]string{filepath.Join(dir, "missing.png")})
	assert.Error(t, err)
}

func TestGalleryCommand(t *testing.T) {
	srv := startEndpoint(t)

	body := strings.NewReader("--b\r\nContent-Disposition: form-data; name=\"file\"; filename=\"x.gif\"\r\nContent-Type: image/gif\r\n\r\nGIF89a\x03\x00\x04\x00\x00\x00\x00\r\n--b--\r\n")
	resp, err := http.Post(srv.URL+"/api/images/upload", "multipart/form-data; boundary=b", body)
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	t.Setenv("GALLERY_TTL", "1s")
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"--api", srv.URL + "/api", "gallery"})

	require.NoError(t, cmd.Execute())
	assert.Contains(t, out.String(), "x.gif")
	assert.Contains(t, out.String(), "3x4")
}
