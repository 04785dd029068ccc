package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"

	"github.com/Renedz21/client/internal/upload"

	"github.com/go-chi/chi/v5"
)

const (
	filesField                  = "files"
	multipartMemoryBudget int64 = 32 * 1024 * 1024
)

// SessionHandler 把会话操作暴露为 HTTP 端点。
type SessionHandler struct {
	session *Session
	// maxRequestBytes 限制单次拖放请求体大小，0 表示不限制。
	maxRequestBytes int64
}

func NewSessionHandler(s *Session, maxRequestBytes int64) *SessionHandler {
	return &SessionHandler{session: s, maxRequestBytes: maxRequestBytes}
}

func (h *SessionHandler) RegisterRoutes(r chi.Router) {
	r.Route("/session", func(r chi.Router) {
		r.Get("/", h.GetSession)
		r.Post("/drag/{phase}", h.Drag)
		r.Post("/drop", h.Drop)
		r.Post("/select", h.Select)
		r.Delete("/files/{id}", h.RemoveFile)
		r.Post("/files/{id}/retry", h.RetryFile)
		r.Post("/clear", h.Clear)
		r.Post("/upload", h.Upload)
		r.Get("/events", h.Events)
	})
	r.Get("/gallery", h.Gallery)
}

type envelope struct {
	Data any `json:"data"`
}

type errorEnvelope struct {
	Error string `json:"error"`
}

type rejection struct {
	Name  string `json:"name"`
	Error string `json:"error"`
}

type batchResponse struct {
	Accepted []upload.FileEntry `json:"accepted"`
	Rejected []rejection        `json:"rejected"`
	Error    string             `json:"error,omitempty"`
	Session  Snapshot           `json:"session"`
}

func (h *SessionHandler) GetSession(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, envelope{Data: h.session.Snapshot()})
}

// Drag 只改变拖拽状态，不接收文件。
func (h *SessionHandler) Drag(w http.ResponseWriter, r *http.Request) {
	dz := h.session.Dropzone()
	switch chi.URLParam(r, "phase") {
	case "enter":
		dz.DragEnter()
	case "over":
		dz.DragOver()
	case "leave":
		dz.DragLeave()
	default:
		writeError(w, http.StatusNotFound, "unknown drag phase")
		return
	}
	writeJSON(w, http.StatusOK, envelope{Data: h.session.Snapshot()})
}

func (h *SessionHandler) Drop(w http.ResponseWriter, r *http.Request) {
	h.handleBatch(w, r, h.session.Dropzone().Drop)
}

func (h *SessionHandler) Select(w http.ResponseWriter, r *http.Request) {
	h.handleBatch(w, r, h.session.Dropzone().Select)
}

func (h *SessionHandler) handleBatch(w http.ResponseWriter, r *http.Request, apply func([]upload.RawFile) upload.BatchResult) {
	files, err := h.readFiles(w, r)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "request exceeds size limit")
			return
		}
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	result := apply(files)

	resp := batchResponse{
		Accepted: result.Accepted,
		Rejected: make([]rejection, 0, len(result.Rejected)),
	}
	if resp.Accepted == nil {
		resp.Accepted = []upload.FileEntry{}
	}
	for _, v := range result.Rejected {
		resp.Rejected = append(resp.Rejected, rejection{Name: v.File.Name, Error: v.Err.Error()})
	}
	if result.Err != nil {
		resp.Error = result.Err.Error()
	}
	resp.Session = h.session.Snapshot()

	status := http.StatusOK
	if len(result.Accepted) > 0 {
		status = http.StatusCreated
	}
	writeJSON(w, status, envelope{Data: resp})
}

// readFiles 读取所有名为 files 的部分；空请求体视为空批次。
func (h *SessionHandler) readFiles(w http.ResponseWriter, r *http.Request) ([]upload.RawFile, error) {
	if r.Body == nil || r.ContentLength == 0 {
		return nil, nil
	}
	if h.maxRequestBytes > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, h.maxRequestBytes)
	}
	defer r.Body.Close()

	if err := r.ParseMultipartForm(multipartMemoryBudget); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return nil, err
		}
		return nil, fmt.Errorf("invalid multipart form: %w", err)
	}
	defer func() {
		_ = r.MultipartForm.RemoveAll()
	}()

	headers := r.MultipartForm.File[filesField]
	files := make([]upload.RawFile, 0, len(headers))
	for _, header := range headers {
		file, err := readPart(header)
		if err != nil {
			return nil, err
		}
		files = append(files, file)
	}
	return files, nil
}

func readPart(header *multipart.FileHeader) (upload.RawFile, error) {
	f, err := header.Open()
	if err != nil {
		return upload.RawFile{}, fmt.Errorf("open %s: %w", header.Filename, err)
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		return upload.RawFile{}, fmt.Errorf("read %s: %w", header.Filename, err)
	}

	contentType := header.Header.Get("Content-Type")
	if contentType == "application/octet-stream" {
		// 浏览器无法识别类型时的占位值，交给类型探测。
		contentType = ""
	}
	return upload.RawFile{
		Name: header.Filename,
		Type: contentType,
		Size: header.Size,
		Data: data,
	}, nil
}

func (h *SessionHandler) RemoveFile(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := h.session.Registry().Remove(id); err != nil {
		writeConsistencyError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, envelope{Data: map[string]any{"id": id, "removed": true}})
}

func (h *SessionHandler) RetryFile(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := h.session.Registry().Retry(id); err != nil {
		writeConsistencyError(w, err)
		return
	}
	entry, _ := h.session.Registry().Get(id)
	writeJSON(w, http.StatusOK, envelope{Data: entry})
}

// Clear 默认移除未上传的条目，?all=true 时清空全部。
func (h *SessionHandler) Clear(w http.ResponseWriter, r *http.Request) {
	pred := upload.NotUploaded
	if strings.EqualFold(r.URL.Query().Get("all"), "true") {
		pred = upload.All
	}
	removed := h.session.Registry().Clear(pred)
	writeJSON(w, http.StatusOK, envelope{Data: map[string]any{"removed": removed}})
}

type uploadRequest struct {
	IDs []string `json:"ids"`
}

// Upload 异步启动上传，请求体可选地指定 id 列表。
func (h *SessionHandler) Upload(w http.ResponseWriter, r *http.Request) {
	var req uploadRequest
	if r.Body != nil && r.ContentLength != 0 {
		dec := json.NewDecoder(io.LimitReader(r.Body, 1<<20))
		dec.DisallowUnknownFields()
		if err := dec.Decode(&req); err != nil && !errors.Is(err, io.EOF) {
			writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
			return
		}
	}

	started := h.session.StartUpload(req.IDs...)
	status := http.StatusAccepted
	if started == 0 {
		status = http.StatusOK
	}
	writeJSON(w, status, envelope{Data: map[string]any{"started": started}})
}

func (h *SessionHandler) Gallery(w http.ResponseWriter, r *http.Request) {
	images, err := h.session.Gallery(r.Context())
	if err != nil {
		writeError(w, http.StatusBadGateway, upload.UserMessage(err))
		return
	}
	writeJSON(w, http.StatusOK, images)
}

func writeConsistencyError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, upload.ErrUnknownFile):
		writeError(w, http.StatusNotFound, "file not found")
	case errors.Is(err, upload.ErrInvalidTransition):
		writeError(w, http.StatusConflict, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errorEnvelope{Error: message})
}
