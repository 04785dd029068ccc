package endpoint

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"strconv"

	"github.com/Renedz21/client/internal/logging"

	"github.com/gabriel-vasile/mimetype"
	"github.com/go-chi/chi/v5"
)

const multipartMemoryBudget int64 = 16 * 1024 * 1024

// ImageHandler 提供上传客户端对接的参考 HTTP 接口。
type ImageHandler struct {
	service      *ImageService
	maxSizeBytes int64
	logger       *slog.Logger
}

func NewImageHandler(s *ImageService, maxSizeBytes int64, logger *slog.Logger) *ImageHandler {
	if logger == nil {
		logger = logging.Discard()
	}
	return &ImageHandler{service: s, maxSizeBytes: maxSizeBytes, logger: logger}
}

func (h *ImageHandler) RegisterRoutes(r chi.Router) {
	r.Route("/images", func(r chi.Router) {
		r.Get("/", h.ListImages)
		r.Post("/upload", h.UploadImage)
		r.Get("/{id}/raw", h.RawImage)
	})
}

type uploadResponse struct {
	ID   string `json:"id"`
	URL  string `json:"url"`
	Name string `json:"name"`
	Size int64  `json:"size"`
	Type string `json:"type"`
}

type galleryItem struct {
	URL          string      `json:"url"`
	PublicID     string      `json:"publicId"`
	OriginalName string      `json:"originalName,omitempty"`
	Size         int64       `json:"size,omitempty"`
	Dimensions   *dimensions `json:"dimensions,omitempty"`
	Format       string      `json:"format,omitempty"`
}

type dimensions struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

type envelope struct {
	Data any `json:"data"`
}

type errorEnvelope struct {
	Error string `json:"error"`
}

// UploadImage 接受字段名为 file 的 multipart/form-data 上传。
func (h *ImageHandler) UploadImage(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		writeError(w, http.StatusInternalServerError, "handler not initialized")
		return
	}
	if r.Body == nil {
		writeError(w, http.StatusBadRequest, "request body is empty")
		return
	}

	if h.maxSizeBytes > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, h.maxSizeBytes+multipartMemoryBudget)
	}
	defer r.Body.Close()

	if err := r.ParseMultipartForm(multipartMemoryBudget); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "file exceeds size limit")
			return
		}
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid multipart form: %v", err))
		return
	}
	defer func() {
		if r.MultipartForm != nil {
			_ = r.MultipartForm.RemoveAll()
		}
	}()

	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "file field is required")
		return
	}
	defer file.Close()

	sizeBytes, err := determineFileSize(file, header)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if sizeBytes <= 0 {
		writeError(w, http.StatusBadRequest, "file must not be empty")
		return
	}
	if h.maxSizeBytes > 0 && sizeBytes > h.maxSizeBytes {
		writeError(w, http.StatusRequestEntityTooLarge, "file exceeds size limit")
		return
	}

	mimeType, err := resolveMimeType(header, file)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	content, err := io.ReadAll(file)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "unable to read uploaded file")
		return
	}

	record, err := h.service.StoreImage(r.Context(), StoreImageInput{
		OriginalName: header.Filename,
		MimeType:     mimeType,
		SizeBytes:    sizeBytes,
		Content:      content,
	})
	if err != nil {
		h.logger.Error("store image failed", "name", header.Filename, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to store image")
		return
	}

	h.logger.Info("image stored", "id", record.ID, "name", record.OriginalName, "bytes", record.SizeBytes)
	writeJSON(w, http.StatusCreated, uploadResponse{
		ID:   record.ID,
		URL:  record.URL,
		Name: record.OriginalName,
		Size: record.SizeBytes,
		Type: record.MimeType,
	})
}

// ListImages 返回图库格式的列表。
func (h *ImageHandler) ListImages(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		writeError(w, http.StatusInternalServerError, "handler not initialized")
		return
	}

	records, err := h.service.ListImages(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	items := make([]galleryItem, 0, len(records))
	for _, rec := range records {
		item := galleryItem{
			URL:          rec.URL,
			PublicID:     rec.ID,
			OriginalName: rec.OriginalName,
			Size:         rec.SizeBytes,
			Format:       rec.Format,
		}
		if rec.Width > 0 && rec.Height > 0 {
			item.Dimensions = &dimensions{Width: rec.Width, Height: rec.Height}
		}
		items = append(items, item)
	}
	writeJSON(w, http.StatusOK, envelope{Data: items})
}

// RawImage 返回图片内容，供没有公开地址的存储回源。
func (h *ImageHandler) RawImage(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		writeError(w, http.StatusInternalServerError, "handler not initialized")
		return
	}

	id := chi.URLParam(r, "id")
	record, content, err := h.service.OpenImage(r.Context(), id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			writeError(w, http.StatusNotFound, "image not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to read image")
		return
	}
	defer content.Close()

	w.Header().Set("Content-Type", record.MimeType)
	w.Header().Set("Content-Length", strconv.FormatInt(record.SizeBytes, 10))
	w.Header().Set("Cache-Control", "public, max-age=31536000, immutable")
	if _, err := io.Copy(w, content); err != nil {
		// 客户端可能已断开，无法再写入错误响应
		return
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

func determineFileSize(file multipart.File, header *multipart.FileHeader) (int64, error) {
	if header != nil && header.Size > 0 {
		return header.Size, nil
	}

	size, err := file.Seek(0, io.SeekEnd)
	if err != nil {
		return 0, fmt.Errorf("measure file: %w", err)
	}
	if _, err := file.Seek(0, io.SeekStart); err != nil {
		return 0, fmt.Errorf("rewind file: %w", err)
	}
	return size, nil
}

// resolveMimeType 优先使用表单声明的类型，缺失或为通用二进制类型时按内容探测。
func resolveMimeType(header *multipart.FileHeader, file multipart.File) (string, error) {
	if header != nil {
		if value := header.Header.Get("Content-Type"); value != "" && value != "application/octet-stream" {
			return value, nil
		}
	}

	detected, err := mimetype.DetectReader(file)
	if err != nil {
		return "", fmt.Errorf("detect mime: %w", err)
	}
	if _, err := file.Seek(0, io.SeekStart); err != nil {
		return "", fmt.Errorf("rewind file: %w", err)
	}
	return detected.String(), nil
}
