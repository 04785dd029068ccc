package endpoint

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"path"
	"strings"
	"time"

	"github.com/Renedz21/client/internal/storage"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"
)

// ImageService 负责写入存储并登记图片元数据。
type ImageService struct {
	catalog Catalog
	store   storage.Storage
	// rawURL 在存储没有公开地址时生成回源地址。
	rawURL func(id string) string
}

func NewImageService(catalog Catalog, store storage.Storage, rawURL func(id string) string) *ImageService {
	return &ImageService{catalog: catalog, store: store, rawURL: rawURL}
}

// StoreImageInput 描述一次上传。
type StoreImageInput struct {
	OriginalName string
	MimeType     string
	SizeBytes    int64
	Content      []byte
}

// StoreImage 写入存储并返回登记后的记录。
func (s *ImageService) StoreImage(ctx context.Context, input StoreImageInput) (*ImageRecord, error) {
	if s == nil || s.catalog == nil || s.store == nil {
		return nil, errors.New("image service not initialized")
	}
	if err := validateStoreInput(input); err != nil {
		return nil, err
	}

	id := uuid.NewString()
	detected := mimetype.Detect(input.Content)
	mimeType := input.MimeType
	if mimeType == "" || mimeType == "application/octet-stream" {
		mimeType = detected.String()
	}
	ext := strings.ToLower(path.Ext(input.OriginalName))
	if ext == "" {
		ext = detected.Extension()
	}

	key := path.Join("images", id+ext)
	loc, err := s.store.Write(ctx, storage.Object{Key: key, ContentType: mimeType, Size: input.SizeBytes}, bytes.NewReader(input.Content))
	if err != nil {
		return nil, fmt.Errorf("write storage: %w", err)
	}

	record := &ImageRecord{
		ID:           id,
		Key:          loc.Key,
		OriginalName: input.OriginalName,
		MimeType:     mimeType,
		SizeBytes:    input.SizeBytes,
		URL:          loc.URL,
		CreatedAt:    time.Now().UTC(),
	}
	if record.URL == "" && s.rawURL != nil {
		record.URL = s.rawURL(id)
	}
	if cfg, format, err := image.DecodeConfig(bytes.NewReader(input.Content)); err == nil {
		record.Width, record.Height, record.Format = cfg.Width, cfg.Height, format
	} else if strings.HasPrefix(mimeType, "image/") {
		// SVG 等格式无法解码尺寸，只记录格式。
		record.Format = strings.TrimPrefix(detected.Extension(), ".")
	}

	created, err := s.catalog.Create(ctx, record)
	if err != nil {
		_ = s.store.Delete(context.WithoutCancel(ctx), loc.Key)
		return nil, fmt.Errorf("register image: %w", err)
	}
	return created, nil
}

func (s *ImageService) ListImages(ctx context.Context) ([]ImageRecord, error) {
	if s == nil || s.catalog == nil {
		return nil, errors.New("image service not initialized")
	}
	return s.catalog.List(ctx)
}

// OpenImage 返回记录与内容，调用方负责关闭。
func (s *ImageService) OpenImage(ctx context.Context, id string) (*ImageRecord, io.ReadCloser, error) {
	if s == nil || s.catalog == nil || s.store == nil {
		return nil, nil, errors.New("image service not initialized")
	}
	record, err := s.catalog.GetByID(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	content, err := s.store.Read(ctx, record.Key)
	if err != nil {
		return nil, nil, fmt.Errorf("read storage: %w", err)
	}
	return record, content, nil
}

func validateStoreInput(input StoreImageInput) error {
	switch {
	case input.OriginalName == "":
		return fmt.Errorf("original name is required")
	case input.SizeBytes <= 0 || len(input.Content) == 0:
		return fmt.Errorf("file must not be empty")
	default:
		return nil
	}
}
