package api

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/Renedz21/client/internal/gallery"
	"github.com/Renedz21/client/internal/logging"
	"github.com/Renedz21/client/internal/upload"
)

// SessionConfig 描述一个上传视图所需的依赖。
type SessionConfig struct {
	Rules       upload.Rules
	Transport   upload.Transport
	Previews    *upload.MemoryPreviews
	Broker      *upload.Broker
	Gallery     *gallery.Cache
	Logger      *slog.Logger
	Hooks       upload.Hooks
	Concurrency int
	Timeout     time.Duration
	// Initial 为初始化时已存在于服务端的文件。
	Initial        []upload.RemoteReference
	RetirePreviews bool
}

// Session 对应一个挂载中的上传视图：注册表、拖放区与上传队列共享同一生命周期。
type Session struct {
	registry *upload.Registry
	dropzone *upload.Dropzone
	queue    *upload.Queue
	previews *upload.MemoryPreviews
	broker   *upload.Broker
	gallery  *gallery.Cache
	logger   *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// Snapshot 是会话对外展示的完整状态。
type Snapshot struct {
	Files        []upload.FileEntry `json:"files"`
	IsDragging   bool               `json:"isDragging"`
	Uploading    bool               `json:"uploading"`
	Errors       []string           `json:"errors"`
	PendingCount int                `json:"pendingCount"`
}

func NewSession(cfg SessionConfig) (*Session, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = logging.Discard()
	}
	previews := cfg.Previews
	if previews == nil {
		previews = upload.NewMemoryPreviews("/previews")
	}
	broker := cfg.Broker
	if broker == nil {
		broker = upload.NewBroker(0)
	}

	reg := upload.NewRegistry(upload.RegistryConfig{
		Previews:       previews,
		MaxFiles:       cfg.Rules.MaxFiles,
		Broker:         broker,
		Logger:         logger,
		RetirePreviews: cfg.RetirePreviews,
	})
	if len(cfg.Initial) > 0 {
		if _, err := reg.Seed(cfg.Initial); err != nil {
			return nil, fmt.Errorf("seed initial files: %w", err)
		}
	}

	var invalidator upload.Invalidator
	if cfg.Gallery != nil {
		invalidator = cfg.Gallery
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Session{
		registry: reg,
		dropzone: upload.NewDropzone(upload.NewValidator(cfg.Rules), reg, logger),
		queue: upload.NewQueue(upload.QueueConfig{
			Registry:    reg,
			Transport:   cfg.Transport,
			Hooks:       cfg.Hooks,
			Invalidator: invalidator,
			Logger:      logger,
			Concurrency: cfg.Concurrency,
			Timeout:     cfg.Timeout,
		}),
		previews: previews,
		broker:   broker,
		gallery:  cfg.Gallery,
		logger:   logger,
		ctx:      ctx,
		cancel:   cancel,
	}, nil
}

func (s *Session) Registry() *upload.Registry { return s.registry }

func (s *Session) Dropzone() *upload.Dropzone { return s.dropzone }

func (s *Session) Previews() *upload.MemoryPreviews { return s.previews }

func (s *Session) Broker() *upload.Broker { return s.broker }

func (s *Session) Snapshot() Snapshot {
	files := s.registry.Entries()
	if files == nil {
		files = []upload.FileEntry{}
	}
	errs := s.dropzone.Errors()
	if errs == nil {
		errs = []string{}
	}
	return Snapshot{
		Files:        files,
		IsDragging:   s.dropzone.Dragging(),
		Uploading:    s.queue.Uploading(),
		Errors:       errs,
		PendingCount: s.registry.Count(func(e upload.FileEntry) bool { return e.Uploadable() }),
	}
}

// Upload 同步上传，调用方的 ctx 取消时在途请求随之中止。
func (s *Session) Upload(ctx context.Context, ids ...string) []upload.Outcome {
	return s.queue.UploadAll(ctx, ids...)
}

// StartUpload 在后台启动上传并立即返回可上传的条目数。
// 会话关闭时后台上传被取消。
func (s *Session) StartUpload(ids ...string) int {
	eligible := s.registry.Eligible(ids...)
	if len(eligible) == 0 {
		return 0
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		outcomes := s.queue.UploadAll(s.ctx, eligible...)
		failed := 0
		for _, o := range outcomes {
			if o.Err != nil {
				failed++
			}
		}
		s.logger.Info("upload batch settled", "files", len(outcomes), "failed", failed)
	}()
	return len(eligible)
}

// Gallery 返回缓存的图库列表。
func (s *Session) Gallery(ctx context.Context) (gallery.Images, error) {
	if s.gallery == nil {
		return gallery.Images{Data: []gallery.Image{}}, nil
	}
	return s.gallery.Images(ctx)
}

// Close 取消后台上传并释放全部预览，相当于视图卸载。
func (s *Session) Close() {
	s.cancel()
	s.wg.Wait()
	s.registry.Clear(upload.All)
}
