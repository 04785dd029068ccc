package upload

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"
)

// Hooks 按文件 id 回调上传结果。
type Hooks struct {
	OnSuccess func(id string, file ServerFile)
	OnError   func(id string, err error)
}

// QueueConfig 汇总上传队列的依赖与可选限制。
type QueueConfig struct {
	Registry    *Registry
	Transport   Transport
	Hooks       Hooks
	Invalidator Invalidator
	Logger      *slog.Logger
	// Concurrency 为 0 时不限制同时在途的请求数。
	Concurrency int
	// Timeout 为 0 时不对单个文件设置超时。
	Timeout time.Duration
}

// Outcome 是批次中单个文件的结果。
type Outcome struct {
	ID   string
	File *ServerFile
	Err  error
}

// Queue 并发上传注册表中的待上传条目，单个失败不影响同批次其他文件。
type Queue struct {
	reg         *Registry
	transport   Transport
	hooks       Hooks
	invalidator Invalidator
	logger      *slog.Logger
	concurrency int
	timeout     time.Duration

	inFlight atomic.Int64
}

func NewQueue(cfg QueueConfig) *Queue {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Queue{
		reg:         cfg.Registry,
		transport:   cfg.Transport,
		hooks:       cfg.Hooks,
		invalidator: cfg.Invalidator,
		logger:      logger,
		concurrency: cfg.Concurrency,
		timeout:     cfg.Timeout,
	}
}

// Uploading 在任一批次仍有文件在途时为 true。
func (q *Queue) Uploading() bool {
	return q.inFlight.Load() > 0
}

type job struct {
	id     string
	gen    uint64
	ctx    context.Context
	cancel context.CancelFunc
	file   LocalFile
}

// UploadAll 上传给定 id 中可上传的条目（为空时上传全部 Pending/Failed 本地条目），
// 阻塞到整批落定，结果顺序与注册表顺序一致。
func (q *Queue) UploadAll(ctx context.Context, ids ...string) []Outcome {
	eligible := q.reg.Eligible(ids...)
	if len(eligible) == 0 {
		return nil
	}

	outcomes := make([]Outcome, len(eligible))
	jobs := make([]*job, len(eligible))

	// 先把整批标记为 Uploading，保证 Uploading() 在任何请求发出前即为 true。
	for i, id := range eligible {
		outcomes[i].ID = id
		entry, ok := q.reg.Get(id)
		if !ok {
			outcomes[i].Err = &ConsistencyError{Op: "upload", ID: id, Err: ErrUnknownFile}
			continue
		}
		jobCtx, cancel := context.WithCancel(ctx)
		gen, err := q.reg.MarkUploading(id, cancel)
		if err != nil {
			cancel()
			outcomes[i].Err = err
			continue
		}
		q.inFlight.Add(1)
		jobs[i] = &job{
			id:     id,
			gen:    gen,
			ctx:    jobCtx,
			cancel: cancel,
			file: LocalFile{
				ID:   id,
				Name: entry.Source.Name,
				Type: entry.Source.Type,
				Size: entry.Source.Size,
				Data: entry.Source.Data,
			},
		}
	}

	var g errgroup.Group
	if q.concurrency > 0 {
		g.SetLimit(q.concurrency)
	}
	for i, j := range jobs {
		if j == nil {
			continue
		}
		g.Go(func() error {
			outcomes[i] = q.run(j)
			return nil
		})
	}
	_ = g.Wait()

	return outcomes
}

func (q *Queue) run(j *job) Outcome {
	defer q.inFlight.Add(-1)
	defer j.cancel()

	ctx := j.ctx
	if q.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, q.timeout)
		defer cancel()
	}

	stream := newProgressStream(func(p Progress) {
		if j.ctx.Err() != nil {
			return
		}
		_ = q.reg.MarkProgress(j.id, j.gen, p)
	})

	start := time.Now()
	file, err := q.transport.Send(ctx, j.file, stream.emit)
	stream.close()

	if err != nil {
		err = normalizeSendError(ctx, err)
		if markErr := q.reg.MarkFailed(j.id, j.gen, UserMessage(err)); markErr != nil {
			return Outcome{ID: j.id, Err: markErr}
		}
		q.logger.Warn("upload failed", "id", j.id, "name", j.file.Name, "error", err)
		if q.hooks.OnError != nil {
			q.hooks.OnError(j.id, err)
		}
		return Outcome{ID: j.id, Err: err}
	}

	if markErr := q.reg.MarkUploaded(j.id, j.gen, file); markErr != nil {
		return Outcome{ID: j.id, File: &file, Err: markErr}
	}
	q.logger.Info("upload finished",
		"id", j.id,
		"name", j.file.Name,
		"bytes", j.file.Size,
		"duration", time.Since(start),
	)
	if q.hooks.OnSuccess != nil {
		q.hooks.OnSuccess(j.id, file)
	}
	if q.invalidator != nil {
		q.invalidator.Invalidate()
	}
	return Outcome{ID: j.id, File: &file}
}

func normalizeSendError(ctx context.Context, err error) error {
	var te *TransportError
	if errors.As(err, &te) {
		return err
	}
	switch {
	case errors.Is(ctx.Err(), context.DeadlineExceeded):
		return &TransportError{Message: "Upload timed out", Err: err}
	case ctx.Err() != nil:
		return &TransportError{Message: "Upload was aborted", Err: err}
	default:
		return &TransportError{Message: err.Error(), Err: err}
	}
}
