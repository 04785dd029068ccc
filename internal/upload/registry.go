package upload

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Predicate 选择 Clear 要移除的条目。
type Predicate func(FileEntry) bool

var (
	// NotUploaded 对应“移除未上传文件”，已上传条目保留。
	NotUploaded Predicate = func(e FileEntry) bool { return e.Status != StatusUploaded }
	// All 清空全部条目。
	All Predicate = func(FileEntry) bool { return true }
)

type record struct {
	id       string
	source   Source
	preview  *PreviewHandle
	status   Status
	progress *Progress
	result   *ServerFile
	err      string

	// gen 每次进入 Uploading 时递增，用于识别过期回调。
	gen    uint64
	cancel context.CancelFunc
}

func (r *record) snapshot() FileEntry {
	entry := FileEntry{
		ID:         r.id,
		Source:     r.source,
		PreviewURL: r.preview.URL(),
		Status:     r.status,
		Error:      r.err,
	}
	if entry.PreviewURL == "" && r.result != nil {
		entry.PreviewURL = r.result.URL
	}
	if entry.PreviewURL == "" && r.source.Kind == SourceRemote {
		entry.PreviewURL = r.source.URL
	}
	if r.progress != nil {
		p := *r.progress
		entry.Progress = &p
	}
	if r.result != nil {
		res := *r.result
		entry.Result = &res
	}
	return entry
}

// RegistryConfig 汇总注册表的依赖。
type RegistryConfig struct {
	Previews Previews
	MaxFiles int // 0 表示不限制
	Broker   *Broker
	Logger   *slog.Logger
	// RetirePreviews 为 true 时，上传成功后立即释放本地预览，改用服务端 URL。
	RetirePreviews bool
}

// Registry 是 file-id 到条目的权威映射，保持插入顺序。
type Registry struct {
	mu      sync.Mutex
	order   []string
	records map[string]*record

	previews       Previews
	maxFiles       int
	broker         *Broker
	logger         *slog.Logger
	retirePreviews bool
}

func NewRegistry(cfg RegistryConfig) *Registry {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	previews := cfg.Previews
	if previews == nil {
		previews = NewMemoryPreviews("/previews")
	}
	return &Registry{
		records:        make(map[string]*record),
		previews:       previews,
		maxFiles:       cfg.MaxFiles,
		broker:         cfg.Broker,
		logger:         logger,
		retirePreviews: cfg.RetirePreviews,
	}
}

// Seed 以已上传的远端引用初始化注册表。
func (r *Registry) Seed(refs []RemoteReference) ([]FileEntry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.maxFiles > 0 && len(r.order)+len(refs) > r.maxFiles {
		return nil, r.inconsistent("seed", "", ErrRegistryFull)
	}

	refs = append([]RemoteReference(nil), refs...)
	seen := make(map[string]struct{}, len(refs))
	for i := range refs {
		if refs[i].ID == "" {
			refs[i].ID = uuid.NewString()
		}
		if _, dup := r.records[refs[i].ID]; dup {
			return nil, r.inconsistent("seed", refs[i].ID, fmt.Errorf("duplicate id: %w", ErrInvalidTransition))
		}
		if _, dup := seen[refs[i].ID]; dup {
			return nil, r.inconsistent("seed", refs[i].ID, fmt.Errorf("duplicate id: %w", ErrInvalidTransition))
		}
		seen[refs[i].ID] = struct{}{}
	}

	out := make([]FileEntry, 0, len(refs))
	for _, ref := range refs {
		rec := &record{
			id:     ref.ID,
			source: remoteSource(ref),
			status: StatusUploaded,
			result: &ServerFile{ID: ref.ID, URL: ref.URL, Name: ref.Name, Size: ref.Size, Type: ref.Type},
		}
		r.append(rec)
		out = append(out, rec.snapshot())
	}
	return out, nil
}

// Ingest 为已通过校验的文件分配 id 与预览句柄，以 Pending 状态按顺序追加。
// 任一预览分配失败时已分配的句柄全部释放，注册表保持不变。
func (r *Registry) Ingest(files []RawFile) ([]FileEntry, error) {
	if len(files) == 0 {
		return nil, nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.maxFiles > 0 && len(r.order)+len(files) > r.maxFiles {
		return nil, r.inconsistent("ingest", "", ErrRegistryFull)
	}

	recs := make([]*record, 0, len(files))
	for _, file := range files {
		handle, err := r.previews.Acquire(file)
		if err != nil {
			for _, rec := range recs {
				rec.preview.close()
			}
			return nil, fmt.Errorf("acquire preview for %s: %w", file.Name, err)
		}
		recs = append(recs, &record{
			id:      uuid.NewString(),
			source:  localSource(file),
			preview: handle,
			status:  StatusPending,
		})
	}

	out := make([]FileEntry, 0, len(recs))
	for _, rec := range recs {
		r.append(rec)
		out = append(out, rec.snapshot())
	}
	return out, nil
}

func (r *Registry) append(rec *record) {
	r.records[rec.id] = rec
	r.order = append(r.order, rec.id)
	r.publish(EventAdded, rec)
}

// Remove 释放预览并删除条目；上传中的条目先取消在途请求。
func (r *Registry) Remove(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, ok := r.records[id]
	if !ok {
		return r.inconsistent("remove", id, ErrUnknownFile)
	}
	r.drop(rec)
	r.compact()
	return nil
}

// Clear 移除所有满足 pred 的条目并返回移除数量，pred 为 nil 时使用 NotUploaded。
func (r *Registry) Clear(pred Predicate) int {
	if pred == nil {
		pred = NotUploaded
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	removed := 0
	for _, id := range r.order {
		rec := r.records[id]
		if !pred(rec.snapshot()) {
			continue
		}
		r.drop(rec)
		removed++
	}
	if removed > 0 {
		r.compact()
	}
	return removed
}

func (r *Registry) drop(rec *record) {
	if rec.status == StatusUploading && rec.cancel != nil {
		rec.cancel()
	}
	rec.cancel = nil
	rec.preview.close()
	snapshot := rec.snapshot()
	delete(r.records, rec.id)
	r.publishEntry(EventRemoved, snapshot)
}

func (r *Registry) compact() {
	kept := r.order[:0]
	for _, id := range r.order {
		if _, ok := r.records[id]; ok {
			kept = append(kept, id)
		}
	}
	r.order = kept
}

// MarkUploading 把 Pending 或 Failed 的本地条目切换为 Uploading，返回本次上传的代数。
// cancel 在条目被移除时调用。
func (r *Registry) MarkUploading(id string, cancel context.CancelFunc) (uint64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, ok := r.records[id]
	if !ok {
		return 0, r.inconsistent("mark uploading", id, ErrUnknownFile)
	}
	if rec.source.Kind != SourceLocal || (rec.status != StatusPending && rec.status != StatusFailed) {
		return 0, r.inconsistent("mark uploading", id, fmt.Errorf("%s: %w", rec.status, ErrInvalidTransition))
	}

	rec.gen++
	rec.status = StatusUploading
	rec.progress = &Progress{BytesTotal: rec.source.Size}
	rec.err = ""
	rec.cancel = cancel
	r.publish(EventStatus, rec)
	return rec.gen, nil
}

// MarkProgress 只在同一代的上传仍处于 Uploading 时生效。
func (r *Registry) MarkProgress(id string, gen uint64, p Progress) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, err := r.inFlight("mark progress", id, gen)
	if err != nil {
		return err
	}
	rec.progress = &p
	r.publish(EventProgress, rec)
	return nil
}

func (r *Registry) MarkUploaded(id string, gen uint64, file ServerFile) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, err := r.inFlight("mark uploaded", id, gen)
	if err != nil {
		return err
	}
	rec.status = StatusUploaded
	rec.progress = nil
	rec.cancel = nil
	rec.result = &file
	if r.retirePreviews && file.URL != "" {
		rec.preview.close()
		rec.preview = nil
	}
	r.publish(EventStatus, rec)
	return nil
}

func (r *Registry) MarkFailed(id string, gen uint64, reason string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, err := r.inFlight("mark failed", id, gen)
	if err != nil {
		return err
	}
	if reason == "" {
		reason = DefaultFailureMessage
	}
	rec.status = StatusFailed
	rec.progress = nil
	rec.cancel = nil
	rec.err = reason
	r.publish(EventStatus, rec)
	return nil
}

// Retry 把 Failed 条目显式放回 Pending。
func (r *Registry) Retry(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, ok := r.records[id]
	if !ok {
		return r.inconsistent("retry", id, ErrUnknownFile)
	}
	if rec.status != StatusFailed {
		return r.inconsistent("retry", id, fmt.Errorf("%s: %w", rec.status, ErrInvalidTransition))
	}
	rec.status = StatusPending
	rec.err = ""
	r.publish(EventStatus, rec)
	return nil
}

func (r *Registry) inFlight(op, id string, gen uint64) (*record, error) {
	rec, ok := r.records[id]
	if !ok {
		return nil, r.inconsistent(op, id, ErrUnknownFile)
	}
	if rec.gen != gen {
		return nil, r.inconsistent(op, id, ErrStaleUpload)
	}
	if rec.status != StatusUploading {
		return nil, r.inconsistent(op, id, fmt.Errorf("%s: %w", rec.status, ErrInvalidTransition))
	}
	return rec, nil
}

func (r *Registry) inconsistent(op, id string, err error) error {
	cerr := &ConsistencyError{Op: op, ID: id, Err: err}
	r.logger.Warn("registry inconsistency", "op", op, "id", id, "error", err)
	return cerr
}

func (r *Registry) publish(t EventType, rec *record) {
	r.publishEntry(t, rec.snapshot())
}

func (r *Registry) publishEntry(t EventType, entry FileEntry) {
	r.broker.publish(Event{Type: t, Entry: entry, At: time.Now()})
}

// Get 返回条目快照。
func (r *Registry) Get(id string) (FileEntry, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, ok := r.records[id]
	if !ok {
		return FileEntry{}, false
	}
	return rec.snapshot(), true
}

// Entries 按插入顺序返回全部条目快照。
func (r *Registry) Entries() []FileEntry {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]FileEntry, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.records[id].snapshot())
	}
	return out
}

// Eligible 返回可上传条目的 id；ids 为空时考察全部条目。
func (r *Registry) Eligible(ids ...string) []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	candidates := ids
	if len(candidates) == 0 {
		candidates = r.order
	}
	out := make([]string, 0, len(candidates))
	for _, id := range candidates {
		rec, ok := r.records[id]
		if !ok {
			continue
		}
		if rec.snapshot().Uploadable() {
			out = append(out, id)
		}
	}
	return out
}

func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.order)
}

// Count 统计满足 pred 的条目数量。
func (r *Registry) Count(pred Predicate) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	n := 0
	for _, id := range r.order {
		if pred(r.records[id].snapshot()) {
			n++
		}
	}
	return n
}

// Uploading 表示是否存在处于 Uploading 状态的条目。
func (r *Registry) Uploading() bool {
	return r.Count(func(e FileEntry) bool { return e.Status == StatusUploading }) > 0
}
