package upload

import (
	"io"
	"log/slog"
	"sync"
)

// BatchResult 是一次拖放或选择的处理结果。
type BatchResult struct {
	Accepted []FileEntry
	Rejected []Verdict
	// Err 是批次中第一个拒绝原因，或注册表写入失败的错误。
	Err error
}

// Dropzone 维护拖拽状态，并把拖放与文件选择统一到同一条校验、入库路径。
type Dropzone struct {
	validator *Validator
	reg       *Registry
	logger    *slog.Logger

	mu       sync.Mutex
	dragging bool
	errors   []string
}

func NewDropzone(validator *Validator, reg *Registry, logger *slog.Logger) *Dropzone {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Dropzone{validator: validator, reg: reg, logger: logger}
}

func (d *Dropzone) DragEnter() { d.setDragging(true) }

// DragOver 保持拖拽状态，不触发入库。
func (d *Dropzone) DragOver() { d.setDragging(true) }

func (d *Dropzone) DragLeave() { d.setDragging(false) }

func (d *Dropzone) Dragging() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.dragging
}

func (d *Dropzone) setDragging(v bool) {
	d.mu.Lock()
	d.dragging = v
	d.mu.Unlock()
}

// Drop 结束拖拽并处理投放的文件；空列表（非文件载荷）是空操作。
func (d *Dropzone) Drop(files []RawFile) BatchResult {
	d.setDragging(false)
	return d.handle("drop", files)
}

// Select 处理文件选择对话框提交的文件。
func (d *Dropzone) Select(files []RawFile) BatchResult {
	return d.handle("select", files)
}

// Errors 返回最近一次批次的错误文案。
func (d *Dropzone) Errors() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.errors...)
}

func (d *Dropzone) ClearErrors() {
	d.mu.Lock()
	d.errors = nil
	d.mu.Unlock()
}

func (d *Dropzone) handle(source string, files []RawFile) BatchResult {
	if len(files) == 0 {
		return BatchResult{}
	}

	multiple := d.validator.Rules().Multiple
	registered := d.reg.Len()
	if !multiple {
		// 单选模式下新文件替换尚未上传的条目。
		registered = d.reg.Count(func(e FileEntry) bool { return !NotUploaded(e) })
	}

	verdicts := d.validator.Validate(files, registered)
	result := BatchResult{Err: FirstRejection(verdicts)}
	for _, v := range verdicts {
		if !v.Accepted() {
			result.Rejected = append(result.Rejected, v)
		}
	}

	accepted := Accepted(verdicts)
	if len(accepted) > 0 {
		if !multiple {
			d.reg.Clear(NotUploaded)
		}
		entries, err := d.reg.Ingest(accepted)
		if err != nil {
			result.Err = err
		}
		result.Accepted = entries
	}

	d.mu.Lock()
	d.errors = nil
	if result.Err != nil {
		d.errors = []string{result.Err.Error()}
	}
	d.mu.Unlock()

	d.logger.Debug("batch handled",
		"source", source,
		"submitted", len(files),
		"accepted", len(result.Accepted),
		"rejected", len(result.Rejected),
	)
	return result
}
