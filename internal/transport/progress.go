// Package transport 提供各上传传输实现共用的工具。
package transport

import (
	"errors"
	"io"

	"github.com/Renedz21/client/internal/upload"
)

// ProgressReader 统计已被读取的字节数，并在百分比变化时回调。
// 底层 reader 可 Seek 时它也可 Seek，以便 SDK 重放请求体。
type ProgressReader struct {
	r          io.Reader
	total      int64
	sent       int64
	lastPct    int
	onProgress func(upload.Progress)
}

func NewProgressReader(r io.Reader, total int64, onProgress func(upload.Progress)) *ProgressReader {
	return &ProgressReader{r: r, total: total, lastPct: -1, onProgress: onProgress}
}

func (p *ProgressReader) Read(b []byte) (int, error) {
	n, err := p.r.Read(b)
	if n > 0 {
		p.sent += int64(n)
		p.report()
	}
	return n, err
}

func (p *ProgressReader) Seek(offset int64, whence int) (int64, error) {
	seeker, ok := p.r.(io.Seeker)
	if !ok {
		return 0, errors.New("transport: body is not seekable")
	}
	pos, err := seeker.Seek(offset, whence)
	if err != nil {
		return pos, err
	}
	p.sent = pos
	p.lastPct = -1
	return pos, nil
}

// Sent 返回已读取的字节数。
func (p *ProgressReader) Sent() int64 {
	return p.sent
}

func (p *ProgressReader) report() {
	if p.onProgress == nil || p.total <= 0 {
		return
	}
	progress := upload.NewProgress(p.sent, p.total)
	if progress.Percentage == p.lastPct {
		return
	}
	p.lastPct = progress.Percentage
	p.onProgress(progress)
}
