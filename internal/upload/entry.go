package upload

import (
	"math"
)

// Status 描述单个文件条目的上传生命周期。
type Status string

const (
	StatusPending   Status = "pending"
	StatusUploading Status = "uploading"
	StatusUploaded  Status = "uploaded"
	StatusFailed    Status = "failed"
)

// Terminal 表示一次上传尝试已经落定。
func (s Status) Terminal() bool {
	return s == StatusUploaded || s == StatusFailed
}

// SourceKind 区分本地二进制文件与远端引用。
type SourceKind string

const (
	SourceLocal  SourceKind = "local"
	SourceRemote SourceKind = "remote"
)

// RawFile 是一次拖放或选择操作提交的候选文件。
type RawFile struct {
	Name string
	Type string
	Size int64
	Data []byte
}

func (f RawFile) size() int64 {
	if f.Size > 0 {
		return f.Size
	}
	return int64(len(f.Data))
}

// RemoteReference 描述初始化时传入的、已经存在于服务端的文件。
type RemoteReference struct {
	ID   string `json:"id"`
	URL  string `json:"url"`
	Name string `json:"name"`
	Size int64  `json:"size"`
	Type string `json:"type"`
}

// Source 恰好填充 Data（本地）或 URL（远端）之一。
type Source struct {
	Kind SourceKind `json:"kind"`
	Name string     `json:"name"`
	Size int64      `json:"size"`
	Type string     `json:"type"`
	URL  string     `json:"url,omitempty"`
	Data []byte     `json:"-"`
}

func localSource(f RawFile) Source {
	return Source{Kind: SourceLocal, Name: f.Name, Size: f.size(), Type: f.Type, Data: f.Data}
}

func remoteSource(ref RemoteReference) Source {
	return Source{Kind: SourceRemote, Name: ref.Name, Size: ref.Size, Type: ref.Type, URL: ref.URL}
}

// Progress 是单个在途上传的字节进度。
type Progress struct {
	BytesSent  int64 `json:"bytesSent"`
	BytesTotal int64 `json:"bytesTotal"`
	Percentage int   `json:"percentage"`
}

// NewProgress 按 round(sent/total*100) 计算百分比，并限制在 0..100。
func NewProgress(sent, total int64) Progress {
	p := Progress{BytesSent: sent, BytesTotal: total}
	if total > 0 {
		p.Percentage = int(math.Round(float64(sent) / float64(total) * 100))
	}
	switch {
	case p.Percentage < 0:
		p.Percentage = 0
	case p.Percentage > 100:
		p.Percentage = 100
	}
	return p
}

// ServerFile 是上传成功后服务端返回的元数据。
type ServerFile struct {
	ID   string `json:"id"`
	URL  string `json:"url"`
	Name string `json:"name"`
	Size int64  `json:"size"`
	Type string `json:"type"`
}

// FileEntry 是注册表对外暴露的只读快照。
type FileEntry struct {
	ID         string      `json:"id"`
	Source     Source      `json:"source"`
	PreviewURL string      `json:"preview,omitempty"`
	Status     Status      `json:"status"`
	Progress   *Progress   `json:"progress,omitempty"`
	Result     *ServerFile `json:"result,omitempty"`
	Error      string      `json:"error,omitempty"`
}

// Uploadable 判断条目是否可以进入上传队列。
func (e FileEntry) Uploadable() bool {
	if e.Source.Kind != SourceLocal {
		return false
	}
	return e.Status == StatusPending || e.Status == StatusFailed
}

// LocalFile 是交给传输层的本地文件。
type LocalFile struct {
	ID   string
	Name string
	Type string
	Size int64
	Data []byte
}
