package upload

import (
	"context"
	"errors"
	"fmt"
)

// 面向用户的校验错误文案。
var (
	ErrInvalidFileType = errors.New("invalid file type")
	ErrFileTooLarge    = errors.New("file too large")
	ErrTooManyFiles    = errors.New("too many files")
)

// 注册表一致性错误。
var (
	ErrUnknownFile       = errors.New("upload: unknown file id")
	ErrInvalidTransition = errors.New("upload: invalid status transition")
	ErrStaleUpload       = errors.New("upload: stale upload generation")
	ErrRegistryFull      = errors.New("upload: registry is full")
)

// DefaultFailureMessage 在传输错误没有消息时使用。
const DefaultFailureMessage = "upload failed"

// ValidationError 记录一个被拒绝的候选文件。
type ValidationError struct {
	File string
	Err  error
}

func (e *ValidationError) Error() string {
	return e.Err.Error()
}

func (e *ValidationError) Unwrap() error {
	return e.Err
}

// TransportError 是传输层失败的统一类型，Status 为 0 表示没有收到 HTTP 响应。
type TransportError struct {
	Message string
	Status  int
	Body    string
	Err     error
}

func (e *TransportError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	return DefaultFailureMessage
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// ConsistencyError 表示操作引用了未知或状态不符的条目，操作不会生效。
type ConsistencyError struct {
	Op  string
	ID  string
	Err error
}

func (e *ConsistencyError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.ID, e.Err)
}

func (e *ConsistencyError) Unwrap() error {
	return e.Err
}

// UserMessage 返回上传失败时展示给用户的文案。
func UserMessage(err error) string {
	if err == nil {
		return ""
	}
	var te *TransportError
	if errors.As(err, &te) {
		if te.Message != "" {
			return te.Message
		}
		return DefaultFailureMessage
	}
	if errors.Is(err, context.Canceled) {
		return "Upload was aborted"
	}
	if msg := err.Error(); msg != "" {
		return msg
	}
	return DefaultFailureMessage
}
