package upload

import "context"

// Transport 发送单个文件。onProgress 在返回前可被调用零次或多次；
// 失败时应返回 *TransportError。
type Transport interface {
	Send(ctx context.Context, file LocalFile, onProgress func(Progress)) (ServerFile, error)
}

// TransportFunc 让普通函数满足 Transport。
type TransportFunc func(ctx context.Context, file LocalFile, onProgress func(Progress)) (ServerFile, error)

func (f TransportFunc) Send(ctx context.Context, file LocalFile, onProgress func(Progress)) (ServerFile, error) {
	return f(ctx, file, onProgress)
}

// Invalidator 接收画廊缓存失效信号，每个上传成功的文件触发一次。
type Invalidator interface {
	Invalidate()
}
