package upload

import "sync"

// progressStream 把传输层回调串行化为有序的进度流。
// close 之后到达的进度被丢弃，因此终态之后不会再观察到进度。
type progressStream struct {
	mu     sync.Mutex
	closed bool
	ch     chan Progress
	done   chan struct{}
}

// newProgressStream 启动一个消费者，按到达顺序把进度交给 apply。
func newProgressStream(apply func(Progress)) *progressStream {
	s := &progressStream{
		ch:   make(chan Progress, 16),
		done: make(chan struct{}),
	}
	go func() {
		defer close(s.done)
		for p := range s.ch {
			apply(p)
		}
	}()
	return s
}

func (s *progressStream) emit(p Progress) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.ch <- p
}

// close 停止接收并等待已排队的进度全部应用完毕。
func (s *progressStream) close() {
	s.mu.Lock()
	if !s.closed {
		s.closed = true
		close(s.ch)
	}
	s.mu.Unlock()
	<-s.done
}
