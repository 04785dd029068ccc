package upload

import (
	"sync"
	"time"
)

// EventType 标识注册表上的一次变更。
type EventType string

const (
	EventAdded    EventType = "added"
	EventRemoved  EventType = "removed"
	EventStatus   EventType = "status"
	EventProgress EventType = "progress"
)

// Event 携带变更后的条目快照。
type Event struct {
	Type  EventType `json:"type"`
	Entry FileEntry `json:"entry"`
	At    time.Time `json:"at"`
}

const defaultSubscriberBuffer = 64

// Broker 把注册表事件扇出给订阅者。
// 发布在注册表锁内进行，因此同一 id 的事件顺序与变更顺序一致；
// 缓冲区写满的订阅者会被断开，而不是丢弃中间事件。
type Broker struct {
	mu     sync.Mutex
	subs   map[int]chan Event
	next   int
	buffer int
}

func NewBroker(buffer int) *Broker {
	if buffer <= 0 {
		buffer = defaultSubscriberBuffer
	}
	return &Broker{subs: make(map[int]chan Event), buffer: buffer}
}

// Subscribe 返回事件通道和取消函数；取消后通道被关闭。
func (b *Broker) Subscribe() (<-chan Event, func()) {
	ch := make(chan Event, b.buffer)

	b.mu.Lock()
	id := b.next
	b.next++
	b.subs[id] = ch
	b.mu.Unlock()

	return ch, func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		if sub, ok := b.subs[id]; ok {
			delete(b.subs, id)
			close(sub)
		}
	}
}

func (b *Broker) publish(ev Event) {
	if b == nil {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	for id, ch := range b.subs {
		select {
		case ch <- ev:
		default:
			delete(b.subs, id)
			close(ch)
		}
	}
}
