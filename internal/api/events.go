package api

import (
	"net/http"
	"time"

	"github.com/Renedz21/client/internal/upload"

	"github.com/gorilla/websocket"
)

const (
	eventsWriteTimeout = 10 * time.Second
	eventsPongTimeout  = 60 * time.Second
	eventsPingInterval = 25 * time.Second
)

// streamMessage 是事件流上的一帧；首帧为 snapshot，之后为注册表事件。
type streamMessage struct {
	Type     string        `json:"type"`
	Snapshot *Snapshot     `json:"snapshot,omitempty"`
	Event    *upload.Event `json:"event,omitempty"`
}

// Events 通过 websocket 推送注册表变更。订阅者跟不上时连接会被服务端关闭，
// 客户端重连后重新获取快照即可。
func (h *SessionHandler) Events(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader().Upgrade(w, r, nil)
	if err != nil {
		// Upgrade 已经写入错误响应
		return
	}
	defer conn.Close()

	events, unsubscribe := h.session.Broker().Subscribe()
	defer unsubscribe()

	snapshot := h.session.Snapshot()
	if err := writeFrame(conn, streamMessage{Type: "snapshot", Snapshot: &snapshot}); err != nil {
		return
	}

	closed := make(chan struct{})
	go readUntilClosed(conn, closed)

	ticker := time.NewTicker(eventsPingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-closed:
			return
		case <-r.Context().Done():
			return
		case ev, ok := <-events:
			if !ok {
				_ = conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "subscriber too slow"),
					time.Now().Add(eventsWriteTimeout))
				return
			}
			if err := writeFrame(conn, streamMessage{Type: "event", Event: &ev}); err != nil {
				return
			}
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(eventsWriteTimeout)); err != nil {
				return
			}
		}
	}
}

func (h *SessionHandler) upgrader() *websocket.Upgrader {
	return &websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 4096,
		// 跨域由 CORS 中间件负责。
		CheckOrigin: func(r *http.Request) bool { return true },
	}
}

func writeFrame(conn *websocket.Conn, msg streamMessage) error {
	_ = conn.SetWriteDeadline(time.Now().Add(eventsWriteTimeout))
	return conn.WriteJSON(msg)
}

// readUntilClosed 只处理控制帧，客户端断开后关闭 closed。
func readUntilClosed(conn *websocket.Conn, closed chan<- struct{}) {
	defer close(closed)
	_ = conn.SetReadDeadline(time.Now().Add(eventsPongTimeout))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(eventsPongTimeout))
	})
	for {
		if _, _, err := conn.NextReader(); err != nil {
			return
		}
	}
}
