package handlers

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"go.uber.org/zap"

	"github.com/BaSui01/arpublish/workflow"
)

// =============================================================================
// 📡 事件推送 (WebSocket)
// =============================================================================

const (
	// DefaultSubscriberBuffer 每个订阅者的事件缓冲
	DefaultSubscriberBuffer = 16
	eventWriteTimeout       = 5 * time.Second
)

// EventHub 将控制器的呈现事件扇出给所有订阅者
type EventHub struct {
	mu     sync.RWMutex
	subs   map[chan workflow.Event]struct{}
	last   *workflow.Event
	buffer int
	closed bool
	logger *zap.Logger
}

// NewEventHub 创建事件中心
func NewEventHub(logger *zap.Logger) *EventHub {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &EventHub{
		subs:   make(map[chan workflow.Event]struct{}),
		buffer: DefaultSubscriberBuffer,
		logger: logger.With(zap.String("component", "event_hub")),
	}
}

// Sink 返回可交给 workflow.NewEventPresenter 的回调
func (h *EventHub) Sink() func(workflow.Event) {
	return h.Publish
}

// Publish 非阻塞地投递事件；缓冲已满的订阅者丢弃该事件
func (h *EventHub) Publish(e workflow.Event) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	h.last = &e
	for ch := range h.subs {
		select {
		case ch <- e:
		default:
			h.logger.Warn("subscriber too slow, event dropped", zap.String("type", string(e.Type)))
		}
	}
}

// Last 返回最近一次事件
func (h *EventHub) Last() (workflow.Event, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.last == nil {
		return workflow.Event{}, false
	}
	return *h.last, true
}

// Subscribe 注册订阅者，返回事件通道与取消函数
func (h *EventHub) Subscribe() (<-chan workflow.Event, func()) {
	ch := make(chan workflow.Event, h.buffer)
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		close(ch)
		return ch, func() {}
	}
	h.subs[ch] = struct{}{}
	h.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			h.mu.Lock()
			defer h.mu.Unlock()
			if _, ok := h.subs[ch]; ok {
				delete(h.subs, ch)
				close(ch)
			}
		})
	}
}

// Subscribers 当前订阅者数量
func (h *EventHub) Subscribers() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}

// Close 关闭所有订阅通道
func (h *EventHub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	h.closed = true
	for ch := range h.subs {
		delete(h.subs, ch)
		close(ch)
	}
}

// HandleEvents 处理 GET /api/v1/events
// 连接建立后先补发最近一次事件，之后逐条推送 JSON 文本消息
func (h *EventHub) HandleEvents(w http.ResponseWriter, r *http.Request) {
	// 长连接不受服务器 WriteTimeout 约束，写超时由 eventWriteTimeout 控制
	_ = http.NewResponseController(w).SetWriteDeadline(time.Time{})

	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket accept failed", zap.Error(err))
		return
	}
	defer conn.CloseNow()

	events, cancel := h.Subscribe()
	defer cancel()

	// 只写连接：CloseRead 处理控制帧，客户端断开时取消 ctx
	ctx := conn.CloseRead(r.Context())

	if last, ok := h.Last(); ok {
		if err := h.write(ctx, conn, last); err != nil {
			return
		}
	}

	for {
		select {
		case <-ctx.Done():
			return
		case e, ok := <-events:
			if !ok {
				conn.Close(websocket.StatusGoingAway, "server shutting down")
				return
			}
			if err := h.write(ctx, conn, e); err != nil {
				h.logger.Debug("event write failed", zap.Error(err))
				return
			}
		}
	}
}

func (h *EventHub) write(ctx context.Context, conn *websocket.Conn, e workflow.Event) error {
	ctx, cancel := context.WithTimeout(ctx, eventWriteTimeout)
	defer cancel()
	return wsjson.Write(ctx, conn, e)
}
