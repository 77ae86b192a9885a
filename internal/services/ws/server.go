// Package ws 通过WebSocket向监控端实时推送会话事件
package ws

import (
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"smart_head/internal/models"
)

// HubConfig 推送参数
type HubConfig struct {
	PingPeriod time.Duration // 心跳间隔
	PongWait   time.Duration // 超过该时间未收到pong则断开
	WriteWait  time.Duration // 单次写超时
	Buffer     int           // 每个订阅者的待发送事件数
}

func (c *HubConfig) applyDefaults() {
	if c.PongWait <= 0 {
		c.PongWait = 60 * time.Second
	}
	if c.PingPeriod <= 0 || c.PingPeriod >= c.PongWait {
		c.PingPeriod = c.PongWait * 9 / 10
	}
	if c.WriteWait <= 0 {
		c.WriteWait = 10 * time.Second
	}
	if c.Buffer <= 0 {
		c.Buffer = 64
	}
}

type subscriber struct {
	conn   *websocket.Conn
	events chan models.SessionEvent
}

// Hub 事件广播中心，慢速订阅者的事件会被丢弃而不是阻塞发布方
type Hub struct {
	cfg      HubConfig
	upgrader websocket.Upgrader
	logger   *zap.Logger

	mu          sync.Mutex
	subscribers map[*subscriber]struct{}
	closed      bool
}

// NewHub 创建广播中心
func NewHub(cfg HubConfig, logger *zap.Logger) *Hub {
	cfg.applyDefaults()
	return &Hub{
		cfg: cfg,
		upgrader: websocket.Upgrader{
			HandshakeTimeout: 10 * time.Second,
			ReadBufferSize:   1024,
			WriteBufferSize:  4096,
			CheckOrigin:      func(r *http.Request) bool { return true },
		},
		logger:      logger,
		subscribers: make(map[*subscriber]struct{}),
	}
}

// Publish 广播事件
func (h *Hub) Publish(ev models.SessionEvent) {
	if ev.Time.IsZero() {
		ev.Time = time.Now()
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	for sub := range h.subscribers {
		select {
		case sub.events <- ev:
		default:
			h.logger.Debug("订阅者过慢，丢弃事件",
				zap.String("type", ev.Type),
				zap.String("session_id", ev.SessionID))
		}
	}
}

// Subscribers 当前订阅者数量
func (h *Hub) Subscribers() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subscribers)
}

// ServeHTTP 升级为WebSocket并持续推送事件，直到对端断开
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("升级WebSocket连接失败", zap.Error(err))
		return
	}

	sub := &subscriber{conn: conn, events: make(chan models.SessionEvent, h.cfg.Buffer)}
	if !h.add(sub) {
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "shutting down"),
			time.Now().Add(h.cfg.WriteWait))
		_ = conn.Close()
		return
	}
	h.logger.Info("监控端已连接", zap.String("remote", conn.RemoteAddr().String()))

	done := make(chan struct{})
	go h.readLoop(sub, done)
	h.writeLoop(sub, done)

	h.remove(sub)
	_ = conn.Close()
	h.logger.Info("监控端已断开", zap.String("remote", conn.RemoteAddr().String()))
}

// readLoop 只处理pong和关闭帧
func (h *Hub) readLoop(sub *subscriber, done chan<- struct{}) {
	defer close(done)
	sub.conn.SetReadLimit(512)
	_ = sub.conn.SetReadDeadline(time.Now().Add(h.cfg.PongWait))
	sub.conn.SetPongHandler(func(string) error {
		return sub.conn.SetReadDeadline(time.Now().Add(h.cfg.PongWait))
	})
	for {
		if _, _, err := sub.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.logger.Debug("读取监控端消息失败", zap.Error(err))
			}
			return
		}
	}
}

func (h *Hub) writeLoop(sub *subscriber, done <-chan struct{}) {
	ticker := time.NewTicker(h.cfg.PingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case ev, ok := <-sub.events:
			if !ok {
				_ = sub.conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseGoingAway, "shutting down"),
					time.Now().Add(h.cfg.WriteWait))
				return
			}
			_ = sub.conn.SetWriteDeadline(time.Now().Add(h.cfg.WriteWait))
			if err := sub.conn.WriteJSON(ev); err != nil {
				h.logger.Debug("推送事件失败", zap.Error(err))
				return
			}
		case <-ticker.C:
			if err := sub.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(h.cfg.WriteWait)); err != nil {
				return
			}
		}
	}
}

func (h *Hub) add(sub *subscriber) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return false
	}
	h.subscribers[sub] = struct{}{}
	return true
}

func (h *Hub) remove(sub *subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.subscribers[sub]; ok {
		delete(h.subscribers, sub)
		close(sub.events)
	}
}

// Close 通知所有订阅者断开，之后的连接会被拒绝
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = true
	for sub := range h.subscribers {
		delete(h.subscribers, sub)
		close(sub.events)
	}
}
