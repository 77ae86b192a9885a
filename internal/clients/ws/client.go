// Package ws 提供通用的WebSocket客户端实现
package ws

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// ErrNotConnected 连接尚未建立或已关闭
var ErrNotConnected = errors.New("WebSocket未连接")

// MessageHandler 消息处理函数类型
type MessageHandler func(message []byte) error

// Config WebSocket客户端配置
type Config struct {
	URL               string            // WebSocket服务器地址
	Headers           map[string]string // 自定义请求头
	HandshakeTimeout  time.Duration     // 握手超时
	HeartbeatInterval time.Duration     // 心跳间隔，0表示不发送心跳
}

// Client WebSocket客户端
//
// 收到的文本消息按JSON中的type字段分发给已注册的处理器，
// 读循环退出后Done()关闭，Err()返回退出原因。
type Client struct {
	config Config
	logger *zap.Logger

	connLock sync.Mutex
	conn     *websocket.Conn

	handlers map[string]MessageHandler
	done     chan struct{}
	err      error
	stopOnce sync.Once
	stop     chan struct{}
}

// NewClient 创建新的WebSocket客户端
func NewClient(config Config, logger *zap.Logger) *Client {
	if config.HandshakeTimeout <= 0 {
		config.HandshakeTimeout = 10 * time.Second
	}
	return &Client{
		config:   config,
		logger:   logger,
		handlers: make(map[string]MessageHandler),
		done:     make(chan struct{}),
		stop:     make(chan struct{}),
	}
}

// RegisterHandler 注册消息处理器，必须在Connect之前调用
func (c *Client) RegisterHandler(messageType string, handler MessageHandler) {
	c.handlers[messageType] = handler
}

// Connect 连接到WebSocket服务器并启动读循环
func (c *Client) Connect(ctx context.Context) error {
	c.connLock.Lock()
	defer c.connLock.Unlock()

	header := http.Header{}
	for k, v := range c.config.Headers {
		header.Set(k, v)
	}

	dialer := websocket.Dialer{HandshakeTimeout: c.config.HandshakeTimeout}
	conn, _, err := dialer.DialContext(ctx, c.config.URL, header)
	if err != nil {
		return fmt.Errorf("连接WebSocket失败: %w", err)
	}
	c.conn = conn
	c.logger.Debug("已连接WebSocket服务器", zap.String("url", c.config.URL))

	go c.receiveLoop(conn)
	if c.config.HeartbeatInterval > 0 {
		go c.heartbeat(conn)
	}
	return nil
}

// SendJSON 发送一条JSON文本消息
//
// ctx带截止时间时作为写超时，对端不读时写入不会一直阻塞。
func (c *Client) SendJSON(ctx context.Context, message interface{}) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.connLock.Lock()
	defer c.connLock.Unlock()

	if c.conn == nil {
		return ErrNotConnected
	}
	data, err := json.Marshal(message)
	if err != nil {
		return fmt.Errorf("消息序列化失败: %w", err)
	}
	deadline, _ := ctx.Deadline()
	if err := c.conn.SetWriteDeadline(deadline); err != nil {
		return fmt.Errorf("设置写超时失败: %w", err)
	}
	if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
		return fmt.Errorf("消息发送失败: %w", err)
	}
	return nil
}

// Done 读循环退出时关闭
func (c *Client) Done() <-chan struct{} {
	return c.done
}

// Err 读循环退出的原因，正常关闭时为nil
func (c *Client) Err() error {
	select {
	case <-c.done:
		return c.err
	default:
		return nil
	}
}

// Close 发送关闭帧并断开连接
func (c *Client) Close() error {
	var err error
	c.stopOnce.Do(func() {
		close(c.stop)

		c.connLock.Lock()
		conn := c.conn
		c.conn = nil
		c.connLock.Unlock()
		if conn == nil {
			return
		}

		deadline := time.Now().Add(time.Second)
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), deadline)
		err = conn.Close()
	})
	return err
}

// receiveLoop 接收消息循环
func (c *Client) receiveLoop(conn *websocket.Conn) {
	defer close(c.done)
	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			select {
			case <-c.stop:
			default:
				if !websocket.IsCloseError(err, websocket.CloseNormalClosure) {
					c.err = fmt.Errorf("读取消息失败: %w", err)
				}
			}
			return
		}
		c.dispatch(message)
	}
}

// dispatch 根据消息类型调用对应的处理器
func (c *Client) dispatch(message []byte) {
	var envelope struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(message, &envelope); err != nil {
		c.logger.Warn("解析消息失败", zap.Error(err))
		return
	}
	handler, ok := c.handlers[envelope.Type]
	if !ok {
		c.logger.Debug("忽略未注册的消息类型", zap.String("type", envelope.Type))
		return
	}
	if err := handler(message); err != nil {
		c.logger.Warn("处理消息失败", zap.String("type", envelope.Type), zap.Error(err))
	}
}

// heartbeat 定时发送Ping
func (c *Client) heartbeat(conn *websocket.Conn) {
	ticker := time.NewTicker(c.config.HeartbeatInterval)
	defer ticker.Stop()
	for {
		select {
		case <-c.stop:
			return
		case <-c.done:
			return
		case <-ticker.C:
			deadline := time.Now().Add(c.config.HeartbeatInterval)
			if err := conn.WriteControl(websocket.PingMessage, nil, deadline); err != nil {
				c.logger.Warn("发送心跳失败", zap.Error(err))
				return
			}
		}
	}
}
