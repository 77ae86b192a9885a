package transport

import (
	"bufio"
	"errors"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"
)

// Readiness 轮询结果
type Readiness int

// 定义轮询结果常量
const (
	WouldBlock Readiness = iota // 超时内没有可读数据
	Readable                    // 至少有一个字节可读
)

// Conn 带存活标记的消息连接
//
// 任意一次读写失败都会关闭底层连接并把连接标记为不可用，
// 调用方必须重新建立连接后才能继续收发。
type Conn struct {
	conn           net.Conn
	reader         *bufio.Reader
	maxMessageSize uint32

	writeMu   sync.Mutex
	broken    atomic.Bool
	closeOnce sync.Once
}

// NewConn 包装一个已建立的流式连接
func NewConn(conn net.Conn, maxMessageSize uint32) *Conn {
	return &Conn{
		conn:           conn,
		reader:         bufio.NewReader(conn),
		maxMessageSize: maxMessageSize,
	}
}

// Usable 连接是否仍可用
func (c *Conn) Usable() bool {
	return !c.broken.Load()
}

// RemoteAddr 对端地址
func (c *Conn) RemoteAddr() string {
	if addr := c.conn.RemoteAddr(); addr != nil {
		return addr.String()
	}
	return ""
}

// Send 发送一条消息
func (c *Conn) Send(payload []byte) error {
	if !c.Usable() {
		return ErrClosed
	}

	c.writeMu.Lock()
	err := SendMessage(c.conn, payload)
	c.writeMu.Unlock()

	if err != nil {
		c.invalidate()
		return fmt.Errorf("%w: %v", ErrClosed, err)
	}
	return nil
}

// Recv 接收一条消息
func (c *Conn) Recv() ([]byte, error) {
	if !c.Usable() {
		return nil, ErrClosed
	}

	payload, err := RecvMessage(c.reader, c.maxMessageSize)
	if err != nil {
		c.invalidate()
		return nil, err
	}
	return payload, nil
}

// Poll 在timeout内等待可读数据，不消耗任何字节
func (c *Conn) Poll(timeout time.Duration) (Readiness, error) {
	if !c.Usable() {
		return WouldBlock, ErrClosed
	}
	if c.reader.Buffered() > 0 {
		return Readable, nil
	}

	if err := c.conn.SetReadDeadline(time.Now().Add(timeout)); err != nil {
		c.invalidate()
		return WouldBlock, fmt.Errorf("%w: %v", ErrClosed, err)
	}
	_, err := c.reader.Peek(1)
	_ = c.conn.SetReadDeadline(time.Time{})

	if err == nil {
		return Readable, nil
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return WouldBlock, nil
	}
	c.invalidate()
	return WouldBlock, fmt.Errorf("%w: %v", ErrClosed, err)
}

// Close 关闭连接，可重复调用
func (c *Conn) Close() error {
	var err error
	c.closeOnce.Do(func() {
		c.broken.Store(true)
		err = c.conn.Close()
	})
	return err
}

// invalidate 标记连接不可用并关闭
func (c *Conn) invalidate() {
	c.broken.Store(true)
	_ = c.Close()
}
