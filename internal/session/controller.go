// Package session 实现客户端的录音/发送/等待/播放状态机
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"

	"smart_head/internal/transport"
	"smart_head/internal/types"
)

var (
	// ErrDevice 麦克风读写失败，会话无法继续
	ErrDevice = errors.New("音频设备错误")
	// ErrCaptureInFlight 上一段语音尚未结束时试图开始新的录音
	ErrCaptureInFlight = errors.New("上一段语音仍在处理中")
	// ErrIllegalTransition 非法的状态迁移
	ErrIllegalTransition = errors.New("非法的状态迁移")
)

// Microphone 麦克风，Pause只暂停采集而不关闭设备
type Microphone interface {
	Read(ctx context.Context) ([]byte, error)
	Pause() error
	Resume() error
}

// Cleaner 音频预处理
type Cleaner interface {
	Clean(raw []byte) []byte
}

// Connector 建立到处理服务的连接，失败时自行重试直到ctx取消
type Connector interface {
	Connect(ctx context.Context) (*transport.Conn, error)
}

// Speaker 播放回复，阻塞直到播放完成
type Speaker interface {
	Play(ctx context.Context, content []byte) error
}

// Config 状态机参数
type Config struct {
	RecordBytes  int                // 单次录音字节数
	FlushBytes   int                // 播放后丢弃的字节数
	PollInterval time.Duration      // 等待回复时每次轮询的超时
	ResponseKind types.ResponseKind // 回复负载类型
}

var transitions = map[types.SessionState][]types.SessionState{
	types.SessionStateIdle:          {types.SessionStateListening},
	types.SessionStateListening:     {types.SessionStateSending, types.SessionStateIdle},
	types.SessionStateSending:       {types.SessionStateAwaitingReply, types.SessionStateIdle},
	types.SessionStateAwaitingReply: {types.SessionStatePlaying, types.SessionStateListening, types.SessionStateSending, types.SessionStateIdle},
	types.SessionStatePlaying:       {types.SessionStateFlushing, types.SessionStateIdle},
	types.SessionStateFlushing:      {types.SessionStateListening, types.SessionStateIdle},
}

// Controller 会话状态机，同一时刻只有一段语音在途
type Controller struct {
	cfg       Config
	mic       Microphone
	cleaner   Cleaner
	connector Connector
	speaker   Speaker
	logger    *zap.Logger

	mu           sync.Mutex
	state        types.SessionState
	conn         *transport.Conn
	onTransition func(from, to types.SessionState)
}

// NewController 创建状态机
func NewController(cfg Config, mic Microphone, cleaner Cleaner, connector Connector, speaker Speaker, logger *zap.Logger) *Controller {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 10 * time.Millisecond
	}
	return &Controller{
		cfg:       cfg,
		mic:       mic,
		cleaner:   cleaner,
		connector: connector,
		speaker:   speaker,
		logger:    logger,
		state:     types.SessionStateIdle,
	}
}

// OnTransition 注册状态迁移回调
func (c *Controller) OnTransition(fn func(from, to types.SessionState)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onTransition = fn
}

// State 当前状态
func (c *Controller) State() types.SessionState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Run 循环执行对话轮次，直到ctx取消或设备出错
func (c *Controller) Run(ctx context.Context) error {
	stop := context.AfterFunc(ctx, c.dropConn)
	defer stop()
	defer c.dropConn()

	for {
		err := c.Turn(ctx)
		if ctx.Err() != nil {
			c.forceIdle()
			return ctx.Err()
		}
		if err != nil {
			if errors.Is(err, ErrDevice) {
				c.forceIdle()
				return err
			}
			c.logger.Warn("对话轮次失败", zap.Error(err))
			c.forceIdle()
		}
	}
}

// Turn 执行一轮完整的 录音 → 发送 → 等待 → 播放 → 清空
func (c *Controller) Turn(ctx context.Context) error {
	if err := c.beginCapture(); err != nil {
		return err
	}

	buffer, err := c.capture(ctx)
	if err != nil {
		return err
	}

	if err := c.transition(types.SessionStateSending); err != nil {
		return err
	}
	payload := c.cleaner.Clean(buffer)

	reply, err := c.exchange(ctx, payload)
	if err != nil {
		return err
	}

	if len(reply) == 0 {
		c.logger.Debug("收到空回复，继续聆听")
		return c.transition(types.SessionStateListening)
	}
	if c.cfg.ResponseKind == types.ResponseKindText && !utf8.Valid(reply) {
		c.logger.Warn("回复不是有效的UTF-8，断开连接")
		c.dropConn()
		return c.transition(types.SessionStateListening)
	}

	return c.playAndFlush(ctx, reply)
}

// beginCapture 进入Listening；处于在途状态时拒绝
func (c *Controller) beginCapture() error {
	c.mu.Lock()
	state := c.state
	c.mu.Unlock()

	if state.Busy() {
		return fmt.Errorf("%w: %s", ErrCaptureInFlight, state)
	}
	if state == types.SessionStateListening {
		return nil
	}
	return c.transition(types.SessionStateListening)
}

// capture 读取麦克风直到凑满一段录音
func (c *Controller) capture(ctx context.Context) ([]byte, error) {
	buffer := make([]byte, 0, c.cfg.RecordBytes)
	for len(buffer) < c.cfg.RecordBytes {
		chunk, err := c.mic.Read(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			return nil, fmt.Errorf("%w: 读取麦克风失败: %v", ErrDevice, err)
		}
		buffer = append(buffer, chunk...)
	}
	return buffer[:c.cfg.RecordBytes], nil
}

// exchange 发送一段语音并等待配对的回复；网络故障时重连并重发同一段数据
func (c *Controller) exchange(ctx context.Context, payload []byte) ([]byte, error) {
	for attempt := 1; ; attempt++ {
		conn, err := c.ensureConn(ctx)
		if err != nil {
			return nil, err
		}

		if c.State() != types.SessionStateSending {
			if err := c.transition(types.SessionStateSending); err != nil {
				return nil, err
			}
		}
		if err := conn.Send(payload); err != nil {
			c.logger.Warn("发送失败，重连后重发", zap.Int("attempt", attempt), zap.Error(err))
			c.dropConn()
			continue
		}

		if err := c.transition(types.SessionStateAwaitingReply); err != nil {
			return nil, err
		}
		reply, err := c.awaitReply(ctx, conn)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			if errors.Is(err, ErrDevice) {
				return nil, err
			}
			c.logger.Warn("等待回复失败，重连后重发", zap.Int("attempt", attempt), zap.Error(err))
			c.dropConn()
			continue
		}
		return reply, nil
	}
}

// awaitReply 轮询连接，空闲期间丢弃麦克风数据以免输入缓冲溢出
func (c *Controller) awaitReply(ctx context.Context, conn *transport.Conn) ([]byte, error) {
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		ready, err := conn.Poll(c.cfg.PollInterval)
		if err != nil {
			return nil, err
		}
		if ready == transport.Readable {
			return conn.Recv()
		}
		if _, err := c.mic.Read(ctx); err != nil && ctx.Err() == nil {
			return nil, fmt.Errorf("%w: 读取麦克风失败: %v", ErrDevice, err)
		}
	}
}

// playAndFlush 暂停麦克风播放回复，恢复后丢弃一小段输入
func (c *Controller) playAndFlush(ctx context.Context, reply []byte) error {
	if err := c.transition(types.SessionStatePlaying); err != nil {
		return err
	}
	if err := c.mic.Pause(); err != nil {
		return fmt.Errorf("%w: 暂停麦克风失败: %v", ErrDevice, err)
	}
	playErr := c.speaker.Play(ctx, reply)
	if err := c.mic.Resume(); err != nil {
		return fmt.Errorf("%w: 恢复麦克风失败: %v", ErrDevice, err)
	}
	if playErr != nil {
		return playErr
	}

	if err := c.transition(types.SessionStateFlushing); err != nil {
		return err
	}
	if err := c.flush(ctx); err != nil {
		return err
	}
	return c.transition(types.SessionStateListening)
}

// flush 丢弃刚恢复的麦克风输入，去掉残留回声
func (c *Controller) flush(ctx context.Context) error {
	discarded := 0
	for discarded < c.cfg.FlushBytes {
		chunk, err := c.mic.Read(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("%w: 读取麦克风失败: %v", ErrDevice, err)
		}
		discarded += len(chunk)
	}
	return nil
}

func (c *Controller) ensureConn(ctx context.Context) (*transport.Conn, error) {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn != nil && conn.Usable() {
		return conn, nil
	}

	conn, err := c.connector.Connect(ctx)
	if err != nil {
		return nil, err
	}
	c.mu.Lock()
	c.conn = conn
	c.mu.Unlock()
	return conn, nil
}

func (c *Controller) dropConn() {
	c.mu.Lock()
	conn := c.conn
	c.conn = nil
	c.mu.Unlock()
	if conn != nil {
		_ = conn.Close()
	}
}

func (c *Controller) transition(to types.SessionState) error {
	c.mu.Lock()
	from := c.state
	if !allowed(from, to) {
		c.mu.Unlock()
		return fmt.Errorf("%w: %s -> %s", ErrIllegalTransition, from, to)
	}
	c.state = to
	hook := c.onTransition
	c.mu.Unlock()

	c.logger.Debug("状态迁移", zap.Stringer("from", from), zap.Stringer("to", to))
	if hook != nil {
		hook(from, to)
	}
	return nil
}

func (c *Controller) forceIdle() {
	if c.State() != types.SessionStateIdle {
		_ = c.transition(types.SessionStateIdle)
	}
}

func allowed(from, to types.SessionState) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}
