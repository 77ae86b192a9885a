package transport

import (
	"context"
	"net"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// DialFunc 建立底层连接的函数
type DialFunc func(ctx context.Context, network, address string) (net.Conn, error)

// Dialer 带固定间隔重试的连接器
type Dialer struct {
	addr           string
	delay          time.Duration
	maxMessageSize uint32
	dial           DialFunc
	logger         *zap.Logger

	// 断网期间只偶尔打印警告
	warn rate.Sometimes
}

// DialerConfig 连接器配置
type DialerConfig struct {
	Addr           string        // 对端地址
	Delay          time.Duration // 重试间隔
	MaxMessageSize uint32        // 单条消息上限
	Dial           DialFunc      // 为空时使用 net.Dialer
}

// NewDialer 创建连接器
func NewDialer(cfg DialerConfig, logger *zap.Logger) *Dialer {
	dial := cfg.Dial
	if dial == nil {
		d := &net.Dialer{Timeout: 5 * time.Second, KeepAlive: 30 * time.Second}
		dial = d.DialContext
	}
	return &Dialer{
		addr:           cfg.Addr,
		delay:          cfg.Delay,
		maxMessageSize: cfg.MaxMessageSize,
		dial:           dial,
		logger:         logger,
		warn:           rate.Sometimes{First: 1, Interval: 30 * time.Second},
	}
}

// Connect 阻塞直到连接成功或ctx被取消
func (d *Dialer) Connect(ctx context.Context) (*Conn, error) {
	for attempt := 1; ; attempt++ {
		conn, err := d.dial(ctx, "tcp", d.addr)
		if err == nil {
			d.logger.Info("已连接到处理服务", zap.String("addr", d.addr), zap.Int("attempt", attempt))
			return NewConn(conn, d.maxMessageSize), nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}

		d.logger.Debug("连接失败", zap.String("addr", d.addr), zap.Int("attempt", attempt), zap.Error(err))
		d.warn.Do(func() {
			d.logger.Warn("处理服务不可达，持续重试中",
				zap.String("addr", d.addr), zap.Duration("delay", d.delay), zap.Error(err))
		})

		timer := time.NewTimer(d.delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-timer.C:
		}
	}
}
