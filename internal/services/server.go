package services

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"smart_head/internal/metrics"
	"smart_head/internal/transport"
)

// ConnectionHandler 处理一个已接受的连接
type ConnectionHandler interface {
	HandleConnection(ctx context.Context, sessionID string, conn *transport.Conn) error
}

// ServerConfig TCP服务配置
type ServerConfig struct {
	ListenAddr     string
	AcceptRate     float64 // 每个IP每秒允许的新连接数，0表示不限
	AcceptBurst    int
	MaxMessageSize uint32
}

// Server 接受客户端连接，每个连接一个goroutine
type Server struct {
	cfg     ServerConfig
	handler ConnectionHandler
	limiter *ipLimiter
	metrics *metrics.Metrics
	logger  *zap.Logger

	mu    sync.Mutex
	conns map[string]*transport.Conn
	addr  net.Addr
	ready chan struct{}
}

// NewServer 创建服务
func NewServer(cfg ServerConfig, handler ConnectionHandler, m *metrics.Metrics, logger *zap.Logger) *Server {
	return &Server{
		cfg:     cfg,
		handler: handler,
		limiter: newIPLimiter(cfg.AcceptRate, cfg.AcceptBurst),
		metrics: m,
		logger:  logger,
		conns:   make(map[string]*transport.Conn),
		ready:   make(chan struct{}),
	}
}

// Serve 监听配置的地址，直到ctx取消
func (s *Server) Serve(ctx context.Context) error {
	var lc net.ListenConfig
	listener, err := lc.Listen(ctx, "tcp", s.cfg.ListenAddr)
	if err != nil {
		return fmt.Errorf("监听 %s 失败: %w", s.cfg.ListenAddr, err)
	}
	return s.ServeListener(ctx, listener)
}

// ServeListener 在已有的监听器上接受连接
//
// ctx取消时关闭监听器和所有活动连接，阻塞中的接收会立即返回，
// 等所有连接处理结束后返回nil。
func (s *Server) ServeListener(ctx context.Context, listener net.Listener) error {
	s.mu.Lock()
	s.addr = listener.Addr()
	s.mu.Unlock()
	close(s.ready)
	s.logger.Info("处理服务已启动", zap.String("addr", listener.Addr().String()))

	stop := context.AfterFunc(ctx, func() {
		_ = listener.Close()
		s.closeAll()
	})
	defer stop()
	go s.limiter.cleanup(ctx, time.Minute)

	var wg sync.WaitGroup
	defer wg.Wait()

	for {
		raw, err := listener.Accept()
		if err != nil {
			if ctx.Err() != nil {
				s.logger.Info("处理服务已停止")
				return nil
			}
			if errors.Is(err, net.ErrClosed) {
				return nil
			}
			return fmt.Errorf("接受连接失败: %w", err)
		}

		if !s.limiter.allow(raw.RemoteAddr()) {
			s.metrics.ConnectionsRejected.Inc()
			s.logger.Warn("连接过于频繁，拒绝", zap.String("remote", raw.RemoteAddr().String()))
			_ = raw.Close()
			continue
		}

		conn := transport.NewConn(raw, s.cfg.MaxMessageSize)
		sessionID := uuid.NewString()
		s.track(sessionID, conn)
		if ctx.Err() != nil {
			_ = conn.Close()
		}

		wg.Add(1)
		go func() {
			defer wg.Done()
			s.serveConn(ctx, sessionID, conn)
		}()
	}
}

func (s *Server) serveConn(ctx context.Context, sessionID string, conn *transport.Conn) {
	start := time.Now()
	s.metrics.ConnectionsAccepted.Inc()
	s.metrics.ActiveSessions.Inc()
	defer func() {
		s.untrack(sessionID)
		_ = conn.Close()
		s.metrics.ActiveSessions.Dec()
		s.metrics.SessionDuration.Observe(time.Since(start).Seconds())
	}()

	if err := s.handler.HandleConnection(ctx, sessionID, conn); err != nil && ctx.Err() == nil {
		s.logger.Warn("连接异常结束", zap.String("session_id", sessionID), zap.Error(err))
	}
}

// Addr 监听地址，启动完成前阻塞
func (s *Server) Addr(ctx context.Context) (net.Addr, error) {
	select {
	case <-s.ready:
		s.mu.Lock()
		defer s.mu.Unlock()
		return s.addr, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// ActiveConnections 当前连接数
func (s *Server) ActiveConnections() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.conns)
}

func (s *Server) track(sessionID string, conn *transport.Conn) {
	s.mu.Lock()
	s.conns[sessionID] = conn
	s.mu.Unlock()
}

func (s *Server) untrack(sessionID string) {
	s.mu.Lock()
	delete(s.conns, sessionID)
	s.mu.Unlock()
}

func (s *Server) closeAll() {
	s.mu.Lock()
	conns := make([]*transport.Conn, 0, len(s.conns))
	for _, conn := range s.conns {
		conns = append(conns, conn)
	}
	s.mu.Unlock()

	for _, conn := range conns {
		_ = conn.Close()
	}
}
