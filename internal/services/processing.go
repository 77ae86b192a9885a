// Package services 实现服务端的连接处理：识别、对话、合成与回复
package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"smart_head/internal/metrics"
	"smart_head/internal/models"
	"smart_head/internal/transport"
	"smart_head/internal/types"
)

var errEmptyAnswer = errors.New("模型返回空回复")

// ProcessingConfig 处理参数
type ProcessingConfig struct {
	SampleRate   int
	Channels     int
	ResponseKind types.ResponseKind
}

// ProcessingService 逐条处理一个连接上的语音消息
type ProcessingService struct {
	cfg         ProcessingConfig
	transcriber models.Transcriber
	synth       models.Synthesizer
	dialog      *DialogService
	lock        *ModelLock
	metrics     *metrics.Metrics
	logger      *zap.Logger
}

// NewProcessingService 创建处理服务，synth只在回复类型为audio时使用
func NewProcessingService(cfg ProcessingConfig, transcriber models.Transcriber, synth models.Synthesizer,
	dialog *DialogService, lock *ModelLock, m *metrics.Metrics, logger *zap.Logger) *ProcessingService {
	return &ProcessingService{
		cfg:         cfg,
		transcriber: transcriber,
		synth:       synth,
		dialog:      dialog,
		lock:        lock,
		metrics:     m,
		logger:      logger,
	}
}

// HandleConnection 循环 接收 → 识别 → 对话 → 回复，直到连接关闭
//
// 对端关闭或发送空消息时返回nil；传输或协议错误原样返回。
// 协作服务的错误只会变成兜底回复，不会结束连接。
func (s *ProcessingService) HandleConnection(ctx context.Context, sessionID string, conn *transport.Conn) error {
	dc := s.dialog.Open(sessionID, conn.RemoteAddr())
	defer s.dialog.Close(sessionID)

	logger := s.logger.With(zap.String("session_id", sessionID), zap.String("remote", conn.RemoteAddr()))
	logger.Info("客户端已连接")
	defer logger.Info("客户端已断开")

	for {
		payload, err := conn.Recv()
		if err != nil {
			if errors.Is(err, transport.ErrClosed) {
				return nil
			}
			return fmt.Errorf("接收消息失败: %w", err)
		}
		if len(payload) == 0 {
			logger.Debug("收到空消息，结束会话")
			return nil
		}
		s.metrics.MessagesReceived.Inc()
		s.metrics.MessageBytes.WithLabelValues("in").Observe(float64(len(payload)))

		reply := s.respond(ctx, dc, payload)
		if err := conn.Send(reply); err != nil {
			return fmt.Errorf("发送回复失败: %w", err)
		}
		s.metrics.MessageBytes.WithLabelValues("out").Observe(float64(len(reply)))
	}
}

// respond 生成一条回复的负载
func (s *ProcessingService) respond(ctx context.Context, dc *DialogContext, pcm []byte) []byte {
	var text string
	start := time.Now()
	err := s.lock.Do(ctx, func(ctx context.Context) error {
		var err error
		text, err = s.transcriber.Transcribe(ctx, pcm, s.cfg.SampleRate, s.cfg.Channels)
		return err
	})
	s.metrics.StageDuration.WithLabelValues(metrics.StageTranscribe).Observe(time.Since(start).Seconds())

	var (
		answer  string
		outcome string
	)
	if err != nil {
		s.metrics.CollaboratorError.WithLabelValues(metrics.StageTranscribe).Inc()
		s.logger.Error("语音识别失败", zap.String("session_id", dc.SessionID), zap.Error(err))
		answer, outcome = s.dialog.Fallback(dc)
	} else {
		s.logger.Debug("识别结果", zap.String("session_id", dc.SessionID), zap.String("text", text))
		answer, outcome = s.dialog.Reply(ctx, dc, text)
	}

	payload := s.encode(ctx, dc, answer)
	if len(payload) == 0 {
		outcome = metrics.OutcomeEmpty
	}
	s.metrics.Turns.WithLabelValues(outcome).Inc()
	return payload
}

// encode 按回复类型编码：文本为UTF-8，音频为合成的WAV，合成失败时为空消息
func (s *ProcessingService) encode(ctx context.Context, dc *DialogContext, answer string) []byte {
	if s.cfg.ResponseKind != types.ResponseKindAudio {
		return []byte(answer)
	}
	if s.synth == nil {
		s.logger.Warn("未配置语音合成，发送空回复", zap.String("session_id", dc.SessionID))
		return nil
	}

	var wav []byte
	start := time.Now()
	err := s.lock.Do(ctx, func(ctx context.Context) error {
		var err error
		wav, err = s.synth.Synthesize(ctx, answer)
		return err
	})
	s.metrics.StageDuration.WithLabelValues(metrics.StageSynthesize).Observe(time.Since(start).Seconds())
	if err != nil {
		s.metrics.CollaboratorError.WithLabelValues(metrics.StageSynthesize).Inc()
		s.logger.Error("语音合成失败", zap.String("session_id", dc.SessionID), zap.Error(err))
		return nil
	}
	return wav
}
