package services

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"

	"smart_head/internal/metrics"
	"smart_head/internal/models"
	"smart_head/internal/types"
)

// 兜底回复
const (
	NotUnderstoodReply = "Я не расслышал. Повтори, пожалуйста."
	FallbackReply      = "Извини, произошла ошибка. Попробуй еще раз."
)

// DefaultSystemPrompt 默认系统提示词，要求简短、适合朗读的回答
const DefaultSystemPrompt = "Ты голосовой ассистент. Отвечай кратко, одним-двумя предложениями, " +
	"простым разговорным русским языком без списков, эмодзи и разметки, " +
	"потому что ответ будет озвучен синтезатором речи."

// DialogContext 单个连接的对话上下文，连接之间互不共享
type DialogContext struct {
	SessionID  string
	RemoteAddr string
	StartedAt  time.Time
	History    *History

	mu           sync.Mutex
	lastActivity time.Time
	turns        int
}

// SessionInfo 会话概要，用于管理接口
type SessionInfo struct {
	SessionID    string    `json:"session_id"`
	RemoteAddr   string    `json:"remote_addr"`
	StartedAt    time.Time `json:"started_at"`
	LastActivity time.Time `json:"last_activity"`
	Turns        int       `json:"turns"`
	HistoryLen   int       `json:"history_len"`
}

func (dc *DialogContext) touch(turn bool) {
	dc.mu.Lock()
	defer dc.mu.Unlock()
	dc.lastActivity = time.Now()
	if turn {
		dc.turns++
	}
}

func (dc *DialogContext) info() SessionInfo {
	dc.mu.Lock()
	defer dc.mu.Unlock()
	return SessionInfo{
		SessionID:    dc.SessionID,
		RemoteAddr:   dc.RemoteAddr,
		StartedAt:    dc.StartedAt,
		LastActivity: dc.lastActivity,
		Turns:        dc.turns,
		HistoryLen:   dc.History.Len(),
	}
}

// DialogConfig 对话参数
type DialogConfig struct {
	SystemPrompt string
	HistoryBound int              // 历史最多保留的消息条数
	MinTextRunes int              // 不超过该长度的识别结果视为噪声
	Events       models.EventSink // 会话事件去向，可为空
}

// DialogService 管理所有连接的对话上下文并调用对话模型
type DialogService struct {
	cfg      DialogConfig
	dialogue models.Dialogue
	lock     *ModelLock
	metrics  *metrics.Metrics
	logger   *zap.Logger

	mu       sync.RWMutex
	sessions map[string]*DialogContext
}

// NewDialogService 创建对话服务
func NewDialogService(cfg DialogConfig, dialogue models.Dialogue, lock *ModelLock, m *metrics.Metrics, logger *zap.Logger) *DialogService {
	if cfg.SystemPrompt == "" {
		cfg.SystemPrompt = DefaultSystemPrompt
	}
	return &DialogService{
		cfg:      cfg,
		dialogue: dialogue,
		lock:     lock,
		metrics:  m,
		logger:   logger,
		sessions: make(map[string]*DialogContext),
	}
}

// Open 为新连接创建对话上下文
func (s *DialogService) Open(sessionID, remoteAddr string) *DialogContext {
	now := time.Now()
	dc := &DialogContext{
		SessionID:    sessionID,
		RemoteAddr:   remoteAddr,
		StartedAt:    now,
		History:      NewHistory(s.cfg.HistoryBound),
		lastActivity: now,
	}

	s.mu.Lock()
	s.sessions[sessionID] = dc
	s.mu.Unlock()

	s.publish(models.SessionEvent{Type: models.EventSessionOpened, SessionID: sessionID, RemoteAddr: remoteAddr, Time: now})
	return dc
}

// Close 连接结束时丢弃对话上下文
func (s *DialogService) Close(sessionID string) {
	s.mu.Lock()
	dc, ok := s.sessions[sessionID]
	delete(s.sessions, sessionID)
	s.mu.Unlock()

	if ok {
		s.publish(models.SessionEvent{Type: models.EventSessionClosed, SessionID: sessionID, RemoteAddr: dc.RemoteAddr})
	}
}

func (s *DialogService) publish(ev models.SessionEvent) {
	if s.cfg.Events == nil {
		return
	}
	if ev.Time.IsZero() {
		ev.Time = time.Now()
	}
	s.cfg.Events.Publish(ev)
}

func (s *DialogService) publishTurn(dc *DialogContext, text, reply, outcome string) {
	s.publish(models.SessionEvent{
		Type:       models.EventTurn,
		SessionID:  dc.SessionID,
		RemoteAddr: dc.RemoteAddr,
		Transcript: text,
		Reply:      reply,
		Outcome:    outcome,
	})
}

// Sessions 返回当前所有会话，按开始时间排序
func (s *DialogService) Sessions() []SessionInfo {
	s.mu.RLock()
	infos := make([]SessionInfo, 0, len(s.sessions))
	for _, dc := range s.sessions {
		infos = append(infos, dc.info())
	}
	s.mu.RUnlock()

	sort.Slice(infos, func(i, j int) bool {
		if infos[i].StartedAt.Equal(infos[j].StartedAt) {
			return infos[i].SessionID < infos[j].SessionID
		}
		return infos[i].StartedAt.Before(infos[j].StartedAt)
	})
	return infos
}

// GetHistory 获取对话历史副本
func (s *DialogService) GetHistory(sessionID string) ([]models.Message, bool) {
	s.mu.RLock()
	dc, ok := s.sessions[sessionID]
	s.mu.RUnlock()
	if !ok {
		return nil, false
	}
	return dc.History.Messages(), true
}

// ClearHistory 清除对话历史
func (s *DialogService) ClearHistory(sessionID string) bool {
	s.mu.RLock()
	dc, ok := s.sessions[sessionID]
	s.mu.RUnlock()
	if !ok {
		return false
	}
	dc.History.Reset()
	return true
}

// Fallback 识别失败时记录一轮兜底回复，历史保持不变
func (s *DialogService) Fallback(dc *DialogContext) (string, string) {
	dc.touch(true)
	s.publishTurn(dc, "", FallbackReply, metrics.OutcomeFallback)
	return FallbackReply, metrics.OutcomeFallback
}

// Reply 根据识别文本生成回复，返回回复文本和结果类型
//
// 文本过短时直接返回NotUnderstoodReply且不修改历史；
// 模型失败时返回FallbackReply，历史同样保持不变。
func (s *DialogService) Reply(ctx context.Context, dc *DialogContext, text string) (string, string) {
	text = strings.TrimSpace(text)
	if utf8.RuneCountInString(text) <= s.cfg.MinTextRunes {
		s.logger.Info("识别文本过短，视为未听清",
			zap.String("session_id", dc.SessionID),
			zap.String("text", text))
		dc.touch(true)
		s.publishTurn(dc, text, NotUnderstoodReply, metrics.OutcomeNotUnderstood)
		return NotUnderstoodReply, metrics.OutcomeNotUnderstood
	}

	user := models.Message{Role: types.RoleUser, Content: text}
	window := append(dc.History.Messages(), user)
	if bound := dc.History.Bound(); bound > 0 && len(window) > bound {
		window = window[len(window)-bound:]
	} else if bound == 0 {
		window = window[len(window)-1:]
	}
	request := make([]models.Message, 0, len(window)+1)
	request = append(request, models.Message{Role: types.RoleSystem, Content: s.cfg.SystemPrompt})
	request = append(request, window...)

	var answer string
	start := time.Now()
	err := s.lock.Do(ctx, func(ctx context.Context) error {
		var err error
		answer, err = s.dialogue.Complete(ctx, request)
		return err
	})
	s.metrics.StageDuration.WithLabelValues(metrics.StageDialogue).Observe(time.Since(start).Seconds())
	dc.touch(true)

	if err == nil && strings.TrimSpace(answer) == "" {
		err = errEmptyAnswer
	}
	if err != nil {
		s.metrics.CollaboratorError.WithLabelValues(metrics.StageDialogue).Inc()
		s.logger.Error("对话模型调用失败",
			zap.String("session_id", dc.SessionID),
			zap.Error(err))
		s.publishTurn(dc, text, FallbackReply, metrics.OutcomeFallback)
		return FallbackReply, metrics.OutcomeFallback
	}

	dc.History.Append(user, models.Message{Role: types.RoleAssistant, Content: answer})
	s.logger.Info("对话完成",
		zap.String("session_id", dc.SessionID),
		zap.String("user", text),
		zap.String("assistant", answer),
		zap.Int("history", dc.History.Len()))
	s.publishTurn(dc, text, answer, metrics.OutcomeReply)
	return answer, metrics.OutcomeReply
}
