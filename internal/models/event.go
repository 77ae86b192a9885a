package models

import "time"

// 会话事件类型
const (
	EventSessionOpened = "session_opened"
	EventTurn          = "turn"
	EventSessionClosed = "session_closed"
)

// SessionEvent 会话生命周期事件，推送给监控端
type SessionEvent struct {
	Type       string    `json:"type"`
	SessionID  string    `json:"session_id"`
	RemoteAddr string    `json:"remote_addr,omitempty"`
	Time       time.Time `json:"time"`
	Transcript string    `json:"transcript,omitempty"` // 识别文本
	Reply      string    `json:"reply,omitempty"`      // 回复文本
	Outcome    string    `json:"outcome,omitempty"`    // reply / not_understood / fallback
}

// EventSink 接收会话事件，实现不得阻塞
type EventSink interface {
	Publish(ev SessionEvent)
}
