// Package types 定义基本类型
package types

// SessionState 会话状态
type SessionState int

// 定义会话状态常量
const (
	SessionStateIdle SessionState = iota
	SessionStateListening
	SessionStateSending
	SessionStateAwaitingReply
	SessionStatePlaying
	SessionStateFlushing
)

var sessionStateNames = map[SessionState]string{
	SessionStateIdle:          "idle",
	SessionStateListening:     "listening",
	SessionStateSending:       "sending",
	SessionStateAwaitingReply: "awaiting_reply",
	SessionStatePlaying:       "playing",
	SessionStateFlushing:      "flushing",
}

// String 返回状态名称
func (s SessionState) String() string {
	if name, ok := sessionStateNames[s]; ok {
		return name
	}
	return "unknown"
}

// Busy 是否处于一次发话尚未结束的状态（此时不允许开始新的录音）
func (s SessionState) Busy() bool {
	switch s {
	case SessionStateSending, SessionStateAwaitingReply, SessionStatePlaying:
		return true
	}
	return false
}

// ResponseKind 回复负载类型
type ResponseKind string

// 定义回复负载类型常量
const (
	ResponseKindText  ResponseKind = "text"
	ResponseKindAudio ResponseKind = "audio"
)

// Valid 是否为已知类型
func (k ResponseKind) Valid() bool {
	return k == ResponseKindText || k == ResponseKindAudio
}

// 对话角色
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)
