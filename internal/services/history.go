package services

import (
	"sync"

	"smart_head/internal/models"
)

// History 有界的对话历史，超出上限时从最旧的消息开始淘汰
type History struct {
	mu       sync.RWMutex
	bound    int
	messages []models.Message
}

// NewHistory 创建历史，bound为最多保留的消息条数，0表示不保留
func NewHistory(bound int) *History {
	if bound < 0 {
		bound = 0
	}
	return &History{
		bound:    bound,
		messages: make([]models.Message, 0, bound),
	}
}

// Append 追加消息并淘汰超出上限的旧消息
func (h *History) Append(msgs ...models.Message) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.messages = append(h.messages, msgs...)
	if over := len(h.messages) - h.bound; over > 0 {
		kept := make([]models.Message, h.bound, h.bound+2)
		copy(kept, h.messages[over:])
		h.messages = kept
	}
}

// Messages 返回按时间顺序排列的历史副本
func (h *History) Messages() []models.Message {
	h.mu.RLock()
	defer h.mu.RUnlock()

	history := make([]models.Message, len(h.messages))
	copy(history, h.messages)
	return history
}

// Len 当前消息条数
func (h *History) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.messages)
}

// Bound 消息条数上限
func (h *History) Bound() int {
	return h.bound
}

// Reset 清空历史
func (h *History) Reset() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.messages = make([]models.Message, 0, h.bound)
}
