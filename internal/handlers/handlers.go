// Package handlers 提供管理HTTP接口
package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"smart_head/internal/models"
	"smart_head/internal/services"
)

// SessionStore 会话查询与管理
type SessionStore interface {
	Sessions() []services.SessionInfo
	GetHistory(sessionID string) ([]models.Message, bool)
	ClearHistory(sessionID string) bool
}

// Handler 管理接口处理器
type Handler struct {
	sessions  SessionStore
	startedAt time.Time
	version   string
}

// NewHandler 创建处理器
func NewHandler(sessions SessionStore, version string) *Handler {
	return &Handler{
		sessions:  sessions,
		startedAt: time.Now(),
		version:   version,
	}
}

// Index 根路由
func (h *Handler) Index(c *gin.Context) {
	c.String(http.StatusOK, "smart_head processing server running")
}

// Health 健康检查
func (h *Handler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":   "ok",
		"service":  "smart_head",
		"version":  h.version,
		"uptime":   time.Since(h.startedAt).Round(time.Second).String(),
		"sessions": len(h.sessions.Sessions()),
		"time":     time.Now().Format(time.RFC3339),
	})
}

// ListSessions 列出当前连接的客户端
func (h *Handler) ListSessions(c *gin.Context) {
	sessions := h.sessions.Sessions()
	c.JSON(http.StatusOK, gin.H{
		"count":    len(sessions),
		"sessions": sessions,
	})
}

// GetHistory 查看某个会话的对话历史
func (h *Handler) GetHistory(c *gin.Context) {
	id := c.Param("id")
	history, ok := h.sessions.GetHistory(id)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "session not found"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"session_id": id,
		"messages":   history,
	})
}

// ClearHistory 清空某个会话的对话历史
func (h *Handler) ClearHistory(c *gin.Context) {
	id := c.Param("id")
	if !h.sessions.ClearHistory(id) {
		c.JSON(http.StatusNotFound, gin.H{"error": "session not found"})
		return
	}
	c.Status(http.StatusNoContent)
}

// RegisterRoutes 注册所有路由
func RegisterRoutes(r *gin.Engine, h *Handler, metricsHandler http.Handler) {
	r.GET("/", h.Index)
	r.GET("/health", h.Health)
	r.GET("/metrics", gin.WrapH(metricsHandler))

	sessions := r.Group("/sessions")
	sessions.GET("", h.ListSessions)
	sessions.GET("/:id/history", h.GetHistory)
	sessions.DELETE("/:id/history", h.ClearHistory)
}
