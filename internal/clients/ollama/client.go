// Package ollama 实现基于Ollama /api/chat 的对话后端
package ollama

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"smart_head/internal/models"
)

// Config Ollama客户端配置
type Config struct {
	Host    string        // Ollama服务器地址（完整URL）
	Model   string        // 使用的模型名称
	Timeout time.Duration // 单次请求超时
}

// Client Ollama客户端
type Client struct {
	config  Config
	options Options
	client  *http.Client
	logger  *zap.Logger
}

// ChatRequest 对话请求参数
type ChatRequest struct {
	Model    string           `json:"model"`             // 模型名称
	Messages []models.Message `json:"messages"`          // 有序的对话历史
	Stream   bool             `json:"stream"`            // 是否流式输出
	Options  Options          `json:"options,omitempty"` // 可选参数
}

// Options 生成选项
type Options struct {
	Temperature float32 `json:"temperature,omitempty"` // 温度参数
	NumPredict  int     `json:"num_predict,omitempty"` // 最大生成token数
}

// ChatResponse 对话响应
type ChatResponse struct {
	Model         string         `json:"model"`          // 模型名称
	CreatedAt     string         `json:"created_at"`     // 创建时间
	Message       models.Message `json:"message"`        // 助手回复
	Done          bool           `json:"done"`           // 是否完成
	TotalDuration int64          `json:"total_duration"` // 总耗时(纳秒)
	EvalCount     int            `json:"eval_count"`     // 生成token数
}

// NewClient 创建新的Ollama客户端
func NewClient(config Config, options Options, logger *zap.Logger) *Client {
	return &Client{
		config:  config,
		options: options,
		client:  &http.Client{Timeout: config.Timeout},
		logger:  logger,
	}
}

// Chat 发送一次非流式对话请求
func (c *Client) Chat(ctx context.Context, history []models.Message) (*ChatResponse, error) {
	reqBody := ChatRequest{
		Model:    c.config.Model,
		Messages: history,
		Stream:   false,
		Options:  c.options,
	}

	jsonData, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("序列化请求失败: %w", err)
	}

	url := strings.TrimRight(c.config.Host, "/") + "/api/chat"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(jsonData))
	if err != nil {
		return nil, fmt.Errorf("创建请求失败: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("发送请求失败: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("服务器返回错误: %d %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var response ChatResponse
	if err := json.NewDecoder(resp.Body).Decode(&response); err != nil {
		return nil, fmt.Errorf("解析响应失败: %w", err)
	}
	return &response, nil
}

// Complete 实现对话接口
func (c *Client) Complete(ctx context.Context, history []models.Message) (string, error) {
	response, err := c.Chat(ctx, history)
	if err != nil {
		return "", err
	}
	c.logger.Debug("Ollama对话完成",
		zap.String("model", response.Model),
		zap.Int("eval_count", response.EvalCount),
		zap.Duration("total", time.Duration(response.TotalDuration)))
	return strings.TrimSpace(response.Message.Content), nil
}
