// Package openai 封装OpenAI兼容接口（LM Studio、whisper.cpp server、openedai-speech等）
package openai

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	goopenai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"smart_head/internal/audio"
	"smart_head/internal/models"
)

// ErrEmptyChoice 模型没有返回任何候选
var ErrEmptyChoice = errors.New("模型未返回结果")

// Config 客户端配置
type Config struct {
	BaseURL string        // 服务地址，如 http://localhost:1234/v1
	APIKey  string        // API密钥，本地服务可以为空
	Timeout time.Duration // 单次调用超时
}

func newClient(cfg Config) *goopenai.Client {
	apiKey := cfg.APIKey
	if apiKey == "" {
		apiKey = "not-needed"
	}
	clientConfig := goopenai.DefaultConfig(apiKey)
	if cfg.BaseURL != "" {
		clientConfig.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	}
	return goopenai.NewClientWithConfig(clientConfig)
}

func withTimeout(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, timeout)
}

// ChatClient 对话模型
type ChatClient struct {
	client      *goopenai.Client
	model       string
	temperature float32
	maxTokens   int
	timeout     time.Duration
	logger      *zap.Logger
}

// ChatOptions 生成参数
type ChatOptions struct {
	Model       string
	Temperature float32
	MaxTokens   int
}

// NewChatClient 创建对话客户端
func NewChatClient(cfg Config, opts ChatOptions, logger *zap.Logger) *ChatClient {
	return &ChatClient{
		client:      newClient(cfg),
		model:       opts.Model,
		temperature: opts.Temperature,
		maxTokens:   opts.MaxTokens,
		timeout:     cfg.Timeout,
		logger:      logger,
	}
}

// Complete 根据对话历史生成回复
func (c *ChatClient) Complete(ctx context.Context, history []models.Message) (string, error) {
	ctx, cancel := withTimeout(ctx, c.timeout)
	defer cancel()

	messages := make([]goopenai.ChatCompletionMessage, 0, len(history))
	for _, msg := range history {
		messages = append(messages, goopenai.ChatCompletionMessage{
			Role:    msg.Role,
			Content: msg.Content,
		})
	}

	start := time.Now()
	resp, err := c.client.CreateChatCompletion(ctx, goopenai.ChatCompletionRequest{
		Model:       c.model,
		Messages:    messages,
		Temperature: c.temperature,
		MaxTokens:   c.maxTokens,
	})
	if err != nil {
		return "", fmt.Errorf("对话请求失败: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", ErrEmptyChoice
	}

	answer := strings.TrimSpace(resp.Choices[0].Message.Content)
	c.logger.Debug("对话完成",
		zap.Int("history", len(history)),
		zap.Duration("elapsed", time.Since(start)),
		zap.Int("tokens", resp.Usage.TotalTokens))
	return answer, nil
}

// TranscriptionClient 语音识别
type TranscriptionClient struct {
	client   *goopenai.Client
	model    string
	language string
	timeout  time.Duration
	logger   *zap.Logger
}

// NewTranscriptionClient 创建识别客户端
func NewTranscriptionClient(cfg Config, model, language string, logger *zap.Logger) *TranscriptionClient {
	return &TranscriptionClient{
		client:   newClient(cfg),
		model:    model,
		language: language,
		timeout:  cfg.Timeout,
		logger:   logger,
	}
}

// Transcribe 把PCM包装成WAV后上传识别
func (c *TranscriptionClient) Transcribe(ctx context.Context, pcm []byte, sampleRate, channels int) (string, error) {
	if len(pcm) == 0 {
		return "", nil
	}
	wav, err := audio.EncodeWAV(pcm, sampleRate, channels)
	if err != nil {
		return "", err
	}

	ctx, cancel := withTimeout(ctx, c.timeout)
	defer cancel()

	resp, err := c.client.CreateTranscription(ctx, goopenai.AudioRequest{
		Model:    c.model,
		FilePath: "audio.wav",
		Reader:   bytes.NewReader(wav),
		Language: c.language,
		Format:   goopenai.AudioResponseFormatJSON,
	})
	if err != nil {
		return "", fmt.Errorf("语音识别失败: %w", err)
	}
	return strings.TrimSpace(resp.Text), nil
}

// SpeechClient 语音合成，输出WAV
type SpeechClient struct {
	client  *goopenai.Client
	model   string
	voice   string
	timeout time.Duration
}

// NewSpeechClient 创建合成客户端
func NewSpeechClient(cfg Config, model, voice string) *SpeechClient {
	if model == "" {
		model = string(goopenai.TTSModel1)
	}
	return &SpeechClient{
		client:  newClient(cfg),
		model:   model,
		voice:   voice,
		timeout: cfg.Timeout,
	}
}

// Synthesize 合成一段文本
func (c *SpeechClient) Synthesize(ctx context.Context, text string) ([]byte, error) {
	if strings.TrimSpace(text) == "" {
		return nil, nil
	}

	ctx, cancel := withTimeout(ctx, c.timeout)
	defer cancel()

	resp, err := c.client.CreateSpeech(ctx, goopenai.CreateSpeechRequest{
		Model:          goopenai.SpeechModel(c.model),
		Input:          text,
		Voice:          goopenai.SpeechVoice(c.voice),
		ResponseFormat: goopenai.SpeechResponseFormatWav,
	})
	if err != nil {
		return nil, fmt.Errorf("语音合成失败: %w", err)
	}
	defer resp.Close()

	data, err := io.ReadAll(resp)
	if err != nil {
		return nil, fmt.Errorf("读取合成结果失败: %w", err)
	}
	return data, nil
}
