// Package asr 实现通过WebSocket流式上传音频的Whisper识别后端
package asr

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"smart_head/internal/clients/ws"
)

// 音频帧状态
const (
	StatusFirstFrame    = 0 // 第一帧
	StatusContinueFrame = 1 // 中间帧
	StatusLastFrame     = 2 // 最后帧
)

// frameBytes 每帧音频字节数（16kHz单声道下100ms）
const frameBytes = 3200

var (
	// ErrServer 识别服务返回错误
	ErrServer = errors.New("识别服务返回错误")
	// ErrNoResult 连接在返回结果前断开
	ErrNoResult = errors.New("识别服务未返回结果")
)

// WhisperConfig Whisper WebSocket服务配置
type WhisperConfig struct {
	URL      string        // 服务地址，如 ws://localhost:9090/asr
	Language string        // 识别语言
	Timeout  time.Duration // 单次识别超时
}

// AudioData 音频帧数据
type AudioData struct {
	Status   int    `json:"status"`
	Format   string `json:"format"`
	Audio    string `json:"audio"`
	Encoding string `json:"encoding"`
}

// Request 上行消息
type Request struct {
	Type     string    `json:"type"`
	Language string    `json:"language,omitempty"`
	Data     AudioData `json:"data"`
}

// Response 下行消息，type为result或error
type Response struct {
	Type    string `json:"type"`
	Text    string `json:"text"`
	Message string `json:"message,omitempty"`
}

// WhisperClient 每次识别建立一条WebSocket连接，发送完所有帧后等待result
type WhisperClient struct {
	config WhisperConfig
	logger *zap.Logger
}

// NewWhisperClient 创建新的 Whisper 客户端
func NewWhisperClient(config WhisperConfig, logger *zap.Logger) *WhisperClient {
	return &WhisperClient{config: config, logger: logger}
}

// Transcribe 识别一段PCM音频
func (c *WhisperClient) Transcribe(ctx context.Context, pcm []byte, sampleRate, channels int) (string, error) {
	if len(pcm) == 0 {
		return "", nil
	}
	if c.config.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.config.Timeout)
		defer cancel()
	}

	results := make(chan Response, 1)
	deliver := func(message []byte) error {
		var resp Response
		if err := json.Unmarshal(message, &resp); err != nil {
			return err
		}
		select {
		case results <- resp:
		default:
		}
		return nil
	}

	client := ws.NewClient(ws.Config{URL: c.config.URL, HeartbeatInterval: 15 * time.Second}, c.logger)
	client.RegisterHandler("result", deliver)
	client.RegisterHandler("error", deliver)
	if err := client.Connect(ctx); err != nil {
		return "", err
	}
	defer client.Close()

	format := fmt.Sprintf("audio/L16;rate=%d;channels=%d", sampleRate, channels)
	if err := c.sendFrames(ctx, client, pcm, format); err != nil {
		return "", err
	}

	select {
	case resp := <-results:
		return c.result(resp)
	case <-client.Done():
		// 结果可能与关闭同时到达
		select {
		case resp := <-results:
			return c.result(resp)
		default:
		}
		if err := client.Err(); err != nil {
			return "", fmt.Errorf("%w: %v", ErrNoResult, err)
		}
		return "", ErrNoResult
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

func (c *WhisperClient) result(resp Response) (string, error) {
	if resp.Type == "error" {
		return "", fmt.Errorf("%w: %s", ErrServer, resp.Message)
	}
	c.logger.Debug("收到识别结果", zap.String("text", resp.Text))
	return resp.Text, nil
}

// sendFrames 按固定大小切分音频，最后发送结束帧
func (c *WhisperClient) sendFrames(ctx context.Context, client *ws.Client, pcm []byte, format string) error {
	status := StatusFirstFrame
	for offset := 0; offset < len(pcm); offset += frameBytes {
		end := offset + frameBytes
		if end > len(pcm) {
			end = len(pcm)
		}
		req := Request{
			Type:     "audio",
			Language: c.config.Language,
			Data: AudioData{
				Status:   status,
				Format:   format,
				Audio:    base64.StdEncoding.EncodeToString(pcm[offset:end]),
				Encoding: "raw",
			},
		}
		if err := client.SendJSON(ctx, req); err != nil {
			return err
		}
		status = StatusContinueFrame
	}

	return client.SendJSON(ctx, Request{
		Type: "audio",
		Data: AudioData{Status: StatusLastFrame, Format: format, Encoding: "raw"},
	})
}
