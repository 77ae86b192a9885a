package models

import "context"

// Message 对话消息
type Message struct {
	Role    string `json:"role"`    // 消息角色：system/user/assistant
	Content string `json:"content"` // 消息内容
}

// Transcriber 语音识别服务接口
type Transcriber interface {
	// Transcribe 识别PCM音频，返回文本（可能为空）
	Transcribe(ctx context.Context, pcm []byte, sampleRate, channels int) (string, error)
}

// Dialogue 对话生成服务接口
type Dialogue interface {
	// Complete 根据有序的对话历史生成回复
	Complete(ctx context.Context, history []Message) (string, error)
}

// Synthesizer 语音合成服务接口
type Synthesizer interface {
	// Synthesize 将文本合成为音频字节
	Synthesize(ctx context.Context, text string) ([]byte, error)
}
