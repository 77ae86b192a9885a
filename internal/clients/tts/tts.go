// Package tts 提供基于外部程序的语音合成后端（piper、edge-tts或任意命令）
package tts

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"

	"smart_head/internal/audio"
	"smart_head/internal/clients/openai"
	"smart_head/internal/config"
	"smart_head/internal/models"
)

// ErrCommandNotFound 合成程序不存在
var ErrCommandNotFound = errors.New("找不到语音合成程序")

// DefaultTimeout 未配置超时时单次合成的上限
const DefaultTimeout = 30 * time.Second

// run 执行命令，stdin写入input，返回标准输出；超时后进程被杀死
func run(ctx context.Context, timeout time.Duration, command string, args []string, input string) ([]byte, error) {
	path, err := exec.LookPath(command)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrCommandNotFound, command)
	}

	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, path, args...)
	// 子进程继承了输出管道时，不无限等待管道关闭
	cmd.WaitDelay = time.Second
	if input != "" {
		cmd.Stdin = strings.NewReader(input)
	}
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("%s 执行超时: %w", command, ctx.Err())
		}
		return nil, fmt.Errorf("%s 执行失败: %v: %s", command, err, bytes.TrimSpace(stderr.Bytes()))
	}
	return stdout.Bytes(), nil
}

// CommandSynthesizer 文本写入标准输入，标准输出即为音频
type CommandSynthesizer struct {
	Command string
	Args    []string
	Timeout time.Duration
}

// Synthesize 实现合成接口
func (s *CommandSynthesizer) Synthesize(ctx context.Context, text string) ([]byte, error) {
	if strings.TrimSpace(text) == "" {
		return nil, nil
	}
	return run(ctx, s.Timeout, s.Command, s.Args, text)
}

// PiperSynthesizer 调用piper输出原始PCM并包装为WAV
type PiperSynthesizer struct {
	Command    string
	Model      string // .onnx模型文件
	SampleRate int    // 模型输出采样率
	Args       []string
	Timeout    time.Duration
}

// Synthesize 实现合成接口
func (s *PiperSynthesizer) Synthesize(ctx context.Context, text string) ([]byte, error) {
	if strings.TrimSpace(text) == "" {
		return nil, nil
	}
	args := append([]string{"--model", s.Model, "--output-raw"}, s.Args...)
	pcm, err := run(ctx, s.Timeout, s.Command, args, text)
	if err != nil {
		return nil, err
	}
	if len(pcm) == 0 {
		return nil, nil
	}
	return audio.EncodeWAV(pcm, s.SampleRate, 1)
}

// EdgeSynthesizer 调用edge-tts生成MP3
type EdgeSynthesizer struct {
	Command string
	Voice   string
	Args    []string
	Timeout time.Duration
}

// Synthesize 实现合成接口
func (s *EdgeSynthesizer) Synthesize(ctx context.Context, text string) ([]byte, error) {
	if strings.TrimSpace(text) == "" {
		return nil, nil
	}

	dir, err := os.MkdirTemp("", "edge-tts-")
	if err != nil {
		return nil, fmt.Errorf("创建临时目录失败: %w", err)
	}
	defer os.RemoveAll(dir)

	output := filepath.Join(dir, "reply.mp3")
	args := append([]string{"--voice", s.Voice, "--text", text, "--write-media", output}, s.Args...)
	if _, err := run(ctx, s.Timeout, s.Command, args, ""); err != nil {
		return nil, err
	}

	data, err := os.ReadFile(output)
	if err != nil {
		return nil, fmt.Errorf("读取合成结果失败: %w", err)
	}
	return data, nil
}

// New 根据配置创建合成后端
func New(cfg config.TTSConfig) (models.Synthesizer, error) {
	switch cfg.Backend {
	case "piper":
		command := cfg.Command
		if command == "" {
			command = "piper"
		}
		if cfg.Model == "" {
			return nil, fmt.Errorf("piper需要配置模型文件")
		}
		return &PiperSynthesizer{Command: command, Model: cfg.Model, SampleRate: cfg.OutputSampleRate, Args: cfg.Args, Timeout: cfg.Timeout}, nil
	case "edge":
		command := cfg.Command
		if command == "" {
			command = "edge-tts"
		}
		return &EdgeSynthesizer{Command: command, Voice: cfg.Voice, Args: cfg.Args, Timeout: cfg.Timeout}, nil
	case "openai":
		return openai.NewSpeechClient(openai.Config{BaseURL: cfg.URL, APIKey: cfg.APIKey, Timeout: cfg.Timeout}, cfg.Model, cfg.Voice), nil
	case "command":
		if cfg.Command == "" {
			return nil, fmt.Errorf("command后端需要配置command")
		}
		return &CommandSynthesizer{Command: cfg.Command, Args: cfg.Args, Timeout: cfg.Timeout}, nil
	default:
		return nil, fmt.Errorf("%w: %s", config.ErrUnknownBackend, cfg.Backend)
	}
}

// Describe 返回后端描述，用于启动日志
func Describe(cfg config.TTSConfig) []zap.Field {
	return []zap.Field{
		zap.String("backend", cfg.Backend),
		zap.String("voice", cfg.Voice),
		zap.String("model", cfg.Model),
		zap.Duration("timeout", cfg.Timeout),
	}
}
