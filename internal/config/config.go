// Package config 提供配置加载和管理功能
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"smart_head/internal/types"
)

// Config 应用程序配置结构
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Client    ClientConfig    `yaml:"client"`
	Audio     AudioConfig     `yaml:"audio"`
	Transport TransportConfig `yaml:"transport"`
	Dialog    DialogConfig    `yaml:"dialog"`
	STT       STTConfig       `yaml:"stt"`
	TTS       TTSConfig       `yaml:"tts"`
	Response  ResponseConfig  `yaml:"response"`
	Playback  PlaybackConfig  `yaml:"playback"`
	Log       LogConfig       `yaml:"log"`
}

// ServerConfig 处理服务端配置
type ServerConfig struct {
	ListenAddr  string  `yaml:"listen_addr"`  // TCP监听地址
	HTTPAddr    string  `yaml:"http_addr"`    // 管理HTTP地址，为空则不启动
	AcceptRate  float64 `yaml:"accept_rate"`  // 每个IP每秒允许的新连接数
	AcceptBurst int     `yaml:"accept_burst"` // 新连接突发上限
}

// ClientConfig 边缘客户端配置
type ClientConfig struct {
	ServerAddr     string        `yaml:"server_addr"`     // 处理服务地址
	ReconnectDelay time.Duration `yaml:"reconnect_delay"` // 重连间隔
	RecordSeconds  float64       `yaml:"record_seconds"`  // 单次录音时长（秒）
	ChunkFrames    int           `yaml:"chunk_frames"`    // 每次读取的采样数
	FlushDuration  time.Duration `yaml:"flush_duration"`  // 播放后丢弃的麦克风输入时长
	PollInterval   time.Duration `yaml:"poll_interval"`   // 等待回复时的轮询超时
	InputDevice    int           `yaml:"input_device"`    // 麦克风设备索引，-1表示默认设备
}

// AudioConfig 音频预处理配置
type AudioConfig struct {
	SampleRate        int     `yaml:"sample_rate"`        // 采样率
	Channels          int     `yaml:"channels"`           // 声道数
	HighpassCutoff    float64 `yaml:"highpass_cutoff"`    // 高通滤波截止频率
	HighpassOrder     int     `yaml:"highpass_order"`     // 高通滤波阶数（偶数）
	NoiseReduction    float64 `yaml:"noise_reduction"`    // 降噪强度 0..1
	VADAggressiveness int     `yaml:"vad_aggressiveness"` // VAD激进程度 0..3
	VADFrameMs        int     `yaml:"vad_frame_ms"`       // VAD帧长（毫秒）
}

// TransportConfig 传输层配置
type TransportConfig struct {
	MaxMessageSize uint32 `yaml:"max_message_size"` // 单条消息最大字节数
}

// DialogConfig 对话模型配置
type DialogConfig struct {
	Backend      string        `yaml:"backend"`        // openai 或 ollama
	BaseURL      string        `yaml:"base_url"`       // 服务地址
	APIKey       string        `yaml:"api_key"`        // API密钥
	Model        string        `yaml:"model"`          // 模型名称
	Temperature  float32       `yaml:"temperature"`    // 温度参数
	MaxTokens    int           `yaml:"max_tokens"`     // 最大生成token数
	HistoryLimit int           `yaml:"history_limit"`  // 保留的对话轮数（每轮两条消息）
	SystemPrompt string        `yaml:"system_prompt"`  // 系统提示词
	MinTextRunes int           `yaml:"min_text_runes"` // 不超过该长度的识别结果视为噪声
	Timeout      time.Duration `yaml:"timeout"`        // 单次调用超时
}

// STTConfig 语音识别配置
type STTConfig struct {
	Backend  string        `yaml:"backend"`  // openai 或 whisper_ws
	URL      string        `yaml:"url"`      // 服务地址
	APIKey   string        `yaml:"api_key"`  // API密钥
	Model    string        `yaml:"model"`    // 模型名称
	Language string        `yaml:"language"` // 识别语言
	Timeout  time.Duration `yaml:"timeout"`  // 单次识别超时
}

// TTSConfig 语音合成配置
type TTSConfig struct {
	Backend          string        `yaml:"backend"`            // piper / edge / openai / command
	Command          string        `yaml:"command"`            // 可执行文件
	Args             []string      `yaml:"args"`               // 额外参数
	URL              string        `yaml:"url"`                // openai兼容服务地址
	APIKey           string        `yaml:"api_key"`            // API密钥
	Model            string        `yaml:"model"`              // 模型（piper为模型文件路径）
	Voice            string        `yaml:"voice"`              // 声音
	OutputSampleRate int           `yaml:"output_sample_rate"` // 合成音频采样率
	Timeout          time.Duration `yaml:"timeout"`            // 单次合成超时
}

// ResponseConfig 回复负载配置
type ResponseConfig struct {
	Kind types.ResponseKind `yaml:"kind"` // text 或 audio，两端必须一致
}

// PlaybackConfig 播放配置
type PlaybackConfig struct {
	Backend string   `yaml:"backend"` // command 或 portaudio
	Command string   `yaml:"command"` // 播放命令，如 aplay / mpg123
	Args    []string `yaml:"args"`    // 播放命令参数
}

// LogConfig 日志配置
type LogConfig struct {
	Level       string   `yaml:"level"`        // debug/info/warn/error
	Format      string   `yaml:"format"`       // json 或 console
	OutputPaths []string `yaml:"output_paths"` // 输出路径
}

// Load 从文件加载配置
func Load(filename string) (*Config, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("读取配置文件失败: %w", err)
	}
	return Parse(data)
}

// Parse 解析YAML配置内容
func Parse(data []byte) (*Config, error) {
	config := Default()
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("解析配置文件失败: %w", err)
	}

	applyDefaults(config)

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("配置验证失败: %w", err)
	}
	return config, nil
}

// Default 返回默认配置
func Default() *Config {
	config := &Config{
		Server: ServerConfig{HTTPAddr: ":8080"},
		Client: ClientConfig{InputDevice: -1},
		Audio:  AudioConfig{VADAggressiveness: 2},
	}
	applyDefaults(config)
	return config
}

// applyDefaults 为未设置的字段填充默认值
func applyDefaults(config *Config) {
	if config.Server.ListenAddr == "" {
		config.Server.ListenAddr = ":5000"
	}
	if config.Server.AcceptRate == 0 {
		config.Server.AcceptRate = 5
	}
	if config.Server.AcceptBurst == 0 {
		config.Server.AcceptBurst = 10
	}

	if config.Client.ServerAddr == "" {
		config.Client.ServerAddr = "127.0.0.1:5000"
	}
	if config.Client.ReconnectDelay == 0 {
		config.Client.ReconnectDelay = 3 * time.Second
	}
	if config.Client.RecordSeconds == 0 {
		config.Client.RecordSeconds = 5
	}
	if config.Client.ChunkFrames == 0 {
		config.Client.ChunkFrames = 1024
	}
	if config.Client.FlushDuration == 0 {
		config.Client.FlushDuration = 500 * time.Millisecond
	}
	if config.Client.PollInterval == 0 {
		config.Client.PollInterval = 10 * time.Millisecond
	}

	if config.Audio.SampleRate == 0 {
		config.Audio.SampleRate = 16000
	}
	if config.Audio.Channels == 0 {
		config.Audio.Channels = 1
	}
	if config.Audio.HighpassCutoff == 0 {
		config.Audio.HighpassCutoff = 300
	}
	if config.Audio.HighpassOrder == 0 {
		config.Audio.HighpassOrder = 4
	}
	if config.Audio.NoiseReduction == 0 {
		config.Audio.NoiseReduction = 0.8
	}
	if config.Audio.VADFrameMs == 0 {
		config.Audio.VADFrameMs = 30
	}

	if config.Transport.MaxMessageSize == 0 {
		config.Transport.MaxMessageSize = 16 << 20
	}

	if config.Dialog.Backend == "" {
		config.Dialog.Backend = "openai"
	}
	if config.Dialog.BaseURL == "" {
		config.Dialog.BaseURL = "http://localhost:1234/v1"
	}
	if config.Dialog.Model == "" {
		config.Dialog.Model = "local-model"
	}
	if config.Dialog.Temperature == 0 {
		config.Dialog.Temperature = 0.7
	}
	if config.Dialog.MaxTokens == 0 {
		config.Dialog.MaxTokens = 150
	}
	if config.Dialog.HistoryLimit == 0 {
		config.Dialog.HistoryLimit = 10
	}
	if config.Dialog.MinTextRunes == 0 {
		config.Dialog.MinTextRunes = 2
	}
	if config.Dialog.Timeout == 0 {
		config.Dialog.Timeout = 60 * time.Second
	}

	if config.STT.Backend == "" {
		config.STT.Backend = "openai"
	}
	if config.STT.Model == "" {
		config.STT.Model = "whisper-1"
	}
	if config.STT.Language == "" {
		config.STT.Language = "ru"
	}
	if config.STT.Timeout == 0 {
		config.STT.Timeout = 30 * time.Second
	}

	if config.TTS.Backend == "" {
		config.TTS.Backend = "edge"
	}
	if config.TTS.Voice == "" {
		config.TTS.Voice = "ru-RU-DmitryNeural"
	}
	if config.TTS.OutputSampleRate == 0 {
		config.TTS.OutputSampleRate = 22050
	}
	if config.TTS.Timeout == 0 {
		config.TTS.Timeout = 30 * time.Second
	}

	if config.Response.Kind == "" {
		config.Response.Kind = types.ResponseKindText
	}

	if config.Playback.Backend == "" {
		config.Playback.Backend = "command"
	}

	if config.Log.Level == "" {
		config.Log.Level = "info"
	}
	if config.Log.Format == "" {
		config.Log.Format = "json"
	}
	if len(config.Log.OutputPaths) == 0 {
		config.Log.OutputPaths = []string{"stdout"}
	}
}

// Validate 验证配置是否有效
func (c *Config) Validate() error {
	if c.Server.ListenAddr == "" {
		return ErrEmptyListenAddr
	}
	if c.Client.ServerAddr == "" {
		return ErrEmptyServerAddr
	}
	if c.Client.ReconnectDelay < 0 {
		return ErrInvalidReconnectDelay
	}
	if c.Client.FlushDuration < 500*time.Millisecond || c.Client.FlushDuration > time.Second {
		return fmt.Errorf("%w: %v", ErrInvalidFlushDuration, c.Client.FlushDuration)
	}
	if c.Client.RecordSeconds <= 0 {
		return ErrInvalidRecordSeconds
	}

	if c.Audio.SampleRate <= 0 {
		return ErrInvalidSampleRate
	}
	if c.Audio.Channels != 1 {
		return fmt.Errorf("%w: %d", ErrUnsupportedChannels, c.Audio.Channels)
	}
	if c.Audio.HighpassOrder <= 0 || c.Audio.HighpassOrder%2 != 0 {
		return fmt.Errorf("%w: %d", ErrInvalidFilterOrder, c.Audio.HighpassOrder)
	}
	if c.Audio.HighpassCutoff <= 0 || c.Audio.HighpassCutoff >= float64(c.Audio.SampleRate)/2 {
		return fmt.Errorf("%w: %.1f", ErrInvalidCutoff, c.Audio.HighpassCutoff)
	}
	if c.Audio.NoiseReduction < 0 || c.Audio.NoiseReduction > 1 {
		return ErrInvalidNoiseReduction
	}
	if c.Audio.VADAggressiveness < 0 || c.Audio.VADAggressiveness > 3 {
		return ErrInvalidVADAggressiveness
	}
	switch c.Audio.VADFrameMs {
	case 10, 20, 30:
	default:
		return fmt.Errorf("%w: %d", ErrInvalidVADFrame, c.Audio.VADFrameMs)
	}

	switch c.Dialog.Backend {
	case "openai", "ollama":
	default:
		return fmt.Errorf("%w: %s", ErrUnknownBackend, c.Dialog.Backend)
	}
	if c.Dialog.HistoryLimit < 0 {
		return ErrInvalidHistoryLimit
	}

	switch c.STT.Backend {
	case "openai", "whisper_ws":
	default:
		return fmt.Errorf("%w: %s", ErrUnknownBackend, c.STT.Backend)
	}

	switch c.TTS.Backend {
	case "piper", "edge", "openai", "command":
	default:
		return fmt.Errorf("%w: %s", ErrUnknownBackend, c.TTS.Backend)
	}

	if !c.Response.Kind.Valid() {
		return fmt.Errorf("%w: %s", ErrInvalidResponseKind, c.Response.Kind)
	}

	switch c.Playback.Backend {
	case "command", "portaudio":
	default:
		return fmt.Errorf("%w: %s", ErrUnknownBackend, c.Playback.Backend)
	}

	return nil
}

// HistoryBound 对话历史的最大消息条数
func (d DialogConfig) HistoryBound() int {
	return d.HistoryLimit * 2
}

// RecordSamples 单次录音的采样数
func (c *Config) RecordSamples() int {
	return int(c.Client.RecordSeconds * float64(c.Audio.SampleRate))
}

// FlushSamples 播放结束后需要丢弃的采样数
func (c *Config) FlushSamples() int {
	return int(c.Client.FlushDuration.Seconds() * float64(c.Audio.SampleRate))
}
