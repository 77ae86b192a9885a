// Package device 通过PortAudio访问麦克风和扬声器
package device

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/gordonklaus/portaudio"
	"go.uber.org/zap"

	"smart_head/internal/audio"
	"smart_head/internal/playback"
)

var (
	// ErrDeviceOpen 打开音频设备失败
	ErrDeviceOpen = errors.New("打开音频设备失败")
	// ErrPaused 麦克风已暂停
	ErrPaused = errors.New("麦克风已暂停")
)

// Init 初始化PortAudio，返回的函数用于释放
func Init() (func(), error) {
	if err := portaudio.Initialize(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDeviceOpen, err)
	}
	return func() { _ = portaudio.Terminate() }, nil
}

// DeviceInfo 设备概要
type DeviceInfo struct {
	Index             int
	Name              string
	MaxInputChannels  int
	MaxOutputChannels int
	DefaultSampleRate float64
}

// ListDevices 列出所有音频设备
func ListDevices() ([]DeviceInfo, error) {
	devices, err := portaudio.Devices()
	if err != nil {
		return nil, err
	}
	infos := make([]DeviceInfo, 0, len(devices))
	for i, d := range devices {
		infos = append(infos, DeviceInfo{
			Index:             i,
			Name:              d.Name,
			MaxInputChannels:  d.MaxInputChannels,
			MaxOutputChannels: d.MaxOutputChannels,
			DefaultSampleRate: d.DefaultSampleRate,
		})
	}
	return infos, nil
}

// PickInput 选择输入设备：index>=0时按索引，否则优先USB麦克风，再退回默认设备
func PickInput(devices []DeviceInfo, index int) (int, error) {
	if index >= 0 {
		if index >= len(devices) || devices[index].MaxInputChannels == 0 {
			return -1, fmt.Errorf("%w: 设备 %d 不可用于录音", ErrDeviceOpen, index)
		}
		return index, nil
	}
	for _, d := range devices {
		if d.MaxInputChannels > 0 && strings.Contains(strings.ToLower(d.Name), "usb") {
			return d.Index, nil
		}
	}
	return -1, nil
}

// MicConfig 麦克风参数
type MicConfig struct {
	DeviceIndex int // -1表示自动选择
	SampleRate  int
	Channels    int
	ChunkFrames int // 每次读取的采样数
}

// Microphone PortAudio输入流，Pause/Resume只停止和重启流而不关闭设备
type Microphone struct {
	stream *portaudio.Stream
	buf    []int16
	logger *zap.Logger

	mu     sync.Mutex
	paused bool
}

// OpenMicrophone 打开并启动输入流
func OpenMicrophone(cfg MicConfig, logger *zap.Logger) (*Microphone, error) {
	devices, err := ListDevices()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDeviceOpen, err)
	}
	index, err := PickInput(devices, cfg.DeviceIndex)
	if err != nil {
		return nil, err
	}

	buf := make([]int16, cfg.ChunkFrames*cfg.Channels)
	var stream *portaudio.Stream
	if index < 0 {
		logger.Info("使用默认输入设备")
		stream, err = portaudio.OpenDefaultStream(cfg.Channels, 0, float64(cfg.SampleRate), cfg.ChunkFrames, buf)
	} else {
		all, derr := portaudio.Devices()
		if derr != nil {
			return nil, fmt.Errorf("%w: %v", ErrDeviceOpen, derr)
		}
		logger.Info("使用输入设备", zap.Int("index", index), zap.String("name", all[index].Name))
		params := portaudio.HighLatencyParameters(all[index], nil)
		params.Input.Channels = cfg.Channels
		params.SampleRate = float64(cfg.SampleRate)
		params.FramesPerBuffer = cfg.ChunkFrames
		stream, err = portaudio.OpenStream(params, buf)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDeviceOpen, err)
	}
	if err := stream.Start(); err != nil {
		_ = stream.Close()
		return nil, fmt.Errorf("%w: %v", ErrDeviceOpen, err)
	}

	return &Microphone{stream: stream, buf: buf, logger: logger}, nil
}

// Read 读取一块16位小端PCM
func (m *Microphone) Read(ctx context.Context) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.paused {
		return nil, ErrPaused
	}

	if err := m.stream.Read(); err != nil {
		if !errors.Is(err, portaudio.InputOverflowed) {
			return nil, err
		}
		m.logger.Debug("麦克风输入溢出")
	}
	return audio.Int16ToBytes(m.buf), nil
}

// Pause 停止输入流
func (m *Microphone) Pause() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.paused {
		return nil
	}
	if err := m.stream.Stop(); err != nil {
		return err
	}
	m.paused = true
	return nil
}

// Resume 重新启动输入流
func (m *Microphone) Resume() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.paused {
		return nil
	}
	if err := m.stream.Start(); err != nil {
		return err
	}
	m.paused = false
	return nil
}

// Close 关闭输入流
func (m *Microphone) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.paused {
		_ = m.stream.Stop()
	}
	return m.stream.Close()
}

// Speaker 通过默认输出设备播放WAV、MP3或原始PCM
type Speaker struct {
	sampleRate  int // 原始PCM的采样率
	chunkFrames int
	logger      *zap.Logger
}

// NewSpeaker 创建扬声器
func NewSpeaker(sampleRate, chunkFrames int, logger *zap.Logger) *Speaker {
	return &Speaker{sampleRate: sampleRate, chunkFrames: chunkFrames, logger: logger}
}

// PlayAudio 解码并阻塞播放
func (s *Speaker) PlayAudio(ctx context.Context, data []byte) error {
	clip, err := playback.DecodeClip(data, s.sampleRate)
	if err != nil {
		return err
	}
	if len(clip.Samples) == 0 {
		return nil
	}

	buf := make([]int16, s.chunkFrames*clip.Channels)
	stream, err := portaudio.OpenDefaultStream(0, clip.Channels, float64(clip.SampleRate), s.chunkFrames, buf)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrDeviceOpen, err)
	}
	defer stream.Close()

	if err := stream.Start(); err != nil {
		return fmt.Errorf("%w: %v", ErrDeviceOpen, err)
	}
	defer stream.Stop()

	for offset := 0; offset < len(clip.Samples); offset += len(buf) {
		if err := ctx.Err(); err != nil {
			return err
		}
		n := copy(buf, clip.Samples[offset:])
		for i := n; i < len(buf); i++ {
			buf[i] = 0
		}
		if err := stream.Write(); err != nil && !errors.Is(err, portaudio.OutputUnderflowed) {
			return fmt.Errorf("写入扬声器失败: %w", err)
		}
	}
	s.logger.Debug("播放完成", zap.Duration("duration", clip.Duration()))
	return nil
}
