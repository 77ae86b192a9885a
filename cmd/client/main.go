// smart_head 边缘客户端：录音、发送、播放回复
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"smart_head/internal/audio"
	"smart_head/internal/clients/tts"
	"smart_head/internal/config"
	"smart_head/internal/device"
	"smart_head/internal/logger"
	"smart_head/internal/models"
	"smart_head/internal/playback"
	"smart_head/internal/session"
	"smart_head/internal/transport"
	"smart_head/internal/types"
)

// 未配置播放命令时使用ffplay，它能从标准输入播放WAV和MP3
var defaultPlayCommand = []string{"ffplay", "-nodisp", "-autoexit", "-loglevel", "quiet", "-i", "-"}

func main() {
	configPath := flag.String("config", "config.yaml", "配置文件路径")
	listDevices := flag.Bool("list-devices", false, "列出音频设备后退出")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "加载配置失败: %v\n", err)
		os.Exit(1)
	}

	log := logger.New(cfg.Log)
	defer func() { _ = log.Sync() }()

	terminate, err := device.Init()
	if err != nil {
		log.Fatal("初始化音频失败", zap.Error(err))
	}
	defer terminate()

	if *listDevices {
		printDevices(log)
		return
	}

	if err := run(cfg, log); err != nil && !errors.Is(err, context.Canceled) {
		log.Error("客户端异常退出", zap.Error(err))
		terminate()
		os.Exit(1)
	}
	log.Info("客户端已停止")
}

func run(cfg *config.Config, log *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	mic, err := device.OpenMicrophone(device.MicConfig{
		DeviceIndex: cfg.Client.InputDevice,
		SampleRate:  cfg.Audio.SampleRate,
		Channels:    cfg.Audio.Channels,
		ChunkFrames: cfg.Client.ChunkFrames,
	}, log)
	if err != nil {
		return err
	}
	defer func() { _ = mic.Close() }()

	preprocessor, err := audio.NewPreprocessor(audio.PreprocessorConfig{
		SampleRate:        cfg.Audio.SampleRate,
		HighpassCutoff:    cfg.Audio.HighpassCutoff,
		HighpassOrder:     cfg.Audio.HighpassOrder,
		NoiseReduction:    cfg.Audio.NoiseReduction,
		VADAggressiveness: cfg.Audio.VADAggressiveness,
		VADFrameMs:        cfg.Audio.VADFrameMs,
	}, log)
	if err != nil {
		return fmt.Errorf("创建预处理器失败: %w", err)
	}

	dialer := transport.NewDialer(transport.DialerConfig{
		Addr:           cfg.Client.ServerAddr,
		Delay:          cfg.Client.ReconnectDelay,
		MaxMessageSize: cfg.Transport.MaxMessageSize,
	}, log)

	gate, err := newGate(cfg, log)
	if err != nil {
		return err
	}

	ctrl := session.NewController(session.Config{
		RecordBytes:  cfg.RecordSamples() * audio.BytesPerSample,
		FlushBytes:   cfg.FlushSamples() * audio.BytesPerSample,
		PollInterval: cfg.Client.PollInterval,
		ResponseKind: cfg.Response.Kind,
	}, mic, preprocessor, dialer, gate, log)
	ctrl.OnTransition(func(from, to types.SessionState) {
		if to == types.SessionStateListening {
			log.Info("正在聆听...")
		}
	})

	log.Info("客户端启动",
		zap.String("server_addr", cfg.Client.ServerAddr),
		zap.Float64("record_seconds", cfg.Client.RecordSeconds),
		zap.String("response_kind", string(cfg.Response.Kind)),
		zap.String("playback", gate.Describe()))

	return ctrl.Run(ctx)
}

// newGate 组装播放链路；文本回复在本地合成
func newGate(cfg *config.Config, log *zap.Logger) (*playback.Gate, error) {
	var player playback.Player
	switch cfg.Playback.Backend {
	case "portaudio":
		player = device.NewSpeaker(cfg.TTS.OutputSampleRate, cfg.Client.ChunkFrames, log)
	default:
		command := append([]string{cfg.Playback.Command}, cfg.Playback.Args...)
		if cfg.Playback.Command == "" {
			command = defaultPlayCommand
		}
		player = playback.NewCommandPlayer(command[0], command[1:]...)
	}

	var synth models.Synthesizer
	if cfg.Response.Kind == types.ResponseKindText {
		var err error
		synth, err = tts.New(cfg.TTS)
		if err != nil {
			return nil, fmt.Errorf("创建语音合成失败: %w", err)
		}
		log.Info("客户端合成语音", tts.Describe(cfg.TTS)...)
	}
	return playback.NewGate(cfg.Response.Kind, synth, player, log), nil
}

func printDevices(log *zap.Logger) {
	devices, err := device.ListDevices()
	if err != nil {
		log.Error("列出设备失败", zap.Error(err))
		return
	}
	for _, d := range devices {
		fmt.Printf("%3d  in=%d out=%d  %.0fHz  %s\n",
			d.Index, d.MaxInputChannels, d.MaxOutputChannels, d.DefaultSampleRate, d.Name)
	}
}
