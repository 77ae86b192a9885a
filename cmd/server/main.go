// smart_head 处理服务：接收语音、识别、对话并回复
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"smart_head/internal/clients/asr"
	"smart_head/internal/clients/ollama"
	"smart_head/internal/clients/openai"
	"smart_head/internal/clients/tts"
	"smart_head/internal/config"
	"smart_head/internal/logger"
	"smart_head/internal/metrics"
	"smart_head/internal/models"
	"smart_head/internal/routes"
	"smart_head/internal/services"
	"smart_head/internal/services/ws"
	"smart_head/internal/types"
)

var version = "dev"

func main() {
	configPath := flag.String("config", "config.yaml", "配置文件路径")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "加载配置失败: %v\n", err)
		os.Exit(1)
	}

	log := logger.New(cfg.Log)
	defer func() { _ = log.Sync() }()

	if err := run(cfg, log); err != nil {
		log.Error("服务异常退出", zap.Error(err))
		os.Exit(1)
	}
	log.Info("服务已停止")
}

func run(cfg *config.Config, log *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	var err error
	transcriber := newTranscriber(cfg, log)
	dialogue := newDialogue(cfg, log)

	var synth models.Synthesizer
	if cfg.Response.Kind == types.ResponseKindAudio {
		synth, err = tts.New(cfg.TTS)
		if err != nil {
			return fmt.Errorf("创建语音合成失败: %w", err)
		}
		log.Info("服务端合成语音", tts.Describe(cfg.TTS)...)
	}
	return serve(ctx, cfg, log, reg, m, transcriber, dialogue, synth)
}

func serve(ctx context.Context, cfg *config.Config, log *zap.Logger, reg *prometheus.Registry, m *metrics.Metrics,
	transcriber models.Transcriber, dialogue models.Dialogue, synth models.Synthesizer) error {
	hub := ws.NewHub(ws.HubConfig{}, log)
	defer hub.Close()

	lock := services.NewModelLock(m)
	dialog := services.NewDialogService(services.DialogConfig{
		SystemPrompt: cfg.Dialog.SystemPrompt,
		HistoryBound: cfg.Dialog.HistoryBound(),
		MinTextRunes: cfg.Dialog.MinTextRunes,
		Events:       hub,
	}, dialogue, lock, m, log)

	processing := services.NewProcessingService(services.ProcessingConfig{
		SampleRate:   cfg.Audio.SampleRate,
		Channels:     cfg.Audio.Channels,
		ResponseKind: cfg.Response.Kind,
	}, transcriber, synth, dialog, lock, m, log)

	server := services.NewServer(services.ServerConfig{
		ListenAddr:     cfg.Server.ListenAddr,
		AcceptRate:     cfg.Server.AcceptRate,
		AcceptBurst:    cfg.Server.AcceptBurst,
		MaxMessageSize: cfg.Transport.MaxMessageSize,
	}, processing, m, log)

	log.Info("处理服务启动中",
		zap.String("version", version),
		zap.String("listen_addr", cfg.Server.ListenAddr),
		zap.String("dialog_backend", cfg.Dialog.Backend),
		zap.String("stt_backend", cfg.STT.Backend),
		zap.String("response_kind", string(cfg.Response.Kind)),
		zap.Uint32("max_message_size", cfg.Transport.MaxMessageSize),
		zap.String("instance_id", uuid.NewString()))

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return server.Serve(ctx)
	})

	if cfg.Server.HTTPAddr != "" {
		gin.SetMode(gin.ReleaseMode)
		httpServer := &http.Server{
			Addr: cfg.Server.HTTPAddr,
			Handler: routes.NewEngine(routes.Deps{
				Sessions: dialog,
				Metrics:  m,
				Gatherer: reg,
				Logger:   log,
				Version:  version,
				Events:   hub,
			}),
			ReadHeaderTimeout: 10 * time.Second,
		}
		g.Go(func() error {
			log.Info("管理接口启动", zap.String("addr", cfg.Server.HTTPAddr))
			if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("管理接口异常: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-ctx.Done()
			hub.Close()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return httpServer.Shutdown(shutdownCtx)
		})
	}

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

// newTranscriber 按配置选择语音识别后端
func newTranscriber(cfg *config.Config, log *zap.Logger) models.Transcriber {
	switch cfg.STT.Backend {
	case "whisper_ws":
		return asr.NewWhisperClient(asr.WhisperConfig{
			URL:      cfg.STT.URL,
			Language: cfg.STT.Language,
			Timeout:  cfg.STT.Timeout,
		}, log)
	default:
		return openai.NewTranscriptionClient(openai.Config{
			BaseURL: cfg.STT.URL,
			APIKey:  cfg.STT.APIKey,
			Timeout: cfg.STT.Timeout,
		}, cfg.STT.Model, cfg.STT.Language, log)
	}
}

// newDialogue 按配置选择对话模型后端
func newDialogue(cfg *config.Config, log *zap.Logger) models.Dialogue {
	switch cfg.Dialog.Backend {
	case "ollama":
		return ollama.NewClient(ollama.Config{
			Host:    cfg.Dialog.BaseURL,
			Model:   cfg.Dialog.Model,
			Timeout: cfg.Dialog.Timeout,
		}, ollama.Options{
			Temperature: cfg.Dialog.Temperature,
			NumPredict:  cfg.Dialog.MaxTokens,
		}, log)
	default:
		return openai.NewChatClient(openai.Config{
			BaseURL: cfg.Dialog.BaseURL,
			APIKey:  cfg.Dialog.APIKey,
			Timeout: cfg.Dialog.Timeout,
		}, openai.ChatOptions{
			Model:       cfg.Dialog.Model,
			Temperature: cfg.Dialog.Temperature,
			MaxTokens:   cfg.Dialog.MaxTokens,
		}, log)
	}
}
