// Package playback 负责把服务端回复播放出来
package playback

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"smart_head/internal/models"
	"smart_head/internal/types"
)

// ErrBackendUnavailable 播放后端不存在
var ErrBackendUnavailable = errors.New("播放后端不可用")

// Player 播放一段完整的音频，阻塞直到结束
type Player interface {
	PlayAudio(ctx context.Context, audio []byte) error
}

// Gate 播放闸门
//
// 文本回复先经过语音合成，音频回复直接交给播放器。
// 空内容、后端缺失、合成或播放失败都只记录日志，
// 只有ctx取消会作为错误返回。
type Gate struct {
	kind   types.ResponseKind
	synth  models.Synthesizer
	player Player
	logger *zap.Logger
}

// NewGate 创建播放闸门，synth在kind为audio时可以为nil
func NewGate(kind types.ResponseKind, synth models.Synthesizer, player Player, logger *zap.Logger) *Gate {
	return &Gate{
		kind:   kind,
		synth:  synth,
		player: player,
		logger: logger,
	}
}

// Play 播放回复内容
func (g *Gate) Play(ctx context.Context, content []byte) error {
	if len(content) == 0 {
		return nil
	}
	if g.player == nil {
		g.logger.Warn("未配置播放器，跳过播放")
		return nil
	}

	audio := content
	if g.kind == types.ResponseKindText {
		text := string(content)
		g.logger.Info("助手回复", zap.String("text", text))
		if g.synth == nil {
			g.logger.Warn("未配置语音合成，跳过播放")
			return nil
		}

		var err error
		audio, err = g.synth.Synthesize(ctx, text)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			g.logger.Error("语音合成失败", zap.Error(err))
			return nil
		}
		if len(audio) == 0 {
			g.logger.Warn("语音合成结果为空")
			return nil
		}
	}

	if err := g.player.PlayAudio(ctx, audio); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if errors.Is(err, ErrBackendUnavailable) {
			g.logger.Warn("播放后端不可用", zap.Error(err))
			return nil
		}
		g.logger.Error("播放失败", zap.Error(err))
		return nil
	}
	return nil
}

// Describe 返回闸门配置，用于启动日志
func (g *Gate) Describe() string {
	return fmt.Sprintf("kind=%s synth=%t player=%t", g.kind, g.synth != nil, g.player != nil)
}
