package playback

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
)

// CommandPlayer 通过外部命令播放音频，音频数据写入命令的标准输入
//
// 例如 aplay -q - 或 mpg123 -q -。
type CommandPlayer struct {
	Command string
	Args    []string
}

// NewCommandPlayer 创建命令播放器
func NewCommandPlayer(command string, args ...string) *CommandPlayer {
	return &CommandPlayer{Command: command, Args: args}
}

// PlayAudio 启动命令并等待其退出
func (p *CommandPlayer) PlayAudio(ctx context.Context, audio []byte) error {
	path, err := exec.LookPath(p.Command)
	if err != nil {
		return fmt.Errorf("%w: %s: %v", ErrBackendUnavailable, p.Command, err)
	}

	cmd := exec.CommandContext(ctx, path, p.Args...)
	cmd.Stdin = bytes.NewReader(audio)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return fmt.Errorf("播放命令执行失败: %v: %s", err, bytes.TrimSpace(stderr.Bytes()))
	}
	return nil
}
