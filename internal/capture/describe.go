package capture

import (
	"fmt"
	"time"
)

// previewRunes 文本预览的最大字符数
const previewRunes = 60

// Describe 生成一行可读的消息描述，sampleRate用于换算PCM时长
func Describe(f Frame, sampleRate int) string {
	head := fmt.Sprintf("%s %-14s %-44s len=%-8d %-6s",
		f.Timestamp.Format("15:04:05.000"), f.Direction, f.Flow, f.Length, f.Kind())

	switch f.Kind() {
	case "pcm":
		if sampleRate > 0 {
			duration := time.Duration(len(f.Payload)/2) * time.Second / time.Duration(sampleRate)
			return fmt.Sprintf("%s duration=%s", head, duration)
		}
	case "text":
		runes := []rune(string(f.Payload))
		if len(runes) > previewRunes {
			return fmt.Sprintf("%s %q...", head, string(runes[:previewRunes]))
		}
		return fmt.Sprintf("%s %q", head, string(runes))
	case "binary":
		n := len(f.Payload)
		if n > 16 {
			n = 16
		}
		return fmt.Sprintf("%s % x", head, f.Payload[:n])
	}
	return head
}
