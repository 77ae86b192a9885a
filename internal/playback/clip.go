package playback

import (
	"time"

	"smart_head/internal/audio"
)

// Clip 待播放的交错16位采样
type Clip struct {
	Samples    []int16
	SampleRate int
	Channels   int
}

// Duration 播放时长
func (c Clip) Duration() time.Duration {
	if c.SampleRate <= 0 || c.Channels <= 0 {
		return 0
	}
	frames := len(c.Samples) / c.Channels
	return time.Duration(frames) * time.Second / time.Duration(c.SampleRate)
}

// DecodeClip 识别WAV、MP3，其余数据按rawRate单声道PCM处理
func DecodeClip(data []byte, rawRate int) (Clip, error) {
	switch {
	case audio.IsWAV(data):
		wav, err := audio.DecodeWAV(data)
		if err != nil {
			return Clip{}, err
		}
		return Clip{Samples: audio.BytesToInt16(wav.Data), SampleRate: wav.SampleRate, Channels: wav.Channels}, nil
	case audio.IsMP3(data):
		pcm, rate, err := audio.DecodeMP3(data)
		if err != nil {
			return Clip{}, err
		}
		return Clip{Samples: audio.BytesToInt16(pcm), SampleRate: rate, Channels: 2}, nil
	default:
		return Clip{Samples: audio.BytesToInt16(data), SampleRate: rawRate, Channels: 1}, nil
	}
}
