package audio

import (
	"bytes"
	"fmt"
	"io"

	"github.com/hajimehoshi/go-mp3"
)

// DecodeMP3 解码MP3为16位小端立体声PCM，返回PCM与采样率
func DecodeMP3(data []byte) ([]byte, int, error) {
	decoder, err := mp3.NewDecoder(bytes.NewReader(data))
	if err != nil {
		return nil, 0, fmt.Errorf("创建MP3解码器失败: %w", err)
	}
	pcm, err := io.ReadAll(decoder)
	if err != nil {
		return nil, 0, fmt.Errorf("解码MP3失败: %w", err)
	}
	return pcm, decoder.SampleRate(), nil
}

// IsMP3 判断数据是否像MP3（ID3标签或帧同步字）
func IsMP3(data []byte) bool {
	if len(data) >= 3 && string(data[:3]) == "ID3" {
		return true
	}
	return len(data) >= 2 && data[0] == 0xFF && data[1]&0xE0 == 0xE0
}

// StereoToMono 将交错的双声道16位PCM平均为单声道
func StereoToMono(pcm []byte) []byte {
	samples := BytesToInt16(pcm)
	mono := make([]int16, len(samples)/2)
	for i := range mono {
		mono[i] = int16((int32(samples[2*i]) + int32(samples[2*i+1])) / 2)
	}
	return Int16ToBytes(mono)
}
