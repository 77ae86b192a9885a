// Package audio 实现麦克风音频的预处理流水线
//
// 流水线依次执行：峰值归一化、四阶巴特沃斯高通、平稳噪声谱减、
// 基于能量与过零率的语音活动分段，最后转换回16位PCM。
package audio

import (
	"encoding/binary"
	"math"
)

// BytesPerSample 16位PCM每个采样的字节数
const BytesPerSample = 2

// BytesToFloats 将16位小端PCM转换为[-1, 1)浮点采样，末尾不足两字节的部分被丢弃
func BytesToFloats(raw []byte) []float64 {
	n := len(raw) / 2
	samples := make([]float64, n)
	for i := 0; i < n; i++ {
		v := int16(binary.LittleEndian.Uint16(raw[2*i:]))
		samples[i] = float64(v) / 32768.0
	}
	return samples
}

// FloatsToBytes 将浮点采样乘以32767并截断为16位小端PCM
func FloatsToBytes(samples []float64) []byte {
	out := make([]byte, len(samples)*2)
	for i, s := range samples {
		binary.LittleEndian.PutUint16(out[2*i:], uint16(toInt16(s)))
	}
	return out
}

// BytesToInt16 将16位小端PCM转换为整型采样
func BytesToInt16(raw []byte) []int16 {
	n := len(raw) / 2
	samples := make([]int16, n)
	for i := 0; i < n; i++ {
		samples[i] = int16(binary.LittleEndian.Uint16(raw[2*i:]))
	}
	return samples
}

// Int16ToBytes 将整型采样转换为16位小端PCM
func Int16ToBytes(samples []int16) []byte {
	out := make([]byte, len(samples)*2)
	for i, s := range samples {
		binary.LittleEndian.PutUint16(out[2*i:], uint16(s))
	}
	return out
}

func toInt16(s float64) int16 {
	if math.IsNaN(s) {
		return 0
	}
	v := math.Round(s * 32767)
	if v > math.MaxInt16 {
		return math.MaxInt16
	}
	if v < math.MinInt16 {
		return math.MinInt16
	}
	return int16(v)
}

// Normalize 按峰值缩放到[-1, 1]，全零信号原样返回
func Normalize(samples []float64) []float64 {
	peak := 0.0
	for _, s := range samples {
		if a := math.Abs(s); a > peak {
			peak = a
		}
	}
	out := make([]float64, len(samples))
	if peak == 0 {
		copy(out, samples)
		return out
	}
	for i, s := range samples {
		out[i] = s / peak
	}
	return out
}

// RMS 均方根能量
func RMS(samples []float64) float64 {
	if len(samples) == 0 {
		return 0
	}
	sum := 0.0
	for _, s := range samples {
		sum += s * s
	}
	return math.Sqrt(sum / float64(len(samples)))
}
