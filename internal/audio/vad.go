package audio

import (
	"fmt"
	"math"
	"sort"
)

// vadProfile 不同激进程度下的判定参数
type vadProfile struct {
	minRMS     float64 // 绝对能量下限
	floorRatio float64 // 相对于噪声底的倍数
	maxZCR     float64 // 过零率上限，超过时视为噪声
}

var vadProfiles = [4]vadProfile{
	{minRMS: 0.01, floorRatio: 1.5, maxZCR: 0.50},
	{minRMS: 0.02, floorRatio: 2.0, maxZCR: 0.45},
	{minRMS: 0.03, floorRatio: 3.0, maxZCR: 0.40},
	{minRMS: 0.05, floorRatio: 4.0, maxZCR: 0.35},
}

// VAD 基于短时能量与过零率的语音活动检测
type VAD struct {
	profile   vadProfile
	frameSize int
}

// NewVAD 创建检测器，aggressiveness取值0..3，帧长为10/20/30毫秒
func NewVAD(aggressiveness, frameMs, sampleRate int) (*VAD, error) {
	if aggressiveness < 0 || aggressiveness > 3 {
		return nil, fmt.Errorf("VAD激进程度无效: %d", aggressiveness)
	}
	if frameMs != 10 && frameMs != 20 && frameMs != 30 {
		return nil, fmt.Errorf("VAD帧长无效: %d ms", frameMs)
	}
	if sampleRate <= 0 {
		return nil, fmt.Errorf("采样率无效: %d", sampleRate)
	}
	return &VAD{
		profile:   vadProfiles[aggressiveness],
		frameSize: sampleRate * frameMs / 1000,
	}, nil
}

// FrameSize 每帧采样数
func (v *VAD) FrameSize() int {
	return v.frameSize
}

// IsSpeech 判断单帧是否为语音
func (v *VAD) IsSpeech(frame []float64, noiseFloor float64) bool {
	energy := RMS(frame)
	threshold := math.Max(v.profile.minRMS, noiseFloor*v.profile.floorRatio)
	if energy <= threshold {
		return false
	}
	if ZeroCrossingRate(frame) > v.profile.maxZCR && energy < 3*threshold {
		return false
	}
	return true
}

// Segment 只保留语音帧，返回拼接结果和帧统计；末尾不足一帧的采样被忽略
func (v *VAD) Segment(samples []float64) (speech []float64, speechFrames, totalFrames int) {
	totalFrames = len(samples) / v.frameSize
	if totalFrames == 0 {
		return nil, 0, 0
	}

	energies := make([]float64, totalFrames)
	for i := range energies {
		energies[i] = RMS(samples[i*v.frameSize : (i+1)*v.frameSize])
	}
	floor := percentile(energies, 0.1)

	for i := 0; i < totalFrames; i++ {
		frame := samples[i*v.frameSize : (i+1)*v.frameSize]
		if v.IsSpeech(frame, floor) {
			speech = append(speech, frame...)
			speechFrames++
		}
	}
	return speech, speechFrames, totalFrames
}

// ZeroCrossingRate 相邻采样符号变化的比例
func ZeroCrossingRate(frame []float64) float64 {
	if len(frame) < 2 {
		return 0
	}
	crossings := 0
	for i := 1; i < len(frame); i++ {
		if (frame[i-1] >= 0) != (frame[i] >= 0) {
			crossings++
		}
	}
	return float64(crossings) / float64(len(frame)-1)
}

func percentile(values []float64, p float64) float64 {
	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)
	idx := int(p * float64(len(sorted)-1))
	return sorted[idx]
}
