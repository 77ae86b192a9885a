package audio

import (
	"errors"
	"fmt"
	"math"
	"math/cmplx"

	"gonum.org/v1/gonum/dsp/fourier"
	"gonum.org/v1/gonum/dsp/window"
)

// ErrTooShort 信号短于一个分析窗，无法估计噪声谱
var ErrTooShort = errors.New("信号过短，无法降噪")

const (
	noiseStdThreshold = 1.5  // 阈值 = 均值 + 1.5 倍标准差（dB）
	magnitudeFloor    = 1e-6 // 约 -120 dB
)

// NoiseReducer 平稳噪声谱减
//
// 以整段信号每个频点的dB幅度均值与标准差估计噪声阈值，
// 低于阈值的时频点按强度 strength 衰减，掩码在时间与频率上做3x3平滑。
type NoiseReducer struct {
	strength float64
	nfft     int
	hop      int
}

// NewNoiseReducer 创建降噪器，strength取值0..1
func NewNoiseReducer(strength float64, sampleRate int) (*NoiseReducer, error) {
	if strength < 0 || strength > 1 {
		return nil, fmt.Errorf("降噪强度必须在0到1之间: %.2f", strength)
	}
	nfft := 512
	if sampleRate > 24000 {
		nfft = 1024
	}
	return &NoiseReducer{strength: strength, nfft: nfft, hop: nfft / 4}, nil
}

// Reduce 返回降噪后的信号；失败时返回错误，调用方应使用原始信号
func (r *NoiseReducer) Reduce(samples []float64) (out []float64, err error) {
	if len(samples) < r.nfft {
		return nil, ErrTooShort
	}
	defer func() {
		if p := recover(); p != nil {
			out, err = nil, fmt.Errorf("降噪失败: %v", p)
		}
	}()

	padded, offset := r.pad(samples)
	frames := (len(padded)-r.nfft)/r.hop + 1
	bins := r.nfft/2 + 1

	fft := fourier.NewFFT(r.nfft)
	win := window.Hann(ones(r.nfft))

	spectra := make([][]complex128, frames)
	db := make([][]float64, frames)
	buf := make([]float64, r.nfft)
	for f := 0; f < frames; f++ {
		start := f * r.hop
		for i := 0; i < r.nfft; i++ {
			buf[i] = padded[start+i] * win[i]
		}
		spectra[f] = fft.Coefficients(nil, buf)
		db[f] = make([]float64, bins)
		for k, c := range spectra[f] {
			db[f][k] = 20 * math.Log10(math.Max(cmplx.Abs(c), magnitudeFloor))
		}
	}

	threshold := make([]float64, bins)
	for k := 0; k < bins; k++ {
		mean, std := 0.0, 0.0
		for f := 0; f < frames; f++ {
			mean += db[f][k]
		}
		mean /= float64(frames)
		for f := 0; f < frames; f++ {
			d := db[f][k] - mean
			std += d * d
		}
		std = math.Sqrt(std / float64(frames))
		threshold[k] = mean + noiseStdThreshold*std
	}

	mask := make([][]float64, frames)
	for f := 0; f < frames; f++ {
		mask[f] = make([]float64, bins)
		for k := 0; k < bins; k++ {
			if db[f][k] > threshold[k] {
				mask[f][k] = 1
			}
		}
	}
	mask = smoothMask(mask)

	result := make([]float64, len(padded))
	norm := make([]float64, len(padded))
	for f := 0; f < frames; f++ {
		for k := range spectra[f] {
			gain := 1 - r.strength*(1-mask[f][k])
			spectra[f][k] *= complex(gain, 0)
		}
		seq := fft.Sequence(nil, spectra[f])
		start := f * r.hop
		for i := 0; i < r.nfft; i++ {
			result[start+i] += seq[i] / float64(r.nfft) * win[i]
			norm[start+i] += win[i] * win[i]
		}
	}

	out = make([]float64, len(samples))
	for i := range out {
		j := i + offset
		if norm[j] > 1e-8 {
			out[i] = result[j] / norm[j]
		}
	}
	return out, nil
}

// pad 两端补零使每个原始采样都被完整的窗覆盖，并补齐最后一帧
func (r *NoiseReducer) pad(samples []float64) ([]float64, int) {
	offset := r.nfft / 2
	length := len(samples) + 2*offset
	if rem := (length - r.nfft) % r.hop; rem != 0 {
		length += r.hop - rem
	}
	padded := make([]float64, length)
	copy(padded[offset:], samples)
	return padded, offset
}

func smoothMask(mask [][]float64) [][]float64 {
	frames := len(mask)
	if frames == 0 {
		return mask
	}
	bins := len(mask[0])
	out := make([][]float64, frames)
	for f := 0; f < frames; f++ {
		out[f] = make([]float64, bins)
		for k := 0; k < bins; k++ {
			sum, n := 0.0, 0
			for df := -1; df <= 1; df++ {
				for dk := -1; dk <= 1; dk++ {
					ff, kk := f+df, k+dk
					if ff < 0 || ff >= frames || kk < 0 || kk >= bins {
						continue
					}
					sum += mask[ff][kk]
					n++
				}
			}
			out[f][k] = sum / float64(n)
		}
	}
	return out
}

func ones(n int) []float64 {
	s := make([]float64, n)
	for i := range s {
		s[i] = 1
	}
	return s
}
