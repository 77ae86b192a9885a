package audio

import (
	"fmt"
	"math"
)

// Biquad 二阶节（直接II型转置）
type Biquad struct {
	b0, b1, b2 float64
	a1, a2     float64
	z1, z2     float64
}

// Process 处理单个采样
func (q *Biquad) Process(x float64) float64 {
	y := q.b0*x + q.z1
	q.z1 = q.b1*x - q.a1*y + q.z2
	q.z2 = q.b2*x - q.a2*y
	return y
}

// Reset 清空滤波器状态
func (q *Biquad) Reset() {
	q.z1, q.z2 = 0, 0
}

// newHighpassBiquad 按双线性变换设计的二阶高通节
func newHighpassBiquad(cutoff, sampleRate, q float64) Biquad {
	w0 := 2 * math.Pi * cutoff / sampleRate
	cosW, sinW := math.Cos(w0), math.Sin(w0)
	alpha := sinW / (2 * q)
	a0 := 1 + alpha
	return Biquad{
		b0: (1 + cosW) / 2 / a0,
		b1: -(1 + cosW) / a0,
		b2: (1 + cosW) / 2 / a0,
		a1: -2 * cosW / a0,
		a2: (1 - alpha) / a0,
	}
}

// SOSFilter 由二阶节级联组成的IIR滤波器
type SOSFilter struct {
	sections []Biquad
}

// NewButterworthHighpass 设计order阶巴特沃斯高通滤波器，order必须为正偶数
func NewButterworthHighpass(order int, cutoff float64, sampleRate int) (*SOSFilter, error) {
	if order <= 0 || order%2 != 0 {
		return nil, fmt.Errorf("滤波阶数必须为正偶数: %d", order)
	}
	if sampleRate <= 0 || cutoff <= 0 || cutoff >= float64(sampleRate)/2 {
		return nil, fmt.Errorf("截止频率无效: %.1f Hz @ %d Hz", cutoff, sampleRate)
	}

	// 每个二阶节对应一对共轭极点，Q_k = 1 / (2 cos((2k+1)π / 2N))
	sections := make([]Biquad, order/2)
	for k := range sections {
		q := 1 / (2 * math.Cos(float64(2*k+1)*math.Pi/float64(2*order)))
		sections[k] = newHighpassBiquad(cutoff, float64(sampleRate), q)
	}
	return &SOSFilter{sections: sections}, nil
}

// Apply 对整段信号滤波，每次调用从零状态开始
func (f *SOSFilter) Apply(samples []float64) []float64 {
	for i := range f.sections {
		f.sections[i].Reset()
	}
	out := make([]float64, len(samples))
	for i, x := range samples {
		y := x
		for k := range f.sections {
			y = f.sections[k].Process(y)
		}
		out[i] = y
	}
	return out
}
