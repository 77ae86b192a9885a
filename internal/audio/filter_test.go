package audio

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestButterworthHighpass_Response(t *testing.T) {
	f, err := NewButterworthHighpass(4, 300, 16000)
	require.NoError(t, err)
	require.Len(t, f.sections, 2)

	tests := []struct {
		name    string
		freq    float64
		minGain float64
		maxGain float64
	}{
		{"工频嗡声被抑制", 50, 0, 0.01},
		{"截止频率处约-3dB", 300, 0.65, 0.76},
		{"语音频段通过", 2000, 0.97, 1.03},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := sine(tt.freq, 1, 16000, 32000)
			out := f.Apply(in)
			// 只看后半段，避开起始瞬态
			gain := RMS(out[16000:]) / RMS(in[16000:])
			assert.GreaterOrEqual(t, gain, tt.minGain)
			assert.LessOrEqual(t, gain, tt.maxGain)
		})
	}
}

func TestButterworthHighpass_Invalid(t *testing.T) {
	_, err := NewButterworthHighpass(3, 300, 16000)
	assert.Error(t, err)
	_, err = NewButterworthHighpass(4, 9000, 16000)
	assert.Error(t, err)
	_, err = NewButterworthHighpass(4, 300, 0)
	assert.Error(t, err)
}

func TestSOSFilter_ApplyIsRepeatable(t *testing.T) {
	f, err := NewButterworthHighpass(4, 300, 16000)
	require.NoError(t, err)

	in := sine(440, 0.5, 16000, 2000)
	assert.Equal(t, f.Apply(in), f.Apply(in))
	assert.Equal(t, make([]float64, 100), f.Apply(make([]float64, 100)))
}
