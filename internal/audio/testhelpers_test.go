package audio

import "math"

func sine(freq float64, amplitude float64, sampleRate, n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = amplitude * math.Sin(2*math.Pi*freq*float64(i)/float64(sampleRate))
	}
	return out
}

func defaultPreprocessorConfig() PreprocessorConfig {
	return PreprocessorConfig{
		SampleRate:        16000,
		HighpassCutoff:    300,
		HighpassOrder:     4,
		NoiseReduction:    0.8,
		VADAggressiveness: 2,
		VADFrameMs:        30,
	}
}
