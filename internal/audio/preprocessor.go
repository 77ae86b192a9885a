package audio

import (
	"fmt"

	"go.uber.org/zap"
)

// PreprocessorConfig 预处理配置
type PreprocessorConfig struct {
	SampleRate        int
	HighpassCutoff    float64
	HighpassOrder     int
	NoiseReduction    float64
	VADAggressiveness int
	VADFrameMs        int
}

// Result 单次预处理结果
type Result struct {
	PCM          []byte // 清洗后的16位PCM
	SpeechFrames int    // 被判定为语音的帧数
	TotalFrames  int    // 参与判定的帧数
	Denoised     bool   // 降噪是否生效
	Fallback     bool   // 未检测到语音，输出为完整音频
}

// Preprocessor 音频预处理器，给定输入与配置时输出确定
type Preprocessor struct {
	cfg     PreprocessorConfig
	reducer *NoiseReducer
	vad     *VAD
	logger  *zap.Logger
}

// NewPreprocessor 创建预处理器
func NewPreprocessor(cfg PreprocessorConfig, logger *zap.Logger) (*Preprocessor, error) {
	if _, err := NewButterworthHighpass(cfg.HighpassOrder, cfg.HighpassCutoff, cfg.SampleRate); err != nil {
		return nil, err
	}
	reducer, err := NewNoiseReducer(cfg.NoiseReduction, cfg.SampleRate)
	if err != nil {
		return nil, err
	}
	vad, err := NewVAD(cfg.VADAggressiveness, cfg.VADFrameMs, cfg.SampleRate)
	if err != nil {
		return nil, err
	}
	return &Preprocessor{cfg: cfg, reducer: reducer, vad: vad, logger: logger}, nil
}

// Clean 清洗一段16位PCM
func (p *Preprocessor) Clean(raw []byte) []byte {
	return p.Process(raw).PCM
}

// Process 执行完整流水线并返回统计信息
func (p *Preprocessor) Process(raw []byte) Result {
	samples := BytesToFloats(raw)
	if len(samples) == 0 {
		return Result{PCM: []byte{}}
	}

	samples = Normalize(samples)

	// 参数已在构造时校验
	hp, _ := NewButterworthHighpass(p.cfg.HighpassOrder, p.cfg.HighpassCutoff, p.cfg.SampleRate)
	samples = hp.Apply(samples)

	result := Result{}
	if denoised, err := p.reducer.Reduce(samples); err != nil {
		p.logger.Debug("跳过降噪", zap.Error(err))
	} else {
		samples = denoised
		result.Denoised = true
	}

	speech, speechFrames, totalFrames := p.vad.Segment(samples)
	result.SpeechFrames, result.TotalFrames = speechFrames, totalFrames
	if speechFrames == 0 {
		result.Fallback = true
		speech = samples
	}

	result.PCM = FloatsToBytes(speech)
	p.logger.Debug("音频预处理完成",
		zap.Int("input_bytes", len(raw)),
		zap.Int("output_bytes", len(result.PCM)),
		zap.String("speech", fmt.Sprintf("%d/%d", speechFrames, totalFrames)),
		zap.Bool("denoised", result.Denoised),
		zap.Bool("fallback", result.Fallback))
	return result
}
