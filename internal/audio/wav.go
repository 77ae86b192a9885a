package audio

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
)

// ErrInvalidWAV 不是可识别的PCM WAV数据
var ErrInvalidWAV = errors.New("无效的WAV数据")

// wavHeader 44字节的标准PCM WAV头
type wavHeader struct {
	ChunkID       [4]byte // "RIFF"
	ChunkSize     uint32  // 文件大小 - 8
	Format        [4]byte // "WAVE"
	Subchunk1ID   [4]byte // "fmt "
	Subchunk1Size uint32  // PCM为16
	AudioFormat   uint16  // PCM为1
	NumChannels   uint16  // 声道数
	SampleRate    uint32  // 采样率
	ByteRate      uint32  // SampleRate * NumChannels * BitsPerSample / 8
	BlockAlign    uint16  // NumChannels * BitsPerSample / 8
	BitsPerSample uint16  // 位深
	Subchunk2ID   [4]byte // "data"
	Subchunk2Size uint32  // 数据字节数
}

// WAV 解码后的音频
type WAV struct {
	SampleRate    int
	Channels      int
	BitsPerSample int
	Data          []byte // 原始PCM数据
}

// EncodeWAV 把16位PCM包装为WAV
func EncodeWAV(pcm []byte, sampleRate, channels int) ([]byte, error) {
	if sampleRate <= 0 || channels <= 0 {
		return nil, fmt.Errorf("采样率或声道数无效: %d/%d", sampleRate, channels)
	}

	const bitsPerSample = 16
	header := wavHeader{
		ChunkID:       [4]byte{'R', 'I', 'F', 'F'},
		ChunkSize:     uint32(36 + len(pcm)),
		Format:        [4]byte{'W', 'A', 'V', 'E'},
		Subchunk1ID:   [4]byte{'f', 'm', 't', ' '},
		Subchunk1Size: 16,
		AudioFormat:   1,
		NumChannels:   uint16(channels),
		SampleRate:    uint32(sampleRate),
		ByteRate:      uint32(sampleRate * channels * bitsPerSample / 8),
		BlockAlign:    uint16(channels * bitsPerSample / 8),
		BitsPerSample: bitsPerSample,
		Subchunk2ID:   [4]byte{'d', 'a', 't', 'a'},
		Subchunk2Size: uint32(len(pcm)),
	}

	buf := bytes.NewBuffer(make([]byte, 0, 44+len(pcm)))
	if err := binary.Write(buf, binary.LittleEndian, header); err != nil {
		return nil, fmt.Errorf("写入WAV头失败: %w", err)
	}
	buf.Write(pcm)
	return buf.Bytes(), nil
}

// DecodeWAV 解析PCM WAV，跳过fmt与data之外的块
func DecodeWAV(data []byte) (*WAV, error) {
	if len(data) < 12 || string(data[0:4]) != "RIFF" || string(data[8:12]) != "WAVE" {
		return nil, ErrInvalidWAV
	}

	var wav WAV
	haveFmt := false
	pos := 12
	for pos+8 <= len(data) {
		id := string(data[pos : pos+4])
		size := int(binary.LittleEndian.Uint32(data[pos+4 : pos+8]))
		body := pos + 8
		if size < 0 || body+size > len(data) {
			// 部分合成器在流式输出时把data长度写成0xFFFFFFFF
			if id == "data" {
				size = len(data) - body
			} else {
				return nil, fmt.Errorf("%w: 块 %q 越界", ErrInvalidWAV, id)
			}
		}

		switch id {
		case "fmt ":
			if size < 16 {
				return nil, fmt.Errorf("%w: fmt块过短", ErrInvalidWAV)
			}
			if format := binary.LittleEndian.Uint16(data[body:]); format != 1 {
				return nil, fmt.Errorf("%w: 不支持的编码 %d", ErrInvalidWAV, format)
			}
			wav.Channels = int(binary.LittleEndian.Uint16(data[body+2:]))
			wav.SampleRate = int(binary.LittleEndian.Uint32(data[body+4:]))
			wav.BitsPerSample = int(binary.LittleEndian.Uint16(data[body+14:]))
			haveFmt = true
		case "data":
			if !haveFmt {
				return nil, fmt.Errorf("%w: data块先于fmt块", ErrInvalidWAV)
			}
			wav.Data = data[body : body+size]
			return &wav, nil
		}

		pos = body + size + size%2
	}
	return nil, fmt.Errorf("%w: 缺少data块", ErrInvalidWAV)
}

// IsWAV 判断数据是否以RIFF/WAVE开头
func IsWAV(data []byte) bool {
	return len(data) >= 12 && string(data[0:4]) == "RIFF" && string(data[8:12]) == "WAVE"
}
