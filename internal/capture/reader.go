// Package capture 从pcap抓包文件中还原助手协议的消息
package capture

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"time"
	"unicode/utf8"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"

	"smart_head/internal/audio"
	"smart_head/internal/transport"
)

// Direction 消息方向
type Direction int

// 定义方向常量
const (
	ToServer Direction = iota // 客户端发往处理服务
	ToClient                  // 处理服务回复客户端
)

func (d Direction) String() string {
	if d == ToServer {
		return "client->server"
	}
	return "server->client"
}

// Frame 一条完整的消息
type Frame struct {
	Flow      string    // 源地址 -> 目的地址
	Direction Direction // 方向
	Timestamp time.Time // 消息最后一个字节所在数据包的时间
	Length    uint32    // 长度前缀
	Payload   []byte    // 负载
}

// Kind 推断负载类型
func (f Frame) Kind() string {
	switch {
	case f.Length == 0:
		return "empty"
	case f.Direction == ToServer:
		return "pcm"
	case audio.IsWAV(f.Payload):
		return "wav"
	case audio.IsMP3(f.Payload):
		return "mp3"
	case utf8.Valid(f.Payload):
		return "text"
	default:
		return "binary"
	}
}

// Stats 解析统计
type Stats struct {
	Packets  int // 读取的数据包
	Segments int // 端口匹配且带负载的TCP段
	Frames   int // 还原出的消息
	Resyncs  int // 因乱序、丢包或非法长度丢弃缓冲的次数
}

// stream 单向TCP字节流
type stream struct {
	nextSeq uint32
	started bool
	buf     []byte
}

// Reader 读取pcap并按长度前缀切分消息
type Reader struct {
	source  *gopacket.PacketSource
	port    uint16
	maxSize uint32
	streams map[string]*stream
	stats   Stats
}

// NewReader 从pcap数据流创建读取器，port为处理服务的TCP端口
func NewReader(r io.Reader, port uint16, maxSize uint32) (*Reader, error) {
	pr, err := pcapgo.NewReader(r)
	if err != nil {
		return nil, fmt.Errorf("打开PCAP数据失败: %w", err)
	}
	source := gopacket.NewPacketSource(pr, pr.LinkType())
	source.DecodeOptions = gopacket.DecodeOptions{Lazy: true, NoCopy: true}

	return &Reader{
		source:  source,
		port:    port,
		maxSize: maxSize,
		streams: make(map[string]*stream),
	}, nil
}

// ReadFile 读取整个pcap文件
func ReadFile(path string, port uint16, maxSize uint32) ([]Frame, Stats, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, Stats{}, fmt.Errorf("打开PCAP文件失败: %w", err)
	}
	defer f.Close()

	reader, err := NewReader(f, port, maxSize)
	if err != nil {
		return nil, Stats{}, err
	}
	frames, err := reader.Messages()
	return frames, reader.Stats(), err
}

// Stats 返回解析统计
func (r *Reader) Stats() Stats {
	return r.stats
}

// Messages 读取全部数据包并返回按出现顺序排列的消息
func (r *Reader) Messages() ([]Frame, error) {
	var frames []Frame
	for {
		packet, err := r.source.NextPacket()
		if errors.Is(err, io.EOF) {
			return frames, nil
		}
		if err != nil {
			return frames, fmt.Errorf("读取数据包失败: %w", err)
		}
		r.stats.Packets++
		frames = append(frames, r.handlePacket(packet)...)
	}
}

func (r *Reader) handlePacket(packet gopacket.Packet) []Frame {
	tcp, ok := packet.Layer(layers.LayerTypeTCP).(*layers.TCP)
	if !ok {
		return nil
	}

	var direction Direction
	switch {
	case uint16(tcp.DstPort) == r.port:
		direction = ToServer
	case uint16(tcp.SrcPort) == r.port:
		direction = ToClient
	default:
		return nil
	}

	flow := fmt.Sprintf("%d -> %d", tcp.SrcPort, tcp.DstPort)
	if network := packet.NetworkLayer(); network != nil {
		src, dst := network.NetworkFlow().Endpoints()
		flow = fmt.Sprintf("%s:%d -> %s:%d", src, tcp.SrcPort, dst, tcp.DstPort)
	}

	s, ok := r.streams[flow]
	if !ok {
		s = &stream{}
		r.streams[flow] = s
	}
	if tcp.SYN {
		s.nextSeq = tcp.Seq + 1
		s.started = true
		s.buf = nil
	}
	if tcp.RST || len(tcp.Payload) == 0 {
		if tcp.RST || tcp.FIN {
			delete(r.streams, flow)
		}
		return nil
	}
	r.stats.Segments++

	payload := tcp.Payload
	if !s.started {
		s.nextSeq = tcp.Seq
		s.started = true
	}
	switch diff := int32(tcp.Seq - s.nextSeq); {
	case diff > 0:
		// 丢包：缓冲中的数据已无法对齐
		r.stats.Resyncs++
		s.buf = nil
		s.nextSeq = tcp.Seq
	case diff < 0:
		// 重传：跳过已经收到的部分
		overlap := int(-diff)
		if overlap >= len(payload) {
			return nil
		}
		payload = payload[overlap:]
	}
	s.buf = append(s.buf, payload...)
	s.nextSeq += uint32(len(payload))

	return r.drain(s, flow, direction, packet.Metadata().Timestamp)
}

// drain 从缓冲中切出所有完整的消息
func (r *Reader) drain(s *stream, flow string, direction Direction, ts time.Time) []Frame {
	var frames []Frame
	for len(s.buf) >= transport.HeaderSize {
		length := binary.BigEndian.Uint32(s.buf[:transport.HeaderSize])
		if r.maxSize > 0 && length > r.maxSize {
			r.stats.Resyncs++
			s.buf = nil
			break
		}
		end := transport.HeaderSize + int(length)
		if len(s.buf) < end {
			break
		}

		payload := make([]byte, length)
		copy(payload, s.buf[transport.HeaderSize:end])
		frames = append(frames, Frame{
			Flow:      flow,
			Direction: direction,
			Timestamp: ts,
			Length:    length,
			Payload:   payload,
		})
		s.buf = s.buf[end:]
	}
	if len(s.buf) == 0 {
		s.buf = nil
	}
	r.stats.Frames += len(frames)
	return frames
}
