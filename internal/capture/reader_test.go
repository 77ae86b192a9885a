package capture

import (
	"bytes"
	"net"
	"testing"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"smart_head/internal/transport"
)

const serverPort = 5000

var (
	clientIP = net.IPv4(192, 168, 1, 10)
	serverIP = net.IPv4(192, 168, 1, 20)
)

// pcapBuilder 生成内存中的pcap文件
type pcapBuilder struct {
	t      *testing.T
	buf    bytes.Buffer
	writer *pcapgo.Writer
	ts     time.Time
}

func newPcapBuilder(t *testing.T) *pcapBuilder {
	b := &pcapBuilder{t: t, ts: time.Unix(1700000000, 0)}
	b.writer = pcapgo.NewWriter(&b.buf)
	require.NoError(t, b.writer.WriteFileHeader(65536, layers.LinkTypeEthernet))
	return b
}

// segment 写入一个TCP段，toServer决定方向
func (b *pcapBuilder) segment(toServer bool, seq uint32, payload []byte) {
	srcIP, dstIP := clientIP, serverIP
	srcPort, dstPort := layers.TCPPort(40000), layers.TCPPort(serverPort)
	if !toServer {
		srcIP, dstIP = dstIP, srcIP
		srcPort, dstPort = dstPort, srcPort
	}

	eth := &layers.Ethernet{
		SrcMAC:       net.HardwareAddr{0, 1, 2, 3, 4, 5},
		DstMAC:       net.HardwareAddr{0, 1, 2, 3, 4, 6},
		EthernetType: layers.EthernetTypeIPv4,
	}
	ip := &layers.IPv4{Version: 4, TTL: 64, Protocol: layers.IPProtocolTCP, SrcIP: srcIP, DstIP: dstIP}
	tcp := &layers.TCP{SrcPort: srcPort, DstPort: dstPort, Seq: seq, ACK: true, PSH: true, Window: 65535}
	require.NoError(b.t, tcp.SetNetworkLayerForChecksum(ip))

	out := gopacket.NewSerializeBuffer()
	opts := gopacket.SerializeOptions{FixLengths: true, ComputeChecksums: true}
	require.NoError(b.t, gopacket.SerializeLayers(out, opts, eth, ip, tcp, gopacket.Payload(payload)))

	data := out.Bytes()
	b.ts = b.ts.Add(10 * time.Millisecond)
	require.NoError(b.t, b.writer.WritePacket(gopacket.CaptureInfo{
		Timestamp:     b.ts,
		CaptureLength: len(data),
		Length:        len(data),
	}, data))
}

func (b *pcapBuilder) reader(maxSize uint32) *Reader {
	r, err := NewReader(bytes.NewReader(b.buf.Bytes()), serverPort, maxSize)
	require.NoError(b.t, err)
	return r
}

func TestReader_ReassemblesSplitMessages(t *testing.T) {
	pcm := bytes.Repeat([]byte{0x10, 0x20}, 400)
	request := transport.EncodeMessage(pcm)
	reply := transport.EncodeMessage([]byte("Привет! Чем могу помочь?"))

	b := newPcapBuilder(t)
	b.segment(true, 1000, request[:3])
	b.segment(true, 1003, request[3:500])
	b.segment(true, 1500, request[500:])
	b.segment(false, 9000, reply)
	b.segment(true, 1000+uint32(len(request)), transport.EncodeMessage(nil))

	frames, err := b.reader(1 << 20).Messages()
	require.NoError(t, err)
	require.Len(t, frames, 3)

	assert.Equal(t, ToServer, frames[0].Direction)
	assert.Equal(t, "pcm", frames[0].Kind())
	assert.Equal(t, pcm, frames[0].Payload)
	assert.Equal(t, "192.168.1.10:40000 -> 192.168.1.20:5000", frames[0].Flow)

	assert.Equal(t, ToClient, frames[1].Direction)
	assert.Equal(t, "text", frames[1].Kind())
	assert.Equal(t, "Привет! Чем могу помочь?", string(frames[1].Payload))

	assert.Equal(t, "empty", frames[2].Kind())
	assert.Zero(t, frames[2].Length)
}

func TestReader_SkipsRetransmissions(t *testing.T) {
	msg := transport.EncodeMessage([]byte("ответ"))

	b := newPcapBuilder(t)
	b.segment(false, 100, msg[:6])
	b.segment(false, 100, msg[:6])
	b.segment(false, 102, msg[2:])

	r := b.reader(0)
	frames, err := r.Messages()
	require.NoError(t, err)
	require.Len(t, frames, 1)
	assert.Equal(t, "ответ", string(frames[0].Payload))
	assert.Zero(t, r.Stats().Resyncs)
}

func TestReader_ResyncsAfterGapAndOversize(t *testing.T) {
	b := newPcapBuilder(t)
	// 长度前缀声称2GB，超过上限
	b.segment(true, 1, []byte{0x80, 0, 0, 0, 1, 2})
	good := transport.EncodeMessage([]byte{1, 2, 3, 4})
	b.segment(true, 7, good)
	// 跳过一段序号，模拟丢包
	b.segment(false, 50, transport.EncodeMessage([]byte("a"))[:3])
	b.segment(false, 80, transport.EncodeMessage([]byte("b")))

	r := b.reader(1 << 20)
	frames, err := r.Messages()
	require.NoError(t, err)
	require.Len(t, frames, 2)
	assert.Equal(t, []byte{1, 2, 3, 4}, frames[0].Payload)
	assert.Equal(t, "b", string(frames[1].Payload))

	stats := r.Stats()
	assert.Equal(t, 2, stats.Resyncs)
	assert.Equal(t, 4, stats.Packets)
	assert.Equal(t, 2, stats.Frames)
}

func TestReader_IgnoresOtherPorts(t *testing.T) {
	b := newPcapBuilder(t)
	eth := &layers.Ethernet{SrcMAC: net.HardwareAddr{0, 1, 2, 3, 4, 5}, DstMAC: net.HardwareAddr{0, 1, 2, 3, 4, 6}, EthernetType: layers.EthernetTypeIPv4}
	ip := &layers.IPv4{Version: 4, TTL: 64, Protocol: layers.IPProtocolTCP, SrcIP: clientIP, DstIP: serverIP}
	tcp := &layers.TCP{SrcPort: 1234, DstPort: 80, Seq: 1, ACK: true}
	require.NoError(t, tcp.SetNetworkLayerForChecksum(ip))
	out := gopacket.NewSerializeBuffer()
	require.NoError(t, gopacket.SerializeLayers(out, gopacket.SerializeOptions{FixLengths: true, ComputeChecksums: true},
		eth, ip, tcp, gopacket.Payload(transport.EncodeMessage([]byte("x")))))
	require.NoError(t, b.writer.WritePacket(gopacket.CaptureInfo{Timestamp: b.ts, CaptureLength: len(out.Bytes()), Length: len(out.Bytes())}, out.Bytes()))

	frames, err := b.reader(0).Messages()
	require.NoError(t, err)
	assert.Empty(t, frames)
}

func TestDescribe(t *testing.T) {
	ts := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	pcm := Frame{Flow: "a -> b", Direction: ToServer, Timestamp: ts, Length: 32000, Payload: make([]byte, 32000)}
	assert.Contains(t, Describe(pcm, 16000), "duration=1s")

	text := Frame{Direction: ToClient, Timestamp: ts, Length: 4, Payload: []byte("Да!!")}
	assert.Contains(t, Describe(text, 16000), `"Да!!"`)

	wav := Frame{Direction: ToClient, Timestamp: ts, Length: 12, Payload: []byte("RIFF\x00\x00\x00\x00WAVE")}
	assert.Contains(t, Describe(wav, 16000), "wav")
}

func TestNewReader_InvalidData(t *testing.T) {
	_, err := NewReader(bytes.NewReader([]byte("not a pcap")), serverPort, 0)
	assert.Error(t, err)
}
