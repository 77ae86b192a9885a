package transport

import (
	"bytes"
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func TestSendMessage_Header(t *testing.T) {
	payload := bytes.Repeat([]byte{0x01}, 48000)

	var buf bytes.Buffer
	require.NoError(t, SendMessage(&buf, payload))

	wire := buf.Bytes()
	require.Len(t, wire, 48004)
	assert.Equal(t, []byte{0x00, 0x00, 0xBB, 0x80}, wire[:4])

	got, err := RecvMessage(&buf, 0)
	require.NoError(t, err)
	assert.Equal(t, payload, got)
}

func TestRecvMessage_ZeroLength(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, SendMessage(&buf, nil))
	assert.Equal(t, []byte{0, 0, 0, 0}, buf.Bytes())

	got, err := RecvMessage(&buf, 0)
	require.NoError(t, err)
	assert.NotNil(t, got)
	assert.Empty(t, got)
}

func TestRecvMessage_RoundTrip(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		payloads := rapid.SliceOfN(rapid.SliceOfN(rapid.Byte(), 0, 512), 1, 8).Draw(rt, "payloads")

		var buf bytes.Buffer
		for _, p := range payloads {
			if err := SendMessage(&buf, p); err != nil {
				rt.Fatalf("send: %v", err)
			}
		}
		for i, want := range payloads {
			got, err := RecvMessage(&buf, 0)
			if err != nil {
				rt.Fatalf("recv #%d: %v", i, err)
			}
			if !bytes.Equal(got, want) {
				rt.Fatalf("payload #%d mismatch", i)
			}
		}
	})
}

func TestRecvExact_PeerClosesEarly(t *testing.T) {
	tests := []struct {
		name string
		sent int
		want int
	}{
		{"未收到任何字节", 0, 8},
		{"只收到一部分", 3, 8},
		{"差一个字节", 7, 8},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client, server := net.Pipe()
			go func() {
				if tt.sent > 0 {
					_, _ = client.Write(make([]byte, tt.sent))
				}
				_ = client.Close()
			}()

			got, err := RecvExact(server, tt.want)
			assert.ErrorIs(t, err, ErrClosed)
			assert.Nil(t, got)
			_ = server.Close()
		})
	}
}

func TestRecvMessage_HeaderClosed(t *testing.T) {
	_, err := RecvMessage(bytes.NewReader([]byte{0x00, 0x00}), 0)
	assert.ErrorIs(t, err, ErrClosed)
}

func TestRecvMessage_BodyClosed(t *testing.T) {
	wire := []byte{0x00, 0x00, 0x00, 0x0A, 1, 2, 3}
	_, err := RecvMessage(bytes.NewReader(wire), 0)
	assert.ErrorIs(t, err, ErrClosed)
}

func TestRecvMessage_TooLarge(t *testing.T) {
	wire := []byte{0x7F, 0xFF, 0xFF, 0xFF}
	_, err := RecvMessage(bytes.NewReader(wire), 1024)
	assert.ErrorIs(t, err, ErrMessageTooLarge)
}
