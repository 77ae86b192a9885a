package asr

import (
	"bytes"
	"context"
	"encoding/base64"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// fakeWhisper 收集音频帧，收到结束帧后返回reply
func fakeWhisper(t *testing.T, reply Response, received chan<- []byte) *httptest.Server {
	upgrader := websocket.Upgrader{}
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		var audio bytes.Buffer
		for {
			var req Request
			if err := conn.ReadJSON(&req); err != nil {
				return
			}
			chunk, err := base64.StdEncoding.DecodeString(req.Data.Audio)
			assert.NoError(t, err)
			audio.Write(chunk)
			if req.Data.Status == StatusLastFrame {
				break
			}
		}
		received <- audio.Bytes()
		_ = conn.WriteJSON(reply)
		_, _, _ = conn.ReadMessage()
	}))
}

func wsURL(server *httptest.Server) string {
	return "ws" + strings.TrimPrefix(server.URL, "http")
}

func TestWhisperClient_Transcribe(t *testing.T) {
	received := make(chan []byte, 1)
	server := fakeWhisper(t, Response{Type: "result", Text: "привет"}, received)
	defer server.Close()

	client := NewWhisperClient(WhisperConfig{URL: wsURL(server), Language: "ru", Timeout: 5 * time.Second}, zap.NewNop())
	pcm := bytes.Repeat([]byte{1, 2}, 5000)

	text, err := client.Transcribe(context.Background(), pcm, 16000, 1)
	require.NoError(t, err)
	assert.Equal(t, "привет", text)
	assert.Equal(t, pcm, <-received)
}

func TestWhisperClient_ServerError(t *testing.T) {
	received := make(chan []byte, 1)
	server := fakeWhisper(t, Response{Type: "error", Message: "model not loaded"}, received)
	defer server.Close()

	client := NewWhisperClient(WhisperConfig{URL: wsURL(server), Timeout: 5 * time.Second}, zap.NewNop())
	_, err := client.Transcribe(context.Background(), []byte{1, 2, 3, 4}, 16000, 1)
	assert.ErrorIs(t, err, ErrServer)
}

func TestWhisperClient_ConnectionDropped(t *testing.T) {
	upgrader := websocket.Upgrader{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		_, _, _ = conn.ReadMessage()
		_ = conn.Close()
	}))
	defer server.Close()

	client := NewWhisperClient(WhisperConfig{URL: wsURL(server), Timeout: 5 * time.Second}, zap.NewNop())
	_, err := client.Transcribe(context.Background(), []byte{1, 2, 3, 4}, 16000, 1)
	assert.Error(t, err)
}

func TestWhisperClient_EmptyAudio(t *testing.T) {
	client := NewWhisperClient(WhisperConfig{URL: "ws://127.0.0.1:1"}, zap.NewNop())
	text, err := client.Transcribe(context.Background(), nil, 16000, 1)
	require.NoError(t, err)
	assert.Empty(t, text)
}
