package openai

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"smart_head/internal/audio"
	"smart_head/internal/models"
)

func TestChatClient_Complete(t *testing.T) {
	var got struct {
		Model       string           `json:"model"`
		Messages    []models.Message `json:"messages"`
		Temperature float32          `json:"temperature"`
		MaxTokens   int              `json:"max_tokens"`
	}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))

		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"id":"1","object":"chat.completion","choices":[{"index":0,"message":{"role":"assistant","content":"  Привет!  "},"finish_reason":"stop"}],"usage":{"total_tokens":12}}`)
	}))
	defer server.Close()

	client := NewChatClient(Config{BaseURL: server.URL + "/v1"}, ChatOptions{
		Model:       "local-model",
		Temperature: 0.7,
		MaxTokens:   150,
	}, zap.NewNop())

	answer, err := client.Complete(context.Background(), []models.Message{
		{Role: "system", Content: "Отвечай кратко"},
		{Role: "user", Content: "Привет"},
	})
	require.NoError(t, err)
	assert.Equal(t, "Привет!", answer)
	assert.Equal(t, "local-model", got.Model)
	assert.Equal(t, 150, got.MaxTokens)
	assert.InDelta(t, 0.7, got.Temperature, 1e-6)
	require.Len(t, got.Messages, 2)
	assert.Equal(t, "system", got.Messages[0].Role)
}

func TestChatClient_NoChoices(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"id":"1","choices":[]}`)
	}))
	defer server.Close()

	client := NewChatClient(Config{BaseURL: server.URL}, ChatOptions{Model: "m"}, zap.NewNop())
	_, err := client.Complete(context.Background(), []models.Message{{Role: "user", Content: "hi"}})
	assert.ErrorIs(t, err, ErrEmptyChoice)
}

func TestChatClient_Timeout(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer server.Close()

	client := NewChatClient(Config{BaseURL: server.URL, Timeout: 50 * time.Millisecond}, ChatOptions{Model: "m"}, zap.NewNop())
	_, err := client.Complete(context.Background(), []models.Message{{Role: "user", Content: "hi"}})
	assert.Error(t, err)
}

func TestTranscriptionClient_SendsWAV(t *testing.T) {
	var (
		upload   []byte
		language string
	)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/audio/transcriptions", r.URL.Path)
		require.NoError(t, r.ParseMultipartForm(1<<20))
		language = r.FormValue("language")

		file, header, err := r.FormFile("file")
		require.NoError(t, err)
		defer file.Close()
		assert.Equal(t, "audio.wav", header.Filename)
		upload, _ = io.ReadAll(file)

		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"text":" Привет, как дела? "}`)
	}))
	defer server.Close()

	client := NewTranscriptionClient(Config{BaseURL: server.URL}, "whisper-1", "ru", zap.NewNop())
	pcm := make([]byte, 3200)
	text, err := client.Transcribe(context.Background(), pcm, 16000, 1)
	require.NoError(t, err)
	assert.Equal(t, "Привет, как дела?", text)
	assert.Equal(t, "ru", language)

	wav, err := audio.DecodeWAV(upload)
	require.NoError(t, err)
	assert.Equal(t, 16000, wav.SampleRate)
	assert.Equal(t, 1, wav.Channels)
	assert.Equal(t, pcm, wav.Data)
}

func TestTranscriptionClient_EmptyInput(t *testing.T) {
	client := NewTranscriptionClient(Config{BaseURL: "http://127.0.0.1:1"}, "whisper-1", "ru", zap.NewNop())
	text, err := client.Transcribe(context.Background(), nil, 16000, 1)
	require.NoError(t, err)
	assert.Empty(t, text)
}

func TestSpeechClient_Synthesize(t *testing.T) {
	var got map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/audio/speech", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Header().Set("Content-Type", "audio/wav")
		_, _ = w.Write([]byte("RIFFdata"))
	}))
	defer server.Close()

	client := NewSpeechClient(Config{BaseURL: server.URL}, "", "alloy")
	data, err := client.Synthesize(context.Background(), "Привет")
	require.NoError(t, err)
	assert.Equal(t, []byte("RIFFdata"), data)
	assert.Equal(t, "tts-1", got["model"])
	assert.Equal(t, "wav", got["response_format"])
	assert.Equal(t, "Привет", got["input"])
}

func TestSpeechClient_BlankText(t *testing.T) {
	client := NewSpeechClient(Config{BaseURL: "http://127.0.0.1:1"}, "", "alloy")
	data, err := client.Synthesize(context.Background(), "   ")
	require.NoError(t, err)
	assert.Nil(t, data)
}
