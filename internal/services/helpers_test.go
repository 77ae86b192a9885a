package services

import (
	"context"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"smart_head/internal/metrics"
	"smart_head/internal/models"
	"smart_head/internal/types"
)

func nopLogger() *zap.Logger { return zap.NewNop() }

func newTestMetrics() *metrics.Metrics {
	return metrics.New(prometheus.NewRegistry())
}

type fakeTranscriber struct {
	mu    sync.Mutex
	text  string
	err   error
	calls int
}

func (f *fakeTranscriber) Transcribe(ctx context.Context, pcm []byte, sampleRate, channels int) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return f.text, f.err
}

type fakeDialogue struct {
	mu       sync.Mutex
	answer   string
	err      error
	requests [][]models.Message
}

func (f *fakeDialogue) Complete(ctx context.Context, history []models.Message) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, history)
	return f.answer, f.err
}

func (f *fakeDialogue) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.requests)
}

type fakeSynth struct {
	audio []byte
	err   error
}

func (f *fakeSynth) Synthesize(ctx context.Context, text string) ([]byte, error) {
	return f.audio, f.err
}

func newTestDialogService(dialogue models.Dialogue, bound int) *DialogService {
	m := newTestMetrics()
	return NewDialogService(DialogConfig{
		SystemPrompt: "Отвечай кратко",
		HistoryBound: bound,
		MinTextRunes: 2,
	}, dialogue, NewModelLock(m), m, zap.NewNop())
}

func newTestProcessing(transcriber models.Transcriber, dialogue models.Dialogue, synth models.Synthesizer, kind types.ResponseKind) (*ProcessingService, *DialogService) {
	m := newTestMetrics()
	lock := NewModelLock(m)
	dialog := NewDialogService(DialogConfig{HistoryBound: 20, MinTextRunes: 2}, dialogue, lock, m, zap.NewNop())
	svc := NewProcessingService(ProcessingConfig{
		SampleRate:   16000,
		Channels:     1,
		ResponseKind: kind,
	}, transcriber, synth, dialog, lock, m, zap.NewNop())
	return svc, dialog
}
