package services

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"smart_head/internal/metrics"
	"smart_head/internal/models"
	"smart_head/internal/types"
)

func TestDialogService_ShortTextSkipsModel(t *testing.T) {
	dialogue := &fakeDialogue{answer: "не должно вызываться"}
	svc := newTestDialogService(dialogue, 20)
	dc := svc.Open("s1", "127.0.0.1:1")

	for _, text := range []string{"да", "", "  а  ", "ok"} {
		reply, outcome := svc.Reply(context.Background(), dc, text)
		assert.Equal(t, NotUnderstoodReply, reply)
		assert.Equal(t, metrics.OutcomeNotUnderstood, outcome)
	}
	assert.Zero(t, dialogue.calls())
	assert.Zero(t, dc.History.Len())
}

func TestDialogService_BuildsRequestWithSystemPrompt(t *testing.T) {
	dialogue := &fakeDialogue{answer: "Хорошо, спасибо!"}
	svc := newTestDialogService(dialogue, 20)
	dc := svc.Open("s1", "127.0.0.1:1")

	reply, outcome := svc.Reply(context.Background(), dc, "Как дела?")
	require.Equal(t, metrics.OutcomeReply, outcome)
	assert.Equal(t, "Хорошо, спасибо!", reply)

	_, _ = svc.Reply(context.Background(), dc, "Что нового?")
	require.Equal(t, 2, dialogue.calls())

	second := dialogue.requests[1]
	assert.Equal(t, []models.Message{
		{Role: types.RoleSystem, Content: "Отвечай кратко"},
		{Role: types.RoleUser, Content: "Как дела?"},
		{Role: types.RoleAssistant, Content: "Хорошо, спасибо!"},
		{Role: types.RoleUser, Content: "Что нового?"},
	}, second)
	assert.Equal(t, 4, dc.History.Len())
}

func TestDialogService_HistoryBounded(t *testing.T) {
	dialogue := &fakeDialogue{answer: "ответ"}
	svc := newTestDialogService(dialogue, 4)
	dc := svc.Open("s1", "127.0.0.1:1")

	for _, text := range []string{"первый", "второй", "третий"} {
		svc.Reply(context.Background(), dc, text)
	}
	history := dc.History.Messages()
	require.Len(t, history, 4)
	assert.Equal(t, "второй", history[0].Content)
	assert.Equal(t, "третий", history[2].Content)

	last := dialogue.requests[2]
	require.Len(t, last, 1+4)
	assert.Equal(t, types.RoleSystem, last[0].Role)
	assert.Equal(t, models.Message{Role: types.RoleUser, Content: "третий"}, last[4])

	for _, text := range []string{"четвертый", "пятый"} {
		svc.Reply(context.Background(), dc, text)
	}
	for i, req := range dialogue.requests {
		assert.LessOrEqual(t, len(req)-1, dc.History.Bound(), "request %d", i)
	}
}

func TestDialogService_ZeroBoundSendsOnlyCurrentTurn(t *testing.T) {
	dialogue := &fakeDialogue{answer: "ответ"}
	svc := newTestDialogService(dialogue, 0)
	dc := svc.Open("s1", "127.0.0.1:1")

	svc.Reply(context.Background(), dc, "первый")
	svc.Reply(context.Background(), dc, "второй")

	assert.Equal(t, []models.Message{
		{Role: types.RoleSystem, Content: "Отвечай кратко"},
		{Role: types.RoleUser, Content: "второй"},
	}, dialogue.requests[1])
	assert.Zero(t, dc.History.Len())
}

func TestDialogService_ModelFailureFallsBack(t *testing.T) {
	for name, dialogue := range map[string]*fakeDialogue{
		"错误":  {err: errors.New("lm studio offline")},
		"空回复": {answer: "   "},
	} {
		t.Run(name, func(t *testing.T) {
			svc := newTestDialogService(dialogue, 20)
			dc := svc.Open("s1", "127.0.0.1:1")

			reply, outcome := svc.Reply(context.Background(), dc, "Привет всем")
			assert.Equal(t, FallbackReply, reply)
			assert.Equal(t, metrics.OutcomeFallback, outcome)
			assert.Zero(t, dc.History.Len())
		})
	}
}

func TestDialogService_SessionsRegistry(t *testing.T) {
	svc := newTestDialogService(&fakeDialogue{answer: "ок"}, 20)
	a := svc.Open("a", "10.0.0.1:5000")
	svc.Open("b", "10.0.0.2:5000")

	svc.Reply(context.Background(), a, "Привет")
	sessions := svc.Sessions()
	require.Len(t, sessions, 2)
	assert.Equal(t, "a", sessions[0].SessionID)
	assert.Equal(t, 1, sessions[0].Turns)
	assert.Equal(t, 2, sessions[0].HistoryLen)

	history, ok := svc.GetHistory("a")
	require.True(t, ok)
	assert.Len(t, history, 2)

	assert.True(t, svc.ClearHistory("a"))
	history, _ = svc.GetHistory("a")
	assert.Empty(t, history)

	svc.Close("a")
	_, ok = svc.GetHistory("a")
	assert.False(t, ok)
	assert.False(t, svc.ClearHistory("a"))
	assert.Len(t, svc.Sessions(), 1)
}

func TestDialogService_DefaultSystemPrompt(t *testing.T) {
	dialogue := &fakeDialogue{answer: "ок"}
	m := newTestMetrics()
	svc := NewDialogService(DialogConfig{HistoryBound: 20, MinTextRunes: 2}, dialogue, NewModelLock(m), m, nopLogger())
	dc := svc.Open("s", "")
	svc.Reply(context.Background(), dc, "Привет")
	assert.Equal(t, DefaultSystemPrompt, dialogue.requests[0][0].Content)
}

type recordingSink struct {
	mu     sync.Mutex
	events []models.SessionEvent
}

func (r *recordingSink) Publish(ev models.SessionEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

func TestDialogService_PublishesEvents(t *testing.T) {
	sink := &recordingSink{}
	m := newTestMetrics()
	svc := NewDialogService(DialogConfig{HistoryBound: 20, MinTextRunes: 2, Events: sink},
		&fakeDialogue{answer: "Привет!"}, NewModelLock(m), m, nopLogger())

	dc := svc.Open("s1", "10.0.0.1:4000")
	svc.Reply(context.Background(), dc, "Привет")
	svc.Reply(context.Background(), dc, "а")
	svc.Close("s1")
	svc.Close("s1")

	require.Len(t, sink.events, 4)
	assert.Equal(t, models.EventSessionOpened, sink.events[0].Type)
	assert.Equal(t, "10.0.0.1:4000", sink.events[0].RemoteAddr)

	assert.Equal(t, models.EventTurn, sink.events[1].Type)
	assert.Equal(t, "Привет", sink.events[1].Transcript)
	assert.Equal(t, "Привет!", sink.events[1].Reply)
	assert.Equal(t, metrics.OutcomeReply, sink.events[1].Outcome)

	assert.Equal(t, metrics.OutcomeNotUnderstood, sink.events[2].Outcome)
	assert.Equal(t, NotUnderstoodReply, sink.events[2].Reply)

	assert.Equal(t, models.EventSessionClosed, sink.events[3].Type)
	for _, ev := range sink.events {
		assert.Equal(t, "s1", ev.SessionID)
		assert.False(t, ev.Time.IsZero())
	}
}
