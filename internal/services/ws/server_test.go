package ws

import (
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"smart_head/internal/models"
)

func dialHub(t *testing.T, hub *Hub) *websocket.Conn {
	t.Helper()
	srv := httptest.NewServer(hub)
	t.Cleanup(srv.Close)

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })

	require.Eventually(t, func() bool { return hub.Subscribers() == 1 }, time.Second, 5*time.Millisecond)
	return conn
}

func TestHub_BroadcastsEvents(t *testing.T) {
	hub := NewHub(HubConfig{}, zap.NewNop())
	conn := dialHub(t, hub)

	hub.Publish(models.SessionEvent{Type: models.EventTurn, SessionID: "s1", Transcript: "Привет", Reply: "Здравствуй"})

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var ev models.SessionEvent
	require.NoError(t, conn.ReadJSON(&ev))
	assert.Equal(t, models.EventTurn, ev.Type)
	assert.Equal(t, "s1", ev.SessionID)
	assert.Equal(t, "Здравствуй", ev.Reply)
	assert.False(t, ev.Time.IsZero())
}

func TestHub_UnsubscribesOnDisconnect(t *testing.T) {
	hub := NewHub(HubConfig{}, zap.NewNop())
	conn := dialHub(t, hub)

	require.NoError(t, conn.Close())
	assert.Eventually(t, func() bool { return hub.Subscribers() == 0 }, 2*time.Second, 5*time.Millisecond)

	hub.Publish(models.SessionEvent{Type: models.EventSessionClosed, SessionID: "s1"})
}

func TestHub_CloseDisconnectsSubscribers(t *testing.T) {
	hub := NewHub(HubConfig{}, zap.NewNop())
	conn := dialHub(t, hub)

	hub.Close()
	assert.Zero(t, hub.Subscribers())

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, _, err := conn.ReadMessage()
	assert.True(t, websocket.IsCloseError(err, websocket.CloseGoingAway), "err=%v", err)
}

func TestHub_SlowSubscriberDropsEvents(t *testing.T) {
	hub := NewHub(HubConfig{Buffer: 1}, zap.NewNop())
	sub := &subscriber{events: make(chan models.SessionEvent, 1)}
	hub.subscribers[sub] = struct{}{}

	hub.Publish(models.SessionEvent{Type: models.EventSessionOpened, SessionID: "a"})
	hub.Publish(models.SessionEvent{Type: models.EventSessionOpened, SessionID: "b"})

	require.Len(t, sub.events, 1)
	assert.Equal(t, "a", (<-sub.events).SessionID)
}
