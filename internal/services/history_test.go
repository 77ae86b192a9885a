package services

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"pgregory.net/rapid"

	"smart_head/internal/models"
)

func msg(i int) models.Message {
	return models.Message{Role: "user", Content: fmt.Sprint(i)}
}

func TestHistory_EvictsOldest(t *testing.T) {
	h := NewHistory(4)
	for i := 0; i < 6; i++ {
		h.Append(msg(i))
	}
	assert.Equal(t, 4, h.Len())
	assert.Equal(t, []models.Message{msg(2), msg(3), msg(4), msg(5)}, h.Messages())
}

func TestHistory_MessagesIsCopy(t *testing.T) {
	h := NewHistory(4)
	h.Append(msg(1))
	got := h.Messages()
	got[0].Content = "changed"
	assert.Equal(t, "1", h.Messages()[0].Content)
}

func TestHistory_Reset(t *testing.T) {
	h := NewHistory(4)
	h.Append(msg(1), msg(2))
	h.Reset()
	assert.Zero(t, h.Len())
	assert.Empty(t, h.Messages())
}

func TestHistory_ZeroBound(t *testing.T) {
	h := NewHistory(0)
	h.Append(msg(1), msg(2))
	assert.Zero(t, h.Len())
}

func TestHistory_BoundProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		bound := rapid.IntRange(0, 30).Draw(t, "bound")
		batches := rapid.SliceOfN(rapid.IntRange(1, 3), 0, 50).Draw(t, "batches")

		h := NewHistory(bound)
		var all []models.Message
		for _, n := range batches {
			batch := make([]models.Message, n)
			for i := range batch {
				batch[i] = msg(len(all) + i)
			}
			h.Append(batch...)
			all = append(all, batch...)

			if h.Len() > bound {
				t.Fatalf("len %d exceeds bound %d", h.Len(), bound)
			}
		}

		want := all
		if len(want) > bound {
			want = want[len(want)-bound:]
		}
		got := h.Messages()
		if len(got) != len(want) {
			t.Fatalf("got %d messages, want %d", len(got), len(want))
		}
		for i := range want {
			if got[i] != want[i] {
				t.Fatalf("message %d = %v, want %v", i, got[i], want[i])
			}
		}
	})
}
