package queue

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEventHubFanOut(t *testing.T) {
	h := NewEventHub()
	a := h.Subscribe("run_1")
	b := h.Subscribe("run_1")
	other := h.Subscribe("run_2")
	assert.Equal(t, 2, h.Subscribers("run_1"))

	h.Emit("run_1", Event{RunID: "run_1", Status: RunRunning})

	assert.Equal(t, RunRunning, (<-a).Status)
	assert.Equal(t, RunRunning, (<-b).Status)
	assert.Empty(t, other)

	h.Unsubscribe("run_1", a)
	_, open := <-a
	assert.False(t, open)
	assert.Equal(t, 1, h.Subscribers("run_1"))

	h.Close()
	_, open = <-b
	assert.False(t, open)
	assert.Zero(t, h.Subscribers("run_2"))
}

func TestEventHubDropsWhenFull(t *testing.T) {
	h := NewEventHub()
	ch := h.Subscribe("run_1")

	for i := 0; i < cap(ch)+5; i++ {
		h.Emit("run_1", Event{RunID: "run_1", Progress: Progress{Done: i}})
	}
	require.Len(t, ch, cap(ch))
	assert.Equal(t, 0, (<-ch).Progress.Done)
}
