package queue

import "sync"

// Event is a status or progress change of a run
type Event struct {
	RunID    string    `json:"run_id"`
	Status   RunStatus `json:"status"`
	Progress Progress  `json:"progress"`
	Message  string    `json:"message,omitempty"`
}

// EventOf snapshots the run's current state as an event.
func EventOf(run *Run) Event {
	return Event{
		RunID:    run.ID,
		Status:   run.Status,
		Progress: run.Progress,
		Message:  run.Message,
	}
}

const eventBuffer = 16

// EventHub fans run events out to subscribers
type EventHub struct {
	subscribers map[string][]chan Event
	mu          sync.RWMutex
}

// NewEventHub creates a new event hub
func NewEventHub() *EventHub {
	return &EventHub{
		subscribers: make(map[string][]chan Event),
	}
}

// Subscribe creates a subscription for run events
func (h *EventHub) Subscribe(runID string) <-chan Event {
	h.mu.Lock()
	defer h.mu.Unlock()

	ch := make(chan Event, eventBuffer)
	h.subscribers[runID] = append(h.subscribers[runID], ch)
	return ch
}

// Unsubscribe removes a subscription and closes its channel
func (h *EventHub) Unsubscribe(runID string, ch <-chan Event) {
	h.mu.Lock()
	defer h.mu.Unlock()

	subs := h.subscribers[runID]
	for i, sub := range subs {
		if sub == ch {
			h.subscribers[runID] = append(subs[:i], subs[i+1:]...)
			close(sub)
			break
		}
	}

	if len(h.subscribers[runID]) == 0 {
		delete(h.subscribers, runID)
	}
}

// Emit sends an event to all subscribers of a run. Slow subscribers
// miss events rather than block the worker.
func (h *EventHub) Emit(runID string, event Event) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for _, ch := range h.subscribers[runID] {
		select {
		case ch <- event:
		default:
		}
	}
}

// Subscribers returns the number of open subscriptions for a run
func (h *EventHub) Subscribers(runID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subscribers[runID])
}

// Close closes all subscriptions
func (h *EventHub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()

	for runID, subs := range h.subscribers {
		for _, ch := range subs {
			close(ch)
		}
		delete(h.subscribers, runID)
	}
}
