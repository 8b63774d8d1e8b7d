package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/nats-io/nats.go/jetstream"
)

const (
	// StreamName is the name of the JetStream stream
	StreamName = "UICHECK_RUNS"
	// SubjectName is the subject for run messages
	SubjectName = "uicheck.runs"
	// ConsumerName is the name of the durable consumer
	ConsumerName = "uicheck-worker"
)

// message is what travels through JetStream; the run itself stays in the
// Store.
type message struct {
	RunID string `json:"run_id"`
}

// Manager owns the run store and the JetStream stream feeding the worker.
type Manager struct {
	js       jetstream.JetStream
	consumer jetstream.Consumer
	store    *Store
	events   *EventHub

	mu      sync.Mutex
	working bool
	active  map[string]context.CancelFunc

	ctx    context.Context
	cancel context.CancelFunc
}

// NewManager creates a queue manager backed by JetStream
func NewManager(js jetstream.JetStream) (*Manager, error) {
	m := newManager(js)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	consumer, err := setupStream(ctx, js)
	if err != nil {
		m.Stop()
		return nil, err
	}
	m.consumer = consumer
	return m, nil
}

func newManager(js jetstream.JetStream) *Manager {
	ctx, cancel := context.WithCancel(context.Background())
	return &Manager{
		js:     js,
		store:  NewStore(),
		events: NewEventHub(),
		active: make(map[string]context.CancelFunc),
		ctx:    ctx,
		cancel: cancel,
	}
}

// setupStream creates or updates the work-queue stream and its durable
// consumer.
func setupStream(ctx context.Context, js jetstream.JetStream) (jetstream.Consumer, error) {
	_, err := js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:        StreamName,
		Description: "uicheck run queue",
		Subjects:    []string{SubjectName},
		Retention:   jetstream.WorkQueuePolicy,
		MaxAge:      24 * time.Hour,
		Storage:     jetstream.FileStorage,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create stream: %w", err)
	}

	consumer, err := js.CreateOrUpdateConsumer(ctx, StreamName, jetstream.ConsumerConfig{
		Name:          ConsumerName,
		Durable:       ConsumerName,
		AckPolicy:     jetstream.AckExplicitPolicy,
		DeliverPolicy: jetstream.DeliverAllPolicy,
		AckWait:       maxAckWait,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create consumer: %w", err)
	}
	return consumer, nil
}

// Stop stops the worker, aborts the run in progress and closes every
// event subscription.
func (m *Manager) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.cancel()
	m.store.Stop()
	m.events.Close()
	if m.working {
		m.working = false
		log.Println("Run queue worker stopped")
	}
}

// Submit stores a run and publishes it. When the run carries an
// idempotency key already in use, the earlier run is returned instead and
// duplicate is true.
func (m *Manager) Submit(run *Run) (stored *Run, duplicate bool, err error) {
	existing, dup, err := m.store.SaveUnique(run)
	if err != nil {
		return nil, false, fmt.Errorf("failed to save run: %w", err)
	}
	if dup {
		return existing, true, nil
	}
	if err := m.publish(run.ID); err != nil {
		m.store.Delete(run.ID)
		return nil, false, err
	}

	run.Message = "Run queued"
	m.events.Emit(run.ID, EventOf(run))
	return run, false, nil
}

func (m *Manager) publish(runID string) error {
	data, err := json.Marshal(message{RunID: runID})
	if err != nil {
		return fmt.Errorf("failed to encode run message: %w", err)
	}

	ctx, cancel := context.WithTimeout(m.ctx, 5*time.Second)
	defer cancel()

	if _, err := m.js.Publish(ctx, SubjectName, data); err != nil {
		return fmt.Errorf("failed to publish run: %w", err)
	}
	return nil
}

// Get returns a run by id
func (m *Manager) Get(runID string) (*Run, error) {
	return m.store.Get(runID)
}

// List returns all stored runs, oldest first
func (m *Manager) List() []*Run {
	return m.store.List()
}

// update stores a run and tells subscribers about it
func (m *Manager) update(run *Run) error {
	if err := m.store.Update(run); err != nil {
		return err
	}
	m.events.Emit(run.ID, EventOf(run))
	return nil
}

// Cancel stops a queued or running run. A run that is executing has its
// context canceled; its report is discarded.
func (m *Manager) Cancel(runID string) (*Run, error) {
	run, err := m.store.Get(runID)
	if err != nil {
		return nil, err
	}
	if !run.Status.Cancelable() {
		return nil, fmt.Errorf("%w: %s is %s", ErrRunFinished, runID, run.Status)
	}

	run.SetStatus(RunCanceled)
	run.Message = "Run canceled"
	if err := m.update(run); err != nil {
		return nil, err
	}

	m.mu.Lock()
	if stop, ok := m.active[runID]; ok {
		stop()
	}
	m.mu.Unlock()

	return run, nil
}

// Subscribe subscribes to run events
func (m *Manager) Subscribe(runID string) <-chan Event {
	return m.events.Subscribe(runID)
}

// Unsubscribe unsubscribes from run events
func (m *Manager) Unsubscribe(runID string, ch <-chan Event) {
	m.events.Unsubscribe(runID, ch)
}

type permanentError struct{ err error }

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// Permanent marks err as not worth retrying.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// IsPermanent reports whether err was marked with Permanent.
func IsPermanent(err error) bool {
	var p *permanentError
	return errors.As(err, &p)
}
