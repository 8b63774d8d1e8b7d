package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/nats-io/nats.go/jetstream"

	"github.com/ahrdadan/uicheck/internal/runner"
)

// maxAckWait outlasts the longest run the API accepts.
const maxAckWait = 35 * time.Minute

// ProgressFunc receives progress while a run executes.
type ProgressFunc func(p Progress, message string)

// Processor executes one attempt of a run. A returned error means the run
// could not complete; failed tests belong in the report.
type Processor interface {
	Process(ctx context.Context, run *Run, progress ProgressFunc) (*runner.Report, error)
}

// Start launches the worker loop. Runs are processed one at a time since
// they share a single browser.
func (m *Manager) Start(processor Processor) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.working {
		return nil
	}
	if m.consumer == nil {
		return errors.New("queue has no consumer")
	}
	m.working = true

	log.Println("Starting run queue worker...")
	go m.work(processor)
	return nil
}

func (m *Manager) work(processor Processor) {
	for m.ctx.Err() == nil {
		batch, err := m.consumer.Fetch(1, jetstream.FetchMaxWait(5*time.Second))
		if err != nil {
			if m.ctx.Err() == nil {
				log.Printf("Warning: fetching runs: %v", err)
				time.Sleep(time.Second)
			}
			continue
		}
		for msg := range batch.Messages() {
			m.handle(msg, processor)
		}
	}
}

// handle settles one JetStream message. Messages for unknown, expired or
// finished runs are acknowledged and dropped.
func (m *Manager) handle(msg jetstream.Msg, processor Processor) {
	var body message
	if err := json.Unmarshal(msg.Data(), &body); err != nil || body.RunID == "" {
		log.Printf("Warning: discarding malformed run message: %q", msg.Data())
		_ = msg.Term()
		return
	}

	run, err := m.store.Get(body.RunID)
	if err != nil {
		log.Printf("Warning: dropping message for %s: %v", body.RunID, err)
		_ = msg.Ack()
		return
	}
	if run.Status.IsTerminal() {
		_ = msg.Ack()
		return
	}
	if wait := time.Until(run.NextRetryAt); run.Status == RunRetrying && wait > 0 {
		_ = msg.NakWithDelay(wait)
		return
	}

	retry := m.execute(run, processor)

	if m.ctx.Err() != nil {
		// Shutting down: leave the message for the next worker.
		_ = msg.Nak()
		return
	}
	if retry {
		if err := m.publish(run.ID); err != nil {
			log.Printf("Failed to re-enqueue run %s for retry: %v", run.ID, err)
		}
	}
	_ = msg.Ack()
}

// execute runs one attempt and records its outcome. It reports whether the
// run should be published again for a retry.
func (m *Manager) execute(run *Run, processor Processor) bool {
	ctx, cancel := context.WithTimeout(m.ctx, run.Timeout)
	defer cancel()

	m.mu.Lock()
	m.active[run.ID] = cancel
	m.mu.Unlock()
	defer func() {
		m.mu.Lock()
		delete(m.active, run.ID)
		m.mu.Unlock()
	}()

	run.SetStatus(RunRunning)
	run.SetProgress(Progress{Stage: "starting"}, "Run started")
	if err := m.update(run); err != nil {
		// Canceled between fetch and start.
		return false
	}

	report, err := processor.Process(ctx, run, func(p Progress, message string) {
		run.SetProgress(p, message)
		if err := m.update(run); err != nil && !errors.Is(err, ErrRunFinished) {
			log.Printf("Warning: progress update for %s: %v", run.ID, err)
		}
	})

	if m.ctx.Err() != nil {
		return false
	}

	switch {
	case err == nil:
		run.Succeed(report)
		run.Message = "Run finished"
		if report != nil {
			run.Message = report.Summary()
		}
		_ = m.update(run)
		return false

	case !IsPermanent(err) && run.CanRetry():
		run.ScheduleRetry(err)
		run.Message = fmt.Sprintf("Retrying (%d/%d): %v", run.Retries, run.MaxRetries, err)
		if m.update(run) != nil {
			return false
		}
		log.Printf("Run %s failed, retrying (%d/%d): %v", run.ID, run.Retries, run.MaxRetries, err)
		return true

	default:
		run.Fail(err)
		run.Message = "Run failed"
		if m.update(run) == nil {
			log.Printf("Run %s failed: %v", run.ID, err)
		}
		return false
	}
}
