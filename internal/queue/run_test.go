package queue

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/ahrdadan/uicheck/internal/runner"
)

func TestNewRunDefaults(t *testing.T) {
	run := NewRun(RunRequest{Fixture: "Home Page Tests"})

	assert.Regexp(t, `^run_[0-9a-f]{8}$`, run.ID)
	assert.Equal(t, RunQueued, run.Status)
	assert.Equal(t, DefaultRunTimeout, run.Timeout)
	assert.Equal(t, DefaultMaxRetries, run.MaxRetries)
	assert.False(t, run.IsExpired())
	assert.WithinDuration(t, time.Now().Add(DefaultResultTTL), run.ExpiresAt, 2*time.Second)
}

func TestNewRunHonoursRequest(t *testing.T) {
	run := NewRun(RunRequest{
		Fixture:        "DEV Tests",
		Timeout:        30,
		ResultTTL:      60,
		IdempotencyKey: "k1",
		Retry:          &RetryPolicy{MaxRetries: 0},
	})

	assert.Equal(t, 30*time.Second, run.Timeout)
	assert.Equal(t, 0, run.MaxRetries)
	assert.False(t, run.CanRetry())
	assert.WithinDuration(t, time.Now().Add(time.Minute), run.ExpiresAt, 2*time.Second)
}

func TestLifecycleTimestamps(t *testing.T) {
	run := NewRun(RunRequest{})

	run.SetStatus(RunRunning)
	assert.False(t, run.StartedAt.IsZero())
	assert.True(t, run.CompletedAt.IsZero())

	run.Succeed(&runner.Report{Passed: 1})
	assert.Equal(t, RunSucceeded, run.Status)
	assert.Equal(t, 100, run.Progress.Percent)
	assert.False(t, run.CompletedAt.IsZero())

	failed := NewRun(RunRequest{})
	failed.Fail(errors.New("browser gone"))
	assert.Equal(t, RunFailed, failed.Status)
	assert.Equal(t, "browser gone", failed.LastError)
}

func TestStatusPredicates(t *testing.T) {
	for status, want := range map[RunStatus][2]bool{
		RunQueued:    {false, true},
		RunRunning:   {false, true},
		RunRetrying:  {false, true},
		RunSucceeded: {true, false},
		RunFailed:    {true, false},
		RunCanceled:  {true, false},
	} {
		assert.Equal(t, want[0], status.IsTerminal(), status)
		assert.Equal(t, want[1], status.Cancelable(), status)
	}
}

func TestRetryDelayBacksOff(t *testing.T) {
	p := &RetryPolicy{RetryDelay: 10, BackoffFactor: 3}
	assert.Equal(t, 10*time.Second, p.Delay(1))
	assert.Equal(t, 30*time.Second, p.Delay(2))
	assert.Equal(t, 90*time.Second, p.Delay(3))
	assert.Equal(t, 270*time.Second, p.Delay(4))
	assert.Equal(t, MaxRetryDelay, p.Delay(5))

	var none *RetryPolicy
	assert.Equal(t, DefaultRetryDelay, none.Delay(1))
	assert.Equal(t, 2*DefaultRetryDelay, none.Delay(2))
	assert.Equal(t, DefaultRetryDelay, none.Delay(0))
}

func TestRetryDelayIsBoundedAndMonotonic(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		p := &RetryPolicy{
			RetryDelay:    rapid.IntRange(0, 600).Draw(t, "delay"),
			BackoffFactor: rapid.Float64Range(0, 10).Draw(t, "factor"),
		}
		n := rapid.IntRange(1, 50).Draw(t, "n")

		d := p.Delay(n)
		if d < 0 || d > MaxRetryDelay {
			t.Fatalf("delay %s out of range", d)
		}
		if p.BackoffFactor == 0 || p.BackoffFactor >= 1 {
			if next := p.Delay(n + 1); next < d {
				t.Fatalf("delay shrank from %s to %s", d, next)
			}
		}
	})
}

func TestScheduleRetry(t *testing.T) {
	run := NewRun(RunRequest{Retry: &RetryPolicy{MaxRetries: 2, RetryDelay: 10}})

	run.ScheduleRetry(errors.New("browser unavailable"))
	assert.Equal(t, RunRetrying, run.Status)
	assert.Equal(t, 1, run.Retries)
	assert.True(t, run.CanRetry())
	assert.Equal(t, 10*time.Second, run.NextRetryAt.Sub(run.UpdatedAt))

	run.ScheduleRetry(errors.New("browser unavailable"))
	assert.Equal(t, 20*time.Second, run.NextRetryAt.Sub(run.UpdatedAt))
	assert.False(t, run.CanRetry())
}

func TestRunJSONShape(t *testing.T) {
	run := NewRun(RunRequest{Fixture: "DEV Tests", Test: "t"})
	data, err := json.Marshal(run)
	require.NoError(t, err)

	out := string(data)
	assert.Contains(t, out, `"run_id":"`+run.ID+`"`)
	assert.Contains(t, out, `"status":"queued"`)
	assert.NotContains(t, out, "started_at")
	assert.NotContains(t, out, "next_retry_at")
	assert.NotContains(t, out, `"report"`)
}

func TestCloneIsolatesRetryPolicy(t *testing.T) {
	run := NewRun(RunRequest{Retry: &RetryPolicy{MaxRetries: 1}})
	cp := run.clone()
	cp.Request.Retry.MaxRetries = 5
	assert.Equal(t, 1, run.Request.Retry.MaxRetries)
}
