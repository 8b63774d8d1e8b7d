package queue

import (
	"math"
	"time"

	"github.com/google/uuid"

	"github.com/ahrdadan/uicheck/internal/runner"
)

// Defaults applied by NewRun
const (
	DefaultRunTimeout = 5 * time.Minute
	DefaultMaxRetries = 2
	DefaultResultTTL  = 7 * 24 * time.Hour
	DefaultRetryDelay = 5 * time.Second
	DefaultBackoff    = 2.0
	MaxRetryDelay     = 5 * time.Minute
)

// RunStatus is where a run is in its lifecycle
type RunStatus string

const (
	RunQueued    RunStatus = "queued"
	RunRunning   RunStatus = "running"
	RunRetrying  RunStatus = "retrying"
	RunSucceeded RunStatus = "succeeded"
	RunFailed    RunStatus = "failed"
	RunCanceled  RunStatus = "canceled"
)

// IsTerminal reports whether no further events follow this status.
func (s RunStatus) IsTerminal() bool {
	return s == RunSucceeded || s == RunFailed || s == RunCanceled
}

// Cancelable reports whether a run in this status can still be canceled.
func (s RunStatus) Cancelable() bool {
	return s == RunQueued || s == RunRunning || s == RunRetrying
}

// RetryPolicy bounds how an infrastructure failure is retried. A failed
// assertion is a result and is never retried.
type RetryPolicy struct {
	MaxRetries    int     `json:"max_retries"`
	RetryDelay    int     `json:"retry_delay,omitempty"`    // seconds
	BackoffFactor float64 `json:"backoff_factor,omitempty"` // default 2.0
}

// Delay returns the wait before retry n (1-based):
// RetryDelay * BackoffFactor^(n-1), capped at MaxRetryDelay.
func (p *RetryPolicy) Delay(n int) time.Duration {
	base, factor := DefaultRetryDelay, DefaultBackoff
	if p != nil {
		if p.RetryDelay > 0 {
			base = time.Duration(p.RetryDelay) * time.Second
		}
		if p.BackoffFactor > 0 {
			factor = p.BackoffFactor
		}
	}

	d := float64(base) * math.Pow(factor, float64(max(n, 1)-1))
	if d > float64(MaxRetryDelay) {
		return MaxRetryDelay
	}
	return time.Duration(d)
}

// RunRequest asks for one fixture, or one test of it, to be run. An empty
// Fixture runs every registered fixture.
type RunRequest struct {
	Fixture        string       `json:"fixture,omitempty"`
	Test           string       `json:"test,omitempty"`
	Timeout        int          `json:"timeout,omitempty"`      // whole run, seconds
	TestTimeout    int          `json:"test_timeout,omitempty"` // per test, seconds
	Retry          *RetryPolicy `json:"retry,omitempty"`
	IdempotencyKey string       `json:"idempotency_key,omitempty"`
	ResultTTL      int          `json:"result_ttl,omitempty"` // seconds
}

// Progress tracks how many of the selected tests have finished.
type Progress struct {
	Percent int    `json:"percent"`
	Stage   string `json:"stage,omitempty"`
	Done    int    `json:"done,omitempty"`
	Total   int    `json:"total,omitempty"`
}

// Run is one queued execution of fixtures and its outcome.
type Run struct {
	ID          string         `json:"run_id"`
	Status      RunStatus      `json:"status"`
	Request     RunRequest     `json:"request"`
	Progress    Progress       `json:"progress"`
	Message     string         `json:"message,omitempty"`
	Report      *runner.Report `json:"report,omitempty"`
	Error       string         `json:"error,omitempty"`
	Retries     int            `json:"retries"`
	MaxRetries  int            `json:"max_retries"`
	LastError   string         `json:"last_error,omitempty"`
	Timeout     time.Duration  `json:"-"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
	StartedAt   time.Time      `json:"started_at,omitzero"`
	CompletedAt time.Time      `json:"completed_at,omitzero"`
	NextRetryAt time.Time      `json:"next_retry_at,omitzero"`
	ExpiresAt   time.Time      `json:"expires_at"`
}

// NewRun creates a queued run with the request's defaults resolved.
func NewRun(req RunRequest) *Run {
	now := time.Now()

	timeout := DefaultRunTimeout
	if req.Timeout > 0 {
		timeout = time.Duration(req.Timeout) * time.Second
	}

	maxRetries := DefaultMaxRetries
	if req.Retry != nil && req.Retry.MaxRetries >= 0 {
		maxRetries = req.Retry.MaxRetries
	}

	ttl := DefaultResultTTL
	if req.ResultTTL > 0 {
		ttl = time.Duration(req.ResultTTL) * time.Second
	}

	return &Run{
		ID:         newRunID(),
		Status:     RunQueued,
		Request:    req,
		MaxRetries: maxRetries,
		Timeout:    timeout,
		CreatedAt:  now,
		UpdatedAt:  now,
		ExpiresAt:  now.Add(ttl),
	}
}

func newRunID() string {
	return "run_" + uuid.New().String()[:8]
}

// SetStatus moves the run to status and stamps the lifecycle times.
func (r *Run) SetStatus(status RunStatus) {
	now := time.Now()
	r.Status = status
	r.UpdatedAt = now

	switch {
	case status == RunRunning && r.StartedAt.IsZero():
		r.StartedAt = now
	case status.IsTerminal():
		r.CompletedAt = now
		r.NextRetryAt = time.Time{}
	}
}

// SetProgress records progress and the message describing it.
func (r *Run) SetProgress(p Progress, message string) {
	r.Progress = p
	r.Message = message
	r.UpdatedAt = time.Now()
}

// Succeed stores the report of a run that executed its tests, whatever
// their outcome.
func (r *Run) Succeed(report *runner.Report) {
	r.Report = report
	r.Progress.Percent = 100
	r.Progress.Stage = "done"
	r.SetStatus(RunSucceeded)
}

// Fail records a run that could not complete.
func (r *Run) Fail(cause error) {
	r.Error = cause.Error()
	r.LastError = r.Error
	r.SetStatus(RunFailed)
}

// CanRetry reports whether another attempt is allowed.
func (r *Run) CanRetry() bool {
	return r.Retries < r.MaxRetries
}

// ScheduleRetry counts the failed attempt and sets when the next one may
// start.
func (r *Run) ScheduleRetry(cause error) {
	r.Retries++
	r.LastError = cause.Error()
	r.SetStatus(RunRetrying)
	r.NextRetryAt = r.UpdatedAt.Add(r.Request.Retry.Delay(r.Retries))
}

// IsExpired reports whether the run's result TTL has passed.
func (r *Run) IsExpired() bool {
	return !r.ExpiresAt.IsZero() && time.Now().After(r.ExpiresAt)
}

// clone copies the run so the store and the worker never share mutable
// state. The report is immutable once set and stays shared.
func (r *Run) clone() *Run {
	cp := *r
	if r.Request.Retry != nil {
		retry := *r.Request.Retry
		cp.Request.Retry = &retry
	}
	return &cp
}
