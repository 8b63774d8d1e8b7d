package runner

import (
	"errors"
	"fmt"
	"time"

	"github.com/ahrdadan/uicheck/internal/fixture"
)

// Status is the outcome of one test.
type Status string

const (
	StatusPassed  Status = "passed"
	StatusFailed  Status = "failed"
	StatusSkipped Status = "skipped"
	StatusInvalid Status = "invalid"
)

// FailureKind says why a failed test failed.
type FailureKind string

const (
	KindElementNotFound   FailureKind = "element_not_found"
	KindTimeout           FailureKind = "timeout"
	KindAssertionMismatch FailureKind = "assertion_mismatch"
	KindBrowser           FailureKind = "browser"
)

var (
	// ErrTimeout is reported when a test exceeds its time budget.
	ErrTimeout = errors.New("test timed out")
	// ErrAssertion is matched by every *AssertionError.
	ErrAssertion = errors.New("assertion failed")
)

// AssertionError carries the observed and expected values of a failed
// assertion.
type AssertionError struct {
	Step   fixture.Step
	Actual string
}

func (e *AssertionError) Error() string {
	return fmt.Sprintf("%s: expected %q to %s %q", e.Step.Property, e.Actual, e.Step.Matcher, e.Step.Expected)
}

func (e *AssertionError) Is(target error) bool {
	return target == ErrAssertion
}

// Result is the outcome of a single test.
type Result struct {
	Fixture    string        `json:"fixture"`
	Test       string        `json:"test"`
	Status     Status        `json:"status"`
	Kind       FailureKind   `json:"kind,omitempty"`
	Error      string        `json:"error,omitempty"`
	Expected   string        `json:"expected,omitempty"`
	Actual     string        `json:"actual,omitempty"`
	Steps      []string      `json:"steps,omitempty"`
	StepsRun   int           `json:"steps_run"`
	Screenshot string        `json:"screenshot,omitempty"`
	PageURL    string        `json:"page_url,omitempty"` // where the browser was when the test failed
	Duration   time.Duration `json:"duration"`
}

// Report aggregates results across fixtures.
type Report struct {
	Results  []Result      `json:"results"`
	Passed   int           `json:"passed"`
	Failed   int           `json:"failed"`
	Skipped  int           `json:"skipped"`
	Invalid  int           `json:"invalid"`
	Duration time.Duration `json:"duration"`
}

func (r *Report) add(res Result) {
	r.Results = append(r.Results, res)
	switch res.Status {
	case StatusPassed:
		r.Passed++
	case StatusFailed:
		r.Failed++
	case StatusSkipped:
		r.Skipped++
	case StatusInvalid:
		r.Invalid++
	}
}

func (r *Report) merge(other Report) {
	for _, res := range other.Results {
		r.add(res)
	}
}

// HasFailures reports whether any test failed or could not run.
func (r *Report) HasFailures() bool {
	return r.Failed > 0 || r.Invalid > 0
}

// Total is the number of tests reported.
func (r *Report) Total() int {
	return len(r.Results)
}

// Summary renders the counts and total duration on one line.
func (r *Report) Summary() string {
	return fmt.Sprintf("%d passed, %d failed, %d skipped, %d invalid (%s)",
		r.Passed, r.Failed, r.Skipped, r.Invalid, r.Duration.Round(time.Millisecond))
}
