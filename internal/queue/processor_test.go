package queue

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/ahrdadan/uicheck/internal/browser"
	"github.com/ahrdadan/uicheck/internal/fixture"
	"github.com/ahrdadan/uicheck/internal/locator"
	"github.com/ahrdadan/uicheck/internal/pages"
	"github.com/ahrdadan/uicheck/internal/runner"
	"github.com/ahrdadan/uicheck/internal/suites"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stubSession finds every element; typed text becomes the element's value.
type stubSession struct {
	mu     sync.Mutex
	text   map[string]string
	values map[string]string
}

func (s *stubSession) Click(context.Context, locator.Locator) error { return nil }

func (s *stubSession) TypeText(_ context.Context, l locator.Locator, text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.values[l.String()] += text
	return nil
}

func (s *stubSession) Read(_ context.Context, p locator.Property) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p.Name == locator.PropValue {
		return s.values[p.Locator.String()], nil
	}
	return s.text[p.Locator.String()], nil
}

func (s *stubSession) Screenshot(context.Context) ([]byte, error) { return nil, nil }
func (s *stubSession) URL() string                                { return "" }
func (s *stubSession) Close() error                               { return nil }

type stubOpener struct {
	counter string
	err     error
}

func (o *stubOpener) OpenSession(context.Context, string, browser.PageOptions) (browser.Session, error) {
	if o.err != nil {
		return nil, o.err
	}
	return &stubSession{
		text:   map[string]string{pages.NewHomePage().TextResultsFound.String(): o.counter},
		values: map[string]string{},
	}, nil
}

func newTestProcessor(opener runner.Opener) *RunProcessor {
	opts := runner.DefaultOptions()
	opts.TestTimeout = time.Second
	return NewRunProcessor(opener, suites.NewRegistry(suites.DefaultOptions()), opts)
}

type progressLog struct {
	pcts []int
	msgs []string
	last Progress
}

func (l *progressLog) record(p Progress, m string) {
	l.pcts = append(l.pcts, p.Percent)
	l.msgs = append(l.msgs, m)
	l.last = p
}

func ignoreProgress(Progress, string) {}

func TestProcessRunsAllFixtures(t *testing.T) {
	p := newTestProcessor(&stubOpener{counter: "1 result has been found."})
	var log progressLog

	report, err := p.Process(context.Background(), NewRun(RunRequest{}), log.record)
	require.NoError(t, err)

	assert.Equal(t, 2, report.Passed)
	assert.Equal(t, []int{0, 50, 100}, log.pcts)
	assert.Equal(t, "Run started", log.msgs[0])
	assert.Contains(t, log.msgs[2], "[Test 2/2] Home Page Tests")
	assert.Equal(t, Progress{Percent: 100, Stage: "running", Done: 2, Total: 2}, log.last)
}

func TestProcessAssertionFailureIsAResult(t *testing.T) {
	p := newTestProcessor(&stubOpener{counter: "0 results have been found."})

	report, err := p.Process(context.Background(), NewRun(RunRequest{Fixture: suites.DemoFixture}), ignoreProgress)
	require.NoError(t, err)

	require.Len(t, report.Results, 1)
	assert.Equal(t, runner.KindAssertionMismatch, report.Results[0].Kind)
	assert.True(t, report.HasFailures())
}

func TestProcessRejectsUnknownTargets(t *testing.T) {
	p := newTestProcessor(&stubOpener{})

	_, err := p.Process(context.Background(), NewRun(RunRequest{Fixture: "nope"}), ignoreProgress)
	assert.True(t, IsPermanent(err))
	assert.ErrorIs(t, err, suites.ErrFixtureNotFound)

	_, err = p.Process(context.Background(), NewRun(RunRequest{Fixture: suites.DemoFixture, Test: "nope"}), ignoreProgress)
	assert.True(t, IsPermanent(err))
	assert.ErrorIs(t, err, fixture.ErrTestNotFound)

	_, err = p.Process(context.Background(), NewRun(RunRequest{Test: "orphan"}), ignoreProgress)
	assert.True(t, IsPermanent(err))
}

func TestProcessBrowserDownIsRetryable(t *testing.T) {
	p := newTestProcessor(&stubOpener{err: errors.New("connection refused")})

	_, err := p.Process(context.Background(), NewRun(RunRequest{Fixture: suites.StorefrontFixture}), ignoreProgress)
	require.Error(t, err)
	assert.False(t, IsPermanent(err))
	assert.Contains(t, err.Error(), "connection refused")

	_, err = NewRunProcessor(nil, suites.NewRegistry(suites.DefaultOptions()), runner.DefaultOptions()).
		Process(context.Background(), NewRun(RunRequest{}), ignoreProgress)
	assert.EqualError(t, err, "browser not available")
}

func TestProcessInterrupted(t *testing.T) {
	p := newTestProcessor(&stubOpener{counter: "1 result has been found."})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := p.Process(ctx, NewRun(RunRequest{}), ignoreProgress)
	assert.ErrorIs(t, err, context.Canceled)
}
