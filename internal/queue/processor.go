package queue

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ahrdadan/uicheck/internal/fixture"
	"github.com/ahrdadan/uicheck/internal/runner"
	"github.com/ahrdadan/uicheck/internal/suites"
)

// RunProcessor executes runs against the fixture registry
type RunProcessor struct {
	opener   runner.Opener
	registry *suites.Registry
	opts     runner.Options
}

// NewRunProcessor creates a run processor. opts is the base runner
// configuration; requests may narrow the test or change its timeout.
func NewRunProcessor(opener runner.Opener, registry *suites.Registry, opts runner.Options) *RunProcessor {
	return &RunProcessor{
		opener:   opener,
		registry: registry,
		opts:     opts,
	}
}

// progressReporter turns runner callbacks into run progress.
type progressReporter struct {
	emit  ProgressFunc
	state Progress
}

func (r *progressReporter) stage(stage, message string) {
	r.state.Stage = stage
	r.emit(r.state, message)
}

func (r *progressReporter) test(done, total int, res runner.Result) {
	r.state.Done, r.state.Total = done, total
	if total > 0 {
		r.state.Percent = done * 100 / total
	}
	r.emit(r.state, fmt.Sprintf("[Test %d/%d] %s / %s: %s", done, total, res.Fixture, res.Test, res.Status))
}

// Process runs the requested fixture, or all fixtures when none is named.
// Failed assertions end up in the report; errors are reserved for runs
// that could not complete. Bad targets are permanent errors.
func (p *RunProcessor) Process(ctx context.Context, run *Run, progress ProgressFunc) (*runner.Report, error) {
	if p.opener == nil {
		return nil, errors.New("browser not available")
	}

	req := run.Request
	fixtures, err := p.selectFixtures(req)
	if err != nil {
		return nil, Permanent(err)
	}

	opts := p.opts
	opts.TestFilter = req.Test
	if req.TestTimeout > 0 {
		opts.TestTimeout = time.Duration(req.TestTimeout) * time.Second
	}

	reporter := &progressReporter{emit: progress}
	reporter.stage("running", "Run started")
	report := runner.New(p.opener, opts).RunAll(ctx, fixtures, reporter.test)

	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("run interrupted: %w", err)
	}
	if report.Total() == 0 {
		return nil, Permanent(fmt.Errorf("%w: %q", fixture.ErrTestNotFound, req.Test))
	}
	if cause, down := browserDown(report); down {
		return nil, fmt.Errorf("browser unavailable: %s", cause)
	}
	return &report, nil
}

func (p *RunProcessor) selectFixtures(req RunRequest) ([]*fixture.Fixture, error) {
	if req.Fixture == "" {
		if req.Test != "" {
			return nil, errors.New("a test filter needs a fixture")
		}
		return p.registry.All(), nil
	}

	f, err := p.registry.Get(req.Fixture)
	if err != nil {
		return nil, err
	}
	if req.Test != "" {
		if _, err := f.Lookup(req.Test); err != nil {
			return nil, err
		}
	}
	return []*fixture.Fixture{f}, nil
}

// browserDown reports whether every executed test failed on the browser
// itself, which says nothing about the site under test.
func browserDown(report runner.Report) (string, bool) {
	cause := ""
	for _, res := range report.Results {
		if res.Status == runner.StatusSkipped || res.Status == runner.StatusInvalid {
			continue
		}
		if res.Kind != runner.KindBrowser {
			return "", false
		}
		if cause == "" {
			cause = res.Error
		}
	}
	return cause, cause != ""
}
