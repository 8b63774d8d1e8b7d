package runner

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"regexp"
	"time"

	"github.com/ahrdadan/uicheck/internal/browser"
	"github.com/ahrdadan/uicheck/internal/fixture"
)

const (
	DefaultTestTimeout = 60 * time.Second
	screenshotTimeout  = 10 * time.Second
)

// Opener opens a browser session at a fixture's page.
type Opener interface {
	OpenSession(ctx context.Context, url string, opts browser.PageOptions) (browser.Session, error)
}

// Options configures a Runner.
type Options struct {
	Page          browser.PageOptions
	TestTimeout   time.Duration
	ScreenshotDir string // empty disables screenshots on failure
	TestFilter    string // run only the test with this name
}

// DefaultOptions returns default runner options.
func DefaultOptions() Options {
	return Options{
		Page:        browser.DefaultPageOptions(),
		TestTimeout: DefaultTestTimeout,
	}
}

// ProgressFunc is called after each test finishes.
type ProgressFunc func(done, total int, res Result)

// Runner executes fixtures one test at a time, each in its own session.
type Runner struct {
	opener Opener
	opts   Options
}

// New creates a runner.
func New(opener Opener, opts Options) *Runner {
	if opts.TestTimeout <= 0 {
		opts.TestTimeout = DefaultTestTimeout
	}
	return &Runner{opener: opener, opts: opts}
}

// RunAll runs every fixture in order.
func (r *Runner) RunAll(ctx context.Context, fixtures []*fixture.Fixture, progress ProgressFunc) Report {
	total := 0
	for _, f := range fixtures {
		total += len(r.selectTests(f))
	}

	start := time.Now()
	var report Report
	for _, f := range fixtures {
		done := report.Total()
		sub := r.run(ctx, f, func(n, _ int, res Result) {
			if progress != nil {
				progress(done+n, total, res)
			}
		})
		report.merge(sub)
	}
	report.Duration = time.Since(start)
	return report
}

// RunFixture runs the tests of f in declaration order.
func (r *Runner) RunFixture(ctx context.Context, f *fixture.Fixture, progress ProgressFunc) Report {
	start := time.Now()
	report := r.run(ctx, f, progress)
	report.Duration = time.Since(start)
	return report
}

func (r *Runner) run(ctx context.Context, f *fixture.Fixture, progress ProgressFunc) Report {
	tests := r.selectTests(f)
	var report Report

	for i, t := range tests {
		res := r.RunTest(ctx, f, t)
		report.add(res)
		logResult(res)
		if progress != nil {
			progress(i+1, len(tests), res)
		}
	}
	return report
}

func (r *Runner) selectTests(f *fixture.Fixture) []fixture.Test {
	tests := f.Tests()
	if r.opts.TestFilter == "" {
		return tests
	}
	var out []fixture.Test
	for _, t := range tests {
		if t.Name == r.opts.TestFilter {
			out = append(out, t)
		}
	}
	return out
}

// RunTest plans and executes a single test.
func (r *Runner) RunTest(ctx context.Context, f *fixture.Fixture, t fixture.Test) (res Result) {
	start := time.Now()
	res = Result{Fixture: f.Name(), Test: t.Name}
	defer func() { res.Duration = time.Since(start) }()

	if t.Skip {
		res.Status = StatusSkipped
		return res
	}

	plan := f.Plan(t)
	for _, s := range plan.Steps {
		res.Steps = append(res.Steps, s.String())
	}
	if err := plan.Err(); err != nil {
		res.Status = StatusInvalid
		res.Error = err.Error()
		return res
	}
	if err := f.PageErr(); err != nil {
		res.Status = StatusInvalid
		res.Error = err.Error()
		return res
	}
	if f.Duplicated(t.Name) {
		res.Status = StatusInvalid
		res.Error = fmt.Sprintf("%v: %q in fixture %q", fixture.ErrDuplicateTest, t.Name, f.Name())
		return res
	}

	testCtx, cancel := context.WithTimeout(ctx, r.opts.TestTimeout)
	defer cancel()

	session, err := r.opener.OpenSession(testCtx, f.URL(), r.opts.Page)
	if err != nil {
		r.fail(&res, testCtx, nil, err)
		return res
	}
	defer func() {
		if err := session.Close(); err != nil {
			log.Printf("Warning: failed to close session for %q: %v", t.Name, err)
		}
	}()

	for _, step := range plan.Steps {
		if err := execute(testCtx, session, step); err != nil {
			var ae *AssertionError
			if errors.As(err, &ae) {
				res.Expected = ae.Step.Expected
				res.Actual = ae.Actual
			}
			r.fail(&res, testCtx, session, err)
			return res
		}
		res.StepsRun++
	}

	res.Status = StatusPassed
	return res
}

func execute(ctx context.Context, session browser.Session, step fixture.Step) error {
	switch step.Kind {
	case fixture.KindClick:
		return session.Click(ctx, step.Target)
	case fixture.KindTypeText:
		return session.TypeText(ctx, step.Target, step.Text)
	case fixture.KindAssert:
		actual, err := session.Read(ctx, step.Property)
		if err != nil {
			return err
		}
		if !step.Matches(actual) {
			return &AssertionError{Step: step, Actual: actual}
		}
		return nil
	}
	return fmt.Errorf("unknown step kind: %s", step.Kind)
}

func (r *Runner) fail(res *Result, testCtx context.Context, session browser.Session, err error) {
	res.Status = StatusFailed
	res.Kind = classify(testCtx, err)
	if res.Kind == KindTimeout && !errors.Is(err, ErrTimeout) {
		err = fmt.Errorf("%w: %v", ErrTimeout, err)
	}
	res.Error = err.Error()

	if session != nil {
		res.PageURL = session.URL()
	}
	if session != nil && r.opts.ScreenshotDir != "" {
		path, shotErr := r.saveScreenshot(testCtx, session, *res)
		if shotErr != nil {
			log.Printf("Warning: failed to save screenshot: %v", shotErr)
		} else {
			res.Screenshot = path
		}
	}
}

func classify(testCtx context.Context, err error) FailureKind {
	switch {
	case errors.Is(err, ErrAssertion):
		return KindAssertionMismatch
	case errors.Is(err, ErrTimeout),
		errors.Is(testCtx.Err(), context.DeadlineExceeded):
		return KindTimeout
	case errors.Is(err, browser.ErrElementNotFound):
		return KindElementNotFound
	}
	return KindBrowser
}

var unsafeFileChars = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

func (r *Runner) saveScreenshot(testCtx context.Context, session browser.Session, res Result) (string, error) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(testCtx), screenshotTimeout)
	defer cancel()

	data, err := session.Screenshot(ctx)
	if err != nil {
		return "", err
	}

	if err := os.MkdirAll(r.opts.ScreenshotDir, 0755); err != nil {
		return "", fmt.Errorf("failed to create screenshot dir: %w", err)
	}

	name := unsafeFileChars.ReplaceAllString(res.Fixture+"_"+res.Test, "_")
	path := filepath.Join(r.opts.ScreenshotDir, fmt.Sprintf("%s_%d.png", name, time.Now().Unix()))
	if err := os.WriteFile(path, data, 0644); err != nil {
		return "", fmt.Errorf("failed to write screenshot: %w", err)
	}
	return path, nil
}

func logResult(res Result) {
	switch res.Status {
	case StatusFailed:
		log.Printf("FAIL %s / %s [%s]: %s", res.Fixture, res.Test, res.Kind, res.Error)
	case StatusInvalid:
		log.Printf("INVALID %s / %s: %s", res.Fixture, res.Test, res.Error)
	case StatusSkipped:
		log.Printf("SKIP %s / %s", res.Fixture, res.Test)
	default:
		log.Printf("PASS %s / %s (%s)", res.Fixture, res.Test, res.Duration.Round(time.Millisecond))
	}
}
