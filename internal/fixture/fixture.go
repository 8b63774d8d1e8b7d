package fixture

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
)

var (
	// ErrMalformedTest marks a test body that records incomplete or
	// out-of-order steps.
	ErrMalformedTest = errors.New("malformed test")
	// ErrMissingPage marks a fixture without a usable starting URL.
	ErrMissingPage = errors.New("fixture has no valid page url")
	// ErrDuplicateTest marks two tests with the same name in a fixture.
	ErrDuplicateTest = errors.New("duplicate test name")
	// ErrTestNotFound is returned by Lookup for unknown test names.
	ErrTestNotFound = errors.New("test not found")
)

// Body declares the steps of a test against a Controller.
type Body func(t *Controller)

// Test is a named body inside a fixture.
type Test struct {
	Name string
	Skip bool
	body Body
}

// Fixture groups tests that start on the same page.
type Fixture struct {
	name  string
	page  string
	tests []Test
}

// New creates a fixture with a human readable name.
func New(name string) *Fixture {
	return &Fixture{name: name}
}

// Page binds the URL every test in the fixture starts from.
func (f *Fixture) Page(pageURL string) *Fixture {
	f.page = pageURL
	return f
}

// Test declares a test case.
func (f *Fixture) Test(name string, body Body) *Fixture {
	f.tests = append(f.tests, Test{Name: name, body: body})
	return f
}

// Skip declares a test case that is reported but never executed.
func (f *Fixture) Skip(name string, body Body) *Fixture {
	f.tests = append(f.tests, Test{Name: name, Skip: true, body: body})
	return f
}

// Name is the fixture's display name.
func (f *Fixture) Name() string { return f.name }

// URL is the page every test starts from, as declared.
func (f *Fixture) URL() string { return f.page }

// PageErr reports why the fixture's page URL cannot be opened, or nil.
func (f *Fixture) PageErr() error {
	if err := validatePage(f.page); err != nil {
		return fmt.Errorf("fixture %q: %w", f.name, err)
	}
	return nil
}

// Duplicated reports whether more than one test carries name.
func (f *Fixture) Duplicated(name string) bool {
	n := 0
	for _, t := range f.tests {
		if t.Name == name {
			n++
		}
	}
	return n > 1
}

// Tests returns the declared tests in order.
func (f *Fixture) Tests() []Test {
	out := make([]Test, len(f.tests))
	copy(out, f.tests)
	return out
}

// Lookup returns the test with the given name.
func (f *Fixture) Lookup(name string) (Test, error) {
	for _, t := range f.tests {
		if t.Name == name {
			return t, nil
		}
	}
	return Test{}, fmt.Errorf("%w: %q in fixture %q", ErrTestNotFound, name, f.name)
}

// Plan runs the body of t against a fresh Controller and returns the
// recorded steps. Every call re-runs the body, so values generated inside
// it differ between plans.
func (f *Fixture) Plan(t Test) Plan {
	c := newController()
	if t.body == nil {
		c.defect("test body is nil")
	} else {
		c.record(t.body)
	}
	c.finish()
	return Plan{Fixture: f.name, Test: t.Name, Steps: c.steps, Defects: c.defects}
}

// Validate checks the fixture and plans every test once, returning all
// defects joined together or nil.
func (f *Fixture) Validate() error {
	var errs []error

	if err := f.PageErr(); err != nil {
		errs = append(errs, err)
	}

	seen := make(map[string]bool, len(f.tests))
	for _, t := range f.tests {
		if strings.TrimSpace(t.Name) == "" {
			errs = append(errs, fmt.Errorf("fixture %q: %w: test without a name", f.name, ErrMalformedTest))
		}
		if seen[t.Name] {
			errs = append(errs, fmt.Errorf("fixture %q: %w: %q", f.name, ErrDuplicateTest, t.Name))
		}
		seen[t.Name] = true

		if err := f.Plan(t).Err(); err != nil {
			errs = append(errs, err)
		}
	}

	return errors.Join(errs...)
}

func validatePage(pageURL string) error {
	if pageURL == "" {
		return ErrMissingPage
	}
	u, err := url.Parse(pageURL)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrMissingPage, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" || u.Host == "" {
		return fmt.Errorf("%w: %q", ErrMissingPage, pageURL)
	}
	return nil
}

// Plan is the ordered list of steps one execution of a test performs.
type Plan struct {
	Fixture string
	Test    string
	Steps   []Step
	Defects []string
}

// Err reports the plan's defects as a single ErrMalformedTest, or nil.
func (p Plan) Err() error {
	if len(p.Defects) == 0 {
		return nil
	}
	return fmt.Errorf("%q / %q: %w: %s", p.Fixture, p.Test, ErrMalformedTest, strings.Join(p.Defects, "; "))
}

// Assertion returns the terminal assertion step.
func (p Plan) Assertion() (Step, bool) {
	if len(p.Steps) == 0 {
		return Step{}, false
	}
	last := p.Steps[len(p.Steps)-1]
	return last, last.Kind == KindAssert
}
