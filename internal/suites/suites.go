package suites

import (
	"errors"
	"fmt"
	"sort"

	"github.com/ahrdadan/uicheck/internal/fixture"
)

const (
	// DefaultStorefrontURL is where the storefront fixture starts.
	DefaultStorefrontURL = "https://www.alexandra.co.uk/"
	// DefaultDemoURL is where the demo site fixture starts.
	DefaultDemoURL = "http://automationpractice.com/index.php"
)

// Options points fixtures at the sites to exercise.
type Options struct {
	StorefrontURL string
	DemoURL       string
}

// DefaultOptions targets the live sites.
func DefaultOptions() Options {
	return Options{
		StorefrontURL: DefaultStorefrontURL,
		DemoURL:       DefaultDemoURL,
	}
}

// ErrFixtureNotFound is returned by Get for unknown fixture names.
var ErrFixtureNotFound = errors.New("fixture not found")

// Registry holds fixtures by name in declaration order.
type Registry struct {
	order    []string
	fixtures map[string]*fixture.Fixture
}

// NewRegistry builds the registry of every known fixture.
func NewRegistry(opts Options) *Registry {
	if opts.StorefrontURL == "" {
		opts.StorefrontURL = DefaultStorefrontURL
	}
	if opts.DemoURL == "" {
		opts.DemoURL = DefaultDemoURL
	}

	r := &Registry{fixtures: make(map[string]*fixture.Fixture)}
	r.Add(Storefront(opts.StorefrontURL))
	r.Add(Demo(opts.DemoURL))
	return r
}

// Add registers f, replacing any fixture with the same name.
func (r *Registry) Add(f *fixture.Fixture) {
	if _, ok := r.fixtures[f.Name()]; !ok {
		r.order = append(r.order, f.Name())
	}
	r.fixtures[f.Name()] = f
}

// Get returns the fixture named name.
func (r *Registry) Get(name string) (*fixture.Fixture, error) {
	f, ok := r.fixtures[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrFixtureNotFound, name)
	}
	return f, nil
}

// All returns fixtures in the order they were added.
func (r *Registry) All() []*fixture.Fixture {
	out := make([]*fixture.Fixture, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.fixtures[name])
	}
	return out
}

// Names returns fixture names sorted alphabetically.
func (r *Registry) Names() []string {
	names := make([]string, len(r.order))
	copy(names, r.order)
	sort.Strings(names)
	return names
}
