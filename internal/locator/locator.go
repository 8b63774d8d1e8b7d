package locator

import (
	"errors"
	"fmt"
	"strings"
)

// ErrEmptySelector is returned when a locator has no selector to resolve.
var ErrEmptySelector = errors.New("empty selector")

// Step is one link of a locator chain.
type Step struct {
	CSS  string
	Text string // visible-text filter, substring match; empty means none
}

// Locator identifies zero or more DOM elements at the moment it is used.
// It is a value: every builder method returns a copy and never mutates the
// receiver, and nothing is cached between resolutions.
type Locator struct {
	steps []Step
}

// New starts a locator chain from a CSS/ID selector.
func New(css string) Locator {
	return Locator{steps: []Step{{CSS: css}}}
}

// Find narrows the locator to descendants matching css.
func (l Locator) Find(css string) Locator {
	return l.with(Step{CSS: css})
}

// WithText keeps only elements of the last step whose text contains text.
func (l Locator) WithText(text string) Locator {
	if len(l.steps) == 0 {
		return l
	}
	steps := l.clone()
	steps[len(steps)-1].Text = text
	return Locator{steps: steps}
}

// Steps returns a copy of the chain.
func (l Locator) Steps() []Step {
	return l.clone()
}

// IsZero reports whether the locator was never declared.
func (l Locator) IsZero() bool {
	return len(l.steps) == 0
}

// Validate rejects undeclared locators and blank selector steps.
func (l Locator) Validate() error {
	if l.IsZero() {
		return ErrEmptySelector
	}
	for i, s := range l.steps {
		if strings.TrimSpace(s.CSS) == "" {
			return fmt.Errorf("step %d: %w", i, ErrEmptySelector)
		}
	}
	return nil
}

func (l Locator) String() string {
	if l.IsZero() {
		return "<none>"
	}
	var b strings.Builder
	for i, s := range l.steps {
		if i == 0 {
			b.WriteString(s.CSS)
		} else {
			fmt.Fprintf(&b, ".find(%q)", s.CSS)
		}
		if s.Text != "" {
			fmt.Fprintf(&b, ".withText(%q)", s.Text)
		}
	}
	return b.String()
}

// InnerText is the rendered text of the first matching element.
func (l Locator) InnerText() Property {
	return Property{Locator: l, Name: PropInnerText}
}

// Value is the current value of the first matching form control.
func (l Locator) Value() Property {
	return Property{Locator: l, Name: PropValue}
}

func (l Locator) with(s Step) Locator {
	steps := make([]Step, len(l.steps), len(l.steps)+1)
	copy(steps, l.steps)
	return Locator{steps: append(steps, s)}
}

func (l Locator) clone() []Step {
	if l.steps == nil {
		return nil
	}
	steps := make([]Step, len(l.steps))
	copy(steps, l.steps)
	return steps
}

// PropertyName names a readable element property.
type PropertyName string

const (
	PropInnerText PropertyName = "innerText"
	PropValue     PropertyName = "value"
)

// Property is a locator paired with the element property an assertion reads.
type Property struct {
	Locator Locator
	Name    PropertyName
}

func (p Property) String() string {
	return fmt.Sprintf("%s.%s", p.Locator, p.Name)
}
