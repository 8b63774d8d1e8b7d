package fixture

import (
	"fmt"
	"strings"

	"github.com/ahrdadan/uicheck/internal/locator"
)

// StepKind is the action a step performs.
type StepKind string

const (
	KindClick    StepKind = "click"
	KindTypeText StepKind = "typeText"
	KindAssert   StepKind = "expect"
)

// Matcher compares an observed property to the expected literal.
type Matcher string

const (
	MatchEql      Matcher = "eql"
	MatchContains Matcher = "contains"
)

// Step is one recorded action.
type Step struct {
	Kind     StepKind
	Target   locator.Locator // click, typeText
	Text     string          // typeText
	Property locator.Property
	Matcher  Matcher
	Expected string
}

func (s Step) String() string {
	switch s.Kind {
	case KindClick:
		return fmt.Sprintf("click(%s)", s.Target)
	case KindTypeText:
		return fmt.Sprintf("typeText(%s, %q)", s.Target, s.Text)
	case KindAssert:
		return fmt.Sprintf("expect(%s).%s(%q)", s.Property, s.Matcher, s.Expected)
	}
	return string(s.Kind)
}

// Matches reports whether actual satisfies the assertion.
func (s Step) Matches(actual string) bool {
	switch s.Matcher {
	case MatchEql:
		return actual == s.Expected
	case MatchContains:
		return strings.Contains(actual, s.Expected)
	}
	return false
}

// Controller records the steps a test body declares. Calls chain, so a body
// reads like the action sequence it performs.
type Controller struct {
	steps   []Step
	defects []string
	pending int
}

func newController() *Controller {
	return &Controller{}
}

// Click records a click on the first element target resolves to.
func (c *Controller) Click(target locator.Locator) *Controller {
	if err := target.Validate(); err != nil {
		c.defect("click #%d: %v", len(c.steps)+1, err)
	}
	c.steps = append(c.steps, Step{Kind: KindClick, Target: target})
	return c
}

// TypeText records typing text into the element target resolves to.
func (c *Controller) TypeText(target locator.Locator, text string) *Controller {
	if err := target.Validate(); err != nil {
		c.defect("typeText #%d: %v", len(c.steps)+1, err)
	}
	if text == "" {
		c.defect("typeText #%d: no text to type", len(c.steps)+1)
	}
	c.steps = append(c.steps, Step{Kind: KindTypeText, Target: target, Text: text})
	return c
}

// Expect starts an assertion on prop. It is only recorded once a matcher
// such as Eql is applied.
func (c *Controller) Expect(prop locator.Property) *Expectation {
	c.pending++
	return &Expectation{c: c, prop: prop}
}

// Expectation is an assertion waiting for its matcher.
type Expectation struct {
	c    *Controller
	prop locator.Property
	done bool
}

// Eql asserts the property equals expected exactly.
func (e *Expectation) Eql(expected string) *Controller {
	return e.finish(MatchEql, expected)
}

// Contains asserts the property contains expected.
func (e *Expectation) Contains(expected string) *Controller {
	return e.finish(MatchContains, expected)
}

func (e *Expectation) finish(m Matcher, expected string) *Controller {
	c := e.c
	if e.done {
		c.defect("expect(%s): matcher applied twice", e.prop)
		return c
	}
	e.done = true
	c.pending--

	if err := e.prop.Locator.Validate(); err != nil {
		c.defect("expect #%d: %v", len(c.steps)+1, err)
	}
	c.steps = append(c.steps, Step{Kind: KindAssert, Property: e.prop, Matcher: m, Expected: expected})
	return c
}

func (c *Controller) defect(format string, args ...any) {
	c.defects = append(c.defects, fmt.Sprintf(format, args...))
}

func (c *Controller) record(body Body) {
	defer func() {
		if r := recover(); r != nil {
			c.defect("body panicked: %v", r)
		}
	}()
	body(c)
}

// finish checks the shape of the whole chain: exactly one assertion, and it
// comes last.
func (c *Controller) finish() {
	if c.pending > 0 {
		c.defect("expect without a matcher")
	}

	asserts := 0
	for i, s := range c.steps {
		if s.Kind != KindAssert {
			continue
		}
		asserts++
		if i != len(c.steps)-1 {
			c.defect("step %d follows the assertion", i+2)
		}
	}

	switch {
	case asserts == 0:
		c.defect("no assertion")
	case asserts > 1:
		c.defect("%d assertions, want exactly one", asserts)
	}
}
