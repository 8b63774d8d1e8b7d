package main

import (
	"bytes"
	"testing"

	"github.com/fatih/color"
	"github.com/stretchr/testify/assert"

	"github.com/ahrdadan/uicheck/internal/runner"
)

func withoutColor(t *testing.T) {
	prev := color.NoColor
	color.NoColor = true
	t.Cleanup(func() { color.NoColor = prev })
}

func TestProgressPrinterWritesStatusLines(t *testing.T) {
	withoutColor(t)
	var buf bytes.Buffer
	p := newProgressPrinter(&buf)

	p.update(1, 2, runner.Result{Fixture: "DEV Tests", Test: "create account", Status: runner.StatusPassed})
	p.update(2, 2, runner.Result{Fixture: "Home Page Tests", Test: "search", Status: runner.StatusInvalid})

	assert.Nil(t, p.bar)
	assert.Equal(t,
		"[1/2] ✓ PASS DEV Tests / create account\n[2/2] ! INVALID Home Page Tests / search\n",
		buf.String())
}

func TestPrintFailures(t *testing.T) {
	withoutColor(t)
	report := runner.Report{Results: []runner.Result{
		{Fixture: "DEV Tests", Test: "ok", Status: runner.StatusPassed},
		{
			Fixture:  "Home Page Tests",
			Test:     "search",
			Status:   runner.StatusFailed,
			Kind:     runner.KindAssertionMismatch,
			Error:    "assertion failed",
			Expected: "1 result has been found.",
			Actual:   "0 results have been found.",
		},
	}}

	var buf bytes.Buffer
	printFailures(&buf, report)

	out := buf.String()
	assert.Contains(t, out, "✗ Home Page Tests / search [assertion_mismatch]")
	assert.Contains(t, out, `expected: "1 result has been found."`)
	assert.Contains(t, out, `actual:   "0 results have been found."`)
	assert.NotContains(t, out, "DEV Tests")
}

func TestPrintSummary(t *testing.T) {
	withoutColor(t)
	var buf bytes.Buffer
	printSummary(&buf, runner.Report{Passed: 2})
	assert.Contains(t, buf.String(), "✓ 2 passed, 0 failed")

	buf.Reset()
	printSummary(&buf, runner.Report{Failed: 1})
	assert.Contains(t, buf.String(), "✗ 0 passed, 1 failed")
}
