package main

import (
	"fmt"
	"io"
	"os"

	"github.com/fatih/color"
	"github.com/schollz/progressbar/v3"

	"github.com/ahrdadan/uicheck/internal/runner"
)

// progressPrinter writes one status line per finished test and, on a
// terminal, keeps a progress bar on stderr.
type progressPrinter struct {
	out     io.Writer
	showBar bool
	bar     *progressbar.ProgressBar
}

func newProgressPrinter(out io.Writer) *progressPrinter {
	return &progressPrinter{out: out, showBar: !color.NoColor}
}

func (p *progressPrinter) update(done, total int, res runner.Result) {
	if p.showBar && p.bar == nil {
		p.bar = progressbar.NewOptions(total,
			progressbar.OptionSetDescription(color.CyanString("Running:")),
			progressbar.OptionSetWidth(40),
			progressbar.OptionSetTheme(progressbar.Theme{
				Saucer:        color.CyanString("█"),
				SaucerHead:    color.CyanString("█"),
				SaucerPadding: "░",
				BarStart:      "│",
				BarEnd:        "│",
			}),
			progressbar.OptionEnableColorCodes(true),
			progressbar.OptionSetWriter(os.Stderr),
			progressbar.OptionOnCompletion(func() {
				fmt.Fprint(os.Stderr, "\n")
			}),
		)
	}
	if p.bar != nil {
		_ = p.bar.Clear()
	}
	fmt.Fprintf(p.out, "[%d/%d] %s %s / %s\n", done, total, statusLabel(res.Status), res.Fixture, res.Test)
	if p.bar != nil {
		_ = p.bar.Set(done)
	}
}

func statusLabel(s runner.Status) string {
	switch s {
	case runner.StatusPassed:
		return color.GreenString("✓ PASS")
	case runner.StatusFailed:
		return color.RedString("✗ FAIL")
	case runner.StatusSkipped:
		return color.YellowString("- SKIP")
	case runner.StatusInvalid:
		return color.MagentaString("! INVALID")
	}
	return string(s)
}

func printFailures(w io.Writer, report runner.Report) {
	for _, res := range report.Results {
		switch res.Status {
		case runner.StatusFailed:
			fmt.Fprintf(w, "\n%s\n", color.RedString("✗ %s / %s [%s]", res.Fixture, res.Test, res.Kind))
			fmt.Fprintf(w, "  %s\n", res.Error)
			if res.Kind == runner.KindAssertionMismatch {
				fmt.Fprintf(w, "  %s %q\n", color.YellowString("expected:"), res.Expected)
				fmt.Fprintf(w, "  %s %q\n", color.YellowString("actual:  "), res.Actual)
			}
			if res.PageURL != "" {
				fmt.Fprintf(w, "  page:       %s\n", res.PageURL)
			}
			if res.Screenshot != "" {
				fmt.Fprintf(w, "  screenshot: %s\n", color.CyanString(res.Screenshot))
			}
		case runner.StatusInvalid:
			fmt.Fprintf(w, "\n%s\n  %s\n", color.MagentaString("! %s / %s", res.Fixture, res.Test), res.Error)
		}
	}
	fmt.Fprintln(w)
}

func printSummary(w io.Writer, report runner.Report) {
	if report.HasFailures() {
		fmt.Fprintln(w, color.RedString("✗ %s", report.Summary()))
		return
	}
	fmt.Fprintln(w, color.GreenString("✓ %s", report.Summary()))
}
