// Command uicheck runs the browser fixtures once and exits non-zero when
// any test fails or is malformed.
package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/ahrdadan/uicheck/internal/browser"
	"github.com/ahrdadan/uicheck/internal/config"
	"github.com/ahrdadan/uicheck/internal/fixture"
	"github.com/ahrdadan/uicheck/internal/runner"
	"github.com/ahrdadan/uicheck/internal/sandbox"
	"github.com/ahrdadan/uicheck/internal/suites"
)

func main() {
	cfg := config.ParseFlags()
	config.HandleFlags(cfg)
	os.Exit(run(cfg))
}

func run(cfg *config.Config) int {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.Sandbox {
		site, err := sandbox.Start(cfg.SandboxAddr)
		if err != nil {
			log.Printf("Failed to start sandbox: %v", err)
			return 2
		}
		defer site.Shutdown()
		cfg.StorefrontURL = site.StorefrontURL()
		cfg.DemoURL = site.DemoURL()
	}

	fixtures, err := selectFixtures(suites.NewRegistry(cfg.SuiteOptions()), cfg.Fixture, cfg.Test)
	if err != nil {
		log.Printf("%v", err)
		return 2
	}
	for _, f := range fixtures {
		if err := f.Validate(); err != nil {
			log.Printf("Warning: %v", err)
		}
	}

	client, stopBrowser, err := browser.Start(ctx, cfg.EngineConfig())
	if err != nil {
		log.Printf("Failed to start browser: %v", err)
		return 2
	}
	defer stopBrowser()

	progress := newProgressPrinter(os.Stdout)
	report := runner.New(client, cfg.RunnerOptions()).RunAll(ctx, fixtures, progress.update)

	printFailures(os.Stdout, report)
	printSummary(os.Stdout, report)

	if report.HasFailures() {
		return 1
	}
	return 0
}

func selectFixtures(reg *suites.Registry, name, test string) ([]*fixture.Fixture, error) {
	if name == "" {
		return reg.All(), nil
	}
	f, err := reg.Get(name)
	if err != nil {
		return nil, fmt.Errorf("%w (known: %v)", err, reg.Names())
	}
	if test != "" {
		if _, err := f.Lookup(test); err != nil {
			return nil, err
		}
	}
	return []*fixture.Fixture{f}, nil
}
