package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/ahrdadan/uicheck/internal/api"
	"github.com/ahrdadan/uicheck/internal/browser"
	"github.com/ahrdadan/uicheck/internal/config"
	"github.com/ahrdadan/uicheck/internal/nats"
	"github.com/ahrdadan/uicheck/internal/queue"
	"github.com/ahrdadan/uicheck/internal/runner"
	"github.com/ahrdadan/uicheck/internal/sandbox"
	"github.com/ahrdadan/uicheck/internal/suites"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
)

// cleanup runs registered stop functions in reverse order.
type cleanup []func()

func (c *cleanup) add(fn func()) { *c = append(*c, fn) }

func (c cleanup) run() {
	for i := len(c) - 1; i >= 0; i-- {
		c[i]()
	}
}

func main() {
	cfg := config.ParseFlags()
	config.HandleFlags(cfg)

	log.Printf("Starting %s v%s (browser checks + run queue)", config.AppName, config.Version)

	ctx := context.Background()
	var stops cleanup
	defer stops.run()

	if cfg.Sandbox {
		stop, err := serveSandbox(cfg)
		if err != nil {
			log.Fatalf("Failed to start sandbox: %v", err)
		}
		stops.add(stop)
	}

	registry := suites.NewRegistry(cfg.SuiteOptions())
	for _, f := range registry.All() {
		if err := f.Validate(); err != nil {
			log.Printf("Warning: fixture %q has defects: %v", f.Name(), err)
		}
	}

	// Without a browser the fixtures can still be listed and validated.
	client, stopBrowser, err := browser.Start(ctx, cfg.EngineConfig())
	if err != nil {
		log.Printf("Warning: browser not available (%s): %v", cfg.Engine, err)
	} else {
		stops.add(stopBrowser)
		log.Printf("Browser %s running at %s", cfg.Engine, client.GetEndpoint())
	}

	runOpts := cfg.RunnerOptions()
	runOpts.TestFilter = ""

	var runs *queue.Manager
	if cfg.WithNats {
		runs, err = startQueue(ctx, cfg, &stops, queue.NewRunProcessor(client, registry, runOpts))
		if err != nil {
			log.Fatalf("Run queue unavailable: %v", err)
		}
	}

	app := newApp(client, registry, runOpts)
	if runs != nil {
		limiter := api.SetupRunRoutes(app, api.NewRunHandler(runs, registry, cfg.RouteConfig()))
		stops.add(limiter.Stop)
	}

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sig
		log.Println("Shutting down server...")
		if runs != nil {
			runs.Stop()
		}
		if err := app.Shutdown(); err != nil {
			log.Printf("Error during shutdown: %v", err)
		}
	}()

	addr := fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)
	log.Printf("Listening on %s (public URL %s)", addr, cfg.BaseURL)
	if err := app.Listen(addr); err != nil {
		log.Printf("Server stopped: %v", err)
	}
}

// serveSandbox starts the practice pages and points the fixtures at them.
func serveSandbox(cfg *config.Config) (func(), error) {
	site, err := sandbox.Start(cfg.SandboxAddr)
	if err != nil {
		return nil, err
	}
	cfg.StorefrontURL = site.StorefrontURL()
	cfg.DemoURL = site.DemoURL()
	log.Printf("Sandbox serving practice pages at %s", site.BaseURL())

	return func() {
		if err := site.Shutdown(); err != nil {
			log.Printf("Failed to stop sandbox: %v", err)
		}
	}, nil
}

// startQueue brings up the embedded NATS server and the run workers.
func startQueue(ctx context.Context, cfg *config.Config, stops *cleanup, processor queue.Processor) (*queue.Manager, error) {
	srv := nats.NewServer(nats.ServerConfig{
		BinPath:  cfg.NatsBin,
		StoreDir: cfg.NatsStore,
		URL:      cfg.NatsURL,
		AutoDL:   cfg.NatsAutoDL,
	})
	if err := srv.Start(ctx); err != nil {
		return nil, fmt.Errorf("nats: %w", err)
	}
	stops.add(func() { _ = srv.Stop() })

	runs, err := queue.NewManager(srv.GetJetStream())
	if err != nil {
		return nil, fmt.Errorf("queue: %w", err)
	}
	if err := runs.Start(processor); err != nil {
		runs.Stop()
		return nil, fmt.Errorf("workers: %w", err)
	}
	stops.add(runs.Stop)

	log.Printf("Run queue ready on %s", cfg.NatsURL)
	return runs, nil
}

func newApp(client browser.Client, registry *suites.Registry, opts runner.Options) *fiber.App {
	app := fiber.New(fiber.Config{
		AppName:      config.AppName,
		ErrorHandler: api.ErrorHandler,
	})
	app.Use(recover.New())
	app.Use(logger.New())
	app.Use(cors.New())

	api.SetupRoutes(app, api.NewHandler(client, registry, opts))
	return app
}
