package config

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/ahrdadan/uicheck/internal/api"
	"github.com/ahrdadan/uicheck/internal/browser"
	"github.com/ahrdadan/uicheck/internal/queue"
	"github.com/ahrdadan/uicheck/internal/runner"
	"github.com/ahrdadan/uicheck/internal/security"
	"github.com/ahrdadan/uicheck/internal/suites"
)

const (
	// Version is the current version of uicheck
	Version = "0.3.0"
	// AppName is the application name
	AppName = "uicheck"
)

// Config holds all configuration options for the uicheck server and CLI
type Config struct {
	// Server
	Host    string
	Port    int
	BaseURL string // Full base URL for API responses (e.g., http://localhost:8000)

	// Browser
	Engine           string
	Headless         bool
	SlowMotion       time.Duration
	Trace            bool
	SharedContext    bool // reuse one browser context across tests
	ChromeBin        string
	InstallChrome    bool
	InstallDeps      bool
	ChromeRevision   int
	LightpandaDir    string
	LightpandaAutoDL bool
	BrowserHost      string // Lightpanda CDP host
	BrowserPort      int    // Lightpanda CDP port

	// Runs
	Fixture        string // CLI only: run one fixture
	Test           string // CLI only: run one test of Fixture
	TestTimeout    time.Duration
	ElementTimeout time.Duration
	StorefrontURL  string
	DemoURL        string
	Sandbox        bool   // serve the local practice pages and point fixtures at them
	SandboxAddr    string
	ScreenshotDir  string // empty disables failure screenshots
	UserAgent      string
	Headers        map[string]string
	Cookies        []browser.CookieParam

	// Queue (NATS JetStream)
	WithNats   bool
	NatsURL    string
	NatsStore  string
	NatsAutoDL bool
	NatsBin    string
	MaxRetries int
	ResultTTL  time.Duration
	RateLimit  int // run submissions per minute per client

	// Flags
	ShowVersion bool
	ShowHelp    bool
}

// DefaultConfig returns the default configuration
func DefaultConfig() *Config {
	return &Config{
		Host:             "0.0.0.0",
		Port:             8000,
		Engine:           string(browser.EngineChrome),
		Headless:         true,
		InstallChrome:    true,
		LightpandaDir:    "./bin",
		LightpandaAutoDL: true,
		BrowserHost:      "127.0.0.1",
		BrowserPort:      9222,
		TestTimeout:      runner.DefaultTestTimeout,
		ElementTimeout:   browser.DefaultPageOptions().ElementTimeout,
		StorefrontURL:    suites.DefaultStorefrontURL,
		DemoURL:          suites.DefaultDemoURL,
		SandboxAddr:      "127.0.0.1:0",
		ScreenshotDir:    "./screenshots",
		WithNats:         true,
		NatsURL:          "nats://127.0.0.1:4222",
		NatsStore:        "./data/nats",
		NatsAutoDL:       true,
		NatsBin:          "./bin/nats-server",
		MaxRetries:       queue.DefaultMaxRetries,
		ResultTTL:        queue.DefaultResultTTL,
		RateLimit:        security.DefaultRateLimitConfig().RequestsPerWindow,
	}
}

// ParseFlags parses os.Args and exits on invalid input
func ParseFlags() *Config {
	cfg, err := Parse(os.Args[1:])
	if errors.Is(err, flag.ErrHelp) {
		PrintHelp()
		os.Exit(0)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n\n", err)
		PrintHelp()
		os.Exit(2)
	}
	return cfg
}

// Parse parses command line arguments into a validated config
func Parse(args []string) (*Config, error) {
	cfg := DefaultConfig()

	fs := flag.NewFlagSet(AppName, flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	fs.Usage = func() {}

	// Server flags
	fs.StringVar(&cfg.Host, "host", cfg.Host, "Host address to bind the server")
	fs.IntVar(&cfg.Port, "port", cfg.Port, "Port number for the server")
	fs.StringVar(&cfg.BaseURL, "base-url", cfg.BaseURL, "Base URL for API responses")

	// Browser flags
	fs.StringVar(&cfg.Engine, "engine", cfg.Engine, "Browser engine: chrome or lightpanda")
	fs.BoolVar(&cfg.Headless, "headless", cfg.Headless, "Run Chrome headless")
	fs.DurationVar(&cfg.SlowMotion, "slow-motion", cfg.SlowMotion, "Delay between browser actions")
	fs.BoolVar(&cfg.Trace, "trace", cfg.Trace, "Log every browser action")
	fs.BoolVar(&cfg.SharedContext, "shared-context", cfg.SharedContext, "Share cookies and storage between tests")
	fs.StringVar(&cfg.ChromeBin, "chrome-bin", cfg.ChromeBin, "Path to a Chrome/Chromium binary")
	fs.BoolVar(&cfg.InstallChrome, "install-chrome", cfg.InstallChrome, "Download Chromium when no binary is found")
	fs.BoolVar(&cfg.InstallDeps, "install-deps", cfg.InstallDeps, "Install Chromium system packages")
	fs.IntVar(&cfg.ChromeRevision, "chrome-revision", cfg.ChromeRevision, "Chromium revision to download (0 uses default)")
	fs.StringVar(&cfg.LightpandaDir, "lightpanda-dir", cfg.LightpandaDir, "Directory holding the Lightpanda binary")
	fs.BoolVar(&cfg.LightpandaAutoDL, "lightpanda-autodl", cfg.LightpandaAutoDL, "Auto-download Lightpanda")
	fs.StringVar(&cfg.BrowserHost, "browser-host", cfg.BrowserHost, "Lightpanda CDP host")
	fs.IntVar(&cfg.BrowserPort, "browser-port", cfg.BrowserPort, "Lightpanda CDP port")

	// Run flags
	fs.StringVar(&cfg.Fixture, "fixture", cfg.Fixture, "Run only this fixture")
	fs.StringVar(&cfg.Test, "test", cfg.Test, "Run only this test (needs --fixture)")
	fs.DurationVar(&cfg.TestTimeout, "test-timeout", cfg.TestTimeout, "Timeout for a single test")
	fs.DurationVar(&cfg.ElementTimeout, "element-timeout", cfg.ElementTimeout, "How long to wait for an element")
	fs.StringVar(&cfg.StorefrontURL, "storefront-url", cfg.StorefrontURL, "Start page of the storefront fixture")
	fs.StringVar(&cfg.DemoURL, "demo-url", cfg.DemoURL, "Start page of the demo shop fixture")
	fs.BoolVar(&cfg.Sandbox, "sandbox", cfg.Sandbox, "Serve local practice pages and run fixtures against them")
	fs.StringVar(&cfg.SandboxAddr, "sandbox-addr", cfg.SandboxAddr, "Listen address of the practice pages")
	fs.StringVar(&cfg.ScreenshotDir, "screenshots", cfg.ScreenshotDir, "Directory for failure screenshots (empty disables)")
	fs.StringVar(&cfg.UserAgent, "user-agent", cfg.UserAgent, "User agent override for test pages")
	fs.Func("header", "Extra request header \"Name: value\" (repeatable)", cfg.addHeader)
	fs.Func("cookie", "Cookie \"name=value\" set before the start page loads (repeatable)", cfg.addCookie)

	// NATS flags
	fs.BoolVar(&cfg.WithNats, "with-nats", cfg.WithNats, "Enable NATS JetStream for the run queue")
	fs.StringVar(&cfg.NatsURL, "nats-url", cfg.NatsURL, "NATS server URL")
	fs.StringVar(&cfg.NatsStore, "nats-store", cfg.NatsStore, "NATS JetStream storage directory")
	fs.BoolVar(&cfg.NatsAutoDL, "nats-autodl", cfg.NatsAutoDL, "Auto-download NATS server binary")
	fs.StringVar(&cfg.NatsBin, "nats-bin", cfg.NatsBin, "Path to NATS server binary")
	fs.IntVar(&cfg.MaxRetries, "max-retries", cfg.MaxRetries, "Retries for runs that hit browser errors (0-10)")
	fs.DurationVar(&cfg.ResultTTL, "result-ttl", cfg.ResultTTL, "How long run results are kept")
	fs.IntVar(&cfg.RateLimit, "rate-limit", cfg.RateLimit, "Run submissions per minute per client")

	// Other flags
	fs.BoolVar(&cfg.ShowVersion, "version", cfg.ShowVersion, "Show version information")
	fs.BoolVar(&cfg.ShowHelp, "help", cfg.ShowHelp, "Show help message")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	if fs.NArg() > 0 {
		return nil, fmt.Errorf("unexpected arguments: %v", fs.Args())
	}

	if err := cfg.normalize(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) addHeader(v string) error {
	name, value, ok := strings.Cut(v, ":")
	name = strings.TrimSpace(name)
	if !ok || name == "" {
		return fmt.Errorf("--header wants \"Name: value\", got %q", v)
	}
	if c.Headers == nil {
		c.Headers = make(map[string]string)
	}
	c.Headers[name] = strings.TrimSpace(value)
	return nil
}

func (c *Config) addCookie(v string) error {
	name, value, ok := strings.Cut(v, "=")
	name = strings.TrimSpace(name)
	if !ok || name == "" {
		return fmt.Errorf("--cookie wants \"name=value\", got %q", v)
	}
	c.Cookies = append(c.Cookies, browser.CookieParam{Name: name, Value: value})
	return nil
}

func (c *Config) normalize() error {
	// Auto-generate BaseURL if not provided
	if c.BaseURL == "" {
		host := c.Host
		if host == "0.0.0.0" || host == "" {
			host = "localhost"
		}
		c.BaseURL = fmt.Sprintf("http://%s:%d", host, c.Port)
	}

	engine, err := browser.ParseEngine(c.Engine)
	if err != nil {
		return err
	}
	c.Engine = string(engine)

	if c.Test != "" && c.Fixture == "" {
		return errors.New("--test needs --fixture")
	}
	if c.TestTimeout <= 0 {
		return fmt.Errorf("--test-timeout must be positive, got %s", c.TestTimeout)
	}
	if c.ElementTimeout <= 0 {
		return fmt.Errorf("--element-timeout must be positive, got %s", c.ElementTimeout)
	}

	if c.MaxRetries < 0 {
		c.MaxRetries = 0
	}
	if c.MaxRetries > 10 {
		c.MaxRetries = 10
	}
	if c.ResultTTL <= 0 {
		c.ResultTTL = queue.DefaultResultTTL
	}
	if c.RateLimit < 1 {
		c.RateLimit = security.DefaultRateLimitConfig().RequestsPerWindow
	}
	return nil
}

// EngineConfig returns the browser settings
func (c *Config) EngineConfig() browser.EngineConfig {
	return browser.EngineConfig{
		Engine: browser.Engine(c.Engine),
		Launch: browser.LaunchOptions{
			Headless:   c.Headless,
			SlowMotion: c.SlowMotion,
			Trace:      c.Trace,
			Isolate:    !c.SharedContext,
		},
		ChromeBin:        c.ChromeBin,
		InstallChrome:    c.InstallChrome,
		InstallDeps:      c.InstallDeps,
		ChromeRevision:   c.ChromeRevision,
		LightpandaDir:    c.LightpandaDir,
		LightpandaAutoDL: c.LightpandaAutoDL,
		Host:             c.BrowserHost,
		Port:             c.BrowserPort,
	}
}

// RunnerOptions returns the runner settings
func (c *Config) RunnerOptions() runner.Options {
	opts := runner.DefaultOptions()
	opts.TestTimeout = c.TestTimeout
	opts.Page.ElementTimeout = c.ElementTimeout
	opts.ScreenshotDir = c.ScreenshotDir
	opts.TestFilter = c.Test
	opts.Page.UserAgent = c.UserAgent
	opts.Page.Headers = c.Headers
	opts.Page.Cookies = c.Cookies
	return opts
}

// SuiteOptions returns the fixture start pages
func (c *Config) SuiteOptions() suites.Options {
	return suites.Options{
		StorefrontURL: c.StorefrontURL,
		DemoURL:       c.DemoURL,
	}
}

// RouteConfig returns the settings of the run endpoints
func (c *Config) RouteConfig() api.RouteConfig {
	rc := api.DefaultRouteConfig()
	rc.BaseURL = c.BaseURL
	rc.MaxRetries = c.MaxRetries
	rc.ResultTTL = c.ResultTTL
	rc.RateLimit.RequestsPerWindow = c.RateLimit
	return rc
}

// PrintVersion prints version information
func PrintVersion() {
	fmt.Printf("%s v%s\n", AppName, Version)
}

// PrintHelp prints help information
func PrintHelp() {
	printHelp(os.Stdout, DefaultConfig())
}

func printHelp(w io.Writer, d *Config) {
	fmt.Fprintf(w, `%s v%s (browser checks + run queue)

Usage:
  ./server [flags]
  ./uicheck [flags]

Server:
  --host              %s
  --port              %d
  --base-url          (auto-generated if empty)

Browser:
  --engine            %s (chrome or lightpanda)
  --headless          %v
  --slow-motion       %s
  --trace             %v
  --shared-context    %v
  --chrome-bin        (auto-detected if empty)
  --install-chrome    %v
  --install-deps      %v
  --chrome-revision   %d
  --lightpanda-dir    %s
  --lightpanda-autodl %v
  --browser-host      %s
  --browser-port      %d

Runs:
  --fixture           (all fixtures if empty)
  --test              (all tests if empty)
  --test-timeout      %s
  --element-timeout   %s
  --storefront-url    %s
  --demo-url          %s
  --sandbox           %v
  --sandbox-addr      %s
  --screenshots       %s
  --user-agent        (browser default if empty)
  --header            Name: value (repeatable)
  --cookie            name=value (repeatable)

Queue (NATS JetStream):
  --with-nats         %v
  --nats-url          %s
  --nats-store        %s
  --nats-autodl       %v
  --nats-bin          %s
  --max-retries       %d
  --result-ttl        %s
  --rate-limit        %d (run submissions per minute)

Other:
  --version           show version
  --help              show this help

`, AppName, Version,
		d.Host, d.Port,
		d.Engine, d.Headless, d.SlowMotion, d.Trace, d.SharedContext, d.InstallChrome, d.InstallDeps, d.ChromeRevision,
		d.LightpandaDir, d.LightpandaAutoDL, d.BrowserHost, d.BrowserPort,
		d.TestTimeout, d.ElementTimeout, d.StorefrontURL, d.DemoURL, d.Sandbox, d.SandboxAddr, d.ScreenshotDir,
		d.WithNats, d.NatsURL, d.NatsStore, d.NatsAutoDL, d.NatsBin, d.MaxRetries, d.ResultTTL, d.RateLimit)
}

// HandleFlags handles version and help flags, exits if needed
func HandleFlags(cfg *Config) {
	if cfg.ShowVersion {
		PrintVersion()
		os.Exit(0)
	}

	if cfg.ShowHelp {
		PrintHelp()
		os.Exit(0)
	}
}
