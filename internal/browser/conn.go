package browser

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"
)

// LaunchOptions tune how rod drives a browser.
type LaunchOptions struct {
	Headless   bool
	SlowMotion time.Duration
	Trace      bool
	// Isolate opens every session in its own incognito browser context so
	// cookies and storage never carry over between tests.
	Isolate bool
}

// DefaultLaunchOptions returns headless, isolated defaults.
func DefaultLaunchOptions() LaunchOptions {
	return LaunchOptions{Headless: true, Isolate: true}
}

// process starts one browser backend and reports its CDP control URL.
type process interface {
	name() string
	launch() (controlURL string, kill func(), err error)
}

// conn owns the rod connection to a process and restarts it when the CDP
// socket dies.
type conn struct {
	proc      process
	opts      LaunchOptions
	mu        sync.Mutex
	restartMu sync.Mutex
	browser   *rod.Browser
	kill      func()
	endpoint  string
	running   bool
}

// Start launches the process and connects to it.
func (c *conn) Start() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.running {
		return nil
	}

	controlURL, kill, err := c.proc.launch()
	if err != nil {
		return err
	}

	b := rod.New().ControlURL(controlURL).Trace(c.opts.Trace)
	if c.opts.SlowMotion > 0 {
		b = b.SlowMotion(c.opts.SlowMotion)
	}
	if err := b.Connect(); err != nil {
		kill()
		return fmt.Errorf("failed to connect to %s: %w", c.proc.name(), err)
	}

	c.browser = b
	c.kill = kill
	c.endpoint = controlURL
	c.running = true

	log.Printf("%s started with endpoint %s", c.proc.name(), controlURL)
	return nil
}

// Stop closes the connection and the process behind it.
func (c *conn) Stop() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.running {
		return nil
	}

	if err := c.browser.Close(); err != nil {
		log.Printf("Warning: failed to close %s: %v", c.proc.name(), err)
	}
	c.kill()

	c.browser = nil
	c.kill = nil
	c.endpoint = ""
	c.running = false

	log.Printf("%s stopped", c.proc.name())
	return nil
}

// IsRunning reports whether the browser is connected.
func (c *conn) IsRunning() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.running
}

// GetEndpoint returns the DevTools control URL, empty while stopped.
func (c *conn) GetEndpoint() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.endpoint
}

// OpenPage creates a page, applies options, and navigates to the URL. The
// returned cleanup releases the browser context the page lives in.
func (c *conn) OpenPage(ctx context.Context, url string, opts PageOptions) (*rod.Page, func(), error) {
	page, cleanup, err := c.newPage(ctx)
	if err != nil {
		return nil, noopCleanup, err
	}

	if err := navigate(page, url, opts); err != nil {
		if cerr := closePage(page); cerr != nil {
			log.Printf("Warning: failed to close page after navigation error: %v", cerr)
		}
		cleanup()
		return nil, noopCleanup, err
	}

	return page, cleanup, nil
}

func (c *conn) current() *rod.Browser {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.browser
}

func (c *conn) ensureStarted() error {
	if c.IsRunning() {
		return nil
	}

	c.restartMu.Lock()
	defer c.restartMu.Unlock()

	if c.IsRunning() {
		return nil
	}
	return c.Start()
}

func (c *conn) restart() error {
	c.restartMu.Lock()
	defer c.restartMu.Unlock()

	if err := c.Stop(); err != nil {
		log.Printf("Warning: failed to stop %s before restart: %v", c.proc.name(), err)
	}
	return c.Start()
}

// newPage opens a blank target, restarting the browser once when the CDP
// connection turns out to be dead.
func (c *conn) newPage(ctx context.Context) (*rod.Page, func(), error) {
	if err := c.ensureStarted(); err != nil {
		return nil, noopCleanup, fmt.Errorf("failed to start browser: %w", err)
	}

	page, cleanup, err := c.target(ctx)
	if err == nil {
		return page, cleanup, nil
	}
	if !isConnectionError(err) {
		return nil, noopCleanup, fmt.Errorf("failed to create new page: %w", err)
	}

	if restartErr := c.restart(); restartErr != nil {
		return nil, noopCleanup, fmt.Errorf("failed to restart browser after connection error: %w", restartErr)
	}

	page, cleanup, err = c.target(ctx)
	if err != nil {
		return nil, noopCleanup, fmt.Errorf("failed to create new page: %w", err)
	}
	return page, cleanup, nil
}

func (c *conn) target(ctx context.Context) (*rod.Page, func(), error) {
	b := c.current()
	if b == nil {
		return nil, noopCleanup, net.ErrClosed
	}
	b = b.Context(ctx)

	cleanup := noopCleanup
	if c.opts.Isolate {
		incognito, err := b.Incognito()
		if err != nil {
			return nil, noopCleanup, err
		}
		b = incognito
		cleanup = func() { dispose(ctx, incognito) }
	}

	page, err := b.Page(proto.TargetCreateTarget{})
	if err != nil {
		cleanup()
		return nil, noopCleanup, err
	}
	return page, cleanup, nil
}

// dispose drops an incognito context, outliving the test's own deadline.
func dispose(ctx context.Context, incognito *rod.Browser) {
	ctx, cancel := detached(ctx)
	defer cancel()
	if err := incognito.Context(ctx).Close(); err != nil {
		log.Printf("Warning: failed to dispose browser context: %v", err)
	}
}

func isConnectionError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	if errors.Is(err, net.ErrClosed) {
		return true
	}

	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "use of closed network connection") ||
		strings.Contains(msg, "broken pipe") ||
		strings.Contains(msg, "connection reset by peer") ||
		strings.Contains(msg, "eof")
}

func noopCleanup() {}
