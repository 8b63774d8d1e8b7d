package browser

import (
	"context"
	"fmt"

	"github.com/go-rod/rod/lib/launcher"
)

// ChromeManager runs a Chromium/Chrome instance launched by rod.
type ChromeManager struct {
	conn
	binPath string
}

// NewChromeManager creates a new Chrome manager. An empty binPath lets rod
// find or download a browser.
func NewChromeManager(binPath string, launch LaunchOptions) *ChromeManager {
	m := &ChromeManager{binPath: binPath}
	m.conn = conn{proc: m, opts: launch}
	return m
}

// OpenSession opens a page at url for a test to drive.
func (m *ChromeManager) OpenSession(ctx context.Context, url string, opts PageOptions) (Session, error) {
	return openSession(&m.conn, ctx, url, opts)
}

func (m *ChromeManager) name() string { return "Chrome" }

func (m *ChromeManager) launch() (string, func(), error) {
	l := launcher.New().Headless(m.opts.Headless)
	if m.binPath != "" {
		l = l.Bin(m.binPath)
	}

	controlURL, err := l.Launch()
	if err != nil {
		return "", nil, fmt.Errorf("failed to launch chrome: %w", err)
	}
	return controlURL, func() {
		l.Kill()
		l.Cleanup()
	}, nil
}
