package browser

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/exec"
	"runtime"
	"strconv"
	"time"

	"github.com/go-rod/rod/lib/launcher"
)

const lightpandaStartupTimeout = 10 * time.Second

// Manager runs a Lightpanda CDP server as a child process.
type Manager struct {
	conn
	host       string
	port       int
	binaryPath string
}

// NewManager creates a Lightpanda manager for the binary at binaryPath.
// Lightpanda serves a single browser context, so sessions share it.
func NewManager(binaryPath string, host string, port int, launch LaunchOptions) *Manager {
	launch.Isolate = false
	m := &Manager{
		host:       host,
		port:       port,
		binaryPath: binaryPath,
	}
	m.conn = conn{proc: m, opts: launch}
	return m
}

// OpenSession opens a page at url for a test to drive.
func (m *Manager) OpenSession(ctx context.Context, url string, opts PageOptions) (Session, error) {
	return openSession(&m.conn, ctx, url, opts)
}

func (m *Manager) name() string { return "Lightpanda" }

func (m *Manager) launch() (string, func(), error) {
	if runtime.GOOS != "linux" {
		return "", nil, fmt.Errorf("Lightpanda browser only supports Linux, current OS: %s", runtime.GOOS)
	}

	cmd := exec.Command(m.binaryPath, "serve", "--host", m.host, "--port", strconv.Itoa(m.port))
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	if err := cmd.Start(); err != nil {
		return "", nil, fmt.Errorf("failed to start Lightpanda browser: %w", err)
	}

	kill := func() { killProcess(cmd) }
	controlURL, err := waitForCDP(fmt.Sprintf("ws://%s:%d", m.host, m.port), lightpandaStartupTimeout)
	if err != nil {
		kill()
		return "", nil, err
	}
	return controlURL, kill, nil
}

// waitForCDP polls the DevTools endpoint until it answers.
func waitForCDP(wsURL string, timeout time.Duration) (string, error) {
	deadline := time.Now().Add(timeout)
	for {
		controlURL, err := launcher.ResolveURL(wsURL)
		if err == nil {
			return controlURL, nil
		}
		if time.Now().After(deadline) {
			return "", fmt.Errorf("cdp endpoint %s not ready: %w", wsURL, err)
		}
		time.Sleep(200 * time.Millisecond)
	}
}

func killProcess(cmd *exec.Cmd) {
	if cmd.Process == nil {
		return
	}
	if err := cmd.Process.Kill(); err != nil {
		log.Printf("Warning: failed to kill browser process: %v", err)
	}
	// Wait reports the kill signal; only the reaping matters.
	_ = cmd.Wait()
}
