package nats

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"net/url"
	"os"
	"os/exec"
	"path/filepath"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
)

const (
	// DefaultURL is where the run queue expects its NATS server
	DefaultURL  = "nats://127.0.0.1:4222"
	defaultPort = "4222"

	readyTimeout = 10 * time.Second
)

// Server manages a local NATS server instance, or attaches to one that is
// already listening on the configured URL.
type Server struct {
	cfg      ServerConfig
	cmd      *exec.Cmd
	nc       *nats.Conn
	js       jetstream.JetStream
	mu       sync.Mutex
	attached bool
	started  bool
}

// ServerConfig holds configuration for the NATS server
type ServerConfig struct {
	BinPath  string
	StoreDir string
	URL      string
	AutoDL   bool
}

// NewServer creates a new NATS server manager
func NewServer(cfg ServerConfig) *Server {
	if cfg.URL == "" {
		cfg.URL = DefaultURL
	}
	return &Server{cfg: cfg}
}

// Start connects to the configured URL, spawning nats-server with
// JetStream first when nothing is listening there.
func (s *Server) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.nc != nil {
		return nil
	}

	host, port, err := parseNatsURL(s.cfg.URL)
	if err != nil {
		return fmt.Errorf("failed to parse NATS URL: %w", err)
	}
	addr := net.JoinHostPort(host, port)

	if isReachable(addr) {
		log.Printf("NATS server already running at %s", s.cfg.URL)
		if err := s.connect(); err != nil {
			return err
		}
		s.attached = true
		return nil
	}

	binPath, err := EnsureNATSBinary(ctx, s.cfg.BinPath, s.cfg.AutoDL)
	if err != nil {
		return fmt.Errorf("failed to ensure NATS binary: %w", err)
	}

	storeDir, err := filepath.Abs(s.cfg.StoreDir)
	if err != nil {
		return fmt.Errorf("failed to get absolute path for store dir: %w", err)
	}
	if err := os.MkdirAll(storeDir, 0755); err != nil {
		return fmt.Errorf("failed to create store directory: %w", err)
	}

	// Not CommandContext: the server outlives the startup context.
	s.cmd = exec.Command(binPath, "-js", "-sd", storeDir, "-a", host, "-p", port)
	s.cmd.Stdout = os.Stdout
	s.cmd.Stderr = os.Stderr

	if err := s.cmd.Start(); err != nil {
		s.cmd = nil
		return fmt.Errorf("failed to start NATS server: %w", err)
	}

	if err := waitReady(ctx, addr, readyTimeout); err != nil {
		s.kill()
		return err
	}

	if err := s.connect(); err != nil {
		s.kill()
		return err
	}

	s.started = true
	log.Printf("NATS server started at %s with JetStream enabled", s.cfg.URL)
	return nil
}

// Stop closes the connection and kills the server if this process
// started it.
func (s *Server) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.nc != nil {
		if err := s.nc.Drain(); err != nil {
			s.nc.Close()
		}
		s.nc = nil
	}
	s.js = nil

	if s.started {
		s.kill()
		s.started = false
		log.Println("NATS server stopped")
	}
	s.attached = false
	return nil
}

func (s *Server) kill() {
	if s.cmd == nil || s.cmd.Process == nil {
		return
	}
	if err := s.cmd.Process.Kill(); err != nil {
		log.Printf("Warning: failed to kill NATS process: %v", err)
	}
	if err := s.cmd.Wait(); err != nil && !isKilled(err) {
		log.Printf("Warning: failed to wait for NATS process: %v", err)
	}
	s.cmd = nil
}

func isKilled(err error) bool {
	var exitErr *exec.ExitError
	return errors.As(err, &exitErr)
}

// IsRunning returns true while a connection is held
func (s *Server) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.nc != nil && s.nc.IsConnected()
}

// Attached reports whether Start reused an already running server
func (s *Server) Attached() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.attached
}

// GetConnection returns the NATS connection
func (s *Server) GetConnection() *nats.Conn {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.nc
}

// GetJetStream returns the JetStream context
func (s *Server) GetJetStream() jetstream.JetStream {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.js
}

func (s *Server) connect() error {
	nc, err := nats.Connect(s.cfg.URL,
		nats.Name("uicheck"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				log.Printf("Warning: NATS disconnected: %v", err)
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Printf("NATS reconnected to %s", nc.ConnectedUrl())
		}),
	)
	if err != nil {
		return fmt.Errorf("failed to connect to NATS: %w", err)
	}

	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return fmt.Errorf("failed to create JetStream context: %w", err)
	}

	s.nc = nc
	s.js = js
	return nil
}

func isReachable(addr string) bool {
	conn, err := net.DialTimeout("tcp", addr, 2*time.Second)
	if err != nil {
		return false
	}
	conn.Close()
	return true
}

func waitReady(ctx context.Context, addr string, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	for {
		if isReachable(addr) {
			return nil
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("NATS server not ready at %s: %w", addr, ctx.Err())
		case <-ticker.C:
		}
	}
}

// parseNatsURL accepts nats://host:port or a bare host:port. The port
// defaults to 4222.
func parseNatsURL(natsURL string) (host, port string, err error) {
	u, err := url.Parse(natsURL)
	if err != nil || u.Host == "" {
		u, err = url.Parse("nats://" + natsURL)
		if err != nil {
			return "", "", fmt.Errorf("invalid NATS URL %q: %w", natsURL, err)
		}
	}
	if u.Scheme != "nats" {
		return "", "", fmt.Errorf("invalid NATS URL %q: scheme %q", natsURL, u.Scheme)
	}

	host = u.Hostname()
	port = u.Port()
	if host == "" {
		return "", "", fmt.Errorf("invalid NATS URL %q: no host", natsURL)
	}
	if port == "" {
		port = defaultPort
	}
	return host, port, nil
}
