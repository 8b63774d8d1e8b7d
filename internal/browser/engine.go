package browser

import (
	"context"
	"fmt"
	"log"
	"strings"
)

// Engine selects the browser backend.
type Engine string

const (
	EngineChrome     Engine = "chrome"
	EngineLightpanda Engine = "lightpanda"
)

// ParseEngine accepts an engine name, case-insensitively.
func ParseEngine(s string) (Engine, error) {
	switch Engine(strings.ToLower(strings.TrimSpace(s))) {
	case EngineChrome, "":
		return EngineChrome, nil
	case EngineLightpanda:
		return EngineLightpanda, nil
	}
	return "", fmt.Errorf("unknown engine: %s", s)
}

// EngineConfig describes how to provision and launch a backend.
type EngineConfig struct {
	Engine Engine
	Launch LaunchOptions

	ChromeBin      string
	InstallChrome  bool
	InstallDeps    bool
	ChromeRevision int

	LightpandaDir    string
	LightpandaAutoDL bool
	Host             string
	Port             int
}

// Start provisions and starts the configured backend. The returned stop
// function shuts it down.
func Start(ctx context.Context, cfg EngineConfig) (Client, func(), error) {
	switch cfg.Engine {
	case EngineLightpanda:
		bin, err := EnsureLightpandaBinary(ctx, cfg.LightpandaDir, cfg.LightpandaAutoDL)
		if err != nil {
			return nil, nil, err
		}
		m := NewManager(bin, cfg.Host, cfg.Port, cfg.Launch)
		if err := m.Start(); err != nil {
			return nil, nil, err
		}
		return m, stopper("Lightpanda", m.Stop), nil

	case EngineChrome, "":
		bin := cfg.ChromeBin
		if bin == "" && cfg.InstallChrome {
			var err error
			bin, err = InstallChrome(ctx, cfg.ChromeRevision, cfg.InstallDeps)
			if err != nil {
				return nil, nil, err
			}
		}
		m := NewChromeManager(bin, cfg.Launch)
		if err := m.Start(); err != nil {
			return nil, nil, err
		}
		return m, stopper("Chrome", m.Stop), nil
	}

	return nil, nil, fmt.Errorf("unknown engine: %s", cfg.Engine)
}

func stopper(name string, stop func() error) func() {
	return func() {
		if err := stop(); err != nil {
			log.Printf("Failed to stop %s: %v", name, err)
		}
	}
}
