package config

import (
	"bytes"
	"flag"
	"testing"
	"time"

	"github.com/ahrdadan/uicheck/internal/browser"
	"github.com/ahrdadan/uicheck/internal/suites"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseDefaults(t *testing.T) {
	cfg, err := Parse(nil)
	require.NoError(t, err)

	assert.Equal(t, "http://localhost:8000", cfg.BaseURL)
	assert.Equal(t, "chrome", cfg.Engine)
	assert.True(t, cfg.WithNats)
	assert.Equal(t, suites.DefaultDemoURL, cfg.DemoURL)

	eng := cfg.EngineConfig()
	assert.Equal(t, browser.EngineChrome, eng.Engine)
	assert.True(t, eng.Launch.Headless)
	assert.Equal(t, 9222, eng.Port)
}

func TestParseOverrides(t *testing.T) {
	cfg, err := Parse([]string{
		"--host", "127.0.0.1",
		"--port", "9000",
		"--engine", "Lightpanda",
		"--headless=false",
		"--slow-motion", "250ms",
		"--fixture", suites.DemoFixture,
		"--test", "Verify Search results count for an Item",
		"--test-timeout", "20s",
		"--element-timeout", "3s",
		"--screenshots", "",
		"--max-retries", "42",
		"--rate-limit", "7",
	})
	require.NoError(t, err)

	assert.Equal(t, "http://127.0.0.1:9000", cfg.BaseURL)
	assert.Equal(t, "lightpanda", cfg.Engine)
	assert.Equal(t, 10, cfg.MaxRetries)

	rc := cfg.RouteConfig()
	assert.Equal(t, "http://127.0.0.1:9000", rc.BaseURL)
	assert.Equal(t, 7, rc.RateLimit.RequestsPerWindow)
	assert.Equal(t, 10, rc.MaxRetries)

	eng := cfg.EngineConfig()
	assert.False(t, eng.Launch.Headless)
	assert.Equal(t, 250*time.Millisecond, eng.Launch.SlowMotion)
	assert.True(t, eng.Launch.Isolate)

	opts := cfg.RunnerOptions()
	assert.Equal(t, 20*time.Second, opts.TestTimeout)
	assert.Equal(t, 3*time.Second, opts.Page.ElementTimeout)
	assert.Equal(t, "Verify Search results count for an Item", opts.TestFilter)
	assert.Empty(t, opts.ScreenshotDir)
}

func TestParseRejectsBadInput(t *testing.T) {
	cases := map[string][]string{
		"engine":           {"--engine", "firefox"},
		"test without fix": {"--test", "x"},
		"zero timeout":     {"--test-timeout", "0s"},
		"stray argument":   {"extra"},
		"unknown flag":     {"--nope"},
	}
	for name, args := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Parse(args)
			assert.Error(t, err)
		})
	}

	_, err := Parse([]string{"-h"})
	assert.ErrorIs(t, err, flag.ErrHelp)
}

func TestSuiteOptions(t *testing.T) {
	cfg, err := Parse([]string{"--storefront-url", "http://127.0.0.1:1/alexandra/"})
	require.NoError(t, err)

	reg := suites.NewRegistry(cfg.SuiteOptions())
	f, err := reg.Get(suites.StorefrontFixture)
	require.NoError(t, err)
	assert.Equal(t, "http://127.0.0.1:1/alexandra/", f.URL())
}

func TestHelpListsEveryGroup(t *testing.T) {
	var buf bytes.Buffer
	printHelp(&buf, DefaultConfig())
	out := buf.String()

	for _, want := range []string{"--engine", "--sandbox", "--nats-url", "--result-ttl", AppName + " v" + Version} {
		assert.Contains(t, out, want)
	}
}

func TestPageOverrides(t *testing.T) {
	cfg, err := Parse([]string{
		"--user-agent", "uicheck-bot/1.0",
		"--header", "X-Env: staging",
		"--header", "Authorization:Bearer abc",
		"--cookie", "consent=yes",
		"--cookie", "ab=b=2",
	})
	require.NoError(t, err)

	page := cfg.RunnerOptions().Page
	assert.Equal(t, "uicheck-bot/1.0", page.UserAgent)
	assert.Equal(t, map[string]string{"X-Env": "staging", "Authorization": "Bearer abc"}, page.Headers)
	assert.Equal(t, []browser.CookieParam{
		{Name: "consent", Value: "yes"},
		{Name: "ab", Value: "b=2"},
	}, page.Cookies)

	_, err = Parse([]string{"--header", "no-colon"})
	assert.Error(t, err)
	_, err = Parse([]string{"--cookie", "=value"})
	assert.Error(t, err)
}
