package runner

import (
	"context"
	"testing"
	"time"

	"github.com/ahrdadan/uicheck/internal/browser"
	"github.com/ahrdadan/uicheck/internal/sandbox"
	"github.com/ahrdadan/uicheck/internal/suites"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestSandboxEndToEnd drives a real browser against the local sandbox.
func TestSandboxEndToEnd(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping browser test in short mode")
	}
	bin, ok := browser.FindChrome()
	if !ok {
		t.Skip("no local Chrome/Chromium found")
	}

	site, err := sandbox.Start("127.0.0.1:0")
	require.NoError(t, err)
	defer site.Shutdown()

	chrome := browser.NewChromeManager(bin, browser.DefaultLaunchOptions())
	require.NoError(t, chrome.Start())
	defer chrome.Stop()

	reg := suites.NewRegistry(suites.Options{
		StorefrontURL: site.StorefrontURL(),
		DemoURL:       site.DemoURL(),
	})

	opts := DefaultOptions()
	opts.Page.ElementTimeout = 5 * time.Second
	opts.TestTimeout = 30 * time.Second
	report := New(chrome, opts).RunAll(context.Background(), reg.All(), nil)

	for _, res := range report.Results {
		assert.Equal(t, StatusPassed, res.Status, "%s / %s: %s", res.Fixture, res.Test, res.Error)
	}
	assert.Equal(t, 2, report.Passed)
}
