package browser

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"testing"
	"time"

	"github.com/ahrdadan/uicheck/internal/locator"
	"github.com/go-rod/rod/lib/proto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIsConnectionError(t *testing.T) {
	assert.False(t, isConnectionError(nil))
	assert.False(t, isConnectionError(context.Canceled))
	assert.False(t, isConnectionError(fmt.Errorf("wrapped: %w", context.DeadlineExceeded)))
	assert.True(t, isConnectionError(net.ErrClosed))
	assert.True(t, isConnectionError(io.EOF))
	assert.True(t, isConnectionError(errors.New("write: broken pipe")))
	assert.False(t, isConnectionError(errors.New("no such element")))
}

func TestResolveError(t *testing.T) {
	target := locator.New("#firstname")

	err := resolveError(context.Background(), target, context.DeadlineExceeded)
	assert.True(t, errors.Is(err, ErrElementNotFound))
	assert.Contains(t, err.Error(), "#firstname")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err = resolveError(ctx, target, context.Canceled)
	assert.False(t, errors.Is(err, ErrElementNotFound))
	assert.True(t, errors.Is(err, context.Canceled))

	other := errors.New("cdp failure")
	err = resolveError(context.Background(), target, other)
	assert.True(t, errors.Is(err, other))
}

func TestTextPatternEscapes(t *testing.T) {
	assert.Equal(t, "/CREATE ACCOUNT/", textPattern("CREATE ACCOUNT"))
	assert.Equal(t, `/1 result\.\(s\)/`, textPattern("1 result.(s)"))
}

func TestQueriesJoinUnfilteredSteps(t *testing.T) {
	cases := []struct {
		name string
		loc  locator.Locator
		want []query
	}{
		{"single", locator.New("#firstname"), []query{{css: "#firstname"}}},
		{"descendants", locator.New("ul").Find("li"), []query{{css: "ul li"}}},
		{"text on last", locator.New("nav").Find("a").WithText("CREATE ACCOUNT"),
			[]query{{css: "nav a", text: "CREATE ACCOUNT"}}},
		{"text in middle", locator.New("div").WithText("Cart").Find("ul").Find("li"),
			[]query{{css: "div", text: "Cart"}, {css: "ul li"}}},
		{"selector list", locator.New("ul, ol").Find("li"), []query{{css: ":is(ul, ol) li"}}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, queries(tc.loc.Steps()))
		})
	}
}

func TestDetachedOutlivesExpiredContext(t *testing.T) {
	type key struct{}
	parent, cancel := context.WithCancel(context.WithValue(context.Background(), key{}, "run_1"))
	cancel()

	ctx, stop := detached(parent)
	defer stop()

	assert.NoError(t, ctx.Err())
	assert.Equal(t, "run_1", ctx.Value(key{}))
	deadline, ok := ctx.Deadline()
	require.True(t, ok)
	assert.WithinDuration(t, time.Now().Add(closeTimeout), deadline, time.Second)
}

func TestCookieDefaultsToPageURL(t *testing.T) {
	page := "https://www.alexandra.co.uk/"

	p := CookieParam{Name: "consent", Value: "yes", Expires: 1700000000}.toProto(page)
	assert.Equal(t, page, p.URL)
	assert.Equal(t, proto.TimeSinceEpoch(1700000000), p.Expires)

	scoped := CookieParam{Name: "scoped", Value: "1", Domain: ".alexandra.co.uk"}.toProto(page)
	assert.Equal(t, "", scoped.URL)
	assert.Equal(t, ".alexandra.co.uk", scoped.Domain)
}

func TestParseEngine(t *testing.T) {
	e, err := ParseEngine("")
	require.NoError(t, err)
	assert.Equal(t, EngineChrome, e)

	e, err = ParseEngine(" LightPanda ")
	require.NoError(t, err)
	assert.Equal(t, EngineLightpanda, e)

	_, err = ParseEngine("firefox")
	assert.Error(t, err)
}

func TestDefaultPageOptions(t *testing.T) {
	opts := DefaultPageOptions()
	assert.True(t, opts.WaitForLoad)
	assert.Greater(t, opts.Timeout, opts.ElementTimeout)
}

type failingProcess struct{ launches int }

func (p *failingProcess) name() string { return "fake" }

func (p *failingProcess) launch() (string, func(), error) {
	p.launches++
	return "", nil, errors.New("no binary")
}

func TestConnStartFailureLeavesStopped(t *testing.T) {
	proc := &failingProcess{}
	c := &conn{proc: proc, opts: DefaultLaunchOptions()}

	require.Error(t, c.Start())
	assert.False(t, c.IsRunning())
	assert.Empty(t, c.GetEndpoint())
	require.NoError(t, c.Stop())

	_, _, err := c.OpenPage(context.Background(), "https://example.com/", DefaultPageOptions())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to start browser")
	assert.Equal(t, 2, proc.launches)
}

func TestLightpandaSharesContext(t *testing.T) {
	m := NewManager("/bin/lightpanda", "127.0.0.1", 9222, DefaultLaunchOptions())
	assert.False(t, m.opts.Isolate)
	assert.Empty(t, m.GetEndpoint())

	chrome := NewChromeManager("", DefaultLaunchOptions())
	assert.True(t, chrome.opts.Isolate)
}
