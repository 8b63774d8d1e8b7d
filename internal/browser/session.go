package browser

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/ahrdadan/uicheck/internal/locator"
	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"
)

// PageOptions configures how a session page is opened.
type PageOptions struct {
	Timeout        time.Duration     `json:"timeout"`
	ElementTimeout time.Duration     `json:"element_timeout"`
	WaitForLoad    bool              `json:"wait_for_load"`
	UserAgent      string            `json:"user_agent,omitempty"`
	Headers        map[string]string `json:"headers,omitempty"`
	Cookies        []CookieParam     `json:"cookies,omitempty"`
}

// DefaultPageOptions returns default page options
func DefaultPageOptions() PageOptions {
	return PageOptions{
		Timeout:        30 * time.Second,
		ElementTimeout: 10 * time.Second,
		WaitForLoad:    true,
	}
}

// CookieParam represents cookie parameters set before navigation.
type CookieParam struct {
	Name     string `json:"name"`
	Value    string `json:"value"`
	URL      string `json:"url,omitempty"`
	Domain   string `json:"domain,omitempty"`
	Path     string `json:"path,omitempty"`
	Expires  int64  `json:"expires,omitempty"`
	HTTPOnly bool   `json:"http_only,omitempty"`
	Secure   bool   `json:"secure,omitempty"`
}

type pageOpener interface {
	OpenPage(ctx context.Context, url string, opts PageOptions) (*rod.Page, func(), error)
}

func openSession(opener pageOpener, ctx context.Context, url string, opts PageOptions) (Session, error) {
	page, cleanup, err := opener.OpenPage(ctx, url, opts)
	if err != nil {
		return nil, err
	}
	return &rodSession{
		page:           page,
		cleanup:        cleanup,
		elementTimeout: opts.ElementTimeout,
	}, nil
}

const closeTimeout = 5 * time.Second

type rodSession struct {
	page           *rod.Page
	cleanup        func()
	elementTimeout time.Duration
}

func (s *rodSession) Click(ctx context.Context, target locator.Locator) error {
	el, err := s.resolve(ctx, target)
	if err != nil {
		return err
	}
	if err := el.Click(proto.InputMouseButtonLeft, 1); err != nil {
		return fmt.Errorf("failed to click %s: %w", target, err)
	}
	return nil
}

func (s *rodSession) TypeText(ctx context.Context, target locator.Locator, text string) error {
	el, err := s.resolve(ctx, target)
	if err != nil {
		return err
	}
	if err := el.Input(text); err != nil {
		return fmt.Errorf("failed to type into %s: %w", target, err)
	}
	return nil
}

func (s *rodSession) Read(ctx context.Context, prop locator.Property) (string, error) {
	el, err := s.resolve(ctx, prop.Locator)
	if err != nil {
		return "", err
	}

	var script string
	switch prop.Name {
	case locator.PropInnerText:
		script = `() => this.innerText`
	case locator.PropValue:
		script = `() => this.value`
	default:
		return "", fmt.Errorf("unsupported property: %s", prop.Name)
	}

	res, err := el.Eval(script)
	if err != nil {
		return "", fmt.Errorf("failed to read %s: %w", prop, err)
	}
	return res.Value.Str(), nil
}

func (s *rodSession) Screenshot(ctx context.Context) ([]byte, error) {
	data, err := s.page.Context(ctx).Screenshot(true, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to take screenshot: %w", err)
	}
	return data, nil
}

func (s *rodSession) URL() string {
	info, err := s.page.Info()
	if err != nil {
		return ""
	}
	return info.URL
}

// Close closes the tab even when the test context has already expired.
func (s *rodSession) Close() error {
	defer s.cleanup()
	return closePage(s.page)
}

// closePage closes page on a context detached from the page's own, so an
// expired test deadline does not leave the tab open.
func closePage(page *rod.Page) error {
	ctx, cancel := detached(page.GetContext())
	defer cancel()
	return page.Context(ctx).Close()
}

// detached keeps ctx's values but not its cancellation, bounded by
// closeTimeout.
func detached(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), closeTimeout)
}

// resolve walks the locator chain from the page root. Consecutive steps
// without a text filter are joined into one descendant selector, so
// New("ul").Find("li") considers every ul. A text filter pins the match
// and later steps search inside it. The lookup is bounded by the element
// timeout; the returned element is rebound to ctx.
func (s *rodSession) resolve(ctx context.Context, target locator.Locator) (*rod.Element, error) {
	if err := target.Validate(); err != nil {
		return nil, err
	}

	lookupCtx, cancel := withTimeout(ctx, s.elementTimeout)
	defer cancel()

	page := s.page.Context(lookupCtx)
	var el *rod.Element
	for _, q := range queries(target.Steps()) {
		var err error
		switch {
		case el == nil && q.text != "":
			el, err = page.ElementR(q.css, textPattern(q.text))
		case el == nil:
			el, err = page.Element(q.css)
		case q.text != "":
			el, err = el.ElementR(q.css, textPattern(q.text))
		default:
			el, err = el.Element(q.css)
		}
		if err != nil {
			return nil, resolveError(ctx, target, err)
		}
	}

	return el.Context(ctx), nil
}

type query struct {
	css  string
	text string
}

// queries groups locator steps into element lookups: every step up to and
// including the next text filter becomes one descendant selector.
func queries(steps []locator.Step) []query {
	var (
		out []query
		css []string
	)
	for i, step := range steps {
		part := step.CSS
		if len(steps) > 1 && strings.Contains(part, ",") {
			part = ":is(" + part + ")"
		}
		css = append(css, part)
		if step.Text == "" && i < len(steps)-1 {
			continue
		}
		out = append(out, query{css: strings.Join(css, " "), text: step.Text})
		css = css[:0]
	}
	return out
}

// resolveError separates a locator that never matched from the caller's own
// deadline running out.
func resolveError(ctx context.Context, target locator.Locator, err error) error {
	if ctx.Err() != nil {
		return fmt.Errorf("resolving %s: %w", target, ctx.Err())
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return fmt.Errorf("%w: %s", ErrElementNotFound, target)
	}
	return fmt.Errorf("resolving %s: %w", target, err)
}

func textPattern(text string) string {
	return "/" + regexp.QuoteMeta(text) + "/"
}

func withTimeout(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, timeout)
}

// prepare sets the per-page overrides that must be in place before the
// first request leaves the tab.
func prepare(page *rod.Page, targetURL string, opts PageOptions) error {
	if ua := opts.UserAgent; ua != "" {
		err := page.SetUserAgent(&proto.NetworkSetUserAgentOverride{UserAgent: ua})
		if err != nil {
			return fmt.Errorf("user agent: %w", err)
		}
	}

	if n := len(opts.Headers); n > 0 {
		kv := make([]string, 0, 2*n)
		for k, v := range opts.Headers {
			kv = append(kv, k, v)
		}
		if _, err := page.SetExtraHeaders(kv); err != nil {
			return fmt.Errorf("extra headers: %w", err)
		}
	}

	if len(opts.Cookies) == 0 {
		return nil
	}
	cookies := make([]*proto.NetworkCookieParam, len(opts.Cookies))
	for i, c := range opts.Cookies {
		cookies[i] = c.toProto(targetURL)
	}
	if err := page.SetCookies(cookies); err != nil {
		return fmt.Errorf("cookies: %w", err)
	}
	return nil
}

// toProto converts c, scoping it to pageURL when it names neither a URL
// nor a domain.
func (c CookieParam) toProto(pageURL string) *proto.NetworkCookieParam {
	p := &proto.NetworkCookieParam{
		Name:     c.Name,
		Value:    c.Value,
		URL:      c.URL,
		Domain:   c.Domain,
		Path:     c.Path,
		Secure:   c.Secure,
		HTTPOnly: c.HTTPOnly,
	}
	if c.Expires > 0 {
		p.Expires = proto.TimeSinceEpoch(c.Expires)
	}
	if p.URL == "" && p.Domain == "" {
		if u, err := url.Parse(pageURL); err == nil {
			p.URL = u.String()
		}
	}
	return p
}

// navigate applies options, loads url and waits for it when asked.
func navigate(page *rod.Page, url string, opts PageOptions) error {
	if err := prepare(page, url, opts); err != nil {
		return fmt.Errorf("failed to prepare page: %w", err)
	}

	navCtx, cancel := withTimeout(page.GetContext(), opts.Timeout)
	defer cancel()
	nav := page.Context(navCtx)

	if err := nav.Navigate(url); err != nil {
		return fmt.Errorf("failed to navigate to %s: %w", url, err)
	}
	if opts.WaitForLoad {
		if err := nav.WaitLoad(); err != nil {
			return fmt.Errorf("failed to wait for page load: %w", err)
		}
	}
	return nil
}
