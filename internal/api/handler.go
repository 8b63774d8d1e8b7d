package api

import (
	"errors"
	"net/url"
	"time"

	"github.com/ahrdadan/uicheck/internal/browser"
	"github.com/ahrdadan/uicheck/internal/fixture"
	"github.com/ahrdadan/uicheck/internal/runner"
	"github.com/ahrdadan/uicheck/internal/suites"
	"github.com/gofiber/fiber/v2"
)

// maxTestTimeout caps per-test timeouts requested over HTTP
const maxTestTimeout = 10 * time.Minute

// Handler serves fixture listings and synchronous runs
type Handler struct {
	browser  browser.Client // nil when no browser could be started
	registry *suites.Registry
	opts     runner.Options
}

// NewHandler creates a new handler
func NewHandler(client browser.Client, registry *suites.Registry, opts runner.Options) *Handler {
	return &Handler{
		browser:  client,
		registry: registry,
		opts:     opts,
	}
}

// Response represents a standard API response
type Response struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
}

// ErrorHandler is the custom error handler for Fiber
func ErrorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	var e *fiber.Error
	if errors.As(err, &e) {
		code = e.Code
	}

	return c.Status(code).JSON(Response{
		Success: false,
		Error:   err.Error(),
	})
}

// HealthCheck returns health status
func (h *Handler) HealthCheck(c *fiber.Ctx) error {
	return c.JSON(Response{
		Success: true,
		Data: map[string]interface{}{
			"status":    "ok",
			"browser":   h.browserReady(),
			"fixtures":  len(h.registry.All()),
			"timestamp": time.Now().UTC().Format(time.RFC3339),
		},
	})
}

// BrowserStatus returns browser status
func (h *Handler) BrowserStatus(c *fiber.Ctx) error {
	if h.browser == nil {
		return fiber.NewError(fiber.StatusServiceUnavailable, "Browser not available")
	}
	return c.JSON(Response{
		Success: true,
		Data: map[string]interface{}{
			"running":  h.browser.IsRunning(),
			"endpoint": h.browser.GetEndpoint(),
		},
	})
}

func (h *Handler) browserReady() bool {
	return h.browser != nil && h.browser.IsRunning()
}

// TestInfo describes a declared test and the steps its body records
type TestInfo struct {
	Name    string   `json:"name"`
	Skip    bool     `json:"skip,omitempty"`
	Steps   []string `json:"steps"`
	Defects []string `json:"defects,omitempty"`
}

// FixtureInfo describes a registered fixture
type FixtureInfo struct {
	Name  string     `json:"name"`
	URL   string     `json:"url"`
	Valid bool       `json:"valid"`
	Error string     `json:"error,omitempty"`
	Tests []TestInfo `json:"tests"`
}

func describeFixture(f *fixture.Fixture) FixtureInfo {
	info := FixtureInfo{Name: f.Name(), URL: f.URL(), Valid: true, Tests: []TestInfo{}}
	if err := f.Validate(); err != nil {
		info.Valid = false
		info.Error = err.Error()
	}

	for _, t := range f.Tests() {
		plan := f.Plan(t)
		ti := TestInfo{Name: t.Name, Skip: t.Skip, Steps: make([]string, 0, len(plan.Steps)), Defects: plan.Defects}
		for _, s := range plan.Steps {
			ti.Steps = append(ti.Steps, s.String())
		}
		info.Tests = append(info.Tests, ti)
	}
	return info
}

// ListFixtures lists every registered fixture with its planned steps
// GET /uicheck/fixtures
func (h *Handler) ListFixtures(c *fiber.Ctx) error {
	fixtures := h.registry.All()
	out := make([]FixtureInfo, 0, len(fixtures))
	for _, f := range fixtures {
		out = append(out, describeFixture(f))
	}
	return c.JSON(Response{Success: true, Data: out})
}

// GetFixture describes one fixture
// GET /uicheck/fixtures/:name
func (h *Handler) GetFixture(c *fiber.Ctx) error {
	f, err := h.lookupFixture(c)
	if err != nil {
		return err
	}
	return c.JSON(Response{Success: true, Data: describeFixture(f)})
}

// RunFixtureRequest narrows a synchronous run
type RunFixtureRequest struct {
	Test        string `json:"test,omitempty"`
	TestTimeout int    `json:"test_timeout,omitempty"` // seconds
}

// RunFixture runs a fixture and waits for the report. Failed tests are
// reported with success true; the report carries the verdicts.
// POST /uicheck/fixtures/:name/run
func (h *Handler) RunFixture(c *fiber.Ctx) error {
	f, err := h.lookupFixture(c)
	if err != nil {
		return err
	}

	var req RunFixtureRequest
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&req); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "Invalid request body")
		}
	}
	if req.Test != "" {
		if _, err := f.Lookup(req.Test); err != nil {
			return fiber.NewError(fiber.StatusNotFound, err.Error())
		}
	}

	if !h.browserReady() {
		return fiber.NewError(fiber.StatusServiceUnavailable, "Browser not available")
	}

	opts := h.opts
	opts.TestFilter = req.Test
	if req.TestTimeout > 0 {
		opts.TestTimeout = min(time.Duration(req.TestTimeout)*time.Second, maxTestTimeout)
	}

	report := runner.New(h.browser, opts).RunFixture(c.UserContext(), f, nil)
	return c.JSON(Response{Success: true, Data: report})
}

func (h *Handler) lookupFixture(c *fiber.Ctx) (*fixture.Fixture, error) {
	name, err := url.PathUnescape(c.Params("name"))
	if err != nil || name == "" {
		return nil, fiber.NewError(fiber.StatusBadRequest, "Invalid fixture name")
	}
	f, err := h.registry.Get(name)
	if err != nil {
		return nil, fiber.NewError(fiber.StatusNotFound, err.Error())
	}
	return f, nil
}
