package api

import (
	"time"

	"github.com/ahrdadan/uicheck/internal/queue"
	"github.com/ahrdadan/uicheck/internal/security"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
)

// RouteConfig holds configuration for the run routes
type RouteConfig struct {
	BaseURL    string        // Base URL for full URLs in responses
	MaxRetries int           // retries for runs hitting browser errors
	ResultTTL  time.Duration // how long run results are kept
	RateLimit  security.RateLimitConfig
}

// DefaultRouteConfig returns default route configuration
func DefaultRouteConfig() RouteConfig {
	return RouteConfig{
		BaseURL:    "http://localhost:8000",
		MaxRetries: queue.DefaultMaxRetries,
		ResultTTL:  queue.DefaultResultTTL,
		RateLimit:  security.DefaultRateLimitConfig(),
	}
}

// SetupRoutes registers health, browser and fixture routes
func SetupRoutes(app *fiber.App, handler *Handler) {
	app.Get("/health", handler.HealthCheck)

	g := app.Group("/uicheck", security.Headers())
	g.Get("/browser/status", handler.BrowserStatus)
	g.Get("/fixtures", handler.ListFixtures)
	g.Get("/fixtures/:name", handler.GetFixture)
	g.Post("/fixtures/:name/run", handler.RunFixture)
}

// SetupRunRoutes registers the queued run routes. The returned limiter
// should be stopped on shutdown.
func SetupRunRoutes(app *fiber.App, runs *RunHandler) *security.RateLimiter {
	limiter := security.NewRateLimiter(runs.config.RateLimit)

	g := app.Group("/uicheck/runs", security.Headers())
	g.Post("", security.RateLimit(limiter), runs.CreateRun)
	g.Get("", runs.ListRuns)
	g.Get("/:run_id", runs.GetRun)
	g.Get("/:run_id/result", runs.GetRunResult)
	g.Post("/:run_id/cancel", runs.CancelRun)
	g.Get("/:run_id/events", runs.StreamEvents)

	app.Use("/uicheck/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	app.Get("/uicheck/ws", websocket.New(runs.HandleWebSocket))

	return limiter
}
