package security

import (
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestLimiter(t *testing.T, cfg RateLimitConfig) (*RateLimiter, *time.Time) {
	rl := NewRateLimiter(cfg)
	t.Cleanup(rl.Stop)
	now := time.Unix(1_700_000_000, 0)
	rl.now = func() time.Time { return now }
	return rl, &now
}

func TestRateLimiterWindow(t *testing.T) {
	rl, now := newTestLimiter(t, RateLimitConfig{RequestsPerWindow: 2, WindowDuration: time.Minute})

	assert.True(t, rl.Allow("a"))
	*now = now.Add(2 * time.Second)
	assert.True(t, rl.Allow("a"))
	assert.False(t, rl.Allow("a"))
	assert.True(t, rl.Allow("b"))

	info := rl.Info("a")
	assert.Equal(t, 0, info.Remaining)
	assert.Equal(t, now.Add(-2*time.Second).Add(time.Minute), info.ResetAt)

	*now = now.Add(59 * time.Second)
	assert.True(t, rl.Allow("a"))

	rl.Reset("a")
	assert.Equal(t, 2, rl.Info("a").Remaining)
}

func TestRateLimiterBurst(t *testing.T) {
	rl, now := newTestLimiter(t, RateLimitConfig{RequestsPerWindow: 100, WindowDuration: time.Minute, BurstMax: 2})

	assert.True(t, rl.Allow("a"))
	assert.True(t, rl.Allow("a"))
	assert.False(t, rl.Allow("a"))

	*now = now.Add(1500 * time.Millisecond)
	assert.True(t, rl.Allow("a"))
}

func TestRateLimitMiddleware(t *testing.T) {
	rl, _ := newTestLimiter(t, RateLimitConfig{RequestsPerWindow: 1, WindowDuration: time.Minute})

	app := fiber.New()
	app.Use(Headers(), RateLimit(rl))
	app.Post("/runs", func(c *fiber.Ctx) error {
		return c.SendString(c.Locals(RequestIDKey).(string))
	})

	req := httptest.NewRequest("POST", "/runs", nil)
	req.Header.Set("X-API-Key", "ci")
	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.Equal(t, "1", resp.Header.Get("X-RateLimit-Limit"))
	assert.Equal(t, "nosniff", resp.Header.Get("X-Content-Type-Options"))
	assert.NotEmpty(t, resp.Header.Get("X-Request-ID"))

	req = httptest.NewRequest("POST", "/runs", nil)
	req.Header.Set("X-API-Key", "ci")
	req.Header.Set("X-Request-ID", "req-42")
	resp, err = app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusTooManyRequests, resp.StatusCode)
	assert.Equal(t, "req-42", resp.Header.Get("X-Request-ID"))
	assert.NotEmpty(t, resp.Header.Get("Retry-After"))

	req = httptest.NewRequest("POST", "/runs", nil)
	req.Header.Set("X-API-Key", "other")
	resp, err = app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
}
