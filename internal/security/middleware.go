package security

import (
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

// RequestIDKey is the fiber.Ctx local holding the request id
const RequestIDKey = "requestID"

// ClientKey identifies the caller: API key header first, then IP.
func ClientKey(c *fiber.Ctx) string {
	if key := c.Get("X-API-Key"); key != "" {
		return "key:" + key
	}
	return "ip:" + c.IP()
}

// RateLimit returns a middleware rejecting callers over rl's limits
func RateLimit(rl *RateLimiter) fiber.Handler {
	return func(c *fiber.Ctx) error {
		clientID := ClientKey(c)
		allowed := rl.Allow(clientID)
		info := rl.Info(clientID)

		c.Set("X-RateLimit-Limit", strconv.Itoa(info.Limit))
		c.Set("X-RateLimit-Remaining", strconv.Itoa(info.Remaining))
		c.Set("X-RateLimit-Reset", strconv.FormatInt(info.ResetAt.Unix(), 10))

		if !allowed {
			retryAfter := int64(time.Until(info.ResetAt).Seconds())
			if retryAfter < 1 {
				retryAfter = 1
			}
			c.Set("Retry-After", strconv.FormatInt(retryAfter, 10))
			return fiber.NewError(fiber.StatusTooManyRequests, "Rate limit exceeded")
		}

		return c.Next()
	}
}

// Headers sets defensive response headers and a request id, once per
// request even when mounted on nested groups.
func Headers() fiber.Handler {
	return func(c *fiber.Ctx) error {
		if c.Locals(RequestIDKey) != nil {
			return c.Next()
		}

		c.Set("X-Content-Type-Options", "nosniff")
		c.Set("X-Frame-Options", "DENY")
		c.Set("Referrer-Policy", "strict-origin-when-cross-origin")

		requestID := c.Get("X-Request-ID")
		if requestID == "" {
			requestID = uuid.NewString()
		}
		c.Set("X-Request-ID", requestID)
		c.Locals(RequestIDKey, requestID)

		return c.Next()
	}
}
