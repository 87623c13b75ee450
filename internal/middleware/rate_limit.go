package middleware

import (
	"math"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/limiter"

	"github.com/noah-isme/explab-api/internal/observability"
	"github.com/noah-isme/explab-api/internal/utils"
)

// RateLimit caps how often one user may hit the guarded route within window.
// Anonymous callers share a bucket per IP. Rejections carry Retry-After and
// are counted under the identifier.
func RateLimit(identifier string, max int, window time.Duration) fiber.Handler {
	if max <= 0 {
		max = 10
	}
	if window <= 0 {
		window = time.Minute
	}
	retryAfter := strconv.Itoa(int(math.Ceil(window.Seconds())))

	return limiter.New(limiter.Config{
		Max:        max,
		Expiration: window,
		KeyGenerator: func(c *fiber.Ctx) string {
			if id, ok := c.Locals("user_id").(uint); ok && id != 0 {
				return identifier + ":user:" + strconv.FormatUint(uint64(id), 10)
			}
			return identifier + ":ip:" + c.IP()
		},
		LimitReached: func(c *fiber.Ctx) error {
			observability.RecordRateLimited(identifier)
			c.Set(fiber.HeaderRetryAfter, retryAfter)
			return utils.Fail(c, fiber.StatusTooManyRequests, "too many requests", fiber.Map{"limit": max, "window": window.String()})
		},
	})
}
