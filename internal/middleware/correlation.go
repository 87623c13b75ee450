package middleware

import (
	"context"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

// CorrelationHeader carries the request correlation id in both directions.
const CorrelationHeader = "X-Correlation-ID"

const (
	correlationLocal     = "correlation_id"
	maxCorrelationLength = 128
)

type correlationKey struct{}

// CorrelationID tags every request with an id that follows it into service
// logs and evaluation diagnostics. A caller supplied X-Correlation-ID or
// X-Request-ID is reused when it is short enough; otherwise a UUID is minted.
func CorrelationID() fiber.Handler {
	return func(c *fiber.Ctx) error {
		id := incomingCorrelationID(c)
		if id == "" {
			id = uuid.NewString()
		}

		c.Locals(correlationLocal, id)
		c.Set(CorrelationHeader, id)
		c.SetUserContext(ContextWithCorrelation(c.UserContext(), id))

		return c.Next()
	}
}

func incomingCorrelationID(c *fiber.Ctx) string {
	for _, header := range []string{CorrelationHeader, fiber.HeaderXRequestID} {
		value := strings.TrimSpace(c.Get(header))
		if value != "" && len(value) <= maxCorrelationLength {
			return value
		}
	}
	return ""
}

// CorrelationIDFromContext returns the id stored by ContextWithCorrelation.
func CorrelationIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	id, _ := ctx.Value(correlationKey{}).(string)
	return id
}

// GetCorrelationID returns the id bound to the active request.
func GetCorrelationID(c *fiber.Ctx) string {
	if c == nil {
		return ""
	}
	if id, ok := c.Locals(correlationLocal).(string); ok {
		return id
	}
	return CorrelationIDFromContext(c.UserContext())
}

// ContextWithCorrelation attaches the id to ctx. Blank ids leave ctx untouched.
func ContextWithCorrelation(ctx context.Context, correlationID string) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	correlationID = strings.TrimSpace(correlationID)
	if correlationID == "" {
		return ctx
	}
	return context.WithValue(ctx, correlationKey{}, correlationID)
}
