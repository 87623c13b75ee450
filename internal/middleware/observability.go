package middleware

import (
	"strconv"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/noah-isme/explab-api/internal/observability"
)

// Only the versioned API is measured; health and scrape endpoints are not.
const apiPrefix = "/api/v2"

// Observability records request counters and latency for API routes and
// writes one structured log line per request.
func Observability(logger zerolog.Logger) fiber.Handler {
	observability.RegisterMetrics()

	return func(c *fiber.Ctx) error {
		start := time.Now()
		if err := c.Next(); err != nil {
			// resolve the error now so the recorded status is the one sent
			if handlerErr := c.App().ErrorHandler(c, err); handlerErr != nil {
				_ = c.SendStatus(fiber.StatusInternalServerError)
			}
		}

		if strings.HasPrefix(c.Path(), apiPrefix) {
			observeRequest(logger, c, time.Since(start))
		}
		return nil
	}
}

func observeRequest(logger zerolog.Logger, c *fiber.Ctx, elapsed time.Duration) {
	route := c.Path()
	if r := c.Route(); r != nil && r.Path != "" {
		route = r.Path
	}
	method := c.Method()
	status := c.Response().StatusCode()
	code := strconv.Itoa(status)

	observability.APIRequests().WithLabelValues(method, route, code).Inc()
	observability.APILatency().WithLabelValues(method, route).Observe(elapsed.Seconds())

	event, msg := logger.Info(), "request completed"
	switch {
	case status >= fiber.StatusInternalServerError:
		event, msg = logger.Error(), "request failed"
	case status >= fiber.StatusBadRequest:
		event, msg = logger.Warn(), "request rejected"
	}
	if status >= fiber.StatusBadRequest {
		observability.APIErrors().WithLabelValues(method, route, code).Inc()
	}

	if userID, ok := c.Locals("user_id").(uint); ok {
		event = event.Uint("user_id", userID)
	}
	event.
		Str("correlation_id", GetCorrelationID(c)).
		Str("method", method).
		Str("route", route).
		Int("status", status).
		Dur("latency", elapsed).
		Msg(msg)
}
