package middleware

import (
	"runtime/debug"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/rs/zerolog"
)

// Config customises the shared middleware chain.
type Config struct {
	Logger       *zerolog.Logger
	AllowOrigins string
}

var (
	corsHeaders = []string{
		fiber.HeaderOrigin,
		fiber.HeaderContentType,
		fiber.HeaderAccept,
		fiber.HeaderAuthorization,
		CorrelationHeader,
	}
	corsExposed = []string{CorrelationHeader, fiber.HeaderRetryAfter}
)

// Register installs correlation ids, request telemetry, panic recovery and
// CORS ahead of every route. Recovery sits inside telemetry so a panic is
// recorded as the 500 it becomes.
func Register(app *fiber.App, cfg Config) {
	httpLogger := zerolog.Nop()
	if cfg.Logger != nil {
		httpLogger = cfg.Logger.With().Str("component", "http").Logger()
	}

	origins := strings.TrimSpace(cfg.AllowOrigins)
	if origins == "" {
		origins = "*"
	}

	app.Use(CorrelationID())
	app.Use(Observability(httpLogger))
	app.Use(recover.New(recover.Config{
		EnableStackTrace: true,
		StackTraceHandler: func(c *fiber.Ctx, value interface{}) {
			httpLogger.Error().
				Str("correlation_id", GetCorrelationID(c)).
				Interface("panic", value).
				Bytes("stack", debug.Stack()).
				Msg("handler panicked")
		},
	}))
	app.Use(cors.New(cors.Config{
		AllowOrigins:  origins,
		AllowHeaders:  strings.Join(corsHeaders, ", "),
		AllowMethods:  "GET,POST,PATCH,OPTIONS",
		ExposeHeaders: strings.Join(corsExposed, ", "),
	}))
}
