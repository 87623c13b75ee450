package router

import (
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/noah-isme/explab-api/internal/config"
	"github.com/noah-isme/explab-api/internal/handler"
	"github.com/noah-isme/explab-api/internal/middleware"
	"github.com/noah-isme/explab-api/internal/observability"
)

// Dependencies groups router dependencies for registration.
type Dependencies struct {
	CatalogHandler      *handler.CatalogHandler
	SubmissionHandler   *handler.SubmissionHandler
	EvaluationHandler   *handler.EvaluationHandler
	NotificationHandler *handler.NotificationHandler
	HealthProbes        map[string]handler.HealthProbe
	JWTMiddleware       fiber.Handler
}

// Register wires the HTTP routes into the fiber application.
func Register(app *fiber.App, cfg config.Config, deps Dependencies) {
	api := app.Group("/api/v1", func(c *fiber.Ctx) error {
		c.Set("X-Application", cfg.AppName)
		return c.Next()
	})
	api.Get("/health", handler.HealthCheck(cfg, deps.HealthProbes))
	app.Get("/metrics", observability.MetricsHandler())

	// Use provided JWT middleware, or a no-op if nil
	jwtMiddleware := deps.JWTMiddleware
	if jwtMiddleware == nil {
		jwtMiddleware = func(c *fiber.Ctx) error { return c.Next() }
	}
	staff := middleware.RequireRole(middleware.StaffRoles...)

	v2 := app.Group("/api/v2", jwtMiddleware)
	tasks := v2.Group("/tasks")
	submissions := v2.Group("/submissions")

	if deps.CatalogHandler != nil {
		deps.CatalogHandler.Register(v2.Group("/experiments"), tasks)
	}

	if deps.SubmissionHandler != nil {
		window := cfg.SubmissionRateWindow
		if window <= 0 {
			window = time.Minute
		}
		deps.SubmissionHandler.Register(tasks, submissions, middleware.RateLimit("submissions", cfg.SubmissionRateLimit, window))
	}

	if deps.EvaluationHandler != nil {
		deps.EvaluationHandler.Register(tasks, submissions, staff)
	}

	if deps.NotificationHandler != nil {
		deps.NotificationHandler.Register(v2.Group("/notifications"), staff)
	}
}
