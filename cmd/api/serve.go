package main

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/noah-isme/explab-api/internal/handler"
	"github.com/noah-isme/explab-api/internal/middleware"
	"github.com/noah-isme/explab-api/internal/router"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API",
	RunE:  runServe,
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger := newLogger(cfg.AppEnv)

	application, err := buildApplication(cfg, logger)
	if err != nil {
		return err
	}
	defer application.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	application.notifications.Start(ctx)

	app := fiber.New(fiber.Config{
		AppName:      cfg.AppName,
		ServerHeader: cfg.AppName,
		// grading blocks on the judge
		ReadTimeout:  cfg.JudgeTimeout + 30*time.Second,
		WriteTimeout: cfg.JudgeTimeout + 30*time.Second,
	})

	middleware.Register(app, middleware.Config{Logger: &logger, AllowOrigins: cfg.AllowOrigins})
	router.Register(app, cfg, router.Dependencies{
		CatalogHandler:      handler.NewCatalogHandler(application.catalog, logger),
		SubmissionHandler:   handler.NewSubmissionHandler(application.submissions, logger),
		EvaluationHandler:   handler.NewEvaluationHandler(application.evaluations, application.reviews, logger),
		NotificationHandler: handler.NewNotificationHandler(application.notifications, logger, 30*time.Second),
		HealthProbes:        application.healthProbes(),
		JWTMiddleware:       middleware.JWTProtected(cfg.JWTSecret),
	})

	errCh := make(chan error, 1)
	go func() {
		errCh <- app.Listen(cfg.HTTPAddress())
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	return waitForShutdown(app, logger)
}

func waitForShutdown(app *fiber.App, logger zerolog.Logger) error {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := app.ShutdownWithContext(ctx); err != nil {
		logger.Error().Err(err).Msg("graceful shutdown failed")
		return err
	}

	logger.Info().Msg("server stopped")
	return nil
}
