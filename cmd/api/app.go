package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/spf13/afero"
	"gorm.io/gorm"

	"github.com/noah-isme/explab-api/internal/config"
	"github.com/noah-isme/explab-api/internal/database"
	"github.com/noah-isme/explab-api/internal/handler"
	"github.com/noah-isme/explab-api/internal/repository"
	"github.com/noah-isme/explab-api/internal/service"
	"github.com/noah-isme/explab-api/pkg/ai"
	cloud "github.com/noah-isme/explab-api/pkg/cloudinary"
	dockerexec "github.com/noah-isme/explab-api/pkg/docker"
	"github.com/noah-isme/explab-api/pkg/judge"
	"github.com/noah-isme/explab-api/pkg/localstore"
)

// application holds the wired services shared by every command.
type application struct {
	cfg           config.Config
	logger        zerolog.Logger
	db            *gorm.DB
	redis         *redis.Client
	nats          *nats.Conn
	catalog       service.CatalogService
	submissions   service.SubmissionService
	evaluations   service.EvaluationService
	reviews       service.ReviewService
	notifications service.NotificationService
	closers       []func() error
}

func newLogger(env string) zerolog.Logger {
	level := zerolog.InfoLevel
	if env == "development" {
		level = zerolog.DebugLevel
	}
	return zerolog.New(os.Stdout).Level(level).With().Timestamp().Logger()
}

// connect opens the database only; migrate needs nothing else.
func connect(cfg config.Config, logger zerolog.Logger) (*gorm.DB, error) {
	db, err := database.Connect(cfg.DatabaseDriver, cfg.DatabaseURL)
	if err != nil {
		return nil, err
	}
	logger.Info().Str("driver", cfg.DatabaseDriver).Msg("database connected")
	return db, nil
}

func buildApplication(cfg config.Config, logger zerolog.Logger) (*application, error) {
	db, err := connect(cfg, logger)
	if err != nil {
		return nil, err
	}

	app := &application{cfg: cfg, logger: logger, db: db}

	if cfg.RedisURL != "" {
		client, err := database.ConnectRedis(context.Background(), cfg.RedisURL, "explab-api")
		if err != nil {
			return nil, err
		}
		app.redis = client
		app.closers = append(app.closers, client.Close)
	} else {
		logger.Warn().Msg("redis url not configured, history cache and cross-node notifications disabled")
	}

	if cfg.NATSURL != "" {
		conn, err := database.ConnectNATS(cfg.NATSURL, cfg.AppName)
		if err != nil {
			return nil, err
		}
		app.nats = conn
		app.closers = append(app.closers, func() error { conn.Close(); return nil })
	}

	store, err := buildObjectStore(cfg, logger)
	if err != nil {
		return nil, err
	}

	runner, err := buildRunner(cfg, logger)
	if err != nil {
		return nil, err
	}
	if closer, ok := runner.(interface{ Close() error }); ok {
		app.closers = append(app.closers, closer.Close)
	}

	var reviewer ai.Reviewer
	if cfg.OpenAIAPIKey != "" {
		openAI, err := ai.NewOpenAIReviewer(ai.OpenAIConfig{
			APIKey:  cfg.OpenAIAPIKey,
			BaseURL: cfg.OpenAIBaseURL,
			Model:   cfg.OpenAIModel,
			Logger:  logger,
		})
		if err != nil {
			return nil, err
		}
		reviewer = openAI
	}

	validate := validator.New(validator.WithRequiredStructEnabled())

	catalogRepo := repository.NewCatalogRepository(db)
	questionRepo := repository.NewQuestionRepository(db)
	submissionRepo := repository.NewSubmissionRepository(db)
	evaluationRepo := repository.NewEvaluationRepository(db)
	notificationRepo := repository.NewNotificationRepository(db)

	evaluationStore := service.NewEvaluationStore(evaluationRepo, app.redis, cfg.HistoryCacheTTL, logger)
	app.catalog = service.NewCatalogService(catalogRepo, logger)
	app.notifications = service.NewNotificationService(notificationRepo, app.redis, "explab", app.nats, validate, logger)
	app.submissions = service.NewSubmissionService(catalogRepo, submissionRepo, store, validate, logger)
	app.evaluations = service.NewEvaluationService(
		catalogRepo,
		submissionRepo,
		service.NewQuizGrader(questionRepo, logger),
		service.NewCodeEvaluator(store, runner, cfg.JudgeLimits(), logger),
		evaluationStore,
		app.notifications,
		logger,
	)
	app.reviews = service.NewReviewService(catalogRepo, submissionRepo, store, evaluationStore, reviewer, validate, logger)

	return app, nil
}

func buildObjectStore(cfg config.Config, logger zerolog.Logger) (service.ObjectStore, error) {
	switch cfg.StorageDriver {
	case config.StorageLocal:
		fs := afero.NewOsFs()
		if err := fs.MkdirAll(cfg.StorageRoot, 0o755); err != nil {
			return nil, fmt.Errorf("create storage root: %w", err)
		}
		return localstore.New(fs, cfg.StorageRoot, logger), nil
	default:
		return cloud.New(cloud.Config{
			CloudName: cfg.CloudinaryCloudName,
			APIKey:    cfg.CloudinaryAPIKey,
			APISecret: cfg.CloudinaryAPISecret,
			Folder:    cfg.CloudinaryUploadFolder,
		}, logger)
	}
}

func buildRunner(cfg config.Config, logger zerolog.Logger) (judge.Runner, error) {
	switch cfg.JudgeDriver {
	case config.JudgeDocker:
		return dockerexec.NewRunner(dockerexec.Config{
			Host:   cfg.DockerHost,
			Image:  cfg.DockerImage,
			Logger: logger,
		})
	default:
		return judge.NewHTTPClient(judge.HTTPConfig{
			Endpoint: cfg.JudgeURL,
			Timeout:  cfg.JudgeTimeout,
			Logger:   logger,
		}), nil
	}
}

func (a *application) healthProbes() map[string]handler.HealthProbe {
	probes := map[string]handler.HealthProbe{
		"database": func(ctx context.Context) error {
			sqlDB, err := a.db.DB()
			if err != nil {
				return err
			}
			return sqlDB.PingContext(ctx)
		},
	}
	if a.redis != nil {
		probes["redis"] = func(ctx context.Context) error {
			return a.redis.Ping(ctx).Err()
		}
	}
	if a.nats != nil {
		probes["nats"] = func(ctx context.Context) error {
			if !a.nats.IsConnected() {
				return errors.New(a.nats.Status().String())
			}
			return nil
		}
	}
	return probes
}

func (a *application) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			a.logger.Warn().Err(err).Msg("failed to close dependency")
		}
	}
	if sqlDB, err := a.db.DB(); err == nil {
		_ = sqlDB.Close()
	}
}

const shutdownTimeout = 5 * time.Second
