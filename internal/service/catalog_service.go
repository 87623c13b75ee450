package service

import (
	"context"
	"errors"
	"strings"

	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/noah-isme/explab-api/internal/dto"
	"github.com/noah-isme/explab-api/internal/models"
	"github.com/noah-isme/explab-api/internal/repository"
)

// ErrExperimentNotFound indicates the requested experiment does not exist.
var ErrExperimentNotFound = errors.New("experiment not found")

// CatalogService exposes read access to experiments and their tasks.
type CatalogService interface {
	GetExperiment(ctx context.Context, id uint) (dto.ExperimentResponse, error)
	GetTask(ctx context.Context, id uint) (dto.TaskSummary, error)
}

type catalogService struct {
	repo   repository.CatalogRepository
	logger zerolog.Logger
}

// NewCatalogService builds a new catalog service.
func NewCatalogService(repo repository.CatalogRepository, logger zerolog.Logger) CatalogService {
	return &catalogService{
		repo:   repo,
		logger: logger.With().Str("component", "catalog_service").Logger(),
	}
}

func (s *catalogService) GetExperiment(ctx context.Context, id uint) (dto.ExperimentResponse, error) {
	experiment, err := s.repo.FindExperimentByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return dto.ExperimentResponse{}, ErrExperimentNotFound
		}
		return dto.ExperimentResponse{}, err
	}

	experiment.Title = strings.TrimSpace(experiment.Title)
	for i := range experiment.Tasks {
		experiment.Tasks[i] = sanitiseTask(experiment.Tasks[i])
	}
	return dto.NewExperimentResponse(experiment), nil
}

func (s *catalogService) GetTask(ctx context.Context, id uint) (dto.TaskSummary, error) {
	task, err := s.repo.FindTaskByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return dto.TaskSummary{}, ErrTaskNotFound
		}
		return dto.TaskSummary{}, err
	}

	return dto.NewTaskSummary(sanitiseTask(task)), nil
}

func sanitiseTask(task models.Task) models.Task {
	task.Title = strings.TrimSpace(task.Title)
	task.Type = strings.ToUpper(strings.TrimSpace(task.Type))
	return task
}
