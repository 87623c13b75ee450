package service

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
	"gorm.io/datatypes"

	"github.com/noah-isme/explab-api/internal/dto"
	"github.com/noah-isme/explab-api/internal/models"
	"github.com/noah-isme/explab-api/internal/repository"
)

// SeedService loads catalog content from seed documents.
type SeedService interface {
	SeedCatalog(ctx context.Context, seed dto.CatalogSeed) (int64, error)
}

type seedService struct {
	writer    repository.CatalogWriter
	validator *validator.Validate
	logger    zerolog.Logger
}

// NewSeedService constructs a seeding service.
func NewSeedService(writer repository.CatalogWriter, validate *validator.Validate, logger zerolog.Logger) SeedService {
	return &seedService{
		writer:    writer,
		validator: validate,
		logger:    logger.With().Str("component", "seed_service").Logger(),
	}
}

func (s *seedService) SeedCatalog(ctx context.Context, seed dto.CatalogSeed) (int64, error) {
	if err := s.validator.Struct(seed); err != nil {
		return 0, err
	}

	questions := make([]models.Question, 0, len(seed.Questions))
	known := make(map[string]struct{}, len(seed.Questions))
	for _, item := range seed.Questions {
		id := strings.TrimSpace(item.ID)
		if !json.Valid(item.Answer) {
			return 0, fmt.Errorf("%w: question %s answer is not JSON", ErrInvalidAnswer, id)
		}
		known[id] = struct{}{}
		questions = append(questions, models.Question{
			ID:      id,
			Content: strings.TrimSpace(item.Content),
			Answer:  datatypes.JSON(item.Answer),
		})
	}

	tasks := make([]models.Task, 0, len(seed.Tasks))
	for _, item := range seed.Tasks {
		task := sanitiseTask(models.Task{
			ID:          item.ID,
			Title:       item.Title,
			Type:        item.Type,
			Position:    item.Position,
			Required:    item.Required,
			QuestionIDs: datatypes.JSONSlice[string](item.QuestionIDs),
		})
		for _, questionID := range task.Questions() {
			if _, ok := known[questionID]; !ok {
				// graded as a skipped question
				s.logger.Warn().Uint("task_id", task.ID).Str("question_id", questionID).Msg("task references a question missing from the seed")
			}
		}
		tasks = append(tasks, task)
	}

	experiment := models.Experiment{
		ID:          seed.Experiment.ID,
		Title:       strings.TrimSpace(seed.Experiment.Title),
		Description: strings.TrimSpace(seed.Experiment.Description),
	}

	affected, err := s.writer.UpsertCatalog(ctx, &experiment, tasks, questions)
	if err != nil {
		return 0, err
	}

	s.logger.Info().Uint("experiment_id", experiment.ID).Int("tasks", len(tasks)).Int("questions", len(questions)).Int64("affected", affected).Msg("catalog seeded")
	return affected, nil
}
