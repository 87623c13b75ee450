package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/noah-isme/explab-api/internal/models"
	"github.com/noah-isme/explab-api/internal/repository"
)

// EvaluationStore persists evaluations and serves history queries.
type EvaluationStore interface {
	Save(ctx context.Context, evaluation *models.Evaluation) error
	// FindLatestBySubmission returns nil without error for a submission that
	// has not been evaluated.
	FindLatestBySubmission(ctx context.Context, submissionID uint) (*models.Evaluation, error)
	FindHistory(ctx context.Context, userID, taskID uint) ([]models.Evaluation, error)
}

type evaluationStore struct {
	repo     repository.EvaluationRepository
	cache    *redis.Client
	cacheTTL time.Duration
	logger   zerolog.Logger
}

// NewEvaluationStore builds the store. A nil cache disables history caching.
func NewEvaluationStore(repo repository.EvaluationRepository, cache *redis.Client, ttl time.Duration, logger zerolog.Logger) EvaluationStore {
	return &evaluationStore{
		repo:     repo,
		cache:    cache,
		cacheTTL: ttl,
		logger:   logger.With().Str("component", "evaluation_store").Logger(),
	}
}

func historyCacheKey(userID, taskID uint) string {
	return fmt.Sprintf("evaluations:history:%d:%d", userID, taskID)
}

func (s *evaluationStore) Save(ctx context.Context, evaluation *models.Evaluation) error {
	if err := s.repo.Create(ctx, evaluation); err != nil {
		return err
	}

	if s.cache != nil {
		if err := s.cache.Del(ctx, historyCacheKey(evaluation.UserID, evaluation.TaskID)).Err(); err != nil {
			s.logger.Warn().Err(err).Msg("failed to invalidate evaluation history cache")
		}
	}
	return nil
}

func (s *evaluationStore) FindLatestBySubmission(ctx context.Context, submissionID uint) (*models.Evaluation, error) {
	return s.repo.FindLatestBySubmission(ctx, submissionID)
}

func (s *evaluationStore) FindHistory(ctx context.Context, userID, taskID uint) ([]models.Evaluation, error) {
	cacheKey := historyCacheKey(userID, taskID)

	if s.cache != nil {
		if cached, err := s.cache.Get(ctx, cacheKey).Result(); err == nil {
			var history []models.Evaluation
			if unmarshalErr := json.Unmarshal([]byte(cached), &history); unmarshalErr == nil {
				s.logger.Debug().Uint("user_id", userID).Uint("task_id", taskID).Msg("evaluation history cache hit")
				return history, nil
			}
		} else if !errors.Is(err, redis.Nil) {
			s.logger.Warn().Err(err).Msg("failed to read evaluation history cache")
		}
	}

	history, err := s.repo.FindHistory(ctx, userID, taskID)
	if err != nil {
		return nil, err
	}

	if s.cache != nil {
		if payload, err := json.Marshal(history); err == nil {
			if err := s.cache.Set(ctx, cacheKey, payload, s.cacheTTL).Err(); err != nil {
				s.logger.Warn().Err(err).Msg("failed to store evaluation history cache")
			}
		}
	}

	return history, nil
}
