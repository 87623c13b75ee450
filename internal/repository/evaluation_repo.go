package repository

import (
	"context"

	"gorm.io/gorm"

	"github.com/noah-isme/explab-api/internal/models"
)

// EvaluationRepository persists evaluation outcomes.
type EvaluationRepository interface {
	Create(ctx context.Context, evaluation *models.Evaluation) error
	// FindLatestBySubmission returns nil without error when the submission has
	// not been evaluated yet.
	FindLatestBySubmission(ctx context.Context, submissionID uint) (*models.Evaluation, error)
	FindHistory(ctx context.Context, userID, taskID uint) ([]models.Evaluation, error)
}

type evaluationRepository struct {
	db *gorm.DB
}

// NewEvaluationRepository instantiates the repository.
func NewEvaluationRepository(db *gorm.DB) EvaluationRepository {
	return &evaluationRepository{db: db}
}

func (r *evaluationRepository) Create(ctx context.Context, evaluation *models.Evaluation) error {
	return r.db.WithContext(ctx).Create(evaluation).Error
}

func (r *evaluationRepository) FindLatestBySubmission(ctx context.Context, submissionID uint) (*models.Evaluation, error) {
	var evaluations []models.Evaluation
	if err := r.db.WithContext(ctx).
		Where("submission_id = ?", submissionID).
		Order("created_at DESC").
		Order("id DESC").
		Limit(1).
		Find(&evaluations).Error; err != nil {
		return nil, err
	}
	if len(evaluations) == 0 {
		return nil, nil
	}
	return &evaluations[0], nil
}

func (r *evaluationRepository) FindHistory(ctx context.Context, userID, taskID uint) ([]models.Evaluation, error) {
	var evaluations []models.Evaluation
	if err := r.db.WithContext(ctx).
		Where("user_id = ? AND task_id = ?", userID, taskID).
		Order("created_at DESC").
		Order("id DESC").
		Find(&evaluations).Error; err != nil {
		return nil, err
	}
	return evaluations, nil
}
