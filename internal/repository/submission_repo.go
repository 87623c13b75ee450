package repository

import (
	"context"

	"gorm.io/gorm"

	"github.com/noah-isme/explab-api/internal/models"
)

// SubmissionRepository persists task submissions. Submissions are append-only;
// a resubmission is a new row.
type SubmissionRepository interface {
	Create(ctx context.Context, submission *models.Submission) error
	GetByID(ctx context.Context, id uint) (models.Submission, error)
	GetLatestByTaskAndUser(ctx context.Context, taskID, userID uint) (models.Submission, error)
	ListByTaskAndUser(ctx context.Context, taskID, userID uint) ([]models.Submission, error)
}

type submissionRepository struct {
	db *gorm.DB
}

// NewSubmissionRepository instantiates the repository.
func NewSubmissionRepository(db *gorm.DB) SubmissionRepository {
	return &submissionRepository{db: db}
}

// newestFirst scopes a query to one user's attempts at a task. Ties on
// submitted_at fall back to insertion order.
func newestFirst(taskID, userID uint) func(*gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB {
		return db.Where(map[string]interface{}{"task_id": taskID, "user_id": userID}).
			Order("submitted_at DESC").
			Order("id DESC")
	}
}

func (r *submissionRepository) Create(ctx context.Context, submission *models.Submission) error {
	return r.db.WithContext(ctx).Create(submission).Error
}

func (r *submissionRepository) GetByID(ctx context.Context, id uint) (models.Submission, error) {
	var submission models.Submission
	err := r.db.WithContext(ctx).First(&submission, id).Error
	return submission, err
}

func (r *submissionRepository) GetLatestByTaskAndUser(ctx context.Context, taskID, userID uint) (models.Submission, error) {
	var submission models.Submission
	err := r.db.WithContext(ctx).Scopes(newestFirst(taskID, userID)).Take(&submission).Error
	return submission, err
}

func (r *submissionRepository) ListByTaskAndUser(ctx context.Context, taskID, userID uint) ([]models.Submission, error) {
	var submissions []models.Submission
	if err := r.db.WithContext(ctx).Scopes(newestFirst(taskID, userID)).Find(&submissions).Error; err != nil {
		return nil, err
	}
	return submissions, nil
}
