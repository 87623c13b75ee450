package repository

import (
	"context"

	"gorm.io/gorm"

	"github.com/noah-isme/explab-api/internal/models"
)

// QuestionRepository serves canonical answers for quiz questions.
type QuestionRepository interface {
	GetQuestionsByIDs(ctx context.Context, ids []string) ([]models.Question, error)
}

type questionRepository struct {
	db *gorm.DB
}

// NewQuestionRepository instantiates the repository.
func NewQuestionRepository(db *gorm.DB) QuestionRepository {
	return &questionRepository{db: db}
}

func (r *questionRepository) GetQuestionsByIDs(ctx context.Context, ids []string) ([]models.Question, error) {
	if len(ids) == 0 {
		return []models.Question{}, nil
	}

	var questions []models.Question
	if err := r.db.WithContext(ctx).Where("id IN ?", ids).Find(&questions).Error; err != nil {
		return nil, err
	}
	return questions, nil
}
