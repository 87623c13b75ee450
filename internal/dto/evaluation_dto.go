package dto

import (
	"time"

	"github.com/noah-isme/explab-api/internal/models"
)

// EvaluationResponse serializes an evaluation outcome.
type EvaluationResponse struct {
	ID           uint      `json:"id"`
	SubmissionID uint      `json:"submission_id"`
	UserID       uint      `json:"user_id"`
	TaskID       uint      `json:"task_id"`
	Score        *float64  `json:"score"`
	Status       string    `json:"status"`
	Diagnostic   string    `json:"diagnostic"`
	Feedback     string    `json:"feedback"`
	AuxInfo      string    `json:"aux_info"`
	CreatedAt    time.Time `json:"created_at"`
}

// ReviewRequest carries optional reviewer instructions for an AI review.
type ReviewRequest struct {
	Instructions string `json:"instructions" validate:"omitempty,max=2000"`
}

// NewEvaluationResponse converts a model into a DTO.
func NewEvaluationResponse(model models.Evaluation) EvaluationResponse {
	return EvaluationResponse{
		ID:           model.ID,
		SubmissionID: model.SubmissionID,
		UserID:       model.UserID,
		TaskID:       model.TaskID,
		Score:        model.Score,
		Status:       model.Status,
		Diagnostic:   model.Diagnostic,
		Feedback:     model.Feedback,
		AuxInfo:      model.AuxInfo,
		CreatedAt:    model.CreatedAt,
	}
}

// NewEvaluationResponseSlice converts evaluation models into DTOs.
func NewEvaluationResponseSlice(evaluations []models.Evaluation) []EvaluationResponse {
	out := make([]EvaluationResponse, 0, len(evaluations))
	for _, evaluation := range evaluations {
		out = append(out, NewEvaluationResponse(evaluation))
	}
	return out
}
