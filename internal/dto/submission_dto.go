package dto

import (
	"encoding/json"
	"time"

	"github.com/noah-isme/explab-api/internal/answer"
	"github.com/noah-isme/explab-api/internal/models"
)

// SubmissionFile is one named source file of a code submission. Names may
// contain forward slashes to describe a directory tree.
type SubmissionFile struct {
	Name    string `json:"name" validate:"required,max=255"`
	Content string `json:"content" validate:"max=1048576"`
}

// SubmissionCreateRequest is the payload accepted for a task submission. Quiz
// tasks use Answer; code tasks use Files or a single Code blob.
type SubmissionCreateRequest struct {
	ExperimentID uint             `json:"experiment_id" validate:"required,gt=0"`
	Answer       json.RawMessage  `json:"answer"`
	Code         *string          `json:"code" validate:"omitempty,max=1048576"`
	Files        []SubmissionFile `json:"files" validate:"omitempty,max=50,dive"`
}

// SubmissionResponse is returned after a submission has been recorded.
type SubmissionResponse struct {
	ID           uint          `json:"id"`
	TaskID       uint          `json:"task_id"`
	UserID       uint          `json:"user_id"`
	ExperimentID uint          `json:"experiment_id"`
	Answer       answer.Answer `json:"answer"`
	SubmittedAt  time.Time     `json:"submitted_at"`
}

// NewSubmissionResponse converts a Submission model into a DTO. The stored
// answer is echoed as parsed JSON when possible and as raw text otherwise.
func NewSubmissionResponse(model models.Submission) SubmissionResponse {
	return SubmissionResponse{
		ID:           model.ID,
		TaskID:       model.TaskID,
		UserID:       model.UserID,
		ExperimentID: model.ExperimentID,
		Answer:       answer.ParseText(model.Answer),
		SubmittedAt:  model.SubmittedAt,
	}
}
