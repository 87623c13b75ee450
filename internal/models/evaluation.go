package models

import "time"

const (
	// EvaluationStatusEvaluated is used for rule based (quiz) grading results.
	EvaluationStatusEvaluated = "EVALUATED"
	// EvaluationStatusSuccess means the judge run produced no stderr output.
	EvaluationStatusSuccess = "SUCCESS"
	// EvaluationStatusFailed means the judge run wrote to stderr.
	EvaluationStatusFailed = "FAILED"
	// EvaluationStatusError means grading could not complete.
	EvaluationStatusError = "ERROR"
)

// Evaluation is the graded outcome of a submission. Evaluations are append-only.
type Evaluation struct {
	ID           uint      `gorm:"primaryKey" json:"id"`
	SubmissionID uint      `gorm:"not null;index" json:"submission_id"`
	UserID       uint      `gorm:"not null;index:idx_evaluation_user_task" json:"user_id"`
	TaskID       uint      `gorm:"not null;index:idx_evaluation_user_task" json:"task_id"`
	Score        *float64  `json:"score"`
	Status       string    `gorm:"size:16;not null" json:"status"`
	Diagnostic   string    `gorm:"type:text" json:"diagnostic"`
	Feedback     string    `gorm:"type:text" json:"feedback"`
	AuxInfo      string    `gorm:"type:text" json:"aux_info"`
	CreatedAt    time.Time `json:"created_at"`
}

// IsPending reports whether no score has been assigned yet.
func (e Evaluation) IsPending() bool {
	return e.Score == nil
}
