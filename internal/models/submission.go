package models

import "time"

// Submission is one recorded attempt of a student for a task. Rows are never
// updated; re-submitting creates a new row and the newest one is graded.
type Submission struct {
	ID           uint      `gorm:"primaryKey" json:"id"`
	TaskID       uint      `gorm:"not null;index:idx_submission_task_user" json:"task_id"`
	UserID       uint      `gorm:"not null;index:idx_submission_task_user" json:"user_id"`
	ExperimentID uint      `gorm:"not null" json:"experiment_id"`
	Answer       string    `gorm:"type:text" json:"answer"`
	SubmittedAt  time.Time `gorm:"not null" json:"submitted_at"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// CodePayload is the answer payload stored for CODE task submissions.
type CodePayload struct {
	Files     []string `json:"files"`
	FileCount int      `json:"file_count"`
	FileNames []string `json:"file_names"`
}
