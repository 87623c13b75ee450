package models

import (
	"strings"
	"time"

	"gorm.io/datatypes"
)

// Experiment groups an ordered set of tasks students work through.
type Experiment struct {
	ID          uint      `gorm:"primaryKey" json:"id"`
	Title       string    `gorm:"size:255;not null" json:"title"`
	Description string    `gorm:"type:text" json:"description"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
	Tasks       []Task    `gorm:"constraint:OnUpdate:CASCADE,OnDelete:CASCADE" json:"tasks,omitempty"`
}

const (
	// TaskTypeCode marks tasks graded by running the submitted sources in the judge.
	TaskTypeCode = "CODE"
	// TaskTypeQuiz marks question based tasks.
	TaskTypeQuiz = "QUIZ"
	// TaskTypeOther is the catalog's generic non-code type; graded like a quiz.
	TaskTypeOther = "OTHER"
)

// Task is one gradable unit of work inside an experiment.
type Task struct {
	ID           uint                        `gorm:"primaryKey" json:"id"`
	ExperimentID uint                        `gorm:"not null;index" json:"experiment_id"`
	Title        string                      `gorm:"size:255" json:"title"`
	Type         string                      `gorm:"size:32;not null" json:"type"`
	Position     int                         `gorm:"not null;default:0" json:"position"`
	Required     bool                        `gorm:"not null;default:false" json:"required"`
	QuestionIDs  datatypes.JSONSlice[string] `gorm:"type:json" json:"question_ids"`
	CreatedAt    time.Time                   `json:"created_at"`
	UpdatedAt    time.Time                   `json:"updated_at"`
}

// IsCode reports whether the task is evaluated by the code judge.
func (t Task) IsCode() bool {
	return strings.EqualFold(strings.TrimSpace(t.Type), TaskTypeCode)
}

// Questions returns the configured question identifiers without blanks.
func (t Task) Questions() []string {
	ids := make([]string, 0, len(t.QuestionIDs))
	for _, id := range t.QuestionIDs {
		trimmed := strings.TrimSpace(id)
		if trimmed != "" {
			ids = append(ids, trimmed)
		}
	}
	return ids
}

// Question holds the canonical answer of a quiz question.
type Question struct {
	ID        string         `gorm:"primaryKey;size:64" json:"id"`
	Content   string         `gorm:"type:text" json:"content"`
	Answer    datatypes.JSON `json:"answer"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
}
