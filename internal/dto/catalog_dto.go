package dto

import (
	"encoding/json"

	"github.com/noah-isme/explab-api/internal/models"
)

// TaskSummary describes a task without its canonical answers.
type TaskSummary struct {
	ID            uint   `json:"id"`
	ExperimentID  uint   `json:"experiment_id"`
	Title         string `json:"title"`
	Type          string `json:"type"`
	Position      int    `json:"position"`
	Required      bool   `json:"required"`
	QuestionCount int    `json:"question_count"`
}

// ExperimentResponse is an experiment with its ordered tasks.
type ExperimentResponse struct {
	ID          uint          `json:"id"`
	Title       string        `json:"title"`
	Description string        `json:"description"`
	Tasks       []TaskSummary `json:"tasks"`
}

// NewTaskSummary converts a task model.
func NewTaskSummary(task models.Task) TaskSummary {
	return TaskSummary{
		ID:            task.ID,
		ExperimentID:  task.ExperimentID,
		Title:         task.Title,
		Type:          task.Type,
		Position:      task.Position,
		Required:      task.Required,
		QuestionCount: len(task.Questions()),
	}
}

// NewExperimentResponse converts an experiment with preloaded tasks.
func NewExperimentResponse(experiment models.Experiment) ExperimentResponse {
	tasks := make([]TaskSummary, 0, len(experiment.Tasks))
	for _, task := range experiment.Tasks {
		tasks = append(tasks, NewTaskSummary(task))
	}
	return ExperimentResponse{
		ID:          experiment.ID,
		Title:       experiment.Title,
		Description: experiment.Description,
		Tasks:       tasks,
	}
}

// CatalogSeed is the file format accepted by the seed command.
type CatalogSeed struct {
	Experiment ExperimentSeed `json:"experiment" validate:"required"`
	Tasks      []TaskSeed     `json:"tasks" validate:"omitempty,dive"`
	Questions  []QuestionSeed `json:"questions" validate:"omitempty,dive"`
}

// ExperimentSeed describes the experiment row.
type ExperimentSeed struct {
	ID          uint   `json:"id" validate:"required,gt=0"`
	Title       string `json:"title" validate:"required,max=255"`
	Description string `json:"description"`
}

// TaskSeed describes one task row.
type TaskSeed struct {
	ID          uint     `json:"id" validate:"required,gt=0"`
	Title       string   `json:"title" validate:"required,max=255"`
	Type        string   `json:"type" validate:"required,oneof=CODE QUIZ OTHER code quiz other"`
	Position    int      `json:"position"`
	Required    bool     `json:"required"`
	QuestionIDs []string `json:"question_ids" validate:"omitempty,dive,required,max=64"`
}

// QuestionSeed describes one question with its canonical answer.
type QuestionSeed struct {
	ID      string          `json:"id" validate:"required,max=64"`
	Content string          `json:"content"`
	Answer  json.RawMessage `json:"answer" validate:"required"`
}
