package service

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"

	"github.com/noah-isme/explab-api/internal/dto"
	"github.com/noah-isme/explab-api/internal/models"
)

func TestCatalogServiceGetExperiment(t *testing.T) {
	catalog := &fakeCatalog{tasks: map[uint]models.Task{
		3: {ID: 3, ExperimentID: 2, Title: "  Capitals ", Type: "quiz", QuestionIDs: datatypes.JSONSlice[string]{"q1", " ", "q2"}},
	}}
	svc := NewCatalogService(catalog, zerolog.Nop())

	experiment, err := svc.GetExperiment(context.Background(), 2)
	require.NoError(t, err)
	require.Len(t, experiment.Tasks, 1)
	require.Equal(t, "Capitals", experiment.Tasks[0].Title)
	require.Equal(t, models.TaskTypeQuiz, experiment.Tasks[0].Type)
	require.Equal(t, 2, experiment.Tasks[0].QuestionCount)

	_, err = svc.GetExperiment(context.Background(), 99)
	require.ErrorIs(t, err, ErrExperimentNotFound)

	task, err := svc.GetTask(context.Background(), 3)
	require.NoError(t, err)
	require.Equal(t, uint(2), task.ExperimentID)

	_, err = svc.GetTask(context.Background(), 4)
	require.ErrorIs(t, err, ErrTaskNotFound)
}

type fakeCatalogWriter struct {
	experiment models.Experiment
	tasks      []models.Task
	questions  []models.Question
	err        error
}

func (f *fakeCatalogWriter) UpsertCatalog(ctx context.Context, experiment *models.Experiment, tasks []models.Task, questions []models.Question) (int64, error) {
	if f.err != nil {
		return 0, f.err
	}
	f.experiment = *experiment
	f.tasks = tasks
	f.questions = questions
	return int64(1 + len(tasks) + len(questions)), nil
}

func TestSeedCatalogNormalizesRows(t *testing.T) {
	writer := &fakeCatalogWriter{}
	svc := NewSeedService(writer, validator.New(), zerolog.Nop())

	affected, err := svc.SeedCatalog(context.Background(), dto.CatalogSeed{
		Experiment: dto.ExperimentSeed{ID: 2, Title: " Geography "},
		Tasks: []dto.TaskSeed{
			{ID: 3, Title: "Capitals", Type: "quiz", QuestionIDs: []string{"q1", "q9"}},
			{ID: 4, Title: "Hello", Type: "CODE", Position: 1, Required: true},
		},
		Questions: []dto.QuestionSeed{{ID: "q1", Content: "Capital of France", Answer: json.RawMessage(`"Paris"`)}},
	})
	require.NoError(t, err)
	require.Equal(t, int64(4), affected)
	require.Equal(t, "Geography", writer.experiment.Title)
	require.Equal(t, models.TaskTypeQuiz, writer.tasks[0].Type)
	require.True(t, writer.tasks[1].IsCode())
	require.JSONEq(t, `"Paris"`, string(writer.questions[0].Answer))
}

func TestSeedCatalogRejectsInvalidDocuments(t *testing.T) {
	svc := NewSeedService(&fakeCatalogWriter{}, validator.New(), zerolog.Nop())

	_, err := svc.SeedCatalog(context.Background(), dto.CatalogSeed{Experiment: dto.ExperimentSeed{ID: 2}})
	var validationErrs validator.ValidationErrors
	require.True(t, errors.As(err, &validationErrs))

	_, err = svc.SeedCatalog(context.Background(), dto.CatalogSeed{
		Experiment: dto.ExperimentSeed{ID: 2, Title: "Geography"},
		Questions:  []dto.QuestionSeed{{ID: "q1", Answer: json.RawMessage(`{broken`)}},
	})
	require.ErrorIs(t, err, ErrInvalidAnswer)

	_, err = NewSeedService(&fakeCatalogWriter{err: errors.New("db down")}, validator.New(), zerolog.Nop()).
		SeedCatalog(context.Background(), dto.CatalogSeed{Experiment: dto.ExperimentSeed{ID: 2, Title: "Geography"}})
	require.EqualError(t, err, "db down")
}
