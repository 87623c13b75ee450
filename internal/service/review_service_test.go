package service

import (
	"context"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/explab-api/internal/dto"
	"github.com/noah-isme/explab-api/internal/models"
	"github.com/noah-isme/explab-api/pkg/ai"
	"github.com/noah-isme/explab-api/pkg/localstore"
)

type fakeReviewer struct {
	inputs []ai.ReviewInput
	result ai.ReviewResult
}

func (f *fakeReviewer) Review(ctx context.Context, input ai.ReviewInput) (ai.ReviewResult, error) {
	f.inputs = append(f.inputs, input)
	return f.result, nil
}

func TestReviewWithoutReviewerIsUnavailable(t *testing.T) {
	svc := NewReviewService(&fakeCatalog{}, &fakeSubmissions{}, localstore.NewMemory(zerolog.Nop()), NewEvaluationStore(&fakeEvaluationRepo{}, nil, time.Minute, zerolog.Nop()), nil, validator.New(), zerolog.Nop())

	_, err := svc.Review(context.Background(), 1, dto.ReviewRequest{})
	require.ErrorIs(t, err, ErrReviewerUnavailable)
}

func TestReviewCodeSubmissionSendsFilesAndJudgeOutput(t *testing.T) {
	store := localstore.NewMemory(zerolog.Nop())
	catalog := &fakeCatalog{tasks: map[uint]models.Task{3: codeTask()}}
	submissions := &fakeSubmissions{}
	evaluations := &fakeEvaluationRepo{}
	evaluationStore := NewEvaluationStore(evaluations, nil, time.Minute, zerolog.Nop())
	reviewer := &fakeReviewer{result: ai.ReviewResult{Score: 0.825, Verdict: "Mostly correct", Feedback: "Handle empty input."}}

	submission := storeCodeSubmission(t, store, map[string]string{"src/main.go": "package main"})
	submission.ID = 0
	require.NoError(t, submissions.Create(context.Background(), &submission))

	score := 0.0
	require.NoError(t, evaluationStore.Save(context.Background(), &models.Evaluation{
		SubmissionID: submission.ID, UserID: 7, TaskID: 3, Score: &score,
		Status: models.EvaluationStatusFailed, Diagnostic: "panic: index out of range",
	}))

	svc := NewReviewService(catalog, submissions, store, evaluationStore, reviewer, validator.New(), zerolog.Nop())
	resp, err := svc.Review(context.Background(), submission.ID, dto.ReviewRequest{Instructions: "Be brief"})
	require.NoError(t, err)

	require.Len(t, reviewer.inputs, 1)
	input := reviewer.inputs[0]
	require.Equal(t, []ai.SourceFile{{Path: "src/main.go", Content: "package main"}}, input.Files)
	require.Equal(t, "panic: index out of range", input.JudgeStderr)
	require.Equal(t, "Be brief", input.Instructions)

	require.Equal(t, models.EvaluationStatusEvaluated, resp.Status)
	require.InDelta(t, 82.5, *resp.Score, 0.0001)
	require.Equal(t, "Mostly correct\n\nHandle empty input.", resp.Feedback)
	require.Len(t, evaluations.items, 2)
}

func TestReviewQuizSubmissionSendsAnswer(t *testing.T) {
	catalog := &fakeCatalog{tasks: map[uint]models.Task{3: quizTask("q1")}}
	submissions := &fakeSubmissions{}
	submission := models.Submission{TaskID: 3, UserID: 7, ExperimentID: 2, Answer: "Photosynthesis turns light into energy"}
	require.NoError(t, submissions.Create(context.Background(), &submission))

	reviewer := &fakeReviewer{result: ai.ReviewResult{Score: 1, Feedback: "Good"}}
	svc := NewReviewService(catalog, submissions, localstore.NewMemory(zerolog.Nop()), NewEvaluationStore(&fakeEvaluationRepo{}, nil, time.Minute, zerolog.Nop()), reviewer, validator.New(), zerolog.Nop())

	resp, err := svc.Review(context.Background(), submission.ID, dto.ReviewRequest{})
	require.NoError(t, err)
	require.Equal(t, submission.Answer, reviewer.inputs[0].Answer)
	require.Empty(t, reviewer.inputs[0].Files)
	require.Equal(t, "Good", resp.Feedback)

	_, err = svc.Review(context.Background(), 404, dto.ReviewRequest{})
	require.ErrorIs(t, err, ErrSubmissionNotFound)
}
