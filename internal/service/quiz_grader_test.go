package service

import (
	"context"
	"errors"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"

	"github.com/noah-isme/explab-api/internal/models"
)

type fakeQuestions struct {
	questions []models.Question
	err       error
	calls     int
}

func (f *fakeQuestions) GetQuestionsByIDs(ctx context.Context, ids []string) ([]models.Question, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	wanted := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		wanted[id] = struct{}{}
	}
	var out []models.Question
	for _, question := range f.questions {
		if _, ok := wanted[question.ID]; ok {
			out = append(out, question)
		}
	}
	return out, nil
}

func question(id, canonical string) models.Question {
	return models.Question{ID: id, Answer: datatypes.JSON(canonical)}
}

func quizTask(ids ...string) models.Task {
	return models.Task{ID: 3, ExperimentID: 2, Type: models.TaskTypeQuiz, QuestionIDs: datatypes.JSONSlice[string](ids)}
}

func TestQuizGraderScoresFractionOfCorrectAnswers(t *testing.T) {
	questions := &fakeQuestions{questions: []models.Question{
		question("q1", `"Paris"`),
		question("q2", `["red","blue"]`),
		question("q3", `42`),
		question("q4", `"Tokyo"`),
	}}
	grader := NewQuizGrader(questions, zerolog.Nop())

	submission := models.Submission{ID: 9, UserID: 7, TaskID: 3, Answer: `{"q1":"paris","q2":["blue","red"],"q3":42,"q4":"Kyoto"}`}
	evaluation, err := grader.Grade(context.Background(), quizTask("q1", "q2", "q3", "q4"), submission)
	require.NoError(t, err)

	require.NotNil(t, evaluation.Score)
	require.InDelta(t, 75.0, *evaluation.Score, 0.0001)
	require.Equal(t, models.EvaluationStatusEvaluated, evaluation.Status)
	require.Equal(t, "3 of 4 questions correct", evaluation.Diagnostic)
	require.Equal(t, uint(9), evaluation.SubmissionID)
	require.Equal(t, uint(7), evaluation.UserID)
	require.Contains(t, evaluation.Feedback, "Question q1: correct")
	require.Contains(t, evaluation.Feedback, "Question q4: incorrect\n  Your answer: Kyoto\n  Correct answer: Tokyo")
}

func TestQuizGraderIsCaseInsensitiveForLatinText(t *testing.T) {
	grader := NewQuizGrader(&fakeQuestions{questions: []models.Question{question("q1", `"Paris"`)}}, zerolog.Nop())

	evaluation, err := grader.Grade(context.Background(), quizTask("q1"), models.Submission{Answer: `{"q1":"paris"}`})
	require.NoError(t, err)
	require.InDelta(t, 100.0, *evaluation.Score, 0.0001)
}

func TestQuizGraderWithoutQuestionsScoresZero(t *testing.T) {
	questions := &fakeQuestions{}
	grader := NewQuizGrader(questions, zerolog.Nop())

	evaluation, err := grader.Grade(context.Background(), quizTask(), models.Submission{Answer: `{"q1":"x"}`})
	require.NoError(t, err)
	require.InDelta(t, 0.0, *evaluation.Score, 0.0001)
	require.Equal(t, models.EvaluationStatusEvaluated, evaluation.Status)
	require.Equal(t, "no questions configured for task", evaluation.Diagnostic)
	require.Zero(t, questions.calls)
}

func TestQuizGraderReportsProviderFailure(t *testing.T) {
	grader := NewQuizGrader(&fakeQuestions{err: errors.New("question bank offline")}, zerolog.Nop())

	evaluation, err := grader.Grade(context.Background(), quizTask("q1"), models.Submission{Answer: `{"q1":"x"}`})
	require.NoError(t, err)
	require.Equal(t, models.EvaluationStatusError, evaluation.Status)
	require.InDelta(t, 0.0, *evaluation.Score, 0.0001)
	require.Equal(t, "question bank offline", evaluation.Diagnostic)
}

func TestQuizGraderMarksMissingAnswersUnanswered(t *testing.T) {
	grader := NewQuizGrader(&fakeQuestions{questions: []models.Question{
		question("q1", `"a"`),
		question("q2", `"b"`),
	}}, zerolog.Nop())

	evaluation, err := grader.Grade(context.Background(), quizTask("q1", "q2"), models.Submission{Answer: `{"q1":"a","q2":null}`})
	require.NoError(t, err)
	require.InDelta(t, 50.0, *evaluation.Score, 0.0001)
	require.Contains(t, evaluation.Feedback, "Question q2: unanswered")
}

func TestQuizGraderSkipsUnknownQuestions(t *testing.T) {
	grader := NewQuizGrader(&fakeQuestions{questions: []models.Question{question("q1", `"a"`)}}, zerolog.Nop())

	evaluation, err := grader.Grade(context.Background(), quizTask("q1", "ghost"), models.Submission{Answer: `{"q1":"a"}`})
	require.NoError(t, err)
	require.InDelta(t, 100.0, *evaluation.Score, 0.0001)
	require.Equal(t, "1 of 1 questions correct", evaluation.Diagnostic)
}

func TestQuizGraderWrapsPlainAnswer(t *testing.T) {
	grader := NewQuizGrader(&fakeQuestions{questions: []models.Question{question("answer", `"光合作用"`)}}, zerolog.Nop())

	evaluation, err := grader.Grade(context.Background(), quizTask("answer"), models.Submission{Answer: "光合作用。"})
	require.NoError(t, err)
	require.InDelta(t, 100.0, *evaluation.Score, 0.0001)
}

func TestQuizGraderTreatsInvalidCanonicalJSONAsText(t *testing.T) {
	grader := NewQuizGrader(&fakeQuestions{questions: []models.Question{question("q1", `Paris`)}}, zerolog.Nop())

	evaluation, err := grader.Grade(context.Background(), quizTask("q1"), models.Submission{Answer: `{"q1":"PARIS"}`})
	require.NoError(t, err)
	require.InDelta(t, 100.0, *evaluation.Score, 0.0001)
}

func TestPercentHalfUp(t *testing.T) {
	cases := []struct {
		correct, total int
		want           float64
	}{
		{2, 3, 66.67},
		{1, 3, 33.33},
		{3, 4, 75},
		{23, 160, 14.38},
		{41, 160, 25.63},
		{1, 8, 12.5},
		{1, 1600, 0.06},
		{0, 7, 0},
		{5, 5, 100},
		{0, 0, 0},
	}

	for _, tc := range cases {
		require.Equal(t, tc.want, percentHalfUp(tc.correct, tc.total), "%d/%d", tc.correct, tc.total)
	}
}
