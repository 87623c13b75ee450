package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"github.com/noah-isme/explab-api/internal/answer"
	"github.com/noah-isme/explab-api/internal/models"
	"github.com/noah-isme/explab-api/internal/repository"
)

// Grader turns a submission into an evaluation.
type Grader interface {
	Grade(ctx context.Context, task models.Task, submission models.Submission) (models.Evaluation, error)
}

// QuizGrader grades non-code tasks by comparing answers with the canonical
// answers of the task's questions. Grading problems are reported inside the
// evaluation; Grade never returns an error.
type QuizGrader struct {
	questions repository.QuestionRepository
	logger    zerolog.Logger
}

// NewQuizGrader constructs the rule based grader.
func NewQuizGrader(questions repository.QuestionRepository, logger zerolog.Logger) *QuizGrader {
	return &QuizGrader{
		questions: questions,
		logger:    logger.With().Str("component", "quiz_grader").Logger(),
	}
}

func (g *QuizGrader) Grade(ctx context.Context, task models.Task, submission models.Submission) (models.Evaluation, error) {
	evaluation := newEvaluation(task, submission)
	logger := g.logger.With().Uint("submission_id", submission.ID).Uint("task_id", task.ID).Logger()

	ids := uniqueIDs(task.Questions())
	if len(ids) == 0 {
		setScore(&evaluation, 0, models.EvaluationStatusEvaluated)
		evaluation.Diagnostic = "no questions configured for task"
		return evaluation, nil
	}

	questions, err := g.questions.GetQuestionsByIDs(ctx, ids)
	if err != nil {
		logger.Error().Err(err).Msg("failed to load questions")
		setScore(&evaluation, 0, models.EvaluationStatusError)
		evaluation.Diagnostic = err.Error()
		return evaluation, nil
	}

	expected := make(map[string]answer.Answer, len(questions))
	for _, question := range questions {
		parsed, err := answer.Parse(question.Answer)
		if err != nil {
			logger.Warn().Err(err).Str("question_id", question.ID).Msg("canonical answer is not valid json, grading as text")
			parsed = answer.String(string(question.Answer))
		}
		expected[question.ID] = parsed
	}

	submitted, err := answer.ParseMap(submission.Answer)
	if err != nil {
		submitted = map[string]answer.Answer{"answer": answer.ParseText(submission.Answer)}
	}

	lines := make([]string, 0, len(ids))
	correct, total := 0, 0
	for _, id := range ids {
		want, ok := expected[id]
		if !ok {
			logger.Warn().Str("question_id", id).Msg("question not found, skipping")
			continue
		}
		total++

		got, answered := submitted[id]
		switch {
		case !answered || got.IsAbsent():
			lines = append(lines, fmt.Sprintf("Question %s: unanswered", id))
		case answer.Compare(want, got):
			correct++
			lines = append(lines, fmt.Sprintf("Question %s: correct", id))
		default:
			lines = append(lines, fmt.Sprintf("Question %s: incorrect\n  Your answer: %s\n  Correct answer: %s", id, answer.Format(got), answer.Format(want)))
		}
	}

	score := percentHalfUp(correct, total)

	setScore(&evaluation, score, models.EvaluationStatusEvaluated)
	evaluation.Diagnostic = fmt.Sprintf("%d of %d questions correct", correct, total)
	evaluation.Feedback = strings.Join(lines, "\n")
	return evaluation, nil
}

// percentHalfUp returns correct/total as a percentage rounded half up to two
// decimals. It works in hundredths of a percent so exact halves stay exact.
func percentHalfUp(correct, total int) float64 {
	if total <= 0 {
		return 0
	}
	hundredths := (int64(correct)*20000/int64(total) + 1) / 2
	return float64(hundredths) / 100
}

func uniqueIDs(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

func newEvaluation(task models.Task, submission models.Submission) models.Evaluation {
	return models.Evaluation{
		SubmissionID: submission.ID,
		UserID:       submission.UserID,
		TaskID:       task.ID,
	}
}

func setScore(evaluation *models.Evaluation, score float64, status string) {
	evaluation.Score = &score
	evaluation.Status = status
}
