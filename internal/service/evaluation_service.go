package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/noah-isme/explab-api/internal/dto"
	"github.com/noah-isme/explab-api/internal/models"
	"github.com/noah-isme/explab-api/internal/observability"
	"github.com/noah-isme/explab-api/internal/repository"
)

// Notifier delivers a notification to a single user.
type Notifier interface {
	Publish(ctx context.Context, payload dto.NotificationCreateRequest) (dto.NotificationResponse, error)
}

// EvaluationService runs the grading pipeline and serves evaluation results.
type EvaluationService interface {
	Evaluate(ctx context.Context, userID, taskID uint) (dto.EvaluationResponse, error)
	EvaluateSubmission(ctx context.Context, submissionID uint) (dto.EvaluationResponse, error)
	Latest(ctx context.Context, submissionID, viewerID uint, role string) (*dto.EvaluationResponse, error)
	History(ctx context.Context, userID, taskID uint) ([]dto.EvaluationResponse, error)
}

type evaluationService struct {
	catalog     repository.CatalogRepository
	submissions repository.SubmissionRepository
	quiz        Grader
	code        Grader
	store       EvaluationStore
	notifier    Notifier
	logger      zerolog.Logger
}

// NewEvaluationService wires the graders and the store. notifier may be nil.
func NewEvaluationService(catalog repository.CatalogRepository, submissions repository.SubmissionRepository, quiz, code Grader, store EvaluationStore, notifier Notifier, logger zerolog.Logger) EvaluationService {
	return &evaluationService{
		catalog:     catalog,
		submissions: submissions,
		quiz:        quiz,
		code:        code,
		store:       store,
		notifier:    notifier,
		logger:      logger.With().Str("component", "evaluation_service").Logger(),
	}
}

func (s *evaluationService) Evaluate(ctx context.Context, userID, taskID uint) (dto.EvaluationResponse, error) {
	task, err := s.findTask(ctx, taskID)
	if err != nil {
		return dto.EvaluationResponse{}, err
	}

	submission, err := s.submissions.GetLatestByTaskAndUser(ctx, taskID, userID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return dto.EvaluationResponse{}, ErrSubmissionNotFound
		}
		return dto.EvaluationResponse{}, err
	}

	return s.run(ctx, task, submission)
}

func (s *evaluationService) EvaluateSubmission(ctx context.Context, submissionID uint) (dto.EvaluationResponse, error) {
	submission, err := s.submissions.GetByID(ctx, submissionID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return dto.EvaluationResponse{}, ErrSubmissionNotFound
		}
		return dto.EvaluationResponse{}, err
	}

	task, err := s.findTask(ctx, submission.TaskID)
	if err != nil {
		return dto.EvaluationResponse{}, err
	}

	return s.run(ctx, task, submission)
}

func (s *evaluationService) Latest(ctx context.Context, submissionID, viewerID uint, role string) (*dto.EvaluationResponse, error) {
	submission, err := s.submissions.GetByID(ctx, submissionID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrSubmissionNotFound
		}
		return nil, err
	}
	if submission.UserID != viewerID && !isStaffRole(role) {
		return nil, ErrSubmissionForbidden
	}

	evaluation, err := s.store.FindLatestBySubmission(ctx, submissionID)
	if err != nil {
		return nil, err
	}
	if evaluation == nil {
		return nil, nil
	}

	response := dto.NewEvaluationResponse(*evaluation)
	return &response, nil
}

func (s *evaluationService) History(ctx context.Context, userID, taskID uint) ([]dto.EvaluationResponse, error) {
	history, err := s.store.FindHistory(ctx, userID, taskID)
	if err != nil {
		return nil, err
	}
	return dto.NewEvaluationResponseSlice(history), nil
}

func (s *evaluationService) findTask(ctx context.Context, taskID uint) (models.Task, error) {
	task, err := s.catalog.FindTaskByID(ctx, taskID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return models.Task{}, ErrTaskNotFound
		}
		return models.Task{}, err
	}
	return task, nil
}

func (s *evaluationService) run(ctx context.Context, task models.Task, submission models.Submission) (dto.EvaluationResponse, error) {
	kind, grader := "quiz", s.quiz
	if task.IsCode() {
		kind, grader = "code", s.code
	}

	logger := s.logger.With().Uint("submission_id", submission.ID).Uint("task_id", task.ID).Str("kind", kind).Logger()

	evaluation, err := grader.Grade(ctx, task, submission)
	if err != nil {
		observability.RecordEvaluation(kind, "rejected")
		logger.Warn().Err(err).Msg("submission could not be graded")
		return dto.EvaluationResponse{}, err
	}

	if err := s.store.Save(ctx, &evaluation); err != nil {
		logger.Error().Err(err).Msg("failed to persist evaluation")
		return dto.EvaluationResponse{}, err
	}

	observability.RecordEvaluation(kind, evaluation.Status)
	logger.Info().Str("status", evaluation.Status).Uint("evaluation_id", evaluation.ID).Msg("submission evaluated")

	s.notify(ctx, task, evaluation, logger)
	return dto.NewEvaluationResponse(evaluation), nil
}

func (s *evaluationService) notify(ctx context.Context, task models.Task, evaluation models.Evaluation, logger zerolog.Logger) {
	if s.notifier == nil {
		return
	}

	// plain text only; the notification sanitizer escapes quotes
	message := fmt.Sprintf("%s was evaluated: %s", taskLabel(task), evaluation.Status)
	if evaluation.Score != nil {
		message = fmt.Sprintf("%s was evaluated: %s (score %.2f)", taskLabel(task), evaluation.Status, *evaluation.Score)
	}

	if _, err := s.notifier.Publish(ctx, dto.NotificationCreateRequest{
		UserID:  evaluation.UserID,
		Type:    models.NotificationTypeEvaluation,
		Message: message,
	}); err != nil {
		logger.Warn().Err(err).Msg("failed to notify student about evaluation")
	}
}

func taskLabel(task models.Task) string {
	if task.Title != "" {
		return "Task " + task.Title
	}
	return fmt.Sprintf("Task #%d", task.ID)
}
