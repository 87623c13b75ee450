package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/noah-isme/explab-api/internal/dto"
	"github.com/noah-isme/explab-api/internal/models"
	"github.com/noah-isme/explab-api/internal/observability"
	"github.com/noah-isme/explab-api/internal/repository"
	"github.com/noah-isme/explab-api/pkg/ai"
)

// ErrReviewerUnavailable indicates no AI reviewer is configured.
var ErrReviewerUnavailable = errors.New("ai reviewer unavailable")

// ReviewService asks an AI reviewer for qualitative feedback on a submission.
type ReviewService interface {
	Review(ctx context.Context, submissionID uint, req dto.ReviewRequest) (dto.EvaluationResponse, error)
}

type reviewService struct {
	catalog     repository.CatalogRepository
	submissions repository.SubmissionRepository
	store       ObjectStore
	evaluations EvaluationStore
	reviewer    ai.Reviewer
	validator   *validator.Validate
	logger      zerolog.Logger
}

// NewReviewService constructs the review service. reviewer may be nil, in which
// case every review fails with ErrReviewerUnavailable.
func NewReviewService(catalog repository.CatalogRepository, submissions repository.SubmissionRepository, store ObjectStore, evaluations EvaluationStore, reviewer ai.Reviewer, validate *validator.Validate, logger zerolog.Logger) ReviewService {
	return &reviewService{
		catalog:     catalog,
		submissions: submissions,
		store:       store,
		evaluations: evaluations,
		reviewer:    reviewer,
		validator:   validate,
		logger:      logger.With().Str("component", "review_service").Logger(),
	}
}

func (s *reviewService) Review(ctx context.Context, submissionID uint, req dto.ReviewRequest) (dto.EvaluationResponse, error) {
	if s.reviewer == nil {
		return dto.EvaluationResponse{}, ErrReviewerUnavailable
	}
	if err := s.validator.Struct(req); err != nil {
		return dto.EvaluationResponse{}, err
	}

	submission, err := s.submissions.GetByID(ctx, submissionID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return dto.EvaluationResponse{}, ErrSubmissionNotFound
		}
		return dto.EvaluationResponse{}, err
	}

	task, err := s.catalog.FindTaskByID(ctx, submission.TaskID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return dto.EvaluationResponse{}, ErrTaskNotFound
		}
		return dto.EvaluationResponse{}, err
	}

	input := ai.ReviewInput{
		TaskTitle:    task.Title,
		TaskType:     task.Type,
		Instructions: strings.TrimSpace(req.Instructions),
	}

	if task.IsCode() {
		files, err := s.sourceFiles(ctx, submission)
		if err != nil {
			return dto.EvaluationResponse{}, err
		}
		input.Files = files

		if latest, err := s.evaluations.FindLatestBySubmission(ctx, submission.ID); err != nil {
			s.logger.Warn().Err(err).Uint("submission_id", submission.ID).Msg("failed to load judge output for review")
		} else if latest != nil {
			input.JudgeStdout = latest.AuxInfo
			input.JudgeStderr = latest.Diagnostic
		}
	} else {
		input.Answer = submission.Answer
	}

	result, err := s.reviewer.Review(ctx, input)
	if err != nil {
		s.logger.Error().Err(err).Uint("submission_id", submission.ID).Msg("ai review failed")
		return dto.EvaluationResponse{}, err
	}

	evaluation := newEvaluation(task, submission)
	setScore(&evaluation, roundHalfUp(result.Score*100), models.EvaluationStatusEvaluated)
	evaluation.Diagnostic = "ai review"
	evaluation.Feedback = reviewFeedback(result)

	if err := s.evaluations.Save(ctx, &evaluation); err != nil {
		return dto.EvaluationResponse{}, err
	}

	observability.RecordEvaluation("review", evaluation.Status)
	return dto.NewEvaluationResponse(evaluation), nil
}

func (s *reviewService) sourceFiles(ctx context.Context, submission models.Submission) ([]ai.SourceFile, error) {
	paths, err := submittedPaths(submission.Answer)
	if err != nil {
		return nil, err
	}

	files := make([]ai.SourceFile, 0, len(paths))
	for _, objectPath := range paths {
		content, err := s.store.Download(ctx, objectPath)
		if err != nil {
			return nil, fmt.Errorf("download %s: %w", objectPath, err)
		}
		files = append(files, ai.SourceFile{Path: relativeSubmissionPath(objectPath), Content: string(content)})
	}
	return files, nil
}

func reviewFeedback(result ai.ReviewResult) string {
	verdict := strings.TrimSpace(result.Verdict)
	feedback := strings.TrimSpace(result.Feedback)
	switch {
	case verdict == "":
		return feedback
	case feedback == "":
		return verdict
	default:
		return verdict + "\n\n" + feedback
	}
}
