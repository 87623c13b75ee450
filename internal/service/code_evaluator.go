package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/noah-isme/explab-api/internal/models"
	"github.com/noah-isme/explab-api/pkg/judge"
)

// ErrNoSubmittedFiles indicates a code submission references no stored files.
var ErrNoSubmittedFiles = errors.New("no submitted files found")

const downloadConcurrency = 4

// CodeEvaluator grades code tasks by running the stored submission files in
// the judge. Only a submission without files is reported as an error; every
// other failure becomes an ERROR evaluation.
type CodeEvaluator struct {
	store  ObjectStore
	runner judge.Runner
	limits judge.Limits
	tracer trace.Tracer
	logger zerolog.Logger
}

// NewCodeEvaluator constructs the code evaluation orchestrator.
func NewCodeEvaluator(store ObjectStore, runner judge.Runner, limits judge.Limits, logger zerolog.Logger) *CodeEvaluator {
	return &CodeEvaluator{
		store:  store,
		runner: runner,
		limits: limits,
		tracer: otel.Tracer("github.com/noah-isme/explab-api/internal/service/code"),
		logger: logger.With().Str("component", "code_evaluator").Logger(),
	}
}

func (e *CodeEvaluator) Grade(ctx context.Context, task models.Task, submission models.Submission) (models.Evaluation, error) {
	ctx, span := e.tracer.Start(ctx, "evaluation.code", trace.WithAttributes(
		attribute.Int64("submission.id", int64(submission.ID)),
		attribute.Int64("task.id", int64(task.ID)),
	))
	defer span.End()

	paths, err := submittedPaths(submission.Answer)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return models.Evaluation{}, err
	}

	evaluation := newEvaluation(task, submission)
	logger := e.logger.With().Uint("submission_id", submission.ID).Uint("task_id", task.ID).Logger()

	files, err := e.download(ctx, paths, logger)
	if err != nil {
		return e.errored(evaluation, span, logger, err), nil
	}

	result, err := e.runner.Run(ctx, judge.NewRequest(files, e.limits))
	if err != nil {
		return e.errored(evaluation, span, logger, err), nil
	}

	stderr := result.Stderr()
	if stderr == "" {
		setScore(&evaluation, 100, models.EvaluationStatusSuccess)
	} else {
		setScore(&evaluation, 0, models.EvaluationStatusFailed)
	}
	evaluation.AuxInfo = result.Stdout()
	evaluation.Diagnostic = stderr

	span.SetAttributes(attribute.String("evaluation.status", evaluation.Status))
	logger.Info().Str("status", evaluation.Status).Int("files", len(files)).Msg("code submission evaluated")
	return evaluation, nil
}

// download fetches every file. A failing file does not stop the others; all
// failures are logged and returned together.
func (e *CodeEvaluator) download(ctx context.Context, paths []string, logger zerolog.Logger) ([]judge.File, error) {
	files := make([]judge.File, len(paths))

	var (
		mu       sync.Mutex
		failures []error
		group    errgroup.Group
	)
	group.SetLimit(downloadConcurrency)

	for i, objectPath := range paths {
		group.Go(func() error {
			content, err := e.store.Download(ctx, objectPath)
			if err != nil {
				logger.Warn().Err(err).Str("path", objectPath).Msg("failed to download submission file")
				mu.Lock()
				failures = append(failures, fmt.Errorf("download %s: %w", objectPath, err))
				mu.Unlock()
				return nil
			}
			files[i] = judge.File{Path: relativeSubmissionPath(objectPath), Content: content}
			return nil
		})
	}
	_ = group.Wait()

	if len(failures) > 0 {
		return nil, errors.Join(failures...)
	}
	return files, nil
}

func (e *CodeEvaluator) errored(evaluation models.Evaluation, span trace.Span, logger zerolog.Logger, err error) models.Evaluation {
	logger.Error().Err(err).Msg("code evaluation failed")
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())

	setScore(&evaluation, 0, models.EvaluationStatusError)
	evaluation.Diagnostic = err.Error()
	return evaluation
}

func submittedPaths(raw string) ([]string, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, ErrNoSubmittedFiles
	}

	var payload models.CodePayload
	if err := json.Unmarshal([]byte(raw), &payload); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNoSubmittedFiles, err)
	}

	paths := make([]string, 0, len(payload.Files))
	for _, p := range payload.Files {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			paths = append(paths, trimmed)
		}
	}
	if len(paths) == 0 {
		return nil, ErrNoSubmittedFiles
	}
	return paths, nil
}

// relativeSubmissionPath strips the submissions/{user}/{experiment}/{task}/{ts}
// prefix of a stored path.
func relativeSubmissionPath(objectPath string) string {
	segments := strings.Split(strings.Trim(objectPath, "/"), "/")
	if len(segments) <= submissionPathDepth {
		return segments[len(segments)-1]
	}
	return strings.Join(segments[submissionPathDepth:], "/")
}
