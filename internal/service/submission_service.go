package service

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"
	"unicode"

	"github.com/gabriel-vasile/mimetype"
	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/noah-isme/explab-api/internal/dto"
	"github.com/noah-isme/explab-api/internal/models"
	"github.com/noah-isme/explab-api/internal/observability"
	"github.com/noah-isme/explab-api/internal/repository"
)

var (
	// ErrTaskNotFound indicates the task does not exist in the catalog.
	ErrTaskNotFound = errors.New("task not found")
	// ErrSubmissionNotFound indicates the submission does not exist.
	ErrSubmissionNotFound = errors.New("submission not found")
	// ErrSubmissionForbidden indicates the caller may not access the submission.
	ErrSubmissionForbidden = errors.New("forbidden")
	// ErrExperimentMismatch indicates the declared experiment is not the task's experiment.
	ErrExperimentMismatch = errors.New("experiment does not match task")
	// ErrEmptySubmission indicates the payload carries no answer.
	ErrEmptySubmission = errors.New("submission is empty")
	// ErrInvalidAnswer indicates the answer payload is not valid JSON.
	ErrInvalidAnswer = errors.New("invalid answer payload")
	// ErrInvalidFileName indicates a submitted file name cannot be stored safely.
	ErrInvalidFileName = errors.New("invalid file name")
	// ErrUnsupportedFileType indicates a submitted file is not text.
	ErrUnsupportedFileType = errors.New("file type not allowed")
	// ErrFileUploadFailed indicates the object store rejected a file.
	ErrFileUploadFailed = errors.New("file upload failed")
)

const (
	// submissionPathDepth is the number of leading segments of a stored path:
	// submissions/{user}/{experiment}/{task}/{timestamp}.
	submissionPathDepth = 5
	singleFileName      = "submission.txt"
)

// ObjectStore stores and retrieves submission files by path.
type ObjectStore interface {
	Upload(ctx context.Context, path string, reader io.Reader) (string, error)
	Download(ctx context.Context, path string) ([]byte, error)
}

// SubmissionService records task submissions.
type SubmissionService interface {
	Submit(ctx context.Context, userID, taskID uint, req dto.SubmissionCreateRequest) (dto.SubmissionResponse, error)
	Get(ctx context.Context, id, viewerID uint, role string) (dto.SubmissionResponse, error)
	ListForTask(ctx context.Context, userID, taskID uint) ([]dto.SubmissionResponse, error)
}

type submissionService struct {
	catalog     repository.CatalogRepository
	submissions repository.SubmissionRepository
	store       ObjectStore
	validator   *validator.Validate
	logger      zerolog.Logger
	now         func() time.Time
}

// NewSubmissionService constructs the submission ingestor.
func NewSubmissionService(catalog repository.CatalogRepository, submissions repository.SubmissionRepository, store ObjectStore, validate *validator.Validate, logger zerolog.Logger) SubmissionService {
	return &submissionService{
		catalog:     catalog,
		submissions: submissions,
		store:       store,
		validator:   validate,
		logger:      logger.With().Str("component", "submission_service").Logger(),
		now:         time.Now,
	}
}

func (s *submissionService) Submit(ctx context.Context, userID, taskID uint, req dto.SubmissionCreateRequest) (dto.SubmissionResponse, error) {
	if err := s.validator.Struct(req); err != nil {
		return dto.SubmissionResponse{}, err
	}

	task, err := s.catalog.FindTaskByID(ctx, taskID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return dto.SubmissionResponse{}, ErrTaskNotFound
		}
		return dto.SubmissionResponse{}, err
	}

	if req.ExperimentID != task.ExperimentID {
		return dto.SubmissionResponse{}, fmt.Errorf("%w: task %d belongs to experiment %d, got %d", ErrExperimentMismatch, task.ID, task.ExperimentID, req.ExperimentID)
	}

	submittedAt := s.now().UTC()
	kind := "quiz"

	var payload string
	if task.IsCode() {
		kind = "code"
		payload, err = s.storeCodeFiles(ctx, userID, task, req, submittedAt)
	} else {
		payload, err = quizPayload(req.Answer)
	}
	if err != nil {
		return dto.SubmissionResponse{}, err
	}

	submission := models.Submission{
		TaskID:       task.ID,
		UserID:       userID,
		ExperimentID: task.ExperimentID,
		Answer:       payload,
		SubmittedAt:  submittedAt,
	}
	if err := s.submissions.Create(ctx, &submission); err != nil {
		return dto.SubmissionResponse{}, err
	}

	observability.RecordSubmission(kind)
	s.logger.Info().
		Uint("submission_id", submission.ID).
		Uint("task_id", task.ID).
		Uint("user_id", userID).
		Str("kind", kind).
		Msg("submission recorded")

	return dto.NewSubmissionResponse(submission), nil
}

func (s *submissionService) Get(ctx context.Context, id, viewerID uint, role string) (dto.SubmissionResponse, error) {
	submission, err := s.submissions.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return dto.SubmissionResponse{}, ErrSubmissionNotFound
		}
		return dto.SubmissionResponse{}, err
	}

	if submission.UserID != viewerID && !isStaffRole(role) {
		return dto.SubmissionResponse{}, ErrSubmissionForbidden
	}

	return dto.NewSubmissionResponse(submission), nil
}

func (s *submissionService) ListForTask(ctx context.Context, userID, taskID uint) ([]dto.SubmissionResponse, error) {
	if _, err := s.catalog.FindTaskByID(ctx, taskID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrTaskNotFound
		}
		return nil, err
	}

	submissions, err := s.submissions.ListByTaskAndUser(ctx, taskID, userID)
	if err != nil {
		return nil, err
	}

	out := make([]dto.SubmissionResponse, 0, len(submissions))
	for _, submission := range submissions {
		out = append(out, dto.NewSubmissionResponse(submission))
	}
	return out, nil
}

func (s *submissionService) storeCodeFiles(ctx context.Context, userID uint, task models.Task, req dto.SubmissionCreateRequest, submittedAt time.Time) (string, error) {
	files, err := collectCodeFiles(req)
	if err != nil {
		return "", err
	}

	names := make([]string, 0, len(files))
	seen := make(map[string]struct{}, len(files))
	for _, file := range files {
		name, err := sanitizeFileName(file.Name)
		if err != nil {
			return "", err
		}
		if _, dup := seen[name]; dup {
			return "", fmt.Errorf("%w: duplicate %q", ErrInvalidFileName, name)
		}
		seen[name] = struct{}{}

		if err := ensureTextContent(name, file.Content); err != nil {
			return "", err
		}
		names = append(names, name)
	}

	prefix := fmt.Sprintf("submissions/%d/%d/%d/%d", userID, task.ExperimentID, task.ID, submittedAt.UnixMilli())
	paths := make([]string, 0, len(files))
	for i, file := range files {
		objectPath := prefix + "/" + names[i]
		stored, err := s.store.Upload(ctx, objectPath, strings.NewReader(file.Content))
		if err != nil {
			s.logger.Error().Err(err).Str("path", objectPath).Msg("failed to upload submission file")
			return "", fmt.Errorf("%w: %s: %v", ErrFileUploadFailed, names[i], err)
		}
		paths = append(paths, stored)
	}

	encoded, err := json.Marshal(models.CodePayload{
		Files:     paths,
		FileCount: len(paths),
		FileNames: names,
	})
	if err != nil {
		return "", fmt.Errorf("encode code payload: %w", err)
	}
	return string(encoded), nil
}

// collectCodeFiles returns the named files of a code submission, wrapping a
// single free-text blob as submission.txt.
func collectCodeFiles(req dto.SubmissionCreateRequest) ([]dto.SubmissionFile, error) {
	if len(req.Files) > 0 {
		return req.Files, nil
	}

	if req.Code != nil && strings.TrimSpace(*req.Code) != "" {
		return []dto.SubmissionFile{{Name: singleFileName, Content: *req.Code}}, nil
	}

	if len(req.Answer) > 0 {
		var text string
		if err := json.Unmarshal(req.Answer, &text); err == nil && strings.TrimSpace(text) != "" {
			return []dto.SubmissionFile{{Name: singleFileName, Content: text}}, nil
		}
	}

	return nil, ErrEmptySubmission
}

// sanitizeFileName accepts relative slash separated names and rejects anything
// that could escape the submission prefix.
func sanitizeFileName(name string) (string, error) {
	trimmed := strings.TrimSpace(name)
	if trimmed == "" {
		return "", fmt.Errorf("%w: empty name", ErrInvalidFileName)
	}
	if strings.HasPrefix(trimmed, "/") || strings.Contains(trimmed, "\\") {
		return "", fmt.Errorf("%w: %q", ErrInvalidFileName, name)
	}
	for _, r := range trimmed {
		if unicode.IsControl(r) {
			return "", fmt.Errorf("%w: %q", ErrInvalidFileName, name)
		}
	}
	for _, segment := range strings.Split(trimmed, "/") {
		if segment == "" || segment == "." || segment == ".." {
			return "", fmt.Errorf("%w: %q", ErrInvalidFileName, name)
		}
	}
	return trimmed, nil
}

func ensureTextContent(name, content string) error {
	if content == "" {
		return nil
	}

	detected := mimetype.Detect([]byte(content))
	for m := detected; m != nil; m = m.Parent() {
		if m.Is("text/plain") {
			return nil
		}
	}
	return fmt.Errorf("%w: %s detected as %s", ErrUnsupportedFileType, name, detected.String())
}

// quizPayload stores JSON strings as plain text and any other JSON value in
// compact form.
func quizPayload(raw json.RawMessage) (string, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || string(trimmed) == "null" {
		return "", ErrEmptySubmission
	}

	if trimmed[0] == '"' {
		var text string
		if err := json.Unmarshal(trimmed, &text); err != nil {
			return "", fmt.Errorf("%w: %v", ErrInvalidAnswer, err)
		}
		if strings.TrimSpace(text) == "" {
			return "", ErrEmptySubmission
		}
		return text, nil
	}

	var compacted bytes.Buffer
	if err := json.Compact(&compacted, trimmed); err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidAnswer, err)
	}
	return compacted.String(), nil
}

func isStaffRole(role string) bool {
	switch strings.ToLower(strings.TrimSpace(role)) {
	case "teacher", "admin":
		return true
	default:
		return false
	}
}
