package handler_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/noah-isme/explab-api/internal/config"
	"github.com/noah-isme/explab-api/internal/database"
	"github.com/noah-isme/explab-api/internal/handler"
	"github.com/noah-isme/explab-api/internal/models"
	"github.com/noah-isme/explab-api/internal/repository"
	"github.com/noah-isme/explab-api/internal/router"
	"github.com/noah-isme/explab-api/internal/service"
	"github.com/noah-isme/explab-api/pkg/ai"
	"github.com/noah-isme/explab-api/pkg/judge"
	"github.com/noah-isme/explab-api/pkg/localstore"
)

const (
	testExperimentID uint = 1
	quizTaskID       uint = 10
	codeTaskID       uint = 11
)

type stubRunner struct {
	mu       sync.Mutex
	result   judge.Result
	requests []judge.Request
}

func (s *stubRunner) Run(_ context.Context, req judge.Request) (judge.Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.requests = append(s.requests, req)
	return s.result, nil
}

type stubReviewer struct {
	result ai.ReviewResult
}

func (s stubReviewer) Review(context.Context, ai.ReviewInput) (ai.ReviewResult, error) {
	return s.result, nil
}

type testEnv struct {
	app           *fiber.App
	db            *gorm.DB
	runner        *stubRunner
	notifications service.NotificationService
}

type envOption func(*envOptions)

type envOptions struct {
	reviewer ai.Reviewer
}

func withReviewer(reviewer ai.Reviewer) envOption {
	return func(o *envOptions) { o.reviewer = reviewer }
}

func newTestEnv(t *testing.T, opts ...envOption) *testEnv {
	t.Helper()

	var options envOptions
	for _, opt := range opts {
		opt(&options)
	}

	db, err := database.Connect(config.DatabaseSQLite, "file:"+uuid.NewString()+"?mode=memory&cache=shared")
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(models.AllModels()...))
	seedCatalog(t, db)

	logger := zerolog.New(io.Discard)
	validate := validator.New(validator.WithRequiredStructEnabled())
	store := localstore.NewMemory(logger)
	runner := &stubRunner{result: judge.Result{Status: "Accepted", Files: map[string]string{"stdout": "hello\n", "stderr": ""}}}

	catalogRepo := repository.NewCatalogRepository(db)
	submissionRepo := repository.NewSubmissionRepository(db)
	evaluationStore := service.NewEvaluationStore(repository.NewEvaluationRepository(db), nil, time.Minute, logger)
	notifications := service.NewNotificationService(repository.NewNotificationRepository(db), nil, "", nil, validate, logger)

	evaluations := service.NewEvaluationService(
		catalogRepo,
		submissionRepo,
		service.NewQuizGrader(repository.NewQuestionRepository(db), logger),
		service.NewCodeEvaluator(store, runner, judge.DefaultLimits(), logger),
		evaluationStore,
		notifications,
		logger,
	)
	reviews := service.NewReviewService(catalogRepo, submissionRepo, store, evaluationStore, options.reviewer, validate, logger)
	submissions := service.NewSubmissionService(catalogRepo, submissionRepo, store, validate, logger)

	app := fiber.New()
	cfg := config.Config{AppName: "Test", AppEnv: "test", SubmissionRateLimit: 100, SubmissionRateWindow: time.Minute}
	router.Register(app, cfg, router.Dependencies{
		CatalogHandler:      handler.NewCatalogHandler(service.NewCatalogService(catalogRepo, logger), logger),
		SubmissionHandler:   handler.NewSubmissionHandler(submissions, logger),
		EvaluationHandler:   handler.NewEvaluationHandler(evaluations, reviews, logger),
		NotificationHandler: handler.NewNotificationHandler(notifications, logger, time.Second),
		JWTMiddleware:       stubAuth,
	})

	return &testEnv{app: app, db: db, runner: runner, notifications: notifications}
}

// stubAuth trusts the X-Test-User and X-Test-Role headers.
func stubAuth(c *fiber.Ctx) error {
	if id, err := strconv.ParseUint(c.Get("X-Test-User"), 10, 64); err == nil {
		c.Locals("user_id", uint(id))
	}
	c.Locals("user_role", c.Get("X-Test-Role", "student"))
	return c.Next()
}

func seedCatalog(t *testing.T, db *gorm.DB) {
	t.Helper()

	require.NoError(t, db.Create(&models.Experiment{ID: testExperimentID, Title: "Geography lab"}).Error)
	require.NoError(t, db.Create(&models.Question{ID: "q1", Content: "Capital of France", Answer: datatypes.JSON(`"Paris"`)}).Error)
	require.NoError(t, db.Create(&models.Question{ID: "q2", Content: "Capital of Spain", Answer: datatypes.JSON(`"Madrid"`)}).Error)
	require.NoError(t, db.Create(&models.Task{
		ID: quizTaskID, ExperimentID: testExperimentID, Title: "Capitals", Type: models.TaskTypeQuiz,
		QuestionIDs: datatypes.JSONSlice[string]{"q1", "q2"},
	}).Error)
	require.NoError(t, db.Create(&models.Task{
		ID: codeTaskID, ExperimentID: testExperimentID, Title: "Hello world", Type: models.TaskTypeCode, Position: 1,
	}).Error)
}

type envelope struct {
	Success bool            `json:"success"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
	Meta    map[string]any  `json:"meta"`
	Details map[string]any  `json:"details"`
}

func (e *testEnv) do(t *testing.T, method, path string, userID uint, role string, body any) (*http.Response, envelope) {
	t.Helper()

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(payload)
	}

	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	}
	return e.send(t, req, userID, role)
}

func (e *testEnv) send(t *testing.T, req *http.Request, userID uint, role string) (*http.Response, envelope) {
	t.Helper()

	if userID != 0 {
		req.Header.Set("X-Test-User", strconv.FormatUint(uint64(userID), 10))
	}
	if role != "" {
		req.Header.Set("X-Test-Role", role)
	}

	resp, err := e.app.Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()

	var out envelope
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	if len(raw) > 0 {
		require.NoError(t, json.Unmarshal(raw, &out), string(raw))
	}
	return resp, out
}

func decodeData[T any](t *testing.T, env envelope) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(env.Data, &out))
	return out
}

func taskPath(taskID uint, suffix string) string {
	return "/api/v2/tasks/" + strconv.FormatUint(uint64(taskID), 10) + suffix
}

func submissionPath(id uint, suffix string) string {
	return "/api/v2/submissions/" + strconv.FormatUint(uint64(id), 10) + suffix
}
