package service

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/noah-isme/explab-api/internal/dto"
	"github.com/noah-isme/explab-api/internal/models"
	"github.com/noah-isme/explab-api/pkg/localstore"
)

type fakeCatalog struct {
	tasks map[uint]models.Task
}

func (f *fakeCatalog) FindTaskByID(ctx context.Context, id uint) (models.Task, error) {
	task, ok := f.tasks[id]
	if !ok {
		return models.Task{}, gorm.ErrRecordNotFound
	}
	return task, nil
}

func (f *fakeCatalog) FindExperimentByID(ctx context.Context, id uint) (models.Experiment, error) {
	experiment := models.Experiment{ID: id}
	for _, task := range f.tasks {
		if task.ExperimentID == id {
			experiment.Tasks = append(experiment.Tasks, task)
		}
	}
	if len(experiment.Tasks) == 0 {
		return models.Experiment{}, gorm.ErrRecordNotFound
	}
	return experiment, nil
}

type fakeSubmissions struct {
	mu      sync.Mutex
	items   []models.Submission
	creates int
}

func (f *fakeSubmissions) Create(ctx context.Context, submission *models.Submission) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.creates++
	submission.ID = uint(len(f.items) + 1)
	f.items = append(f.items, *submission)
	return nil
}

func (f *fakeSubmissions) GetByID(ctx context.Context, id uint) (models.Submission, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, item := range f.items {
		if item.ID == id {
			return item, nil
		}
	}
	return models.Submission{}, gorm.ErrRecordNotFound
}

func (f *fakeSubmissions) GetLatestByTaskAndUser(ctx context.Context, taskID, userID uint) (models.Submission, error) {
	items, _ := f.ListByTaskAndUser(ctx, taskID, userID)
	if len(items) == 0 {
		return models.Submission{}, gorm.ErrRecordNotFound
	}
	return items[0], nil
}

func (f *fakeSubmissions) ListByTaskAndUser(ctx context.Context, taskID, userID uint) ([]models.Submission, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.Submission
	for i := len(f.items) - 1; i >= 0; i-- {
		item := f.items[i]
		if item.TaskID == taskID && item.UserID == userID {
			out = append(out, item)
		}
	}
	return out, nil
}

func newTestSubmissionService(t *testing.T, tasks ...models.Task) (*submissionService, *fakeSubmissions, *localstore.Store) {
	t.Helper()

	catalog := &fakeCatalog{tasks: map[uint]models.Task{}}
	for _, task := range tasks {
		catalog.tasks[task.ID] = task
	}
	submissions := &fakeSubmissions{}
	store := localstore.NewMemory(zerolog.Nop())

	svc := NewSubmissionService(catalog, submissions, store, validator.New(), zerolog.Nop()).(*submissionService)
	svc.now = func() time.Time { return time.UnixMilli(1700000000000) }
	return svc, submissions, store
}

func rawJSON(s string) json.RawMessage {
	return json.RawMessage(s)
}

func TestSubmitRejectsExperimentMismatchWithoutWriting(t *testing.T) {
	svc, submissions, store := newTestSubmissionService(t, models.Task{ID: 1, ExperimentID: 2, Type: models.TaskTypeCode})

	code := "print('hi')"
	_, err := svc.Submit(context.Background(), 7, 1, dto.SubmissionCreateRequest{ExperimentID: 3, Code: &code})
	require.ErrorIs(t, err, ErrExperimentMismatch)
	require.Zero(t, submissions.creates)

	_, err = store.Download(context.Background(), "submissions/7/3/1/1700000000000/submission.txt")
	require.ErrorIs(t, err, localstore.ErrObjectNotFound)
	_, err = store.Download(context.Background(), "submissions/7/2/1/1700000000000/submission.txt")
	require.ErrorIs(t, err, localstore.ErrObjectNotFound)
}

func TestSubmitUnknownTask(t *testing.T) {
	svc, _, _ := newTestSubmissionService(t)

	_, err := svc.Submit(context.Background(), 7, 99, dto.SubmissionCreateRequest{ExperimentID: 1, Answer: rawJSON(`"x"`)})
	require.ErrorIs(t, err, ErrTaskNotFound)
}

func TestSubmitQuizStoresCompactJSON(t *testing.T) {
	svc, submissions, _ := newTestSubmissionService(t, models.Task{ID: 1, ExperimentID: 2, Type: models.TaskTypeQuiz})

	resp, err := svc.Submit(context.Background(), 7, 1, dto.SubmissionCreateRequest{
		ExperimentID: 2,
		Answer:       rawJSON(`{ "q1": "Paris",  "q2": [1, 2] }`),
	})
	require.NoError(t, err)
	require.Equal(t, uint(1), resp.ID)
	require.Equal(t, `{"q1":"Paris","q2":[1,2]}`, submissions.items[0].Answer)
	require.Equal(t, "Paris", resp.Answer.Fields()["q1"].Text())
}

func TestSubmitQuizStoresStringAsText(t *testing.T) {
	svc, submissions, _ := newTestSubmissionService(t, models.Task{ID: 1, ExperimentID: 2, Type: models.TaskTypeOther})

	_, err := svc.Submit(context.Background(), 7, 1, dto.SubmissionCreateRequest{ExperimentID: 2, Answer: rawJSON(`"hello world"`)})
	require.NoError(t, err)
	require.Equal(t, "hello world", submissions.items[0].Answer)
}

func TestSubmitQuizRejectsEmptyAnswer(t *testing.T) {
	svc, submissions, _ := newTestSubmissionService(t, models.Task{ID: 1, ExperimentID: 2, Type: models.TaskTypeQuiz})

	for _, raw := range []string{``, `null`, `"   "`} {
		_, err := svc.Submit(context.Background(), 7, 1, dto.SubmissionCreateRequest{ExperimentID: 2, Answer: rawJSON(raw)})
		require.ErrorIs(t, err, ErrEmptySubmission, raw)
	}
	require.Zero(t, submissions.creates)
}

func TestSubmitCodeBlobIsStoredAsSingleFile(t *testing.T) {
	svc, submissions, store := newTestSubmissionService(t, models.Task{ID: 1, ExperimentID: 2, Type: models.TaskTypeCode})

	code := "echo hi"
	_, err := svc.Submit(context.Background(), 7, 1, dto.SubmissionCreateRequest{ExperimentID: 2, Code: &code})
	require.NoError(t, err)

	var payload models.CodePayload
	require.NoError(t, json.Unmarshal([]byte(submissions.items[0].Answer), &payload))
	require.Equal(t, []string{"submissions/7/2/1/1700000000000/submission.txt"}, payload.Files)
	require.Equal(t, 1, payload.FileCount)
	require.Equal(t, []string{"submission.txt"}, payload.FileNames)

	content, err := store.Download(context.Background(), payload.Files[0])
	require.NoError(t, err)
	require.Equal(t, code, string(content))
}

func TestSubmitCodeKeepsDirectoryTree(t *testing.T) {
	svc, submissions, _ := newTestSubmissionService(t, models.Task{ID: 1, ExperimentID: 2, Type: models.TaskTypeCode})

	_, err := svc.Submit(context.Background(), 7, 1, dto.SubmissionCreateRequest{
		ExperimentID: 2,
		Files: []dto.SubmissionFile{
			{Name: "compile.sh", Content: "gcc src/main.c"},
			{Name: "src/main.c", Content: "int main(){return 0;}"},
		},
	})
	require.NoError(t, err)

	var payload models.CodePayload
	require.NoError(t, json.Unmarshal([]byte(submissions.items[0].Answer), &payload))
	require.Equal(t, 2, payload.FileCount)
	require.True(t, strings.HasSuffix(payload.Files[1], "/1700000000000/src/main.c"))
}

func TestSubmitCodeRejectsUnsafeNames(t *testing.T) {
	svc, submissions, _ := newTestSubmissionService(t, models.Task{ID: 1, ExperimentID: 2, Type: models.TaskTypeCode})

	for _, name := range []string{"../escape.sh", "/etc/passwd", "a//b", "dir\\file", "bad\x00name"} {
		_, err := svc.Submit(context.Background(), 7, 1, dto.SubmissionCreateRequest{
			ExperimentID: 2,
			Files:        []dto.SubmissionFile{{Name: name, Content: "x"}},
		})
		require.ErrorIs(t, err, ErrInvalidFileName, name)
	}
	require.Zero(t, submissions.creates)
}

func TestSubmitCodeRejectsBinaryContent(t *testing.T) {
	svc, _, _ := newTestSubmissionService(t, models.Task{ID: 1, ExperimentID: 2, Type: models.TaskTypeCode})

	_, err := svc.Submit(context.Background(), 7, 1, dto.SubmissionCreateRequest{
		ExperimentID: 2,
		Files:        []dto.SubmissionFile{{Name: "image.png", Content: "\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR"}},
	})
	require.ErrorIs(t, err, ErrUnsupportedFileType)
}

func TestSubmitCodeWithoutContentIsEmpty(t *testing.T) {
	svc, _, _ := newTestSubmissionService(t, models.Task{ID: 1, ExperimentID: 2, Type: models.TaskTypeCode})

	_, err := svc.Submit(context.Background(), 7, 1, dto.SubmissionCreateRequest{ExperimentID: 2})
	require.ErrorIs(t, err, ErrEmptySubmission)
}

func TestGetSubmissionEnforcesOwnership(t *testing.T) {
	svc, _, _ := newTestSubmissionService(t, models.Task{ID: 1, ExperimentID: 2, Type: models.TaskTypeQuiz})

	created, err := svc.Submit(context.Background(), 7, 1, dto.SubmissionCreateRequest{ExperimentID: 2, Answer: rawJSON(`"A"`)})
	require.NoError(t, err)

	_, err = svc.Get(context.Background(), created.ID, 8, "student")
	require.ErrorIs(t, err, ErrSubmissionForbidden)

	resp, err := svc.Get(context.Background(), created.ID, 8, "teacher")
	require.NoError(t, err)
	require.Equal(t, uint(7), resp.UserID)

	_, err = svc.Get(context.Background(), 404, 7, "student")
	require.ErrorIs(t, err, ErrSubmissionNotFound)
}
