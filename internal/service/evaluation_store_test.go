package service

import (
	"context"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/explab-api/internal/models"
)

type fakeEvaluationRepo struct {
	mu           sync.Mutex
	items        []models.Evaluation
	historyCalls int
	clock        time.Time
}

func (f *fakeEvaluationRepo) Create(ctx context.Context, evaluation *models.Evaluation) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	evaluation.ID = uint(len(f.items) + 1)
	if f.clock.IsZero() {
		f.clock = time.Unix(1700000000, 0).UTC()
	}
	f.clock = f.clock.Add(time.Second)
	evaluation.CreatedAt = f.clock
	f.items = append(f.items, *evaluation)
	return nil
}

func (f *fakeEvaluationRepo) FindLatestBySubmission(ctx context.Context, submissionID uint) (*models.Evaluation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := len(f.items) - 1; i >= 0; i-- {
		if f.items[i].SubmissionID == submissionID {
			latest := f.items[i]
			return &latest, nil
		}
	}
	return nil, nil
}

func (f *fakeEvaluationRepo) FindHistory(ctx context.Context, userID, taskID uint) ([]models.Evaluation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.historyCalls++
	var out []models.Evaluation
	for _, item := range f.items {
		if item.UserID == userID && item.TaskID == taskID {
			out = append(out, item)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return out, nil
}

func newMiniredisClient(t *testing.T) *redis.Client {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return client
}

func TestEvaluationStoreCachesHistory(t *testing.T) {
	repo := &fakeEvaluationRepo{}
	client := newMiniredisClient(t)
	store := NewEvaluationStore(repo, client, time.Minute, zerolog.Nop())
	ctx := context.Background()

	score := 50.0
	require.NoError(t, store.Save(ctx, &models.Evaluation{SubmissionID: 1, UserID: 7, TaskID: 3, Score: &score, Status: models.EvaluationStatusEvaluated}))

	first, err := store.FindHistory(ctx, 7, 3)
	require.NoError(t, err)
	require.Len(t, first, 1)

	second, err := store.FindHistory(ctx, 7, 3)
	require.NoError(t, err)
	require.Len(t, second, 1)
	require.Equal(t, 1, repo.historyCalls)
	require.InDelta(t, 50.0, *second[0].Score, 0.0001)

	exists, err := client.Exists(ctx, historyCacheKey(7, 3)).Result()
	require.NoError(t, err)
	require.Equal(t, int64(1), exists)
}

func TestEvaluationStoreSaveInvalidatesHistory(t *testing.T) {
	repo := &fakeEvaluationRepo{}
	store := NewEvaluationStore(repo, newMiniredisClient(t), time.Minute, zerolog.Nop())
	ctx := context.Background()

	require.NoError(t, store.Save(ctx, &models.Evaluation{SubmissionID: 1, UserID: 7, TaskID: 3, Status: models.EvaluationStatusError}))
	_, err := store.FindHistory(ctx, 7, 3)
	require.NoError(t, err)

	require.NoError(t, store.Save(ctx, &models.Evaluation{SubmissionID: 2, UserID: 7, TaskID: 3, Status: models.EvaluationStatusSuccess}))
	history, err := store.FindHistory(ctx, 7, 3)
	require.NoError(t, err)
	require.Len(t, history, 2)
	require.Equal(t, models.EvaluationStatusSuccess, history[0].Status)
	require.Equal(t, 2, repo.historyCalls)
}

func TestEvaluationStoreSurvivesCacheOutage(t *testing.T) {
	repo := &fakeEvaluationRepo{}
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	store := NewEvaluationStore(repo, client, time.Minute, zerolog.Nop())
	mr.Close()

	ctx := context.Background()
	require.NoError(t, store.Save(ctx, &models.Evaluation{SubmissionID: 1, UserID: 7, TaskID: 3, Status: models.EvaluationStatusEvaluated}))
	history, err := store.FindHistory(ctx, 7, 3)
	require.NoError(t, err)
	require.Len(t, history, 1)
}

func TestEvaluationStoreLatestIsNilWhenMissing(t *testing.T) {
	store := NewEvaluationStore(&fakeEvaluationRepo{}, nil, time.Minute, zerolog.Nop())

	latest, err := store.FindLatestBySubmission(context.Background(), 42)
	require.NoError(t, err)
	require.Nil(t, latest)
}

