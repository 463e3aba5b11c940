package store

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AkaakuHub/twix-saver/pkg/config"
	"github.com/AkaakuHub/twix-saver/pkg/models"
	"gorm.io/gorm"
)

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := Open(&config.DatabaseConfig{
		Driver:       "sqlite",
		Path:         filepath.Join(t.TempDir(), "test.db"),
		MaxIdleConns: 1,
		MaxOpenConns: 1,
		AutoMigrate:  true,
	})
	require.NoError(t, err)
	return db
}

func testPost(id, screenName string) *models.Post {
	return &models.Post{
		Payload: map[string]any{
			"rest_id": id,
			"legacy":  map[string]any{"full_text": "hello"},
			"user":    map[string]any{"screen_name": screenName},
			"scraped_at": "2024-01-01T00:00:00Z",
		},
		State: models.NewImageProcessingState(),
	}
}

func TestPostUpsertIsIdempotent(t *testing.T) {
	ctx := context.Background()
	repo := NewPostRepository(openTestDB(t))

	require.NoError(t, repo.Upsert(ctx, testPost("100", "alice")))
	require.NoError(t, repo.Upsert(ctx, testPost("100", "alice")))

	n, err := repo.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestPostLookupByEitherIDAlias(t *testing.T) {
	ctx := context.Background()
	repo := NewPostRepository(openTestDB(t))
	require.NoError(t, repo.Upsert(ctx, testPost("100", "alice")))

	byID, err := repo.GetByID(ctx, "100")
	require.NoError(t, err)
	assert.Equal(t, "100", byID.ID)
	assert.Equal(t, "100", byID.Payload["id_str"])
	assert.Equal(t, "100", byID.Payload["rest_id"])
}

func TestPostUpsertMergePreservesMediaRefs(t *testing.T) {
	ctx := context.Background()
	repo := NewPostRepository(openTestDB(t))

	withMedia := testPost("100", "alice")
	withMedia.Payload[models.MediaField] = []models.MediaRef{
		{MediaID: "m1", Type: models.MediaTypePhoto, OrderType: models.OrderTypeAttachment},
	}
	require.NoError(t, repo.Upsert(ctx, withMedia))

	// A later harvest of the same post carries no media field
	require.NoError(t, repo.Upsert(ctx, testPost("100", "alice")))

	post, err := repo.GetByID(ctx, "100")
	require.NoError(t, err)
	refs, ok := post.Payload[models.MediaField].([]any)
	require.True(t, ok, "media refs survived the merge")
	assert.Len(t, refs, 1)
}

func TestKnownIDs(t *testing.T) {
	ctx := context.Background()
	repo := NewPostRepository(openTestDB(t))
	require.NoError(t, repo.Upsert(ctx, testPost("1", "alice")))
	require.NoError(t, repo.Upsert(ctx, testPost("2", "alice")))
	require.NoError(t, repo.Upsert(ctx, testPost("3", "bob")))

	known, err := repo.KnownIDs(ctx, "alice")
	require.NoError(t, err)
	assert.Len(t, known, 2)
	_, ok := known["1"]
	assert.True(t, ok)
	_, ok = known["3"]
	assert.False(t, ok)
}

func TestListRetryableRespectsBudget(t *testing.T) {
	ctx := context.Background()
	repo := NewPostRepository(openTestDB(t))

	eligible := testPost("1", "alice")
	eligible.State.MarkFailed("timeout")
	eligible.State.MarkFailed("timeout")
	require.NoError(t, repo.Upsert(ctx, eligible))
	require.NoError(t, repo.UpdateImageState(ctx, "1", eligible.State))

	exhausted := testPost("2", "alice")
	exhausted.State.MarkFailed("timeout")
	exhausted.State.MarkFailed("timeout")
	exhausted.State.MarkFailed("timeout")
	require.NoError(t, repo.Upsert(ctx, exhausted))
	require.NoError(t, repo.UpdateImageState(ctx, "2", exhausted.State))

	posts, err := repo.ListRetryable(ctx, 3, 10)
	require.NoError(t, err)
	require.Len(t, posts, 1)
	assert.Equal(t, "1", posts[0].ID)
}

func TestJobStateMachineGuards(t *testing.T) {
	ctx := context.Background()
	repo := NewJobRepository(openTestDB(t))

	job := models.NewJob([]string{"alice"}, false, nil)
	require.NoError(t, repo.Create(ctx, job))

	// completing a pending job is rejected
	assert.ErrorIs(t, repo.Complete(ctx, job.JobID, models.JobStats{}), ErrInvalidTransition)

	require.NoError(t, repo.Start(ctx, job.JobID, "scraper1"))
	// a second start is rejected
	assert.ErrorIs(t, repo.Start(ctx, job.JobID, "scraper2"), ErrInvalidTransition)

	got, err := repo.Get(ctx, job.JobID)
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusRunning, got.Status)
	assert.Equal(t, "scraper1", got.ScraperAccount)
	assert.NotNil(t, got.StartedAt)

	require.NoError(t, repo.Complete(ctx, job.JobID, models.JobStats{PostsCollected: 7}))
	got, err = repo.Get(ctx, job.JobID)
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusCompleted, got.Status)
	assert.Equal(t, 7, got.Stats.PostsCollected)
	assert.NotNil(t, got.CompletedAt)

	// terminal jobs cannot be cancelled
	assert.ErrorIs(t, repo.Cancel(ctx, job.JobID), ErrInvalidTransition)
}

func TestJobResetToPending(t *testing.T) {
	ctx := context.Background()
	repo := NewJobRepository(openTestDB(t))

	job := models.NewJob([]string{"alice"}, false, nil)
	require.NoError(t, repo.Create(ctx, job))

	// only terminal jobs can be reset
	assert.ErrorIs(t, repo.ResetToPending(ctx, job.JobID), ErrInvalidTransition)

	require.NoError(t, repo.Start(ctx, job.JobID, "scraper1"))
	require.NoError(t, repo.Fail(ctx, job.JobID, "browser crashed"))

	require.NoError(t, repo.ResetToPending(ctx, job.JobID))
	got, err := repo.Get(ctx, job.JobID)
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusPending, got.Status)
	assert.Nil(t, got.StartedAt)
	assert.Nil(t, got.CompletedAt)
	// the audit trail survives the reset
	assert.NotEmpty(t, got.Logs)
}

func TestJobCancellationFlag(t *testing.T) {
	ctx := context.Background()
	repo := NewJobRepository(openTestDB(t))

	job := models.NewJob([]string{"alice"}, false, nil)
	require.NoError(t, repo.Create(ctx, job))
	assert.False(t, repo.IsCancelled(ctx, job.JobID))

	require.NoError(t, repo.Cancel(ctx, job.JobID))
	assert.True(t, repo.IsCancelled(ctx, job.JobID))
}

func TestJobAppendErrorMirrorsToLogs(t *testing.T) {
	ctx := context.Background()
	repo := NewJobRepository(openTestDB(t))

	job := models.NewJob([]string{"alice"}, false, nil)
	require.NoError(t, repo.Create(ctx, job))
	require.NoError(t, repo.AppendError(ctx, job.JobID, "target failed"))

	got, err := repo.Get(ctx, job.JobID)
	require.NoError(t, err)
	require.Len(t, got.Errors, 1)
	assert.Contains(t, got.Errors[0], "target failed")
	assert.Contains(t, got.Logs, got.Errors[0])
}

func TestJobIncrementStats(t *testing.T) {
	ctx := context.Background()
	repo := NewJobRepository(openTestDB(t))

	job := models.NewJob([]string{"alice"}, false, nil)
	require.NoError(t, repo.Create(ctx, job))

	require.NoError(t, repo.IncrementStats(ctx, job.JobID, models.JobStats{PostsCollected: 5, MediaDownloaded: 2}))
	require.NoError(t, repo.IncrementStats(ctx, job.JobID, models.JobStats{PostsCollected: 3}))

	got, err := repo.Get(ctx, job.JobID)
	require.NoError(t, err)
	assert.Equal(t, 8, got.Stats.PostsCollected)
	assert.Equal(t, 2, got.Stats.MediaDownloaded)
}

func TestAccountRepositoryRoundTrip(t *testing.T) {
	ctx := context.Background()
	repo := NewAccountRepository(openTestDB(t))

	account := models.NewAccount("alice", "alice@example.com", "encrypted-blob")
	require.NoError(t, repo.Create(ctx, account))

	got, err := repo.GetByUsername(ctx, "@alice")
	require.NoError(t, err)
	assert.Equal(t, account.AccountID, got.AccountID)
	assert.Equal(t, "encrypted-blob", got.PasswordEncrypted)

	got.Active = false
	got.Status = models.AccountStatusInactive
	require.NoError(t, repo.Update(ctx, got))

	active, err := repo.List(ctx, false)
	require.NoError(t, err)
	assert.Empty(t, active)

	all, err := repo.List(ctx, true)
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestArticleUpsertByURL(t *testing.T) {
	ctx := context.Background()
	repo := NewArticleRepository(openTestDB(t))

	require.NoError(t, repo.Upsert(ctx, map[string]any{"url": "https://example.com/a", "title": "first"}))
	require.NoError(t, repo.Upsert(ctx, map[string]any{"url": "https://example.com/a", "title": "updated"}))

	n, err := repo.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	got, err := repo.GetByURL(ctx, "https://example.com/a")
	require.NoError(t, err)
	assert.Equal(t, "updated", got["title"])
}
