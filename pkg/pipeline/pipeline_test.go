package pipeline

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/AkaakuHub/twix-saver/pkg/blob"
	"github.com/AkaakuHub/twix-saver/pkg/chunks"
	"github.com/AkaakuHub/twix-saver/pkg/config"
	"github.com/AkaakuHub/twix-saver/pkg/models"
	"github.com/AkaakuHub/twix-saver/pkg/store"
)

func TestRecordClassification(t *testing.T) {
	post := map[string]any{"rest_id": "1", "legacy": map[string]any{}}
	assert.True(t, isPostRecord(post))
	assert.False(t, isArticleRecord(post))

	article := map[string]any{"url": "https://example.com", "title": "hello"}
	assert.False(t, isPostRecord(article))
	assert.True(t, isArticleRecord(article))

	articleByText := map[string]any{"url": "https://example.com", "cleaned_text": "body"}
	assert.True(t, isArticleRecord(articleByText))

	bareURL := map[string]any{"url": "https://example.com"}
	assert.False(t, isArticleRecord(bareURL), "a url without content is not an article")

	junk := map[string]any{"foo": "bar"}
	assert.False(t, isPostRecord(junk))
	assert.False(t, isArticleRecord(junk))
}

func newTestPipeline(t *testing.T, db *gorm.DB, chunkDir string) *Pipeline {
	t.Helper()

	blobs, err := blob.NewFSStore(filepath.Join(t.TempDir(), "blobs"))
	require.NoError(t, err)

	cfg := config.DefaultConfig().Ingest
	cfg.RequestsPerMinute = 0 // no download pacing in tests
	media := NewMediaProcessor(&cfg, blobs, store.NewMediaRepository(db))
	return New(&cfg, chunkDir, store.NewPostRepository(db), store.NewArticleRepository(db), media)
}

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := store.Open(&config.DatabaseConfig{
		Driver:       "sqlite",
		Path:         filepath.Join(t.TempDir(), "test.db"),
		MaxIdleConns: 1,
		MaxOpenConns: 1,
		AutoMigrate:  true,
	})
	require.NoError(t, err)
	return db
}

func TestProcessPendingChunksPersistsAndDeletes(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	chunkDir := t.TempDir()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "image/jpeg")
		w.Write([]byte("jpegbytes"))
	}))
	defer server.Close()

	writer, err := chunks.NewWriter(chunkDir, "alice")
	require.NoError(t, err)
	_, err = writer.Write([]map[string]any{
		{
			"rest_id": "100",
			"legacy": map[string]any{
				"full_text": "with a photo",
				"extended_entities": map[string]any{
					"media": []any{map[string]any{
						"type":            "photo",
						"media_url_https": server.URL + "/pic.jpg",
						"indices":         []any{float64(0), float64(10)},
					}},
				},
			},
		},
		{"url": "https://example.com/story", "title": "a story"},
	})
	require.NoError(t, err)

	p := newTestPipeline(t, db, chunkDir)
	result, err := p.ProcessPendingChunks(ctx)
	require.NoError(t, err)

	assert.Equal(t, 1, result.Files)
	assert.Equal(t, 1, result.Posts)
	assert.Equal(t, 1, result.Articles)
	assert.Equal(t, 1, result.Media)

	// chunk file deleted only after everything is persisted
	remaining, err := chunks.ListPending(chunkDir)
	require.NoError(t, err)
	assert.Empty(t, remaining)

	posts := store.NewPostRepository(db)
	post, err := posts.GetByID(ctx, "100")
	require.NoError(t, err)
	assert.Equal(t, models.ImageStatusCompleted, post.State.Status)
	refs, ok := post.Payload[models.MediaField].([]any)
	require.True(t, ok)
	assert.Len(t, refs, 1)
}

func TestFailedDownloadsMarkPostFailed(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	chunkDir := t.TempDir()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	writer, err := chunks.NewWriter(chunkDir, "alice")
	require.NoError(t, err)
	_, err = writer.Write([]map[string]any{{
		"rest_id": "200",
		"legacy": map[string]any{
			"extended_entities": map[string]any{
				"media": []any{map[string]any{
					"type":            "photo",
					"media_url_https": server.URL + "/gone.jpg",
				}},
			},
		},
	}})
	require.NoError(t, err)

	p := newTestPipeline(t, db, chunkDir)
	_, err = p.ProcessPendingChunks(ctx)
	require.NoError(t, err)

	post, err := store.NewPostRepository(db).GetByID(ctx, "200")
	require.NoError(t, err)
	assert.Equal(t, models.ImageStatusFailed, post.State.Status)
	assert.Equal(t, 1, post.State.RetryCount)
	assert.True(t, post.State.ShouldRetry(3))
}

func TestPostWithoutMediaIsSkipped(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	chunkDir := t.TempDir()

	writer, err := chunks.NewWriter(chunkDir, "alice")
	require.NoError(t, err)
	_, err = writer.Write([]map[string]any{{
		"rest_id": "300",
		"legacy":  map[string]any{"full_text": "plain text"},
	}})
	require.NoError(t, err)

	p := newTestPipeline(t, db, chunkDir)
	_, err = p.ProcessPendingChunks(ctx)
	require.NoError(t, err)

	post, err := store.NewPostRepository(db).GetByID(ctx, "300")
	require.NoError(t, err)
	assert.Equal(t, models.ImageStatusSkipped, post.State.Status)
}

func TestUnreadableChunkFileIsKept(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	chunkDir := t.TempDir()

	// A directory with a .jsonl name cannot be opened as a file
	require.NoError(t, os.Mkdir(filepath.Join(chunkDir, "broken.jsonl"), 0755))

	writer, err := chunks.NewWriter(chunkDir, "alice")
	require.NoError(t, err)
	_, err = writer.Write([]map[string]any{{
		"rest_id": "400",
		"legacy":  map[string]any{"full_text": "ok"},
	}})
	require.NoError(t, err)

	p := newTestPipeline(t, db, chunkDir)
	result, err := p.ProcessPendingChunks(ctx)
	require.NoError(t, err)

	assert.Equal(t, 1, result.Files, "the healthy file still goes through")
	_, statErr := os.Stat(filepath.Join(chunkDir, "broken.jsonl"))
	assert.NoError(t, statErr, "the broken entry stays for inspection")
}
