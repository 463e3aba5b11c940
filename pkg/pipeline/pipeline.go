package pipeline

import (
	"context"
	"path/filepath"

	"github.com/AkaakuHub/twix-saver/pkg/chunks"
	"github.com/AkaakuHub/twix-saver/pkg/config"
	"github.com/AkaakuHub/twix-saver/pkg/logger"
	"github.com/AkaakuHub/twix-saver/pkg/models"
	"github.com/AkaakuHub/twix-saver/pkg/store"
)

// Result summarizes one ingestion pass
type Result struct {
	Files    int
	Posts    int
	Articles int
	Media    int
}

// Pipeline moves spooled chunk files into durable storage: classify records,
// download media with bounded concurrency, upsert posts and articles, and
// delete each chunk file only after everything in it is persisted.
type Pipeline struct {
	cfg      *config.IngestConfig
	chunkDir string
	posts    *store.PostRepository
	articles *store.ArticleRepository
	media    *MediaProcessor
	log      logger.Logger
}

// New creates an ingestion pipeline
func New(cfg *config.IngestConfig, chunkDir string, posts *store.PostRepository, articles *store.ArticleRepository, media *MediaProcessor) *Pipeline {
	return &Pipeline{
		cfg:      cfg,
		chunkDir: chunkDir,
		posts:    posts,
		articles: articles,
		media:    media,
		log:      logger.GetLogger().WithField("component", "pipeline"),
	}
}

// ProcessPendingChunks ingests every spooled chunk file. A failing file is
// left in place for the next pass; the others still go through.
func (p *Pipeline) ProcessPendingChunks(ctx context.Context) (*Result, error) {
	files, err := chunks.ListPending(p.chunkDir)
	if err != nil {
		return nil, err
	}

	result := &Result{}
	for _, file := range files {
		if err := ctx.Err(); err != nil {
			return result, err
		}

		posts, articles, media, err := p.processFile(ctx, file)
		if err != nil {
			p.log.WithError(err).WarnWithFields("chunk ingestion failed, file kept for retry", map[string]interface{}{
				"file": filepath.Base(file),
			})
			continue
		}
		result.Files++
		result.Posts += posts
		result.Articles += articles
		result.Media += media
	}

	p.log.InfoWithFields("ingestion pass finished", map[string]interface{}{
		"files":    result.Files,
		"posts":    result.Posts,
		"articles": result.Articles,
		"media":    result.Media,
	})
	return result, nil
}

// processFile ingests one chunk file and deletes it on full success
func (p *Pipeline) processFile(ctx context.Context, file string) (int, int, int, error) {
	records, err := chunks.Read(file)
	if err != nil {
		return 0, 0, 0, err
	}

	var posts []*models.Post
	var articles []map[string]any
	skipped := 0
	for _, record := range records {
		switch {
		case isPostRecord(record):
			posts = append(posts, &models.Post{
				Payload: record,
				State:   models.NewImageProcessingState(),
			})
		case isArticleRecord(record):
			articles = append(articles, record)
		default:
			skipped++
		}
	}
	if skipped > 0 {
		p.log.WarnWithFields("unclassifiable records skipped", map[string]interface{}{
			"file":    filepath.Base(file),
			"skipped": skipped,
		})
	}

	postCount, mediaCount, err := p.processPosts(ctx, posts)
	if err != nil {
		return 0, 0, 0, err
	}

	articleCount, err := p.articles.UpsertBatch(ctx, articles)
	if err != nil {
		return 0, 0, 0, err
	}

	if err := chunks.Delete(file); err != nil {
		// Already persisted; a re-ingest of this file is idempotent
		p.log.WithError(err).Warn("could not delete ingested chunk file")
	}
	return postCount, articleCount, mediaCount, nil
}

// isPostRecord is the structural post test: any of the id or body markers
func isPostRecord(record map[string]any) bool {
	for _, key := range []string{models.IDField, models.RestIDField, "legacy", "core"} {
		if _, ok := record[key]; ok {
			return true
		}
	}
	return false
}

// isArticleRecord is the structural article test: a url plus extracted content
func isArticleRecord(record map[string]any) bool {
	if _, ok := record["url"]; !ok {
		return false
	}
	if _, ok := record["cleaned_text"]; ok {
		return true
	}
	_, ok := record["title"]
	return ok
}
