package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/AkaakuHub/twix-saver/pkg/accounts"
	"github.com/AkaakuHub/twix-saver/pkg/articles"
	"github.com/AkaakuHub/twix-saver/pkg/browser"
	"github.com/AkaakuHub/twix-saver/pkg/chunks"
	"github.com/AkaakuHub/twix-saver/pkg/config"
	"github.com/AkaakuHub/twix-saver/pkg/engine"
	xerrors "github.com/AkaakuHub/twix-saver/pkg/errors"
	"github.com/AkaakuHub/twix-saver/pkg/logger"
	"github.com/AkaakuHub/twix-saver/pkg/models"
	"github.com/AkaakuHub/twix-saver/pkg/pipeline"
	"github.com/AkaakuHub/twix-saver/pkg/store"
)

// Orchestrator runs scraping jobs end to end: account selection, login,
// per-target harvest, article enrichment, ingestion and job finalization.
type Orchestrator struct {
	cfg       *config.Config
	jobs      *store.JobRepository
	posts     *store.PostRepository
	articles  *store.ArticleRepository
	pool      *accounts.Pool
	pipeline  *pipeline.Pipeline
	extractor articles.Extractor
	newDriver func() browser.Driver
	log       logger.Logger
}

// New creates an orchestrator. newDriver builds a fresh browser per job so a
// crashed Chrome never poisons the next run.
func New(
	cfg *config.Config,
	jobs *store.JobRepository,
	posts *store.PostRepository,
	articleRepo *store.ArticleRepository,
	pool *accounts.Pool,
	pipe *pipeline.Pipeline,
	extractor articles.Extractor,
	newDriver func() browser.Driver,
) *Orchestrator {
	return &Orchestrator{
		cfg:       cfg,
		jobs:      jobs,
		posts:     posts,
		articles:  articleRepo,
		pool:      pool,
		pipeline:  pipe,
		extractor: extractor,
		newDriver: newDriver,
		log:       logger.GetLogger().WithField("component", "orchestrator"),
	}
}

// CreateJob persists a new pending job for the given targets and optional
// specific post ids to refetch
func (o *Orchestrator) CreateJob(ctx context.Context, targets, postIDs []string, processArticles bool, maxPosts *int) (*models.Job, error) {
	if len(targets) == 0 && len(postIDs) == 0 {
		return nil, errors.New("job needs at least one target or post id")
	}
	for i, t := range targets {
		targets[i] = strings.TrimPrefix(strings.TrimSpace(t), "@")
	}

	job := models.NewJob(targets, processArticles, maxPosts)
	job.SpecificPostIDs = postIDs
	if err := o.jobs.Create(ctx, job); err != nil {
		return nil, err
	}
	o.log.InfoWithFields("job created", map[string]interface{}{
		"job_id":  job.JobID,
		"targets": targets,
	})
	return job, nil
}

// Run executes one job to a terminal state. The returned error reflects the
// run outcome; the job row always ends up terminal regardless.
func (o *Orchestrator) Run(ctx context.Context, jobID string) error {
	job, err := o.jobs.Get(ctx, jobID)
	if err != nil {
		return err
	}

	// Fail fast before touching the browser when the pool is empty
	account, err := o.pool.Select(ctx)
	if err != nil {
		if errors.Is(err, accounts.ErrNoAvailableAccounts) {
			_ = o.jobs.Fail(ctx, jobID, "no available accounts in pool")
		}
		return err
	}

	if err := o.jobs.Start(ctx, jobID, account.Username); err != nil {
		return err
	}
	if err := o.pool.MarkUsed(ctx, account.AccountID); err != nil {
		o.log.WithError(err).Warn("could not record account pickup")
	}

	stats, runErr := o.runScrape(ctx, job, account)
	if runErr != nil {
		_ = o.pool.MarkJobFailure(ctx, account.AccountID, failureKind(runErr))
		_ = o.jobs.Fail(ctx, jobID, runErr.Error())
		return runErr
	}

	if o.jobs.IsCancelled(ctx, jobID) {
		o.log.WithField("job_id", jobID).Info("job was cancelled mid-run")
		return nil
	}

	if err := o.jobs.Complete(ctx, jobID, *stats); err != nil {
		return err
	}
	if err := o.pool.MarkJobSuccess(ctx, account.AccountID); err != nil {
		o.log.WithError(err).Warn("could not record account success")
	}

	if _, err := o.jobs.CleanupOld(ctx, o.cfg.Jobs.RetentionDays); err != nil {
		o.log.WithError(err).Warn("job retention sweep failed")
	}
	return nil
}

// runScrape performs the browser-bound phase and ingestion, returning the
// aggregated stats
func (o *Orchestrator) runScrape(ctx context.Context, job *models.Job, account *models.Account) (*models.JobStats, error) {
	driver := o.newDriver()
	eng := engine.NewEngine(&o.cfg.Scraper, driver)
	eng.SetScraperAccount(account.Username)

	if err := driver.Start(ctx); err != nil {
		return nil, err
	}
	defer driver.Close()

	password, err := o.pool.DecryptPassword(account)
	if err != nil {
		return nil, err
	}
	if err := eng.Login(ctx, o.cfg.Browser.SessionsDir, account, password); err != nil {
		return nil, err
	}

	stats := &models.JobStats{}
	var chunkFiles []string

	for _, target := range job.TargetUsernames {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if o.jobs.IsCancelled(ctx, job.JobID) {
			return stats, nil
		}

		files, err := o.harvestTarget(ctx, eng, job, target, stats)
		if err != nil {
			// One target's failure must not sink the others
			stats.ErrorsCount++
			_ = o.jobs.AppendError(ctx, job.JobID, fmt.Sprintf("target @%s failed: %v", target, err))
			continue
		}
		chunkFiles = append(chunkFiles, files...)
	}

	for _, postID := range job.SpecificPostIDs {
		if o.jobs.IsCancelled(ctx, job.JobID) {
			return stats, nil
		}
		payload, err := eng.RefetchPost(ctx, postID)
		if err != nil {
			stats.ErrorsCount++
			_ = o.jobs.AppendError(ctx, job.JobID, fmt.Sprintf("refetch of %s failed: %v", postID, err))
			continue
		}
		if err := o.posts.Upsert(ctx, &models.Post{Payload: payload, State: models.NewImageProcessingState()}); err != nil {
			stats.ErrorsCount++
			_ = o.jobs.AppendError(ctx, job.JobID, fmt.Sprintf("refetch persist of %s failed: %v", postID, err))
		}
	}

	if job.ProcessArticles && o.cfg.Articles.Enabled {
		o.enrichArticles(ctx, job, chunkFiles, stats)
	}

	result, err := o.pipeline.ProcessPendingChunks(ctx)
	if err != nil {
		return nil, err
	}
	stats.MediaDownloaded += result.Media
	_ = o.jobs.AppendLog(ctx, job.JobID, fmt.Sprintf("ingested %d chunk files (%d posts, %d media)",
		result.Files, result.Posts, result.Media))

	if _, err := o.pipeline.RetryFailedMedia(ctx, 100); err != nil {
		o.log.WithError(err).Warn("media retry pass failed")
	}

	return stats, nil
}

// harvestTarget scrapes one target, choosing a differential sync when the
// target already has persisted posts and a full harvest otherwise
func (o *Orchestrator) harvestTarget(ctx context.Context, eng *engine.Engine, job *models.Job, target string, stats *models.JobStats) ([]string, error) {
	known, err := o.posts.KnownIDs(ctx, strings.TrimPrefix(target, "@"))
	if err != nil {
		return nil, err
	}

	if len(known) > 0 {
		result, err := eng.SyncTarget(ctx, target, known)
		if err != nil {
			return nil, err
		}
		stats.PostsCollected += result.NewPosts
		_ = o.jobs.AppendLog(ctx, job.JobID, fmt.Sprintf("synced @%s (%d new posts)", target, result.NewPosts))
		return result.ChunkFiles, nil
	}

	maxPosts := 0
	if job.MaxPosts != nil {
		maxPosts = *job.MaxPosts
	}
	result, err := eng.HarvestTarget(ctx, target, maxPosts)
	if err != nil {
		return nil, err
	}
	stats.PostsCollected += result.PostsCollected
	stats.PagesScrolled += result.PagesScrolled
	stats.APIRequestsMade += result.APIRequests
	_ = o.jobs.AppendLog(ctx, job.JobID, fmt.Sprintf("harvested @%s (%d posts)", target, result.PostsCollected))
	return result.ChunkFiles, nil
}

// enrichArticles extracts the outbound links of the freshly spooled posts.
// Link pages that are themselves images are left to the media stage.
func (o *Orchestrator) enrichArticles(ctx context.Context, job *models.Job, chunkFiles []string, stats *models.JobStats) {
	seen := map[string]struct{}{}
	for _, file := range chunkFiles {
		records, err := chunks.Read(file)
		if err != nil {
			continue
		}
		for _, record := range records {
			for _, url := range models.OutboundURLs(record) {
				if _, dup := seen[url]; dup {
					continue
				}
				seen[url] = struct{}{}

				article, err := o.extractor.Extract(ctx, url)
				if err != nil {
					o.log.WithError(err).WithField("url", url).Debug("article extraction failed")
					continue
				}
				if err := o.articles.Upsert(ctx, article.Payload()); err != nil {
					o.log.WithError(err).WithField("url", url).Warn("article persist failed")
					continue
				}
				stats.ArticlesExtracted++
			}
		}
	}
	if stats.ArticlesExtracted > 0 {
		_ = o.jobs.AppendLog(ctx, job.JobID, fmt.Sprintf("extracted %d linked articles", stats.ArticlesExtracted))
	}
}

// failureKind maps a run error to the pool's failure taxonomy
func failureKind(err error) string {
	var typed *xerrors.Error
	if errors.As(err, &typed) && typed.Type == xerrors.ErrorTypeAuth {
		return "login_failed"
	}
	return "scrape_failed"
}
