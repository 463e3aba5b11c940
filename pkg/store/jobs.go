package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/AkaakuHub/twix-saver/pkg/logger"
	"github.com/AkaakuHub/twix-saver/pkg/models"
)

// ErrInvalidTransition is returned when a guarded state-machine update finds
// the job in a state the transition does not accept
var ErrInvalidTransition = fmt.Errorf("job is not in a state that permits this transition")

// JobRepository persists scraping jobs and enforces their state machine.
// Every log append, stat increment and transition is a single idempotent
// update, safe to retry.
type JobRepository struct {
	db  *gorm.DB
	log logger.Logger
}

// NewJobRepository creates a job repository bound to db
func NewJobRepository(db *gorm.DB) *JobRepository {
	return &JobRepository{db: db, log: logger.GetLogger()}
}

// Create persists a new pending job
func (r *JobRepository) Create(ctx context.Context, job *models.Job) error {
	rec, err := jobToRecord(job)
	if err != nil {
		return err
	}
	return r.db.WithContext(ctx).Create(rec).Error
}

// Get looks a job up by id
func (r *JobRepository) Get(ctx context.Context, jobID string) (*models.Job, error) {
	var rec JobRecord
	if err := r.db.WithContext(ctx).Where("job_id = ?", jobID).First(&rec).Error; err != nil {
		return nil, err
	}
	return recordToJob(&rec)
}

// List returns jobs, newest first, optionally filtered by status
func (r *JobRepository) List(ctx context.Context, status models.JobStatus, limit, offset int) ([]*models.Job, error) {
	q := r.db.WithContext(ctx).Model(&JobRecord{}).Order("created_at DESC")
	if status != "" {
		q = q.Where("status = ?", string(status))
	}
	if limit > 0 {
		q = q.Limit(limit)
	}
	if offset > 0 {
		q = q.Offset(offset)
	}

	var recs []JobRecord
	if err := q.Find(&recs).Error; err != nil {
		return nil, err
	}

	jobs := make([]*models.Job, 0, len(recs))
	for i := range recs {
		job, err := recordToJob(&recs[i])
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, job)
	}
	return jobs, nil
}

// Start moves a job from pending to running. The update is conditioned on the
// current state so StartedAt is set exactly once; a second call reports
// ErrInvalidTransition.
func (r *JobRepository) Start(ctx context.Context, jobID, scraperAccount string) error {
	now := time.Now().UTC()
	res := r.db.WithContext(ctx).
		Model(&JobRecord{}).
		Where("job_id = ? AND status = ?", jobID, string(models.JobStatusPending)).
		Updates(map[string]any{
			"status":          string(models.JobStatusRunning),
			"started_at":      now,
			"scraper_account": scraperAccount,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrInvalidTransition
	}
	return r.AppendLog(ctx, jobID, "scraping job started")
}

// Complete moves a running job to completed, stamps CompletedAt, stores the
// aggregated stats and appends a summary log line
func (r *JobRepository) Complete(ctx context.Context, jobID string, stats models.JobStats) error {
	now := time.Now().UTC()

	job, err := r.Get(ctx, jobID)
	if err != nil {
		return err
	}
	if job.StartedAt != nil {
		stats.ProcessingTimeSeconds = now.Sub(*job.StartedAt).Seconds()
	}

	res := r.db.WithContext(ctx).
		Model(&JobRecord{}).
		Where("job_id = ? AND status = ?", jobID, string(models.JobStatusRunning)).
		Updates(map[string]any{
			"status":                  string(models.JobStatusCompleted),
			"completed_at":            now,
			"posts_collected":         stats.PostsCollected,
			"articles_extracted":      stats.ArticlesExtracted,
			"media_downloaded":        stats.MediaDownloaded,
			"errors_count":            stats.ErrorsCount,
			"processing_time_seconds": stats.ProcessingTimeSeconds,
			"pages_scrolled":          stats.PagesScrolled,
			"api_requests_made":       stats.APIRequestsMade,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrInvalidTransition
	}

	summary := fmt.Sprintf("scraping job completed (posts: %d, articles: %d)",
		stats.PostsCollected, stats.ArticlesExtracted)
	return r.AppendLog(ctx, jobID, summary)
}

// Fail moves a running job to failed and records the triggering error
func (r *JobRepository) Fail(ctx context.Context, jobID, errMsg string) error {
	now := time.Now().UTC()
	res := r.db.WithContext(ctx).
		Model(&JobRecord{}).
		Where("job_id = ? AND status IN ?", jobID,
			[]string{string(models.JobStatusPending), string(models.JobStatusRunning)}).
		Updates(map[string]any{
			"status":       string(models.JobStatusFailed),
			"completed_at": now,
			"errors_count": gorm.Expr("errors_count + 1"),
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrInvalidTransition
	}
	return r.AppendError(ctx, jobID, errMsg)
}

// Cancel marks a pending or running job cancelled. Cancellation is a status
// flag only; in-flight work observes it at its own checkpoints.
func (r *JobRepository) Cancel(ctx context.Context, jobID string) error {
	now := time.Now().UTC()
	res := r.db.WithContext(ctx).
		Model(&JobRecord{}).
		Where("job_id = ? AND status IN ?", jobID,
			[]string{string(models.JobStatusPending), string(models.JobStatusRunning)}).
		Updates(map[string]any{
			"status":       string(models.JobStatusCancelled),
			"completed_at": now,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrInvalidTransition
	}
	return r.AppendLog(ctx, jobID, "job was cancelled")
}

// ResetToPending is the one deliberate backward transition: it returns a
// terminal job to pending so it can be rerun, clearing the start/completion
// stamps and leaving an audit entry in the logs.
func (r *JobRepository) ResetToPending(ctx context.Context, jobID string) error {
	res := r.db.WithContext(ctx).
		Model(&JobRecord{}).
		Where("job_id = ? AND status IN ?", jobID, []string{
			string(models.JobStatusCompleted),
			string(models.JobStatusFailed),
			string(models.JobStatusCancelled),
		}).
		Updates(map[string]any{
			"status":       string(models.JobStatusPending),
			"started_at":   nil,
			"completed_at": nil,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrInvalidTransition
	}
	return r.AppendLog(ctx, jobID, "job reset to pending for rerun")
}

// IsCancelled reports whether the job has been flagged cancelled. Used as the
// cooperative cancellation checkpoint between targets and batches.
func (r *JobRepository) IsCancelled(ctx context.Context, jobID string) bool {
	var status string
	err := r.db.WithContext(ctx).
		Model(&JobRecord{}).
		Where("job_id = ?", jobID).
		Pluck("status", &status).Error
	if err != nil {
		return false
	}
	return status == string(models.JobStatusCancelled)
}

// AppendLog appends one timestamped entry to the job's log list
func (r *JobRepository) AppendLog(ctx context.Context, jobID, message string) error {
	return r.appendLines(ctx, jobID, models.LogLine(message), false)
}

// AppendError appends one timestamped entry to the job's error list and
// mirrors it into the logs. The error counter is written by Fail and
// Complete, not here, so callers that both log and count do not double-count.
func (r *JobRepository) AppendError(ctx context.Context, jobID, message string) error {
	return r.appendLines(ctx, jobID, models.LogLine(message), true)
}

func (r *JobRepository) appendLines(ctx context.Context, jobID, line string, isError bool) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var rec JobRecord
		if err := tx.Where("job_id = ?", jobID).First(&rec).Error; err != nil {
			return err
		}

		logs, errs := decodeLines(rec.Logs), decodeLines(rec.Errors)
		logs = append(logs, line)
		updates := map[string]any{"logs": encodeLines(logs)}
		if isError {
			errs = append(errs, line)
			updates["errors"] = encodeLines(errs)
		}

		return tx.Model(&JobRecord{}).Where("job_id = ?", jobID).Updates(updates).Error
	})
}

// IncrementStats bumps the job's counters by the given deltas in one update
func (r *JobRepository) IncrementStats(ctx context.Context, jobID string, delta models.JobStats) error {
	updates := map[string]any{}
	if delta.PostsCollected != 0 {
		updates["posts_collected"] = gorm.Expr("posts_collected + ?", delta.PostsCollected)
	}
	if delta.ArticlesExtracted != 0 {
		updates["articles_extracted"] = gorm.Expr("articles_extracted + ?", delta.ArticlesExtracted)
	}
	if delta.MediaDownloaded != 0 {
		updates["media_downloaded"] = gorm.Expr("media_downloaded + ?", delta.MediaDownloaded)
	}
	if delta.ErrorsCount != 0 {
		updates["errors_count"] = gorm.Expr("errors_count + ?", delta.ErrorsCount)
	}
	if delta.PagesScrolled != 0 {
		updates["pages_scrolled"] = gorm.Expr("pages_scrolled + ?", delta.PagesScrolled)
	}
	if delta.APIRequestsMade != 0 {
		updates["api_requests_made"] = gorm.Expr("api_requests_made + ?", delta.APIRequestsMade)
	}
	if len(updates) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).
		Model(&JobRecord{}).
		Where("job_id = ?", jobID).
		Updates(updates).Error
}

// CleanupOld deletes terminal jobs older than the retention window
func (r *JobRepository) CleanupOld(ctx context.Context, retentionDays int) (int64, error) {
	cutoff := time.Now().UTC().AddDate(0, 0, -retentionDays)
	res := r.db.WithContext(ctx).
		Where("created_at < ? AND status IN ?", cutoff, []string{
			string(models.JobStatusCompleted),
			string(models.JobStatusFailed),
			string(models.JobStatusCancelled),
		}).
		Delete(&JobRecord{})
	if res.Error != nil {
		return 0, res.Error
	}
	if res.RowsAffected > 0 {
		r.log.InfoWithFields("deleted old jobs", map[string]interface{}{
			"count": res.RowsAffected,
		})
	}
	return res.RowsAffected, nil
}

func jobToRecord(job *models.Job) (*JobRecord, error) {
	targets, err := json.Marshal(job.TargetUsernames)
	if err != nil {
		return nil, err
	}
	specific, err := json.Marshal(job.SpecificPostIDs)
	if err != nil {
		return nil, err
	}
	return &JobRecord{
		JobID:           job.JobID,
		TargetUsernames: targets,
		SpecificPostIDs: specific,
		Status:          string(job.Status),
		CreatedAt:       job.CreatedAt,
		StartedAt:       job.StartedAt,
		CompletedAt:     job.CompletedAt,
		ScraperAccount:  job.ScraperAccount,

		PostsCollected:        job.Stats.PostsCollected,
		ArticlesExtracted:     job.Stats.ArticlesExtracted,
		MediaDownloaded:       job.Stats.MediaDownloaded,
		ErrorsCount:           job.Stats.ErrorsCount,
		ProcessingTimeSeconds: job.Stats.ProcessingTimeSeconds,
		PagesScrolled:         job.Stats.PagesScrolled,
		APIRequestsMade:       job.Stats.APIRequestsMade,

		Logs:   encodeLines(job.Logs),
		Errors: encodeLines(job.Errors),

		ProcessArticles: job.ProcessArticles,
		MaxPosts:        job.MaxPosts,
	}, nil
}

func recordToJob(rec *JobRecord) (*models.Job, error) {
	var targets, specific []string
	if len(rec.TargetUsernames) > 0 {
		if err := json.Unmarshal(rec.TargetUsernames, &targets); err != nil {
			return nil, fmt.Errorf("failed to decode job targets: %w", err)
		}
	}
	if len(rec.SpecificPostIDs) > 0 {
		if err := json.Unmarshal(rec.SpecificPostIDs, &specific); err != nil {
			return nil, fmt.Errorf("failed to decode specific post ids: %w", err)
		}
	}

	return &models.Job{
		JobID:           rec.JobID,
		TargetUsernames: targets,
		SpecificPostIDs: specific,
		Status:          models.JobStatus(rec.Status),
		CreatedAt:       rec.CreatedAt,
		StartedAt:       rec.StartedAt,
		CompletedAt:     rec.CompletedAt,
		ScraperAccount:  rec.ScraperAccount,
		Stats: models.JobStats{
			PostsCollected:        rec.PostsCollected,
			ArticlesExtracted:     rec.ArticlesExtracted,
			MediaDownloaded:       rec.MediaDownloaded,
			ErrorsCount:           rec.ErrorsCount,
			ProcessingTimeSeconds: rec.ProcessingTimeSeconds,
			PagesScrolled:         rec.PagesScrolled,
			APIRequestsMade:       rec.APIRequestsMade,
		},
		Logs:            decodeLines(rec.Logs),
		Errors:          decodeLines(rec.Errors),
		ProcessArticles: rec.ProcessArticles,
		MaxPosts:        rec.MaxPosts,
	}, nil
}

func encodeLines(lines []string) []byte {
	if lines == nil {
		lines = []string{}
	}
	data, err := json.Marshal(lines)
	if err != nil {
		return []byte("[]")
	}
	return data
}

func decodeLines(data []byte) []string {
	if len(data) == 0 {
		return []string{}
	}
	var lines []string
	if err := json.Unmarshal(data, &lines); err != nil {
		return []string{}
	}
	return lines
}
