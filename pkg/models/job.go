package models

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// JobStatus is the lifecycle state of a scraping job
type JobStatus string

const (
	JobStatusPending   JobStatus = "pending"
	JobStatusRunning   JobStatus = "running"
	JobStatusCompleted JobStatus = "completed"
	JobStatusFailed    JobStatus = "failed"
	JobStatusCancelled JobStatus = "cancelled"
)

// IsTerminal reports whether the status is a final state
func (s JobStatus) IsTerminal() bool {
	switch s {
	case JobStatusCompleted, JobStatusFailed, JobStatusCancelled:
		return true
	}
	return false
}

// JobStats aggregates the counters collected over one scraping run
type JobStats struct {
	PostsCollected        int     `json:"posts_collected"`
	ArticlesExtracted     int     `json:"articles_extracted"`
	MediaDownloaded       int     `json:"media_downloaded"`
	ErrorsCount           int     `json:"errors_count"`
	ProcessingTimeSeconds float64 `json:"processing_time_seconds"`
	PagesScrolled         int     `json:"pages_scrolled"`
	APIRequestsMade       int     `json:"api_requests_made"`
}

// Add accumulates another stats block into this one
func (s *JobStats) Add(other JobStats) {
	s.PostsCollected += other.PostsCollected
	s.ArticlesExtracted += other.ArticlesExtracted
	s.MediaDownloaded += other.MediaDownloaded
	s.ErrorsCount += other.ErrorsCount
	s.PagesScrolled += other.PagesScrolled
	s.APIRequestsMade += other.APIRequestsMade
}

// Job is one scraping run across a set of target usernames.
//
// StartedAt is set exactly once, on the pending→running transition.
// CompletedAt is set exactly once, on entry to any terminal state. Logs and
// Errors are append-only; every error entry is mirrored into Logs.
type Job struct {
	JobID           string     `json:"job_id"`
	TargetUsernames []string   `json:"target_usernames"`
	SpecificPostIDs []string   `json:"specific_post_ids,omitempty"`
	Status          JobStatus  `json:"status"`
	CreatedAt       time.Time  `json:"created_at"`
	StartedAt       *time.Time `json:"started_at,omitempty"`
	CompletedAt     *time.Time `json:"completed_at,omitempty"`

	// ScraperAccount is the username of the pool account that ran the job
	ScraperAccount string `json:"scraper_account,omitempty"`

	Stats  JobStats `json:"stats"`
	Logs   []string `json:"logs"`
	Errors []string `json:"errors"`

	ProcessArticles bool `json:"process_articles"`
	MaxPosts        *int `json:"max_posts,omitempty"`
}

// NewJob creates a pending job for the given targets
func NewJob(targets []string, processArticles bool, maxPosts *int) *Job {
	return &Job{
		JobID:           uuid.NewString(),
		TargetUsernames: targets,
		Status:          JobStatusPending,
		CreatedAt:       time.Now().UTC(),
		Logs:            []string{},
		Errors:          []string{},
		ProcessArticles: processArticles,
		MaxPosts:        maxPosts,
	}
}

// LogLine formats a job log entry with its timestamp prefix
func LogLine(message string) string {
	return fmt.Sprintf("[%s] %s", time.Now().UTC().Format("15:04:05"), message)
}

// AddLog appends a timestamped log entry
func (j *Job) AddLog(message string) {
	j.Logs = append(j.Logs, LogLine(message))
}

// AddError appends a timestamped error entry, mirrors it into the logs and
// bumps the error counter
func (j *Job) AddError(message string) {
	line := LogLine(message)
	j.Errors = append(j.Errors, line)
	j.Logs = append(j.Logs, line)
	j.Stats.ErrorsCount++
}
