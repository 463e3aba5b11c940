package models

import "time"

// ImageProcessingStatus is the per-post state of the media-download stage,
// independent of the post's own persistence
type ImageProcessingStatus string

const (
	ImageStatusPending    ImageProcessingStatus = "pending"
	ImageStatusProcessing ImageProcessingStatus = "processing"
	ImageStatusCompleted  ImageProcessingStatus = "completed"
	ImageStatusFailed     ImageProcessingStatus = "failed"
	ImageStatusSkipped    ImageProcessingStatus = "skipped"
)

// ImageProcessingState tracks the retryable media-download state machine of
// one post. Transitions: pending/failed → processing → completed | failed |
// skipped (no media found).
type ImageProcessingState struct {
	Status       ImageProcessingStatus `json:"image_processing_status"`
	AttemptedAt  *time.Time            `json:"image_processing_attempted_at,omitempty"`
	CompletedAt  *time.Time            `json:"image_processing_completed_at,omitempty"`
	RetryCount   int                   `json:"image_processing_retry_count"`
	LastError    string                `json:"image_processing_error,omitempty"`
	MediaCount   int                   `json:"image_processing_media_count"`
	SuccessCount int                   `json:"image_processing_success_count"`
}

// NewImageProcessingState returns the initial pending state
func NewImageProcessingState() ImageProcessingState {
	return ImageProcessingState{Status: ImageStatusPending}
}

// MarkProcessing records the pickup of the post by a batch
func (s *ImageProcessingState) MarkProcessing() {
	now := time.Now().UTC()
	s.Status = ImageStatusProcessing
	s.AttemptedAt = &now
}

// MarkCompleted records a finished run with its media counters
func (s *ImageProcessingState) MarkCompleted(mediaCount, successCount int) {
	now := time.Now().UTC()
	s.Status = ImageStatusCompleted
	s.CompletedAt = &now
	s.MediaCount = mediaCount
	s.SuccessCount = successCount
	s.LastError = ""
}

// MarkFailed records a failed run and bumps the retry counter
func (s *ImageProcessingState) MarkFailed(errMsg string) {
	now := time.Now().UTC()
	s.Status = ImageStatusFailed
	s.CompletedAt = &now
	s.LastError = errMsg
	s.RetryCount++
}

// MarkSkipped records that the post carries no media to process
func (s *ImageProcessingState) MarkSkipped() {
	now := time.Now().UTC()
	s.Status = ImageStatusSkipped
	s.CompletedAt = &now
	s.MediaCount = 0
	s.SuccessCount = 0
}

// ShouldRetry reports retry eligibility: failed with attempts to spare
func (s *ImageProcessingState) ShouldRetry(maxRetries int) bool {
	return s.Status == ImageStatusFailed && s.RetryCount < maxRetries
}

// NeedsProcessing reports whether the media stage still has work to do
func (s *ImageProcessingState) NeedsProcessing() bool {
	return s.Status == ImageStatusPending || s.Status == ImageStatusFailed
}
