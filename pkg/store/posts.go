package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/AkaakuHub/twix-saver/pkg/logger"
	"github.com/AkaakuHub/twix-saver/pkg/models"
)

// PostRepository persists harvested posts keyed by their canonical id
type PostRepository struct {
	db  *gorm.DB
	log logger.Logger
}

// NewPostRepository creates a post repository bound to db
func NewPostRepository(db *gorm.DB) *PostRepository {
	return &PostRepository{db: db, log: logger.GetLogger()}
}

// Upsert inserts or updates one post by canonical id. On update the incoming
// payload is merged over the stored one field by field, except that a media
// reference list is popped out first and reattached afterwards so it is never
// clobbered by the blind field merge.
func (r *PostRepository) Upsert(ctx context.Context, post *models.Post) error {
	id, ok := models.NormalizePostID(post.Payload)
	if !ok {
		return fmt.Errorf("post payload has no id field")
	}
	post.ID = id

	media, hadMedia := popMediaRefs(post.Payload)
	if hadMedia {
		r.log.InfoWithFields("persisting media references", map[string]interface{}{
			"post_id": id,
			"counts":  mediaTypeCounts(media),
		})
	}

	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing PostRecord
		err := tx.Where("id_str = ? OR rest_id = ?", id, id).First(&existing).Error
		switch {
		case err == nil:
			merged := map[string]any{}
			if len(existing.Payload) > 0 {
				if uerr := json.Unmarshal(existing.Payload, &merged); uerr != nil {
					merged = map[string]any{}
				}
			}
			for k, v := range post.Payload {
				merged[k] = v
			}
			if hadMedia {
				merged[models.MediaField] = media
			}
			data, err := json.Marshal(merged)
			if err != nil {
				return fmt.Errorf("failed to encode post payload: %w", err)
			}
			existing.Payload = data
			fillPostColumns(&existing, merged)
			return tx.Save(&existing).Error

		case errors.Is(err, gorm.ErrRecordNotFound):
			if hadMedia {
				post.Payload[models.MediaField] = media
			}
			data, err := json.Marshal(post.Payload)
			if err != nil {
				return fmt.Errorf("failed to encode post payload: %w", err)
			}
			rec := PostRecord{
				IDStr:       id,
				RestID:      id,
				Payload:     data,
				ImageStatus: string(post.State.Status),
			}
			if rec.ImageStatus == "" {
				rec.ImageStatus = string(models.ImageStatusPending)
			}
			fillPostColumns(&rec, post.Payload)
			return tx.Create(&rec).Error

		default:
			return err
		}
	})
}

// UpsertBatch applies Upsert to every post; per-post failures abort the batch
// so the caller can leave the source chunk file in place.
func (r *PostRepository) UpsertBatch(ctx context.Context, posts []*models.Post) (int, error) {
	count := 0
	for _, post := range posts {
		if err := r.Upsert(ctx, post); err != nil {
			return count, err
		}
		count++
	}
	return count, nil
}

// GetByID looks a post up by either alias of its canonical id
func (r *PostRepository) GetByID(ctx context.Context, id string) (*models.Post, error) {
	var rec PostRecord
	if err := r.db.WithContext(ctx).Where("id_str = ? OR rest_id = ?", id, id).First(&rec).Error; err != nil {
		return nil, err
	}
	return recordToPost(&rec)
}

// KnownIDs returns the set of canonical ids already stored for a target handle
func (r *PostRepository) KnownIDs(ctx context.Context, screenName string) (map[string]struct{}, error) {
	var ids []string
	err := r.db.WithContext(ctx).
		Model(&PostRecord{}).
		Where("screen_name = ?", screenName).
		Pluck("id_str", &ids).Error
	if err != nil {
		return nil, err
	}

	known := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		known[id] = struct{}{}
	}
	return known, nil
}

// ListRetryable returns posts whose media stage failed with attempts to spare
func (r *PostRepository) ListRetryable(ctx context.Context, maxRetries, limit int) ([]*models.Post, error) {
	var recs []PostRecord
	err := r.db.WithContext(ctx).
		Where("image_status = ? AND image_retry_count < ?", string(models.ImageStatusFailed), maxRetries).
		Limit(limit).
		Find(&recs).Error
	if err != nil {
		return nil, err
	}
	return recordsToPosts(recs)
}

// UpdateImageState writes one post's media-stage state back to its columns
func (r *PostRepository) UpdateImageState(ctx context.Context, id string, state models.ImageProcessingState) error {
	return r.db.WithContext(ctx).
		Model(&PostRecord{}).
		Where("id_str = ? OR rest_id = ?", id, id).
		Updates(map[string]any{
			"image_status":        string(state.Status),
			"image_attempted_at":  state.AttemptedAt,
			"image_completed_at":  state.CompletedAt,
			"image_retry_count":   state.RetryCount,
			"image_last_error":    state.LastError,
			"image_media_count":   state.MediaCount,
			"image_success_count": state.SuccessCount,
		}).Error
}

// Count returns the total number of stored posts
func (r *PostRepository) Count(ctx context.Context) (int64, error) {
	var n int64
	err := r.db.WithContext(ctx).Model(&PostRecord{}).Count(&n).Error
	return n, err
}

// fillPostColumns projects the indexed columns out of a payload
func fillPostColumns(rec *PostRecord, payload map[string]any) {
	rec.ScreenName = models.PostScreenName(payload)
	if account, ok := payload[models.ScraperField].(string); ok {
		rec.ScraperAccount = account
	}
	if raw, ok := payload[models.ScrapedAtField].(string); ok {
		if t, err := time.Parse(time.RFC3339, raw); err == nil {
			rec.ScrapedAt = &t
		}
	}
}

func recordToPost(rec *PostRecord) (*models.Post, error) {
	payload := map[string]any{}
	if len(rec.Payload) > 0 {
		if err := json.Unmarshal(rec.Payload, &payload); err != nil {
			return nil, fmt.Errorf("failed to decode post payload: %w", err)
		}
	}
	return &models.Post{
		ID:      rec.IDStr,
		Payload: payload,
		State: models.ImageProcessingState{
			Status:       models.ImageProcessingStatus(rec.ImageStatus),
			AttemptedAt:  rec.ImageAttemptedAt,
			CompletedAt:  rec.ImageCompletedAt,
			RetryCount:   rec.ImageRetryCount,
			LastError:    rec.ImageLastError,
			MediaCount:   rec.ImageMediaCount,
			SuccessCount: rec.ImageSuccessCount,
		},
	}, nil
}

func recordsToPosts(recs []PostRecord) ([]*models.Post, error) {
	posts := make([]*models.Post, 0, len(recs))
	for i := range recs {
		post, err := recordToPost(&recs[i])
		if err != nil {
			return nil, err
		}
		posts = append(posts, post)
	}
	return posts, nil
}

// popMediaRefs removes the media reference list from a payload, normalizing
// the decoded-from-JSON shape into typed refs
func popMediaRefs(payload map[string]any) ([]models.MediaRef, bool) {
	raw, ok := payload[models.MediaField]
	if !ok {
		return nil, false
	}
	delete(payload, models.MediaField)

	switch v := raw.(type) {
	case []models.MediaRef:
		return v, true
	default:
		data, err := json.Marshal(raw)
		if err != nil {
			return nil, true
		}
		var refs []models.MediaRef
		if err := json.Unmarshal(data, &refs); err != nil {
			return nil, true
		}
		return refs, true
	}
}

func mediaTypeCounts(refs []models.MediaRef) map[string]int {
	counts := map[string]int{}
	for _, ref := range refs {
		counts[ref.Type]++
	}
	return counts
}
