package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
)

// ArticleRepository persists extracted articles keyed by URL
type ArticleRepository struct {
	db *gorm.DB
}

// NewArticleRepository creates an article repository bound to db
func NewArticleRepository(db *gorm.DB) *ArticleRepository {
	return &ArticleRepository{db: db}
}

// Upsert inserts or updates one article by its URL
func (r *ArticleRepository) Upsert(ctx context.Context, payload map[string]any) error {
	url, ok := payload["url"].(string)
	if !ok || url == "" {
		return fmt.Errorf("article payload has no url field")
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to encode article payload: %w", err)
	}

	title, _ := payload["title"].(string)

	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing ArticleRecord
		err := tx.Where("url = ?", url).First(&existing).Error
		switch {
		case err == nil:
			existing.Title = title
			existing.Payload = data
			return tx.Save(&existing).Error
		case errors.Is(err, gorm.ErrRecordNotFound):
			return tx.Create(&ArticleRecord{
				URL:         url,
				Title:       title,
				Payload:     data,
				RetrievedAt: time.Now().UTC(),
			}).Error
		default:
			return err
		}
	})
}

// UpsertBatch applies Upsert to every article, aborting on the first failure
func (r *ArticleRepository) UpsertBatch(ctx context.Context, articles []map[string]any) (int, error) {
	count := 0
	for _, article := range articles {
		if err := r.Upsert(ctx, article); err != nil {
			return count, err
		}
		count++
	}
	return count, nil
}

// GetByURL looks an article up by its URL
func (r *ArticleRepository) GetByURL(ctx context.Context, url string) (map[string]any, error) {
	var rec ArticleRecord
	if err := r.db.WithContext(ctx).Where("url = ?", url).First(&rec).Error; err != nil {
		return nil, err
	}

	payload := map[string]any{}
	if err := json.Unmarshal(rec.Payload, &payload); err != nil {
		return nil, fmt.Errorf("failed to decode article payload: %w", err)
	}
	return payload, nil
}

// Count returns the total number of stored articles
func (r *ArticleRepository) Count(ctx context.Context) (int64, error) {
	var n int64
	err := r.db.WithContext(ctx).Model(&ArticleRecord{}).Count(&n).Error
	return n, err
}
