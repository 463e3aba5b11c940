package store

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/AkaakuHub/twix-saver/pkg/models"
)

// MediaRepository persists metadata for downloaded media binaries
type MediaRepository struct {
	db *gorm.DB
}

// NewMediaRepository creates a media repository bound to db
func NewMediaRepository(db *gorm.DB) *MediaRepository {
	return &MediaRepository{db: db}
}

// Create records the metadata of one freshly stored binary
func (r *MediaRepository) Create(ctx context.Context, mediaID, filePath, contentType string, size int) error {
	return r.db.WithContext(ctx).Create(&MediaRecord{
		MediaID:     mediaID,
		FilePath:    filePath,
		ContentType: contentType,
		Size:        size,
		CreatedAt:   time.Now().UTC(),
	}).Error
}

// Get looks a media asset up by its minted id
func (r *MediaRepository) Get(ctx context.Context, mediaID string) (*models.MediaAsset, error) {
	var rec MediaRecord
	if err := r.db.WithContext(ctx).Where("media_id = ?", mediaID).First(&rec).Error; err != nil {
		return nil, err
	}
	return &models.MediaAsset{
		MediaID:     rec.MediaID,
		FilePath:    rec.FilePath,
		ContentType: rec.ContentType,
		Size:        rec.Size,
		CreatedAt:   rec.CreatedAt.Format(time.RFC3339),
	}, nil
}

// Count returns the total number of stored media assets
func (r *MediaRepository) Count(ctx context.Context) (int64, error) {
	var n int64
	err := r.db.WithContext(ctx).Model(&MediaRecord{}).Count(&n).Error
	return n, err
}
