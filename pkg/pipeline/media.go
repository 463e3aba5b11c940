package pipeline

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/url"
	"path"
	"strings"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/AkaakuHub/twix-saver/pkg/blob"
	"github.com/AkaakuHub/twix-saver/pkg/config"
	xerrors "github.com/AkaakuHub/twix-saver/pkg/errors"
	"github.com/AkaakuHub/twix-saver/pkg/logger"
	"github.com/AkaakuHub/twix-saver/pkg/models"
	"github.com/AkaakuHub/twix-saver/pkg/store"
)

var imageExtensions = map[string]struct{}{
	".jpg":  {},
	".jpeg": {},
	".png":  {},
	".gif":  {},
	".webp": {},
	".bmp":  {},
	".svg":  {},
}

// mediaCandidate is one downloadable image discovered on a post
type mediaCandidate struct {
	URL       string
	Type      string
	Position  int
	OrderType string
}

// MediaProcessor downloads a post's images into the blob store and attaches
// ordered media references to the payload
type MediaProcessor struct {
	cfg    *config.IngestConfig
	client *resty.Client
	blobs  blob.Store
	media  *store.MediaRepository
	log    logger.Logger

	// download pacing derived from RequestsPerMinute; nextSlot is the
	// earliest time the next download may start
	minInterval time.Duration
	mu          sync.Mutex
	nextSlot    time.Time
}

// NewMediaProcessor creates a media processor from config
func NewMediaProcessor(cfg *config.IngestConfig, blobs blob.Store, media *store.MediaRepository) *MediaProcessor {
	client := resty.New().
		SetTimeout(cfg.DownloadTimeout).
		SetRedirectPolicy(resty.FlexibleRedirectPolicy(5))

	var minInterval time.Duration
	if cfg.RequestsPerMinute > 0 {
		minInterval = time.Minute / time.Duration(cfg.RequestsPerMinute)
	}

	return &MediaProcessor{
		cfg:         cfg,
		client:      client,
		blobs:       blobs,
		media:       media,
		log:         logger.GetLogger().WithField("component", "media"),
		minInterval: minInterval,
	}
}

// ProcessPost downloads every image of one post and attaches the references.
// Returns (discovered, downloaded); a post with no images is (0, 0) with no
// error. Partial failures do not error: the successful refs are attached and
// the counts report the gap.
func (p *MediaProcessor) ProcessPost(ctx context.Context, post *models.Post) (int, int, error) {
	candidates := collectCandidates(post.Payload)
	if len(candidates) == 0 {
		return 0, 0, nil
	}

	var refs []models.MediaRef
	for _, cand := range candidates {
		ref, err := p.download(ctx, cand)
		if err != nil {
			p.log.WithError(err).WarnWithFields("media download failed", map[string]interface{}{
				"post_id": post.ID,
				"url":     cand.URL,
			})
			continue
		}
		refs = append(refs, *ref)
	}

	if len(refs) > 0 {
		models.SortMediaRefs(refs)
		post.Payload[models.MediaField] = refs
	}
	return len(candidates), len(refs), nil
}

func (p *MediaProcessor) download(ctx context.Context, cand mediaCandidate) (*models.MediaRef, error) {
	mediaID := mintMediaID(cand.URL)
	key := mediaID + extensionOf(cand.URL)

	// The same image linked from several posts is stored once
	exists, err := p.blobs.Exists(ctx, key)
	if err == nil && exists {
		if asset, err := p.media.Get(ctx, mediaID); err == nil {
			return &models.MediaRef{
				MediaID:     mediaID,
				OriginalURL: cand.URL,
				Type:        cand.Type,
				MimeType:    asset.ContentType,
				Size:        asset.Size,
				Position:    cand.Position,
				OrderType:   cand.OrderType,
			}, nil
		}
	}

	p.throttle(ctx)
	resp, err := p.client.R().SetContext(ctx).Get(cand.URL)
	if err != nil {
		return nil, xerrors.Transient("download failed", err)
	}
	if resp.StatusCode() != 200 {
		return nil, xerrors.Transient(fmt.Sprintf("download returned %d", resp.StatusCode()), nil)
	}

	body := resp.Body()
	if int64(len(body)) > p.cfg.MaxMediaBytes {
		return nil, xerrors.New(xerrors.ErrorTypeExhausted,
			fmt.Sprintf("media exceeds size limit (%d bytes)", len(body)))
	}

	contentType := resp.Header().Get("Content-Type")
	location, err := p.blobs.Put(ctx, key, body, contentType)
	if err != nil {
		return nil, err
	}
	if err := p.media.Create(ctx, mediaID, location, contentType, len(body)); err != nil {
		p.log.WithError(err).Warn("media metadata insert failed")
	}

	return &models.MediaRef{
		MediaID:     mediaID,
		OriginalURL: cand.URL,
		Type:        cand.Type,
		MimeType:    contentType,
		Size:        len(body),
		Position:    cand.Position,
		OrderType:   cand.OrderType,
	}, nil
}

// throttle claims the next download slot and waits for it, keeping the
// aggregate download rate under RequestsPerMinute even across the concurrent
// workers of a batch
func (p *MediaProcessor) throttle(ctx context.Context) {
	if p.minInterval <= 0 {
		return
	}

	p.mu.Lock()
	now := time.Now()
	wait := p.nextSlot.Sub(now)
	if wait < 0 {
		wait = 0
	}
	p.nextSlot = now.Add(wait + p.minInterval)
	p.mu.Unlock()

	if wait > 0 {
		select {
		case <-ctx.Done():
		case <-time.After(wait):
		}
	}
}

// collectCandidates discovers the downloadable images of a post: photo
// attachments plus outbound links that point straight at an image file.
// extended_entities supersedes entities for attachments, never both.
func collectCandidates(payload map[string]any) []mediaCandidate {
	legacy, ok := payload["legacy"].(map[string]any)
	if !ok {
		return nil
	}

	var candidates []mediaCandidate
	seen := map[string]struct{}{}

	for _, raw := range attachmentList(legacy) {
		m, ok := raw.(map[string]any)
		if !ok {
			continue
		}
		if mediaType, _ := m["type"].(string); mediaType != "photo" {
			continue
		}
		mediaURL, _ := m["media_url_https"].(string)
		if mediaURL == "" {
			mediaURL, _ = m["media_url"].(string)
		}
		if mediaURL == "" {
			continue
		}
		if _, dup := seen[mediaURL]; dup {
			continue
		}
		seen[mediaURL] = struct{}{}

		candidates = append(candidates, mediaCandidate{
			URL:       mediaURL,
			Type:      models.MediaTypePhoto,
			Position:  firstIndex(m),
			OrderType: models.OrderTypeAttachment,
		})
	}

	if entities, ok := legacy["entities"].(map[string]any); ok {
		if urls, ok := entities["urls"].([]any); ok {
			for _, raw := range urls {
				entity, ok := raw.(map[string]any)
				if !ok {
					continue
				}
				expanded, _ := entity["expanded_url"].(string)
				if expanded == "" || !isImageURL(expanded) {
					continue
				}
				if _, dup := seen[expanded]; dup {
					continue
				}
				seen[expanded] = struct{}{}

				candidates = append(candidates, mediaCandidate{
					URL:       expanded,
					Type:      models.MediaTypeLinkedImage,
					Position:  firstIndex(entity),
					OrderType: models.OrderTypeLink,
				})
			}
		}
	}

	return candidates
}

// attachmentList returns the media attachments, preferring extended_entities
// which carries the full set over the single-item entities list
func attachmentList(legacy map[string]any) []any {
	if extended, ok := legacy["extended_entities"].(map[string]any); ok {
		if media, ok := extended["media"].([]any); ok {
			return media
		}
	}
	if entities, ok := legacy["entities"].(map[string]any); ok {
		if media, ok := entities["media"].([]any); ok {
			return media
		}
	}
	return nil
}

// firstIndex reads the entity's text offset
func firstIndex(entity map[string]any) int {
	indices, ok := entity["indices"].([]any)
	if !ok || len(indices) == 0 {
		return 0
	}
	if f, ok := indices[0].(float64); ok {
		return int(f)
	}
	return 0
}

// isImageURL reports whether a URL points straight at an image file
func isImageURL(raw string) bool {
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	ext := strings.ToLower(path.Ext(u.Path))
	_, ok := imageExtensions[ext]
	return ok
}

// mintMediaID derives a stable id from the source URL so re-ingesting the
// same image is idempotent
func mintMediaID(rawURL string) string {
	sum := sha256.Sum256([]byte(rawURL))
	return hex.EncodeToString(sum[:])[:20]
}

func extensionOf(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ".bin"
	}
	ext := strings.ToLower(path.Ext(u.Path))
	if _, ok := imageExtensions[ext]; ok {
		return ext
	}
	return ".bin"
}
