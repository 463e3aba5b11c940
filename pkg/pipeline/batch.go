package pipeline

import (
	"context"
	"sync"

	"github.com/AkaakuHub/twix-saver/pkg/models"
)

// processPosts runs the media stage over posts in fixed-size batches and
// persists each batch. Downloads within a batch run under a semaphore so at
// most ConcurrentDownloads posts are in flight at once. Returns persisted
// post and downloaded media counts.
func (p *Pipeline) processPosts(ctx context.Context, posts []*models.Post) (int, int, error) {
	persisted := 0
	downloaded := 0
	for start := 0; start < len(posts); start += p.cfg.BatchSize {
		if err := ctx.Err(); err != nil {
			return persisted, downloaded, err
		}

		end := start + p.cfg.BatchSize
		if end > len(posts) {
			end = len(posts)
		}
		batch := posts[start:end]

		p.runMediaStage(ctx, batch)

		n, err := p.posts.UpsertBatch(ctx, batch)
		persisted += n
		if err != nil {
			return persisted, downloaded, err
		}

		// The upsert insert path seeds the state; updates need an
		// explicit write-back
		for _, post := range batch {
			downloaded += post.State.SuccessCount
			if post.ID == "" {
				continue
			}
			if err := p.posts.UpdateImageState(ctx, post.ID, post.State); err != nil {
				p.log.WithError(err).WarnWithFields("image state write-back failed", map[string]interface{}{
					"post_id": post.ID,
				})
			}
		}
	}
	return persisted, downloaded, nil
}

// runMediaStage drives the per-post media state machine across one batch
func (p *Pipeline) runMediaStage(ctx context.Context, batch []*models.Post) {
	sem := make(chan struct{}, p.cfg.ConcurrentDownloads)
	var wg sync.WaitGroup

	for _, post := range batch {
		wg.Add(1)
		sem <- struct{}{}
		go func(post *models.Post) {
			defer wg.Done()
			defer func() { <-sem }()
			p.processPostMedia(ctx, post)
		}(post)
	}
	wg.Wait()
}

func (p *Pipeline) processPostMedia(ctx context.Context, post *models.Post) {
	post.State.MarkProcessing()

	discovered, downloaded, err := p.media.ProcessPost(ctx, post)
	switch {
	case err != nil:
		post.State.MarkFailed(err.Error())
	case discovered == 0:
		post.State.MarkSkipped()
	case downloaded < discovered:
		post.State.MarkFailed("downloads incomplete")
		post.State.MediaCount = discovered
		post.State.SuccessCount = downloaded
	default:
		post.State.MarkCompleted(discovered, downloaded)
	}
}

// RetryFailedMedia re-runs the media stage over posts whose download attempts
// failed with retries to spare
func (p *Pipeline) RetryFailedMedia(ctx context.Context, limit int) (int, error) {
	posts, err := p.posts.ListRetryable(ctx, p.cfg.MaxRetries, limit)
	if err != nil {
		return 0, err
	}
	if len(posts) == 0 {
		return 0, nil
	}

	p.log.InfoWithFields("retrying failed media downloads", map[string]interface{}{
		"posts": len(posts),
	})
	persisted, _, err := p.processPosts(ctx, posts)
	return persisted, err
}
