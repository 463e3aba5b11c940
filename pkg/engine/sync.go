package engine

import (
	"context"
	"strings"
	"time"

	"github.com/AkaakuHub/twix-saver/pkg/chunks"
	"github.com/AkaakuHub/twix-saver/pkg/models"
)

// SyncResult summarizes one differential sync pass
type SyncResult struct {
	Target     string
	NewPosts   int
	ChunkFiles []string
}

// SyncTarget performs a differential sync: it loads the target's timeline,
// observes intercepted responses for a bounded window and spools only posts
// whose ids are not already persisted. known is the set of persisted ids for
// the target.
//
// The window closes early once new posts stop arriving: after the first
// detection, each poll that finds more extends a grace period, and the pass
// ends when a full grace period elapses without growth.
func (e *Engine) SyncTarget(ctx context.Context, target string, known map[string]struct{}) (*SyncResult, error) {
	target = strings.TrimPrefix(target, "@")

	writer, err := chunks.NewWriter(e.cfg.ChunkDir, target)
	if err != nil {
		return nil, err
	}

	c := newCollector(target, e.scraperAccount, e.cfg.ChunkSize, 0, writer, e.log)
	c.preloadSeen(known)
	e.current.Store(c)
	defer e.current.Store(nil)

	if err := e.driver.Navigate(ctx, baseURL+"/"+target); err != nil {
		return nil, err
	}

	deadline := time.Now().Add(e.cfg.SyncWindow)
	var graceUntil time.Time
	lastCount := 0

	for time.Now().Before(deadline) {
		if err := ctx.Err(); err != nil {
			break
		}

		count := c.collectedCount()
		if count > lastCount {
			lastCount = count
			graceUntil = time.Now().Add(e.cfg.SyncGracePeriod)
		} else if !graceUntil.IsZero() && time.Now().After(graceUntil) {
			// New posts were seen and have stopped arriving
			break
		}

		select {
		case <-ctx.Done():
		case <-time.After(e.cfg.SyncPollInterval):
		}
	}

	files, err := c.flush()
	if err != nil {
		return nil, err
	}

	result := &SyncResult{
		Target:     target,
		NewPosts:   c.collectedCount(),
		ChunkFiles: files,
	}
	e.log.InfoWithFields("differential sync finished", map[string]interface{}{
		"target":    target,
		"new_posts": result.NewPosts,
	})
	return result, nil
}

// RefetchPost reloads a single post's permalink and returns its fresh
// payload. When the post cannot be recaptured (deleted, withheld, or the
// endpoint returned nothing) a minimal stub is synthesized so downstream
// state tracking still has a record to hang off.
func (e *Engine) RefetchPost(ctx context.Context, postID string) (map[string]any, error) {
	writer, err := chunks.NewWriter(e.cfg.ChunkDir, "refetch")
	if err != nil {
		return nil, err
	}

	c := newCollector("", e.scraperAccount, e.cfg.ChunkSize, 0, writer, e.log)
	e.current.Store(c)
	defer e.current.Store(nil)

	if err := e.driver.Navigate(ctx, baseURL+"/i/status/"+postID); err != nil {
		return nil, err
	}
	_, _ = e.driver.IsVisible(ctx, postSelector, 10*time.Second)
	sleepHuman(ctx, time.Second, 2*time.Second)

	if post := c.takePost(postID); post != nil {
		return post, nil
	}

	e.log.WarnWithFields("post refetch came back empty, synthesizing stub", map[string]interface{}{
		"post_id": postID,
	})
	return map[string]any{
		models.IDField:        postID,
		models.RestIDField:    postID,
		"unavailable":         true,
		models.ScrapedAtField: time.Now().UTC().Format(time.RFC3339),
	}, nil
}

// takePost removes and returns the buffered post with the given id, if the
// run captured it
func (c *collector) takePost(postID string) map[string]any {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i, post := range c.buffer {
		if models.CanonicalPostID(post) == postID {
			c.buffer = append(c.buffer[:i], c.buffer[i+1:]...)
			return post
		}
	}
	return nil
}
