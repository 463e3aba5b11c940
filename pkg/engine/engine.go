package engine

import (
	"context"
	"fmt"
	"math/rand"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/AkaakuHub/twix-saver/pkg/browser"
	"github.com/AkaakuHub/twix-saver/pkg/chunks"
	"github.com/AkaakuHub/twix-saver/pkg/config"
	"github.com/AkaakuHub/twix-saver/pkg/logger"
	"github.com/AkaakuHub/twix-saver/pkg/models"
)

const (
	baseURL = "https://x.com"

	postSelector          = `[data-testid="tweet"]`
	primaryColumnSelector = `[data-testid="primaryColumn"]`
)

// TargetResult summarizes one target's harvest
type TargetResult struct {
	Target         string
	PostsCollected int
	PagesScrolled  int
	APIRequests    int
	ChunkFiles     []string
}

// Engine drives the browser over a target's timeline and harvests posts from
// intercepted API responses. One engine owns one browser session; targets are
// harvested sequentially through it.
type Engine struct {
	cfg    *config.ScraperConfig
	driver browser.Driver
	log    logger.Logger

	// scraperAccount stamps every harvested post with the pool account
	// that performed the run
	scraperAccount string

	current atomic.Pointer[collector]
}

// NewEngine creates an engine over a driver and registers the response
// handler. Call before driver.Start.
func NewEngine(cfg *config.ScraperConfig, driver browser.Driver) *Engine {
	e := &Engine{
		cfg:    cfg,
		driver: driver,
		log:    logger.GetLogger().WithField("component", "engine"),
	}
	driver.OnResponse(e.handleResponse)
	return e
}

// SetScraperAccount sets the pool account handle stamped onto harvested posts
func (e *Engine) SetScraperAccount(username string) {
	e.scraperAccount = strings.TrimPrefix(username, "@")
}

func (e *Engine) handleResponse(resp browser.NetworkResponse) {
	if resp.Status != 200 || !IsHarvestableURL(resp.URL) {
		return
	}
	c := e.current.Load()
	if c == nil {
		return
	}
	c.ingest(resp.Body)
}

// HarvestTarget scrolls a target's timeline and spools harvested posts to
// chunk files. maxPosts > 0 caps the harvest for debug runs; 0 means
// unlimited.
func (e *Engine) HarvestTarget(ctx context.Context, target string, maxPosts int) (*TargetResult, error) {
	target = strings.TrimPrefix(target, "@")

	writer, err := chunks.NewWriter(e.cfg.ChunkDir, target)
	if err != nil {
		return nil, err
	}

	c := newCollector(target, e.scraperAccount, e.cfg.ChunkSize, maxPosts, writer, e.log)
	e.current.Store(c)
	defer e.current.Store(nil)

	if err := e.driver.Navigate(ctx, baseURL+"/"+target); err != nil {
		return nil, err
	}
	// A profile with no visible posts is not an error; the scroll loop
	// below just terminates on staleness.
	_, _ = e.driver.IsVisible(ctx, postSelector, 10*time.Second)

	result := &TargetResult{Target: target}
	staleRounds := 0
	errorStreak := 0

	for {
		if err := ctx.Err(); err != nil {
			break
		}
		if c.done() {
			e.log.InfoWithFields("post cap reached", map[string]interface{}{
				"target": target,
				"cap":    maxPosts,
			})
			break
		}

		before := c.collectedCount()
		if err := e.driver.Evaluate(ctx, "window.scrollBy(0, window.innerHeight * 0.8)"); err != nil {
			errorStreak++
			if errorStreak >= e.cfg.MaxConsecutiveErr {
				e.log.WarnWithFields("aborting harvest after consecutive scroll failures", map[string]interface{}{
					"target": target,
				})
				break
			}
			continue
		}
		errorStreak = 0
		result.PagesScrolled++

		sleepHuman(ctx, 1500*time.Millisecond, 3500*time.Millisecond)

		if c.collectedCount() == before {
			staleRounds++
			if staleRounds >= 3 {
				break
			}
		} else {
			staleRounds = 0
		}
	}

	files, err := c.flush()
	if err != nil {
		return nil, err
	}

	result.PostsCollected = c.collectedCount()
	result.APIRequests = c.requestCount()
	result.ChunkFiles = files

	e.log.InfoWithFields("target harvested", map[string]interface{}{
		"target":   target,
		"posts":    result.PostsCollected,
		"scrolls":  result.PagesScrolled,
		"requests": result.APIRequests,
		"chunks":   len(files),
	})
	return result, nil
}

// collector accumulates posts from intercepted responses for one target run.
// Ingest runs on the interception goroutines, so all state is mutex-guarded.
type collector struct {
	mu             sync.Mutex
	target         string
	scraperAccount string
	chunkSize      int
	maxPosts       int
	seen           map[string]struct{}
	buffer         []map[string]any
	writer         *chunks.Writer
	files          []string
	collected      int
	requests       int
	log            logger.Logger
}

func newCollector(target, scraperAccount string, chunkSize, maxPosts int, writer *chunks.Writer, log logger.Logger) *collector {
	return &collector{
		target:         target,
		scraperAccount: scraperAccount,
		chunkSize:      chunkSize,
		maxPosts:       maxPosts,
		seen:           make(map[string]struct{}),
		writer:         writer,
		log:            log,
	}
}

func (c *collector) ingest(body []byte) {
	posts, err := ExtractPosts(body)
	if err != nil {
		// One unparseable response must not abort the run
		c.log.Debug("skipping unparseable API response")
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.requests++

	for _, post := range posts {
		if c.maxPosts > 0 && c.collected >= c.maxPosts {
			return
		}

		id, ok := models.NormalizePostID(post)
		if !ok {
			continue
		}
		if _, dup := c.seen[id]; dup {
			continue
		}

		// Timelines interleave promoted and quoted posts by other
		// authors; keep only the target's own when attributable.
		if c.target != "" {
			if author := models.PostScreenName(post); author != "" && !strings.EqualFold(author, c.target) {
				continue
			}
		}

		c.seen[id] = struct{}{}
		post[models.ScrapedAtField] = time.Now().UTC().Format(time.RFC3339)
		if c.scraperAccount != "" {
			post[models.ScraperField] = c.scraperAccount
		}
		c.buffer = append(c.buffer, post)
		c.collected++

		if len(c.buffer) >= c.chunkSize {
			c.flushLocked()
		}
	}
}

func (c *collector) flushLocked() {
	if len(c.buffer) == 0 {
		return
	}
	path, err := c.writer.Write(c.buffer)
	if err != nil {
		c.log.WithError(err).Error("failed to write chunk, keeping posts buffered")
		return
	}
	c.files = append(c.files, path)
	c.buffer = c.buffer[:0]
}

// flush writes any remaining buffered posts and returns all chunk paths
func (c *collector) flush() ([]string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.buffer) > 0 {
		path, err := c.writer.Write(c.buffer)
		if err != nil {
			return c.files, fmt.Errorf("failed to flush final chunk: %w", err)
		}
		c.files = append(c.files, path)
		c.buffer = c.buffer[:0]
	}
	return c.files, nil
}

func (c *collector) collectedCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.collected
}

func (c *collector) requestCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.requests
}

func (c *collector) done() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.maxPosts > 0 && c.collected >= c.maxPosts
}

// preloadSeen seeds the dedupe set with already persisted ids so only
// genuinely new posts are collected. Used by the differential sync.
func (c *collector) preloadSeen(ids map[string]struct{}) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for id := range ids {
		c.seen[id] = struct{}{}
	}
}

// sleepHuman pauses for a uniformly random duration in [min, max), returning
// early on context cancellation
func sleepHuman(ctx context.Context, min, max time.Duration) {
	d := min + time.Duration(rand.Int63n(int64(max-min)))
	select {
	case <-ctx.Done():
	case <-time.After(d):
	}
}
