// Package pipeline coordinates the full search flow: synchronous ingest,
// background clustering and scoring, and read access to the results.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"primetime/internal/clustering"
	"primetime/internal/core"
	"primetime/internal/ingest"
	"primetime/internal/logger"
	"primetime/internal/persistence"
	"primetime/internal/scoring"
)

// ErrScoreNotReady is returned by GetScore while background scoring for the
// search is still pending.
var ErrScoreNotReady = errors.New("score not computed yet")

// scoreQueueSize bounds how many searches can wait for background scoring.
const scoreQueueSize = 64

// Coordinator owns the pipeline: it runs ingest in the caller's goroutine and
// hands clustering plus scoring to a background worker pool.
type Coordinator struct {
	store    persistence.Store
	ingestor *ingest.Ingestor
	clusters *clustering.Manager
	scorer   *scoring.Scorer

	tasks chan int64
	wg    sync.WaitGroup

	mu       sync.Mutex
	locks    map[int64]*sync.Mutex // Per-search serialization
	shutdown bool
}

// NewCoordinator creates a coordinator and starts the background scoring
// workers.
func NewCoordinator(store persistence.Store, ingestor *ingest.Ingestor,
	clusters *clustering.Manager, scorer *scoring.Scorer, workers int) *Coordinator {
	if workers < 1 {
		workers = 1
	}
	c := &Coordinator{
		store:    store,
		ingestor: ingestor,
		clusters: clusters,
		scorer:   scorer,
		tasks:    make(chan int64, scoreQueueSize),
		locks:    make(map[int64]*sync.Mutex),
	}
	for i := 0; i < workers; i++ {
		c.wg.Add(1)
		go c.worker()
	}
	return c
}

// RunSearch ingests the request synchronously and schedules scoring. The
// returned result carries the search id the caller polls GetScore with.
func (c *Coordinator) RunSearch(ctx context.Context, req ingest.Request) (*ingest.Result, error) {
	result, err := c.ingestor.Run(ctx, req)
	if err != nil {
		return nil, err
	}
	if err := c.enqueue(result.Search.ID); err != nil {
		return nil, err
	}
	return result, nil
}

// enqueue holds c.mu across the send so Shutdown cannot close the channel
// between the flag check and the send.
func (c *Coordinator) enqueue(searchID int64) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.shutdown {
		return fmt.Errorf("pipeline is shutting down")
	}
	select {
	case c.tasks <- searchID:
		return nil
	default:
		return fmt.Errorf("scoring queue is full")
	}
}

// Rescore schedules clustering and scoring for an existing search, without
// re-ingesting.
func (c *Coordinator) Rescore(ctx context.Context, searchID int64) error {
	if _, err := c.store.Searches().Get(ctx, searchID); err != nil {
		return err
	}
	return c.enqueue(searchID)
}

func (c *Coordinator) worker() {
	defer c.wg.Done()
	for searchID := range c.tasks {
		c.scoreSearch(searchID)
	}
}

func (c *Coordinator) scoreSearch(searchID int64) {
	lock := c.searchLock(searchID)
	lock.Lock()
	defer lock.Unlock()

	ctx := context.Background()
	if err := c.clusters.Recluster(ctx); err != nil {
		logger.Error("Background clustering failed", err, "search_id", searchID)
		return
	}
	if _, err := c.scorer.Score(ctx, searchID); err != nil {
		logger.Error("Background scoring failed", err, "search_id", searchID)
	}
}

func (c *Coordinator) searchLock(searchID int64) *sync.Mutex {
	c.mu.Lock()
	defer c.mu.Unlock()
	lock, ok := c.locks[searchID]
	if !ok {
		lock = &sync.Mutex{}
		c.locks[searchID] = lock
	}
	return lock
}

// GetScore returns the search's opportunity score. A search that exists but
// has not finished scoring yields ErrScoreNotReady; an unknown search yields
// persistence.ErrNotFound.
func (c *Coordinator) GetScore(ctx context.Context, searchID int64) (*core.OpportunityScore, error) {
	score, err := c.store.Scores().Get(ctx, searchID)
	if errors.Is(err, persistence.ErrNotFound) {
		if _, serr := c.store.Searches().Get(ctx, searchID); serr != nil {
			return nil, serr
		}
		return nil, ErrScoreNotReady
	}
	if err != nil {
		return nil, err
	}
	return score, nil
}

// GetSearch returns one search record.
func (c *Coordinator) GetSearch(ctx context.Context, searchID int64) (*core.Search, error) {
	return c.store.Searches().Get(ctx, searchID)
}

// ListSearches returns past searches, newest first.
func (c *Coordinator) ListSearches(ctx context.Context, opts persistence.ListOptions) ([]core.Search, error) {
	return c.store.Searches().List(ctx, opts)
}

// SearchArticles returns the articles a search retrieved.
func (c *Coordinator) SearchArticles(ctx context.Context, searchID int64) ([]core.Article, error) {
	if _, err := c.store.Searches().Get(ctx, searchID); err != nil {
		return nil, err
	}
	return c.store.Searches().Articles(ctx, searchID)
}

// GetArticle returns one article by PMID.
func (c *Coordinator) GetArticle(ctx context.Context, pmid string) (*core.Article, error) {
	return c.store.Articles().GetByPMID(ctx, pmid)
}

// ListArticles returns stored articles, newest publication first.
func (c *Coordinator) ListArticles(ctx context.Context, opts persistence.ListOptions) ([]core.Article, error) {
	return c.store.Articles().List(ctx, opts)
}

// ListClusters returns the current cluster table.
func (c *Coordinator) ListClusters(ctx context.Context) ([]core.Cluster, error) {
	return c.store.Clusters().List(ctx)
}

// Shutdown stops accepting work and waits for in-flight scoring to drain, or
// for the context to expire.
func (c *Coordinator) Shutdown(ctx context.Context) error {
	c.mu.Lock()
	if c.shutdown {
		c.mu.Unlock()
		return nil
	}
	c.shutdown = true
	c.mu.Unlock()

	close(c.tasks)

	done := make(chan struct{})
	go func() {
		c.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("shutdown timed out: %w", ctx.Err())
	}
}
