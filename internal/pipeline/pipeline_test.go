package pipeline

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"primetime/internal/citations"
	"primetime/internal/clustering"
	"primetime/internal/core"
	"primetime/internal/embed"
	"primetime/internal/ingest"
	"primetime/internal/mesh"
	"primetime/internal/persistence"
	"primetime/internal/pubmed"
	"primetime/internal/scoring"
)

func newTestCoordinator(store persistence.Store, records []core.ArticleRecord) *Coordinator {
	ingestor := ingest.NewIngestor(store,
		&pubmed.MockFetcher{Records: records},
		&mesh.MockExpander{}, &citations.MockSource{},
		&embed.HashGenerator{Dims: 8}, 2, 100)
	// A min cluster size above the corpus size keeps clustering on the
	// all-noise path, which is deterministic.
	manager := clustering.NewManager(store, clustering.NewClusterer(1000, 42))
	scorer := scoring.NewScorer(store, scoring.Weights{Novelty: 0.4, Velocity: 0.4, Recency: 0.2}, 5.0)
	return NewCoordinator(store, ingestor, manager, scorer, 1)
}

func testRecords() []core.ArticleRecord {
	pd := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	return []core.ArticleRecord{
		{PMID: "1", Title: "First", Abstract: "alpha beta", PubDate: &pd},
		{PMID: "2", Title: "Second", Abstract: "gamma delta", PubDate: &pd},
	}
}

// pollScore waits for the background worker to finish scoring.
func pollScore(t *testing.T, c *Coordinator, searchID int64) *core.OpportunityScore {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		score, err := c.GetScore(context.Background(), searchID)
		if err == nil {
			return score
		}
		if !errors.Is(err, ErrScoreNotReady) {
			t.Fatalf("GetScore: %v", err)
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("timed out waiting for score")
	return nil
}

func TestRunSearchScoresInBackground(t *testing.T) {
	store := persistence.NewMemoryStore()
	c := newTestCoordinator(store, testRecords())
	defer c.Shutdown(context.Background())

	result, err := c.RunSearch(context.Background(), ingest.Request{
		IdeaText: "idea", Keywords: "alpha; beta",
	})
	if err != nil {
		t.Fatal(err)
	}
	if result.ArticlesIngested != 2 {
		t.Fatalf("expected 2 ingested articles, got %d", result.ArticlesIngested)
	}

	score := pollScore(t, c, result.Search.ID)
	if score.SearchID != result.Search.ID {
		t.Errorf("score search id = %d, want %d", score.SearchID, result.Search.ID)
	}
	if score.Overall < 0 || score.Overall > 1 {
		t.Errorf("overall score out of range: %f", score.Overall)
	}
}

func TestGetScoreNotReadyVersusNotFound(t *testing.T) {
	store := persistence.NewMemoryStore()
	c := newTestCoordinator(store, nil)
	defer c.Shutdown(context.Background())
	ctx := context.Background()

	search := &core.Search{Keywords: "pending"}
	if _, err := store.Searches().Create(ctx, search); err != nil {
		t.Fatal(err)
	}

	if _, err := c.GetScore(ctx, search.ID); !errors.Is(err, ErrScoreNotReady) {
		t.Errorf("unscored search should be not-ready, got %v", err)
	}
	if _, err := c.GetScore(ctx, 999); !errors.Is(err, persistence.ErrNotFound) {
		t.Errorf("unknown search should be not-found, got %v", err)
	}
}

func TestRescore(t *testing.T) {
	store := persistence.NewMemoryStore()
	c := newTestCoordinator(store, testRecords())
	defer c.Shutdown(context.Background())
	ctx := context.Background()

	result, err := c.RunSearch(ctx, ingest.Request{Keywords: "alpha"})
	if err != nil {
		t.Fatal(err)
	}
	pollScore(t, c, result.Search.ID)

	if err := c.Rescore(ctx, result.Search.ID); err != nil {
		t.Fatal(err)
	}
	pollScore(t, c, result.Search.ID)

	history, err := store.Scores().RawHistory(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(history) < 2 {
		t.Errorf("re-scoring should append to the raw history, got %d rows", len(history))
	}

	if err := c.Rescore(ctx, 999); !errors.Is(err, persistence.ErrNotFound) {
		t.Errorf("rescoring an unknown search should be not-found, got %v", err)
	}
}

func TestShutdownRejectsNewWork(t *testing.T) {
	store := persistence.NewMemoryStore()
	c := newTestCoordinator(store, testRecords())

	if err := c.Shutdown(context.Background()); err != nil {
		t.Fatal(err)
	}
	// Idempotent.
	if err := c.Shutdown(context.Background()); err != nil {
		t.Fatal(err)
	}

	_, err := c.RunSearch(context.Background(), ingest.Request{Keywords: "alpha"})
	if err == nil {
		t.Error("a stopped pipeline should reject new searches")
	}
}

func TestEnqueueRacingShutdownDoesNotPanic(t *testing.T) {
	store := persistence.NewMemoryStore()
	ctx := context.Background()

	search := &core.Search{Keywords: "racer"}
	if _, err := store.Searches().Create(ctx, search); err != nil {
		t.Fatal(err)
	}

	// Hammer enqueue from several goroutines while Shutdown closes the task
	// channel; a send after the close would panic.
	for round := 0; round < 20; round++ {
		c := newTestCoordinator(store, nil)

		var wg sync.WaitGroup
		for g := 0; g < 4; g++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				for i := 0; i < 50; i++ {
					if err := c.enqueue(search.ID); err != nil {
						return
					}
				}
			}()
		}
		if err := c.Shutdown(ctx); err != nil {
			t.Fatal(err)
		}
		wg.Wait()

		if err := c.enqueue(search.ID); err == nil {
			t.Fatal("enqueue after shutdown should fail")
		}
	}
}

func TestShutdownDrainsQueuedWork(t *testing.T) {
	store := persistence.NewMemoryStore()
	c := newTestCoordinator(store, testRecords())
	ctx := context.Background()

	result, err := c.RunSearch(ctx, ingest.Request{Keywords: "alpha"})
	if err != nil {
		t.Fatal(err)
	}

	shutdownCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := c.Shutdown(shutdownCtx); err != nil {
		t.Fatal(err)
	}

	// The queued search was scored before the workers exited.
	if _, err := store.Scores().Get(ctx, result.Search.ID); err != nil {
		t.Errorf("queued search should be scored during shutdown: %v", err)
	}
}
