package persistence

import (
	"context"
	"errors"
	"testing"
	"time"

	"primetime/internal/core"
)

func date(y, m, d int) *time.Time {
	t := time.Date(y, time.Month(m), d, 0, 0, 0, 0, time.UTC)
	return &t
}

func TestArticleUpsertMergesFields(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	id1, created, err := store.Articles().Upsert(ctx, core.ArticleRecord{
		PMID: "100", Title: "Original title", Abstract: "An abstract", DOI: "10.1/abc",
	})
	if err != nil {
		t.Fatalf("first upsert failed: %v", err)
	}
	if !created {
		t.Error("first upsert should create")
	}

	// Same PMID with partial data: empty fields must not clear existing ones.
	id2, created, err := store.Articles().Upsert(ctx, core.ArticleRecord{
		PMID: "100", Title: "Updated title", PubDate: date(2023, 5, 1),
	})
	if err != nil {
		t.Fatalf("second upsert failed: %v", err)
	}
	if created {
		t.Error("second upsert should merge, not create")
	}
	if id1 != id2 {
		t.Errorf("same PMID should keep the same id: %d vs %d", id1, id2)
	}

	got, err := store.Articles().GetByPMID(ctx, "100")
	if err != nil {
		t.Fatalf("GetByPMID failed: %v", err)
	}
	if got.Title != "Updated title" {
		t.Errorf("title should be overwritten, got %q", got.Title)
	}
	if got.Abstract != "An abstract" {
		t.Errorf("abstract should survive a merge, got %q", got.Abstract)
	}
	if got.DOI != "10.1/abc" {
		t.Errorf("doi should survive a merge, got %q", got.DOI)
	}
	if got.PubDate == nil || !got.PubDate.Equal(*date(2023, 5, 1)) {
		t.Errorf("pub date should be set, got %v", got.PubDate)
	}
}

func TestAttachAuthorsDeduplicates(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	id, _, err := store.Articles().Upsert(ctx, core.ArticleRecord{PMID: "200", Title: "T"})
	if err != nil {
		t.Fatal(err)
	}
	if err := store.Articles().AttachAuthors(ctx, id, []string{"Jane Doe", "JANE  DOE", "John Roe"}); err != nil {
		t.Fatal(err)
	}
	if err := store.Articles().AttachAuthors(ctx, id, []string{"jane doe"}); err != nil {
		t.Fatal(err)
	}

	got, err := store.Articles().GetByPMID(ctx, "200")
	if err != nil {
		t.Fatal(err)
	}
	if len(got.Authors) != 2 {
		t.Fatalf("expected 2 distinct authors, got %v", got.Authors)
	}
	if got.Authors[0] != "jane doe" || got.Authors[1] != "john roe" {
		t.Errorf("unexpected authors: %v", got.Authors)
	}
}

func TestVectorUpsertResetsLabel(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	if err := store.Vectors().Upsert(ctx, 1, []float64{1, 0}); err != nil {
		t.Fatal(err)
	}
	if err := store.Vectors().SetLabels(ctx, map[int64]int{1: 3}); err != nil {
		t.Fatal(err)
	}

	// Re-embedding invalidates the assignment.
	if err := store.Vectors().Upsert(ctx, 1, []float64{0, 1}); err != nil {
		t.Fatal(err)
	}

	vectors, err := store.Vectors().ListAll(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(vectors) != 1 {
		t.Fatalf("expected 1 vector, got %d", len(vectors))
	}
	if vectors[0].ClusterLabel != core.NoiseLabel {
		t.Errorf("upsert should reset the label, got %d", vectors[0].ClusterLabel)
	}
}

func TestLinkArticlesIgnoresDuplicates(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	search := &core.Search{Keywords: "a"}
	if _, err := store.Searches().Create(ctx, search); err != nil {
		t.Fatal(err)
	}
	id, _, err := store.Articles().Upsert(ctx, core.ArticleRecord{PMID: "1", Title: "T"})
	if err != nil {
		t.Fatal(err)
	}

	if err := store.Searches().LinkArticles(ctx, search.ID, []int64{id, id}); err != nil {
		t.Fatal(err)
	}
	if err := store.Searches().LinkArticles(ctx, search.ID, []int64{id}); err != nil {
		t.Fatal(err)
	}

	articles, err := store.Searches().Articles(ctx, search.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(articles) != 1 {
		t.Errorf("expected 1 linked article, got %d", len(articles))
	}
}

func TestScorePutOverwritesAndAppendsHistory(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	if _, err := store.Scores().Get(ctx, 1); !errors.Is(err, ErrNotFound) {
		t.Errorf("missing score should return ErrNotFound, got %v", err)
	}

	now := time.Now().UTC()
	for i := 0; i < 2; i++ {
		err := store.Scores().Put(ctx,
			core.OpportunityScore{SearchID: 1, Overall: float64(i), ComputedAt: now},
			core.RawScores{SearchID: 1, Novelty: float64(i)})
		if err != nil {
			t.Fatal(err)
		}
	}

	score, err := store.Scores().Get(ctx, 1)
	if err != nil {
		t.Fatal(err)
	}
	if score.Overall != 1 {
		t.Errorf("re-score should overwrite, got overall %f", score.Overall)
	}

	history, err := store.Scores().RawHistory(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(history) != 2 {
		t.Errorf("history should be append-only, got %d rows", len(history))
	}
}

func TestYearlyReplaceAndRead(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	series := []core.YearlyCitations{{Year: 2022, Count: 5}, {Year: 2020, Count: 1}}
	if err := store.Citations().ReplaceYearly(ctx, 7, series); err != nil {
		t.Fatal(err)
	}
	got, err := store.Citations().Yearly(ctx, 7)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 || got[0].Year != 2020 || got[1].Year != 2022 {
		t.Errorf("series should come back ordered by year, got %v", got)
	}

	if err := store.Citations().ReplaceYearly(ctx, 7, nil); err != nil {
		t.Fatal(err)
	}
	got, err = store.Citations().Yearly(ctx, 7)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 0 {
		t.Errorf("replace with empty series should clear, got %v", got)
	}
}

func TestStats(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	if _, _, err := store.Articles().Upsert(ctx, core.ArticleRecord{PMID: "1", Title: "T"}); err != nil {
		t.Fatal(err)
	}
	if _, err := store.Searches().Create(ctx, &core.Search{Keywords: "k"}); err != nil {
		t.Fatal(err)
	}

	stats, err := store.Stats(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if stats.Articles != 1 || stats.Searches != 1 {
		t.Errorf("unexpected stats: %+v", stats)
	}
}
