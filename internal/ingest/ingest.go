// Package ingest turns a keyword search request into persisted articles,
// citations, and embeddings.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"primetime/internal/citations"
	"primetime/internal/core"
	"primetime/internal/embed"
	"primetime/internal/logger"
	"primetime/internal/mesh"
	"primetime/internal/persistence"
	"primetime/internal/pubmed"
)

// ErrEmptyQuery is returned when keyword normalization leaves no terms.
var ErrEmptyQuery = errors.New("no usable keywords in request")

// Request is one user-initiated search.
type Request struct {
	IdeaText   string         // Free-text research idea, stored verbatim
	Keywords   string         // Semicolon-separated keyword list
	MaxResults int            // Requested result count; capped by config
	DateRange  core.DateRange // Optional publication-date window
}

// Result summarizes what one ingest run did.
type Result struct {
	Search           core.Search
	ArticlesFound    int // Records returned by the bibliographic search
	ArticlesIngested int // Records fully persisted
	ArticlesFailed   int // Records skipped after enrichment errors
}

// Ingestor runs the search-and-enrich half of the pipeline.
type Ingestor struct {
	store    persistence.Store
	fetcher  pubmed.Fetcher
	expander mesh.Expander
	cites    citations.Source
	embedder embed.Generator

	concurrency   int
	maxResultsCap int
}

// NewIngestor wires the ingest dependencies. concurrency bounds parallel
// per-article enrichment; maxResultsCap is the hard ceiling on request size.
func NewIngestor(store persistence.Store, fetcher pubmed.Fetcher, expander mesh.Expander,
	cites citations.Source, embedder embed.Generator, concurrency, maxResultsCap int) *Ingestor {
	return &Ingestor{
		store:         store,
		fetcher:       fetcher,
		expander:      expander,
		cites:         cites,
		embedder:      embedder,
		concurrency:   concurrency,
		maxResultsCap: maxResultsCap,
	}
}

// Run executes one ingest: normalize and expand keywords, search PubMed,
// then enrich and persist every hit. Individual article failures are logged
// and skipped; they never abort the run.
func (ing *Ingestor) Run(ctx context.Context, req Request) (*Result, error) {
	keywords := NormalizeKeywords(req.Keywords)
	if len(keywords) == 0 {
		return nil, ErrEmptyQuery
	}

	maxResults := req.MaxResults
	if maxResults <= 0 || maxResults > ing.maxResultsCap {
		maxResults = ing.maxResultsCap
	}

	query := ing.composeQuery(ctx, keywords, req.DateRange)

	search := core.Search{
		IdeaText:   req.IdeaText,
		Keywords:   strings.Join(keywords, "; "),
		MaxResults: maxResults,
		DateRange:  req.DateRange,
		CreatedAt:  time.Now().UTC(),
	}
	if _, err := ing.store.Searches().Create(ctx, &search); err != nil {
		return nil, fmt.Errorf("failed to create search: %w", err)
	}

	records, err := ing.fetcher.Search(ctx, query, maxResults)
	if err != nil {
		return nil, fmt.Errorf("failed to search literature: %w", err)
	}

	// Correlates the log lines of one run; searches can be re-ingested.
	runID := uuid.NewString()
	logger.Info("Ingest started", "run_id", runID, "search_id", search.ID,
		"query", query, "results", len(records))

	var mu sync.Mutex
	var articleIDs []int64
	failed := 0

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(ing.concurrency)
	for _, rec := range records {
		rec := rec
		g.Go(func() error {
			articleID, err := ing.enrich(gctx, rec)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				// One bad article must not sink the batch.
				logger.Warn("Failed to ingest article", "run_id", runID, "pmid", rec.PMID, "error", err)
				failed++
				return nil
			}
			articleIDs = append(articleIDs, articleID)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	if err := ing.store.Searches().LinkArticles(ctx, search.ID, articleIDs); err != nil {
		return nil, fmt.Errorf("failed to link articles: %w", err)
	}

	logger.Info("Ingest completed", "run_id", runID, "search_id", search.ID,
		"ingested", len(articleIDs), "failed", failed)

	return &Result{
		Search:           search,
		ArticlesFound:    len(records),
		ArticlesIngested: len(articleIDs),
		ArticlesFailed:   failed,
	}, nil
}

// enrich persists one record end to end: article row, authors, citation data,
// and embedding.
func (ing *Ingestor) enrich(ctx context.Context, rec core.ArticleRecord) (int64, error) {
	articleID, _, err := ing.store.Articles().Upsert(ctx, rec)
	if err != nil {
		return 0, err
	}
	if err := ing.store.Articles().AttachAuthors(ctx, articleID, rec.Authors); err != nil {
		return 0, err
	}

	article := core.Article{ID: articleID, PMID: rec.PMID, DOI: rec.DOI}
	citeRec, err := ing.cites.Citations(ctx, article)
	if err != nil {
		return 0, fmt.Errorf("failed to fetch citations: %w", err)
	}
	if err := ing.store.Citations().RecordSnapshot(ctx, core.CitationSnapshot{
		ArticleID:  articleID,
		Source:     citeRec.Source,
		Count:      citeRec.Count,
		ObservedOn: time.Now().UTC(),
	}); err != nil {
		return 0, err
	}
	if err := ing.store.Citations().ReplaceYearly(ctx, articleID, citeRec.Yearly); err != nil {
		return 0, err
	}

	vector, err := ing.embedder.Embed(ctx, rec.Title+"\n"+rec.Abstract)
	if err != nil {
		return 0, fmt.Errorf("failed to embed article: %w", err)
	}
	if err := ing.store.Vectors().Upsert(ctx, articleID, vector); err != nil {
		return 0, err
	}
	return articleID, nil
}

// composeQuery expands each keyword through the vocabulary and builds the
// upstream query: an AND of per-keyword OR-groups plus a publication-date
// window.
func (ing *Ingestor) composeQuery(ctx context.Context, keywords []string, dates core.DateRange) string {
	groups := make([]string, 0, len(keywords))
	for _, kw := range keywords {
		terms := ing.expander.Expand(ctx, kw)
		quoted := make([]string, 0, len(terms))
		for _, t := range terms {
			quoted = append(quoted, fmt.Sprintf("%q", t))
		}
		groups = append(groups, "("+strings.Join(quoted, " OR ")+")")
	}
	query := strings.Join(groups, " AND ")

	if !dates.IsZero() {
		start := "1800/01/01"
		if !dates.Start.IsZero() {
			start = dates.Start.Format("2006/01/02")
		}
		end := "3000/12/31"
		if !dates.End.IsZero() {
			end = dates.End.Format("2006/01/02")
		}
		query += fmt.Sprintf(` AND ("%s"[PDAT] : "%s"[PDAT])`, start, end)
	}
	return query
}

// NormalizeKeywords splits a semicolon-separated keyword string, trims each
// term, and drops case-insensitive duplicates, keeping the casing of first
// occurrence.
func NormalizeKeywords(raw string) []string {
	var out []string
	seen := make(map[string]bool)
	for _, part := range strings.Split(raw, ";") {
		term := strings.TrimSpace(part)
		if term == "" {
			continue
		}
		key := strings.ToLower(term)
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, term)
	}
	return out
}
