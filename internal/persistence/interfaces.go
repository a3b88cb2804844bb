// Package persistence provides the transactional store for articles, searches,
// vectors, clusters, and score history.
package persistence

import (
	"context"
	"errors"

	"primetime/internal/core"
)

// ErrNotFound is returned by point lookups when no row matches.
var ErrNotFound = errors.New("not found")

// ListOptions provides common pagination options.
type ListOptions struct {
	Limit  int // Maximum number of results (0 means the default page size)
	Offset int // Number of results to skip
}

// ArticleRepository handles article and author persistence.
type ArticleRepository interface {
	// Upsert inserts the article or merges it into the existing row keyed by
	// PMID. Non-empty incoming fields overwrite; empty fields never clear
	// existing values. Returns the internal id and whether a row was created.
	Upsert(ctx context.Context, rec core.ArticleRecord) (id int64, created bool, err error)

	// AttachAuthors ensures author rows exist for the given normalized names
	// and links them to the article. Idempotent.
	AttachAuthors(ctx context.Context, articleID int64, names []string) error

	// GetByPMID retrieves one article with its authors.
	GetByPMID(ctx context.Context, pmid string) (*core.Article, error)

	// List retrieves articles ordered by publication date, newest first.
	List(ctx context.Context, opts ListOptions) ([]core.Article, error)
}

// CitationRepository handles citation snapshots and yearly series.
type CitationRepository interface {
	// RecordSnapshot replaces the prior snapshot for the same (article, source).
	RecordSnapshot(ctx context.Context, snap core.CitationSnapshot) error

	// ReplaceYearly atomically replaces the article's yearly citation series.
	ReplaceYearly(ctx context.Context, articleID int64, series []core.YearlyCitations) error

	// Yearly returns the article's citation trajectory ordered by year.
	Yearly(ctx context.Context, articleID int64) ([]core.YearlyCitations, error)
}

// VectorRepository handles article embeddings and their cluster labels.
type VectorRepository interface {
	// Upsert stores the embedding for an article and resets its cluster label
	// to unassigned. Idempotent on article id.
	Upsert(ctx context.Context, articleID int64, vector []float64) error

	// SetLabels writes cluster assignments for the given articles in one
	// transaction. A label of core.NoiseLabel marks an unclustered point.
	SetLabels(ctx context.Context, labels map[int64]int) error

	// ListAll returns every stored vector. Unassigned labels read as
	// core.NoiseLabel.
	ListAll(ctx context.Context) ([]core.ArticleVector, error)

	// OfSearch returns the vectors of all articles linked to a search.
	OfSearch(ctx context.Context, searchID int64) ([]core.ArticleVector, error)
}

// ClusterRepository handles persisted cluster rows.
type ClusterRepository interface {
	// ReplaceAll atomically replaces the cluster table with the given rows.
	// Clusters that no longer have members disappear as a consequence.
	ReplaceAll(ctx context.Context, clusters []core.Cluster) error

	// List returns all clusters ordered by label.
	List(ctx context.Context) ([]core.Cluster, error)
}

// SearchRepository handles search records and their article links.
type SearchRepository interface {
	// Create inserts a new search row and returns its id.
	Create(ctx context.Context, s *core.Search) (int64, error)

	// LinkArticles links articles to a search. Duplicates are ignored.
	LinkArticles(ctx context.Context, searchID int64, articleIDs []int64) error

	// Get retrieves one search.
	Get(ctx context.Context, searchID int64) (*core.Search, error)

	// List retrieves searches newest first.
	List(ctx context.Context, opts ListOptions) ([]core.Search, error)

	// Articles returns the articles linked to a search.
	Articles(ctx context.Context, searchID int64) ([]core.Article, error)
}

// ScoreRepository handles opportunity scores and the raw score history.
type ScoreRepository interface {
	// Put overwrites the search's score and appends the raw values to the
	// score history in the same transaction.
	Put(ctx context.Context, score core.OpportunityScore, raw core.RawScores) error

	// Get retrieves the score for a search, or ErrNotFound before scoring
	// has completed.
	Get(ctx context.Context, searchID int64) (*core.OpportunityScore, error)

	// RawHistory returns every raw score triple ever recorded, oldest first.
	RawHistory(ctx context.Context) ([]core.RawScores, error)
}

// Stats summarizes store contents.
type Stats struct {
	Articles int
	Searches int
	Clusters int
	Vectors  int
}

// Store aggregates all repositories behind one connection.
type Store interface {
	Articles() ArticleRepository
	Citations() CitationRepository
	Vectors() VectorRepository
	Clusters() ClusterRepository
	Searches() SearchRepository
	Scores() ScoreRepository

	// Stats returns row counts for the main tables.
	Stats(ctx context.Context) (*Stats, error)

	// Ping verifies the connection.
	Ping(ctx context.Context) error

	// Close closes the underlying connection.
	Close() error
}
