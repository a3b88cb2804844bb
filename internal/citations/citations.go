// Package citations retrieves citation counts and yearly citation trajectories
// for articles from CrossRef and OpenAlex.
package citations

import (
	"context"

	"primetime/internal/core"
)

// Record is what the citation sources know about one article.
type Record struct {
	Source core.CitationSource   // Where Count came from
	Count  int                   // Total citations to date
	Yearly []core.YearlyCitations // Per-year trajectory, ascending by year
}

// Source resolves citation data for one article. An article unknown to every
// upstream yields a zero Record, not an error.
type Source interface {
	Citations(ctx context.Context, article core.Article) (Record, error)
}

// MockSource is a Source for tests, keyed by PMID.
type MockSource struct {
	Records map[string]Record
	Err     error
}

func (m *MockSource) Citations(_ context.Context, article core.Article) (Record, error) {
	if m.Err != nil {
		return Record{}, m.Err
	}
	rec, ok := m.Records[article.PMID]
	if !ok {
		return Record{Source: core.SourceCrossRef}, nil
	}
	return rec, nil
}
