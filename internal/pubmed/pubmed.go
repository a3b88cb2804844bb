// Package pubmed fetches bibliographic records from the NCBI E-utilities API.
package pubmed

import (
	"context"

	"primetime/internal/core"
)

// Fetcher retrieves bibliographic records matching a query, most relevant
// first. Implementations must preserve upstream relevance order.
type Fetcher interface {
	// Search returns up to maxResults records for the query. An empty result
	// set is not an error.
	Search(ctx context.Context, query string, maxResults int) ([]core.ArticleRecord, error)
}

// MockFetcher is a Fetcher for tests. It records the queries it receives and
// returns canned records.
type MockFetcher struct {
	Records []core.ArticleRecord
	Err     error
	Queries []string
}

func (m *MockFetcher) Search(_ context.Context, query string, maxResults int) ([]core.ArticleRecord, error) {
	m.Queries = append(m.Queries, query)
	if m.Err != nil {
		return nil, m.Err
	}
	records := m.Records
	if len(records) > maxResults {
		records = records[:maxResults]
	}
	return records, nil
}
