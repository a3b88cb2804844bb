package citations

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sort"
	"time"

	"primetime/internal/core"
	"primetime/internal/remote"
)

const openAlexBaseURL = "https://api.openalex.org"

// OpenAlexClient resolves citation counts and yearly trajectories. Articles
// can be looked up by DOI or, failing that, by PMID.
type OpenAlexClient struct {
	baseURL string
	client  *http.Client
}

// NewOpenAlexClient creates an OpenAlex client with the given call timeout.
func NewOpenAlexClient(timeout time.Duration) *OpenAlexClient {
	return &OpenAlexClient{
		baseURL: openAlexBaseURL,
		client:  &http.Client{Timeout: timeout},
	}
}

// NewOpenAlexClientWithBaseURL creates a client against a non-default
// endpoint. Used by tests.
func NewOpenAlexClientWithBaseURL(baseURL string, timeout time.Duration) *OpenAlexClient {
	c := NewOpenAlexClient(timeout)
	c.baseURL = baseURL
	return c
}

type openAlexWork struct {
	CitedByCount int `json:"cited_by_count"`
	CountsByYear []struct {
		Year         int `json:"year"`
		CitedByCount int `json:"cited_by_count"`
	} `json:"counts_by_year"`
}

// Work returns the total count and yearly series for an article. A work
// unknown to OpenAlex returns zero values without error.
func (c *OpenAlexClient) Work(ctx context.Context, article core.Article) (int, []core.YearlyCitations, error) {
	id := workID(article)
	if id == "" {
		return 0, nil, nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/works/"+id, nil)
	if err != nil {
		return 0, nil, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return 0, nil, remote.Transient("openalex", err)
	}
	defer func() { _ = resp.Body.Close() }()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return 0, nil, nil
	case resp.StatusCode >= 500:
		return 0, nil, remote.Transient("openalex", fmt.Errorf("status %d", resp.StatusCode))
	case resp.StatusCode != http.StatusOK:
		return 0, nil, remote.Permanent("openalex", fmt.Errorf("status %d", resp.StatusCode))
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, nil, remote.Transient("openalex", fmt.Errorf("failed to read response: %w", err))
	}

	var work openAlexWork
	if err := json.Unmarshal(body, &work); err != nil {
		return 0, nil, remote.Permanent("openalex", fmt.Errorf("failed to decode response: %w", err))
	}

	yearly := make([]core.YearlyCitations, 0, len(work.CountsByYear))
	for _, cy := range work.CountsByYear {
		yearly = append(yearly, core.YearlyCitations{Year: cy.Year, Count: cy.CitedByCount})
	}
	sort.Slice(yearly, func(i, j int) bool { return yearly[i].Year < yearly[j].Year })

	return work.CitedByCount, yearly, nil
}

// workID builds the OpenAlex external-id path segment, preferring DOI.
func workID(article core.Article) string {
	if article.DOI != "" {
		return "doi:" + article.DOI
	}
	if article.PMID != "" {
		return "pmid:" + article.PMID
	}
	return ""
}
