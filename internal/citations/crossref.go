package citations

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"primetime/internal/remote"
)

const crossrefBaseURL = "https://api.crossref.org"

// CrossRefClient resolves total citation counts by DOI.
type CrossRefClient struct {
	baseURL string
	client  *http.Client
}

// NewCrossRefClient creates a CrossRef client with the given call timeout.
func NewCrossRefClient(timeout time.Duration) *CrossRefClient {
	return &CrossRefClient{
		baseURL: crossrefBaseURL,
		client:  &http.Client{Timeout: timeout},
	}
}

// NewCrossRefClientWithBaseURL creates a client against a non-default
// endpoint. Used by tests.
func NewCrossRefClientWithBaseURL(baseURL string, timeout time.Duration) *CrossRefClient {
	c := NewCrossRefClient(timeout)
	c.baseURL = baseURL
	return c
}

type crossrefWork struct {
	Message struct {
		IsReferencedByCount int `json:"is-referenced-by-count"`
	} `json:"message"`
}

// Count returns the total citation count for a DOI. An unknown DOI returns 0.
func (c *CrossRefClient) Count(ctx context.Context, doi string) (int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		c.baseURL+"/works/"+url.PathEscape(doi), nil)
	if err != nil {
		return 0, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return 0, remote.Transient("crossref", err)
	}
	defer func() { _ = resp.Body.Close() }()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return 0, nil
	case resp.StatusCode >= 500:
		return 0, remote.Transient("crossref", fmt.Errorf("status %d", resp.StatusCode))
	case resp.StatusCode != http.StatusOK:
		return 0, remote.Permanent("crossref", fmt.Errorf("status %d", resp.StatusCode))
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, remote.Transient("crossref", fmt.Errorf("failed to read response: %w", err))
	}

	var work crossrefWork
	if err := json.Unmarshal(body, &work); err != nil {
		return 0, remote.Permanent("crossref", fmt.Errorf("failed to decode response: %w", err))
	}
	return work.Message.IsReferencedByCount, nil
}
