// Package mesh expands search keywords with controlled-vocabulary synonyms
// from the NCBI MeSH database.
package mesh

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"primetime/internal/logger"
	"primetime/internal/remote"
)

const defaultBaseURL = "https://eutils.ncbi.nlm.nih.gov/entrez/eutils"

// Expander maps a keyword to related vocabulary terms. Expansion is best
// effort: implementations return the input term alone when the vocabulary
// cannot be reached.
type Expander interface {
	// Expand returns the term followed by its synonyms, deduplicated
	// case-insensitively with the original casing of first occurrence kept.
	Expand(ctx context.Context, term string) []string
}

// Client queries the MeSH database through E-utilities.
type Client struct {
	baseURL string
	client  *http.Client
	timeout time.Duration
}

// NewClient creates a MeSH client. timeout bounds each Expand call.
func NewClient(timeout time.Duration) *Client {
	return &Client{
		baseURL: defaultBaseURL,
		client:  &http.Client{Timeout: timeout},
		timeout: timeout,
	}
}

// NewClientWithBaseURL creates a client against a non-default endpoint.
// Used by tests.
func NewClientWithBaseURL(baseURL string, timeout time.Duration) *Client {
	c := NewClient(timeout)
	c.baseURL = baseURL
	return c
}

// Expand looks the term up in MeSH and returns it plus any descriptor terms.
// Any failure degrades to the bare input term.
func (c *Client) Expand(ctx context.Context, term string) []string {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var synonyms []string
	err := remote.Retry(ctx, func() error {
		var err error
		synonyms, err = c.lookup(ctx, term)
		return err
	})
	if err != nil {
		logger.Warn("MeSH expansion failed, keeping original term", "term", term, "error", err)
		return []string{term}
	}

	out := []string{term}
	seen := map[string]bool{strings.ToLower(term): true}
	for _, s := range synonyms {
		key := strings.ToLower(s)
		if s == "" || seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, s)
	}
	return out
}

type meshSearchResponse struct {
	ESearchResult struct {
		IDList []string `json:"idlist"`
	} `json:"esearchresult"`
}

func (c *Client) lookup(ctx context.Context, term string) ([]string, error) {
	params := url.Values{}
	params.Set("db", "mesh")
	params.Set("term", term)
	params.Set("retmode", "json")

	body, err := c.get(ctx, c.baseURL+"/esearch.fcgi?"+params.Encode())
	if err != nil {
		return nil, err
	}

	var search meshSearchResponse
	if err := json.Unmarshal(body, &search); err != nil {
		return nil, remote.Permanent("mesh esearch", fmt.Errorf("failed to decode response: %w", err))
	}
	ids := search.ESearchResult.IDList
	if len(ids) == 0 {
		return nil, nil
	}

	params = url.Values{}
	params.Set("db", "mesh")
	params.Set("id", strings.Join(ids, ","))
	params.Set("retmode", "json")

	body, err = c.get(ctx, c.baseURL+"/esummary.fcgi?"+params.Encode())
	if err != nil {
		return nil, err
	}

	// esummary keys each record by its own id, so decode the result object
	// generically and pull ds_meshterms per record. The uids array gives the
	// record order; ranging over the map would not.
	var summary struct {
		Result map[string]json.RawMessage `json:"result"`
	}
	if err := json.Unmarshal(body, &summary); err != nil {
		return nil, remote.Permanent("mesh esummary", fmt.Errorf("failed to decode response: %w", err))
	}
	var uids []string
	if raw, ok := summary.Result["uids"]; ok {
		if err := json.Unmarshal(raw, &uids); err != nil {
			return nil, remote.Permanent("mesh esummary", fmt.Errorf("failed to decode uids: %w", err))
		}
	}

	var terms []string
	for _, uid := range uids {
		raw, ok := summary.Result[uid]
		if !ok {
			continue
		}
		var record struct {
			MeshTerms []string `json:"ds_meshterms"`
		}
		if err := json.Unmarshal(raw, &record); err != nil {
			continue
		}
		terms = append(terms, record.MeshTerms...)
	}
	return terms, nil
}

func (c *Client) get(ctx context.Context, rawURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, remote.Transient("mesh", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode >= 500 {
		return nil, remote.Transient("mesh", fmt.Errorf("status %d", resp.StatusCode))
	}
	if resp.StatusCode != http.StatusOK {
		return nil, remote.Permanent("mesh", fmt.Errorf("status %d", resp.StatusCode))
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, remote.Transient("mesh", fmt.Errorf("failed to read response: %w", err))
	}
	return body, nil
}

// MockExpander is an Expander for tests, keyed by lowercase term.
type MockExpander struct {
	Synonyms map[string][]string
}

func (m *MockExpander) Expand(_ context.Context, term string) []string {
	out := []string{term}
	seen := map[string]bool{strings.ToLower(term): true}
	for _, s := range m.Synonyms[strings.ToLower(term)] {
		key := strings.ToLower(s)
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, s)
	}
	return out
}
