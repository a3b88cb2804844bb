package pubmed

import (
	"context"
	"encoding/json"
	"encoding/xml"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"primetime/internal/core"
	"primetime/internal/logger"
	"primetime/internal/remote"
)

const defaultBaseURL = "https://eutils.ncbi.nlm.nih.gov/entrez/eutils"

// Client fetches records from PubMed in two phases: esearch resolves the query
// to an ordered PMID list, efetch retrieves the full records.
type Client struct {
	baseURL string
	client  *http.Client
	timeout time.Duration
}

// NewClient creates a PubMed client. timeout bounds each whole Search call.
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

// Search runs esearch then efetch and returns the records in relevance order.
func (c *Client) Search(ctx context.Context, query string, maxResults int) ([]core.ArticleRecord, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var pmids []string
	err := remote.Retry(ctx, func() error {
		var err error
		pmids, err = c.esearch(ctx, query, maxResults)
		return err
	})
	if err != nil {
		return nil, err
	}
	if len(pmids) == 0 {
		logger.Info("PubMed search returned no results", "query", query)
		return nil, nil
	}

	var records []core.ArticleRecord
	err = remote.Retry(ctx, func() error {
		var err error
		records, err = c.efetch(ctx, pmids)
		return err
	})
	if err != nil {
		return nil, err
	}

	// efetch does not guarantee the esearch order; restore it.
	byPMID := make(map[string]core.ArticleRecord, len(records))
	for _, rec := range records {
		byPMID[rec.PMID] = rec
	}
	ordered := make([]core.ArticleRecord, 0, len(pmids))
	for _, pmid := range pmids {
		if rec, ok := byPMID[pmid]; ok {
			ordered = append(ordered, rec)
		}
	}

	logger.Info("PubMed search completed", "query", query, "results", len(ordered))
	return ordered, nil
}

type esearchResponse struct {
	ESearchResult struct {
		IDList []string `json:"idlist"`
	} `json:"esearchresult"`
}

func (c *Client) esearch(ctx context.Context, query string, maxResults int) ([]string, error) {
	params := url.Values{}
	params.Set("db", "pubmed")
	params.Set("term", query)
	params.Set("retmax", fmt.Sprintf("%d", maxResults))
	params.Set("retmode", "json")
	params.Set("sort", "relevance")

	body, err := c.get(ctx, "esearch", c.baseURL+"/esearch.fcgi?"+params.Encode())
	if err != nil {
		return nil, err
	}

	var result esearchResponse
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, remote.Permanent("pubmed esearch", fmt.Errorf("failed to decode response: %w", err))
	}
	return result.ESearchResult.IDList, nil
}

func (c *Client) efetch(ctx context.Context, pmids []string) ([]core.ArticleRecord, error) {
	params := url.Values{}
	params.Set("db", "pubmed")
	params.Set("id", strings.Join(pmids, ","))
	params.Set("retmode", "xml")

	body, err := c.get(ctx, "efetch", c.baseURL+"/efetch.fcgi?"+params.Encode())
	if err != nil {
		return nil, err
	}

	var set pubmedArticleSet
	if err := xml.Unmarshal(body, &set); err != nil {
		return nil, remote.Permanent("pubmed efetch", fmt.Errorf("failed to decode response: %w", err))
	}

	records := make([]core.ArticleRecord, 0, len(set.Articles))
	for _, art := range set.Articles {
		records = append(records, art.toRecord())
	}
	return records, nil
}

func (c *Client) get(ctx context.Context, op, rawURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, remote.Transient("pubmed "+op, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode >= 500 {
		return nil, remote.Transient("pubmed "+op, fmt.Errorf("status %d", resp.StatusCode))
	}
	if resp.StatusCode != http.StatusOK {
		return nil, remote.Permanent("pubmed "+op, fmt.Errorf("status %d", resp.StatusCode))
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, remote.Transient("pubmed "+op, fmt.Errorf("failed to read response: %w", err))
	}
	return body, nil
}

// XML payload shapes for efetch retmode=xml.

type pubmedArticleSet struct {
	XMLName  xml.Name        `xml:"PubmedArticleSet"`
	Articles []pubmedArticle `xml:"PubmedArticle"`
}

type pubmedArticle struct {
	MedlineCitation struct {
		PMID    string `xml:"PMID"`
		Article struct {
			Title    string `xml:"ArticleTitle"`
			Abstract struct {
				Text []string `xml:"AbstractText"`
			} `xml:"Abstract"`
			Journal struct {
				Title        string `xml:"Title"`
				JournalIssue struct {
					PubDate struct {
						Year  string `xml:"Year"`
						Month string `xml:"Month"`
						Day   string `xml:"Day"`
					} `xml:"PubDate"`
				} `xml:"JournalIssue"`
			} `xml:"Journal"`
			AuthorList struct {
				Authors []struct {
					LastName   string `xml:"LastName"`
					ForeName   string `xml:"ForeName"`
					Collective string `xml:"CollectiveName"`
				} `xml:"Author"`
			} `xml:"AuthorList"`
		} `xml:"Article"`
	} `xml:"MedlineCitation"`
	PubmedData struct {
		ArticleIDs []struct {
			IDType string `xml:"IdType,attr"`
			Value  string `xml:",chardata"`
		} `xml:"ArticleIdList>ArticleId"`
	} `xml:"PubmedData"`
}

func (a pubmedArticle) toRecord() core.ArticleRecord {
	art := a.MedlineCitation.Article

	rec := core.ArticleRecord{
		PMID:     strings.TrimSpace(a.MedlineCitation.PMID),
		Title:    strings.TrimSpace(art.Title),
		Abstract: strings.TrimSpace(strings.Join(art.Abstract.Text, " ")),
		Journal:  strings.TrimSpace(art.Journal.Title),
	}

	for _, id := range a.PubmedData.ArticleIDs {
		if id.IDType == "doi" {
			rec.DOI = strings.TrimSpace(id.Value)
			break
		}
	}

	pd := art.Journal.JournalIssue.PubDate
	if t, ok := parsePubDate(pd.Year, pd.Month, pd.Day); ok {
		rec.PubDate = &t
	}

	for _, au := range art.AuthorList.Authors {
		name := strings.TrimSpace(au.ForeName + " " + au.LastName)
		if name == "" {
			name = strings.TrimSpace(au.Collective)
		}
		if name != "" {
			rec.Authors = append(rec.Authors, name)
		}
	}
	return rec
}

// parsePubDate handles the precision levels PubMed actually emits: full date,
// year and month, or bare year. Missing components default to the first
// day/month.
func parsePubDate(year, month, day string) (time.Time, bool) {
	year, month, day = strings.TrimSpace(year), strings.TrimSpace(month), strings.TrimSpace(day)
	if year == "" {
		return time.Time{}, false
	}
	for _, attempt := range []struct{ layout, value string }{
		{"2006 Jan 2", year + " " + month + " " + day},
		{"2006 Jan", year + " " + month},
		{"2006", year},
	} {
		if t, err := time.Parse(attempt.layout, attempt.value); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}
