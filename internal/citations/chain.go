package citations

import (
	"context"
	"time"

	"primetime/internal/core"
	"primetime/internal/logger"
	"primetime/internal/remote"
)

// Chain is the production Source: CrossRef is the authority for the total
// count when a DOI exists and it reports one, OpenAlex covers the yearly
// trajectory and serves as count fallback.
type Chain struct {
	crossref *CrossRefClient
	openalex *OpenAlexClient
	timeout  time.Duration
}

// NewChain wires the two upstream clients. timeout bounds each per-article
// resolution as a whole.
func NewChain(crossref *CrossRefClient, openalex *OpenAlexClient, timeout time.Duration) *Chain {
	return &Chain{crossref: crossref, openalex: openalex, timeout: timeout}
}

// Citations resolves the citation record for one article. A CrossRef failure
// degrades to the OpenAlex count instead of failing the article.
func (c *Chain) Citations(ctx context.Context, article core.Article) (Record, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var oaCount int
	var yearly []core.YearlyCitations
	err := remote.Retry(ctx, func() error {
		var err error
		oaCount, yearly, err = c.openalex.Work(ctx, article)
		return err
	})
	if err != nil {
		return Record{}, err
	}

	rec := Record{Source: core.SourceOpenAlex, Count: oaCount, Yearly: yearly}

	if article.DOI != "" {
		var crCount int
		err := remote.Retry(ctx, func() error {
			var err error
			crCount, err = c.crossref.Count(ctx, article.DOI)
			return err
		})
		if err != nil {
			logger.Warn("CrossRef lookup failed, using OpenAlex count",
				"doi", article.DOI, "error", err)
		} else if crCount > 0 {
			// A zero CrossRef count is treated as missing coverage, not as
			// the truth; keep the OpenAlex count in that case.
			rec.Source = core.SourceCrossRef
			rec.Count = crCount
		}
	}

	return rec, nil
}
