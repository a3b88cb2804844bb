package citations

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"primetime/internal/core"
)

func TestChainPrefersCrossRefCount(t *testing.T) {
	crossref := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"message":{"is-referenced-by-count":42}}`)
	}))
	defer crossref.Close()
	openalex := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"cited_by_count":40,"counts_by_year":[{"year":2023,"cited_by_count":10},{"year":2021,"cited_by_count":5}]}`)
	}))
	defer openalex.Close()

	chain := NewChain(
		NewCrossRefClientWithBaseURL(crossref.URL, time.Second),
		NewOpenAlexClientWithBaseURL(openalex.URL, time.Second),
		5*time.Second,
	)

	rec, err := chain.Citations(context.Background(), core.Article{PMID: "1", DOI: "10.1/x"})
	if err != nil {
		t.Fatalf("Citations failed: %v", err)
	}
	if rec.Source != core.SourceCrossRef {
		t.Errorf("source = %s, want crossref", rec.Source)
	}
	if rec.Count != 42 {
		t.Errorf("count = %d, want 42 from CrossRef", rec.Count)
	}
	if len(rec.Yearly) != 2 || rec.Yearly[0].Year != 2021 || rec.Yearly[1].Year != 2023 {
		t.Errorf("yearly series should be sorted ascending, got %v", rec.Yearly)
	}
}

func TestChainZeroCrossRefCountFallsBackToOpenAlex(t *testing.T) {
	crossref := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"message":{"is-referenced-by-count":0}}`)
	}))
	defer crossref.Close()
	openalex := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"cited_by_count":7,"counts_by_year":[{"year":2024,"cited_by_count":7}]}`)
	}))
	defer openalex.Close()

	chain := NewChain(
		NewCrossRefClientWithBaseURL(crossref.URL, time.Second),
		NewOpenAlexClientWithBaseURL(openalex.URL, time.Second),
		5*time.Second,
	)

	rec, err := chain.Citations(context.Background(), core.Article{PMID: "1", DOI: "10.1/x"})
	if err != nil {
		t.Fatal(err)
	}
	// A zero CrossRef count means missing coverage there, not zero citations.
	if rec.Source != core.SourceOpenAlex {
		t.Errorf("source = %s, want openalex", rec.Source)
	}
	if rec.Count != 7 {
		t.Errorf("count = %d, want 7 from OpenAlex", rec.Count)
	}
}

func TestChainFallsBackWhenCrossRefFails(t *testing.T) {
	crossref := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot) // Permanent failure, no retry storm
	}))
	defer crossref.Close()
	openalex := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"cited_by_count":7,"counts_by_year":[]}`)
	}))
	defer openalex.Close()

	chain := NewChain(
		NewCrossRefClientWithBaseURL(crossref.URL, time.Second),
		NewOpenAlexClientWithBaseURL(openalex.URL, time.Second),
		5*time.Second,
	)

	rec, err := chain.Citations(context.Background(), core.Article{PMID: "1", DOI: "10.1/x"})
	if err != nil {
		t.Fatalf("a CrossRef failure must degrade, not fail: %v", err)
	}
	if rec.Source != core.SourceOpenAlex {
		t.Errorf("source = %s, want openalex fallback", rec.Source)
	}
	if rec.Count != 7 {
		t.Errorf("count = %d, want 7 from OpenAlex", rec.Count)
	}
}

func TestChainWithoutDOISkipsCrossRef(t *testing.T) {
	crossrefCalled := false
	crossref := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		crossrefCalled = true
		fmt.Fprint(w, `{"message":{"is-referenced-by-count":99}}`)
	}))
	defer crossref.Close()
	openalex := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/works/pmid:55" {
			t.Errorf("unexpected OpenAlex path %q", r.URL.Path)
		}
		fmt.Fprint(w, `{"cited_by_count":3,"counts_by_year":[]}`)
	}))
	defer openalex.Close()

	chain := NewChain(
		NewCrossRefClientWithBaseURL(crossref.URL, time.Second),
		NewOpenAlexClientWithBaseURL(openalex.URL, time.Second),
		5*time.Second,
	)

	rec, err := chain.Citations(context.Background(), core.Article{PMID: "55"})
	if err != nil {
		t.Fatal(err)
	}
	if crossrefCalled {
		t.Error("CrossRef should not be queried without a DOI")
	}
	if rec.Count != 3 || rec.Source != core.SourceOpenAlex {
		t.Errorf("unexpected record: %+v", rec)
	}
}

func TestUnknownWorkYieldsZeroRecord(t *testing.T) {
	notFound := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer notFound.Close()

	chain := NewChain(
		NewCrossRefClientWithBaseURL(notFound.URL, time.Second),
		NewOpenAlexClientWithBaseURL(notFound.URL, time.Second),
		5*time.Second,
	)

	rec, err := chain.Citations(context.Background(), core.Article{PMID: "1", DOI: "10.1/missing"})
	if err != nil {
		t.Fatalf("unknown work must not error: %v", err)
	}
	if rec.Count != 0 || len(rec.Yearly) != 0 {
		t.Errorf("unknown work should yield a zero record, got %+v", rec)
	}
}
