package pubmed

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"primetime/internal/remote"
)

const efetchFixture = `<?xml version="1.0"?>
<PubmedArticleSet>
  <PubmedArticle>
    <MedlineCitation>
      <PMID>222</PMID>
      <Article>
        <Journal>
          <JournalIssue>
            <PubDate><Year>2021</Year><Month>Mar</Month></PubDate>
          </JournalIssue>
          <Title>Journal B</Title>
        </Journal>
        <ArticleTitle>Second hit</ArticleTitle>
        <Abstract><AbstractText>Part one.</AbstractText><AbstractText>Part two.</AbstractText></Abstract>
        <AuthorList>
          <Author><LastName>Doe</LastName><ForeName>Jane</ForeName></Author>
        </AuthorList>
      </Article>
    </MedlineCitation>
    <PubmedData>
      <ArticleIdList>
        <ArticleId IdType="pubmed">222</ArticleId>
        <ArticleId IdType="doi">10.2/second</ArticleId>
      </ArticleIdList>
    </PubmedData>
  </PubmedArticle>
  <PubmedArticle>
    <MedlineCitation>
      <PMID>111</PMID>
      <Article>
        <Journal>
          <JournalIssue>
            <PubDate><Year>2023</Year><Month>Jan</Month><Day>15</Day></PubDate>
          </JournalIssue>
          <Title>Journal A</Title>
        </Journal>
        <ArticleTitle>First hit</ArticleTitle>
        <Abstract><AbstractText>Only part.</AbstractText></Abstract>
        <AuthorList>
          <Author><LastName>Roe</LastName><ForeName>John</ForeName></Author>
          <Author><CollectiveName>Some Consortium</CollectiveName></Author>
        </AuthorList>
      </Article>
    </MedlineCitation>
    <PubmedData>
      <ArticleIdList>
        <ArticleId IdType="pubmed">111</ArticleId>
      </ArticleIdList>
    </PubmedData>
  </PubmedArticle>
</PubmedArticleSet>`

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/esearch.fcgi", func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("db"); got != "pubmed" {
			t.Errorf("esearch db = %q, want pubmed", got)
		}
		if got := r.URL.Query().Get("sort"); got != "relevance" {
			t.Errorf("esearch sort = %q, want relevance", got)
		}
		fmt.Fprint(w, `{"esearchresult":{"idlist":["111","222"]}}`)
	})
	mux.HandleFunc("/efetch.fcgi", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, efetchFixture)
	})
	return httptest.NewServer(mux)
}

func TestSearchPreservesRelevanceOrder(t *testing.T) {
	server := newTestServer(t)
	defer server.Close()

	client := NewClientWithBaseURL(server.URL, 5*time.Second)
	records, err := client.Search(context.Background(), "test query", 10)
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("expected 2 records, got %d", len(records))
	}

	// efetch returned 222 before 111; the esearch order must win.
	if records[0].PMID != "111" || records[1].PMID != "222" {
		t.Errorf("relevance order lost: got %s, %s", records[0].PMID, records[1].PMID)
	}

	first := records[0]
	if first.Title != "First hit" {
		t.Errorf("title = %q", first.Title)
	}
	if first.Journal != "Journal A" {
		t.Errorf("journal = %q", first.Journal)
	}
	if first.DOI != "" {
		t.Errorf("record without doi id should have empty DOI, got %q", first.DOI)
	}
	if first.PubDate == nil || first.PubDate.Year() != 2023 || first.PubDate.Month() != time.January || first.PubDate.Day() != 15 {
		t.Errorf("pub date = %v", first.PubDate)
	}
	if len(first.Authors) != 2 || first.Authors[0] != "John Roe" || first.Authors[1] != "Some Consortium" {
		t.Errorf("authors = %v", first.Authors)
	}

	second := records[1]
	if second.DOI != "10.2/second" {
		t.Errorf("doi = %q", second.DOI)
	}
	if second.Abstract != "Part one. Part two." {
		t.Errorf("abstract parts should be joined, got %q", second.Abstract)
	}
	if second.PubDate == nil || second.PubDate.Year() != 2021 || second.PubDate.Month() != time.March {
		t.Errorf("month-precision pub date = %v", second.PubDate)
	}
}

func TestSearchEmptyResult(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"esearchresult":{"idlist":[]}}`)
	}))
	defer server.Close()

	client := NewClientWithBaseURL(server.URL, 5*time.Second)
	records, err := client.Search(context.Background(), "nothing", 10)
	if err != nil {
		t.Fatalf("empty result should not error: %v", err)
	}
	if len(records) != 0 {
		t.Errorf("expected no records, got %d", len(records))
	}
}

func TestSearchServerErrorIsTransient(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	client := NewClientWithBaseURL(server.URL, 5*time.Second)
	_, err := client.Search(context.Background(), "q", 10)
	if err == nil {
		t.Fatal("expected error")
	}
	if !remote.IsTransient(err) {
		t.Errorf("5xx should map to a transient error, got %v", err)
	}
}

func TestSearchMalformedResponseIsPermanent(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "not json")
	}))
	defer server.Close()

	client := NewClientWithBaseURL(server.URL, 5*time.Second)
	_, err := client.Search(context.Background(), "q", 10)
	if err == nil {
		t.Fatal("expected error")
	}
	if !remote.IsPermanent(err) {
		t.Errorf("malformed payload should map to a permanent error, got %v", err)
	}
}

func TestParsePubDate(t *testing.T) {
	cases := []struct {
		year, month, day string
		wantOK           bool
		want             string
	}{
		{"2023", "Jan", "15", true, "2023-01-15"},
		{"2021", "Mar", "", true, "2021-03-01"},
		{"2019", "", "", true, "2019-01-01"},
		{"", "", "", false, ""},
		{"bad", "", "", false, ""},
	}
	for _, c := range cases {
		got, ok := parsePubDate(c.year, c.month, c.day)
		if ok != c.wantOK {
			t.Errorf("parsePubDate(%q,%q,%q) ok = %v, want %v", c.year, c.month, c.day, ok, c.wantOK)
			continue
		}
		if ok && got.Format("2006-01-02") != c.want {
			t.Errorf("parsePubDate(%q,%q,%q) = %s, want %s", c.year, c.month, c.day, got.Format("2006-01-02"), c.want)
		}
	}
}
