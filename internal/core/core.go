package core

import (
	"strings"
	"time"
)

// CitationSource identifies which external service a citation count came from.
type CitationSource string

const (
	SourceCrossRef CitationSource = "crossref"
	SourceOpenAlex CitationSource = "openalex"
)

// NoiseLabel marks vectors the clusterer left unassigned.
const NoiseLabel = -1

// Article represents one bibliographic record keyed by its PubMed identifier.
type Article struct {
	ID       int64      `json:"id"`       // Internal identifier assigned by the store
	PMID     string     `json:"pmid"`     // PubMed identifier, globally unique
	Title    string     `json:"title"`    // Article title
	Abstract string     `json:"abstract"` // Abstract text (may be empty)
	DOI      string     `json:"doi"`      // Cross-publisher identifier (may be empty)
	Journal  string     `json:"journal"`  // Journal name (may be empty)
	PubDate  *time.Time `json:"pub_date"` // Publication date, day precision (nil when unknown)
	Authors  []string   `json:"authors"`  // Normalized author names
}

// ArticleRecord is what the bibliographic adapter returns for one upstream hit,
// before the store has assigned an internal identifier.
type ArticleRecord struct {
	PMID     string     `json:"pmid"`
	Title    string     `json:"title"`
	Abstract string     `json:"abstract"`
	DOI      string     `json:"doi"`
	Journal  string     `json:"journal"`
	PubDate  *time.Time `json:"pub_date"`
	Authors  []string   `json:"authors"`
}

// CitationSnapshot is the latest known total citation count for an article
// from one source. Newer observations replace older ones per (article, source).
type CitationSnapshot struct {
	ArticleID  int64          `json:"article_id"`
	Source     CitationSource `json:"source"`
	Count      int            `json:"count"`
	ObservedOn time.Time      `json:"observed_on"`
}

// YearlyCitations is one point of an article's citation trajectory.
type YearlyCitations struct {
	Year  int `json:"year"`
	Count int `json:"count"`
}

// ArticleVector is the embedding of one article plus its cluster assignment.
// A ClusterLabel of NoiseLabel means the point is unclustered.
type ArticleVector struct {
	ArticleID    int64     `json:"article_id"`
	Vector       []float64 `json:"vector"`
	ClusterLabel int       `json:"cluster_label"`
}

// Cluster is one group of semantically similar articles. The label is always >= 0;
// noise points are never persisted as a cluster.
type Cluster struct {
	Label       int       `json:"label"`
	Centroid    []float64 `json:"centroid"`
	Size        int       `json:"size"`
	Velocity    float64   `json:"velocity"` // Mean forward citation slope of members
	LastUpdated time.Time `json:"last_updated"`
}

// DateRange restricts a bibliographic search to a publication-date window.
// Either bound may be zero, meaning unbounded on that side.
type DateRange struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// IsZero reports whether no date filter was requested.
func (r DateRange) IsZero() bool {
	return r.Start.IsZero() && r.End.IsZero()
}

// Search records one user-initiated pipeline invocation.
type Search struct {
	ID         int64     `json:"search_id"`
	IdeaText   string    `json:"idea_text"`    // The original free-text research idea
	Keywords   string    `json:"keyword_text"` // Final keyword string, semicolon-separated
	MaxResults int       `json:"max_results"`
	DateRange  DateRange `json:"date_range"`
	CreatedAt  time.Time `json:"timestamp"`
}

// OpportunityScore holds the normalized sub-scores and overall score for a search.
// All values are in [0,1].
type OpportunityScore struct {
	SearchID   int64     `json:"search_id"`
	Novelty    float64   `json:"novelty_score"`
	Velocity   float64   `json:"citation_velocity_score"`
	Recency    float64   `json:"recency_score"`
	Overall    float64   `json:"overall_score"`
	ComputedAt time.Time `json:"computed_at"`
}

// RawScores are the pre-normalization measurements for one search. They are
// appended to history and never rewritten; the scorer percentile-ranks new
// searches against them.
type RawScores struct {
	SearchID int64   `json:"search_id"`
	Novelty  float64 `json:"novelty_raw"`
	Velocity float64 `json:"citation_raw"`
	Recency  float64 `json:"recency_raw"`
}

// NormalizeAuthor canonicalizes an author name for cross-corpus deduplication:
// whitespace is collapsed and the result is lowercased. Homonym collisions are
// accepted.
func NormalizeAuthor(name string) string {
	return strings.ToLower(strings.Join(strings.Fields(name), " "))
}
