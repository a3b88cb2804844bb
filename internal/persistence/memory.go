package persistence

import (
	"context"
	"sort"
	"sync"
	"time"

	"primetime/internal/core"
)

// MemoryStore is an in-memory Store implementation used in tests and local
// experiments. All methods are safe for concurrent use.
type MemoryStore struct {
	mu sync.RWMutex

	nextArticleID int64
	nextSearchID  int64

	articles map[int64]*core.Article // by internal id
	byPMID   map[string]int64

	snapshots map[int64]map[core.CitationSource]core.CitationSnapshot
	yearly    map[int64][]core.YearlyCitations

	vectors map[int64]*core.ArticleVector

	clusters []core.Cluster

	searches       map[int64]*core.Search
	searchArticles map[int64][]int64
	linked         map[int64]map[int64]bool

	scores  map[int64]core.OpportunityScore
	history []core.RawScores
}

// NewMemoryStore returns an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		articles:       make(map[int64]*core.Article),
		byPMID:         make(map[string]int64),
		snapshots:      make(map[int64]map[core.CitationSource]core.CitationSnapshot),
		yearly:         make(map[int64][]core.YearlyCitations),
		vectors:        make(map[int64]*core.ArticleVector),
		searches:       make(map[int64]*core.Search),
		searchArticles: make(map[int64][]int64),
		linked:         make(map[int64]map[int64]bool),
		scores:         make(map[int64]core.OpportunityScore),
	}
}

func (s *MemoryStore) Articles() ArticleRepository   { return (*memArticleRepo)(s) }
func (s *MemoryStore) Citations() CitationRepository { return (*memCitationRepo)(s) }
func (s *MemoryStore) Vectors() VectorRepository     { return (*memVectorRepo)(s) }
func (s *MemoryStore) Clusters() ClusterRepository   { return (*memClusterRepo)(s) }
func (s *MemoryStore) Searches() SearchRepository    { return (*memSearchRepo)(s) }
func (s *MemoryStore) Scores() ScoreRepository       { return (*memScoreRepo)(s) }

func (s *MemoryStore) Ping(_ context.Context) error { return nil }
func (s *MemoryStore) Close() error                 { return nil }

func (s *MemoryStore) Stats(_ context.Context) (*Stats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return &Stats{
		Articles: len(s.articles),
		Searches: len(s.searches),
		Clusters: len(s.clusters),
		Vectors:  len(s.vectors),
	}, nil
}

type memArticleRepo MemoryStore

func (r *memArticleRepo) Upsert(_ context.Context, rec core.ArticleRecord) (int64, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if id, ok := r.byPMID[rec.PMID]; ok {
		a := r.articles[id]
		if rec.Title != "" {
			a.Title = rec.Title
		}
		if rec.Abstract != "" {
			a.Abstract = rec.Abstract
		}
		if rec.DOI != "" {
			a.DOI = rec.DOI
		}
		if rec.Journal != "" {
			a.Journal = rec.Journal
		}
		if rec.PubDate != nil {
			t := *rec.PubDate
			a.PubDate = &t
		}
		return id, false, nil
	}

	r.nextArticleID++
	id := r.nextArticleID
	a := &core.Article{
		ID:       id,
		PMID:     rec.PMID,
		Title:    rec.Title,
		Abstract: rec.Abstract,
		DOI:      rec.DOI,
		Journal:  rec.Journal,
	}
	if rec.PubDate != nil {
		t := *rec.PubDate
		a.PubDate = &t
	}
	r.articles[id] = a
	r.byPMID[rec.PMID] = id
	return id, true, nil
}

func (r *memArticleRepo) AttachAuthors(_ context.Context, articleID int64, names []string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	a, ok := r.articles[articleID]
	if !ok {
		return ErrNotFound
	}
	seen := make(map[string]bool, len(a.Authors))
	for _, existing := range a.Authors {
		seen[existing] = true
	}
	for _, name := range names {
		norm := core.NormalizeAuthor(name)
		if norm == "" || seen[norm] {
			continue
		}
		seen[norm] = true
		a.Authors = append(a.Authors, norm)
	}
	return nil
}

func (r *memArticleRepo) GetByPMID(_ context.Context, pmid string) (*core.Article, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	id, ok := r.byPMID[pmid]
	if !ok {
		return nil, ErrNotFound
	}
	a := copyArticle(r.articles[id])
	return &a, nil
}

func (r *memArticleRepo) List(_ context.Context, opts ListOptions) ([]core.Article, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	articles := make([]core.Article, 0, len(r.articles))
	for _, a := range r.articles {
		articles = append(articles, copyArticle(a))
	}
	sort.Slice(articles, func(i, j int) bool {
		di, dj := articles[i].PubDate, articles[j].PubDate
		switch {
		case di == nil && dj == nil:
			return articles[i].ID > articles[j].ID
		case di == nil:
			return false
		case dj == nil:
			return true
		case di.Equal(*dj):
			return articles[i].ID > articles[j].ID
		default:
			return di.After(*dj)
		}
	})
	return paginate(articles, opts), nil
}

func copyArticle(a *core.Article) core.Article {
	out := *a
	out.Authors = append([]string(nil), a.Authors...)
	if a.PubDate != nil {
		t := *a.PubDate
		out.PubDate = &t
	}
	return out
}

func paginate[T any](items []T, opts ListOptions) []T {
	limit := opts.Limit
	if limit == 0 {
		limit = 100
	}
	if opts.Offset >= len(items) {
		return nil
	}
	items = items[opts.Offset:]
	if len(items) > limit {
		items = items[:limit]
	}
	return items
}

type memCitationRepo MemoryStore

func (r *memCitationRepo) RecordSnapshot(_ context.Context, snap core.CitationSnapshot) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	m, ok := r.snapshots[snap.ArticleID]
	if !ok {
		m = make(map[core.CitationSource]core.CitationSnapshot)
		r.snapshots[snap.ArticleID] = m
	}
	m[snap.Source] = snap
	return nil
}

func (r *memCitationRepo) ReplaceYearly(_ context.Context, articleID int64, series []core.YearlyCitations) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.yearly[articleID] = append([]core.YearlyCitations(nil), series...)
	return nil
}

func (r *memCitationRepo) Yearly(_ context.Context, articleID int64) ([]core.YearlyCitations, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	series := append([]core.YearlyCitations(nil), r.yearly[articleID]...)
	sort.Slice(series, func(i, j int) bool { return series[i].Year < series[j].Year })
	return series, nil
}

type memVectorRepo MemoryStore

func (r *memVectorRepo) Upsert(_ context.Context, articleID int64, vector []float64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.vectors[articleID] = &core.ArticleVector{
		ArticleID:    articleID,
		Vector:       append([]float64(nil), vector...),
		ClusterLabel: core.NoiseLabel,
	}
	return nil
}

func (r *memVectorRepo) SetLabels(_ context.Context, labels map[int64]int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for articleID, label := range labels {
		if v, ok := r.vectors[articleID]; ok {
			v.ClusterLabel = label
		}
	}
	return nil
}

func (r *memVectorRepo) ListAll(_ context.Context) ([]core.ArticleVector, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	vectors := make([]core.ArticleVector, 0, len(r.vectors))
	for _, v := range r.vectors {
		vectors = append(vectors, copyVector(v))
	}
	sort.Slice(vectors, func(i, j int) bool { return vectors[i].ArticleID < vectors[j].ArticleID })
	return vectors, nil
}

func (r *memVectorRepo) OfSearch(_ context.Context, searchID int64) ([]core.ArticleVector, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var vectors []core.ArticleVector
	for _, articleID := range r.searchArticles[searchID] {
		if v, ok := r.vectors[articleID]; ok {
			vectors = append(vectors, copyVector(v))
		}
	}
	sort.Slice(vectors, func(i, j int) bool { return vectors[i].ArticleID < vectors[j].ArticleID })
	return vectors, nil
}

func copyVector(v *core.ArticleVector) core.ArticleVector {
	out := *v
	out.Vector = append([]float64(nil), v.Vector...)
	return out
}

type memClusterRepo MemoryStore

func (r *memClusterRepo) ReplaceAll(_ context.Context, clusters []core.Cluster) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.clusters = make([]core.Cluster, len(clusters))
	for i, c := range clusters {
		c.Centroid = append([]float64(nil), c.Centroid...)
		r.clusters[i] = c
	}
	sort.Slice(r.clusters, func(i, j int) bool { return r.clusters[i].Label < r.clusters[j].Label })
	return nil
}

func (r *memClusterRepo) List(_ context.Context) ([]core.Cluster, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]core.Cluster, len(r.clusters))
	for i, c := range r.clusters {
		c.Centroid = append([]float64(nil), c.Centroid...)
		out[i] = c
	}
	return out, nil
}

type memSearchRepo MemoryStore

func (r *memSearchRepo) Create(_ context.Context, s *core.Search) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.nextSearchID++
	s.ID = r.nextSearchID
	if s.CreatedAt.IsZero() {
		s.CreatedAt = time.Now().UTC()
	}
	cp := *s
	r.searches[s.ID] = &cp
	return s.ID, nil
}

func (r *memSearchRepo) LinkArticles(_ context.Context, searchID int64, articleIDs []int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	seen, ok := r.linked[searchID]
	if !ok {
		seen = make(map[int64]bool)
		r.linked[searchID] = seen
	}
	for _, articleID := range articleIDs {
		if seen[articleID] {
			continue
		}
		seen[articleID] = true
		r.searchArticles[searchID] = append(r.searchArticles[searchID], articleID)
	}
	return nil
}

func (r *memSearchRepo) Get(_ context.Context, searchID int64) (*core.Search, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s, ok := r.searches[searchID]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *s
	return &cp, nil
}

func (r *memSearchRepo) List(_ context.Context, opts ListOptions) ([]core.Search, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	searches := make([]core.Search, 0, len(r.searches))
	for _, s := range r.searches {
		searches = append(searches, *s)
	}
	sort.Slice(searches, func(i, j int) bool {
		if searches[i].CreatedAt.Equal(searches[j].CreatedAt) {
			return searches[i].ID > searches[j].ID
		}
		return searches[i].CreatedAt.After(searches[j].CreatedAt)
	})
	return paginate(searches, opts), nil
}

func (r *memSearchRepo) Articles(_ context.Context, searchID int64) ([]core.Article, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var articles []core.Article
	for _, articleID := range r.searchArticles[searchID] {
		if a, ok := r.articles[articleID]; ok {
			articles = append(articles, copyArticle(a))
		}
	}
	sort.Slice(articles, func(i, j int) bool { return articles[i].ID < articles[j].ID })
	return articles, nil
}

type memScoreRepo MemoryStore

func (r *memScoreRepo) Put(_ context.Context, score core.OpportunityScore, raw core.RawScores) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.scores[score.SearchID] = score
	r.history = append(r.history, raw)
	return nil
}

func (r *memScoreRepo) Get(_ context.Context, searchID int64) (*core.OpportunityScore, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s, ok := r.scores[searchID]
	if !ok {
		return nil, ErrNotFound
	}
	return &s, nil
}

func (r *memScoreRepo) RawHistory(_ context.Context) ([]core.RawScores, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]core.RawScores(nil), r.history...), nil
}
