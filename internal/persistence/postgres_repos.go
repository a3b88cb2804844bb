package persistence

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/lib/pq"

	"primetime/internal/core"
)

// pgArticleRepo implements ArticleRepository for PostgreSQL.
type pgArticleRepo struct {
	db *sql.DB
}

func (r *pgArticleRepo) Upsert(ctx context.Context, rec core.ArticleRecord) (int64, bool, error) {
	// Non-empty incoming fields overwrite; empty incoming fields never clear.
	// xmax = 0 distinguishes a fresh insert from a conflict update.
	query := `
		INSERT INTO articles (pmid, title, abstract, doi, journal, pub_date)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (pmid) DO UPDATE SET
			title    = COALESCE(NULLIF(EXCLUDED.title, ''), articles.title),
			abstract = COALESCE(NULLIF(EXCLUDED.abstract, ''), articles.abstract),
			doi      = COALESCE(NULLIF(EXCLUDED.doi, ''), articles.doi),
			journal  = COALESCE(NULLIF(EXCLUDED.journal, ''), articles.journal),
			pub_date = COALESCE(EXCLUDED.pub_date, articles.pub_date)
		RETURNING id, (xmax = 0)
	`
	var pubDate sql.NullTime
	if rec.PubDate != nil {
		pubDate = sql.NullTime{Time: *rec.PubDate, Valid: true}
	}

	var id int64
	var created bool
	err := r.db.QueryRowContext(ctx, query,
		rec.PMID, rec.Title, rec.Abstract, rec.DOI, rec.Journal, pubDate,
	).Scan(&id, &created)
	if err != nil {
		return 0, false, fmt.Errorf("failed to upsert article %s: %w", rec.PMID, err)
	}
	return id, created, nil
}

func (r *pgArticleRepo) AttachAuthors(ctx context.Context, articleID int64, names []string) error {
	if len(names) == 0 {
		return nil
	}
	return inTx(ctx, r.db, func(tx *sql.Tx) error {
		for _, name := range names {
			norm := core.NormalizeAuthor(name)
			if norm == "" {
				continue
			}
			// The no-op DO UPDATE makes RETURNING yield the id on conflict too.
			var authorID int64
			err := tx.QueryRowContext(ctx, `
				INSERT INTO authors (full_name) VALUES ($1)
				ON CONFLICT (full_name) DO UPDATE SET full_name = EXCLUDED.full_name
				RETURNING id
			`, norm).Scan(&authorID)
			if err != nil {
				return fmt.Errorf("failed to upsert author %q: %w", norm, err)
			}
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO articles_authors (article_id, author_id)
				VALUES ($1, $2) ON CONFLICT DO NOTHING
			`, articleID, authorID); err != nil {
				return fmt.Errorf("failed to link author %q: %w", norm, err)
			}
		}
		return nil
	})
}

func (r *pgArticleRepo) GetByPMID(ctx context.Context, pmid string) (*core.Article, error) {
	query := `
		SELECT a.id, a.pmid, a.title, COALESCE(a.abstract, ''), COALESCE(a.doi, ''),
		       COALESCE(a.journal, ''), a.pub_date,
		       COALESCE(array_agg(au.full_name) FILTER (WHERE au.id IS NOT NULL), '{}')
		FROM articles a
		LEFT JOIN articles_authors aa ON a.id = aa.article_id
		LEFT JOIN authors au ON aa.author_id = au.id
		WHERE a.pmid = $1
		GROUP BY a.id
	`
	row := r.db.QueryRowContext(ctx, query, pmid)
	article, err := scanArticle(row)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get article %s: %w", pmid, err)
	}
	return article, nil
}

func (r *pgArticleRepo) List(ctx context.Context, opts ListOptions) ([]core.Article, error) {
	limit := opts.Limit
	if limit == 0 {
		limit = 100
	}
	query := `
		SELECT a.id, a.pmid, a.title, COALESCE(a.abstract, ''), COALESCE(a.doi, ''),
		       COALESCE(a.journal, ''), a.pub_date,
		       COALESCE(array_agg(au.full_name) FILTER (WHERE au.id IS NOT NULL), '{}')
		FROM articles a
		LEFT JOIN articles_authors aa ON a.id = aa.article_id
		LEFT JOIN authors au ON aa.author_id = au.id
		GROUP BY a.id
		ORDER BY a.pub_date DESC NULLS LAST, a.id DESC
		LIMIT $1 OFFSET $2
	`
	rows, err := r.db.QueryContext(ctx, query, limit, opts.Offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list articles: %w", err)
	}
	defer rows.Close()

	var articles []core.Article
	for rows.Next() {
		article, err := scanArticle(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan article: %w", err)
		}
		articles = append(articles, *article)
	}
	return articles, rows.Err()
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanArticle(row rowScanner) (*core.Article, error) {
	var a core.Article
	var pubDate sql.NullTime
	var authors pq.StringArray
	err := row.Scan(&a.ID, &a.PMID, &a.Title, &a.Abstract, &a.DOI, &a.Journal, &pubDate, &authors)
	if err != nil {
		return nil, err
	}
	if pubDate.Valid {
		t := pubDate.Time
		a.PubDate = &t
	}
	a.Authors = []string(authors)
	return &a, nil
}

// pgCitationRepo implements CitationRepository for PostgreSQL.
type pgCitationRepo struct {
	db *sql.DB
}

func (r *pgCitationRepo) RecordSnapshot(ctx context.Context, snap core.CitationSnapshot) error {
	query := `
		INSERT INTO citations (article_id, source, count, last_update)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (article_id, source) DO UPDATE SET
			count = EXCLUDED.count,
			last_update = EXCLUDED.last_update
	`
	_, err := r.db.ExecContext(ctx, query, snap.ArticleID, string(snap.Source), snap.Count, snap.ObservedOn)
	if err != nil {
		return fmt.Errorf("failed to record citation snapshot: %w", err)
	}
	return nil
}

func (r *pgCitationRepo) ReplaceYearly(ctx context.Context, articleID int64, series []core.YearlyCitations) error {
	return inTx(ctx, r.db, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx,
			`DELETE FROM citations_per_year WHERE article_id = $1`, articleID); err != nil {
			return fmt.Errorf("failed to clear yearly citations: %w", err)
		}
		for _, yc := range series {
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO citations_per_year (article_id, year, citation_count)
				VALUES ($1, $2, $3)
			`, articleID, yc.Year, yc.Count); err != nil {
				return fmt.Errorf("failed to insert yearly citations for %d: %w", yc.Year, err)
			}
		}
		return nil
	})
}

func (r *pgCitationRepo) Yearly(ctx context.Context, articleID int64) ([]core.YearlyCitations, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT year, citation_count FROM citations_per_year
		WHERE article_id = $1 ORDER BY year
	`, articleID)
	if err != nil {
		return nil, fmt.Errorf("failed to query yearly citations: %w", err)
	}
	defer rows.Close()

	var series []core.YearlyCitations
	for rows.Next() {
		var yc core.YearlyCitations
		if err := rows.Scan(&yc.Year, &yc.Count); err != nil {
			return nil, fmt.Errorf("failed to scan yearly citations: %w", err)
		}
		series = append(series, yc)
	}
	return series, rows.Err()
}

// pgVectorRepo implements VectorRepository for PostgreSQL.
type pgVectorRepo struct {
	db *sql.DB
}

func (r *pgVectorRepo) Upsert(ctx context.Context, articleID int64, vector []float64) error {
	query := `
		INSERT INTO article_vectors (article_id, vector, cluster_label)
		VALUES ($1, $2, NULL)
		ON CONFLICT (article_id) DO UPDATE SET
			vector = EXCLUDED.vector,
			cluster_label = NULL
	`
	_, err := r.db.ExecContext(ctx, query, articleID, pq.Array(vector))
	if err != nil {
		return fmt.Errorf("failed to upsert vector for article %d: %w", articleID, err)
	}
	return nil
}

func (r *pgVectorRepo) SetLabels(ctx context.Context, labels map[int64]int) error {
	if len(labels) == 0 {
		return nil
	}
	return inTx(ctx, r.db, func(tx *sql.Tx) error {
		for articleID, label := range labels {
			if _, err := tx.ExecContext(ctx, `
				UPDATE article_vectors SET cluster_label = $2 WHERE article_id = $1
			`, articleID, label); err != nil {
				return fmt.Errorf("failed to set label for article %d: %w", articleID, err)
			}
		}
		return nil
	})
}

func (r *pgVectorRepo) ListAll(ctx context.Context) ([]core.ArticleVector, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT article_id, vector, cluster_label FROM article_vectors ORDER BY article_id`)
	if err != nil {
		return nil, fmt.Errorf("failed to query vectors: %w", err)
	}
	defer rows.Close()
	return collectVectors(rows)
}

func (r *pgVectorRepo) OfSearch(ctx context.Context, searchID int64) ([]core.ArticleVector, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT v.article_id, v.vector, v.cluster_label
		FROM article_vectors v
		JOIN search_articles sa ON v.article_id = sa.article_id
		WHERE sa.search_id = $1
		ORDER BY v.article_id
	`, searchID)
	if err != nil {
		return nil, fmt.Errorf("failed to query search vectors: %w", err)
	}
	defer rows.Close()
	return collectVectors(rows)
}

func collectVectors(rows *sql.Rows) ([]core.ArticleVector, error) {
	var vectors []core.ArticleVector
	for rows.Next() {
		var v core.ArticleVector
		var vec pq.Float64Array
		var label sql.NullInt64
		if err := rows.Scan(&v.ArticleID, &vec, &label); err != nil {
			return nil, fmt.Errorf("failed to scan vector: %w", err)
		}
		v.Vector = []float64(vec)
		if label.Valid {
			v.ClusterLabel = int(label.Int64)
		} else {
			v.ClusterLabel = core.NoiseLabel
		}
		vectors = append(vectors, v)
	}
	return vectors, rows.Err()
}

// pgClusterRepo implements ClusterRepository for PostgreSQL.
type pgClusterRepo struct {
	db *sql.DB
}

func (r *pgClusterRepo) ReplaceAll(ctx context.Context, clusters []core.Cluster) error {
	return inTx(ctx, r.db, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM clusters`); err != nil {
			return fmt.Errorf("failed to clear clusters: %w", err)
		}
		for _, c := range clusters {
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO clusters (cluster_label, centroid, size, velocity, last_updated)
				VALUES ($1, $2, $3, $4, $5)
			`, c.Label, pq.Array(c.Centroid), c.Size, c.Velocity, c.LastUpdated); err != nil {
				return fmt.Errorf("failed to insert cluster %d: %w", c.Label, err)
			}
		}
		return nil
	})
}

func (r *pgClusterRepo) List(ctx context.Context) ([]core.Cluster, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT cluster_label, centroid, size, velocity, last_updated
		FROM clusters ORDER BY cluster_label
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query clusters: %w", err)
	}
	defer rows.Close()

	var clusters []core.Cluster
	for rows.Next() {
		var c core.Cluster
		var centroid pq.Float64Array
		if err := rows.Scan(&c.Label, &centroid, &c.Size, &c.Velocity, &c.LastUpdated); err != nil {
			return nil, fmt.Errorf("failed to scan cluster: %w", err)
		}
		c.Centroid = []float64(centroid)
		clusters = append(clusters, c)
	}
	return clusters, rows.Err()
}

// pgSearchRepo implements SearchRepository for PostgreSQL.
type pgSearchRepo struct {
	db *sql.DB
}

func (r *pgSearchRepo) Create(ctx context.Context, s *core.Search) (int64, error) {
	var start, end sql.NullTime
	if !s.DateRange.Start.IsZero() {
		start = sql.NullTime{Time: s.DateRange.Start, Valid: true}
	}
	if !s.DateRange.End.IsZero() {
		end = sql.NullTime{Time: s.DateRange.End, Valid: true}
	}
	if s.CreatedAt.IsZero() {
		s.CreatedAt = time.Now().UTC()
	}

	var id int64
	err := r.db.QueryRowContext(ctx, `
		INSERT INTO searches (idea_text, keyword_text, max_results, start_date, end_date, timestamp)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING search_id
	`, s.IdeaText, s.Keywords, s.MaxResults, start, end, s.CreatedAt).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("failed to create search: %w", err)
	}
	s.ID = id
	return id, nil
}

func (r *pgSearchRepo) LinkArticles(ctx context.Context, searchID int64, articleIDs []int64) error {
	if len(articleIDs) == 0 {
		return nil
	}
	return inTx(ctx, r.db, func(tx *sql.Tx) error {
		for _, articleID := range articleIDs {
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO search_articles (search_id, article_id)
				VALUES ($1, $2) ON CONFLICT DO NOTHING
			`, searchID, articleID); err != nil {
				return fmt.Errorf("failed to link article %d: %w", articleID, err)
			}
		}
		return nil
	})
}

func (r *pgSearchRepo) Get(ctx context.Context, searchID int64) (*core.Search, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT search_id, idea_text, keyword_text, max_results, start_date, end_date, timestamp
		FROM searches WHERE search_id = $1
	`, searchID)
	s, err := scanSearch(row)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get search %d: %w", searchID, err)
	}
	return s, nil
}

func (r *pgSearchRepo) List(ctx context.Context, opts ListOptions) ([]core.Search, error) {
	limit := opts.Limit
	if limit == 0 {
		limit = 100
	}
	rows, err := r.db.QueryContext(ctx, `
		SELECT search_id, idea_text, keyword_text, max_results, start_date, end_date, timestamp
		FROM searches ORDER BY timestamp DESC LIMIT $1 OFFSET $2
	`, limit, opts.Offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list searches: %w", err)
	}
	defer rows.Close()

	var searches []core.Search
	for rows.Next() {
		s, err := scanSearch(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan search: %w", err)
		}
		searches = append(searches, *s)
	}
	return searches, rows.Err()
}

func scanSearch(row rowScanner) (*core.Search, error) {
	var s core.Search
	var start, end sql.NullTime
	if err := row.Scan(&s.ID, &s.IdeaText, &s.Keywords, &s.MaxResults, &start, &end, &s.CreatedAt); err != nil {
		return nil, err
	}
	if start.Valid {
		s.DateRange.Start = start.Time
	}
	if end.Valid {
		s.DateRange.End = end.Time
	}
	return &s, nil
}

func (r *pgSearchRepo) Articles(ctx context.Context, searchID int64) ([]core.Article, error) {
	query := `
		SELECT a.id, a.pmid, a.title, COALESCE(a.abstract, ''), COALESCE(a.doi, ''),
		       COALESCE(a.journal, ''), a.pub_date,
		       COALESCE(array_agg(au.full_name) FILTER (WHERE au.id IS NOT NULL), '{}')
		FROM articles a
		JOIN search_articles sa ON a.id = sa.article_id
		LEFT JOIN articles_authors aa ON a.id = aa.article_id
		LEFT JOIN authors au ON aa.author_id = au.id
		WHERE sa.search_id = $1
		GROUP BY a.id
		ORDER BY a.id
	`
	rows, err := r.db.QueryContext(ctx, query, searchID)
	if err != nil {
		return nil, fmt.Errorf("failed to query search articles: %w", err)
	}
	defer rows.Close()

	var articles []core.Article
	for rows.Next() {
		article, err := scanArticle(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan article: %w", err)
		}
		articles = append(articles, *article)
	}
	return articles, rows.Err()
}

// pgScoreRepo implements ScoreRepository for PostgreSQL.
type pgScoreRepo struct {
	db *sql.DB
}

func (r *pgScoreRepo) Put(ctx context.Context, score core.OpportunityScore, raw core.RawScores) error {
	return inTx(ctx, r.db, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO opportunity_scores
				(search_id, novelty_score, citation_velocity_score, recency_score, overall_score, computed_at)
			VALUES ($1, $2, $3, $4, $5, $6)
			ON CONFLICT (search_id) DO UPDATE SET
				novelty_score = EXCLUDED.novelty_score,
				citation_velocity_score = EXCLUDED.citation_velocity_score,
				recency_score = EXCLUDED.recency_score,
				overall_score = EXCLUDED.overall_score,
				computed_at = EXCLUDED.computed_at
		`, score.SearchID, score.Novelty, score.Velocity, score.Recency, score.Overall, score.ComputedAt); err != nil {
			return fmt.Errorf("failed to upsert score: %w", err)
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO search_history (search_id, novelty_raw, citation_raw, recency_raw, timestamp)
			VALUES ($1, $2, $3, $4, $5)
		`, raw.SearchID, raw.Novelty, raw.Velocity, raw.Recency, score.ComputedAt); err != nil {
			return fmt.Errorf("failed to append score history: %w", err)
		}
		return nil
	})
}

func (r *pgScoreRepo) Get(ctx context.Context, searchID int64) (*core.OpportunityScore, error) {
	var s core.OpportunityScore
	err := r.db.QueryRowContext(ctx, `
		SELECT search_id, novelty_score, citation_velocity_score, recency_score, overall_score, computed_at
		FROM opportunity_scores WHERE search_id = $1
	`, searchID).Scan(&s.SearchID, &s.Novelty, &s.Velocity, &s.Recency, &s.Overall, &s.ComputedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get score for search %d: %w", searchID, err)
	}
	return &s, nil
}

func (r *pgScoreRepo) RawHistory(ctx context.Context) ([]core.RawScores, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT search_id, novelty_raw, citation_raw, recency_raw
		FROM search_history ORDER BY id
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query score history: %w", err)
	}
	defer rows.Close()

	var history []core.RawScores
	for rows.Next() {
		var rs core.RawScores
		if err := rows.Scan(&rs.SearchID, &rs.Novelty, &rs.Velocity, &rs.Recency); err != nil {
			return nil, fmt.Errorf("failed to scan score history: %w", err)
		}
		history = append(history, rs)
	}
	return history, rows.Err()
}
