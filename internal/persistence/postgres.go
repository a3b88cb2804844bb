package persistence

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq" // Postgres driver
)

// PostgresStore implements the Store interface for PostgreSQL.
type PostgresStore struct {
	db        *sql.DB
	articles  ArticleRepository
	citations CitationRepository
	vectors   VectorRepository
	clusters  ClusterRepository
	searches  SearchRepository
	scores    ScoreRepository
}

// NewPostgresStore opens a PostgreSQL connection and wires the repositories.
func NewPostgresStore(connString string) (*PostgresStore, error) {
	db, err := sql.Open("postgres", connString)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	s := &PostgresStore{db: db}
	s.articles = &pgArticleRepo{db: db}
	s.citations = &pgCitationRepo{db: db}
	s.vectors = &pgVectorRepo{db: db}
	s.clusters = &pgClusterRepo{db: db}
	s.searches = &pgSearchRepo{db: db}
	s.scores = &pgScoreRepo{db: db}
	return s, nil
}

func (s *PostgresStore) Articles() ArticleRepository   { return s.articles }
func (s *PostgresStore) Citations() CitationRepository { return s.citations }
func (s *PostgresStore) Vectors() VectorRepository     { return s.vectors }
func (s *PostgresStore) Clusters() ClusterRepository   { return s.clusters }
func (s *PostgresStore) Searches() SearchRepository    { return s.searches }
func (s *PostgresStore) Scores() ScoreRepository       { return s.scores }

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *PostgresStore) Close() error {
	return s.db.Close()
}

// Stats returns row counts for the main tables.
func (s *PostgresStore) Stats(ctx context.Context) (*Stats, error) {
	stats := &Stats{}
	counts := map[string]*int{
		"SELECT COUNT(*) FROM articles":        &stats.Articles,
		"SELECT COUNT(*) FROM searches":        &stats.Searches,
		"SELECT COUNT(*) FROM clusters":        &stats.Clusters,
		"SELECT COUNT(*) FROM article_vectors": &stats.Vectors,
	}
	for query, target := range counts {
		if err := s.db.QueryRowContext(ctx, query).Scan(target); err != nil {
			return nil, fmt.Errorf("failed to count rows: %w", err)
		}
	}
	return stats, nil
}

// inTx runs fn inside one transaction, rolling back on error.
func inTx(ctx context.Context, db *sql.DB, fn func(tx *sql.Tx) error) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}
