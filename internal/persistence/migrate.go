package persistence

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"primetime/internal/logger"
)

//go:embed migrations/*.sql
var migrationFS embed.FS

// MigrationStatus is one migration's applied state, for the status command.
type MigrationStatus struct {
	Version int
	Name    string
	Applied bool
}

type migration struct {
	version int
	name    string
	sql     string
}

// Migrate applies every embedded migration that is not yet recorded in
// schema_migrations, each in its own transaction. It returns the number of
// migrations applied.
func (s *PostgresStore) Migrate(ctx context.Context) (int, error) {
	migrations, err := embeddedMigrations()
	if err != nil {
		return 0, err
	}
	applied, err := s.appliedVersions(ctx)
	if err != nil {
		return 0, err
	}

	n := 0
	for _, mig := range migrations {
		if applied[mig.version] {
			continue
		}
		logger.Info("Applying migration", "version", mig.version, "name", mig.name)
		err := inTx(ctx, s.db, func(tx *sql.Tx) error {
			if _, err := tx.ExecContext(ctx, mig.sql); err != nil {
				return err
			}
			_, err := tx.ExecContext(ctx,
				`INSERT INTO schema_migrations (version, name) VALUES ($1, $2)`,
				mig.version, mig.name)
			return err
		})
		if err != nil {
			return n, fmt.Errorf("failed to apply migration %d: %w", mig.version, err)
		}
		n++
	}
	return n, nil
}

// MigrationStatus reports every embedded migration and whether it has been
// applied.
func (s *PostgresStore) MigrationStatus(ctx context.Context) ([]MigrationStatus, error) {
	migrations, err := embeddedMigrations()
	if err != nil {
		return nil, err
	}
	applied, err := s.appliedVersions(ctx)
	if err != nil {
		return nil, err
	}

	status := make([]MigrationStatus, 0, len(migrations))
	for _, mig := range migrations {
		status = append(status, MigrationStatus{
			Version: mig.version,
			Name:    mig.name,
			Applied: applied[mig.version],
		})
	}
	return status, nil
}

// appliedVersions creates schema_migrations if needed and returns the set of
// applied versions.
func (s *PostgresStore) appliedVersions(ctx context.Context) (map[int]bool, error) {
	_, err := s.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INT PRIMARY KEY,
			name TEXT NOT NULL,
			applied_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
		)`)
	if err != nil {
		return nil, fmt.Errorf("failed to create migrations table: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, `SELECT version FROM schema_migrations`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	applied := make(map[int]bool)
	for rows.Next() {
		var version int
		if err := rows.Scan(&version); err != nil {
			return nil, err
		}
		applied[version] = true
	}
	return applied, rows.Err()
}

// embeddedMigrations reads migrations/NNN_name.sql files, ordered by version.
func embeddedMigrations() ([]migration, error) {
	entries, err := migrationFS.ReadDir("migrations")
	if err != nil {
		return nil, fmt.Errorf("failed to read migrations: %w", err)
	}

	var migrations []migration
	for _, entry := range entries {
		prefix, rest, ok := strings.Cut(entry.Name(), "_")
		if !ok || !strings.HasSuffix(rest, ".sql") {
			return nil, fmt.Errorf("malformed migration filename %q", entry.Name())
		}
		version, err := strconv.Atoi(prefix)
		if err != nil {
			return nil, fmt.Errorf("malformed migration version in %q", entry.Name())
		}
		content, err := migrationFS.ReadFile("migrations/" + entry.Name())
		if err != nil {
			return nil, err
		}
		migrations = append(migrations, migration{
			version: version,
			name:    strings.ReplaceAll(strings.TrimSuffix(rest, ".sql"), "_", " "),
			sql:     string(content),
		})
	}
	sort.Slice(migrations, func(i, j int) bool { return migrations[i].version < migrations[j].version })
	return migrations, nil
}
