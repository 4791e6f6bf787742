// Store schema migration management.
package store

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/fieldworks/fieldsync/internal/apperr"
)

// Migration represents one versioned schema change, embedded in the binary so
// the store can bootstrap itself on any device.
type Migration struct {
	Version     int
	Description string
	SQL         string
}

var migrations = []Migration{
	{
		Version:     1,
		Description: "create records table",
		SQL: `
		CREATE TABLE IF NOT EXISTS records (
			collection TEXT NOT NULL CHECK(length(collection) > 0),
			id TEXT NOT NULL CHECK(length(id) > 0),
			body TEXT NOT NULL,
			updated_at INTEGER NOT NULL,
			PRIMARY KEY (collection, id)
		);`,
	},
	{
		Version:     2,
		Description: "index records by collection and recency",
		SQL: `
		CREATE INDEX IF NOT EXISTS idx_records_collection_updated
			ON records (collection, updated_at DESC);`,
	},
}

// Migrate applies all pending schema migrations inside transactions.
func (s *Store) Migrate() error {
	if err := s.initMigrations(); err != nil {
		return err
	}

	applied, err := s.appliedVersions()
	if err != nil {
		return err
	}

	for _, m := range migrations {
		if applied[m.Version] {
			continue
		}
		if err := s.applyMigration(m); err != nil {
			return apperr.Wrap(apperr.ErrMigration, fmt.Sprintf("migration %d (%s)", m.Version, m.Description), err)
		}
	}
	return nil
}

// SchemaVersion returns the current schema version.
func (s *Store) SchemaVersion() (int, error) {
	var version int
	err := s.db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_migrations").Scan(&version)
	if err != nil {
		return 0, apperr.Wrap(apperr.ErrMigration, "read schema version", err)
	}
	return version, nil
}

// initMigrations creates the schema_migrations table if it doesn't exist.
func (s *Store) initMigrations() error {
	query := `
	CREATE TABLE IF NOT EXISTS schema_migrations (
		version INTEGER PRIMARY KEY CHECK(version > 0),
		applied_at INTEGER NOT NULL CHECK(applied_at > 0),
		description TEXT NOT NULL CHECK(length(description) > 0),
		checksum TEXT NOT NULL CHECK(length(checksum) = 64)
	);`
	if _, err := s.db.Exec(query); err != nil {
		return apperr.Wrap(apperr.ErrMigration, "initialize schema_migrations", err)
	}
	return nil
}

// appliedVersions returns the set of already applied migration versions.
func (s *Store) appliedVersions() (map[int]bool, error) {
	rows, err := s.db.Query("SELECT version FROM schema_migrations ORDER BY version")
	if err != nil {
		return nil, apperr.Wrap(apperr.ErrMigration, "read applied migrations", err)
	}
	defer rows.Close()

	applied := make(map[int]bool)
	for rows.Next() {
		var v int
		if err := rows.Scan(&v); err != nil {
			return nil, apperr.Wrap(apperr.ErrMigration, "scan applied migration", err)
		}
		applied[v] = true
	}
	return applied, rows.Err()
}

// applyMigration applies a single migration in a transaction.
func (s *Store) applyMigration(m Migration) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(m.SQL); err != nil {
		return fmt.Errorf("failed to execute migration SQL: %w", err)
	}

	hash := sha256.Sum256([]byte(m.SQL))
	checksum := hex.EncodeToString(hash[:])
	query := `INSERT INTO schema_migrations (version, applied_at, description, checksum)
			  VALUES (?, ?, ?, ?)`
	if _, err := tx.Exec(query, m.Version, time.Now().Unix(), m.Description, checksum); err != nil {
		return fmt.Errorf("failed to record migration: %w", err)
	}

	return tx.Commit()
}
