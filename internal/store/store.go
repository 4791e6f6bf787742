// Package store provides the local persistent store: durable named
// collections of JSON records backed by SQLite, surviving process restarts.
package store

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/fieldworks/fieldsync/internal/apperr"
)

// ErrNotFound is returned when a record does not exist in a collection.
var ErrNotFound = apperr.New(apperr.ErrNotFound, "record not found")

// Store wraps the sql.DB holding all cached collections plus the pending
// action queue. Every operation is a single statement, so interleaved readers
// never observe a torn record.
type Store struct {
	db *sql.DB
}

// Open opens the fieldsync SQLite database under dataDir. The database is
// opened with WAL mode and a single writer, matching SQLite's write model.
func Open(dataDir string) (*Store, error) {
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return nil, apperr.Wrap(apperr.ErrStoreUnavailable, "failed to create data directory", err)
	}

	dbPath := filepath.Join(dataDir, "fieldsync.db")

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, apperr.Wrap(apperr.ErrStoreUnavailable, "failed to open database", err)
	}

	// SQLite supports one writer at a time
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if _, err := db.Exec("PRAGMA journal_mode=WAL;"); err != nil {
		db.Close()
		return nil, apperr.Wrap(apperr.ErrStoreUnavailable, "failed to enable WAL mode", err)
	}
	if _, err := db.Exec("PRAGMA busy_timeout=5000;"); err != nil {
		db.Close()
		return nil, apperr.Wrap(apperr.ErrStoreUnavailable, "failed to set busy timeout", err)
	}

	return &Store{db: db}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Get returns the record body for id in collection, or ErrNotFound.
func (s *Store) Get(collection, id string) ([]byte, error) {
	var body []byte
	err := s.db.QueryRow(
		"SELECT body FROM records WHERE collection = ? AND id = ?",
		collection, id,
	).Scan(&body)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, apperr.Wrap(apperr.ErrStore, fmt.Sprintf("get %s/%s", collection, id), err)
	}
	return body, nil
}

// Put upserts a record body under id in collection.
func (s *Store) Put(collection, id string, body []byte) error {
	_, err := s.db.Exec(`
	INSERT INTO records (collection, id, body, updated_at)
	VALUES (?, ?, ?, ?)
	ON CONFLICT (collection, id) DO UPDATE SET body = excluded.body, updated_at = excluded.updated_at
	`, collection, id, body, time.Now().Unix())
	if err != nil {
		return apperr.Wrap(apperr.ErrStore, fmt.Sprintf("put %s/%s", collection, id), err)
	}
	return nil
}

// GetAll returns every record body in collection. Order is not guaranteed;
// callers sort as needed.
func (s *Store) GetAll(collection string) ([][]byte, error) {
	rows, err := s.db.Query("SELECT body FROM records WHERE collection = ?", collection)
	if err != nil {
		return nil, apperr.Wrap(apperr.ErrStore, fmt.Sprintf("list %s", collection), err)
	}
	defer rows.Close()

	var bodies [][]byte
	for rows.Next() {
		var body []byte
		if err := rows.Scan(&body); err != nil {
			return nil, apperr.Wrap(apperr.ErrStore, fmt.Sprintf("scan %s", collection), err)
		}
		bodies = append(bodies, body)
	}
	if err := rows.Err(); err != nil {
		return nil, apperr.Wrap(apperr.ErrStore, fmt.Sprintf("iterate %s", collection), err)
	}
	return bodies, nil
}

// Delete removes a record. Deleting an absent record is not an error.
func (s *Store) Delete(collection, id string) error {
	_, err := s.db.Exec("DELETE FROM records WHERE collection = ? AND id = ?", collection, id)
	if err != nil {
		return apperr.Wrap(apperr.ErrStore, fmt.Sprintf("delete %s/%s", collection, id), err)
	}
	return nil
}

// Clear wipes an entire collection. Used for cache invalidation and the
// resync-from-network recovery path.
func (s *Store) Clear(collection string) error {
	_, err := s.db.Exec("DELETE FROM records WHERE collection = ?", collection)
	if err != nil {
		return apperr.Wrap(apperr.ErrStore, fmt.Sprintf("clear %s", collection), err)
	}
	return nil
}

// Count returns the number of records in a collection.
func (s *Store) Count(collection string) (int, error) {
	var n int
	err := s.db.QueryRow("SELECT COUNT(*) FROM records WHERE collection = ?", collection).Scan(&n)
	if err != nil {
		return 0, apperr.Wrap(apperr.ErrStore, fmt.Sprintf("count %s", collection), err)
	}
	return n, nil
}
