// Package projcache caches the CVAT project list in a local SQLite
// database so project names resolve to ids without a round trip to the
// server on every run.
package projcache

import (
	"database/sql"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/pkg/errors"
	_ "modernc.org/sqlite"

	"github.com/BuckanovNikita/cveta2/pkg/types"
)

const schemaSQL = `CREATE TABLE IF NOT EXISTS projects (
    project_id INTEGER PRIMARY KEY,
    name TEXT NOT NULL,
    fetched_at TEXT NOT NULL
);`

// Store is the projects cache. Safe for concurrent use.
type Store struct {
	mu sync.Mutex
	db *sql.DB
}

// Open opens (creating if needed) the cache database at path.
func Open(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, errors.Wrap(err, "opening projects cache")
	}
	if _, err := db.Exec(schemaSQL); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "initializing projects cache schema")
	}
	return &Store{db: db}, nil
}

// Close releases the database handle. Idempotent.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}

// Replace overwrites the cached project list with the given one.
func (s *Store) Replace(projects []types.ProjectInfo) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM projects`); err != nil {
		return err
	}
	now := time.Now().UTC().Format(time.RFC3339)
	stmt, err := tx.Prepare(`INSERT INTO projects (project_id, name, fetched_at) VALUES (?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()
	for _, p := range projects {
		if _, err := stmt.Exec(p.ID, p.Name, now); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// Projects returns all cached projects ordered by id.
func (s *Store) Projects() ([]types.ProjectInfo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows, err := s.db.Query(`SELECT project_id, name FROM projects ORDER BY project_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var projects []types.ProjectInfo
	for rows.Next() {
		var p types.ProjectInfo
		if err := rows.Scan(&p.ID, &p.Name); err != nil {
			return nil, err
		}
		projects = append(projects, p)
	}
	return projects, rows.Err()
}

// FetchedAt returns when the cache was last replaced, or the zero time
// for an empty cache.
func (s *Store) FetchedAt() (time.Time, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var raw sql.NullString
	err := s.db.QueryRow(`SELECT MAX(fetched_at) FROM projects`).Scan(&raw)
	if err != nil {
		return time.Time{}, err
	}
	if !raw.Valid || raw.String == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(time.RFC3339, raw.String)
	if err != nil {
		return time.Time{}, errors.Wrap(err, "parsing cache timestamp")
	}
	return t, nil
}
