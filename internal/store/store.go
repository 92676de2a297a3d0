// Package store is the embedded catalog store: events, playables, images,
// lane plans, preferences, Amazon channel map and provider auth blobs, all in
// one sqlite file. The refresh orchestrator is the only writer; HTTP readers
// open their own handles.
package store

import (
	"context"
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"
)

// Store wraps the sqlite handle.
type Store struct {
	db *sql.DB
}

// Open opens (creating if needed) the catalog database and applies pending
// migrations. Any schema drift the migrations cannot resolve is fatal.
func Open(ctx context.Context, path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open catalog db: %w", err)
	}
	// Single-writer discipline; readers never block writers for long.
	if _, err := db.ExecContext(ctx, `PRAGMA journal_mode=WAL; PRAGMA busy_timeout=5000; PRAGMA foreign_keys=ON;`); err != nil {
		db.Close()
		return nil, fmt.Errorf("set pragmas: %w", err)
	}
	s := &Store{db: db}
	if err := s.Migrate(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// Close closes the underlying handle.
func (s *Store) Close() error { return s.db.Close() }

// DB exposes the raw handle for tests.
func (s *Store) DB() *sql.DB { return s.db }

// TableColumns returns the column names of a table via PRAGMA introspection.
// Exporters that tolerate optional columns use this to degrade gracefully on
// older databases.
func (s *Store) TableColumns(ctx context.Context, table string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, fmt.Sprintf("PRAGMA table_info(%q)", table))
	if err != nil {
		return nil, fmt.Errorf("table_info %s: %w", table, err)
	}
	defer rows.Close()
	var cols []string
	for rows.Next() {
		var cid int
		var name, colType string
		var notNull int
		var dflt sql.NullString
		var pk int
		if err := rows.Scan(&cid, &name, &colType, &notNull, &dflt, &pk); err != nil {
			return nil, err
		}
		cols = append(cols, name)
	}
	return cols, rows.Err()
}

// HasColumn reports whether table has a column named col.
func (s *Store) HasColumn(ctx context.Context, table, col string) bool {
	cols, err := s.TableColumns(ctx, table)
	if err != nil {
		return false
	}
	for _, c := range cols {
		if c == col {
			return true
		}
	}
	return false
}
