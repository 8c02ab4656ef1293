package store

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	"github.com/ternarybob/arbor"
	_ "modernc.org/sqlite"
)

// Store is the embedded transactional relational store (§4.1) holding
// SPEC-IR, the type registry tables, the build graph, and the output
// cache in a single file (`specir.db`, §6 "Persisted state layout").
//
// Only a single driver may hold an open Store against a given path at a
// time (§5 "Shared-resource policy"); concurrent opens against the same
// file are expected to fail with a SQLite lock error, which this type
// does not paper over.
type Store struct {
	db     *sql.DB
	logger arbor.ILogger
	path   string
}

// Open creates (or reuses) the SQLite database file at path, configures
// it for single-writer embedded use, and ensures the schema exists.
func Open(path string, logger arbor.ILogger) (*Store, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create store directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open store: %w", err)
	}

	// SQLite does not handle concurrent writers well; the pipeline is
	// single-threaded at the handler level (§5), so one connection is
	// both sufficient and correct.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	s := &Store{db: db, logger: logger, path: path}

	if err := s.configure(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to configure store: %w", err)
	}

	if err := s.ensureSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return s, nil
}

func (s *Store) configure() error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA foreign_keys = ON",
		"PRAGMA busy_timeout = 5000",
	}
	for _, p := range pragmas {
		if _, err := s.db.Exec(p); err != nil {
			return fmt.Errorf("failed to execute %s: %w", p, err)
		}
	}
	return nil
}

// ensureSchema creates the content, build-graph, and cache tables if
// absent, then unconditionally deletes every row of the type-definition
// tables so the next Type Registry load starts from a clean slate
// (§4.1: "type and content tables are dropped and recreated from source
// on startup, while build/cache tables persist across runs" — content
// tables are only dropped per-specification by the Initializer, not
// wholesale here; only the type tables are unconditionally rebuilt).
func (s *Store) ensureSchema() error {
	if _, err := s.db.Exec(schemaSQL); err != nil {
		return fmt.Errorf("failed to apply schema: %w", err)
	}

	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for _, table := range typeTables {
		if _, err := tx.Exec(fmt.Sprintf("DELETE FROM %s", table)); err != nil {
			return fmt.Errorf("failed to clear type table %s: %w", table, err)
		}
	}

	return tx.Commit()
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// DB returns the underlying *sql.DB for packages that need direct access
// to query bundles not yet wrapped by Store (e.g. the phase handlers' row
// updates).
func (s *Store) DB() *sql.DB {
	return s.db
}

// CleanCache drops all build-graph and output-cache rows, forcing every
// document to be treated as dirty on the next run
// (SPEC_FULL.md "speccompiler clean-cache").
func (s *Store) CleanCache() error {
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for _, table := range cacheTables {
		if _, err := tx.Exec(fmt.Sprintf("DELETE FROM %s", table)); err != nil {
			return fmt.Errorf("failed to clear cache table %s: %w", table, err)
		}
	}

	return tx.Commit()
}
