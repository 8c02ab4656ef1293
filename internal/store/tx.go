package store

import (
	"context"
	"database/sql"
	"fmt"
)

// Querier is satisfied by both *sql.DB and *Tx, letting query-bundle
// methods (e.g. in the objects/floats/relations files) run either
// standalone or inside an explicit transaction without duplicating SQL.
type Querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Tx wraps a *sql.Tx with the begin/commit/rollback contract of §4.1.
type Tx struct {
	tx *sql.Tx
}

// Begin starts an explicit transaction. Callers are responsible for
// exactly one of Commit or Rollback; a handler that writes multiple rows
// must enclose them in a single transaction (§4.1, §5).
func (s *Store) Begin(ctx context.Context) (*Tx, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	return &Tx{tx: tx}, nil
}

// Commit commits the transaction.
func (t *Tx) Commit() error {
	if err := t.tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// Rollback rolls back the transaction. Safe to call after a successful
// Commit (sql.Tx.Rollback returns sql.ErrTxDone, which is swallowed).
func (t *Tx) Rollback() error {
	if err := t.tx.Rollback(); err != nil && err != sql.ErrTxDone {
		return fmt.Errorf("failed to roll back transaction: %w", err)
	}
	return nil
}

// Querier exposes the transaction as a Querier for query-bundle reuse.
func (t *Tx) Querier() Querier { return t.tx }

// Execute runs a write statement outside of any explicit transaction.
// Proof queries (§4.1) must never call this; they are read-only by
// contract and use QueryAll/QueryOne instead.
func (s *Store) Execute(ctx context.Context, query string, args ...any) (sql.Result, error) {
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("execute failed: %w", err)
	}
	return res, nil
}

// QueryOne runs query and scans the single resulting row with scan.
// Returns sql.ErrNoRows if there is no matching row.
func (s *Store) QueryOne(ctx context.Context, scan func(*sql.Row) error, query string, args ...any) error {
	row := s.db.QueryRowContext(ctx, query, args...)
	return scan(row)
}

// QueryAll runs query and invokes visit once per result row. The
// underlying *sql.Rows is closed before QueryAll returns.
func (s *Store) QueryAll(ctx context.Context, visit func(*sql.Rows) error, query string, args ...any) error {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("query failed: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		if err := visit(rows); err != nil {
			return err
		}
	}
	return rows.Err()
}
