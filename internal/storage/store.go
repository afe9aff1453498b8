// Package storage implements every persistence interface of the pipeline on
// Postgres through sqlx.
package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"
	// import db drivers
	_ "github.com/lib/pq"

	"github.com/sevigo/shot-warden/internal/core"
)

// Store is the Postgres implementation of the baseline, notify, jobs and
// queue stores.
type Store struct {
	db *sqlx.DB
}

// NewStore creates a new Store
func NewStore(db *sqlx.DB) *Store {
	return &Store{db: db}
}

// DB exposes the pool for components sharing the connection, such as the locker.
func (s *Store) DB() *sqlx.DB { return s.db }

// get loads one row into dest. A missing row wraps core.ErrNotFound.
func (s *Store) get(ctx context.Context, dest any, what string, id any, query string, args ...any) error {
	if err := s.db.GetContext(ctx, dest, query, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("%s %v: %w", what, id, core.ErrNotFound)
		}
		return fmt.Errorf("failed to load %s %v: %w", what, id, err)
	}
	return nil
}

// find is get for optional lookups: a missing row is nil without an error.
func find[T any](ctx context.Context, db *sqlx.DB, query string, args ...any) (*T, error) {
	var v T
	if err := db.GetContext(ctx, &v, query, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &v, nil
}

// columns renders a select list, optionally qualified with a table alias.
func columns(alias string, cols []string) string {
	if alias == "" {
		return strings.Join(cols, ", ")
	}
	out := make([]string, len(cols))
	for i, c := range cols {
		out[i] = alias + "." + c
	}
	return strings.Join(out, ", ")
}

func (s *Store) inTx(ctx context.Context, fn func(tx *sqlx.Tx) error) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}
