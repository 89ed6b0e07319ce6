// Package store is the PostgreSQL persistence layer: user profiles, the
// change-event outbox, inbound email events, review follow-up records, and
// the keyset-paginated scans the sweeps run on.
package store

import (
	"context"
	"database/sql"
	"time"
)

// Store wraps the database handle. All queries go through contexts with the
// caller's deadline; the store itself imposes none.
type Store struct {
	db *sql.DB
}

// New creates a Store on an open database handle.
func New(db *sql.DB) *Store {
	return &Store{db: db}
}

// DB exposes the underlying handle for components that own their SQL
// (analytics sink, notifier, advisory locks).
func (s *Store) DB() *sql.DB {
	return s.db
}

// Ping verifies connectivity.
func (s *Store) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return s.db.PingContext(ctx)
}
