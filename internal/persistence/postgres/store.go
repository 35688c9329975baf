package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"

	"github.com/brunoruyu/lic-detect/internal/persistence"
)

// Store owns the database handle and the per-entity repositories.
type Store struct {
	db *sqlx.DB
}

// Connect opens a pooled connection and verifies it with a ping.
func Connect(ctx context.Context, dsn string) (*Store, error) {
	db, err := sqlx.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open postgres: %w", err)
	}

	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(30 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping postgres: %w", err)
	}

	return &Store{db: db}, nil
}

// Repository wires the sqlx handle into the repo interfaces.
func (s *Store) Repository(timeout time.Duration) persistence.Repository {
	return persistence.Repository{
		Events:  NewEventsRepo(s.db, timeout),
		Snaps:   NewSnapshotsRepo(s.db, timeout),
		Signals: NewSignalsRepo(s.db, timeout),
		Trades:  NewTradesRepo(s.db, timeout),
		Intents: NewOrderIntentsRepo(s.db, timeout),
	}
}

// Ping tests connectivity for the health endpoint.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close releases the connection pool.
func (s *Store) Close() error {
	return s.db.Close()
}
