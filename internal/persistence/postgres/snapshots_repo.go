package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/brunoruyu/lic-detect/internal/domain"
	"github.com/brunoruyu/lic-detect/internal/persistence"
)

// snapshotsRepo implements SnapshotsRepo for PostgreSQL.
type snapshotsRepo struct {
	db      *sqlx.DB
	timeout time.Duration
}

// NewSnapshotsRepo creates a new PostgreSQL market snapshots repository.
func NewSnapshotsRepo(db *sqlx.DB, timeout time.Duration) persistence.SnapshotsRepo {
	return &snapshotsRepo{db: db, timeout: timeout}
}

// Insert appends one observation. The table is append-only; there is no
// update path.
func (r *snapshotsRepo) Insert(ctx context.Context, snap domain.MarketSnapshot) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	query := `
		INSERT INTO market_snapshots (instrument, ts, price, bid, ask, volume)
		VALUES ($1, $2, $3, $4, $5, $6)`

	_, err := r.db.ExecContext(ctx, query,
		snap.Instrument, snap.Timestamp, snap.Price, snap.Bid, snap.Ask, snap.Volume)
	if err != nil {
		return fmt.Errorf("failed to insert snapshot: %w", err)
	}
	return nil
}

// Window returns the most recent limit snapshots, reordered oldest first for
// the metrics aggregator.
func (r *snapshotsRepo) Window(ctx context.Context, instrument string, limit int) ([]domain.MarketSnapshot, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	query := `
		SELECT instrument, ts, price, bid, ask, volume
		FROM (
			SELECT instrument, ts, price, bid, ask, volume
			FROM market_snapshots
			WHERE instrument = $1
			ORDER BY ts DESC
			LIMIT $2
		) recent
		ORDER BY ts ASC`

	var snaps []domain.MarketSnapshot
	if err := r.db.SelectContext(ctx, &snaps, query, instrument, limit); err != nil {
		return nil, fmt.Errorf("failed to query snapshot window: %w", err)
	}
	return snaps, nil
}
