package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/brunoruyu/lic-detect/internal/domain"
	"github.com/brunoruyu/lic-detect/internal/persistence"
)

// eventsRepo implements EventsRepo for PostgreSQL.
type eventsRepo struct {
	db      *sqlx.DB
	timeout time.Duration
}

// NewEventsRepo creates a new PostgreSQL auction events repository.
func NewEventsRepo(db *sqlx.DB, timeout time.Duration) persistence.EventsRepo {
	return &eventsRepo{db: db, timeout: timeout}
}

// Upsert inserts or replaces the event for its calendar date. A re-scrape of
// the same date overwrites instruments and source ref but never clears an
// already-published rollover.
func (r *eventsRepo) Upsert(ctx context.Context, event domain.AuctionEvent) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	query := `
		INSERT INTO auction_events (event_date, instruments, source_ref)
		VALUES ($1, $2, $3)
		ON CONFLICT (event_date) DO UPDATE
		SET instruments = EXCLUDED.instruments,
		    source_ref = EXCLUDED.source_ref`

	_, err := r.db.ExecContext(ctx, query,
		event.Date, pq.Array(event.Instruments), event.SourceRef)
	if err != nil {
		return fmt.Errorf("failed to upsert auction event: %w", err)
	}
	return nil
}

// ListUpcoming returns events on or after the given day, soonest first.
func (r *eventsRepo) ListUpcoming(ctx context.Context, from time.Time) ([]domain.AuctionEvent, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	query := `
		SELECT event_date, instruments, source_ref, rollover_pct
		FROM auction_events
		WHERE event_date >= $1
		ORDER BY event_date ASC`

	rows, err := r.db.QueryxContext(ctx, query, from)
	if err != nil {
		return nil, fmt.Errorf("failed to query upcoming events: %w", err)
	}
	defer rows.Close()

	var events []domain.AuctionEvent
	for rows.Next() {
		var e domain.AuctionEvent
		var instruments pq.StringArray
		if err := rows.Scan(&e.Date, &instruments, &e.SourceRef, &e.RolloverPct); err != nil {
			return nil, fmt.Errorf("failed to scan auction event: %w", err)
		}
		e.Instruments = instruments
		events = append(events, e)
	}
	return events, rows.Err()
}

// SetRollover records the published rollover percentage for a date.
func (r *eventsRepo) SetRollover(ctx context.Context, date time.Time, rolloverPct float64) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	res, err := r.db.ExecContext(ctx,
		`UPDATE auction_events SET rollover_pct = $2 WHERE event_date = $1`,
		date, rolloverPct)
	if err != nil {
		return fmt.Errorf("failed to set rollover: %w", err)
	}
	rowsAffected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return persistence.ErrNotFound
	}
	return nil
}
