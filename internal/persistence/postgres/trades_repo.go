package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/brunoruyu/lic-detect/internal/domain"
	"github.com/brunoruyu/lic-detect/internal/persistence"
)

// tradesRepo implements TradesRepo for PostgreSQL.
type tradesRepo struct {
	db      *sqlx.DB
	timeout time.Duration
}

// NewTradesRepo creates a new PostgreSQL trades repository.
func NewTradesRepo(db *sqlx.DB, timeout time.Duration) persistence.TradesRepo {
	return &tradesRepo{db: db, timeout: timeout}
}

// Insert stores a freshly opened trade.
func (r *tradesRepo) Insert(ctx context.Context, trade domain.Trade) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	query := `
		INSERT INTO trades (id, signal_id, instrument, status, entry_price, size, opened_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`

	_, err := r.db.ExecContext(ctx, query,
		trade.ID, trade.SignalID, trade.Instrument, trade.Status,
		trade.EntryPrice, trade.Size, trade.OpenedAt)
	if err != nil {
		return fmt.Errorf("failed to insert trade: %w", err)
	}
	return nil
}

// ListOpen returns all OPEN trades, oldest first.
func (r *tradesRepo) ListOpen(ctx context.Context) ([]domain.Trade, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	query := `
		SELECT id, signal_id, instrument, status, entry_price, exit_price,
			pnl, size, COALESCE(exit_reason, '') AS exit_reason, opened_at, closed_at
		FROM trades
		WHERE status = 'OPEN'
		ORDER BY opened_at ASC`

	var trades []domain.Trade
	if err := r.db.SelectContext(ctx, &trades, query); err != nil {
		return nil, fmt.Errorf("failed to query open trades: %w", err)
	}
	return trades, nil
}

// CountOpen returns the number of OPEN trades.
func (r *tradesRepo) CountOpen(ctx context.Context) (int, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	var count int
	err := r.db.GetContext(ctx, &count, `SELECT COUNT(*) FROM trades WHERE status = 'OPEN'`)
	if err != nil {
		return 0, fmt.Errorf("failed to count open trades: %w", err)
	}
	return count, nil
}

// Close records a terminal transition. The guard on status = 'OPEN' makes the
// update a compare-and-swap: a row already terminal matches nothing and the
// caller gets ErrTradeFinal instead of a silent double close.
func (r *tradesRepo) Close(ctx context.Context, trade domain.Trade) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	query := `
		UPDATE trades
		SET status = $2, exit_price = $3, pnl = $4, exit_reason = $5, closed_at = $6
		WHERE id = $1 AND status = 'OPEN'`

	res, err := r.db.ExecContext(ctx, query,
		trade.ID, trade.Status, trade.ExitPrice, trade.PnL, trade.ExitReason, trade.ClosedAt)
	if err != nil {
		return fmt.Errorf("failed to close trade: %w", err)
	}
	rowsAffected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return domain.ErrTradeFinal
	}
	return nil
}
