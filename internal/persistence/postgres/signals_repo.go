package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/brunoruyu/lic-detect/internal/domain"
	"github.com/brunoruyu/lic-detect/internal/persistence"
)

// signalsRepo implements SignalsRepo for PostgreSQL.
type signalsRepo struct {
	db      *sqlx.DB
	timeout time.Duration
}

// NewSignalsRepo creates a new PostgreSQL signals repository.
func NewSignalsRepo(db *sqlx.DB, timeout time.Duration) persistence.SignalsRepo {
	return &signalsRepo{db: db, timeout: timeout}
}

// Insert stores a new signal. The partial unique index on
// (instrument, auction_date) WHERE NOT superseded turns a second active
// signal into ErrDuplicateSignal.
func (r *signalsRepo) Insert(ctx context.Context, sig domain.Signal) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	query := `
		INSERT INTO signals (id, instrument, direction, entry_price, target_price,
			stop_price, confidence, reasons, auction_date, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`

	_, err := r.db.ExecContext(ctx, query,
		sig.ID, sig.Instrument, sig.Direction, sig.EntryPrice, sig.TargetPrice,
		sig.StopPrice, sig.Confidence, pq.Array(sig.Reasons), sig.AuctionDate, sig.CreatedAt)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23505" {
			return persistence.ErrDuplicateSignal
		}
		return fmt.Errorf("failed to insert signal: %w", err)
	}
	return nil
}

// GetByID returns one signal or ErrNotFound.
func (r *signalsRepo) GetByID(ctx context.Context, id string) (*domain.Signal, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	query := `
		SELECT id, instrument, direction, entry_price, target_price, stop_price,
			confidence, reasons, auction_date, created_at
		FROM signals
		WHERE id = $1`

	var sig domain.Signal
	var reasons pq.StringArray
	err := r.db.QueryRowxContext(ctx, query, id).Scan(
		&sig.ID, &sig.Instrument, &sig.Direction, &sig.EntryPrice, &sig.TargetPrice,
		&sig.StopPrice, &sig.Confidence, &reasons, &sig.AuctionDate, &sig.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, persistence.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get signal: %w", err)
	}
	sig.Reasons = reasons
	return &sig, nil
}

// Supersede retires the active signal for an instrument and auction date.
func (r *signalsRepo) Supersede(ctx context.Context, instrument string, auctionDate time.Time) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	_, err := r.db.ExecContext(ctx, `
		UPDATE signals SET superseded = TRUE
		WHERE instrument = $1 AND auction_date = $2 AND NOT superseded`,
		instrument, auctionDate)
	if err != nil {
		return fmt.Errorf("failed to supersede signal: %w", err)
	}
	return nil
}

// ListActive returns non-superseded signals, newest first.
func (r *signalsRepo) ListActive(ctx context.Context, limit int) ([]domain.Signal, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	query := `
		SELECT id, instrument, direction, entry_price, target_price, stop_price,
			confidence, reasons, auction_date, created_at
		FROM signals
		WHERE NOT superseded
		ORDER BY created_at DESC
		LIMIT $1`

	rows, err := r.db.QueryxContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query active signals: %w", err)
	}
	defer rows.Close()

	var signals []domain.Signal
	for rows.Next() {
		var sig domain.Signal
		var reasons pq.StringArray
		if err := rows.Scan(&sig.ID, &sig.Instrument, &sig.Direction, &sig.EntryPrice,
			&sig.TargetPrice, &sig.StopPrice, &sig.Confidence, &reasons,
			&sig.AuctionDate, &sig.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan signal: %w", err)
		}
		sig.Reasons = reasons
		signals = append(signals, sig)
	}
	return signals, rows.Err()
}
