package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/brunoruyu/lic-detect/internal/domain"
	"github.com/brunoruyu/lic-detect/internal/persistence"
)

// orderIntentsRepo implements OrderIntentsRepo for PostgreSQL.
type orderIntentsRepo struct {
	db      *sqlx.DB
	timeout time.Duration
}

// NewOrderIntentsRepo creates a new PostgreSQL order intents repository.
func NewOrderIntentsRepo(db *sqlx.DB, timeout time.Duration) persistence.OrderIntentsRepo {
	return &orderIntentsRepo{db: db, timeout: timeout}
}

func (r *orderIntentsRepo) Insert(ctx context.Context, intent domain.OrderIntent) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	query := `
		INSERT INTO order_intents (id, signal_id, instrument, side, price, size, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`

	_, err := r.db.ExecContext(ctx, query,
		intent.ID, intent.SignalID, intent.Instrument, intent.Side,
		intent.Price, intent.Size, intent.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert order intent: %w", err)
	}
	return nil
}

func (r *orderIntentsRepo) ListBySignal(ctx context.Context, signalID string) ([]domain.OrderIntent, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	query := `
		SELECT id, signal_id, instrument, side, price, size, created_at
		FROM order_intents
		WHERE signal_id = $1
		ORDER BY created_at ASC`

	var intents []domain.OrderIntent
	if err := r.db.SelectContext(ctx, &intents, query, signalID); err != nil {
		return nil, fmt.Errorf("failed to query order intents: %w", err)
	}
	return intents, nil
}
