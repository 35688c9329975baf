package persistence

import (
	"context"
	"errors"
	"time"

	"github.com/brunoruyu/lic-detect/internal/domain"
)

// ErrDuplicateSignal is returned when an active signal already exists for the
// same instrument and auction date.
var ErrDuplicateSignal = errors.New("active signal already exists for instrument and auction date")

// ErrNotFound is returned when a lookup matches no row.
var ErrNotFound = errors.New("record not found")

// EventsRepo persists the scraped auction calendar. Events are unique per
// calendar day; a newer scrape for the same date replaces the earlier row.
type EventsRepo interface {
	// Upsert inserts or replaces the event for its date.
	Upsert(ctx context.Context, event domain.AuctionEvent) error

	// ListUpcoming returns events with a date on or after the given day,
	// ordered soonest first.
	ListUpcoming(ctx context.Context, from time.Time) ([]domain.AuctionEvent, error)

	// SetRollover records the published rollover percentage for a date.
	SetRollover(ctx context.Context, date time.Time, rolloverPct float64) error
}

// SnapshotsRepo is the append-only store of market observations.
type SnapshotsRepo interface {
	// Insert appends one snapshot.
	Insert(ctx context.Context, snap domain.MarketSnapshot) error

	// Window returns the most recent limit snapshots for an instrument,
	// ordered oldest first so the caller can feed them straight into the
	// metrics aggregator.
	Window(ctx context.Context, instrument string, limit int) ([]domain.MarketSnapshot, error)
}

// SignalsRepo persists emitted signals. At most one active signal exists per
// (instrument, auction date) pair.
type SignalsRepo interface {
	// Insert stores a new signal. A conflicting active signal yields
	// ErrDuplicateSignal.
	Insert(ctx context.Context, sig domain.Signal) error

	// GetByID returns one signal or ErrNotFound.
	GetByID(ctx context.Context, id string) (*domain.Signal, error)

	// Supersede marks the active signal for (instrument, auction date) as
	// replaced so a fresh evaluation can insert a successor.
	Supersede(ctx context.Context, instrument string, auctionDate time.Time) error

	// ListActive returns signals not yet superseded, newest first.
	ListActive(ctx context.Context, limit int) ([]domain.Signal, error)
}

// TradesRepo persists the trade ledger.
type TradesRepo interface {
	// Insert stores a freshly opened trade.
	Insert(ctx context.Context, trade domain.Trade) error

	// ListOpen returns all trades still in the OPEN state.
	ListOpen(ctx context.Context) ([]domain.Trade, error)

	// CountOpen returns the number of OPEN trades.
	CountOpen(ctx context.Context) (int, error)

	// Close records a terminal transition. The update only touches rows
	// still OPEN; a terminal row yields domain.ErrTradeFinal.
	Close(ctx context.Context, trade domain.Trade) error
}

// OrderIntentsRepo stores order intents handed to the external execution
// layer in live mode.
type OrderIntentsRepo interface {
	Insert(ctx context.Context, intent domain.OrderIntent) error
	ListBySignal(ctx context.Context, signalID string) ([]domain.OrderIntent, error)
}

// Repository aggregates the per-entity repos behind one handle.
type Repository struct {
	Events  EventsRepo
	Snaps   SnapshotsRepo
	Signals SignalsRepo
	Trades  TradesRepo
	Intents OrderIntentsRepo
}

// Pinger lets the health endpoint test store connectivity.
type Pinger interface {
	Ping(ctx context.Context) error
}
