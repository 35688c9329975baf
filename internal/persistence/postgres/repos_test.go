package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/brunoruyu/lic-detect/internal/domain"
	"github.com/brunoruyu/lic-detect/internal/persistence"
)

func newMockDB(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return sqlx.NewDb(db, "sqlmock"), mock
}

func TestSignalsInsertMapsUniqueViolation(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewSignalsRepo(db, time.Second)

	mock.ExpectExec("INSERT INTO signals").
		WillReturnError(&pq.Error{Code: "23505"})

	err := repo.Insert(context.Background(), domain.Signal{
		ID:          "sig-1",
		Instrument:  "S17A6",
		Direction:   domain.DirectionShort,
		EntryPrice:  102450,
		AuctionDate: time.Date(2026, 4, 17, 0, 0, 0, 0, time.UTC),
	})
	assert.ErrorIs(t, err, persistence.ErrDuplicateSignal)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSignalsInsertOK(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewSignalsRepo(db, time.Second)

	mock.ExpectExec("INSERT INTO signals").
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := repo.Insert(context.Background(), domain.Signal{
		ID:         "sig-1",
		Instrument: "S17A6",
		Direction:  domain.DirectionShort,
		Reasons:    []string{"volume dropped 32.4% vs rolling baseline"},
	})
	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSignalsGetByIDNotFound(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewSignalsRepo(db, time.Second)

	mock.ExpectQuery("SELECT (.+) FROM signals").
		WithArgs("missing").
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	_, err := repo.GetByID(context.Background(), "missing")
	assert.ErrorIs(t, err, persistence.ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTradesCloseGuardsTerminalRows(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewTradesRepo(db, time.Second)

	// Zero rows matched: the row is no longer OPEN.
	mock.ExpectExec("UPDATE trades").
		WillReturnResult(sqlmock.NewResult(0, 0))

	exit := 99888.75
	pnl := 153.71
	now := time.Now()
	err := repo.Close(context.Background(), domain.Trade{
		ID:         "trade-1",
		Status:     domain.TradeClosed,
		ExitPrice:  &exit,
		PnL:        &pnl,
		ExitReason: domain.ExitTarget,
		ClosedAt:   &now,
	})
	assert.ErrorIs(t, err, domain.ErrTradeFinal)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTradesCloseOK(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewTradesRepo(db, time.Second)

	mock.ExpectExec("UPDATE trades").
		WillReturnResult(sqlmock.NewResult(0, 1))

	exit := 104500.0
	pnl := -120.5
	now := time.Now()
	err := repo.Close(context.Background(), domain.Trade{
		ID:         "trade-1",
		Status:     domain.TradeStopped,
		ExitPrice:  &exit,
		PnL:        &pnl,
		ExitReason: domain.ExitStopLoss,
		ClosedAt:   &now,
	})
	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTradesListOpen(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewTradesRepo(db, time.Second)

	opened := time.Date(2026, 4, 15, 14, 30, 0, 0, time.UTC)
	rows := sqlmock.NewRows([]string{
		"id", "signal_id", "instrument", "status", "entry_price",
		"exit_price", "pnl", "size", "exit_reason", "opened_at", "closed_at",
	}).AddRow("trade-1", "sig-1", "S17A6", "OPEN", 102450.0, nil, nil, 0.0599, "", opened, nil)

	mock.ExpectQuery("SELECT (.+) FROM trades").
		WillReturnRows(rows)

	trades, err := repo.ListOpen(context.Background())
	require.NoError(t, err)
	require.Len(t, trades, 1)
	assert.Equal(t, "S17A6", trades[0].Instrument)
	assert.Equal(t, domain.TradeOpen, trades[0].Status)
	assert.Nil(t, trades[0].ExitPrice)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestEventsUpsert(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewEventsRepo(db, time.Second)

	mock.ExpectExec("INSERT INTO auction_events").
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := repo.Upsert(context.Background(), domain.AuctionEvent{
		Date:        time.Date(2026, 4, 17, 0, 0, 0, 0, time.UTC),
		Instruments: []string{"S17A6", "TZX26"},
		SourceRef:   "https://example.test/cronograma",
	})
	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestEventsSetRolloverUnknownDate(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewEventsRepo(db, time.Second)

	mock.ExpectExec("UPDATE auction_events").
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.SetRollover(context.Background(),
		time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC), 0.97)
	assert.ErrorIs(t, err, persistence.ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSnapshotsWindowOrderedOldestFirst(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewSnapshotsRepo(db, time.Second)

	t0 := time.Date(2026, 4, 15, 11, 0, 0, 0, time.UTC)
	rows := sqlmock.NewRows([]string{"instrument", "ts", "price", "bid", "ask", "volume"}).
		AddRow("S17A6", t0, 102400.0, 102350.0, 102450.0, 1200.0).
		AddRow("S17A6", t0.Add(time.Hour), 102450.0, 102400.0, 102500.0, 800.0)

	mock.ExpectQuery("SELECT (.+) FROM market_snapshots").
		WithArgs("S17A6", 30).
		WillReturnRows(rows)

	snaps, err := repo.Window(context.Background(), "S17A6", 30)
	require.NoError(t, err)
	require.Len(t, snaps, 2)
	assert.True(t, snaps[0].Timestamp.Before(snaps[1].Timestamp))
	assert.NoError(t, mock.ExpectationsWereMet())
}
