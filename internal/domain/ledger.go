package domain

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// ErrTradeFinal is returned when a mutation targets a trade that already
// reached CLOSED or STOPPED.
var ErrTradeFinal = errors.New("trade is in a final state")

// LedgerParams fix sizing and rollover behavior for the ledger's lifetime.
type LedgerParams struct {
	InitialCapital         float64
	PositionSizePct        float64
	RolloverCloseThreshold float64
}

// PositionLedger applies the trade lifecycle rules. It holds no storage of its
// own; callers load open trades from the repo each cycle and persist whatever
// the ledger hands back.
type PositionLedger struct {
	params LedgerParams
}

// NewPositionLedger creates a ledger with fixed sizing parameters.
func NewPositionLedger(params LedgerParams) *PositionLedger {
	return &PositionLedger{params: params}
}

// CapitalFor scales the configured position fraction by signal confidence, so
// a barely-qualifying signal commits less capital than a saturated one.
func (l *PositionLedger) CapitalFor(confidence float64) float64 {
	return l.params.PositionSizePct * confidence * l.params.InitialCapital
}

// Open creates an OPEN trade from an accepted signal. Size is the nominal
// quantity bought back at exit, so pnl stays (entry − exit) × size.
func (l *PositionLedger) Open(sig *Signal, now time.Time) Trade {
	return Trade{
		ID:         uuid.NewString(),
		SignalID:   sig.ID,
		Instrument: sig.Instrument,
		Status:     TradeOpen,
		EntryPrice: sig.EntryPrice,
		Size:       l.CapitalFor(sig.Confidence) / sig.EntryPrice,
		OpenedAt:   now,
	}
}

// MarkToMarket checks an open trade against the current price and the signal's
// exit levels. It returns the updated trade and whether a transition happened.
// Stop takes precedence when a gap crosses both levels in one observation.
func (l *PositionLedger) MarkToMarket(trade Trade, sig *Signal, price float64, now time.Time) (Trade, bool, error) {
	if trade.IsFinal() {
		return trade, false, ErrTradeFinal
	}

	switch {
	case price >= sig.StopPrice:
		return l.settle(trade, TradeStopped, ExitStopLoss, price, now), true, nil
	case price <= sig.TargetPrice:
		return l.settle(trade, TradeClosed, ExitTarget, price, now), true, nil
	}
	return trade, false, nil
}

// ApplyRollover closes an open trade at the current market price when the
// published auction rollover meets the configured threshold. A strong rollover
// removes the supply shock the short position was betting on.
func (l *PositionLedger) ApplyRollover(trade Trade, rolloverPct, price float64, now time.Time) (Trade, bool, error) {
	if trade.IsFinal() {
		return trade, false, ErrTradeFinal
	}
	if rolloverPct < l.params.RolloverCloseThreshold {
		return trade, false, nil
	}
	return l.settle(trade, TradeClosed, ExitRollover, price, now), true, nil
}

func (l *PositionLedger) settle(trade Trade, status TradeStatus, reason ExitReason, price float64, now time.Time) Trade {
	pnl := (trade.EntryPrice - price) * trade.Size
	trade.Status = status
	trade.ExitReason = reason
	trade.ExitPrice = &price
	trade.PnL = &pnl
	trade.ClosedAt = &now
	return trade
}
