package domain

import (
	"time"
)

// Direction is the side of a trading signal.
type Direction string

const (
	DirectionShort Direction = "SHORT"
	DirectionLong  Direction = "LONG"
)

// TradeStatus is the lifecycle state of a trade. CLOSED and STOPPED are final.
type TradeStatus string

const (
	TradeOpen    TradeStatus = "OPEN"
	TradeClosed  TradeStatus = "CLOSED"
	TradeStopped TradeStatus = "STOPPED"
)

// ExitReason records why an open trade was terminated.
type ExitReason string

const (
	ExitTarget   ExitReason = "TARGET"
	ExitStopLoss ExitReason = "STOP_LOSS"
	ExitRollover ExitReason = "ROLLOVER"
)

// AuctionEvent is a scheduled Treasury auction. Events are unique per calendar
// day; a newer scrape for the same date replaces the instrument set.
type AuctionEvent struct {
	Date        time.Time `json:"date" db:"event_date"`
	Instruments []string  `json:"instruments" db:"-"`
	SourceRef   string    `json:"source_ref" db:"source_ref"`
	// RolloverPct is nil until auction results are published.
	RolloverPct *float64 `json:"rollover_pct,omitempty" db:"rollover_pct"`
}

// DaysUntil returns whole calendar days from now to the auction date.
func (e AuctionEvent) DaysUntil(now time.Time) int {
	return calendarDays(now, e.Date)
}

func calendarDays(from, to time.Time) int {
	day := func(t time.Time) time.Time {
		y, m, d := t.UTC().Date()
		return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
	}
	return int(day(to).Sub(day(from)).Hours() / 24)
}

// MarketSnapshot is one observed quote for an instrument. Append-only.
type MarketSnapshot struct {
	Instrument string    `json:"instrument" db:"instrument"`
	Timestamp  time.Time `json:"ts" db:"ts"`
	Price      float64   `json:"price" db:"price"`
	Bid        float64   `json:"bid" db:"bid"`
	Ask        float64   `json:"ask" db:"ask"`
	Volume     float64   `json:"volume" db:"volume"`
}

// SpreadBps returns the bid-ask spread in basis points of mid price, or 0 when
// the book is one-sided.
func (s MarketSnapshot) SpreadBps() float64 {
	if s.Bid <= 0 || s.Ask <= 0 {
		return 0
	}
	mid := (s.Bid + s.Ask) / 2
	return (s.Ask - s.Bid) / mid * 10000
}

// Trend classifies volume direction over the trailing window.
type Trend string

const (
	TrendIncreasing Trend = "increasing"
	TrendDecreasing Trend = "decreasing"
	TrendFlat       Trend = "flat"
)

// MetricsView is the rolling-statistics input to signal detection. It carries
// no references back to raw data; the detector never performs I/O.
type MetricsView struct {
	Instrument           string  `json:"instrument"`
	LastPrice            float64 `json:"last_price"`
	VolumeDropPct        float64 `json:"volume_drop_pct"`
	SpreadBps            float64 `json:"spread_bps"`
	SpreadPercentile     float64 `json:"spread_percentile"`
	SpreadIncreasePct    float64 `json:"spread_increase_pct"`
	MEPOfficialSpreadPct float64 `json:"mep_official_spread_pct"`
	Trend                Trend   `json:"trend"`
	Observations         int     `json:"observations"`
	InsufficientData     bool    `json:"insufficient_data"`
}

// Signal is a scored, actionable pre-auction trade signal. Immutable once
// created; a later cycle may supersede it with a fresh id.
type Signal struct {
	ID          string    `json:"id" db:"id"`
	Instrument  string    `json:"instrument" db:"instrument"`
	Direction   Direction `json:"direction" db:"direction"`
	EntryPrice  float64   `json:"entry_price" db:"entry_price"`
	TargetPrice float64   `json:"target_price" db:"target_price"`
	StopPrice   float64   `json:"stop_price" db:"stop_price"`
	Confidence  float64   `json:"confidence" db:"confidence"`
	Reasons     []string  `json:"reasons" db:"-"`
	AuctionDate time.Time `json:"auction_date" db:"auction_date"`
	CreatedAt   time.Time `json:"created_at" db:"created_at"`
}

// DaysToAuction returns whole calendar days from now to the signal's auction.
// Negative once the auction has passed.
func (s Signal) DaysToAuction(now time.Time) int {
	return calendarDays(now, s.AuctionDate)
}

// Trade is the ledger record derived from an accepted signal.
type Trade struct {
	ID         string      `json:"id" db:"id"`
	SignalID   string      `json:"signal_id" db:"signal_id"`
	Instrument string      `json:"instrument" db:"instrument"`
	Status     TradeStatus `json:"status" db:"status"`
	EntryPrice float64     `json:"entry_price" db:"entry_price"`
	ExitPrice  *float64    `json:"exit_price,omitempty" db:"exit_price"`
	PnL        *float64    `json:"pnl,omitempty" db:"pnl"`
	Size       float64     `json:"size" db:"size"`
	ExitReason ExitReason  `json:"exit_reason,omitempty" db:"exit_reason"`
	OpenedAt   time.Time   `json:"opened_at" db:"opened_at"`
	ClosedAt   *time.Time  `json:"closed_at,omitempty" db:"closed_at"`
}

// IsFinal reports whether the trade reached a terminal state.
func (t Trade) IsFinal() bool {
	return t.Status == TradeClosed || t.Status == TradeStopped
}

// OrderIntent is the record handed to the external execution layer in live
// mode. The engine never places orders itself.
type OrderIntent struct {
	ID         string    `json:"id" db:"id"`
	SignalID   string    `json:"signal_id" db:"signal_id"`
	Instrument string    `json:"instrument" db:"instrument"`
	Side       Direction `json:"side" db:"side"`
	Price      float64   `json:"price" db:"price"`
	Size       float64   `json:"size" db:"size"`
	CreatedAt  time.Time `json:"created_at" db:"created_at"`
}

// DollarQuote pairs the official and MEP exchange rates observed at one time.
type DollarQuote struct {
	Official  float64   `json:"official"`
	MEP       float64   `json:"mep"`
	Timestamp time.Time `json:"timestamp"`
}

// SpreadPct returns the MEP premium over the official rate.
func (d DollarQuote) SpreadPct() float64 {
	if d.Official <= 0 {
		return 0
	}
	return (d.MEP - d.Official) / d.Official
}
