package application

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/brunoruyu/lic-detect/internal/config"
	"github.com/brunoruyu/lic-detect/internal/domain"
	"github.com/brunoruyu/lic-detect/internal/persistence"
)

// Mode selects whether accepted signals stay on paper or also produce order
// intents for the external execution layer.
type Mode string

const (
	ModePaper Mode = "paper"
	ModeLive  Mode = "live"
)

// CalendarSource feeds scheduled auctions and published results.
type CalendarSource interface {
	FetchEvents(ctx context.Context) ([]domain.AuctionEvent, error)
}

// QuoteSource feeds per-instrument market snapshots.
type QuoteSource interface {
	Snapshot(ctx context.Context, instrument string) (domain.MarketSnapshot, error)
}

// DollarSource feeds the official/MEP pair.
type DollarSource interface {
	Quote(ctx context.Context) (domain.DollarQuote, error)
}

// WindowCache optionally accelerates snapshot-window reads.
type WindowCache interface {
	Window(ctx context.Context, instrument string, limit int, load func(ctx context.Context) ([]domain.MarketSnapshot, error)) ([]domain.MarketSnapshot, error)
	Invalidate(ctx context.Context, instrument string)
}

// Orchestrator runs one evaluation cycle end to end. It is single-threaded:
// the scheduler guarantees cycles never overlap.
type Orchestrator struct {
	cfg        *config.Config
	repos      persistence.Repository
	calendar   CalendarSource
	quotes     QuoteSource
	dollar     DollarSource
	cache      WindowCache
	aggregator *domain.MetricsAggregator
	detector   *domain.SignalDetector
	ledger     *domain.PositionLedger
	dispatcher *Dispatcher
	metrics    *Metrics
	mode       Mode
	log        zerolog.Logger
	now        func() time.Time
}

// NewOrchestrator wires the cycle dependencies. cache may be nil.
func NewOrchestrator(
	cfg *config.Config,
	repos persistence.Repository,
	calendar CalendarSource,
	quotes QuoteSource,
	dollar DollarSource,
	cache WindowCache,
	dispatcher *Dispatcher,
	metrics *Metrics,
	mode Mode,
	log zerolog.Logger,
) *Orchestrator {
	d := cfg.Detection
	return &Orchestrator{
		cfg:        cfg,
		repos:      repos,
		calendar:   calendar,
		quotes:     quotes,
		dollar:     dollar,
		cache:      cache,
		aggregator: domain.NewMetricsAggregator(d.VolumeWindow, d.MinObservations),
		detector: domain.NewSignalDetector(domain.DetectorParams{
			PreAuctionWindowDays:      d.PreAuctionWindowDays,
			VolumeDropThreshold:       d.VolumeDropThreshold,
			SpreadIncreaseThreshold:   d.SpreadIncreaseThreshold,
			SpreadPercentileThreshold: d.SpreadPercentileThreshold,
			MEPSpreadThreshold:        d.MEPSpreadThreshold,
			MinConfidenceScore:        d.MinConfidenceScore,
			VolumeSaturation:          d.VolumeSaturation,
			SpreadSaturationPts:       d.SpreadSaturationPts,
			MEPSaturation:             d.MEPSaturation,
			VolumeWeight:              d.VolumeWeight,
			SpreadWeight:              d.SpreadWeight,
			MEPWeight:                 d.MEPWeight,
			TemporalWeight:            d.TemporalWeight,
			StopLossPct:               cfg.Trading.StopLossPct,
			TakeProfitPct:             cfg.Trading.TakeProfitPct,
		}),
		ledger: domain.NewPositionLedger(domain.LedgerParams{
			InitialCapital:         cfg.Trading.InitialCapital,
			PositionSizePct:        cfg.Trading.PositionSizePct,
			RolloverCloseThreshold: cfg.Trading.RolloverCloseThreshold,
		}),
		dispatcher: dispatcher,
		metrics:    metrics,
		mode:       mode,
		log:        log.With().Str("component", "orchestrator").Logger(),
		now:        time.Now,
	}
}

// RunCycle executes one evaluation pass: refresh calendar, poll market data
// for in-window instruments, detect and persist signals, then re-evaluate
// open trades. Persistence writes run under a cancel-shielded context so an
// external stop never leaves a half-written transition.
func (o *Orchestrator) RunCycle(ctx context.Context) error {
	start := o.now()
	o.log.Info().Time("cycle_start", start).Msg("cycle start")

	events := o.refreshCalendar(ctx)
	rollovers := o.publishedRollovers(events)

	active, instruments := o.activeWindow(events, start)
	o.log.Info().
		Int("events", len(events)).
		Int("in_window", len(active)).
		Int("instruments", len(instruments)).
		Msg("calendar evaluated")

	mepSpread := o.fetchDollarSpread(ctx)

	prices := make(map[string]float64)
	for _, instrument := range instruments {
		price, ok := o.evaluateInstrument(ctx, instrument, active[instrument], mepSpread, start)
		if ok {
			prices[instrument] = price
		}
	}

	o.reevaluateTrades(ctx, prices, rollovers, start)
	o.retireStaleSignals(ctx, start)

	o.metrics.Cycles.Inc()
	o.log.Info().Dur("elapsed", o.now().Sub(start)).Msg("cycle done")
	return nil
}

// refreshCalendar fetches the schedule and persists it. A fetch failure falls
// back to the last persisted calendar and flags the cycle as degraded.
func (o *Orchestrator) refreshCalendar(ctx context.Context) []domain.AuctionEvent {
	events, err := o.calendar.FetchEvents(ctx)
	if err != nil {
		o.metrics.FetchFailures.WithLabelValues("calendar").Inc()
		o.log.Warn().Err(err).Msg("calendar fetch failed, running degraded on stored events")

		stored, storeErr := o.repos.Events.ListUpcoming(ctx, o.now().AddDate(0, 0, -7))
		if storeErr != nil {
			o.log.Error().Err(storeErr).Msg("stored calendar unavailable")
			return nil
		}
		return stored
	}

	writeCtx := context.WithoutCancel(ctx)
	for _, event := range events {
		if err := o.repos.Events.Upsert(writeCtx, event); err != nil {
			o.log.Error().Err(err).Time("event_date", event.Date).Msg("event upsert failed")
			continue
		}
		if event.RolloverPct != nil {
			if err := o.repos.Events.SetRollover(writeCtx, event.Date, *event.RolloverPct); err != nil {
				o.log.Error().Err(err).Time("event_date", event.Date).Msg("rollover persist failed")
			}
		}
	}
	return events
}

// activeWindow maps each in-window instrument to its nearest event.
func (o *Orchestrator) activeWindow(events []domain.AuctionEvent, now time.Time) (map[string]domain.AuctionEvent, []string) {
	active := make(map[string]domain.AuctionEvent)
	var order []string

	for _, event := range events {
		days := event.DaysUntil(now)
		if days < 1 || days > o.cfg.Detection.PreAuctionWindowDays {
			continue
		}
		for _, instrument := range event.Instruments {
			if existing, ok := active[instrument]; ok && !event.Date.Before(existing.Date) {
				continue
			}
			if _, ok := active[instrument]; !ok {
				order = append(order, instrument)
			}
			active[instrument] = event
		}
	}
	return active, order
}

// publishedRollovers collects rollover ratios published for past or current
// auction dates.
func (o *Orchestrator) publishedRollovers(events []domain.AuctionEvent) map[string]float64 {
	rollovers := make(map[string]float64)
	for _, event := range events {
		if event.RolloverPct == nil {
			continue
		}
		for _, instrument := range event.Instruments {
			rollovers[instrument] = *event.RolloverPct
		}
	}
	return rollovers
}

// fetchDollarSpread returns the MEP/official spread, or zero when the feed is
// down. A zero spread cannot pass the MEP gate, so the degradation is safe:
// no signals rather than wrong signals.
func (o *Orchestrator) fetchDollarSpread(ctx context.Context) float64 {
	quote, err := o.dollar.Quote(ctx)
	if err != nil {
		o.metrics.FetchFailures.WithLabelValues("dollar_feed").Inc()
		o.log.Warn().Err(err).Msg("dollar feed failed, mep gate disabled this cycle")
		return 0
	}
	return quote.SpreadPct()
}

// evaluateInstrument runs the snapshot-metrics-detect-persist pipeline for a
// single instrument. Failures are isolated: they skip the instrument, never
// the cycle. Returns the observed price for trade re-evaluation.
func (o *Orchestrator) evaluateInstrument(ctx context.Context, instrument string, event domain.AuctionEvent, mepSpread float64, now time.Time) (float64, bool) {
	snap, err := o.quotes.Snapshot(ctx, instrument)
	if err != nil {
		o.metrics.FetchFailures.WithLabelValues("broker").Inc()
		o.log.Warn().Err(err).Str("instrument", instrument).Msg("snapshot fetch failed, skipping instrument")
		return 0, false
	}

	writeCtx := context.WithoutCancel(ctx)
	if err := o.repos.Snaps.Insert(writeCtx, snap); err != nil {
		o.log.Error().Err(err).Str("instrument", instrument).Msg("snapshot persist failed")
		return snap.Price, true
	}
	if o.cache != nil {
		o.cache.Invalidate(ctx, instrument)
	}

	window, err := o.loadWindow(ctx, instrument)
	if err != nil {
		o.log.Error().Err(err).Str("instrument", instrument).Msg("window load failed")
		return snap.Price, true
	}

	view := o.aggregator.Compute(instrument, window, mepSpread)
	sig, reject := o.detector.Detect(event, view, now)
	if sig == nil {
		o.log.Debug().
			Str("instrument", instrument).
			Str("reject", reject).
			Msg("no signal")
		return snap.Price, true
	}

	o.acceptSignal(ctx, sig)
	return snap.Price, true
}

func (o *Orchestrator) loadWindow(ctx context.Context, instrument string) ([]domain.MarketSnapshot, error) {
	limit := o.cfg.Detection.VolumeWindow
	load := func(ctx context.Context) ([]domain.MarketSnapshot, error) {
		return o.repos.Snaps.Window(ctx, instrument, limit)
	}
	if o.cache != nil {
		return o.cache.Window(ctx, instrument, limit, load)
	}
	return load(ctx)
}

// acceptSignal persists the signal, notifies, and books the position. The
// notification only fires after a successful insert.
func (o *Orchestrator) acceptSignal(ctx context.Context, sig *domain.Signal) {
	writeCtx := context.WithoutCancel(ctx)

	if err := o.repos.Signals.Insert(writeCtx, *sig); err != nil {
		if errors.Is(err, persistence.ErrDuplicateSignal) {
			o.log.Debug().Str("instrument", sig.Instrument).Msg("active signal already recorded")
			return
		}
		o.log.Error().Err(err).Str("instrument", sig.Instrument).Msg("signal persist failed")
		return
	}

	o.metrics.Signals.Inc()
	o.log.Info().
		Str("instrument", sig.Instrument).
		Float64("confidence", sig.Confidence).
		Float64("entry", sig.EntryPrice).
		Msg("signal emitted")
	o.dispatcher.SignalAlert(ctx, sig)

	open, err := o.repos.Trades.CountOpen(writeCtx)
	if err != nil {
		o.log.Error().Err(err).Msg("open trade count failed, not booking position")
		return
	}
	if open >= o.cfg.Trading.MaxPositions {
		o.log.Warn().
			Str("instrument", sig.Instrument).
			Int("open", open).
			Msg("max positions reached, signal recorded without trade")
		return
	}

	trade := o.ledger.Open(sig, o.now())
	if err := o.repos.Trades.Insert(writeCtx, trade); err != nil {
		o.log.Error().Err(err).Str("instrument", sig.Instrument).Msg("trade persist failed")
		return
	}
	o.metrics.TradesOpened.Inc()
	o.metrics.OpenPositions.Inc()

	if o.mode == ModeLive {
		intent := domain.OrderIntent{
			ID:         uuid.NewString(),
			SignalID:   sig.ID,
			Instrument: sig.Instrument,
			Side:       sig.Direction,
			Price:      sig.EntryPrice,
			Size:       trade.Size,
			CreatedAt:  o.now(),
		}
		if err := o.repos.Intents.Insert(writeCtx, intent); err != nil {
			o.log.Error().Err(err).Str("instrument", sig.Instrument).Msg("order intent persist failed")
		}
	}
}

// retireStaleSignals supersedes active signals once their auction has passed,
// freeing the (instrument, auction date) slot and keeping ListActive honest.
func (o *Orchestrator) retireStaleSignals(ctx context.Context, now time.Time) {
	active, err := o.repos.Signals.ListActive(ctx, 100)
	if err != nil {
		o.log.Error().Err(err).Msg("active signals load failed")
		return
	}

	writeCtx := context.WithoutCancel(ctx)
	for _, sig := range active {
		if sig.DaysToAuction(now) >= 0 {
			continue
		}
		if err := o.repos.Signals.Supersede(writeCtx, sig.Instrument, sig.AuctionDate); err != nil {
			o.log.Error().Err(err).Str("instrument", sig.Instrument).Msg("signal retirement failed")
			continue
		}
		o.log.Debug().
			Str("instrument", sig.Instrument).
			Time("auction_date", sig.AuctionDate).
			Msg("stale signal retired")
	}
}

// reevaluateTrades drives open trades through exit evaluation against current
// prices and any published rollover.
func (o *Orchestrator) reevaluateTrades(ctx context.Context, prices map[string]float64, rollovers map[string]float64, now time.Time) {
	open, err := o.repos.Trades.ListOpen(ctx)
	if err != nil {
		o.log.Error().Err(err).Msg("open trades load failed")
		return
	}
	o.metrics.OpenPositions.Set(float64(len(open)))

	for _, trade := range open {
		price, ok := prices[trade.Instrument]
		if !ok {
			snap, err := o.quotes.Snapshot(ctx, trade.Instrument)
			if err != nil {
				o.metrics.FetchFailures.WithLabelValues("broker").Inc()
				o.log.Warn().Err(err).Str("instrument", trade.Instrument).Msg("no price for open trade this cycle")
				continue
			}
			price = snap.Price
			prices[trade.Instrument] = price
		}

		sig, err := o.repos.Signals.GetByID(ctx, trade.SignalID)
		if err != nil {
			o.log.Error().Err(err).Str("trade", trade.ID).Msg("owning signal load failed")
			continue
		}

		updated, changed, err := o.ledger.MarkToMarket(trade, sig, price, now)
		if err != nil {
			o.log.Error().Err(err).Str("trade", trade.ID).Msg("mark to market rejected")
			continue
		}
		if !changed {
			if rollover, ok := rollovers[trade.Instrument]; ok {
				updated, changed, err = o.ledger.ApplyRollover(trade, rollover, price, now)
				if err != nil {
					o.log.Error().Err(err).Str("trade", trade.ID).Msg("rollover evaluation rejected")
					continue
				}
			}
		}
		if !changed {
			continue
		}

		if err := o.repos.Trades.Close(context.WithoutCancel(ctx), updated); err != nil {
			o.log.Error().Err(err).Str("trade", trade.ID).Msg("trade close persist failed")
			continue
		}
		o.metrics.TradesClosed.Inc()
		o.metrics.OpenPositions.Dec()
		o.log.Info().
			Str("trade", updated.ID).
			Str("instrument", updated.Instrument).
			Str("status", string(updated.Status)).
			Str("reason", string(updated.ExitReason)).
			Msg("trade closed")
		o.dispatcher.TradeAlert(ctx, updated)
	}
}
