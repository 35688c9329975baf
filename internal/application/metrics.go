package application

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics are the engine's prometheus collectors.
type Metrics struct {
	Cycles        prometheus.Counter
	Signals       prometheus.Counter
	FetchFailures *prometheus.CounterVec
	TradesOpened  prometheus.Counter
	TradesClosed  prometheus.Counter
	OpenPositions prometheus.Gauge
}

// NewMetrics builds and registers the collectors on the given registry.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Cycles: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "licdetect_cycles_total",
			Help: "Evaluation cycles completed.",
		}),
		Signals: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "licdetect_signals_emitted_total",
			Help: "Signals emitted and persisted.",
		}),
		FetchFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "licdetect_fetch_failures_total",
			Help: "External fetch failures after the retry budget.",
		}, []string{"provider"}),
		TradesOpened: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "licdetect_trades_opened_total",
			Help: "Paper trades opened.",
		}),
		TradesClosed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "licdetect_trades_closed_total",
			Help: "Trades that reached a terminal state.",
		}),
		OpenPositions: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "licdetect_open_positions",
			Help: "Trades currently OPEN.",
		}),
	}

	reg.MustRegister(m.Cycles, m.Signals, m.FetchFailures,
		m.TradesOpened, m.TradesClosed, m.OpenPositions)
	return m
}
