package domain

import (
	"math"
)

// MetricsAggregator turns a trailing window of market snapshots into the
// rolling statistics consumed by signal detection. It performs no I/O; the
// snapshot window and the dollar quote are handed in already fetched.
type MetricsAggregator struct {
	window          int
	minObservations int
	trendEpsilonPct float64
}

// NewMetricsAggregator creates an aggregator over a trailing window of
// observations. Fewer than minObservations flags the view as insufficient.
func NewMetricsAggregator(window, minObservations int) *MetricsAggregator {
	return &MetricsAggregator{
		window:          window,
		minObservations: minObservations,
		trendEpsilonPct: 0.05,
	}
}

// Compute builds a MetricsView for one instrument. Snapshots must be ordered
// oldest first; only the trailing window is considered. The MEP/official
// spread is injected from the paired dollar feed, not derived here.
func (a *MetricsAggregator) Compute(instrument string, snapshots []MarketSnapshot, mepOfficialSpreadPct float64) MetricsView {
	if len(snapshots) > a.window {
		snapshots = snapshots[len(snapshots)-a.window:]
	}

	view := MetricsView{
		Instrument:           instrument,
		MEPOfficialSpreadPct: mepOfficialSpreadPct,
		Observations:         len(snapshots),
		Trend:                TrendFlat,
	}

	if len(snapshots) < a.minObservations {
		view.InsufficientData = true
		return view
	}

	latest := snapshots[len(snapshots)-1]
	view.LastPrice = latest.Price
	view.SpreadBps = latest.SpreadBps()

	view.VolumeDropPct = volumeDrop(snapshots)
	view.SpreadPercentile, view.SpreadIncreasePct = spreadStats(snapshots, view.SpreadBps)
	view.Trend = a.volumeTrend(snapshots)

	return view
}

// volumeDrop is the contraction of the latest volume against the baseline
// mean, where the baseline excludes the latest observation. Growth clamps to 0.
func volumeDrop(snapshots []MarketSnapshot) float64 {
	n := len(snapshots)
	baseline := 0.0
	for _, s := range snapshots[:n-1] {
		baseline += s.Volume
	}
	baseline /= float64(n - 1)
	if baseline <= 0 {
		return 0
	}
	drop := (baseline - snapshots[n-1].Volume) / baseline
	return math.Max(0, drop)
}

// spreadStats ranks the current spread within the window (ties take the lower
// rank: count-strictly-less over window size) and measures its increase over
// the window's own baseline mean spread.
func spreadStats(snapshots []MarketSnapshot, current float64) (percentile, increasePct float64) {
	below := 0
	sum := 0.0
	for _, s := range snapshots {
		bps := s.SpreadBps()
		sum += bps
		if bps < current {
			below++
		}
	}
	percentile = float64(below) / float64(len(snapshots)) * 100

	baseline := sum / float64(len(snapshots))
	if baseline > 0 {
		increasePct = (current - baseline) / baseline
	}
	return percentile, increasePct
}

// volumeTrend fits a least-squares slope over the window. Slopes inside the
// dead-zone (epsilon fraction of the baseline mean per observation) are flat.
func (a *MetricsAggregator) volumeTrend(snapshots []MarketSnapshot) Trend {
	n := len(snapshots)
	meanX := float64(n-1) / 2
	meanY := 0.0
	for _, s := range snapshots {
		meanY += s.Volume
	}
	meanY /= float64(n)

	var num, den float64
	for i, s := range snapshots {
		dx := float64(i) - meanX
		num += dx * (s.Volume - meanY)
		den += dx * dx
	}
	if den == 0 {
		return TrendFlat
	}
	slope := num / den

	deadZone := a.trendEpsilonPct * meanY
	switch {
	case slope > deadZone:
		return TrendIncreasing
	case slope < -deadZone:
		return TrendDecreasing
	default:
		return TrendFlat
	}
}
