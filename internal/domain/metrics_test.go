package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func snap(price, bid, ask, volume float64) MarketSnapshot {
	return MarketSnapshot{
		Instrument: "S17A6",
		Timestamp:  time.Date(2026, 4, 10, 14, 0, 0, 0, time.UTC),
		Price:      price,
		Bid:        bid,
		Ask:        ask,
		Volume:     volume,
	}
}

func TestComputeInsufficientData(t *testing.T) {
	agg := NewMetricsAggregator(30, 5)

	view := agg.Compute("S17A6", []MarketSnapshot{
		snap(100, 99, 101, 1000),
		snap(100, 99, 101, 1000),
		snap(100, 99, 101, 1000),
		snap(100, 99, 101, 900),
	}, 0.02)

	assert.True(t, view.InsufficientData)
	assert.Equal(t, 4, view.Observations)
	assert.Equal(t, TrendFlat, view.Trend)
	assert.Zero(t, view.VolumeDropPct)
}

func TestComputeVolumeDrop(t *testing.T) {
	agg := NewMetricsAggregator(30, 5)

	// Baseline mean over the first four observations is 1000; the latest
	// observation never dilutes its own baseline.
	snapshots := []MarketSnapshot{
		snap(100, 99.9, 100.1, 1000),
		snap(100, 99.9, 100.1, 1100),
		snap(100, 99.9, 100.1, 900),
		snap(100, 99.9, 100.1, 1000),
		snap(100, 99.9, 100.1, 650),
	}

	view := agg.Compute("S17A6", snapshots, 0.02)
	require.False(t, view.InsufficientData)
	assert.InDelta(t, 0.35, view.VolumeDropPct, 1e-9)
}

func TestComputeVolumeGrowthClampsToZero(t *testing.T) {
	agg := NewMetricsAggregator(30, 5)

	snapshots := []MarketSnapshot{
		snap(100, 99.9, 100.1, 1000),
		snap(100, 99.9, 100.1, 1000),
		snap(100, 99.9, 100.1, 1000),
		snap(100, 99.9, 100.1, 1000),
		snap(100, 99.9, 100.1, 1500),
	}

	view := agg.Compute("S17A6", snapshots, 0.02)
	assert.Zero(t, view.VolumeDropPct)
}

func TestSpreadPercentileTiesTakeLowerRank(t *testing.T) {
	agg := NewMetricsAggregator(30, 5)

	// All five spreads identical: zero observations strictly below the
	// current spread, so the percentile is 0, not 100.
	snapshots := []MarketSnapshot{
		snap(100, 99.5, 100.5, 1000),
		snap(100, 99.5, 100.5, 1000),
		snap(100, 99.5, 100.5, 1000),
		snap(100, 99.5, 100.5, 1000),
		snap(100, 99.5, 100.5, 1000),
	}

	view := agg.Compute("S17A6", snapshots, 0.02)
	assert.Zero(t, view.SpreadPercentile)
	assert.InDelta(t, 0, view.SpreadIncreasePct, 1e-9)
}

func TestSpreadPercentileRanking(t *testing.T) {
	agg := NewMetricsAggregator(30, 5)

	// Widening book: the latest spread is the widest of five, four strictly
	// below it, percentile 4/5 = 80.
	snapshots := []MarketSnapshot{
		snap(100, 99.95, 100.05, 1000),
		snap(100, 99.94, 100.06, 1000),
		snap(100, 99.93, 100.07, 1000),
		snap(100, 99.92, 100.08, 1000),
		snap(100, 99.80, 100.20, 1000),
	}

	view := agg.Compute("S17A6", snapshots, 0.02)
	assert.InDelta(t, 80, view.SpreadPercentile, 1e-9)
	assert.Greater(t, view.SpreadIncreasePct, 0.0)
}

func TestComputeTruncatesToWindow(t *testing.T) {
	agg := NewMetricsAggregator(5, 5)

	// Ten observations but a window of five: the huge early volumes must not
	// leak into the baseline.
	snapshots := make([]MarketSnapshot, 0, 10)
	for i := 0; i < 5; i++ {
		snapshots = append(snapshots, snap(100, 99.9, 100.1, 1e9))
	}
	for i := 0; i < 4; i++ {
		snapshots = append(snapshots, snap(100, 99.9, 100.1, 1000))
	}
	snapshots = append(snapshots, snap(100, 99.9, 100.1, 700))

	view := agg.Compute("S17A6", snapshots, 0.02)
	assert.Equal(t, 5, view.Observations)
	assert.InDelta(t, 0.30, view.VolumeDropPct, 1e-9)
}

func TestVolumeTrend(t *testing.T) {
	agg := NewMetricsAggregator(30, 5)

	tests := []struct {
		name    string
		volumes []float64
		want    Trend
	}{
		{"steadily falling", []float64{1000, 900, 800, 700, 600}, TrendDecreasing},
		{"steadily rising", []float64{600, 700, 800, 900, 1000}, TrendIncreasing},
		{"noise inside dead-zone", []float64{1000, 1010, 995, 1005, 1000}, TrendFlat},
		{"constant", []float64{1000, 1000, 1000, 1000, 1000}, TrendFlat},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			snapshots := make([]MarketSnapshot, len(tt.volumes))
			for i, v := range tt.volumes {
				snapshots[i] = snap(100, 99.9, 100.1, v)
			}
			view := agg.Compute("S17A6", snapshots, 0.02)
			assert.Equal(t, tt.want, view.Trend)
		})
	}
}

func TestSpreadBpsOneSidedBook(t *testing.T) {
	assert.Zero(t, MarketSnapshot{Bid: 0, Ask: 100.5}.SpreadBps())
	assert.Zero(t, MarketSnapshot{Bid: 99.5, Ask: 0}.SpreadBps())

	s := MarketSnapshot{Bid: 99.5, Ask: 100.5}
	assert.InDelta(t, 100, s.SpreadBps(), 1e-9)
}
