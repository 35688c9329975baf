package domain

import (
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
)

// DetectorParams are the thresholds, saturation ceilings and weights driving
// signal detection. They are copied out of the loaded configuration once and
// never mutated.
type DetectorParams struct {
	PreAuctionWindowDays      int
	VolumeDropThreshold       float64
	SpreadIncreaseThreshold   float64
	SpreadPercentileThreshold float64
	MEPSpreadThreshold        float64
	MinConfidenceScore        float64

	VolumeSaturation    float64
	SpreadSaturationPts float64
	MEPSaturation       float64

	VolumeWeight   float64
	SpreadWeight   float64
	MEPWeight      float64
	TemporalWeight float64

	StopLossPct   float64
	TakeProfitPct float64
}

// SignalDetector fuses auction proximity with rolling market metrics into at
// most one scored signal per instrument per evaluation. It is a pure function
// of its inputs: no I/O, no hidden state, no randomness beyond the signal id.
type SignalDetector struct {
	params DetectorParams
}

// NewSignalDetector creates a detector with the given immutable parameters.
func NewSignalDetector(params DetectorParams) *SignalDetector {
	return &SignalDetector{params: params}
}

// Detect evaluates the gating sequence and, when every gate passes and the
// weighted confidence clears the minimum, returns a SHORT signal. The second
// return value is the rejection reason when no signal is emitted; callers log
// it but it never becomes part of a signal's reasons.
func (d *SignalDetector) Detect(event AuctionEvent, metrics MetricsView, now time.Time) (*Signal, string) {
	p := d.params

	if metrics.InsufficientData {
		return nil, fmt.Sprintf("insufficient data: %d observations", metrics.Observations)
	}

	days := event.DaysUntil(now)
	if days < 1 || days > p.PreAuctionWindowDays {
		return nil, fmt.Sprintf("outside pre-auction window: %d days", days)
	}

	if metrics.VolumeDropPct < p.VolumeDropThreshold {
		return nil, fmt.Sprintf("volume drop %.1f%% below threshold %.1f%%",
			metrics.VolumeDropPct*100, p.VolumeDropThreshold*100)
	}

	percentileFired := metrics.SpreadPercentile >= p.SpreadPercentileThreshold
	increaseFired := metrics.SpreadIncreasePct >= p.SpreadIncreaseThreshold
	if !percentileFired && !increaseFired {
		return nil, fmt.Sprintf("spread calm: percentile %.0f, increase %.1f%%",
			metrics.SpreadPercentile, metrics.SpreadIncreasePct*100)
	}

	if metrics.MEPOfficialSpreadPct < p.MEPSpreadThreshold {
		return nil, fmt.Sprintf("mep-official spread %.2f%% below threshold %.2f%%",
			metrics.MEPOfficialSpreadPct*100, p.MEPSpreadThreshold*100)
	}

	volScore := clip01((metrics.VolumeDropPct - p.VolumeDropThreshold) / p.VolumeSaturation)
	spreadScore := clip01((metrics.SpreadPercentile - p.SpreadPercentileThreshold) / p.SpreadSaturationPts)
	mepScore := clip01((metrics.MEPOfficialSpreadPct - p.MEPSpreadThreshold) / p.MEPSaturation)
	timeFactor := 1 - float64(days)/float64(p.PreAuctionWindowDays)

	confidence := p.VolumeWeight*volScore +
		p.SpreadWeight*spreadScore +
		p.MEPWeight*mepScore +
		p.TemporalWeight*timeFactor

	if confidence < p.MinConfidenceScore {
		return nil, fmt.Sprintf("confidence %.3f below minimum %.3f", confidence, p.MinConfidenceScore)
	}

	reasons := []string{
		fmt.Sprintf("volume dropped %.1f%% vs rolling baseline (threshold %.0f%%)",
			metrics.VolumeDropPct*100, p.VolumeDropThreshold*100),
	}
	if percentileFired {
		reasons = append(reasons, fmt.Sprintf("spread at percentile %.0f of trailing window (%.1f bps)",
			metrics.SpreadPercentile, metrics.SpreadBps))
	} else {
		reasons = append(reasons, fmt.Sprintf("spread widened %.1f%% over window baseline (%.1f bps)",
			metrics.SpreadIncreasePct*100, metrics.SpreadBps))
	}
	reasons = append(reasons, fmt.Sprintf("mep-official spread at %.2f%% (threshold %.2f%%)",
		metrics.MEPOfficialSpreadPct*100, p.MEPSpreadThreshold*100))
	if timeFactor > 0.5 {
		reasons = append(reasons, fmt.Sprintf("auction in %d days (proximity factor %.2f)", days, timeFactor))
	}

	entry := metrics.LastPrice
	sig := &Signal{
		ID:          uuid.NewString(),
		Instrument:  metrics.Instrument,
		Direction:   DirectionShort,
		EntryPrice:  entry,
		TargetPrice: entry * (1 - p.TakeProfitPct),
		StopPrice:   entry * (1 + p.StopLossPct),
		Confidence:  confidence,
		Reasons:     reasons,
		AuctionDate: event.Date,
		CreatedAt:   now,
	}
	return sig, ""
}

func clip01(v float64) float64 {
	return math.Min(1, math.Max(0, v))
}
