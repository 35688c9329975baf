package application

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/brunoruyu/lic-detect/internal/config"
)

// CycleRunner is the unit of work the scheduler drives.
type CycleRunner interface {
	RunCycle(ctx context.Context) error
}

// Scheduler ticks evaluation cycles on a fixed cadence inside market hours.
// Cycles run to completion before the next tick is considered, so they never
// overlap.
type Scheduler struct {
	runner   CycleRunner
	interval time.Duration
	open     clockTime
	close    clockTime
	loc      *time.Location
	log      zerolog.Logger
	now      func() time.Time
}

type clockTime struct {
	hour, minute int
}

func parseClockTime(s string) (clockTime, error) {
	var ct clockTime
	if _, err := fmt.Sscanf(s, "%d:%d", &ct.hour, &ct.minute); err != nil {
		return ct, fmt.Errorf("invalid clock time %q: %w", s, err)
	}
	if ct.hour < 0 || ct.hour > 23 || ct.minute < 0 || ct.minute > 59 {
		return ct, fmt.Errorf("invalid clock time %q", s)
	}
	return ct, nil
}

// NewScheduler builds a scheduler from the schedule configuration.
func NewScheduler(runner CycleRunner, cfg config.ScheduleConfig, log zerolog.Logger) (*Scheduler, error) {
	open, err := parseClockTime(cfg.MarketOpen)
	if err != nil {
		return nil, err
	}
	closeAt, err := parseClockTime(cfg.MarketClose)
	if err != nil {
		return nil, err
	}
	loc, err := time.LoadLocation(cfg.Timezone)
	if err != nil {
		return nil, fmt.Errorf("invalid timezone %q: %w", cfg.Timezone, err)
	}

	return &Scheduler{
		runner:   runner,
		interval: cfg.Interval.Std(),
		open:     open,
		close:    closeAt,
		loc:      loc,
		log:      log.With().Str("component", "scheduler").Logger(),
		now:      time.Now,
	}, nil
}

// InMarketHours reports whether t falls inside the configured trading window
// on a weekday.
func (s *Scheduler) InMarketHours(t time.Time) bool {
	local := t.In(s.loc)
	if wd := local.Weekday(); wd == time.Saturday || wd == time.Sunday {
		return false
	}

	minutes := local.Hour()*60 + local.Minute()
	openM := s.open.hour*60 + s.open.minute
	closeM := s.close.hour*60 + s.close.minute
	return minutes >= openM && minutes < closeM
}

// Run ticks until the context is cancelled. The first cycle fires
// immediately when inside market hours.
func (s *Scheduler) Run(ctx context.Context) error {
	s.log.Info().Dur("interval", s.interval).Msg("scheduler started")

	s.tick(ctx)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.log.Info().Msg("scheduler stopped")
			return ctx.Err()
		case <-ticker.C:
			s.tick(ctx)
		}
	}
}

func (s *Scheduler) tick(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}
	if !s.InMarketHours(s.now()) {
		s.log.Debug().Msg("outside market hours, skipping cycle")
		return
	}
	if err := s.runner.RunCycle(ctx); err != nil {
		s.log.Error().Err(err).Msg("cycle failed")
	}
}
