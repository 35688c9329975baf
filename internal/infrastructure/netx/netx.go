// Package netx bounds every outbound call the engine makes: per-request
// timeout, bounded exponential-backoff retry, a circuit breaker per provider
// and a shared rate limit. Exceeding the retry budget degrades the calling
// sub-step; it never aborts a cycle.
package netx

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"
)

// ErrRetriesExhausted wraps the last attempt error once the retry budget is
// spent.
var ErrRetriesExhausted = errors.New("retry budget exhausted")

// Config bounds one guarded provider.
type Config struct {
	MaxAttempts    int
	BaseBackoff    time.Duration
	RequestTimeout time.Duration
	RatePerSecond  float64
}

// Guard is the retry+breaker+limiter wrapper around one external provider.
type Guard struct {
	name    string
	cfg     Config
	breaker *gobreaker.CircuitBreaker
	limiter *rate.Limiter
	log     zerolog.Logger
}

// NewGuard creates a guard for a named provider. The breaker opens after five
// consecutive failures and probes again after 30 seconds.
func NewGuard(name string, cfg Config, log zerolog.Logger) *Guard {
	settings := gobreaker.Settings{
		Name:    name,
		Timeout: 30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn().
				Str("provider", name).
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("circuit breaker state change")
		},
	}

	return &Guard{
		name:    name,
		cfg:     cfg,
		breaker: gobreaker.NewCircuitBreaker(settings),
		limiter: rate.NewLimiter(rate.Limit(cfg.RatePerSecond), 1),
		log:     log.With().Str("provider", name).Logger(),
	}
}

// Do runs fn under the rate limit, breaker and retry budget. Each attempt gets
// its own timeout; backoff doubles per attempt. Context cancellation stops
// retrying immediately.
func (g *Guard) Do(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	var lastErr error

	for attempt := 1; attempt <= g.cfg.MaxAttempts; attempt++ {
		if err := g.limiter.Wait(ctx); err != nil {
			return err
		}

		_, err := g.breaker.Execute(func() (interface{}, error) {
			attemptCtx, cancel := context.WithTimeout(ctx, g.cfg.RequestTimeout)
			defer cancel()
			return nil, fn(attemptCtx)
		})
		if err == nil {
			return nil
		}
		lastErr = err

		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			g.log.Warn().Str("op", op).Msg("circuit open, skipping remaining attempts")
			break
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}

		g.log.Debug().
			Str("op", op).
			Int("attempt", attempt).
			Err(err).
			Msg("attempt failed")

		if attempt < g.cfg.MaxAttempts {
			backoff := g.cfg.BaseBackoff * time.Duration(1<<(attempt-1))
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}

	return fmt.Errorf("%s %s: %w: %w", g.name, op, ErrRetriesExhausted, lastErr)
}
