package netx

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig() Config {
	return Config{
		MaxAttempts:    3,
		BaseBackoff:    time.Millisecond,
		RequestTimeout: time.Second,
		RatePerSecond:  1000,
	}
}

func TestGuardSucceedsFirstAttempt(t *testing.T) {
	g := NewGuard("test", testConfig(), zerolog.Nop())

	calls := 0
	err := g.Do(context.Background(), "fetch", func(ctx context.Context) error {
		calls++
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 1, calls)
}

func TestGuardRetriesThenSucceeds(t *testing.T) {
	g := NewGuard("test", testConfig(), zerolog.Nop())

	calls := 0
	err := g.Do(context.Background(), "fetch", func(ctx context.Context) error {
		calls++
		if calls < 3 {
			return errors.New("transient")
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestGuardExhaustsBudget(t *testing.T) {
	g := NewGuard("test", testConfig(), zerolog.Nop())

	boom := errors.New("boom")
	calls := 0
	err := g.Do(context.Background(), "fetch", func(ctx context.Context) error {
		calls++
		return boom
	})
	assert.ErrorIs(t, err, ErrRetriesExhausted)
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 3, calls)
}

func TestGuardStopsOnCancel(t *testing.T) {
	g := NewGuard("test", testConfig(), zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	err := g.Do(ctx, "fetch", func(ctx context.Context) error {
		calls++
		cancel()
		return errors.New("transient")
	})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, calls)
}

func TestGuardAttemptTimeout(t *testing.T) {
	cfg := testConfig()
	cfg.MaxAttempts = 1
	cfg.RequestTimeout = 10 * time.Millisecond
	g := NewGuard("test", cfg, zerolog.Nop())

	err := g.Do(context.Background(), "fetch", func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
