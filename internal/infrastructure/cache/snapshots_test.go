package cache

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/brunoruyu/lic-detect/internal/domain"
)

// The cache must stay an accelerator: with redis unreachable, reads come
// straight from the loader and loader errors pass through untouched.
func TestWindowFallsThroughWhenRedisDown(t *testing.T) {
	c := NewSnapshotCache("127.0.0.1:1", time.Minute, zerolog.Nop())
	defer c.Close()

	want := []domain.MarketSnapshot{{Instrument: "S17A6", Price: 102450}}
	loads := 0

	got, err := c.Window(context.Background(), "S17A6", 30, func(ctx context.Context) ([]domain.MarketSnapshot, error) {
		loads++
		return want, nil
	})
	require.NoError(t, err)
	assert.Equal(t, want, got)
	assert.Equal(t, 1, loads)
}

func TestWindowPropagatesLoaderError(t *testing.T) {
	c := NewSnapshotCache("127.0.0.1:1", time.Minute, zerolog.Nop())
	defer c.Close()

	boom := errors.New("store down")
	_, err := c.Window(context.Background(), "S17A6", 30, func(ctx context.Context) ([]domain.MarketSnapshot, error) {
		return nil, boom
	})
	assert.ErrorIs(t, err, boom)
}
