// Package cache serves snapshot windows from redis so repeated reads within a
// cycle skip the database. The cache is strictly an accelerator: every error
// path falls back to the loader.
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/brunoruyu/lic-detect/internal/domain"
)

// SnapshotCache is a read-through cache over per-instrument windows.
type SnapshotCache struct {
	rdb *redis.Client
	ttl time.Duration
	log zerolog.Logger
}

// NewSnapshotCache connects to redis. The TTL bounds staleness between
// cycles; inserts invalidate eagerly so a cycle never sees its own writes
// missing.
func NewSnapshotCache(addr string, ttl time.Duration, log zerolog.Logger) *SnapshotCache {
	return &SnapshotCache{
		rdb: redis.NewClient(&redis.Options{Addr: addr}),
		ttl: ttl,
		log: log.With().Str("component", "snapshot_cache").Logger(),
	}
}

func windowKey(instrument string, limit int) string {
	return fmt.Sprintf("licdetect:snapshots:%s:%d", instrument, limit)
}

// Window returns the cached window or loads and stores it. Redis being down
// only costs the shortcut.
func (c *SnapshotCache) Window(ctx context.Context, instrument string, limit int, load func(ctx context.Context) ([]domain.MarketSnapshot, error)) ([]domain.MarketSnapshot, error) {
	key := windowKey(instrument, limit)

	raw, err := c.rdb.Get(ctx, key).Bytes()
	if err == nil {
		var snaps []domain.MarketSnapshot
		if jsonErr := json.Unmarshal(raw, &snaps); jsonErr == nil {
			return snaps, nil
		}
		c.log.Warn().Str("key", key).Msg("dropping undecodable cache entry")
		c.rdb.Del(ctx, key)
	} else if err != redis.Nil {
		c.log.Warn().Err(err).Msg("cache read failed, falling through to store")
	}

	snaps, err := load(ctx)
	if err != nil {
		return nil, err
	}

	if raw, err := json.Marshal(snaps); err == nil {
		if err := c.rdb.Set(ctx, key, raw, c.ttl).Err(); err != nil {
			c.log.Warn().Err(err).Msg("cache write failed")
		}
	}
	return snaps, nil
}

// Invalidate drops all cached windows for an instrument after a new snapshot
// lands.
func (c *SnapshotCache) Invalidate(ctx context.Context, instrument string) {
	pattern := fmt.Sprintf("licdetect:snapshots:%s:*", instrument)
	iter := c.rdb.Scan(ctx, 0, pattern, 0).Iterator()
	for iter.Next(ctx) {
		c.rdb.Del(ctx, iter.Val())
	}
	if err := iter.Err(); err != nil {
		c.log.Warn().Err(err).Str("instrument", instrument).Msg("cache invalidation failed")
	}
}

// Ping reports cache connectivity for the health endpoint.
func (c *SnapshotCache) Ping(ctx context.Context) error {
	return c.rdb.Ping(ctx).Err()
}

// Close releases the redis connection.
func (c *SnapshotCache) Close() error {
	return c.rdb.Close()
}
