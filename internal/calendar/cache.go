package calendar

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/barberos/barberos/internal/availability"
)

// BusySource yields external busy blocks for a tenant's day.
type BusySource interface {
	ListBusyBlocks(ctx context.Context, tenantID string, from, to time.Time) ([]availability.Interval, error)
}

// CachedBusySource caches provider busy blocks in Redis for a short TTL.
// Slot listings are read-heavy and tolerate slightly stale busy data: the
// authoritative overlap check happens again at commit time.
type CachedBusySource struct {
	source BusySource
	rdb    *redis.Client
	ttl    time.Duration
	logger *slog.Logger
}

func NewCachedBusySource(source BusySource, rdb *redis.Client, ttl time.Duration, logger *slog.Logger) *CachedBusySource {
	if ttl <= 0 {
		ttl = time.Minute
	}
	return &CachedBusySource{source: source, rdb: rdb, ttl: ttl, logger: logger}
}

func (c *CachedBusySource) ListBusyBlocks(ctx context.Context, tenantID string, from, to time.Time) ([]availability.Interval, error) {
	if c.rdb == nil {
		return c.source.ListBusyBlocks(ctx, tenantID, from, to)
	}

	key := "calbusy:" + tenantID + ":" + from.UTC().Format("2006-01-02T15") + ":" + to.UTC().Format("2006-01-02T15")
	if raw, err := c.rdb.Get(ctx, key).Bytes(); err == nil {
		var blocks []availability.Interval
		if jsonErr := json.Unmarshal(raw, &blocks); jsonErr == nil {
			return blocks, nil
		}
	} else if err != redis.Nil {
		c.logger.Warn("busy block cache read failed", "err", err)
	}

	blocks, err := c.source.ListBusyBlocks(ctx, tenantID, from, to)
	if err != nil {
		return nil, err
	}

	if raw, err := json.Marshal(blocks); err == nil {
		if err := c.rdb.Set(ctx, key, raw, c.ttl).Err(); err != nil {
			c.logger.Warn("busy block cache write failed", "err", err)
		}
	}
	return blocks, nil
}
