// Package limiter bounds per-tenant request rates with a sliding window
// kept in a Redis sorted set, scored by timestamp.
package limiter

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"ytcollector/internal/clock"
	"ytcollector/internal/logger"
)

const (
	// DefaultMaxRequests and DefaultPeriod bound a tenant to 5 requests
	// per trailing second.
	DefaultMaxRequests = 5
	DefaultPeriod      = time.Second
)

// Limiter throttles callers per tenant. Window maintenance (trim + count)
// runs in a transactional pipeline so concurrent throttles for the same
// tenant observe a consistent count.
type Limiter struct {
	rdb redis.UniversalClient
	clk clock.Clock
	log logger.Logger
}

// New returns a Limiter over the given Redis client.
func New(rdb redis.UniversalClient, clk clock.Clock, log logger.Logger) *Limiter {
	if log == nil {
		log = logger.Nop()
	}
	return &Limiter{rdb: rdb, clk: clk, log: log}
}

func throttleKey(tenantID string) string { return "throttle:" + tenantID }

// Throttle blocks until at most maxRequests operations have been observed
// for tenantID within the trailing period, then records this one. A context
// cancellation during the wait surfaces as ctx.Err() without recording
// anything.
func (l *Limiter) Throttle(ctx context.Context, tenantID string, maxRequests int, period time.Duration) error {
	key := throttleKey(tenantID)
	now := secs(l.clk.Now())
	windowStart := now - period.Seconds()

	pipe := l.rdb.TxPipeline()
	pipe.ZRemRangeByScore(ctx, key, "0", formatScore(windowStart))
	card := pipe.ZCard(ctx, key)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("throttle %s: %w", tenantID, err)
	}

	if card.Val() < int64(maxRequests) {
		return l.record(ctx, key, now)
	}

	oldest, err := l.rdb.ZRangeWithScores(ctx, key, 0, 0).Result()
	if err != nil {
		return fmt.Errorf("throttle %s: %w", tenantID, err)
	}
	if len(oldest) == 0 {
		// Window emptied between the pipeline and the range read.
		return l.record(ctx, key, now)
	}

	wait := time.Duration((oldest[0].Score + period.Seconds() - now) * float64(time.Second))
	if wait > 0 {
		l.log.Warn("rate limit exceeded, throttling",
			logger.F("tenant_id", tenantID),
			logger.F("wait", wait))
		if err := l.clk.Sleep(ctx, wait); err != nil {
			return err
		}
	}
	return l.record(ctx, key, secs(l.clk.Now()))
}

func (l *Limiter) record(ctx context.Context, key string, at float64) error {
	// Members must be unique per request; a repeated score alone would
	// collapse into one entry and undercount the window.
	err := l.rdb.ZAdd(ctx, key, redis.Z{Score: at, Member: uuid.NewString()}).Err()
	if err != nil {
		return fmt.Errorf("throttle record: %w", err)
	}
	return nil
}

func secs(t time.Time) float64 {
	return float64(t.UnixNano()) / float64(time.Second)
}

func formatScore(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
