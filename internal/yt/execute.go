package yt

import (
	"context"
	"errors"
	"math/rand/v2"
	"net/url"
	"time"

	"ytcollector/internal/logger"
)

// Retry settings. Quota errors swap keys instead of burning the budget;
// transient faults back off exponentially with jitter to avoid stampede;
// fatal client errors abort at once to preserve throughput.
const (
	maxRetries     = 5
	initialBackoff = time.Second
	backoffFactor  = 2.0
)

func defaultJitter() float64 { return rand.Float64() }

// execute runs one API invocation through the full pipeline: per-tenant
// throttle, key acquisition, transport, classification, and bounded retry.
func (c *Client) execute(ctx context.Context, tenantID, endpoint string, params url.Values) (map[string]any, error) {
	backoff := c.initialBackoff
	var lastErr error

	for attempt := 0; attempt < c.maxRetries; {
		if err := c.throttler.Throttle(ctx, tenantID, c.throttleMax, c.throttlePeriod); err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return nil, &APIError{Kind: KindCancelled, Err: err}
			}
			return nil, err
		}

		key, err := c.rotator.Acquire()
		if err != nil {
			// The pipeline never waits out a cooldown; the current job
			// fails and later deliveries find a recovered pool.
			return nil, &APIError{Kind: KindNoKeys, Err: err}
		}

		payload, err := c.doRequest(ctx, endpoint, params, key)
		if err == nil {
			return payload, nil
		}
		lastErr = err

		var apiErr *APIError
		if !errors.As(err, &apiErr) {
			return nil, err
		}

		switch apiErr.Kind {
		case KindQuota:
			// Swapping keys is the remedy; retry immediately, no sleep,
			// no attempt consumed. Termination is guaranteed because the
			// pool drains into NO_KEYS.
			c.log.Warn("quota error, rotating api key",
				logger.F("endpoint", endpoint),
				logger.F("reasons", apiErr.Reasons))
			c.rotator.Cooldown(key)
			continue

		case KindTransient:
			attempt++
			if attempt >= c.maxRetries {
				return nil, &APIError{Kind: KindRetriesExhausted, StatusCode: apiErr.StatusCode, Err: lastErr}
			}
			wait := backoff + time.Duration(c.jitter()*float64(time.Second))
			c.log.Warn("transient api error, backing off",
				logger.F("endpoint", endpoint),
				logger.F("status", apiErr.StatusCode),
				logger.F("wait", wait),
				logger.F("attempt", attempt))
			if err := c.clk.Sleep(ctx, wait); err != nil {
				return nil, &APIError{Kind: KindCancelled, Err: err}
			}
			backoff = time.Duration(float64(backoff) * c.backoffFactor)
			continue

		default:
			// FATAL_CLIENT and CANCELLED surface as-is.
			return nil, err
		}
	}

	return nil, &APIError{Kind: KindRetriesExhausted, Err: lastErr}
}
