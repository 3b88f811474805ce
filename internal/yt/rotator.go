package yt

import (
	"fmt"
	"sync"
	"time"

	"ytcollector/internal/clock"
	"ytcollector/internal/logger"
)

// DefaultCooldown is how long a quota-exhausted key stays out of the pool.
const DefaultCooldown = 60 * time.Second

// KeyRotator owns the pool of API credentials. A key is either in the live
// pool or has a future cooldown deadline, never both. All operations are
// serialized behind one mutex.
type KeyRotator struct {
	mu       sync.Mutex
	live     []string
	cooldown map[string]time.Time
	original []string
	duration time.Duration
	clk      clock.Clock
	log      logger.Logger
}

// NewKeyRotator builds a rotator over an ordered key list. At least one key
// is required.
func NewKeyRotator(keys []string, cooldown time.Duration, clk clock.Clock, log logger.Logger) (*KeyRotator, error) {
	if len(keys) == 0 {
		return nil, fmt.Errorf("key rotator: %w", ErrNoKeysAvailable)
	}
	if cooldown <= 0 {
		cooldown = DefaultCooldown
	}
	if log == nil {
		log = logger.Nop()
	}
	r := &KeyRotator{
		live:     append([]string(nil), keys...),
		cooldown: make(map[string]time.Time),
		original: append([]string(nil), keys...),
		duration: cooldown,
		clk:      clk,
		log:      log,
	}
	r.log.Info("key rotator initialized", logger.F("keys", len(keys)))
	return r, nil
}

// Acquire reintegrates keys whose cooldown has expired, then returns the
// next live key round-robin. It fails with ErrNoKeysAvailable when the live
// pool is empty.
func (r *KeyRotator) Acquire() (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.clk.Now()
	for key, until := range r.cooldown {
		if !now.Before(until) {
			delete(r.cooldown, key)
			r.live = append(r.live, key)
			r.log.Info("api key cooled down, back in pool")
		}
	}

	if len(r.live) == 0 {
		return "", ErrNoKeysAvailable
	}

	key := r.live[0]
	r.live = append(r.live[1:], key)
	return key, nil
}

// Cooldown removes key from the live pool until now + the cooldown
// duration. Calling it again for the same key only extends the deadline.
func (r *KeyRotator) Cooldown(key string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.cooldown[key] = r.clk.Now().Add(r.duration)
	for i, k := range r.live {
		if k == key {
			r.live = append(r.live[:i], r.live[i+1:]...)
			break
		}
	}
	r.log.Warn("api key placed on cooldown", logger.F("cooldown", r.duration))
}

// Reset clears all cooldowns and restores the original pool order.
func (r *KeyRotator) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.live = append([]string(nil), r.original...)
	r.cooldown = make(map[string]time.Time)
}

// LiveKeys returns how many keys are currently acquirable.
func (r *KeyRotator) LiveKeys() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := len(r.live)
	now := r.clk.Now()
	for _, until := range r.cooldown {
		if !now.Before(until) {
			n++
		}
	}
	return n
}
