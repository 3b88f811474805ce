package yt

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ytcollector/internal/clock"
)

func newTestRotator(t *testing.T, keys ...string) (*KeyRotator, *clock.Manual) {
	t.Helper()
	clk := clock.NewManual(time.Unix(1_700_000_000, 0))
	r, err := NewKeyRotator(keys, time.Minute, clk, nil)
	require.NoError(t, err)
	return r, clk
}

func TestNewKeyRotatorRequiresKeys(t *testing.T) {
	_, err := NewKeyRotator(nil, time.Minute, clock.NewManual(time.Now()), nil)
	assert.ErrorIs(t, err, ErrNoKeysAvailable)
}

func TestAcquireRoundRobin(t *testing.T) {
	r, _ := newTestRotator(t, "k1", "k2", "k3")

	var got []string
	for i := 0; i < 6; i++ {
		key, err := r.Acquire()
		require.NoError(t, err)
		got = append(got, key)
	}
	assert.Equal(t, []string{"k1", "k2", "k3", "k1", "k2", "k3"}, got)
}

func TestCooldownWithholdsKeyUntilExpiry(t *testing.T) {
	r, clk := newTestRotator(t, "k1", "k2")

	r.Cooldown("k1")
	for i := 0; i < 3; i++ {
		key, err := r.Acquire()
		require.NoError(t, err)
		assert.Equal(t, "k2", key)
	}

	// One second short of the deadline the key stays out.
	clk.Advance(59 * time.Second)
	key, err := r.Acquire()
	require.NoError(t, err)
	assert.Equal(t, "k2", key)

	clk.Advance(time.Second)
	seen := map[string]bool{}
	for i := 0; i < 2; i++ {
		key, err := r.Acquire()
		require.NoError(t, err)
		seen[key] = true
	}
	assert.True(t, seen["k1"], "cooled-down key must reintegrate after expiry")
}

func TestAcquireFailsWhenAllKeysCooling(t *testing.T) {
	r, clk := newTestRotator(t, "k1")

	r.Cooldown("k1")
	_, err := r.Acquire()
	assert.ErrorIs(t, err, ErrNoKeysAvailable)

	clk.Advance(time.Minute)
	key, err := r.Acquire()
	require.NoError(t, err)
	assert.Equal(t, "k1", key)
}

func TestCooldownIsIdempotent(t *testing.T) {
	r, _ := newTestRotator(t, "k1", "k2")

	r.Cooldown("k1")
	r.Cooldown("k1")

	assert.Equal(t, 1, r.LiveKeys())
	key, err := r.Acquire()
	require.NoError(t, err)
	assert.Equal(t, "k2", key)
}

func TestResetRestoresOriginalPool(t *testing.T) {
	r, _ := newTestRotator(t, "k1", "k2")

	r.Cooldown("k1")
	r.Cooldown("k2")
	_, err := r.Acquire()
	require.ErrorIs(t, err, ErrNoKeysAvailable)

	r.Reset()
	key, err := r.Acquire()
	require.NoError(t, err)
	assert.Equal(t, "k1", key)
	assert.Equal(t, 2, r.LiveKeys())
}
