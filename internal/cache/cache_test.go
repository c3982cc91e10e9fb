// Nightowl - Metro Area Event Aggregation and Ranking
// Copyright 2026 Nightowl Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/nightowl-live/nightowl

package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeClock is a manually advanced clock for deterministic expiry tests.
type fakeClock struct {
	t time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2026, 4, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time          { return c.t }
func (c *fakeClock) Advance(d time.Duration) { c.t = c.t.Add(d) }

func TestCacheSetGet(t *testing.T) {
	clock := newFakeClock()
	c := New(time.Minute, clock.Now)

	c.Set("feed", "ics-bytes")
	got, ok := c.Get("feed")
	require.True(t, ok)
	assert.Equal(t, "ics-bytes", got)
}

func TestCacheExpiry(t *testing.T) {
	clock := newFakeClock()
	c := New(time.Minute, clock.Now)

	c.Set("feed", "v1")
	clock.Advance(61 * time.Second)

	_, ok := c.Get("feed")
	assert.False(t, ok, "entry past TTL must miss")
	assert.Equal(t, 0, c.Len(), "expired entry is removed on access")
}

func TestCacheClear(t *testing.T) {
	c := New(time.Minute, newFakeClock().Now)
	c.Set("a", 1)
	c.Set("b", 2)
	c.Clear()
	assert.Equal(t, 0, c.Len())
}

func TestCacheSweep(t *testing.T) {
	clock := newFakeClock()
	c := New(time.Minute, clock.Now)

	c.Set("old", 1)
	clock.Advance(30 * time.Second)
	c.Set("new", 2)
	clock.Advance(31 * time.Second)

	assert.Equal(t, 1, c.Sweep(), "only the expired entry is swept")
	_, ok := c.Get("new")
	assert.True(t, ok)
}

func TestInvalidationClearsCache(t *testing.T) {
	clock := newFakeClock()
	c := New(time.Minute, clock.Now)
	bus := NewBus()
	defer func() { _ = bus.Close() }()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	inv := NewInvalidator(bus, c)
	done := make(chan struct{})
	go func() {
		_ = inv.Serve(ctx)
		close(done)
	}()

	c.Set("feed", "v1")
	require.NoError(t, bus.PublishInvalidation("run-1"))

	require.Eventually(t, func() bool {
		return c.Len() == 0
	}, time.Second, 5*time.Millisecond, "invalidation must clear the cache")

	cancel()
	<-done
}
