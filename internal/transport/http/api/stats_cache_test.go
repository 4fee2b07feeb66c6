package apihttp

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func constLoad(v any) func(context.Context) (any, error) {
	return func(context.Context) (any, error) { return v, nil }
}

func TestStatsCache_BoundedByDistinctQueries(t *testing.T) {
	c := newStatsCache(64)
	ctx := context.Background()
	for i := 0; i < 10000; i++ {
		_, err := c.get(fmt.Sprintf("wallet:0x%04x", i), constLoad(i)).GetOrRefresh(ctx, time.Minute)
		require.NoError(t, err)
	}
	assert.Equal(t, 64, c.len())

	c.invalidate()
	assert.Zero(t, c.len(), "invalidate drops entries instead of keeping them around")
}

func TestStatsCache_EvictsLeastRecentlyUsed(t *testing.T) {
	now := time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)
	c := newStatsCache(2)
	c.nowFn = func() time.Time { return now }

	a := c.get("a", constLoad("a"))
	now = now.Add(time.Second)
	c.get("b", constLoad("b"))
	now = now.Add(time.Second)
	assert.Same(t, a, c.get("a", constLoad("a2")), "hit keeps the existing value")

	now = now.Add(time.Second)
	c.get("c", constLoad("c"))
	assert.Equal(t, 2, c.len())
	assert.Same(t, a, c.get("a", constLoad("a3")))

	got, err := c.get("b", constLoad("b2")).GetOrRefresh(context.Background(), time.Minute)
	require.NoError(t, err)
	assert.Equal(t, "b2", got, "b was the oldest entry and had to reload")
}

func TestStatsCache_InvalidateForcesReload(t *testing.T) {
	c := newStatsCache(0)
	ctx := context.Background()
	calls := 0
	load := func(context.Context) (any, error) {
		calls++
		return calls, nil
	}
	_, err := c.get("global", load).GetOrRefresh(ctx, time.Hour)
	require.NoError(t, err)
	_, err = c.get("global", load).GetOrRefresh(ctx, time.Hour)
	require.NoError(t, err)
	assert.Equal(t, 1, calls)

	c.invalidate()
	got, err := c.get("global", load).GetOrRefresh(ctx, time.Hour)
	require.NoError(t, err)
	assert.Equal(t, 2, got)
}
