package run_test

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/ideabank/internal/config"
	"github.com/fyrsmithlabs/ideabank/internal/item"
	"github.com/fyrsmithlabs/ideabank/internal/run"
	"github.com/fyrsmithlabs/ideabank/internal/search"
)

// settableClock advances only when told, unlike fakeClock.
type settableClock struct {
	t time.Time
}

func (c *settableClock) Now() time.Time { return c.t }

func (c *settableClock) Advance(d time.Duration) { c.t = c.t.Add(d) }

func TestCache_GetPut(t *testing.T) {
	clock := &settableClock{t: time.Date(2026, 8, 15, 10, 0, 0, 0, time.UTC)}
	cache := run.NewCache(10*time.Minute, 10, clock.Now)

	snapshot := &run.Run{ID: "run-1", Phase: run.PhaseComplete}
	cache.Put(snapshot)

	got, ok := cache.Get("run-1")
	require.True(t, ok)
	assert.Equal(t, run.PhaseComplete, got.Phase)

	_, ok = cache.Get("missing")
	assert.False(t, ok)
}

func TestCache_ExpiresAfterTTL(t *testing.T) {
	clock := &settableClock{t: time.Date(2026, 8, 15, 10, 0, 0, 0, time.UTC)}
	cache := run.NewCache(10*time.Minute, 10, clock.Now)

	cache.Put(&run.Run{ID: "run-1"})

	clock.Advance(9 * time.Minute)
	_, ok := cache.Get("run-1")
	assert.True(t, ok)

	clock.Advance(2 * time.Minute)
	_, ok = cache.Get("run-1")
	assert.False(t, ok)
	assert.Equal(t, 0, cache.Len())
}

func TestCache_PutRefreshesTTL(t *testing.T) {
	clock := &settableClock{t: time.Date(2026, 8, 15, 10, 0, 0, 0, time.UTC)}
	cache := run.NewCache(10*time.Minute, 10, clock.Now)

	cache.Put(&run.Run{ID: "run-1", Phase: run.PhaseSearching})
	clock.Advance(8 * time.Minute)
	cache.Put(&run.Run{ID: "run-1", Phase: run.PhaseComplete})
	clock.Advance(8 * time.Minute)

	got, ok := cache.Get("run-1")
	require.True(t, ok)
	assert.Equal(t, run.PhaseComplete, got.Phase)
}

func TestCache_EvictsOldestWhenFull(t *testing.T) {
	clock := &settableClock{t: time.Date(2026, 8, 15, 10, 0, 0, 0, time.UTC)}
	cache := run.NewCache(time.Hour, 3, clock.Now)

	for i := 1; i <= 3; i++ {
		cache.Put(&run.Run{ID: fmt.Sprintf("run-%d", i)})
		clock.Advance(time.Minute)
	}
	cache.Put(&run.Run{ID: "run-4"})

	_, ok := cache.Get("run-1")
	assert.False(t, ok, "earliest-expiring entry is evicted")
	_, ok = cache.Get("run-4")
	assert.True(t, ok)
	assert.Equal(t, 3, cache.Len())
}

func TestCache_Delete(t *testing.T) {
	cache := run.NewCache(time.Hour, 10, nil)
	cache.Put(&run.Run{ID: "run-1"})
	cache.Delete("run-1")

	_, ok := cache.Get("run-1")
	assert.False(t, ok)
}

func TestRequest_ApplyDefaults(t *testing.T) {
	cfg := config.Default().Pipeline

	req := run.Request{TimeWindow: testWindow, ItemType: item.TypeIdea}
	req.ApplyDefaults(cfg)

	assert.Equal(t, 5, req.ItemCount)
	assert.Equal(t, 0.85, req.DedupThreshold)
	assert.Equal(t, 0.7, req.Temperature)
	require.NoError(t, req.Validate())
}

func TestRequest_ExplicitZeroTemperature(t *testing.T) {
	cfg := config.Default().Pipeline

	req := run.Request{
		TimeWindow:     testWindow,
		ItemType:       item.TypeIdea,
		Temperature:    0,
		TemperatureSet: true,
	}
	req.ApplyDefaults(cfg)

	assert.Equal(t, 0.0, req.Temperature, "an explicit zero temperature is preserved")
}

func TestRequest_OverridesKept(t *testing.T) {
	cfg := config.Default().Pipeline

	req := run.Request{
		TimeWindow:     search.TimeWindow{Start: testWindow.Start, End: testWindow.End},
		ItemType:       item.TypeUseCase,
		ItemCount:      9,
		DedupThreshold: 0.92,
		Temperature:    0.3,
	}
	req.ApplyDefaults(cfg)

	assert.Equal(t, 9, req.ItemCount)
	assert.Equal(t, 0.92, req.DedupThreshold)
	assert.Equal(t, 0.3, req.Temperature)
}
