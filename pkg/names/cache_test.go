package names

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestCache(t *testing.T, esi *fakeESI) *Cache {
	t.Helper()
	c := NewCache(NewResolver(esi, DefaultConfig(), zerolog.Nop()), zerolog.Nop())
	t.Cleanup(c.Close)
	return c
}

func waitIdle(t *testing.T, c *Cache) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, c.Wait(ctx))
}

func TestCache_TriggerResolvesWindow(t *testing.T) {
	esi := newFakeESI(map[int64]string{34: "Tritanium", 35: "Pyerite"})
	c := newTestCache(t, esi)

	assert.True(t, c.Trigger([]int64{34, 35}))
	waitIdle(t, c)

	assert.False(t, c.Loading())
	assert.Equal(t, "Tritanium", c.NameOf(34))
	assert.Equal(t, "Pyerite", c.NameOf(35))
}

func TestCache_ResolvedWindowIsNoop(t *testing.T) {
	esi := newFakeESI(map[int64]string{1: "a", 2: "b"})
	c := newTestCache(t, esi)

	c.Trigger([]int64{1, 2})
	waitIdle(t, c)

	assert.False(t, c.Trigger([]int64{2, 1}), "fully resolved window should not start a batch")
	assert.False(t, c.Loading())
	assert.Len(t, esi.Calls(), 2)
}

func TestCache_EmptyWindowIsNoop(t *testing.T) {
	esi := newFakeESI(nil)
	c := newTestCache(t, esi)

	assert.False(t, c.Trigger(nil))
	assert.False(t, c.Loading())
	assert.Empty(t, esi.Calls())
}

func TestCache_BatchMergesAtomically(t *testing.T) {
	esi := newFakeESI(map[int64]string{4: "four", 5: "five"})
	esi.gate = make(chan struct{})
	esi.started = make(chan int64, 2)
	c := newTestCache(t, esi)

	require.True(t, c.Trigger([]int64{4, 5}))

	// id 4 has been fetched, id 5 is in flight
	<-esi.started
	esi.gate <- struct{}{}
	<-esi.started

	assert.True(t, c.Loading())
	snap := c.Snapshot()
	assert.False(t, snap.Has(4), "partial batch must not be visible")
	assert.False(t, snap.Has(5))

	esi.gate <- struct{}{}
	waitIdle(t, c)

	snap = c.Snapshot()
	assert.True(t, snap.Has(4))
	assert.True(t, snap.Has(5))
}

func TestCache_BatchesDoNotInterleave(t *testing.T) {
	esi := newFakeESI(map[int64]string{1: "a", 2: "b", 3: "c", 4: "d"})
	esi.gate = make(chan struct{})
	esi.started = make(chan int64, 8)
	c := newTestCache(t, esi)

	c.Trigger([]int64{1, 2})
	<-esi.started // batch 1 blocked on id 1

	// page change while batch 1 is in flight; overlaps on id 2
	assert.True(t, c.Trigger([]int64{2, 3, 4}))

	for i := 0; i < 4; i++ {
		esi.gate <- struct{}{}
		if i < 3 {
			<-esi.started
		}
	}
	waitIdle(t, c)

	assert.Equal(t, []int64{1, 2, 3, 4}, esi.Calls(), "second batch must start after the first and skip id 2")
	assert.Equal(t, 4, c.Snapshot().Len())
}

func TestCache_QueuedDuplicateWindowCoalesced(t *testing.T) {
	esi := newFakeESI(map[int64]string{1: "a", 2: "b", 3: "c"})
	esi.gate = make(chan struct{})
	esi.started = make(chan int64, 8)
	c := newTestCache(t, esi)

	c.Trigger([]int64{1})
	<-esi.started

	assert.True(t, c.Trigger([]int64{2, 3}))
	assert.True(t, c.Trigger([]int64{2, 3}))

	for i := 0; i < 3; i++ {
		esi.gate <- struct{}{}
		if i < 2 {
			<-esi.started
		}
	}
	waitIdle(t, c)

	assert.Equal(t, []int64{1, 2, 3}, esi.Calls())
}

func TestCache_FailedIDRetriedOnlyOnNewTrigger(t *testing.T) {
	esi := newFakeESI(map[int64]string{1: "Tritanium"})
	c := newTestCache(t, esi)
	page := []int64{1, 999}

	c.Trigger(page)
	waitIdle(t, c)

	assert.Equal(t, Placeholder, c.NameOf(999))
	assert.Equal(t, 1, esi.CallCount(999))

	// nothing retries on its own
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, 1, esi.CallCount(999))
	assert.False(t, c.Loading())

	// revisiting the page re-attempts the failed id only
	assert.True(t, c.Trigger(page))
	waitIdle(t, c)

	assert.Equal(t, 2, esi.CallCount(999))
	assert.Equal(t, 1, esi.CallCount(1))
	assert.Equal(t, Placeholder, c.NameOf(999))
}

func TestCache_MonotonicAcrossTriggers(t *testing.T) {
	names := map[int64]string{}
	for id := int64(1); id <= 45; id++ {
		if id%7 != 0 {
			names[id] = "item"
		}
	}
	esi := newFakeESI(names)
	c := newTestCache(t, esi)

	var prev []int64
	for _, page := range [][]int64{{1, 2, 3, 7}, {14, 15, 16}, {1, 2}, {21, 22, 45}, {7, 14}} {
		c.Trigger(page)
		waitIdle(t, c)

		ids := c.Snapshot().IDs()
		assert.Subset(t, ids, prev)
		prev = ids
	}
}

func TestCache_CloseStopsTriggers(t *testing.T) {
	esi := newFakeESI(map[int64]string{1: "a"})
	c := NewCache(NewResolver(esi, DefaultConfig(), zerolog.Nop()), zerolog.Nop())

	c.Close()

	assert.False(t, c.Trigger([]int64{1}))
	assert.Empty(t, esi.Calls())
}

func TestCache_CloseCancelsInFlightBatch(t *testing.T) {
	esi := newFakeESI(map[int64]string{1: "a", 2: "b"})
	esi.gate = make(chan struct{})
	esi.started = make(chan int64, 2)
	c := NewCache(NewResolver(esi, DefaultConfig(), zerolog.Nop()), zerolog.Nop())

	c.Trigger([]int64{1, 2})
	<-esi.started

	done := make(chan struct{})
	go func() {
		c.Close()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Close did not cancel the running batch")
	}
	assert.False(t, c.Loading())
	assert.Equal(t, []int64{1}, esi.Calls())
}
