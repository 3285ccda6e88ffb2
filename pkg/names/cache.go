package names

import (
	"context"
	"slices"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
)

var nameCacheEntries = promauto.NewGauge(prometheus.GaugeOpts{
	Name: "esi_name_cache_entries",
	Help: "Number of type names held in the name cache",
})

// Cache owns the process-lifetime Mapping and runs name batches one at a
// time in the background. A window triggered while a batch is running is
// queued; its missing ids are computed against the mapping as of when its
// batch starts.
//
// Results of a batch become visible together once the whole batch has
// finished. Batches are never aborted by later triggers.
type Cache struct {
	resolver *Resolver
	logger   zerolog.Logger

	ctx    context.Context
	cancel context.CancelFunc

	mu      sync.Mutex
	mapping Mapping
	pending [][]int64
	running bool
	closed  bool
	idle    chan struct{}
}

// NewCache creates an empty Cache.
func NewCache(resolver *Resolver, logger zerolog.Logger) *Cache {
	ctx, cancel := context.WithCancel(context.Background())
	idle := make(chan struct{})
	close(idle)

	return &Cache{
		resolver: resolver,
		logger:   logger.With().Str("component", "name-cache").Logger(),
		ctx:      ctx,
		cancel:   cancel,
		idle:     idle,
	}
}

// Trigger schedules name resolution for window, the ids of the page that
// just became visible. It returns true while names for this window are
// still loading (a batch was queued, or the same window already waits in
// the queue) and false when every id is already resolved.
func (c *Cache) Trigger(window []int64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed || len(window) == 0 {
		return false
	}

	// The mapping only grows, so nothing missing now stays that way.
	if len(Missing(window, c.mapping)) == 0 {
		return false
	}

	for _, queued := range c.pending {
		if slices.Equal(queued, window) {
			return true
		}
	}

	c.pending = append(c.pending, slices.Clone(window))
	c.logger.Debug().Int("window", len(window)).Int("queued", len(c.pending)).Msg("Name batch queued")

	if !c.running {
		c.running = true
		c.idle = make(chan struct{})
		go c.run()
	}
	return true
}

func (c *Cache) run() {
	for {
		c.mu.Lock()
		if len(c.pending) == 0 {
			c.running = false
			close(c.idle)
			c.mu.Unlock()
			return
		}
		window := c.pending[0]
		c.pending = c.pending[1:]
		missing := Missing(window, c.mapping)
		c.mu.Unlock()

		if len(missing) == 0 {
			continue
		}

		fetched := c.resolver.Fetch(c.ctx, missing)

		c.mu.Lock()
		c.mapping = c.mapping.Merge(fetched)
		entries := c.mapping.Len()
		c.mu.Unlock()

		nameCacheEntries.Set(float64(entries))
	}
}

// Loading reports whether a batch is running or queued.
func (c *Cache) Loading() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.running
}

// Snapshot returns the current mapping.
func (c *Cache) Snapshot() Mapping {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.mapping
}

// NameOf returns the resolved name for id, or Placeholder.
func (c *Cache) NameOf(id int64) string {
	return c.Snapshot().NameOf(id)
}

// Wait blocks until no batch is running or queued.
func (c *Cache) Wait(ctx context.Context) error {
	c.mu.Lock()
	idle := c.idle
	c.mu.Unlock()

	select {
	case <-idle:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close drops queued windows, cancels the running batch and waits for it
// to stop. Later triggers are ignored.
func (c *Cache) Close() {
	c.mu.Lock()
	c.closed = true
	c.pending = nil
	c.mu.Unlock()

	c.cancel()
	_ = c.Wait(context.Background())
}
