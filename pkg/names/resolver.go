package names

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
)

var (
	nameLookupsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "esi_name_lookups_total",
		Help: "Type name lookups by result",
	}, []string{"result"})

	nameBatchesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "esi_name_batches_total",
		Help: "Name resolution batches executed",
	})

	nameBatchDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "esi_name_batch_duration_seconds",
		Help:    "Duration of name resolution batches",
		Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30},
	})
)

// Fetcher issues one GET and decodes the JSON body. *client.Client implements it.
type Fetcher interface {
	GetJSON(ctx context.Context, endpoint string, v any) error
}

// TypeEndpoint returns the lookup route for a type id.
func TypeEndpoint(typeID int64) string {
	return fmt.Sprintf("/universe/types/%d/", typeID)
}

type typeInfo struct {
	TypeID int64  `json:"type_id"`
	Name   string `json:"name"`
}

// Config controls how a batch is fetched.
type Config struct {
	// Concurrency bounds parallel lookups within one batch.
	// 1 or less fetches strictly in window order.
	Concurrency int

	// RateLimit caps lookups per second across all batches; 0 means no cap.
	RateLimit float64

	// Burst is the limiter bucket size, at least 1.
	Burst int
}

// DefaultConfig fetches sequentially.
func DefaultConfig() Config {
	return Config{Concurrency: 1}
}

// Resolver fetches names for a batch of ids. Individual lookup failures
// are logged and skipped; a batch never returns an error.
type Resolver struct {
	fetcher Fetcher
	config  Config
	limiter *rate.Limiter
	logger  zerolog.Logger
}

// NewResolver creates a Resolver.
func NewResolver(fetcher Fetcher, cfg Config, logger zerolog.Logger) *Resolver {
	r := &Resolver{
		fetcher: fetcher,
		config:  cfg,
		logger:  logger.With().Str("component", "names").Logger(),
	}
	if cfg.RateLimit > 0 {
		r.limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), max(cfg.Burst, 1))
	}
	return r
}

// Resolve looks up every id of window missing from m and returns m with
// the successful lookups merged in. m is returned unchanged, with no
// network calls, when nothing is missing.
func (r *Resolver) Resolve(ctx context.Context, window []int64, m Mapping) Mapping {
	missing := Missing(window, m)
	if len(missing) == 0 {
		return m
	}
	return m.Merge(r.Fetch(ctx, missing))
}

// Fetch looks up each id once and returns the names that resolved.
func (r *Resolver) Fetch(ctx context.Context, ids []int64) map[int64]string {
	start := time.Now()

	var fetched map[int64]string
	if r.config.Concurrency <= 1 || len(ids) < 2 {
		fetched = r.fetchSequential(ctx, ids)
	} else {
		fetched = r.fetchConcurrent(ctx, ids)
	}

	nameBatchesTotal.Inc()
	nameBatchDuration.Observe(time.Since(start).Seconds())

	r.logger.Info().
		Int("missing", len(ids)).
		Int("resolved", len(fetched)).
		Dur("duration", time.Since(start)).
		Msg("Name batch complete")

	return fetched
}

func (r *Resolver) fetchSequential(ctx context.Context, ids []int64) map[int64]string {
	fetched := make(map[int64]string, len(ids))
	for _, id := range ids {
		if ctx.Err() != nil {
			r.logger.Debug().Int("skipped", len(ids)-len(fetched)).Msg("Batch cancelled")
			break
		}
		if name, ok := r.lookup(ctx, id); ok {
			fetched[id] = name
		}
	}
	return fetched
}

func (r *Resolver) fetchConcurrent(ctx context.Context, ids []int64) map[int64]string {
	fetched := make(map[int64]string, len(ids))
	var mu sync.Mutex

	var g errgroup.Group
	g.SetLimit(r.config.Concurrency)

	for _, id := range ids {
		g.Go(func() error {
			if ctx.Err() != nil {
				return nil
			}
			if name, ok := r.lookup(ctx, id); ok {
				mu.Lock()
				fetched[id] = name
				mu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait() // lookups never return errors

	return fetched
}

func (r *Resolver) lookup(ctx context.Context, id int64) (string, bool) {
	if r.limiter != nil {
		if err := r.limiter.Wait(ctx); err != nil {
			r.logger.Debug().Err(err).Int64("type_id", id).Msg("Lookup not started")
			return "", false
		}
	}

	var info typeInfo
	if err := r.fetcher.GetJSON(ctx, TypeEndpoint(id), &info); err != nil {
		nameLookupsTotal.WithLabelValues("failed").Inc()
		r.logger.Warn().Err(err).Int64("type_id", id).Msg("Type name lookup failed")
		return "", false
	}

	if info.Name == "" {
		nameLookupsTotal.WithLabelValues("empty").Inc()
		r.logger.Warn().Int64("type_id", id).Msg("Type lookup returned no name")
		return "", false
	}

	nameLookupsTotal.WithLabelValues("ok").Inc()
	r.logger.Debug().Int64("type_id", id).Str("name", info.Name).Msg("Type name resolved")
	return info.Name, true
}
