// Package catalog loads the ESI market price list once and exposes the
// outcome as a LoadState.
package catalog

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/Sternrassler/eve-market-prices/pkg/client"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
)

// PricesEndpoint is the bulk price list route.
const PricesEndpoint = "/markets/prices/"

var (
	catalogRecords = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "esi_catalog_records",
		Help: "Number of price records in the loaded catalog",
	})

	catalogLoadsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "esi_catalog_loads_total",
		Help: "Catalog loads by result",
	}, []string{"result"})
)

// PriceRecord is one entry of the ESI price list. Prices are nil when ESI omits them.
type PriceRecord struct {
	TypeID        int64    `json:"type_id"`
	AveragePrice  *float64 `json:"average_price,omitempty"`
	AdjustedPrice *float64 `json:"adjusted_price,omitempty"`
}

// Fetcher issues one GET and decodes the JSON body. *client.Client implements it.
type Fetcher interface {
	GetJSON(ctx context.Context, endpoint string, v any) error
}

// Phase is the tag of a LoadState.
type Phase int

const (
	Idle Phase = iota
	Loading
	Loaded
	Failed
)

func (p Phase) String() string {
	switch p {
	case Idle:
		return "idle"
	case Loading:
		return "loading"
	case Loaded:
		return "loaded"
	case Failed:
		return "failed"
	default:
		return "unknown"
	}
}

// State is the catalog load state. Records is set only when Phase is
// Loaded and Message only when Phase is Failed. Records must not be modified.
type State struct {
	Phase   Phase
	Records []PriceRecord
	Message string
}

// Settled reports whether the load reached Loaded or Failed.
func (s State) Settled() bool {
	return s.Phase == Loaded || s.Phase == Failed
}

// Loader fetches the price list exactly once.
type Loader struct {
	fetcher Fetcher
	logger  zerolog.Logger

	once sync.Once
	done chan struct{}

	mu    sync.RWMutex
	state State
}

// NewLoader creates an Idle loader.
func NewLoader(fetcher Fetcher, logger zerolog.Logger) *Loader {
	return &Loader{
		fetcher: fetcher,
		logger:  logger.With().Str("component", "catalog").Logger(),
		done:    make(chan struct{}),
	}
}

// Load fetches the catalog on the first call. Later calls wait for that
// load to settle and return its result; there is no refresh.
func (l *Loader) Load(ctx context.Context) State {
	l.once.Do(func() {
		defer close(l.done)
		l.setState(State{Phase: Loading})
		l.setState(l.fetch(ctx))
	})

	select {
	case <-l.done:
	case <-ctx.Done():
	}
	return l.State()
}

// State returns the current state without blocking.
func (l *Loader) State() State {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.state
}

// Done is closed once the load has settled.
func (l *Loader) Done() <-chan struct{} {
	return l.done
}

func (l *Loader) fetch(ctx context.Context) State {
	start := time.Now()

	var records []PriceRecord
	if err := l.fetcher.GetJSON(ctx, PricesEndpoint, &records); err != nil {
		catalogLoadsTotal.WithLabelValues("failed").Inc()
		msg := failureMessage(err)
		l.logger.Error().Err(err).Str("endpoint", PricesEndpoint).Msg("Price catalog load failed")
		return State{Phase: Failed, Message: msg}
	}

	if records == nil {
		records = []PriceRecord{}
	}

	catalogLoadsTotal.WithLabelValues("loaded").Inc()
	catalogRecords.Set(float64(len(records)))
	l.logger.Info().
		Int("records", len(records)).
		Dur("duration", time.Since(start)).
		Msg("Price catalog loaded")

	return State{Phase: Loaded, Records: records}
}

func (l *Loader) setState(s State) {
	l.mu.Lock()
	l.state = s
	l.mu.Unlock()
}

func failureMessage(err error) string {
	var esiErr *client.ESIError
	if errors.As(err, &esiErr) {
		return esiErr.Short()
	}
	if err.Error() == "" {
		return "Unknown error"
	}
	return err.Error()
}
