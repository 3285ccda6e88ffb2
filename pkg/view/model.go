// Package view is the presentation boundary of the price table: it joins
// the loaded catalog, the current page and the name cache into plain
// values a renderer can draw.
package view

import (
	"context"
	"strconv"
	"sync"

	"github.com/Sternrassler/eve-market-prices/pkg/catalog"
	"github.com/Sternrassler/eve-market-prices/pkg/names"
	"github.com/Sternrassler/eve-market-prices/pkg/pagination"
	"github.com/rs/zerolog"
)

// NotAvailable is rendered for prices ESI did not report.
const NotAvailable = "n/a"

// Config holds view settings.
type Config struct {
	PageSize int
}

// DefaultConfig returns 15 rows per page.
func DefaultConfig() Config {
	return Config{PageSize: pagination.DefaultPageSize}
}

// Model holds the page position and drives name resolution. Every page
// change triggers exactly one resolution request for the new window.
type Model struct {
	loader   *catalog.Loader
	names    *names.Cache
	pageSize int
	logger   zerolog.Logger

	mu    sync.Mutex
	nav   pagination.Navigator
	ready bool
}

// New creates a Model. Call Start to load the catalog.
func New(loader *catalog.Loader, nameCache *names.Cache, cfg Config, logger zerolog.Logger) *Model {
	if cfg.PageSize <= 0 {
		cfg.PageSize = pagination.DefaultPageSize
	}
	return &Model{
		loader:   loader,
		names:    nameCache,
		pageSize: cfg.PageSize,
		logger:   logger.With().Str("component", "view").Logger(),
	}
}

// Start loads the catalog and, once loaded, requests names for page 1.
// No names are requested when the load fails. Calling Start again only
// returns the load state.
func (m *Model) Start(ctx context.Context) catalog.State {
	state := m.loader.Load(ctx)
	if state.Phase != catalog.Loaded {
		return state
	}

	m.mu.Lock()
	if m.ready {
		m.mu.Unlock()
		return state
	}
	m.nav = pagination.NewNavigator(pagination.TotalPages(len(state.Records), m.pageSize))
	m.ready = true
	m.mu.Unlock()

	m.logger.Info().
		Int("records", len(state.Records)).
		Int("pages", m.TotalPages()).
		Msg("Price table ready")

	m.windowChanged()
	return state
}

// GoToPage moves to page clamped into [1, TotalPages] and returns the page shown.
func (m *Model) GoToPage(page int) int {
	return m.move(func(nav *pagination.Navigator) bool { return nav.GoTo(page) })
}

// Next moves forward one page; a no-op on the last page.
func (m *Model) Next() int {
	return m.move((*pagination.Navigator).Next)
}

// Prev moves back one page; a no-op on page 1.
func (m *Model) Prev() int {
	return m.move((*pagination.Navigator).Prev)
}

func (m *Model) move(step func(*pagination.Navigator) bool) int {
	m.mu.Lock()
	if !m.ready {
		m.mu.Unlock()
		return 1
	}
	changed := step(&m.nav)
	page := m.nav.Page()
	m.mu.Unlock()

	if changed {
		m.logger.Debug().Int("page", page).Msg("Page changed")
		m.windowChanged()
	}
	return page
}

func (m *Model) windowChanged() {
	items := m.PageItems()
	window := make([]int64, len(items))
	for i, r := range items {
		window[i] = r.TypeID
	}
	m.names.Trigger(window)
}

// LoadState returns the catalog load state.
func (m *Model) LoadState() catalog.State {
	return m.loader.State()
}

// Page returns the current page number.
func (m *Model) Page() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.nav.Page()
}

// TotalPages returns the page count, at least 1.
func (m *Model) TotalPages() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.nav.Total()
}

// PageItems returns the records of the current page; empty until loaded.
func (m *Model) PageItems() []catalog.PriceRecord {
	state := m.loader.State()
	if state.Phase != catalog.Loaded {
		return nil
	}
	return pagination.PageOf(state.Records, m.Page(), m.pageSize)
}

// NameOf returns the resolved name for id, or names.Placeholder.
func (m *Model) NameOf(id int64) string {
	return m.names.NameOf(id)
}

// NamesLoading reports whether a name batch is in flight.
func (m *Model) NamesLoading() bool {
	return m.names.Loading()
}

// Row is one formatted table row.
type Row struct {
	Name          string `json:"name"`
	TypeID        int64  `json:"type_id"`
	AveragePrice  string `json:"average_price"`
	AdjustedPrice string `json:"adjusted_price"`
	Resolved      bool   `json:"resolved"`
}

// Snapshot is everything a renderer needs, read consistently.
type Snapshot struct {
	Status       string `json:"status"`
	Error        string `json:"error,omitempty"`
	Page         int    `json:"page"`
	TotalPages   int    `json:"total_pages"`
	PageSize     int    `json:"page_size"`
	HasPrev      bool   `json:"has_prev"`
	HasNext      bool   `json:"has_next"`
	NamesLoading bool   `json:"names_loading"`
	Items        []Row  `json:"items"`
}

// Snapshot returns the current view.
func (m *Model) Snapshot() Snapshot {
	state := m.loader.State()
	snap := Snapshot{
		Status:   state.Phase.String(),
		PageSize: m.pageSize,
		Items:    []Row{},
	}

	if state.Phase == catalog.Failed {
		snap.Error = state.Message
	}
	if state.Phase != catalog.Loaded {
		return snap
	}

	m.mu.Lock()
	nav := m.nav
	m.mu.Unlock()

	snap.Page = nav.Page()
	snap.TotalPages = nav.Total()
	snap.HasPrev = nav.HasPrev()
	snap.HasNext = nav.HasNext()
	snap.NamesLoading = m.names.Loading()

	mapping := m.names.Snapshot()
	for _, r := range pagination.PageOf(state.Records, snap.Page, m.pageSize) {
		name, ok := mapping.Lookup(r.TypeID)
		if !ok {
			name = names.Placeholder
		}
		snap.Items = append(snap.Items, Row{
			Name:          name,
			TypeID:        r.TypeID,
			AveragePrice:  FormatPrice(r.AveragePrice),
			AdjustedPrice: FormatPrice(r.AdjustedPrice),
			Resolved:      ok,
		})
	}
	return snap
}

// FormatPrice renders a price with two decimals, or NotAvailable.
func FormatPrice(p *float64) string {
	if p == nil {
		return NotAvailable
	}
	return strconv.FormatFloat(*p, 'f', 2, 64)
}
