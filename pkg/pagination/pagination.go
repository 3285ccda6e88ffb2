// Package pagination slices an ordered record sequence into fixed-size
// pages. Everything here is pure; callers own the current page number.
package pagination

// DefaultPageSize is the number of rows shown per page.
const DefaultPageSize = 15

// normalize maps non-positive page sizes to DefaultPageSize.
func normalize(pageSize int) int {
	if pageSize <= 0 {
		return DefaultPageSize
	}
	return pageSize
}

// TotalPages returns max(1, ceil(n/pageSize)). An empty sequence has one empty page.
func TotalPages(n, pageSize int) int {
	pageSize = normalize(pageSize)
	if n <= 0 {
		return 1
	}
	return (n-1)/pageSize + 1
}

// PageOf returns records[(page-1)*pageSize : page*pageSize] clipped to bounds.
// The result shares the backing array with records.
func PageOf[T any](records []T, page, pageSize int) []T {
	pageSize = normalize(pageSize)
	if page < 1 || len(records) == 0 || page-1 > (len(records)-1)/pageSize {
		return records[:0:0]
	}

	// start < len(records) here, so neither start nor end can overflow.
	start := (page - 1) * pageSize
	end := start + min(pageSize, len(records)-start)
	return records[start:end:end]
}

// Clamp forces page into [1, total].
func Clamp(page, total int) int {
	if total < 1 {
		total = 1
	}
	switch {
	case page < 1:
		return 1
	case page > total:
		return total
	default:
		return page
	}
}

// Navigator tracks the current page within a fixed page count.
// The zero value is page 1 of 1.
type Navigator struct {
	page  int
	total int
}

// NewNavigator returns a navigator on page 1 of total.
func NewNavigator(total int) Navigator {
	n := Navigator{page: 1}
	n.SetTotal(total)
	return n
}

// Page returns the current page, starting at 1.
func (n Navigator) Page() int {
	return Clamp(n.page, n.total)
}

// Total returns the page count, at least 1.
func (n Navigator) Total() int {
	if n.total < 1 {
		return 1
	}
	return n.total
}

// HasPrev reports whether Prev would move.
func (n Navigator) HasPrev() bool {
	return n.Page() > 1
}

// HasNext reports whether Next would move.
func (n Navigator) HasNext() bool {
	return n.Page() < n.Total()
}

// GoTo moves to page clamped into range and reports whether the page changed.
func (n *Navigator) GoTo(page int) bool {
	prev := n.Page()
	n.page = Clamp(page, n.Total())
	return n.page != prev
}

// Next moves forward one page; a no-op on the last page.
func (n *Navigator) Next() bool {
	if !n.HasNext() {
		return false
	}
	return n.GoTo(n.Page() + 1)
}

// Prev moves back one page; a no-op on page 1.
func (n *Navigator) Prev() bool {
	return n.GoTo(n.Page() - 1)
}

// SetTotal changes the page count and re-clamps the current page.
func (n *Navigator) SetTotal(total int) bool {
	prev := n.Page()
	n.total = total
	n.page = Clamp(n.page, n.Total())
	return n.page != prev
}
