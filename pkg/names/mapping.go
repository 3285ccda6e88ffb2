// Package names resolves ESI type ids to item names page by page and
// keeps every resolved name for the life of the process.
package names

import (
	"sort"
)

// Placeholder is shown for ids whose name is not yet known.
const Placeholder = "…"

// Mapping is an immutable typeID -> name set. Merge returns a new Mapping;
// the receiver is never modified, so a Mapping may be shared freely.
type Mapping struct {
	names map[int64]string
}

// NewMapping copies entries into a new Mapping.
func NewMapping(entries map[int64]string) Mapping {
	m := make(map[int64]string, len(entries))
	for id, name := range entries {
		m[id] = name
	}
	return Mapping{names: m}
}

// Lookup returns the name for id.
func (m Mapping) Lookup(id int64) (string, bool) {
	name, ok := m.names[id]
	return name, ok
}

// NameOf returns the name for id, or Placeholder.
func (m Mapping) NameOf(id int64) string {
	if name, ok := m.names[id]; ok {
		return name
	}
	return Placeholder
}

// Has reports whether id is resolved.
func (m Mapping) Has(id int64) bool {
	_, ok := m.names[id]
	return ok
}

// Len returns the number of resolved ids.
func (m Mapping) Len() int {
	return len(m.names)
}

// IDs returns the resolved ids in ascending order.
func (m Mapping) IDs() []int64 {
	ids := make([]int64, 0, len(m.names))
	for id := range m.names {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// Merge returns a Mapping holding m plus every entry of add whose id is
// not already present. Existing names are never overwritten.
// When add contributes nothing, m itself is returned.
func (m Mapping) Merge(add map[int64]string) Mapping {
	fresh := 0
	for id := range add {
		if !m.Has(id) {
			fresh++
		}
	}
	if fresh == 0 {
		return m
	}

	merged := make(map[int64]string, len(m.names)+fresh)
	for id, name := range m.names {
		merged[id] = name
	}
	for id, name := range add {
		if _, ok := merged[id]; !ok {
			merged[id] = name
		}
	}
	return Mapping{names: merged}
}

// Missing returns the ids of window absent from m, in window order and
// without duplicates.
func Missing(window []int64, m Mapping) []int64 {
	var missing []int64
	seen := make(map[int64]struct{}, len(window))
	for _, id := range window {
		if m.Has(id) {
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		missing = append(missing, id)
	}
	return missing
}
