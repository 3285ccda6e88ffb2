package cache

import (
	"net/url"
	"sort"
	"strings"
)

// KeyPrefix namespaces every Redis key written by the cache.
const KeyPrefix = "esi:response"

// CacheKey identifies a cached response by request path and query.
type CacheKey struct {
	// Endpoint is the request path, e.g. "/latest/universe/types/34/".
	Endpoint string

	QueryParams url.Values
}

// String generates a deterministic key.
//
//	esi:response:latest/markets/prices
//	esi:response:latest/universe/types/34:language=en
func (k CacheKey) String() string {
	var b strings.Builder
	b.WriteString(KeyPrefix)

	if endpoint := strings.Trim(k.Endpoint, "/"); endpoint != "" {
		b.WriteByte(':')
		b.WriteString(endpoint)
	}

	keys := make([]string, 0, len(k.QueryParams))
	for key := range k.QueryParams {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	for _, key := range keys {
		values := append([]string(nil), k.QueryParams[key]...)
		sort.Strings(values)
		b.WriteByte(':')
		b.WriteString(key)
		b.WriteByte('=')
		b.WriteString(strings.Join(values, ","))
	}

	return b.String()
}
