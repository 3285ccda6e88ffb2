package cache

import (
	"net/http"
	"time"
)

// CacheEntry is a stored ESI response together with its validators.
type CacheEntry struct {
	Data         []byte      `json:"data"`
	ETag         string      `json:"etag"`
	Expires      time.Time   `json:"expires"`
	LastModified time.Time   `json:"last_modified"`
	StatusCode   int         `json:"status_code"`
	Headers      http.Header `json:"headers"`
	CachedAt     time.Time   `json:"cached_at"`
}

// IsExpired returns true once the ESI expires time has passed.
// Expired entries may still be revalidated with a conditional request.
func (e *CacheEntry) IsExpired() bool {
	return !time.Now().Before(e.Expires)
}

// TTL returns the time until expiration, or 0 if already expired.
func (e *CacheEntry) TTL() time.Duration {
	ttl := time.Until(e.Expires)
	if ttl < 0 {
		return 0
	}
	return ttl
}
