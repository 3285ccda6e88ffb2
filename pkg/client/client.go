// Package client provides the ESI HTTP client used to fetch the market
// price catalog and type names. Redis-backed response caching and
// error-limit gating are enabled when a Redis client is configured.
package client

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/Sternrassler/eve-market-prices/pkg/cache"
	"github.com/Sternrassler/eve-market-prices/pkg/ratelimit"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// DefaultBaseURL is the public ESI root including the route version.
const DefaultBaseURL = "https://esi.evetech.net/latest"

// Prometheus metrics for ESI client operations.
var (
	esiRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "esi_requests_total",
		Help: "Total ESI requests by endpoint and status",
	}, []string{"endpoint", "status"})

	esiRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "esi_request_duration_seconds",
		Help:    "ESI request duration in seconds by endpoint",
		Buckets: []float64{0.1, 0.5, 1, 2, 5, 10},
	}, []string{"endpoint"})

	esiErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "esi_errors_total",
		Help: "Total ESI errors by class",
	}, []string{"class"})
)

// Client is the ESI client. It is safe for concurrent use.
type Client struct {
	httpClient  *http.Client
	baseURL     string
	rateLimiter *ratelimit.Tracker
	cache       *cache.Manager
	config      Config
	logger      zerolog.Logger
}

// Config holds the client configuration.
type Config struct {
	// BaseURL is the ESI root, e.g. "https://esi.evetech.net/latest".
	BaseURL string

	// Redis enables the response cache and shared error-limit state.
	// Nil disables both.
	Redis *redis.Client

	// User-Agent header (REQUIRED by ESI)
	// Format: "AppName/Version (contact@example.com)"
	UserAgent string

	// ErrorThreshold blocks requests while fewer errors than this remain.
	ErrorThreshold int

	// RespectExpires must be true; ESI bans clients that ignore expires.
	RespectExpires bool

	// Timeout per HTTP request. No retries are made.
	Timeout time.Duration
}

// DefaultConfig returns a safe default configuration without Redis.
func DefaultConfig(userAgent string) Config {
	return Config{
		BaseURL:        DefaultBaseURL,
		UserAgent:      userAgent,
		ErrorThreshold: ratelimit.DefaultThresholds().Critical,
		RespectExpires: true,
		Timeout:        30 * time.Second,
	}
}

// New creates a new ESI client.
func New(cfg Config) (*Client, error) {
	if cfg.UserAgent == "" {
		return nil, fmt.Errorf("user-agent is required")
	}

	if !cfg.RespectExpires {
		return nil, fmt.Errorf("respect_expires must be true (ESI requirement)")
	}

	if cfg.ErrorThreshold < 5 {
		return nil, fmt.Errorf("error_threshold must be >= 5 (got %d)", cfg.ErrorThreshold)
	}

	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if _, err := url.ParseRequestURI(cfg.BaseURL); err != nil {
		return nil, fmt.Errorf("invalid base url %q: %w", cfg.BaseURL, err)
	}

	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}

	logger := log.With().Str("component", "esi-client").Logger()

	c := &Client{
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		config:  cfg,
		logger:  logger,
	}

	if cfg.Redis != nil {
		thresholds := ratelimit.DefaultThresholds()
		thresholds.Critical = cfg.ErrorThreshold
		c.rateLimiter = ratelimit.NewTracker(cfg.Redis, thresholds, logger)
		c.cache = cache.NewManager(cfg.Redis)
	}

	return c, nil
}

// Do performs a single HTTP request with error-limit gating and response caching.
// Responses with status >= 400 are returned as-is; only transport failures
// and blocked requests produce an error.
func (c *Client) Do(req *http.Request) (*http.Response, error) {
	ctx := req.Context()
	endpoint := endpointLabel(req.URL.Path)

	startTime := time.Now()
	defer func() {
		esiRequestDuration.WithLabelValues(endpoint).Observe(time.Since(startTime).Seconds())
	}()

	if c.rateLimiter != nil {
		allowed, err := c.rateLimiter.ShouldAllowRequest(ctx)
		if err != nil {
			c.logger.Error().Err(err).Msg("Rate limit check failed")
			return nil, fmt.Errorf("rate limit check: %w", err)
		}
		if !allowed {
			c.logger.Warn().Str("endpoint", endpoint).Msg("Request blocked by rate limiter")
			esiRequestsTotal.WithLabelValues(endpoint, "rate_limited").Inc()
			return nil, ErrRequestBlocked
		}
	}

	cacheKey := cache.CacheKey{
		Endpoint:    req.URL.Path,
		QueryParams: req.URL.Query(),
	}

	var cachedEntry *cache.CacheEntry
	if c.cache != nil {
		entry, err := c.cache.Get(ctx, cacheKey)
		if err != nil && err != cache.ErrCacheMiss {
			c.logger.Warn().Err(err).Str("endpoint", endpoint).Msg("Cache get error")
		}
		cachedEntry = entry
	}

	if cachedEntry != nil && !cachedEntry.IsExpired() {
		c.logger.Debug().Str("endpoint", endpoint).Dur("ttl", cachedEntry.TTL()).Msg("Serving fresh cache entry")
		esiRequestsTotal.WithLabelValues(endpoint, "cached").Inc()
		return cache.EntryToResponse(cachedEntry), nil
	}

	if cachedEntry != nil && cache.ShouldMakeConditionalRequest(cachedEntry) {
		cache.AddConditionalHeaders(req, cachedEntry)
		cache.ConditionalRequests.Inc()
		c.logger.Debug().
			Str("endpoint", endpoint).
			Str("etag", cachedEntry.ETag).
			Msg("Making conditional request")
	}

	req.Header.Set("User-Agent", c.config.UserAgent)
	req.Header.Set("Accept", "application/json")

	c.logger.Debug().
		Str("endpoint", endpoint).
		Str("method", req.Method).
		Msg("Executing ESI request")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Warn().Err(err).Str("endpoint", endpoint).Msg("HTTP request failed")
		esiErrorsTotal.WithLabelValues(string(ErrorClassNetwork)).Inc()
		esiRequestsTotal.WithLabelValues(endpoint, "network_error").Inc()
		return nil, &ESIError{
			ErrorClass: ErrorClassNetwork,
			Message:    "request failed",
			Err:        err,
		}
	}

	if c.rateLimiter != nil {
		if err := c.rateLimiter.UpdateFromHeaders(ctx, resp.Header); err != nil {
			c.logger.Warn().Err(err).Msg("Failed to update rate limit from headers")
		}
	}

	if resp.StatusCode == http.StatusNotModified && cachedEntry != nil {
		c.logger.Debug().Str("endpoint", endpoint).Msg("304 Not Modified - using cache")
		esiRequestsTotal.WithLabelValues(endpoint, "304").Inc()
		cache.NotModifiedResponses.Inc()

		if expiresStr := resp.Header.Get("Expires"); expiresStr != "" {
			if newExpires, err := http.ParseTime(expiresStr); err == nil {
				cachedEntry.Expires = newExpires
				if err := c.cache.Set(ctx, cacheKey, cachedEntry); err != nil {
					c.logger.Warn().Err(err).Msg("Failed to update cache TTL")
				}
			}
		}

		resp.Body.Close()
		return cache.EntryToResponse(cachedEntry), nil
	}

	esiRequestsTotal.WithLabelValues(endpoint, strconv.Itoa(resp.StatusCode)).Inc()

	if resp.StatusCode >= 400 {
		errClass := ClassifyStatus(resp.StatusCode)
		esiErrorsTotal.WithLabelValues(string(errClass)).Inc()
		c.logger.Warn().
			Str("endpoint", endpoint).
			Int("status", resp.StatusCode).
			Str("error_class", string(errClass)).
			Msg("ESI request error")
		return resp, nil
	}

	if c.cache != nil && resp.StatusCode == http.StatusOK {
		entry, err := cache.ResponseToEntry(resp)
		if err != nil {
			c.logger.Warn().Err(err).Msg("Failed to create cache entry")
		} else if err := c.cache.Set(ctx, cacheKey, entry); err != nil {
			c.logger.Warn().Err(err).Msg("Failed to cache response")
		} else {
			c.logger.Debug().
				Str("endpoint", endpoint).
				Dur("ttl", entry.TTL()).
				Msg("Cached response")
		}
	}

	return resp, nil
}

// Get performs a GET request to an ESI endpoint relative to the base URL,
// e.g. "/markets/prices/".
func (c *Client) Get(ctx context.Context, endpoint string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	return c.Do(req)
}

// GetJSON fetches endpoint and decodes the JSON body into v.
// Any non-2xx response is returned as an *ESIError.
func (c *Client) GetJSON(ctx context.Context, endpoint string, v any) error {
	resp, err := c.Get(ctx, endpoint)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &ESIError{
			StatusCode: resp.StatusCode,
			ErrorClass: ClassifyStatus(resp.StatusCode),
			Message:    resp.Status,
		}
	}

	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		return fmt.Errorf("decode %s: %w", endpoint, err)
	}
	return nil
}

// Close releases idle connections.
func (c *Client) Close() error {
	c.httpClient.CloseIdleConnections()
	return nil
}

// SetHTTPClient sets a custom HTTP client (for testing).
func (c *Client) SetHTTPClient(client *http.Client) {
	c.httpClient = client
}

// GetCache returns the cache manager, nil when Redis is not configured.
func (c *Client) GetCache() *cache.Manager {
	return c.cache
}

// endpointLabel collapses numeric path segments so per-id routes share one
// metric label: /latest/universe/types/34/ -> /latest/universe/types/{id}/
func endpointLabel(path string) string {
	segments := strings.Split(path, "/")
	for i, s := range segments {
		if s == "" {
			continue
		}
		if _, err := strconv.ParseInt(s, 10, 64); err == nil {
			segments[i] = "{id}"
		}
	}
	return strings.Join(segments, "/")
}
