package ratelimit

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

var (
	esiErrorsRemaining = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "esi_errors_remaining",
		Help: "Number of errors remaining in current ESI error limit window",
	})

	esiRateLimitDecisions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "esi_rate_limit_decisions_total",
		Help: "Requests evaluated against the ESI error limit by decision",
	}, []string{"decision"})
)

// DefaultThrottleDelay is the pause applied to requests in the warning band.
const DefaultThrottleDelay = time.Second

// ParseHeaders extracts the error-limit state from an ESI response.
// ok is false when the response carries no error-limit headers.
func ParseHeaders(headers http.Header, now time.Time) (state *State, ok bool, err error) {
	remainStr := headers.Get("X-ESI-Error-Limit-Remain")
	if remainStr == "" {
		return nil, false, nil
	}

	remain, err := strconv.Atoi(remainStr)
	if err != nil {
		return nil, false, fmt.Errorf("parse X-ESI-Error-Limit-Remain header: %w", err)
	}

	resetStr := headers.Get("X-ESI-Error-Limit-Reset")
	if resetStr == "" {
		return nil, false, fmt.Errorf("X-ESI-Error-Limit-Reset header missing")
	}

	resetSeconds, err := strconv.Atoi(resetStr)
	if err != nil {
		return nil, false, fmt.Errorf("parse X-ESI-Error-Limit-Reset header: %w", err)
	}

	return &State{
		ErrorsRemaining: remain,
		ResetAt:         now.Add(time.Duration(resetSeconds) * time.Second),
		LastUpdate:      now,
	}, true, nil
}

// Tracker keeps the error-limit state in Redis so every process sharing
// the same outbound IP sees the same budget.
type Tracker struct {
	redis         *redis.Client
	thresholds    Thresholds
	throttleDelay time.Duration
	logger        zerolog.Logger
}

// NewTracker creates a new rate limit tracker.
func NewTracker(redisClient *redis.Client, thresholds Thresholds, logger zerolog.Logger) *Tracker {
	return &Tracker{
		redis:         redisClient,
		thresholds:    thresholds,
		throttleDelay: DefaultThrottleDelay,
		logger:        logger,
	}
}

// GetState returns the stored state, or a healthy default when none exists.
func (t *Tracker) GetState(ctx context.Context) (*State, error) {
	fields, err := t.redis.HGetAll(ctx, RedisKey).Result()
	if err != nil {
		return nil, fmt.Errorf("get error limit state: %w", err)
	}

	if len(fields) == 0 {
		now := time.Now()
		return &State{
			ErrorsRemaining: 100,
			ResetAt:         now.Add(60 * time.Second),
			LastUpdate:      now,
		}, nil
	}

	remain, err := strconv.Atoi(fields["remain"])
	if err != nil {
		return nil, fmt.Errorf("parse stored remain: %w", err)
	}
	reset, err := strconv.ParseInt(fields["reset"], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("parse stored reset: %w", err)
	}
	updated, err := strconv.ParseInt(fields["updated"], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("parse stored update time: %w", err)
	}

	return &State{
		ErrorsRemaining: remain,
		ResetAt:         time.Unix(reset, 0),
		LastUpdate:      time.UnixMilli(updated),
	}, nil
}

// UpdateFromHeaders stores the state carried by an ESI response.
// Responses without error-limit headers are ignored.
func (t *Tracker) UpdateFromHeaders(ctx context.Context, headers http.Header) error {
	state, ok, err := ParseHeaders(headers, time.Now())
	if err != nil || !ok {
		return err
	}

	// The key outlives the window slightly so a stale block never sticks.
	pipe := t.redis.TxPipeline()
	pipe.HSet(ctx, RedisKey,
		"remain", state.ErrorsRemaining,
		"reset", state.ResetAt.Unix(),
		"updated", state.LastUpdate.UnixMilli(),
	)
	pipe.Expire(ctx, RedisKey, state.TimeUntilReset()+time.Minute)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("store error limit state: %w", err)
	}

	esiErrorsRemaining.Set(float64(state.ErrorsRemaining))

	switch state.Decide(t.thresholds) {
	case Block:
		t.logger.Error().
			Int("errors_remaining", state.ErrorsRemaining).
			Time("reset_at", state.ResetAt).
			Msg("ESI error limit CRITICAL - requests will be blocked")
	case Throttle:
		t.logger.Warn().
			Int("errors_remaining", state.ErrorsRemaining).
			Time("reset_at", state.ResetAt).
			Msg("ESI error limit WARNING - requests will be throttled")
	default:
		t.logger.Debug().
			Int("errors_remaining", state.ErrorsRemaining).
			Bool("is_healthy", state.IsHealthy(t.thresholds)).
			Msg("ESI error limit state updated")
	}

	return nil
}

// ShouldAllowRequest returns false when the request must be blocked.
// In the warning band it waits throttleDelay (or until ctx is done) and allows.
func (t *Tracker) ShouldAllowRequest(ctx context.Context) (bool, error) {
	state, err := t.GetState(ctx)
	if err != nil {
		return false, fmt.Errorf("get rate limit state: %w", err)
	}

	decision := state.Decide(t.thresholds)
	esiRateLimitDecisions.WithLabelValues(decision.String()).Inc()

	switch decision {
	case Block:
		t.logger.Error().
			Int("errors_remaining", state.ErrorsRemaining).
			Dur("wait_duration", state.TimeUntilReset()).
			Msg("ESI error limit critical - blocking request")
		return false, nil

	case Throttle:
		t.logger.Warn().
			Int("errors_remaining", state.ErrorsRemaining).
			Msg("ESI error limit warning - throttling request")

		timer := time.NewTimer(t.throttleDelay)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return false, ctx.Err()
		case <-timer.C:
		}
	}

	return true, nil
}
