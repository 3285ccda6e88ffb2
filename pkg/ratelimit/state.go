// Package ratelimit tracks the ESI error limit advertised in the
// X-ESI-Error-Limit-Remain and X-ESI-Error-Limit-Reset headers and
// gates outgoing requests before the limit is exhausted.
package ratelimit

import (
	"time"
)

// RedisKey is the hash holding the shared error-limit state.
const RedisKey = "esi:error_limit"

// Thresholds on the number of errors remaining in the current window.
type Thresholds struct {
	// Critical blocks all requests below this value.
	Critical int

	// Warning throttles requests below this value.
	Warning int

	// Healthy marks the state healthy at or above this value.
	Healthy int
}

// DefaultThresholds returns the thresholds ESI documentation recommends staying clear of.
func DefaultThresholds() Thresholds {
	return Thresholds{
		Critical: 5,
		Warning:  20,
		Healthy:  50,
	}
}

// Decision is the outcome of evaluating a State against Thresholds.
type Decision int

const (
	Allow Decision = iota
	Throttle
	Block
)

func (d Decision) String() string {
	switch d {
	case Allow:
		return "allow"
	case Throttle:
		return "throttle"
	case Block:
		return "block"
	default:
		return "unknown"
	}
}

// State is the last error-limit snapshot observed from ESI.
type State struct {
	ErrorsRemaining int
	ResetAt         time.Time
	LastUpdate      time.Time
}

// IsStale returns true if the state is older than maxAge.
func (s *State) IsStale(maxAge time.Duration) bool {
	return time.Since(s.LastUpdate) > maxAge
}

// TimeUntilReset returns the duration until the window resets, or 0 if it already has.
func (s *State) TimeUntilReset() time.Duration {
	d := time.Until(s.ResetAt)
	if d < 0 {
		return 0
	}
	return d
}

// IsHealthy reports whether no restrictions apply.
func (s *State) IsHealthy(th Thresholds) bool {
	return s.ErrorsRemaining >= th.Healthy
}

// Decide evaluates the state. A window that has already reset always allows.
func (s *State) Decide(th Thresholds) Decision {
	if !s.ResetAt.IsZero() && s.TimeUntilReset() == 0 {
		return Allow
	}
	switch {
	case s.ErrorsRemaining < th.Critical:
		return Block
	case s.ErrorsRemaining < th.Warning:
		return Throttle
	default:
		return Allow
	}
}
