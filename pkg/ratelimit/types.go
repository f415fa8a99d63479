package ratelimit

import (
	"time"
)

// TimeWindow represents a rate limiting time window
type TimeWindow string

const (
	WindowMinute TimeWindow = "minute"
	WindowHour   TimeWindow = "hour"
	WindowDay    TimeWindow = "day"
)

// Duration returns the duration for the time window
func (w TimeWindow) Duration() time.Duration {
	switch w {
	case WindowMinute:
		return time.Minute
	case WindowHour:
		return time.Hour
	case WindowDay:
		return 24 * time.Hour
	default:
		return time.Hour
	}
}

// Scope is the accounting boundary for a quota.
type Scope string

const (
	// ScopeGlobal accounts the whole system under a single identifier.
	ScopeGlobal Scope = "global"

	// ScopeUser accounts each user identifier independently.
	ScopeUser Scope = "user"
)

// GlobalIdentifier is the single identifier used under ScopeGlobal.
const GlobalIdentifier = "global"

// Usage represents current usage for a specific limit
type Usage struct {
	Scope     Scope      `json:"scope"`
	Window    TimeWindow `json:"window"`
	Current   int64      `json:"current"`    // Current usage in window
	Limit     int64      `json:"limit"`      // Maximum allowed
	Remaining int64      `json:"remaining"`  // Remaining quota
	WindowEnd time.Time  `json:"window_end"` // When the oldest in-window entry expires (or the daily period ends)
}

// CheckResult represents the result of a rate limit check
type CheckResult struct {
	Allowed bool    `json:"allowed"`
	Scope   Scope   `json:"scope,omitempty"`
	Reason  string  `json:"reason,omitempty"`
	Usages  []Usage `json:"usages"`

	// RetryAfter is how long to wait before retrying, set on sliding-window
	// denials (seconds until the oldest in-window entry expires).
	RetryAfter *time.Duration `json:"retry_after,omitempty"`

	// ResetAt is the wall-clock time of the next daily reset, set on
	// daily-ceiling denials.
	ResetAt *time.Time `json:"reset_at,omitempty"`
}

// IsExceeded returns true if any limit is exceeded
func (r *CheckResult) IsExceeded() bool {
	return !r.Allowed
}

// GetUsage returns usage for a specific window
func (r *CheckResult) GetUsage(window TimeWindow) *Usage {
	for i := range r.Usages {
		if r.Usages[i].Window == window {
			return &r.Usages[i]
		}
	}
	return nil
}

// withinWindow reports whether a request recorded at ts still occupies the
// window at now. A request exactly at the boundary (now - ts == window) has
// expired.
func withinWindow(ts, now time.Time, window TimeWindow) bool {
	return now.Sub(ts) < window.Duration()
}
