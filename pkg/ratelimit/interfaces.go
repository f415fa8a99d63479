// Copyright 2026 The Telefind Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package ratelimit

import (
	"context"
	"time"
)

// RateLimiter gates every model request at two scopes.
//
// Implementations must be thread-safe and support concurrent access.
// Admission is not atomic across a check and its record: concurrent
// callers that pass a check with one slot left can overshoot a ceiling
// by the number of requests in flight between the two calls.
type RateLimiter interface {
	// CheckGlobal verifies the system-wide quota without recording usage.
	// Read-only: any number of calls without Record yields the same outcome.
	CheckGlobal(ctx context.Context) (*CheckResult, error)

	// CheckUser verifies the per-user quota without recording usage.
	CheckUser(ctx context.Context, userID string) (*CheckResult, error)

	// Record commits one request against both the global and the user scope.
	// Call only after both checks pass and the downstream call will actually
	// be made.
	Record(ctx context.Context, userID string) error

	// Rollback undoes the most recent Record for both scopes, so a failed
	// downstream call does not count against quota. Rolling back with no
	// prior matching record is a no-op; counters never go negative.
	Rollback(ctx context.Context, userID string) error

	// Usage returns current usage statistics for the user and the global
	// scope, for introspection commands.
	Usage(ctx context.Context, userID string) ([]Usage, error)
}

// Snapshot is a consistent view of one scope's accounting state.
type Snapshot struct {
	// DailyCount is the number of requests committed since PeriodStart.
	DailyCount int64

	// PeriodStart marks the start of the current daily accounting period.
	PeriodStart time.Time

	// Windows holds in-window occupancy for each requested window.
	Windows map[TimeWindow]WindowOccupancy
}

// WindowOccupancy describes one sliding window's occupancy.
type WindowOccupancy struct {
	Count int64

	// Oldest is the oldest in-window timestamp; zero when Count is 0.
	Oldest time.Time
}

// Store is the persistence layer for rate limit accounting.
//
// Implementations must be thread-safe. Snapshot carries the lazy
// maintenance obligations: it resets the daily period in place once
// now - PeriodStart >= 24h, and purges timestamps older than the longest
// requested window before counting.
type Store interface {
	// Snapshot returns the state for a scope/identifier, creating it on
	// first access, after applying the lazy daily reset and stale purge.
	Snapshot(ctx context.Context, scope Scope, identifier string, now time.Time, windows []TimeWindow) (*Snapshot, error)

	// Append records one request timestamp and increments the daily count.
	Append(ctx context.Context, scope Scope, identifier string, ts time.Time) error

	// RemoveLatest drops the most recently appended timestamp and
	// decrements the daily count, clamped at zero. Returns false when
	// there was nothing to remove.
	RemoveLatest(ctx context.Context, scope Scope, identifier string) (bool, error)

	// Reset clears all state for an identifier.
	Reset(ctx context.Context, scope Scope, identifier string) error

	// Close closes the store and releases resources.
	Close() error
}

// Ensure interface compliance at compile time.
var (
	_ RateLimiter = (*Limiter)(nil)
	_ Store       = (*MemoryStore)(nil)
	_ Store       = (*SQLStore)(nil)
)
