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
	"sync"
	"time"
)

// stateKey uniquely identifies one scope's accounting state.
type stateKey struct {
	Scope      Scope
	Identifier string
}

// windowState is the in-memory accounting state for one scope.
type windowState struct {
	// timestamps is ordered, insertion order = arrival order.
	timestamps  []time.Time
	dailyCount  int64
	periodStart time.Time
}

// MemoryStore is the in-memory implementation of Store. Entries live for
// the lifetime of the process; one entry per identifier ever seen.
type MemoryStore struct {
	data map[stateKey]*windowState
	mu   sync.Mutex
}

// NewMemoryStore creates a new in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		data: make(map[stateKey]*windowState),
	}
}

func (s *MemoryStore) state(scope Scope, identifier string, now time.Time) *windowState {
	key := stateKey{Scope: scope, Identifier: identifier}
	st, ok := s.data[key]
	if !ok {
		st = &windowState{periodStart: now}
		s.data[key] = st
	}
	return st
}

// Snapshot returns the post-maintenance view of one scope's state.
func (s *MemoryStore) Snapshot(ctx context.Context, scope Scope, identifier string, now time.Time, windows []TimeWindow) (*Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := s.state(scope, identifier, now)

	// Lazy daily reset.
	if now.Sub(st.periodStart) >= WindowDay.Duration() {
		st.dailyCount = 0
		st.periodStart = now
	}

	// Purge entries older than the longest window examined.
	var longest TimeWindow
	for _, w := range windows {
		if longest == "" || w.Duration() > longest.Duration() {
			longest = w
		}
	}
	if longest != "" {
		keep := st.timestamps[:0]
		for _, ts := range st.timestamps {
			if withinWindow(ts, now, longest) {
				keep = append(keep, ts)
			}
		}
		st.timestamps = keep
	}

	snap := &Snapshot{
		DailyCount:  st.dailyCount,
		PeriodStart: st.periodStart,
		Windows:     make(map[TimeWindow]WindowOccupancy, len(windows)),
	}
	for _, w := range windows {
		var occ WindowOccupancy
		for _, ts := range st.timestamps {
			if withinWindow(ts, now, w) {
				if occ.Count == 0 {
					occ.Oldest = ts
				}
				occ.Count++
			}
		}
		snap.Windows[w] = occ
	}
	return snap, nil
}

// Append records one request timestamp and increments the daily count.
func (s *MemoryStore) Append(ctx context.Context, scope Scope, identifier string, ts time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := s.state(scope, identifier, ts)
	st.timestamps = append(st.timestamps, ts)
	st.dailyCount++
	return nil
}

// RemoveLatest drops the most recent timestamp and decrements the daily
// count, clamped at zero.
func (s *MemoryStore) RemoveLatest(ctx context.Context, scope Scope, identifier string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := stateKey{Scope: scope, Identifier: identifier}
	st, ok := s.data[key]
	if !ok {
		return false, nil
	}

	removed := false
	if n := len(st.timestamps); n > 0 {
		st.timestamps = st.timestamps[:n-1]
		removed = true
	}
	if st.dailyCount > 0 {
		st.dailyCount--
		removed = true
	}
	return removed, nil
}

// Reset clears all state for an identifier.
func (s *MemoryStore) Reset(ctx context.Context, scope Scope, identifier string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.data, stateKey{Scope: scope, Identifier: identifier})
	return nil
}

// Close clears the store.
func (s *MemoryStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.data = make(map[stateKey]*windowState)
	return nil
}

// Size returns the number of tracked identifiers (for testing).
func (s *MemoryStore) Size() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.data)
}
