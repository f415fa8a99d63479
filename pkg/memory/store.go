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

// Package memory provides per-user bounded, time-decaying conversation
// history used to build model context.
//
// Decay is lazy: there is no background sweep, the idle check runs on
// every access, so a stale history is observed as empty at the next read.
package memory

import (
	"sync"
	"time"

	"github.com/telefind/telefind/pkg/clock"
	"github.com/telefind/telefind/pkg/config"
)

// Role tags a turn's author.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// TruncationMarker is appended to content cut at the character budget.
const TruncationMarker = "…"

// Turn is one message in a conversation history.
type Turn struct {
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// Stats describes one user's memory state for introspection.
type Stats struct {
	Turns           int
	EstimatedTokens int
	Idle            time.Duration
	WindowRemaining time.Duration
}

// conversation is one user's history. The entry itself is never removed;
// decay only empties the turns.
type conversation struct {
	turns        []Turn
	lastActivity time.Time
}

// Store holds every user's conversation history.
type Store struct {
	mu sync.Mutex

	entries map[string]*conversation

	maxHistory int
	window     time.Duration
	charBudget int

	counter *TokenCounter
	clock   clock.Clock
}

// Option configures a Store.
type Option func(*Store)

// WithClock overrides the clock (tests).
func WithClock(c clock.Clock) Option {
	return func(s *Store) {
		s.clock = c
	}
}

// NewStore creates a conversation store from the memory config.
// The character budget per turn is derived from the token budget by the
// four-characters-per-token convention.
func NewStore(cfg config.MemoryConfig, opts ...Option) *Store {
	cfg.SetDefaults()

	s := &Store{
		entries:    make(map[string]*conversation),
		maxHistory: cfg.MaxHistory,
		window:     cfg.ContextWindow(),
		charBudget: cfg.MaxTokensPerMessage * charsPerToken,
		counter:    NewTokenCounter(),
		clock:      clock.System(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// conversationLocked returns the entry for a user, creating it on first
// access and applying lazy decay. Callers must hold s.mu.
func (s *Store) conversationLocked(userID string, now time.Time) *conversation {
	conv, ok := s.entries[userID]
	if !ok {
		conv = &conversation{lastActivity: now}
		s.entries[userID] = conv
	}
	if len(conv.turns) > 0 && now.Sub(conv.lastActivity) > s.window {
		conv.turns = nil
	}
	return conv
}

// History returns the user's turns in order, oldest first.
// Reading applies decay but does not refresh the activity instant.
func (s *Store) History(userID string) []Turn {
	s.mu.Lock()
	defer s.mu.Unlock()

	conv := s.conversationLocked(userID, s.clock.Now())
	out := make([]Turn, len(conv.turns))
	copy(out, conv.turns)
	return out
}

// Append stores one turn, truncating content to the character budget and
// evicting oldest turns beyond the history bound.
func (s *Store) Append(userID string, role Role, content string) {
	now := s.clock.Now()

	s.mu.Lock()
	defer s.mu.Unlock()

	conv := s.conversationLocked(userID, now)

	conv.turns = append(conv.turns, Turn{
		Role:      role,
		Content:   truncate(content, s.charBudget),
		Timestamp: now,
	})
	if over := len(conv.turns) - s.maxHistory; over > 0 {
		conv.turns = conv.turns[over:]
	}
	conv.lastActivity = now
}

// Clear empties the user's history. The map entry stays.
func (s *Store) Clear(userID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if conv, ok := s.entries[userID]; ok {
		conv.turns = nil
	}
}

// Stats reports the user's memory state after applying decay.
func (s *Store) Stats(userID string) Stats {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.clock.Now()
	conv := s.conversationLocked(userID, now)

	st := Stats{Turns: len(conv.turns)}
	for _, t := range conv.turns {
		st.EstimatedTokens += s.counter.Count(t.Content)
	}
	if len(conv.turns) > 0 {
		st.Idle = now.Sub(conv.lastActivity)
		if remaining := s.window - st.Idle; remaining > 0 {
			st.WindowRemaining = remaining
		}
	}
	return st
}

// truncate cuts s at the budget on a rune boundary and marks the cut.
func truncate(s string, budget int) string {
	if budget <= 0 {
		return s
	}
	runes := []rune(s)
	if len(runes) <= budget {
		return s
	}
	return string(runes[:budget]) + TruncationMarker
}
