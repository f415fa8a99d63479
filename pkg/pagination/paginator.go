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

// Package pagination tracks one result-browsing session per user and
// exposes bounded forward/back navigation over it.
//
// Two interaction surfaces drive the same session: plain text commands
// ("next"/"prev") and structured callback payloads. A new Start silently
// replaces the user's previous session, so payloads minted for the old
// session fail the token check and are reported as stale.
package pagination

import (
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/telefind/telefind/pkg/config"
)

// Direction selects which way navigation moves.
type Direction int

const (
	Next Direction = iota
	Prev
)

// Outcome reports what an Advance call did.
type Outcome int

const (
	// Handled means the page changed.
	Handled Outcome = iota
	// NotHandled means the request was at a bound and the page is
	// unchanged. Callers fall through to other command handling.
	NotHandled
	// NoSession means the user has no active session, or the payload
	// referenced a superseded one.
	NoSession
)

// Page is a view of one page of an active session.
type Page struct {
	Lines    []string
	Index    int
	Total    int
	Token    string
	PromptID int64
}

// Footer is the page-indicator line appended after the page body.
func (p Page) Footer() string {
	return fmt.Sprintf("Page %d/%d", p.Index+1, p.Total)
}

// session is one user's cursor over an immutable result list.
type session struct {
	lines    []string
	page     int
	total    int
	pageSize int
	token    string
	promptID int64
}

// Paginator holds every user's active session. One session per user;
// entries are replaced on Start and removed on Clear.
type Paginator struct {
	mu       sync.Mutex
	sessions map[string]*session
	pageSize int
}

// New creates a paginator from the pagination config.
func New(cfg config.PaginationConfig) *Paginator {
	cfg.SetDefaults()
	return &Paginator{
		sessions: make(map[string]*session),
		pageSize: cfg.PageSize,
	}
}

// Start creates a session over lines and returns its first page.
// Any previous session for the user is discarded. Empty input clears
// the session and returns false.
func (p *Paginator) Start(userID string, lines []string) (Page, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if len(lines) == 0 {
		delete(p.sessions, userID)
		return Page{}, false
	}

	s := &session{
		lines:    lines,
		page:     0,
		total:    (len(lines) + p.pageSize - 1) / p.pageSize,
		pageSize: p.pageSize,
		token:    uuid.NewString(),
	}
	p.sessions[userID] = s
	return s.view(), true
}

// Advance moves the user's cursor one page in dir. Requests at a bound
// leave the cursor where it is and report NotHandled.
func (p *Paginator) Advance(userID string, dir Direction) (Page, Outcome) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.advanceLocked(userID, "", dir)
}

// AdvanceToken is Advance for callback payloads: the payload's session
// token must match the active session, otherwise the reference is stale
// and reported as NoSession.
func (p *Paginator) AdvanceToken(userID, token string, dir Direction) (Page, Outcome) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.advanceLocked(userID, token, dir)
}

// advanceLocked treats check-then-mutate on the cursor as one step under
// the paginator lock. Callers must hold p.mu.
func (p *Paginator) advanceLocked(userID, token string, dir Direction) (Page, Outcome) {
	s, ok := p.sessions[userID]
	if !ok {
		return Page{}, NoSession
	}
	if token != "" && token != s.token {
		return Page{}, NoSession
	}

	switch dir {
	case Next:
		if s.page >= s.total-1 {
			return Page{}, NotHandled
		}
		s.page++
	case Prev:
		if s.page <= 0 {
			return Page{}, NotHandled
		}
		s.page--
	default:
		return Page{}, NotHandled
	}
	return s.view(), Handled
}

// Current returns the user's current page without moving the cursor.
func (p *Paginator) Current(userID string) (Page, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	s, ok := p.sessions[userID]
	if !ok {
		return Page{}, false
	}
	return s.view(), true
}

// SetPrompt records the transport handle of the navigation prompt so
// callback navigation can edit it in place. The token must still match
// the active session.
func (p *Paginator) SetPrompt(userID, token string, promptID int64) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	s, ok := p.sessions[userID]
	if !ok || s.token != token {
		return false
	}
	s.promptID = promptID
	return true
}

// Clear drops the user's session.
func (p *Paginator) Clear(userID string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.sessions, userID)
}

func (s *session) view() Page {
	start := s.page * s.pageSize
	end := start + s.pageSize
	if end > len(s.lines) {
		end = len(s.lines)
	}
	lines := make([]string, end-start)
	copy(lines, s.lines[start:end])
	return Page{
		Lines:    lines,
		Index:    s.page,
		Total:    s.total,
		Token:    s.token,
		PromptID: s.promptID,
	}
}
