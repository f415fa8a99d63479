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

// Package bot is the orchestrator: it dispatches inbound transport
// events to command handlers and coordinates rate limiting,
// conversation memory, archive search, and result pagination.
//
// Events are handled concurrently across users. All per-user state lives
// in the injected stores, each of which does its own locking, so a
// handler never assumes a global lock.
package bot

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/telefind/telefind/pkg/config"
	"github.com/telefind/telefind/pkg/memory"
	"github.com/telefind/telefind/pkg/model"
	"github.com/telefind/telefind/pkg/observability"
	"github.com/telefind/telefind/pkg/pagination"
	"github.com/telefind/telefind/pkg/ratelimit"
	"github.com/telefind/telefind/pkg/search"
	"github.com/telefind/telefind/pkg/telegram"
)

// Transport is the outbound messaging surface the bot needs.
type Transport interface {
	SendMessage(ctx context.Context, chatID int64, text string, markup *telegram.InlineKeyboardMarkup) (*telegram.Message, error)
	EditMessage(ctx context.Context, chatID, messageID int64, text string, markup *telegram.InlineKeyboardMarkup) error
	AnswerCallback(ctx context.Context, callbackID, text string) error
}

// Options carries the bot's collaborators.
type Options struct {
	Transport Transport
	Limiter   ratelimit.RateLimiter
	History   *memory.Store
	Pages     *pagination.Paginator

	// Search is optional; without it /search reports the capability as
	// disabled.
	Search search.Provider

	// LLM is optional; without it /ask reports the capability as
	// disabled.
	LLM model.LLM

	Config  *config.Config
	Metrics observability.Metrics
	Logger  *slog.Logger
}

// Bot routes transport events to handlers.
type Bot struct {
	transport Transport
	limiter   ratelimit.RateLimiter
	history   *memory.Store
	pages     *pagination.Paginator
	provider  search.Provider
	llm       model.LLM

	cfg     *config.Config
	metrics observability.Metrics
	log     *slog.Logger

	// searches tracks each user's in-flight archive search so a new
	// /search aborts the stale one.
	searchMu  sync.Mutex
	searches  map[string]*activeSearch
	searchSeq uint64
}

type activeSearch struct {
	id     uint64
	cancel context.CancelFunc
}

// New validates the wiring and builds a bot.
func New(opts Options) (*Bot, error) {
	if opts.Transport == nil {
		return nil, fmt.Errorf("transport is required")
	}
	if opts.Limiter == nil {
		return nil, fmt.Errorf("rate limiter is required")
	}
	if opts.History == nil {
		return nil, fmt.Errorf("conversation store is required")
	}
	if opts.Pages == nil {
		return nil, fmt.Errorf("paginator is required")
	}
	if opts.Config == nil {
		return nil, fmt.Errorf("config is required")
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Metrics == nil {
		opts.Metrics = observability.GetGlobalMetrics()
	}

	return &Bot{
		transport: opts.Transport,
		limiter:   opts.Limiter,
		history:   opts.History,
		pages:     opts.Pages,
		provider:  opts.Search,
		llm:       opts.LLM,
		cfg:       opts.Config,
		metrics:   opts.Metrics,
		log:       opts.Logger,
		searches:  make(map[string]*activeSearch),
	}, nil
}

// beginSearch registers a cancelable context for the user's search,
// aborting any previous one still in flight. The returned done func
// cancels the context and removes the registration unless a newer search
// already replaced it.
func (b *Bot) beginSearch(ctx context.Context, userID string) (context.Context, func()) {
	searchCtx, cancel := context.WithCancel(ctx)

	b.searchMu.Lock()
	if prev, ok := b.searches[userID]; ok {
		prev.cancel()
	}
	b.searchSeq++
	entry := &activeSearch{id: b.searchSeq, cancel: cancel}
	b.searches[userID] = entry
	b.searchMu.Unlock()

	return searchCtx, func() {
		b.searchMu.Lock()
		if current, ok := b.searches[userID]; ok && current.id == entry.id {
			delete(b.searches, userID)
		}
		b.searchMu.Unlock()
		cancel()
	}
}
