package ratelimit

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/telefind/telefind/pkg/clock"
	"github.com/telefind/telefind/pkg/config"
)

var (
	globalWindows = []TimeWindow{WindowMinute}
	userWindows   = []TimeWindow{WindowHour, WindowMinute}
)

// Limiter implements RateLimiter over a Store.
type Limiter struct {
	mu    sync.Mutex
	cfg   config.RateLimitConfig
	store Store
	clock clock.Clock
}

// Option configures a Limiter.
type Option func(*Limiter)

// WithClock overrides the clock (tests).
func WithClock(c clock.Clock) Option {
	return func(l *Limiter) {
		l.clock = c
	}
}

// New creates a rate limiter with the given ceilings and store.
func New(cfg *config.RateLimitConfig, store Store, opts ...Option) (*Limiter, error) {
	if cfg == nil {
		return nil, fmt.Errorf("rate limit config is required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid rate limit config: %w", err)
	}
	if store == nil {
		return nil, fmt.Errorf("store is required")
	}

	l := &Limiter{
		cfg:   *cfg,
		store: store,
		clock: clock.System(),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l, nil
}

// SetLimits swaps the quota ceilings in place (config hot reload).
func (l *Limiter) SetLimits(cfg *config.RateLimitConfig) {
	if cfg == nil {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.cfg = *cfg
}

// CheckGlobal verifies the system-wide quota without recording usage.
// Order: daily ceiling first (cheap), then minute-window occupancy.
func (l *Limiter) CheckGlobal(ctx context.Context) (*CheckResult, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if !l.cfg.IsEnabled() {
		return &CheckResult{Allowed: true, Scope: ScopeGlobal}, nil
	}

	now := l.clock.Now()
	snap, err := l.store.Snapshot(ctx, ScopeGlobal, GlobalIdentifier, now, globalWindows)
	if err != nil {
		return nil, fmt.Errorf("%w: snapshot global state: %v", ErrStoreUnavailable, err)
	}

	tiers := []tier{
		{window: WindowDay, limit: l.cfg.Global.PerDay},
		{window: WindowMinute, limit: l.cfg.Global.PerMinute},
	}
	return evaluate(ScopeGlobal, snap, tiers, now), nil
}

// CheckUser verifies the per-user quota without recording usage.
// Order: daily ceiling, hour window, minute window; all must pass.
func (l *Limiter) CheckUser(ctx context.Context, userID string) (*CheckResult, error) {
	if userID == "" {
		return nil, ErrInvalidIdentifier
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if !l.cfg.IsEnabled() {
		return &CheckResult{Allowed: true, Scope: ScopeUser}, nil
	}

	now := l.clock.Now()
	snap, err := l.store.Snapshot(ctx, ScopeUser, userID, now, userWindows)
	if err != nil {
		return nil, fmt.Errorf("%w: snapshot state for user %s: %v", ErrStoreUnavailable, userID, err)
	}

	tiers := []tier{
		{window: WindowDay, limit: l.cfg.User.PerDay},
		{window: WindowHour, limit: l.cfg.User.PerHour},
		{window: WindowMinute, limit: l.cfg.User.PerMinute},
	}
	return evaluate(ScopeUser, snap, tiers, now), nil
}

// Record commits one request against both scopes.
func (l *Limiter) Record(ctx context.Context, userID string) error {
	if userID == "" {
		return ErrInvalidIdentifier
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if !l.cfg.IsEnabled() {
		return nil
	}

	now := l.clock.Now()
	if err := l.store.Append(ctx, ScopeGlobal, GlobalIdentifier, now); err != nil {
		return fmt.Errorf("%w: record global usage: %v", ErrStoreUnavailable, err)
	}
	if err := l.store.Append(ctx, ScopeUser, userID, now); err != nil {
		return fmt.Errorf("%w: record usage for user %s: %v", ErrStoreUnavailable, userID, err)
	}
	return nil
}

// Rollback undoes the most recent Record for both scopes.
func (l *Limiter) Rollback(ctx context.Context, userID string) error {
	if userID == "" {
		return ErrInvalidIdentifier
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if !l.cfg.IsEnabled() {
		return nil
	}

	if _, err := l.store.RemoveLatest(ctx, ScopeGlobal, GlobalIdentifier); err != nil {
		return fmt.Errorf("%w: roll back global usage: %v", ErrStoreUnavailable, err)
	}
	if _, err := l.store.RemoveLatest(ctx, ScopeUser, userID); err != nil {
		return fmt.Errorf("%w: roll back usage for user %s: %v", ErrStoreUnavailable, userID, err)
	}
	return nil
}

// Usage returns usage statistics for the user and global scopes.
func (l *Limiter) Usage(ctx context.Context, userID string) ([]Usage, error) {
	if userID == "" {
		return nil, ErrInvalidIdentifier
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if !l.cfg.IsEnabled() {
		return []Usage{}, nil
	}

	now := l.clock.Now()

	userSnap, err := l.store.Snapshot(ctx, ScopeUser, userID, now, userWindows)
	if err != nil {
		return nil, fmt.Errorf("%w: snapshot state for user %s: %v", ErrStoreUnavailable, userID, err)
	}
	globalSnap, err := l.store.Snapshot(ctx, ScopeGlobal, GlobalIdentifier, now, globalWindows)
	if err != nil {
		return nil, fmt.Errorf("%w: snapshot global state: %v", ErrStoreUnavailable, err)
	}

	usages := make([]Usage, 0, 5)
	for _, t := range []tier{
		{window: WindowMinute, limit: l.cfg.User.PerMinute},
		{window: WindowHour, limit: l.cfg.User.PerHour},
		{window: WindowDay, limit: l.cfg.User.PerDay},
	} {
		usages = append(usages, usageFor(ScopeUser, userSnap, t, now))
	}
	for _, t := range []tier{
		{window: WindowMinute, limit: l.cfg.Global.PerMinute},
		{window: WindowDay, limit: l.cfg.Global.PerDay},
	} {
		usages = append(usages, usageFor(ScopeGlobal, globalSnap, t, now))
	}
	return usages, nil
}

// tier pairs a window with its ceiling.
type tier struct {
	window TimeWindow
	limit  int64
}

// evaluate applies the tiers in order against a snapshot. The first
// exceeded tier determines the denial reason and retry hint.
func evaluate(scope Scope, snap *Snapshot, tiers []tier, now time.Time) *CheckResult {
	result := &CheckResult{
		Allowed: true,
		Scope:   scope,
		Usages:  make([]Usage, 0, len(tiers)),
	}

	for _, t := range tiers {
		usage := usageFor(scope, snap, t, now)
		result.Usages = append(result.Usages, usage)

		if result.Allowed && usage.Current >= t.limit {
			result.Allowed = false
			result.Reason = fmt.Sprintf("%s %s limit reached (%d/%d)",
				scope, t.window, usage.Current, t.limit)

			if t.window == WindowDay {
				resetAt := snap.PeriodStart.Add(WindowDay.Duration())
				result.ResetAt = &resetAt
			} else if occ, ok := snap.Windows[t.window]; ok && occ.Count > 0 {
				retry := occ.Oldest.Add(t.window.Duration()).Sub(now)
				if retry < 0 {
					retry = 0
				}
				result.RetryAfter = &retry
			}
		}
	}

	return result
}

func usageFor(scope Scope, snap *Snapshot, t tier, now time.Time) Usage {
	usage := Usage{
		Scope:  scope,
		Window: t.window,
		Limit:  t.limit,
	}

	if t.window == WindowDay {
		usage.Current = snap.DailyCount
		usage.WindowEnd = snap.PeriodStart.Add(WindowDay.Duration())
	} else if occ, ok := snap.Windows[t.window]; ok {
		usage.Current = occ.Count
		if occ.Count > 0 {
			usage.WindowEnd = occ.Oldest.Add(t.window.Duration())
		}
	}

	usage.Remaining = t.limit - usage.Current
	if usage.Remaining < 0 {
		usage.Remaining = 0
	}
	return usage
}
