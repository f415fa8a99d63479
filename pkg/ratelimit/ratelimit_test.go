package ratelimit

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/telefind/telefind/pkg/clock"
	"github.com/telefind/telefind/pkg/config"
)

func testConfig() *config.RateLimitConfig {
	cfg := &config.RateLimitConfig{}
	cfg.SetDefaults()
	return cfg
}

func newTestLimiter(t *testing.T, cfg *config.RateLimitConfig) (*Limiter, *clock.Manual) {
	t.Helper()
	mc := clock.NewManual(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	limiter, err := New(cfg, NewMemoryStore(), WithClock(mc))
	if err != nil {
		t.Fatalf("failed to create limiter: %v", err)
	}
	return limiter, mc
}

func TestLimiter_UserMinuteWindow(t *testing.T) {
	limiter, clock := newTestLimiter(t, testConfig())
	ctx := context.Background()

	// Per-user minute limit is 5: five requests in one minute all pass.
	for i := 0; i < 5; i++ {
		result, err := limiter.CheckUser(ctx, "user1")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !result.Allowed {
			t.Fatalf("request %d: expected allowed, got denied (%s)", i+1, result.Reason)
		}
		if err := limiter.Record(ctx, "user1"); err != nil {
			t.Fatalf("record failed: %v", err)
		}
		clock.Advance(2 * time.Second)
	}

	// The sixth within the same minute is denied with a wait hint.
	result, err := limiter.CheckUser(ctx, "user1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Allowed {
		t.Fatal("expected sixth request to be denied")
	}
	if result.RetryAfter == nil {
		t.Fatal("expected retry_after to be set on a minute-window denial")
	}
	// Oldest entry was recorded 10s ago, so the wait is window minus that.
	if got, want := *result.RetryAfter, 50*time.Second; got != want {
		t.Errorf("expected retry after %v, got %v", want, got)
	}

	// Past the minute boundary the request goes through.
	clock.Advance(51 * time.Second)
	result, err = limiter.CheckUser(ctx, "user1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !result.Allowed {
		t.Errorf("expected request after window to be allowed, got denied (%s)", result.Reason)
	}
}

func TestLimiter_WindowBoundaryIsExclusive(t *testing.T) {
	cfg := testConfig()
	cfg.User.PerMinute = 1
	limiter, clock := newTestLimiter(t, cfg)
	ctx := context.Background()

	if err := limiter.Record(ctx, "user1"); err != nil {
		t.Fatalf("record failed: %v", err)
	}

	// One nanosecond before the boundary the entry still occupies the window.
	clock.Advance(time.Minute - time.Nanosecond)
	result, err := limiter.CheckUser(ctx, "user1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Allowed {
		t.Error("expected denial just inside the window")
	}

	// Exactly at the boundary (now - ts == window) the entry has expired.
	clock.Advance(time.Nanosecond)
	result, err = limiter.CheckUser(ctx, "user1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !result.Allowed {
		t.Errorf("expected allowance exactly at the boundary, got denied (%s)", result.Reason)
	}
}

func TestLimiter_CheckIsIdempotent(t *testing.T) {
	limiter, _ := newTestLimiter(t, testConfig())
	ctx := context.Background()

	if err := limiter.Record(ctx, "user1"); err != nil {
		t.Fatalf("record failed: %v", err)
	}

	for i := 0; i < 10; i++ {
		userResult, err := limiter.CheckUser(ctx, "user1")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !userResult.Allowed {
			t.Fatalf("check %d: expected allowed", i+1)
		}
		if got := userResult.GetUsage(WindowMinute).Current; got != 1 {
			t.Fatalf("check %d: expected minute usage 1, got %d", i+1, got)
		}
		if got := userResult.GetUsage(WindowDay).Current; got != 1 {
			t.Fatalf("check %d: expected daily usage 1, got %d", i+1, got)
		}

		globalResult, err := limiter.CheckGlobal(ctx)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if got := globalResult.GetUsage(WindowMinute).Current; got != 1 {
			t.Fatalf("check %d: expected global minute usage 1, got %d", i+1, got)
		}
	}
}

func TestLimiter_RollbackRestoresState(t *testing.T) {
	limiter, _ := newTestLimiter(t, testConfig())
	ctx := context.Background()

	if err := limiter.Record(ctx, "user1"); err != nil {
		t.Fatalf("record failed: %v", err)
	}
	if err := limiter.Record(ctx, "user1"); err != nil {
		t.Fatalf("record failed: %v", err)
	}

	// Downstream failed: the second request is rolled back for both scopes.
	if err := limiter.Rollback(ctx, "user1"); err != nil {
		t.Fatalf("rollback failed: %v", err)
	}

	userResult, err := limiter.CheckUser(ctx, "user1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := userResult.GetUsage(WindowMinute).Current; got != 1 {
		t.Errorf("expected user minute usage 1 after rollback, got %d", got)
	}
	if got := userResult.GetUsage(WindowDay).Current; got != 1 {
		t.Errorf("expected user daily usage 1 after rollback, got %d", got)
	}

	globalResult, err := limiter.CheckGlobal(ctx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := globalResult.GetUsage(WindowMinute).Current; got != 1 {
		t.Errorf("expected global minute usage 1 after rollback, got %d", got)
	}
	if got := globalResult.GetUsage(WindowDay).Current; got != 1 {
		t.Errorf("expected global daily usage 1 after rollback, got %d", got)
	}
}

func TestLimiter_RollbackWithoutRecordIsNoop(t *testing.T) {
	limiter, _ := newTestLimiter(t, testConfig())
	ctx := context.Background()

	// Nothing recorded: rollback must not drive counters negative.
	if err := limiter.Rollback(ctx, "user1"); err != nil {
		t.Fatalf("rollback failed: %v", err)
	}

	result, err := limiter.CheckUser(ctx, "user1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := result.GetUsage(WindowDay).Current; got != 0 {
		t.Errorf("expected daily usage 0, got %d", got)
	}

	if err := limiter.Record(ctx, "user1"); err != nil {
		t.Fatalf("record failed: %v", err)
	}
	result, err = limiter.CheckUser(ctx, "user1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := result.GetUsage(WindowDay).Current; got != 1 {
		t.Errorf("expected daily usage 1 after record, got %d", got)
	}
}

func TestLimiter_DailyCeilingReportsResetTime(t *testing.T) {
	cfg := testConfig()
	cfg.Global.PerDay = 2
	cfg.Global.PerMinute = 100
	limiter, clock := newTestLimiter(t, cfg)
	ctx := context.Background()

	start := clock.Now()
	for i := 0; i < 2; i++ {
		if err := limiter.Record(ctx, "user1"); err != nil {
			t.Fatalf("record failed: %v", err)
		}
		clock.Advance(time.Minute)
	}

	result, err := limiter.CheckGlobal(ctx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Allowed {
		t.Fatal("expected global daily denial")
	}
	if result.ResetAt == nil {
		t.Fatal("expected reset_at on a daily denial")
	}
	// The daily period started when the global state was first touched.
	if got, want := *result.ResetAt, start.Add(24*time.Hour); !got.Equal(want) {
		t.Errorf("expected reset at %v, got %v", want, got)
	}
}

func TestLimiter_DailyCounterResetsLazily(t *testing.T) {
	cfg := testConfig()
	cfg.User.PerDay = 1
	limiter, clock := newTestLimiter(t, cfg)
	ctx := context.Background()

	if err := limiter.Record(ctx, "user1"); err != nil {
		t.Fatalf("record failed: %v", err)
	}

	result, err := limiter.CheckUser(ctx, "user1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Allowed {
		t.Fatal("expected daily denial")
	}

	// 24 hours later the next check observes a fresh daily period.
	clock.Advance(24 * time.Hour)
	result, err = limiter.CheckUser(ctx, "user1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !result.Allowed {
		t.Errorf("expected allowance after daily reset, got denied (%s)", result.Reason)
	}
	if got := result.GetUsage(WindowDay).Current; got != 0 {
		t.Errorf("expected daily usage 0 after reset, got %d", got)
	}
}

func TestLimiter_UserHourWindow(t *testing.T) {
	cfg := testConfig()
	cfg.User.PerHour = 3
	cfg.User.PerMinute = 100
	limiter, clock := newTestLimiter(t, cfg)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if err := limiter.Record(ctx, "user1"); err != nil {
			t.Fatalf("record failed: %v", err)
		}
		clock.Advance(10 * time.Minute)
	}

	result, err := limiter.CheckUser(ctx, "user1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Allowed {
		t.Fatal("expected hourly denial")
	}
	if result.RetryAfter == nil {
		t.Fatal("expected retry_after on an hour-window denial")
	}
	// Oldest entry is 30 minutes old.
	if got, want := *result.RetryAfter, 30*time.Minute; got != want {
		t.Errorf("expected retry after %v, got %v", want, got)
	}
}

func TestLimiter_UsersAreIndependent(t *testing.T) {
	cfg := testConfig()
	cfg.User.PerMinute = 1
	limiter, _ := newTestLimiter(t, cfg)
	ctx := context.Background()

	if err := limiter.Record(ctx, "user1"); err != nil {
		t.Fatalf("record failed: %v", err)
	}

	result, err := limiter.CheckUser(ctx, "user1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Allowed {
		t.Error("expected user1 to be denied")
	}

	result, err = limiter.CheckUser(ctx, "user2")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !result.Allowed {
		t.Errorf("expected user2 to be allowed, got denied (%s)", result.Reason)
	}
}

func TestLimiter_Usage(t *testing.T) {
	limiter, _ := newTestLimiter(t, testConfig())
	ctx := context.Background()

	if err := limiter.Record(ctx, "user1"); err != nil {
		t.Fatalf("record failed: %v", err)
	}

	usages, err := limiter.Usage(ctx, "user1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(usages) != 5 {
		t.Fatalf("expected 5 usage entries (3 user + 2 global), got %d", len(usages))
	}
	for _, u := range usages {
		if u.Current != 1 {
			t.Errorf("%s/%s: expected current 1, got %d", u.Scope, u.Window, u.Current)
		}
		if u.Remaining != u.Limit-1 {
			t.Errorf("%s/%s: expected remaining %d, got %d", u.Scope, u.Window, u.Limit-1, u.Remaining)
		}
	}
}

func TestLimiter_DisabledAllowsEverything(t *testing.T) {
	cfg := testConfig()
	cfg.Enabled = config.BoolPtr(false)
	limiter, _ := newTestLimiter(t, cfg)
	ctx := context.Background()

	for i := 0; i < 100; i++ {
		if err := limiter.Record(ctx, "user1"); err != nil {
			t.Fatalf("record failed: %v", err)
		}
	}
	result, err := limiter.CheckUser(ctx, "user1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !result.Allowed {
		t.Error("expected disabled limiter to allow everything")
	}
}

func TestLimiter_EmptyIdentifier(t *testing.T) {
	limiter, _ := newTestLimiter(t, testConfig())
	ctx := context.Background()

	if _, err := limiter.CheckUser(ctx, ""); err != ErrInvalidIdentifier {
		t.Errorf("expected ErrInvalidIdentifier, got %v", err)
	}
	if err := limiter.Record(ctx, ""); err != ErrInvalidIdentifier {
		t.Errorf("expected ErrInvalidIdentifier, got %v", err)
	}
}

func TestMemoryStore_PurgesStaleEntries(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	for i := 0; i < 4; i++ {
		if err := store.Append(ctx, ScopeUser, "user1", now.Add(time.Duration(i)*20*time.Minute)); err != nil {
			t.Fatalf("append failed: %v", err)
		}
	}

	// 90 minutes after the first entry, only the two entries younger than
	// an hour survive the purge; the daily count is untouched.
	snap, err := store.Snapshot(ctx, ScopeUser, "user1", now.Add(90*time.Minute), userWindows)
	if err != nil {
		t.Fatalf("snapshot failed: %v", err)
	}
	if got := snap.Windows[WindowHour].Count; got != 2 {
		t.Errorf("expected 2 entries in hour window, got %d", got)
	}
	if snap.DailyCount != 4 {
		t.Errorf("expected daily count 4, got %d", snap.DailyCount)
	}
}

func TestQuotaError(t *testing.T) {
	result := &CheckResult{Allowed: false, Reason: "user minute limit reached (5/5)"}
	err := NewQuotaError(result)

	if !IsQuotaError(err) {
		t.Error("expected IsQuotaError to be true")
	}
	if !errors.Is(err, ErrQuotaExceeded) {
		t.Error("expected the denial to unwrap to ErrQuotaExceeded")
	}
	if got := GetQuotaResult(err); got != result {
		t.Error("expected GetQuotaResult to return the original result")
	}
	if got, want := err.Error(), result.Reason; got != want {
		t.Errorf("expected error message %q, got %q", want, got)
	}
	if IsQuotaError(context.Canceled) {
		t.Error("expected IsQuotaError to be false for unrelated errors")
	}
}

type failingStore struct{}

func (failingStore) Snapshot(context.Context, Scope, string, time.Time, []TimeWindow) (*Snapshot, error) {
	return nil, errors.New("connection refused")
}

func (failingStore) Append(context.Context, Scope, string, time.Time) error {
	return errors.New("connection refused")
}

func (failingStore) RemoveLatest(context.Context, Scope, string) (bool, error) {
	return false, errors.New("connection refused")
}

func (failingStore) Reset(context.Context, Scope, string) error {
	return errors.New("connection refused")
}

func (failingStore) Close() error { return nil }

func TestLimiter_StoreFailureReportsStoreUnavailable(t *testing.T) {
	limiter, err := New(testConfig(), failingStore{})
	if err != nil {
		t.Fatalf("failed to create limiter: %v", err)
	}
	ctx := context.Background()

	if _, err := limiter.CheckGlobal(ctx); !errors.Is(err, ErrStoreUnavailable) {
		t.Errorf("expected ErrStoreUnavailable from CheckGlobal, got %v", err)
	}
	if _, err := limiter.CheckUser(ctx, "user1"); !errors.Is(err, ErrStoreUnavailable) {
		t.Errorf("expected ErrStoreUnavailable from CheckUser, got %v", err)
	}
	if err := limiter.Record(ctx, "user1"); !errors.Is(err, ErrStoreUnavailable) {
		t.Errorf("expected ErrStoreUnavailable from Record, got %v", err)
	}
	if err := limiter.Rollback(ctx, "user1"); !errors.Is(err, ErrStoreUnavailable) {
		t.Errorf("expected ErrStoreUnavailable from Rollback, got %v", err)
	}
}
