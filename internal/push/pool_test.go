package push_test

import (
	"testing"
	"time"

	"multipush/internal/model"
	"multipush/internal/push"
	"multipush/internal/testutil"
)

func newTestPool() (*push.Pool, *testutil.StubClock) {
	clock := testutil.FixedClock()
	pool := push.NewPool(clock, testutil.NewStubIDGenerator(), push.NewNopLogger())
	return pool, clock
}

func TestPoolRecordResultCounters(t *testing.T) {
	pool, _ := newTestPool()
	id := pool.Register("a", 100)

	pool.RecordResult(model.UploadResult{AccountID: id, Success: true, Duration: 100 * time.Millisecond})
	pool.RecordResult(model.UploadResult{AccountID: id, Success: false, Duration: 300 * time.Millisecond, ErrorKind: model.ErrTransientNetwork})

	acct := pool.Snapshot()[0]
	if acct.TotalRequests != 2 || acct.SuccessfulRequests != 1 || acct.FailedRequests != 1 {
		t.Errorf("unexpected counters: %+v", acct)
	}
	if acct.AvgResponseMs != 200 {
		t.Errorf("expected cumulative mean 200ms, got %v", acct.AvgResponseMs)
	}
}

func TestPoolAuthoritativeRateLimitOverwrite(t *testing.T) {
	pool, clock := newTestPool()
	id := pool.Register("a", 100)

	// Speculative reservations drop the local count.
	pool.Reserve(id, 30)
	if got := pool.Snapshot()[0].RateLimitRemaining; got != 70 {
		t.Fatalf("expected 70 remaining after reserve, got %d", got)
	}

	// The response header is authoritative and wins over local bookkeeping.
	reset := clock.Now().Add(time.Minute)
	pool.RecordResult(model.UploadResult{
		AccountID: id,
		Success:   true,
		RateLimit: &model.RateLimit{Remaining: 42, ResetAt: reset},
	})

	acct := pool.Snapshot()[0]
	if acct.RateLimitRemaining != 42 {
		t.Errorf("expected authoritative 42 remaining, got %d", acct.RateLimitRemaining)
	}
	if !acct.RateLimitResetAt.Equal(reset) {
		t.Errorf("expected reset at %v, got %v", reset, acct.RateLimitResetAt)
	}
}

func TestPoolRateLimitedEntersCooldown(t *testing.T) {
	pool, clock := newTestPool()
	id := pool.Register("a", 100)

	pool.RecordResult(model.UploadResult{AccountID: id, ErrorKind: model.ErrRateLimited})

	acct := pool.Snapshot()[0]
	if acct.Status != model.AccountCoolingDown {
		t.Fatalf("expected cooling_down, got %s", acct.Status)
	}
	if acct.RateLimitRemaining != 0 {
		t.Errorf("expected 0 remaining, got %d", acct.RateLimitRemaining)
	}
	// Without an authoritative reset, the pool parks conservatively.
	if !acct.RateLimitResetAt.Equal(clock.Now().Add(time.Minute)) {
		t.Errorf("expected fallback reset one minute out, got %v", acct.RateLimitResetAt)
	}

	if pool.Reserve(id, 1) != 0 {
		t.Error("cooling account must not grant quota")
	}
}

func TestPoolCooldownExpiryRestoresWindow(t *testing.T) {
	pool, clock := newTestPool()
	id := pool.Register("a", 100)

	pool.RecordResult(model.UploadResult{AccountID: id, ErrorKind: model.ErrRateLimited})
	clock.Advance(61 * time.Second)

	acct := pool.Snapshot()[0]
	if acct.Status != model.AccountActive {
		t.Fatalf("expected active after reset, got %s", acct.Status)
	}
	if acct.RateLimitRemaining != 100 {
		t.Errorf("expected full window restored, got %d", acct.RateLimitRemaining)
	}
	if pool.Reserve(id, 5) != 5 {
		t.Error("expected reservation to succeed after reset")
	}
}

func TestPoolAuthoritativeUpdateEndsCooldownEarly(t *testing.T) {
	pool, _ := newTestPool()
	id := pool.Register("a", 100)

	pool.RecordResult(model.UploadResult{AccountID: id, ErrorKind: model.ErrRateLimited})

	// A later in-flight response reports quota available again.
	pool.RecordResult(model.UploadResult{
		AccountID: id,
		Success:   true,
		RateLimit: &model.RateLimit{Remaining: 10},
	})

	if got := pool.Snapshot()[0].Status; got != model.AccountActive {
		t.Errorf("expected active after authoritative update, got %s", got)
	}
}

func TestPoolAuthFailureDisablesPermanently(t *testing.T) {
	pool, clock := newTestPool()
	id := pool.Register("a", 100)

	pool.RecordResult(model.UploadResult{AccountID: id, ErrorKind: model.ErrAuth})

	if got := pool.Snapshot()[0].Status; got != model.AccountDisabled {
		t.Fatalf("expected disabled, got %s", got)
	}
	if pool.Reserve(id, 1) != 0 {
		t.Error("disabled account must not grant quota")
	}

	// Disabled is terminal; time does not heal it.
	clock.Advance(24 * time.Hour)
	if got := pool.Snapshot()[0].Status; got != model.AccountDisabled {
		t.Errorf("expected disabled to persist, got %s", got)
	}
}

func TestPoolActiveAccountReplenishesAfterWindow(t *testing.T) {
	pool, clock := newTestPool()
	id := pool.Register("a", 10)

	if got := pool.Reserve(id, 10); got != 10 {
		t.Fatalf("expected full grant, got %d", got)
	}
	if pool.Reserve(id, 1) != 0 {
		t.Fatal("expected empty quota")
	}

	// Consuming quota stamps a provisional window end even though no target
	// ever announced one, so the drained account stays active and waitable.
	acct := pool.Snapshot()[0]
	if acct.Status != model.AccountActive {
		t.Fatalf("exhausted account should stay active, got %s", acct.Status)
	}
	if acct.RateLimitResetAt.IsZero() {
		t.Fatal("expected a provisional reset time on consumed quota")
	}

	clock.Advance(61 * time.Second)
	if got := pool.Snapshot()[0].RateLimitRemaining; got != 10 {
		t.Errorf("expected full window after reset, got %d", got)
	}
	if got := pool.Reserve(id, 5); got != 5 {
		t.Errorf("expected reservation after replenishment, got %d", got)
	}
}

func TestPoolSetWindowShortensReplenishment(t *testing.T) {
	pool, clock := newTestPool()
	pool.SetWindow(10 * time.Second)
	id := pool.Register("a", 5)

	pool.Reserve(id, 5)
	clock.Advance(11 * time.Second)

	if got := pool.Reserve(id, 5); got != 5 {
		t.Errorf("expected short window to replenish quota, got %d", got)
	}
}

func TestPoolReserveNeverOverdraws(t *testing.T) {
	pool, _ := newTestPool()
	id := pool.Register("a", 10)

	if got := pool.Reserve(id, 7); got != 7 {
		t.Fatalf("expected 7 granted, got %d", got)
	}
	if got := pool.Reserve(id, 7); got != 3 {
		t.Fatalf("expected partial grant of 3, got %d", got)
	}
	if got := pool.Reserve(id, 1); got != 0 {
		t.Fatalf("expected 0 granted on empty quota, got %d", got)
	}
	if got := pool.Snapshot()[0].RateLimitRemaining; got != 0 {
		t.Errorf("remaining must not go negative, got %d", got)
	}
}

func TestPoolPacingDelayBooksSequentialSlots(t *testing.T) {
	pool, _ := newTestPool()
	id := pool.Register("a", 100)
	interval := 200 * time.Millisecond

	if d := pool.PacingDelay(id, interval); d != 0 {
		t.Errorf("first request should not wait, got %v", d)
	}
	if d := pool.PacingDelay(id, interval); d != interval {
		t.Errorf("second request should wait one interval, got %v", d)
	}
	if d := pool.PacingDelay(id, interval); d != 2*interval {
		t.Errorf("third request should wait two intervals, got %v", d)
	}

	// Spacing is per account.
	other := pool.Register("b", 100)
	if d := pool.PacingDelay(other, interval); d != 0 {
		t.Errorf("other account should not inherit spacing, got %v", d)
	}
}
