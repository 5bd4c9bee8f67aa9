package push

import (
	"sync"
	"time"

	"multipush/internal/model"
)

// defaultRateWindow is the assumed rate-limit window when the target never
// announces a reset time. Quota consumed against an account is restored once
// the window elapses.
const defaultRateWindow = time.Minute

// Pool is the account pool manager. It owns all mutable account state and is
// the single entry point for mutation: workers report results through
// RecordResult and never touch account fields directly, which makes the
// single-writer-per-account discipline hold by construction.
type Pool struct {
	mu       sync.Mutex
	clock    Clock
	idgen    IDGenerator
	logger   Logger
	accounts map[string]*model.Account
	order    []string // registration order, for stable snapshots
	window   time.Duration

	// nextAllowedAt enforces the per-account minimum inter-request spacing.
	nextAllowedAt map[string]time.Time
}

// NewPool creates an empty account pool.
func NewPool(clock Clock, idgen IDGenerator, logger Logger) *Pool {
	return &Pool{
		clock:         clock,
		idgen:         idgen,
		logger:        logger,
		accounts:      make(map[string]*model.Account),
		nextAllowedAt: make(map[string]time.Time),
		window:        defaultRateWindow,
	}
}

// SetWindow overrides the fallback rate-limit window used when the target
// announces no reset time. The default is one minute.
func (p *Pool) SetWindow(d time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.window = d
}

// Register adds a credential to the pool and returns its account ID.
// Accounts are created once at startup and never destroyed, only disabled.
func (p *Pool) Register(name string, rateLimit int) string {
	p.mu.Lock()
	defer p.mu.Unlock()

	id := p.idgen.New()
	p.accounts[id] = &model.Account{
		ID:                 id,
		Name:               name,
		Status:             model.AccountActive,
		RateLimitRemaining: rateLimit,
		RateLimitLimit:     rateLimit,
	}
	p.order = append(p.order, id)
	return id
}

// RecordResult updates the account's counters from one upload result.
// When the result carries rate-limit telemetry, remaining quota and reset
// time are overwritten authoritatively rather than inferred.
func (p *Pool) RecordResult(res model.UploadResult) {
	p.mu.Lock()
	defer p.mu.Unlock()

	acct, ok := p.accounts[res.AccountID]
	if !ok {
		return
	}

	now := p.clock.Now()
	acct.TotalRequests++
	if res.Success {
		acct.SuccessfulRequests++
	} else {
		acct.FailedRequests++
	}
	acct.LastRequestAt = now

	// Cumulative mean keeps AvgResponseMs stable without a history buffer.
	ms := float64(res.Duration.Milliseconds())
	acct.AvgResponseMs += (ms - acct.AvgResponseMs) / float64(acct.TotalRequests)

	if res.RateLimit != nil {
		acct.RateLimitRemaining = max(res.RateLimit.Remaining, 0)
		if !res.RateLimit.ResetAt.IsZero() {
			acct.RateLimitResetAt = res.RateLimit.ResetAt
		}
		// An authoritative update can end a cooldown early.
		if acct.Status == model.AccountCoolingDown && acct.RateLimitRemaining > 0 {
			acct.Status = model.AccountActive
		}
	}

	switch res.ErrorKind {
	case model.ErrRateLimited:
		acct.RateLimitRemaining = 0
		if acct.RateLimitResetAt.IsZero() || !acct.RateLimitResetAt.After(now) {
			// No authoritative reset time; park for a conservative interval.
			acct.RateLimitResetAt = now.Add(p.window)
		}
		if acct.Status == model.AccountActive {
			acct.Status = model.AccountCoolingDown
			p.logger.Warn("account cooling down", "account", acct.Name, "reset_at", acct.RateLimitResetAt)
		}
	case model.ErrAuth:
		if acct.Status != model.AccountDisabled {
			acct.Status = model.AccountDisabled
			p.logger.Error("account disabled after authentication failure", "account", acct.Name)
		}
	}

	p.ensureWindowLocked(acct, now)
}

// Reserve speculatively consumes up to n units of the account's remaining
// quota and returns the number granted. The remaining count never goes
// negative; authoritative telemetry from responses corrects it later.
// Returns 0 when the account is not active.
func (p *Pool) Reserve(accountID string, n int) int {
	p.mu.Lock()
	defer p.mu.Unlock()

	acct, ok := p.accounts[accountID]
	if !ok {
		return 0
	}
	p.refreshLocked(acct)
	if acct.Status != model.AccountActive {
		return 0
	}
	granted := min(n, acct.RateLimitRemaining)
	acct.RateLimitRemaining -= granted
	p.ensureWindowLocked(acct, p.clock.Now())
	return granted
}

// PacingDelay returns how long the caller must sleep before issuing the next
// request on this account to honor the minimum inter-request spacing, and
// books the slot. Safe to call from concurrent workers.
func (p *Pool) PacingDelay(accountID string, interval time.Duration) time.Duration {
	if interval <= 0 {
		return 0
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	now := p.clock.Now()
	next := p.nextAllowedAt[accountID]
	if next.Before(now) {
		next = now
	}
	p.nextAllowedAt[accountID] = next.Add(interval)
	return next.Sub(now)
}

// Snapshot returns a read-only copy of all accounts in registration order.
// Expired cooldowns are rolled back to active with a fresh window first.
func (p *Pool) Snapshot() []model.Account {
	p.mu.Lock()
	defer p.mu.Unlock()

	out := make([]model.Account, 0, len(p.order))
	for _, id := range p.order {
		acct := p.accounts[id]
		p.refreshLocked(acct)
		out = append(out, *acct)
	}
	return out
}

// refreshLocked restores the full window of any account whose reset time has
// passed, ending a cooldown in the process. Active accounts replenish too:
// quota consumed speculatively must come back when the window rolls over, or
// a target that reports no telemetry would drain the pool for good.
// Caller must hold p.mu.
func (p *Pool) refreshLocked(acct *model.Account) {
	if acct.Status == model.AccountDisabled {
		return
	}
	if acct.RateLimitResetAt.IsZero() || p.clock.Now().Before(acct.RateLimitResetAt) {
		return
	}
	if acct.Status == model.AccountCoolingDown {
		acct.Status = model.AccountActive
		p.logger.Info("account cooldown expired", "account", acct.Name)
	}
	acct.RateLimitRemaining = acct.RateLimitLimit
	acct.RateLimitResetAt = time.Time{}
}

// ensureWindowLocked stamps a provisional reset time whenever quota has been
// consumed but no window end is known, so an exhausted account always carries
// the time at which it becomes usable again. Caller must hold p.mu.
func (p *Pool) ensureWindowLocked(acct *model.Account, now time.Time) {
	if acct.RateLimitRemaining < acct.RateLimitLimit && !acct.RateLimitResetAt.After(now) {
		acct.RateLimitResetAt = now.Add(p.window)
	}
}
