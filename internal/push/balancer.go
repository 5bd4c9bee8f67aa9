package push

import (
	"errors"
	"sync"
	"time"

	"multipush/internal/model"
)

// ErrAllAccountsDisabled means no account can ever become eligible again.
// Unlike a cooldown, this is not recoverable by waiting.
var ErrAllAccountsDisabled = errors.New("all accounts are disabled")

// BalancerWeights are the tunable scoring factors. There is no single correct
// formula; the defaults favor quota headroom, then reliability, then speed.
type BalancerWeights struct {
	Remaining float64 // weight of normalized remaining quota
	Success   float64 // weight of historical success rate
	Latency   float64 // penalty weight of normalized average latency
}

// DefaultWeights returns the default scoring weights.
func DefaultWeights() BalancerWeights {
	return BalancerWeights{Remaining: 0.5, Success: 0.3, Latency: 0.2}
}

// selectionBand is how far below the best score an account may fall and still
// take part in the round-robin rotation. Rotating over a band instead of
// always picking the single best keeps lower-scored accounts from starving.
const selectionBand = 0.1

// Balancer scores eligible accounts and selects one for the next batch.
type Balancer struct {
	mu      sync.Mutex
	weights BalancerWeights
	floor   int // accounts with remaining quota at or below are ineligible
	rr      int // round-robin cursor over the top-scoring band
}

// NewBalancer creates a Balancer with the given weights and rate-limit floor.
func NewBalancer(weights BalancerWeights, floor int) *Balancer {
	return &Balancer{weights: weights, floor: floor}
}

// Select picks an account for the next unit of work. avoid, when non-empty,
// names an account to skip if any other eligible account exists.
//
// When no account is currently eligible, Select returns an empty ID and the
// earliest reset time across cooled-down accounts; the caller must bound its
// sleep by that time and re-check, since authoritative header updates can end
// a cooldown early. ErrAllAccountsDisabled is returned when waiting cannot
// help.
func (b *Balancer) Select(accounts []model.Account, avoid string) (string, time.Time, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	eligible := make([]model.Account, 0, len(accounts))
	var earliestReset time.Time
	anyWaitable := false

	for _, acct := range accounts {
		switch acct.Status {
		case model.AccountActive:
			if acct.RateLimitRemaining > b.floor {
				eligible = append(eligible, acct)
			} else {
				// Below the floor but still alive: its window will reset.
				anyWaitable = true
				earliestReset = earlierNonZero(earliestReset, acct.RateLimitResetAt)
			}
		case model.AccountCoolingDown:
			anyWaitable = true
			earliestReset = earlierNonZero(earliestReset, acct.RateLimitResetAt)
		case model.AccountDisabled:
			// Terminal; never eligible again.
		}
	}

	// Honor the avoid hint only when an alternative exists.
	if avoid != "" {
		filtered := eligible[:0:0]
		for _, acct := range eligible {
			if acct.ID != avoid {
				filtered = append(filtered, acct)
			}
		}
		if len(filtered) > 0 {
			eligible = filtered
		}
	}

	if len(eligible) == 0 {
		if !anyWaitable {
			return "", time.Time{}, ErrAllAccountsDisabled
		}
		return "", earliestReset, nil
	}

	scores := b.score(eligible)
	best := scores[0]
	for _, s := range scores[1:] {
		if s > best {
			best = s
		}
	}

	// Weighted round-robin over the top-scoring band.
	band := make([]string, 0, len(eligible))
	for i, acct := range eligible {
		if scores[i] >= best-selectionBand {
			band = append(band, acct.ID)
		}
	}
	b.rr++
	return band[b.rr%len(band)], time.Time{}, nil
}

// score computes one score per account:
//
//	w_remaining*norm(quota) + w_success*successRate - w_latency*norm(latency)
func (b *Balancer) score(accounts []model.Account) []float64 {
	maxAvg := 0.0
	for _, acct := range accounts {
		if acct.AvgResponseMs > maxAvg {
			maxAvg = acct.AvgResponseMs
		}
	}

	scores := make([]float64, len(accounts))
	for i, acct := range accounts {
		quota := 0.0
		if acct.RateLimitLimit > 0 {
			quota = float64(acct.RateLimitRemaining) / float64(acct.RateLimitLimit)
		}
		success := 1.0 // no history yet: assume the best
		if acct.TotalRequests > 0 {
			success = float64(acct.SuccessfulRequests) / float64(acct.TotalRequests)
		}
		latency := 0.0
		if maxAvg > 0 {
			latency = acct.AvgResponseMs / maxAvg
		}
		scores[i] = b.weights.Remaining*quota + b.weights.Success*success - b.weights.Latency*latency
	}
	return scores
}

// earlierNonZero returns the earlier of two times, treating zero as unset.
func earlierNonZero(a, b time.Time) time.Time {
	if a.IsZero() {
		return b
	}
	if b.IsZero() || a.Before(b) {
		return a
	}
	return b
}
