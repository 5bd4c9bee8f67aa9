package push

import (
	"sync"
	"time"

	"multipush/internal/model"
)

// rateWindow is the sliding window over recent completions used for the
// throughput and ETA estimates.
const rateWindow = 30 * time.Second

// Reporter aggregates read-only progress for live reporting. It consumes the
// same results the scheduler routes to the pool and the checkpoint store, and
// publishes snapshots without ever blocking producers.
type Reporter struct {
	mu        sync.Mutex
	clock     Clock
	pool      *Pool
	startedAt time.Time

	total    int
	uploaded int
	failed   int
	skipped  int

	// completions holds the timestamps of recent successful uploads,
	// pruned to rateWindow on every observation and snapshot.
	completions []time.Time
}

// ProgressSnapshot is one point-in-time view of the run.
type ProgressSnapshot struct {
	Total      int             `json:"total"`
	Uploaded   int             `json:"uploaded"`
	Failed     int             `json:"failed"`
	Skipped    int             `json:"skipped"`
	Pending    int             `json:"pending"`
	RatePerSec float64         `json:"rate_per_sec"`
	ETASeconds int64           `json:"eta_seconds"` // -1 when no estimate yet
	ElapsedSec int64           `json:"elapsed_seconds"`
	Accounts   []model.Account `json:"accounts"`
}

// NewReporter creates a Reporter over the given pool.
func NewReporter(clock Clock, pool *Pool) *Reporter {
	return &Reporter{
		clock:     clock,
		pool:      pool,
		startedAt: clock.Now(),
	}
}

// Start marks the beginning of a run with the full task count and how many
// were already covered by the checkpoint.
func (r *Reporter) Start(total, skipped int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.startedAt = r.clock.Now()
	r.total = total
	r.skipped = skipped
}

// Observe records one terminal task outcome.
func (r *Reporter) Observe(success bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if success {
		r.uploaded++
		r.completions = append(r.completions, r.clock.Now())
		r.pruneLocked()
	} else {
		r.failed++
	}
}

// Snapshot returns the current progress. The account slice is a copy taken
// from the pool's atomically-published snapshot.
func (r *Reporter) Snapshot() ProgressSnapshot {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.clock.Now()
	r.pruneLocked()

	rate := 0.0
	if n := len(r.completions); n > 0 {
		span := now.Sub(r.completions[0])
		if span <= 0 {
			span = time.Second
		}
		rate = float64(n) / span.Seconds()
	}

	pending := r.total - r.skipped - r.uploaded - r.failed
	if pending < 0 {
		pending = 0
	}

	eta := int64(-1)
	if rate > 0 && pending > 0 {
		eta = int64(float64(pending) / rate)
	} else if pending == 0 {
		eta = 0
	}

	return ProgressSnapshot{
		Total:      r.total,
		Uploaded:   r.uploaded,
		Failed:     r.failed,
		Skipped:    r.skipped,
		Pending:    pending,
		RatePerSec: rate,
		ETASeconds: eta,
		ElapsedSec: int64(now.Sub(r.startedAt).Seconds()),
		Accounts:   r.pool.Snapshot(),
	}
}

// pruneLocked drops completions older than the sliding window.
// Caller must hold r.mu.
func (r *Reporter) pruneLocked() {
	cutoff := r.clock.Now().Add(-rateWindow)
	i := 0
	for i < len(r.completions) && r.completions[i].Before(cutoff) {
		i++
	}
	if i > 0 {
		r.completions = append(r.completions[:0], r.completions[i:]...)
	}
}
