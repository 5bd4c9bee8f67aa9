package testutil

import (
	"context"
	"io"
	"sync"

	"multipush/internal/model"
	"multipush/internal/push"
)

// FakeTarget is an in-memory Target with scripted failures. Outcomes are
// keyed by remote path and consumed attempt by attempt: a path scripted with
// two errors fails twice and then succeeds. Safe for concurrent use.
type FakeTarget struct {
	mu       sync.Mutex
	calls    int
	attempts map[string]int
	script   map[string][]error
	stored   map[string][]byte

	allErr error

	// RateLimit, when set, is attached to every successful PutResult as
	// authoritative telemetry.
	RateLimit *model.RateLimit
}

// NewFakeTarget creates a FakeTarget where every upload succeeds.
func NewFakeTarget() *FakeTarget {
	return &FakeTarget{
		attempts: make(map[string]int),
		script:   make(map[string][]error),
		stored:   make(map[string][]byte),
	}
}

// FailWith scripts the outcomes for one path. Each err is consumed by one
// attempt in order; attempts beyond the script succeed. A nil entry means
// that attempt succeeds.
func (f *FakeTarget) FailWith(path string, errs ...error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.script[path] = errs
}

// FailAll makes every attempt on every path return err. Per-path scripts
// take precedence.
func (f *FakeTarget) FailAll(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.allErr = err
}

// PutContent records the upload, consuming the next scripted outcome if any.
func (f *FakeTarget) PutContent(_ context.Context, path string, r io.Reader, _ int64) (*push.PutResult, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	f.calls++
	n := f.attempts[path]
	f.attempts[path] = n + 1

	if outcomes, scripted := f.script[path]; scripted {
		if n < len(outcomes) && outcomes[n] != nil {
			return nil, outcomes[n]
		}
	} else if f.allErr != nil {
		return nil, f.allErr
	}

	f.stored[path] = data
	return &push.PutResult{StatusCode: 200, RateLimit: f.RateLimit}, nil
}

// ValidateSetup always succeeds.
func (f *FakeTarget) ValidateSetup(context.Context) error { return nil }

// Calls returns the total number of PutContent invocations across all paths.
func (f *FakeTarget) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

// Attempts returns how many times the given path was attempted.
func (f *FakeTarget) Attempts(path string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.attempts[path]
}

// Stored returns the content last stored for a path, or nil.
func (f *FakeTarget) Stored(path string) []byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.stored[path]
}

// StoredCount returns the number of distinct paths successfully stored.
func (f *FakeTarget) StoredCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.stored)
}

// Compile-time check that FakeTarget implements push.Target
var _ push.Target = (*FakeTarget)(nil)
