package push_test

import (
	"bytes"
	"context"
	"errors"
	"io"
	"math/rand"
	"testing"
	"time"

	"multipush/internal/model"
	"multipush/internal/push"
	"multipush/internal/testutil"
)

func newTestWorker(target push.Target, pool *push.Pool, id string, opts push.WorkerOptions) *push.Worker {
	return push.NewWorker(map[string]push.Target{id: target}, pool, nil, testutil.FixedClock(), push.NewNopLogger(), opts)
}

func TestWorkerUploadSuccess(t *testing.T) {
	pool, _ := newTestPool()
	id := pool.Register("a", 100)
	target := testutil.NewFakeTarget()
	w := newTestWorker(target, pool, id, push.WorkerOptions{})

	task := testutil.WriteTask(t, t.TempDir(), "docs/readme.md", "hello")
	res := w.Upload(context.Background(), task, id)

	if !res.Success {
		t.Fatalf("expected success, got %+v", res)
	}
	if res.TaskID != task.ID || res.AccountID != id {
		t.Errorf("result not attributed correctly: %+v", res)
	}
	if !bytes.Equal(target.Stored("docs/readme.md"), []byte("hello")) {
		t.Errorf("uploaded content mismatch: %q", target.Stored("docs/readme.md"))
	}
}

func TestWorkerClassifiesUploadErrors(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want model.ErrorKind
	}{
		{"rate limited", &push.UploadError{Kind: model.ErrRateLimited, StatusCode: 429}, model.ErrRateLimited},
		{"auth", &push.UploadError{Kind: model.ErrAuth, StatusCode: 401}, model.ErrAuth},
		{"conflict", &push.UploadError{Kind: model.ErrConflict, StatusCode: 409}, model.ErrConflict},
		{"content", &push.UploadError{Kind: model.ErrPermanentContent, StatusCode: 413}, model.ErrPermanentContent},
		{"unclassified defaults to transient", errors.New("connection reset"), model.ErrTransientNetwork},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			pool, _ := newTestPool()
			id := pool.Register("a", 100)
			target := testutil.NewFakeTarget()
			target.FailAll(tc.err)
			w := newTestWorker(target, pool, id, push.WorkerOptions{})

			task := testutil.WriteTask(t, t.TempDir(), "f.txt", "x")
			res := w.Upload(context.Background(), task, id)

			if res.Success {
				t.Fatal("expected failure")
			}
			if res.ErrorKind != tc.want {
				t.Errorf("expected kind %s, got %s", tc.want, res.ErrorKind)
			}
		})
	}
}

func TestWorkerRateLimitTelemetryFlowsThrough(t *testing.T) {
	pool, _ := newTestPool()
	id := pool.Register("a", 100)
	target := testutil.NewFakeTarget()
	target.RateLimit = &model.RateLimit{Remaining: 7}
	w := newTestWorker(target, pool, id, push.WorkerOptions{})

	task := testutil.WriteTask(t, t.TempDir(), "f.txt", "x")
	res := w.Upload(context.Background(), task, id)

	if res.RateLimit == nil || res.RateLimit.Remaining != 7 {
		t.Errorf("expected telemetry in result, got %+v", res.RateLimit)
	}
}

func TestWorkerMissingFileIsPermanent(t *testing.T) {
	pool, _ := newTestPool()
	id := pool.Register("a", 100)
	w := newTestWorker(testutil.NewFakeTarget(), pool, id, push.WorkerOptions{})

	task := &model.FileTask{ID: "gone.txt", LocalPath: "/nonexistent/gone.txt", RemotePath: "gone.txt"}
	res := w.Upload(context.Background(), task, id)

	if res.Success || res.ErrorKind != model.ErrPermanentContent {
		t.Errorf("vanished file should be permanent, got %+v", res)
	}
}

func TestWorkerDryRunSkipsTarget(t *testing.T) {
	pool, _ := newTestPool()
	id := pool.Register("a", 100)
	target := testutil.NewFakeTarget()
	w := newTestWorker(target, pool, id, push.WorkerOptions{DryRun: true})

	task := testutil.WriteTask(t, t.TempDir(), "f.txt", "x")
	res := w.Upload(context.Background(), task, id)

	if !res.Success {
		t.Fatalf("dry run should report success, got %+v", res)
	}
	if target.Calls() != 0 {
		t.Errorf("dry run must not reach the target, saw %d calls", target.Calls())
	}
}

// prefixEncryptor marks payloads so tests can tell ciphertext from plaintext.
type prefixEncryptor struct{}

func (prefixEncryptor) Encrypt(r io.Reader, w io.Writer) error {
	if _, err := w.Write([]byte("ENC:")); err != nil {
		return err
	}
	_, err := io.Copy(w, r)
	return err
}

func TestWorkerEncryptsPayload(t *testing.T) {
	pool, _ := newTestPool()
	id := pool.Register("a", 100)
	target := testutil.NewFakeTarget()
	w := push.NewWorker(map[string]push.Target{id: target}, pool, prefixEncryptor{},
		testutil.FixedClock(), push.NewNopLogger(), push.WorkerOptions{})

	task := testutil.WriteTask(t, t.TempDir(), "f.txt", "secret")
	res := w.Upload(context.Background(), task, id)

	if !res.Success {
		t.Fatalf("expected success, got %+v", res)
	}
	if got := target.Stored("f.txt"); !bytes.Equal(got, []byte("ENC:secret")) {
		t.Errorf("expected encrypted payload, got %q", got)
	}
}

func TestWorkerPacingWaitsOnClock(t *testing.T) {
	clock := testutil.FixedClock()
	pool := push.NewPool(clock, testutil.NewStubIDGenerator(), push.NewNopLogger())
	id := pool.Register("a", 100)
	target := testutil.NewFakeTarget()
	w := push.NewWorker(map[string]push.Target{id: target}, pool, nil, clock, push.NewNopLogger(),
		push.WorkerOptions{MinRequestInterval: time.Second})

	dir := t.TempDir()
	first := testutil.WriteTask(t, dir, "first.txt", "1")
	second := testutil.WriteTask(t, dir, "second.txt", "2")

	// The first request owns the current slot and does not wait.
	if res := w.Upload(context.Background(), first, id); !res.Success {
		t.Fatalf("first upload failed: %+v", res)
	}

	done := make(chan model.UploadResult, 1)
	go func() { done <- w.Upload(context.Background(), second, id) }()

	select {
	case <-done:
		t.Fatal("second upload should wait for its pacing slot")
	case <-time.After(50 * time.Millisecond):
	}

	// Only the stub clock can release it; wall time alone never does.
	for i := 0; i < 100; i++ {
		clock.Advance(time.Second)
		select {
		case res := <-done:
			if !res.Success {
				t.Fatalf("second upload failed: %+v", res)
			}
			return
		case <-time.After(10 * time.Millisecond):
		}
	}
	t.Fatal("second upload never released after advancing the clock")
}

func TestBackoffDelayGrowth(t *testing.T) {
	base := 500 * time.Millisecond

	// Without jitter the delay doubles per attempt.
	for attempt, want := range map[int]time.Duration{
		1: 500 * time.Millisecond,
		2: 1 * time.Second,
		3: 2 * time.Second,
	} {
		if got := push.BackoffDelay(base, attempt, nil); got != want {
			t.Errorf("attempt %d: expected %v, got %v", attempt, want, got)
		}
	}
}

func TestBackoffDelayJitterBounds(t *testing.T) {
	base := 500 * time.Millisecond
	rng := rand.New(rand.NewSource(1))

	for i := 0; i < 100; i++ {
		d := push.BackoffDelay(base, 2, rng)
		lo, hi := 1*time.Second, 1500*time.Millisecond
		if d < lo || d > hi {
			t.Fatalf("jittered delay %v outside [%v, %v]", d, lo, hi)
		}
	}
}
