package push

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"sync/atomic"
	"time"

	"multipush/internal/model"
)

// recheckInterval bounds how long the dispatcher sleeps when no account is
// eligible. Resets can arrive early from authoritative header updates, so the
// dispatcher never sleeps all the way to the announced reset time blindly.
const recheckInterval = 500 * time.Millisecond

// SchedulerOptions are the run-level tunables.
type SchedulerOptions struct {
	BatchSize               int
	MaxConcurrentPerAccount int
	MaxRetries              int           // attempts per task, including the first
	BaseBackoff             time.Duration // first retry delay, doubled per attempt
	FlushInterval           time.Duration // periodic checkpoint flush
}

// Scheduler partitions the task queue into batches, drives a bounded pool of
// workers per account, and routes results into the account pool and the
// checkpoint store.
type Scheduler struct {
	pool     *Pool
	balancer *Balancer
	worker   *Worker
	store    CheckpointStore
	reporter *Reporter
	clock    Clock
	idgen    IDGenerator
	logger   Logger
	opts     SchedulerOptions
	rng      *rand.Rand
}

// NewScheduler wires a Scheduler from its collaborators.
func NewScheduler(pool *Pool, balancer *Balancer, worker *Worker, store CheckpointStore, reporter *Reporter, clock Clock, idgen IDGenerator, logger Logger, opts SchedulerOptions) *Scheduler {
	return &Scheduler{
		pool:     pool,
		balancer: balancer,
		worker:   worker,
		store:    store,
		reporter: reporter,
		clock:    clock,
		idgen:    idgen,
		logger:   logger,
		opts:     opts,
		rng:      rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// Run drives all tasks to a terminal state and returns the final report.
// Tasks already covered by the checkpoint are skipped without an upload.
// On context cancellation, no new work is dispatched, in-flight requests
// finish, and a final checkpoint flush runs before returning.
func (s *Scheduler) Run(ctx context.Context, tasks []*model.FileTask) (*model.Report, error) {
	start := s.clock.Now()

	cp, err := s.store.Load()
	if err != nil {
		return nil, fmt.Errorf("loading checkpoint: %w", err)
	}

	byID := make(map[string]*model.FileTask, len(tasks))
	var pending []*model.FileTask
	skipped := 0
	for _, t := range tasks {
		byID[t.ID] = t
		if cp.Done(t.ID) {
			skipped++
			if cp.Uploaded[t.ID] {
				t.Status = model.TaskUploaded
			} else {
				t.Status = model.TaskFailedPermanent
				t.LastError = cp.Failed[t.ID].Reason
			}
			continue
		}
		t.Status = model.TaskPending
		pending = append(pending, t)
	}

	s.reporter.Start(len(tasks), skipped)
	s.logger.Info("run starting",
		"total", len(tasks), "pending", len(pending), "checkpointed", skipped)

	runUploaded, runFailed := 0, 0
	var runErr error

	if len(pending) > 0 {
		runUploaded, runFailed, runErr = s.process(ctx, pending, byID)
	}

	if err := s.store.Flush(); err != nil && runErr == nil {
		runErr = fmt.Errorf("final checkpoint flush: %w", err)
	}

	report := s.buildReport(len(tasks), runUploaded, runFailed, skipped, s.clock.Now().Sub(start))
	s.logger.Info("run finished",
		"uploaded", report.Uploaded, "failed", report.Failed,
		"skipped", report.Skipped, "elapsed", report.Elapsed)
	return report, runErr
}

// process pumps the pending tasks through dispatch and collection until every
// task is terminal or the context is cancelled.
func (s *Scheduler) process(ctx context.Context, pending []*model.FileTask, byID map[string]*model.FileTask) (uploaded, failed int, err error) {
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	queue := newTaskQueue()
	queue.PushAll(pending)
	defer queue.Close()

	// Per-account concurrency semaphores. Global parallelism is their sum.
	sems := make(map[string]chan struct{})
	for _, acct := range s.pool.Snapshot() {
		sems[acct.ID] = make(chan struct{}, s.opts.MaxConcurrentPerAccount)
	}

	var inflight atomic.Int64
	results := make(chan model.UploadResult, len(pending))
	fatal := make(chan error, 1)

	// Periodic checkpoint flush bounds data loss to one interval.
	flushDone := make(chan struct{})
	defer close(flushDone)
	go s.flushLoop(flushDone, fatal)

	go s.dispatch(runCtx, queue, sems, results, &inflight, fatal)

	outstanding := len(pending)
	cancelled := false
	done := runCtx.Done()

	for {
		if !cancelled && outstanding == 0 {
			break
		}
		if cancelled && inflight.Load() == 0 {
			break
		}

		select {
		case res := <-results:
			inflight.Add(-1)
			// Results are accounted in memory before being durably
			// checkpointed; a crash between the two re-attempts the task.
			s.pool.RecordResult(res)
			task := byID[res.TaskID]

			switch {
			case res.Success:
				task.Status = model.TaskUploaded
				task.LastError = ""
				if recErr := s.store.RecordUploaded(task.ID); recErr != nil {
					cancelled, err = true, fmt.Errorf("recording checkpoint: %w", recErr)
					cancel()
					continue
				}
				s.reporter.Observe(true)
				uploaded++
				outstanding--

			case cancelled && (res.ErrorKind.Retryable() || res.ErrorKind == model.ErrAuth):
				// Cut short by shutdown, not by the task itself. Leave it
				// pending so the next run picks it up.
				task.Status = model.TaskPending
				task.LastError = res.Message
				outstanding--

			case res.ErrorKind == model.ErrAuth:
				// The pool has disabled the account; the attempt does not
				// count against the task's retry budget.
				task.Status = model.TaskPending
				task.LastError = res.Message
				task.AttemptCount--
				task.AvoidAccountID = res.AccountID
				queue.Push(task)

			case res.ErrorKind.Retryable() && task.AttemptCount < s.opts.MaxRetries:
				task.Status = model.TaskPending
				task.LastError = res.Message
				if res.ErrorKind == model.ErrRateLimited {
					// Prefer a different account on the next attempt.
					task.AvoidAccountID = res.AccountID
				}
				delay := BackoffDelay(s.opts.BaseBackoff, task.AttemptCount, s.rng)
				s.logger.Debug("task requeued",
					"task", task.ID, "kind", res.ErrorKind,
					"attempt", task.AttemptCount, "delay", delay)
				t := task
				go func() {
					<-s.clock.After(delay)
					queue.Push(t)
				}()

			default:
				task.Status = model.TaskFailedPermanent
				task.LastError = res.Message
				if recErr := s.store.RecordFailed(model.FailedTask{
					TaskID: task.ID,
					Kind:   res.ErrorKind,
					Reason: res.Message,
				}); recErr != nil {
					cancelled, err = true, fmt.Errorf("recording checkpoint: %w", recErr)
					cancel()
					continue
				}
				s.logger.Warn("task failed permanently",
					"task", task.ID, "kind", res.ErrorKind, "error", res.Message)
				s.reporter.Observe(false)
				failed++
				outstanding--
			}

		case ferr := <-fatal:
			if err == nil {
				err = ferr
			}
			cancelled = true
			cancel()

		case <-done:
			done = nil
			cancelled = true
			if err == nil {
				err = ctx.Err()
			}
			s.logger.Info("cancellation received, draining in-flight uploads",
				"inflight", inflight.Load())
		}
	}

	return uploaded, failed, err
}

// dispatch pulls batches off the queue, selects an account for each, and
// hands the batch to workers. It exits when the queue closes, the run is
// cancelled, or account selection can never succeed again.
//
// Quota is reserved at selection time, before the batch leaves the
// dispatcher: the next selection then scores against the already-consumed
// count instead of a stale snapshot, so a large queue cannot be parceled out
// past an account's floor.
func (s *Scheduler) dispatch(ctx context.Context, queue *taskQueue, sems map[string]chan struct{}, results chan<- model.UploadResult, inflight *atomic.Int64, fatal chan<- error) {
	for {
		tasks, ok := queue.PopBatch(s.opts.BatchSize)
		if !ok || ctx.Err() != nil {
			return
		}

		for len(tasks) > 0 {
			accountID, ok := s.selectAccount(ctx, avoidHint(tasks), fatal)
			if !ok {
				return
			}

			granted := s.pool.Reserve(accountID, len(tasks))
			if granted == 0 {
				// Lost a race for the account's last quota; steer the next
				// selection elsewhere.
				for _, t := range tasks {
					t.AvoidAccountID = accountID
				}
				continue
			}

			batch := model.Batch{
				ID:        s.idgen.New(),
				TaskIDs:   taskIDs(tasks[:granted]),
				AccountID: accountID,
				CreatedAt: s.clock.Now(),
			}
			s.logger.Debug("batch dispatched",
				"batch", batch.ID, "account", accountID, "tasks", granted)

			go s.runBatch(ctx, tasks[:granted], accountID, sems[accountID], queue, results, inflight)
			tasks = tasks[granted:]
		}
	}
}

// selectAccount queries the balancer, waiting in bounded increments while no
// account is eligible. Returns false when the run should stop.
func (s *Scheduler) selectAccount(ctx context.Context, avoid string, fatal chan<- error) (string, bool) {
	for {
		id, waitUntil, err := s.balancer.Select(s.pool.Snapshot(), avoid)
		if err != nil {
			select {
			case fatal <- err:
			default:
			}
			return "", false
		}
		if id != "" {
			return id, true
		}

		// Recoverable pause: sleep at most until the earliest reset, but
		// re-check frequently since a reset can be announced early.
		pause := recheckInterval
		if !waitUntil.IsZero() {
			if until := waitUntil.Sub(s.clock.Now()); until > 0 && until < pause {
				pause = until
			}
		}
		s.logger.Info("no eligible account, pausing", "pause", pause, "reset_at", waitUntil)
		select {
		case <-s.clock.After(pause):
		case <-ctx.Done():
			return "", false
		}
	}
}

// runBatch hands the batch's tasks to workers, bounded by the account's
// concurrency semaphore. The dispatcher already reserved the batch's quota.
// Tasks cut off by cancellation go back to the queue; their reservation is
// not returned, authoritative telemetry or the window reset corrects it.
func (s *Scheduler) runBatch(ctx context.Context, tasks []*model.FileTask, accountID string, sem chan struct{}, queue *taskQueue, results chan<- model.UploadResult, inflight *atomic.Int64) {
	for _, task := range tasks {
		select {
		case sem <- struct{}{}:
		case <-ctx.Done():
			queue.Push(task)
			continue
		}

		task.Status = model.TaskUploading
		task.AttemptCount++
		task.AvoidAccountID = ""
		inflight.Add(1)

		go func(t *model.FileTask) {
			defer func() { <-sem }()
			results <- s.worker.Upload(ctx, t, accountID)
		}(task)
	}
}

// flushLoop flushes the checkpoint store on a timer until done closes.
func (s *Scheduler) flushLoop(done <-chan struct{}, fatal chan<- error) {
	interval := s.opts.FlushInterval
	if interval <= 0 {
		interval = 10 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := s.store.Flush(); err != nil {
				select {
				case fatal <- fmt.Errorf("checkpoint flush: %w", err):
				default:
				}
				return
			}
		case <-done:
			return
		}
	}
}

// buildReport assembles the final summary from run counters and the pool.
func (s *Scheduler) buildReport(total, uploaded, failed, skipped int, elapsed time.Duration) *model.Report {
	report := &model.Report{
		Total:      total,
		Uploaded:   uploaded,
		Failed:     failed,
		Skipped:    skipped,
		Elapsed:    elapsed,
		PerAccount: make(map[string]model.AccountReport),
	}
	for _, acct := range s.pool.Snapshot() {
		report.PerAccount[acct.ID] = model.AccountReport{
			Name:       acct.Name,
			Requests:   acct.TotalRequests,
			Successful: acct.SuccessfulRequests,
			Failed:     acct.FailedRequests,
			AvgMs:      acct.AvgResponseMs,
			Status:     acct.Status,
		}
	}
	return report
}

// avoidHint returns the batch's account-avoidance hint: the first task that
// asked to steer away from an account speaks for the batch.
func avoidHint(tasks []*model.FileTask) string {
	for _, t := range tasks {
		if t.AvoidAccountID != "" {
			return t.AvoidAccountID
		}
	}
	return ""
}

func taskIDs(tasks []*model.FileTask) []string {
	ids := make([]string, len(tasks))
	for i, t := range tasks {
		ids[i] = t.ID
	}
	return ids
}

// taskQueue is the pending-task FIFO. Retryable failures re-enter at the
// tail. PopBatch blocks until at least one task is available or the queue is
// closed, which lets the dispatcher idle without spinning.
type taskQueue struct {
	mu     sync.Mutex
	cond   *sync.Cond
	items  []*model.FileTask
	closed bool
}

func newTaskQueue() *taskQueue {
	q := &taskQueue{}
	q.cond = sync.NewCond(&q.mu)
	return q
}

// Push appends a task at the tail. Pushing to a closed queue is a no-op so
// late retry timers cannot panic a finished run.
func (q *taskQueue) Push(t *model.FileTask) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return
	}
	q.items = append(q.items, t)
	q.cond.Signal()
}

// PushAll seeds the queue.
func (q *taskQueue) PushAll(tasks []*model.FileTask) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return
	}
	q.items = append(q.items, tasks...)
	q.cond.Broadcast()
}

// PopBatch removes up to max tasks from the head, blocking while the queue is
// empty. Returns ok=false once the queue is closed and drained.
func (q *taskQueue) PopBatch(max int) ([]*model.FileTask, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	for len(q.items) == 0 && !q.closed {
		q.cond.Wait()
	}
	if len(q.items) == 0 {
		return nil, false
	}

	n := min(max, len(q.items))
	out := make([]*model.FileTask, n)
	copy(out, q.items[:n])
	q.items = q.items[n:]
	return out, true
}

// Close wakes all waiters; the queue accepts no further pushes.
func (q *taskQueue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.closed = true
	q.cond.Broadcast()
}
