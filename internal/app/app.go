package app

import (
	"context"
	"fmt"
	"os"
	"time"

	"multipush/internal/checkpoint"
	"multipush/internal/config"
	"multipush/internal/dashboard"
	"multipush/internal/encryption"
	"multipush/internal/model"
	"multipush/internal/push"
	"multipush/internal/target"
	"multipush/internal/workspace"
)

// PushApp is the application layer between the CLI and the push packages.
// It constructs all dependencies from config and manages the checkpoint
// store and log file lifecycle on Close.
type PushApp struct {
	cfg      *config.Config
	pool     *push.Pool
	balancer *push.Balancer
	reporter *push.Reporter
	store    push.CheckpointStore
	targets  map[string]push.Target
	logger   push.Logger
	logFile  *os.File
	clock    push.Clock
	idgen    push.IDGenerator

	// accountIDs maps config account names to pool IDs.
	accountIDs map[string]string
}

// NewPushApp creates a fully wired PushApp from the given config.
// The caller must call Close when done.
func NewPushApp(ctx context.Context, cfg *config.Config) (*PushApp, error) {
	if len(cfg.Accounts) == 0 {
		return nil, fmt.Errorf("no accounts configured")
	}
	if err := validateFloor(cfg); err != nil {
		return nil, err
	}

	runID := time.Now().UTC().Format("20060102T150405Z")
	slogger, logFile, err := newLogger(cfg.LogDir, runID)
	if err != nil {
		return nil, fmt.Errorf("creating logger: %w", err)
	}
	logger := &slogAdapter{l: slogger}

	clock := push.RealClock{}
	idgen := push.UUIDGenerator{}

	pool := push.NewPool(clock, idgen, logger)
	accountIDs := make(map[string]string, len(cfg.Accounts))
	for _, ac := range cfg.Accounts {
		if _, dup := accountIDs[ac.Name]; dup {
			logFile.Close()
			return nil, fmt.Errorf("duplicate account name: %s", ac.Name)
		}
		accountIDs[ac.Name] = pool.Register(ac.Name, ac.RateLimit)
	}

	targets, err := target.NewTargetsFromConfig(ctx, cfg, accountIDs)
	if err != nil {
		logFile.Close()
		return nil, fmt.Errorf("creating targets: %w", err)
	}

	store, err := checkpoint.NewStoreFromConfig(cfg.Checkpoint, clock, logger)
	if err != nil {
		logFile.Close()
		return nil, fmt.Errorf("creating checkpoint store: %w", err)
	}

	weights := push.BalancerWeights{
		Remaining: cfg.Balancer.RemainingWeight,
		Success:   cfg.Balancer.SuccessWeight,
		Latency:   cfg.Balancer.LatencyWeight,
	}
	balancer := push.NewBalancer(weights, cfg.Scheduler.RateLimitFloor)
	reporter := push.NewReporter(clock, pool)

	return &PushApp{
		cfg:        cfg,
		pool:       pool,
		balancer:   balancer,
		reporter:   reporter,
		store:      store,
		targets:    targets,
		logger:     logger,
		logFile:    logFile,
		clock:      clock,
		idgen:      idgen,
		accountIDs: accountIDs,
	}, nil
}

// validateFloor rejects configurations where the eligibility floor is at or
// above every account's full window, which would leave the dispatcher waiting
// forever for an account that can never qualify.
func validateFloor(cfg *config.Config) error {
	floor := cfg.Scheduler.RateLimitFloor
	for _, ac := range cfg.Accounts {
		if ac.RateLimit > floor {
			return nil
		}
	}
	return fmt.Errorf("rate_limit_floor %d is not below any account's rate limit; no account could ever be selected", floor)
}

// PushOptions are the per-run flags.
type PushOptions struct {
	DryRun bool
	// DashboardAddr, when non-empty, serves the live progress page there for
	// the duration of the run.
	DashboardAddr string
}

// Push scans the workspace root and drives every discovered file to a
// terminal state. Files already covered by the checkpoint are skipped.
func (a *PushApp) Push(ctx context.Context, root string, opts PushOptions) (*model.Report, error) {
	tasks, err := a.Scan(root)
	if err != nil {
		return nil, err
	}
	return a.PushTasks(ctx, tasks, opts)
}

// PushTasks runs the scheduler over an already-scanned task list.
func (a *PushApp) PushTasks(ctx context.Context, tasks []*model.FileTask, opts PushOptions) (*model.Report, error) {
	encryptor, err := encryption.NewEncryptorFromConfig(a.cfg.Encryption)
	if err != nil {
		return nil, err
	}

	var dash *dashboard.Server
	if opts.DashboardAddr != "" {
		dash = dashboard.NewServer(opts.DashboardAddr, a.reporter, a.pool, a.logger)
		if _, err := dash.Start(); err != nil {
			return nil, fmt.Errorf("starting dashboard: %w", err)
		}
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			dash.Shutdown(shutdownCtx)
		}()
	}

	worker := push.NewWorker(a.targets, a.pool, encryptor, a.clock, a.logger, push.WorkerOptions{
		MinRequestInterval: time.Duration(a.cfg.Scheduler.MinRequestIntervalMs) * time.Millisecond,
		DryRun:             opts.DryRun,
	})

	store := a.store
	if opts.DryRun {
		// A rehearsal must not durably mark anything as done, or the next
		// real push would skip it all.
		store = checkpoint.NewRehearsalStore(a.store)
	}

	scheduler := push.NewScheduler(a.pool, a.balancer, worker, store, a.reporter, a.clock, a.idgen, a.logger, push.SchedulerOptions{
		BatchSize:               a.cfg.Scheduler.BatchSize,
		MaxConcurrentPerAccount: a.cfg.Scheduler.MaxConcurrentPerAccount,
		MaxRetries:              a.cfg.Scheduler.MaxRetries,
		BaseBackoff:             time.Duration(a.cfg.Scheduler.BaseBackoffMs) * time.Millisecond,
		FlushInterval:           time.Duration(a.cfg.Scheduler.FlushIntervalS) * time.Second,
	})

	return scheduler.Run(ctx, tasks)
}

// Scan enumerates the workspace without uploading anything.
func (a *PushApp) Scan(root string) ([]*model.FileTask, error) {
	scanner := workspace.NewScanner(a.logger)
	tasks, err := scanner.Scan(root, a.cfg.Workspace.Ignore)
	if err != nil {
		return nil, fmt.Errorf("scanning workspace: %w", err)
	}
	return tasks, nil
}

// Status compares a scanned workspace against the checkpoint and returns the
// tasks with their recorded terminal states applied.
func (a *PushApp) Status(root string) ([]*model.FileTask, error) {
	tasks, err := a.Scan(root)
	if err != nil {
		return nil, err
	}

	cp, err := a.store.Load()
	if err != nil {
		return nil, fmt.Errorf("loading checkpoint: %w", err)
	}

	for _, t := range tasks {
		switch {
		case cp.Uploaded[t.ID]:
			t.Status = model.TaskUploaded
		case cp.Failed[t.ID].TaskID != "":
			t.Status = model.TaskFailedPermanent
			t.LastError = cp.Failed[t.ID].Reason
		}
	}
	return tasks, nil
}

// Accounts validates each account's target and returns the pool snapshot.
// Validation failures are reported per account without aborting the rest.
func (a *PushApp) Accounts(ctx context.Context) ([]model.Account, map[string]error) {
	errs := make(map[string]error)
	for name, id := range a.accountIDs {
		if t, ok := a.targets[id]; ok {
			if err := t.ValidateSetup(ctx); err != nil {
				errs[name] = err
			}
		}
	}
	return a.pool.Snapshot(), errs
}

// Close flushes and closes the checkpoint store and the log file.
func (a *PushApp) Close() error {
	var firstErr error
	if err := a.store.Close(); err != nil {
		firstErr = fmt.Errorf("closing checkpoint store: %w", err)
	}
	if a.logFile != nil {
		a.logFile.Close()
	}
	return firstErr
}
