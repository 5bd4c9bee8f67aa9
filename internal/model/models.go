package model

import "time"

// AccountStatus is the lifecycle state of a credential in the pool.
type AccountStatus string

const (
	// AccountActive means the account may be selected for uploads.
	AccountActive AccountStatus = "active"
	// AccountCoolingDown means the account exceeded its rate limit and is
	// parked until RateLimitResetAt.
	AccountCoolingDown AccountStatus = "cooling_down"
	// AccountDisabled is terminal: the account failed authentication and
	// requires operator intervention. It is never auto-reactivated.
	AccountDisabled AccountStatus = "disabled"
)

// Account is the pool's view of one credential and its quota budget.
// Mutated only by the account pool in response to UploadResult events.
type Account struct {
	ID                 string // UUID
	Name               string // Human-readable label from config
	Status             AccountStatus
	RateLimitRemaining int       // Requests left in the current window, never negative
	RateLimitLimit     int       // Full window budget, used to normalize scores
	RateLimitResetAt   time.Time // When the current window ends
	TotalRequests      int64
	SuccessfulRequests int64
	FailedRequests     int64
	AvgResponseMs      float64
	LastRequestAt      time.Time
}

// TaskStatus is the lifecycle state of one file upload task.
type TaskStatus string

const (
	TaskPending         TaskStatus = "pending"
	TaskUploading       TaskStatus = "uploading"
	TaskUploaded        TaskStatus = "uploaded"
	TaskFailedPermanent TaskStatus = "failed_permanent"
)

// FileTask is one file to upload. The task ID is the target relative path,
// which is stable across runs and therefore usable as the checkpoint key.
type FileTask struct {
	ID           string // Target relative path (checkpoint key)
	LocalPath    string // Absolute path on disk
	RemotePath   string // Path at the target
	Size         int64
	Checksum     string // SHA-256 of content
	Status       TaskStatus
	AttemptCount int
	LastError    string
	// AvoidAccountID asks the scheduler to prefer a different account on the
	// next attempt. Set after a rate_limited failure.
	AvoidAccountID string
}

// Batch groups tasks scheduled together against one account.
// Ephemeral: exists only for the duration of one scheduling round.
type Batch struct {
	ID        string
	TaskIDs   []string
	AccountID string
	CreatedAt time.Time
}

// ErrorKind classifies a failed upload attempt.
type ErrorKind string

const (
	ErrNone             ErrorKind = ""
	ErrTransientNetwork ErrorKind = "transient_network"
	ErrRateLimited      ErrorKind = "rate_limited"
	ErrAuth             ErrorKind = "auth"
	ErrConflict         ErrorKind = "conflict"
	ErrPermanentContent ErrorKind = "permanent_content"
)

// Retryable reports whether a failure of this kind may be attempted again.
func (k ErrorKind) Retryable() bool {
	return k == ErrTransientNetwork || k == ErrRateLimited
}

// RateLimit is authoritative telemetry read from a target response.
type RateLimit struct {
	Remaining int
	ResetAt   time.Time
}

// UploadResult is the write-once record of one upload attempt, consumed by
// the account pool and the checkpoint store.
type UploadResult struct {
	TaskID     string
	AccountID  string
	StatusCode int
	Duration   time.Duration
	Success    bool
	ErrorKind  ErrorKind
	Message    string
	RateLimit  *RateLimit // nil when the response carried no telemetry
}

// FailedTask records a permanently failed task and why.
type FailedTask struct {
	TaskID string
	Kind   ErrorKind
	Reason string
}

// Checkpoint is the durable, monotonically growing record of completed work.
// The uploaded set only grows; a task recorded here is never re-attempted.
type Checkpoint struct {
	Uploaded   map[string]bool       // task ID -> recorded
	Failed     map[string]FailedTask // task ID -> terminal failure
	LastUpdate time.Time
}

// NewCheckpoint returns an empty checkpoint.
func NewCheckpoint() *Checkpoint {
	return &Checkpoint{
		Uploaded: make(map[string]bool),
		Failed:   make(map[string]FailedTask),
	}
}

// Done reports whether the task is already recorded in a terminal state.
func (c *Checkpoint) Done(taskID string) bool {
	if c.Uploaded[taskID] {
		return true
	}
	_, failed := c.Failed[taskID]
	return failed
}

// Report is the final summary of one orchestrator run.
type Report struct {
	Total      int
	Uploaded   int
	Failed     int // permanent failures from this run and the checkpoint
	Skipped    int // tasks already covered by the checkpoint at startup
	Elapsed    time.Duration
	PerAccount map[string]AccountReport
}

// AccountReport is the per-account slice of the final report.
type AccountReport struct {
	Name       string
	Requests   int64
	Successful int64
	Failed     int64
	AvgMs      float64
	Status     AccountStatus
}
