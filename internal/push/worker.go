package push

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"math/rand"
	"os"
	"time"

	"multipush/internal/model"
)

// WorkerOptions are the per-attempt tunables.
type WorkerOptions struct {
	// MinRequestInterval is the minimum spacing between requests on one
	// account, to stay comfortably under burst limits even when quota
	// nominally allows more.
	MinRequestInterval time.Duration
	// DryRun short-circuits before the target call and reports success.
	DryRun bool
}

// Worker performs one file's upload attempt against a selected account and
// classifies the outcome. Workers never mutate account state directly; all
// accounting flows back through the pool via the returned UploadResult.
type Worker struct {
	targets   map[string]Target // account ID -> target bound to that credential
	pool      *Pool
	encryptor Encryptor // nil means upload payloads as-is
	clock     Clock
	logger    Logger
	opts      WorkerOptions
}

// NewWorker creates a Worker over the given per-account targets.
func NewWorker(targets map[string]Target, pool *Pool, encryptor Encryptor, clock Clock, logger Logger, opts WorkerOptions) *Worker {
	return &Worker{
		targets:   targets,
		pool:      pool,
		encryptor: encryptor,
		clock:     clock,
		logger:    logger,
		opts:      opts,
	}
}

// Upload performs one attempt for task against account and returns the
// classified result. It honors the per-account pacing slot before issuing
// the request and respects ctx for the in-flight call.
func (w *Worker) Upload(ctx context.Context, task *model.FileTask, accountID string) model.UploadResult {
	if delay := w.pool.PacingDelay(accountID, w.opts.MinRequestInterval); delay > 0 {
		select {
		case <-w.clock.After(delay):
		case <-ctx.Done():
			return w.failure(task, accountID, 0, model.ErrTransientNetwork, ctx.Err().Error(), 0, nil)
		}
	}

	if w.opts.DryRun {
		w.logger.Debug("dry run, skipping upload", "task", task.ID)
		return model.UploadResult{TaskID: task.ID, AccountID: accountID, Success: true}
	}

	target, ok := w.targets[accountID]
	if !ok {
		return w.failure(task, accountID, 0, model.ErrAuth, "no target bound to account", 0, nil)
	}

	start := w.clock.Now()
	res, err := w.attempt(ctx, target, task)
	duration := w.clock.Now().Sub(start)

	if err != nil {
		kind, status, msg, rl := classify(err, ctx)
		w.logger.Debug("upload attempt failed",
			"task", task.ID, "kind", kind, "status", status, "error", msg)
		return w.failure(task, accountID, status, kind, msg, duration, rl)
	}

	out := model.UploadResult{
		TaskID:     task.ID,
		AccountID:  accountID,
		StatusCode: res.StatusCode,
		Duration:   duration,
		Success:    true,
		RateLimit:  res.RateLimit,
	}
	w.logger.Debug("upload succeeded", "task", task.ID, "duration_ms", duration.Milliseconds())
	return out
}

// attempt opens the local file and streams it to the target, encrypting
// first when an encryptor is configured.
func (w *Worker) attempt(ctx context.Context, target Target, task *model.FileTask) (*PutResult, error) {
	f, err := os.Open(task.LocalPath)
	if err != nil {
		// A file that vanished between scan and upload cannot succeed later.
		return nil, &UploadError{Kind: model.ErrPermanentContent, Message: fmt.Sprintf("opening local file: %v", err)}
	}
	defer f.Close()

	if w.encryptor == nil {
		return target.PutContent(ctx, task.RemotePath, f, task.Size)
	}

	// Ciphertext length differs from the file size, so encrypt to a buffer
	// to present an accurate size to the target.
	var buf bytes.Buffer
	if err := w.encryptor.Encrypt(f, &buf); err != nil {
		return nil, &UploadError{Kind: model.ErrPermanentContent, Message: fmt.Sprintf("encrypting payload: %v", err)}
	}
	return target.PutContent(ctx, task.RemotePath, &buf, int64(buf.Len()))
}

// failure assembles a failed UploadResult.
func (w *Worker) failure(task *model.FileTask, accountID string, status int, kind model.ErrorKind, msg string, duration time.Duration, rl *model.RateLimit) model.UploadResult {
	return model.UploadResult{
		TaskID:     task.ID,
		AccountID:  accountID,
		StatusCode: status,
		Duration:   duration,
		Success:    false,
		ErrorKind:  kind,
		Message:    msg,
		RateLimit:  rl,
	}
}

// classify maps an upload error to its kind. Targets report classified
// failures as *UploadError; anything else is treated as a transient network
// problem, which errs on the side of retrying.
func classify(err error, ctx context.Context) (model.ErrorKind, int, string, *model.RateLimit) {
	var ue *UploadError
	if errors.As(err, &ue) {
		return ue.Kind, ue.StatusCode, ue.Message, ue.RateLimit
	}
	if ctx.Err() != nil {
		return model.ErrTransientNetwork, 0, ctx.Err().Error(), nil
	}
	return model.ErrTransientNetwork, 0, err.Error(), nil
}

// BackoffDelay computes the sleep before retry attempt n (1-based): the base
// delay doubled per prior attempt, plus up to 50% jitter to avoid retry
// stampedes across workers.
func BackoffDelay(base time.Duration, attempt int, rng *rand.Rand) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	d := base << (attempt - 1)
	if rng != nil {
		d += time.Duration(rng.Int63n(int64(d)/2 + 1))
	}
	return d
}
