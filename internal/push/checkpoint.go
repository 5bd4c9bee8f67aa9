package push

import "multipush/internal/model"

// CheckpointStore durably records which tasks have reached a terminal state,
// enabling resume after interruption. The uploaded set is monotonic: a task
// once recorded uploaded is never removed or re-attempted across restarts.
//
// Implementations may buffer records in memory; Flush makes everything
// recorded so far durable. The scheduler flushes on a periodic timer and on
// shutdown, bounding data loss to one interval (at-least-once semantics).
type CheckpointStore interface {
	// Load reads the persisted checkpoint. Implementations must fail safe:
	// a missing or unreadable checkpoint loads as empty (re-uploading is
	// preferable to silently losing work), never as an error that aborts
	// the run.
	Load() (*model.Checkpoint, error)

	// RecordUploaded adds a task to the uploaded set.
	RecordUploaded(taskID string) error

	// RecordFailed adds a task to the permanently-failed set with its reason.
	RecordFailed(failed model.FailedTask) error

	// Flush persists all buffered records. An error here is fatal to the run:
	// silent progress loss is worse than stopping.
	Flush() error

	// Close flushes and releases the backing resources.
	Close() error
}
