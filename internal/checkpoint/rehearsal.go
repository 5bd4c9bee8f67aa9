package checkpoint

import (
	"multipush/internal/model"
	"multipush/internal/push"
)

// RehearsalStore wraps another store for dry runs. Reads pass through, so a
// rehearsal still skips work the checkpoint already covers; writes are
// discarded, so it never durably records uploads that did not happen.
type RehearsalStore struct {
	inner push.CheckpointStore
}

// NewRehearsalStore wraps inner in a read-only view.
func NewRehearsalStore(inner push.CheckpointStore) *RehearsalStore {
	return &RehearsalStore{inner: inner}
}

func (s *RehearsalStore) Load() (*model.Checkpoint, error) {
	return s.inner.Load()
}

func (s *RehearsalStore) RecordUploaded(string) error { return nil }

func (s *RehearsalStore) RecordFailed(model.FailedTask) error { return nil }

func (s *RehearsalStore) Flush() error { return nil }

// Close is a no-op; the wrapped store's lifecycle belongs to its owner.
func (s *RehearsalStore) Close() error { return nil }

// Compile-time check that RehearsalStore implements push.CheckpointStore
var _ push.CheckpointStore = (*RehearsalStore)(nil)
