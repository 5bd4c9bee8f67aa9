package checkpoint

import (
	"sync"

	"multipush/internal/model"
	"multipush/internal/push"
)

// MemoryStore is an in-memory implementation of push.CheckpointStore.
// Nothing survives the process, making it useful for tests and rehearsal
// runs. Safe for concurrent use.
type MemoryStore struct {
	mu       sync.Mutex
	clock    push.Clock
	uploaded map[string]bool
	failed   map[string]model.FailedTask
	flushes  int
}

// NewMemoryStore creates an empty in-memory checkpoint store.
func NewMemoryStore(clock push.Clock) *MemoryStore {
	return &MemoryStore{
		clock:    clock,
		uploaded: make(map[string]bool),
		failed:   make(map[string]model.FailedTask),
	}
}

// Load returns a copy of the current checkpoint.
func (m *MemoryStore) Load() (*model.Checkpoint, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	cp := model.NewCheckpoint()
	for id := range m.uploaded {
		cp.Uploaded[id] = true
	}
	for id, ft := range m.failed {
		cp.Failed[id] = ft
	}
	cp.LastUpdate = m.clock.Now()
	return cp, nil
}

// Seed pre-populates the uploaded set, simulating an earlier run.
func (m *MemoryStore) Seed(uploadedIDs ...string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, id := range uploadedIDs {
		m.uploaded[id] = true
	}
}

// RecordUploaded adds a task to the uploaded set.
func (m *MemoryStore) RecordUploaded(taskID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.uploaded[taskID] = true
	return nil
}

// RecordFailed adds a task to the permanently-failed set.
func (m *MemoryStore) RecordFailed(failed model.FailedTask) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failed[failed.TaskID] = failed
	return nil
}

// Flush is a no-op apart from counting, which tests use to assert the
// periodic flush actually runs.
func (m *MemoryStore) Flush() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.flushes++
	return nil
}

// Flushes returns how many times Flush has been called.
func (m *MemoryStore) Flushes() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.flushes
}

// Uploaded reports whether a task is in the uploaded set.
func (m *MemoryStore) Uploaded(taskID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.uploaded[taskID]
}

// Close is a no-op.
func (m *MemoryStore) Close() error { return nil }

// Compile-time check that MemoryStore implements push.CheckpointStore
var _ push.CheckpointStore = (*MemoryStore)(nil)
