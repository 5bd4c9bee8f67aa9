package target

import (
	"context"
	"fmt"
	"io"
	"sync"

	"multipush/internal/push"
)

// MemoryTarget stores uploads in a map. It exists for tests and dry runs;
// nothing survives the process.
type MemoryTarget struct {
	mu      sync.Mutex
	objects map[string][]byte
}

// NewMemoryTarget creates an empty in-memory target.
func NewMemoryTarget() *MemoryTarget {
	return &MemoryTarget{objects: make(map[string][]byte)}
}

// PutContent stores the payload under path, replacing any previous content.
func (t *MemoryTarget) PutContent(_ context.Context, path string, r io.Reader, size int64) (*push.PutResult, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("reading payload: %w", err)
	}
	if size >= 0 && int64(len(data)) != size {
		return nil, fmt.Errorf("size mismatch: expected %d bytes, got %d", size, len(data))
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	t.objects[path] = data
	return &push.PutResult{StatusCode: 200}, nil
}

// ValidateSetup always succeeds.
func (t *MemoryTarget) ValidateSetup(_ context.Context) error { return nil }

// Get returns the stored content for a path, or nil if absent.
func (t *MemoryTarget) Get(path string) []byte {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.objects[path]
}

// Len returns the number of stored objects.
func (t *MemoryTarget) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.objects)
}

// Compile-time check that MemoryTarget implements push.Target
var _ push.Target = (*MemoryTarget)(nil)
