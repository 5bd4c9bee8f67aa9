package target

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"multipush/internal/push"
)

// FileSystemTarget mirrors uploads into a local directory tree. It is mainly
// useful for rehearsal runs and tests: the full pipeline executes without
// touching a remote service.
type FileSystemTarget struct {
	root string
}

// NewFileSystemTarget creates a filesystem target rooted at the given path.
func NewFileSystemTarget(root string) (*FileSystemTarget, error) {
	if err := os.MkdirAll(root, 0755); err != nil {
		return nil, fmt.Errorf("failed to create target root: %w", err)
	}
	return &FileSystemTarget{root: root}, nil
}

// PutContent writes the payload at root/path using atomic write (temp file + rename).
// Overwriting an existing path is an idempotent replace.
func (t *FileSystemTarget) PutContent(_ context.Context, path string, r io.Reader, size int64) (*push.PutResult, error) {
	destPath := filepath.Join(t.root, filepath.FromSlash(path))
	if err := os.MkdirAll(filepath.Dir(destPath), 0755); err != nil {
		return nil, fmt.Errorf("failed to create parent directory: %w", err)
	}

	// Create temp file in the same directory to ensure atomic rename works
	tmpFile, err := os.CreateTemp(filepath.Dir(destPath), ".tmp-*")
	if err != nil {
		return nil, fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpPath := tmpFile.Name()

	// Clean up temp file on failure
	success := false
	defer func() {
		if !success {
			os.Remove(tmpPath)
		}
	}()

	written, err := io.Copy(tmpFile, r)
	if err != nil {
		tmpFile.Close()
		return nil, fmt.Errorf("failed to write data: %w", err)
	}

	if err := tmpFile.Close(); err != nil {
		return nil, fmt.Errorf("failed to close temp file: %w", err)
	}

	// Verify size when the caller declared one
	if size >= 0 && written != size {
		return nil, fmt.Errorf("size mismatch: expected %d bytes, got %d", size, written)
	}

	// Atomic rename
	if err := os.Rename(tmpPath, destPath); err != nil {
		return nil, fmt.Errorf("failed to rename temp file: %w", err)
	}

	success = true
	return &push.PutResult{StatusCode: 200}, nil
}

// ValidateSetup verifies that the target root is accessible.
func (t *FileSystemTarget) ValidateSetup(_ context.Context) error {
	info, err := os.Stat(t.root)
	if err != nil {
		return fmt.Errorf("target root not accessible: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("target root is not a directory: %s", t.root)
	}
	return nil
}

// Compile-time check that FileSystemTarget implements push.Target
var _ push.Target = (*FileSystemTarget)(nil)
