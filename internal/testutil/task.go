package testutil

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"multipush/internal/model"
)

// WriteTask materializes one upload task: it writes content to dir/id and
// returns a pending FileTask pointing at it.
func WriteTask(t *testing.T, dir, id, content string) *model.FileTask {
	t.Helper()

	local := filepath.Join(dir, filepath.FromSlash(id))
	if strings.Contains(id, "/") {
		if err := os.MkdirAll(filepath.Dir(local), 0755); err != nil {
			t.Fatalf("creating task directory: %v", err)
		}
	}
	if err := os.WriteFile(local, []byte(content), 0644); err != nil {
		t.Fatalf("writing task file: %v", err)
	}

	return &model.FileTask{
		ID:         id,
		LocalPath:  local,
		RemotePath: id,
		Size:       int64(len(content)),
		Checksum:   SHA256Hex([]byte(content)),
		Status:     model.TaskPending,
	}
}
