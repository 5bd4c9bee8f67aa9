package workspace

import (
	"os"
	"path/filepath"
	"testing"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
}

func TestScanBuildsTasks(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "a.txt"), "alpha")
	writeFile(t, filepath.Join(root, "sub", "b.txt"), "bravo")

	s := NewScanner(nil)
	tasks, err := s.Scan(root, nil)
	if err != nil {
		t.Fatalf("Scan failed: %v", err)
	}
	if len(tasks) != 2 {
		t.Fatalf("expected 2 tasks, got %d", len(tasks))
	}

	byID := make(map[string]bool)
	for _, task := range tasks {
		byID[task.ID] = true
		if task.Checksum == "" {
			t.Errorf("task %s has empty checksum", task.ID)
		}
		if task.RemotePath != task.ID {
			t.Errorf("task %s: remote path %s does not match ID", task.ID, task.RemotePath)
		}
	}
	if !byID["a.txt"] || !byID["sub/b.txt"] {
		t.Errorf("unexpected task IDs: %v", byID)
	}
}

func TestScanStableIDsAcrossRuns(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "x", "y", "file.bin"), "data")

	s := NewScanner(nil)
	first, err := s.Scan(root, nil)
	if err != nil {
		t.Fatal(err)
	}
	second, err := s.Scan(root, nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(first) != 1 || len(second) != 1 {
		t.Fatalf("expected 1 task per scan, got %d and %d", len(first), len(second))
	}
	if first[0].ID != second[0].ID {
		t.Errorf("IDs differ across scans: %s vs %s", first[0].ID, second[0].ID)
	}
	if first[0].Checksum != second[0].Checksum {
		t.Errorf("checksums differ across scans for unchanged file")
	}
}

func TestScanHonorsIgnorePatterns(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "keep.txt"), "keep")
	writeFile(t, filepath.Join(root, "skip.log"), "skip")
	writeFile(t, filepath.Join(root, "build", "out.bin"), "skip")

	s := NewScanner(nil)
	tasks, err := s.Scan(root, []string{"*.log", "build"})
	if err != nil {
		t.Fatal(err)
	}
	if len(tasks) != 1 {
		t.Fatalf("expected 1 task, got %d", len(tasks))
	}
	if tasks[0].ID != "keep.txt" {
		t.Errorf("expected keep.txt, got %s", tasks[0].ID)
	}
}

func TestScanReadsIgnoreFile(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, ".mpignore"), "# comment\n*.tmp\n")
	writeFile(t, filepath.Join(root, "keep.txt"), "keep")
	writeFile(t, filepath.Join(root, "scratch.tmp"), "skip")

	s := NewScanner(nil)
	tasks, err := s.Scan(root, nil)
	if err != nil {
		t.Fatal(err)
	}
	// .mpignore itself is always excluded.
	if len(tasks) != 1 {
		t.Fatalf("expected 1 task, got %d", len(tasks))
	}
	if tasks[0].ID != "keep.txt" {
		t.Errorf("expected keep.txt, got %s", tasks[0].ID)
	}
}

func TestScanRejectsNonDirectory(t *testing.T) {
	root := t.TempDir()
	file := filepath.Join(root, "plain.txt")
	writeFile(t, file, "x")

	s := NewScanner(nil)
	if _, err := s.Scan(file, nil); err == nil {
		t.Error("expected error scanning a non-directory root")
	}
}
