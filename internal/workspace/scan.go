package workspace

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"multipush/internal/model"
	"multipush/internal/push"
)

// Scanner discovers regular files under a workspace root and turns them into
// upload tasks. Task IDs are slash-separated paths relative to the root, so
// the same workspace always yields the same IDs and checkpoint resume works
// across runs.
type Scanner struct {
	logger push.Logger
}

// NewScanner creates a Scanner.
func NewScanner(logger push.Logger) *Scanner {
	if logger == nil {
		logger = &push.NopLogger{}
	}
	return &Scanner{logger: logger}
}

// Scan walks root and returns one pending task per regular file, sorted by
// the walk order (lexical within each directory). Ignore patterns come from
// three sources merged together: the built-in defaults, the config patterns,
// and the workspace's .mpignore file.
func (s *Scanner) Scan(root string, configPatterns []string) ([]*model.FileTask, error) {
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolving workspace root: %w", err)
	}

	info, err := os.Stat(absRoot)
	if err != nil {
		return nil, fmt.Errorf("stat workspace root: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("workspace root is not a directory: %s", absRoot)
	}

	filePatterns, err := ParseIgnoreFile(filepath.Join(absRoot, ".mpignore"))
	if err != nil {
		return nil, err
	}

	var raw []string
	raw = append(raw, defaultIgnorePatterns...)
	raw = append(raw, configPatterns...)
	raw = append(raw, filePatterns...)
	matcher := NewIgnoreMatcher(raw)

	var tasks []*model.FileTask
	err = filepath.WalkDir(absRoot, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, relErr := filepath.Rel(absRoot, p)
		if relErr != nil {
			return fmt.Errorf("computing relative path for %s: %w", p, relErr)
		}
		if rel == "." {
			return nil
		}

		if matcher.Match(rel) {
			if d.IsDir() {
				return filepath.SkipDir
			}
			s.logger.Debug("ignoring path", "path", rel)
			return nil
		}
		if d.IsDir() {
			return nil
		}
		if !d.Type().IsRegular() {
			s.logger.Debug("skipping non-regular file", "path", rel)
			return nil
		}

		info, err := d.Info()
		if err != nil {
			return fmt.Errorf("stat %s: %w", p, err)
		}

		checksum, err := hashFile(p)
		if err != nil {
			return err
		}

		id := filepath.ToSlash(rel)
		tasks = append(tasks, &model.FileTask{
			ID:         id,
			LocalPath:  p,
			RemotePath: id,
			Size:       info.Size(),
			Checksum:   checksum,
			Status:     model.TaskPending,
		})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walking workspace: %w", err)
	}

	return tasks, nil
}

// hashFile computes the SHA-256 checksum of a file's content.
func hashFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("opening %s: %w", path, err)
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", fmt.Errorf("hashing %s: %w", path, err)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
