package checkpoint

import (
	"database/sql"
	"fmt"
	"os"
	"sync"
	"time"

	"multipush/internal/checkpoint/migrations"
	"multipush/internal/model"
	"multipush/internal/push"

	_ "github.com/mattn/go-sqlite3" // SQLite driver
)

// SQLiteStore implements push.CheckpointStore on a SQLite database.
// Records are buffered in memory and written in one transaction per Flush,
// so the write amplification of 10^5 small records stays bounded.
type SQLiteStore struct {
	db    *sql.DB
	path  string
	clock push.Clock

	mu              sync.Mutex
	pendingUploaded []string
	pendingFailed   []model.FailedTask
}

// NewSQLiteStore opens (or creates) the checkpoint database at path.
// A database that cannot be opened or migrated is moved aside and replaced
// with an empty one: re-verifying against the remote target is preferable to
// refusing to run, and strictly preferable to silently losing work.
func NewSQLiteStore(path string, clock push.Clock, logger push.Logger) (*SQLiteStore, error) {
	db, err := openAndMigrate(path)
	if err != nil {
		logger.Warn("checkpoint database unusable, starting over", "path", path, "error", err)
		aside := fmt.Sprintf("%s.corrupt-%s", path, clock.Now().UTC().Format("20060102T150405Z"))
		if renameErr := os.Rename(path, aside); renameErr != nil {
			return nil, fmt.Errorf("moving unusable checkpoint aside: %w", renameErr)
		}
		db, err = openAndMigrate(path)
		if err != nil {
			return nil, fmt.Errorf("recreating checkpoint database: %w", err)
		}
	}

	return &SQLiteStore{db: db, path: path, clock: clock}, nil
}

// openAndMigrate opens a configured SQLite connection and applies migrations.
func openAndMigrate(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Enable foreign key constraints (SQLite default is OFF for backward compatibility)
	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}
	// Concurrent workers report while the flusher writes.
	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to set busy timeout: %w", err)
	}

	if err := migrations.MigrateUp(db); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

// Load reads the full checkpoint from the database.
func (s *SQLiteStore) Load() (*model.Checkpoint, error) {
	cp := model.NewCheckpoint()

	rows, err := s.db.Query("SELECT task_id, recorded_at FROM uploaded_tasks")
	if err != nil {
		return nil, fmt.Errorf("reading uploaded tasks: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var id string
		var at time.Time
		if err := rows.Scan(&id, &at); err != nil {
			return nil, fmt.Errorf("scanning uploaded task: %w", err)
		}
		cp.Uploaded[id] = true
		if at.After(cp.LastUpdate) {
			cp.LastUpdate = at
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("reading uploaded tasks: %w", err)
	}

	frows, err := s.db.Query("SELECT task_id, error_kind, reason, recorded_at FROM failed_tasks")
	if err != nil {
		return nil, fmt.Errorf("reading failed tasks: %w", err)
	}
	defer frows.Close()
	for frows.Next() {
		var ft model.FailedTask
		var kind string
		var at time.Time
		if err := frows.Scan(&ft.TaskID, &kind, &ft.Reason, &at); err != nil {
			return nil, fmt.Errorf("scanning failed task: %w", err)
		}
		ft.Kind = model.ErrorKind(kind)
		cp.Failed[ft.TaskID] = ft
		if at.After(cp.LastUpdate) {
			cp.LastUpdate = at
		}
	}
	if err := frows.Err(); err != nil {
		return nil, fmt.Errorf("reading failed tasks: %w", err)
	}

	return cp, nil
}

// RecordUploaded buffers a task for the uploaded set.
func (s *SQLiteStore) RecordUploaded(taskID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pendingUploaded = append(s.pendingUploaded, taskID)
	return nil
}

// RecordFailed buffers a task for the permanently-failed set.
func (s *SQLiteStore) RecordFailed(failed model.FailedTask) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pendingFailed = append(s.pendingFailed, failed)
	return nil
}

// Flush writes all buffered records in a single transaction.
// INSERT OR IGNORE keeps both sets monotonic: re-recording is harmless and
// nothing is ever removed.
func (s *SQLiteStore) Flush() error {
	s.mu.Lock()
	uploaded := s.pendingUploaded
	failed := s.pendingFailed
	s.pendingUploaded = nil
	s.pendingFailed = nil
	s.mu.Unlock()

	if len(uploaded) == 0 && len(failed) == 0 {
		return nil
	}

	tx, err := s.db.Begin()
	if err != nil {
		return s.restore(uploaded, failed, fmt.Errorf("starting transaction: %w", err))
	}
	defer tx.Rollback()

	now := s.clock.Now()
	for _, id := range uploaded {
		if _, err := tx.Exec(
			"INSERT OR IGNORE INTO uploaded_tasks (task_id, recorded_at) VALUES (?, ?)",
			id, now,
		); err != nil {
			return s.restore(uploaded, failed, fmt.Errorf("inserting uploaded task: %w", err))
		}
	}
	for _, ft := range failed {
		if _, err := tx.Exec(
			"INSERT OR IGNORE INTO failed_tasks (task_id, error_kind, reason, recorded_at) VALUES (?, ?, ?, ?)",
			ft.TaskID, string(ft.Kind), ft.Reason, now,
		); err != nil {
			return s.restore(uploaded, failed, fmt.Errorf("inserting failed task: %w", err))
		}
	}

	if err := tx.Commit(); err != nil {
		return s.restore(uploaded, failed, fmt.Errorf("committing checkpoint: %w", err))
	}
	return nil
}

// restore puts unwritten records back in the buffer so a later Flush can
// retry them, then returns err.
func (s *SQLiteStore) restore(uploaded []string, failed []model.FailedTask, err error) error {
	s.mu.Lock()
	s.pendingUploaded = append(uploaded, s.pendingUploaded...)
	s.pendingFailed = append(failed, s.pendingFailed...)
	s.mu.Unlock()
	return err
}

// Close flushes and closes the database.
func (s *SQLiteStore) Close() error {
	flushErr := s.Flush()
	closeErr := s.db.Close()
	if flushErr != nil {
		return flushErr
	}
	return closeErr
}

// Path returns the database file path.
func (s *SQLiteStore) Path() string {
	return s.path
}

// Compile-time check that SQLiteStore implements push.CheckpointStore
var _ push.CheckpointStore = (*SQLiteStore)(nil)
