package checkpoint

import (
	"fmt"
	"os"
	"path/filepath"

	"multipush/internal/config"
	"multipush/internal/push"
)

// NewStoreFromConfig creates a CheckpointStore based on the checkpoint config type.
func NewStoreFromConfig(cfg config.CheckpointConfig, clock push.Clock, logger push.Logger) (push.CheckpointStore, error) {
	switch cfg.Type {
	case "memory":
		return NewMemoryStore(clock), nil
	case "sqlite":
		if cfg.DataDir == "" {
			return nil, fmt.Errorf("sqlite checkpoint requires data_dir to be set")
		}
		if err := os.MkdirAll(cfg.DataDir, 0755); err != nil {
			return nil, fmt.Errorf("creating checkpoint directory: %w", err)
		}
		return NewSQLiteStore(filepath.Join(cfg.DataDir, "checkpoint.db"), clock, logger)
	default:
		return nil, fmt.Errorf("unknown checkpoint type: %s", cfg.Type)
	}
}
