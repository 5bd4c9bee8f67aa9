package target

import (
	"context"
	"fmt"

	"multipush/internal/config"
	"multipush/internal/push"
)

// NewTargetsFromConfig builds one Target per registered account, keyed by
// account ID. The accountIDs map carries account name to pool-assigned ID.
// HTTP and S3 targets are per-credential; filesystem and memory targets are
// shared across accounts since they carry no credential state.
func NewTargetsFromConfig(ctx context.Context, cfg *config.Config, accountIDs map[string]string) (map[string]push.Target, error) {
	targets := make(map[string]push.Target, len(cfg.Accounts))

	switch cfg.Target.Type {
	case "http":
		if cfg.Target.BaseURL == "" {
			return nil, fmt.Errorf("http target requires base_url to be set")
		}
		for _, ac := range cfg.Accounts {
			id, ok := accountIDs[ac.Name]
			if !ok {
				return nil, fmt.Errorf("account %s not registered", ac.Name)
			}
			if ac.Token == "" {
				return nil, fmt.Errorf("account %s: http target requires token", ac.Name)
			}
			targets[id] = NewHTTPTarget(cfg.Target.BaseURL, ac.Token)
		}
	case "s3":
		if cfg.Target.S3Bucket == "" {
			return nil, fmt.Errorf("s3 target requires s3_bucket to be set")
		}
		for _, ac := range cfg.Accounts {
			id, ok := accountIDs[ac.Name]
			if !ok {
				return nil, fmt.Errorf("account %s not registered", ac.Name)
			}
			if ac.AccessKeyID == "" || ac.SecretAccessKey == "" {
				return nil, fmt.Errorf("account %s: s3 target requires access_key_id and secret_access_key", ac.Name)
			}
			t, err := NewS3Target(ctx, cfg.Target.S3Region, cfg.Target.S3Bucket, cfg.Target.S3Prefix, ac.AccessKeyID, ac.SecretAccessKey)
			if err != nil {
				return nil, fmt.Errorf("creating s3 target for account %s: %w", ac.Name, err)
			}
			targets[id] = t
		}
	case "filesystem":
		if cfg.Target.FSRoot == "" {
			return nil, fmt.Errorf("filesystem target requires fs_root to be set")
		}
		shared, err := NewFileSystemTarget(cfg.Target.FSRoot)
		if err != nil {
			return nil, err
		}
		for _, id := range accountIDs {
			targets[id] = shared
		}
	case "memory":
		shared := NewMemoryTarget()
		for _, id := range accountIDs {
			targets[id] = shared
		}
	default:
		return nil, fmt.Errorf("unknown target type: %s", cfg.Target.Type)
	}

	return targets, nil
}
