package config

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
)

// Config represents the main configuration for multipush.
type Config struct {
	BaseDir    string           `toml:"base_dir"`
	LogDir     string           `toml:"log_dir"`
	Accounts   []AccountConfig  `toml:"accounts"`
	Target     TargetConfig     `toml:"target"`
	Scheduler  SchedulerConfig  `toml:"scheduler"`
	Balancer   BalancerConfig   `toml:"balancer"`
	Checkpoint CheckpointConfig `toml:"checkpoint"`
	Encryption EncryptionConfig `toml:"encryption"`
	Dashboard  DashboardConfig  `toml:"dashboard"`
	Workspace  WorkspaceConfig  `toml:"workspace"`
}

// AccountConfig describes one pre-validated credential. Which credential
// fields are relevant depends on the target type.
type AccountConfig struct {
	Name      string `toml:"name"`
	RateLimit int    `toml:"rate_limit"` // requests per window; defaults to 100

	// HTTP target: bearer token for the content API.
	Token string `toml:"token,omitempty"`

	// S3 target: static key pair.
	AccessKeyID     string `toml:"access_key_id,omitempty"`
	SecretAccessKey string `toml:"secret_access_key,omitempty"`
}

// TargetConfig represents configuration for the upload target backend.
// This uses a tagged union pattern - the Type field determines which other fields are relevant.
type TargetConfig struct {
	Type string `toml:"type"` // "http", "s3", "filesystem", or "memory"

	// HTTP-specific fields (only used when Type == "http")
	BaseURL string `toml:"base_url,omitempty"`

	// S3-specific fields (only used when Type == "s3")
	S3Bucket string `toml:"s3_bucket,omitempty"`
	S3Prefix string `toml:"s3_prefix,omitempty"`
	S3Region string `toml:"s3_region,omitempty"`

	// FileSystem-specific fields (only used when Type == "filesystem")
	FSRoot string `toml:"fs_root,omitempty"`
}

// SchedulerConfig holds the knobs for batching, concurrency, and retry.
type SchedulerConfig struct {
	BatchSize               int   `toml:"batch_size"`                 // tasks per batch; default 50
	MaxConcurrentPerAccount int   `toml:"max_concurrent_per_account"` // per-account worker bound; default 3
	RateLimitFloor          int   `toml:"rate_limit_floor"`           // accounts at or below are ineligible; default 50
	MaxRetries              int   `toml:"max_retries"`                // attempts per task; default 3
	BaseBackoffMs           int64 `toml:"base_backoff_ms"`            // first retry delay; default 500
	MinRequestIntervalMs    int64 `toml:"min_request_interval_ms"`    // per-account spacing; default 200
	FlushIntervalS          int64 `toml:"flush_interval_s"`           // periodic checkpoint flush; default 10
}

// BalancerConfig holds the scoring weights for account selection.
// The weighting formula is deliberately tunable; there is no single correct value.
type BalancerConfig struct {
	RemainingWeight float64 `toml:"remaining_weight"` // default 0.5
	SuccessWeight   float64 `toml:"success_weight"`   // default 0.3
	LatencyWeight   float64 `toml:"latency_weight"`   // default 0.2
}

// CheckpointConfig represents configuration for the checkpoint store.
// This uses a tagged union pattern - the Type field determines which other fields are relevant.
type CheckpointConfig struct {
	Type    string `toml:"type"`               // "sqlite" or "memory"
	DataDir string `toml:"data_dir,omitempty"` // only used for type=sqlite
}

// EncryptionConfig holds paths to the age key pair for optional payload encryption.
type EncryptionConfig struct {
	Type           string `toml:"type"` // "none" (default) or "age"
	PublicKeyPath  string `toml:"public_key_path"`
	PrivateKeyPath string `toml:"private_key_path"`
}

// DashboardConfig holds settings for the live progress HTTP endpoint.
type DashboardConfig struct {
	Addr string `toml:"addr,omitempty"` // e.g. "127.0.0.1:8099"; empty disables the server
}

// WorkspaceConfig holds file discovery settings.
type WorkspaceConfig struct {
	Ignore []string `toml:"ignore"`
}

// NewConfig creates a new Config with the provided base directory and default values.
func NewConfig(baseDir string) *Config {
	cfg := &Config{
		BaseDir: baseDir,
		LogDir:  filepath.Join(baseDir, "log"),
		Target:  TargetConfig{Type: "filesystem", FSRoot: filepath.Join(baseDir, "mirror")},
		Checkpoint: CheckpointConfig{
			Type:    "sqlite",
			DataDir: filepath.Join(baseDir, "data"),
		},
		Encryption: EncryptionConfig{
			Type:           "none",
			PublicKeyPath:  filepath.Join(baseDir, "keys", "multipush.pub"),
			PrivateKeyPath: filepath.Join(baseDir, "keys", "multipush.key"),
		},
	}
	cfg.ApplyDefaults()
	return cfg
}

// ApplyDefaults fills zero-valued tunables with their documented defaults.
func (c *Config) ApplyDefaults() {
	if c.Scheduler.BatchSize <= 0 {
		c.Scheduler.BatchSize = 50
	}
	if c.Scheduler.MaxConcurrentPerAccount <= 0 {
		c.Scheduler.MaxConcurrentPerAccount = 3
	}
	if c.Scheduler.RateLimitFloor <= 0 {
		c.Scheduler.RateLimitFloor = 50
	}
	if c.Scheduler.MaxRetries <= 0 {
		c.Scheduler.MaxRetries = 3
	}
	if c.Scheduler.BaseBackoffMs <= 0 {
		c.Scheduler.BaseBackoffMs = 500
	}
	if c.Scheduler.MinRequestIntervalMs <= 0 {
		c.Scheduler.MinRequestIntervalMs = 200
	}
	if c.Scheduler.FlushIntervalS <= 0 {
		c.Scheduler.FlushIntervalS = 10
	}
	if c.Balancer.RemainingWeight == 0 && c.Balancer.SuccessWeight == 0 && c.Balancer.LatencyWeight == 0 {
		c.Balancer.RemainingWeight = 0.5
		c.Balancer.SuccessWeight = 0.3
		c.Balancer.LatencyWeight = 0.2
	}
	for i := range c.Accounts {
		if c.Accounts[i].RateLimit <= 0 {
			c.Accounts[i].RateLimit = 100
		}
	}
}

// Manager handles reading and writing configuration.
type Manager struct{}

// Read decodes a Config from the provided reader.
func (m *Manager) Read(r io.Reader) (*Config, error) {
	var cfg Config
	if _, err := toml.NewDecoder(r).Decode(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	cfg.ApplyDefaults()
	return &cfg, nil
}

// Write encodes a Config to the provided writer.
func (m *Manager) Write(w io.Writer, cfg *Config) error {
	if err := toml.NewEncoder(w).Encode(cfg); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	return nil
}

// ReadFromFile reads a Config from the specified file path.
func ReadFromFile(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open config file: %w", err)
	}
	defer f.Close()

	m := &Manager{}
	cfg, err := m.Read(f)
	if err != nil {
		return nil, fmt.Errorf("reading config from %s: %w", path, err)
	}
	return cfg, nil
}

// writeToFile writes a Config to the specified file path.
// This is an internal helper and should not be exported.
func writeToFile(path string, cfg *Config) error {
	// Ensure the directory exists
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create config file: %w", err)
	}
	defer f.Close()

	m := &Manager{}
	if err := m.Write(f, cfg); err != nil {
		return fmt.Errorf("writing config to %s: %w", path, err)
	}
	return nil
}

// Init initializes a new config file at the specified path with the provided Config.
func Init(path string, cfg *Config) error {
	// Check if config already exists
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config file already exists at %s", path)
	}

	if err := writeToFile(path, cfg); err != nil {
		return fmt.Errorf("initializing config: %w", err)
	}
	return nil
}
