package config

import (
	"bytes"
	"path/filepath"
	"strings"
	"testing"
)

func TestNewConfigDefaults(t *testing.T) {
	cfg := NewConfig("/tmp/mp")

	if cfg.BaseDir != "/tmp/mp" {
		t.Errorf("unexpected base dir: %s", cfg.BaseDir)
	}
	if cfg.LogDir != filepath.Join("/tmp/mp", "log") {
		t.Errorf("unexpected log dir: %s", cfg.LogDir)
	}
	if cfg.Target.Type != "filesystem" {
		t.Errorf("unexpected target type: %s", cfg.Target.Type)
	}
	if cfg.Checkpoint.Type != "sqlite" {
		t.Errorf("unexpected checkpoint type: %s", cfg.Checkpoint.Type)
	}
	if cfg.Encryption.Type != "none" {
		t.Errorf("unexpected encryption type: %s", cfg.Encryption.Type)
	}

	s := cfg.Scheduler
	if s.BatchSize != 50 || s.MaxConcurrentPerAccount != 3 || s.RateLimitFloor != 50 ||
		s.MaxRetries != 3 || s.BaseBackoffMs != 500 || s.MinRequestIntervalMs != 200 || s.FlushIntervalS != 10 {
		t.Errorf("unexpected scheduler defaults: %+v", s)
	}

	b := cfg.Balancer
	if b.RemainingWeight != 0.5 || b.SuccessWeight != 0.3 || b.LatencyWeight != 0.2 {
		t.Errorf("unexpected balancer defaults: %+v", b)
	}
}

func TestApplyDefaultsKeepsExplicitValues(t *testing.T) {
	cfg := &Config{}
	cfg.Scheduler.BatchSize = 10
	cfg.Balancer.RemainingWeight = 0.9
	cfg.Balancer.SuccessWeight = 0.1
	cfg.Accounts = []AccountConfig{{Name: "a", RateLimit: 250}, {Name: "b"}}
	cfg.ApplyDefaults()

	if cfg.Scheduler.BatchSize != 10 {
		t.Errorf("explicit batch size overwritten: %d", cfg.Scheduler.BatchSize)
	}
	if cfg.Scheduler.MaxRetries != 3 {
		t.Errorf("zero-valued retries not defaulted: %d", cfg.Scheduler.MaxRetries)
	}
	// Partially set weights count as explicit.
	if cfg.Balancer.RemainingWeight != 0.9 || cfg.Balancer.SuccessWeight != 0.1 {
		t.Errorf("explicit weights overwritten: %+v", cfg.Balancer)
	}
	if cfg.Accounts[0].RateLimit != 250 {
		t.Errorf("explicit account rate limit overwritten: %d", cfg.Accounts[0].RateLimit)
	}
	if cfg.Accounts[1].RateLimit != 100 {
		t.Errorf("zero-valued account rate limit not defaulted: %d", cfg.Accounts[1].RateLimit)
	}
}

func TestManagerRoundtrip(t *testing.T) {
	cfg := NewConfig("/tmp/mp")
	cfg.Accounts = []AccountConfig{
		{Name: "alpha", RateLimit: 100, Token: "t1"},
		{Name: "beta", RateLimit: 80, Token: "t2"},
	}
	cfg.Target = TargetConfig{Type: "http", BaseURL: "https://api.example.com"}
	cfg.Workspace.Ignore = []string{"*.log", "build/"}

	m := &Manager{}
	var buf bytes.Buffer
	if err := m.Write(&buf, cfg); err != nil {
		t.Fatal(err)
	}

	got, err := m.Read(&buf)
	if err != nil {
		t.Fatal(err)
	}

	if len(got.Accounts) != 2 || got.Accounts[0].Name != "alpha" || got.Accounts[1].RateLimit != 80 {
		t.Errorf("accounts did not survive roundtrip: %+v", got.Accounts)
	}
	if got.Target.Type != "http" || got.Target.BaseURL != "https://api.example.com" {
		t.Errorf("target did not survive roundtrip: %+v", got.Target)
	}
	if len(got.Workspace.Ignore) != 2 || got.Workspace.Ignore[0] != "*.log" {
		t.Errorf("ignore patterns did not survive roundtrip: %+v", got.Workspace)
	}
}

func TestManagerReadAppliesDefaults(t *testing.T) {
	raw := `
base_dir = "/tmp/mp"

[[accounts]]
name = "alpha"
token = "t1"
`
	m := &Manager{}
	cfg, err := m.Read(strings.NewReader(raw))
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Scheduler.BatchSize != 50 {
		t.Errorf("defaults not applied on read: %+v", cfg.Scheduler)
	}
	if cfg.Accounts[0].RateLimit != 100 {
		t.Errorf("account rate limit not defaulted: %d", cfg.Accounts[0].RateLimit)
	}
}

func TestManagerReadRejectsMalformed(t *testing.T) {
	m := &Manager{}
	if _, err := m.Read(strings.NewReader("this is = not [ valid toml")); err == nil {
		t.Error("expected decode error")
	}
}

func TestInitRefusesExistingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "multipush.toml")
	cfg := NewConfig(t.TempDir())

	if err := Init(path, cfg); err != nil {
		t.Fatalf("first init failed: %v", err)
	}
	if err := Init(path, cfg); err == nil {
		t.Error("expected error initializing over existing config")
	}

	got, err := ReadFromFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if got.Target.Type != "filesystem" {
		t.Errorf("written config not readable: %+v", got.Target)
	}
}
