package app

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"multipush/internal/config"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.NewConfig(t.TempDir())
	cfg.Accounts = []config.AccountConfig{{Name: "alpha", RateLimit: 100}}
	cfg.Scheduler.MinRequestIntervalMs = 1
	cfg.Scheduler.BaseBackoffMs = 1
	cfg.Scheduler.FlushIntervalS = 1
	cfg.ApplyDefaults()
	return cfg
}

func writeWorkspace(t *testing.T, n int) string {
	t.Helper()
	dir := t.TempDir()
	for i := 0; i < n; i++ {
		name := fmt.Sprintf("f-%02d.txt", i)
		if err := os.WriteFile(filepath.Join(dir, name), []byte(fmt.Sprintf("content %d", i)), 0644); err != nil {
			t.Fatal(err)
		}
	}
	return dir
}

func TestPushDryRunThenRealRun(t *testing.T) {
	cfg := testConfig(t)
	ws := writeWorkspace(t, 10)
	ctx := context.Background()

	a, err := NewPushApp(ctx, cfg)
	if err != nil {
		t.Fatal(err)
	}
	rehearsal, err := a.Push(ctx, ws, PushOptions{DryRun: true})
	if err != nil {
		t.Fatalf("dry run failed: %v", err)
	}
	if rehearsal.Uploaded != 10 || rehearsal.Skipped != 0 {
		t.Fatalf("unexpected rehearsal report: %+v", rehearsal)
	}
	if err := a.Close(); err != nil {
		t.Fatal(err)
	}

	// The rehearsal must not have touched the target or the checkpoint.
	entries, err := os.ReadDir(cfg.Target.FSRoot)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 0 {
		t.Errorf("dry run reached the target: %v", entries)
	}

	// A real push over the same checkpoint uploads everything.
	b, err := NewPushApp(ctx, cfg)
	if err != nil {
		t.Fatal(err)
	}
	defer b.Close()

	report, err := b.Push(ctx, ws, PushOptions{})
	if err != nil {
		t.Fatalf("real run failed: %v", err)
	}
	if report.Uploaded != 10 || report.Skipped != 0 {
		t.Fatalf("dry run left durable state behind: %+v", report)
	}

	data, err := os.ReadFile(filepath.Join(cfg.Target.FSRoot, "f-00.txt"))
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "content 0" {
		t.Errorf("uploaded content mismatch: %q", data)
	}
}

func TestPushResumesFromCheckpoint(t *testing.T) {
	cfg := testConfig(t)
	ws := writeWorkspace(t, 5)
	ctx := context.Background()

	a, err := NewPushApp(ctx, cfg)
	if err != nil {
		t.Fatal(err)
	}
	first, err := a.Push(ctx, ws, PushOptions{})
	if err != nil {
		t.Fatalf("first run failed: %v", err)
	}
	if first.Uploaded != 5 {
		t.Fatalf("unexpected first report: %+v", first)
	}
	if err := a.Close(); err != nil {
		t.Fatal(err)
	}

	b, err := NewPushApp(ctx, cfg)
	if err != nil {
		t.Fatal(err)
	}
	defer b.Close()

	second, err := b.Push(ctx, ws, PushOptions{})
	if err != nil {
		t.Fatalf("second run failed: %v", err)
	}
	if second.Skipped != 5 || second.Uploaded != 0 {
		t.Errorf("completed work re-uploaded: %+v", second)
	}
}
