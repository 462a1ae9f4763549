package watcher_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"meetsync/internal/logging"
	"meetsync/internal/testsupport"
	"meetsync/internal/watcher"
)

func TestMatches(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	w := watcher.New(cfg, logging.NewNop())

	cases := map[string]bool{
		"2026-01-22_14-26-31.mp4":       true,
		"Standup.MKV":                   true,
		"notes.txt":                     false,
		".hidden.mp4":                   false,
		"~lock.mov":                     false,
		"recording.mp4.part":            false,
		"2026-01-23_DION Video (1).mp4": true,
	}
	for name, want := range cases {
		if got := w.Matches(filepath.Join(cfg.Paths.WatchDir, name)); got != want {
			t.Errorf("Matches(%q) = %v, want %v", name, got, want)
		}
	}
}

func TestScanListsExistingRecordings(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	if err := os.MkdirAll(cfg.Paths.WatchDir, 0o755); err != nil {
		t.Fatal(err)
	}
	for _, name := range []string{"b.mp4", "a.mov", "skip.txt"} {
		if err := os.WriteFile(filepath.Join(cfg.Paths.WatchDir, name), []byte("x"), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	w := watcher.New(cfg, logging.NewNop())
	paths, err := w.Scan()
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if len(paths) != 2 || filepath.Base(paths[0]) != "a.mov" || filepath.Base(paths[1]) != "b.mp4" {
		t.Fatalf("unexpected scan result %v", paths)
	}
}

func TestRunEmitsNewRecordings(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	w := watcher.New(cfg, logging.NewNop())
	if err := os.MkdirAll(cfg.Paths.WatchDir, 0o755); err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	out := make(chan string, 4)
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx, out) }()

	time.Sleep(100 * time.Millisecond)

	if err := os.WriteFile(filepath.Join(cfg.Paths.WatchDir, "ignore.txt"), []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	target := filepath.Join(cfg.Paths.WatchDir, "2026-01-22_14-26-31.mp4")
	if err := os.WriteFile(target, []byte("video"), 0o644); err != nil {
		t.Fatal(err)
	}

	select {
	case got := <-out:
		if got != target {
			t.Fatalf("expected %s, got %s", target, got)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("no event for new recording")
	}

	cancel()
	if err := <-done; err != nil {
		t.Fatalf("Run returned %v", err)
	}
}
