package relocate_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"meetsync/internal/logging"
	"meetsync/internal/relocate"
	"meetsync/internal/services"
	"meetsync/internal/testsupport"
)

func newRelocator(t *testing.T, opts ...relocate.Option) (*relocate.Relocator, string, string) {
	t.Helper()
	cfg := testsupport.NewConfig(t)
	if err := os.MkdirAll(cfg.Paths.WatchDir, 0o755); err != nil {
		t.Fatalf("mkdir watch: %v", err)
	}
	return relocate.New(cfg, logging.NewNop(), opts...), cfg.Paths.WatchDir, cfg.Paths.OutputDir
}

func exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

func TestBuildName(t *testing.T) {
	cases := []struct {
		title, token, ext, want string
	}{
		{"Team Standup", "2026-01-23_00-00-00", ".mp4", "Team Standup_2026-01-23_00-00-00.mp4"},
		{"Design Review", "2026-01-22 14-26-31", "mkv", "Design Review_2026-01-22 14-26-31.mkv"},
		{"Q1: Plan/Budget?", "2026-01-22", ".mp4", "Q1_ Plan_Budget__2026-01-22.mp4"},
		{"   ", "2026-01-22", ".mp4", "Meeting_2026-01-22.mp4"},
	}
	for _, tc := range cases {
		if got := relocate.BuildName(tc.title, tc.token, tc.ext); got != tc.want {
			t.Fatalf("BuildName(%q) = %q, want %q", tc.title, got, tc.want)
		}
	}
}

func TestUniquePathNumbersCollisions(t *testing.T) {
	dir := t.TempDir()
	first, err := relocate.UniquePath(dir, "Standup", ".mp4")
	if err != nil {
		t.Fatalf("UniquePath: %v", err)
	}
	if filepath.Base(first) != "Standup.mp4" {
		t.Fatalf("expected plain name, got %s", first)
	}
	testsupport.WriteFile(t, first, 1)

	second, err := relocate.UniquePath(dir, "Standup", ".mp4")
	if err != nil {
		t.Fatalf("UniquePath: %v", err)
	}
	if filepath.Base(second) != "Standup_01.mp4" {
		t.Fatalf("expected _01 suffix, got %s", second)
	}
	testsupport.WriteFile(t, second, 1)

	third, _ := relocate.UniquePath(dir, "Standup", ".mp4")
	if filepath.Base(third) != "Standup_02.mp4" {
		t.Fatalf("expected _02 suffix, got %s", third)
	}
}

func TestUniquePathGivesUp(t *testing.T) {
	dir := t.TempDir()
	testsupport.WriteFile(t, filepath.Join(dir, "Standup.mp4"), 1)
	for i := 1; i < 100; i++ {
		name := "Standup_" + twoDigits(i) + ".mp4"
		testsupport.WriteFile(t, filepath.Join(dir, name), 1)
	}
	if _, err := relocate.UniquePath(dir, "Standup", ".mp4"); !errors.Is(err, relocate.ErrTooManyCollisions) {
		t.Fatalf("expected ErrTooManyCollisions, got %v", err)
	}
}

func twoDigits(i int) string {
	return string(rune('0'+i/10)) + string(rune('0'+i%10))
}

func TestRelocateRenamesCopiesAndDeletes(t *testing.T) {
	r, watch, output := newRelocator(t)
	src := filepath.Join(watch, "2026-01-23_00-00-00.mp4")
	testsupport.WriteFile(t, src, 4096)

	res, err := r.Relocate(context.Background(), src, "Team Standup", "2026-01-23_00-00-00")
	if err != nil {
		t.Fatalf("Relocate: %v", err)
	}
	want := filepath.Join(output, "Team Standup_2026-01-23_00-00-00.mp4")
	if res.OutputPath != want {
		t.Fatalf("output path = %s, want %s", res.OutputPath, want)
	}
	if res.RenamedPath != filepath.Join(watch, "Team Standup_2026-01-23_00-00-00.mp4") {
		t.Fatalf("unexpected renamed path %s", res.RenamedPath)
	}
	if exists(src) || exists(res.RenamedPath) {
		t.Fatal("source should be removed after a verified copy")
	}
	info, err := os.Stat(want)
	if err != nil || info.Size() != 4096 {
		t.Fatalf("copy missing or wrong size: %v", err)
	}
	if res.Fallback {
		t.Fatal("normal relocation must not be flagged as fallback")
	}
}

func TestRelocateResumesFromRenamedPath(t *testing.T) {
	r, watch, output := newRelocator(t)
	renamed := filepath.Join(watch, "Design Review_2026-01-22 14-26-31.mp4")
	testsupport.WriteFile(t, renamed, 2048)

	res, err := r.Relocate(context.Background(), renamed, "Design Review", "2026-01-22 14-26-31")
	if err != nil {
		t.Fatalf("Relocate: %v", err)
	}
	if res.RenamedPath != renamed {
		t.Fatalf("file should not be renamed twice, got %s", res.RenamedPath)
	}
	if filepath.Dir(res.OutputPath) != output || exists(renamed) {
		t.Fatalf("unexpected result %+v", res)
	}
}

func TestRelocateNumbersOutputCollision(t *testing.T) {
	r, watch, output := newRelocator(t)
	testsupport.WriteFile(t, filepath.Join(output, "Standup_2026-01-22.mp4"), 10)
	src := filepath.Join(watch, "2026-01-22.mp4")
	testsupport.WriteFile(t, src, 100)

	res, err := r.Relocate(context.Background(), src, "Standup", "2026-01-22")
	if err != nil {
		t.Fatalf("Relocate: %v", err)
	}
	if filepath.Base(res.OutputPath) != "Standup_2026-01-22_01.mp4" {
		t.Fatalf("expected numbered copy, got %s", res.OutputPath)
	}
}

func TestRelocateKeepsSourceWhenCopyFails(t *testing.T) {
	r, watch, output := newRelocator(t)
	if err := os.MkdirAll(output, 0o755); err != nil {
		t.Fatalf("mkdir output: %v", err)
	}
	if err := os.Chmod(output, 0o500); err != nil {
		t.Fatalf("chmod output: %v", err)
	}
	t.Cleanup(func() { _ = os.Chmod(output, 0o755) })
	if os.Geteuid() == 0 {
		t.Skip("permission checks do not apply to root")
	}

	src := filepath.Join(watch, "2026-01-22.mp4")
	testsupport.WriteFile(t, src, 100)
	res, err := r.Relocate(context.Background(), src, "Standup", "2026-01-22")
	if err == nil {
		t.Fatal("expected copy failure")
	}
	if !exists(res.RenamedPath) {
		t.Fatalf("renamed source must remain after a failed copy: %s", res.RenamedPath)
	}
}

func TestPreflightRejectsWhenSpaceIsShort(t *testing.T) {
	r, watch, output := newRelocator(t, relocate.WithSpaceCheck(func(string) (uint64, error) { return 50, nil }))
	src := filepath.Join(watch, "2026-01-22.mp4")
	testsupport.WriteFile(t, src, 100)

	_, err := r.Relocate(context.Background(), src, "Standup", "2026-01-22")
	if !errors.Is(err, relocate.ErrInsufficientSpace) {
		t.Fatalf("expected ErrInsufficientSpace, got %v", err)
	}
	if !exists(src) {
		t.Fatal("preflight failure must not touch the source")
	}
	entries, _ := os.ReadDir(output)
	if len(entries) != 0 {
		t.Fatalf("nothing should be copied, found %d entries", len(entries))
	}
}

func TestFallbackKeepsOriginalName(t *testing.T) {
	r, watch, output := newRelocator(t)
	src := filepath.Join(watch, "2026-01-22 14-26-31.mp4")
	testsupport.WriteFile(t, src, 512)

	res, err := r.Fallback(context.Background(), src)
	if err != nil {
		t.Fatalf("Fallback: %v", err)
	}
	if res.OutputPath != filepath.Join(output, "2026-01-22 14-26-31.mp4") || !res.Fallback {
		t.Fatalf("unexpected result %+v", res)
	}
	if exists(src) {
		t.Fatal("source should be removed after a verified copy")
	}
}

func TestWaitReadyRejectsEmptyFile(t *testing.T) {
	r, watch, _ := newRelocator(t)
	src := filepath.Join(watch, "empty.mp4")
	if err := os.WriteFile(src, nil, 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	_, err := r.WaitReady(context.Background(), src)
	if !errors.Is(err, relocate.ErrNotReady) {
		t.Fatalf("expected ErrNotReady, got %v", err)
	}

	_, err = r.Relocate(context.Background(), src, "Standup", "2026-01-22")
	if !errors.Is(err, services.ErrValidation) || !exists(src) {
		t.Fatalf("expected validation failure with source kept, got %v", err)
	}
}

func TestWaitReadyMissingFile(t *testing.T) {
	r, watch, _ := newRelocator(t)
	if _, err := r.WaitReady(context.Background(), filepath.Join(watch, "gone.mp4")); !errors.Is(err, relocate.ErrNotReady) {
		t.Fatalf("expected ErrNotReady, got %v", err)
	}
}
