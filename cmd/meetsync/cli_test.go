package main

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/pelletier/go-toml/v2"

	"meetsync/internal/api"
	"meetsync/internal/config"
	"meetsync/internal/daemon"
	"meetsync/internal/ipc"
	"meetsync/internal/logging"
	"meetsync/internal/preflight"
	"meetsync/internal/testsupport"
)

type cliTestEnv struct {
	cfg        *config.Config
	stack      *testsupport.Stack
	daemon     *daemon.Daemon
	socketPath string
	configPath string
}

func setupCLITestEnv(t *testing.T) *cliTestEnv {
	t.Helper()

	base := t.TempDir()
	t.Setenv("HOME", filepath.Join(base, "home"))
	cfg := testsupport.NewConfig(t)
	configPath := writeTestConfig(t, base, cfg)

	stack := testsupport.NewStack(t, cfg)
	logger := logging.NewNop()
	d, err := daemon.New(cfg, stack.Store, logger, daemon.Components{
		Manager:    stack.Manager,
		Dispatcher: stack.Dispatcher,
		Publisher:  stack.Publisher,
	}, daemon.WithPreflight(func(context.Context) []preflight.Result { return nil }))
	if err != nil {
		t.Fatalf("daemon.New: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	socketPath := shortSocketPath(t)
	srv, err := ipc.NewServer(ctx, socketPath, d, logger)
	if err != nil {
		cancel()
		d.Close()
		if strings.Contains(err.Error(), "operation not permitted") {
			t.Skipf("skipping CLI daemon test: %v", err)
		}
		t.Fatalf("ipc.NewServer: %v", err)
	}
	srv.Serve()

	t.Cleanup(func() {
		cancel()
		srv.Close()
		d.Close()
	})

	return &cliTestEnv{
		cfg:        cfg,
		stack:      stack,
		daemon:     d,
		socketPath: socketPath,
		configPath: configPath,
	}
}

// Unix socket paths are length limited, so keep them out of t.TempDir.
func shortSocketPath(t *testing.T) string {
	t.Helper()
	dir, err := os.MkdirTemp("", "mscli")
	if err != nil {
		t.Fatalf("MkdirTemp: %v", err)
	}
	t.Cleanup(func() { os.RemoveAll(dir) })
	return filepath.Join(dir, "meetsync.sock")
}

func writeTestConfig(t *testing.T, dir string, cfg *config.Config) string {
	t.Helper()
	data, err := toml.Marshal(cfg)
	if err != nil {
		t.Fatalf("marshal config: %v", err)
	}
	path := filepath.Join(dir, "config.toml")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func runCLI(t *testing.T, args []string, socket, configPath string) (string, string, error) {
	t.Helper()
	cmd := newRootCommand()
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	flags := []string{"--socket", socket}
	if configPath != "" {
		flags = append(flags, "--config", configPath)
	}
	cmd.SetArgs(append(flags, args...))
	err := cmd.Execute()
	return stdout.String(), stderr.String(), err
}

func requireContains(t *testing.T, output, substr string) {
	t.Helper()
	if !strings.Contains(output, substr) {
		t.Fatalf("expected %q to contain %q", output, substr)
	}
}

func TestStatusCommandReportsRunningDaemon(t *testing.T) {
	env := setupCLITestEnv(t)
	if err := env.daemon.Start(context.Background()); err != nil {
		t.Fatalf("daemon start: %v", err)
	}

	out, _, err := runCLI(t, []string{"status"}, env.socketPath, env.configPath)
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	requireContains(t, out, "== System Status ==")
	requireContains(t, out, "[OK] Running")
	requireContains(t, out, "== Pipeline ==")

	out, _, err = runCLI(t, []string{"status", "--json"}, env.socketPath, env.configPath)
	if err != nil {
		t.Fatalf("status --json: %v", err)
	}
	var snap struct {
		Running bool `json:"running"`
		PID     int  `json:"pid"`
	}
	if err := json.Unmarshal([]byte(out), &snap); err != nil {
		t.Fatalf("decode status json: %v\n%s", err, out)
	}
	if !snap.Running || snap.PID != os.Getpid() {
		t.Fatalf("unexpected status snapshot: %+v", snap)
	}
}

func TestStatusCommandReadsDatabaseWhenDaemonDown(t *testing.T) {
	base := t.TempDir()
	t.Setenv("HOME", filepath.Join(base, "home"))
	cfg := testsupport.NewConfig(t)
	configPath := writeTestConfig(t, base, cfg)
	store := testsupport.MustOpenStore(t, cfg)
	testsupport.NewAsset(t, store, cfg, "2026-01-22_09-00-00.mp4")

	out, _, err := runCLI(t, []string{"status"}, filepath.Join(base, "missing.sock"), configPath)
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	requireContains(t, out, "[WARN] Not running")
	requireContains(t, out, "Recordings")
	requireContains(t, out, "Detected")
}

func TestQueueListUsesDaemon(t *testing.T) {
	env := setupCLITestEnv(t)
	testsupport.NewAsset(t, env.stack.Store, env.cfg, "2026-01-22_09-00-00.mp4")

	out, _, err := runCLI(t, []string{"queue", "list"}, env.socketPath, env.configPath)
	if err != nil {
		t.Fatalf("queue list: %v", err)
	}
	requireContains(t, out, "2026-01-22_09-00-00.mp4")
	requireContains(t, out, "Detected")

	if _, _, err := runCLI(t, []string{"queue", "list", "--status", "bogus"}, env.socketPath, env.configPath); err == nil {
		t.Fatal("expected error for unknown status")
	}
}

func TestQueueListFallsBackToDatabase(t *testing.T) {
	base := t.TempDir()
	t.Setenv("HOME", filepath.Join(base, "home"))
	cfg := testsupport.NewConfig(t)
	configPath := writeTestConfig(t, base, cfg)
	store := testsupport.MustOpenStore(t, cfg)
	testsupport.NewAsset(t, store, cfg, "2026-02-03_10-15-00.mp4")

	socket := filepath.Join(base, "missing.sock")
	out, _, err := runCLI(t, []string{"queue", "list", "--json"}, socket, configPath)
	if err != nil {
		t.Fatalf("queue list: %v", err)
	}
	var resp api.AssetListResponse
	if err := json.Unmarshal([]byte(out), &resp); err != nil {
		t.Fatalf("decode json: %v\n%s", err, out)
	}
	if len(resp.Assets) != 1 || resp.Assets[0].FileName != "2026-02-03_10-15-00.mp4" {
		t.Fatalf("unexpected assets: %+v", resp.Assets)
	}

	_, _, err = runCLI(t, []string{"queue", "flush"}, socket, configPath)
	if err == nil || !strings.Contains(err.Error(), "not found") {
		t.Fatalf("expected socket not found error, got %v", err)
	}
}

func TestQueueOfflineEmpty(t *testing.T) {
	env := setupCLITestEnv(t)
	out, _, err := runCLI(t, []string{"queue", "offline"}, env.socketPath, env.configPath)
	if err != nil {
		t.Fatalf("queue offline: %v", err)
	}
	requireContains(t, out, "Nothing waiting for connectivity")
}

func TestJobsCommandsReportMissingJob(t *testing.T) {
	env := setupCLITestEnv(t)

	out, _, err := runCLI(t, []string{"jobs", "list"}, env.socketPath, env.configPath)
	if err != nil {
		t.Fatalf("jobs list: %v", err)
	}
	requireContains(t, out, "No jobs")

	for _, args := range [][]string{
		{"jobs", "show", "missing"},
		{"jobs", "finalize", "missing"},
		{"speakers", "rename", "missing", "SPEAKER_00", "Alice"},
	} {
		if _, _, err := runCLI(t, args, env.socketPath, env.configPath); err == nil {
			t.Fatalf("%v: expected error for missing job", args)
		}
	}
}

func TestAddCommandValidatesInput(t *testing.T) {
	env := setupCLITestEnv(t)

	notes := filepath.Join(env.cfg.Paths.WatchDir, "notes.txt")
	testsupport.WriteFile(t, notes, 16)
	_, _, err := runCLI(t, []string{"add", notes}, env.socketPath, env.configPath)
	if err == nil || !strings.Contains(err.Error(), "unsupported file extension") {
		t.Fatalf("expected extension error, got %v", err)
	}

	_, _, err = runCLI(t, []string{"add", filepath.Join(env.cfg.Paths.WatchDir, "missing.mp4")}, env.socketPath, env.configPath)
	if err == nil || !strings.Contains(err.Error(), "does not exist") {
		t.Fatalf("expected missing file error, got %v", err)
	}
}

func TestAddCommandWithoutDaemonRecordsAsset(t *testing.T) {
	base := t.TempDir()
	t.Setenv("HOME", filepath.Join(base, "home"))
	cfg := testsupport.NewConfig(t)
	configPath := writeTestConfig(t, base, cfg)
	src := filepath.Join(cfg.Paths.WatchDir, "2026-03-01_08-00-00.mp4")
	testsupport.WriteFile(t, src, 64)

	socket := filepath.Join(base, "missing.sock")
	out, _, err := runCLI(t, []string{"add", src}, socket, configPath)
	if err != nil {
		t.Fatalf("add: %v", err)
	}
	requireContains(t, out, "processed when the daemon starts")

	out, _, err = runCLI(t, []string{"add", src}, socket, configPath)
	if err != nil {
		t.Fatalf("second add: %v", err)
	}
	requireContains(t, out, "already registered")
}

func TestLogsCommandFiltersByJob(t *testing.T) {
	env := setupCLITestEnv(t)
	content := "job=a started\njob=b started\njob=a done\n"
	if err := os.WriteFile(env.daemon.LogPath(), []byte(content), 0o644); err != nil {
		t.Fatalf("write log: %v", err)
	}

	out, _, err := runCLI(t, []string{"logs", "--job", "job=a", "-n", "5"}, env.socketPath, env.configPath)
	if err != nil {
		t.Fatalf("logs: %v", err)
	}
	if out != "job=a started\njob=a done\n" {
		t.Fatalf("unexpected log output %q", out)
	}
}

func TestTestNotifyWithoutTopic(t *testing.T) {
	env := setupCLITestEnv(t)
	out, _, err := runCLI(t, []string{"test-notify"}, env.socketPath, env.configPath)
	if err != nil {
		t.Fatalf("test-notify: %v", err)
	}
	requireContains(t, out, "ntfy topic not configured")
}

func TestConfigInitAndValidate(t *testing.T) {
	base := t.TempDir()
	t.Setenv("HOME", filepath.Join(base, "home"))
	target := filepath.Join(base, "cfg", "config.toml")

	out, _, err := runCLI(t, []string{"config", "init", "--path", target}, filepath.Join(base, "none.sock"), "")
	if err != nil {
		t.Fatalf("config init: %v", err)
	}
	requireContains(t, out, "Wrote sample configuration")
	if _, err := os.Stat(target); err != nil {
		t.Fatalf("expected sample config: %v", err)
	}

	if _, _, err := runCLI(t, []string{"config", "init", "--path", target}, filepath.Join(base, "none.sock"), ""); err == nil {
		t.Fatal("expected error when config already exists")
	}

	cfg := testsupport.NewConfig(t)
	configPath := writeTestConfig(t, base, cfg)
	out, _, err = runCLI(t, []string{"config", "validate"}, filepath.Join(base, "none.sock"), configPath)
	if err != nil {
		t.Fatalf("config validate: %v", err)
	}
	requireContains(t, out, "Configuration valid")
	requireContains(t, out, configPath)
}
