package config_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/pelletier/go-toml/v2"

	"meetsync/internal/config"
)

func clearCredentialEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"MEETSYNC_TELEGRAM_TOKEN",
		"SCRIBERR_API_KEY",
		"OPENROUTER_API_KEY",
		"OPENAI_API_KEY",
		"GOOGLE_APPLICATION_CREDENTIALS",
		"MEETSYNC_ARCHIVE_DSN",
		"MEETSYNC_API_TOKEN",
	} {
		t.Setenv(key, "")
	}
}

func TestLoadDefaultConfigExpandsPaths(t *testing.T) {
	clearCredentialEnv(t)
	tempHome := t.TempDir()
	t.Setenv("HOME", tempHome)
	t.Chdir(t.TempDir())

	cfg, resolved, exists, err := config.Load("")
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if resolved == "" {
		t.Fatal("expected resolved path")
	}
	if exists {
		t.Fatal("expected config file to be absent in temp HOME")
	}

	wantState := filepath.Join(tempHome, ".local", "share", "meetsync")
	if cfg.Paths.StateDir != wantState {
		t.Fatalf("unexpected state dir: got %q want %q", cfg.Paths.StateDir, wantState)
	}
	if cfg.Paths.WatchDir != filepath.Join(tempHome, "Videos", "meetings", "incoming") {
		t.Fatalf("unexpected watch dir: %q", cfg.Paths.WatchDir)
	}
	if cfg.DatabasePath() != filepath.Join(wantState, "meetsync.db") {
		t.Fatalf("unexpected database path: %q", cfg.DatabasePath())
	}
	if cfg.Calendar.RetryAttempts != 3 || cfg.Calendar.RetryDelaySeconds != 2 {
		t.Fatalf("unexpected calendar retry defaults: %+v", cfg.Calendar)
	}
	if cfg.Calendar.MaxEventsAtTime != 20 || cfg.Calendar.MaxEventsOnDate != 50 {
		t.Fatalf("unexpected calendar limits: %+v", cfg.Calendar)
	}
	if cfg.Google.MeetingTab != "Meeting_Logs" || cfg.Google.ProjectTab != "Project_Config" {
		t.Fatalf("unexpected tabs: %+v", cfg.Google)
	}
	if cfg.Connectivity.ProbeAddress != "8.8.8.8:53" || cfg.Connectivity.IntervalSeconds != 30 {
		t.Fatalf("unexpected connectivity defaults: %+v", cfg.Connectivity)
	}
	if cfg.LLM.Provider != "openrouter" || cfg.LLM.MaxTokens != 80000 {
		t.Fatalf("unexpected llm defaults: %+v", cfg.LLM)
	}
	if !cfg.ExtensionAllowed(".MP4") || cfg.ExtensionAllowed(".txt") {
		t.Fatalf("unexpected extension whitelist: %v", cfg.Workflow.Extensions)
	}
	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("EnsureDirectories failed: %v", err)
	}
	for _, dir := range []string{cfg.Paths.OutputDir, cfg.Paths.StateDir, cfg.Paths.LogDir, cfg.Paths.WatchDir} {
		info, err := os.Stat(dir)
		if err != nil {
			t.Fatalf("expected directory %q to exist: %v", dir, err)
		}
		if !info.IsDir() {
			t.Fatalf("expected %q to be directory", dir)
		}
	}
	if err := cfg.ValidateServices(); err == nil {
		t.Fatal("expected ValidateServices to require credentials")
	}
}

func TestLoadCustomPath(t *testing.T) {
	clearCredentialEnv(t)
	tempDir := t.TempDir()
	configPath := filepath.Join(tempDir, "meetsync.toml")

	type payload struct {
		Paths struct {
			WatchDir  string `toml:"watch_dir"`
			OutputDir string `toml:"output_dir"`
		} `toml:"paths"`
		Calendar struct {
			TimezoneOffsetHours float64 `toml:"timezone_offset_hours"`
		} `toml:"calendar"`
		Scriberr struct {
			BaseURL string `toml:"base_url"`
			APIKey  string `toml:"api_key"`
		} `toml:"scriberr"`
	}
	custom := payload{}
	custom.Paths.WatchDir = filepath.Join(tempDir, "in")
	custom.Paths.OutputDir = filepath.Join(tempDir, "out")
	custom.Calendar.TimezoneOffsetHours = 5.5
	custom.Scriberr.BaseURL = "http://scriberr.local:8080/"
	custom.Scriberr.APIKey = "file-key"
	data, err := toml.Marshal(custom)
	if err != nil {
		t.Fatalf("marshal custom config: %v", err)
	}
	if err := os.WriteFile(configPath, data, 0o644); err != nil {
		t.Fatalf("write custom config: %v", err)
	}

	cfg, resolved, exists, err := config.Load(configPath)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if !exists {
		t.Fatal("expected exists to be true")
	}
	if resolved != configPath {
		t.Fatalf("unexpected resolved path: got %q want %q", resolved, configPath)
	}
	if cfg.Paths.OutputDir != filepath.Join(tempDir, "out") {
		t.Fatalf("unexpected output dir %q", cfg.Paths.OutputDir)
	}
	if cfg.Scriberr.BaseURL != "http://scriberr.local:8080" {
		t.Fatalf("expected trailing slash trimmed, got %q", cfg.Scriberr.BaseURL)
	}
	if cfg.Scriberr.APIKey != "file-key" {
		t.Fatalf("expected scriberr key from file, got %q", cfg.Scriberr.APIKey)
	}
	_, offset := time.Now().In(cfg.Location()).Zone()
	if offset != 5*3600+1800 {
		t.Fatalf("unexpected zone offset %d", offset)
	}
}

func TestEnvFallbacksFillMissingCredentials(t *testing.T) {
	clearCredentialEnv(t)
	t.Setenv("MEETSYNC_TELEGRAM_TOKEN", "env-telegram")
	t.Setenv("SCRIBERR_API_KEY", "env-scriberr")
	t.Setenv("OPENROUTER_API_KEY", "env-openrouter")
	t.Setenv("GOOGLE_APPLICATION_CREDENTIALS", "/etc/meetsync/sa.json")

	configPath := filepath.Join(t.TempDir(), "meetsync.toml")
	contents := "[paths]\nwatch_dir = \"/tmp/in\"\noutput_dir = \"/tmp/out\"\n[telegram]\nchat_id = 42\n[google]\nsheets_id = \"sheet\"\n"
	if err := os.WriteFile(configPath, []byte(contents), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, _, _, err := config.Load(configPath)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.Telegram.BotToken != "env-telegram" {
		t.Errorf("expected telegram token from env, got %q", cfg.Telegram.BotToken)
	}
	if cfg.Scriberr.APIKey != "env-scriberr" {
		t.Errorf("expected scriberr key from env, got %q", cfg.Scriberr.APIKey)
	}
	if cfg.LLM.APIKey != "env-openrouter" {
		t.Errorf("expected llm key from env, got %q", cfg.LLM.APIKey)
	}
	if cfg.Google.CredentialsFile != "/etc/meetsync/sa.json" {
		t.Errorf("expected credentials from env, got %q", cfg.Google.CredentialsFile)
	}
	if err := cfg.ValidateServices(); err != nil {
		t.Fatalf("ValidateServices: %v", err)
	}
}

func TestCreateSample(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sample.toml")
	if err := config.CreateSample(path); err != nil {
		t.Fatalf("CreateSample failed: %v", err)
	}

	contents, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read sample: %v", err)
	}
	if !strings.Contains(string(contents), "[scriberr]") {
		t.Fatalf("sample config missing scriberr section: %s", contents)
	}

	var cfg config.Config
	if err := toml.Unmarshal(contents, &cfg); err != nil {
		t.Fatalf("unmarshal sample: %v", err)
	}
	if !strings.Contains(cfg.Paths.StateDir, "meetsync") {
		t.Fatalf("expected state dir to contain meetsync, got %q", cfg.Paths.StateDir)
	}
	if cfg.Google.MeetingTab != "Meeting_Logs" {
		t.Fatalf("unexpected meeting tab %q", cfg.Google.MeetingTab)
	}
}

func TestValidateDetectsInvalidValues(t *testing.T) {
	cfg := config.Default()
	cfg.Connectivity.IntervalSeconds = 0
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for non-positive probe interval")
	}

	cfg = config.Default()
	cfg.Paths.OutputDir = cfg.Paths.WatchDir
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error when output dir equals watch dir")
	}

	cfg = config.Default()
	cfg.Calendar.TimezoneOffsetHours = 15
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for out of range offset")
	}

	cfg = config.Default()
	cfg.Telegram.BotToken = "token"
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error when bot token set without chat id")
	}

	cfg = config.Default()
	cfg.LLM.Provider = "mystery"
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for unknown llm provider")
	}

	cfg = config.Default()
	cfg.Archive.PostgresDSN = "postgres://localhost/meetsync"
	cfg.Archive.Table = "meeting_log; drop table x"
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for unsafe archive table name")
	}

	cfg = config.Default()
	cfg.API.Bind = "localhost"
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for api bind without port")
	}
}
