package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains directory configuration.
type Paths struct {
	WatchDir     string `toml:"watch_dir"`
	OutputDir    string `toml:"output_dir"`
	StateDir     string `toml:"state_dir"`
	LogDir       string `toml:"log_dir"`
	ProjectsFile string `toml:"projects_file"`
}

// Calendar contains calendar lookup settings.
type Calendar struct {
	CalendarID          string  `toml:"calendar_id"`
	TimezoneOffsetHours float64 `toml:"timezone_offset_hours"`
	RetryAttempts       int     `toml:"retry_attempts"`
	RetryDelaySeconds   int     `toml:"retry_delay_seconds"`
	MaxEventsAtTime     int     `toml:"max_events_at_time"`
	MaxEventsOnDate     int     `toml:"max_events_on_date"`
}

// Google contains service account and spreadsheet settings shared by the
// Calendar, Sheets, and Drive clients.
type Google struct {
	CredentialsFile string `toml:"credentials_file"`
	SheetsID        string `toml:"sheets_id"`
	MeetingTab      string `toml:"meeting_tab"`
	ProjectTab      string `toml:"project_tab"`
	DriveFolderID   string `toml:"drive_folder_id"`
	ShareDocuments  bool   `toml:"share_documents"`
}

// Telegram contains Bot API settings for the review chat.
type Telegram struct {
	BotToken           string `toml:"bot_token"`
	ChatID             int64  `toml:"chat_id"`
	APIBaseURL         string `toml:"api_base_url"`
	PollTimeoutSeconds int    `toml:"poll_timeout_seconds"`
	RequestTimeout     int    `toml:"request_timeout"`
}

// Scriberr contains transcription service settings.
type Scriberr struct {
	BaseURL             string `toml:"base_url"`
	APIKey              string `toml:"api_key"`
	PollIntervalSeconds int    `toml:"poll_interval_seconds"`
	RequestTimeout      int    `toml:"request_timeout"`
	Model               string `toml:"model"`
	Device              string `toml:"device"`
	ComputeType         string `toml:"compute_type"`
	BatchSize           int    `toml:"batch_size"`
}

// LLM contains text completion settings used for speaker identification,
// summaries, and project tagging.
type LLM struct {
	Provider       string `toml:"provider"`
	APIKey         string `toml:"api_key"`
	BaseURL        string `toml:"base_url"`
	Model          string `toml:"model"`
	Referer        string `toml:"referer"`
	Title          string `toml:"title"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
	MaxTokens      int    `toml:"max_tokens"`
}

// Connectivity contains settings for the reachability probe.
type Connectivity struct {
	ProbeAddress      string `toml:"probe_address"`
	IntervalSeconds   int    `toml:"interval_seconds"`
	TimeoutSeconds    int    `toml:"timeout_seconds"`
	FlushDelaySeconds int    `toml:"flush_delay_seconds"`
}

// Workflow contains intake and file readiness settings.
type Workflow struct {
	Extensions             []string `toml:"extensions"`
	IntakeBuffer           int      `toml:"intake_buffer"`
	ReadyCheckAttempts     int      `toml:"ready_check_attempts"`
	ReadyCheckDelaySeconds int      `toml:"ready_check_delay_seconds"`
	ScanOnStart            bool     `toml:"scan_on_start"`
}

// Notifications contains configuration for ntfy push notifications.
type Notifications struct {
	NtfyTopic      string `toml:"ntfy_topic"`
	RequestTimeout int    `toml:"request_timeout"`
	Published      bool   `toml:"published"`
	Offline        bool   `toml:"offline"`
	Errors         bool   `toml:"errors"`
}

// Archive contains the optional Postgres mirror of published log entries.
type Archive struct {
	PostgresDSN string `toml:"postgres_dsn"`
	Table       string `toml:"table"`
}

// API contains the optional read-only HTTP status endpoint.
type API struct {
	Bind  string `toml:"bind"`
	Token string `toml:"token"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format        string `toml:"format"`
	Level         string `toml:"level"`
	RetentionDays int    `toml:"retention_days"`
}

// Config encapsulates all configuration values for meetsync.
//
// Configuration sections by subsystem:
//   - Paths: watch, output, state, and log directories
//   - Calendar: timezone offset and lookup limits
//   - Google: service account, spreadsheet, and Drive folder
//   - Telegram: review chat bot
//   - Scriberr: transcription service
//   - LLM: text completion provider
//   - Connectivity: reachability probe and queue flush pacing
//   - Workflow: intake and readiness checks
//   - Notifications: ntfy push notification settings
//   - Archive: optional Postgres archive
//   - API: optional HTTP status endpoint
//   - Logging: log format, level, and retention
type Config struct {
	Paths         Paths         `toml:"paths"`
	Calendar      Calendar      `toml:"calendar"`
	Google        Google        `toml:"google"`
	Telegram      Telegram      `toml:"telegram"`
	Scriberr      Scriberr      `toml:"scriberr"`
	LLM           LLM           `toml:"llm"`
	Connectivity  Connectivity  `toml:"connectivity"`
	Workflow      Workflow      `toml:"workflow"`
	Notifications Notifications `toml:"notifications"`
	Archive       Archive       `toml:"archive"`
	API           API           `toml:"api"`
	Logging       Logging       `toml:"logging"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath(defaultConfigPath)
}

// Load locates, parses, and validates a configuration file. The returned config has all
// path fields expanded and normalized.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := expandPath(defaultConfigPath)
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("meetsync.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

// EnsureDirectories creates required directories for daemon operation.
// The watch directory is created on a best-effort basis so the daemon can
// start while a network share is still mounting.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.OutputDir, c.Paths.StateDir, c.Paths.LogDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	if strings.TrimSpace(c.Paths.WatchDir) != "" {
		_ = os.MkdirAll(c.Paths.WatchDir, 0o755)
	}
	return nil
}

// DatabasePath returns the SQLite state database location.
func (c *Config) DatabasePath() string {
	return filepath.Join(c.Paths.StateDir, "meetsync.db")
}

// SocketPath returns the daemon control socket location.
func (c *Config) SocketPath() string {
	return filepath.Join(c.Paths.StateDir, "meetsync.sock")
}

// LockPath returns the single-instance lock file location.
func (c *Config) LockPath() string {
	return filepath.Join(c.Paths.StateDir, "meetsync.lock")
}

// PIDPath returns the daemon PID file location.
func (c *Config) PIDPath() string {
	return filepath.Join(c.Paths.StateDir, "meetsync.pid")
}

// Location returns the fixed zone filenames and calendar lookups are
// interpreted in.
func (c *Config) Location() *time.Location {
	offset := int(c.Calendar.TimezoneOffsetHours * 3600)
	if offset == 0 {
		return time.UTC
	}
	hours := c.Calendar.TimezoneOffsetHours
	return time.FixedZone(fmt.Sprintf("UTC%+g", hours), offset)
}

// ExtensionAllowed reports whether a file extension is accepted for intake.
func (c *Config) ExtensionAllowed(ext string) bool {
	ext = strings.ToLower(strings.TrimSpace(ext))
	for _, allowed := range c.Workflow.Extensions {
		if ext == allowed {
			return true
		}
	}
	return false
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}

	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}

// LLMConfig contains the resolved text completion settings.
type LLMConfig struct {
	Provider       string
	APIKey         string
	BaseURL        string
	Model          string
	Referer        string
	Title          string
	TimeoutSeconds int
	MaxTokens      int
}

// GetLLM returns the text completion connection settings.
func (c *Config) GetLLM() LLMConfig {
	return LLMConfig{
		Provider:       strings.TrimSpace(c.LLM.Provider),
		APIKey:         strings.TrimSpace(c.LLM.APIKey),
		BaseURL:        strings.TrimSpace(c.LLM.BaseURL),
		Model:          strings.TrimSpace(c.LLM.Model),
		Referer:        strings.TrimSpace(c.LLM.Referer),
		Title:          strings.TrimSpace(c.LLM.Title),
		TimeoutSeconds: c.LLM.TimeoutSeconds,
		MaxTokens:      c.LLM.MaxTokens,
	}
}
