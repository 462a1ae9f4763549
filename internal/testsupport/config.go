package testsupport

import (
	"path/filepath"
	"testing"

	"meetsync/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*configBuilder)

type configBuilder struct {
	t       testing.TB
	baseDir string
	cfg     *config.Config
}

// NewConfig produces a config seeded with unique temp directories per test.
// Service credentials are filled with placeholders so validation passes;
// network endpoints point nowhere until a test overrides them.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfgVal := config.Default()
	cfgVal.Paths.WatchDir = filepath.Join(base, "watch")
	cfgVal.Paths.OutputDir = filepath.Join(base, "output")
	cfgVal.Paths.StateDir = filepath.Join(base, "state")
	cfgVal.Paths.LogDir = filepath.Join(base, "logs")
	cfgVal.Paths.ProjectsFile = filepath.Join(base, "projects.yaml")
	cfgVal.Google.CredentialsFile = filepath.Join(base, "credentials.json")
	cfgVal.Google.SheetsID = "sheet-test"
	cfgVal.Telegram.BotToken = "test-token"
	cfgVal.Telegram.ChatID = 42
	cfgVal.Scriberr.APIKey = "test"
	cfgVal.LLM.APIKey = "test"
	cfgVal.Calendar.RetryDelaySeconds = 0
	cfgVal.Connectivity.FlushDelaySeconds = 0
	cfgVal.Workflow.ReadyCheckDelaySeconds = 0

	builder := &configBuilder{
		t:       t,
		baseDir: base,
		cfg:     &cfgVal,
	}

	for _, opt := range opts {
		opt(builder)
	}

	return builder.cfg
}

// WithTimezoneOffset sets the recording timezone offset in hours.
func WithTimezoneOffset(hours float64) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Calendar.TimezoneOffsetHours = hours
	}
}

// WithTelegramAPI points the bot client at a test server.
func WithTelegramAPI(baseURL string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Telegram.APIBaseURL = baseURL
	}
}

// WithScriberr points the transcription client at a test server.
func WithScriberr(baseURL string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Scriberr.BaseURL = baseURL
		b.cfg.Scriberr.PollIntervalSeconds = 1
	}
}

// WithLLM points the completion client at a test server.
func WithLLM(baseURL string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.LLM.BaseURL = baseURL
	}
}

// BaseDir returns the root temp directory backing the generated config.
func BaseDir(cfg *config.Config) string {
	return filepath.Dir(cfg.Paths.StateDir)
}
