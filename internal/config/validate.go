package config

import (
	"errors"
	"fmt"
	"net"
	"path/filepath"
	"regexp"
	"strings"
)

var archiveTablePattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validatePaths(); err != nil {
		return err
	}
	if err := c.validateCalendar(); err != nil {
		return err
	}
	if err := c.validateTelegram(); err != nil {
		return err
	}
	if err := c.validateLLM(); err != nil {
		return err
	}
	if err := c.validateTimings(); err != nil {
		return err
	}
	if err := c.validateArchive(); err != nil {
		return err
	}
	if err := c.validateAPI(); err != nil {
		return err
	}
	return nil
}

// ValidateServices checks the credentials the daemon needs to talk to
// external services. CLI commands that only inspect local state skip it.
func (c *Config) ValidateServices() error {
	defaultPath, err := DefaultConfigPath()
	if err != nil {
		defaultPath = defaultConfigPath
	}
	hint := fmt.Sprintf("edit %s (create with 'meetsync config init')", defaultPath)
	if strings.TrimSpace(c.Google.CredentialsFile) == "" {
		return fmt.Errorf("google.credentials_file is required. Set GOOGLE_APPLICATION_CREDENTIALS or %s", hint)
	}
	if strings.TrimSpace(c.Google.SheetsID) == "" {
		return fmt.Errorf("google.sheets_id is required; %s", hint)
	}
	if strings.TrimSpace(c.Telegram.BotToken) == "" {
		return fmt.Errorf("telegram.bot_token is required. Set MEETSYNC_TELEGRAM_TOKEN or %s", hint)
	}
	if strings.TrimSpace(c.Scriberr.APIKey) == "" {
		return fmt.Errorf("scriberr.api_key is required. Set SCRIBERR_API_KEY or %s", hint)
	}
	if strings.TrimSpace(c.LLM.APIKey) == "" {
		return fmt.Errorf("llm.api_key is required. Set OPENROUTER_API_KEY or %s", hint)
	}
	return nil
}

func (c *Config) validatePaths() error {
	if c.Paths.WatchDir == "" {
		return errors.New("paths.watch_dir must be set")
	}
	if c.Paths.OutputDir == "" {
		return errors.New("paths.output_dir must be set")
	}
	if filepath.Clean(c.Paths.WatchDir) == filepath.Clean(c.Paths.OutputDir) {
		return errors.New("paths.output_dir must differ from paths.watch_dir")
	}
	return nil
}

func (c *Config) validateCalendar() error {
	if c.Calendar.TimezoneOffsetHours < -14 || c.Calendar.TimezoneOffsetHours > 14 {
		return errors.New("calendar.timezone_offset_hours must be between -14 and 14")
	}
	return nil
}

func (c *Config) validateTelegram() error {
	if c.Telegram.BotToken != "" && c.Telegram.ChatID == 0 {
		return errors.New("telegram.chat_id must be set when telegram.bot_token is configured")
	}
	return nil
}

func (c *Config) validateLLM() error {
	switch c.LLM.Provider {
	case "openrouter":
	case "openai":
	default:
		return fmt.Errorf("llm.provider: unsupported value %q (want openrouter or openai)", c.LLM.Provider)
	}
	return nil
}

func (c *Config) validateTimings() error {
	if c.Workflow.ReadyCheckDelaySeconds < 0 {
		return errors.New("workflow.ready_check_delay_seconds must not be negative")
	}
	return ensurePositiveMap(map[string]int{
		"calendar.retry_attempts":        c.Calendar.RetryAttempts,
		"scriberr.poll_interval_seconds": c.Scriberr.PollIntervalSeconds,
		"scriberr.request_timeout":       c.Scriberr.RequestTimeout,
		"telegram.request_timeout":       c.Telegram.RequestTimeout,
		"llm.timeout_seconds":            c.LLM.TimeoutSeconds,
		"llm.max_tokens":                 c.LLM.MaxTokens,
		"connectivity.interval_seconds":  c.Connectivity.IntervalSeconds,
		"connectivity.timeout_seconds":   c.Connectivity.TimeoutSeconds,
		"notifications.request_timeout":  c.Notifications.RequestTimeout,
		"workflow.ready_check_attempts":  c.Workflow.ReadyCheckAttempts,
	})
}

func (c *Config) validateArchive() error {
	if c.Archive.PostgresDSN == "" {
		return nil
	}
	if !archiveTablePattern.MatchString(c.Archive.Table) {
		return fmt.Errorf("archive.table %q must be a plain SQL identifier", c.Archive.Table)
	}
	return nil
}

func (c *Config) validateAPI() error {
	if c.API.Bind == "" {
		return nil
	}
	if _, _, err := net.SplitHostPort(c.API.Bind); err != nil {
		return fmt.Errorf("api.bind %q must be host:port: %w", c.API.Bind, err)
	}
	return nil
}

func ensurePositiveMap(values map[string]int) error {
	for key, value := range values {
		if value <= 0 {
			return fmt.Errorf("%s must be positive", key)
		}
	}
	return nil
}
