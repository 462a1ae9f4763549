package config

import (
	"fmt"
	"os"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	c.normalizeCalendar()
	if err := c.normalizeGoogle(); err != nil {
		return err
	}
	c.normalizeTelegram()
	c.normalizeScriberr()
	c.normalizeLLM()
	c.normalizeConnectivity()
	c.normalizeWorkflow()
	c.normalizeArchive()
	c.normalizeAPI()
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizePaths() error {
	var err error
	if c.Paths.WatchDir, err = expandPath(strings.TrimSpace(c.Paths.WatchDir)); err != nil {
		return fmt.Errorf("paths.watch_dir: %w", err)
	}
	if c.Paths.OutputDir, err = expandPath(strings.TrimSpace(c.Paths.OutputDir)); err != nil {
		return fmt.Errorf("paths.output_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.StateDir) == "" {
		c.Paths.StateDir = defaultStateDir
	}
	if c.Paths.StateDir, err = expandPath(c.Paths.StateDir); err != nil {
		return fmt.Errorf("paths.state_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.LogDir) == "" {
		c.Paths.LogDir = defaultLogDir
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	if c.Paths.ProjectsFile, err = expandPath(strings.TrimSpace(c.Paths.ProjectsFile)); err != nil {
		return fmt.Errorf("paths.projects_file: %w", err)
	}
	return nil
}

func (c *Config) normalizeCalendar() {
	c.Calendar.CalendarID = strings.TrimSpace(c.Calendar.CalendarID)
	if c.Calendar.CalendarID == "" {
		c.Calendar.CalendarID = defaultCalendarID
	}
	if c.Calendar.RetryAttempts <= 0 {
		c.Calendar.RetryAttempts = defaultCalendarRetryAttempts
	}
	if c.Calendar.RetryDelaySeconds < 0 {
		c.Calendar.RetryDelaySeconds = defaultCalendarRetryDelay
	}
	if c.Calendar.MaxEventsAtTime <= 0 {
		c.Calendar.MaxEventsAtTime = defaultMaxEventsAtTime
	}
	if c.Calendar.MaxEventsOnDate <= 0 {
		c.Calendar.MaxEventsOnDate = defaultMaxEventsOnDate
	}
}

func (c *Config) normalizeGoogle() error {
	c.Google.CredentialsFile = strings.TrimSpace(c.Google.CredentialsFile)
	if c.Google.CredentialsFile == "" {
		if value, ok := os.LookupEnv("GOOGLE_APPLICATION_CREDENTIALS"); ok {
			c.Google.CredentialsFile = strings.TrimSpace(value)
		}
	}
	if c.Google.CredentialsFile != "" {
		var err error
		if c.Google.CredentialsFile, err = expandPath(c.Google.CredentialsFile); err != nil {
			return fmt.Errorf("google.credentials_file: %w", err)
		}
	}
	c.Google.SheetsID = strings.TrimSpace(c.Google.SheetsID)
	c.Google.DriveFolderID = strings.TrimSpace(c.Google.DriveFolderID)
	c.Google.MeetingTab = strings.TrimSpace(c.Google.MeetingTab)
	if c.Google.MeetingTab == "" {
		c.Google.MeetingTab = defaultMeetingTab
	}
	c.Google.ProjectTab = strings.TrimSpace(c.Google.ProjectTab)
	if c.Google.ProjectTab == "" {
		c.Google.ProjectTab = defaultProjectTab
	}
	return nil
}

func (c *Config) normalizeTelegram() {
	c.Telegram.BotToken = strings.TrimSpace(c.Telegram.BotToken)
	if c.Telegram.BotToken == "" {
		if value, ok := os.LookupEnv("MEETSYNC_TELEGRAM_TOKEN"); ok {
			c.Telegram.BotToken = strings.TrimSpace(value)
		}
	}
	c.Telegram.APIBaseURL = strings.TrimRight(strings.TrimSpace(c.Telegram.APIBaseURL), "/")
	if c.Telegram.APIBaseURL == "" {
		c.Telegram.APIBaseURL = defaultTelegramAPIBaseURL
	}
	if c.Telegram.PollTimeoutSeconds <= 0 {
		c.Telegram.PollTimeoutSeconds = defaultTelegramPollTimeout
	}
	if c.Telegram.RequestTimeout <= 0 {
		c.Telegram.RequestTimeout = defaultTelegramRequestTimeout
	}
}

func (c *Config) normalizeScriberr() {
	c.Scriberr.BaseURL = strings.TrimRight(strings.TrimSpace(c.Scriberr.BaseURL), "/")
	if c.Scriberr.BaseURL == "" {
		c.Scriberr.BaseURL = defaultScriberrBaseURL
	}
	c.Scriberr.APIKey = strings.TrimSpace(c.Scriberr.APIKey)
	if c.Scriberr.APIKey == "" {
		if value, ok := os.LookupEnv("SCRIBERR_API_KEY"); ok {
			c.Scriberr.APIKey = strings.TrimSpace(value)
		}
	}
	if c.Scriberr.PollIntervalSeconds <= 0 {
		c.Scriberr.PollIntervalSeconds = defaultScriberrPollInterval
	}
	if c.Scriberr.RequestTimeout <= 0 {
		c.Scriberr.RequestTimeout = defaultScriberrRequestTimeout
	}
	if strings.TrimSpace(c.Scriberr.Model) == "" {
		c.Scriberr.Model = defaultScriberrModel
	}
	if strings.TrimSpace(c.Scriberr.Device) == "" {
		c.Scriberr.Device = defaultScriberrDevice
	}
	if strings.TrimSpace(c.Scriberr.ComputeType) == "" {
		c.Scriberr.ComputeType = defaultScriberrComputeType
	}
	if c.Scriberr.BatchSize <= 0 {
		c.Scriberr.BatchSize = defaultScriberrBatchSize
	}
}

func (c *Config) normalizeLLM() {
	c.LLM.Provider = strings.ToLower(strings.TrimSpace(c.LLM.Provider))
	if c.LLM.Provider == "" {
		c.LLM.Provider = defaultLLMProvider
	}
	c.LLM.BaseURL = strings.TrimSpace(c.LLM.BaseURL)
	if c.LLM.BaseURL == "" && c.LLM.Provider == defaultLLMProvider {
		c.LLM.BaseURL = defaultLLMBaseURL
	}
	c.LLM.Model = strings.TrimSpace(c.LLM.Model)
	if c.LLM.Model == "" {
		c.LLM.Model = defaultLLMModel
	}
	if strings.TrimSpace(c.LLM.Referer) == "" {
		c.LLM.Referer = defaultLLMReferer
	}
	if strings.TrimSpace(c.LLM.Title) == "" {
		c.LLM.Title = defaultLLMTitle
	}
	if c.LLM.TimeoutSeconds <= 0 {
		c.LLM.TimeoutSeconds = defaultLLMTimeoutSeconds
	}
	if c.LLM.MaxTokens <= 0 {
		c.LLM.MaxTokens = defaultLLMMaxTokens
	}
	c.LLM.APIKey = strings.TrimSpace(c.LLM.APIKey)
	if c.LLM.APIKey == "" {
		envKeys := []string{"OPENROUTER_API_KEY", "OPENAI_API_KEY"}
		if c.LLM.Provider == "openai" {
			envKeys = []string{"OPENAI_API_KEY", "OPENROUTER_API_KEY"}
		}
		for _, key := range envKeys {
			if value, ok := os.LookupEnv(key); ok && strings.TrimSpace(value) != "" {
				c.LLM.APIKey = strings.TrimSpace(value)
				break
			}
		}
	}
}

func (c *Config) normalizeConnectivity() {
	c.Connectivity.ProbeAddress = strings.TrimSpace(c.Connectivity.ProbeAddress)
	if c.Connectivity.ProbeAddress == "" {
		c.Connectivity.ProbeAddress = defaultProbeAddress
	}
	if c.Connectivity.FlushDelaySeconds < 0 {
		c.Connectivity.FlushDelaySeconds = 0
	}
}

func (c *Config) normalizeWorkflow() {
	exts := make([]string, 0, len(c.Workflow.Extensions))
	seen := make(map[string]struct{}, len(c.Workflow.Extensions))
	for _, ext := range c.Workflow.Extensions {
		normalized := strings.ToLower(strings.TrimSpace(ext))
		if normalized == "" {
			continue
		}
		if !strings.HasPrefix(normalized, ".") {
			normalized = "." + normalized
		}
		if _, exists := seen[normalized]; exists {
			continue
		}
		seen[normalized] = struct{}{}
		exts = append(exts, normalized)
	}
	if len(exts) == 0 {
		exts = append(exts, defaultExtensions...)
	}
	c.Workflow.Extensions = exts
	if c.Workflow.IntakeBuffer <= 0 {
		c.Workflow.IntakeBuffer = defaultIntakeBuffer
	}
}

func (c *Config) normalizeArchive() {
	c.Archive.PostgresDSN = strings.TrimSpace(c.Archive.PostgresDSN)
	if c.Archive.PostgresDSN == "" {
		if value, ok := os.LookupEnv("MEETSYNC_ARCHIVE_DSN"); ok {
			c.Archive.PostgresDSN = strings.TrimSpace(value)
		}
	}
	c.Archive.Table = strings.TrimSpace(c.Archive.Table)
	if c.Archive.Table == "" {
		c.Archive.Table = defaultArchiveTable
	}
}

func (c *Config) normalizeAPI() {
	c.API.Bind = strings.TrimSpace(c.API.Bind)
	c.API.Token = strings.TrimSpace(c.API.Token)
	if c.API.Token == "" {
		if value, ok := os.LookupEnv("MEETSYNC_API_TOKEN"); ok {
			c.API.Token = strings.TrimSpace(value)
		}
	}
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	switch c.Logging.Format {
	case "", "console":
		c.Logging.Format = "console"
	case "json":
	default:
		c.Logging.Format = "console"
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
	if c.Logging.RetentionDays < 0 {
		c.Logging.RetentionDays = 0
	}
}
