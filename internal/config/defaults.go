package config

const (
	defaultConfigPath             = "~/.config/meetsync/config.toml"
	defaultWatchDir               = "~/Videos/meetings/incoming"
	defaultOutputDir              = "~/Videos/meetings"
	defaultStateDir               = "~/.local/share/meetsync"
	defaultLogDir                 = "~/.local/share/meetsync/logs"
	defaultProjectsFile           = "~/.config/meetsync/projects.yaml"
	defaultLogRetentionDays       = 60
	defaultLogFormat              = "console"
	defaultLogLevel               = "info"
	defaultCalendarID             = "primary"
	defaultCalendarRetryAttempts  = 3
	defaultCalendarRetryDelay     = 2
	defaultMaxEventsAtTime        = 20
	defaultMaxEventsOnDate        = 50
	defaultMeetingTab             = "Meeting_Logs"
	defaultProjectTab             = "Project_Config"
	defaultTelegramAPIBaseURL     = "https://api.telegram.org"
	defaultTelegramPollTimeout    = 30
	defaultTelegramRequestTimeout = 10
	defaultScriberrBaseURL        = "http://localhost:8080"
	defaultScriberrPollInterval   = 10
	defaultScriberrRequestTimeout = 600
	defaultScriberrModel          = "medium"
	defaultScriberrDevice         = "cuda"
	defaultScriberrComputeType    = "float32"
	defaultScriberrBatchSize      = 4
	defaultLLMProvider            = "openrouter"
	defaultLLMBaseURL             = "https://openrouter.ai/api/v1/chat/completions"
	defaultLLMModel               = "google/gemini-2.0-flash-001"
	defaultLLMReferer             = "https://github.com/meetsync/meetsync"
	defaultLLMTitle               = "meetsync"
	defaultLLMTimeoutSeconds      = 60
	defaultLLMMaxTokens           = 80000
	defaultProbeAddress           = "8.8.8.8:53"
	defaultProbeInterval          = 30
	defaultProbeTimeout           = 5
	defaultFlushDelay             = 2
	defaultIntakeBuffer           = 64
	defaultReadyCheckAttempts     = 5
	defaultReadyCheckDelay        = 2
	defaultArchiveTable           = "meeting_log"
)

var defaultExtensions = []string{".mp4", ".mkv", ".mov", ".webm", ".avi"}

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			WatchDir:     defaultWatchDir,
			OutputDir:    defaultOutputDir,
			StateDir:     defaultStateDir,
			LogDir:       defaultLogDir,
			ProjectsFile: defaultProjectsFile,
		},
		Calendar: Calendar{
			CalendarID:        defaultCalendarID,
			RetryAttempts:     defaultCalendarRetryAttempts,
			RetryDelaySeconds: defaultCalendarRetryDelay,
			MaxEventsAtTime:   defaultMaxEventsAtTime,
			MaxEventsOnDate:   defaultMaxEventsOnDate,
		},
		Google: Google{
			MeetingTab:     defaultMeetingTab,
			ProjectTab:     defaultProjectTab,
			ShareDocuments: true,
		},
		Telegram: Telegram{
			APIBaseURL:         defaultTelegramAPIBaseURL,
			PollTimeoutSeconds: defaultTelegramPollTimeout,
			RequestTimeout:     defaultTelegramRequestTimeout,
		},
		Scriberr: Scriberr{
			BaseURL:             defaultScriberrBaseURL,
			PollIntervalSeconds: defaultScriberrPollInterval,
			RequestTimeout:      defaultScriberrRequestTimeout,
			Model:               defaultScriberrModel,
			Device:              defaultScriberrDevice,
			ComputeType:         defaultScriberrComputeType,
			BatchSize:           defaultScriberrBatchSize,
		},
		LLM: LLM{
			Provider:       defaultLLMProvider,
			BaseURL:        defaultLLMBaseURL,
			Model:          defaultLLMModel,
			Referer:        defaultLLMReferer,
			Title:          defaultLLMTitle,
			TimeoutSeconds: defaultLLMTimeoutSeconds,
			MaxTokens:      defaultLLMMaxTokens,
		},
		Connectivity: Connectivity{
			ProbeAddress:      defaultProbeAddress,
			IntervalSeconds:   defaultProbeInterval,
			TimeoutSeconds:    defaultProbeTimeout,
			FlushDelaySeconds: defaultFlushDelay,
		},
		Workflow: Workflow{
			Extensions:             append([]string(nil), defaultExtensions...),
			IntakeBuffer:           defaultIntakeBuffer,
			ReadyCheckAttempts:     defaultReadyCheckAttempts,
			ReadyCheckDelaySeconds: defaultReadyCheckDelay,
			ScanOnStart:            true,
		},
		Notifications: Notifications{
			RequestTimeout: 10,
			Published:      true,
			Offline:        true,
			Errors:         true,
		},
		Archive: Archive{
			Table: defaultArchiveTable,
		},
		Logging: Logging{
			Format:        defaultLogFormat,
			Level:         defaultLogLevel,
			RetentionDays: defaultLogRetentionDays,
		},
	}
}
