package daemonctl

import (
	"context"
	"errors"
	"strings"
	"time"

	"meetsync/internal/api"
	"meetsync/internal/config"
	"meetsync/internal/ipc"
	"meetsync/internal/preflight"
	"meetsync/internal/queue"
)

// Snapshot is the combined daemon and configuration view rendered by
// `meetsync status`.
type Snapshot struct {
	Running      bool               `json:"running"`
	PID          int                `json:"pid"`
	DatabasePath string             `json:"databasePath"`
	Workflow     api.WorkflowStatus `json:"workflow"`
	SystemChecks []api.StatusLine   `json:"systemChecks"`
	Paths        []api.StatusLine   `json:"paths"`
}

// BuildStatusSnapshot collects daemon status and falls back to reading the
// database directly when the daemon is not reachable.
func BuildStatusSnapshot(ctx context.Context, socketPath string, cfg *config.Config) (*Snapshot, error) {
	if cfg == nil {
		return nil, errors.New("configuration not available")
	}
	snap := &Snapshot{DatabasePath: cfg.DatabasePath()}

	if client, err := ipc.Dial(socketPath); err == nil {
		defer client.Close()
		if resp, statusErr := client.Status(); statusErr == nil && resp != nil {
			snap.Running = resp.Running
			snap.PID = resp.PID
			snap.Workflow = resp.Workflow
			if resp.DatabasePath != "" {
				snap.DatabasePath = resp.DatabasePath
			}
		}
	}

	if snap.Workflow.Assets == nil {
		queryCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
		defer cancel()
		if store, openErr := queue.Open(cfg); openErr == nil {
			summary, summaryErr := store.Summarize(queryCtx)
			_ = store.Close()
			if summaryErr == nil {
				snap.Workflow = api.FromCounts(summary, snap.Workflow)
			}
		}
	}

	snap.SystemChecks = BuildSystemChecks(cfg, snap.Running, snap.Workflow.Online)
	snap.Paths = BuildPathChecks(cfg)
	return snap, nil
}

// BuildSystemChecks resolves status lines from runtime state and local
// configuration. It never touches the network.
func BuildSystemChecks(cfg *config.Config, daemonRunning, online bool) []api.StatusLine {
	lines := make([]api.StatusLine, 0, 6)
	if daemonRunning {
		lines = append(lines, api.StatusLine{Label: "Meetsync", Severity: "ok", Detail: "Running"})
		if online {
			lines = append(lines, api.StatusLine{Label: "Network", Severity: "ok", Detail: "Online"})
		} else {
			lines = append(lines, api.StatusLine{Label: "Network", Severity: "warn", Detail: "Offline (work is queued)"})
		}
	} else {
		lines = append(lines, api.StatusLine{Label: "Meetsync", Severity: "warn", Detail: "Not running (run `meetsync start`)"})
	}

	lines = append(lines, configuredLine("Telegram", cfg.Telegram.BotToken != "" && cfg.Telegram.ChatID != 0, "bot token or chat_id missing"))
	lines = append(lines, configuredLine("Scriberr", cfg.Scriberr.APIKey != "", "api key missing"))
	lines = append(lines, configuredLine("LLM", cfg.GetLLM().APIKey != "", "api key missing"))

	creds := preflight.CheckFileReadable("Google credentials", cfg.Google.CredentialsFile)
	if creds.Passed {
		lines = append(lines, api.StatusLine{Label: "Google", Severity: "ok", Detail: creds.Detail})
	} else {
		lines = append(lines, api.StatusLine{Label: "Google", Severity: "error", Detail: creds.Detail})
	}

	if strings.TrimSpace(cfg.Notifications.NtfyTopic) != "" {
		lines = append(lines, api.StatusLine{Label: "Notifications", Severity: "ok", Detail: "Configured"})
	} else {
		lines = append(lines, api.StatusLine{Label: "Notifications", Severity: "info", Detail: "Not configured"})
	}
	return lines
}

func configuredLine(label string, ok bool, missing string) api.StatusLine {
	if ok {
		return api.StatusLine{Label: label, Severity: "ok", Detail: "Configured"}
	}
	return api.StatusLine{Label: label, Severity: "error", Detail: missing}
}

// BuildPathChecks resolves configured directory readiness.
func BuildPathChecks(cfg *config.Config) []api.StatusLine {
	lines := make([]api.StatusLine, 0, 3)
	for _, dir := range []struct {
		label string
		path  string
	}{
		{label: "Watch", path: cfg.Paths.WatchDir},
		{label: "Output", path: cfg.Paths.OutputDir},
		{label: "State", path: cfg.Paths.StateDir},
	} {
		result := preflight.CheckDirectoryAccess(dir.label, dir.path)
		severity := "error"
		if result.Passed {
			severity = "ok"
		}
		lines = append(lines, api.StatusLine{
			Label:    dir.label,
			Severity: severity,
			Detail:   result.Detail,
		})
	}
	return lines
}
