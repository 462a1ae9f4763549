package preflight

import (
	"context"

	"meetsync/internal/config"
)

// MinOutputFreeBytes is the free space the output directory should keep for
// relocated recordings.
const MinOutputFreeBytes = 2 << 30

// Result reports the outcome of a single preflight check.
type Result struct {
	Name   string
	Passed bool
	Detail string
}

// RunAll executes the readiness checks that cost nothing beyond a request.
// The LLM check spends tokens and is left to callers that ask for it.
func RunAll(ctx context.Context, cfg *config.Config) []Result {
	if cfg == nil {
		return nil
	}

	results := []Result{
		CheckDirectoryAccess("Watch directory", cfg.Paths.WatchDir),
		CheckDirectoryAccess("Output directory", cfg.Paths.OutputDir),
		CheckDirectoryAccess("State directory", cfg.Paths.StateDir),
		CheckFreeSpace("Output free space", cfg.Paths.OutputDir, MinOutputFreeBytes),
		CheckFileReadable("Google credentials", cfg.Google.CredentialsFile),
		CheckTelegram(ctx, cfg.Telegram),
		CheckScriberr(ctx, cfg.Scriberr),
		CheckProbe(ctx, cfg.Connectivity),
	}
	return results
}

// Failed returns the results that did not pass.
func Failed(results []Result) []Result {
	var failed []Result
	for _, r := range results {
		if !r.Passed {
			failed = append(failed, r)
		}
	}
	return failed
}
