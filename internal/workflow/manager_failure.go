package workflow

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"meetsync/internal/logging"
	"meetsync/internal/queue"
	"meetsync/internal/services"
)

// fail ends an asset after a non-recoverable step failure. Validation and
// not-found errors skip the asset when its lifecycle allows it.
func (m *Manager) fail(ctx context.Context, asset *queue.Asset, step string, stepErr error) {
	logger := logging.WithContext(ctx, m.logger)
	message := classifyFailure(step, stepErr)

	resolved := queue.AssetFailed
	if services.FailureStatus(stepErr) == queue.AssetSkipped && asset.Status.CanTransition(queue.AssetSkipped) {
		resolved = queue.AssetSkipped
	}

	var err error
	if resolved == queue.AssetSkipped {
		err = m.store.TransitionAsset(ctx, asset.ID, asset.Status, queue.AssetSkipped, queue.AssetUpdate{ErrorMessage: &message})
	} else {
		err = m.store.FailAsset(ctx, asset.ID, message)
	}
	if err != nil {
		if errors.Is(err, context.Canceled) {
			logger.Debug("daemon shutting down, could not persist asset failure")
		} else {
			logger.Error("failed to persist asset failure", logging.Error(err))
		}
	} else {
		asset.Status = resolved
		asset.ErrorMessage = message
	}

	logger.Error("asset step failed", logging.Args(
		logging.String("step", step),
		logging.String("resolved_status", string(resolved)),
		logging.String("error_message", message),
		logging.Bool(logging.FieldAlert, true),
		logging.String(logging.FieldEventType, "asset_failed"),
		logging.String(logging.FieldErrorHint, failureHint(step)),
		logging.Error(stepErr),
	)...)

	m.setLastError(fmt.Errorf("%s: %s: %w", asset.FileName, step, stepErr))
	m.say(ctx, fmt.Sprintf("❌ %s failed for %s\n%s", capitalize(step), asset.FileName, message))
	m.notifyError(ctx, fmt.Sprintf("%s (%s)", step, asset.FileName), stepErr)
}

func classifyFailure(step string, stepErr error) string {
	if stepErr == nil {
		return step + " failed without error detail"
	}
	message := strings.TrimSpace(stepErr.Error())
	if message == "" {
		return step + " failed"
	}
	return message
}

func failureHint(step string) string {
	switch step {
	case "calendar lookup":
		return "check calendar credentials and calendar_id"
	case "relocation":
		return "check free space and permissions of the output folder"
	case "transcription upload":
		return "check the Scriberr service and API key"
	default:
		return "check logs for details, then re-add the file with 'meetsync add'"
	}
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
