package workflow

import (
	"context"
	"errors"
	"fmt"

	"meetsync/internal/logging"
	"meetsync/internal/notifications"
	"meetsync/internal/publication"
	"meetsync/internal/queue"
	"meetsync/internal/services"
)

// onFinalized publishes the log entry of a freshly finalized job.
func (m *Manager) onFinalized(ctx context.Context, job *queue.Job) error {
	ctx = services.WithStage(services.WithJobID(services.WithAssetID(ctx, job.AssetID), job.ID), "publish")
	outcome, err := m.publisher.Publish(ctx, job)
	switch {
	case errors.Is(err, publication.ErrAlreadyPublished), errors.Is(err, publication.ErrInProgress):
		return nil
	case err != nil:
		m.setLastError(fmt.Errorf("publish %s: %w", job.ID, err))
		m.notifyError(ctx, "meeting log ("+job.MeetingTitle+")", err)
		return fmt.Errorf("meeting log not updated for %s: %w", job.MeetingTitle, err)
	}

	switch outcome {
	case publication.OutcomePublished:
		asset, err := m.store.GetAsset(ctx, job.AssetID)
		if err != nil {
			return nil
		}
		entry, err := m.store.GetLogEntry(ctx, job.ID)
		if err != nil {
			return nil
		}
		m.completeAsset(ctx, asset, entry)
	case publication.OutcomeQueued:
		m.say(ctx, fmt.Sprintf("📴 Meeting log entry for %s queued until the sheet is reachable", job.MeetingTitle))
	}
	return nil
}

// completeAsset marks a transcribing asset published once its entry is in
// the meeting log.
func (m *Manager) completeAsset(ctx context.Context, asset *queue.Asset, entry *queue.LogEntry) {
	if asset.Status != queue.AssetTranscribing {
		return
	}
	if !m.advance(ctx, asset, queue.AssetPublished, queue.AssetUpdate{}) {
		return
	}
	m.logger.Info("meeting published",
		logging.String(logging.FieldEventType, "asset_published"),
		logging.Int64(logging.FieldAssetID, asset.ID),
		logging.String(logging.FieldJobID, entry.JobID),
		logging.String("project", entry.ProjectTag),
	)
	text := fmt.Sprintf("📊 Logged %s to the meeting log", entry.MeetingName)
	if entry.ProjectTag != "" {
		text += fmt.Sprintf(" (project: %s)", entry.ProjectTag)
	}
	if entry.DocumentLink != "" {
		text += "\n" + entry.DocumentLink
	}
	m.say(ctx, text)
	m.notify(ctx, notifications.EventPublished, notifications.Payload{"title": entry.MeetingName, "project": entry.ProjectTag})
}

// onJobFailed closes the asset of a failed or cancelled job.
func (m *Manager) onJobFailed(ctx context.Context, job *queue.Job, cancelled bool) {
	asset, err := m.store.GetAsset(ctx, job.AssetID)
	if err != nil {
		return
	}
	if cancelled {
		message := "transcription cancelled"
		if m.advance(ctx, asset, queue.AssetCancelled, queue.AssetUpdate{ErrorMessage: &message}) {
			m.logger.Info("asset cancelled",
				logging.Args(append(logging.DecisionAttrs("transcription", "cancelled", "user cancelled job"),
					logging.Int64(logging.FieldAssetID, asset.ID),
					logging.String(logging.FieldJobID, job.ID),
				)...)...,
			)
		}
		return
	}
	if err := m.store.FailAsset(ctx, asset.ID, job.ErrorMessage); err != nil {
		m.logger.Error("failed to persist asset failure", logging.Error(err))
	}
	m.setLastError(fmt.Errorf("transcription %s: %s", job.ID, job.ErrorMessage))
	m.notifyError(ctx, "transcription ("+job.MeetingTitle+")", errors.New(job.ErrorMessage))
}

func (m *Manager) onReviewReady(ctx context.Context, job *queue.Job) {
	m.notify(ctx, notifications.EventReviewReady, notifications.Payload{"title": job.MeetingTitle})
}
