package workflow

import (
	"context"
	"errors"
	"strconv"

	"meetsync/internal/logging"
	"meetsync/internal/notifications"
	"meetsync/internal/queue"
	"meetsync/internal/services"
)

var errOffline = errors.New("connectivity lost during flush")

// FlushResult counts the offline items drained by one flush.
type FlushResult struct {
	Videos     int
	LogEntries int
}

// FlushOffline drains the video queue and then the log entry queue, in FIFO
// order with the configured delay between items. A failure leaves the
// failing item at the head of its queue.
func (m *Manager) FlushOffline(ctx context.Context) (FlushResult, error) {
	m.flushMu.Lock()
	defer m.flushMu.Unlock()

	var result FlushResult
	videos, videoErr := m.store.Drain(ctx, queue.OfflineVideo, m.flushDelay, m.replayVideo)
	result.Videos = videos
	if videoErr != nil && !errors.Is(videoErr, errDeferred) && !errors.Is(videoErr, errOffline) {
		logging.WarnWithContext(m.logger, "video queue flush stopped", "offline_flush_stopped",
			logging.String("queue", string(queue.OfflineVideo)),
			logging.Int("drained", videos),
			logging.Error(videoErr),
			logging.String(logging.FieldImpact, "remaining recordings wait for the next flush"),
		)
	} else {
		videoErr = nil
	}

	entries, logErr := m.publisher.Flush(ctx, m.flushDelay)
	result.LogEntries = entries
	if entries > 0 {
		m.reconcilePublished(ctx)
	}
	if result.Videos > 0 || result.LogEntries > 0 {
		m.logger.Info("offline queues flushed",
			logging.String(logging.FieldEventType, "offline_flushed"),
			logging.Int("videos", result.Videos),
			logging.Int("log_entries", result.LogEntries),
		)
	}
	return result, errors.Join(videoErr, logErr)
}

// HandleReconnect starts a flush of the offline queues after connectivity
// returns and returns without waiting for it. The flush runs on the
// manager's context and is serialized with other flushes by flushMu.
func (m *Manager) HandleReconnect(context.Context) {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return
	}
	ctx := m.ctx
	m.wg.Add(1)
	m.mu.Unlock()

	go func() {
		defer m.wg.Done()
		result, err := m.FlushOffline(ctx)
		if err != nil {
			m.setLastError(err)
		}
		m.notify(ctx, notifications.EventOnline, notifications.Payload{"flushed": result.Videos + result.LogEntries})
	}()
}

// replayVideo resumes one queued recording. Items whose asset has moved on
// are acknowledged without work.
func (m *Manager) replayVideo(ctx context.Context, item *queue.OfflineItem) error {
	id, err := strconv.ParseInt(item.Ref, 10, 64)
	if err != nil {
		m.logger.Warn("malformed offline item dropped",
			logging.String("ref", item.Ref),
			logging.String(logging.FieldEventType, "offline_item_dropped"),
			logging.String(logging.FieldErrorHint, "inspect the offline queue with 'meetsync queue list'"),
			logging.String(logging.FieldImpact, "the item is removed from the queue"),
		)
		return nil
	}
	asset, err := m.store.GetAsset(ctx, id)
	if errors.Is(err, queue.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	if asset.Status != queue.AssetQueuedOffline {
		m.logger.Debug("stale offline item acknowledged",
			logging.Int64(logging.FieldAssetID, asset.ID),
			logging.String("status", string(asset.Status)),
		)
		return nil
	}
	if !m.isOnline() {
		return errOffline
	}

	ctx = services.WithAssetID(ctx, asset.ID)
	m.setLastFile(asset.FileName)
	if asset.OutputPath != "" {
		return m.submit(ctx, asset)
	}
	if !m.advance(ctx, asset, queue.AssetResolving, queue.AssetUpdate{}) {
		return nil
	}
	return m.resolve(ctx, asset)
}

// replay restores in-progress work after a restart, before intake begins.
func (m *Manager) replay(ctx context.Context) error {
	reset, err := m.store.ResetInterrupted(ctx)
	if err != nil {
		return err
	}
	claims, err := m.store.ResetPublishing(ctx)
	if err != nil {
		return err
	}
	requeued, err := m.publisher.RequeuePending(ctx)
	if err != nil {
		return err
	}
	if err := m.supervisor.Start(ctx); err != nil {
		return err
	}
	orphans, err := m.publishOrphaned(ctx)
	if err != nil {
		return err
	}

	assets, err := m.store.ListAssets(ctx, queue.AssetDetected, queue.AssetRelocating, queue.AssetRelocated, queue.AssetTranscribing)
	if err != nil {
		return err
	}
	resumed := 0
	for _, asset := range assets {
		if asset.Status == queue.AssetTranscribing && asset.JobID != "" {
			continue
		}
		if m.spawn(asset.ID, m.process) {
			resumed++
		}
	}
	m.logger.Info("startup replay",
		logging.String(logging.FieldEventType, "startup_replay"),
		logging.Int64("assets_reset", reset),
		logging.Int64("log_claims_released", claims),
		logging.Int("log_entries_requeued", requeued),
		logging.Int("finalized_jobs_published", orphans),
		logging.Int("assets_resumed", resumed),
	)

	if m.isOnline() {
		if _, err := m.FlushOffline(ctx); err != nil {
			m.setLastError(err)
		}
	}
	m.reconcilePublished(ctx)
	return nil
}

// publishOrphaned publishes finalized jobs that never got a log entry, which
// happens when the daemon stopped between finalizing and recording the entry.
func (m *Manager) publishOrphaned(ctx context.Context) (int, error) {
	jobs, err := m.store.ListJobs(ctx, queue.JobFinalized)
	if err != nil {
		return 0, err
	}
	published := 0
	for _, job := range jobs {
		_, err := m.store.GetLogEntry(ctx, job.ID)
		if err == nil {
			continue
		}
		if !errors.Is(err, queue.ErrNotFound) {
			return published, err
		}
		m.logger.Info("finalized job without log entry",
			logging.Args(append(logging.DecisionAttrs("log_publish", "publish", "entry missing after restart"),
				logging.String(logging.FieldJobID, job.ID))...)...,
		)
		if err := m.onFinalized(ctx, job); err != nil {
			m.setLastError(err)
			continue
		}
		published++
	}
	return published, nil
}

// reconcilePublished closes out transcribing assets whose log entry was
// published by a flush.
func (m *Manager) reconcilePublished(ctx context.Context) {
	assets, err := m.store.ListAssets(ctx, queue.AssetTranscribing)
	if err != nil {
		return
	}
	for _, asset := range assets {
		if asset.JobID == "" {
			continue
		}
		entry, err := m.store.GetLogEntry(ctx, asset.JobID)
		if err != nil || entry.Status != queue.LogPublished {
			continue
		}
		m.completeAsset(ctx, asset, entry)
	}
}
