package workflow

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"meetsync/internal/calendar"
	"meetsync/internal/logging"
	"meetsync/internal/messaging"
	"meetsync/internal/notifications"
	"meetsync/internal/queue"
	"meetsync/internal/relocate"
	"meetsync/internal/services"
	"meetsync/internal/timestamp"
)

// errDeferred reports that an asset was parked in the offline queue.
var errDeferred = errors.New("asset deferred until online")

// process advances an asset from whatever resumable state it is in.
func (m *Manager) process(ctx context.Context, assetID int64) {
	asset, err := m.store.GetAsset(ctx, assetID)
	if err != nil {
		m.logger.Warn("asset lookup failed",
			logging.Int64(logging.FieldAssetID, assetID),
			logging.Error(err),
			logging.String(logging.FieldEventType, "asset_lookup_failed"),
			logging.String(logging.FieldErrorHint, "check the state database"),
			logging.String(logging.FieldImpact, "asset stays where it is until the next restart"),
		)
		return
	}
	m.setLastFile(asset.FileName)
	switch asset.Status {
	case queue.AssetDetected:
		_ = m.begin(ctx, asset)
	case queue.AssetRelocating:
		_ = m.runRelocate(ctx, asset)
	case queue.AssetRelocated:
		_ = m.submit(ctx, asset)
	case queue.AssetTranscribing:
		if asset.JobID == "" {
			_ = m.park(ctx, asset, "upload interrupted")
		}
	default:
		m.logger.Debug("asset needs no processing",
			logging.Int64(logging.FieldAssetID, asset.ID),
			logging.String("status", string(asset.Status)),
		)
	}
}

// begin starts a detected asset, or parks it when the network is down.
func (m *Manager) begin(ctx context.Context, asset *queue.Asset) error {
	if !m.isOnline() {
		return m.park(ctx, asset, "offline at intake")
	}
	if !m.advance(ctx, asset, queue.AssetResolving, queue.AssetUpdate{}) {
		return nil
	}
	return m.resolve(ctx, asset)
}

// resolve parses the recording time and looks the meeting up. The asset
// must be in the resolving state.
func (m *Manager) resolve(ctx context.Context, asset *queue.Asset) error {
	ctx = services.WithStage(ctx, "resolve")
	logger := logging.WithContext(ctx, m.logger)

	parsed, err := timestamp.Parse(asset.FileName)
	if err != nil {
		return m.skip(ctx, asset, err)
	}
	local := parsed.In(m.loc)
	token := parsed.Token
	format := string(parsed.Format)
	if err := m.store.UpdateAsset(ctx, asset.ID, queue.AssetUpdate{
		RecordedAt:      &local,
		TimestampToken:  &token,
		TimestampFormat: &format,
	}); err != nil {
		m.fail(ctx, asset, "record timestamp", err)
		return nil
	}
	asset.RecordedAt = &local
	asset.TimestampToken = token
	asset.TimestampFormat = format

	resolution, err := m.resolver.Resolve(ctx, local)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if services.IsTransient(err) {
			return m.fallback(ctx, asset, err)
		}
		m.fail(ctx, asset, "calendar lookup", err)
		return nil
	}

	logger.Info("calendar resolved",
		logging.Args(append(logging.DecisionAttrs("calendar_match", string(resolution.Outcome), fmt.Sprintf("%d candidate(s)", len(resolution.Candidates))),
			logging.String(logging.FieldEventType, "calendar_resolved"),
			logging.Time("recorded_at", local),
			logging.String("timestamp_format", format),
		)...)...,
	)
	switch resolution.Outcome {
	case calendar.OutcomeMatched:
		event := resolution.Event
		start := event.Start
		m.notify(ctx, notifications.EventMeetingMatched, notifications.Payload{"title": event.Title, "file": asset.FileName})
		return m.relocate(ctx, asset, queue.AssetResolving, event.Title, &start)
	case calendar.OutcomeAmbiguous:
		return m.ask(ctx, asset, queue.SessionChoice, resolution.Candidates)
	default:
		return m.ask(ctx, asset, queue.SessionNoMeeting, nil)
	}
}

// ask opens a disambiguation prompt. The asset moves to awaiting_choice
// before the prompt goes out so a fast answer always finds it there.
func (m *Manager) ask(ctx context.Context, asset *queue.Asset, kind queue.SessionKind, candidates []calendar.Event) error {
	if !m.advance(ctx, asset, queue.AssetAwaitingChoice, queue.AssetUpdate{}) {
		return nil
	}
	if _, err := m.sessions.Open(ctx, asset, kind, candidates); err != nil {
		if errors.Is(err, queue.ErrOpenSession) {
			m.logger.Info("disambiguation already open",
				logging.Args(append(logging.DecisionAttrs("meeting_choice", "skipped", "session already open"),
					logging.Int64(logging.FieldAssetID, asset.ID),
				)...)...,
			)
			return nil
		}
		m.fail(ctx, asset, "disambiguation prompt", err)
	}
	return nil
}

// relocate records the chosen meeting and moves the recording.
func (m *Manager) relocate(ctx context.Context, asset *queue.Asset, from queue.AssetStatus, title string, start *time.Time) error {
	title = strings.TrimSpace(title)
	asset.Status = from
	if !m.advance(ctx, asset, queue.AssetRelocating, queue.AssetUpdate{MeetingTitle: &title, MeetingStart: start}) {
		return nil
	}
	asset.MeetingTitle = title
	asset.MeetingStart = start
	return m.runRelocate(ctx, asset)
}

// fallback copies the recording under its original name after the calendar
// stayed unreachable through every retry.
func (m *Manager) fallback(ctx context.Context, asset *queue.Asset, cause error) error {
	logging.WarnWithContext(logging.WithContext(ctx, m.logger), "calendar unavailable; copying under original name", "calendar_fallback",
		logging.Error(cause),
		logging.String(logging.FieldImpact, "recording is saved without a meeting title"),
		logging.String(logging.FieldErrorHint, "check calendar credentials and connectivity"),
	)
	empty := ""
	if !m.advance(ctx, asset, queue.AssetRelocating, queue.AssetUpdate{MeetingTitle: &empty}) {
		return nil
	}
	asset.MeetingTitle = ""
	return m.runRelocate(ctx, asset)
}

// runRelocate performs the rename and copy of an asset already in the
// relocating state. An empty meeting title means a fallback copy.
func (m *Manager) runRelocate(ctx context.Context, asset *queue.Asset) error {
	ctx = services.WithStage(ctx, "relocate")
	src := m.relocateSource(asset)

	var (
		result relocate.Result
		err    error
	)
	if asset.MeetingTitle == "" {
		result, err = m.relocator.Fallback(ctx, src)
	} else {
		result, err = m.relocator.Relocate(ctx, src, asset.MeetingTitle, asset.TimestampToken)
	}
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		m.fail(ctx, asset, "relocation", err)
		return nil
	}

	if !m.advance(ctx, asset, queue.AssetRelocated, queue.AssetUpdate{
		RenamedPath: &result.RenamedPath,
		OutputPath:  &result.OutputPath,
		Fallback:    &result.Fallback,
	}) {
		return nil
	}
	asset.RenamedPath = result.RenamedPath
	asset.OutputPath = result.OutputPath
	asset.Fallback = result.Fallback

	name := filepath.Base(result.OutputPath)
	if result.Fallback {
		m.say(ctx, fmt.Sprintf("📁 No meeting matched; saved as %s", name))
		m.notify(ctx, notifications.EventFallbackCopy, notifications.Payload{"file": name})
	} else {
		m.say(ctx, fmt.Sprintf("📁 Saved %s as %s", asset.MeetingTitle, name))
	}
	return m.submit(ctx, asset)
}

// relocateSource picks the file to relocate. A rename that completed before
// a crash leaves the source under its meeting name.
func (m *Manager) relocateSource(asset *queue.Asset) string {
	if asset.RenamedPath != "" && fileExists(asset.RenamedPath) {
		return asset.RenamedPath
	}
	if asset.MeetingTitle != "" && !fileExists(asset.SourcePath) {
		ext := filepath.Ext(asset.SourcePath)
		renamed := filepath.Join(filepath.Dir(asset.SourcePath), relocate.BuildName(asset.MeetingTitle, asset.TimestampToken, ext))
		if fileExists(renamed) {
			return renamed
		}
	}
	return asset.SourcePath
}

// submit uploads a relocated asset for transcription. Transient upload
// failures park the asset in the offline queue.
func (m *Manager) submit(ctx context.Context, asset *queue.Asset) error {
	ctx = services.WithStage(ctx, "transcribe")
	if !m.isOnline() {
		return m.park(ctx, asset, "offline before upload")
	}
	if !m.advance(ctx, asset, queue.AssetTranscribing, queue.AssetUpdate{}) {
		return nil
	}
	job, err := m.supervisor.Submit(ctx, asset)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if services.FailureStatus(err) == queue.AssetQueuedOffline {
			logging.WarnWithContext(logging.WithContext(ctx, m.logger), "transcription upload failed; queued for retry", "upload_deferred",
				logging.Error(err),
				logging.String(logging.FieldImpact, "transcription waits for the next offline flush"),
				logging.String(logging.FieldErrorHint, "check the Scriberr service"),
			)
			return m.park(ctx, asset, "upload failed")
		}
		m.fail(ctx, asset, "transcription upload", err)
		return nil
	}

	jobID := job.ID
	if err := m.store.UpdateAsset(ctx, asset.ID, queue.AssetUpdate{JobID: &jobID}); err != nil {
		m.logger.Warn("job id not recorded on asset",
			logging.Int64(logging.FieldAssetID, asset.ID),
			logging.String(logging.FieldJobID, jobID),
			logging.Error(err),
			logging.String(logging.FieldEventType, "asset_update_failed"),
			logging.String(logging.FieldErrorHint, "check the state database"),
			logging.String(logging.FieldImpact, "status output omits the job link"),
		)
	}
	asset.JobID = jobID
	m.announceUpload(ctx, job.ID, job.MeetingTitle)
	return nil
}

func (m *Manager) announceUpload(ctx context.Context, jobID, title string) {
	text := fmt.Sprintf("📤 Transcribing %s\n%s", title, m.supervisor.JobLink(jobID))
	button, err := m.prompts.Button(ctx, "❌ Cancel Job", queue.Prompt{Action: queue.ActionCancelJob, JobID: jobID})
	if err != nil {
		m.say(ctx, text)
		return
	}
	if _, err := m.transport.SendChoicePrompt(ctx, text, messaging.Keyboard{{button}}); err != nil {
		m.logger.Debug("upload notice not delivered", logging.Error(err))
	}
}

// park moves an asset to queued_offline and enqueues it for the next flush.
func (m *Manager) park(ctx context.Context, asset *queue.Asset, reason string) error {
	if asset.Status != queue.AssetQueuedOffline {
		if !m.advance(ctx, asset, queue.AssetQueuedOffline, queue.AssetUpdate{}) {
			return nil
		}
	}
	if err := m.store.Enqueue(ctx, queue.OfflineVideo, strconv.FormatInt(asset.ID, 10)); err != nil {
		m.fail(ctx, asset, "offline queue", err)
		return nil
	}
	m.logger.Info("asset queued offline",
		logging.Args(append(logging.DecisionAttrs("offline_queue", "queued", reason),
			logging.String(logging.FieldEventType, "asset_queued_offline"),
			logging.Int64(logging.FieldAssetID, asset.ID),
		)...)...,
	)
	return errDeferred
}

// skip ends an asset whose name carries no recording date.
func (m *Manager) skip(ctx context.Context, asset *queue.Asset, cause error) error {
	message := cause.Error()
	if !m.advance(ctx, asset, queue.AssetSkipped, queue.AssetUpdate{ErrorMessage: &message}) {
		return nil
	}
	m.logger.Info("asset skipped",
		logging.Args(append(logging.DecisionAttrs("timestamp_parse", "skipped", "no recording date in file name"),
			logging.String(logging.FieldEventType, "asset_skipped"),
			logging.Int64(logging.FieldAssetID, asset.ID),
		)...)...,
	)
	m.say(ctx, fmt.Sprintf("⏭ Skipped %s: no recording date in the file name", asset.FileName))
	return nil
}

// advance applies a compare-and-set transition from the asset's current
// status. A lost race is logged and reported as false.
func (m *Manager) advance(ctx context.Context, asset *queue.Asset, to queue.AssetStatus, update queue.AssetUpdate) bool {
	from := asset.Status
	if err := m.store.TransitionAsset(ctx, asset.ID, from, to, update); err != nil {
		if errors.Is(err, queue.ErrConflict) {
			m.logger.Info("asset transition lost",
				logging.Args(append(logging.DecisionAttrs("asset_transition", "skipped", "asset no longer "+string(from)),
					logging.Int64(logging.FieldAssetID, asset.ID),
					logging.String("to", string(to)),
				)...)...,
			)
			return false
		}
		logging.ErrorWithContext(m.logger, "asset transition failed", "asset_transition_failed",
			logging.Int64(logging.FieldAssetID, asset.ID),
			logging.String("from", string(from)),
			logging.String("to", string(to)),
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check the state database"),
		)
		return false
	}
	asset.Status = to
	return true
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.Mode().IsRegular()
}
