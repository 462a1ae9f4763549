package workflow

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"meetsync/internal/disambiguation"
	"meetsync/internal/logging"
	"meetsync/internal/messaging"
	"meetsync/internal/queue"
	"meetsync/internal/transcription"
)

const helpText = `🤖 meetsync commands
/status - pipeline counts
/review <job> - resend the speaker review card
/name <job> <SPEAKER_XX> <name> - rename a speaker
/finalize <job> - finalize a transcript`

var _ messaging.Handler = (*Manager)(nil)

// HandlePrompt routes a button press.
func (m *Manager) HandlePrompt(ctx context.Context, prompt *queue.Prompt, _ messaging.Callback) error {
	switch prompt.Action {
	case queue.ActionSelect:
		return m.choose(ctx, prompt)
	case queue.ActionRetry:
		return m.retryLookup(ctx, prompt)
	case queue.ActionCancel:
		return m.cancelChoice(ctx, prompt)
	case queue.ActionAssignSpeaker:
		return m.supervisor.AskName(ctx, prompt.JobID, prompt.SpeakerSlot)
	case queue.ActionSwapSpeakers:
		return m.supervisor.OfferSwap(ctx, prompt.JobID)
	case queue.ActionSwapPick:
		return m.supervisor.PickSwap(ctx, prompt.JobID, prompt.SpeakerSlot, prompt.OptionIndex-1)
	case queue.ActionFinalize:
		return m.finalize(ctx, prompt.JobID)
	case queue.ActionCancelJob:
		return m.supervisor.Cancel(ctx, prompt.JobID)
	default:
		return fmt.Errorf("unknown prompt action %q", prompt.Action)
	}
}

// HandleReply applies a free-text speaker name.
func (m *Manager) HandleReply(ctx context.Context, reply *queue.PendingReply, msg messaging.Message) error {
	return m.supervisor.RenameSpeaker(ctx, reply.JobID, reply.SpeakerSlot, msg.Text)
}

// HandleCommand runs a slash command.
func (m *Manager) HandleCommand(ctx context.Context, msg messaging.Message) error {
	fields := strings.Fields(msg.Text)
	if len(fields) == 0 {
		return nil
	}
	command := strings.ToLower(fields[0])
	if at := strings.IndexByte(command, '@'); at > 0 {
		command = command[:at]
	}
	args := fields[1:]
	switch command {
	case "/name":
		if len(args) < 3 {
			return errors.New("usage: /name <job> <SPEAKER_XX> <name>")
		}
		return m.supervisor.RenameSpeaker(ctx, args[0], strings.ToUpper(args[1]), strings.Join(args[2:], " "))
	case "/review":
		if len(args) != 1 {
			return errors.New("usage: /review <job>")
		}
		return m.supervisor.ResendReview(ctx, args[0])
	case "/finalize":
		if len(args) != 1 {
			return errors.New("usage: /finalize <job>")
		}
		return m.finalize(ctx, args[0])
	case "/status":
		m.say(ctx, m.Status(ctx).Text())
		return nil
	case "/start", "/help":
		m.say(ctx, helpText)
		return nil
	default:
		return fmt.Errorf("unknown command %s; send /help for the list", command)
	}
}

// finalize treats a lost finalize race as a no-op.
func (m *Manager) finalize(ctx context.Context, jobID string) error {
	_, err := m.supervisor.Finalize(ctx, jobID)
	if errors.Is(err, transcription.ErrAlreadyFinalizing) || errors.Is(err, transcription.ErrAlreadyFinalized) {
		m.logger.Info("finalize ignored",
			logging.Args(append(logging.DecisionAttrs("finalize", "skipped", err.Error()),
				logging.String(logging.FieldJobID, jobID),
			)...)...,
		)
		return nil
	}
	return err
}

func (m *Manager) choose(ctx context.Context, prompt *queue.Prompt) error {
	session, candidate, err := m.sessions.Resolve(ctx, prompt.SessionID, prompt.OptionIndex)
	if err != nil {
		return m.sessionRace(prompt, err)
	}
	start := candidate.Start
	m.dispatch(ctx, session.AssetID, func(ctx context.Context, assetID int64) {
		asset, err := m.store.GetAsset(ctx, assetID)
		if err != nil {
			return
		}
		_ = m.relocate(ctx, asset, queue.AssetAwaitingChoice, candidate.Title, &start)
	})
	return nil
}

func (m *Manager) retryLookup(ctx context.Context, prompt *queue.Prompt) error {
	session, err := m.sessions.Retry(ctx, prompt.SessionID)
	if err != nil {
		return m.sessionRace(prompt, err)
	}
	m.dispatch(ctx, session.AssetID, func(ctx context.Context, assetID int64) {
		asset, err := m.store.GetAsset(ctx, assetID)
		if err != nil {
			return
		}
		if !m.advance(ctx, asset, queue.AssetResolving, queue.AssetUpdate{}) {
			return
		}
		_ = m.resolve(ctx, asset)
	})
	return nil
}

func (m *Manager) cancelChoice(ctx context.Context, prompt *queue.Prompt) error {
	session, err := m.sessions.Cancel(ctx, prompt.SessionID)
	if err != nil {
		return m.sessionRace(prompt, err)
	}
	asset, err := m.store.GetAsset(ctx, session.AssetID)
	if err != nil {
		return err
	}
	message := "meeting choice cancelled"
	if m.advance(ctx, asset, queue.AssetCancelled, queue.AssetUpdate{ErrorMessage: &message}) {
		m.say(ctx, fmt.Sprintf("🛑 Cancelled; %s stays in the watch folder", asset.FileName))
	}
	return nil
}

// dispatch runs fn in the background, or inline when the asset's previous
// goroutine has not released it yet.
func (m *Manager) dispatch(ctx context.Context, assetID int64, fn func(ctx context.Context, assetID int64)) {
	if m.spawn(assetID, fn) || !m.isRunning() {
		return
	}
	fn(ctx, assetID)
}

// sessionRace turns a lost session race into a logged no-op.
func (m *Manager) sessionRace(prompt *queue.Prompt, err error) error {
	if errors.Is(err, disambiguation.ErrAlreadyHandled) {
		m.logger.Info("prompt already handled",
			logging.Args(append(logging.DecisionAttrs("meeting_choice", "skipped", "session already closed"),
				logging.String(logging.FieldCorrelationID, prompt.SessionID),
				logging.String("action", string(prompt.Action)),
			)...)...,
		)
		return nil
	}
	return err
}

// FinalizeJob finalizes a job on behalf of an operator command. A job that
// is already finalizing or finalized is reported as a no-op.
func (m *Manager) FinalizeJob(ctx context.Context, jobID string) error {
	return m.finalize(ctx, jobID)
}

// CancelJob aborts an in-flight transcription job.
func (m *Manager) CancelJob(ctx context.Context, jobID string) error {
	return m.supervisor.Cancel(ctx, jobID)
}

// RenameSpeaker records a human name for a speaker slot.
func (m *Manager) RenameSpeaker(ctx context.Context, jobID, slot, name string) error {
	return m.supervisor.RenameSpeaker(ctx, jobID, strings.ToUpper(strings.TrimSpace(slot)), name)
}
