package transcription

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"meetsync/internal/logging"
	"meetsync/internal/messaging"
	"meetsync/internal/queue"
)

const maxNameLength = 64

// sendReview clears the previous review keyboard, if any, and sends a fresh
// one whose buttons carry new single-use tokens.
func (s *Supervisor) sendReview(ctx context.Context, job *queue.Job) error {
	s.clearReview(ctx, job)

	mapping := job.EffectiveMapping()
	slots := job.Speakers()
	var text strings.Builder
	fmt.Fprintf(&text, "🎙 Speaker review for: %s\n\n", job.MeetingTitle)
	if len(job.AIMapping) == 0 && len(job.Overrides) == 0 {
		text.WriteString("No speakers were identified automatically.\n")
	}
	for _, slot := range slots {
		fmt.Fprintf(&text, "%s → %s\n", slot, displayName(slot, mapping))
	}
	text.WriteString("\nTap a speaker to rename, or Finalize when the names are right.")

	base := queue.Prompt{JobID: job.ID}
	var keyboard messaging.Keyboard
	var row []messaging.Button
	for _, slot := range slots {
		prompt := base
		prompt.Action = queue.ActionAssignSpeaker
		prompt.SpeakerSlot = slot
		button, err := s.prompts.Button(ctx, speakerButtonText(slot, mapping), prompt)
		if err != nil {
			return err
		}
		row = append(row, button)
		if len(row) == 2 {
			keyboard = append(keyboard, row)
			row = nil
		}
	}
	if len(row) > 0 {
		keyboard = append(keyboard, row)
	}
	if len(slots) >= 2 {
		prompt := base
		prompt.Action = queue.ActionSwapSpeakers
		button, err := s.prompts.Button(ctx, "🔄 Swap Two Speakers", prompt)
		if err != nil {
			return err
		}
		keyboard = append(keyboard, []messaging.Button{button})
	}
	finalize := base
	finalize.Action = queue.ActionFinalize
	done, err := s.prompts.Button(ctx, "✅ Finalize Transcript", finalize)
	if err != nil {
		return err
	}
	cancelJob := base
	cancelJob.Action = queue.ActionCancelJob
	cancel, err := s.prompts.Button(ctx, "❌ Cancel Job", cancelJob)
	if err != nil {
		return err
	}
	keyboard = append(keyboard, []messaging.Button{done, cancel})

	messageID, err := s.transport.SendChoicePrompt(ctx, text.String(), keyboard)
	if err != nil {
		return err
	}
	return s.store.SetReviewMessage(ctx, job.ID, messageID)
}

// clearReview removes the buttons of the current review card.
func (s *Supervisor) clearReview(ctx context.Context, job *queue.Job) {
	if job.ReviewMessageID == 0 {
		return
	}
	if err := s.transport.EditReplyMarkup(ctx, job.ReviewMessageID, nil); err != nil {
		s.logger.Debug("review keyboard not cleared",
			logging.String(logging.FieldJobID, job.ID),
			logging.Error(err),
		)
	}
}

// ResendReview sends a fresh review card for a job awaiting review.
func (s *Supervisor) ResendReview(ctx context.Context, jobID string) error {
	job, err := s.reviewable(ctx, jobID)
	if err != nil {
		return err
	}
	return s.sendReview(ctx, job)
}

// AskName sends a free-text prompt asking for the name of slot and records
// the pending reply so the answer is routed back to RenameSpeaker.
func (s *Supervisor) AskName(ctx context.Context, jobID, slot string) error {
	job, err := s.reviewable(ctx, jobID)
	if err != nil {
		return err
	}
	if !hasSlot(job, slot) {
		return fmt.Errorf("%w: %s", ErrUnknownSpeaker, slot)
	}
	current := displayName(slot, job.EffectiveMapping())
	text := fmt.Sprintf("✏️ Reply with the name for %s (currently %s) in %s", slot, current, job.MeetingTitle)
	messageID, err := s.transport.SendFreeTextPrompt(ctx, text)
	if err != nil {
		return err
	}
	return s.store.SavePendingReply(ctx, queue.PendingReply{
		ChatID:      s.chatID,
		MessageID:   messageID,
		JobID:       jobID,
		SpeakerSlot: slot,
	})
}

// RenameSpeaker records a human override for slot, echoes the merged mapping
// to the service and refreshes the review card.
func (s *Supervisor) RenameSpeaker(ctx context.Context, jobID, slot, name string) error {
	name = NormalizeName(name)
	if name == "" {
		return errors.New("speaker name must not be empty")
	}
	if utf8.RuneCountInString(name) > maxNameLength {
		return fmt.Errorf("speaker name longer than %d characters", maxNameLength)
	}
	job, err := s.reviewable(ctx, jobID)
	if err != nil {
		return err
	}
	if !hasSlot(job, slot) {
		return fmt.Errorf("%w: %s", ErrUnknownSpeaker, slot)
	}
	if err := s.store.SetOverride(ctx, jobID, slot, name); err != nil {
		if errors.Is(err, queue.ErrConflict) {
			return ErrNotReviewable
		}
		return err
	}
	s.logger.Info("speaker renamed",
		logging.String(logging.FieldEventType, "speaker_renamed"),
		logging.String(logging.FieldJobID, jobID),
		logging.String("slot", slot),
		logging.String("name", name),
	)
	return s.afterEdit(ctx, jobID)
}

// SwapSpeakers exchanges the effective names of slots a and b.
func (s *Supervisor) SwapSpeakers(ctx context.Context, jobID, a, b string) error {
	if a == b {
		return fmt.Errorf("cannot swap %s with itself", a)
	}
	job, err := s.reviewable(ctx, jobID)
	if err != nil {
		return err
	}
	for _, slot := range []string{a, b} {
		if !hasSlot(job, slot) {
			return fmt.Errorf("%w: %s", ErrUnknownSpeaker, slot)
		}
	}
	mapping := job.EffectiveMapping()
	overrides := make(map[string]string, len(job.Overrides)+2)
	for slot, name := range job.Overrides {
		overrides[slot] = name
	}
	overrides[a] = displayName(b, mapping)
	overrides[b] = displayName(a, mapping)
	if err := s.store.SetOverrides(ctx, jobID, overrides); err != nil {
		if errors.Is(err, queue.ErrConflict) {
			return ErrNotReviewable
		}
		return err
	}
	s.logger.Info("speakers swapped",
		logging.String(logging.FieldEventType, "speakers_swapped"),
		logging.String(logging.FieldJobID, jobID),
		logging.String("first", a),
		logging.String("second", b),
	)
	return s.afterEdit(ctx, jobID)
}

// OfferSwap starts a swap. Two speakers are swapped right away; with more,
// a prompt asks for the first speaker.
func (s *Supervisor) OfferSwap(ctx context.Context, jobID string) error {
	job, err := s.reviewable(ctx, jobID)
	if err != nil {
		return err
	}
	slots := job.Speakers()
	switch {
	case len(slots) < 2:
		return fmt.Errorf("%w: need two speakers to swap", ErrUnknownSpeaker)
	case len(slots) == 2:
		return s.SwapSpeakers(ctx, jobID, slots[0], slots[1])
	default:
		return s.sendSwapPrompt(ctx, job, -1)
	}
}

// PickSwap handles a swap prompt press. first is the index of the slot picked
// on the first prompt, or -1 when slot is the first pick.
func (s *Supervisor) PickSwap(ctx context.Context, jobID, slot string, first int) error {
	job, err := s.reviewable(ctx, jobID)
	if err != nil {
		return err
	}
	slots := job.Speakers()
	if first < 0 {
		for idx, candidate := range slots {
			if candidate == slot {
				return s.sendSwapPrompt(ctx, job, idx)
			}
		}
		return fmt.Errorf("%w: %s", ErrUnknownSpeaker, slot)
	}
	if first >= len(slots) {
		return fmt.Errorf("%w: index %d", ErrUnknownSpeaker, first)
	}
	return s.SwapSpeakers(ctx, jobID, slots[first], slot)
}

// sendSwapPrompt lists the speakers as buttons. The chosen first slot is
// carried in OptionIndex as index+1 so zero means no pick yet.
func (s *Supervisor) sendSwapPrompt(ctx context.Context, job *queue.Job, first int) error {
	mapping := job.EffectiveMapping()
	slots := job.Speakers()
	text := "🔄 Pick the first speaker to swap:"
	if first >= 0 {
		text = fmt.Sprintf("🔄 Swap %s with:", speakerButtonText(slots[first], mapping))
	}
	var keyboard messaging.Keyboard
	for idx, slot := range slots {
		if idx == first {
			continue
		}
		button, err := s.prompts.Button(ctx, speakerButtonText(slot, mapping), queue.Prompt{
			Action:      queue.ActionSwapPick,
			JobID:       job.ID,
			SpeakerSlot: slot,
			OptionIndex: first + 1,
		})
		if err != nil {
			return err
		}
		keyboard = append(keyboard, []messaging.Button{button})
	}
	_, err := s.transport.SendChoicePrompt(ctx, text, keyboard)
	return err
}

func (s *Supervisor) afterEdit(ctx context.Context, jobID string) error {
	job, err := s.store.GetJob(ctx, jobID)
	if err != nil {
		return err
	}
	if err := s.service.UpdateSpeakers(ctx, jobID, job.EffectiveMapping()); err != nil {
		s.warnEcho(jobID, err)
	}
	return s.sendReview(ctx, job)
}

func (s *Supervisor) reviewable(ctx context.Context, jobID string) (*queue.Job, error) {
	job, err := s.store.GetJob(ctx, jobID)
	if err != nil {
		return nil, err
	}
	switch job.Phase {
	case queue.JobAwaitingSpeakerReview:
		return job, nil
	case queue.JobFinalizing:
		return nil, ErrAlreadyFinalizing
	case queue.JobFinalized:
		return nil, ErrAlreadyFinalized
	default:
		return nil, fmt.Errorf("%w: job %s is %s", ErrNotReviewable, jobID, job.Phase)
	}
}

func hasSlot(job *queue.Job, slot string) bool {
	for _, candidate := range job.Speakers() {
		if candidate == slot {
			return true
		}
	}
	return false
}

func displayName(slot string, mapping map[string]string) string {
	if name := strings.TrimSpace(mapping[slot]); name != "" {
		return name
	}
	return slot
}

func speakerButtonText(slot string, mapping map[string]string) string {
	name := displayName(slot, mapping)
	if name == slot {
		return "👤 " + slot
	}
	return fmt.Sprintf("👤 %s: %s", slot, name)
}
