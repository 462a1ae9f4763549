package transcription

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"meetsync/internal/fileutil"
	"meetsync/internal/logging"
	"meetsync/internal/queue"
	"meetsync/internal/services"
	"meetsync/internal/transcript"
)

// Finalize merges the AI mapping with human overrides, persists the final
// transcript and hands the job to the Finalized hook. Exactly one caller wins
// the awaiting_speaker_review → finalizing transition; every other caller
// gets ErrAlreadyFinalizing or ErrAlreadyFinalized before any external call.
func (s *Supervisor) Finalize(ctx context.Context, jobID string) (*queue.Job, error) {
	job, err := s.store.GetJob(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if err := phaseGuard(job); err != nil {
		return nil, err
	}
	if err := s.store.TransitionJob(ctx, jobID, queue.JobAwaitingSpeakerReview, queue.JobFinalizing, ""); err != nil {
		if errors.Is(err, queue.ErrConflict) {
			if current, getErr := s.store.GetJob(ctx, jobID); getErr == nil {
				if guardErr := phaseGuard(current); guardErr != nil {
					return nil, guardErr
				}
			}
			return nil, ErrAlreadyFinalizing
		}
		return nil, err
	}
	job.Phase = queue.JobFinalizing
	s.logger.Info("finalize started",
		logging.Args(append(logging.DecisionAttrs("job_finalize", "accepted", "first done signal for job"),
			logging.String(logging.FieldJobID, jobID))...)...,
	)
	s.clearReview(ctx, job)
	if err := s.store.DeletePendingRepliesForJob(ctx, jobID); err != nil {
		s.logger.Debug("pending replies not cleared", logging.Error(err))
	}
	return s.finish(ctx, job)
}

func phaseGuard(job *queue.Job) error {
	switch job.Phase {
	case queue.JobAwaitingSpeakerReview:
		return nil
	case queue.JobFinalizing:
		return ErrAlreadyFinalizing
	case queue.JobFinalized:
		return ErrAlreadyFinalized
	default:
		return fmt.Errorf("%w: job %s is %s", ErrNotReviewable, job.ID, job.Phase)
	}
}

// finish completes a job already in the finalizing phase. On a failure
// before the transcript is written the job goes back to speaker review.
func (s *Supervisor) finish(ctx context.Context, job *queue.Job) (*queue.Job, error) {
	mapping := job.EffectiveMapping()
	if err := s.service.UpdateSpeakers(ctx, job.ID, mapping); err != nil {
		if errors.Is(err, services.ErrNotFound) {
			s.warnEcho(job.ID, err)
		} else {
			s.revert(ctx, job, err)
			return nil, err
		}
	}

	path, err := s.writeTranscript(job, mapping)
	if err != nil {
		s.revert(ctx, job, err)
		return nil, err
	}
	if err := s.store.SetTranscriptPath(ctx, job.ID, path); err != nil {
		return nil, err
	}
	if err := s.store.TransitionJob(ctx, job.ID, queue.JobFinalizing, queue.JobFinalized, ""); err != nil {
		if errors.Is(err, queue.ErrConflict) {
			return nil, ErrAlreadyFinalized
		}
		return nil, err
	}
	final, err := s.store.GetJob(ctx, job.ID)
	if err != nil {
		return nil, err
	}
	s.logger.Info("transcript finalized",
		logging.String(logging.FieldEventType, "job_finalized"),
		logging.String(logging.FieldJobID, job.ID),
		logging.String("transcript_path", path),
		logging.Int("speakers", len(final.Speakers())),
	)
	if _, err := s.transport.SendText(ctx, fmt.Sprintf("✅ Transcript finalized for %s", final.MeetingTitle)); err != nil {
		s.logger.Debug("finalize notice not delivered", logging.Error(err))
	}
	if hook := s.finalizedHook(); hook != nil {
		if err := hook(ctx, final); err != nil {
			return final, err
		}
	}
	return final, nil
}

func (s *Supervisor) revert(ctx context.Context, job *queue.Job, cause error) {
	logging.WarnWithContext(s.logger, "finalize failed; job returned to speaker review", "job_finalize_failed",
		logging.String(logging.FieldJobID, job.ID),
		logging.Error(cause),
		logging.String(logging.FieldImpact, "transcript not finalized yet"),
		logging.String(logging.FieldErrorHint, "press Finalize again on the refreshed review card"),
	)
	if err := s.store.TransitionJob(ctx, job.ID, queue.JobFinalizing, queue.JobAwaitingSpeakerReview, ""); err != nil {
		return
	}
	job.Phase = queue.JobAwaitingSpeakerReview
	if err := s.sendReview(ctx, job); err != nil {
		s.logger.Debug("review card not resent", logging.Error(err))
	}
}

// writeTranscript saves "{stem}_transcript.txt" next to the relocated video.
func (s *Supervisor) writeTranscript(job *queue.Job, mapping map[string]string) (string, error) {
	dir := s.outputDir
	if job.VideoPath != "" {
		dir = filepath.Dir(job.VideoPath)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", services.Wrap(services.ErrConfiguration, "transcription", "Write transcript", dir, err)
	}
	path := filepath.Join(dir, transcriptFileName(job))
	content := transcript.Format(job.Transcript, mapping)
	if err := fileutil.WriteFileAtomic(path, []byte(content+"\n"), 0o644); err != nil {
		return "", services.Wrap(services.ErrExternalTool, "transcription", "Write transcript", path, err)
	}
	return path, nil
}

// Cancel stops a job that has not finalized: the service job is cancelled,
// the poll loop stops and the job fails with a cancellation note.
func (s *Supervisor) Cancel(ctx context.Context, jobID string) error {
	job, err := s.store.GetJob(ctx, jobID)
	if err != nil {
		return err
	}
	switch job.Phase {
	case queue.JobFinalized:
		return ErrAlreadyFinalized
	case queue.JobFinalizing:
		return ErrAlreadyFinalizing
	case queue.JobFailed:
		return fmt.Errorf("%w: job %s already failed", ErrNotReviewable, jobID)
	}
	if err := s.store.TransitionJob(ctx, jobID, job.Phase, queue.JobFailed, "cancelled by user"); err != nil {
		if errors.Is(err, queue.ErrConflict) {
			return fmt.Errorf("%w: job %s changed phase", ErrNotReviewable, jobID)
		}
		return err
	}
	s.unwatch(jobID)
	if err := s.service.Cancel(ctx, jobID); err != nil && !errors.Is(err, services.ErrNotFound) {
		logging.WarnWithContext(s.logger, "service job not cancelled", "job_cancel_remote_failed",
			logging.String(logging.FieldJobID, jobID),
			logging.Error(err),
			logging.String(logging.FieldImpact, "service may keep processing the recording"),
			logging.String(logging.FieldErrorHint, "cancel the job in Scriberr: "+s.service.JobLink(jobID)),
		)
	}
	s.clearReview(ctx, job)
	if err := s.store.DeletePendingRepliesForJob(ctx, jobID); err != nil {
		s.logger.Debug("pending replies not cleared", logging.Error(err))
	}
	job.Phase = queue.JobFailed
	job.ErrorMessage = "cancelled by user"
	s.logger.Info("transcription job cancelled",
		logging.String(logging.FieldEventType, "job_cancelled"),
		logging.String(logging.FieldJobID, jobID),
	)
	if _, err := s.transport.SendText(ctx, fmt.Sprintf("🛑 Transcription cancelled for %s", job.MeetingTitle)); err != nil {
		s.logger.Debug("cancel notice not delivered", logging.Error(err))
	}
	if hook := s.failedHook(); hook != nil {
		hook(ctx, job, true)
	}
	return nil
}
