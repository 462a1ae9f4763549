package transcription

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"meetsync/internal/config"
	"meetsync/internal/logging"
	"meetsync/internal/messaging"
	"meetsync/internal/queue"
	"meetsync/internal/services"
	"meetsync/internal/services/llm"
	"meetsync/internal/transcript"
)

// Service is the external transcription backend.
type Service interface {
	Upload(ctx context.Context, path, title string) (string, error)
	Start(ctx context.Context, jobID string) error
	Status(ctx context.Context, jobID string) (string, error)
	Transcript(ctx context.Context, jobID string) ([]byte, error)
	UpdateSpeakers(ctx context.Context, jobID string, mapping map[string]string) error
	Cancel(ctx context.Context, jobID string) error
	JobLink(jobID string) string
}

// Job statuses reported by Service.Status.
const (
	StatusCompleted = "completed"
	StatusFailed    = "failed"
)

var (
	// ErrAlreadyFinalizing is returned when a finalize is already running.
	ErrAlreadyFinalizing = errors.New("job already finalizing")
	// ErrAlreadyFinalized is returned for a job that already finalized.
	ErrAlreadyFinalized = errors.New("job already finalized")
	// ErrNotReviewable is returned when a job is not awaiting speaker review.
	ErrNotReviewable = errors.New("job is not awaiting speaker review")
	// ErrUnknownSpeaker is returned for a slot that does not occur in the
	// transcript.
	ErrUnknownSpeaker = errors.New("unknown speaker")
	// ErrNotStarted is returned when Submit is called before Start.
	ErrNotStarted = errors.New("supervisor not started")
)

// Hooks connect job outcomes to the rest of the pipeline.
type Hooks struct {
	// Finalized runs once per job after it reaches the finalized phase.
	Finalized func(ctx context.Context, job *queue.Job) error
	// Failed runs when a job fails or is cancelled by the user.
	Failed func(ctx context.Context, job *queue.Job, cancelled bool)
	// ReviewReady runs when a draft transcript first reaches speaker review.
	ReviewReady func(ctx context.Context, job *queue.Job)
}

// Supervisor owns transcription jobs and their poll goroutines.
type Supervisor struct {
	store     *queue.Store
	service   Service
	completer llm.Completer
	transport messaging.Transport
	prompts   *messaging.Prompts
	hooks     Hooks
	logger    *slog.Logger

	chatID    int64
	outputDir string
	interval  time.Duration
	maxTokens int

	mu     sync.Mutex
	base   context.Context
	cancel context.CancelFunc
	polls  map[string]context.CancelFunc
	wg     sync.WaitGroup
}

// Option customizes a Supervisor.
type Option func(*Supervisor)

// WithPollInterval overrides the job status poll interval.
func WithPollInterval(d time.Duration) Option {
	return func(s *Supervisor) {
		if d > 0 {
			s.interval = d
		}
	}
}

// WithHooks registers pipeline callbacks.
func WithHooks(h Hooks) Option {
	return func(s *Supervisor) {
		s.hooks = h
	}
}

// NewSupervisor constructs a supervisor. completer may be nil, in which case
// no speaker names are proposed.
func NewSupervisor(cfg *config.Config, store *queue.Store, service Service, completer llm.Completer, transport messaging.Transport, logger *slog.Logger, opts ...Option) *Supervisor {
	s := &Supervisor{
		store:     store,
		service:   service,
		completer: completer,
		transport: transport,
		prompts:   messaging.NewPrompts(store),
		logger:    logging.NewComponentLogger(logger, "transcription"),
		chatID:    cfg.Telegram.ChatID,
		outputDir: cfg.Paths.OutputDir,
		interval:  time.Duration(cfg.Scriberr.PollIntervalSeconds) * time.Second,
		maxTokens: cfg.LLM.MaxTokens,
		polls:     make(map[string]context.CancelFunc),
	}
	if s.interval <= 0 {
		s.interval = 10 * time.Second
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// SetHooks replaces the pipeline callbacks. It must be called before Start.
func (s *Supervisor) SetHooks(h Hooks) {
	s.mu.Lock()
	s.hooks = h
	s.mu.Unlock()
}

// Start binds poll goroutines to ctx and resumes unfinished jobs.
func (s *Supervisor) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.base != nil {
		s.mu.Unlock()
		return nil
	}
	s.base, s.cancel = context.WithCancel(ctx)
	s.mu.Unlock()
	return s.Resume(ctx)
}

// Stop cancels every poll goroutine and waits for them to return.
func (s *Supervisor) Stop() {
	s.mu.Lock()
	cancel := s.cancel
	s.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	s.wg.Wait()
}

// Polling reports whether a poll goroutine is active for jobID.
func (s *Supervisor) Polling(jobID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.polls[jobID]
	return ok
}

// JobLink returns the service URL for a job.
func (s *Supervisor) JobLink(jobID string) string {
	return s.service.JobLink(jobID)
}

// Submit uploads the relocated recording of asset, starts transcription and
// begins polling. Upload and start failures are returned classified so the
// caller can queue the asset for a later retry.
func (s *Supervisor) Submit(ctx context.Context, asset *queue.Asset) (*queue.Job, error) {
	if !s.started() {
		return nil, ErrNotStarted
	}
	path := asset.OutputPath
	if path == "" {
		return nil, services.Wrap(services.ErrValidation, "transcription", "Submit", fmt.Sprintf("asset %d has no relocated file", asset.ID), nil)
	}
	title := strings.TrimSpace(asset.MeetingTitle)
	if title == "" {
		title = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}

	jobID, err := s.service.Upload(ctx, path, title)
	if err != nil {
		return nil, err
	}
	if err := s.service.Start(ctx, jobID); err != nil {
		return nil, err
	}
	job := &queue.Job{
		ID:           jobID,
		AssetID:      asset.ID,
		MeetingTitle: title,
		MeetingStart: asset.MeetingStart,
		VideoPath:    path,
	}
	if err := s.store.CreateJob(ctx, job); err != nil {
		return nil, fmt.Errorf("record job: %w", err)
	}
	s.logger.Info("transcription job submitted",
		logging.String(logging.FieldEventType, "job_submitted"),
		logging.String(logging.FieldJobID, jobID),
		logging.Int64(logging.FieldAssetID, asset.ID),
		logging.String("title", title),
	)
	s.watch(jobID)
	return job, nil
}

// Resume restarts poll loops for draft jobs and completes finalizations that
// were interrupted.
func (s *Supervisor) Resume(ctx context.Context) error {
	drafts, err := s.store.ListJobs(ctx, queue.JobDraft)
	if err != nil {
		return err
	}
	for _, job := range drafts {
		s.watch(job.ID)
	}
	finalizing, err := s.store.ListJobs(ctx, queue.JobFinalizing)
	if err != nil {
		return err
	}
	for _, job := range finalizing {
		if _, err := s.finish(ctx, job); err != nil {
			logging.WarnWithContext(s.logger, "interrupted finalize could not be completed", "job_finalize_resume_failed",
				logging.String(logging.FieldJobID, job.ID),
				logging.Error(err),
				logging.String(logging.FieldImpact, "job returned to speaker review"),
				logging.String(logging.FieldErrorHint, "press Finalize again once the service is reachable"),
			)
		}
	}
	if len(drafts) > 0 || len(finalizing) > 0 {
		s.logger.Info("transcription jobs resumed",
			logging.Int("draft", len(drafts)),
			logging.Int("finalizing", len(finalizing)),
		)
	}
	return nil
}

func (s *Supervisor) started() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.base != nil
}

func (s *Supervisor) watch(jobID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.base == nil {
		return
	}
	if _, ok := s.polls[jobID]; ok {
		return
	}
	ctx, cancel := context.WithCancel(s.base)
	s.polls[jobID] = cancel
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer s.unwatch(jobID)
		s.poll(ctx, jobID)
	}()
}

func (s *Supervisor) unwatch(jobID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if cancel, ok := s.polls[jobID]; ok {
		cancel()
		delete(s.polls, jobID)
	}
}

func (s *Supervisor) poll(ctx context.Context, jobID string) {
	logger := s.logger.With(logging.String(logging.FieldJobID, jobID))
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		done, err := s.check(ctx, jobID)
		if done {
			return
		}
		if err != nil {
			logger.Debug("job status check failed", logging.Error(err))
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// check runs one poll iteration and reports whether polling should stop.
func (s *Supervisor) check(ctx context.Context, jobID string) (bool, error) {
	status, err := s.service.Status(ctx, jobID)
	if err != nil {
		if ctx.Err() != nil {
			return true, nil
		}
		if services.IsTransient(err) {
			return false, err
		}
		s.fail(ctx, jobID, fmt.Sprintf("status check failed: %v", err))
		return true, err
	}
	switch status {
	case StatusCompleted:
		if err := s.complete(ctx, jobID); err != nil {
			if services.IsTransient(err) && ctx.Err() == nil {
				return false, err
			}
			if ctx.Err() != nil {
				return true, nil
			}
			s.fail(ctx, jobID, err.Error())
		}
		return true, nil
	case StatusFailed:
		s.fail(ctx, jobID, "transcription service reported failure")
		return true, nil
	default:
		return false, nil
	}
}

// complete turns a finished draft into a job awaiting speaker review.
func (s *Supervisor) complete(ctx context.Context, jobID string) error {
	job, err := s.store.GetJob(ctx, jobID)
	if err != nil {
		return err
	}
	if job.Phase != queue.JobDraft {
		return nil
	}
	raw, err := s.service.Transcript(ctx, jobID)
	if err != nil {
		return err
	}
	blocks, err := transcript.Clean(raw)
	if err != nil {
		return services.Wrap(services.ErrValidation, "transcription", "Clean transcript", "", err)
	}
	mapping := s.proposeSpeakers(ctx, job, blocks)
	if err := s.store.SetTranscript(ctx, jobID, blocks, mapping); err != nil {
		if errors.Is(err, queue.ErrConflict) {
			return nil
		}
		return err
	}
	if len(mapping) > 0 {
		if err := s.service.UpdateSpeakers(ctx, jobID, mapping); err != nil {
			s.warnEcho(jobID, err)
		}
	}

	name := transcriptFileName(job)
	caption := fmt.Sprintf("📄 Draft transcript for: %s", job.MeetingTitle)
	if _, err := s.transport.SendDocument(ctx, name, []byte(transcript.Format(blocks, mapping)), caption); err != nil {
		logging.WarnWithContext(s.logger, "draft transcript not delivered", "draft_send_failed",
			logging.String(logging.FieldJobID, jobID),
			logging.Error(err),
			logging.String(logging.FieldImpact, "speaker review continues without the draft document"),
			logging.String(logging.FieldErrorHint, "check telegram connectivity"),
		)
	}

	if err := s.store.TransitionJob(ctx, jobID, queue.JobDraft, queue.JobAwaitingSpeakerReview, ""); err != nil {
		if errors.Is(err, queue.ErrConflict) {
			return nil
		}
		return err
	}
	s.logger.Info("transcript ready for speaker review",
		logging.Args(append(logging.DecisionAttrs("speaker_proposal", fmt.Sprintf("%d/%d", len(mapping), len(transcript.Speakers(blocks))), "ai mapping stored as draft"),
			logging.String(logging.FieldEventType, "job_awaiting_review"),
			logging.String(logging.FieldJobID, jobID),
			logging.Int("blocks", len(blocks)),
		)...)...,
	)

	job, err = s.store.GetJob(ctx, jobID)
	if err != nil {
		return err
	}
	if hook := s.reviewHook(); hook != nil {
		hook(ctx, job)
	}
	if err := s.sendReview(ctx, job); err != nil {
		logging.WarnWithContext(s.logger, "speaker review prompt not delivered", "review_send_failed",
			logging.String(logging.FieldJobID, jobID),
			logging.Error(err),
			logging.String(logging.FieldImpact, "job waits for review without buttons"),
			logging.String(logging.FieldErrorHint, "send /review "+jobID+" to resend the prompt"),
		)
	}
	return nil
}

func (s *Supervisor) fail(ctx context.Context, jobID, reason string) {
	job, err := s.store.GetJob(ctx, jobID)
	if err != nil {
		return
	}
	if job.Phase == queue.JobFinalized || job.Phase == queue.JobFailed {
		return
	}
	if err := s.store.TransitionJob(ctx, jobID, job.Phase, queue.JobFailed, reason); err != nil {
		return
	}
	job.Phase = queue.JobFailed
	job.ErrorMessage = reason
	logging.ErrorWithContext(s.logger, "transcription job failed", "job_failed",
		logging.String(logging.FieldJobID, jobID),
		logging.String("reason", reason),
		logging.String(logging.FieldErrorHint, "inspect the job in Scriberr: "+s.service.JobLink(jobID)),
	)
	if _, err := s.transport.SendText(ctx, fmt.Sprintf("❌ Transcription failed for %s\n%s", job.MeetingTitle, reason)); err != nil {
		s.logger.Debug("failure notice not delivered", logging.Error(err))
	}
	if hook := s.failedHook(); hook != nil {
		hook(ctx, job, false)
	}
}

func (s *Supervisor) failedHook() func(context.Context, *queue.Job, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.hooks.Failed
}

func (s *Supervisor) reviewHook() func(context.Context, *queue.Job) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.hooks.ReviewReady
}

func (s *Supervisor) finalizedHook() func(context.Context, *queue.Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.hooks.Finalized
}

func (s *Supervisor) warnEcho(jobID string, err error) {
	logging.WarnWithContext(s.logger, "speaker mapping not echoed to transcription service", "speaker_echo_failed",
		logging.String(logging.FieldJobID, jobID),
		logging.Error(err),
		logging.String(logging.FieldImpact, "service record shows older speaker names until finalize"),
		logging.String(logging.FieldErrorHint, "finalize pushes the merged mapping again"),
	)
}

func transcriptFileName(job *queue.Job) string {
	stem := strings.TrimSuffix(filepath.Base(job.VideoPath), filepath.Ext(job.VideoPath))
	if stem == "" || stem == "." {
		stem = job.ID
	}
	return stem + "_transcript.txt"
}
