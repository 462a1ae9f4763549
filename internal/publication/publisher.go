package publication

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"meetsync/internal/config"
	"meetsync/internal/logging"
	"meetsync/internal/queue"
	"meetsync/internal/services"
)

var (
	// ErrAlreadyPublished is returned when the job's entry is already in the
	// meeting log.
	ErrAlreadyPublished = errors.New("log entry already published")
	// ErrInProgress is returned when another caller holds the publish claim.
	ErrInProgress = errors.New("log entry publish in progress")
)

// MeetingHeaders are the meeting log columns in row order.
var MeetingHeaders = []string{
	"Date & Time",
	"Meeting Name",
	"Project Tag",
	"Video Source Link",
	"Scribber Link",
	"Transcript Drive Link",
	"Status",
	"Meeting Type",
	"Speakers",
	"Summary",
}

// ProjectHeaders are the project tab columns.
var ProjectHeaders = []string{"Project Name", "Keywords / Context"}

// Outcome reports what Publish did with an entry.
type Outcome string

const (
	OutcomePublished Outcome = "published"
	OutcomeQueued    Outcome = "queued"
	OutcomeDuplicate Outcome = "duplicate"
)

// Archive mirrors published entries into secondary storage.
type Archive interface {
	Upsert(ctx context.Context, entry *queue.LogEntry) error
}

// Publisher appends log entries exactly once per job.
type Publisher struct {
	store      *queue.Store
	sink       Sink
	builder    *Builder
	archive    Archive
	online     func() bool
	sheetID    string
	meetingTab string
	projectTab string
	logger     *slog.Logger
}

// PublisherOption customizes a Publisher.
type PublisherOption func(*Publisher)

// WithArchive mirrors published entries into a.
func WithArchive(a Archive) PublisherOption {
	return func(p *Publisher) {
		p.archive = a
	}
}

// WithOnline sets the connectivity check consulted before appending.
func WithOnline(fn func() bool) PublisherOption {
	return func(p *Publisher) {
		p.online = fn
	}
}

// NewPublisher constructs a Publisher.
func NewPublisher(cfg *config.Config, store *queue.Store, sink Sink, builder *Builder, logger *slog.Logger, opts ...PublisherOption) *Publisher {
	p := &Publisher{
		store:      store,
		sink:       sink,
		builder:    builder,
		sheetID:    cfg.Google.SheetsID,
		meetingTab: cfg.Google.MeetingTab,
		projectTab: cfg.Google.ProjectTab,
		logger:     logging.NewComponentLogger(logger, "publication"),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// SetOnline replaces the connectivity check.
func (p *Publisher) SetOnline(fn func() bool) {
	p.online = fn
}

// EnsureSheet creates the meeting and project tabs with their header rows.
func (p *Publisher) EnsureSheet(ctx context.Context) error {
	return p.sink.EnsureTabs(ctx, p.sheetID, map[string][]string{
		p.meetingTab: MeetingHeaders,
		p.projectTab: ProjectHeaders,
	})
}

// Publish records the entry for a finalized job and appends it to the
// meeting log. Only job-derived fields are stored up front; the document,
// classification and project tag are resolved by Append. When offline, or when the append fails transiently, the entry
// stays pending on the log entry queue and OutcomeQueued is returned with a
// nil error.
func (p *Publisher) Publish(ctx context.Context, job *queue.Job) (Outcome, error) {
	existing, err := p.store.GetLogEntry(ctx, job.ID)
	switch {
	case err == nil && existing.Status == queue.LogPublished:
		p.logDuplicate(job.ID)
		return OutcomeDuplicate, ErrAlreadyPublished
	case err != nil && !errors.Is(err, queue.ErrNotFound):
		return "", err
	case errors.Is(err, queue.ErrNotFound):
		if _, err := p.store.InsertLogEntryIfAbsent(ctx, p.builder.Base(job)); err != nil {
			return "", err
		}
	}

	if !p.isOnline() {
		if err := p.store.Enqueue(ctx, queue.OfflineLogEntry, job.ID); err != nil {
			return "", err
		}
		p.logger.Info("log entry queued until connectivity returns",
			logging.Args(append(logging.DecisionAttrs("log_publish", "queued", "offline"),
				logging.String(logging.FieldJobID, job.ID))...)...,
		)
		return OutcomeQueued, nil
	}

	err = p.Append(ctx, job.ID)
	switch {
	case err == nil:
		return OutcomePublished, nil
	case errors.Is(err, ErrAlreadyPublished), errors.Is(err, ErrInProgress):
		p.logDuplicate(job.ID)
		return OutcomeDuplicate, err
	}
	if qerr := p.store.Enqueue(ctx, queue.OfflineLogEntry, job.ID); qerr != nil {
		return "", errors.Join(err, qerr)
	}
	if services.IsTransient(err) {
		logging.WarnWithContext(p.logger, "log append failed; entry queued", "log_append_deferred",
			logging.String(logging.FieldJobID, job.ID),
			logging.Error(err),
			logging.String(logging.FieldImpact, "row appears after the next successful flush"),
			logging.String(logging.FieldErrorHint, "check connectivity to Google Sheets"),
		)
		return OutcomeQueued, nil
	}
	return OutcomeQueued, err
}

// Append claims the pending entry, resolves the fields it still lacks,
// appends its row and marks it published. A failed append returns the entry
// to pending.
func (p *Publisher) Append(ctx context.Context, jobID string) error {
	entry, err := p.store.GetLogEntry(ctx, jobID)
	if err != nil {
		return err
	}
	switch entry.Status {
	case queue.LogPublished:
		return ErrAlreadyPublished
	case queue.LogPublishing:
		return ErrInProgress
	}
	if err := p.store.ClaimLogEntry(ctx, jobID); err != nil {
		if errors.Is(err, queue.ErrConflict) {
			if current, getErr := p.store.GetLogEntry(ctx, jobID); getErr == nil && current.Status == queue.LogPublished {
				return ErrAlreadyPublished
			}
			return ErrInProgress
		}
		return err
	}
	p.enrich(ctx, entry)
	if err := p.sink.AppendRow(ctx, p.sheetID, p.meetingTab, entry.Row()); err != nil {
		if rerr := p.store.ReleaseLogEntry(ctx, jobID, err.Error()); rerr != nil {
			return errors.Join(err, rerr)
		}
		return err
	}
	if err := p.store.CompleteLogEntry(ctx, jobID); err != nil {
		return fmt.Errorf("mark published: %w", err)
	}
	p.logger.Info("meeting log entry published",
		logging.Args(append(logging.DecisionAttrs("log_publish", "published", "first successful append"),
			logging.String(logging.FieldEventType, "log_entry_published"),
			logging.String(logging.FieldJobID, jobID),
			logging.String("meeting", entry.MeetingName),
			logging.String("project", entry.ProjectTag),
		)...)...,
	)
	if p.archive != nil {
		published, err := p.store.GetLogEntry(ctx, jobID)
		if err == nil {
			err = p.archive.Upsert(ctx, published)
		}
		if err != nil {
			logging.WarnWithContext(p.logger, "archive upsert failed", "archive_upsert_failed",
				logging.String(logging.FieldJobID, jobID),
				logging.Error(err),
				logging.String(logging.FieldImpact, "entry missing from the Postgres archive"),
				logging.String(logging.FieldErrorHint, "check archive.postgres_dsn"),
			)
		}
	}
	return nil
}

// Flush drains the log entry queue in order, stopping at the first entry
// that still cannot be appended. An entry that keeps failing for a
// non-transient reason is parked after queue.MaxOfflineAttempts tries so it
// no longer blocks the entries behind it.
func (p *Publisher) Flush(ctx context.Context, delay time.Duration) (int, error) {
	return p.store.Drain(ctx, queue.OfflineLogEntry, delay, func(ctx context.Context, item *queue.OfflineItem) error {
		err := p.Append(ctx, item.Ref)
		switch {
		case err == nil, errors.Is(err, ErrAlreadyPublished), errors.Is(err, queue.ErrNotFound):
			return nil
		case errors.Is(err, ErrInProgress), services.IsTransient(err), ctx.Err() != nil:
			return err
		}
		attempt := item.Attempts + 1
		impact := "entry retried on the next flush"
		if attempt >= queue.MaxOfflineAttempts {
			impact = "entry parked; later entries continue"
		}
		logging.WarnWithContext(p.logger, "log entry append keeps failing", "log_append_failed",
			logging.String(logging.FieldJobID, item.Ref),
			logging.Int("attempt", attempt),
			logging.Error(err),
			logging.String(logging.FieldImpact, impact),
			logging.String(logging.FieldErrorHint, "inspect the entry with 'meetsync queue offline'; 'meetsync queue flush' retries parked entries"),
		)
		return fmt.Errorf("%w: %w", queue.ErrPermanent, err)
	})
}

// RequeuePending puts every pending entry back on the log entry queue. Used
// at startup after interrupted publishes were reset.
func (p *Publisher) RequeuePending(ctx context.Context) (int, error) {
	entries, err := p.store.ListLogEntries(ctx, queue.LogPending)
	if err != nil {
		return 0, err
	}
	for _, entry := range entries {
		if err := p.store.Enqueue(ctx, queue.OfflineLogEntry, entry.JobID); err != nil {
			return 0, err
		}
	}
	return len(entries), nil
}

func (p *Publisher) enrich(ctx context.Context, entry *queue.LogEntry) {
	if entry.DocumentLink != "" && entry.ProjectTag != "" && (entry.MeetingType != "" || entry.Summary != "") {
		return
	}
	job, err := p.store.GetJob(ctx, entry.JobID)
	if err != nil || job.Phase != queue.JobFinalized {
		return
	}
	if !p.builder.Enrich(ctx, job, entry) {
		return
	}
	if err := p.store.SetLogEntryDetails(ctx, entry); err != nil {
		logging.WarnWithContext(p.logger, "log entry details not saved", "log_entry_details_failed",
			logging.String(logging.FieldJobID, entry.JobID),
			logging.Error(err),
			logging.String(logging.FieldImpact, "the row is appended with the resolved fields but the local copy keeps the old ones"),
		)
	}
}

func (p *Publisher) isOnline() bool {
	return p.online == nil || p.online()
}

func (p *Publisher) logDuplicate(jobID string) {
	p.logger.Info("duplicate publish ignored",
		logging.Args(append(logging.DecisionAttrs("log_publish", "skipped", "entry already published or in progress"),
			logging.String(logging.FieldJobID, jobID))...)...,
	)
}
