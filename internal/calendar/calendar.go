package calendar

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"meetsync/internal/config"
	"meetsync/internal/logging"
	"meetsync/internal/services"
)

// Event is a calendar event snapshot.
type Event struct {
	ID          string
	Title       string
	Start       time.Time
	End         time.Time
	Description string
	AllDay      bool
}

// Covers reports whether t falls inside the event, inclusive on both ends.
func (e Event) Covers(t time.Time) bool {
	return !t.Before(e.Start) && !t.After(e.End)
}

// Source lists events overlapping [from, to) ordered by start time.
type Source interface {
	Events(ctx context.Context, from, to time.Time, limit int) ([]Event, error)
}

// Outcome classifies a resolution.
type Outcome string

const (
	OutcomeMatched   Outcome = "matched"
	OutcomeAmbiguous Outcome = "ambiguous"
	OutcomeNoMeeting Outcome = "no_meeting"
)

// Resolution is the result of matching one recording time.
type Resolution struct {
	Outcome    Outcome
	Event      *Event
	Candidates []Event
}

// Resolver looks up meetings for recording times.
type Resolver struct {
	source    Source
	loc       *time.Location
	attempts  int
	delay     time.Duration
	maxAt     int
	maxOnDate int
	logger    *slog.Logger
}

// NewResolver constructs a resolver using the calendar section of cfg.
func NewResolver(source Source, cfg *config.Config, logger *slog.Logger) *Resolver {
	attempts := cfg.Calendar.RetryAttempts
	if attempts <= 0 {
		attempts = 1
	}
	maxAt := cfg.Calendar.MaxEventsAtTime
	if maxAt <= 0 {
		maxAt = 20
	}
	maxOnDate := cfg.Calendar.MaxEventsOnDate
	if maxOnDate <= 0 {
		maxOnDate = 50
	}
	return &Resolver{
		source:    source,
		loc:       cfg.Location(),
		attempts:  attempts,
		delay:     time.Duration(cfg.Calendar.RetryDelaySeconds) * time.Second,
		maxAt:     maxAt,
		maxOnDate: maxOnDate,
		logger:    logging.NewComponentLogger(logger, "calendar"),
	}
}

// Location returns the zone recording times are interpreted in.
func (r *Resolver) Location() *time.Location {
	return r.loc
}

// FindAt returns the events whose span contains the recording instant.
// The query covers the whole UTC day of the instant so long meetings that
// started before it are included.
func (r *Resolver) FindAt(ctx context.Context, local time.Time) ([]Event, error) {
	instant := local.UTC()
	from := time.Date(instant.Year(), instant.Month(), instant.Day(), 0, 0, 0, 0, time.UTC)
	to := from.AddDate(0, 0, 1)

	events, err := r.list(ctx, "find at", from, to, r.maxAt)
	if err != nil {
		return nil, err
	}
	covering := make([]Event, 0, len(events))
	for _, event := range events {
		// An all-day event covers every recording of its day.
		if event.AllDay {
			continue
		}
		if event.Covers(instant) {
			covering = append(covering, event)
		}
	}
	if len(covering) > r.maxAt {
		covering = covering[:r.maxAt]
	}
	return covering, nil
}

// FindOnDate returns every event on the local calendar date of the
// recording, ordered by start.
func (r *Resolver) FindOnDate(ctx context.Context, local time.Time) ([]Event, error) {
	day := local.In(r.loc)
	from := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, r.loc)
	to := from.AddDate(0, 0, 1)

	events, err := r.list(ctx, "find on date", from, to, r.maxOnDate)
	if err != nil {
		return nil, err
	}
	if len(events) > r.maxOnDate {
		events = events[:r.maxOnDate]
	}
	return events, nil
}

// Resolve matches a recording time: a single covering event wins outright;
// otherwise the whole date is offered, and an empty date means no meeting.
func (r *Resolver) Resolve(ctx context.Context, local time.Time) (Resolution, error) {
	covering, err := r.FindAt(ctx, local)
	if err != nil {
		return Resolution{}, err
	}
	switch len(covering) {
	case 1:
		event := covering[0]
		r.logger.Info("calendar match",
			logging.Args(append(logging.DecisionAttrs("calendar_match", "matched", "single covering event"),
				logging.String("event_id", event.ID),
				logging.String("title", event.Title),
			)...)...,
		)
		return Resolution{Outcome: OutcomeMatched, Event: &event, Candidates: covering}, nil
	case 0:
	default:
		r.logger.Info("calendar match ambiguous",
			logging.Args(append(logging.DecisionAttrs("calendar_match", "ambiguous", "overlapping events"),
				logging.Int("candidates", len(covering)),
			)...)...,
		)
		return Resolution{Outcome: OutcomeAmbiguous, Candidates: covering}, nil
	}

	sameDay, err := r.FindOnDate(ctx, local)
	if err != nil {
		return Resolution{}, err
	}
	switch len(sameDay) {
	case 0:
		r.logger.Info("no calendar event for recording",
			logging.Args(logging.DecisionAttrs("calendar_match", "no_meeting", "no events on date")...)...,
		)
		return Resolution{Outcome: OutcomeNoMeeting}, nil
	default:
		r.logger.Info("calendar match ambiguous",
			logging.Args(append(logging.DecisionAttrs("calendar_match", "ambiguous", "events on same date"),
				logging.Int("candidates", len(sameDay)),
			)...)...,
		)
		return Resolution{Outcome: OutcomeAmbiguous, Candidates: sameDay}, nil
	}
}

func (r *Resolver) list(ctx context.Context, op string, from, to time.Time, limit int) ([]Event, error) {
	if r.source == nil {
		return nil, services.Wrap(services.ErrConfiguration, "calendar", op, "calendar source not configured", nil)
	}
	var lastErr error
	for attempt := 1; attempt <= r.attempts; attempt++ {
		events, err := r.source.Events(ctx, from, to, limit)
		if err == nil {
			sort.SliceStable(events, func(i, j int) bool { return events[i].Start.Before(events[j].Start) })
			for i := range events {
				events[i].Description = PlainText(events[i].Description)
			}
			return events, nil
		}
		lastErr = err
		if !services.IsTransient(err) {
			return nil, err
		}
		if attempt == r.attempts {
			break
		}
		logging.WarnWithContext(r.logger, "calendar request failed; retrying", "calendar_retry",
			logging.String("operation", op),
			logging.Int("attempt", attempt),
			logging.Int("max_attempts", r.attempts),
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check network connectivity and Google API quota"),
			logging.String(logging.FieldImpact, "lookup delayed"),
		)
		if err := sleep(ctx, r.delay); err != nil {
			return nil, err
		}
	}
	return nil, services.Wrap(services.ErrTransient, "calendar", op,
		fmt.Sprintf("gave up after %d attempts", r.attempts), lastErr)
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
