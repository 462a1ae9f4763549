package testsupport

import (
	"context"
	"sync"
	"time"

	"meetsync/internal/calendar"
)

// CalendarSource is an in-memory calendar.Source. Errors queued in Failures
// are returned, one per call, before events are served.
type CalendarSource struct {
	mu       sync.Mutex
	events   []calendar.Event
	Failures []error
	calls    int
}

// NewCalendarSource returns a source serving the given events.
func NewCalendarSource(events ...calendar.Event) *CalendarSource {
	return &CalendarSource{events: events}
}

// Add appends events to the source.
func (s *CalendarSource) Add(events ...calendar.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, events...)
}

// Calls reports how many times Events was invoked.
func (s *CalendarSource) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

// Events implements calendar.Source with overlap semantics.
func (s *CalendarSource) Events(ctx context.Context, from, to time.Time, limit int) ([]calendar.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if len(s.Failures) > 0 {
		err := s.Failures[0]
		s.Failures = s.Failures[1:]
		return nil, err
	}
	out := make([]calendar.Event, 0, len(s.events))
	for _, event := range s.events {
		if event.End.Before(from) || !event.Start.Before(to) {
			continue
		}
		out = append(out, event)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

// Meeting builds an event from wall-clock times in loc.
func Meeting(id, title string, loc *time.Location, start, end string) calendar.Event {
	const layout = "2006-01-02 15:04"
	s, err := time.ParseInLocation(layout, start, loc)
	if err != nil {
		panic(err)
	}
	e, err := time.ParseInLocation(layout, end, loc)
	if err != nil {
		panic(err)
	}
	return calendar.Event{ID: id, Title: title, Start: s, End: e}
}
