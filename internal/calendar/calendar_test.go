package calendar_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"meetsync/internal/calendar"
	"meetsync/internal/logging"
	"meetsync/internal/services"
	"meetsync/internal/testsupport"
)

func newResolver(t *testing.T, source calendar.Source, offset float64) (*calendar.Resolver, *time.Location) {
	t.Helper()
	cfg := testsupport.NewConfig(t, testsupport.WithTimezoneOffset(offset))
	return calendar.NewResolver(source, cfg, logging.NewNop()), cfg.Location()
}

func at(t *testing.T, loc *time.Location, value string) time.Time {
	t.Helper()
	parsed, err := time.ParseInLocation("2006-01-02 15:04:05", value, loc)
	if err != nil {
		t.Fatalf("parse %q: %v", value, err)
	}
	return parsed
}

func TestResolveSingleCoveringEventMatches(t *testing.T) {
	source := testsupport.NewCalendarSource()
	resolver, loc := newResolver(t, source, 3)
	source.Add(
		testsupport.Meeting("a", "Design Review", loc, "2026-01-22 14:00", "2026-01-22 15:00"),
		testsupport.Meeting("b", "Lunch", loc, "2026-01-22 12:00", "2026-01-22 13:00"),
	)

	res, err := resolver.Resolve(context.Background(), at(t, loc, "2026-01-22 14:26:31"))
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if res.Outcome != calendar.OutcomeMatched {
		t.Fatalf("outcome = %s, want matched", res.Outcome)
	}
	if res.Event == nil || res.Event.ID != "a" {
		t.Fatalf("event = %+v, want a", res.Event)
	}
}

func TestFindAtIsInclusiveOnBothEnds(t *testing.T) {
	source := testsupport.NewCalendarSource()
	resolver, loc := newResolver(t, source, 0)
	source.Add(testsupport.Meeting("a", "Sync", loc, "2026-01-22 10:00", "2026-01-22 11:00"))

	for _, value := range []string{"2026-01-22 10:00:00", "2026-01-22 11:00:00"} {
		events, err := resolver.FindAt(context.Background(), at(t, loc, value))
		if err != nil {
			t.Fatalf("FindAt(%s): %v", value, err)
		}
		if len(events) != 1 {
			t.Fatalf("FindAt(%s) = %d events, want 1", value, len(events))
		}
	}
	events, err := resolver.FindAt(context.Background(), at(t, loc, "2026-01-22 11:00:01"))
	if err != nil {
		t.Fatalf("FindAt: %v", err)
	}
	if len(events) != 0 {
		t.Fatalf("expected no events after end, got %d", len(events))
	}
}

func TestAllDayEventDoesNotCoverRecording(t *testing.T) {
	source := testsupport.NewCalendarSource()
	resolver, loc := newResolver(t, source, 3)
	offsite := testsupport.Meeting("day", "Team Offsite", loc, "2026-01-22 00:00", "2026-01-23 00:00")
	offsite.AllDay = true
	source.Add(offsite, testsupport.Meeting("a", "Design Review", loc, "2026-01-22 14:00", "2026-01-22 15:00"))

	events, err := resolver.FindAt(context.Background(), at(t, loc, "2026-01-22 14:26:31"))
	if err != nil {
		t.Fatalf("FindAt: %v", err)
	}
	if len(events) != 1 || events[0].ID != "a" {
		t.Fatalf("FindAt = %+v, want only a", events)
	}

	res, err := resolver.Resolve(context.Background(), at(t, loc, "2026-01-22 14:26:31"))
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if res.Outcome != calendar.OutcomeMatched || res.Event == nil || res.Event.ID != "a" {
		t.Fatalf("resolution = %+v, want matched a", res)
	}
}

func TestResolveDateOnlyOffersSameDayCandidates(t *testing.T) {
	source := testsupport.NewCalendarSource()
	resolver, loc := newResolver(t, source, 0)
	source.Add(
		testsupport.Meeting("late", "Planning", loc, "2026-01-23 14:00", "2026-01-23 15:00"),
		testsupport.Meeting("early", "Team Standup", loc, "2026-01-23 09:00", "2026-01-23 09:15"),
		testsupport.Meeting("other", "Tomorrow", loc, "2026-01-24 09:00", "2026-01-24 10:00"),
	)

	res, err := resolver.Resolve(context.Background(), at(t, loc, "2026-01-23 00:00:00"))
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if res.Outcome != calendar.OutcomeAmbiguous {
		t.Fatalf("outcome = %s, want ambiguous", res.Outcome)
	}
	if len(res.Candidates) != 2 {
		t.Fatalf("candidates = %d, want 2", len(res.Candidates))
	}
	if res.Candidates[0].ID != "early" || res.Candidates[1].ID != "late" {
		t.Fatalf("candidates not ordered by start: %s, %s", res.Candidates[0].ID, res.Candidates[1].ID)
	}
}

func TestResolveOverlappingEventsIsAmbiguous(t *testing.T) {
	source := testsupport.NewCalendarSource()
	resolver, loc := newResolver(t, source, 0)
	source.Add(
		testsupport.Meeting("a", "One", loc, "2026-01-22 10:00", "2026-01-22 11:00"),
		testsupport.Meeting("b", "Two", loc, "2026-01-22 10:30", "2026-01-22 11:30"),
	)
	res, err := resolver.Resolve(context.Background(), at(t, loc, "2026-01-22 10:45:00"))
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if res.Outcome != calendar.OutcomeAmbiguous || len(res.Candidates) != 2 {
		t.Fatalf("resolution = %+v, want two ambiguous candidates", res)
	}
}

func TestResolveEmptyDateIsNoMeeting(t *testing.T) {
	source := testsupport.NewCalendarSource()
	resolver, loc := newResolver(t, source, 0)

	res, err := resolver.Resolve(context.Background(), at(t, loc, "2026-01-20 10:00:00"))
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if res.Outcome != calendar.OutcomeNoMeeting {
		t.Fatalf("outcome = %s, want no_meeting", res.Outcome)
	}
	if source.Calls() != 2 {
		t.Fatalf("calls = %d, want 2 (covering then same date)", source.Calls())
	}
}

func TestFindAtUsesConfiguredOffset(t *testing.T) {
	source := testsupport.NewCalendarSource()
	resolver, loc := newResolver(t, source, 3)
	// 01:30 at UTC+3 is 22:30 UTC on the previous day.
	source.Add(calendar.Event{
		ID:    "late",
		Title: "Late call",
		Start: time.Date(2026, 1, 21, 22, 0, 0, 0, time.UTC),
		End:   time.Date(2026, 1, 21, 23, 0, 0, 0, time.UTC),
	})
	events, err := resolver.FindAt(context.Background(), at(t, loc, "2026-01-22 01:30:00"))
	if err != nil {
		t.Fatalf("FindAt: %v", err)
	}
	if len(events) != 1 || events[0].ID != "late" {
		t.Fatalf("events = %+v, want late", events)
	}
}

func TestTransientFailuresAreRetried(t *testing.T) {
	source := testsupport.NewCalendarSource()
	resolver, loc := newResolver(t, source, 0)
	source.Add(testsupport.Meeting("a", "Sync", loc, "2026-01-22 10:00", "2026-01-22 11:00"))
	source.Failures = []error{
		services.Wrap(services.ErrTransient, "calendar", "list", "503", nil),
		services.Wrap(services.ErrTransient, "calendar", "list", "503", nil),
	}

	res, err := resolver.Resolve(context.Background(), at(t, loc, "2026-01-22 10:15:00"))
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if res.Outcome != calendar.OutcomeMatched {
		t.Fatalf("outcome = %s, want matched", res.Outcome)
	}
	if source.Calls() != 3 {
		t.Fatalf("calls = %d, want 3", source.Calls())
	}
}

func TestTransientFailuresGiveUpAfterAttempts(t *testing.T) {
	source := testsupport.NewCalendarSource()
	resolver, loc := newResolver(t, source, 0)
	netErr := services.Wrap(services.ErrTransient, "calendar", "list", "network unreachable", nil)
	source.Failures = []error{netErr, netErr, netErr, netErr}

	_, err := resolver.Resolve(context.Background(), at(t, loc, "2026-01-22 10:15:00"))
	if err == nil {
		t.Fatal("expected error")
	}
	if !services.IsTransient(err) {
		t.Fatalf("expected transient error, got %v", err)
	}
	if source.Calls() != 3 {
		t.Fatalf("calls = %d, want 3", source.Calls())
	}
}

func TestPermanentFailureIsNotRetried(t *testing.T) {
	source := testsupport.NewCalendarSource()
	resolver, loc := newResolver(t, source, 0)
	source.Failures = []error{services.Wrap(services.ErrExternalTool, "calendar", "list", "401", nil)}

	_, err := resolver.Resolve(context.Background(), at(t, loc, "2026-01-22 10:15:00"))
	if !errors.Is(err, services.ErrExternalTool) {
		t.Fatalf("expected external tool error, got %v", err)
	}
	if services.IsTransient(err) {
		t.Fatal("permanent error reported as transient")
	}
	if source.Calls() != 1 {
		t.Fatalf("calls = %d, want 1", source.Calls())
	}
}

func TestPlainText(t *testing.T) {
	cases := map[string]string{
		"":                 "",
		"  plain agenda  ": "plain agenda",
		"<p>Agenda</p><ul><li>One</li><li>Two</li></ul>": "Agenda\nOne\nTwo",
		"Line one<br>Line two &amp; more":                "Line one\nLine two & more",
		`<a href="https://meet.example">Join</a>`: "Join",
	}
	for input, want := range cases {
		if got := calendar.PlainText(input); got != want {
			t.Errorf("PlainText(%q) = %q, want %q", input, got, want)
		}
	}
}
