package google

import (
	"context"
	"fmt"
	"time"

	gcal "google.golang.org/api/calendar/v3"

	"meetsync/internal/calendar"
)

// Events implements calendar.Source over the configured calendar, expanding
// recurring events and ordering by start time.
func (c *Client) Events(ctx context.Context, from, to time.Time, limit int) ([]calendar.Event, error) {
	call := c.calendar.Events.List(c.calendarID).
		TimeMin(from.Format(time.RFC3339)).
		TimeMax(to.Format(time.RFC3339)).
		SingleEvents(true).
		OrderBy("startTime").
		Context(ctx)
	if limit > 0 {
		call = call.MaxResults(int64(limit))
	}
	resp, err := call.Do()
	if err != nil {
		return nil, classify("list events", err)
	}
	events := make([]calendar.Event, 0, len(resp.Items))
	for _, item := range resp.Items {
		event, err := convertEvent(item)
		if err != nil {
			return nil, classify("list events", err)
		}
		events = append(events, event)
	}
	return events, nil
}

func convertEvent(item *gcal.Event) (calendar.Event, error) {
	start, allDay, err := eventTime(item.Start)
	if err != nil {
		return calendar.Event{}, fmt.Errorf("event %s start: %w", item.Id, err)
	}
	end, _, err := eventTime(item.End)
	if err != nil {
		return calendar.Event{}, fmt.Errorf("event %s end: %w", item.Id, err)
	}
	title := item.Summary
	if title == "" {
		title = "Untitled meeting"
	}
	return calendar.Event{
		ID:          item.Id,
		Title:       title,
		Start:       start,
		End:         end,
		Description: item.Description,
		AllDay:      allDay,
	}, nil
}

func eventTime(value *gcal.EventDateTime) (time.Time, bool, error) {
	if value == nil {
		return time.Time{}, false, fmt.Errorf("missing time")
	}
	if value.DateTime != "" {
		parsed, err := time.Parse(time.RFC3339, value.DateTime)
		return parsed, false, err
	}
	if value.Date != "" {
		parsed, err := time.Parse("2006-01-02", value.Date)
		return parsed, true, err
	}
	return time.Time{}, false, fmt.Errorf("missing time")
}
