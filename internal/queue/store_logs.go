package queue

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	sq "github.com/Masterminds/squirrel"
)

// InsertLogEntryIfAbsent stores a pending log entry keyed by job id. A second
// insert for the same job is a no-op and reports created=false.
func (s *Store) InsertLogEntryIfAbsent(ctx context.Context, entry *LogEntry) (bool, error) {
	if entry == nil || entry.JobID == "" {
		return false, errors.New("insert log entry: job id is required")
	}
	now := nowString()
	res, err := s.exec(ctx, builder.Insert("log_entries").
		Options("OR IGNORE").
		Columns(
			"job_id", "status", "meeting_time", "meeting_name", "meeting_type", "speakers",
			"summary", "project_tag", "video_link", "job_link", "document_link",
			"attempts", "created_at", "updated_at",
		).
		Values(
			entry.JobID, string(LogPending), entry.MeetingTime, entry.MeetingName,
			nullableString(entry.MeetingType), nullableString(entry.Speakers),
			nullableString(entry.Summary), nullableString(entry.ProjectTag),
			nullableString(entry.VideoLink), nullableString(entry.JobLink),
			nullableString(entry.DocumentLink), 0, now, now,
		))
	if err != nil {
		return false, fmt.Errorf("insert log entry: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return affected == 1, nil
}

// GetLogEntry fetches a log entry by job id.
func (s *Store) GetLogEntry(ctx context.Context, jobID string) (*LogEntry, error) {
	row, err := s.queryRow(ctx, builder.Select(logEntryColumns).From("log_entries").Where(sq.Eq{"job_id": jobID}))
	if err != nil {
		return nil, err
	}
	entry, err := scanLogEntry(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("log entry %s: %w", jobID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get log entry: %w", err)
	}
	return entry, nil
}

// ListLogEntries returns entries filtered by status (all when none given).
func (s *Store) ListLogEntries(ctx context.Context, statuses ...LogStatus) ([]*LogEntry, error) {
	stmt := builder.Select(logEntryColumns).From("log_entries").OrderBy("created_at ASC")
	if len(statuses) > 0 {
		stmt = stmt.Where(sq.Eq{"status": statusStrings(statuses)})
	}
	rows, err := s.query(ctx, stmt)
	if err != nil {
		return nil, fmt.Errorf("list log entries: %w", err)
	}
	defer rows.Close()
	var entries []*LogEntry
	for rows.Next() {
		entry, err := scanLogEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("scan log entry: %w", err)
		}
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

// ClaimLogEntry performs pending → publishing and counts the attempt. Only
// one caller can hold the claim.
func (s *Store) ClaimLogEntry(ctx context.Context, jobID string) error {
	err := s.cas(ctx, builder.Update("log_entries").
		Set("status", string(LogPublishing)).
		Set("attempts", sq.Expr("attempts + 1")).
		Set("updated_at", nowString()).
		Where(sq.Eq{"job_id": jobID, "status": string(LogPending)}))
	if errors.Is(err, ErrConflict) {
		return fmt.Errorf("log entry %s: %w", jobID, ErrConflict)
	}
	if err != nil {
		return fmt.Errorf("claim log entry: %w", err)
	}
	return nil
}

// CompleteLogEntry performs publishing → published.
func (s *Store) CompleteLogEntry(ctx context.Context, jobID string) error {
	now := nowString()
	err := s.cas(ctx, builder.Update("log_entries").
		Set("status", string(LogPublished)).
		Set("last_error", nil).
		Set("published_at", now).
		Set("updated_at", now).
		Where(sq.Eq{"job_id": jobID, "status": string(LogPublishing)}))
	if errors.Is(err, ErrConflict) {
		return fmt.Errorf("log entry %s: %w", jobID, ErrConflict)
	}
	if err != nil {
		return fmt.Errorf("complete log entry: %w", err)
	}
	return nil
}

// ReleaseLogEntry performs publishing → pending after a failed append,
// recording the cause.
func (s *Store) ReleaseLogEntry(ctx context.Context, jobID, lastError string) error {
	err := s.cas(ctx, builder.Update("log_entries").
		Set("status", string(LogPending)).
		Set("last_error", nullableString(lastError)).
		Set("updated_at", nowString()).
		Where(sq.Eq{"job_id": jobID, "status": string(LogPublishing)}))
	if errors.Is(err, ErrConflict) {
		return fmt.Errorf("log entry %s: %w", jobID, ErrConflict)
	}
	if err != nil {
		return fmt.Errorf("release log entry: %w", err)
	}
	return nil
}

// SetLogEntryDetails stores the document link, classification and project
// tag resolved after the entry was created. Empty fields are left unchanged.
func (s *Store) SetLogEntryDetails(ctx context.Context, entry *LogEntry) error {
	stmt := builder.Update("log_entries").Set("updated_at", nowString()).Where(sq.Eq{"job_id": entry.JobID})
	for column, value := range map[string]string{
		"document_link": entry.DocumentLink,
		"meeting_type":  entry.MeetingType,
		"summary":       entry.Summary,
		"project_tag":   entry.ProjectTag,
	} {
		if value != "" {
			stmt = stmt.Set(column, value)
		}
	}
	if _, err := s.exec(ctx, stmt); err != nil {
		return fmt.Errorf("set log entry details: %w", err)
	}
	return nil
}

// ResetPublishing returns entries stuck in publishing to pending. Used at
// startup, when no publisher can still hold a claim.
func (s *Store) ResetPublishing(ctx context.Context) (int64, error) {
	res, err := s.exec(ctx, builder.Update("log_entries").
		Set("status", string(LogPending)).
		Set("updated_at", nowString()).
		Where(sq.Eq{"status": string(LogPublishing)}))
	if err != nil {
		return 0, fmt.Errorf("reset publishing: %w", err)
	}
	return res.RowsAffected()
}
