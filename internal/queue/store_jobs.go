package queue

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
)

// CreateJob inserts a new draft job.
func (s *Store) CreateJob(ctx context.Context, job *Job) error {
	if job == nil || job.ID == "" {
		return errors.New("create job: id is required")
	}
	now := nowString()
	_, err := s.exec(ctx, builder.Insert("jobs").
		Columns("id", "asset_id", "phase", "meeting_title", "meeting_start", "video_path", "created_at", "updated_at").
		Values(job.ID, nullableInt64(job.AssetID), string(JobDraft), job.MeetingTitle, nullableTime(job.MeetingStart), job.VideoPath, now, now))
	if err != nil {
		return fmt.Errorf("insert job: %w", err)
	}
	job.Phase = JobDraft
	return nil
}

// GetJob fetches a job by id.
func (s *Store) GetJob(ctx context.Context, id string) (*Job, error) {
	row, err := s.queryRow(ctx, builder.Select(jobColumns).From("jobs").Where(sq.Eq{"id": id}))
	if err != nil {
		return nil, err
	}
	job, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("job %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get job: %w", err)
	}
	return job, nil
}

// ListJobs returns jobs filtered by phase (all when none given), oldest first.
func (s *Store) ListJobs(ctx context.Context, phases ...JobPhase) ([]*Job, error) {
	stmt := builder.Select(jobColumns).From("jobs").OrderBy("created_at ASC")
	if len(phases) > 0 {
		stmt = stmt.Where(sq.Eq{"phase": statusStrings(phases)})
	}
	rows, err := s.query(ctx, stmt)
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	defer rows.Close()
	var jobs []*Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("scan job: %w", err)
		}
		jobs = append(jobs, job)
	}
	return jobs, rows.Err()
}

// TransitionJob moves a job between phases with compare-and-set semantics.
// errMessage is recorded when moving to failed.
func (s *Store) TransitionJob(ctx context.Context, id string, from, to JobPhase, errMessage string) error {
	if !from.CanTransition(to) {
		return fmt.Errorf("job %s %s -> %s: %w", id, from, to, ErrInvalidTransition)
	}
	now := nowString()
	stmt := builder.Update("jobs").
		Set("phase", string(to)).
		Set("updated_at", now).
		Where(sq.Eq{"id": id, "phase": string(from)})
	switch to {
	case JobFinalized:
		stmt = stmt.Set("finalized_at", now)
	case JobFailed:
		stmt = stmt.Set("error_message", nullableString(errMessage))
	}
	if err := s.cas(ctx, stmt); err != nil {
		if errors.Is(err, ErrConflict) {
			return fmt.Errorf("job %s %s -> %s: %w", id, from, to, ErrConflict)
		}
		return fmt.Errorf("transition job: %w", err)
	}
	return nil
}

// SetTranscript stores the cleaned transcript blocks and the AI speaker
// proposal. Only draft jobs accept a transcript.
func (s *Store) SetTranscript(ctx context.Context, id string, blocks []Block, aiMapping map[string]string) error {
	encoded, err := json.Marshal(blocks)
	if err != nil {
		return fmt.Errorf("encode transcript: %w", err)
	}
	mapping, err := encodeMapping(aiMapping)
	if err != nil {
		return fmt.Errorf("encode mapping: %w", err)
	}
	err = s.cas(ctx, builder.Update("jobs").
		Set("transcript_json", string(encoded)).
		Set("ai_mapping_json", mapping).
		Set("updated_at", nowString()).
		Where(sq.Eq{"id": id, "phase": string(JobDraft)}))
	if errors.Is(err, ErrConflict) {
		return fmt.Errorf("job %s is not a draft: %w", id, ErrConflict)
	}
	if err != nil {
		return fmt.Errorf("set transcript: %w", err)
	}
	return nil
}

// SetAIMapping replaces the AI speaker proposal.
func (s *Store) SetAIMapping(ctx context.Context, id string, mapping map[string]string) error {
	encoded, err := encodeMapping(mapping)
	if err != nil {
		return fmt.Errorf("encode mapping: %w", err)
	}
	if _, err := s.exec(ctx, builder.Update("jobs").
		Set("ai_mapping_json", encoded).
		Set("updated_at", nowString()).
		Where(sq.Eq{"id": id})); err != nil {
		return fmt.Errorf("set ai mapping: %w", err)
	}
	return nil
}

// SetOverrides replaces the human speaker overrides. Overrides are only
// editable while the job awaits speaker review.
func (s *Store) SetOverrides(ctx context.Context, id string, overrides map[string]string) error {
	encoded, err := encodeMapping(overrides)
	if err != nil {
		return fmt.Errorf("encode overrides: %w", err)
	}
	err = s.cas(ctx, builder.Update("jobs").
		Set("overrides_json", encoded).
		Set("updated_at", nowString()).
		Where(sq.Eq{"id": id, "phase": string(JobAwaitingSpeakerReview)}))
	if errors.Is(err, ErrConflict) {
		return fmt.Errorf("job %s is not awaiting review: %w", id, ErrConflict)
	}
	if err != nil {
		return fmt.Errorf("set overrides: %w", err)
	}
	return nil
}

// SetOverride records a single slot rename.
func (s *Store) SetOverride(ctx context.Context, id, slot, name string) error {
	job, err := s.GetJob(ctx, id)
	if err != nil {
		return err
	}
	overrides := make(map[string]string, len(job.Overrides)+1)
	for k, v := range job.Overrides {
		overrides[k] = v
	}
	overrides[slot] = name
	return s.SetOverrides(ctx, id, overrides)
}

// SetReviewMessage records the id of the message holding the review card.
func (s *Store) SetReviewMessage(ctx context.Context, id string, messageID int64) error {
	if _, err := s.exec(ctx, builder.Update("jobs").
		Set("review_message_id", nullableInt64(messageID)).
		Set("updated_at", nowString()).
		Where(sq.Eq{"id": id})); err != nil {
		return fmt.Errorf("set review message: %w", err)
	}
	return nil
}

// SetTranscriptPath records where the finalized transcript document lives.
func (s *Store) SetTranscriptPath(ctx context.Context, id, path string) error {
	if _, err := s.exec(ctx, builder.Update("jobs").
		Set("transcript_path", nullableString(path)).
		Set("updated_at", nowString()).
		Where(sq.Eq{"id": id})); err != nil {
		return fmt.Errorf("set transcript path: %w", err)
	}
	return nil
}

// JobForAsset returns the most recent job created for the asset.
func (s *Store) JobForAsset(ctx context.Context, assetID int64) (*Job, error) {
	row, err := s.queryRow(ctx, builder.Select(jobColumns).From("jobs").
		Where(sq.Eq{"asset_id": assetID}).OrderBy("created_at DESC").Limit(1))
	if err != nil {
		return nil, err
	}
	job, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("job for asset %d: %w", assetID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("job for asset: %w", err)
	}
	return job, nil
}

// StaleJobs lists jobs left in a phase longer than maxAge.
func (s *Store) StaleJobs(ctx context.Context, phase JobPhase, maxAge time.Duration) ([]*Job, error) {
	cutoff := time.Now().UTC().Add(-maxAge).Format(time.RFC3339Nano)
	rows, err := s.query(ctx, builder.Select(jobColumns).From("jobs").
		Where(sq.Eq{"phase": string(phase)}).
		Where(sq.Lt{"updated_at": cutoff}).
		OrderBy("updated_at ASC"))
	if err != nil {
		return nil, fmt.Errorf("stale jobs: %w", err)
	}
	defer rows.Close()
	var jobs []*Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("scan job: %w", err)
		}
		jobs = append(jobs, job)
	}
	return jobs, rows.Err()
}
