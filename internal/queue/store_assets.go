package queue

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	sq "github.com/Masterminds/squirrel"
)

// AddAsset registers a detected file. A path that is already known returns
// the existing record with created=false; callers decide whether to replay it.
func (s *Store) AddAsset(ctx context.Context, sourcePath string) (*Asset, bool, error) {
	sourcePath = filepath.Clean(sourcePath)
	now := nowString()
	res, err := s.exec(ctx, builder.Insert("assets").
		Options("OR IGNORE").
		Columns("source_path", "file_name", "status", "created_at", "updated_at").
		Values(sourcePath, filepath.Base(sourcePath), string(AssetDetected), now, now))
	if err != nil {
		return nil, false, fmt.Errorf("insert asset: %w", err)
	}
	affected, _ := res.RowsAffected()
	asset, err := s.FindAssetByPath(ctx, sourcePath)
	if err != nil {
		return nil, false, err
	}
	return asset, affected == 1, nil
}

// GetAsset fetches an asset by id.
func (s *Store) GetAsset(ctx context.Context, id int64) (*Asset, error) {
	row, err := s.queryRow(ctx, builder.Select(assetColumns).From("assets").Where(sq.Eq{"id": id}))
	if err != nil {
		return nil, err
	}
	asset, err := scanAsset(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("asset %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get asset: %w", err)
	}
	return asset, nil
}

// FindAssetByPath fetches an asset by its source path.
func (s *Store) FindAssetByPath(ctx context.Context, sourcePath string) (*Asset, error) {
	row, err := s.queryRow(ctx, builder.Select(assetColumns).From("assets").
		Where(sq.Eq{"source_path": filepath.Clean(sourcePath)}))
	if err != nil {
		return nil, err
	}
	asset, err := scanAsset(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("asset %q: %w", sourcePath, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("find asset: %w", err)
	}
	return asset, nil
}

// ListAssets returns assets filtered by status (all when none given), oldest first.
func (s *Store) ListAssets(ctx context.Context, statuses ...AssetStatus) ([]*Asset, error) {
	stmt := builder.Select(assetColumns).From("assets").OrderBy("id ASC")
	if len(statuses) > 0 {
		stmt = stmt.Where(sq.Eq{"status": statusStrings(statuses)})
	}
	rows, err := s.query(ctx, stmt)
	if err != nil {
		return nil, fmt.Errorf("list assets: %w", err)
	}
	defer rows.Close()

	var assets []*Asset
	for rows.Next() {
		asset, err := scanAsset(rows)
		if err != nil {
			return nil, fmt.Errorf("scan asset: %w", err)
		}
		assets = append(assets, asset)
	}
	return assets, rows.Err()
}

// AssetUpdate carries optional field changes applied together with a status
// transition. Nil fields are left untouched.
type AssetUpdate struct {
	RecordedAt      *time.Time
	TimestampToken  *string
	TimestampFormat *string
	MeetingTitle    *string
	MeetingStart    *time.Time
	RenamedPath     *string
	OutputPath      *string
	Fallback        *bool
	JobID           *string
	ErrorMessage    *string
}

func (u AssetUpdate) apply(stmt sq.UpdateBuilder) sq.UpdateBuilder {
	if u.RecordedAt != nil {
		stmt = stmt.Set("recorded_at", nullableTime(u.RecordedAt))
	}
	if u.TimestampToken != nil {
		stmt = stmt.Set("timestamp_token", nullableString(*u.TimestampToken))
	}
	if u.TimestampFormat != nil {
		stmt = stmt.Set("timestamp_format", nullableString(*u.TimestampFormat))
	}
	if u.MeetingTitle != nil {
		stmt = stmt.Set("meeting_title", nullableString(*u.MeetingTitle))
	}
	if u.MeetingStart != nil {
		stmt = stmt.Set("meeting_start", nullableTime(u.MeetingStart))
	}
	if u.RenamedPath != nil {
		stmt = stmt.Set("renamed_path", nullableString(*u.RenamedPath))
	}
	if u.OutputPath != nil {
		stmt = stmt.Set("output_path", nullableString(*u.OutputPath))
	}
	if u.Fallback != nil {
		stmt = stmt.Set("fallback", boolToInt(*u.Fallback))
	}
	if u.JobID != nil {
		stmt = stmt.Set("job_id", nullableString(*u.JobID))
	}
	if u.ErrorMessage != nil {
		stmt = stmt.Set("error_message", nullableString(*u.ErrorMessage))
	}
	return stmt
}

// TransitionAsset moves an asset from one status to another if and only if
// it is currently in the expected status. Losing racers get ErrConflict.
func (s *Store) TransitionAsset(ctx context.Context, id int64, from, to AssetStatus, update AssetUpdate) error {
	if !from.CanTransition(to) {
		return fmt.Errorf("asset %d %s -> %s: %w", id, from, to, ErrInvalidTransition)
	}
	stmt := builder.Update("assets").
		Set("status", string(to)).
		Set("updated_at", nowString()).
		Where(sq.Eq{"id": id, "status": string(from)})
	if err := s.cas(ctx, update.apply(stmt)); err != nil {
		if errors.Is(err, ErrConflict) {
			return fmt.Errorf("asset %d %s -> %s: %w", id, from, to, ErrConflict)
		}
		return fmt.Errorf("transition asset: %w", err)
	}
	return nil
}

// UpdateAsset applies field changes without touching the status.
func (s *Store) UpdateAsset(ctx context.Context, id int64, update AssetUpdate) error {
	stmt := builder.Update("assets").Set("updated_at", nowString()).Where(sq.Eq{"id": id})
	if err := s.cas(ctx, update.apply(stmt)); err != nil {
		if errors.Is(err, ErrConflict) {
			return fmt.Errorf("asset %d: %w", id, ErrNotFound)
		}
		return fmt.Errorf("update asset: %w", err)
	}
	return nil
}

// FailAsset marks a non-terminal asset failed with the given message.
func (s *Store) FailAsset(ctx context.Context, id int64, message string) error {
	nonTerminal := make([]string, 0, len(assetTransitions))
	for status := range assetTransitions {
		if status.CanTransition(AssetFailed) {
			nonTerminal = append(nonTerminal, string(status))
		}
	}
	_, err := s.exec(ctx, builder.Update("assets").
		Set("status", string(AssetFailed)).
		Set("error_message", nullableString(message)).
		Set("updated_at", nowString()).
		Where(sq.Eq{"id": id, "status": nonTerminal}))
	if err != nil {
		return fmt.Errorf("fail asset: %w", err)
	}
	return nil
}

// ResetInterrupted moves assets caught mid-resolution by a shutdown back to
// detected so the startup replay picks them up again.
func (s *Store) ResetInterrupted(ctx context.Context) (int64, error) {
	res, err := s.exec(ctx, builder.Update("assets").
		Set("status", string(AssetDetected)).
		Set("updated_at", nowString()).
		Where(sq.Eq{"status": string(AssetResolving)}))
	if err != nil {
		return 0, fmt.Errorf("reset interrupted assets: %w", err)
	}
	return res.RowsAffected()
}

func statusStrings[T ~string](values []T) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		out = append(out, string(v))
	}
	return out
}
