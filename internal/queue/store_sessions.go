package queue

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	sq "github.com/Masterminds/squirrel"
)

// OpenSession inserts a session directly in awaiting_choice. The partial
// unique index on open sessions makes this the idle → awaiting_choice CAS:
// a second open session for the same asset fails with ErrOpenSession.
func (s *Store) OpenSession(ctx context.Context, session *Session) error {
	if session == nil || session.ID == "" {
		return errors.New("open session: id is required")
	}
	candidates, err := json.Marshal(session.Candidates)
	if err != nil {
		return fmt.Errorf("encode candidates: %w", err)
	}
	now := nowString()
	_, err = s.exec(ctx, builder.Insert("sessions").
		Columns("id", "asset_id", "kind", "state", "candidates_json", "created_at", "updated_at").
		Values(session.ID, session.AssetID, string(session.Kind), string(SessionAwaitingChoice), string(candidates), now, now))
	if err != nil {
		if isConstraintViolation(err) {
			return fmt.Errorf("asset %d: %w", session.AssetID, ErrOpenSession)
		}
		return fmt.Errorf("insert session: %w", err)
	}
	session.State = SessionAwaitingChoice
	return nil
}

// GetSession fetches a session by correlation id.
func (s *Store) GetSession(ctx context.Context, id string) (*Session, error) {
	row, err := s.queryRow(ctx, builder.Select(sessionColumns).From("sessions").Where(sq.Eq{"id": id}))
	if err != nil {
		return nil, err
	}
	session, err := scanSession(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("session %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get session: %w", err)
	}
	return session, nil
}

// OpenSessionForAsset returns the asset's awaiting_choice session, if any.
func (s *Store) OpenSessionForAsset(ctx context.Context, assetID int64) (*Session, error) {
	row, err := s.queryRow(ctx, builder.Select(sessionColumns).From("sessions").
		Where(sq.Eq{"asset_id": assetID, "state": string(SessionAwaitingChoice)}))
	if err != nil {
		return nil, err
	}
	session, err := scanSession(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("open session for asset %d: %w", assetID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get open session: %w", err)
	}
	return session, nil
}

// ListOpenSessions returns every session awaiting a human answer.
func (s *Store) ListOpenSessions(ctx context.Context) ([]*Session, error) {
	rows, err := s.query(ctx, builder.Select(sessionColumns).From("sessions").
		Where(sq.Eq{"state": string(SessionAwaitingChoice)}).OrderBy("created_at ASC"))
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer rows.Close()
	var sessions []*Session
	for rows.Next() {
		session, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		sessions = append(sessions, session)
	}
	return sessions, rows.Err()
}

// SetSessionPrompt records the message id of the prompt that carries the
// session's buttons.
func (s *Store) SetSessionPrompt(ctx context.Context, id string, messageID int64) error {
	if _, err := s.exec(ctx, builder.Update("sessions").
		Set("prompt_message_id", nullableInt64(messageID)).
		Set("updated_at", nowString()).
		Where(sq.Eq{"id": id})); err != nil {
		return fmt.Errorf("set session prompt: %w", err)
	}
	return nil
}

// TransitionSession performs the awaiting_choice → {resolved, cancelled,
// expired} CAS. chosen is stored only for resolved sessions.
func (s *Store) TransitionSession(ctx context.Context, id string, from, to SessionState, chosen *int) error {
	if !from.CanTransition(to) {
		return fmt.Errorf("session %s %s -> %s: %w", id, from, to, ErrInvalidTransition)
	}
	stmt := builder.Update("sessions").
		Set("state", string(to)).
		Set("updated_at", nowString()).
		Where(sq.Eq{"id": id, "state": string(from)})
	if chosen != nil {
		stmt = stmt.Set("chosen_index", *chosen)
	}
	if err := s.cas(ctx, stmt); err != nil {
		if errors.Is(err, ErrConflict) {
			return fmt.Errorf("session %s %s -> %s: %w", id, from, to, ErrConflict)
		}
		return fmt.Errorf("transition session: %w", err)
	}
	return nil
}

// ExpireSessionsForAsset closes any open session for the asset.
func (s *Store) ExpireSessionsForAsset(ctx context.Context, assetID int64) (int64, error) {
	res, err := s.exec(ctx, builder.Update("sessions").
		Set("state", string(SessionExpired)).
		Set("updated_at", nowString()).
		Where(sq.Eq{"asset_id": assetID, "state": string(SessionAwaitingChoice)}))
	if err != nil {
		return 0, fmt.Errorf("expire sessions: %w", err)
	}
	return res.RowsAffected()
}
