package queue

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	sq "github.com/Masterminds/squirrel"
)

const promptColumns = "token, action, session_id, job_id, option_index, speaker_slot, created_at, used_at"

// SavePrompt stores a callback token.
func (s *Store) SavePrompt(ctx context.Context, prompt *Prompt) error {
	if prompt == nil || prompt.Token == "" {
		return errors.New("save prompt: token is required")
	}
	if _, err := s.exec(ctx, builder.Insert("prompts").
		Columns("token", "action", "session_id", "job_id", "option_index", "speaker_slot", "created_at").
		Values(prompt.Token, string(prompt.Action), nullableString(prompt.SessionID), nullableString(prompt.JobID),
			prompt.OptionIndex, nullableString(prompt.SpeakerSlot), nowString())); err != nil {
		return fmt.Errorf("insert prompt: %w", err)
	}
	return nil
}

// GetPrompt resolves a callback token.
func (s *Store) GetPrompt(ctx context.Context, token string) (*Prompt, error) {
	row, err := s.queryRow(ctx, builder.Select(promptColumns).From("prompts").Where(sq.Eq{"token": token}))
	if err != nil {
		return nil, err
	}
	var (
		prompt    Prompt
		action    string
		sessionID sql.NullString
		jobID     sql.NullString
		slot      sql.NullString
		created   sql.NullString
		used      sql.NullString
	)
	err = row.Scan(&prompt.Token, &action, &sessionID, &jobID, &prompt.OptionIndex, &slot, &created, &used)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("prompt %s: %w", token, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get prompt: %w", err)
	}
	prompt.Action = PromptAction(action)
	prompt.SessionID = sessionID.String
	prompt.JobID = jobID.String
	prompt.SpeakerSlot = slot.String
	prompt.CreatedAt = parseTimeOrZero(created)
	prompt.UsedAt = parseNullTime(used)
	return &prompt, nil
}

// MarkPromptUsed flags a token as consumed. A token can be consumed once;
// repeats get ErrConflict.
func (s *Store) MarkPromptUsed(ctx context.Context, token string) error {
	err := s.cas(ctx, builder.Update("prompts").
		Set("used_at", nowString()).
		Where(sq.Eq{"token": token, "used_at": nil}))
	if errors.Is(err, ErrConflict) {
		return fmt.Errorf("prompt %s: %w", token, ErrConflict)
	}
	if err != nil {
		return fmt.Errorf("mark prompt used: %w", err)
	}
	return nil
}

// SavePendingReply records that a reply to messageID names a speaker slot.
func (s *Store) SavePendingReply(ctx context.Context, reply PendingReply) error {
	if _, err := s.exec(ctx, builder.Insert("pending_replies").
		Options("OR REPLACE").
		Columns("chat_id", "message_id", "job_id", "speaker_slot", "created_at").
		Values(reply.ChatID, reply.MessageID, reply.JobID, reply.SpeakerSlot, nowString())); err != nil {
		return fmt.Errorf("save pending reply: %w", err)
	}
	return nil
}

// GetPendingReply looks up the speaker slot a reply should rename.
func (s *Store) GetPendingReply(ctx context.Context, chatID, messageID int64) (*PendingReply, error) {
	row, err := s.queryRow(ctx, builder.Select("chat_id", "message_id", "job_id", "speaker_slot", "created_at").
		From("pending_replies").
		Where(sq.Eq{"chat_id": chatID, "message_id": messageID}))
	if err != nil {
		return nil, err
	}
	var (
		reply   PendingReply
		created sql.NullString
	)
	err = row.Scan(&reply.ChatID, &reply.MessageID, &reply.JobID, &reply.SpeakerSlot, &created)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("pending reply %d/%d: %w", chatID, messageID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get pending reply: %w", err)
	}
	reply.CreatedAt = parseTimeOrZero(created)
	return &reply, nil
}

// DeletePendingReply removes a consumed reply route.
func (s *Store) DeletePendingReply(ctx context.Context, chatID, messageID int64) error {
	if _, err := s.exec(ctx, builder.Delete("pending_replies").
		Where(sq.Eq{"chat_id": chatID, "message_id": messageID})); err != nil {
		return fmt.Errorf("delete pending reply: %w", err)
	}
	return nil
}

// DeletePendingRepliesForJob clears reply routes once a job leaves review.
func (s *Store) DeletePendingRepliesForJob(ctx context.Context, jobID string) error {
	if _, err := s.exec(ctx, builder.Delete("pending_replies").Where(sq.Eq{"job_id": jobID})); err != nil {
		return fmt.Errorf("delete pending replies: %w", err)
	}
	return nil
}
