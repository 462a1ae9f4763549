package queue

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
)

// Enqueue appends an item to the kind's FIFO. Re-enqueueing a ref that is
// already waiting keeps its original position, parked or not.
func (s *Store) Enqueue(ctx context.Context, kind OfflineKind, ref string) error {
	if ref == "" {
		return errors.New("enqueue: ref is required")
	}
	if _, err := s.exec(ctx, builder.Insert("offline_queue").
		Options("OR IGNORE").
		Columns("kind", "ref", "enqueued_at").
		Values(string(kind), ref, nowString())); err != nil {
		return fmt.Errorf("enqueue %s: %w", kind, err)
	}
	return nil
}

const offlineColumns = "id, kind, ref, enqueued_at, attempts, last_error, parked_at"

// Peek returns the oldest unparked item of the kind without removing it.
func (s *Store) Peek(ctx context.Context, kind OfflineKind) (*OfflineItem, error) {
	row, err := s.queryRow(ctx, builder.Select(offlineColumns).
		From("offline_queue").
		Where(sq.Eq{"kind": string(kind), "parked_at": nil}).
		OrderBy("id ASC").
		Limit(1))
	if err != nil {
		return nil, err
	}
	item, err := scanOfflineItem(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%s queue empty: %w", kind, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("peek %s: %w", kind, err)
	}
	return item, nil
}

// Ack removes a drained item.
func (s *Store) Ack(ctx context.Context, id int64) error {
	if _, err := s.exec(ctx, builder.Delete("offline_queue").Where(sq.Eq{"id": id})); err != nil {
		return fmt.Errorf("ack offline item: %w", err)
	}
	return nil
}

// Remove drops a ref from the kind's queue regardless of position.
func (s *Store) Remove(ctx context.Context, kind OfflineKind, ref string) error {
	if _, err := s.exec(ctx, builder.Delete("offline_queue").
		Where(sq.Eq{"kind": string(kind), "ref": ref})); err != nil {
		return fmt.Errorf("remove offline item: %w", err)
	}
	return nil
}

// Len returns the number of unparked items waiting in the kind's queue.
func (s *Store) Len(ctx context.Context, kind OfflineKind) (int, error) {
	row, err := s.queryRow(ctx, builder.Select("COUNT(*)").
		From("offline_queue").
		Where(sq.Eq{"kind": string(kind), "parked_at": nil}))
	if err != nil {
		return 0, err
	}
	var n int
	if err := row.Scan(&n); err != nil {
		return 0, fmt.Errorf("count %s: %w", kind, err)
	}
	return n, nil
}

// ListOffline returns the kind's queue in FIFO order, parked items included.
func (s *Store) ListOffline(ctx context.Context, kind OfflineKind) ([]*OfflineItem, error) {
	rows, err := s.query(ctx, builder.Select(offlineColumns).
		From("offline_queue").
		Where(sq.Eq{"kind": string(kind)}).
		OrderBy("id ASC"))
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", kind, err)
	}
	defer rows.Close()
	var items []*OfflineItem
	for rows.Next() {
		item, err := scanOfflineItem(rows)
		if err != nil {
			return nil, fmt.Errorf("scan offline item: %w", err)
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

// Unpark returns the kind's parked items to the queue with a fresh attempt
// count. They keep their original position.
func (s *Store) Unpark(ctx context.Context, kind OfflineKind) (int64, error) {
	res, err := s.exec(ctx, builder.Update("offline_queue").
		Set("parked_at", nil).
		Set("attempts", 0).
		Where(sq.And{sq.Eq{"kind": string(kind)}, sq.NotEq{"parked_at": nil}}))
	if err != nil {
		return 0, fmt.Errorf("unpark %s: %w", kind, err)
	}
	return res.RowsAffected()
}

// recordFailure counts a permanent failure against the item and parks it
// once MaxOfflineAttempts is reached.
func (s *Store) recordFailure(ctx context.Context, item *OfflineItem, cause error) (bool, error) {
	attempts := item.Attempts + 1
	stmt := builder.Update("offline_queue").
		Set("attempts", attempts).
		Set("last_error", nullableString(cause.Error())).
		Where(sq.Eq{"id": item.ID})
	parked := attempts >= MaxOfflineAttempts
	if parked {
		stmt = stmt.Set("parked_at", nowString())
	}
	if _, err := s.exec(ctx, stmt); err != nil {
		return false, fmt.Errorf("record offline failure: %w", err)
	}
	return parked, nil
}

// Drain processes the kind's queue head first. Each item is acknowledged
// only after op succeeds; the first failure stops the drain and leaves that
// item at the head. Failures wrapping ErrPermanent are counted, and an item
// that reaches MaxOfflineAttempts is parked so the items behind it can
// proceed. delay is waited between items.
func (s *Store) Drain(ctx context.Context, kind OfflineKind, delay time.Duration, op func(context.Context, *OfflineItem) error) (int, error) {
	drained := 0
	for {
		if err := ctx.Err(); err != nil {
			return drained, err
		}
		item, err := s.Peek(ctx, kind)
		if errors.Is(err, ErrNotFound) {
			return drained, nil
		}
		if err != nil {
			return drained, err
		}
		if err := op(ctx, item); err != nil {
			if !errors.Is(err, ErrPermanent) {
				return drained, fmt.Errorf("drain %s item %s: %w", kind, item.Ref, err)
			}
			parked, rerr := s.recordFailure(ctx, item, err)
			if rerr != nil {
				return drained, errors.Join(err, rerr)
			}
			if !parked {
				return drained, fmt.Errorf("drain %s item %s: %w", kind, item.Ref, err)
			}
			continue
		}
		if err := s.Ack(ctx, item.ID); err != nil {
			return drained, err
		}
		drained++
		if delay > 0 {
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return drained, ctx.Err()
			}
		}
	}
}

func scanOfflineItem(scanner rowScanner) (*OfflineItem, error) {
	var (
		item      OfflineItem
		kind      string
		enqueued  sql.NullString
		lastError sql.NullString
		parked    sql.NullString
	)
	if err := scanner.Scan(&item.ID, &kind, &item.Ref, &enqueued, &item.Attempts, &lastError, &parked); err != nil {
		return nil, err
	}
	item.Kind = OfflineKind(kind)
	item.EnqueuedAt = parseTimeOrZero(enqueued)
	item.LastError = lastError.String
	item.ParkedAt = parseNullTime(parked)
	return &item, nil
}
