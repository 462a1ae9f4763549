// Package archive mirrors published meeting log entries into Postgres.
package archive

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"meetsync/internal/config"
	"meetsync/internal/logging"
	"meetsync/internal/queue"
	"meetsync/internal/services"
)

var builder = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

var columns = []string{
	"job_id",
	"meeting_time",
	"meeting_name",
	"meeting_type",
	"speakers",
	"summary",
	"project_tag",
	"video_link",
	"job_link",
	"document_link",
	"published_at",
}

// Store writes log entries to a Postgres table keyed by job id.
type Store struct {
	pool   *pgxpool.Pool
	table  string
	logger *slog.Logger
}

// Enabled reports whether an archive DSN is configured.
func Enabled(cfg config.Archive) bool {
	return strings.TrimSpace(cfg.PostgresDSN) != ""
}

// Open connects to the archive database and creates the table when missing.
func Open(ctx context.Context, cfg config.Archive, logger *slog.Logger) (*Store, error) {
	if !Enabled(cfg) {
		return nil, services.Wrap(services.ErrConfiguration, "archive", "open", "archive.postgres_dsn is empty", nil)
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.PostgresDSN)
	if err != nil {
		return nil, services.Wrap(services.ErrConfiguration, "archive", "parse dsn", "invalid archive.postgres_dsn", err)
	}
	poolCfg.MaxConns = 2
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, services.Wrap(services.ErrTransient, "archive", "connect", "create pool", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, services.Wrap(services.ErrTransient, "archive", "connect", "ping", err)
	}
	store := &Store{
		pool:   pool,
		table:  cfg.Table,
		logger: logging.NewComponentLogger(logger, "archive"),
	}
	if err := store.EnsureSchema(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	store.logger.Info("archive connected", logging.String("table", store.table))
	return store, nil
}

// EnsureSchema creates the archive table.
func (s *Store) EnsureSchema(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schemaStatement(s.table)); err != nil {
		return services.Wrap(services.ErrExternalTool, "archive", "ensure schema", s.table, err)
	}
	return nil
}

// Upsert inserts the entry or refreshes the row already stored for its job.
func (s *Store) Upsert(ctx context.Context, entry *queue.LogEntry) error {
	if entry == nil {
		return errors.New("archive upsert: nil entry")
	}
	query, args, err := upsertStatement(s.table, entry)
	if err != nil {
		return fmt.Errorf("build archive upsert: %w", err)
	}
	if _, err := s.pool.Exec(ctx, query, args...); err != nil {
		return services.Wrap(services.ErrTransient, "archive", "upsert", entry.JobID, err)
	}
	return nil
}

// Count returns the number of archived rows.
func (s *Store) Count(ctx context.Context) (int64, error) {
	query, args, err := builder.Select("count(*)").From(quote(s.table)).ToSql()
	if err != nil {
		return 0, err
	}
	var n int64
	if err := s.pool.QueryRow(ctx, query, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("count archive rows: %w", err)
	}
	return n, nil
}

// Close releases the connection pool.
func (s *Store) Close() {
	if s != nil && s.pool != nil {
		s.pool.Close()
	}
}

func schemaStatement(table string) string {
	return fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
	job_id TEXT PRIMARY KEY,
	meeting_time TEXT NOT NULL DEFAULT '',
	meeting_name TEXT NOT NULL DEFAULT '',
	meeting_type TEXT NOT NULL DEFAULT '',
	speakers TEXT NOT NULL DEFAULT '',
	summary TEXT NOT NULL DEFAULT '',
	project_tag TEXT NOT NULL DEFAULT '',
	video_link TEXT NOT NULL DEFAULT '',
	job_link TEXT NOT NULL DEFAULT '',
	document_link TEXT NOT NULL DEFAULT '',
	published_at TIMESTAMPTZ NOT NULL
)`, quote(table))
}

func upsertStatement(table string, entry *queue.LogEntry) (string, []any, error) {
	published := time.Now().UTC()
	if entry.PublishedAt != nil {
		published = entry.PublishedAt.UTC()
	}
	updates := make([]string, 0, len(columns)-1)
	for _, column := range columns[1:] {
		updates = append(updates, column+" = EXCLUDED."+column)
	}
	return builder.Insert(quote(table)).
		Columns(columns...).
		Values(
			entry.JobID,
			entry.MeetingTime,
			entry.MeetingName,
			entry.MeetingType,
			entry.Speakers,
			entry.Summary,
			entry.ProjectTag,
			entry.VideoLink,
			entry.JobLink,
			entry.DocumentLink,
			published,
		).
		Suffix("ON CONFLICT (job_id) DO UPDATE SET " + strings.Join(updates, ", ")).
		ToSql()
}

func quote(table string) string {
	return pgx.Identifier{table}.Sanitize()
}
