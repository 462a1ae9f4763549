package archive

import (
	"context"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"meetsync/internal/config"
	"meetsync/internal/logging"
	"meetsync/internal/queue"
	"meetsync/internal/services"
)

func TestUpsertStatement(t *testing.T) {
	published := time.Date(2026, 1, 22, 12, 0, 0, 0, time.UTC)
	entry := &queue.LogEntry{
		JobID:       "job-1",
		MeetingName: "Design Review",
		ProjectTag:  "Apollo",
		PublishedAt: &published,
	}
	query, args, err := upsertStatement("meeting_log", entry)
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(query, `INSERT INTO "meeting_log" (job_id,meeting_time,`), query)
	require.Contains(t, query, "$11")
	require.Contains(t, query, "ON CONFLICT (job_id) DO UPDATE SET meeting_time = EXCLUDED.meeting_time")
	require.NotContains(t, query, "job_id = EXCLUDED.job_id")
	require.Len(t, args, len(columns))
	require.Equal(t, "job-1", args[0])
	require.Equal(t, "Apollo", args[6])
	require.Equal(t, published, args[10])
}

func TestSchemaStatementQuotesTable(t *testing.T) {
	stmt := schemaStatement("Meeting_Log")
	require.Contains(t, stmt, `CREATE TABLE IF NOT EXISTS "Meeting_Log"`)
	require.Contains(t, stmt, "job_id TEXT PRIMARY KEY")
}

func TestOpenRequiresDSN(t *testing.T) {
	_, err := Open(context.Background(), config.Archive{Table: "meeting_log"}, logging.NewNop())
	require.ErrorIs(t, err, services.ErrConfiguration)
	require.False(t, Enabled(config.Archive{PostgresDSN: "  "}))
}

func TestUpsertAgainstPostgres(t *testing.T) {
	dsn := os.Getenv("MEETSYNC_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("MEETSYNC_TEST_POSTGRES_DSN not set")
	}
	ctx := context.Background()
	table := "meeting_log_test_" + strings.ReplaceAll(strings.ToLower(t.Name()), "/", "_")
	store, err := Open(ctx, config.Archive{PostgresDSN: dsn, Table: table}, logging.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() {
		_, _ = store.pool.Exec(context.Background(), "DROP TABLE IF EXISTS "+quote(table))
		store.Close()
	})

	entry := &queue.LogEntry{JobID: "job-1", MeetingName: "Standup"}
	require.NoError(t, store.Upsert(ctx, entry))
	entry.ProjectTag = "Apollo"
	require.NoError(t, store.Upsert(ctx, entry))

	n, err := store.Count(ctx)
	require.NoError(t, err)
	require.EqualValues(t, 1, n)

	var tag string
	require.NoError(t, store.pool.QueryRow(ctx, "SELECT project_tag FROM "+quote(table)+" WHERE job_id = $1", "job-1").Scan(&tag))
	require.Equal(t, "Apollo", tag)
}
