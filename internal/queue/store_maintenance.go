package queue

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"
)

// HealthSummary is a compact count of pipeline work for status output.
type HealthSummary struct {
	Total        int
	InFlight     int
	Waiting      int
	Offline      int
	Published    int
	Failed       int
	OpenSessions int
}

// DatabaseHealth describes the state database for diagnostics.
type DatabaseHealth struct {
	DBPath           string
	DatabaseExists   bool
	DatabaseReadable bool
	SchemaVersion    int
	TablesPresent    []string
	MissingTables    []string
	IntegrityCheck   bool
	Error            string
}

var expectedTables = []string{
	"schema_version",
	"assets",
	"sessions",
	"jobs",
	"log_entries",
	"offline_queue",
	"prompts",
	"pending_replies",
}

// Summarize counts records grouped by lifecycle state.
func (s *Store) Summarize(ctx context.Context) (Summary, error) {
	summary := Summary{
		Assets:     map[AssetStatus]int{},
		Jobs:       map[JobPhase]int{},
		LogEntries: map[LogStatus]int{},
		OfflineLen: map[OfflineKind]int{},
	}
	if err := s.countGrouped(ctx, "assets", "status", func(key string, n int) {
		summary.Assets[AssetStatus(key)] = n
	}); err != nil {
		return summary, err
	}
	if err := s.countGrouped(ctx, "jobs", "phase", func(key string, n int) {
		summary.Jobs[JobPhase(key)] = n
	}); err != nil {
		return summary, err
	}
	if err := s.countGrouped(ctx, "log_entries", "status", func(key string, n int) {
		summary.LogEntries[LogStatus(key)] = n
	}); err != nil {
		return summary, err
	}
	if err := s.countGrouped(ctx, "offline_queue", "kind", func(key string, n int) {
		summary.OfflineLen[OfflineKind(key)] = n
	}); err != nil {
		return summary, err
	}
	open, err := s.ListOpenSessions(ctx)
	if err != nil {
		return summary, err
	}
	summary.OpenSession = len(open)
	return summary, nil
}

func (s *Store) countGrouped(ctx context.Context, table, column string, add func(string, int)) error {
	rows, err := s.query(ctx, builder.Select(column, "COUNT(1)").From(table).GroupBy(column))
	if err != nil {
		return fmt.Errorf("count %s: %w", table, err)
	}
	defer rows.Close()
	for rows.Next() {
		var (
			key   string
			count int
		)
		if err := rows.Scan(&key, &count); err != nil {
			return err
		}
		add(key, count)
	}
	return rows.Err()
}

// Health aggregates asset state for status output.
func (s *Store) Health(ctx context.Context) (HealthSummary, error) {
	summary, err := s.Summarize(ctx)
	if err != nil {
		return HealthSummary{}, err
	}
	health := HealthSummary{OpenSessions: summary.OpenSession}
	for status, count := range summary.Assets {
		health.Total += count
		switch status {
		case AssetAwaitingChoice:
			health.Waiting += count
		case AssetQueuedOffline:
			health.Offline += count
		case AssetPublished:
			health.Published += count
		case AssetFailed:
			health.Failed += count
		case AssetResolving, AssetRelocating, AssetRelocated, AssetTranscribing, AssetDetected:
			health.InFlight += count
		}
	}
	return health, nil
}

// CheckHealth returns diagnostic information about the state database.
func (s *Store) CheckHealth(ctx context.Context) (DatabaseHealth, error) {
	health := DatabaseHealth{DBPath: s.path}

	if s.path == "" {
		return health, errors.New("state database path is unknown")
	}

	info, err := os.Stat(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return health, nil
		}
		return health, fmt.Errorf("stat state database: %w", err)
	}
	if info.IsDir() {
		return health, fmt.Errorf("state database path %q is a directory", s.path)
	}
	health.DatabaseExists = true

	if s.db == nil {
		return health, errors.New("state database connection unavailable")
	}

	connCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	if err := s.db.PingContext(connCtx); err != nil {
		health.Error = err.Error()
		return health, fmt.Errorf("ping state database: %w", err)
	}
	health.DatabaseReadable = true

	rows, err := s.db.QueryContext(connCtx, "SELECT name FROM sqlite_master WHERE type = 'table'")
	if err != nil {
		health.Error = err.Error()
		return health, fmt.Errorf("list tables: %w", err)
	}
	present := map[string]struct{}{}
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			rows.Close()
			health.Error = err.Error()
			return health, fmt.Errorf("scan table name: %w", err)
		}
		present[name] = struct{}{}
	}
	rows.Close()
	for _, table := range expectedTables {
		if _, ok := present[table]; ok {
			health.TablesPresent = append(health.TablesPresent, table)
		} else {
			health.MissingTables = append(health.MissingTables, table)
		}
	}

	if _, ok := present["schema_version"]; ok {
		if err := s.db.QueryRowContext(connCtx, "SELECT version FROM schema_version LIMIT 1").Scan(&health.SchemaVersion); err != nil {
			health.Error = err.Error()
			return health, fmt.Errorf("read schema version: %w", err)
		}
	}

	var integrity string
	if err := s.db.QueryRowContext(connCtx, "PRAGMA integrity_check").Scan(&integrity); err != nil {
		health.Error = err.Error()
		return health, fmt.Errorf("integrity check: %w", err)
	}
	health.IntegrityCheck = strings.EqualFold(integrity, "ok")

	return health, nil
}
