package queueaccess_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"meetsync/internal/config"
	"meetsync/internal/ipc"
	"meetsync/internal/queue"
	"meetsync/internal/queueaccess"
	"meetsync/internal/testsupport"
)

func openFallback(t *testing.T, cfg *config.Config) queueaccess.Session {
	t.Helper()
	session, err := queueaccess.OpenWithFallback(
		func() (*ipc.Client, error) { return nil, errors.New("daemon not running") },
		func() (*queue.Store, error) { return queue.Open(cfg) },
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = session.Close() })
	return session
}

func TestOpenWithFallbackUsesStore(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	seed := testsupport.MustOpenStore(t, cfg)
	testsupport.NewAsset(t, seed, cfg, "2026-01-22_14-26-31.mp4")
	require.NoError(t, seed.Enqueue(context.Background(), queue.OfflineLogEntry, "job-9"))
	require.NoError(t, seed.Enqueue(context.Background(), queue.OfflineVideo, "3"))

	session := openFallback(t, cfg)
	access := session.Access
	assert.False(t, access.Live())

	ctx := context.Background()
	assets, err := access.Assets(ctx, []string{"detected"})
	require.NoError(t, err)
	require.Len(t, assets, 1)
	assert.Equal(t, "2026-01-22_14-26-31.mp4", assets[0].FileName)

	_, err = access.Assets(ctx, []string{"bogus"})
	assert.Error(t, err)

	counts, err := access.Counts(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, counts.Assets["detected"])
	assert.Equal(t, 1, counts.Offline[string(queue.OfflineVideo)])

	offline, err := access.Offline(ctx)
	require.NoError(t, err)
	require.Len(t, offline, 2)
	assert.Equal(t, string(queue.OfflineVideo), offline[0].Kind)

	jobs, err := access.Jobs(ctx, nil)
	require.NoError(t, err)
	assert.Empty(t, jobs)

	_, err = access.Job(ctx, "missing")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not found")
}

func TestOpenWithFallbackRequiresStoreOpener(t *testing.T) {
	_, err := queueaccess.OpenWithFallback(nil, nil)
	assert.Error(t, err)
}
