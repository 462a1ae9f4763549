package testsupport

import (
	"context"
	"path/filepath"
	"testing"

	"meetsync/internal/config"
	"meetsync/internal/queue"
)

// MustOpenStore opens a queue.Store for tests and registers cleanup.
func MustOpenStore(t testing.TB, cfg *config.Config) *queue.Store {
	t.Helper()

	store, err := queue.Open(cfg)
	if err != nil {
		t.Fatalf("queue.Open: %v", err)
	}
	t.Cleanup(func() {
		store.Close()
	})
	return store
}

// NewAsset writes a small video file into the watch directory and registers
// it with the store.
func NewAsset(t testing.TB, store *queue.Store, cfg *config.Config, name string) *queue.Asset {
	t.Helper()

	path := filepath.Join(cfg.Paths.WatchDir, name)
	WriteFile(t, path, 1024)
	asset, _, err := store.AddAsset(context.Background(), path)
	if err != nil {
		t.Fatalf("store.AddAsset: %v", err)
	}
	return asset
}

// MoveAsset walks an asset through the given statuses, failing the test on
// the first rejected transition.
func MoveAsset(t testing.TB, store *queue.Store, asset *queue.Asset, path ...queue.AssetStatus) {
	t.Helper()

	for _, next := range path {
		if err := store.TransitionAsset(context.Background(), asset.ID, asset.Status, next, queue.AssetUpdate{}); err != nil {
			t.Fatalf("transition %s -> %s: %v", asset.Status, next, err)
		}
		asset.Status = next
	}
}
