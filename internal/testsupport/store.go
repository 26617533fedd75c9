package testsupport

import (
	"context"
	"path/filepath"
	"testing"

	"gantry/internal/config"
	"gantry/internal/queue"
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

// NewFile registers a media file entry for tests using the provided store.
// When the path is relative it is placed under the config staging directory.
func NewFile(t testing.TB, store *queue.Store, cfg *config.Config, path string) *queue.FileEntry {
	t.Helper()

	if !filepath.IsAbs(path) {
		path = filepath.Join(cfg.Paths.StagingDir, path)
	}
	entry, err := store.NewFile(context.Background(), path)
	if err != nil {
		t.Fatalf("store.NewFile: %v", err)
	}
	return entry
}

// Enqueue schedules a file entry for tests with sane defaults.
func Enqueue(t testing.TB, store *queue.Store, fileID int64, opts queue.EnqueueOptions) *queue.Entry {
	t.Helper()

	entry, err := store.Enqueue(context.Background(), fileID, opts)
	if err != nil {
		t.Fatalf("store.Enqueue: %v", err)
	}
	return entry
}
