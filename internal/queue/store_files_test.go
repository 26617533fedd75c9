package queue_test

import (
	"context"
	"testing"
	"time"

	"gantry/internal/queue"
	"gantry/internal/testsupport"
)

func TestUpdateFilePersistsCheckpoints(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	entry := testsupport.NewFile(t, store, cfg, "show.mkv")

	now := time.Now().UTC().Truncate(time.Millisecond)
	entry.Status = queue.FileAnalyzing
	entry.ScannedAt = &now
	entry.AnalysisJSON = `{"size_bytes":4096,"content_hash":"deadbeef"}`
	if err := entry.SetTrackerReleaseNames(map[string]string{"testtracker": "Show.2024.1080p"}); err != nil {
		t.Fatalf("SetTrackerReleaseNames: %v", err)
	}
	if err := entry.SetDuplicateCheckResult("testtracker", false); err != nil {
		t.Fatalf("SetDuplicateCheckResult: %v", err)
	}
	if err := store.UpdateFile(ctx, entry); err != nil {
		t.Fatalf("UpdateFile: %v", err)
	}

	got, err := store.GetFile(ctx, entry.ID)
	if err != nil {
		t.Fatalf("GetFile: %v", err)
	}
	if got.Status != queue.FileAnalyzing {
		t.Fatalf("expected analyzing status, got %q", got.Status)
	}
	if got.ScannedAt == nil || !got.ScannedAt.Equal(now) {
		t.Fatalf("scanned_at mismatch: %v vs %v", got.ScannedAt, now)
	}
	if got.AnalyzedAt != nil {
		t.Fatalf("analyzed_at should be unset, got %v", got.AnalyzedAt)
	}
	if got.AnalysisJSON != entry.AnalysisJSON {
		t.Fatalf("analysis payload mismatch: %q", got.AnalysisJSON)
	}

	names, err := got.TrackerReleaseNames()
	if err != nil {
		t.Fatalf("TrackerReleaseNames: %v", err)
	}
	if names["testtracker"] != "Show.2024.1080p" {
		t.Fatalf("unexpected release names: %v", names)
	}
	checks, err := got.DuplicateCheckResults()
	if err != nil {
		t.Fatalf("DuplicateCheckResults: %v", err)
	}
	if duplicate, ok := checks["testtracker"]; !ok || duplicate {
		t.Fatalf("unexpected duplicate checks: %v", checks)
	}
}

func TestListFilesFiltersByStatus(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	done := testsupport.NewFile(t, store, cfg, "done.mkv")
	done.Status = queue.FileCompleted
	if err := store.UpdateFile(ctx, done); err != nil {
		t.Fatalf("UpdateFile: %v", err)
	}
	testsupport.NewFile(t, store, cfg, "waiting.mkv")

	completed, err := store.ListFiles(ctx, queue.FileCompleted)
	if err != nil {
		t.Fatalf("ListFiles: %v", err)
	}
	if len(completed) != 1 || completed[0].ID != done.ID {
		t.Fatalf("unexpected completed files: %#v", completed)
	}

	all, err := store.ListFiles(ctx)
	if err != nil {
		t.Fatalf("ListFiles (all): %v", err)
	}
	if len(all) != 2 {
		t.Fatalf("expected 2 files, got %d", len(all))
	}
}

func TestFileBySourcePath(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	entry := testsupport.NewFile(t, store, cfg, "lookup.mkv")
	got, err := store.FileBySourcePath(ctx, entry.SourcePath)
	if err != nil {
		t.Fatalf("FileBySourcePath: %v", err)
	}
	if got == nil || got.ID != entry.ID {
		t.Fatalf("lookup mismatch: %#v", got)
	}

	missing, err := store.FileBySourcePath(ctx, "/nowhere/else.mkv")
	if err != nil {
		t.Fatalf("FileBySourcePath (missing): %v", err)
	}
	if missing != nil {
		t.Fatalf("expected nil for unknown path, got %#v", missing)
	}
}
