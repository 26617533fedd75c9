package batch_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"gantry/internal/batch"
	"gantry/internal/queue"
	"gantry/internal/testsupport"
)

func TestSubmitCreatesBatchWithDefaults(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	coordinator := batch.NewCoordinator(store, cfg, nil)
	ctx := context.Background()

	paths := []string{
		filepath.Join(cfg.Paths.StagingDir, "e01.mkv"),
		filepath.Join(cfg.Paths.StagingDir, "e02.mkv"),
	}
	job, err := coordinator.Submit(ctx, paths, batch.SubmitOptions{Name: "season 1"})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if job.TotalCount != 2 {
		t.Fatalf("expected 2 members, got %d", job.TotalCount)
	}
	if job.MaxConcurrent != cfg.Workflow.BatchMaxConcurrent {
		t.Fatalf("expected workflow default max_concurrent, got %d", job.MaxConcurrent)
	}

	status, err := coordinator.Get(ctx, job.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if len(status.Entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(status.Entries))
	}
	for _, entry := range status.Entries {
		if entry.MaxAttempts != cfg.Workflow.MaxAttempts {
			t.Fatalf("expected workflow default max_attempts, got %d", entry.MaxAttempts)
		}
	}
}

func TestSubmitIsAtomic(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	coordinator := batch.NewCoordinator(store, cfg, nil)
	ctx := context.Background()

	busy := testsupport.NewFile(t, store, cfg, "busy.mkv")
	testsupport.Enqueue(t, store, busy.ID, queue.EnqueueOptions{})

	paths := []string{
		filepath.Join(cfg.Paths.StagingDir, "fresh.mkv"),
		busy.SourcePath,
	}
	if _, err := coordinator.Submit(ctx, paths, batch.SubmitOptions{}); !errors.Is(err, queue.ErrDuplicateEnqueue) {
		t.Fatalf("expected ErrDuplicateEnqueue, got %v", err)
	}

	jobs, err := coordinator.List(ctx)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(jobs) != 0 {
		t.Fatalf("expected no batches after failed submit, got %d", len(jobs))
	}
}

func TestSubmitRejectsEmptySet(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	coordinator := batch.NewCoordinator(store, cfg, nil)

	if _, err := coordinator.Submit(context.Background(), nil, batch.SubmitOptions{}); !errors.Is(err, queue.ErrEmptyBatch) {
		t.Fatalf("expected ErrEmptyBatch, got %v", err)
	}
}

func TestCancelAffectsOnlyNonTerminalMembers(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	coordinator := batch.NewCoordinator(store, cfg, nil)
	ctx := context.Background()

	paths := []string{
		filepath.Join(cfg.Paths.StagingDir, "done.mkv"),
		filepath.Join(cfg.Paths.StagingDir, "running.mkv"),
		filepath.Join(cfg.Paths.StagingDir, "waiting.mkv"),
	}
	job, err := coordinator.Submit(ctx, paths, batch.SubmitOptions{MaxConcurrent: 3})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}

	// Finish one member and put one in flight.
	first, err := store.ClaimNext(ctx)
	if err != nil || first == nil {
		t.Fatalf("ClaimNext: %v %#v", err, first)
	}
	if err := store.Complete(ctx, first.ID, queue.OutcomeCompleted); err != nil {
		t.Fatalf("Complete: %v", err)
	}
	inFlight, err := store.ClaimNext(ctx)
	if err != nil || inFlight == nil {
		t.Fatalf("ClaimNext: %v %#v", err, inFlight)
	}

	cancelled, err := coordinator.Cancel(ctx, job.ID)
	if err != nil {
		t.Fatalf("Cancel: %v", err)
	}
	if cancelled != 2 {
		t.Fatalf("expected 2 cancelled members, got %d", cancelled)
	}

	// The in-flight member carries the flag for its worker to observe.
	flag, err := store.Heartbeat(ctx, inFlight.ID)
	if err != nil || !flag {
		t.Fatalf("expected cancel flag on in-flight member: %v %v", flag, err)
	}
}

func TestGetUnknownBatch(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	coordinator := batch.NewCoordinator(store, cfg, nil)

	_, err := coordinator.Get(context.Background(), "no-such-batch")
	if err == nil || !batch.IsNotFound(err) {
		t.Fatalf("expected not-found error, got %v", err)
	}
}

func TestSubmitCopiesIntoStaging(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	coordinator := batch.NewCoordinator(store, cfg, nil)
	ctx := context.Background()

	inbox := t.TempDir()
	src := filepath.Join(inbox, "pilot.mkv")
	if err := os.WriteFile(src, []byte("payload"), 0o644); err != nil {
		t.Fatal(err)
	}

	job, err := coordinator.Submit(ctx, []string{src}, batch.SubmitOptions{CopyToStaging: true})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}

	status, err := coordinator.Get(ctx, job.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if len(status.Entries) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(status.Entries))
	}

	file, err := store.GetFile(ctx, status.Entries[0].FileID)
	if err != nil {
		t.Fatalf("GetFile: %v", err)
	}
	want := filepath.Join(cfg.Paths.StagingDir, "pilot.mkv")
	if file.SourcePath != want {
		t.Fatalf("expected staged path %q, got %q", want, file.SourcePath)
	}
	if _, err := os.Stat(want); err != nil {
		t.Fatalf("staged copy missing: %v", err)
	}
	// The original stays where it was.
	if _, err := os.Stat(src); err != nil {
		t.Fatalf("original removed: %v", err)
	}
}
