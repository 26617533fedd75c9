package main

import (
	"context"
	"strings"
	"testing"

	"gantry/internal/config"
	"gantry/internal/queue"
)

func openTestStore(t *testing.T, env *cliTestEnv) *queue.Store {
	t.Helper()
	cfg, _, _, err := config.Load(env.configPath)
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	store, err := queue.Open(cfg)
	if err != nil {
		t.Fatalf("queue.Open: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func TestCLIAddAndQueueLifecycle(t *testing.T) {
	env := setupCLITestEnv(t)

	path := writeMediaFile(t, env.stagingDir, "Some Show S01E01.mkv")

	out, _, err := runCLI(t, []string{"add", path, "--name", "pilot drop"}, env.configPath)
	if err != nil {
		t.Fatalf("add: %v", err)
	}
	requireContains(t, out, "Queued batch")
	requireContains(t, out, "1 file(s)")

	out, _, err = runCLI(t, []string{"queue", "status"}, env.configPath)
	if err != nil {
		t.Fatalf("queue status: %v", err)
	}
	requireContains(t, out, "pending")

	out, _, err = runCLI(t, []string{"queue", "list"}, env.configPath)
	if err != nil {
		t.Fatalf("queue list: %v", err)
	}
	requireContains(t, out, "pending")
	requireContains(t, out, "normal")

	out, _, err = runCLI(t, []string{"batch", "list"}, env.configPath)
	if err != nil {
		t.Fatalf("batch list: %v", err)
	}
	requireContains(t, out, "pilot drop")

	// Resolve the batch id from the store for the show command.
	store := openTestStore(t, env)
	jobs, err := store.ListBatches(context.Background())
	if err != nil || len(jobs) != 1 {
		t.Fatalf("ListBatches: %v (%d)", err, len(jobs))
	}

	out, _, err = runCLI(t, []string{"batch", "show", jobs[0].ID}, env.configPath)
	if err != nil {
		t.Fatalf("batch show: %v", err)
	}
	requireContains(t, out, "pilot drop")
	requireContains(t, out, "0/1")

	out, _, err = runCLI(t, []string{"batch", "cancel", jobs[0].ID}, env.configPath)
	if err != nil {
		t.Fatalf("batch cancel: %v", err)
	}
	requireContains(t, out, "Cancellation requested for 1 member(s)")

	out, _, err = runCLI(t, []string{"queue", "status"}, env.configPath)
	if err != nil {
		t.Fatalf("queue status after cancel: %v", err)
	}
	requireContains(t, out, "Queue is empty")
}

func TestCLIAddRejectsUnknownExtension(t *testing.T) {
	env := setupCLITestEnv(t)

	path := writeMediaFile(t, env.stagingDir, "notes.txt")
	_, _, err := runCLI(t, []string{"add", path}, env.configPath)
	if err == nil || !strings.Contains(err.Error(), "unsupported file extension") {
		t.Fatalf("expected extension error, got %v", err)
	}
}

func TestCLIQueueRetryAndClear(t *testing.T) {
	env := setupCLITestEnv(t)
	store := openTestStore(t, env)
	ctx := context.Background()

	file, err := store.NewFile(ctx, writeMediaFile(t, env.stagingDir, "Broken.mkv"))
	if err != nil {
		t.Fatalf("NewFile: %v", err)
	}
	entry, err := store.Enqueue(ctx, file.ID, queue.EnqueueOptions{MaxAttempts: 1})
	if err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	claimed, err := store.ClaimNext(ctx)
	if err != nil || claimed == nil {
		t.Fatalf("ClaimNext: %v", err)
	}
	if err := store.Fail(ctx, claimed.ID, "probe exploded", nil); err != nil {
		t.Fatalf("Fail: %v", err)
	}

	out, _, err := runCLI(t, []string{"queue", "retry"}, env.configPath)
	if err != nil {
		t.Fatalf("queue retry: %v", err)
	}
	requireContains(t, out, "Retried 1 failed entries")

	got, err := store.GetEntry(ctx, entry.ID)
	if err != nil {
		t.Fatalf("GetEntry: %v", err)
	}
	if got.Status != queue.StatusPending {
		t.Fatalf("expected retried entry pending, got %q", got.Status)
	}

	if err := store.Fail(ctx, mustClaim(t, store).ID, "probe exploded again", nil); err != nil {
		t.Fatalf("Fail again: %v", err)
	}
	out, _, err = runCLI(t, []string{"queue", "clear", "--failed"}, env.configPath)
	if err != nil {
		t.Fatalf("queue clear --failed: %v", err)
	}
	requireContains(t, out, "Cleared 1 failed entries")
}

func mustClaim(t *testing.T, store *queue.Store) *queue.Entry {
	t.Helper()
	entry, err := store.ClaimNext(context.Background())
	if err != nil || entry == nil {
		t.Fatalf("ClaimNext: %v", err)
	}
	return entry
}
