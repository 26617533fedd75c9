package queue_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"gantry/internal/config"
	"gantry/internal/queue"
	"gantry/internal/testsupport"
)

func newBatchFiles(t *testing.T, store *queue.Store, cfg *config.Config, names ...string) []int64 {
	t.Helper()
	ids := make([]int64, 0, len(names))
	for _, name := range names {
		file := testsupport.NewFile(t, store, cfg, name)
		ids = append(ids, file.ID)
	}
	return ids
}

func TestNewBatchEnqueuesAllMembers(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	ids := newBatchFiles(t, store, cfg, "a.mkv", "b.mkv", "c.mkv")
	batch, err := store.NewBatch(ctx, ids, queue.BatchOptions{Name: "season pack"})
	if err != nil {
		t.Fatalf("NewBatch: %v", err)
	}
	if batch.ID == "" {
		t.Fatal("expected batch ID to be assigned")
	}
	if batch.Status != queue.BatchRunning {
		t.Fatalf("expected running batch, got %q", batch.Status)
	}
	if batch.TotalCount != 3 || batch.ProcessedCount != 0 {
		t.Fatalf("unexpected counts: %#v", batch)
	}

	entries, err := store.EntriesForBatch(ctx, batch.ID)
	if err != nil {
		t.Fatalf("EntriesForBatch: %v", err)
	}
	if len(entries) != 3 {
		t.Fatalf("expected 3 member entries, got %d", len(entries))
	}
	for _, entry := range entries {
		if entry.BatchID != batch.ID || entry.Status != queue.StatusPending {
			t.Fatalf("unexpected member entry: %#v", entry)
		}
	}
}

func TestNewBatchRejectsEmptyAndDuplicateMembers(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	if _, err := store.NewBatch(ctx, nil, queue.BatchOptions{}); !errors.Is(err, queue.ErrEmptyBatch) {
		t.Fatalf("expected ErrEmptyBatch, got %v", err)
	}

	busy := testsupport.NewFile(t, store, cfg, "busy.mkv")
	testsupport.Enqueue(t, store, busy.ID, queue.EnqueueOptions{})
	fresh := testsupport.NewFile(t, store, cfg, "fresh.mkv")

	if _, err := store.NewBatch(ctx, []int64{fresh.ID, busy.ID}, queue.BatchOptions{}); !errors.Is(err, queue.ErrDuplicateEnqueue) {
		t.Fatalf("expected ErrDuplicateEnqueue, got %v", err)
	}

	// The aborted submission must not leave a partial batch behind.
	batches, err := store.ListBatches(ctx)
	if err != nil {
		t.Fatalf("ListBatches: %v", err)
	}
	if len(batches) != 0 {
		t.Fatalf("expected no batches after aborted submission, got %d", len(batches))
	}
	if entry, err := store.ActiveEntryForFile(ctx, fresh.ID); err != nil || entry != nil {
		t.Fatalf("expected no entry for fresh file, got %#v err=%v", entry, err)
	}
}

func TestBatchCountsStayConsistent(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	ids := newBatchFiles(t, store, cfg, "a.mkv", "b.mkv", "c.mkv", "d.mkv")
	batch, err := store.NewBatch(ctx, ids, queue.BatchOptions{MaxConcurrent: 4})
	if err != nil {
		t.Fatalf("NewBatch: %v", err)
	}

	outcomes := []queue.MemberOutcome{
		queue.OutcomeCompleted,
		queue.OutcomeDuplicate,
		queue.OutcomeFailed,
		queue.OutcomeCompleted,
	}
	for i, outcome := range outcomes {
		claimed, err := store.ClaimNext(ctx)
		if err != nil || claimed == nil {
			t.Fatalf("ClaimNext %d: %v %#v", i, err, claimed)
		}
		if outcome == queue.OutcomeFailed {
			if err := store.Fail(ctx, claimed.ID, "upload refused", nil); err != nil {
				t.Fatalf("Fail: %v", err)
			}
		} else if err := store.Complete(ctx, claimed.ID, outcome); err != nil {
			t.Fatalf("Complete: %v", err)
		}

		got, err := store.GetBatch(ctx, batch.ID)
		if err != nil {
			t.Fatalf("GetBatch after member %d: %v", i, err)
		}
		if got.ProcessedCount != got.SuccessCount+got.FailedCount {
			t.Fatalf("processed != success + failed after member %d: %#v", i, got)
		}
		if got.ProcessedCount > got.TotalCount {
			t.Fatalf("processed exceeds total after member %d: %#v", i, got)
		}
	}

	final, err := store.GetBatch(ctx, batch.ID)
	if err != nil {
		t.Fatalf("GetBatch: %v", err)
	}
	if final.Status != queue.BatchPartial {
		t.Fatalf("expected partial batch, got %q", final.Status)
	}
	if final.SuccessCount != 3 || final.FailedCount != 1 || final.ProcessedCount != 4 {
		t.Fatalf("unexpected final counts: %#v", final)
	}
	if final.CompletedAt == nil {
		t.Fatal("expected completed_at on terminal batch")
	}
	if final.ErrorSummary == "" {
		t.Fatal("expected error summary on partial batch")
	}

	results, err := final.Results()
	if err != nil {
		t.Fatalf("Results: %v", err)
	}
	if len(results) != 4 {
		t.Fatalf("expected 4 member results, got %d", len(results))
	}
	var failed int
	for _, result := range results {
		if result.Outcome == queue.OutcomeFailed {
			failed++
			if result.Error == "" {
				t.Fatal("expected failure result to carry error text")
			}
		}
	}
	if failed != 1 {
		t.Fatalf("expected exactly one failed result, got %d", failed)
	}
}

func TestBatchTerminalStatuses(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	drain := func(t *testing.T, batchID string, fail map[int]bool, members int) *queue.BatchJob {
		t.Helper()
		for i := 0; i < members; i++ {
			claimed, err := store.ClaimNext(ctx)
			if err != nil || claimed == nil {
				t.Fatalf("ClaimNext %d: %v %#v", i, err, claimed)
			}
			if fail[i] {
				if err := store.Fail(ctx, claimed.ID, "broken", nil); err != nil {
					t.Fatalf("Fail: %v", err)
				}
				continue
			}
			if err := store.Complete(ctx, claimed.ID, queue.OutcomeCompleted); err != nil {
				t.Fatalf("Complete: %v", err)
			}
		}
		batch, err := store.GetBatch(ctx, batchID)
		if err != nil {
			t.Fatalf("GetBatch: %v", err)
		}
		return batch
	}

	ids := newBatchFiles(t, store, cfg, "ok1.mkv", "ok2.mkv")
	batch, err := store.NewBatch(ctx, ids, queue.BatchOptions{})
	if err != nil {
		t.Fatalf("NewBatch: %v", err)
	}
	if got := drain(t, batch.ID, nil, 2); got.Status != queue.BatchCompleted {
		t.Fatalf("expected completed batch, got %q", got.Status)
	}

	ids = newBatchFiles(t, store, cfg, "bad1.mkv", "bad2.mkv")
	batch, err = store.NewBatch(ctx, ids, queue.BatchOptions{})
	if err != nil {
		t.Fatalf("NewBatch: %v", err)
	}
	if got := drain(t, batch.ID, map[int]bool{0: true, 1: true}, 2); got.Status != queue.BatchFailed {
		t.Fatalf("expected failed batch, got %q", got.Status)
	}
}

func TestBatchConcurrencyCap(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	ids := newBatchFiles(t, store, cfg, "a.mkv", "b.mkv", "c.mkv")
	batch, err := store.NewBatch(ctx, ids, queue.BatchOptions{MaxConcurrent: 1})
	if err != nil {
		t.Fatalf("NewBatch: %v", err)
	}

	first, err := store.ClaimNext(ctx)
	if err != nil || first == nil {
		t.Fatalf("ClaimNext: %v %#v", err, first)
	}

	// A second claim must not take another member of the capped batch.
	if second, err := store.ClaimNext(ctx); err != nil || second != nil {
		t.Fatalf("expected cap to block second claim, got %#v err=%v", second, err)
	}

	// An unbatched entry is still claimable while the batch is capped.
	loose := testsupport.NewFile(t, store, cfg, "loose.mkv")
	testsupport.Enqueue(t, store, loose.ID, queue.EnqueueOptions{})
	claimed, err := store.ClaimNext(ctx)
	if err != nil || claimed == nil {
		t.Fatalf("ClaimNext loose: %v %#v", err, claimed)
	}
	if claimed.FileID != loose.ID {
		t.Fatalf("expected loose entry, got file %d", claimed.FileID)
	}

	// Finishing the in-flight member frees the next one.
	if err := store.Complete(ctx, first.ID, queue.OutcomeCompleted); err != nil {
		t.Fatalf("Complete: %v", err)
	}
	next, err := store.ClaimNext(ctx)
	if err != nil || next == nil {
		t.Fatalf("ClaimNext after complete: %v %#v", err, next)
	}
	if next.BatchID != batch.ID {
		t.Fatalf("expected batch member, got %#v", next)
	}
}

func TestCancelledPendingMemberCountsAgainstBatch(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	ids := newBatchFiles(t, store, cfg, "a.mkv", "b.mkv")
	batch, err := store.NewBatch(ctx, ids, queue.BatchOptions{MaxConcurrent: 2})
	if err != nil {
		t.Fatalf("NewBatch: %v", err)
	}

	entries, err := store.EntriesForBatch(ctx, batch.ID)
	if err != nil || len(entries) != 2 {
		t.Fatalf("EntriesForBatch: %v (%d entries)", err, len(entries))
	}
	if _, err := store.RequestCancel(ctx, entries[0].ID); err != nil {
		t.Fatalf("RequestCancel: %v", err)
	}

	claimed, err := store.ClaimNext(ctx)
	if err != nil || claimed == nil {
		t.Fatalf("ClaimNext: %v %#v", err, claimed)
	}
	if err := store.Complete(ctx, claimed.ID, queue.OutcomeCompleted); err != nil {
		t.Fatalf("Complete: %v", err)
	}

	final, err := store.GetBatch(ctx, batch.ID)
	if err != nil {
		t.Fatalf("GetBatch: %v", err)
	}
	if final.ProcessedCount != 2 || final.SuccessCount != 1 || final.FailedCount != 1 {
		t.Fatalf("unexpected counts after cancellation: %#v", final)
	}
	if final.Status != queue.BatchPartial {
		t.Fatalf("expected partial batch, got %q", final.Status)
	}
	if final.CompletedAt == nil || time.Since(*final.CompletedAt) > time.Minute {
		t.Fatalf("unexpected completed_at: %v", final.CompletedAt)
	}
}
