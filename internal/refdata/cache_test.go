package refdata_test

import (
	"context"
	"errors"
	"testing"

	"gantry/internal/queue"
	"gantry/internal/refdata"
	"gantry/internal/services"
	"gantry/internal/testsupport"
)

type fakeFetcher struct {
	tags       []queue.ReferenceEntry
	categories []queue.ReferenceEntry
	err        error
	calls      int
}

func (f *fakeFetcher) FetchTags(ctx context.Context) ([]queue.ReferenceEntry, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.tags, nil
}

func (f *fakeFetcher) FetchCategories(ctx context.Context) ([]queue.ReferenceEntry, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.categories, nil
}

func TestSyncIndexesCatalog(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	fetcher := &fakeFetcher{
		tags: []queue.ReferenceEntry{
			{ExternalID: 1, Label: "Remux"},
			{ExternalID: 2, Label: "HDR"},
		},
		categories: []queue.ReferenceEntry{{ExternalID: 10, Label: "Movies"}},
	}
	cache := refdata.New(store, fetcher, cfg, nil)

	ctx := context.Background()
	if err := cache.Sync(ctx); err != nil {
		t.Fatalf("Sync: %v", err)
	}

	entry, err := cache.ResolveTag("remux")
	if err != nil {
		t.Fatalf("ResolveTag: %v", err)
	}
	if entry.ExternalID != 1 {
		t.Fatalf("unexpected tag entry: %#v", entry)
	}
	if _, err := cache.ResolveCategory("MOVIES"); err != nil {
		t.Fatalf("ResolveCategory: %v", err)
	}
	if cache.Stale() {
		t.Fatal("fresh sync must not be stale")
	}
	if cache.LastSync().IsZero() {
		t.Fatal("expected last sync timestamp")
	}

	// The synced snapshot is persisted for the next process start.
	rows, err := store.ListReferenceEntries(ctx, queue.KindTag)
	if err != nil || len(rows) != 2 {
		t.Fatalf("persisted tags: %v (%d rows)", err, len(rows))
	}
}

func TestResolveUnknownLabelIsPermanent(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	cache := refdata.New(store, &fakeFetcher{}, cfg, nil)

	_, err := cache.ResolveTag("nonexistent")
	if !errors.Is(err, refdata.ErrUnknownReference) {
		t.Fatalf("expected ErrUnknownReference, got %v", err)
	}
	if !services.IsPermanent(err) {
		t.Fatal("unknown label must be a permanent failure")
	}
}

func TestSyncFailureKeepsServingSnapshot(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	fetcher := &fakeFetcher{tags: []queue.ReferenceEntry{{ExternalID: 1, Label: "Remux"}}}
	cache := refdata.New(store, fetcher, cfg, nil)

	ctx := context.Background()
	if err := cache.Sync(ctx); err != nil {
		t.Fatalf("Sync: %v", err)
	}

	fetcher.err = errors.New("tracker down")
	if err := cache.Sync(ctx); err == nil {
		t.Fatal("expected sync failure")
	}
	if !cache.Stale() {
		t.Fatal("expected stale flag after failed refresh")
	}
	if _, err := cache.ResolveTag("Remux"); err != nil {
		t.Fatalf("stale snapshot must keep serving: %v", err)
	}
}

func TestLoadRestoresPersistedSnapshot(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	fetcher := &fakeFetcher{tags: []queue.ReferenceEntry{{ExternalID: 5, Label: "WEB-DL"}}}
	first := refdata.New(store, fetcher, cfg, nil)
	if err := first.Sync(ctx); err != nil {
		t.Fatalf("Sync: %v", err)
	}

	// A second cache over the same store starts from the persisted rows
	// without contacting the tracker.
	second := refdata.New(store, &fakeFetcher{err: errors.New("offline")}, cfg, nil)
	if err := second.Load(ctx); err != nil {
		t.Fatalf("Load: %v", err)
	}
	entry, err := second.ResolveTag("web-dl")
	if err != nil {
		t.Fatalf("ResolveTag after Load: %v", err)
	}
	if entry.ExternalID != 5 {
		t.Fatalf("unexpected entry: %#v", entry)
	}
	if !second.Stale() {
		t.Fatal("loaded snapshot should be marked stale until a sync succeeds")
	}
}
