package stages

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"

	"gantry/internal/config"
	"gantry/internal/queue"
	"gantry/internal/services"
	"gantry/internal/testsupport"
)

type staticResolver struct {
	categories map[string]int64
	tags       map[string]int64
}

func (r staticResolver) ResolveCategory(label string) (queue.ReferenceEntry, error) {
	if id, ok := r.categories[label]; ok {
		return queue.ReferenceEntry{ExternalID: id, Label: label}, nil
	}
	return queue.ReferenceEntry{}, services.Wrap(services.ErrValidation, "", "resolve category", label, nil)
}

func (r staticResolver) ResolveTags(labels []string) ([]int64, error) {
	ids := make([]int64, 0, len(labels))
	for _, label := range labels {
		id, ok := r.tags[label]
		if !ok {
			return nil, services.Wrap(services.ErrValidation, "", "resolve tag", label, nil)
		}
		ids = append(ids, id)
	}
	return ids, nil
}

func uploaderFixture(t *testing.T, handler http.Handler, resolver ReferenceResolver) (*Uploader, *config.Config) {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	cfg := testsupport.NewConfig(t)
	cfg.Trackers[0].BaseURL = server.URL
	cfg.ReferenceData.RequiredTags = []string{"internal"}
	return NewUploader(cfg, resolver, nil), cfg
}

func TestUploadAttachesCatalogReferences(t *testing.T) {
	dir := t.TempDir()
	torrentPath := filepath.Join(dir, "r.torrent")
	if err := os.WriteFile(torrentPath, []byte("d4:infoe"), 0o644); err != nil {
		t.Fatal(err)
	}

	var sawCategory, sawTag atomic.Bool
	uploader, cfg := uploaderFixture(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Errorf("parse form: %v", err)
		}
		sawCategory.Store(r.FormValue("category_id") == "7")
		sawTag.Store(len(r.MultipartForm.Value["tag_ids[]"]) == 1)
		w.WriteHeader(http.StatusCreated)
	}), staticResolver{
		categories: map[string]int64{"TV": 7},
		tags:       map[string]int64{"internal": 3},
	})

	entry := &queue.FileEntry{TorrentPath: torrentPath}
	err := uploader.Upload(context.Background(), cfg.Trackers[0], entry, "Show.S01E01.1080p.x264")
	if err != nil {
		t.Fatalf("Upload: %v", err)
	}
	if !sawCategory.Load() || !sawTag.Load() {
		t.Fatal("expected category and tag identifiers on upload")
	}
}

func TestUploadTreatsConflictAsPublished(t *testing.T) {
	dir := t.TempDir()
	torrentPath := filepath.Join(dir, "r.torrent")
	if err := os.WriteFile(torrentPath, []byte("d4:infoe"), 0o644); err != nil {
		t.Fatal(err)
	}

	uploader, cfg := uploaderFixture(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "already exists", http.StatusConflict)
	}), nil)

	entry := &queue.FileEntry{TorrentPath: torrentPath}
	if err := uploader.Upload(context.Background(), cfg.Trackers[0], entry, "Race.1080p"); err != nil {
		t.Fatalf("conflict should not fail the stage: %v", err)
	}
}

func TestCheckDuplicate(t *testing.T) {
	uploader, cfg := uploaderFixture(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"results": []map[string]any{{"id": 1, "name": "Known.Release.1080p"}},
		})
	}), nil)

	found, err := uploader.CheckDuplicate(context.Background(), cfg.Trackers[0], "Known.Release.1080p")
	if err != nil {
		t.Fatalf("CheckDuplicate: %v", err)
	}
	if !found {
		t.Fatal("expected duplicate")
	}
}

func TestUploadUnknownTracker(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	uploader := NewUploader(cfg, nil, nil)

	_, err := uploader.CheckDuplicate(context.Background(), config.Tracker{Name: "other"}, "x")
	if err == nil || !services.IsPermanent(err) {
		t.Fatalf("expected permanent configuration error, got %v", err)
	}
}

func TestCategoryLabel(t *testing.T) {
	if got := categoryLabel("Show.S03E09.1080p"); got != "TV" {
		t.Fatalf("expected TV, got %q", got)
	}
	if got := categoryLabel("Film.2021.2160p"); got != "Movies" {
		t.Fatalf("expected Movies, got %q", got)
	}
}
