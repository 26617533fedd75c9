package tracker_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"gantry/internal/config"
	"gantry/internal/services"
	"gantry/internal/tracker"
)

func newTestClient(t *testing.T, handler http.Handler) (*tracker.Client, *httptest.Server) {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	client := tracker.NewClient(config.Tracker{
		Name:    "testtracker",
		BaseURL: server.URL,
		APIKey:  "secret",
	})
	return client, server
}

func TestFetchTags(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/tags" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer secret" {
			t.Errorf("unexpected auth header %q", got)
		}
		json.NewEncoder(w).Encode([]map[string]any{
			{"id": 1, "name": "Remux"},
			{"id": 2, "name": "HDR"},
		})
	}))

	entries, err := client.FetchTags(context.Background())
	if err != nil {
		t.Fatalf("FetchTags: %v", err)
	}
	if len(entries) != 2 || entries[0].ExternalID != 1 || entries[0].Label != "Remux" {
		t.Fatalf("unexpected entries: %#v", entries)
	}
}

func TestSearchReleaseMatchesExactName(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("name"); got != "Some.Show.S01E01.1080p" {
			t.Errorf("unexpected query %q", got)
		}
		json.NewEncoder(w).Encode(map[string]any{
			"results": []map[string]any{
				{"id": 9, "name": "some.show.s01e01.1080P"},
			},
		})
	}))

	found, err := client.SearchRelease(context.Background(), "Some.Show.S01E01.1080p")
	if err != nil {
		t.Fatalf("SearchRelease: %v", err)
	}
	if !found {
		t.Fatal("expected case-insensitive name match")
	}
}

func TestSearchReleaseIgnoresPartialMatches(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"results": []map[string]any{
				{"id": 9, "name": "Some.Show.S01E01.1080p.REPACK"},
			},
		})
	}))

	found, err := client.SearchRelease(context.Background(), "Some.Show.S01E01.1080p")
	if err != nil {
		t.Fatalf("SearchRelease: %v", err)
	}
	if found {
		t.Fatal("partial match must not count as duplicate")
	}
}

func TestUploadSendsMultipartPayload(t *testing.T) {
	dir := t.TempDir()
	torrentPath := filepath.Join(dir, "release.torrent")
	nfoPath := filepath.Join(dir, "release.nfo")
	if err := os.WriteFile(torrentPath, []byte("d4:infoe"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(nfoPath, []byte("release notes"), 0o644); err != nil {
		t.Fatal(err)
	}

	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/torrents" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Errorf("parse multipart: %v", err)
			http.Error(w, "bad form", http.StatusBadRequest)
			return
		}
		if got := r.FormValue("name"); got != "Release.Name.1080p" {
			t.Errorf("unexpected name %q", got)
		}
		if got := r.FormValue("category_id"); got != "10" {
			t.Errorf("unexpected category %q", got)
		}
		if got := r.MultipartForm.Value["tag_ids[]"]; len(got) != 2 {
			t.Errorf("unexpected tag ids %v", got)
		}
		if _, ok := r.MultipartForm.File["torrent"]; !ok {
			t.Error("missing torrent file part")
		}
		if _, ok := r.MultipartForm.File["nfo"]; !ok {
			t.Error("missing nfo file part")
		}
		w.WriteHeader(http.StatusCreated)
	}))

	err := client.Upload(context.Background(), tracker.UploadRequest{
		ReleaseName: "Release.Name.1080p",
		TorrentPath: torrentPath,
		NFOPath:     nfoPath,
		CategoryID:  10,
		TagIDs:      []int64{1, 2},
	})
	if err != nil {
		t.Fatalf("Upload: %v", err)
	}
}

func TestStatusClassification(t *testing.T) {
	cases := []struct {
		status int
		marker error
	}{
		{http.StatusUnauthorized, services.ErrConfiguration},
		{http.StatusConflict, services.ErrDuplicate},
		{http.StatusUnprocessableEntity, services.ErrValidation},
		{http.StatusInternalServerError, services.ErrExternalTool},
	}
	for _, tc := range cases {
		client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "nope", tc.status)
		}))
		_, err := client.FetchTags(context.Background())
		if !errors.Is(err, tc.marker) {
			t.Fatalf("status %d: expected marker %v, got %v", tc.status, tc.marker, err)
		}
	}
}

func TestUnreachableTrackerIsRetryable(t *testing.T) {
	client := tracker.NewClient(config.Tracker{Name: "down", BaseURL: "http://127.0.0.1:1"})
	_, err := client.FetchTags(context.Background())
	if !errors.Is(err, services.ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable, got %v", err)
	}
	if services.IsPermanent(err) {
		t.Fatal("network failure must stay retryable")
	}
}
