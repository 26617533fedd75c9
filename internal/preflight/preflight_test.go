package preflight

import (
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"gantry/internal/config"
)

func TestCheckDirectoryAccess(t *testing.T) {
	dir := t.TempDir()
	result := CheckDirectoryAccess("Staging directory", dir)
	if !result.Passed {
		t.Fatalf("expected pass for temp dir: %+v", result)
	}

	result = CheckDirectoryAccess("Staging directory", filepath.Join(dir, "missing"))
	if result.Passed {
		t.Fatalf("expected failure for missing dir: %+v", result)
	}
}

func TestCheckTracker(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
	}))
	defer server.Close()

	// Any HTTP answer counts as reachable.
	result := CheckTracker(context.Background(), config.Tracker{Name: "t", BaseURL: server.URL})
	if !result.Passed {
		t.Fatalf("expected reachable tracker: %+v", result)
	}

	result = CheckTracker(context.Background(), config.Tracker{Name: "down", BaseURL: "http://127.0.0.1:1"})
	if result.Passed {
		t.Fatalf("expected unreachable tracker: %+v", result)
	}

	result = CheckTracker(context.Background(), config.Tracker{Name: "blank"})
	if result.Passed || result.Detail != "missing base url" {
		t.Fatalf("expected missing url failure: %+v", result)
	}
}

func TestAllPassed(t *testing.T) {
	if !AllPassed([]Result{{Passed: true}, {Passed: true}}) {
		t.Fatal("expected all passed")
	}
	if AllPassed([]Result{{Passed: true}, {Passed: false}}) {
		t.Fatal("expected failure to propagate")
	}
}
