package notifications

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"gantry/internal/testsupport"
)

type captured struct {
	title    string
	message  string
	priority string
}

func newCapturingServer(t *testing.T) (*httptest.Server, func() []captured) {
	t.Helper()
	var mu sync.Mutex
	var events []captured
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body := make([]byte, r.ContentLength)
		_, _ = r.Body.Read(body)
		mu.Lock()
		events = append(events, captured{
			title:    r.Header.Get("Title"),
			message:  string(body),
			priority: r.Header.Get("Priority"),
		})
		mu.Unlock()
	}))
	t.Cleanup(server.Close)
	return server, func() []captured {
		mu.Lock()
		defer mu.Unlock()
		return append([]captured(nil), events...)
	}
}

func TestNoopWithoutTopic(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	service := NewService(cfg)
	if _, ok := service.(noopService); !ok {
		t.Fatalf("expected noop service, got %T", service)
	}
	if err := service.TestNotification(context.Background()); err != nil {
		t.Fatalf("noop test notification: %v", err)
	}
}

func TestPipelineEventsAreDelivered(t *testing.T) {
	server, events := newCapturingServer(t)
	cfg := testsupport.NewConfig(t)
	cfg.Notifications.NtfyTopic = server.URL

	service := NewService(cfg)
	ctx := context.Background()
	service.PipelineCompleted(ctx, "Show.S01E01.1080p")
	service.PipelineFailed(ctx, "Broken.Release", context.DeadlineExceeded)
	service.BatchFinished(ctx, "season 1", 4, 1)

	got := events()
	if len(got) != 3 {
		t.Fatalf("expected 3 notifications, got %d", len(got))
	}
	if !strings.Contains(got[0].message, "Show.S01E01.1080p") {
		t.Fatalf("unexpected completion message %q", got[0].message)
	}
	if got[1].priority != "high" {
		t.Fatalf("failure should be high priority, got %q", got[1].priority)
	}
	if !strings.Contains(got[2].message, "4 uploaded, 1 failed") {
		t.Fatalf("unexpected batch message %q", got[2].message)
	}
}

func TestEventTogglesSuppressDelivery(t *testing.T) {
	server, events := newCapturingServer(t)
	cfg := testsupport.NewConfig(t)
	cfg.Notifications.NtfyTopic = server.URL
	cfg.Notifications.Queue = false
	cfg.Notifications.Errors = false

	service := NewService(cfg)
	ctx := context.Background()
	service.PipelineCompleted(ctx, "x")
	service.PipelineFailed(ctx, "y", nil)
	service.BatchFinished(ctx, "z", 1, 0)

	if got := events(); len(got) != 0 {
		t.Fatalf("expected suppressed notifications, got %d", len(got))
	}
}
