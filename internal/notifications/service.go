// Package notifications pushes pipeline lifecycle events to ntfy.
package notifications

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"gantry/internal/config"
)

const userAgent = "Gantry-Go/0.1.0"

// Service is the notification surface used by the workflow and batch layers.
type Service interface {
	PipelineCompleted(ctx context.Context, releaseName string)
	PipelineFailed(ctx context.Context, releaseName string, err error)
	BatchFinished(ctx context.Context, name string, success, failed int)
	TestNotification(ctx context.Context) error
}

// NewService builds a notification service backed by ntfy when configured.
// Without an ntfy topic a noop implementation is returned.
func NewService(cfg *config.Config) Service {
	topic := strings.TrimSpace(cfg.Notifications.NtfyTopic)
	if topic == "" {
		return noopService{}
	}

	timeout := time.Duration(cfg.Notifications.RequestTimeout) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	return &ntfyService{
		endpoint:    topic,
		client:      &http.Client{Timeout: timeout},
		queueEvents: cfg.Notifications.Queue,
		errorEvents: cfg.Notifications.Errors,
	}
}

type payload struct {
	title    string
	message  string
	tags     []string
	priority string
}

type ntfyService struct {
	endpoint    string
	client      *http.Client
	queueEvents bool
	errorEvents bool
}

func (n *ntfyService) PipelineCompleted(ctx context.Context, releaseName string) {
	if !n.queueEvents {
		return
	}
	_ = n.send(ctx, payload{
		title:   "Gantry - Upload Complete",
		message: fmt.Sprintf("Uploaded: %s", strings.TrimSpace(releaseName)),
		tags:    []string{"gantry", "upload", "completed"},
	})
}

func (n *ntfyService) PipelineFailed(ctx context.Context, releaseName string, err error) {
	if !n.errorEvents {
		return
	}
	message := fmt.Sprintf("Failed: %s", strings.TrimSpace(releaseName))
	if err != nil {
		message = fmt.Sprintf("%s (%s)", message, err.Error())
	}
	_ = n.send(ctx, payload{
		title:    "Gantry - Pipeline Failed",
		message:  message,
		tags:     []string{"gantry", "pipeline", "failed"},
		priority: "high",
	})
}

func (n *ntfyService) BatchFinished(ctx context.Context, name string, success, failed int) {
	if !n.queueEvents {
		return
	}
	if name == "" {
		name = "batch"
	}
	_ = n.send(ctx, payload{
		title:   "Gantry - Batch Finished",
		message: fmt.Sprintf("%s: %d uploaded, %d failed", name, success, failed),
		tags:    []string{"gantry", "batch", "finished"},
	})
}

func (n *ntfyService) TestNotification(ctx context.Context) error {
	return n.send(ctx, payload{
		title:   "Gantry - Test",
		message: "Notification delivery is working",
		tags:    []string{"gantry", "test"},
	})
}

func (n *ntfyService) send(ctx context.Context, data payload) error {
	if n == nil || n.client == nil {
		return nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.endpoint, strings.NewReader(data.message))
	if err != nil {
		return fmt.Errorf("build ntfy request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Content-Type", "text/plain; charset=utf-8")
	if data.title != "" {
		req.Header.Set("Title", data.title)
	}
	if len(data.tags) > 0 {
		req.Header.Set("Tags", strings.Join(data.tags, ","))
	}
	if data.priority != "" && data.priority != "default" {
		req.Header.Set("Priority", data.priority)
	}

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("send ntfy notification: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return fmt.Errorf("ntfy returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

type noopService struct{}

func (noopService) PipelineCompleted(context.Context, string)       {}
func (noopService) PipelineFailed(context.Context, string, error)   {}
func (noopService) BatchFinished(context.Context, string, int, int) {}
func (noopService) TestNotification(context.Context) error          { return nil }
