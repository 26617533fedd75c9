// Package tracker implements the HTTP client for tracker upload APIs: catalog
// retrieval, duplicate search, and release publication.
package tracker

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gantry/internal/config"
	"gantry/internal/queue"
	"gantry/internal/services"
)

const userAgent = "Gantry-Go/0.1.0"

// Client talks to a single tracker's HTTP API.
type Client struct {
	tracker config.Tracker
	client  *http.Client
}

// NewClient builds a client for the given tracker configuration.
func NewClient(tracker config.Tracker) *Client {
	return &Client{
		tracker: tracker,
		client:  &http.Client{Timeout: 60 * time.Second},
	}
}

// Name returns the tracker identifier this client serves.
func (c *Client) Name() string {
	return c.tracker.Name
}

type catalogItem struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

// FetchTags retrieves the tracker's tag catalog.
func (c *Client) FetchTags(ctx context.Context) ([]queue.ReferenceEntry, error) {
	return c.fetchCatalog(ctx, "tags")
}

// FetchCategories retrieves the tracker's category catalog.
func (c *Client) FetchCategories(ctx context.Context) ([]queue.ReferenceEntry, error) {
	return c.fetchCatalog(ctx, "categories")
}

func (c *Client) fetchCatalog(ctx context.Context, resource string) ([]queue.ReferenceEntry, error) {
	var items []catalogItem
	if err := c.getJSON(ctx, resource, nil, &items); err != nil {
		return nil, err
	}
	entries := make([]queue.ReferenceEntry, 0, len(items))
	for _, item := range items {
		entries = append(entries, queue.ReferenceEntry{ExternalID: item.ID, Label: item.Name})
	}
	return entries, nil
}

type searchResponse struct {
	Results []struct {
		ID   int64  `json:"id"`
		Name string `json:"name"`
	} `json:"results"`
}

// SearchRelease reports whether a release with the exact name already exists
// on the tracker.
func (c *Client) SearchRelease(ctx context.Context, releaseName string) (bool, error) {
	query := url.Values{"name": {releaseName}}
	var response searchResponse
	if err := c.getJSON(ctx, "torrents", query, &response); err != nil {
		return false, err
	}
	for _, result := range response.Results {
		if strings.EqualFold(result.Name, releaseName) {
			return true, nil
		}
	}
	return false, nil
}

// UploadRequest carries everything needed to publish one release.
type UploadRequest struct {
	ReleaseName string
	TorrentPath string
	NFOPath     string
	CategoryID  int64
	TagIDs      []int64
}

// Upload publishes a release. The torrent file is required; the NFO is
// attached when present.
func (c *Client) Upload(ctx context.Context, req UploadRequest) error {
	if strings.TrimSpace(req.TorrentPath) == "" {
		return services.Wrap(services.ErrValidation, "upload", "build request", "torrent path is empty", nil)
	}

	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)

	if err := attachFile(writer, "torrent", req.TorrentPath); err != nil {
		return err
	}
	if strings.TrimSpace(req.NFOPath) != "" {
		if err := attachFile(writer, "nfo", req.NFOPath); err != nil {
			return err
		}
	}
	fields := map[string]string{"name": req.ReleaseName}
	if req.CategoryID != 0 {
		fields["category_id"] = strconv.FormatInt(req.CategoryID, 10)
	}
	for key, value := range fields {
		if err := writer.WriteField(key, value); err != nil {
			return fmt.Errorf("write field %q: %w", key, err)
		}
	}
	for _, id := range req.TagIDs {
		if err := writer.WriteField("tag_ids[]", strconv.FormatInt(id, 10)); err != nil {
			return fmt.Errorf("write tag field: %w", err)
		}
	}
	if err := writer.Close(); err != nil {
		return fmt.Errorf("finalize multipart body: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint("torrents"), body)
	if err != nil {
		return fmt.Errorf("build upload request: %w", err)
	}
	httpReq.Header.Set("Content-Type", writer.FormDataContentType())
	c.decorate(httpReq)

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return services.Wrap(services.ErrUnavailable, "upload", "post torrent", c.tracker.Name+" unreachable", err)
	}
	defer resp.Body.Close()

	return c.checkStatus(resp, "upload", "post torrent")
}

func (c *Client) getJSON(ctx context.Context, resource string, query url.Values, out any) error {
	endpoint := c.endpoint(resource)
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return fmt.Errorf("build request for %s: %w", resource, err)
	}
	c.decorate(req)

	resp, err := c.client.Do(req)
	if err != nil {
		return services.Wrap(services.ErrUnavailable, "", "get "+resource, c.tracker.Name+" unreachable", err)
	}
	defer resp.Body.Close()

	if err := c.checkStatus(resp, "", "get "+resource); err != nil {
		return err
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s response: %w", resource, err)
	}
	return nil
}

func (c *Client) decorate(req *http.Request) {
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "application/json")
	if c.tracker.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.tracker.APIKey)
	}
}

func (c *Client) endpoint(resource string) string {
	return strings.TrimRight(c.tracker.BaseURL, "/") + "/" + resource
}

// checkStatus maps HTTP failures onto the retry classification: auth problems
// are configuration errors, conflicts are duplicates, other 4xx are
// validation, and 5xx stays retryable.
func (c *Client) checkStatus(resp *http.Response, stage, operation string) error {
	if resp.StatusCode < 300 {
		return nil
	}

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
	detail := fmt.Sprintf("%s returned %d: %s", c.tracker.Name, resp.StatusCode, strings.TrimSpace(string(body)))

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return services.Wrap(services.ErrConfiguration, stage, operation, detail, nil)
	case resp.StatusCode == http.StatusConflict:
		return services.Wrap(services.ErrDuplicate, stage, operation, detail, nil)
	case resp.StatusCode >= 400 && resp.StatusCode < 500:
		return services.Wrap(services.ErrValidation, stage, operation, detail, nil)
	default:
		return services.Wrap(services.ErrExternalTool, stage, operation, detail, nil)
	}
}

func attachFile(writer *multipart.Writer, field, path string) error {
	file, err := os.Open(path)
	if err != nil {
		return services.Wrap(services.ErrValidation, "upload", "attach "+field, fmt.Sprintf("open %s", path), err)
	}
	defer file.Close()

	part, err := writer.CreateFormFile(field, filepath.Base(path))
	if err != nil {
		return fmt.Errorf("create %s part: %w", field, err)
	}
	if _, err := io.Copy(part, file); err != nil {
		return fmt.Errorf("copy %s contents: %w", field, err)
	}
	return nil
}
