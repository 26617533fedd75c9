package stages

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	"gantry/internal/config"
	"gantry/internal/logging"
	"gantry/internal/queue"
	"gantry/internal/services"
	"gantry/internal/tracker"
)

var episodeMarker = regexp.MustCompile(`(?i)s\d{1,2}(e\d{1,3})?`)

// ReferenceResolver answers catalog lookups for categories and tags.
type ReferenceResolver interface {
	ResolveCategory(label string) (queue.ReferenceEntry, error)
	ResolveTags(labels []string) ([]int64, error)
}

// Uploader publishes releases through the tracker HTTP clients.
type Uploader struct {
	clients map[string]*tracker.Client
	refs    ReferenceResolver
	tags    []string
	logger  *slog.Logger
}

// NewUploader builds one client per configured tracker. The resolver may be
// nil when no reference catalog is available; uploads then omit category and
// tag identifiers.
func NewUploader(cfg *config.Config, refs ReferenceResolver, logger *slog.Logger) *Uploader {
	if logger == nil {
		logger = logging.NewNop()
	}
	clients := make(map[string]*tracker.Client, len(cfg.Trackers))
	for _, trk := range cfg.Trackers {
		clients[strings.ToLower(trk.Name)] = tracker.NewClient(trk)
	}
	return &Uploader{
		clients: clients,
		refs:    refs,
		tags:    cfg.ReferenceData.RequiredTags,
		logger:  logger,
	}
}

// CheckDuplicate queries the tracker for an existing release with this name.
func (u *Uploader) CheckDuplicate(ctx context.Context, trk config.Tracker, releaseName string) (bool, error) {
	client, err := u.clientFor(trk)
	if err != nil {
		return false, err
	}
	return client.SearchRelease(ctx, releaseName)
}

// Upload publishes the release to one tracker. A conflict response means
// another party uploaded the same release between the duplicate check and
// now; that is treated as already-published rather than a failure.
func (u *Uploader) Upload(ctx context.Context, trk config.Tracker, entry *queue.FileEntry, releaseName string) error {
	client, err := u.clientFor(trk)
	if err != nil {
		return err
	}

	req := tracker.UploadRequest{
		ReleaseName: releaseName,
		TorrentPath: entry.TorrentPath,
		NFOPath:     entry.NFOPath,
	}
	u.attachReferences(&req, releaseName)

	if err := client.Upload(ctx, req); err != nil {
		if errors.Is(err, services.ErrDuplicate) {
			u.logger.Warn("release appeared on tracker during upload",
				logging.FieldTracker, trk.Name, "release", releaseName)
			return nil
		}
		return err
	}

	u.logger.Info("release uploaded", logging.FieldTracker, trk.Name, "release", releaseName)
	return nil
}

func (u *Uploader) clientFor(trk config.Tracker) (*tracker.Client, error) {
	client, ok := u.clients[strings.ToLower(trk.Name)]
	if !ok {
		return nil, services.Wrap(services.ErrConfiguration, "upload", "select tracker",
			fmt.Sprintf("no client for tracker %q", trk.Name), nil)
	}
	return client, nil
}

// attachReferences fills category and tag identifiers from the reference
// catalog. A missing category label downgrades to an upload without category
// rather than failing the stage; the tracker side applies its default.
func (u *Uploader) attachReferences(req *tracker.UploadRequest, releaseName string) {
	if u.refs == nil {
		return
	}

	label := categoryLabel(releaseName)
	if entry, err := u.refs.ResolveCategory(label); err == nil {
		req.CategoryID = entry.ExternalID
	} else {
		u.logger.Warn("category not in catalog, uploading without one", "category", label)
	}

	if len(u.tags) > 0 {
		ids, err := u.refs.ResolveTags(u.tags)
		if err != nil {
			u.logger.Warn("tag resolution incomplete, uploading without tags", logging.Error(err))
			return
		}
		req.TagIDs = ids
	}
}

func categoryLabel(releaseName string) string {
	if episodeMarker.MatchString(releaseName) {
		return "TV"
	}
	return "Movies"
}
