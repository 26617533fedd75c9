// Package refdata mirrors tracker tag and category catalogs into the local
// database and answers label lookups from an in-memory index. When the remote
// catalog is unreachable the last synced snapshot keeps serving lookups.
package refdata

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"gantry/internal/config"
	"gantry/internal/logging"
	"gantry/internal/queue"
	"gantry/internal/services"
)

// ErrUnknownReference marks a label with no catalog entry.
var ErrUnknownReference = errors.New("unknown reference label")

// Fetcher retrieves the authoritative catalog from a tracker.
type Fetcher interface {
	FetchTags(ctx context.Context) ([]queue.ReferenceEntry, error)
	FetchCategories(ctx context.Context) ([]queue.ReferenceEntry, error)
}

// Cache is the local mirror of the tracker reference catalog.
type Cache struct {
	store        *queue.Store
	fetcher      Fetcher
	logger       *slog.Logger
	requiredTags []string

	mu         sync.RWMutex
	tags       map[string]queue.ReferenceEntry
	categories map[string]queue.ReferenceEntry
	lastSync   time.Time
	stale      bool
}

// New builds a cache over the given store and fetcher. Call Load to populate
// the index from previously synced rows before serving lookups.
func New(store *queue.Store, fetcher Fetcher, cfg *config.Config, logger *slog.Logger) *Cache {
	if logger == nil {
		logger = logging.NewNop()
	}
	var required []string
	if cfg != nil {
		required = cfg.ReferenceData.RequiredTags
	}
	return &Cache{
		store:        store,
		fetcher:      fetcher,
		logger:       logger,
		requiredTags: required,
		tags:         map[string]queue.ReferenceEntry{},
		categories:   map[string]queue.ReferenceEntry{},
	}
}

// Load rebuilds the in-memory index from the database snapshot.
func (c *Cache) Load(ctx context.Context) error {
	tags, err := c.store.ListReferenceEntries(ctx, queue.KindTag)
	if err != nil {
		return err
	}
	categories, err := c.store.ListReferenceEntries(ctx, queue.KindCategory)
	if err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.tags = indexByLabel(tags)
	c.categories = indexByLabel(categories)
	if len(c.tags)+len(c.categories) > 0 {
		c.stale = true
	}
	return nil
}

// Sync fetches the remote catalog, persists it, and swaps the index. On fetch
// failure any previously loaded snapshot keeps serving and the error is
// returned for the caller to log or retry.
func (c *Cache) Sync(ctx context.Context) error {
	tags, err := c.fetcher.FetchTags(ctx)
	if err != nil {
		c.markStale()
		return fmt.Errorf("fetch tags: %w", err)
	}
	categories, err := c.fetcher.FetchCategories(ctx)
	if err != nil {
		c.markStale()
		return fmt.Errorf("fetch categories: %w", err)
	}

	if err := c.store.UpsertReferenceEntries(ctx, queue.KindTag, tags); err != nil {
		return err
	}
	if err := c.store.UpsertReferenceEntries(ctx, queue.KindCategory, categories); err != nil {
		return err
	}

	c.mu.Lock()
	c.tags = indexByLabel(tags)
	c.categories = indexByLabel(categories)
	c.lastSync = time.Now()
	c.stale = false
	c.mu.Unlock()

	c.warnMissingRequiredTags()
	return nil
}

// ResolveTag returns the catalog entry for a tag label. Lookups are
// case-insensitive; unknown labels fail permanently so a misdeclared tag does
// not burn retry attempts.
func (c *Cache) ResolveTag(label string) (queue.ReferenceEntry, error) {
	return c.resolve(label, "tag")
}

// ResolveCategory returns the catalog entry for a category label.
func (c *Cache) ResolveCategory(label string) (queue.ReferenceEntry, error) {
	return c.resolve(label, "category")
}

// ResolveTags maps tag labels to their external identifiers.
func (c *Cache) ResolveTags(labels []string) ([]int64, error) {
	ids := make([]int64, 0, len(labels))
	for _, label := range labels {
		entry, err := c.ResolveTag(label)
		if err != nil {
			return nil, err
		}
		ids = append(ids, entry.ExternalID)
	}
	return ids, nil
}

// Stale reports whether lookups are served from an old snapshot.
func (c *Cache) Stale() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.stale
}

// LastSync returns the completion time of the last successful sync.
func (c *Cache) LastSync() time.Time {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.lastSync
}

// Counts returns the number of indexed tags and categories.
func (c *Cache) Counts() (tags, categories int) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.tags), len(c.categories)
}

func (c *Cache) resolve(label, kind string) (queue.ReferenceEntry, error) {
	key := normalizeLabel(label)

	c.mu.RLock()
	index := c.tags
	if kind == "category" {
		index = c.categories
	}
	entry, ok := index[key]
	c.mu.RUnlock()

	if !ok {
		return queue.ReferenceEntry{}, services.Wrap(
			services.ErrValidation, "", "resolve "+kind,
			fmt.Sprintf("%s %q not found in catalog", kind, label),
			ErrUnknownReference,
		)
	}
	return entry, nil
}

func (c *Cache) markStale() {
	c.mu.Lock()
	if len(c.tags)+len(c.categories) > 0 {
		c.stale = true
	}
	c.mu.Unlock()
}

func (c *Cache) warnMissingRequiredTags() {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, label := range c.requiredTags {
		if _, ok := c.tags[normalizeLabel(label)]; !ok {
			c.logger.Warn("required tag missing from tracker catalog", "tag", label)
		}
	}
}

func indexByLabel(entries []queue.ReferenceEntry) map[string]queue.ReferenceEntry {
	index := make(map[string]queue.ReferenceEntry, len(entries))
	for _, entry := range entries {
		index[normalizeLabel(entry.Label)] = entry
	}
	return index
}

func normalizeLabel(label string) string {
	return strings.ToLower(strings.TrimSpace(label))
}
