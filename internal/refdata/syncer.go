package refdata

import (
	"context"
	"log/slog"
	"time"

	"gantry/internal/logging"
)

// Syncer refreshes the cache on a fixed interval until its context is
// cancelled.
type Syncer struct {
	cache    *Cache
	interval time.Duration
	logger   *slog.Logger
}

// NewSyncer builds a periodic syncer for the cache.
func NewSyncer(cache *Cache, interval time.Duration, logger *slog.Logger) *Syncer {
	if interval <= 0 {
		interval = 24 * time.Hour
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Syncer{cache: cache, interval: interval, logger: logger}
}

// Run performs an immediate sync and then one per interval. A failed sync is
// logged and retried on the next tick; lookups continue from the last
// snapshot in the meantime.
func (s *Syncer) Run(ctx context.Context) {
	s.syncOnce(ctx)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.syncOnce(ctx)
		}
	}
}

func (s *Syncer) syncOnce(ctx context.Context) {
	if err := s.cache.Sync(ctx); err != nil {
		s.logger.Warn("reference catalog sync failed, serving last snapshot", logging.Error(err))
		return
	}
	tags, categories := s.cache.Counts()
	s.logger.Info("reference catalog synced", "tags", tags, "categories", categories)
}
