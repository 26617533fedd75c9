package main

import (
	"context"
	"log/slog"
	"time"

	"gantry/internal/api"
	"gantry/internal/config"
	"gantry/internal/daemon"
	"gantry/internal/logging"
	"gantry/internal/notifications"
	"gantry/internal/pipeline"
	"gantry/internal/preflight"
	"gantry/internal/queue"
	"gantry/internal/refdata"
	"gantry/internal/stages"
	"gantry/internal/tracker"
	"gantry/internal/workflow"
)

// buildDaemon wires the stage implementations, the reference catalog, and the
// background services. Preflight failures are logged but do not block startup
// so a temporarily unreachable tracker cannot keep the daemon down.
func buildDaemon(ctx context.Context, cfg *config.Config, store *queue.Store, logger *slog.Logger) (*daemon.Daemon, error) {
	for _, result := range preflight.RunAll(ctx, cfg) {
		if !result.Passed {
			logger.Warn("preflight check failed", "check", result.Name, "detail", result.Detail)
		}
	}

	cache, syncer := buildRefdata(ctx, cfg, store, logger)

	collab := pipeline.Collaborators{
		Scanner:  stages.NewScanner(logger),
		Analyzer: stages.NewAnalyzer(cfg, logger),
		Renamer:  stages.NewRenamer(),
		Metadata: stages.NewMetadataBuilder(cfg, logger),
		Uploader: stages.NewUploader(cfg, resolverOrNil(cache), logger),
	}
	executor, err := pipeline.NewExecutor(store, cfg, collab, logger)
	if err != nil {
		return nil, err
	}

	notifier := notifications.NewService(cfg)
	manager := workflow.NewManager(cfg, store, executor, notifier, logger)
	server := api.NewServer(cfg, store, logger)

	return daemon.New(cfg, store, logger, manager, server, syncer)
}

// buildRefdata restores the persisted catalog snapshot and prepares the
// periodic syncer against the primary tracker. Returns nils when no tracker
// is configured.
func buildRefdata(ctx context.Context, cfg *config.Config, store *queue.Store, logger *slog.Logger) (*refdata.Cache, *refdata.Syncer) {
	if len(cfg.Trackers) == 0 {
		logger.Warn("no trackers configured, reference catalog disabled")
		return nil, nil
	}

	fetcher := tracker.NewClient(cfg.Trackers[0])
	cache := refdata.New(store, fetcher, cfg, logger)
	if err := cache.Load(ctx); err != nil {
		logger.Warn("restore reference catalog snapshot", logging.Error(err))
	}

	interval := time.Duration(cfg.ReferenceData.SyncIntervalHours) * time.Hour
	return cache, refdata.NewSyncer(cache, interval, logger)
}

func resolverOrNil(cache *refdata.Cache) stages.ReferenceResolver {
	if cache == nil {
		return nil
	}
	return cache
}
