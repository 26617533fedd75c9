// Package batch groups related files into one tracked submission and fans the
// members out to the processing queue.
package batch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"gantry/internal/config"
	"gantry/internal/fileutil"
	"gantry/internal/logging"
	"gantry/internal/queue"
	"gantry/internal/services"
)

// Coordinator submits and cancels batch jobs.
type Coordinator struct {
	store  *queue.Store
	cfg    *config.Config
	logger *slog.Logger
}

// SubmitOptions configures one batch submission. Zero values fall back to the
// workflow defaults from the configuration.
type SubmitOptions struct {
	Name          string
	Priority      queue.Priority
	MaxConcurrent int
	MaxAttempts   int
	SkipApproval  bool

	// CopyToStaging copies each source into the staging directory with an
	// integrity-verified copy and queues the staged copy instead of the
	// original.
	CopyToStaging bool
}

// Status is a batch job together with its live queue entries.
type Status struct {
	Job     *queue.BatchJob
	Entries []*queue.Entry
}

// NewCoordinator builds a coordinator over the queue store.
func NewCoordinator(store *queue.Store, cfg *config.Config, logger *slog.Logger) *Coordinator {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Coordinator{store: store, cfg: cfg, logger: logger}
}

// Submit registers every source path and enqueues the whole set as one batch.
// The submission is atomic: when any member is already queued, no batch and no
// entries are created.
func (c *Coordinator) Submit(ctx context.Context, paths []string, opts SubmitOptions) (*queue.BatchJob, error) {
	if len(paths) == 0 {
		return nil, queue.ErrEmptyBatch
	}

	fileIDs := make([]int64, 0, len(paths))
	for _, path := range paths {
		if opts.CopyToStaging {
			staged, err := fileutil.IngestInto(path, c.cfg.Paths.StagingDir)
			if err != nil {
				return nil, fmt.Errorf("stage %q: %w", path, err)
			}
			path = staged
		}
		file, err := c.store.NewFile(ctx, path)
		if err != nil {
			return nil, fmt.Errorf("register %q: %w", path, err)
		}
		fileIDs = append(fileIDs, file.ID)
	}

	batchOpts := queue.BatchOptions{
		Name:          opts.Name,
		Priority:      opts.Priority,
		MaxConcurrent: opts.MaxConcurrent,
		MaxAttempts:   opts.MaxAttempts,
		SkipApproval:  opts.SkipApproval,
	}
	if batchOpts.MaxConcurrent <= 0 {
		batchOpts.MaxConcurrent = c.cfg.Workflow.BatchMaxConcurrent
	}
	if batchOpts.MaxAttempts <= 0 {
		batchOpts.MaxAttempts = c.cfg.Workflow.MaxAttempts
	}

	job, err := c.store.NewBatch(ctx, fileIDs, batchOpts)
	if err != nil {
		return nil, err
	}

	logger := logging.WithContext(services.WithBatchID(ctx, job.ID), c.logger)
	logger.Info("batch submitted",
		logging.FieldBatchID, job.ID,
		"members", job.TotalCount,
		"priority", string(job.Priority),
		"max_concurrent", job.MaxConcurrent,
	)
	return job, nil
}

// Cancel requests cancellation for every non-terminal member of the batch and
// returns how many members were affected. Pending members leave the queue
// immediately; processing members stop at the next stage boundary.
func (c *Coordinator) Cancel(ctx context.Context, batchID string) (int, error) {
	job, err := c.store.GetBatch(ctx, batchID)
	if err != nil {
		return 0, err
	}
	if job == nil {
		return 0, services.Wrap(services.ErrNotFound, "", "cancel batch", fmt.Sprintf("batch %s not found", batchID), nil)
	}

	entries, err := c.store.EntriesForBatch(ctx, batchID)
	if err != nil {
		return 0, err
	}

	cancelled := 0
	var firstErr error
	for _, entry := range entries {
		if entry.Status.IsTerminal() {
			continue
		}
		changed, err := c.store.RequestCancel(ctx, entry.ID)
		if err != nil {
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		if changed {
			cancelled++
		}
	}
	if cancelled > 0 {
		c.logger.Info("batch cancellation requested", logging.FieldBatchID, batchID, "members", cancelled)
	}
	return cancelled, firstErr
}

// Get returns the batch job with its queue entries.
func (c *Coordinator) Get(ctx context.Context, batchID string) (*Status, error) {
	job, err := c.store.GetBatch(ctx, batchID)
	if err != nil {
		return nil, err
	}
	if job == nil {
		return nil, services.Wrap(services.ErrNotFound, "", "get batch", fmt.Sprintf("batch %s not found", batchID), nil)
	}
	entries, err := c.store.EntriesForBatch(ctx, batchID)
	if err != nil {
		return nil, err
	}
	return &Status{Job: job, Entries: entries}, nil
}

// List returns all batch jobs, newest first.
func (c *Coordinator) List(ctx context.Context) ([]*queue.BatchJob, error) {
	return c.store.ListBatches(ctx)
}

// IsNotFound reports whether the error marks a missing batch.
func IsNotFound(err error) bool {
	return errors.Is(err, services.ErrNotFound)
}
