// Package workflow runs the daemon's worker pool: it claims queue entries,
// executes one pipeline stage per claim, and applies the retry policy to
// failures.
package workflow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"gantry/internal/config"
	"gantry/internal/logging"
	"gantry/internal/pipeline"
	"gantry/internal/queue"
	"gantry/internal/retry"
	"gantry/internal/services"
)

// Notifier receives pipeline lifecycle events. All methods must be safe for
// concurrent use.
type Notifier interface {
	PipelineCompleted(ctx context.Context, releaseName string)
	PipelineFailed(ctx context.Context, releaseName string, err error)
	BatchFinished(ctx context.Context, name string, success, failed int)
}

// Manager owns the worker pool and the stale-entry reclaim loop.
type Manager struct {
	cfg      *config.Config
	store    *queue.Store
	executor *pipeline.Executor
	policy   retry.Policy
	notifier Notifier
	logger   *slog.Logger

	mu      sync.Mutex
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	running bool

	notifiedBatches sync.Map
}

// NewManager wires the worker pool. The notifier may be nil.
func NewManager(cfg *config.Config, store *queue.Store, executor *pipeline.Executor, notifier Notifier, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Manager{
		cfg:      cfg,
		store:    store,
		executor: executor,
		policy:   retry.FromConfig(cfg),
		notifier: notifier,
		logger:   logger,
	}
}

// Start resets entries orphaned by a previous run and launches the workers.
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.running {
		return errors.New("workflow manager already started")
	}

	reset, err := m.store.ResetStuckProcessing(ctx)
	if err != nil {
		return fmt.Errorf("reset stuck entries: %w", err)
	}
	if reset > 0 {
		m.logger.Info("requeued entries left processing by previous run", "count", reset)
	}

	runCtx, cancel := context.WithCancel(ctx)
	m.cancel = cancel
	m.running = true

	workers := m.cfg.Workflow.Workers
	if workers < 1 {
		workers = 1
	}
	for i := 0; i < workers; i++ {
		m.wg.Add(1)
		go func(id int) {
			defer m.wg.Done()
			m.workerLoop(runCtx, id)
		}(i)
	}

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		m.reclaimLoop(runCtx)
	}()

	m.logger.Info("workflow manager started", "workers", workers)
	return nil
}

// Stop cancels the workers and waits for in-flight stages to finish.
func (m *Manager) Stop() {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return
	}
	m.running = false
	cancel := m.cancel
	m.mu.Unlock()

	cancel()
	m.wg.Wait()
	m.logger.Info("workflow manager stopped")
}

func (m *Manager) pollInterval() time.Duration {
	if m.cfg.Workflow.QueuePollInterval > 0 {
		return time.Duration(m.cfg.Workflow.QueuePollInterval) * time.Second
	}
	return 5 * time.Second
}

func (m *Manager) workerLoop(ctx context.Context, workerID int) {
	logger := m.logger.With("worker", workerID)
	for {
		if ctx.Err() != nil {
			return
		}

		entry, err := m.store.ClaimNext(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			logger.Error("claim queue entry", logging.Error(err))
			entry = nil
		}
		if entry == nil {
			select {
			case <-ctx.Done():
				return
			case <-time.After(m.pollInterval()):
			}
			continue
		}

		m.processClaim(ctx, logger, entry)
	}
}

// processClaim runs one stage for the claimed entry and performs the matching
// queue transition. Cancellation requests are observed through the heartbeat
// and take effect at the stage boundary.
func (m *Manager) processClaim(ctx context.Context, logger *slog.Logger, entry *queue.Entry) {
	ctx = services.WithFileID(ctx, entry.FileID)
	if entry.BatchID != "" {
		ctx = services.WithBatchID(ctx, entry.BatchID)
	}
	logger = logging.WithContext(ctx, logger)

	var (
		stageCtx    context.Context
		stageCancel context.CancelFunc
	)
	if m.cfg.Workflow.StageTimeout > 0 {
		stageCtx, stageCancel = context.WithTimeout(ctx, time.Duration(m.cfg.Workflow.StageTimeout)*time.Second)
	} else {
		stageCtx, stageCancel = context.WithCancel(ctx)
	}
	defer stageCancel()

	cancelled := m.startHeartbeat(ctx, entry.ID, stageCancel)
	result, stageErr := m.executor.ExecuteNext(stageCtx, entry)
	wasCancelled := cancelled()

	if wasCancelled {
		// Finalize even when shutdown raced the cancellation.
		ctx := context.WithoutCancel(ctx)
		if err := m.store.CancelAbandoned(ctx, entry.ID, true); err != nil {
			logger.Error("finalize cancelled entry", logging.Error(err))
		}
		logger.Info("entry cancelled at stage boundary", logging.FieldQueueEntryID, entry.ID)
		m.maybeNotifyBatch(ctx, entry.BatchID)
		return
	}

	if stageErr != nil {
		if ctx.Err() != nil {
			// Shutdown interrupted the stage. Park the entry as pending
			// without burning an attempt so the next run resumes it.
			parkCtx := context.WithoutCancel(ctx)
			if err := m.store.CancelAbandoned(parkCtx, entry.ID, false); err != nil {
				logger.Error("park interrupted entry", logging.Error(err))
			}
			logger.Info("entry parked for restart", logging.FieldQueueEntryID, entry.ID)
			return
		}
		m.handleFailure(ctx, logger, entry, stageErr)
		return
	}

	switch result {
	case pipeline.ResultAdvanced:
		if err := m.store.RequeueForNextStage(ctx, entry.ID); err != nil {
			logger.Error("requeue for next stage", logging.Error(err))
		}
	case pipeline.ResultCompleted:
		if err := m.store.Complete(ctx, entry.ID, queue.OutcomeCompleted); err != nil {
			logger.Error("complete entry", logging.Error(err))
			return
		}
		m.notifyCompleted(ctx, entry.FileID)
		m.maybeNotifyBatch(ctx, entry.BatchID)
	case pipeline.ResultDuplicate:
		if err := m.store.Complete(ctx, entry.ID, queue.OutcomeDuplicate); err != nil {
			logger.Error("complete duplicate entry", logging.Error(err))
			return
		}
		m.maybeNotifyBatch(ctx, entry.BatchID)
	}
}

func (m *Manager) handleFailure(ctx context.Context, logger *slog.Logger, entry *queue.Entry, stageErr error) {
	attempts := entry.Attempts + 1
	decision := m.policy.Decide(attempts, entry.MaxAttempts, stageErr)

	if decision.Requeue {
		if err := m.store.Fail(ctx, entry.ID, stageErr.Error(), &decision.Delay); err != nil {
			logger.Error("schedule retry", logging.Error(err))
			return
		}
		if err := m.executor.RecordFailure(ctx, entry.FileID, stageErr, false); err != nil {
			logger.Error("record retryable failure", logging.Error(err))
		}
		logger.Warn("stage failed, retry scheduled",
			"attempt", attempts,
			"max_attempts", entry.MaxAttempts,
			"delay", decision.Delay.String(),
			logging.Error(stageErr),
		)
		return
	}

	if err := m.store.Fail(ctx, entry.ID, stageErr.Error(), nil); err != nil {
		logger.Error("record terminal failure", logging.Error(err))
		return
	}
	if err := m.executor.RecordFailure(ctx, entry.FileID, stageErr, true); err != nil {
		logger.Error("record failed file", logging.Error(err))
	}
	logger.Error("stage failed permanently", "attempts", attempts, logging.Error(stageErr))
	m.notifyFailed(ctx, entry.FileID, stageErr)
	m.maybeNotifyBatch(ctx, entry.BatchID)
}

// startHeartbeat refreshes the entry's heartbeat until the stage finishes and
// cancels the stage context when a cancellation request appears. The returned
// function stops the heartbeat and reports whether cancellation was observed.
func (m *Manager) startHeartbeat(ctx context.Context, entryID int64, stageCancel context.CancelFunc) func() bool {
	interval := time.Duration(m.cfg.Workflow.HeartbeatInterval) * time.Second
	if interval <= 0 {
		interval = 15 * time.Second
	}

	done := make(chan struct{})
	observed := make(chan bool, 1)

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		cancelSeen := false
		defer func() { observed <- cancelSeen }()
		for {
			select {
			case <-done:
				return
			case <-ctx.Done():
				return
			case <-ticker.C:
				cancelRequested, err := m.store.Heartbeat(ctx, entryID)
				if err != nil {
					m.logger.Warn("heartbeat update failed", logging.FieldQueueEntryID, entryID, logging.Error(err))
					continue
				}
				if cancelRequested && !cancelSeen {
					cancelSeen = true
					stageCancel()
				}
			}
		}
	}()

	return func() bool {
		close(done)
		cancelSeen := <-observed

		// The flag may have been set after the final heartbeat; check once
		// more so a cancel racing the stage end is not lost.
		if !cancelSeen {
			if flag, err := m.store.Heartbeat(context.WithoutCancel(ctx), entryID); err == nil && flag {
				cancelSeen = true
			}
		}
		return cancelSeen
	}
}

// reclaimLoop returns entries whose worker stopped heartbeating to pending.
func (m *Manager) reclaimLoop(ctx context.Context) {
	timeout := time.Duration(m.cfg.Workflow.HeartbeatTimeout) * time.Second
	if timeout <= 0 {
		timeout = 2 * time.Minute
	}
	interval := timeout / 2

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			reclaimed, err := m.store.ReclaimStaleProcessing(ctx, time.Now().Add(-timeout))
			if err != nil {
				if ctx.Err() == nil {
					m.logger.Error("reclaim stale entries", logging.Error(err))
				}
				continue
			}
			if reclaimed > 0 {
				m.logger.Warn("reclaimed entries with stale heartbeats", "count", reclaimed)
			}
		}
	}
}

func (m *Manager) notifyCompleted(ctx context.Context, fileID int64) {
	if m.notifier == nil {
		return
	}
	if file, err := m.store.GetFile(ctx, fileID); err == nil && file != nil {
		m.notifier.PipelineCompleted(ctx, file.ReleaseName)
	}
}

func (m *Manager) notifyFailed(ctx context.Context, fileID int64, failure error) {
	if m.notifier == nil {
		return
	}
	name := fmt.Sprintf("file %d", fileID)
	if file, err := m.store.GetFile(ctx, fileID); err == nil && file != nil && file.ReleaseName != "" {
		name = file.ReleaseName
	}
	m.notifier.PipelineFailed(ctx, name, failure)
}

// maybeNotifyBatch sends the batch summary once the batch reaches a terminal
// status. Each batch is announced at most once per process.
func (m *Manager) maybeNotifyBatch(ctx context.Context, batchID string) {
	if m.notifier == nil || batchID == "" {
		return
	}
	job, err := m.store.GetBatch(ctx, batchID)
	if err != nil || job == nil || !job.Status.IsTerminal() {
		return
	}
	if _, announced := m.notifiedBatches.LoadOrStore(batchID, struct{}{}); announced {
		return
	}
	name := job.Name
	if name == "" {
		name = job.ID
	}
	m.notifier.BatchFinished(ctx, name, job.SuccessCount, job.FailedCount)
}
