package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"gantry/internal/config"
	"gantry/internal/logging"
	"gantry/internal/queue"
	"gantry/internal/services"
)

// Result describes what a single stage execution achieved.
type Result string

const (
	// ResultAdvanced means one stage completed and later stages remain.
	ResultAdvanced Result = "advanced"
	// ResultCompleted means the final stage completed.
	ResultCompleted Result = "completed"
	// ResultDuplicate means every tracker already carries the release.
	ResultDuplicate Result = "duplicate"
)

// Executor runs exactly one pipeline stage per invocation. Between stages the
// entry returns to the queue, so a restart resumes from the last recorded
// checkpoint instead of repeating finished work.
type Executor struct {
	store  *queue.Store
	cfg    *config.Config
	collab Collaborators
	logger *slog.Logger
}

// NewExecutor validates the collaborator set and builds an executor.
func NewExecutor(store *queue.Store, cfg *config.Config, collab Collaborators, logger *slog.Logger) (*Executor, error) {
	if store == nil {
		return nil, fmt.Errorf("store is required")
	}
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}
	if err := collab.validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Executor{store: store, cfg: cfg, collab: collab, logger: logger}, nil
}

// ExecuteNext runs the first stage that has no checkpoint on the claimed
// entry's file. The returned result tells the caller whether to requeue the
// entry or finish it; a returned error leaves the queue transition to the
// caller's retry policy.
func (e *Executor) ExecuteNext(ctx context.Context, item *queue.Entry) (Result, error) {
	file, err := e.store.GetFile(ctx, item.FileID)
	if err != nil {
		return "", err
	}
	if file == nil {
		return "", services.Wrap(services.ErrNotFound, "", "load file", fmt.Sprintf("file %d not found", item.FileID), nil)
	}

	stage, ok := NextIncompleteStage(file)
	if !ok {
		// Every checkpoint already recorded, nothing left to do.
		file.Status = queue.FileCompleted
		if err := e.store.UpdateFile(ctx, file); err != nil {
			return "", err
		}
		return ResultCompleted, nil
	}

	ctx = services.WithFileID(ctx, file.ID)
	ctx = services.WithStage(ctx, string(stage))
	logger := logging.WithContext(ctx, e.logger)

	file.Status = stage.RunningStatus()
	file.ErrorMessage = ""
	if err := e.store.UpdateFile(ctx, file); err != nil {
		return "", err
	}

	logger.Info("stage started", logging.FieldStage, string(stage), logging.FieldFileID, file.ID)
	started := time.Now()

	var duplicateEverywhere bool
	switch stage {
	case StageScan:
		err = e.runScan(ctx, file)
	case StageAnalyze:
		err = e.runAnalyze(ctx, file)
	case StageRename:
		err = e.runRename(ctx, file)
	case StageMetadata:
		err = e.runMetadata(ctx, file)
	case StageUpload:
		duplicateEverywhere, err = e.runUpload(ctx, file)
	default:
		err = fmt.Errorf("unknown stage %q", stage)
	}
	if err != nil {
		// Persist any partial progress (cached duplicate checks in
		// particular) so a retry does not repeat finished tracker calls.
		if updateErr := e.store.UpdateFile(ctx, file); updateErr != nil {
			logger.Warn("persist partial stage state", logging.Error(updateErr))
		}
		logger.Error("stage failed", logging.FieldStage, string(stage), logging.Error(err))
		return "", err
	}

	if err := MarkStageComplete(file, stage, time.Now()); err != nil {
		return "", err
	}

	if stage == StageUpload {
		if duplicateEverywhere {
			file.Status = queue.FileDuplicate
		} else {
			file.Status = queue.FileCompleted
		}
	}
	if err := e.store.UpdateFile(ctx, file); err != nil {
		return "", err
	}

	logger.Info("stage finished",
		logging.FieldStage, string(stage),
		logging.FieldFileID, file.ID,
		"duration", time.Since(started).Round(time.Millisecond).String(),
	)

	if stage == StageUpload {
		if duplicateEverywhere {
			return ResultDuplicate, nil
		}
		return ResultCompleted, nil
	}
	return ResultAdvanced, nil
}

// RecordFailure writes the failure message onto the file entry. Terminal
// failures move the file to failed; retryable ones return it to pending so the
// status reflects that the file is waiting rather than running.
func (e *Executor) RecordFailure(ctx context.Context, fileID int64, failure error, terminal bool) error {
	file, err := e.store.GetFile(ctx, fileID)
	if err != nil {
		return err
	}
	if file == nil {
		return nil
	}
	if terminal {
		file.SetFailed(failure.Error())
	} else {
		file.Status = queue.FilePending
		file.ErrorMessage = failure.Error()
	}
	return e.store.UpdateFile(ctx, file)
}

func (e *Executor) runScan(ctx context.Context, file *queue.FileEntry) error {
	result, err := e.collab.Scanner.Scan(ctx, file.SourcePath)
	if err != nil {
		return err
	}
	facts, err := DecodeFacts(file)
	if err != nil {
		return err
	}
	facts.Scan = result
	return EncodeFacts(file, facts)
}

func (e *Executor) runAnalyze(ctx context.Context, file *queue.FileEntry) error {
	media, err := e.collab.Analyzer.Analyze(ctx, file.SourcePath)
	if err != nil {
		return err
	}
	facts, err := DecodeFacts(file)
	if err != nil {
		return err
	}
	facts.Media = media
	return EncodeFacts(file, facts)
}

func (e *Executor) runRename(ctx context.Context, file *queue.FileEntry) error {
	facts, err := DecodeFacts(file)
	if err != nil {
		return err
	}
	if facts.Media == nil {
		return services.Wrap(services.ErrValidation, string(StageRename), "load analysis", "no media analysis recorded", nil)
	}

	names := make(map[string]string, len(e.cfg.Trackers))
	for _, tracker := range e.cfg.Trackers {
		name, err := e.collab.Renamer.ReleaseName(tracker, file, facts.Media)
		if err != nil {
			return err
		}
		names[tracker.Name] = name
	}
	if err := file.SetTrackerReleaseNames(names); err != nil {
		return err
	}
	if len(e.cfg.Trackers) > 0 {
		file.ReleaseName = names[e.cfg.Trackers[0].Name]
	}
	return nil
}

func (e *Executor) runMetadata(ctx context.Context, file *queue.FileEntry) error {
	facts, err := DecodeFacts(file)
	if err != nil {
		return err
	}
	artifacts, err := e.collab.Metadata.Build(ctx, file, facts.Media)
	if err != nil {
		return err
	}
	file.TorrentPath = artifacts.TorrentPath
	file.NFOPath = artifacts.NFOPath
	return nil
}

// runUpload publishes the release to every configured tracker that does not
// already carry it. Duplicate verdicts are cached on the file entry, so a
// retried upload only contacts trackers that have not answered yet.
func (e *Executor) runUpload(ctx context.Context, file *queue.FileEntry) (bool, error) {
	if len(e.cfg.Trackers) == 0 {
		return false, services.Wrap(services.ErrConfiguration, string(StageUpload), "select trackers", "no trackers configured", nil)
	}

	names, err := file.TrackerReleaseNames()
	if err != nil {
		return false, err
	}
	checks, err := file.DuplicateCheckResults()
	if err != nil {
		return false, err
	}

	uploaded := 0
	for _, tracker := range e.cfg.Trackers {
		releaseName := names[tracker.Name]
		if releaseName == "" {
			releaseName = file.ReleaseName
		}

		duplicate, checked := checks[tracker.Name]
		if !checked {
			duplicate, err = e.collab.Uploader.CheckDuplicate(ctx, tracker, releaseName)
			if err != nil {
				return false, err
			}
			checks[tracker.Name] = duplicate
			if err := file.SetDuplicateCheckResult(tracker.Name, duplicate); err != nil {
				return false, err
			}
		}
		if duplicate {
			continue
		}

		if err := e.collab.Uploader.Upload(ctx, tracker, file, releaseName); err != nil {
			return false, err
		}
		uploaded++
	}

	return uploaded == 0, nil
}
