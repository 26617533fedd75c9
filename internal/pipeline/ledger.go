package pipeline

import (
	"errors"
	"fmt"
	"time"

	"gantry/internal/queue"
)

// ErrCheckpointOrder is returned when a stage is marked complete before all
// preceding stages.
var ErrCheckpointOrder = errors.New("checkpoint out of order")

// ErrCheckpointSet is returned when a stage checkpoint is written twice.
var ErrCheckpointSet = errors.New("checkpoint already set")

func checkpointFor(entry *queue.FileEntry, stage Stage) **time.Time {
	switch stage {
	case StageScan:
		return &entry.ScannedAt
	case StageAnalyze:
		return &entry.AnalyzedAt
	case StageRename:
		return &entry.RenamedAt
	case StageMetadata:
		return &entry.MetadataGeneratedAt
	case StageUpload:
		return &entry.UploadedAt
	default:
		return nil
	}
}

// StageComplete reports whether the stage checkpoint is recorded on the entry.
func StageComplete(entry *queue.FileEntry, stage Stage) bool {
	field := checkpointFor(entry, stage)
	return field != nil && *field != nil
}

// MarkStageComplete records the checkpoint timestamp for a stage. A checkpoint
// is written exactly once, and only after every earlier stage has its own
// checkpoint.
func MarkStageComplete(entry *queue.FileEntry, stage Stage, at time.Time) error {
	field := checkpointFor(entry, stage)
	if field == nil {
		return fmt.Errorf("unknown stage %q", stage)
	}
	if *field != nil {
		return fmt.Errorf("stage %s: %w", stage, ErrCheckpointSet)
	}
	for _, earlier := range stageOrder[:stage.index()] {
		if !StageComplete(entry, earlier) {
			return fmt.Errorf("stage %s before %s: %w", stage, earlier, ErrCheckpointOrder)
		}
	}
	ts := at.UTC()
	*field = &ts
	return nil
}

// NextIncompleteStage returns the first stage without a checkpoint. ok is false
// when every stage has already completed.
func NextIncompleteStage(entry *queue.FileEntry) (Stage, bool) {
	for _, stage := range stageOrder {
		if !StageComplete(entry, stage) {
			return stage, true
		}
	}
	return "", false
}

// CompletedStages returns the stages with recorded checkpoints, in order.
func CompletedStages(entry *queue.FileEntry) []Stage {
	var done []Stage
	for _, stage := range stageOrder {
		if StageComplete(entry, stage) {
			done = append(done, stage)
		}
	}
	return done
}
