package pipeline

import (
	"strings"

	"gantry/internal/queue"
)

// Stage identifies one step of the processing pipeline.
type Stage string

const (
	StageScan     Stage = "scan"
	StageAnalyze  Stage = "analyze"
	StageRename   Stage = "rename"
	StageMetadata Stage = "generate_metadata"
	StageUpload   Stage = "upload"
)

var stageOrder = []Stage{StageScan, StageAnalyze, StageRename, StageMetadata, StageUpload}

// Stages returns the pipeline stages in execution order.
func Stages() []Stage {
	cp := make([]Stage, len(stageOrder))
	copy(cp, stageOrder)
	return cp
}

// ParseStage converts a string into a known Stage.
func ParseStage(value string) (Stage, bool) {
	normalized := Stage(strings.ToLower(strings.TrimSpace(value)))
	for _, stage := range stageOrder {
		if stage == normalized {
			return stage, true
		}
	}
	return "", false
}

// RunningStatus returns the file status shown while the stage executes.
func (s Stage) RunningStatus() queue.FileStatus {
	switch s {
	case StageScan:
		return queue.FileScanning
	case StageAnalyze:
		return queue.FileAnalyzing
	case StageRename:
		return queue.FileRenaming
	case StageMetadata:
		return queue.FileGeneratingMetadata
	case StageUpload:
		return queue.FileUploading
	default:
		return queue.FilePending
	}
}

func (s Stage) index() int {
	for i, stage := range stageOrder {
		if stage == s {
			return i
		}
	}
	return -1
}
