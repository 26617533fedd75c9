package queue

import (
	"strings"
	"time"
)

// FileStatus represents the pipeline position of a file entry.
type FileStatus string

const (
	FilePending            FileStatus = "pending"
	FileScanning           FileStatus = "scanning"
	FileAnalyzing          FileStatus = "analyzing"
	FileRenaming           FileStatus = "renaming"
	FileGeneratingMetadata FileStatus = "generating_metadata"
	FileUploading          FileStatus = "uploading"
	FileCompleted          FileStatus = "completed"
	FileFailed             FileStatus = "failed"
	FileDuplicate          FileStatus = "duplicate"
)

var allFileStatuses = []FileStatus{
	FilePending,
	FileScanning,
	FileAnalyzing,
	FileRenaming,
	FileGeneratingMetadata,
	FileUploading,
	FileCompleted,
	FileFailed,
	FileDuplicate,
}

// AllFileStatuses returns the ordered list of known file statuses.
func AllFileStatuses() []FileStatus {
	cp := make([]FileStatus, len(allFileStatuses))
	copy(cp, allFileStatuses)
	return cp
}

// IsTerminal reports whether a file status permits no further automatic transition.
func (s FileStatus) IsTerminal() bool {
	switch s {
	case FileCompleted, FileFailed, FileDuplicate:
		return true
	default:
		return false
	}
}

// FileEntry represents one physical media file under processing.
type FileEntry struct {
	ID           int64
	SourcePath   string
	ReleaseName  string
	Status       FileStatus
	ErrorMessage string

	// Checkpoint timestamps, set exactly once and strictly in stage order.
	ScannedAt           *time.Time
	AnalyzedAt          *time.Time
	RenamedAt           *time.Time
	MetadataGeneratedAt *time.Time
	UploadedAt          *time.Time

	AnalysisJSON        string
	DuplicateChecksJSON string
	ReleaseNamesJSON    string
	TorrentPath         string
	NFOPath             string

	CreatedAt time.Time
	UpdatedAt time.Time
}

// SetFailed marks the file entry as failed with the given error message.
func (f *FileEntry) SetFailed(message string) {
	f.Status = FileFailed
	f.ErrorMessage = message
}

// Status represents the lifecycle of a queue entry.
type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

// IsTerminal reports whether a queue status permits no further automatic transition.
func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// ParseStatus converts a string into a known Status.
func ParseStatus(value string) (Status, bool) {
	normalized := Status(strings.ToLower(strings.TrimSpace(value)))
	switch normalized {
	case StatusPending, StatusProcessing, StatusCompleted, StatusFailed:
		return normalized, true
	default:
		return "", false
	}
}

// Priority orders queue entries; higher priorities are claimed first.
type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityNormal Priority = "normal"
	PriorityHigh   Priority = "high"
)

// ParsePriority converts a string into a known Priority.
func ParsePriority(value string) (Priority, bool) {
	normalized := Priority(strings.ToLower(strings.TrimSpace(value)))
	switch normalized {
	case PriorityLow, PriorityNormal, PriorityHigh:
		return normalized, true
	default:
		return "", false
	}
}

// Weight maps a priority to its stored ordering value.
func (p Priority) Weight() int {
	switch p {
	case PriorityLow:
		return 0
	case PriorityHigh:
		return 2
	default:
		return 1
	}
}

func priorityFromWeight(weight int) Priority {
	switch weight {
	case 0:
		return PriorityLow
	case 2:
		return PriorityHigh
	default:
		return PriorityNormal
	}
}

// Entry represents one scheduling record for a file entry.
type Entry struct {
	ID              int64
	FileID          int64
	BatchID         string
	Priority        Priority
	Status          Status
	Attempts        int
	MaxAttempts     int
	LastError       string
	SkipApproval    bool
	CancelRequested bool

	NotBefore     *time.Time
	AddedAt       time.Time
	StartedAt     *time.Time
	CompletedAt   *time.Time
	UpdatedAt     time.Time
	LastHeartbeat *time.Time
}

// AttemptsExhausted reports whether the entry has used its full retry budget.
func (e Entry) AttemptsExhausted() bool {
	return e.Attempts >= e.MaxAttempts
}

// BatchStatus represents the lifecycle of a batch job.
type BatchStatus string

const (
	BatchPending   BatchStatus = "pending"
	BatchRunning   BatchStatus = "running"
	BatchCompleted BatchStatus = "completed"
	BatchFailed    BatchStatus = "failed"
	BatchPartial   BatchStatus = "partial"
)

// IsTerminal reports whether a batch status permits no further automatic transition.
func (s BatchStatus) IsTerminal() bool {
	switch s {
	case BatchCompleted, BatchFailed, BatchPartial:
		return true
	default:
		return false
	}
}

// BatchJob aggregates many queue entries into one unit of work.
type BatchJob struct {
	ID            string
	Name          string
	Status        BatchStatus
	Priority      Priority
	MaxConcurrent int
	SkipApproval  bool

	TotalCount     int
	ProcessedCount int
	SuccessCount   int
	FailedCount    int

	FileIDsJSON  string
	ResultsJSON  string
	ErrorSummary string

	CreatedAt   time.Time
	UpdatedAt   time.Time
	CompletedAt *time.Time
}

// MemberOutcome labels the terminal result of one batch member.
type MemberOutcome string

const (
	OutcomeCompleted MemberOutcome = "completed"
	OutcomeFailed    MemberOutcome = "failed"
	OutcomeDuplicate MemberOutcome = "duplicate"
	OutcomeCancelled MemberOutcome = "cancelled"
)

// Succeeded reports whether the outcome counts toward a batch's success total.
func (o MemberOutcome) Succeeded() bool {
	return o == OutcomeCompleted || o == OutcomeDuplicate
}

// BatchResult records the terminal outcome of one batch member, in completion order.
type BatchResult struct {
	FileID      int64         `json:"file_id"`
	Outcome     MemberOutcome `json:"outcome"`
	Error       string        `json:"error,omitempty"`
	CompletedAt time.Time     `json:"completed_at"`
}

// ReferenceKind distinguishes the mirrored catalog tables.
type ReferenceKind string

const (
	KindTag      ReferenceKind = "tag"
	KindCategory ReferenceKind = "category"
)

// ReferenceEntry mirrors one tag or category from the external tracker catalog.
type ReferenceEntry struct {
	ID          int64
	Kind        ReferenceKind
	ExternalID  int64
	Label       string
	Slug        string
	Description string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// HealthSummary describes aggregated queue counts per key lifecycle states.
type HealthSummary struct {
	Total      int
	Pending    int
	Processing int
	Failed     int
	Completed  int
}

// DatabaseHealth captures diagnostic information about the queue database.
type DatabaseHealth struct {
	DBPath           string
	DatabaseExists   bool
	DatabaseReadable bool
	TablesPresent    []string
	MissingTables    []string
	IntegrityCheck   bool
	TotalEntries     int
	Error            string
}

// Healthy reports whether the database is readable with the full schema and a
// passing integrity check.
func (h DatabaseHealth) Healthy() bool {
	return h.DatabaseExists && h.DatabaseReadable && len(h.MissingTables) == 0 && h.IntegrityCheck
}
