package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"gantry/internal/config"
	"gantry/internal/queue"
)

// ScanResult is the on-disk fingerprint recorded by the scan stage.
type ScanResult struct {
	SizeBytes   int64     `json:"size_bytes"`
	ContentHash string    `json:"content_hash"`
	ModTime     time.Time `json:"mod_time"`
}

// MediaInfo is the technical profile recorded by the analyze stage.
type MediaInfo struct {
	Container       string   `json:"container"`
	DurationSeconds float64  `json:"duration_seconds"`
	VideoCodec      string   `json:"video_codec"`
	Width           int      `json:"width"`
	Height          int      `json:"height"`
	AudioCodec      string   `json:"audio_codec"`
	AudioChannels   int      `json:"audio_channels"`
	Languages       []string `json:"languages,omitempty"`
}

// Resolution returns the conventional vertical resolution label.
func (m *MediaInfo) Resolution() string {
	switch {
	case m.Height >= 2000 || m.Width >= 3800:
		return "2160p"
	case m.Height >= 1000 || m.Width >= 1900:
		return "1080p"
	case m.Height >= 700 || m.Width >= 1200:
		return "720p"
	case m.Height > 0:
		return fmt.Sprintf("%dp", m.Height)
	default:
		return ""
	}
}

// FileFacts is the aggregate analysis payload persisted on a file entry.
type FileFacts struct {
	Scan  *ScanResult `json:"scan,omitempty"`
	Media *MediaInfo  `json:"media,omitempty"`
}

// DecodeFacts reads the stored analysis payload from a file entry.
func DecodeFacts(entry *queue.FileEntry) (*FileFacts, error) {
	facts := &FileFacts{}
	if strings.TrimSpace(entry.AnalysisJSON) == "" {
		return facts, nil
	}
	if err := json.Unmarshal([]byte(entry.AnalysisJSON), facts); err != nil {
		return nil, fmt.Errorf("decode analysis payload: %w", err)
	}
	return facts, nil
}

// EncodeFacts writes the analysis payload back onto a file entry.
func EncodeFacts(entry *queue.FileEntry, facts *FileFacts) error {
	data, err := json.Marshal(facts)
	if err != nil {
		return fmt.Errorf("encode analysis payload: %w", err)
	}
	entry.AnalysisJSON = string(data)
	return nil
}

// Artifacts are the files produced by the metadata stage.
type Artifacts struct {
	TorrentPath string
	NFOPath     string
}

// Scanner fingerprints a source file on disk.
type Scanner interface {
	Scan(ctx context.Context, path string) (*ScanResult, error)
}

// Analyzer probes the technical properties of a media file.
type Analyzer interface {
	Analyze(ctx context.Context, path string) (*MediaInfo, error)
}

// Renamer derives a tracker-specific release name from the analyzed file.
type Renamer interface {
	ReleaseName(tracker config.Tracker, entry *queue.FileEntry, media *MediaInfo) (string, error)
}

// MetadataBuilder produces the torrent and NFO artifacts for an upload.
type MetadataBuilder interface {
	Build(ctx context.Context, entry *queue.FileEntry, media *MediaInfo) (Artifacts, error)
}

// Uploader talks to one or more trackers.
type Uploader interface {
	// CheckDuplicate reports whether the release already exists on the tracker.
	CheckDuplicate(ctx context.Context, tracker config.Tracker, releaseName string) (bool, error)
	// Upload publishes the release to the tracker.
	Upload(ctx context.Context, tracker config.Tracker, entry *queue.FileEntry, releaseName string) error
}

// Collaborators bundles the stage implementations driven by the executor.
type Collaborators struct {
	Scanner  Scanner
	Analyzer Analyzer
	Renamer  Renamer
	Metadata MetadataBuilder
	Uploader Uploader
}

func (c Collaborators) validate() error {
	switch {
	case c.Scanner == nil:
		return fmt.Errorf("scanner is required")
	case c.Analyzer == nil:
		return fmt.Errorf("analyzer is required")
	case c.Renamer == nil:
		return fmt.Errorf("renamer is required")
	case c.Metadata == nil:
		return fmt.Errorf("metadata builder is required")
	case c.Uploader == nil:
		return fmt.Errorf("uploader is required")
	}
	return nil
}
