package stages

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"gantry/internal/config"
	"gantry/internal/language"
	"gantry/internal/logging"
	"gantry/internal/pipeline"
	"gantry/internal/queue"
	"gantry/internal/services"
	"gantry/internal/textutil"
)

// MetadataBuilder writes the NFO description and builds the torrent file in
// the output directory.
type MetadataBuilder struct {
	cfg    *config.Config
	logger *slog.Logger
}

// NewMetadataBuilder builds the generate_metadata stage implementation.
func NewMetadataBuilder(cfg *config.Config, logger *slog.Logger) *MetadataBuilder {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &MetadataBuilder{cfg: cfg, logger: logger}
}

// Build produces release.nfo and release.torrent next to each other under the
// output directory. Rebuilding after a retry overwrites stale artifacts.
func (b *MetadataBuilder) Build(ctx context.Context, entry *queue.FileEntry, media *pipeline.MediaInfo) (pipeline.Artifacts, error) {
	name := textutil.SanitizeFileName(strings.TrimSpace(entry.ReleaseName))
	if name == "" {
		return pipeline.Artifacts{}, services.Wrap(services.ErrValidation, "generate_metadata", "check inputs", "release name not set", nil)
	}

	outputDir := b.cfg.Paths.OutputDir
	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return pipeline.Artifacts{}, services.Wrap(services.ErrTransient, "generate_metadata", "prepare output", "create output directory", err)
	}

	nfoPath := filepath.Join(outputDir, name+".nfo")
	if err := os.WriteFile(nfoPath, []byte(b.renderNFO(entry, media)), 0o644); err != nil {
		return pipeline.Artifacts{}, services.Wrap(services.ErrTransient, "generate_metadata", "write nfo", "write nfo file", err)
	}

	torrentPath := filepath.Join(outputDir, name+".torrent")
	if err := b.buildTorrent(ctx, entry.SourcePath, torrentPath); err != nil {
		return pipeline.Artifacts{}, err
	}

	b.logger.Info("metadata artifacts built", "torrent", torrentPath, "nfo", nfoPath)
	return pipeline.Artifacts{TorrentPath: torrentPath, NFOPath: nfoPath}, nil
}

func (b *MetadataBuilder) renderNFO(entry *queue.FileEntry, media *pipeline.MediaInfo) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Release ... : %s\n", entry.ReleaseName)
	fmt.Fprintf(&sb, "File ...... : %s\n", filepath.Base(entry.SourcePath))

	if facts, err := pipeline.DecodeFacts(entry); err == nil && facts.Scan != nil {
		fmt.Fprintf(&sb, "Size ...... : %s\n", humanize.IBytes(uint64(facts.Scan.SizeBytes)))
		fmt.Fprintf(&sb, "SHA-256 ... : %s\n", facts.Scan.ContentHash)
	}
	if media != nil {
		fmt.Fprintf(&sb, "Container . : %s\n", media.Container)
		fmt.Fprintf(&sb, "Video ..... : %s %s\n", media.VideoCodec, media.Resolution())
		if media.AudioCodec != "" {
			fmt.Fprintf(&sb, "Audio ..... : %s %dch\n", media.AudioCodec, media.AudioChannels)
		}
		if len(media.Languages) > 0 {
			names := make([]string, 0, len(media.Languages))
			for _, code := range language.NormalizeList(media.Languages) {
				names = append(names, language.DisplayName(code))
			}
			fmt.Fprintf(&sb, "Languages . : %s\n", strings.Join(names, ", "))
		}
		if media.DurationSeconds > 0 {
			fmt.Fprintf(&sb, "Duration .. : %s\n", (time.Duration(media.DurationSeconds) * time.Second).String())
		}
	}
	return sb.String()
}

// buildTorrent shells out to the configured torrent tool with every tracker's
// announce URL. Stale torrents from a failed attempt are removed first since
// the tool refuses to overwrite.
func (b *MetadataBuilder) buildTorrent(ctx context.Context, sourcePath, torrentPath string) error {
	if err := os.Remove(torrentPath); err != nil && !os.IsNotExist(err) {
		return services.Wrap(services.ErrTransient, "generate_metadata", "clean torrent", "remove stale torrent", err)
	}

	args := []string{"-p"}
	for _, tracker := range b.cfg.Trackers {
		if strings.TrimSpace(tracker.AnnounceURL) != "" {
			args = append(args, "-a", tracker.AnnounceURL)
		}
	}
	args = append(args, "-o", torrentPath, sourcePath)

	cmd := exec.CommandContext(ctx, b.cfg.TorrentBinary(), args...)
	output, err := cmd.CombinedOutput()
	if err != nil {
		if errors.Is(err, exec.ErrNotFound) || errors.Is(err, fs.ErrNotExist) {
			return services.Wrap(services.ErrConfiguration, "generate_metadata", "mktorrent",
				fmt.Sprintf("torrent tool %q not found", b.cfg.TorrentBinary()), err)
		}
		return services.Wrap(services.ErrExternalTool, "generate_metadata", "mktorrent",
			strings.TrimSpace(string(output)), err)
	}
	return nil
}
