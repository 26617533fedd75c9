package stages

import (
	"context"
	"log/slog"
	"math"

	"gantry/internal/config"
	"gantry/internal/logging"
	"gantry/internal/media/ffprobe"
	"gantry/internal/pipeline"
	"gantry/internal/services"
)

// Analyzer probes media files with ffprobe.
type Analyzer struct {
	binary string
	logger *slog.Logger
}

// NewAnalyzer builds the analyze stage implementation.
func NewAnalyzer(cfg *config.Config, logger *slog.Logger) *Analyzer {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Analyzer{binary: cfg.FFprobeBinary(), logger: logger}
}

// Analyze runs ffprobe and distills the result into the pipeline's media
// profile. A container without a video stream is rejected permanently.
func (a *Analyzer) Analyze(ctx context.Context, path string) (*pipeline.MediaInfo, error) {
	result, err := ffprobe.Inspect(ctx, a.binary, path)
	if err != nil {
		return nil, services.Wrap(services.ErrExternalTool, "analyze", "ffprobe", "inspect media file", err)
	}

	video, ok := result.FirstVideoStream()
	if !ok {
		return nil, services.Wrap(services.ErrValidation, "analyze", "ffprobe", "no video stream found", nil)
	}

	info := &pipeline.MediaInfo{
		Container:  result.ContainerName(),
		VideoCodec: video.CodecName,
		Width:      video.Width,
		Height:     video.Height,
		Languages:  result.AudioLanguages(),
	}
	if duration := result.DurationSeconds(); duration > 0 && !math.IsNaN(duration) {
		info.DurationSeconds = duration
	}
	if audio, ok := result.FirstAudioStream(); ok {
		info.AudioCodec = audio.CodecName
		info.AudioChannels = audio.Channels
	}

	a.logger.Debug("media analyzed",
		"container", info.Container,
		"video_codec", info.VideoCodec,
		"resolution", info.Resolution(),
		"audio_codec", info.AudioCodec,
	)
	return info, nil
}
