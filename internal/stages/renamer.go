package stages

import (
	"fmt"
	"path/filepath"
	"regexp"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"gantry/internal/config"
	"gantry/internal/pipeline"
	"gantry/internal/queue"
	"gantry/internal/services"
)

var (
	episodePattern = regexp.MustCompile(`(?i)^s\d{1,2}e\d{1,3}$`)
	seasonPattern  = regexp.MustCompile(`(?i)^s\d{1,2}$`)
	yearPattern    = regexp.MustCompile(`^(19|20)\d{2}$`)
	tokenSplit     = regexp.MustCompile(`[.\s_\-]+`)
)

// Renamer derives tracker release names from the source filename and the
// analyzed media profile.
type Renamer struct {
	titleCaser cases.Caser
}

// NewRenamer builds the rename stage implementation.
func NewRenamer() *Renamer {
	return &Renamer{titleCaser: cases.Title(language.Und)}
}

// ReleaseName produces the release name for one tracker. The source name is
// tokenized, title-cased, and suffixed with resolution and codec markers that
// are not already present; the tracker's naming style picks the separator.
func (r *Renamer) ReleaseName(tracker config.Tracker, entry *queue.FileEntry, media *pipeline.MediaInfo) (string, error) {
	base := strings.TrimSpace(entry.ReleaseName)
	if base == "" {
		base = strings.TrimSuffix(filepath.Base(entry.SourcePath), filepath.Ext(entry.SourcePath))
	}
	if base == "" {
		return "", services.Wrap(services.ErrValidation, "rename", "derive name", "source filename is empty", nil)
	}

	tokens := tokenSplit.Split(base, -1)
	parts := make([]string, 0, len(tokens)+2)
	var haveResolution, haveCodec bool
	codecToken := codecLabel(media.VideoCodec)

	for _, token := range tokens {
		token = strings.TrimSpace(token)
		if token == "" {
			continue
		}
		switch {
		case episodePattern.MatchString(token) || seasonPattern.MatchString(token):
			parts = append(parts, strings.ToUpper(token))
		case yearPattern.MatchString(token):
			parts = append(parts, token)
		case isResolutionToken(token):
			haveResolution = true
			parts = append(parts, strings.ToLower(token))
		case codecToken != "" && strings.EqualFold(token, codecToken):
			haveCodec = true
			parts = append(parts, codecToken)
		default:
			parts = append(parts, r.titleCaser.String(strings.ToLower(token)))
		}
	}

	if resolution := media.Resolution(); resolution != "" && !haveResolution {
		parts = append(parts, resolution)
	}
	if codecToken != "" && !haveCodec {
		parts = append(parts, codecToken)
	}

	separator, err := separatorFor(tracker)
	if err != nil {
		return "", err
	}
	return strings.Join(parts, separator), nil
}

func separatorFor(tracker config.Tracker) (string, error) {
	switch strings.ToLower(strings.TrimSpace(tracker.NamingStyle)) {
	case "", "dotted":
		return ".", nil
	case "spaced":
		return " ", nil
	default:
		return "", services.Wrap(
			services.ErrConfiguration, "rename", "select style",
			fmt.Sprintf("tracker %s has unknown naming style %q", tracker.Name, tracker.NamingStyle), nil,
		)
	}
}

func isResolutionToken(token string) bool {
	switch strings.ToLower(token) {
	case "2160p", "1080p", "720p", "576p", "480p":
		return true
	default:
		return false
	}
}

// codecLabel maps probe codec identifiers to the labels used in release names.
func codecLabel(codec string) string {
	switch strings.ToLower(strings.TrimSpace(codec)) {
	case "h264", "avc":
		return "x264"
	case "hevc", "h265":
		return "x265"
	case "av1":
		return "AV1"
	case "mpeg2video":
		return "MPEG-2"
	case "vc1":
		return "VC-1"
	case "":
		return ""
	default:
		return strings.ToUpper(codec)
	}
}
