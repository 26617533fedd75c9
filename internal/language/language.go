// Package language normalizes the language tags ffprobe reports on media
// streams. Stream tags arrive as ISO 639-1 or 639-2 codes or English word
// forms; the analyze stage stores the canonical two-letter code and the NFO
// renders the display name.
package language

import "strings"

// lang couples an ISO 639-1 code with its display name.
type lang struct {
	code    string
	display string
}

// byTag maps every accepted spelling of a language to its canonical entry:
// the ISO 639-1 code, the ISO 639-2 terminology and bibliographic codes,
// and the English word form.
var byTag = map[string]lang{}

func register(code, display string, aliases ...string) {
	entry := lang{code: code, display: display}
	byTag[code] = entry
	for _, alias := range aliases {
		byTag[alias] = entry
	}
}

func init() {
	register("en", "English", "eng", "english")
	register("es", "Spanish", "spa", "spanish")
	register("fr", "French", "fra", "fre", "french")
	register("de", "German", "deu", "ger", "german")
	register("it", "Italian", "ita", "italian")
	register("pt", "Portuguese", "por", "portuguese")
	register("ja", "Japanese", "jpn", "japanese")
	register("ko", "Korean", "kor", "korean")
	register("zh", "Chinese", "zho", "chi", "chinese")
	register("ru", "Russian", "rus", "russian")
	register("ar", "Arabic", "ara", "arabic")
	register("hi", "Hindi", "hin", "hindi")
	register("nl", "Dutch", "nld", "dut", "dutch")
	register("pl", "Polish", "pol", "polish")
	register("sv", "Swedish", "swe", "swedish")
	register("da", "Danish", "dan", "danish")
	register("no", "Norwegian", "nor", "norwegian")
	register("fi", "Finnish", "fin", "finnish")
}

// normalize maps any recognized spelling to its ISO 639-1 code. Unrecognized
// values pass through lowercased so rare languages survive intact.
func normalize(tag string) string {
	tag = strings.ToLower(strings.TrimSpace(tag))
	if tag == "" {
		return ""
	}
	if entry, ok := byTag[tag]; ok {
		return entry.code
	}
	return tag
}

// DisplayName returns a human-readable name for a language tag. Empty input
// reads as "Unknown"; unrecognized codes are uppercased rather than hidden.
func DisplayName(tag string) string {
	tag = strings.ToLower(strings.TrimSpace(tag))
	if tag == "" {
		return "Unknown"
	}
	if entry, ok := byTag[tag]; ok {
		return entry.display
	}
	return strings.ToUpper(tag)
}

// tagKeys lists the stream tag keys ffmpeg emits for languages, in
// preference order.
var tagKeys = []string{"language", "language_ietf", "lang"}

// ExtractFromTags pulls the language value out of a stream's metadata tags.
// Muxers disagree on key casing and some pad values with NULs, so matching
// is case-insensitive and the value is scrubbed before use.
func ExtractFromTags(tags map[string]string) string {
	for _, key := range tagKeys {
		for tagKey, value := range tags {
			if !strings.EqualFold(tagKey, key) {
				continue
			}
			value = strings.TrimSpace(strings.ReplaceAll(value, "\x00", ""))
			if value != "" {
				return strings.ToLower(value)
			}
		}
	}
	return ""
}

// NormalizeList collapses raw stream tag values into deduplicated ISO 639-1
// codes, preserving first-seen order.
func NormalizeList(tags []string) []string {
	if len(tags) == 0 {
		return nil
	}
	codes := make([]string, 0, len(tags))
	seen := make(map[string]struct{}, len(tags))
	for _, tag := range tags {
		code := normalize(tag)
		if code == "" {
			continue
		}
		if _, ok := seen[code]; ok {
			continue
		}
		seen[code] = struct{}{}
		codes = append(codes, code)
	}
	return codes
}
