// Package textutil provides filename sanitization for artifact paths.
package textutil

import "strings"

// SanitizeFileName makes a release name safe to use as a file name.
// Path separators and drive/glob characters become dashes, characters
// that shells and SMB shares reject are dropped, and surrounding
// whitespace is trimmed.
func SanitizeFileName(name string) string {
	cleaned := strings.Map(func(r rune) rune {
		switch r {
		case '/', '\\', ':', '*':
			return '-'
		case '?', '"', '<', '>', '|':
			return -1
		}
		return r
	}, name)
	return strings.TrimSpace(cleaned)
}
