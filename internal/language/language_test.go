package language

import (
	"reflect"
	"testing"
)

func TestDisplayName(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"en", "English"},
		{"eng", "English"},
		{"ENG", "English"},
		{"fre", "French"},
		{"fra", "French"},
		{"japanese", "Japanese"},
		{"", "Unknown"},
		{"  ", "Unknown"},
		{"xx", "XX"},
	}
	for _, tc := range tests {
		if got := DisplayName(tc.input); got != tc.expected {
			t.Errorf("DisplayName(%q) = %q, want %q", tc.input, got, tc.expected)
		}
	}
}

func TestExtractFromTags(t *testing.T) {
	tests := []struct {
		name     string
		tags     map[string]string
		expected string
	}{
		{"lowercase key", map[string]string{"language": "eng"}, "eng"},
		{"uppercase key", map[string]string{"LANGUAGE": "JPN"}, "jpn"},
		{"ietf fallback", map[string]string{"language_ietf": "en-US"}, "en-us"},
		{"nul padded", map[string]string{"language": "eng\x00\x00"}, "eng"},
		{"preferred over fallback", map[string]string{"lang": "spa", "language": "eng"}, "eng"},
		{"empty value skipped", map[string]string{"language": "  "}, ""},
		{"no tags", nil, ""},
	}
	for _, tc := range tests {
		if got := ExtractFromTags(tc.tags); got != tc.expected {
			t.Errorf("%s: ExtractFromTags = %q, want %q", tc.name, got, tc.expected)
		}
	}
}

func TestNormalizeList(t *testing.T) {
	tests := []struct {
		name     string
		input    []string
		expected []string
	}{
		{"codes collapse", []string{"eng", "en", "English "}, []string{"en"}},
		{"order preserved", []string{"jpn", "eng", "ger"}, []string{"ja", "en", "de"}},
		{"unknown passthrough", []string{"tlh", ""}, []string{"tlh"}},
		{"empty", nil, nil},
	}
	for _, tc := range tests {
		if got := NormalizeList(tc.input); !reflect.DeepEqual(got, tc.expected) {
			t.Errorf("%s: NormalizeList(%v) = %v, want %v", tc.name, tc.input, got, tc.expected)
		}
	}
}
