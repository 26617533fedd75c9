package textutil

import "testing"

func TestSanitizeFileName(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"Some.Film.2024", "Some.Film.2024"},
		{"a/b\\c:d", "a-b-c-d"},
		{"what?.mkv", "what.mkv"},
		{"<angle>|pipe\"quote", "anglepipequote"},
		{"  padded  ", "padded"},
		{"", ""},
	}
	for _, tc := range tests {
		if got := SanitizeFileName(tc.input); got != tc.expected {
			t.Errorf("SanitizeFileName(%q) = %q, want %q", tc.input, got, tc.expected)
		}
	}
}
