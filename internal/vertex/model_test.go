package vertex

import "testing"

func TestNormalizeModel(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"gemini-2.5-flash", "google/gemini-2.5-flash"},
		{"google/gemini-2.5-flash", "google/gemini-2.5-flash"},
		{"anthropic/claude-3", "anthropic/claude-3"},
		{"", ""},
	}
	for _, tt := range tests {
		if got := NormalizeModel(tt.in); got != tt.want {
			t.Errorf("NormalizeModel(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestStripPublisher(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"google/gemini-2.5-flash", "gemini-2.5-flash"},
		{"gemini-2.5-flash", "gemini-2.5-flash"},
		{"meta/llama-3/extra", "llama-3/extra"},
	}
	for _, tt := range tests {
		if got := StripPublisher(tt.in); got != tt.want {
			t.Errorf("StripPublisher(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestPublisher(t *testing.T) {
	if got := Publisher("anthropic/claude-3"); got != "anthropic" {
		t.Errorf("Publisher() = %q, want anthropic", got)
	}
	if got := Publisher("gemini-2.5-flash"); got != DefaultPublisher {
		t.Errorf("Publisher() = %q, want %q", got, DefaultPublisher)
	}
}
