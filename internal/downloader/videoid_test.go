package downloader

import (
	"testing"

	"github.com/google/uuid"
)

func TestVideoID(t *testing.T) {
	tests := []struct {
		name     string
		url      string
		expected string
	}{
		{"watch url", "https://www.youtube.com/watch?v=dQw4w9WgXcQ", "dQw4w9WgXcQ"},
		{"watch url with extra params", "https://www.youtube.com/watch?v=dQw4w9WgXcQ&t=42s", "dQw4w9WgXcQ"},
		{"short link", "https://youtu.be/dQw4w9WgXcQ?si=abc", "dQw4w9WgXcQ"},
		{"shorts", "https://youtube.com/shorts/aBcD_123-x", "aBcD_123-x"},
		{"embed", "https://www.youtube.com/embed/xyz789/", "xyz789"},
		{"other query", "https://example.com/play?id=42", "42"},
		{"last path segment", "https://vimeo.com/channels/staff/76979871", "76979871"},
		{"surrounding spaces", "  https://youtu.be/abc  ", "abc"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := VideoID(tt.url); got != tt.expected {
				t.Errorf("VideoID(%q) = %q, want %q", tt.url, got, tt.expected)
			}
		})
	}
}

func TestVideoID_FallsBackToUUID(t *testing.T) {
	id := VideoID("https://example.com/")
	if _, err := uuid.Parse(id); err != nil {
		t.Errorf("Expected uuid fallback, got %q", id)
	}
}

func TestIsYouTubeURL(t *testing.T) {
	tests := []struct {
		url      string
		expected bool
	}{
		{"https://www.youtube.com/watch?v=abc", true},
		{"https://youtube.com/shorts/abc", true},
		{"https://m.youtube.com/watch?v=abc", true},
		{"https://youtu.be/abc", true},
		{"https://vimeo.com/123", false},
		{"https://notyoutube.com/watch?v=abc", false},
		{"::", false},
	}

	for _, tt := range tests {
		t.Run(tt.url, func(t *testing.T) {
			if got := IsYouTubeURL(tt.url); got != tt.expected {
				t.Errorf("IsYouTubeURL(%q) = %v, want %v", tt.url, got, tt.expected)
			}
		})
	}
}
