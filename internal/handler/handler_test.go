package handler

import (
	"errors"
	"fmt"
	"sync"
	"testing"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/artur/tubegrab/internal/downloader"
	"github.com/artur/tubegrab/internal/library"
	"github.com/artur/tubegrab/internal/progress"
)

type mockSender struct {
	mu   sync.Mutex
	sent []tgbotapi.MessageConfig
}

func (s *mockSender) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if msg, ok := c.(tgbotapi.MessageConfig); ok {
		s.sent = append(s.sent, msg)
	}
	return tgbotapi.Message{}, nil
}

func (s *mockSender) Texts() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	texts := make([]string, 0, len(s.sent))
	for _, m := range s.sent {
		texts = append(texts, m.Text)
	}
	return texts
}

func commandUpdate(text string) tgbotapi.Update {
	cmdLen := len(text)
	for i, r := range text {
		if r == ' ' {
			cmdLen = i
			break
		}
	}
	return tgbotapi.Update{
		Message: &tgbotapi.Message{
			Text:     text,
			Chat:     &tgbotapi.Chat{ID: 100},
			From:     &tgbotapi.User{ID: 7, FirstName: "Ada"},
			Entities: []tgbotapi.MessageEntity{{Type: "bot_command", Offset: 0, Length: cmdLen}},
		},
	}
}

func textUpdate(text string, userID int64) tgbotapi.Update {
	return tgbotapi.Update{
		Message: &tgbotapi.Message{
			Text: text,
			Chat: &tgbotapi.Chat{ID: 100},
			From: &tgbotapi.User{ID: userID, UserName: "ada"},
		},
	}
}

func TestGetUserName(t *testing.T) {
	tests := []struct {
		name      string
		firstName string
		userName  string
		expected  string
	}{
		{
			name:      "returns first name when available",
			firstName: "Артур",
			userName:  "artur123",
			expected:  "Артур",
		},
		{
			name:      "returns username when first name is empty",
			firstName: "",
			userName:  "artur123",
			expected:  "artur123",
		},
		{
			name:      "returns empty string when both are empty",
			firstName: "",
			userName:  "",
			expected:  "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := getUserName(tt.firstName, tt.userName)
			if result != tt.expected {
				t.Errorf("getUserName(%q, %q) = %q, want %q",
					tt.firstName, tt.userName, result, tt.expected)
			}
		})
	}
}

func TestFormatGreeting(t *testing.T) {
	tests := []struct {
		name     string
		userName string
		expected string
	}{
		{"formats greeting with name", "Alice", "Hi, Alice! 👋"},
		{"formats greeting with unicode name", "Мария", "Hi, Мария! 👋"},
		{"formats greeting with empty name", "", "Hi, ! 👋"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := formatGreeting(tt.userName)
			if result != tt.expected {
				t.Errorf("formatGreeting(%q) = %q, want %q",
					tt.userName, result, tt.expected)
			}
		})
	}
}

func TestExtractURL(t *testing.T) {
	tests := []struct {
		name     string
		text     string
		expected string
	}{
		{
			name:     "extracts youtube.com/watch",
			text:     "https://www.youtube.com/watch?v=dQw4w9WgXcQ",
			expected: "https://www.youtube.com/watch?v=dQw4w9WgXcQ",
		},
		{
			name:     "extracts link inside text",
			text:     "look at this https://youtu.be/dQw4w9WgXcQ please",
			expected: "https://youtu.be/dQw4w9WgXcQ",
		},
		{
			name:     "extracts non-youtube link",
			text:     "http://example.com/video.mp4",
			expected: "http://example.com/video.mp4",
		},
		{
			name:     "returns empty for plain text",
			text:     "hello there",
			expected: "",
		},
		{
			name:     "returns empty for empty string",
			text:     "",
			expected: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := extractURL(tt.text)
			if result != tt.expected {
				t.Errorf("extractURL(%q) = %q, want %q",
					tt.text, result, tt.expected)
			}
		})
	}
}

func TestRejectionText(t *testing.T) {
	tests := []struct {
		err      error
		expected string
	}{
		{fmt.Errorf("abc: %w", downloader.ErrAlreadyActive), "This video is already downloading."},
		{downloader.ErrShuttingDown, "The server is shutting down, try again later."},
		{library.ErrInvalidPath, "The download folder is misconfigured."},
		{errors.New("disk full"), "Failed to start download: disk full"},
	}

	for _, tt := range tests {
		t.Run(tt.err.Error(), func(t *testing.T) {
			if got := rejectionText(tt.err); got != tt.expected {
				t.Errorf("rejectionText() = %q, want %q", got, tt.expected)
			}
		})
	}
}

func TestFormatStatus(t *testing.T) {
	if got := formatStatus(map[string]progress.Entry{}); got != "No downloads in progress." {
		t.Errorf("empty status = %q", got)
	}

	entries := map[string]progress.Entry{
		"b":    {Progress: 42.5, Status: progress.StatusDownloading, State: progress.StateDownloading, Title: "Song"},
		"a":    {Progress: 0, Status: progress.StatusStarting, State: progress.StateQueued},
		"done": {Progress: 100, Status: progress.StatusFinished, State: progress.StateFinished},
	}
	expected := "📥 Downloads in progress:\n• a: 0.0% (Starting...)\n• Song: 42.5% (Downloading...)"
	if got := formatStatus(entries); got != expected {
		t.Errorf("formatStatus() = %q, want %q", got, expected)
	}
}
