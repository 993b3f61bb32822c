package handler

import (
	"strings"
	"testing"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/artur/tubegrab/internal/progress"
)

func TestStartHandler_CanHandle(t *testing.T) {
	handler := NewStartHandler("telegram")

	tests := []struct {
		name     string
		update   tgbotapi.Update
		expected bool
	}{
		{"handles /start command", commandUpdate("/start"), true},
		{"handles /help command", commandUpdate("/help"), true},
		{"ignores regular message", textUpdate("Hello", 1), false},
		{"ignores other commands", commandUpdate("/status"), false},
		{"ignores nil message", tgbotapi.Update{}, false},
		{
			name:     "ignores callback query",
			update:   tgbotapi.Update{CallbackQuery: &tgbotapi.CallbackQuery{Data: "some_data"}},
			expected: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := handler.CanHandle(tt.update)
			if result != tt.expected {
				t.Errorf("CanHandle() = %v, want %v", result, tt.expected)
			}
		})
	}
}

func TestStartHandler_Handle(t *testing.T) {
	sender := &mockSender{}
	NewStartHandler("telegram").Handle(sender, commandUpdate("/start"))

	if len(sender.sent) != 1 {
		t.Fatalf("Expected 1 message, got %d", len(sender.sent))
	}
	msg := sender.sent[0]
	if msg.ChatID != 100 {
		t.Errorf("ChatID = %d, want 100", msg.ChatID)
	}
	if !strings.HasPrefix(msg.Text, "Hi, Ada! 👋") || !strings.Contains(msg.Text, `"telegram" folder`) {
		t.Errorf("Unexpected greeting: %q", msg.Text)
	}
}

func TestStatusHandler(t *testing.T) {
	tracker := progress.NewTracker()
	tracker.Start("abc")
	handler := NewStatusHandler(tracker)

	if !handler.CanHandle(commandUpdate("/status")) {
		t.Error("Expected /status to be handled")
	}
	if handler.CanHandle(commandUpdate("/start")) {
		t.Error("Expected /start to be ignored")
	}

	sender := &mockSender{}
	handler.Handle(sender, commandUpdate("/status"))
	texts := sender.Texts()
	if len(texts) != 1 || !strings.Contains(texts[0], "• abc: 0.0% (Starting...)") {
		t.Errorf("Unexpected status reply: %v", texts)
	}
}
