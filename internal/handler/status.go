package handler

import (
	"fmt"
	"sort"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	log "github.com/sirupsen/logrus"

	"github.com/artur/tubegrab/internal/bot"
	"github.com/artur/tubegrab/internal/progress"
)

// StatusHandler answers /status with the downloads in progress
type StatusHandler struct {
	tracker *progress.Tracker
}

func NewStatusHandler(tracker *progress.Tracker) *StatusHandler {
	return &StatusHandler{tracker: tracker}
}

func (h *StatusHandler) CanHandle(update tgbotapi.Update) bool {
	return update.Message != nil && update.Message.IsCommand() && update.Message.Command() == "status"
}

func (h *StatusHandler) Handle(sender bot.Sender, update tgbotapi.Update) {
	msg := tgbotapi.NewMessage(update.Message.Chat.ID, formatStatus(h.tracker.Snapshot()))
	if _, err := sender.Send(msg); err != nil {
		log.WithField("component", "bot").WithError(err).Warn("Failed to send status")
	}
}

func formatStatus(entries map[string]progress.Entry) string {
	ids := make([]string, 0, len(entries))
	for id, e := range entries {
		if e.State.IsActive() {
			ids = append(ids, id)
		}
	}
	if len(ids) == 0 {
		return "No downloads in progress."
	}
	sort.Strings(ids)

	var sb strings.Builder
	sb.WriteString("📥 Downloads in progress:\n")
	for _, id := range ids {
		e := entries[id]
		name := id
		if e.Title != "" {
			name = e.Title
		}
		fmt.Fprintf(&sb, "• %s: %.1f%% (%s)\n", name, e.Progress, e.Status)
	}
	return strings.TrimRight(sb.String(), "\n")
}
