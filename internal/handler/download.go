package handler

import (
	"errors"
	"fmt"
	"regexp"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	log "github.com/sirupsen/logrus"

	"github.com/artur/tubegrab/internal/bot"
	"github.com/artur/tubegrab/internal/downloader"
	"github.com/artur/tubegrab/internal/library"
)

var urlPattern = regexp.MustCompile(`https?://[^\s<>"]+`)

// Submitter starts downloads
type Submitter interface {
	Submit(sub downloader.Submission) (string, error)
}

// DownloadHandler submits any link sent to the bot.
type DownloadHandler struct {
	submitter Submitter
	folder    string
	allowed   map[int64]bool
	logger    *log.Entry
}

// NewDownloadHandler creates the handler. An empty allowedUsers list lets
// everyone submit.
func NewDownloadHandler(submitter Submitter, folder string, allowedUsers []int64) *DownloadHandler {
	allowed := make(map[int64]bool, len(allowedUsers))
	for _, id := range allowedUsers {
		allowed[id] = true
	}
	return &DownloadHandler{
		submitter: submitter,
		folder:    folder,
		allowed:   allowed,
		logger:    log.WithField("component", "bot"),
	}
}

func (h *DownloadHandler) CanHandle(update tgbotapi.Update) bool {
	return update.Message != nil && !update.Message.IsCommand() && extractURL(update.Message.Text) != ""
}

func (h *DownloadHandler) Handle(sender bot.Sender, update tgbotapi.Update) {
	chatID := update.Message.Chat.ID
	rawURL := extractURL(update.Message.Text)

	if !h.isAllowed(update.Message.From) {
		h.reply(sender, chatID, "⛔ You are not allowed to download here.")
		return
	}

	id, err := h.submitter.Submit(downloader.Submission{
		URL:         rawURL,
		Folder:      h.folder,
		Source:      "telegram",
		ReplyChatID: chatID,
		Done: func(o downloader.Outcome) {
			h.reply(sender, chatID, downloader.FormatOutcome(o))
		},
	})
	if err != nil {
		h.logger.WithError(err).WithField("url", rawURL).Warn("Submission rejected")
		h.reply(sender, chatID, "❌ "+rejectionText(err))
		return
	}

	h.reply(sender, chatID, fmt.Sprintf("⏳ Download started: %s", id))
}

func (h *DownloadHandler) isAllowed(from *tgbotapi.User) bool {
	if len(h.allowed) == 0 {
		return true
	}
	return from != nil && h.allowed[from.ID]
}

func (h *DownloadHandler) reply(sender bot.Sender, chatID int64, text string) {
	if _, err := sender.Send(tgbotapi.NewMessage(chatID, text)); err != nil {
		h.logger.WithError(err).Warn("Failed to send reply")
	}
}

func rejectionText(err error) string {
	switch {
	case errors.Is(err, downloader.ErrAlreadyActive):
		return "This video is already downloading."
	case errors.Is(err, downloader.ErrShuttingDown):
		return "The server is shutting down, try again later."
	case errors.Is(err, library.ErrInvalidPath):
		return "The download folder is misconfigured."
	default:
		return "Failed to start download: " + err.Error()
	}
}

func extractURL(text string) string {
	return urlPattern.FindString(text)
}
