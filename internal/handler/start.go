package handler

import (
	"fmt"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	log "github.com/sirupsen/logrus"

	"github.com/artur/tubegrab/internal/bot"
)

const usage = `Send me a video link and I will download it to the "%s" folder.

/status - downloads in progress
/help - this message`

type StartHandler struct {
	folder string
}

func NewStartHandler(folder string) *StartHandler {
	return &StartHandler{folder: folder}
}

func (h *StartHandler) CanHandle(update tgbotapi.Update) bool {
	if update.Message == nil || !update.Message.IsCommand() {
		return false
	}
	cmd := update.Message.Command()
	return cmd == "start" || cmd == "help"
}

func (h *StartHandler) Handle(sender bot.Sender, update tgbotapi.Update) {
	userName := ""
	if from := update.Message.From; from != nil {
		userName = getUserName(from.FirstName, from.UserName)
	}

	log.WithField("component", "bot").Infof("Greeting user: %s", userName)

	msg := tgbotapi.NewMessage(update.Message.Chat.ID, formatGreeting(userName)+"\n\n"+formatUsage(h.folder))
	if _, err := sender.Send(msg); err != nil {
		log.WithField("component", "bot").WithError(err).Warn("Failed to send greeting")
	}
}

func getUserName(firstName, userName string) string {
	if firstName != "" {
		return firstName
	}
	return userName
}

func formatGreeting(userName string) string {
	return "Hi, " + userName + "! 👋"
}

func formatUsage(folder string) string {
	return fmt.Sprintf(usage, folder)
}
