package bot

import (
	"context"
	"fmt"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	log "github.com/sirupsen/logrus"
)

// Sender is the part of the Telegram API handlers talk to
type Sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

type Handler interface {
	CanHandle(update tgbotapi.Update) bool
	Handle(sender Sender, update tgbotapi.Update)
}

type Bot struct {
	api          *tgbotapi.BotAPI
	sender       Sender
	handlers     []Handler
	notifyChatID int64
	logger       *log.Entry
}

// New authorizes with Telegram. notifyChatID receives download
// notifications; 0 disables them.
func New(token string, notifyChatID int64) (*Bot, error) {
	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("failed to authorize bot: %w", err)
	}

	b := newBot(api, notifyChatID)
	b.api = api
	b.logger.Infof("Authorized on account %s", api.Self.UserName)
	return b, nil
}

func newBot(sender Sender, notifyChatID int64) *Bot {
	return &Bot{
		sender:       sender,
		handlers:     make([]Handler, 0),
		notifyChatID: notifyChatID,
		logger:       log.WithField("component", "bot"),
	}
}

func (b *Bot) RegisterHandler(h Handler) {
	b.handlers = append(b.handlers, h)
	b.logger.Debugf("Registered handler: %T", h)
}

// Run receives updates until ctx is cancelled.
func (b *Bot) Run(ctx context.Context) {
	b.logger.Infof("Starting bot with %d handlers", len(b.handlers))

	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60

	updates := b.api.GetUpdatesChan(u)

	for {
		select {
		case <-ctx.Done():
			b.api.StopReceivingUpdates()
			b.logger.Info("Bot stopped")
			return
		case update, ok := <-updates:
			if !ok {
				return
			}
			b.dispatch(update)
		}
	}
}

// dispatch hands the update to the first handler that accepts it and
// reports whether one did.
func (b *Bot) dispatch(update tgbotapi.Update) bool {
	if update.Message == nil {
		b.logger.Debug("Skipping update without message")
		return false
	}

	if from := update.Message.From; from != nil {
		b.logger.WithFields(log.Fields{
			"user_id":  from.ID,
			"username": from.UserName,
		}).Infof("Message: %s", update.Message.Text)
	}

	for _, handler := range b.handlers {
		if handler.CanHandle(update) {
			b.logger.Debugf("Handling with: %T", handler)
			go handler.Handle(b.sender, update)
			return true
		}
	}

	b.logger.Debug("No handler found for update")
	return false
}

// Notify sends text to the notification chat.
// NotifyChatID returns the chat that receives notifications, 0 if none.
func (b *Bot) NotifyChatID() int64 {
	return b.notifyChatID
}

func (b *Bot) Notify(text string) error {
	if b.notifyChatID == 0 {
		return nil
	}
	if _, err := b.sender.Send(tgbotapi.NewMessage(b.notifyChatID, text)); err != nil {
		return fmt.Errorf("failed to send notification: %w", err)
	}
	return nil
}

func (b *Bot) SendStartupNotification(engine string) {
	if err := b.Notify(fmt.Sprintf("🚀 tubegrab started (engine: %s)", engine)); err != nil {
		b.logger.WithError(err).Warn("Failed to send startup notification")
	}
}
