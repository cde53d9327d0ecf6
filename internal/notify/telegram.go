package notify

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
	"github.com/rs/zerolog"

	"portalchat/internal/model"
)

const maxMessageLen = 4096

type messageSender interface {
	SendMessage(ctx context.Context, params *bot.SendMessageParams) (*models.Message, error)
}

// TelegramNotifier posts new support messages to a staff chat, optionally
// into a forum topic.
type TelegramNotifier struct {
	sender  messageSender
	chatID  int64
	topicID int
	log     zerolog.Logger
}

func NewTelegramBot(token string) (*bot.Bot, error) {
	b, err := bot.New(token, bot.WithSkipGetMe())
	if err != nil {
		return nil, fmt.Errorf("create telegram bot failed: %w", err)
	}
	return b, nil
}

func NewTelegramNotifier(b *bot.Bot, chatID int64, topicID int, log zerolog.Logger) *TelegramNotifier {
	return newTelegramNotifier(b, chatID, topicID, log)
}

func newTelegramNotifier(sender messageSender, chatID int64, topicID int, log zerolog.Logger) *TelegramNotifier {
	return &TelegramNotifier{
		sender:  sender,
		chatID:  chatID,
		topicID: topicID,
		log:     log,
	}
}

func (n *TelegramNotifier) NotifySupportMessage(ctx context.Context, message model.SupportMessage) {
	if n.chatID == 0 {
		return
	}

	_, err := n.sender.SendMessage(ctx, &bot.SendMessageParams{
		ChatID:          n.chatID,
		Text:            formatSupportMessage(message),
		MessageThreadID: n.topicID,
	})
	if err != nil {
		n.log.Error().Err(err).Uint("support_message_id", message.ID).Msg("send telegram notification failed")
	}
}

func formatSupportMessage(message model.SupportMessage) string {
	var b strings.Builder
	fmt.Fprintf(&b, "New support message #%d\n", message.ID)
	fmt.Fprintf(&b, "User: %d\n", message.UserID)
	fmt.Fprintf(&b, "Thread: %s\n", message.ThreadID)
	fmt.Fprintf(&b, "Time: %s\n\n", message.Timestamp.UTC().Format(time.RFC3339))
	b.WriteString(message.Content)

	text := b.String()
	if runes := []rune(text); len(runes) > maxMessageLen {
		text = string(runes[:maxMessageLen-20]) + "\n\n... (truncated)"
	}
	return text
}
