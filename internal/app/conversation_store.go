package app

import (
	"context"
	"errors"

	"portalchat/internal/model"
)

var (
	ErrInvalidInput           = errors.New("invalid input")
	ErrUnknownSession         = errors.New("chat session does not exist")
	ErrSupportMessageNotFound = errors.New("support message not found")
)

// ConversationStore is the only way the HTTP routes and the realtime server
// reach persisted sessions, messages and support messages.
type ConversationStore interface {
	CreateChatSession(ctx context.Context, contactInfo map[string]interface{}) (string, error)
	// GetChatSession returns nil, nil when the session does not exist.
	GetChatSession(ctx context.Context, sessionID string) (*model.ChatSession, error)
	GetMessages(ctx context.Context, sessionID string) ([]model.Message, error)
	AddMessage(ctx context.Context, message model.Message) (*model.Message, error)

	GetSupportMessages(ctx context.Context, userID uint) ([]model.SupportMessage, error)
	// GetSupportMessagesForAdmin does no authorization of its own.
	GetSupportMessagesForAdmin(ctx context.Context) ([]model.SupportMessage, error)
	AddSupportMessage(ctx context.Context, message model.SupportMessage) (*model.SupportMessage, error)
	// MarkSupportMessageAsRead reports false when no message has that id.
	MarkSupportMessageAsRead(ctx context.Context, messageID uint) (bool, error)
}

// HistoryCache stores session histories tagged with the write generation they
// were loaded under. A list is only served or stored while its generation is
// still current, so a reader racing a writer cannot cache a stale list.
type HistoryCache interface {
	Version(ctx context.Context, sessionID string) (int64, error)
	GetHistory(ctx context.Context, sessionID string, version int64) ([]model.Message, bool, error)
	// SetHistory is a no-op when the generation has moved past version.
	SetHistory(ctx context.Context, sessionID string, version int64, messages []model.Message) error
	// Invalidate starts a new generation and drops the cached list.
	Invalidate(ctx context.Context, sessionID string) error
}

// SupportNotifier is told about every stored support message. It runs off the
// request path and must handle its own failures.
type SupportNotifier interface {
	NotifySupportMessage(ctx context.Context, message model.SupportMessage)
}
