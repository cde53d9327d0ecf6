package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"portalchat/internal/metrics"
	"portalchat/internal/model"
	"portalchat/internal/repository"
)

const notifyTimeout = 10 * time.Second

type ChatService struct {
	sessionRepo  *repository.SessionRepository
	messageRepo  *repository.MessageRepository
	supportRepo  *repository.SupportMessageRepository
	historyCache HistoryCache
	notifier     SupportNotifier
	metrics      *metrics.Metrics
	log          zerolog.Logger

	now   func() time.Time
	newID func() string
}

var _ ConversationStore = (*ChatService)(nil)

func NewChatService(
	sessionRepo *repository.SessionRepository,
	messageRepo *repository.MessageRepository,
	supportRepo *repository.SupportMessageRepository,
	historyCache HistoryCache,
	notifier SupportNotifier,
	m *metrics.Metrics,
	log zerolog.Logger,
) *ChatService {
	return &ChatService{
		sessionRepo:  sessionRepo,
		messageRepo:  messageRepo,
		supportRepo:  supportRepo,
		historyCache: historyCache,
		notifier:     notifier,
		metrics:      m,
		log:          log,
		now:          func() time.Time { return time.Now().UTC() },
		newID:        func() string { return uuid.NewString() },
	}
}

func (s *ChatService) CreateChatSession(ctx context.Context, contactInfo map[string]interface{}) (id string, err error) {
	defer s.observe("create_chat_session", time.Now(), &err)

	session := &model.ChatSession{
		ID:        s.newID(),
		CreatedAt: s.now(),
	}
	if len(contactInfo) > 0 {
		session.ContactInfo = datatypes.JSONMap(contactInfo)
	}
	if err := s.sessionRepo.Create(ctx, session); err != nil {
		return "", err
	}
	return session.ID, nil
}

func (s *ChatService) GetChatSession(ctx context.Context, sessionID string) (session *model.ChatSession, err error) {
	defer s.observe("get_chat_session", time.Now(), &err)

	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		return nil, nil
	}
	return s.sessionRepo.GetByID(ctx, sessionID)
}

func (s *ChatService) GetMessages(ctx context.Context, sessionID string) (messages []model.Message, err error) {
	defer s.observe("get_messages", time.Now(), &err)

	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		return []model.Message{}, nil
	}

	var (
		version   int64
		cacheable bool
	)
	if s.historyCache != nil {
		v, versionErr := s.historyCache.Version(ctx, sessionID)
		if versionErr == nil {
			version, cacheable = v, true
			if cached, hit, cacheErr := s.historyCache.GetHistory(ctx, sessionID, version); cacheErr == nil && hit {
				return cached, nil
			}
		}
	}

	messages, err = s.messageRepo.ListBySessionID(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if cacheable {
		if cacheErr := s.historyCache.SetHistory(ctx, sessionID, version, messages); cacheErr != nil {
			s.log.Warn().Err(cacheErr).Str("session_id", sessionID).Msg("cache history failed")
		}
	}
	return messages, nil
}

// AddMessage validates and appends one message to its session. A session that
// does not exist surfaces as ErrUnknownSession wrapping the driver error.
func (s *ChatService) AddMessage(ctx context.Context, message model.Message) (stored *model.Message, err error) {
	defer s.observe("add_message", time.Now(), &err)

	message.SessionID = strings.TrimSpace(message.SessionID)
	message.Role = strings.TrimSpace(message.Role)
	if message.SessionID == "" || message.Role == "" || strings.TrimSpace(message.Content) == "" {
		return nil, fmt.Errorf("%w: sessionId, role and content are required", ErrInvalidInput)
	}
	if !model.IsKnownRole(message.Role) {
		return nil, fmt.Errorf("%w: unknown role %q", ErrInvalidInput, message.Role)
	}
	message.ID = 0
	if message.Timestamp.IsZero() {
		message.Timestamp = s.now()
	}

	if err := s.messageRepo.Create(ctx, &message); err != nil {
		if errors.Is(err, gorm.ErrForeignKeyViolated) {
			return nil, fmt.Errorf("%w: %w", ErrUnknownSession, err)
		}
		return nil, err
	}
	// Invalidate after the commit: any reader that loaded before it now holds
	// an old generation and its SetHistory is refused.
	if s.historyCache != nil {
		if cacheErr := s.historyCache.Invalidate(ctx, message.SessionID); cacheErr != nil {
			s.log.Warn().Err(cacheErr).Str("session_id", message.SessionID).Msg("invalidate history cache failed")
		}
	}
	return &message, nil
}

// RecentMessages returns the tail of a session for prompting the assistant.
func (s *ChatService) RecentMessages(ctx context.Context, sessionID string, limit int) (messages []model.Message, err error) {
	defer s.observe("recent_messages", time.Now(), &err)
	return s.messageRepo.ListRecentBySessionID(ctx, sessionID, limit)
}

func (s *ChatService) GetSupportMessages(ctx context.Context, userID uint) (messages []model.SupportMessage, err error) {
	defer s.observe("get_support_messages", time.Now(), &err)

	if userID == 0 {
		return nil, fmt.Errorf("%w: userId is required", ErrInvalidInput)
	}
	return s.supportRepo.ListByUserID(ctx, userID)
}

func (s *ChatService) GetSupportMessagesForAdmin(ctx context.Context) (messages []model.SupportMessage, err error) {
	defer s.observe("get_support_messages_admin", time.Now(), &err)
	return s.supportRepo.ListAll(ctx)
}

func (s *ChatService) AddSupportMessage(ctx context.Context, message model.SupportMessage) (stored *model.SupportMessage, err error) {
	defer s.observe("add_support_message", time.Now(), &err)

	message.ThreadID = strings.TrimSpace(message.ThreadID)
	if message.UserID == 0 || message.ThreadID == "" || strings.TrimSpace(message.Content) == "" {
		return nil, fmt.Errorf("%w: userId, threadId and content are required", ErrInvalidInput)
	}
	message.ID = 0
	if message.Timestamp.IsZero() {
		message.Timestamp = s.now()
	}

	if err := s.supportRepo.Create(ctx, &message); err != nil {
		return nil, err
	}

	if s.notifier != nil {
		notice := message
		go func() {
			notifyCtx, cancel := context.WithTimeout(context.Background(), notifyTimeout)
			defer cancel()
			s.notifier.NotifySupportMessage(notifyCtx, notice)
		}()
	}
	return &message, nil
}

func (s *ChatService) MarkSupportMessageAsRead(ctx context.Context, messageID uint) (updated bool, err error) {
	defer s.observe("mark_support_message_read", time.Now(), &err)

	if messageID == 0 {
		return false, nil
	}
	return s.supportRepo.MarkRead(ctx, messageID)
}

func (s *ChatService) observe(operation string, start time.Time, errp *error) {
	s.metrics.RecordStoreOperation(operation, *errp, time.Since(start))
}
