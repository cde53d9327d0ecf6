package app

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"portalchat/internal/model"
	"portalchat/internal/repository"
	"portalchat/internal/schema"
	"portalchat/internal/testutil"
)

type cachedHistory struct {
	version  int64
	messages []model.Message
}

type memoryHistoryCache struct {
	mu       sync.Mutex
	versions map[string]int64
	entries  map[string]cachedHistory
	sets     int

	// beforeSet runs at the start of SetHistory, outside the lock.
	beforeSet func()
}

func newMemoryHistoryCache() *memoryHistoryCache {
	return &memoryHistoryCache{
		versions: make(map[string]int64),
		entries:  make(map[string]cachedHistory),
	}
}

func (c *memoryHistoryCache) Version(_ context.Context, sessionID string) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.versions[sessionID], nil
}

func (c *memoryHistoryCache) GetHistory(_ context.Context, sessionID string, version int64) ([]model.Message, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	entry, ok := c.entries[sessionID]
	if !ok || entry.version != version {
		return nil, false, nil
	}
	return entry.messages, true, nil
}

func (c *memoryHistoryCache) SetHistory(_ context.Context, sessionID string, version int64, messages []model.Message) error {
	if c.beforeSet != nil {
		hook := c.beforeSet
		c.beforeSet = nil
		hook()
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.versions[sessionID] != version {
		return nil
	}
	c.entries[sessionID] = cachedHistory{version: version, messages: messages}
	c.sets++
	return nil
}

func (c *memoryHistoryCache) Invalidate(_ context.Context, sessionID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.versions[sessionID]++
	delete(c.entries, sessionID)
	return nil
}

func (c *memoryHistoryCache) cached(sessionID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.entries[sessionID]
	return ok
}

type channelNotifier chan model.SupportMessage

func (n channelNotifier) NotifySupportMessage(_ context.Context, message model.SupportMessage) {
	n <- message
}

func newTestService(t *testing.T, cache HistoryCache, notifier SupportNotifier) *ChatService {
	t.Helper()

	db := testutil.OpenSQLite(t)
	if err := schema.CreateTables(context.Background(), db); err != nil {
		t.Fatalf("create tables: %v", err)
	}

	svc := NewChatService(
		repository.NewSessionRepository(db),
		repository.NewMessageRepository(db),
		repository.NewSupportMessageRepository(db),
		cache,
		notifier,
		nil,
		zerolog.Nop(),
	)

	clock := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	svc.now = func() time.Time {
		clock = clock.Add(time.Second)
		return clock
	}
	return svc
}

func TestCreateChatSession(t *testing.T) {
	svc := newTestService(t, nil, nil)
	ctx := context.Background()

	first, err := svc.CreateChatSession(ctx, map[string]interface{}{"email": "a@example.com"})
	if err != nil {
		t.Fatalf("create session: %v", err)
	}
	second, err := svc.CreateChatSession(ctx, nil)
	if err != nil {
		t.Fatalf("create session without contact info: %v", err)
	}
	if first == "" || first == second {
		t.Fatalf("expected distinct non-empty ids, got %q and %q", first, second)
	}

	session, err := svc.GetChatSession(ctx, first)
	if err != nil {
		t.Fatalf("get session: %v", err)
	}
	if session == nil || session.ContactInfo["email"] != "a@example.com" {
		t.Fatalf("unexpected session %+v", session)
	}

	messages, err := svc.GetMessages(ctx, second)
	if err != nil {
		t.Fatalf("get messages: %v", err)
	}
	if messages == nil || len(messages) != 0 {
		t.Fatalf("expected empty non-nil history, got %#v", messages)
	}
}

func TestGetChatSessionMissing(t *testing.T) {
	svc := newTestService(t, nil, nil)

	session, err := svc.GetChatSession(context.Background(), "does-not-exist")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if session != nil {
		t.Fatalf("expected nil session, got %+v", session)
	}
}

func TestAddMessagePreservesOrder(t *testing.T) {
	svc := newTestService(t, nil, nil)
	ctx := context.Background()

	sessionID, err := svc.CreateChatSession(ctx, nil)
	if err != nil {
		t.Fatalf("create session: %v", err)
	}

	contents := []string{"hello", "how can I help?", "my order is late", "let me check"}
	for i, content := range contents {
		role := model.RoleUser
		if i%2 == 1 {
			role = model.RoleAssistant
		}
		stored, err := svc.AddMessage(ctx, model.Message{SessionID: sessionID, Role: role, Content: content})
		if err != nil {
			t.Fatalf("add message %d: %v", i, err)
		}
		if stored.ID == 0 || stored.Timestamp.IsZero() {
			t.Fatalf("expected id and timestamp to be assigned, got %+v", stored)
		}
	}

	messages, err := svc.GetMessages(ctx, sessionID)
	if err != nil {
		t.Fatalf("get messages: %v", err)
	}
	if len(messages) != len(contents) {
		t.Fatalf("expected %d messages, got %d", len(contents), len(messages))
	}
	for i, m := range messages {
		if m.Content != contents[i] {
			t.Errorf("message %d: expected %q, got %q", i, contents[i], m.Content)
		}
		if i > 0 && m.Timestamp.Before(messages[i-1].Timestamp) {
			t.Errorf("message %d is older than its predecessor", i)
		}
	}
}

func TestAddMessageValidation(t *testing.T) {
	svc := newTestService(t, nil, nil)
	ctx := context.Background()

	sessionID, err := svc.CreateChatSession(ctx, nil)
	if err != nil {
		t.Fatalf("create session: %v", err)
	}

	cases := []struct {
		name    string
		message model.Message
	}{
		{"missing session", model.Message{Role: model.RoleUser, Content: "hi"}},
		{"missing role", model.Message{SessionID: sessionID, Content: "hi"}},
		{"blank content", model.Message{SessionID: sessionID, Role: model.RoleUser, Content: "   "}},
		{"unknown role", model.Message{SessionID: sessionID, Role: "system", Content: "hi"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := svc.AddMessage(ctx, tc.message); !errors.Is(err, ErrInvalidInput) {
				t.Fatalf("expected ErrInvalidInput, got %v", err)
			}
		})
	}

	messages, err := svc.GetMessages(ctx, sessionID)
	if err != nil {
		t.Fatalf("get messages: %v", err)
	}
	if len(messages) != 0 {
		t.Fatalf("expected nothing persisted, got %d messages", len(messages))
	}
}

func TestAddMessageUnknownSession(t *testing.T) {
	svc := newTestService(t, nil, nil)

	_, err := svc.AddMessage(context.Background(), model.Message{
		SessionID: "missing",
		Role:      model.RoleUser,
		Content:   "hello?",
	})
	if !errors.Is(err, ErrUnknownSession) {
		t.Fatalf("expected ErrUnknownSession, got %v", err)
	}
}

func TestSupportMessagesAreScopedByUser(t *testing.T) {
	svc := newTestService(t, nil, nil)
	ctx := context.Background()

	for _, m := range []model.SupportMessage{
		{UserID: 1, Content: "first from 1", ThreadID: "t-1"},
		{UserID: 2, Content: "first from 2", ThreadID: "t-2"},
		{UserID: 1, Content: "second from 1", ThreadID: "t-1"},
	} {
		stored, err := svc.AddSupportMessage(ctx, m)
		if err != nil {
			t.Fatalf("add support message: %v", err)
		}
		if stored.IsRead {
			t.Fatalf("new support message must be unread")
		}
	}

	mine, err := svc.GetSupportMessages(ctx, 1)
	if err != nil {
		t.Fatalf("get support messages: %v", err)
	}
	if len(mine) != 2 {
		t.Fatalf("expected 2 messages for user 1, got %d", len(mine))
	}
	if mine[0].Content != "second from 1" {
		t.Errorf("expected newest first, got %q", mine[0].Content)
	}
	for _, m := range mine {
		if m.UserID != 1 {
			t.Errorf("leaked message of user %d", m.UserID)
		}
	}

	all, err := svc.GetSupportMessagesForAdmin(ctx)
	if err != nil {
		t.Fatalf("get admin support messages: %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("expected 3 messages for admin, got %d", len(all))
	}
	for i := 1; i < len(all); i++ {
		if all[i].Timestamp.After(all[i-1].Timestamp) {
			t.Errorf("admin view not newest first at %d", i)
		}
	}
}

func TestAddSupportMessageValidation(t *testing.T) {
	svc := newTestService(t, nil, nil)
	ctx := context.Background()

	for _, m := range []model.SupportMessage{
		{Content: "no user", ThreadID: "t"},
		{UserID: 1, Content: "no thread"},
		{UserID: 1, ThreadID: "t", Content: " "},
	} {
		if _, err := svc.AddSupportMessage(ctx, m); !errors.Is(err, ErrInvalidInput) {
			t.Errorf("expected ErrInvalidInput for %+v, got %v", m, err)
		}
	}
	if _, err := svc.GetSupportMessages(ctx, 0); !errors.Is(err, ErrInvalidInput) {
		t.Errorf("expected ErrInvalidInput for user 0, got %v", err)
	}
}

func TestMarkSupportMessageAsRead(t *testing.T) {
	svc := newTestService(t, nil, nil)
	ctx := context.Background()

	stored, err := svc.AddSupportMessage(ctx, model.SupportMessage{UserID: 7, Content: "help", ThreadID: "t-7"})
	if err != nil {
		t.Fatalf("add support message: %v", err)
	}

	for i := 0; i < 2; i++ {
		ok, err := svc.MarkSupportMessageAsRead(ctx, stored.ID)
		if err != nil {
			t.Fatalf("mark read (pass %d): %v", i+1, err)
		}
		if !ok {
			t.Fatalf("mark read (pass %d): expected true", i+1)
		}
	}

	messages, err := svc.GetSupportMessages(ctx, 7)
	if err != nil {
		t.Fatalf("get support messages: %v", err)
	}
	if !messages[0].IsRead {
		t.Fatal("expected message to be read")
	}

	ok, err := svc.MarkSupportMessageAsRead(ctx, stored.ID+100)
	if err != nil {
		t.Fatalf("mark unknown read: %v", err)
	}
	if ok {
		t.Fatal("expected false for unknown message")
	}
}

func TestAddSupportMessageNotifies(t *testing.T) {
	notifier := make(channelNotifier, 1)
	svc := newTestService(t, nil, notifier)

	stored, err := svc.AddSupportMessage(context.Background(), model.SupportMessage{UserID: 3, Content: "ping", ThreadID: "t-3"})
	if err != nil {
		t.Fatalf("add support message: %v", err)
	}

	select {
	case got := <-notifier:
		if got.ID != stored.ID || got.Content != "ping" {
			t.Fatalf("unexpected notification %+v", got)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("notifier was not called")
	}
}

func TestGetMessagesUsesHistoryCache(t *testing.T) {
	cache := newMemoryHistoryCache()
	svc := newTestService(t, cache, nil)
	ctx := context.Background()

	sessionID, err := svc.CreateChatSession(ctx, nil)
	if err != nil {
		t.Fatalf("create session: %v", err)
	}

	if _, err := svc.GetMessages(ctx, sessionID); err != nil {
		t.Fatalf("get messages: %v", err)
	}
	if cache.sets != 1 {
		t.Fatalf("expected history to be cached once, got %d", cache.sets)
	}
	if _, err := svc.GetMessages(ctx, sessionID); err != nil {
		t.Fatalf("get messages: %v", err)
	}
	if cache.sets != 1 {
		t.Fatalf("expected second read to be served from cache, got %d sets", cache.sets)
	}

	if _, err := svc.AddMessage(ctx, model.Message{SessionID: sessionID, Role: model.RoleUser, Content: "hi"}); err != nil {
		t.Fatalf("add message: %v", err)
	}
	if cache.cached(sessionID) {
		t.Fatal("expected cached history to be evicted")
	}

	messages, err := svc.GetMessages(ctx, sessionID)
	if err != nil {
		t.Fatalf("get messages: %v", err)
	}
	if len(messages) != 1 {
		t.Fatalf("expected fresh history with 1 message, got %d", len(messages))
	}
	if cache.sets != 2 {
		t.Fatalf("expected the new generation to be cached, got %d sets", cache.sets)
	}
}

func TestHistoryLoadedBeforeConcurrentInsertIsNotCached(t *testing.T) {
	cache := newMemoryHistoryCache()
	svc := newTestService(t, cache, nil)
	ctx := context.Background()

	sessionID, err := svc.CreateChatSession(ctx, nil)
	if err != nil {
		t.Fatalf("create session: %v", err)
	}

	// The insert lands after the reader loaded from the database but before
	// it writes the list back to the cache.
	cache.beforeSet = func() {
		if _, err := svc.AddMessage(ctx, model.Message{SessionID: sessionID, Role: model.RoleUser, Content: "racing"}); err != nil {
			t.Errorf("add message: %v", err)
		}
	}
	stale, err := svc.GetMessages(ctx, sessionID)
	if err != nil {
		t.Fatalf("get messages: %v", err)
	}
	if len(stale) != 0 {
		t.Fatalf("expected the racing reader to see the old list, got %d", len(stale))
	}
	if cache.cached(sessionID) {
		t.Fatal("list loaded under an old generation must not be cached")
	}

	messages, err := svc.GetMessages(ctx, sessionID)
	if err != nil {
		t.Fatalf("get messages: %v", err)
	}
	if len(messages) != 1 || messages[0].Content != "racing" {
		t.Fatalf("expected the stored message to be visible, got %+v", messages)
	}
}
