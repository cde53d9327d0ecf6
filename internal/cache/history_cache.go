package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	redisv9 "github.com/redis/go-redis/v9"

	"portalchat/internal/model"
)

// HistoryCache keeps the ordered message list of a session in Redis next to a
// generation counter. Writers bump the counter after every insert; a list is
// stored and served only under the generation it was read at.
type HistoryCache struct {
	client     *redisv9.Client
	historyTTL time.Duration
	versionTTL time.Duration
}

type cachedHistory struct {
	Version  int64           `json:"version"`
	Messages []model.Message `json:"messages"`
}

func NewHistoryCache(client *redisv9.Client, historyTTL time.Duration) *HistoryCache {
	if historyTTL <= 0 {
		historyTTL = 60 * time.Second
	}
	return &HistoryCache{
		client:     client,
		historyTTL: historyTTL,
		// Outlives every history entry so a counter never resets under a
		// list that is still cached.
		versionTTL: 2 * historyTTL,
	}
}

func (c *HistoryCache) Version(ctx context.Context, sessionID string) (int64, error) {
	version, err := c.client.Get(ctx, c.versionKey(sessionID)).Int64()
	if errors.Is(err, redisv9.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("redis get history version failed: %w", err)
	}
	return version, nil
}

func (c *HistoryCache) GetHistory(ctx context.Context, sessionID string, version int64) ([]model.Message, bool, error) {
	raw, err := c.client.Get(ctx, c.historyKey(sessionID)).Bytes()
	if errors.Is(err, redisv9.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("redis get history failed: %w", err)
	}

	var entry cachedHistory
	if err := json.Unmarshal(raw, &entry); err != nil {
		return nil, false, fmt.Errorf("unmarshal cached history failed: %w", err)
	}
	if entry.Version != version {
		return nil, false, nil
	}
	if entry.Messages == nil {
		entry.Messages = []model.Message{}
	}
	return entry.Messages, true, nil
}

// SetHistory writes the list under WATCH on the version key, so an Invalidate
// landing between the check and the write aborts the transaction.
func (c *HistoryCache) SetHistory(ctx context.Context, sessionID string, version int64, messages []model.Message) error {
	payload, err := json.Marshal(cachedHistory{Version: version, Messages: messages})
	if err != nil {
		return fmt.Errorf("marshal history cache failed: %w", err)
	}

	versionKey := c.versionKey(sessionID)
	err = c.client.Watch(ctx, func(tx *redisv9.Tx) error {
		current, err := tx.Get(ctx, versionKey).Int64()
		if err != nil && !errors.Is(err, redisv9.Nil) {
			return err
		}
		if current != version {
			return nil
		}
		_, err = tx.TxPipelined(ctx, func(pipe redisv9.Pipeliner) error {
			pipe.Set(ctx, c.historyKey(sessionID), payload, c.historyTTL)
			pipe.Expire(ctx, versionKey, c.versionTTL)
			return nil
		})
		return err
	}, versionKey)
	if errors.Is(err, redisv9.TxFailedErr) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("redis set history failed: %w", err)
	}
	return nil
}

func (c *HistoryCache) Invalidate(ctx context.Context, sessionID string) error {
	versionKey := c.versionKey(sessionID)
	_, err := c.client.TxPipelined(ctx, func(pipe redisv9.Pipeliner) error {
		pipe.Incr(ctx, versionKey)
		pipe.Expire(ctx, versionKey, c.versionTTL)
		pipe.Del(ctx, c.historyKey(sessionID))
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis invalidate history failed: %w", err)
	}
	return nil
}

func (c *HistoryCache) historyKey(sessionID string) string {
	return "chat:history:" + sessionID
}

func (c *HistoryCache) versionKey(sessionID string) string {
	return "chat:history:version:" + sessionID
}
