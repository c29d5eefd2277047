package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	redisv9 "github.com/redis/go-redis/v9"

	"github.com/xxxsen/ragdesk/internal/model"
)

// HistoryCache keeps the recent turns of a chat in redis so follow-up
// questions skip the message table.
type HistoryCache struct {
	client *redisv9.Client
	ttl    time.Duration
}

func NewHistoryCache(client *redisv9.Client, ttl time.Duration) *HistoryCache {
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &HistoryCache{client: client, ttl: ttl}
}

func (c *HistoryCache) Get(ctx context.Context, chatID string) ([]model.ChatMessage, bool, error) {
	raw, err := c.client.Get(ctx, historyKey(chatID)).Bytes()
	if err == redisv9.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("redis get history failed: %w", err)
	}
	var msgs []model.ChatMessage
	if err := json.Unmarshal(raw, &msgs); err != nil {
		return nil, false, fmt.Errorf("unmarshal cached history failed: %w", err)
	}
	return msgs, true, nil
}

func (c *HistoryCache) Set(ctx context.Context, chatID string, msgs []model.ChatMessage) error {
	payload, err := json.Marshal(msgs)
	if err != nil {
		return fmt.Errorf("marshal history cache failed: %w", err)
	}
	if err := c.client.Set(ctx, historyKey(chatID), payload, c.ttl).Err(); err != nil {
		return fmt.Errorf("redis set history failed: %w", err)
	}
	return nil
}

func (c *HistoryCache) Invalidate(ctx context.Context, chatID string) error {
	if err := c.client.Del(ctx, historyKey(chatID)).Err(); err != nil {
		return fmt.Errorf("redis delete history failed: %w", err)
	}
	return nil
}

func historyKey(chatID string) string {
	return "ragdesk:chat:history:" + chatID
}
