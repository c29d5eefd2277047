package service

import (
	"context"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/xxxsen/ragdesk/internal/model"
)

type MessageStore interface {
	ListRecent(ctx context.Context, chatID string, limit uint) ([]model.ChatMessage, error)
	ListByChat(ctx context.Context, chatID string, offset, limit uint) ([]model.ChatMessage, error)
	AppendExchange(ctx context.Context, chatID string, msgs []*model.ChatMessage, title string, mtime int64) error
}

type HistoryCache interface {
	Get(ctx context.Context, chatID string) ([]model.ChatMessage, bool, error)
	Set(ctx context.Context, chatID string, msgs []model.ChatMessage) error
	Invalidate(ctx context.Context, chatID string) error
}

// Memory is the append-only turn log of chats. Recent windows are served
// from cache when one is configured.
type Memory struct {
	store  MessageStore
	cache  HistoryCache
	window int
}

// NewMemory creates the store; cache may be nil. window is the largest
// number of recent turns any caller asks for.
func NewMemory(store MessageStore, cache HistoryCache, window int) *Memory {
	if window <= 0 {
		window = 10
	}
	return &Memory{store: store, cache: cache, window: window}
}

// Recent returns the last n turns, oldest first.
func (m *Memory) Recent(ctx context.Context, chatID string, n int) ([]model.ChatMessage, error) {
	if n <= 0 {
		return []model.ChatMessage{}, nil
	}
	if m.cache != nil && n <= m.window {
		msgs, ok, err := m.cache.Get(ctx, chatID)
		if err != nil {
			logutil.GetLogger(ctx).Warn("history cache read failed", zap.String("chat_id", chatID), zap.Error(err))
		}
		if ok && err == nil {
			return tailMessages(msgs, n), nil
		}
	}
	limit := max(n, m.window)
	msgs, err := m.store.ListRecent(ctx, chatID, uint(limit))
	if err != nil {
		return nil, err
	}
	if m.cache != nil {
		if err := m.cache.Set(ctx, chatID, msgs); err != nil {
			logutil.GetLogger(ctx).Warn("history cache write failed", zap.String("chat_id", chatID), zap.Error(err))
		}
	}
	return tailMessages(msgs, n), nil
}

// Append stores the turns as one unit and drops the cached window.
func (m *Memory) Append(ctx context.Context, chatID string, msgs []*model.ChatMessage, title string, mtime int64) error {
	if err := m.store.AppendExchange(ctx, chatID, msgs, title, mtime); err != nil {
		return err
	}
	if m.cache != nil {
		if err := m.cache.Invalidate(ctx, chatID); err != nil {
			logutil.GetLogger(ctx).Warn("history cache invalidate failed", zap.String("chat_id", chatID), zap.Error(err))
		}
	}
	return nil
}

func (m *Memory) List(ctx context.Context, chatID string, offset, limit uint) ([]model.ChatMessage, error) {
	return m.store.ListByChat(ctx, chatID, offset, limit)
}

func tailMessages(msgs []model.ChatMessage, n int) []model.ChatMessage {
	if len(msgs) <= n {
		return msgs
	}
	return msgs[len(msgs)-n:]
}
