package service

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/xxxsen/ragdesk/internal/model"
)

type mapHistoryCache struct {
	data        map[string][]model.ChatMessage
	gets        int
	invalidated []string
	failGet     bool
}

func (c *mapHistoryCache) Get(ctx context.Context, chatID string) ([]model.ChatMessage, bool, error) {
	c.gets++
	if c.failGet {
		return nil, false, errors.New("redis down")
	}
	msgs, ok := c.data[chatID]
	return msgs, ok, nil
}

func (c *mapHistoryCache) Set(ctx context.Context, chatID string, msgs []model.ChatMessage) error {
	c.data[chatID] = msgs
	return nil
}

func (c *mapHistoryCache) Invalidate(ctx context.Context, chatID string) error {
	c.invalidated = append(c.invalidated, chatID)
	delete(c.data, chatID)
	return nil
}

func seedChat(t *testing.T, db *memDB, chatID string, turns int) {
	t.Helper()
	require.NoError(t, memChats{db: db}.Create(context.Background(), &model.Chat{ID: chatID, TenantID: "t1", UserID: "u1", Title: model.DefaultChatTitle}))
	for i := 0; i < turns; i++ {
		role := model.RoleUser
		if i%2 == 1 {
			role = model.RoleAssistant
		}
		db.messages = append(db.messages, model.ChatMessage{ID: string(rune('a' + i)), ChatID: chatID, Role: role, Content: string(rune('a' + i))})
	}
}

func TestMemoryRecentUsesCache(t *testing.T) {
	db := newMemDB()
	seedChat(t, db, "c1", 10)
	cache := &mapHistoryCache{data: map[string][]model.ChatMessage{}}
	mem := NewMemory(memMessages{db: db}, cache, 7)
	ctx := context.Background()

	msgs, err := mem.Recent(ctx, "c1", 3)
	require.NoError(t, err)
	require.Equal(t, []string{"h", "i", "j"}, contents(msgs))
	require.Len(t, cache.data["c1"], 7)

	// served from cache even after the store changes underneath
	db.messages = nil
	msgs, err = mem.Recent(ctx, "c1", 7)
	require.NoError(t, err)
	require.Len(t, msgs, 7)
	require.Equal(t, "d", msgs[0].Content)
}

func TestMemoryAppendInvalidatesCache(t *testing.T) {
	db := newMemDB()
	seedChat(t, db, "c1", 2)
	cache := &mapHistoryCache{data: map[string][]model.ChatMessage{}}
	mem := NewMemory(memMessages{db: db}, cache, 7)
	ctx := context.Background()

	_, err := mem.Recent(ctx, "c1", 7)
	require.NoError(t, err)
	require.NoError(t, mem.Append(ctx, "c1", []*model.ChatMessage{
		{ID: "q", ChatID: "c1", Role: model.RoleUser, Content: "q"},
		{ID: "r", ChatID: "c1", Role: model.RoleAssistant, Content: "r"},
	}, "first question", 10))
	require.Equal(t, []string{"c1"}, cache.invalidated)

	msgs, err := mem.Recent(ctx, "c1", 7)
	require.NoError(t, err)
	require.Equal(t, []string{"a", "b", "q", "r"}, contents(msgs))
	require.Equal(t, "first question", db.chats[0].Title)
}

func TestMemoryCacheFailureFallsBackToStore(t *testing.T) {
	db := newMemDB()
	seedChat(t, db, "c1", 4)
	cache := &mapHistoryCache{data: map[string][]model.ChatMessage{}, failGet: true}
	mem := NewMemory(memMessages{db: db}, cache, 7)

	msgs, err := mem.Recent(context.Background(), "c1", 2)
	require.NoError(t, err)
	require.Equal(t, []string{"c", "d"}, contents(msgs))

	msgs, err = mem.Recent(context.Background(), "c1", 0)
	require.NoError(t, err)
	require.Empty(t, msgs)
}

func contents(msgs []model.ChatMessage) []string {
	out := make([]string, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, m.Content)
	}
	return out
}
