package repo

import (
	"context"
	"database/sql"

	"github.com/didi/gendry/builder"

	"github.com/xxxsen/ragdesk/internal/model"
	"github.com/xxxsen/ragdesk/internal/pkg/dbutil"
	appErr "github.com/xxxsen/ragdesk/internal/pkg/errors"
)

var chatFields = []string{"id", "tenant_id", "user_id", "title", "ctime", "mtime"}

type ChatRepo struct {
	db *sql.DB
}

func NewChatRepo(db *sql.DB) *ChatRepo {
	return &ChatRepo{db: db}
}

func (r *ChatRepo) Create(ctx context.Context, chat *model.Chat) error {
	data := map[string]interface{}{
		"id":        chat.ID,
		"tenant_id": chat.TenantID,
		"user_id":   chat.UserID,
		"title":     chat.Title,
		"ctime":     chat.Ctime,
		"mtime":     chat.Mtime,
	}
	sqlStr, args, err := builder.BuildInsert("chats", []map[string]interface{}{data})
	if err != nil {
		return err
	}
	sqlStr, args = dbutil.Finalize(sqlStr, args)
	if _, err := r.db.ExecContext(ctx, sqlStr, args...); err != nil {
		return dbutil.Classify(err)
	}
	return nil
}

// GetOwned returns the chat only when it belongs to the given tenant and user.
func (r *ChatRepo) GetOwned(ctx context.Context, tenantID, userID, chatID string) (*model.Chat, error) {
	chats, err := r.list(ctx, map[string]interface{}{
		"id":        chatID,
		"tenant_id": tenantID,
		"user_id":   userID,
	})
	if err != nil {
		return nil, err
	}
	if len(chats) == 0 {
		return nil, appErr.ErrNotFound
	}
	return &chats[0], nil
}

func (r *ChatRepo) Latest(ctx context.Context, tenantID, userID string) (*model.Chat, error) {
	chats, err := r.ListByUser(ctx, tenantID, userID, 0, 1)
	if err != nil {
		return nil, err
	}
	if len(chats) == 0 {
		return nil, appErr.ErrNotFound
	}
	return &chats[0], nil
}

func (r *ChatRepo) ListByUser(ctx context.Context, tenantID, userID string, offset, limit uint) ([]model.Chat, error) {
	where := map[string]interface{}{
		"tenant_id": tenantID,
		"user_id":   userID,
		"_orderby":  "mtime desc, id desc",
	}
	if limit > 0 {
		where["_limit"] = []uint{offset, limit}
	}
	return r.list(ctx, where)
}

func (r *ChatRepo) list(ctx context.Context, where map[string]interface{}) ([]model.Chat, error) {
	sqlStr, args, err := builder.BuildSelect("chats", where, chatFields)
	if err != nil {
		return nil, err
	}
	sqlStr, args = dbutil.Finalize(sqlStr, args)
	rows, err := r.db.QueryContext(ctx, sqlStr, args...)
	if err != nil {
		return nil, dbutil.Classify(err)
	}
	defer rows.Close()
	var chats []model.Chat
	for rows.Next() {
		var c model.Chat
		if err := rows.Scan(&c.ID, &c.TenantID, &c.UserID, &c.Title, &c.Ctime, &c.Mtime); err != nil {
			return nil, err
		}
		chats = append(chats, c)
	}
	return chats, rows.Err()
}
