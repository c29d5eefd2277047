package repo

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/didi/gendry/builder"

	"github.com/xxxsen/ragdesk/internal/model"
	"github.com/xxxsen/ragdesk/internal/pkg/dbutil"
	appErr "github.com/xxxsen/ragdesk/internal/pkg/errors"
)

var messageFields = []string{"id", "chat_id", "role", "content", "citations", "ctime"}

type MessageRepo struct {
	db *sql.DB
}

func NewMessageRepo(db *sql.DB) *MessageRepo {
	return &MessageRepo{db: db}
}

// AppendExchange writes the given turns in order and bumps the chat in one
// transaction. title replaces the chat title only while it is still the
// default.
func (r *MessageRepo) AppendExchange(ctx context.Context, chatID string, msgs []*model.ChatMessage, title string, mtime int64) error {
	err := WithTx(ctx, r.db, func(tx *sql.Tx) error {
		for _, msg := range msgs {
			if err := insertMessage(ctx, tx, msg); err != nil {
				return err
			}
		}
		const update = `
			UPDATE chats
			SET mtime = $1,
				title = CASE WHEN title = $2 AND $3 <> '' THEN $3 ELSE title END
			WHERE id = $4
		`
		res, err := tx.ExecContext(ctx, update, mtime, model.DefaultChatTitle, title, chatID)
		if err != nil {
			return err
		}
		return affectedOrNotFound(res, appErr.ErrNotFound)
	})
	if err != nil && !errors.Is(err, appErr.ErrNotFound) {
		return dbutil.Classify(err)
	}
	return err
}

func insertMessage(ctx context.Context, db DBTX, msg *model.ChatMessage) error {
	citations := msg.Citations
	if citations == nil {
		citations = []model.Citation{}
	}
	raw, err := json.Marshal(citations)
	if err != nil {
		return fmt.Errorf("encode citations: %w", err)
	}
	data := map[string]interface{}{
		"id":        msg.ID,
		"chat_id":   msg.ChatID,
		"role":      msg.Role,
		"content":   msg.Content,
		"citations": string(raw),
		"ctime":     msg.Ctime,
	}
	sqlStr, args, err := builder.BuildInsert("chat_messages", []map[string]interface{}{data})
	if err != nil {
		return err
	}
	sqlStr, args = dbutil.Finalize(sqlStr, args)
	_, err = db.ExecContext(ctx, sqlStr, args...)
	return err
}

// ListRecent returns at most limit of the newest messages, oldest first.
func (r *MessageRepo) ListRecent(ctx context.Context, chatID string, limit uint) ([]model.ChatMessage, error) {
	msgs, err := r.list(ctx, map[string]interface{}{
		"chat_id":  chatID,
		"_orderby": "ctime desc, seq desc",
		"_limit":   []uint{0, limit},
	})
	if err != nil {
		return nil, err
	}
	for i, j := 0, len(msgs)-1; i < j; i, j = i+1, j-1 {
		msgs[i], msgs[j] = msgs[j], msgs[i]
	}
	return msgs, nil
}

func (r *MessageRepo) ListByChat(ctx context.Context, chatID string, offset, limit uint) ([]model.ChatMessage, error) {
	where := map[string]interface{}{
		"chat_id":  chatID,
		"_orderby": "ctime asc, seq asc",
	}
	if limit > 0 {
		where["_limit"] = []uint{offset, limit}
	}
	return r.list(ctx, where)
}

// GetOwned returns a message whose chat belongs to the tenant and user.
func (r *MessageRepo) GetOwned(ctx context.Context, tenantID, userID, messageID string) (*model.ChatMessage, error) {
	const sqlStr = `
		SELECT m.id, m.chat_id, m.role, m.content, m.citations, m.ctime
		FROM chat_messages m
		JOIN chats c ON c.id = m.chat_id
		WHERE m.id = $1 AND c.tenant_id = $2 AND c.user_id = $3
	`
	rows, err := r.db.QueryContext(ctx, sqlStr, messageID, tenantID, userID)
	if err != nil {
		return nil, dbutil.Classify(err)
	}
	defer rows.Close()
	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return nil, err
		}
		return nil, appErr.ErrNotFound
	}
	return scanMessage(rows)
}

func (r *MessageRepo) list(ctx context.Context, where map[string]interface{}) ([]model.ChatMessage, error) {
	sqlStr, args, err := builder.BuildSelect("chat_messages", where, messageFields)
	if err != nil {
		return nil, err
	}
	sqlStr, args = dbutil.Finalize(sqlStr, args)
	rows, err := r.db.QueryContext(ctx, sqlStr, args...)
	if err != nil {
		return nil, dbutil.Classify(err)
	}
	defer rows.Close()
	var msgs []model.ChatMessage
	for rows.Next() {
		msg, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		msgs = append(msgs, *msg)
	}
	return msgs, rows.Err()
}

func scanMessage(row rowScanner) (*model.ChatMessage, error) {
	var (
		msg model.ChatMessage
		raw []byte
	)
	if err := row.Scan(&msg.ID, &msg.ChatID, &msg.Role, &msg.Content, &raw, &msg.Ctime); err != nil {
		return nil, err
	}
	msg.Citations = []model.Citation{}
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &msg.Citations); err != nil {
			return nil, fmt.Errorf("decode citations: %w", err)
		}
	}
	return &msg, nil
}
