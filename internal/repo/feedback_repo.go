package repo

import (
	"context"
	"database/sql"

	"github.com/didi/gendry/builder"

	"github.com/xxxsen/ragdesk/internal/model"
	"github.com/xxxsen/ragdesk/internal/pkg/dbutil"
	appErr "github.com/xxxsen/ragdesk/internal/pkg/errors"
)

type FeedbackRepo struct {
	db *sql.DB
}

func NewFeedbackRepo(db *sql.DB) *FeedbackRepo {
	return &FeedbackRepo{db: db}
}

func (r *FeedbackRepo) Create(ctx context.Context, fb *model.Feedback) error {
	data := map[string]interface{}{
		"id":         fb.ID,
		"chat_id":    fb.ChatID,
		"message_id": fb.MessageID,
		"user_id":    fb.UserID,
		"rating":     fb.Rating,
		"comment":    fb.Comment,
		"ctime":      fb.Ctime,
	}
	sqlStr, args, err := builder.BuildInsert("feedbacks", []map[string]interface{}{data})
	if err != nil {
		return err
	}
	sqlStr, args = dbutil.Finalize(sqlStr, args)
	if _, err := r.db.ExecContext(ctx, sqlStr, args...); err != nil {
		if dbutil.IsConflict(err) {
			return appErr.ErrConflict
		}
		return dbutil.Classify(err)
	}
	return nil
}

func (r *FeedbackRepo) ListByMessage(ctx context.Context, messageID string) ([]model.Feedback, error) {
	where := map[string]interface{}{
		"message_id": messageID,
		"_orderby":   "ctime asc",
	}
	sqlStr, args, err := builder.BuildSelect("feedbacks", where, []string{"id", "chat_id", "message_id", "user_id", "rating", "comment", "ctime"})
	if err != nil {
		return nil, err
	}
	sqlStr, args = dbutil.Finalize(sqlStr, args)
	rows, err := r.db.QueryContext(ctx, sqlStr, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.Feedback
	for rows.Next() {
		var fb model.Feedback
		if err := rows.Scan(&fb.ID, &fb.ChatID, &fb.MessageID, &fb.UserID, &fb.Rating, &fb.Comment, &fb.Ctime); err != nil {
			return nil, err
		}
		out = append(out, fb)
	}
	return out, rows.Err()
}
