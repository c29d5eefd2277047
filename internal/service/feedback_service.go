package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/xxxsen/ragdesk/internal/model"
	appErr "github.com/xxxsen/ragdesk/internal/pkg/errors"
	"github.com/xxxsen/ragdesk/internal/pkg/timeutil"
)

const (
	MinRating       = 1
	MaxRating       = 5
	maxCommentRunes = 2000
)

type FeedbackStore interface {
	Create(ctx context.Context, fb *model.Feedback) error
}

type OwnedMessageGetter interface {
	GetOwned(ctx context.Context, tenantID, userID, messageID string) (*model.ChatMessage, error)
}

type FeedbackService struct {
	feedbacks FeedbackStore
	messages  OwnedMessageGetter
}

func NewFeedbackService(feedbacks FeedbackStore, messages OwnedMessageGetter) *FeedbackService {
	return &FeedbackService{feedbacks: feedbacks, messages: messages}
}

// Submit records one rating per message and user. rating 0 means no rating,
// in which case a comment is required.
func (s *FeedbackService) Submit(ctx context.Context, tenantID, userID, messageID string, rating int, comment string) (*model.Feedback, error) {
	comment = strings.TrimSpace(comment)
	if rating != 0 && (rating < MinRating || rating > MaxRating) {
		return nil, fmt.Errorf("%w: rating must be between %d and %d", appErr.ErrInvalid, MinRating, MaxRating)
	}
	if rating == 0 && comment == "" {
		return nil, fmt.Errorf("%w: rating or comment is required", appErr.ErrInvalid)
	}
	if len([]rune(comment)) > maxCommentRunes {
		return nil, fmt.Errorf("%w: comment too long", appErr.ErrInvalid)
	}
	msg, err := s.messages.GetOwned(ctx, tenantID, userID, messageID)
	if err != nil {
		return nil, err
	}
	fb := &model.Feedback{
		ID:        newID(),
		ChatID:    msg.ChatID,
		MessageID: msg.ID,
		UserID:    userID,
		Rating:    rating,
		Comment:   comment,
		Ctime:     timeutil.NowMilli(),
	}
	if err := s.feedbacks.Create(ctx, fb); err != nil {
		return nil, err
	}
	return fb, nil
}
