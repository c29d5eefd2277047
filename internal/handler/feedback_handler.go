package handler

import (
	"context"

	"github.com/gin-gonic/gin"

	"github.com/xxxsen/ragdesk/internal/model"
	"github.com/xxxsen/ragdesk/internal/pkg/errcode"
	"github.com/xxxsen/ragdesk/internal/pkg/response"
)

type FeedbackSubmitter interface {
	Submit(ctx context.Context, tenantID, userID, messageID string, rating int, comment string) (*model.Feedback, error)
}

type FeedbackHandler struct {
	feedbacks FeedbackSubmitter
}

func NewFeedbackHandler(feedbacks FeedbackSubmitter) *FeedbackHandler {
	return &FeedbackHandler{feedbacks: feedbacks}
}

type feedbackRequest struct {
	Rating  int    `json:"rating"`
	Comment string `json:"comment"`
}

func (h *FeedbackHandler) Submit(c *gin.Context) {
	var req feedbackRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, errcode.ErrInvalid, "invalid request")
		return
	}
	fb, err := h.feedbacks.Submit(c.Request.Context(), getTenantID(c), getUserID(c), c.Param("id"), req.Rating, req.Comment)
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, fb)
}
