package handler

import (
	"context"

	"github.com/gin-gonic/gin"

	"github.com/xxxsen/ragdesk/internal/model"
	"github.com/xxxsen/ragdesk/internal/pkg/errcode"
	"github.com/xxxsen/ragdesk/internal/pkg/response"
	"github.com/xxxsen/ragdesk/internal/service"
)

type Answerer interface {
	Answer(ctx context.Context, in service.AnswerInput) (*service.AnswerResult, error)
	ListChats(ctx context.Context, tenantID, userID string, offset, limit uint) ([]model.Chat, error)
	ListMessages(ctx context.Context, tenantID, userID, chatID string, offset, limit uint) ([]model.ChatMessage, error)
}

type ChatHandler struct {
	chats Answerer
}

func NewChatHandler(chats Answerer) *ChatHandler {
	return &ChatHandler{chats: chats}
}

type askRequest struct {
	Question string `json:"question"`
	ChatID   string `json:"chat_id"`
}

func (h *ChatHandler) Ask(c *gin.Context) {
	var req askRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, errcode.ErrInvalid, "invalid request")
		return
	}
	res, err := h.chats.Answer(c.Request.Context(), service.AnswerInput{
		TenantID: getTenantID(c),
		UserID:   getUserID(c),
		ChatID:   req.ChatID,
		Question: req.Question,
	})
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, res)
}

func (h *ChatHandler) List(c *gin.Context) {
	offset, limit := pagination(c)
	chats, err := h.chats.ListChats(c.Request.Context(), getTenantID(c), getUserID(c), offset, limit)
	if err != nil {
		handleError(c, err)
		return
	}
	response.List(c, chats)
}

func (h *ChatHandler) Messages(c *gin.Context) {
	offset, limit := pagination(c)
	msgs, err := h.chats.ListMessages(c.Request.Context(), getTenantID(c), getUserID(c), c.Param("id"), offset, limit)
	if err != nil {
		handleError(c, err)
		return
	}
	response.List(c, msgs)
}
