package handler

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/xxxsen/ragdesk/internal/middleware"
)

type RouterDeps struct {
	Documents   *DocumentHandler
	Chats       *ChatHandler
	Feedbacks   *FeedbackHandler
	Tenants     middleware.TenantGetter
	JWTSecret   []byte
	AskInterval time.Duration
}

func RegisterRoutes(api *gin.RouterGroup, deps RouterDeps) {
	authGroup := api.Group("")
	authGroup.Use(middleware.JWTAuth(deps.JWTSecret), middleware.ActiveTenant(deps.Tenants))

	authGroup.POST("/documents", deps.Documents.Upload)
	authGroup.GET("/documents", deps.Documents.List)
	authGroup.GET("/documents/:id", deps.Documents.Get)
	authGroup.GET("/documents/:id/raw", deps.Documents.Raw)
	authGroup.DELETE("/documents/:id", deps.Documents.Delete)

	authGroup.POST("/chat/ask", middleware.RateLimit(deps.AskInterval), deps.Chats.Ask)
	authGroup.GET("/chats", deps.Chats.List)
	authGroup.GET("/chats/:id/messages", deps.Chats.Messages)

	authGroup.POST("/messages/:id/feedback", deps.Feedbacks.Submit)
}
