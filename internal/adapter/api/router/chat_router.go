package router

import (
	"github.com/labstack/echo/v4"

	"marketchat/internal/adapter/api/handler"
	"marketchat/internal/adapter/api/middleware"
	"marketchat/internal/infrastructure/ratelimit"
)

// SetupChatRouter sets up all conversation routes (excluding WebSocket)
func SetupChatRouter(e *echo.Echo, chatHandler *handler.ChatHandler, authMiddleware *middleware.AuthMiddleware, limiter *ratelimit.RateLimiter) {
	conversations := e.Group("/v1/conversations")
	conversations.Use(authMiddleware.Authenticate)
	conversations.Use(middleware.RateLimit(limiter, ratelimit.ActionDefault))

	conversations.GET("", chatHandler.ListConversations)
	conversations.POST("", chatHandler.StartConversation)
	conversations.GET("/unread", chatHandler.GetUnreadSummary)

	conversations.GET("/:id", chatHandler.GetConversation)
	conversations.DELETE("/:id", chatHandler.DeleteConversation)
	conversations.POST("/:id/mark-suspicious", chatHandler.MarkSuspicious)

	conversations.GET("/:id/messages", chatHandler.ListMessages)
	conversations.POST("/:id/messages", chatHandler.SendMessage)
	conversations.PUT("/:id/read", chatHandler.MarkMessagesRead)
	conversations.POST("/:id/attachments", chatHandler.UploadAttachment)
}
