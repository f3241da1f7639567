package router

import (
	"marketchat/internal/adapter/api/handler"
	"marketchat/internal/adapter/api/middleware"
	"marketchat/internal/infrastructure/ratelimit"

	"github.com/labstack/echo/v4"
)

func Setup(
	e *echo.Echo,
	authMiddleware *middleware.AuthMiddleware,
	limiter *ratelimit.RateLimiter,
	chatHandler *handler.ChatHandler,
	wsHandler *handler.WebSocketHandler,
	environment string,
) {
	SetupHealthRouter(e)
	SetupUserRouter(e, authMiddleware)
	SetupChatRouter(e, chatHandler, authMiddleware, limiter)
	SetupWebSocketRouter(e, wsHandler)
	SetupDevRouter(e, environment)
}
