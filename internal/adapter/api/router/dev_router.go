package router

import (
	"marketchat/internal/adapter/api/handler"
	"marketchat/pkg/config"

	"github.com/labstack/echo/v4"
)

func SetupDevRouter(e *echo.Echo, environment string) {
	if environment != config.EnvDevelopment {
		return
	}
	devTokenHandler := handler.GetDevTokenHandler()
	if devTokenHandler == nil {
		return
	}

	e.POST("/_dev/token", devTokenHandler.GenerateUserToken)
}
