package handler

import (
	"marketchat/internal/domain/repository"
	"marketchat/internal/infrastructure/auth"
	ws "marketchat/internal/infrastructure/websocket"
	"marketchat/internal/usecase"
)

var (
	userHandler     *UserHandler
	healthHandler   *HealthHandler
	devTokenHandler *DevTokenHandler
)

// Setup builds the handlers the routers look up by getter. issuer may be nil
// when tokens come from an external identity provider.
func Setup(
	userUseCase *usecase.UserUseCase,
	registry *ws.Registry,
	issuer *auth.JWTVerifier,
	userRepo repository.UserRepository,
) {
	userHandler = NewUserHandler(userUseCase)
	healthHandler = NewHealthHandler(registry)
	if issuer != nil {
		devTokenHandler = NewDevTokenHandler(issuer, userRepo)
	}
}

func GetUserHandler() *UserHandler {
	return userHandler
}

func GetHealthHandler() *HealthHandler {
	return healthHandler
}

func GetDevTokenHandler() *DevTokenHandler {
	return devTokenHandler
}
