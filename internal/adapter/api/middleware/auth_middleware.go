package middleware

import (
	"github.com/labstack/echo/v4"

	"marketchat/internal/infrastructure/auth"
	"marketchat/pkg/logger"
	"marketchat/pkg/response"
)

type AuthMiddleware struct {
	authenticator *auth.Authenticator
}

func NewAuthMiddleware(authenticator *auth.Authenticator) *AuthMiddleware {
	return &AuthMiddleware{
		authenticator: authenticator,
	}
}

// Authenticate resolves the request credential to an active user and stores
// its id under "uid" and the user under "user".
func (m *AuthMiddleware) Authenticate(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		user, err := m.authenticator.Authenticate(c.Request().Context(), auth.CredentialFromRequest(c.Request()))
		if err != nil {
			logger.Debug("Rejected request to %s: %v", c.Path(), err)
			return response.Error(c, err)
		}

		c.Set("uid", user.ID)
		c.Set("user", user)
		return next(c)
	}
}
