package handler

import (
	"github.com/labstack/echo/v4"

	"marketchat/internal/domain/entity"
	"marketchat/internal/domain/repository"
	"marketchat/internal/infrastructure/auth"
	"marketchat/pkg/errors"
	"marketchat/pkg/logger"
	"marketchat/pkg/response"
)

// DevTokenHandler issues session tokens for local testing. It is only routed
// in development.
type DevTokenHandler struct {
	issuer   *auth.JWTVerifier
	userRepo repository.UserRepository
}

func NewDevTokenHandler(issuer *auth.JWTVerifier, userRepo repository.UserRepository) *DevTokenHandler {
	return &DevTokenHandler{
		issuer:   issuer,
		userRepo: userRepo,
	}
}

type devTokenRequest struct {
	UserID    string `json:"user_id" validate:"required"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
}

// GenerateUserToken creates a new user profile and returns a signed token
// for it. Existing users are refused so their profile cannot be replaced.
func (h *DevTokenHandler) GenerateUserToken(c echo.Context) error {
	var req devTokenRequest
	if err := c.Bind(&req); err != nil {
		return response.Error(c, errors.BadRequest("Invalid request body", err))
	}
	if err := c.Validate(&req); err != nil {
		return response.Error(c, err)
	}

	ctx := c.Request().Context()
	if _, err := h.userRepo.GetByID(ctx, req.UserID); err == nil {
		return response.Error(c, errors.Conflict("User already exists"))
	} else if !errors.Is(err, errors.CodeNotFound) {
		return response.Error(c, err)
	}

	user := &entity.User{
		ID:        req.UserID,
		FirstName: req.FirstName,
		LastName:  req.LastName,
		IsActive:  true,
	}
	if err := h.userRepo.Create(ctx, user); err != nil {
		return response.Error(c, err)
	}

	token, err := h.issuer.Issue(user.ID)
	if err != nil {
		return response.Error(c, errors.Internal("Failed to sign token", err))
	}
	logger.Debug("Issued dev token for user %s", user.ID)

	return response.Success(c, map[string]interface{}{
		"token": token,
		"user":  user.Snapshot(),
	})
}
