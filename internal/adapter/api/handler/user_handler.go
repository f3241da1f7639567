package handler

import (
	"github.com/labstack/echo/v4"

	"marketchat/internal/usecase"
	"marketchat/pkg/errors"
	"marketchat/pkg/response"
)

type UserHandler struct {
	userUseCase *usecase.UserUseCase
}

func NewUserHandler(userUseCase *usecase.UserUseCase) *UserHandler {
	return &UserHandler{
		userUseCase: userUseCase,
	}
}

type updateDisplayNameRequest struct {
	DisplayName string `json:"display_name" validate:"required,max=50"`
}

func (h *UserHandler) GetProfile(c echo.Context) error {
	uid := c.Get("uid").(string)

	user, err := h.userUseCase.GetProfile(c.Request().Context(), uid)
	if err != nil {
		return response.Error(c, err)
	}

	return response.Success(c, user)
}

// UpdateChatDisplayName sets the name other participants see in chat events.
func (h *UserHandler) UpdateChatDisplayName(c echo.Context) error {
	var req updateDisplayNameRequest
	if err := c.Bind(&req); err != nil {
		return response.Error(c, errors.BadRequest("Invalid request body", err))
	}
	if err := c.Validate(&req); err != nil {
		return response.Error(c, err)
	}

	uid := c.Get("uid").(string)
	user, err := h.userUseCase.SetChatDisplayName(c.Request().Context(), uid, req.DisplayName)
	if err != nil {
		return response.Error(c, err)
	}

	return response.Success(c, map[string]interface{}{
		"id":                user.ID,
		"chat_display_name": user.ChatDisplayName,
		"display_name":      user.DisplayName(),
	})
}
