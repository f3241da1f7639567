package usecase

import (
	"context"
	"strings"
	"unicode/utf8"

	"marketchat/internal/domain/entity"
	"marketchat/internal/domain/repository"
	"marketchat/pkg/errors"
)

const maxDisplayNameLength = 50

type UserUseCase struct {
	userRepo repository.UserRepository
}

func NewUserUseCase(userRepo repository.UserRepository) *UserUseCase {
	return &UserUseCase{
		userRepo: userRepo,
	}
}

func (uc *UserUseCase) GetProfile(ctx context.Context, userID string) (*entity.User, error) {
	return uc.userRepo.GetByID(ctx, userID)
}

// SetChatDisplayName sets the name shown to other participants instead of
// the user's first and last name.
func (uc *UserUseCase) SetChatDisplayName(ctx context.Context, userID, displayName string) (*entity.User, error) {
	displayName = strings.TrimSpace(displayName)
	if displayName == "" {
		return nil, errors.Validation("Display name is required", nil)
	}
	if utf8.RuneCountInString(displayName) > maxDisplayNameLength {
		return nil, errors.Validation("Display name must be at most 50 characters", nil)
	}

	if err := uc.userRepo.SetChatDisplayName(ctx, userID, displayName); err != nil {
		return nil, err
	}
	return uc.userRepo.GetByID(ctx, userID)
}
