package repository

import (
	"context"

	"marketchat/internal/domain/entity"
)

// UserRepository is the read side of the user service the chat depends on.
// Create and SetChatDisplayName exist for seeding and the display-name
// setting; profile management stays outside this service.
type UserRepository interface {
	Create(ctx context.Context, user *entity.User) error
	GetByID(ctx context.Context, id string) (*entity.User, error)
	GetByIDs(ctx context.Context, ids []string) (map[string]*entity.User, error)
	SetChatDisplayName(ctx context.Context, id, displayName string) error
}
