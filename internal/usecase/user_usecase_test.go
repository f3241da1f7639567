package usecase

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	adapterrepo "marketchat/internal/adapter/repository"
	"marketchat/internal/domain/entity"
	"marketchat/pkg/errors"
)

func TestSetChatDisplayName(t *testing.T) {
	users := adapterrepo.NewMemoryUserRepository(&entity.User{ID: "alice", FirstName: "Alice", IsActive: true})
	uc := NewUserUseCase(users)
	ctx := context.Background()

	user, err := uc.SetChatDisplayName(ctx, "alice", "  Bike Shop  ")
	require.NoError(t, err)
	assert.Equal(t, "Bike Shop", user.ChatDisplayName)
	assert.Equal(t, "Bike Shop", user.DisplayName())

	tests := []struct {
		name string
		in   string
		code string
	}{
		{"empty", "   ", errors.CodeValidation},
		{"too long", strings.Repeat("ä", 51), errors.CodeValidation},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := uc.SetChatDisplayName(ctx, "alice", tt.in)
			assert.True(t, errors.Is(err, tt.code))
		})
	}

	_, err = uc.SetChatDisplayName(ctx, "ghost", "Ghost")
	assert.True(t, errors.Is(err, errors.CodeNotFound))

	profile, err := uc.GetProfile(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, "Bike Shop", profile.ChatDisplayName)
}
