package entity

import (
	"strings"
	"time"
)

// User is the denormalized profile snapshot the chat needs. Registration and
// profile editing belong to the user service.
type User struct {
	ID              string    `json:"id" firestore:"id"`
	FirstName       string    `json:"first_name" firestore:"firstName"`
	LastName        string    `json:"last_name" firestore:"lastName"`
	ChatDisplayName string    `json:"chat_display_name,omitempty" firestore:"chatDisplayName,omitempty"`
	AvatarURL       string    `json:"avatar_url,omitempty" firestore:"avatarURL,omitempty"`
	IsActive        bool      `json:"is_active" firestore:"isActive"`
	CreatedAt       time.Time `json:"created_at" firestore:"createdAt"`
	UpdatedAt       time.Time `json:"updated_at" firestore:"updatedAt"`
}

func (u *User) DisplayName() string {
	if name := strings.TrimSpace(u.ChatDisplayName); name != "" {
		return name
	}
	return strings.TrimSpace(u.FirstName + " " + u.LastName)
}

// UserSnapshot is what outbound chat events carry about a user.
type UserSnapshot struct {
	ID          string `json:"id"`
	FirstName   string `json:"first_name,omitempty"`
	LastName    string `json:"last_name,omitempty"`
	DisplayName string `json:"display_name"`
	AvatarURL   string `json:"avatar_url,omitempty"`
}

func (u *User) Snapshot() UserSnapshot {
	return UserSnapshot{
		ID:          u.ID,
		FirstName:   u.FirstName,
		LastName:    u.LastName,
		DisplayName: u.DisplayName(),
		AvatarURL:   u.AvatarURL,
	}
}
