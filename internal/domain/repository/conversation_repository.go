package repository

import (
	"context"

	"marketchat/internal/domain/entity"
)

type ConversationFilter struct {
	// Unread keeps conversations where the caller has unread messages.
	Unread bool
	// Suspicious keeps conversations flagged by moderation.
	Suspicious bool
	// Role narrows to conversations on the caller's own listings ("selling")
	// or on other people's listings ("buying"). Empty means both.
	Role string
	// IncludeInactive also returns soft-deleted conversations.
	IncludeInactive bool
	Limit           int
	Offset          int
}

const (
	RoleSelling = "selling"
	RoleBuying  = "buying"
)

// Matches reports whether conv passes the filter for userID. Stores that
// cannot express a filter natively apply it in memory with this.
func (f ConversationFilter) Matches(conv *entity.Conversation, userID string) bool {
	if !f.IncludeInactive && !conv.IsActive {
		return false
	}
	if f.Unread && conv.UnreadCount[userID] == 0 {
		return false
	}
	if f.Suspicious && !conv.IsSuspicious {
		return false
	}
	switch f.Role {
	case RoleSelling:
		return conv.SellerID == userID
	case RoleBuying:
		return conv.SellerID != userID
	}
	return true
}

// ConversationRepository persists conversations and their ordered message
// logs. AppendMessage and MarkRead are atomic per conversation id: concurrent
// calls on one conversation never lose each other's effects, and calls on
// different conversations never wait for each other.
type ConversationRepository interface {
	// Create is used by the contact-seller flow, never by the dispatch protocol.
	Create(ctx context.Context, conv *entity.Conversation) error
	FindByIDForParticipant(ctx context.Context, conversationID, userID string) (*entity.Conversation, error)
	FindByListingAndParticipants(ctx context.Context, listingID string, participants []string) (*entity.Conversation, error)

	// AppendMessage assigns msg.ID (if empty) and msg.Timestamp, appends it to
	// the log and returns the updated conversation without its Messages.
	AppendMessage(ctx context.Context, conversationID string, msg *entity.Message) (*entity.Conversation, error)
	// MarkRead flips the listed messages to read when they are unread and not
	// sent by readerID. It returns the ids that actually flipped.
	MarkRead(ctx context.Context, conversationID string, messageIDs []string, readerID string) (*entity.Conversation, []string, error)

	ListByParticipant(ctx context.Context, userID string, filter ConversationFilter) ([]*entity.Conversation, int64, error)
	// ListMessages returns a page of the log, newest page first, each page in
	// ascending timestamp order.
	ListMessages(ctx context.Context, conversationID string, limit, offset int) ([]*entity.Message, int64, error)

	SetActive(ctx context.Context, conversationID, userID string, active bool) error
	MarkSuspicious(ctx context.Context, conversationID, userID, reason string) error
}
