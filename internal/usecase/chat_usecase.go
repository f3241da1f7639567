package usecase

import (
	"context"
	"io"
	"net/http"
	"strings"

	"marketchat/internal/domain/entity"
	"marketchat/internal/domain/repository"
	"marketchat/internal/infrastructure/keylock"
	"marketchat/internal/infrastructure/ratelimit"
	ws "marketchat/internal/infrastructure/websocket"
	"marketchat/pkg/errors"
	"marketchat/pkg/logger"
)

type ChatUseCase struct {
	conversationRepo repository.ConversationRepository
	userRepo         repository.UserRepository
	registry         *ws.Registry
	rateLimiter      *ratelimit.RateLimiter
	attachments      AttachmentUploader
	locks            *keylock.Locker
	presence         *keylock.Locker

	explicitJoinDenial bool
}

type ChatOptions struct {
	RateLimiter *ratelimit.RateLimiter
	Attachments AttachmentUploader
	// ExplicitJoinDenial answers an unauthorized join with an error event
	// instead of dropping it silently.
	ExplicitJoinDenial bool
}

func NewChatUseCase(
	conversationRepo repository.ConversationRepository,
	userRepo repository.UserRepository,
	registry *ws.Registry,
	opts ChatOptions,
) *ChatUseCase {
	rateLimiter := opts.RateLimiter
	if rateLimiter == nil {
		rateLimiter = ratelimit.NewRateLimiter(nil)
	}

	return &ChatUseCase{
		conversationRepo:   conversationRepo,
		userRepo:           userRepo,
		registry:           registry,
		rateLimiter:        rateLimiter,
		attachments:        opts.Attachments,
		locks:              keylock.New(),
		presence:           keylock.New(),
		explicitJoinDenial: opts.ExplicitJoinDenial,
	}
}

type SendMessageInput struct {
	Content     string
	Type        entity.MessageType
	Attachments []entity.Attachment
}

type StartConversationInput struct {
	ListingID string
	SellerID  string
	Content   string
}

// ConversationSummary is one row of a user's conversation list.
type ConversationSummary struct {
	*entity.Conversation
	OtherParticipants []entity.UserSnapshot `json:"other_participants"`
	MyUnreadCount     int                   `json:"my_unread_count"`
}

type ConversationDetail struct {
	Conversation *ConversationSummary `json:"conversation"`
	Messages     []*entity.Message    `json:"messages"`
	Total        int64                `json:"total"`
	MarkedRead   []string             `json:"marked_read,omitempty"`
}

type UnreadSummary struct {
	Total         int            `json:"total"`
	Conversations map[string]int `json:"conversations"`
}

// appendAndBroadcast persists msg and then announces it. The conversation
// lock is held across both steps so broadcasts leave in log order; nothing
// is broadcast when the append fails.
func (uc *ChatUseCase) appendAndBroadcast(ctx context.Context, conversationID string, msg *entity.Message) (*entity.Conversation, error) {
	sender := uc.snapshot(ctx, msg.SenderID)

	unlock := uc.locks.Lock(conversationID)
	defer unlock()

	conv, err := uc.conversationRepo.AppendMessage(ctx, conversationID, msg)
	if err != nil {
		return nil, err
	}

	uc.registry.Broadcast(ws.ConversationChannel(conversationID), ws.NewEvent(ws.EventNewMessage, ws.NewMessageData{
		ConversationID: conversationID,
		Message:        msg,
		Sender:         sender,
		Conversation:   ws.NewConversationUpdate(conv),
	}), nil)

	for _, participant := range conv.OtherParticipants(msg.SenderID) {
		uc.registry.Broadcast(ws.PersonalChannel(participant), ws.NewEvent(ws.EventNewMessageNotification, ws.NewMessageNotificationData{
			ConversationID: conversationID,
			ListingID:      conv.ListingID,
			Message:        msg,
			Sender:         sender,
			UnreadCount:    conv.UnreadCount[participant],
		}), nil)
	}
	return conv, nil
}

// markReadAndBroadcast flips the given messages and tells the rest of the
// channel. except is the reader's connection, or nil for REST callers.
func (uc *ChatUseCase) markReadAndBroadcast(ctx context.Context, readerID, conversationID string, messageIDs []string, except *ws.Client) ([]string, error) {
	if len(messageIDs) == 0 {
		return nil, nil
	}

	unlock := uc.locks.Lock(conversationID)
	defer unlock()

	_, flipped, err := uc.conversationRepo.MarkRead(ctx, conversationID, messageIDs, readerID)
	if err != nil {
		return nil, err
	}
	if len(flipped) == 0 {
		return nil, nil
	}

	uc.registry.Broadcast(ws.ConversationChannel(conversationID), ws.NewEvent(ws.EventMessagesRead, ws.MessagesReadData{
		ConversationID: conversationID,
		MessageIDs:     flipped,
		ReaderID:       readerID,
	}), except)
	return flipped, nil
}

func (uc *ChatUseCase) snapshot(ctx context.Context, userID string) entity.UserSnapshot {
	user, err := uc.userRepo.GetByID(ctx, userID)
	if err != nil {
		logger.Debug("No profile for user %s: %v", userID, err)
		return entity.UserSnapshot{ID: userID}
	}
	return user.Snapshot()
}

func (uc *ChatUseCase) snapshots(ctx context.Context, ids []string) map[string]entity.UserSnapshot {
	out := make(map[string]entity.UserSnapshot, len(ids))
	users, err := uc.userRepo.GetByIDs(ctx, ids)
	if err != nil {
		logger.Warn("Failed to load user profiles: %v", err)
	}
	for _, id := range ids {
		if u, ok := users[id]; ok {
			out[id] = u.Snapshot()
		} else {
			out[id] = entity.UserSnapshot{ID: id}
		}
	}
	return out
}

func (uc *ChatUseCase) summarize(ctx context.Context, userID string, convs []*entity.Conversation) []*ConversationSummary {
	var ids []string
	seen := make(map[string]struct{})
	for _, conv := range convs {
		for _, p := range conv.OtherParticipants(userID) {
			if _, ok := seen[p]; !ok {
				seen[p] = struct{}{}
				ids = append(ids, p)
			}
		}
	}
	profiles := uc.snapshots(ctx, ids)

	out := make([]*ConversationSummary, 0, len(convs))
	for _, conv := range convs {
		others := make([]entity.UserSnapshot, 0, len(conv.Participants))
		for _, p := range conv.OtherParticipants(userID) {
			others = append(others, profiles[p])
		}
		out = append(out, &ConversationSummary{
			Conversation:      conv,
			OtherParticipants: others,
			MyUnreadCount:     conv.UnreadCount[userID],
		})
	}
	return out
}

func filterFromQuery(filter string) (repository.ConversationFilter, error) {
	switch strings.ToLower(strings.TrimSpace(filter)) {
	case "", "all":
		return repository.ConversationFilter{}, nil
	case "unread":
		return repository.ConversationFilter{Unread: true}, nil
	case "suspicious":
		return repository.ConversationFilter{Suspicious: true}, nil
	case repository.RoleSelling, "my-ads":
		return repository.ConversationFilter{Role: repository.RoleSelling}, nil
	case repository.RoleBuying, "others-ads":
		return repository.ConversationFilter{Role: repository.RoleBuying}, nil
	}
	return repository.ConversationFilter{}, errors.Validation("filter must be one of: all unread suspicious selling buying", nil)
}

func (uc *ChatUseCase) ListConversations(ctx context.Context, userID, filter string, limit, offset int) ([]*ConversationSummary, int64, error) {
	f, err := filterFromQuery(filter)
	if err != nil {
		return nil, 0, err
	}
	f.Limit = limit
	f.Offset = offset

	convs, total, err := uc.conversationRepo.ListByParticipant(ctx, userID, f)
	if err != nil {
		return nil, 0, err
	}
	return uc.summarize(ctx, userID, convs), total, nil
}

func (uc *ChatUseCase) GetUnreadSummary(ctx context.Context, userID string) (*UnreadSummary, error) {
	convs, _, err := uc.conversationRepo.ListByParticipant(ctx, userID, repository.ConversationFilter{Unread: true})
	if err != nil {
		return nil, err
	}
	summary := &UnreadSummary{Conversations: make(map[string]int, len(convs))}
	for _, conv := range convs {
		count := conv.UnreadCount[userID]
		summary.Conversations[conv.ID] = count
		summary.Total += count
	}
	return summary, nil
}

// GetConversation returns the conversation with one page of its history.
// With markRead, the messages on that page from other participants are
// marked read through the same path as the realtime read receipt.
func (uc *ChatUseCase) GetConversation(ctx context.Context, userID, conversationID string, limit, offset int, markRead bool) (*ConversationDetail, error) {
	conv, err := uc.conversationRepo.FindByIDForParticipant(ctx, conversationID, userID)
	if err != nil {
		return nil, err
	}
	messages, total, err := uc.conversationRepo.ListMessages(ctx, conversationID, limit, offset)
	if err != nil {
		return nil, err
	}

	detail := &ConversationDetail{Messages: messages, Total: total}
	if markRead {
		var unread []string
		for _, m := range messages {
			if !m.IsRead && m.SenderID != userID {
				unread = append(unread, m.ID)
			}
		}
		flipped, err := uc.markReadAndBroadcast(ctx, userID, conversationID, unread, nil)
		if err != nil {
			return nil, err
		}
		if len(flipped) > 0 {
			done := make(map[string]struct{}, len(flipped))
			for _, id := range flipped {
				done[id] = struct{}{}
			}
			for _, m := range messages {
				if _, ok := done[m.ID]; ok {
					m.IsRead = true
				}
			}
			if conv, err = uc.conversationRepo.FindByIDForParticipant(ctx, conversationID, userID); err != nil {
				return nil, err
			}
		}
		detail.MarkedRead = flipped
	}

	detail.Conversation = uc.summarize(ctx, userID, []*entity.Conversation{conv})[0]
	return detail, nil
}

func (uc *ChatUseCase) ListMessages(ctx context.Context, userID, conversationID string, limit, offset int) ([]*entity.Message, int64, error) {
	if _, err := uc.conversationRepo.FindByIDForParticipant(ctx, conversationID, userID); err != nil {
		return nil, 0, err
	}
	return uc.conversationRepo.ListMessages(ctx, conversationID, limit, offset)
}

// StartConversation is the contact-seller flow: it reuses the buyer's
// existing conversation about the listing or creates one, then sends the
// optional first message.
func (uc *ChatUseCase) StartConversation(ctx context.Context, userID string, input StartConversationInput) (*entity.Conversation, bool, error) {
	if input.SellerID == userID {
		return nil, false, errors.Validation("You cannot start a conversation with yourself", nil)
	}
	if _, err := uc.userRepo.GetByID(ctx, input.SellerID); err != nil {
		return nil, false, err
	}

	participants := []string{input.SellerID, userID}
	conv, err := uc.conversationRepo.FindByListingAndParticipants(ctx, input.ListingID, participants)
	created := false
	switch {
	case err == nil:
		if !conv.IsActive {
			if err := uc.conversationRepo.SetActive(ctx, conv.ID, userID, true); err != nil {
				return nil, false, err
			}
			conv.IsActive = true
		}
	case errors.Is(err, errors.CodeNotFound):
		if allowed, wait := uc.rateLimiter.Allow(userID, ratelimit.ActionCreateChat); !allowed {
			logger.Warn("StartConversation rate limited: user %s must wait %v", userID, wait)
			return nil, false, errors.TooManyRequests("Rate limit exceeded. Please wait before starting another conversation", wait)
		}
		conv = &entity.Conversation{
			ListingID:    input.ListingID,
			SellerID:     input.SellerID,
			Participants: participants,
		}
		if err := uc.conversationRepo.Create(ctx, conv); err != nil {
			return nil, false, err
		}
		created = true
		logger.Info("Conversation %s created for listing %s", conv.ID, input.ListingID)
	default:
		return nil, false, err
	}

	if input.Content != "" {
		updated, err := uc.appendAndBroadcast(ctx, conv.ID, &entity.Message{
			SenderID: userID,
			Content:  input.Content,
			Type:     entity.MessageTypeText,
		})
		if err != nil {
			return nil, created, err
		}
		conv = updated
	}
	return conv, created, nil
}

// SendMessage is the REST counterpart of the send_message event.
func (uc *ChatUseCase) SendMessage(ctx context.Context, userID, conversationID string, input SendMessageInput) (*entity.Message, error) {
	if allowed, wait := uc.rateLimiter.Allow(userID, ratelimit.ActionSendMessage); !allowed {
		return nil, errors.TooManyRequests("Rate limit exceeded. Please slow down", wait)
	}
	msgType := input.Type
	if msgType == "" {
		msgType = entity.MessageTypeText
	}
	if !msgType.Valid() {
		return nil, errors.Validation("type must be one of: text image location contact system", nil)
	}

	msg := &entity.Message{
		SenderID:    userID,
		Content:     input.Content,
		Type:        msgType,
		Attachments: input.Attachments,
	}
	if _, err := uc.appendAndBroadcast(ctx, conversationID, msg); err != nil {
		return nil, err
	}
	return msg, nil
}

func (uc *ChatUseCase) MarkMessagesRead(ctx context.Context, userID, conversationID string, messageIDs []string) ([]string, error) {
	if len(messageIDs) == 0 {
		return []string{}, nil
	}
	flipped, err := uc.markReadAndBroadcast(ctx, userID, conversationID, messageIDs, nil)
	if err != nil {
		return nil, err
	}
	if flipped == nil {
		flipped = []string{}
	}
	return flipped, nil
}

// DeleteConversation hides the conversation from list views. The log is
// kept and the conversation comes back if the buyer contacts the seller again.
func (uc *ChatUseCase) DeleteConversation(ctx context.Context, userID, conversationID string) error {
	return uc.conversationRepo.SetActive(ctx, conversationID, userID, false)
}

// MarkSuspicious is the moderation hook. The chat core never reads the flag.
func (uc *ChatUseCase) MarkSuspicious(ctx context.Context, userID, conversationID, reason string) error {
	if err := uc.conversationRepo.MarkSuspicious(ctx, conversationID, userID, strings.TrimSpace(reason)); err != nil {
		return err
	}
	logger.Info("Conversation %s flagged as suspicious by %s", conversationID, userID)
	return nil
}

func (uc *ChatUseCase) UploadAttachment(ctx context.Context, userID, conversationID, filename string, file io.Reader) (*entity.Attachment, error) {
	if uc.attachments == nil {
		return nil, errors.New("SERVICE_UNAVAILABLE", "Attachment uploads are not configured", http.StatusServiceUnavailable, nil)
	}
	if _, err := uc.conversationRepo.FindByIDForParticipant(ctx, conversationID, userID); err != nil {
		return nil, err
	}
	return uc.attachments.UploadAttachment(ctx, conversationID, filename, file)
}
