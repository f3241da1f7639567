package usecase

import (
	"context"
	"time"

	"marketchat/internal/domain/entity"
	"marketchat/internal/infrastructure/ratelimit"
	ws "marketchat/internal/infrastructure/websocket"
	"marketchat/pkg/errors"
	"marketchat/pkg/logger"
)

const eventTimeout = 10 * time.Second

// Connect registers an authenticated connection and subscribes it to its
// user's personal channel. Presence changes for one user are serialized so
// the last online/offline event others see matches the registry.
func (uc *ChatUseCase) Connect(c *ws.Client) {
	unlock := uc.presence.Lock(c.UserID)
	defer unlock()

	first := uc.registry.SubscribeSelf(c)
	logger.Info("WebSocket: user %s connected (client %s)", c.UserID, c.ID)

	if first {
		uc.broadcastPresence(c, ws.StatusOnline)
	}
}

// Disconnect drops the connection from every channel. Other users see the
// user go offline once their last connection is gone.
func (uc *ChatUseCase) Disconnect(c *ws.Client) {
	c.Close()

	unlock := uc.presence.Lock(c.UserID)
	defer unlock()

	left, stillOnline := uc.registry.UnsubscribeAll(c)
	logger.Info("WebSocket: user %s disconnected (client %s, %d channels)", c.UserID, c.ID, len(left))

	if !stillOnline {
		uc.broadcastPresence(c, ws.StatusOffline)
	}
}

func (uc *ChatUseCase) broadcastPresence(c *ws.Client, status string) {
	uc.registry.BroadcastAll(ws.NewEvent(ws.EventUserStatusChanged, ws.StatusData{
		UserID:   c.UserID,
		Status:   status,
		LastSeen: time.Now().UTC(),
	}), c)
}

// HandleFrame decodes one inbound frame and dispatches it. Failures are
// reported to the sending connection only and never close it.
func (uc *ChatUseCase) HandleFrame(c *ws.Client, raw []byte) {
	event, err := ws.DecodeEvent(raw)
	if err != nil {
		logger.LogEventError("decode", c.UserID, "", err)
		uc.sendError(c, "", err, "", "")
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), eventTimeout)
	defer cancel()

	if err := uc.HandleEvent(ctx, c, event); err != nil {
		conversationID, clientID := eventRefs(event)
		logger.LogEventError(event.EventType(), c.UserID, conversationID, err)
		uc.sendError(c, event.EventType(), err, conversationID, clientID)
	}
}

// HandleEvent applies one decoded event for the connection's user.
func (uc *ChatUseCase) HandleEvent(ctx context.Context, c *ws.Client, event ws.InboundEvent) error {
	switch e := event.(type) {
	case ws.JoinConversation:
		return uc.joinConversation(ctx, c, e)
	case ws.LeaveConversation:
		uc.registry.Leave(c, e.ConversationID)
		return nil
	case ws.SendMessage:
		return uc.sendMessage(ctx, c, e)
	case ws.TypingStart:
		return uc.typing(ctx, c, e.ConversationID, true)
	case ws.TypingStop:
		return uc.typing(ctx, c, e.ConversationID, false)
	case ws.MarkMessagesRead:
		_, err := uc.markReadAndBroadcast(ctx, c.UserID, e.ConversationID, e.MessageIDs, c)
		return err
	case ws.UpdateStatus:
		uc.registry.BroadcastAll(ws.NewEvent(ws.EventUserStatusChanged, ws.StatusData{
			UserID:   c.UserID,
			Status:   e.Status,
			LastSeen: time.Now().UTC(),
		}), c)
		return nil
	case ws.Ping:
		c.SendEvent(ws.NewEvent(ws.EventPong, ws.PongData{Status: "alive"}))
		return nil
	}
	return errors.Validation("Unsupported event", nil)
}

func (uc *ChatUseCase) joinConversation(ctx context.Context, c *ws.Client, e ws.JoinConversation) error {
	if _, err := uc.conversationRepo.FindByIDForParticipant(ctx, e.ConversationID, c.UserID); err != nil {
		if errors.Is(err, errors.CodeNotFound) && !uc.explicitJoinDenial {
			logger.Debug("WebSocket: dropped join of %s by %s: %v", e.ConversationID, c.UserID, err)
			return nil
		}
		return err
	}

	uc.registry.Join(c, e.ConversationID)
	c.SendEvent(ws.NewEvent(ws.EventConversationJoined, ws.ConversationJoinedData{ConversationID: e.ConversationID}))
	return nil
}

func (uc *ChatUseCase) sendMessage(ctx context.Context, c *ws.Client, e ws.SendMessage) error {
	if allowed, wait := uc.rateLimiter.Allow(c.UserID, ratelimit.ActionSendMessage); !allowed {
		return errors.TooManyRequests("Rate limit exceeded. Please slow down", wait)
	}

	msg := &entity.Message{
		SenderID:    c.UserID,
		Content:     e.Content,
		Type:        e.Type,
		Attachments: make([]entity.Attachment, 0, len(e.Attachments)),
	}
	for _, a := range e.Attachments {
		msg.Attachments = append(msg.Attachments, entity.Attachment{URL: a.URL, Type: a.Type, Name: a.Name, Size: a.Size})
	}

	if _, err := uc.appendAndBroadcast(ctx, e.ConversationID, msg); err != nil {
		return err
	}

	c.SendEvent(ws.NewEvent(ws.EventMessageSent, ws.MessageSentData{
		ConversationID: e.ConversationID,
		MessageID:      msg.ID,
		ClientID:       e.ClientID,
		Timestamp:      msg.Timestamp,
	}))
	return nil
}

// typing relays an ephemeral indicator. A joined connection has already
// proven membership; anyone else is checked against the store.
func (uc *ChatUseCase) typing(ctx context.Context, c *ws.Client, conversationID string, started bool) error {
	if allowed, wait := uc.rateLimiter.Allow(c.UserID, ratelimit.ActionTyping); !allowed {
		return errors.TooManyRequests("Rate limit exceeded. Please slow down", wait)
	}
	if !uc.registry.IsSubscribed(c, conversationID) {
		if _, err := uc.conversationRepo.FindByIDForParticipant(ctx, conversationID, c.UserID); err != nil {
			return err
		}
	}

	eventType := ws.EventUserStoppedTyping
	data := ws.TypingData{ConversationID: conversationID, UserID: c.UserID}
	if started {
		eventType = ws.EventUserTyping
		data.User = uc.snapshot(ctx, c.UserID)
	}
	uc.registry.Broadcast(ws.ConversationChannel(conversationID), ws.NewEvent(eventType, data), c)
	return nil
}

func (uc *ChatUseCase) sendError(c *ws.Client, eventType string, err error, conversationID, clientID string) {
	c.SendEvent(ws.NewEvent(ws.EventError, ws.ErrorData{
		Code:           errors.CodeOf(err),
		Message:        errors.PublicMessage(err),
		Event:          eventType,
		ConversationID: conversationID,
		ClientID:       clientID,
	}))
}

func eventRefs(event ws.InboundEvent) (string, string) {
	switch e := event.(type) {
	case ws.JoinConversation:
		return e.ConversationID, ""
	case ws.LeaveConversation:
		return e.ConversationID, ""
	case ws.SendMessage:
		return e.ConversationID, e.ClientID
	case ws.TypingStart:
		return e.ConversationID, ""
	case ws.TypingStop:
		return e.ConversationID, ""
	case ws.MarkMessagesRead:
		return e.ConversationID, ""
	}
	return "", ""
}
