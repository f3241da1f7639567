package websocket

import (
	"bytes"
	"encoding/json"
	stderrors "errors"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"marketchat/internal/domain/entity"
	"marketchat/pkg/errors"
	"marketchat/pkg/response"
)

// Inbound event types
const (
	EventJoinConversation  = "join_conversation"
	EventLeaveConversation = "leave_conversation"
	EventSendMessage       = "send_message"
	EventTypingStart       = "typing_start"
	EventTypingStop        = "typing_stop"
	EventMarkMessagesRead  = "mark_messages_read"
	EventUpdateStatus      = "update_status"
	EventPing              = "ping"
)

// Outbound event types
const (
	EventConversationJoined     = "conversation_joined"
	EventNewMessage             = "new_message"
	EventNewMessageNotification = "new_message_notification"
	EventMessageSent            = "message_sent"
	EventUserTyping             = "user_typing"
	EventUserStoppedTyping      = "user_stopped_typing"
	EventMessagesRead           = "messages_read"
	EventUserStatusChanged      = "user_status_changed"
	EventPong                   = "pong"
	EventError                  = "error"
)

const (
	StatusOnline  = "online"
	StatusAway    = "away"
	StatusBusy    = "busy"
	StatusOffline = "offline"
)

// Frame is the wire shape of every inbound message.
type Frame struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

// Event is the wire shape of every outbound message.
type Event struct {
	Type      string      `json:"type"`
	Data      interface{} `json:"data"`
	Timestamp string      `json:"timestamp"`
}

func NewEvent(eventType string, data interface{}) Event {
	return Event{
		Type:      eventType,
		Data:      data,
		Timestamp: time.Now().UTC().Format(time.RFC3339Nano),
	}
}

// InboundEvent is implemented only by the event types in this file, so a
// type switch over it is exhaustive.
type InboundEvent interface {
	EventType() string
	inbound()
}

type JoinConversation struct {
	ConversationID string `json:"conversation_id" validate:"required"`
}

type LeaveConversation struct {
	ConversationID string `json:"conversation_id" validate:"required"`
}

type SendMessage struct {
	ConversationID string             `json:"conversation_id" validate:"required"`
	Content        string             `json:"content"`
	Type           entity.MessageType `json:"type" validate:"omitempty,oneof=text image location contact system"`
	Attachments    []AttachmentInput  `json:"attachments" validate:"omitempty,max=10,dive"`
	// ClientID is echoed back in message_sent so the sender can reconcile
	// its optimistic copy.
	ClientID string `json:"client_id,omitempty" validate:"omitempty,max=64"`
}

type AttachmentInput struct {
	URL  string `json:"url" validate:"required,url"`
	Type string `json:"type" validate:"required"`
	Name string `json:"name"`
	Size int64  `json:"size" validate:"gte=0"`
}

type TypingStart struct {
	ConversationID string `json:"conversation_id" validate:"required"`
}

type TypingStop struct {
	ConversationID string `json:"conversation_id" validate:"required"`
}

type MarkMessagesRead struct {
	ConversationID string   `json:"conversation_id" validate:"required"`
	MessageIDs     []string `json:"message_ids" validate:"omitempty,max=500,dive,required"`
}

type UpdateStatus struct {
	Status string `json:"status" validate:"required,oneof=online away busy offline"`
}

type Ping struct{}

func (JoinConversation) EventType() string  { return EventJoinConversation }
func (LeaveConversation) EventType() string { return EventLeaveConversation }
func (SendMessage) EventType() string       { return EventSendMessage }
func (TypingStart) EventType() string       { return EventTypingStart }
func (TypingStop) EventType() string        { return EventTypingStop }
func (MarkMessagesRead) EventType() string  { return EventMarkMessagesRead }
func (UpdateStatus) EventType() string      { return EventUpdateStatus }
func (Ping) EventType() string              { return EventPing }

func (JoinConversation) inbound()  {}
func (LeaveConversation) inbound() {}
func (SendMessage) inbound()       {}
func (TypingStart) inbound()       {}
func (TypingStop) inbound()        {}
func (MarkMessagesRead) inbound()  {}
func (UpdateStatus) inbound()      {}
func (Ping) inbound()              {}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(field reflect.StructField) string {
		name := strings.SplitN(field.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// DecodeEvent parses and validates one inbound frame. Every failure is a
// ValidationError; the connection stays open.
func DecodeEvent(raw []byte) (InboundEvent, error) {
	var frame Frame
	if err := json.Unmarshal(raw, &frame); err != nil {
		return nil, errors.Validation("Invalid message format", err)
	}

	var event InboundEvent
	switch frame.Type {
	case EventJoinConversation:
		e := JoinConversation{}
		if err := decodeBareString(frame.Data, &e, &e.ConversationID); err != nil {
			return nil, err
		}
		event = e
	case EventLeaveConversation:
		e := LeaveConversation{}
		if err := decodeBareString(frame.Data, &e, &e.ConversationID); err != nil {
			return nil, err
		}
		event = e
	case EventSendMessage:
		e := SendMessage{}
		if err := decodeData(frame.Data, &e); err != nil {
			return nil, err
		}
		if e.Type == "" {
			e.Type = entity.MessageTypeText
		}
		event = e
	case EventTypingStart:
		e := TypingStart{}
		if err := decodeBareString(frame.Data, &e, &e.ConversationID); err != nil {
			return nil, err
		}
		event = e
	case EventTypingStop:
		e := TypingStop{}
		if err := decodeBareString(frame.Data, &e, &e.ConversationID); err != nil {
			return nil, err
		}
		event = e
	case EventMarkMessagesRead:
		e := MarkMessagesRead{}
		if err := decodeData(frame.Data, &e); err != nil {
			return nil, err
		}
		event = e
	case EventUpdateStatus:
		e := UpdateStatus{}
		if err := decodeBareString(frame.Data, &e, &e.Status); err != nil {
			return nil, err
		}
		event = e
	case EventPing:
		event = Ping{}
	case "":
		return nil, errors.Validation("type is required", nil)
	default:
		return nil, errors.Validation("Unknown message type: "+frame.Type, nil)
	}

	if err := validate.Struct(event); err != nil {
		var fieldErrs validator.ValidationErrors
		if stderrors.As(err, &fieldErrs) && len(fieldErrs) > 0 {
			return nil, errors.Validation(response.ValidationMessage(fieldErrs[0]), err)
		}
		return nil, errors.Validation("Invalid event payload", err)
	}
	return event, nil
}

func decodeData(data json.RawMessage, target interface{}) error {
	if isEmptyPayload(data) {
		return nil
	}
	if err := json.Unmarshal(data, target); err != nil {
		return errors.Validation("Invalid event payload", err)
	}
	return nil
}

// decodeBareString also accepts a bare string as the whole payload, which
// older clients send for join, leave, typing and status updates.
func decodeBareString(data json.RawMessage, target interface{}, field *string) error {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) > 0 && trimmed[0] == '"' {
		if err := json.Unmarshal(trimmed, field); err != nil {
			return errors.Validation("Invalid event payload", err)
		}
		return nil
	}
	return decodeData(data, target)
}

func isEmptyPayload(data json.RawMessage) bool {
	trimmed := bytes.TrimSpace(data)
	return len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null"))
}

// Outbound payloads

type ConversationJoinedData struct {
	ConversationID string `json:"conversation_id"`
}

type NewMessageData struct {
	ConversationID string              `json:"conversation_id"`
	Message        *entity.Message     `json:"message"`
	Sender         entity.UserSnapshot `json:"sender"`
	Conversation   ConversationUpdate  `json:"conversation"`
}

// ConversationUpdate is enough for a client to re-sort its conversation list
// without reloading it.
type ConversationUpdate struct {
	ID          string          `json:"id"`
	LastMessage *entity.Message `json:"last_message,omitempty"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

func NewConversationUpdate(conv *entity.Conversation) ConversationUpdate {
	return ConversationUpdate{
		ID:          conv.ID,
		LastMessage: conv.LastMessage,
		UpdatedAt:   conv.UpdatedAt,
	}
}

type NewMessageNotificationData struct {
	ConversationID string              `json:"conversation_id"`
	ListingID      string              `json:"listing_id"`
	Message        *entity.Message     `json:"message"`
	Sender         entity.UserSnapshot `json:"sender"`
	UnreadCount    int                 `json:"unread_count"`
}

type MessageSentData struct {
	ConversationID string    `json:"conversation_id"`
	MessageID      string    `json:"message_id"`
	ClientID       string    `json:"client_id,omitempty"`
	Timestamp      time.Time `json:"timestamp"`
}

type TypingData struct {
	ConversationID string              `json:"conversation_id"`
	UserID         string              `json:"user_id"`
	User           entity.UserSnapshot `json:"user"`
}

type MessagesReadData struct {
	ConversationID string   `json:"conversation_id"`
	MessageIDs     []string `json:"message_ids"`
	ReaderID       string   `json:"reader_id"`
}

type StatusData struct {
	UserID   string    `json:"user_id"`
	Status   string    `json:"status"`
	LastSeen time.Time `json:"last_seen"`
}

type PongData struct {
	Status string `json:"status"`
}

type ErrorData struct {
	Code           string `json:"code"`
	Message        string `json:"message"`
	Event          string `json:"event,omitempty"`
	ConversationID string `json:"conversation_id,omitempty"`
	ClientID       string `json:"client_id,omitempty"`
}
