package entity

import "time"

type MessageType string

const (
	MessageTypeText     MessageType = "text"
	MessageTypeImage    MessageType = "image"
	MessageTypeLocation MessageType = "location"
	MessageTypeContact  MessageType = "contact"
	MessageTypeSystem   MessageType = "system"
)

func (t MessageType) Valid() bool {
	switch t {
	case MessageTypeText, MessageTypeImage, MessageTypeLocation, MessageTypeContact, MessageTypeSystem:
		return true
	}
	return false
}

type Message struct {
	ID             string       `json:"id" firestore:"id"`
	ConversationID string       `json:"conversation_id" firestore:"conversationId"`
	Seq            int64        `json:"seq" firestore:"seq"` // 1-based position in the log
	SenderID       string       `json:"sender_id" firestore:"senderId"`
	Content        string       `json:"content" firestore:"content"`
	Type           MessageType  `json:"type" firestore:"type"`
	Timestamp      time.Time    `json:"timestamp" firestore:"timestamp"`
	IsRead         bool         `json:"is_read" firestore:"isRead"`
	IsEdited       bool         `json:"is_edited" firestore:"isEdited"`
	EditedAt       *time.Time   `json:"edited_at,omitempty" firestore:"editedAt,omitempty"`
	Attachments    []Attachment `json:"attachments" firestore:"attachments"`
}

type Attachment struct {
	URL  string `json:"url" firestore:"url"`
	Type string `json:"type" firestore:"type"`
	Name string `json:"name,omitempty" firestore:"name,omitempty"`
	Size int64  `json:"size,omitempty" firestore:"size,omitempty"`
}

func (m Message) Clone() Message {
	out := m
	if m.Attachments != nil {
		out.Attachments = make([]Attachment, len(m.Attachments))
		copy(out.Attachments, m.Attachments)
	}
	if m.EditedAt != nil {
		at := *m.EditedAt
		out.EditedAt = &at
	}
	return out
}
