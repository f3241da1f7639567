package entity

import (
	"time"
)

// Conversation is a chat thread between the participants of one listing.
// Participants, ListingID and SellerID are fixed at creation; the chat core
// only appends to Messages and updates the derived fields.
type Conversation struct {
	ID                string         `json:"id" firestore:"id"`
	Participants      []string       `json:"participants" firestore:"participants"`
	ListingID         string         `json:"listing_id" firestore:"listingId"`
	SellerID          string         `json:"seller_id,omitempty" firestore:"sellerId,omitempty"`
	Messages          []Message      `json:"messages,omitempty" firestore:"-"`
	LastMessage       *Message       `json:"last_message,omitempty" firestore:"lastMessage,omitempty"`
	UnreadCount       map[string]int `json:"unread_count" firestore:"unreadCount"`
	TotalMessages     int            `json:"total_messages" firestore:"totalMessages"`
	IsActive          bool           `json:"is_active" firestore:"isActive"`
	IsSuspicious      bool           `json:"is_suspicious" firestore:"isSuspicious"`
	SuspiciousReasons []string       `json:"suspicious_reasons,omitempty" firestore:"suspiciousReasons,omitempty"`
	CreatedAt         time.Time      `json:"created_at" firestore:"createdAt"`
	UpdatedAt         time.Time      `json:"updated_at" firestore:"updatedAt"`
}

func (c *Conversation) HasParticipant(userID string) bool {
	for _, p := range c.Participants {
		if p == userID {
			return true
		}
	}
	return false
}

// OtherParticipants returns everyone except userID, in stored order.
func (c *Conversation) OtherParticipants(userID string) []string {
	others := make([]string, 0, len(c.Participants))
	for _, p := range c.Participants {
		if p != userID {
			others = append(others, p)
		}
	}
	return others
}

// NextTimestamp returns the timestamp for a message appended now. It never
// goes below the current tail so the log stays sorted when the clock steps back.
func (c *Conversation) NextTimestamp(now time.Time) time.Time {
	if c.LastMessage != nil && now.Before(c.LastMessage.Timestamp) {
		return c.LastMessage.Timestamp
	}
	return now
}

// ApplyAppend updates the cached fields after msg was added to the log.
func (c *Conversation) ApplyAppend(msg Message) {
	last := msg
	c.LastMessage = &last
	c.UpdatedAt = msg.Timestamp
	c.TotalMessages++
	if c.UnreadCount == nil {
		c.UnreadCount = make(map[string]int)
	}
	for _, p := range c.Participants {
		if p != msg.SenderID {
			c.UnreadCount[p]++
		}
	}
}

// ApplyRead updates unread counters after msg flipped to read.
func (c *Conversation) ApplyRead(msg Message, now time.Time) {
	if c.UnreadCount == nil {
		c.UnreadCount = make(map[string]int)
	}
	for _, p := range c.Participants {
		if p == msg.SenderID {
			continue
		}
		if c.UnreadCount[p] > 0 {
			c.UnreadCount[p]--
		}
	}
	if c.LastMessage != nil && c.LastMessage.ID == msg.ID {
		c.LastMessage.IsRead = true
	}
	if now.After(c.UpdatedAt) {
		c.UpdatedAt = now
	}
}

// NormalizeParticipants dedupes ids while keeping first-seen order.
func NormalizeParticipants(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

// Clone returns a deep copy so callers cannot mutate stored state.
func (c *Conversation) Clone() *Conversation {
	out := *c
	out.Participants = append([]string(nil), c.Participants...)
	out.SuspiciousReasons = append([]string(nil), c.SuspiciousReasons...)
	out.UnreadCount = make(map[string]int, len(c.UnreadCount))
	for k, v := range c.UnreadCount {
		out.UnreadCount[k] = v
	}
	if c.LastMessage != nil {
		last := c.LastMessage.Clone()
		out.LastMessage = &last
	}
	if c.Messages != nil {
		out.Messages = make([]Message, len(c.Messages))
		for i, m := range c.Messages {
			out.Messages[i] = m.Clone()
		}
	}
	return &out
}
