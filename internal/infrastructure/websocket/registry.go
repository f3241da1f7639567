package websocket

import (
	"encoding/json"
	"sort"
	"strings"
	"sync"

	"marketchat/pkg/logger"
)

const (
	personalPrefix     = "user:"
	conversationPrefix = "conversation:"
)

func PersonalChannel(userID string) string {
	return personalPrefix + userID
}

func ConversationChannel(conversationID string) string {
	return conversationPrefix + conversationID
}

// Registry maps channels to the connections subscribed to them. It is
// process-local and safe for concurrent use; broadcasts never hold the lock
// while writing to a connection.
type Registry struct {
	mu       sync.RWMutex
	channels map[string]map[*Client]struct{}
	clients  map[*Client]map[string]struct{}
	users    map[string]map[*Client]struct{}
}

func NewRegistry() *Registry {
	return &Registry{
		channels: make(map[string]map[*Client]struct{}),
		clients:  make(map[*Client]map[string]struct{}),
		users:    make(map[string]map[*Client]struct{}),
	}
}

// SubscribeSelf registers an authenticated client and joins it to its
// user's personal channel. It reports whether c is the user's only live
// connection, decided under the same lock as the insert.
func (r *Registry) SubscribeSelf(c *Client) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	conns := r.users[c.UserID]
	if conns == nil {
		conns = make(map[*Client]struct{})
		r.users[c.UserID] = conns
	}
	first := len(conns) == 0
	conns[c] = struct{}{}
	r.subscribeLocked(c, PersonalChannel(c.UserID))
	return first
}

// Join adds c to a conversation channel. Membership must be checked by the
// caller.
func (r *Registry) Join(c *Client, conversationID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.clients[c]; !ok {
		// Not registered or already gone.
		return
	}
	r.subscribeLocked(c, ConversationChannel(conversationID))
}

func (r *Registry) Leave(c *Client, conversationID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.unsubscribeLocked(c, ConversationChannel(conversationID))
}

// UnsubscribeAll removes c from every channel. It returns the channels c
// left and whether its user still has another live connection.
func (r *Registry) UnsubscribeAll(c *Client) ([]string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var left []string
	for channel := range r.clients[c] {
		left = append(left, channel)
	}
	for _, channel := range left {
		r.unsubscribeLocked(c, channel)
	}
	delete(r.clients, c)

	if conns, ok := r.users[c.UserID]; ok {
		delete(conns, c)
		if len(conns) == 0 {
			delete(r.users, c.UserID)
		}
	}
	sort.Strings(left)
	return left, len(r.users[c.UserID]) > 0
}

func (r *Registry) subscribeLocked(c *Client, channel string) {
	members, ok := r.channels[channel]
	if !ok {
		members = make(map[*Client]struct{})
		r.channels[channel] = members
	}
	members[c] = struct{}{}

	subs, ok := r.clients[c]
	if !ok {
		subs = make(map[string]struct{})
		r.clients[c] = subs
	}
	subs[channel] = struct{}{}
}

func (r *Registry) unsubscribeLocked(c *Client, channel string) {
	if members, ok := r.channels[channel]; ok {
		delete(members, c)
		if len(members) == 0 {
			delete(r.channels, channel)
		}
	}
	if subs, ok := r.clients[c]; ok {
		delete(subs, channel)
	}
}

// Broadcast delivers event to every member of channel except the given
// client and returns how many connections it was queued for.
func (r *Registry) Broadcast(channel string, event Event, except *Client) int {
	r.mu.RLock()
	members := make([]*Client, 0, len(r.channels[channel]))
	for c := range r.channels[channel] {
		if c != except {
			members = append(members, c)
		}
	}
	r.mu.RUnlock()

	return deliver(members, event)
}

// BroadcastAll delivers event to every registered connection except the
// given client.
func (r *Registry) BroadcastAll(event Event, except *Client) int {
	r.mu.RLock()
	members := make([]*Client, 0, len(r.clients))
	for c := range r.clients {
		if c != except {
			members = append(members, c)
		}
	}
	r.mu.RUnlock()

	return deliver(members, event)
}

func deliver(members []*Client, event Event) int {
	if len(members) == 0 {
		return 0
	}
	payload, err := json.Marshal(event)
	if err != nil {
		logger.Error("WebSocket: failed to marshal %s event: %v", event.Type, err)
		return 0
	}
	sent := 0
	for _, c := range members {
		if c.Send(payload) {
			sent++
		}
	}
	return sent
}

func (r *Registry) IsSubscribed(c *Client, conversationID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.clients[c][ConversationChannel(conversationID)]
	return ok
}

func (r *Registry) ChannelSize(channel string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.channels[channel])
}

func (r *Registry) IsOnline(userID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.users[userID]) > 0
}

func (r *Registry) OnlineUsers() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	users := make([]string, 0, len(r.users))
	for id := range r.users {
		users = append(users, id)
	}
	sort.Strings(users)
	return users
}

// ConversationChannels lists the conversations c is currently joined to.
func (r *Registry) ConversationChannels(c *Client) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var ids []string
	for channel := range r.clients[c] {
		if strings.HasPrefix(channel, conversationPrefix) {
			ids = append(ids, strings.TrimPrefix(channel, conversationPrefix))
		}
	}
	sort.Strings(ids)
	return ids
}
