package repository

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"marketchat/internal/domain/entity"
	"marketchat/internal/domain/repository"
)

// memoryConversation holds one conversation and its log. mu is the
// per-conversation lock; the repository-wide lock only guards the index.
type memoryConversation struct {
	mu       sync.RWMutex
	conv     *entity.Conversation
	messages []entity.Message
}

type memoryConversationRepository struct {
	mu            sync.RWMutex
	conversations map[string]*memoryConversation
	now           func() time.Time
}

// NewMemoryConversationRepository returns a process-local store used by
// tests and STORE_DRIVER=memory.
func NewMemoryConversationRepository() repository.ConversationRepository {
	return newMemoryConversationRepository()
}

func newMemoryConversationRepository() *memoryConversationRepository {
	return &memoryConversationRepository{
		conversations: make(map[string]*memoryConversation),
		now:           time.Now,
	}
}

func (r *memoryConversationRepository) get(id string) (*memoryConversation, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rec, ok := r.conversations[id]
	return rec, ok
}

func (r *memoryConversationRepository) snapshot() []*memoryConversation {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*memoryConversation, 0, len(r.conversations))
	for _, rec := range r.conversations {
		out = append(out, rec)
	}
	return out
}

func (r *memoryConversationRepository) Create(ctx context.Context, conv *entity.Conversation) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := validateNewConversation(conv); err != nil {
		return err
	}
	if conv.ID == "" {
		conv.ID = uuid.New().String()
	}

	now := r.now()
	conv.CreatedAt = now
	conv.UpdatedAt = now
	conv.IsActive = true
	conv.Messages = nil
	conv.LastMessage = nil
	conv.TotalMessages = 0
	conv.UnreadCount = make(map[string]int, len(conv.Participants))
	for _, p := range conv.Participants {
		conv.UnreadCount[p] = 0
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.conversations[conv.ID]; exists {
		return conflictError(conv.ID)
	}
	r.conversations[conv.ID] = &memoryConversation{conv: conv.Clone()}
	return nil
}

func (r *memoryConversationRepository) FindByIDForParticipant(ctx context.Context, conversationID, userID string) (*entity.Conversation, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	rec, ok := r.get(conversationID)
	if !ok {
		return nil, conversationNotFound()
	}
	rec.mu.RLock()
	defer rec.mu.RUnlock()
	if !rec.conv.HasParticipant(userID) {
		return nil, conversationNotFound()
	}
	return rec.conv.Clone(), nil
}

func (r *memoryConversationRepository) FindByListingAndParticipants(ctx context.Context, listingID string, participants []string) (*entity.Conversation, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	for _, rec := range r.snapshot() {
		rec.mu.RLock()
		match := rec.conv.ListingID == listingID && sameParticipants(rec.conv.Participants, participants)
		var found *entity.Conversation
		if match {
			found = rec.conv.Clone()
		}
		rec.mu.RUnlock()
		if found != nil {
			return found, nil
		}
	}
	return nil, conversationNotFound()
}

func (r *memoryConversationRepository) AppendMessage(ctx context.Context, conversationID string, msg *entity.Message) (*entity.Conversation, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	rec, ok := r.get(conversationID)
	if !ok {
		return nil, conversationNotFound()
	}

	rec.mu.Lock()
	defer rec.mu.Unlock()

	if !rec.conv.HasParticipant(msg.SenderID) {
		return nil, conversationNotFound()
	}
	if msg.ID == "" {
		msg.ID = uuid.New().String()
	}
	msg.ConversationID = conversationID
	msg.Timestamp = rec.conv.NextTimestamp(r.now())
	msg.Seq = int64(rec.conv.TotalMessages) + 1
	msg.IsRead = false
	if msg.Attachments == nil {
		msg.Attachments = []entity.Attachment{}
	}

	rec.messages = append(rec.messages, msg.Clone())
	rec.conv.ApplyAppend(*msg)
	return rec.conv.Clone(), nil
}

func (r *memoryConversationRepository) MarkRead(ctx context.Context, conversationID string, messageIDs []string, readerID string) (*entity.Conversation, []string, error) {
	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}
	rec, ok := r.get(conversationID)
	if !ok {
		return nil, nil, conversationNotFound()
	}

	rec.mu.Lock()
	defer rec.mu.Unlock()

	if !rec.conv.HasParticipant(readerID) {
		return nil, nil, conversationNotFound()
	}

	wanted := idSet(messageIDs)
	flipped := make([]string, 0, len(wanted))
	if len(wanted) > 0 {
		now := r.now()
		for i := range rec.messages {
			m := &rec.messages[i]
			if _, ok := wanted[m.ID]; !ok || m.IsRead || m.SenderID == readerID {
				continue
			}
			m.IsRead = true
			rec.conv.ApplyRead(*m, now)
			flipped = append(flipped, m.ID)
		}
	}
	return rec.conv.Clone(), flipped, nil
}

func (r *memoryConversationRepository) ListByParticipant(ctx context.Context, userID string, filter repository.ConversationFilter) ([]*entity.Conversation, int64, error) {
	if err := ctx.Err(); err != nil {
		return nil, 0, err
	}
	var matches []*entity.Conversation
	for _, rec := range r.snapshot() {
		rec.mu.RLock()
		if rec.conv.HasParticipant(userID) && filter.Matches(rec.conv, userID) {
			matches = append(matches, rec.conv.Clone())
		}
		rec.mu.RUnlock()
	}
	sortByUpdatedDesc(matches)
	return paginate(matches, filter.Limit, filter.Offset), int64(len(matches)), nil
}

func (r *memoryConversationRepository) ListMessages(ctx context.Context, conversationID string, limit, offset int) ([]*entity.Message, int64, error) {
	if err := ctx.Err(); err != nil {
		return nil, 0, err
	}
	rec, ok := r.get(conversationID)
	if !ok {
		return nil, 0, conversationNotFound()
	}
	rec.mu.RLock()
	defer rec.mu.RUnlock()

	total := len(rec.messages)
	start, end := pageWindow(total, limit, offset)
	out := make([]*entity.Message, 0, end-start)
	for _, m := range rec.messages[start:end] {
		msg := m.Clone()
		out = append(out, &msg)
	}
	return out, int64(total), nil
}

func (r *memoryConversationRepository) SetActive(ctx context.Context, conversationID, userID string, active bool) error {
	return r.mutate(ctx, conversationID, userID, func(conv *entity.Conversation) {
		conv.IsActive = active
	})
}

func (r *memoryConversationRepository) MarkSuspicious(ctx context.Context, conversationID, userID, reason string) error {
	return r.mutate(ctx, conversationID, userID, func(conv *entity.Conversation) {
		conv.IsSuspicious = true
		if reason != "" {
			conv.SuspiciousReasons = append(conv.SuspiciousReasons, reason)
		}
	})
}

func (r *memoryConversationRepository) mutate(ctx context.Context, conversationID, userID string, fn func(*entity.Conversation)) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	rec, ok := r.get(conversationID)
	if !ok {
		return conversationNotFound()
	}
	rec.mu.Lock()
	defer rec.mu.Unlock()
	if !rec.conv.HasParticipant(userID) {
		return conversationNotFound()
	}
	fn(rec.conv)
	rec.conv.UpdatedAt = rec.conv.NextTimestamp(r.now())
	return nil
}
