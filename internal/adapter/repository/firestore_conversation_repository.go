package repository

import (
	"context"
	stderrors "errors"
	"log"
	"time"

	"cloud.google.com/go/firestore"
	"github.com/google/uuid"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"marketchat/internal/domain/entity"
	"marketchat/internal/domain/repository"
	"marketchat/pkg/errors"
)

const (
	conversationsCollection = "conversations"
	messagesCollection      = "messages"

	// transactionAttempts bounds retries when writers contend on one
	// conversation document.
	transactionAttempts = 10
)

// firestoreConversationRepository keeps each conversation in
// conversations/{id} and its log in conversations/{id}/messages. Every
// mutation runs in a transaction on the conversation document, so concurrent
// writers on one conversation are retried by Firestore instead of
// overwriting each other.
type firestoreConversationRepository struct {
	client *firestore.Client
	now    func() time.Time
}

func NewFirestoreConversationRepository(client *firestore.Client) repository.ConversationRepository {
	return &firestoreConversationRepository{
		client: client,
		now:    time.Now,
	}
}

func (r *firestoreConversationRepository) conversationRef(id string) *firestore.DocumentRef {
	return r.client.Collection(conversationsCollection).Doc(id)
}

func (r *firestoreConversationRepository) messageRef(conversationID, messageID string) *firestore.DocumentRef {
	return r.conversationRef(conversationID).Collection(messagesCollection).Doc(messageID)
}

func (r *firestoreConversationRepository) Create(ctx context.Context, conv *entity.Conversation) error {
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
	conv.LastMessage = nil
	conv.TotalMessages = 0
	conv.UnreadCount = make(map[string]int, len(conv.Participants))
	for _, p := range conv.Participants {
		conv.UnreadCount[p] = 0
	}

	_, err := r.conversationRef(conv.ID).Create(ctx, conv)
	if err != nil {
		if status.Code(err) == codes.AlreadyExists {
			return conflictError(conv.ID)
		}
		return errors.Persistence("Failed to create conversation", err)
	}
	return nil
}

func decodeConversation(doc *firestore.DocumentSnapshot) (*entity.Conversation, error) {
	var conv entity.Conversation
	if err := doc.DataTo(&conv); err != nil {
		return nil, errors.Internal("Failed to parse conversation data", err)
	}
	conv.ID = doc.Ref.ID
	if conv.UnreadCount == nil {
		conv.UnreadCount = make(map[string]int)
	}
	return &conv, nil
}

func (r *firestoreConversationRepository) FindByIDForParticipant(ctx context.Context, conversationID, userID string) (*entity.Conversation, error) {
	doc, err := r.conversationRef(conversationID).Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return nil, conversationNotFound()
		}
		return nil, errors.Persistence("Failed to get conversation", err)
	}

	conv, err := decodeConversation(doc)
	if err != nil {
		return nil, err
	}
	if !conv.HasParticipant(userID) {
		return nil, conversationNotFound()
	}
	return conv, nil
}

func (r *firestoreConversationRepository) FindByListingAndParticipants(ctx context.Context, listingID string, participants []string) (*entity.Conversation, error) {
	query := r.client.Collection(conversationsCollection).Where("listingId", "==", listingID)

	iter := query.Documents(ctx)
	defer iter.Stop()
	for {
		doc, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, errors.Persistence("Failed to query conversations by listing", err)
		}

		conv, err := decodeConversation(doc)
		if err != nil {
			continue // Skip malformed documents
		}
		if sameParticipants(conv.Participants, participants) {
			return conv, nil
		}
	}

	return nil, conversationNotFound()
}

func (r *firestoreConversationRepository) AppendMessage(ctx context.Context, conversationID string, msg *entity.Message) (*entity.Conversation, error) {
	if msg.ID == "" {
		msg.ID = uuid.New().String()
	}
	if msg.Attachments == nil {
		msg.Attachments = []entity.Attachment{}
	}
	convRef := r.conversationRef(conversationID)
	msgRef := r.messageRef(conversationID, msg.ID)

	var updated *entity.Conversation
	err := r.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		doc, err := tx.Get(convRef)
		if err != nil {
			if status.Code(err) == codes.NotFound {
				return conversationNotFound()
			}
			return err
		}
		conv, err := decodeConversation(doc)
		if err != nil {
			return err
		}
		if !conv.HasParticipant(msg.SenderID) {
			return conversationNotFound()
		}

		msg.ConversationID = conversationID
		msg.Timestamp = conv.NextTimestamp(r.now())
		msg.Seq = int64(conv.TotalMessages) + 1
		msg.IsRead = false
		conv.ApplyAppend(*msg)

		if err := tx.Create(msgRef, msg); err != nil {
			return err
		}
		if err := tx.Set(convRef, conv); err != nil {
			return err
		}
		updated = conv
		return nil
	}, firestore.MaxAttempts(transactionAttempts))
	if err != nil {
		log.Printf("AppendMessage Error: conversation %s: %v", conversationID, err)
		return nil, persistenceError("Failed to append message", err)
	}
	return updated, nil
}

func (r *firestoreConversationRepository) MarkRead(ctx context.Context, conversationID string, messageIDs []string, readerID string) (*entity.Conversation, []string, error) {
	convRef := r.conversationRef(conversationID)
	ids := make([]string, 0, len(messageIDs))
	for id := range idSet(messageIDs) {
		if id != "" {
			ids = append(ids, id)
		}
	}

	var updated *entity.Conversation
	var flipped []string
	err := r.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		flipped = flipped[:0]

		doc, err := tx.Get(convRef)
		if err != nil {
			if status.Code(err) == codes.NotFound {
				return conversationNotFound()
			}
			return err
		}
		conv, err := decodeConversation(doc)
		if err != nil {
			return err
		}
		if !conv.HasParticipant(readerID) {
			return conversationNotFound()
		}
		if len(ids) == 0 {
			updated = conv
			return nil
		}

		refs := make([]*firestore.DocumentRef, len(ids))
		for i, id := range ids {
			refs[i] = r.messageRef(conversationID, id)
		}
		docs, err := tx.GetAll(refs)
		if err != nil {
			return err
		}

		now := r.now()
		for _, snap := range docs {
			if !snap.Exists() {
				continue
			}
			var m entity.Message
			if err := snap.DataTo(&m); err != nil {
				continue // Skip malformed documents
			}
			if m.IsRead || m.SenderID == readerID {
				continue
			}
			if err := tx.Update(snap.Ref, []firestore.Update{{Path: "isRead", Value: true}}); err != nil {
				return err
			}
			m.IsRead = true
			conv.ApplyRead(m, now)
			flipped = append(flipped, m.ID)
		}

		if len(flipped) > 0 {
			if err := tx.Set(convRef, conv); err != nil {
				return err
			}
		}
		updated = conv
		return nil
	}, firestore.MaxAttempts(transactionAttempts))
	if err != nil {
		log.Printf("MarkRead Error: conversation %s: %v", conversationID, err)
		return nil, nil, persistenceError("Failed to mark messages as read", err)
	}
	return updated, flipped, nil
}

func (r *firestoreConversationRepository) ListByParticipant(ctx context.Context, userID string, filter repository.ConversationFilter) ([]*entity.Conversation, int64, error) {
	query := r.client.Collection(conversationsCollection).
		Where("participants", "array-contains", userID).
		OrderBy("updatedAt", firestore.Desc)

	allDocs, err := query.Documents(ctx).GetAll()
	if err != nil {
		log.Printf("Firestore error while fetching conversations for user %s: %v", userID, err)
		return nil, 0, errors.Persistence("Failed to fetch conversations", err)
	}

	var matches []*entity.Conversation
	for _, doc := range allDocs {
		conv, err := decodeConversation(doc)
		if err != nil {
			log.Printf("Error parsing conversation data for user %s: %v", userID, err)
			continue // Skip bad data instead of failing
		}
		if filter.Matches(conv, userID) {
			matches = append(matches, conv)
		}
	}

	return paginate(matches, filter.Limit, filter.Offset), int64(len(matches)), nil
}

func (r *firestoreConversationRepository) ListMessages(ctx context.Context, conversationID string, limit, offset int) ([]*entity.Message, int64, error) {
	doc, err := r.conversationRef(conversationID).Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return nil, 0, conversationNotFound()
		}
		return nil, 0, errors.Persistence("Failed to get conversation", err)
	}
	conv, err := decodeConversation(doc)
	if err != nil {
		return nil, 0, err
	}

	query := r.conversationRef(conversationID).Collection(messagesCollection).OrderBy("seq", firestore.Desc)
	if offset > 0 {
		query = query.Offset(offset)
	}
	if limit > 0 {
		query = query.Limit(limit)
	}

	iter := query.Documents(ctx)
	defer iter.Stop()
	var messages []*entity.Message
	for {
		doc, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			log.Printf("Firestore error while iterating messages for conversation %s: %v", conversationID, err)
			return nil, 0, errors.Persistence("Failed to iterate messages", err)
		}

		var message entity.Message
		if err := doc.DataTo(&message); err != nil {
			return nil, 0, errors.Internal("Failed to parse message data", err)
		}
		messages = append(messages, &message)
	}

	// Newest first from the query; pages are returned oldest first.
	for i, j := 0, len(messages)-1; i < j; i, j = i+1, j-1 {
		messages[i], messages[j] = messages[j], messages[i]
	}
	return messages, int64(conv.TotalMessages), nil
}

func (r *firestoreConversationRepository) SetActive(ctx context.Context, conversationID, userID string, active bool) error {
	return r.update(ctx, conversationID, userID, func(conv *entity.Conversation) []firestore.Update {
		return []firestore.Update{{Path: "isActive", Value: active}}
	})
}

func (r *firestoreConversationRepository) MarkSuspicious(ctx context.Context, conversationID, userID, reason string) error {
	return r.update(ctx, conversationID, userID, func(conv *entity.Conversation) []firestore.Update {
		updates := []firestore.Update{{Path: "isSuspicious", Value: true}}
		if reason != "" {
			updates = append(updates, firestore.Update{Path: "suspiciousReasons", Value: firestore.ArrayUnion(reason)})
		}
		return updates
	})
}

func (r *firestoreConversationRepository) update(ctx context.Context, conversationID, userID string, build func(*entity.Conversation) []firestore.Update) error {
	convRef := r.conversationRef(conversationID)
	err := r.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		doc, err := tx.Get(convRef)
		if err != nil {
			if status.Code(err) == codes.NotFound {
				return conversationNotFound()
			}
			return err
		}
		conv, err := decodeConversation(doc)
		if err != nil {
			return err
		}
		if !conv.HasParticipant(userID) {
			return conversationNotFound()
		}
		updates := append(build(conv), firestore.Update{Path: "updatedAt", Value: conv.NextTimestamp(r.now())})
		return tx.Update(convRef, updates)
	})
	if err != nil {
		return persistenceError("Failed to update conversation", err)
	}
	return nil
}

// persistenceError keeps AppErrors raised inside a transaction and wraps
// everything else as a PersistenceError.
func persistenceError(message string, err error) error {
	var appErr *errors.AppError
	if stderrors.As(err, &appErr) {
		return appErr
	}
	return errors.Persistence(message, err)
}
