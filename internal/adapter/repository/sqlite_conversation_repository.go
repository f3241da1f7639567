package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"marketchat/internal/domain/entity"
	"marketchat/internal/domain/repository"
	"marketchat/pkg/errors"
)

type sqliteConversationRepository struct {
	store *SQLiteStore
	now   func() time.Time
}

func NewSQLiteConversationRepository(store *SQLiteStore) repository.ConversationRepository {
	return &sqliteConversationRepository{store: store, now: time.Now}
}

const messageColumns = `id, conversation_id, seq, sender_id, content, type, timestamp, is_read, is_edited, edited_at, attachments`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanMessage(row rowScanner) (*entity.Message, error) {
	var (
		m           entity.Message
		msgType     string
		ts          int64
		isRead      int
		isEdited    int
		editedAt    sql.NullInt64
		attachments string
	)
	if err := row.Scan(&m.ID, &m.ConversationID, &m.Seq, &m.SenderID, &m.Content, &msgType, &ts, &isRead, &isEdited, &editedAt, &attachments); err != nil {
		return nil, err
	}
	m.Type = entity.MessageType(msgType)
	m.Timestamp = fromMillis(ts)
	m.IsRead = isRead == 1
	m.IsEdited = isEdited == 1
	if editedAt.Valid {
		at := fromMillis(editedAt.Int64)
		m.EditedAt = &at
	}
	m.Attachments = []entity.Attachment{}
	if attachments != "" {
		if err := json.Unmarshal([]byte(attachments), &m.Attachments); err != nil {
			return nil, fmt.Errorf("decode attachments: %w", err)
		}
	}
	return &m, nil
}

// loadConversation reads the conversation row, its participants and the
// cached last message. It returns NotFound when the row is missing.
func loadConversation(ctx context.Context, q sqlQuerier, id string) (*entity.Conversation, error) {
	var (
		conv          entity.Conversation
		lastMessageID string
		isActive      int
		isSuspicious  int
		reasons       string
		createdAt     int64
		updatedAt     int64
	)
	err := q.QueryRowContext(ctx,
		`SELECT id, listing_id, seller_id, last_message_id, total_messages, is_active, is_suspicious, suspicious_reasons, created_at, updated_at
		   FROM conversations WHERE id = ?`, id,
	).Scan(&conv.ID, &conv.ListingID, &conv.SellerID, &lastMessageID, &conv.TotalMessages, &isActive, &isSuspicious, &reasons, &createdAt, &updatedAt)
	if stderrors.Is(err, sql.ErrNoRows) {
		return nil, conversationNotFound()
	}
	if err != nil {
		return nil, fmt.Errorf("get conversation: %w", err)
	}
	conv.IsActive = isActive == 1
	conv.IsSuspicious = isSuspicious == 1
	conv.CreatedAt = fromMillis(createdAt)
	conv.UpdatedAt = fromMillis(updatedAt)
	if reasons != "" {
		if err := json.Unmarshal([]byte(reasons), &conv.SuspiciousReasons); err != nil {
			return nil, fmt.Errorf("decode suspicious reasons: %w", err)
		}
	}

	rows, err := q.QueryContext(ctx,
		`SELECT user_id, unread_count FROM conversation_participants WHERE conversation_id = ? ORDER BY position`, id)
	if err != nil {
		return nil, fmt.Errorf("get participants: %w", err)
	}
	defer rows.Close()
	conv.UnreadCount = make(map[string]int)
	for rows.Next() {
		var userID string
		var unread int
		if err := rows.Scan(&userID, &unread); err != nil {
			return nil, fmt.Errorf("scan participant: %w", err)
		}
		conv.Participants = append(conv.Participants, userID)
		conv.UnreadCount[userID] = unread
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate participants: %w", err)
	}

	if lastMessageID != "" {
		last, err := scanMessage(q.QueryRowContext(ctx,
			`SELECT `+messageColumns+` FROM messages WHERE conversation_id = ? AND id = ?`, id, lastMessageID))
		if err != nil && !stderrors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("get last message: %w", err)
		}
		conv.LastMessage = last
	}
	return &conv, nil
}

func storeError(message string, err error) error {
	var appErr *errors.AppError
	if stderrors.As(err, &appErr) {
		return appErr
	}
	if stderrors.Is(err, context.Canceled) || stderrors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return errors.Persistence(message, err)
}

func (r *sqliteConversationRepository) Create(ctx context.Context, conv *entity.Conversation) error {
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

	reasons, _ := json.Marshal(nonNilStrings(conv.SuspiciousReasons))
	err := r.store.withWriteTx(ctx, func(ctx context.Context, q sqlQuerier) error {
		var exists int
		err := q.QueryRowContext(ctx, `SELECT COUNT(1) FROM conversations WHERE id = ?`, conv.ID).Scan(&exists)
		if err != nil {
			return err
		}
		if exists > 0 {
			return conflictError(conv.ID)
		}
		if _, err := q.ExecContext(ctx,
			`INSERT INTO conversations (id, listing_id, seller_id, is_active, is_suspicious, suspicious_reasons, created_at, updated_at)
			 VALUES (?, ?, ?, 1, ?, ?, ?, ?)`,
			conv.ID, conv.ListingID, conv.SellerID, boolToInt(conv.IsSuspicious), string(reasons), toMillis(now), toMillis(now),
		); err != nil {
			return err
		}
		for i, p := range conv.Participants {
			if _, err := q.ExecContext(ctx,
				`INSERT INTO conversation_participants (conversation_id, user_id, position, unread_count) VALUES (?, ?, ?, 0)`,
				conv.ID, p, i,
			); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return storeError("Failed to create conversation", err)
	}
	return nil
}

func (r *sqliteConversationRepository) FindByIDForParticipant(ctx context.Context, conversationID, userID string) (*entity.Conversation, error) {
	conv, err := loadConversation(ctx, r.store.sqlDB, conversationID)
	if err != nil {
		return nil, storeError("Failed to get conversation", err)
	}
	if !conv.HasParticipant(userID) {
		return nil, conversationNotFound()
	}
	return conv, nil
}

func (r *sqliteConversationRepository) FindByListingAndParticipants(ctx context.Context, listingID string, participants []string) (*entity.Conversation, error) {
	rows, err := r.store.sqlDB.QueryContext(ctx, `SELECT id FROM conversations WHERE listing_id = ? ORDER BY created_at`, listingID)
	if err != nil {
		return nil, storeError("Failed to query conversations by listing", err)
	}
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return nil, storeError("Failed to scan conversation", err)
		}
		ids = append(ids, id)
	}
	rows.Close()

	for _, id := range ids {
		conv, err := loadConversation(ctx, r.store.sqlDB, id)
		if err != nil {
			return nil, storeError("Failed to get conversation", err)
		}
		if sameParticipants(conv.Participants, participants) {
			return conv, nil
		}
	}
	return nil, conversationNotFound()
}

func (r *sqliteConversationRepository) AppendMessage(ctx context.Context, conversationID string, msg *entity.Message) (*entity.Conversation, error) {
	if msg.ID == "" {
		msg.ID = uuid.New().String()
	}
	if msg.Attachments == nil {
		msg.Attachments = []entity.Attachment{}
	}
	attachments, err := json.Marshal(msg.Attachments)
	if err != nil {
		return nil, errors.Validation("Invalid attachments", err)
	}

	var updated *entity.Conversation
	err = r.store.withWriteTx(ctx, func(ctx context.Context, q sqlQuerier) error {
		conv, err := loadConversation(ctx, q, conversationID)
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

		var editedAt any
		if msg.EditedAt != nil {
			editedAt = toMillis(*msg.EditedAt)
		}
		if _, err := q.ExecContext(ctx,
			`INSERT INTO messages (`+messageColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, 0, ?, ?, ?)`,
			msg.ID, conversationID, msg.Seq, msg.SenderID, msg.Content, string(msg.Type), toMillis(msg.Timestamp),
			boolToInt(msg.IsEdited), editedAt, string(attachments),
		); err != nil {
			return err
		}
		if _, err := q.ExecContext(ctx,
			`UPDATE conversations SET last_message_id = ?, total_messages = ?, updated_at = ? WHERE id = ?`,
			msg.ID, conv.TotalMessages, toMillis(conv.UpdatedAt), conversationID,
		); err != nil {
			return err
		}
		if _, err := q.ExecContext(ctx,
			`UPDATE conversation_participants SET unread_count = unread_count + 1 WHERE conversation_id = ? AND user_id <> ?`,
			conversationID, msg.SenderID,
		); err != nil {
			return err
		}
		updated = conv
		return nil
	})
	if err != nil {
		return nil, storeError("Failed to append message", err)
	}
	// Round-trip through millis so callers see what a reload returns.
	msg.Timestamp = fromMillis(toMillis(msg.Timestamp))
	if updated.LastMessage != nil {
		updated.LastMessage.Timestamp = msg.Timestamp
	}
	updated.UpdatedAt = fromMillis(toMillis(updated.UpdatedAt))
	return updated, nil
}

func (r *sqliteConversationRepository) MarkRead(ctx context.Context, conversationID string, messageIDs []string, readerID string) (*entity.Conversation, []string, error) {
	wanted := idSet(messageIDs)

	var updated *entity.Conversation
	var flipped []string
	err := r.store.withWriteTx(ctx, func(ctx context.Context, q sqlQuerier) error {
		conv, err := loadConversation(ctx, q, conversationID)
		if err != nil {
			return err
		}
		if !conv.HasParticipant(readerID) {
			return conversationNotFound()
		}
		if len(wanted) == 0 {
			updated = conv
			return nil
		}

		ids := make([]any, 0, len(wanted)+2)
		ids = append(ids, conversationID, readerID)
		for id := range wanted {
			ids = append(ids, id)
		}
		placeholders := strings.TrimSuffix(strings.Repeat("?,", len(wanted)), ",")
		rows, err := q.QueryContext(ctx,
			`SELECT `+messageColumns+` FROM messages
			  WHERE conversation_id = ? AND sender_id <> ? AND is_read = 0 AND id IN (`+placeholders+`)
			  ORDER BY seq`, ids...)
		if err != nil {
			return err
		}
		var toFlip []*entity.Message
		for rows.Next() {
			m, err := scanMessage(rows)
			if err != nil {
				rows.Close()
				return err
			}
			toFlip = append(toFlip, m)
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return err
		}

		now := r.now()
		for _, m := range toFlip {
			if _, err := q.ExecContext(ctx,
				`UPDATE messages SET is_read = 1 WHERE conversation_id = ? AND id = ?`, conversationID, m.ID,
			); err != nil {
				return err
			}
			m.IsRead = true
			conv.ApplyRead(*m, now)
			flipped = append(flipped, m.ID)
		}
		if len(flipped) > 0 {
			if err := writeUnreadCounts(ctx, q, conv); err != nil {
				return err
			}
			if _, err := q.ExecContext(ctx,
				`UPDATE conversations SET updated_at = ? WHERE id = ?`, toMillis(conv.UpdatedAt), conversationID,
			); err != nil {
				return err
			}
		}
		updated = conv
		return nil
	})
	if err != nil {
		return nil, nil, storeError("Failed to mark messages as read", err)
	}
	return updated, flipped, nil
}

func writeUnreadCounts(ctx context.Context, q sqlQuerier, conv *entity.Conversation) error {
	for userID, count := range conv.UnreadCount {
		if _, err := q.ExecContext(ctx,
			`UPDATE conversation_participants SET unread_count = ? WHERE conversation_id = ? AND user_id = ?`,
			count, conv.ID, userID,
		); err != nil {
			return err
		}
	}
	return nil
}

func (r *sqliteConversationRepository) ListByParticipant(ctx context.Context, userID string, filter repository.ConversationFilter) ([]*entity.Conversation, int64, error) {
	rows, err := r.store.sqlDB.QueryContext(ctx,
		`SELECT c.id FROM conversations c
		   JOIN conversation_participants p ON p.conversation_id = c.id
		  WHERE p.user_id = ?
		  ORDER BY c.updated_at DESC`, userID)
	if err != nil {
		return nil, 0, storeError("Failed to fetch conversations", err)
	}
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return nil, 0, storeError("Failed to scan conversation", err)
		}
		ids = append(ids, id)
	}
	rows.Close()

	var matches []*entity.Conversation
	for _, id := range ids {
		conv, err := loadConversation(ctx, r.store.sqlDB, id)
		if err != nil {
			return nil, 0, storeError("Failed to get conversation", err)
		}
		if filter.Matches(conv, userID) {
			matches = append(matches, conv)
		}
	}
	return paginate(matches, filter.Limit, filter.Offset), int64(len(matches)), nil
}

func (r *sqliteConversationRepository) ListMessages(ctx context.Context, conversationID string, limit, offset int) ([]*entity.Message, int64, error) {
	var total int64
	err := r.store.sqlDB.QueryRowContext(ctx,
		`SELECT total_messages FROM conversations WHERE id = ?`, conversationID).Scan(&total)
	if stderrors.Is(err, sql.ErrNoRows) {
		return nil, 0, conversationNotFound()
	}
	if err != nil {
		return nil, 0, storeError("Failed to count messages", err)
	}

	start, end := pageWindow(int(total), limit, offset)
	messages := make([]*entity.Message, 0, end-start)
	if end <= start {
		return messages, total, nil
	}

	rows, err := r.store.sqlDB.QueryContext(ctx,
		`SELECT `+messageColumns+` FROM messages WHERE conversation_id = ? AND seq > ? AND seq <= ? ORDER BY seq`,
		conversationID, start, end)
	if err != nil {
		return nil, 0, storeError("Failed to list messages", err)
	}
	defer rows.Close()
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, 0, storeError("Failed to scan message", err)
		}
		messages = append(messages, m)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, storeError("Failed to iterate messages", err)
	}
	return messages, total, nil
}

func (r *sqliteConversationRepository) SetActive(ctx context.Context, conversationID, userID string, active bool) error {
	return r.update(ctx, conversationID, userID, func(ctx context.Context, q sqlQuerier, conv *entity.Conversation) error {
		_, err := q.ExecContext(ctx, `UPDATE conversations SET is_active = ? WHERE id = ?`, boolToInt(active), conversationID)
		return err
	})
}

func (r *sqliteConversationRepository) MarkSuspicious(ctx context.Context, conversationID, userID, reason string) error {
	return r.update(ctx, conversationID, userID, func(ctx context.Context, q sqlQuerier, conv *entity.Conversation) error {
		reasons := nonNilStrings(conv.SuspiciousReasons)
		if reason != "" {
			reasons = append(reasons, reason)
		}
		encoded, _ := json.Marshal(reasons)
		_, err := q.ExecContext(ctx,
			`UPDATE conversations SET is_suspicious = 1, suspicious_reasons = ? WHERE id = ?`, string(encoded), conversationID)
		return err
	})
}

func (r *sqliteConversationRepository) update(ctx context.Context, conversationID, userID string, fn func(context.Context, sqlQuerier, *entity.Conversation) error) error {
	err := r.store.withWriteTx(ctx, func(ctx context.Context, q sqlQuerier) error {
		conv, err := loadConversation(ctx, q, conversationID)
		if err != nil {
			return err
		}
		if !conv.HasParticipant(userID) {
			return conversationNotFound()
		}
		if err := fn(ctx, q, conv); err != nil {
			return err
		}
		_, err = q.ExecContext(ctx, `UPDATE conversations SET updated_at = ? WHERE id = ?`,
			toMillis(conv.NextTimestamp(r.now())), conversationID)
		return err
	})
	if err != nil {
		return storeError("Failed to update conversation", err)
	}
	return nil
}

func nonNilStrings(in []string) []string {
	if in == nil {
		return []string{}
	}
	return append([]string(nil), in...)
}
