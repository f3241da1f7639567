package usecase

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	adapterrepo "marketchat/internal/adapter/repository"
	"marketchat/internal/domain/entity"
	"marketchat/internal/domain/repository"
	"marketchat/internal/infrastructure/ratelimit"
	ws "marketchat/internal/infrastructure/websocket"
	"marketchat/pkg/errors"
)

type received struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

func drain(c *ws.Client) []received {
	var out []received
	for {
		select {
		case payload := <-c.Outbound():
			var ev received
			if err := json.Unmarshal(payload, &ev); err == nil {
				out = append(out, ev)
			}
		default:
			return out
		}
	}
}

func ofType(events []received, eventType string) []received {
	var out []received
	for _, ev := range events {
		if ev.Type == eventType {
			out = append(out, ev)
		}
	}
	return out
}

func decode[T any](t *testing.T, ev received) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(ev.Data, &out))
	return out
}

type fixture struct {
	uc       *ChatUseCase
	repo     repository.ConversationRepository
	users    repository.UserRepository
	registry *ws.Registry
}

func newFixture(t *testing.T, opts ChatOptions) *fixture {
	t.Helper()
	users := adapterrepo.NewMemoryUserRepository(
		&entity.User{ID: "alice", FirstName: "Alice", LastName: "Seller", IsActive: true},
		&entity.User{ID: "bob", FirstName: "Bob", LastName: "Buyer", ChatDisplayName: "bobby", IsActive: true},
		&entity.User{ID: "carol", FirstName: "Carol", IsActive: true},
		&entity.User{ID: "mallory", FirstName: "Mallory", IsActive: true},
	)
	repo := adapterrepo.NewMemoryConversationRepository()
	require.NoError(t, repo.Create(context.Background(), &entity.Conversation{
		ID:           "c1",
		ListingID:    "bike-42",
		SellerID:     "alice",
		Participants: []string{"alice", "bob"},
	}))

	registry := ws.NewRegistry()
	return &fixture{
		uc:       NewChatUseCase(repo, users, registry, opts),
		repo:     repo,
		users:    users,
		registry: registry,
	}
}

func (f *fixture) connect(userID string) *ws.Client {
	c := ws.NewClient(userID, nil, 256)
	f.uc.Connect(c)
	return c
}

func (f *fixture) send(c *ws.Client, frame string) {
	f.uc.HandleFrame(c, []byte(frame))
}

func (f *fixture) join(t *testing.T, c *ws.Client, conversationID string) {
	t.Helper()
	f.send(c, fmt.Sprintf(`{"type":"join_conversation","data":{"conversation_id":%q}}`, conversationID))
	require.True(t, f.registry.IsSubscribed(c, conversationID))
}

func drainAll(clients ...*ws.Client) {
	for _, c := range clients {
		drain(c)
	}
}

func TestSendMessageBroadcastsAndNotifies(t *testing.T) {
	f := newFixture(t, ChatOptions{})
	a := f.connect("alice")
	b := f.connect("bob")
	f.join(t, a, "c1")
	f.join(t, b, "c1")
	drainAll(a, b)

	f.send(a, `{"type":"send_message","data":{"conversation_id":"c1","content":"hi","type":"text","client_id":"tmp-1"}}`)

	msgs, total, err := f.repo.ListMessages(context.Background(), "c1", 0, 0)
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
	conv, err := f.repo.FindByIDForParticipant(context.Background(), "c1", "alice")
	require.NoError(t, err)
	assert.Equal(t, "hi", conv.LastMessage.Content)
	assert.Equal(t, msgs[0].ID, conv.LastMessage.ID)

	bEvents := drain(b)
	newMessages := ofType(bEvents, ws.EventNewMessage)
	require.Len(t, newMessages, 1)
	update := decode[ws.NewMessageData](t, newMessages[0]).Conversation
	assert.Equal(t, "c1", update.ID)
	require.NotNil(t, update.LastMessage)
	assert.Equal(t, msgs[0].ID, update.LastMessage.ID)
	assert.True(t, update.UpdatedAt.Equal(conv.UpdatedAt))
	notifications := ofType(bEvents, ws.EventNewMessageNotification)
	require.Len(t, notifications, 1)
	note := decode[ws.NewMessageNotificationData](t, notifications[0])
	assert.Equal(t, "c1", note.ConversationID)
	assert.Equal(t, "hi", note.Message.Content)
	assert.Equal(t, "Alice Seller", note.Sender.DisplayName)
	assert.Equal(t, 1, note.UnreadCount)

	aEvents := drain(a)
	assert.Len(t, ofType(aEvents, ws.EventNewMessage), 1)
	assert.Empty(t, ofType(aEvents, ws.EventNewMessageNotification))
	sent := ofType(aEvents, ws.EventMessageSent)
	require.Len(t, sent, 1)
	ack := decode[ws.MessageSentData](t, sent[0])
	assert.Equal(t, "tmp-1", ack.ClientID)
	assert.Equal(t, msgs[0].ID, ack.MessageID)
}

func TestNotificationReachesParticipantOutsideChannel(t *testing.T) {
	f := newFixture(t, ChatOptions{})
	a := f.connect("alice")
	b := f.connect("bob")
	f.join(t, a, "c1")
	drainAll(a, b)

	f.send(a, `{"type":"send_message","data":{"conversation_id":"c1","content":"still there?"}}`)

	bEvents := drain(b)
	assert.Empty(t, ofType(bEvents, ws.EventNewMessage))
	assert.Len(t, ofType(bEvents, ws.EventNewMessageNotification), 1)
}

func TestMarkMessagesReadNotifiesOthersOnce(t *testing.T) {
	f := newFixture(t, ChatOptions{})
	a := f.connect("alice")
	b := f.connect("bob")
	f.join(t, a, "c1")
	f.join(t, b, "c1")

	ctx := context.Background()
	m1, err := f.uc.SendMessage(ctx, "alice", "c1", SendMessageInput{Content: "one"})
	require.NoError(t, err)
	m2, err := f.uc.SendMessage(ctx, "alice", "c1", SendMessageInput{Content: "two"})
	require.NoError(t, err)
	drainAll(a, b)

	frame := fmt.Sprintf(`{"type":"mark_messages_read","data":{"conversation_id":"c1","message_ids":[%q,%q]}}`, m1.ID, m2.ID)
	f.send(b, frame)

	reads := ofType(drain(a), ws.EventMessagesRead)
	require.Len(t, reads, 1)
	data := decode[ws.MessagesReadData](t, reads[0])
	assert.ElementsMatch(t, []string{m1.ID, m2.ID}, data.MessageIDs)
	assert.Equal(t, "bob", data.ReaderID)
	assert.Empty(t, drain(b))

	msgs, _, err := f.repo.ListMessages(ctx, "c1", 0, 0)
	require.NoError(t, err)
	assert.True(t, msgs[0].IsRead)
	assert.True(t, msgs[1].IsRead)
	conv, err := f.repo.FindByIDForParticipant(ctx, "c1", "bob")
	require.NoError(t, err)
	assert.Equal(t, 0, conv.UnreadCount["bob"])

	// Second identical receipt changes nothing and announces nothing.
	f.send(b, frame)
	assert.Empty(t, drain(a))
	assert.Empty(t, drain(b))
}

func TestMarkMessagesReadWithNoIDsIsNoop(t *testing.T) {
	f := newFixture(t, ChatOptions{})
	b := f.connect("bob")
	drainAll(b)

	f.send(b, `{"type":"mark_messages_read","data":{"conversation_id":"c1","message_ids":[]}}`)
	assert.Empty(t, drain(b))
}

func TestTypingExcludesSender(t *testing.T) {
	f := newFixture(t, ChatOptions{})
	a := f.connect("alice")
	b := f.connect("bob")
	carol := f.connect("carol")
	f.join(t, a, "c1")
	f.join(t, b, "c1")
	drainAll(a, b, carol)

	f.send(a, `{"type":"typing_start","data":{"conversation_id":"c1"}}`)
	typing := ofType(drain(b), ws.EventUserTyping)
	require.Len(t, typing, 1)
	data := decode[ws.TypingData](t, typing[0])
	assert.Equal(t, "alice", data.UserID)
	assert.Equal(t, "Alice Seller", data.User.DisplayName)
	assert.Empty(t, drain(a))
	assert.Empty(t, drain(carol))

	f.send(a, `{"type":"typing_stop","data":{"conversation_id":"c1"}}`)
	assert.Len(t, ofType(drain(b), ws.EventUserStoppedTyping), 1)
	assert.Empty(t, drain(a))
}

func TestTypingFromNonParticipantIsRejected(t *testing.T) {
	f := newFixture(t, ChatOptions{})
	b := f.connect("bob")
	f.join(t, b, "c1")
	m := f.connect("mallory")
	drainAll(b, m)

	f.send(m, `{"type":"typing_start","data":{"conversation_id":"c1"}}`)
	assert.Empty(t, drain(b))
	errs := ofType(drain(m), ws.EventError)
	require.Len(t, errs, 1)
	assert.Equal(t, errors.CodeNotFound, decode[ws.ErrorData](t, errs[0]).Code)
}

func TestJoinByNonParticipantIsDroppedSilently(t *testing.T) {
	f := newFixture(t, ChatOptions{})
	a := f.connect("alice")
	f.join(t, a, "c1")
	m := f.connect("mallory")
	drainAll(a, m)

	f.send(m, `{"type":"join_conversation","data":"c1"}`)
	assert.False(t, f.registry.IsSubscribed(m, "c1"))
	assert.Empty(t, drain(m))

	f.send(a, `{"type":"send_message","data":{"conversation_id":"c1","content":"private"}}`)
	assert.Empty(t, drain(m))
}

func TestJoinByNonParticipantWithExplicitDenial(t *testing.T) {
	f := newFixture(t, ChatOptions{ExplicitJoinDenial: true})
	m := f.connect("mallory")
	drainAll(m)

	f.send(m, `{"type":"join_conversation","data":{"conversation_id":"c1"}}`)
	assert.False(t, f.registry.IsSubscribed(m, "c1"))
	errs := ofType(drain(m), ws.EventError)
	require.Len(t, errs, 1)
	data := decode[ws.ErrorData](t, errs[0])
	assert.Equal(t, errors.CodeNotFound, data.Code)
	assert.Equal(t, ws.EventJoinConversation, data.Event)
	assert.Equal(t, "c1", data.ConversationID)
}

func TestJoinAcknowledgesSuccess(t *testing.T) {
	f := newFixture(t, ChatOptions{})
	b := f.connect("bob")
	drainAll(b)

	f.join(t, b, "c1")
	joined := ofType(drain(b), ws.EventConversationJoined)
	require.Len(t, joined, 1)
	assert.Equal(t, "c1", decode[ws.ConversationJoinedData](t, joined[0]).ConversationID)

	f.send(b, `{"type":"leave_conversation","data":"c1"}`)
	assert.False(t, f.registry.IsSubscribed(b, "c1"))
	f.send(b, `{"type":"leave_conversation","data":"c1"}`)
	assert.Empty(t, drain(b))
}

func TestSendFromNonParticipantIsRejected(t *testing.T) {
	f := newFixture(t, ChatOptions{})
	b := f.connect("bob")
	f.join(t, b, "c1")
	m := f.connect("mallory")
	drainAll(b, m)

	f.send(m, `{"type":"send_message","data":{"conversation_id":"c1","content":"spam","client_id":"x"}}`)

	errs := ofType(drain(m), ws.EventError)
	require.Len(t, errs, 1)
	data := decode[ws.ErrorData](t, errs[0])
	assert.Equal(t, errors.CodeNotFound, data.Code)
	assert.Equal(t, "x", data.ClientID)
	assert.Empty(t, drain(b))

	_, total, err := f.repo.ListMessages(context.Background(), "c1", 0, 0)
	require.NoError(t, err)
	assert.Equal(t, int64(0), total)
}

type failingRepo struct {
	repository.ConversationRepository
}

func (failingRepo) AppendMessage(ctx context.Context, conversationID string, msg *entity.Message) (*entity.Conversation, error) {
	return nil, errors.Persistence("Failed to append message", fmt.Errorf("disk full"))
}

func TestPersistenceFailureIsNotBroadcast(t *testing.T) {
	f := newFixture(t, ChatOptions{})
	f.uc.conversationRepo = failingRepo{ConversationRepository: f.repo}
	a := f.connect("alice")
	b := f.connect("bob")
	f.join(t, a, "c1")
	f.join(t, b, "c1")
	drainAll(a, b)

	f.send(a, `{"type":"send_message","data":{"conversation_id":"c1","content":"lost"}}`)

	aEvents := drain(a)
	require.Len(t, aEvents, 1)
	assert.Equal(t, ws.EventError, aEvents[0].Type)
	assert.Equal(t, errors.CodePersistence, decode[ws.ErrorData](t, aEvents[0]).Code)
	assert.Empty(t, drain(b))
}

func TestInvalidFrameKeepsConnectionUsable(t *testing.T) {
	f := newFixture(t, ChatOptions{})
	a := f.connect("alice")
	drainAll(a)

	f.send(a, `{"type":"send_message","data":{"content":"no conversation"}}`)
	f.send(a, `not json`)
	f.send(a, `{"type":"ping"}`)

	events := drain(a)
	require.Len(t, events, 3)
	assert.Equal(t, errors.CodeValidation, decode[ws.ErrorData](t, events[0]).Code)
	assert.Equal(t, errors.CodeValidation, decode[ws.ErrorData](t, events[1]).Code)
	assert.Equal(t, ws.EventPong, events[2].Type)
}

func TestSendMessageRateLimit(t *testing.T) {
	limiter := ratelimit.NewRateLimiter(map[string]ratelimit.Rule{
		ratelimit.ActionSendMessage: {PerMinute: 1, Burst: 1},
	})
	f := newFixture(t, ChatOptions{RateLimiter: limiter})
	a := f.connect("alice")
	drainAll(a)

	f.send(a, `{"type":"send_message","data":{"conversation_id":"c1","content":"one"}}`)
	f.send(a, `{"type":"send_message","data":{"conversation_id":"c1","content":"two"}}`)

	errs := ofType(drain(a), ws.EventError)
	require.Len(t, errs, 1)
	assert.Equal(t, errors.CodeTooManyRequests, decode[ws.ErrorData](t, errs[0]).Code)

	_, total, err := f.repo.ListMessages(context.Background(), "c1", 0, 0)
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
}

func TestPresence(t *testing.T) {
	f := newFixture(t, ChatOptions{})
	a := f.connect("alice")
	online := ofType(drain(a), ws.EventUserStatusChanged)
	assert.Empty(t, online)

	b1 := f.connect("bob")
	online = ofType(drain(a), ws.EventUserStatusChanged)
	require.Len(t, online, 1)
	assert.Equal(t, ws.StatusOnline, decode[ws.StatusData](t, online[0]).Status)

	b2 := f.connect("bob")
	assert.Empty(t, drain(a))

	f.send(b1, `{"type":"update_status","data":{"status":"away"}}`)
	status := ofType(drain(a), ws.EventUserStatusChanged)
	require.Len(t, status, 1)
	assert.Equal(t, ws.StatusAway, decode[ws.StatusData](t, status[0]).Status)
	assert.Empty(t, ofType(drain(b1), ws.EventUserStatusChanged))
	assert.Len(t, ofType(drain(b2), ws.EventUserStatusChanged), 1)

	f.uc.Disconnect(b1)
	assert.Empty(t, drain(a))
	assert.True(t, f.registry.IsOnline("bob"))

	f.uc.Disconnect(b2)
	offline := ofType(drain(a), ws.EventUserStatusChanged)
	require.Len(t, offline, 1)
	data := decode[ws.StatusData](t, offline[0])
	assert.Equal(t, "bob", data.UserID)
	assert.Equal(t, ws.StatusOffline, data.Status)
	assert.False(t, f.registry.IsOnline("bob"))
}

func TestPresenceSurvivesReconnectRace(t *testing.T) {
	f := newFixture(t, ChatOptions{})
	observer := f.connect("alice")

	for i := 0; i < 2000; i++ {
		b1 := f.connect("bob")
		drain(observer)

		var (
			wg sync.WaitGroup
			b2 *ws.Client
		)
		wg.Add(2)
		go func() {
			defer wg.Done()
			b2 = f.connect("bob")
		}()
		go func() {
			defer wg.Done()
			f.uc.Disconnect(b1)
		}()
		wg.Wait()

		require.True(t, f.registry.IsOnline("bob"))
		status := ofType(drain(observer), ws.EventUserStatusChanged)
		require.LessOrEqual(t, len(status), 2, "iteration %d", i)
		if len(status) > 0 {
			assert.Equal(t, ws.StatusOffline, decode[ws.StatusData](t, status[0]).Status, "iteration %d", i)
			require.Equal(t, ws.StatusOnline, decode[ws.StatusData](t, status[len(status)-1]).Status, "iteration %d", i)
		}

		f.uc.Disconnect(b2)
		drain(observer)
	}
}

func TestFirstConnectionsAnnounceOnce(t *testing.T) {
	f := newFixture(t, ChatOptions{})
	observer := f.connect("alice")

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			f.connect("bob")
		}()
	}
	wg.Wait()

	online := ofType(drain(observer), ws.EventUserStatusChanged)
	require.Len(t, online, 1)
	assert.Equal(t, ws.StatusOnline, decode[ws.StatusData](t, online[0]).Status)
}

func TestConcurrentSendsBroadcastInLogOrder(t *testing.T) {
	limiter := ratelimit.NewRateLimiter(map[string]ratelimit.Rule{
		ratelimit.ActionSendMessage: {PerMinute: 6000, Burst: 1000},
	})
	f := newFixture(t, ChatOptions{RateLimiter: limiter})
	ctx := context.Background()
	require.NoError(t, f.repo.Create(ctx, &entity.Conversation{
		ID:           "c2",
		ListingID:    "sofa-7",
		SellerID:     "alice",
		Participants: []string{"alice", "bob", "carol"},
	}))
	watcher := f.connect("carol")
	f.join(t, watcher, "c2")
	drainAll(watcher)

	const perSender = 20
	var wg sync.WaitGroup
	for _, sender := range []string{"alice", "bob"} {
		wg.Add(1)
		go func(sender string) {
			defer wg.Done()
			for i := 0; i < perSender; i++ {
				_, err := f.uc.SendMessage(ctx, sender, "c2", SendMessageInput{Content: fmt.Sprintf("%s-%d", sender, i)})
				assert.NoError(t, err)
			}
		}(sender)
	}
	wg.Wait()

	logged, _, err := f.repo.ListMessages(ctx, "c2", 0, 0)
	require.NoError(t, err)
	require.Len(t, logged, 2*perSender)

	delivered := ofType(drain(watcher), ws.EventNewMessage)
	require.Len(t, delivered, 2*perSender)
	for i, ev := range delivered {
		data := decode[ws.NewMessageData](t, ev)
		assert.Equal(t, logged[i].ID, data.Message.ID)
		assert.Equal(t, int64(i+1), data.Message.Seq)
	}
}

func TestGetConversationMarksPageRead(t *testing.T) {
	f := newFixture(t, ChatOptions{})
	ctx := context.Background()
	a := f.connect("alice")
	f.join(t, a, "c1")

	for _, content := range []string{"one", "two", "three"} {
		_, err := f.uc.SendMessage(ctx, "alice", "c1", SendMessageInput{Content: content})
		require.NoError(t, err)
	}
	_, err := f.uc.SendMessage(ctx, "bob", "c1", SendMessageInput{Content: "reply"})
	require.NoError(t, err)
	drainAll(a)

	detail, err := f.uc.GetConversation(ctx, "bob", "c1", 2, 0, true)
	require.NoError(t, err)
	require.Len(t, detail.Messages, 2)
	assert.Equal(t, "three", detail.Messages[0].Content)
	assert.Equal(t, "reply", detail.Messages[1].Content)
	assert.Equal(t, int64(4), detail.Total)
	assert.Equal(t, []string{detail.Messages[0].ID}, detail.MarkedRead)
	assert.True(t, detail.Messages[0].IsRead)
	assert.Equal(t, 2, detail.Conversation.MyUnreadCount)
	require.Len(t, detail.Conversation.OtherParticipants, 1)
	assert.Equal(t, "Alice Seller", detail.Conversation.OtherParticipants[0].DisplayName)

	reads := ofType(drain(a), ws.EventMessagesRead)
	require.Len(t, reads, 1)

	_, err = f.uc.GetConversation(ctx, "mallory", "c1", 2, 0, false)
	assert.True(t, errors.Is(err, errors.CodeNotFound))
}

func TestStartConversation(t *testing.T) {
	f := newFixture(t, ChatOptions{})
	ctx := context.Background()
	seller := f.connect("alice")
	drainAll(seller)

	conv, created, err := f.uc.StartConversation(ctx, "carol", StartConversationInput{ListingID: "lamp-3", SellerID: "alice", Content: "Is the lamp available?"})
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, "alice", conv.SellerID)
	assert.ElementsMatch(t, []string{"alice", "carol"}, conv.Participants)
	assert.Equal(t, 1, conv.UnreadCount["alice"])
	assert.Len(t, ofType(drain(seller), ws.EventNewMessageNotification), 1)

	again, created, err := f.uc.StartConversation(ctx, "carol", StartConversationInput{ListingID: "lamp-3", SellerID: "alice"})
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, conv.ID, again.ID)

	_, _, err = f.uc.StartConversation(ctx, "alice", StartConversationInput{ListingID: "lamp-3", SellerID: "alice"})
	assert.True(t, errors.Is(err, errors.CodeValidation))

	_, _, err = f.uc.StartConversation(ctx, "carol", StartConversationInput{ListingID: "lamp-3", SellerID: "nobody"})
	assert.True(t, errors.Is(err, errors.CodeNotFound))
}

func TestListConversationsAndUnreadSummary(t *testing.T) {
	f := newFixture(t, ChatOptions{})
	ctx := context.Background()

	_, _, err := f.uc.StartConversation(ctx, "alice", StartConversationInput{ListingID: "desk-1", SellerID: "carol", Content: "hello"})
	require.NoError(t, err)
	_, err = f.uc.SendMessage(ctx, "bob", "c1", SendMessageInput{Content: "offer 50"})
	require.NoError(t, err)
	_, err = f.uc.SendMessage(ctx, "bob", "c1", SendMessageInput{Content: "offer 60"})
	require.NoError(t, err)

	all, total, err := f.uc.ListConversations(ctx, "alice", "", 20, 0)
	require.NoError(t, err)
	assert.Equal(t, int64(2), total)
	require.Len(t, all, 2)
	assert.Equal(t, "c1", all[0].ID)
	assert.Equal(t, "bobby", all[0].OtherParticipants[0].DisplayName)

	selling, _, err := f.uc.ListConversations(ctx, "alice", "selling", 20, 0)
	require.NoError(t, err)
	require.Len(t, selling, 1)
	assert.Equal(t, "c1", selling[0].ID)

	buying, _, err := f.uc.ListConversations(ctx, "alice", "others-ads", 20, 0)
	require.NoError(t, err)
	require.Len(t, buying, 1)
	assert.Equal(t, "desk-1", buying[0].ListingID)

	_, _, err = f.uc.ListConversations(ctx, "alice", "archived", 20, 0)
	assert.True(t, errors.Is(err, errors.CodeValidation))

	summary, err := f.uc.GetUnreadSummary(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, 2, summary.Total)
	assert.Equal(t, map[string]int{"c1": 2}, summary.Conversations)

	require.NoError(t, f.uc.DeleteConversation(ctx, "alice", "c1"))
	all, total, err = f.uc.ListConversations(ctx, "alice", "", 20, 0)
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
	assert.Len(t, all, 1)

	require.NoError(t, f.uc.MarkSuspicious(ctx, "carol", all[0].ID, "asked for bank details"))
	suspicious, _, err := f.uc.ListConversations(ctx, "alice", "suspicious", 20, 0)
	require.NoError(t, err)
	require.Len(t, suspicious, 1)
	assert.Equal(t, []string{"asked for bank details"}, suspicious[0].SuspiciousReasons)
}

func TestUploadAttachmentRequiresStorage(t *testing.T) {
	f := newFixture(t, ChatOptions{})
	_, err := f.uc.UploadAttachment(context.Background(), "alice", "c1", "photo.png", nil)
	require.Error(t, err)
	assert.Equal(t, "SERVICE_UNAVAILABLE", errors.CodeOf(err))
}
