package handler_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	gorillaws "github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"marketchat/internal/adapter/api"
	"marketchat/internal/adapter/api/handler"
	"marketchat/internal/adapter/api/middleware"
	"marketchat/internal/adapter/api/router"
	adapterrepo "marketchat/internal/adapter/repository"
	"marketchat/internal/domain/entity"
	"marketchat/internal/infrastructure/auth"
	"marketchat/internal/infrastructure/ratelimit"
	ws "marketchat/internal/infrastructure/websocket"
	"marketchat/internal/usecase"
)

type testServer struct {
	*httptest.Server
	issuer *auth.JWTVerifier
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()

	users := adapterrepo.NewMemoryUserRepository(
		&entity.User{ID: "alice", FirstName: "Alice", LastName: "Seller", IsActive: true},
		&entity.User{ID: "bob", FirstName: "Bob", LastName: "Buyer", IsActive: true},
		&entity.User{ID: "carol", FirstName: "Carol", IsActive: true},
		&entity.User{ID: "zed", FirstName: "Zed", IsActive: false},
	)
	conversations := adapterrepo.NewMemoryConversationRepository()
	require.NoError(t, conversations.Create(context.Background(), &entity.Conversation{
		ID:           "c1",
		ListingID:    "bike-42",
		SellerID:     "alice",
		Participants: []string{"alice", "bob"},
	}))

	registry := ws.NewRegistry()
	limiter := ratelimit.NewRateLimiter(nil)
	chatUseCase := usecase.NewChatUseCase(conversations, users, registry, usecase.ChatOptions{RateLimiter: limiter})
	issuer := auth.NewJWTVerifier("test-secret", time.Hour)
	authenticator := auth.NewAuthenticator(issuer, users)

	handler.Setup(usecase.NewUserUseCase(users), registry, issuer, users)

	e := echo.New()
	e.Validator = api.NewValidator()
	router.Setup(
		e,
		middleware.NewAuthMiddleware(authenticator),
		limiter,
		handler.NewChatHandler(chatUseCase),
		handler.NewWebSocketHandler(chatUseCase, authenticator, handler.WebSocketOptions{AllowedOrigins: []string{"*"}}),
		"development",
	)

	srv := httptest.NewServer(e)
	t.Cleanup(srv.Close)
	return &testServer{Server: srv, issuer: issuer}
}

func (s *testServer) token(t *testing.T, userID string) string {
	t.Helper()
	token, err := s.issuer.Issue(userID)
	require.NoError(t, err)
	return token
}

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func (s *testServer) do(t *testing.T, method, path, userID string, body interface{}) (int, envelope) {
	t.Helper()

	var payload bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&payload).Encode(body))
	}
	req, err := http.NewRequest(method, s.URL+path, &payload)
	require.NoError(t, err)
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	if userID != "" {
		req.Header.Set(echo.HeaderAuthorization, "Bearer "+s.token(t, userID))
	}

	res, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer res.Body.Close()

	var env envelope
	require.NoError(t, json.NewDecoder(res.Body).Decode(&env))
	return res.StatusCode, env
}

func TestHealthCheck(t *testing.T) {
	srv := newTestServer(t)

	res, err := http.Get(srv.URL + "/health")
	require.NoError(t, err)
	defer res.Body.Close()

	assert.Equal(t, http.StatusOK, res.StatusCode)
	var body map[string]interface{}
	require.NoError(t, json.NewDecoder(res.Body).Decode(&body))
	assert.Equal(t, "Server is running", body["status"])
}

func TestRESTRequiresAuthentication(t *testing.T) {
	srv := newTestServer(t)

	status, env := srv.do(t, http.MethodGet, "/v1/conversations", "", nil)
	assert.Equal(t, http.StatusUnauthorized, status)
	require.NotNil(t, env.Error)
	assert.Equal(t, "AUTHENTICATION_ERROR", env.Error.Code)
	assert.Equal(t, "Authentication failed", env.Error.Message)

	status, env = srv.do(t, http.MethodGet, "/v1/conversations", "zed", nil)
	assert.Equal(t, http.StatusUnauthorized, status)
	assert.Equal(t, "AUTHENTICATION_ERROR", env.Error.Code)
}

func TestRESTConversationFlow(t *testing.T) {
	srv := newTestServer(t)

	status, env := srv.do(t, http.MethodPost, "/v1/conversations", "bob", map[string]string{"listing_id": "lamp-3"})
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "VALIDATION_ERROR", env.Error.Code)
	assert.Equal(t, "seller_id is required", env.Error.Message)

	start := map[string]string{"listing_id": "lamp-3", "seller_id": "alice", "content": "Is it available?"}
	status, env = srv.do(t, http.MethodPost, "/v1/conversations", "bob", start)
	require.Equal(t, http.StatusCreated, status)
	var conv entity.Conversation
	require.NoError(t, json.Unmarshal(env.Data, &conv))
	assert.Equal(t, "Is it available?", conv.LastMessage.Content)

	status, _ = srv.do(t, http.MethodPost, "/v1/conversations", "bob", start)
	assert.Equal(t, http.StatusOK, status)

	status, env = srv.do(t, http.MethodGet, "/v1/conversations/unread", "alice", nil)
	require.Equal(t, http.StatusOK, status)
	var summary usecase.UnreadSummary
	require.NoError(t, json.Unmarshal(env.Data, &summary))
	assert.Equal(t, 1, summary.Total)
	assert.Equal(t, 1, summary.Conversations[conv.ID])

	status, env = srv.do(t, http.MethodGet, "/v1/conversations/"+conv.ID+"?markRead=true", "alice", nil)
	require.Equal(t, http.StatusOK, status)
	var detail struct {
		MarkedRead []string `json:"marked_read"`
		Messages   struct {
			Items []entity.Message `json:"items"`
			Total int64            `json:"total"`
		} `json:"messages"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &detail))
	assert.Len(t, detail.MarkedRead, 1)
	assert.Equal(t, int64(1), detail.Messages.Total)

	status, env = srv.do(t, http.MethodGet, "/v1/conversations/c1/messages", "alice", nil)
	assert.Equal(t, http.StatusOK, status)
	assert.True(t, env.Success)
}

func TestRESTOutsiderGetsNotFound(t *testing.T) {
	srv := newTestServer(t)

	status, env := srv.do(t, http.MethodGet, "/v1/conversations/c1", "carol", nil)
	assert.Equal(t, http.StatusNotFound, status)
	assert.Equal(t, "NOT_FOUND", env.Error.Code)

	status, env = srv.do(t, http.MethodPost, "/v1/conversations/c1/messages", "carol", map[string]string{"content": "x"})
	assert.Equal(t, http.StatusNotFound, status)
	assert.Equal(t, "NOT_FOUND", env.Error.Code)

	status, env = srv.do(t, http.MethodGet, "/v1/conversations/c1", "mallory", nil)
	// mallory has no profile, so the credential does not resolve.
	assert.Equal(t, http.StatusUnauthorized, status)
	assert.Equal(t, "AUTHENTICATION_ERROR", env.Error.Code)
}

func TestUploadWithoutStorage(t *testing.T) {
	srv := newTestServer(t)

	var body bytes.Buffer
	body.WriteString("--x\r\nContent-Disposition: form-data; name=\"file\"; filename=\"a.txt\"\r\nContent-Type: text/plain\r\n\r\nhello\r\n--x--\r\n")
	req, err := http.NewRequest(http.MethodPost, srv.URL+"/v1/conversations/c1/attachments", &body)
	require.NoError(t, err)
	req.Header.Set(echo.HeaderContentType, "multipart/form-data; boundary=x")
	req.Header.Set(echo.HeaderAuthorization, "Bearer "+srv.token(t, "alice"))

	res, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer res.Body.Close()
	assert.Equal(t, http.StatusServiceUnavailable, res.StatusCode)
}

func TestUpdateChatDisplayName(t *testing.T) {
	srv := newTestServer(t)

	status, env := srv.do(t, http.MethodPut, "/v1/users/me/chat-display-name", "alice", map[string]string{"display_name": "Alice's Bikes"})
	require.Equal(t, http.StatusOK, status)
	var out map[string]string
	require.NoError(t, json.Unmarshal(env.Data, &out))
	assert.Equal(t, "Alice's Bikes", out["display_name"])

	status, env = srv.do(t, http.MethodPut, "/v1/users/me/chat-display-name", "alice", map[string]string{"display_name": ""})
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "VALIDATION_ERROR", env.Error.Code)
}

func TestDevTokenEndpoint(t *testing.T) {
	srv := newTestServer(t)

	status, env := srv.do(t, http.MethodPost, "/_dev/token", "", map[string]string{"user_id": "dora", "first_name": "Dora"})
	require.Equal(t, http.StatusOK, status)
	var out struct {
		Token string `json:"token"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &out))
	require.NotEmpty(t, out.Token)

	req, err := http.NewRequest(http.MethodGet, srv.URL+"/v1/users/me", nil)
	require.NoError(t, err)
	req.Header.Set(echo.HeaderAuthorization, "Bearer "+out.Token)
	res, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	res.Body.Close()
	assert.Equal(t, http.StatusOK, res.StatusCode)
}

func TestDevTokenRefusesExistingUser(t *testing.T) {
	srv := newTestServer(t)

	status, env := srv.do(t, http.MethodPost, "/_dev/token", "", map[string]string{"user_id": "alice", "first_name": "Mallory"})
	assert.Equal(t, http.StatusConflict, status)
	require.NotNil(t, env.Error)
	assert.Equal(t, "CONFLICT", env.Error.Code)

	status, env = srv.do(t, http.MethodGet, "/v1/users/me", "alice", nil)
	require.Equal(t, http.StatusOK, status)
	var profile entity.User
	require.NoError(t, json.Unmarshal(env.Data, &profile))
	assert.Equal(t, "Alice", profile.FirstName)
	assert.Equal(t, "Seller", profile.LastName)
}

func (s *testServer) wsURL() string {
	return "ws" + strings.TrimPrefix(s.URL, "http") + "/ws"
}

type frame struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

// readUntil skips frames until one of eventType arrives.
func readUntil(t *testing.T, conn *gorillaws.Conn, eventType string) frame {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	for {
		var f frame
		require.NoError(t, conn.ReadJSON(&f))
		if f.Type == eventType {
			return f
		}
	}
}

func TestWebSocketRefusesBadCredential(t *testing.T) {
	srv := newTestServer(t)

	_, res, err := gorillaws.DefaultDialer.Dial(srv.wsURL()+"?token=not-a-jwt", nil)
	require.Error(t, err)
	require.NotNil(t, res)
	assert.Equal(t, http.StatusUnauthorized, res.StatusCode)

	_, res, err = gorillaws.DefaultDialer.Dial(srv.wsURL(), nil)
	require.Error(t, err)
	require.NotNil(t, res)
	assert.Equal(t, http.StatusUnauthorized, res.StatusCode)
}

func TestWebSocketConversationFlow(t *testing.T) {
	srv := newTestServer(t)

	alice, _, err := gorillaws.DefaultDialer.Dial(srv.wsURL()+"?token="+srv.token(t, "alice"), nil)
	require.NoError(t, err)
	defer alice.Close()
	require.NoError(t, alice.WriteJSON(map[string]string{"type": "ping"}))
	readUntil(t, alice, ws.EventPong)

	protocol := "bearer." + srv.token(t, "bob")
	dialer := gorillaws.Dialer{Subprotocols: []string{protocol}}
	bob, res, err := dialer.Dial(srv.wsURL(), nil)
	require.NoError(t, err)
	defer bob.Close()
	assert.Equal(t, protocol, res.Header.Get("Sec-WebSocket-Protocol"))

	online := readUntil(t, alice, ws.EventUserStatusChanged)
	assert.Contains(t, string(online.Data), `"online"`)

	require.NoError(t, alice.WriteJSON(map[string]interface{}{"type": "join_conversation", "data": map[string]string{"conversation_id": "c1"}}))
	readUntil(t, alice, ws.EventConversationJoined)
	require.NoError(t, bob.WriteJSON(map[string]interface{}{"type": "join_conversation", "data": "c1"}))
	readUntil(t, bob, ws.EventConversationJoined)

	require.NoError(t, alice.WriteJSON(map[string]interface{}{
		"type": "send_message",
		"data": map[string]string{"conversation_id": "c1", "content": "hello bob", "client_id": "tmp-1"},
	}))

	incoming := readUntil(t, bob, ws.EventNewMessage)
	var newMessage ws.NewMessageData
	require.NoError(t, json.Unmarshal(incoming.Data, &newMessage))
	assert.Equal(t, "hello bob", newMessage.Message.Content)
	assert.Equal(t, "alice", newMessage.Sender.ID)

	ack := readUntil(t, alice, ws.EventMessageSent)
	var sent ws.MessageSentData
	require.NoError(t, json.Unmarshal(ack.Data, &sent))
	assert.Equal(t, "tmp-1", sent.ClientID)
	assert.Equal(t, newMessage.Message.ID, sent.MessageID)

	require.NoError(t, bob.WriteJSON(map[string]interface{}{
		"type": "mark_messages_read",
		"data": map[string]interface{}{"conversation_id": "c1", "message_ids": []string{sent.MessageID}},
	}))
	receipt := readUntil(t, alice, ws.EventMessagesRead)
	var read ws.MessagesReadData
	require.NoError(t, json.Unmarshal(receipt.Data, &read))
	assert.Equal(t, []string{sent.MessageID}, read.MessageIDs)
	assert.Equal(t, "bob", read.ReaderID)

	require.NoError(t, bob.WriteJSON(map[string]interface{}{"type": "bogus"}))
	failure := readUntil(t, bob, ws.EventError)
	assert.Contains(t, string(failure.Data), "Unknown message type: bogus")
	require.NoError(t, bob.WriteJSON(map[string]interface{}{"type": "ping"}))
	readUntil(t, bob, ws.EventPong)

	require.NoError(t, bob.Close())
	offline := readUntil(t, alice, ws.EventUserStatusChanged)
	assert.Contains(t, string(offline.Data), `"offline"`)
}
