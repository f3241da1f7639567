package handler

import (
	"net/http"
	"net/url"
	"strings"

	gorillaws "github.com/gorilla/websocket" // Rename the import to avoid conflict
	"github.com/labstack/echo/v4"

	"marketchat/internal/infrastructure/auth"
	ws "marketchat/internal/infrastructure/websocket" // Use alias for our websocket package
	"marketchat/internal/usecase"
	"marketchat/pkg/logger"
	"marketchat/pkg/response"
)

type WebSocketHandler struct {
	chatUseCase   *usecase.ChatUseCase
	authenticator *auth.Authenticator
	upgrader      gorillaws.Upgrader
	sendBuffer    int
}

type WebSocketOptions struct {
	// AllowedOrigins lists accepted Origin values; "*" accepts any.
	AllowedOrigins []string
	SendBuffer     int
}

func NewWebSocketHandler(chatUseCase *usecase.ChatUseCase, authenticator *auth.Authenticator, opts WebSocketOptions) *WebSocketHandler {
	return &WebSocketHandler{
		chatUseCase:   chatUseCase,
		authenticator: authenticator,
		sendBuffer:    opts.SendBuffer,
		upgrader: gorillaws.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     originChecker(opts.AllowedOrigins),
		},
	}
}

func originChecker(allowed []string) func(r *http.Request) bool {
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		for _, a := range allowed {
			if a == "*" || strings.EqualFold(a, origin) {
				return true
			}
		}
		u, err := url.Parse(origin)
		return err == nil && strings.EqualFold(u.Host, r.Host)
	}
}

// HandleWebSocket authenticates the upgrade request and then serves the
// connection until it closes. A bad credential is refused with 401 before
// the upgrade, so no event is ever read from it.
func (h *WebSocketHandler) HandleWebSocket(c echo.Context) error {
	req := c.Request()
	user, err := h.authenticator.Authenticate(req.Context(), auth.CredentialFromRequest(req))
	if err != nil {
		logger.Warn("WebSocket: refused connection from %s: %v", c.RealIP(), err)
		return response.Error(c, err)
	}

	header := http.Header{}
	if protocol := bearerSubprotocol(req); protocol != "" {
		header.Set("Sec-WebSocket-Protocol", protocol)
	}

	conn, err := h.upgrader.Upgrade(c.Response(), req, header)
	if err != nil {
		// The upgrader has already written the HTTP error.
		logger.Warn("WebSocket: upgrade failed for user %s: %v", user.ID, err)
		return nil
	}

	client := ws.NewClient(user.ID, conn, h.sendBuffer)
	h.chatUseCase.Connect(client)

	go client.WritePump()
	client.ReadPump(h.chatUseCase.HandleFrame)

	h.chatUseCase.Disconnect(client)
	return nil
}

// bearerSubprotocol returns the "bearer.<token>" subprotocol the client
// offered, which browsers require the server to echo back.
func bearerSubprotocol(r *http.Request) string {
	for _, protocol := range gorillaws.Subprotocols(r) {
		if strings.HasPrefix(protocol, "bearer.") {
			return protocol
		}
	}
	return ""
}
