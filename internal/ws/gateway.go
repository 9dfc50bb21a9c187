package ws

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/lumeochat/messenger-go/internal/audit"
	"github.com/lumeochat/messenger-go/internal/config"
	apperrors "github.com/lumeochat/messenger-go/internal/errors"
	"github.com/lumeochat/messenger-go/internal/model"
	"github.com/lumeochat/messenger-go/internal/repository"
	"github.com/lumeochat/messenger-go/internal/service"
	"github.com/lumeochat/messenger-go/internal/token"
)

// Gateway upgrades HTTP requests to websocket connections. The handshake
// is strict: the access token is validated before the connection joins
// any room or receives any event.
type Gateway struct {
	hub           *Hub
	authority     *token.Authority
	users         repository.UserRepository
	conversations *service.ConversationService
	messages      *service.MessageService
	presence      *service.PresenceService
	upgrader      websocket.Upgrader
}

func NewGateway(
	hub *Hub,
	authority *token.Authority,
	users repository.UserRepository,
	conversations *service.ConversationService,
	messages *service.MessageService,
	presence *service.PresenceService,
	allowedOrigin string,
) *Gateway {
	return &Gateway{
		hub:           hub,
		authority:     authority,
		users:         users,
		conversations: conversations,
		messages:      messages,
		presence:      presence,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				if allowedOrigin == "" {
					return true
				}
				return r.Header.Get("Origin") == allowedOrigin
			},
		},
	}
}

type connectedPayload struct {
	ConnectionID string           `json:"connectionId"`
	User         model.PublicUser `json:"user"`
	Rooms        []string         `json:"rooms"`
}

// ServeHTTP performs the handshake. Token validation failures are
// rejected with 401 before the upgrade; an expired token is signalled
// distinctly so the client can refresh and reconnect.
func (g *Gateway) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), config.HandshakeTimeout)
	defer cancel()

	tokenString := bearerToken(r)
	if tokenString == "" {
		audit.LogFromRequest(r, audit.Event{Type: audit.EventWSAuthFailure, Details: map[string]interface{}{"reason": "missing token"}})
		writeHandshakeError(w, apperrors.Unauthenticated("Missing access token"))
		return
	}

	userID, err := g.authority.ValidateAccess(tokenString)
	if err != nil {
		audit.LogFromRequest(r, audit.Event{Type: audit.EventWSAuthFailure, Details: map[string]interface{}{"reason": err.Error()}})
		writeHandshakeError(w, err)
		return
	}

	user, err := g.users.FindByID(ctx, userID)
	if err != nil {
		writeHandshakeError(w, err)
		return
	}

	rooms, err := g.conversations.MembershipIDs(ctx, user.ID)
	if err != nil {
		writeHandshakeError(w, err)
		return
	}

	ws, err := g.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}

	conn := newConn(uuid.NewString(), user.ID, user.Username, ws)
	conn.authenticated()

	g.hub.Register(conn)
	for _, roomID := range rooms {
		g.hub.Join(roomID, conn)
	}
	g.presence.HandleConnect(r.Context(), user.ID)

	go conn.writePump()

	conn.SendEvent(EventConnected, connectedPayload{
		ConnectionID: conn.ID,
		User:         user.Public(),
		Rooms:        rooms,
	})

	conn.readPump(g.handle)

	g.hub.Unregister(conn)
	conn.closeSend()
	g.presence.HandleDisconnect(context.Background(), user.ID)
}

type roomPayload struct {
	ConversationID string `json:"conversationId"`
}

type typingRequest struct {
	ConversationID string `json:"conversationId"`
	IsTyping       bool   `json:"isTyping"`
}

type statusRequest struct {
	Status model.UserStatus `json:"status"`
}

func (g *Gateway) handle(c *Conn, event Event) {
	ctx := context.Background()

	switch event.Type {
	case EventMessageSend:
		var params service.SendParams
		if err := json.Unmarshal(event.Data, &params); err != nil {
			g.sendError(c, apperrors.InvalidArgument("data", "malformed message payload"))
			return
		}
		if _, err := g.messages.Send(ctx, c.UserID, params); err != nil {
			g.sendError(c, err)
		}

	case EventTyping:
		var req typingRequest
		if err := json.Unmarshal(event.Data, &req); err != nil {
			return
		}
		user, err := g.users.FindByID(ctx, c.UserID)
		if err != nil {
			return
		}
		// Dropped typing indicators are not reported back.
		if err := g.messages.Typing(ctx, user, req.ConversationID, req.IsTyping); err != nil {
			log.Debug().Err(err).Str("userId", c.UserID).Msg("typing relay failed")
		}

	case EventJoinRoom:
		var req roomPayload
		if err := json.Unmarshal(event.Data, &req); err != nil {
			g.sendError(c, apperrors.InvalidArgument("data", "malformed join payload"))
			return
		}
		if _, err := g.conversations.GetForUser(ctx, req.ConversationID, c.UserID); err != nil {
			g.sendError(c, err)
			return
		}
		g.hub.Join(req.ConversationID, c)

	case EventLeaveRoom:
		var req roomPayload
		if err := json.Unmarshal(event.Data, &req); err != nil {
			return
		}
		g.hub.Leave(req.ConversationID, c)

	case EventUserStatus:
		var req statusRequest
		if err := json.Unmarshal(event.Data, &req); err != nil {
			return
		}
		if err := g.presence.SetStatus(ctx, c.UserID, req.Status); err != nil {
			g.sendError(c, err)
		}

	default:
		g.sendError(c, apperrors.InvalidArgument("type", "unknown event type"))
	}
}

type errorPayload struct {
	Code    apperrors.ErrorCode `json:"code"`
	Message string              `json:"message"`
}

func (g *Gateway) sendError(c *Conn, err error) {
	appErr, ok := apperrors.AsAppError(err)
	if !ok {
		appErr = apperrors.Internal("Internal server error")
	}
	c.SendEvent(EventError, errorPayload{Code: appErr.Code, Message: appErr.Message})
}

func writeHandshakeError(w http.ResponseWriter, err error) {
	appErr, ok := apperrors.AsAppError(err)
	if !ok {
		appErr = apperrors.Internal("Internal server error")
	}

	status := http.StatusInternalServerError
	switch appErr.Code {
	case apperrors.ErrCodeUnauthenticated, apperrors.ErrCodeTokenExpired, apperrors.ErrCodeTokenMalformed:
		status = http.StatusUnauthorized
	case apperrors.ErrCodeNotFound:
		status = http.StatusNotFound
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]any{
		"error": errorPayload{Code: appErr.Code, Message: appErr.Message},
	})
}

// bearerToken pulls the access token from the Authorization header or,
// for browser clients that cannot set headers on websocket dials, the
// token query parameter.
func bearerToken(r *http.Request) string {
	if h := r.Header.Get("Authorization"); strings.HasPrefix(h, "Bearer ") {
		return strings.TrimPrefix(h, "Bearer ")
	}
	return r.URL.Query().Get("token")
}
