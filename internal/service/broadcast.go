package service

import "context"

// Broadcaster fans events out to live connections. Implemented by the
// websocket hub; services depend on this interface so they stay free of
// transport concerns.
type Broadcaster interface {
	// BroadcastRoom delivers to every connection joined to the
	// conversation's room. excludeUserID suppresses the originating
	// user's own connections; "" delivers to everyone.
	BroadcastRoom(ctx context.Context, conversationID, eventType string, payload any, excludeUserID string) error
	// BroadcastAll delivers to every connection on every instance.
	BroadcastAll(ctx context.Context, eventType string, payload any, excludeUserID string) error
}

// Server-pushed event types mirrored by the websocket layer.
const (
	eventMessageReceive = "message:receive"
	eventTyping         = "typing"
	eventUserStatus     = "user:status"
)
