package ws

import "encoding/json"

// Client-emitted event types.
const (
	EventMessageSend = "message:send"
	EventTyping      = "typing"
	EventJoinRoom    = "join:room"
	EventLeaveRoom   = "leave:room"
	EventUserStatus  = "user:status"
)

// Server-emitted event types.
const (
	EventConnected      = "connected"
	EventMessageReceive = "message:receive"
	EventError          = "error"
)

// Event is one frame on the duplex connection.
type Event struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

func NewEvent(eventType string, payload any) (Event, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return Event{}, err
	}
	return Event{Type: eventType, Data: data}, nil
}

// envelope is the cross-instance pubsub frame. ExcludeUserID suppresses
// delivery to the originating user's connections (typing, presence).
type envelope struct {
	ExcludeUserID string `json:"excludeUserId,omitempty"`
	Event         Event  `json:"event"`
}
