package model

import (
	"time"

	"github.com/lib/pq"
)

type Message struct {
	ID             string         `db:"id" json:"id"`
	ConversationID string         `db:"conversation_id" json:"conversationId"`
	SenderID       string         `db:"sender_id" json:"senderId"`
	Content        string         `db:"content" json:"content"`
	Type           MessageType    `db:"type" json:"type"`
	ReadBy         pq.StringArray `db:"read_by" json:"readBy"`
	Deleted        bool           `db:"deleted" json:"deleted"`
	CreatedAt      time.Time      `db:"created_at" json:"createdAt"`
}

type CreateMessageParams struct {
	ConversationID string
	SenderID       string
	Content        string
	Type           MessageType
}

// DeliveredMessage is a persisted message with the sender resolved,
// broadcast to every connection joined to the conversation's room.
type DeliveredMessage struct {
	Message
	Sender PublicUser `json:"sender"`
}
