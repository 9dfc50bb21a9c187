package model

import (
	"sort"
	"strings"
	"time"

	"github.com/lib/pq"
)

type Conversation struct {
	ID             string         `db:"id" json:"id"`
	ParticipantIDs pq.StringArray `db:"participant_ids" json:"participantIds"`
	IsGroup        bool           `db:"is_group" json:"isGroup"`
	GroupName      *string        `db:"group_name" json:"groupName,omitempty"`
	// PairKey is the sorted participant pair for one-to-one conversations.
	// A partial unique index on it prevents duplicate direct conversations
	// when two first messages race.
	PairKey       *string    `db:"pair_key" json:"-"`
	LastMessageID *string    `db:"last_message_id" json:"lastMessageId,omitempty"`
	CreatedAt     time.Time  `db:"created_at" json:"createdAt"`
	UpdatedAt     time.Time  `db:"updated_at" json:"updatedAt"`
}

type CreateConversationParams struct {
	ParticipantIDs []string
	IsGroup        bool
	GroupName      *string
	PairKey        *string
}

// HasParticipant reports whether userID belongs to the conversation.
func (c *Conversation) HasParticipant(userID string) bool {
	for _, id := range c.ParticipantIDs {
		if id == userID {
			return true
		}
	}
	return false
}

// DirectPairKey returns the canonical key for a one-to-one conversation
// between a and b. The key is identical regardless of argument order.
func DirectPairKey(a, b string) string {
	ids := []string{a, b}
	sort.Strings(ids)
	return strings.Join(ids, ":")
}
