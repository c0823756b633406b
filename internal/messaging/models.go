package messaging

import (
	"time"

	"github.com/yardline/internal/market"
)

// Conversation is the single thread between two users about one
// subject. The participant pair is stored in canonical order
// (lexicographically smaller identity first) so that the unordered pair
// forms a unique lookup key together with the subject.
type Conversation struct {
	ID              int64             `json:"id" db:"id"`
	Subject         market.SubjectRef `json:"subject"`
	ParticipantLow  string            `json:"participant_low" db:"participant_low"`
	ParticipantHigh string            `json:"participant_high" db:"participant_high"`
	CreatedAt       time.Time         `json:"created_at" db:"created_at"`
	UpdatedAt       time.Time         `json:"updated_at" db:"updated_at"`
}

// HasParticipant reports whether the user is one of the two parties.
func (c *Conversation) HasParticipant(userID string) bool {
	return userID == c.ParticipantLow || userID == c.ParticipantHigh
}

// OtherParticipant returns the counterpart of the given user, or false
// if the user is not a participant at all.
func (c *Conversation) OtherParticipant(userID string) (string, bool) {
	switch userID {
	case c.ParticipantLow:
		return c.ParticipantHigh, true
	case c.ParticipantHigh:
		return c.ParticipantLow, true
	default:
		return "", false
	}
}

// CanonicalPair sorts two identities into storage order.
func CanonicalPair(a, b string) (low, high string) {
	if a < b {
		return a, b
	}
	return b, a
}

// Message is one immutable entry in a conversation's log.
type Message struct {
	ID             int64     `json:"id" db:"id"`
	ConversationID int64     `json:"conversation_id" db:"conversation_id"`
	SenderID       string    `json:"sender_id" db:"sender_id"`
	RecipientID    string    `json:"recipient_id" db:"recipient_id"`
	Content        string    `json:"content" db:"content"`
	Read           bool      `json:"read" db:"read"`
	CreatedAt      time.Time `json:"created_at" db:"created_at"`
}

// ConversationSummary is one row of a user's inbox view: the
// conversation, its most recent message (nil when the conversation has
// no messages yet), and the caller's unread count within it.
type ConversationSummary struct {
	Conversation *Conversation `json:"conversation"`
	LastMessage  *Message      `json:"last_message,omitempty"`
	UnreadCount  int           `json:"unread_count"`
}
