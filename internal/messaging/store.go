package messaging

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/yardline/internal/market"
	apperrors "github.com/yardline/pkg/errors"
)

// Store is the persistence boundary for conversations and messages.
// The unread counters and conversation summaries are derived queries
// over the same rows; no cached counter exists anywhere.
type Store interface {
	LookupConversation(ctx context.Context, ref market.SubjectRef, userA, userB string) (*Conversation, error)
	InsertConversation(ctx context.Context, conv *Conversation) (bool, error)
	TouchConversation(ctx context.Context, id int64, at time.Time) error
	GetConversation(ctx context.Context, id int64) (*Conversation, error)

	InsertMessage(ctx context.Context, msg *Message) error
	GetMessage(ctx context.Context, id int64) (*Message, error)
	ListMessages(ctx context.Context, conversationID int64) ([]*Message, error)
	MarkMessageRead(ctx context.Context, id int64) error

	UnreadCount(ctx context.Context, userID string) (int, error)
	UnreadCountInConversation(ctx context.Context, userID string, conversationID int64) (int, error)
	Summaries(ctx context.Context, userID string) ([]*ConversationSummary, error)
}

// Storage implements Store on Postgres.
type Storage struct {
	db *sql.DB
}

// NewStorage creates a new storage instance.
func NewStorage(db *sql.DB) *Storage {
	return &Storage{db: db}
}

const conversationColumns = `id, subject_kind, subject_id, participant_low, participant_high, created_at, updated_at`

// LookupConversation finds the conversation for a subject and an
// unordered user pair. Returns (nil, nil) when no conversation exists.
func (s *Storage) LookupConversation(ctx context.Context, ref market.SubjectRef, userA, userB string) (*Conversation, error) {
	low, high := CanonicalPair(userA, userB)

	query := fmt.Sprintf(`
	SELECT %s
	FROM conversations
	WHERE subject_kind = $1 AND subject_id = $2 AND participant_low = $3 AND participant_high = $4
	`, conversationColumns)

	conv, err := scanConversation(s.db.QueryRowContext(ctx, query, ref.Kind, ref.ID, low, high))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to look up conversation: %w", err)
	}

	return conv, nil
}

// InsertConversation persists a new conversation. When another writer
// already created the same (subject, pair) row, the unique constraint
// swallows the insert and the second return value is false; the caller
// re-queries for the winner.
func (s *Storage) InsertConversation(ctx context.Context, conv *Conversation) (bool, error) {
	query := `
	INSERT INTO conversations (subject_kind, subject_id, participant_low, participant_high, created_at, updated_at)
	VALUES ($1, $2, $3, $4, $5, $6)
	ON CONFLICT (subject_kind, subject_id, participant_low, participant_high) DO NOTHING
	RETURNING id
	`

	err := s.db.QueryRowContext(
		ctx, query,
		conv.Subject.Kind, conv.Subject.ID,
		conv.ParticipantLow, conv.ParticipantHigh,
		conv.CreatedAt, conv.UpdatedAt,
	).Scan(&conv.ID)

	if err != nil {
		if err == sql.ErrNoRows {
			return false, nil
		}
		// Defensive: a concurrent insert racing the ON CONFLICT clause
		// still surfaces as a unique violation on some configurations.
		if pqErr, ok := err.(*pq.Error); ok && pqErr.Code == "23505" {
			return false, nil
		}
		return false, fmt.Errorf("failed to insert conversation: %w", err)
	}

	return true, nil
}

// TouchConversation bumps updated_at so the conversation sorts to the
// top of the owner's inbox.
func (s *Storage) TouchConversation(ctx context.Context, id int64, at time.Time) error {
	_, err := s.db.ExecContext(ctx, `UPDATE conversations SET updated_at = $1 WHERE id = $2`, at, id)
	if err != nil {
		return fmt.Errorf("failed to touch conversation %d: %w", id, err)
	}
	return nil
}

// GetConversation retrieves a conversation by ID.
func (s *Storage) GetConversation(ctx context.Context, id int64) (*Conversation, error) {
	query := fmt.Sprintf(`SELECT %s FROM conversations WHERE id = $1`, conversationColumns)

	conv, err := scanConversation(s.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, apperrors.ErrConversationNotFound
		}
		return nil, fmt.Errorf("failed to get conversation %d: %w", id, err)
	}

	return conv, nil
}

const messageColumns = `id, conversation_id, sender_id, recipient_id, content, read, created_at`

// InsertMessage appends a message to a conversation's log. The created
// timestamp and ID come from the store so that the observed list order
// matches the order of successful appends.
func (s *Storage) InsertMessage(ctx context.Context, msg *Message) error {
	query := `
	INSERT INTO messages (conversation_id, sender_id, recipient_id, content, read, created_at)
	VALUES ($1, $2, $3, $4, false, NOW())
	RETURNING id, read, created_at
	`

	err := s.db.QueryRowContext(
		ctx, query,
		msg.ConversationID, msg.SenderID, msg.RecipientID, msg.Content,
	).Scan(&msg.ID, &msg.Read, &msg.CreatedAt)

	if err != nil {
		return fmt.Errorf("failed to insert message: %w", err)
	}

	return nil
}

// GetMessage retrieves a message by ID.
func (s *Storage) GetMessage(ctx context.Context, id int64) (*Message, error) {
	query := fmt.Sprintf(`SELECT %s FROM messages WHERE id = $1`, messageColumns)

	msg := &Message{}
	err := s.db.QueryRowContext(ctx, query, id).Scan(
		&msg.ID, &msg.ConversationID, &msg.SenderID, &msg.RecipientID,
		&msg.Content, &msg.Read, &msg.CreatedAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, apperrors.ErrMessageNotFound
		}
		return nil, fmt.Errorf("failed to get message %d: %w", id, err)
	}

	return msg, nil
}

// ListMessages returns the full ordered log of a conversation, oldest
// first. Ties on created_at break by insertion order.
func (s *Storage) ListMessages(ctx context.Context, conversationID int64) ([]*Message, error) {
	query := fmt.Sprintf(`
	SELECT %s
	FROM messages
	WHERE conversation_id = $1
	ORDER BY created_at ASC, id ASC
	`, messageColumns)

	rows, err := s.db.QueryContext(ctx, query, conversationID)
	if err != nil {
		return nil, fmt.Errorf("failed to query messages: %w", err)
	}
	defer rows.Close()

	messages := make([]*Message, 0)
	for rows.Next() {
		msg := &Message{}
		err := rows.Scan(
			&msg.ID, &msg.ConversationID, &msg.SenderID, &msg.RecipientID,
			&msg.Content, &msg.Read, &msg.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan message: %w", err)
		}
		messages = append(messages, msg)
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating messages: %w", err)
	}

	return messages, nil
}

// MarkMessageRead flips the read flag. Already-read messages are left
// untouched, which keeps the operation idempotent.
func (s *Storage) MarkMessageRead(ctx context.Context, id int64) error {
	_, err := s.db.ExecContext(ctx, `UPDATE messages SET read = true WHERE id = $1 AND read = false`, id)
	if err != nil {
		return fmt.Errorf("failed to mark message %d read: %w", id, err)
	}
	return nil
}

// UnreadCount counts unread messages addressed to the user across all
// conversations.
func (s *Storage) UnreadCount(ctx context.Context, userID string) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM messages WHERE recipient_id = $1 AND read = false`, userID,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count unread messages: %w", err)
	}
	return count, nil
}

// UnreadCountInConversation scopes the unread count to one conversation.
func (s *Storage) UnreadCountInConversation(ctx context.Context, userID string, conversationID int64) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM messages WHERE recipient_id = $1 AND read = false AND conversation_id = $2`,
		userID, conversationID,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count unread messages in conversation: %w", err)
	}
	return count, nil
}

// Summaries builds the user's inbox: every conversation the user takes
// part in, newest activity first, each with its latest message and the
// user's unread count.
func (s *Storage) Summaries(ctx context.Context, userID string) ([]*ConversationSummary, error) {
	query := `
	SELECT c.id, c.subject_kind, c.subject_id, c.participant_low, c.participant_high, c.created_at, c.updated_at,
	       m.id, m.conversation_id, m.sender_id, m.recipient_id, m.content, m.read, m.created_at,
	       (SELECT COUNT(*) FROM messages u WHERE u.conversation_id = c.id AND u.recipient_id = $1 AND u.read = false)
	FROM conversations c
	LEFT JOIN LATERAL (
		SELECT id, conversation_id, sender_id, recipient_id, content, read, created_at
		FROM messages
		WHERE conversation_id = c.id
		ORDER BY created_at DESC, id DESC
		LIMIT 1
	) m ON true
	WHERE c.participant_low = $1 OR c.participant_high = $1
	ORDER BY c.updated_at DESC
	`

	rows, err := s.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to query conversation summaries: %w", err)
	}
	defer rows.Close()

	summaries := make([]*ConversationSummary, 0)
	for rows.Next() {
		conv := &Conversation{}
		var msgID, msgConvID sql.NullInt64
		var msgSender, msgRecipient, msgContent sql.NullString
		var msgRead sql.NullBool
		var msgCreatedAt sql.NullTime
		var unread int

		err := rows.Scan(
			&conv.ID, &conv.Subject.Kind, &conv.Subject.ID,
			&conv.ParticipantLow, &conv.ParticipantHigh,
			&conv.CreatedAt, &conv.UpdatedAt,
			&msgID, &msgConvID, &msgSender, &msgRecipient, &msgContent, &msgRead, &msgCreatedAt,
			&unread,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan conversation summary: %w", err)
		}

		summary := &ConversationSummary{Conversation: conv, UnreadCount: unread}
		if msgID.Valid {
			summary.LastMessage = &Message{
				ID:             msgID.Int64,
				ConversationID: msgConvID.Int64,
				SenderID:       msgSender.String,
				RecipientID:    msgRecipient.String,
				Content:        msgContent.String,
				Read:           msgRead.Bool,
				CreatedAt:      msgCreatedAt.Time,
			}
		}
		summaries = append(summaries, summary)
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating conversation summaries: %w", err)
	}

	return summaries, nil
}

func scanConversation(row *sql.Row) (*Conversation, error) {
	conv := &Conversation{}
	err := row.Scan(
		&conv.ID, &conv.Subject.Kind, &conv.Subject.ID,
		&conv.ParticipantLow, &conv.ParticipantHigh,
		&conv.CreatedAt, &conv.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return conv, nil
}
