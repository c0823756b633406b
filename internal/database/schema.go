package database

import (
	"context"
	"database/sql"
	"fmt"
)

// Schema for the messaging core. The unique constraint on
// (subject_kind, subject_id, participant_low, participant_high) is what
// makes concurrent find-or-create converge on a single conversation:
// the losing insert hits the constraint and re-reads the winner.
var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS listings (
		id BIGSERIAL PRIMARY KEY,
		owner_id TEXT NOT NULL,
		title TEXT NOT NULL,
		allow_messages BOOLEAN NOT NULL DEFAULT true,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE TABLE IF NOT EXISTS yard_sales (
		id BIGSERIAL PRIMARY KEY,
		owner_id TEXT NOT NULL,
		title TEXT NOT NULL,
		allow_messages BOOLEAN NOT NULL DEFAULT true,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE TABLE IF NOT EXISTS conversations (
		id BIGSERIAL PRIMARY KEY,
		subject_kind TEXT NOT NULL,
		subject_id BIGINT NOT NULL,
		participant_low TEXT NOT NULL,
		participant_high TEXT NOT NULL,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		CONSTRAINT conversations_subject_pair_key
			UNIQUE (subject_kind, subject_id, participant_low, participant_high)
	)`,
	`CREATE TABLE IF NOT EXISTS messages (
		id BIGSERIAL PRIMARY KEY,
		conversation_id BIGINT NOT NULL REFERENCES conversations(id) ON DELETE CASCADE,
		sender_id TEXT NOT NULL,
		recipient_id TEXT NOT NULL,
		content TEXT NOT NULL,
		read BOOLEAN NOT NULL DEFAULT false,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE INDEX IF NOT EXISTS messages_conversation_order_idx
		ON messages (conversation_id, created_at, id)`,
	`CREATE INDEX IF NOT EXISTS messages_unread_idx
		ON messages (recipient_id) WHERE read = false`,
	`CREATE TABLE IF NOT EXISTS notifications (
		id BIGSERIAL PRIMARY KEY,
		recipient_id TEXT NOT NULL,
		kind TEXT NOT NULL,
		title TEXT NOT NULL,
		body TEXT NOT NULL,
		read BOOLEAN NOT NULL DEFAULT false,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		read_at TIMESTAMPTZ,
		actor_id TEXT,
		subject_kind TEXT,
		subject_id BIGINT,
		message_id BIGINT REFERENCES messages(id) ON DELETE CASCADE
	)`,
	`CREATE INDEX IF NOT EXISTS notifications_recipient_idx
		ON notifications (recipient_id, created_at DESC)`,
}

// EnsureSchema creates the messaging tables if they do not exist yet.
func EnsureSchema(ctx context.Context, db *sql.DB) error {
	for _, stmt := range schemaStatements {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to apply schema statement: %w", err)
		}
	}
	return nil
}
