package notifications

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	apperrors "github.com/yardline/pkg/errors"
)

// Ledger handles database operations for notifications. Listing order
// is creation time descending: notifications are consumed newest-first,
// unlike conversation logs which read oldest-first.
type Ledger struct {
	db *sql.DB
}

// NewLedger creates a new notification ledger.
func NewLedger(db *sql.DB) *Ledger {
	return &Ledger{db: db}
}

const notificationColumns = `id, recipient_id, kind, title, body, read, created_at, read_at, actor_id, subject_kind, subject_id, message_id`

// Record inserts a new notification row. Callers treat failures as
// best-effort relative to the action that triggered the event.
func (l *Ledger) Record(ctx context.Context, n *Notification) error {
	query := `
	INSERT INTO notifications (recipient_id, kind, title, body, read, created_at, actor_id, subject_kind, subject_id, message_id)
	VALUES ($1, $2, $3, $4, false, NOW(), $5, $6, $7, $8)
	RETURNING id, read, created_at
	`

	err := l.db.QueryRowContext(
		ctx, query,
		n.RecipientID, n.Kind, n.Title, n.Body,
		n.ActorID, n.SubjectKind, n.SubjectID, n.MessageID,
	).Scan(&n.ID, &n.Read, &n.CreatedAt)

	if err != nil {
		return fmt.Errorf("failed to record notification: %w", err)
	}

	return nil
}

// GetByID retrieves a notification by ID.
func (l *Ledger) GetByID(ctx context.Context, id int64) (*Notification, error) {
	query := fmt.Sprintf(`SELECT %s FROM notifications WHERE id = $1`, notificationColumns)

	n, err := scanNotification(l.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, apperrors.ErrNotificationNotFound
		}
		return nil, fmt.Errorf("failed to get notification %d: %w", id, err)
	}

	return n, nil
}

// List returns the user's notifications, newest first.
func (l *Ledger) List(ctx context.Context, recipientID string, limit int) ([]*Notification, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}

	query := fmt.Sprintf(`
	SELECT %s
	FROM notifications
	WHERE recipient_id = $1
	ORDER BY created_at DESC, id DESC
	LIMIT $2
	`, notificationColumns)

	rows, err := l.db.QueryContext(ctx, query, recipientID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query notifications: %w", err)
	}
	defer rows.Close()

	notifications := make([]*Notification, 0)
	for rows.Next() {
		n := &Notification{}
		err := rows.Scan(
			&n.ID, &n.RecipientID, &n.Kind, &n.Title, &n.Body,
			&n.Read, &n.CreatedAt, &n.ReadAt,
			&n.ActorID, &n.SubjectKind, &n.SubjectID, &n.MessageID,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan notification: %w", err)
		}
		notifications = append(notifications, n)
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating notifications: %w", err)
	}

	return notifications, nil
}

// MarkRead marks a notification read. Only the owning recipient may do
// so; marking an already-read notification is a no-op.
func (l *Ledger) MarkRead(ctx context.Context, id int64, actingUserID string) error {
	n, err := l.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if n.RecipientID != actingUserID {
		return apperrors.ErrNotOwner
	}
	if n.Read {
		return nil
	}

	_, err = l.db.ExecContext(ctx,
		`UPDATE notifications SET read = true, read_at = $1 WHERE id = $2 AND read = false`,
		time.Now(), id,
	)
	if err != nil {
		return fmt.Errorf("failed to mark notification %d read: %w", id, err)
	}

	return nil
}

// MarkAllRead marks every unread notification of the user read and
// returns how many rows changed.
func (l *Ledger) MarkAllRead(ctx context.Context, recipientID string) (int64, error) {
	res, err := l.db.ExecContext(ctx,
		`UPDATE notifications SET read = true, read_at = $1 WHERE recipient_id = $2 AND read = false`,
		time.Now(), recipientID,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to mark notifications read: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to count marked notifications: %w", err)
	}

	return affected, nil
}

// MarkReadForMessage marks the notifications linked to a message read
// for the given recipient. The message link is optional, so zero
// matched rows is normal.
func (l *Ledger) MarkReadForMessage(ctx context.Context, messageID int64, recipientID string) error {
	_, err := l.db.ExecContext(ctx,
		`UPDATE notifications SET read = true, read_at = $1 WHERE message_id = $2 AND recipient_id = $3 AND read = false`,
		time.Now(), messageID, recipientID,
	)
	if err != nil {
		return fmt.Errorf("failed to mark notifications read for message %d: %w", messageID, err)
	}
	return nil
}

// CountsFor returns total and unread notification counts for a user.
func (l *Ledger) CountsFor(ctx context.Context, recipientID string) (*Counts, error) {
	query := `
	SELECT COUNT(*), COUNT(*) FILTER (WHERE read = false)
	FROM notifications
	WHERE recipient_id = $1
	`

	counts := &Counts{}
	err := l.db.QueryRowContext(ctx, query, recipientID).Scan(&counts.Total, &counts.Unread)
	if err != nil {
		return nil, fmt.Errorf("failed to count notifications: %w", err)
	}

	return counts, nil
}

func scanNotification(row *sql.Row) (*Notification, error) {
	n := &Notification{}
	err := row.Scan(
		&n.ID, &n.RecipientID, &n.Kind, &n.Title, &n.Body,
		&n.Read, &n.CreatedAt, &n.ReadAt,
		&n.ActorID, &n.SubjectKind, &n.SubjectID, &n.MessageID,
	)
	if err != nil {
		return nil, err
	}
	return n, nil
}
