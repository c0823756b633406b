package market

import (
	"context"
	"database/sql"
	"fmt"

	apperrors "github.com/yardline/pkg/errors"
)

// SubjectStore loads subject metadata for the messaging core. The full
// marketplace CRUD lives in the web layer; the core only ever needs the
// owner and the messaging gate.
type SubjectStore interface {
	LoadSubject(ctx context.Context, ref SubjectRef) (*SubjectInfo, error)
}

// Storage provides subject lookups backed by Postgres.
type Storage struct {
	db *sql.DB
}

// NewStorage creates a new storage instance.
func NewStorage(db *sql.DB) *Storage {
	return &Storage{db: db}
}

// LoadSubject retrieves the owner and messaging gate for a subject.
// Returns ErrSubjectNotFound if no row exists for the reference.
func (s *Storage) LoadSubject(ctx context.Context, ref SubjectRef) (*SubjectInfo, error) {
	table, err := tableFor(ref.Kind)
	if err != nil {
		return nil, err
	}

	query := fmt.Sprintf(`
	SELECT id, owner_id, title, allow_messages, created_at, updated_at
	FROM %s
	WHERE id = $1
	`, table)

	info := &SubjectInfo{Ref: ref}
	err = s.db.QueryRowContext(ctx, query, ref.ID).Scan(
		&info.Ref.ID, &info.OwnerID, &info.Title, &info.MessagingEnabled,
		&info.CreatedAt, &info.UpdatedAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, apperrors.ErrSubjectNotFound
		}
		return nil, fmt.Errorf("failed to load subject %s/%d: %w", ref.Kind, ref.ID, err)
	}

	return info, nil
}

func tableFor(kind SubjectKind) (string, error) {
	switch kind {
	case SubjectListing:
		return "listings", nil
	case SubjectYardSale:
		return "yard_sales", nil
	default:
		return "", apperrors.InvalidArg(fmt.Sprintf("unknown subject kind %q", kind))
	}
}
