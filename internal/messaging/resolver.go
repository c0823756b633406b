package messaging

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/yardline/internal/market"
	apperrors "github.com/yardline/pkg/errors"
)

// Resolver deterministically finds or creates the one conversation
// between two users about a subject.
type Resolver struct {
	subjects market.SubjectStore
	store    Store
}

// NewResolver creates a new conversation resolver.
func NewResolver(subjects market.SubjectStore, store Store) *Resolver {
	return &Resolver{subjects: subjects, store: store}
}

// Resolve returns the conversation for (subject, {requester,
// counterpart}), creating it on first contact. An existing conversation
// gets its updated_at bumped. Creation races are resolved by the unique
// constraint on the canonical pair: a losing insert re-queries and
// returns the winner's row.
func (r *Resolver) Resolve(ctx context.Context, ref market.SubjectRef, requesterID, counterpartID string) (*Conversation, error) {
	if requesterID == counterpartID {
		return nil, apperrors.ErrSelfConversation
	}

	subject, err := r.subjects.LoadSubject(ctx, ref)
	if err != nil {
		return nil, err
	}
	if !subject.MessagingEnabled {
		return nil, apperrors.ErrMessagingDisabled
	}

	conv, err := r.store.LookupConversation(ctx, ref, requesterID, counterpartID)
	if err != nil {
		return nil, err
	}
	if conv != nil {
		touchedAt := time.Now()
		if err := r.store.TouchConversation(ctx, conv.ID, touchedAt); err != nil {
			return nil, err
		}
		conv.UpdatedAt = touchedAt
		return conv, nil
	}

	now := time.Now()
	low, high := CanonicalPair(requesterID, counterpartID)
	conv = &Conversation{
		Subject:         ref,
		ParticipantLow:  low,
		ParticipantHigh: high,
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	inserted, err := r.store.InsertConversation(ctx, conv)
	if err != nil {
		return nil, err
	}
	if inserted {
		return conv, nil
	}

	// Another writer won the creation race; their row is the
	// conversation now.
	log.Debug().
		Str("subject_kind", string(ref.Kind)).
		Int64("subject_id", ref.ID).
		Msg("conversation insert lost creation race, re-querying winner")

	conv, err = r.store.LookupConversation(ctx, ref, requesterID, counterpartID)
	if err != nil {
		return nil, err
	}
	if conv == nil {
		return nil, apperrors.Internal(fmt.Sprintf("conversation vanished after losing creation race for %s/%d", ref.Kind, ref.ID))
	}

	return conv, nil
}
