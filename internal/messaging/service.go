package messaging

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/rs/zerolog/log"

	"github.com/yardline/internal/market"
	"github.com/yardline/internal/notifications"
	"github.com/yardline/internal/retry"
	apperrors "github.com/yardline/pkg/errors"
)

// bodyPreviewLength caps the notification body at a short preview of
// the message content.
const bodyPreviewLength = 120

// NotificationRecorder is the slice of the notification ledger the
// messaging service writes through.
type NotificationRecorder interface {
	Record(ctx context.Context, n *notifications.Notification) error
	MarkReadForMessage(ctx context.Context, messageID int64, recipientID string) error
}

// DeliveryQueue hands a recorded notification off for asynchronous live
// delivery. Enqueue failures are absorbed by the service: the durable
// row already exists and clients can poll it.
type DeliveryQueue interface {
	EnqueueDelivery(ctx context.Context, notificationID int64, recipientID string) error
}

// Service orchestrates the send-message and mark-read flows across the
// resolver, the message store, the notification ledger, and the
// delivery queue.
type Service struct {
	subjects         market.SubjectStore
	store            Store
	resolver         *Resolver
	ledger           NotificationRecorder
	queue            DeliveryQueue
	maxContentLength int
	retryConfig      retry.Config
}

// NewService creates the messaging service. queue may be nil when no
// live delivery is wired (CLI tools, tests).
func NewService(subjects market.SubjectStore, store Store, ledger NotificationRecorder, queue DeliveryQueue, maxContentLength int) *Service {
	if maxContentLength <= 0 {
		maxContentLength = 1000
	}
	return &Service{
		subjects:         subjects,
		store:            store,
		resolver:         NewResolver(subjects, store),
		ledger:           ledger,
		queue:            queue,
		maxContentLength: maxContentLength,
		retryConfig:      retry.DefaultConfig(),
	}
}

// validateContent trims the content and enforces the non-empty and
// maximum-length rules shared by every send path.
func (s *Service) validateContent(content string) (string, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return "", apperrors.ErrEmptyContent
	}
	if utf8.RuneCountInString(content) > s.maxContentLength {
		return "", apperrors.ErrContentTooLong
	}
	return content, nil
}

// SendMessage validates the content, resolves the conversation, appends
// the message, and then records plus dispatches the notification.
// counterpartID may be empty, in which case the subject's owner is the
// counterpart. The notification and its live delivery are best-effort:
// their failures never fail the send.
func (s *Service) SendMessage(ctx context.Context, ref market.SubjectRef, senderID, counterpartID, content string) (*Message, error) {
	content, err := s.validateContent(content)
	if err != nil {
		return nil, err
	}

	if counterpartID == "" {
		subject, err := s.subjects.LoadSubject(ctx, ref)
		if err != nil {
			return nil, err
		}
		counterpartID = subject.OwnerID
	}

	conv, err := s.resolver.Resolve(ctx, ref, senderID, counterpartID)
	if err != nil {
		return nil, err
	}

	msg, err := s.Append(ctx, conv, senderID, content)
	if err != nil {
		return nil, err
	}

	s.notifyNewMessage(ctx, conv, msg)
	return msg, nil
}

// Append writes a message into an already-resolved conversation. The
// recipient is the other participant; a sender outside the pair is
// rejected. The parent conversation's updated_at is bumped.
func (s *Service) Append(ctx context.Context, conv *Conversation, senderID, content string) (*Message, error) {
	content, err := s.validateContent(content)
	if err != nil {
		return nil, err
	}

	recipientID, ok := conv.OtherParticipant(senderID)
	if !ok {
		return nil, apperrors.ErrNotParticipant
	}

	msg := &Message{
		ConversationID: conv.ID,
		SenderID:       senderID,
		RecipientID:    recipientID,
		Content:        content,
	}
	if err := s.store.InsertMessage(ctx, msg); err != nil {
		return nil, err
	}

	if err := s.store.TouchConversation(ctx, conv.ID, msg.CreatedAt); err != nil {
		// The message is already durable; a failed bump only affects
		// inbox ordering until the next append.
		log.Warn().Int64("conversation_id", conv.ID).Err(err).Msg("failed to bump conversation timestamp")
	}

	return msg, nil
}

// AppendToConversation is Append addressed by conversation ID.
func (s *Service) AppendToConversation(ctx context.Context, conversationID int64, senderID, content string) (*Message, error) {
	conv, err := s.store.GetConversation(ctx, conversationID)
	if err != nil {
		return nil, err
	}

	msg, err := s.Append(ctx, conv, senderID, content)
	if err != nil {
		return nil, err
	}

	s.notifyNewMessage(ctx, conv, msg)
	return msg, nil
}

// ListMessages returns the conversation's full ordered log, oldest
// first. Only participants may read it.
func (s *Service) ListMessages(ctx context.Context, conversationID int64, actingUserID string) ([]*Message, error) {
	conv, err := s.store.GetConversation(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	if !conv.HasParticipant(actingUserID) {
		return nil, apperrors.ErrNotParticipant
	}

	return s.store.ListMessages(ctx, conversationID)
}

// MarkMessageRead flips a message's read flag. Only the recipient may
// do so, and repeating the call is a no-op. Notifications linked to the
// message are marked read as well, best-effort.
func (s *Service) MarkMessageRead(ctx context.Context, messageID int64, actingUserID string) error {
	msg, err := s.store.GetMessage(ctx, messageID)
	if err != nil {
		return err
	}
	if msg.RecipientID != actingUserID {
		return apperrors.ErrNotRecipient
	}
	if msg.Read {
		return nil
	}

	if err := s.store.MarkMessageRead(ctx, messageID); err != nil {
		return err
	}

	if s.ledger != nil {
		if err := s.ledger.MarkReadForMessage(ctx, messageID, actingUserID); err != nil {
			log.Warn().Int64("message_id", messageID).Err(err).Msg("failed to mark linked notifications read")
		}
	}

	return nil
}

// UnreadCount returns the user's unread message count, globally or
// scoped to one conversation when conversationID > 0. The count is
// derived from the message rows at query time.
func (s *Service) UnreadCount(ctx context.Context, userID string, conversationID int64) (int, error) {
	if conversationID > 0 {
		return s.store.UnreadCountInConversation(ctx, userID, conversationID)
	}
	return s.store.UnreadCount(ctx, userID)
}

// Summaries returns the user's inbox, newest activity first.
func (s *Service) Summaries(ctx context.Context, userID string) ([]*ConversationSummary, error) {
	return s.store.Summaries(ctx, userID)
}

// notifyNewMessage records the durable notification for a new message
// and enqueues its live delivery. Every failure here is logged and
// swallowed: the appended message must stand regardless.
func (s *Service) notifyNewMessage(ctx context.Context, conv *Conversation, msg *Message) {
	if s.ledger == nil {
		return
	}

	subjectKind := string(conv.Subject.Kind)
	notification := &notifications.Notification{
		RecipientID: msg.RecipientID,
		Kind:        notifications.KindMessage,
		Title:       "New message",
		Body:        preview(msg.Content),
		ActorID:     &msg.SenderID,
		SubjectKind: &subjectKind,
		SubjectID:   &conv.Subject.ID,
		MessageID:   &msg.ID,
	}

	err := retry.Do(ctx, s.retryConfig, "record notification", func() error {
		return s.ledger.Record(ctx, notification)
	})
	if err != nil {
		log.Error().
			Int64("message_id", msg.ID).
			Str("recipient_id", msg.RecipientID).
			Err(err).
			Msg("failed to record message notification, continuing")
		return
	}

	if s.queue == nil {
		return
	}
	if err := s.queue.EnqueueDelivery(ctx, notification.ID, notification.RecipientID); err != nil {
		log.Warn().
			Int64("notification_id", notification.ID).
			Err(err).
			Msg("failed to enqueue live delivery, client will poll")
	}
}

func preview(content string) string {
	runes := []rune(content)
	if len(runes) <= bodyPreviewLength {
		return content
	}
	return fmt.Sprintf("%s…", strings.TrimSpace(string(runes[:bodyPreviewLength])))
}
