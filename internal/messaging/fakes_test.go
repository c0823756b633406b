package messaging

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/yardline/internal/market"
	"github.com/yardline/internal/notifications"
	apperrors "github.com/yardline/pkg/errors"
)

// memStore is an in-memory Store used by the resolver and service tests.
// It mimics the Postgres behavior: unique (subject, pair) conversations,
// insertion-ordered message logs, derived unread counts.
type memStore struct {
	mu            sync.Mutex
	conversations map[int64]*Conversation
	messages      map[int64]*Message
	nextConvID    int64
	nextMsgID     int64
	clock         time.Time

	insertConversationHook func(conv *Conversation)
}

func newMemStore() *memStore {
	return &memStore{
		conversations: make(map[int64]*Conversation),
		messages:      make(map[int64]*Message),
		clock:         time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
	}
}

func (s *memStore) tick() time.Time {
	s.clock = s.clock.Add(time.Second)
	return s.clock
}

func (s *memStore) LookupConversation(ctx context.Context, ref market.SubjectRef, userA, userB string) (*Conversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lookupLocked(ref, userA, userB), nil
}

func (s *memStore) lookupLocked(ref market.SubjectRef, userA, userB string) *Conversation {
	low, high := CanonicalPair(userA, userB)
	for _, conv := range s.conversations {
		if conv.Subject == ref && conv.ParticipantLow == low && conv.ParticipantHigh == high {
			copied := *conv
			return &copied
		}
	}
	return nil
}

func (s *memStore) InsertConversation(ctx context.Context, conv *Conversation) (bool, error) {
	s.mu.Lock()
	hook := s.insertConversationHook
	s.mu.Unlock()
	if hook != nil {
		hook(conv)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.lookupLocked(conv.Subject, conv.ParticipantLow, conv.ParticipantHigh) != nil {
		return false, nil
	}

	s.nextConvID++
	conv.ID = s.nextConvID
	copied := *conv
	s.conversations[conv.ID] = &copied
	return true, nil
}

func (s *memStore) TouchConversation(ctx context.Context, id int64, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if conv, ok := s.conversations[id]; ok {
		conv.UpdatedAt = at
	}
	return nil
}

func (s *memStore) GetConversation(ctx context.Context, id int64) (*Conversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	conv, ok := s.conversations[id]
	if !ok {
		return nil, apperrors.ErrConversationNotFound
	}
	copied := *conv
	return &copied, nil
}

func (s *memStore) InsertMessage(ctx context.Context, msg *Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextMsgID++
	msg.ID = s.nextMsgID
	msg.Read = false
	msg.CreatedAt = s.tick()
	copied := *msg
	s.messages[msg.ID] = &copied
	return nil
}

func (s *memStore) GetMessage(ctx context.Context, id int64) (*Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	msg, ok := s.messages[id]
	if !ok {
		return nil, apperrors.ErrMessageNotFound
	}
	copied := *msg
	return &copied, nil
}

func (s *memStore) ListMessages(ctx context.Context, conversationID int64) ([]*Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	messages := make([]*Message, 0)
	for _, msg := range s.messages {
		if msg.ConversationID == conversationID {
			copied := *msg
			messages = append(messages, &copied)
		}
	}
	sort.Slice(messages, func(i, j int) bool {
		if messages[i].CreatedAt.Equal(messages[j].CreatedAt) {
			return messages[i].ID < messages[j].ID
		}
		return messages[i].CreatedAt.Before(messages[j].CreatedAt)
	})
	return messages, nil
}

func (s *memStore) MarkMessageRead(ctx context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if msg, ok := s.messages[id]; ok {
		msg.Read = true
	}
	return nil
}

func (s *memStore) UnreadCount(ctx context.Context, userID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	count := 0
	for _, msg := range s.messages {
		if msg.RecipientID == userID && !msg.Read {
			count++
		}
	}
	return count, nil
}

func (s *memStore) UnreadCountInConversation(ctx context.Context, userID string, conversationID int64) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	count := 0
	for _, msg := range s.messages {
		if msg.ConversationID == conversationID && msg.RecipientID == userID && !msg.Read {
			count++
		}
	}
	return count, nil
}

func (s *memStore) Summaries(ctx context.Context, userID string) ([]*ConversationSummary, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	summaries := make([]*ConversationSummary, 0)
	for _, conv := range s.conversations {
		if !conv.HasParticipant(userID) {
			continue
		}

		copied := *conv
		summary := &ConversationSummary{Conversation: &copied}
		for _, msg := range s.messages {
			if msg.ConversationID != conv.ID {
				continue
			}
			if summary.LastMessage == nil || msg.CreatedAt.After(summary.LastMessage.CreatedAt) ||
				(msg.CreatedAt.Equal(summary.LastMessage.CreatedAt) && msg.ID > summary.LastMessage.ID) {
				msgCopy := *msg
				summary.LastMessage = &msgCopy
			}
			if msg.RecipientID == userID && !msg.Read {
				summary.UnreadCount++
			}
		}
		summaries = append(summaries, summary)
	}

	sort.Slice(summaries, func(i, j int) bool {
		return summaries[i].Conversation.UpdatedAt.After(summaries[j].Conversation.UpdatedAt)
	})
	return summaries, nil
}

// memSubjects is an in-memory market.SubjectStore.
type memSubjects struct {
	mu       sync.Mutex
	subjects map[market.SubjectRef]*market.SubjectInfo
}

func newMemSubjects() *memSubjects {
	return &memSubjects{subjects: make(map[market.SubjectRef]*market.SubjectInfo)}
}

func (s *memSubjects) add(ref market.SubjectRef, ownerID string, messagingEnabled bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.subjects[ref] = &market.SubjectInfo{
		Ref:              ref,
		OwnerID:          ownerID,
		Title:            "test subject",
		MessagingEnabled: messagingEnabled,
	}
}

func (s *memSubjects) LoadSubject(ctx context.Context, ref market.SubjectRef) (*market.SubjectInfo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	info, ok := s.subjects[ref]
	if !ok {
		return nil, apperrors.ErrSubjectNotFound
	}
	copied := *info
	return &copied, nil
}

// memLedger records notifications in memory and can be told to fail.
type memLedger struct {
	mu            sync.Mutex
	recorded      []*notifications.Notification
	markedByMsg   map[int64]string
	recordErr     error
	nextID        int64
	recordAttempt int
}

func newMemLedger() *memLedger {
	return &memLedger{markedByMsg: make(map[int64]string)}
}

func (l *memLedger) Record(ctx context.Context, n *notifications.Notification) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.recordAttempt++
	if l.recordErr != nil {
		return l.recordErr
	}

	l.nextID++
	n.ID = l.nextID
	copied := *n
	l.recorded = append(l.recorded, &copied)
	return nil
}

func (l *memLedger) MarkReadForMessage(ctx context.Context, messageID int64, recipientID string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.markedByMsg[messageID] = recipientID
	return nil
}

// memQueue captures enqueued deliveries.
type memQueue struct {
	mu       sync.Mutex
	enqueued []int64
	err      error
}

func (q *memQueue) EnqueueDelivery(ctx context.Context, notificationID int64, recipientID string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.err != nil {
		return q.err
	}
	q.enqueued = append(q.enqueued, notificationID)
	return nil
}
