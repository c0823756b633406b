package messaging

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yardline/internal/database"
	"github.com/yardline/internal/market"
	apperrors "github.com/yardline/pkg/errors"
)

// openTestDB connects to the database named by DATABASE_URL and applies
// the schema. Tests isolate themselves with random participant IDs
// rather than a wiped database.
func openTestDB(t *testing.T) *sql.DB {
	t.Helper()

	if testing.Short() {
		t.Skip("Skipping database integration test in short mode")
	}
	url := os.Getenv("DATABASE_URL")
	if url == "" {
		t.Skip("DATABASE_URL not set, skipping database integration test")
	}

	db, err := database.NewDB(url)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	require.NoError(t, database.EnsureSchema(context.Background(), db))
	return db
}

func testUser(prefix string) string {
	return fmt.Sprintf("%s-%s", prefix, uuid.NewString())
}

func TestStorageConversationRoundTrip(t *testing.T) {
	db := openTestDB(t)
	storage := NewStorage(db)
	ctx := context.Background()

	buyer := testUser("buyer")
	seller := testUser("seller")
	ref := market.SubjectRef{Kind: market.SubjectListing, ID: 42}

	found, err := storage.LookupConversation(ctx, ref, buyer, seller)
	require.NoError(t, err)
	assert.Nil(t, found)

	now := time.Now()
	low, high := CanonicalPair(buyer, seller)
	conv := &Conversation{Subject: ref, ParticipantLow: low, ParticipantHigh: high, CreatedAt: now, UpdatedAt: now}
	inserted, err := storage.InsertConversation(ctx, conv)
	require.NoError(t, err)
	assert.True(t, inserted)
	assert.NotZero(t, conv.ID)

	// A duplicate insert for the same pair loses to the constraint.
	dup := &Conversation{Subject: ref, ParticipantLow: low, ParticipantHigh: high, CreatedAt: now, UpdatedAt: now}
	inserted, err = storage.InsertConversation(ctx, dup)
	require.NoError(t, err)
	assert.False(t, inserted)

	// Lookup is pair-order independent.
	found, err = storage.LookupConversation(ctx, ref, seller, buyer)
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Equal(t, conv.ID, found.ID)

	got, err := storage.GetConversation(ctx, conv.ID)
	require.NoError(t, err)
	assert.Equal(t, conv.ID, got.ID)

	_, err = storage.GetConversation(ctx, -1)
	assert.ErrorIs(t, err, apperrors.ErrConversationNotFound)
}

func TestStorageConcurrentInsertConverges(t *testing.T) {
	db := openTestDB(t)
	storage := NewStorage(db)
	ctx := context.Background()

	buyer := testUser("buyer")
	seller := testUser("seller")
	low, high := CanonicalPair(buyer, seller)
	ref := market.SubjectRef{Kind: market.SubjectYardSale, ID: 7}

	const writers = 8
	var wg sync.WaitGroup
	results := make([]bool, writers)
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			now := time.Now()
			conv := &Conversation{Subject: ref, ParticipantLow: low, ParticipantHigh: high, CreatedAt: now, UpdatedAt: now}
			inserted, err := storage.InsertConversation(ctx, conv)
			assert.NoError(t, err)
			results[i] = inserted
		}(i)
	}
	wg.Wait()

	winners := 0
	for _, inserted := range results {
		if inserted {
			winners++
		}
	}
	assert.Equal(t, 1, winners)
}

func TestStorageMessagesAndCounts(t *testing.T) {
	db := openTestDB(t)
	storage := NewStorage(db)
	ctx := context.Background()

	alice := testUser("alice")
	bob := testUser("bob")
	low, high := CanonicalPair(alice, bob)
	ref := market.SubjectRef{Kind: market.SubjectListing, ID: 1}

	now := time.Now()
	conv := &Conversation{Subject: ref, ParticipantLow: low, ParticipantHigh: high, CreatedAt: now, UpdatedAt: now}
	inserted, err := storage.InsertConversation(ctx, conv)
	require.NoError(t, err)
	require.True(t, inserted)

	for i, content := range []string{"one", "two", "three"} {
		sender, recipient := alice, bob
		if i%2 == 1 {
			sender, recipient = bob, alice
		}
		msg := &Message{ConversationID: conv.ID, SenderID: sender, RecipientID: recipient, Content: content}
		require.NoError(t, storage.InsertMessage(ctx, msg))
		assert.NotZero(t, msg.ID)
		assert.False(t, msg.Read)
	}

	listed, err := storage.ListMessages(ctx, conv.ID)
	require.NoError(t, err)
	require.Len(t, listed, 3)
	assert.Equal(t, "one", listed[0].Content)
	assert.Equal(t, "three", listed[2].Content)

	bobUnread, err := storage.UnreadCount(ctx, bob)
	require.NoError(t, err)
	assert.Equal(t, 2, bobUnread)

	require.NoError(t, storage.MarkMessageRead(ctx, listed[0].ID))
	// Idempotent.
	require.NoError(t, storage.MarkMessageRead(ctx, listed[0].ID))

	bobUnread, err = storage.UnreadCountInConversation(ctx, bob, conv.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, bobUnread)

	summaries, err := storage.Summaries(ctx, bob)
	require.NoError(t, err)
	require.Len(t, summaries, 1)
	assert.Equal(t, conv.ID, summaries[0].Conversation.ID)
	require.NotNil(t, summaries[0].LastMessage)
	assert.Equal(t, "three", summaries[0].LastMessage.Content)
	assert.Equal(t, 1, summaries[0].UnreadCount)

	_, err = storage.GetMessage(ctx, -1)
	assert.ErrorIs(t, err, apperrors.ErrMessageNotFound)
}
