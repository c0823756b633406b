package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeChannel records sent payloads and can be told to fail or block.
type fakeChannel struct {
	mu     sync.Mutex
	sent   [][]byte
	closed bool
	err    error
	block  bool
}

func (c *fakeChannel) Send(ctx context.Context, data []byte) error {
	if c.block {
		<-ctx.Done()
		return ctx.Err()
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return c.err
	}
	c.sent = append(c.sent, data)
	return nil
}

func (c *fakeChannel) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

func (c *fakeChannel) sentCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.sent)
}

func (c *fakeChannel) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

func testEvent() Event {
	return Event{
		Type: EventNotification,
		Notification: &NotificationPayload{
			ID:    1,
			Kind:  "message",
			Title: "New message",
			Body:  "hello",
		},
	}
}

func TestSendWithoutConnection(t *testing.T) {
	r := NewRegistry(time.Second)
	assert.False(t, r.Send(context.Background(), "nobody", testEvent()))
}

func TestSendDeliversJSON(t *testing.T) {
	r := NewRegistry(time.Second)
	ch := &fakeChannel{}
	r.Register("alice", ch)

	require.True(t, r.Send(context.Background(), "alice", testEvent()))
	require.Equal(t, 1, ch.sentCount())

	var decoded Event
	require.NoError(t, json.Unmarshal(ch.sent[0], &decoded))
	assert.Equal(t, EventNotification, decoded.Type)
	require.NotNil(t, decoded.Notification)
	assert.Equal(t, int64(1), decoded.Notification.ID)
}

func TestRegisterReplacesAndClosesPrevious(t *testing.T) {
	r := NewRegistry(time.Second)
	old := &fakeChannel{}
	replacement := &fakeChannel{}

	r.Register("alice", old)
	r.Register("alice", replacement)

	assert.True(t, old.isClosed())
	assert.Equal(t, 1, r.Len())

	require.True(t, r.Send(context.Background(), "alice", testEvent()))
	assert.Equal(t, 0, old.sentCount())
	assert.Equal(t, 1, replacement.sentCount())
}

func TestSendFailureUnregisters(t *testing.T) {
	r := NewRegistry(time.Second)
	ch := &fakeChannel{err: errors.New("broken pipe")}
	r.Register("alice", ch)

	assert.False(t, r.Send(context.Background(), "alice", testEvent()))
	assert.False(t, r.Connected("alice"))
	assert.True(t, ch.isClosed())
}

func TestSendTimesOutOnBlockedChannel(t *testing.T) {
	r := NewRegistry(20 * time.Millisecond)
	ch := &fakeChannel{block: true}
	r.Register("alice", ch)

	start := time.Now()
	assert.False(t, r.Send(context.Background(), "alice", testEvent()))
	assert.Less(t, time.Since(start), time.Second)
	assert.False(t, r.Connected("alice"))
}

func TestUnregisterConnIgnoresStaleID(t *testing.T) {
	r := NewRegistry(time.Second)
	staleID := r.Register("alice", &fakeChannel{})
	replacement := &fakeChannel{}
	r.Register("alice", replacement)

	// The superseded read loop exits and tries to clean up; it must
	// not evict the replacement.
	assert.False(t, r.UnregisterConn("alice", staleID))
	assert.True(t, r.Connected("alice"))
	assert.False(t, replacement.isClosed())
}

func TestBroadcastSkipsFailedConnections(t *testing.T) {
	r := NewRegistry(time.Second)
	good1 := &fakeChannel{}
	bad := &fakeChannel{err: errors.New("gone")}
	good2 := &fakeChannel{}

	r.Register("alice", good1)
	r.Register("bob", bad)
	r.Register("carol", good2)

	delivered := r.Broadcast(context.Background(), testEvent())
	assert.Equal(t, 2, delivered)
	assert.Equal(t, 2, r.Len())
	assert.False(t, r.Connected("bob"))
}

func TestDrainClosesEverythingAndRejectsNewcomers(t *testing.T) {
	r := NewRegistry(time.Second)
	ch := &fakeChannel{}
	r.Register("alice", ch)

	r.Drain()
	assert.True(t, ch.isClosed())
	assert.Equal(t, 0, r.Len())

	late := &fakeChannel{}
	assert.Empty(t, r.Register("bob", late))
	assert.True(t, late.isClosed())
}
