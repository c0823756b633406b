package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// Channel is an opaque, already-accepted live connection capable of
// carrying raw bytes to one client. The handshake happens elsewhere.
type Channel interface {
	Send(ctx context.Context, data []byte) error
	Close() error
}

type connection struct {
	id      string
	channel Channel
}

// Registry maps a user identity to at most one live connection. All
// registry state is in-process and ephemeral: a user with no entry
// simply polls the durable notification ledger instead.
type Registry struct {
	mu          sync.RWMutex
	connections map[string]*connection
	sendTimeout time.Duration
	closed      bool
}

// NewRegistry creates a connection registry. sendTimeout bounds how
// long one Send may block before the connection is treated as dead.
func NewRegistry(sendTimeout time.Duration) *Registry {
	if sendTimeout <= 0 {
		sendTimeout = 2 * time.Second
	}
	return &Registry{
		connections: make(map[string]*connection),
		sendTimeout: sendTimeout,
	}
}

// Register binds a channel to a user and returns the connection ID. A
// second registration for the same user silently replaces the first;
// the superseded channel is closed so its transport does not leak.
func (r *Registry) Register(userID string, ch Channel) string {
	conn := &connection{id: uuid.NewString(), channel: ch}

	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		ch.Close()
		return ""
	}
	prev := r.connections[userID]
	r.connections[userID] = conn
	r.mu.Unlock()

	if prev != nil {
		prev.channel.Close()
		log.Debug().Str("user_id", userID).Msg("replaced existing live connection")
	}

	log.Info().Str("user_id", userID).Str("connection_id", conn.id).Msg("live connection registered")
	return conn.id
}

// Unregister drops whatever connection the user currently has.
func (r *Registry) Unregister(userID string) {
	r.mu.Lock()
	conn := r.connections[userID]
	delete(r.connections, userID)
	r.mu.Unlock()

	if conn != nil {
		conn.channel.Close()
		log.Info().Str("user_id", userID).Str("connection_id", conn.id).Msg("live connection unregistered")
	}
}

// UnregisterConn drops the user's connection only if it still is the
// given one. A read loop exiting for a superseded connection must not
// evict the replacement that took its slot.
func (r *Registry) UnregisterConn(userID, connectionID string) bool {
	r.mu.Lock()
	conn := r.connections[userID]
	if conn == nil || conn.id != connectionID {
		r.mu.Unlock()
		return false
	}
	delete(r.connections, userID)
	r.mu.Unlock()

	conn.channel.Close()
	log.Info().Str("user_id", userID).Str("connection_id", connectionID).Msg("live connection unregistered")
	return true
}

// Connected reports whether the user has a live connection right now.
func (r *Registry) Connected(userID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.connections[userID]
	return ok
}

// Len returns the number of registered connections.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.connections)
}

// Send pushes an event to the user's live connection. Returns false
// when the user has no connection or the transport fails; a failed
// transport is unregistered on the spot so the registry self-heals.
// Live delivery is an optimization, never the source of truth, so
// transport errors are absorbed here.
func (r *Registry) Send(ctx context.Context, userID string, event Event) bool {
	r.mu.RLock()
	conn := r.connections[userID]
	r.mu.RUnlock()

	if conn == nil {
		return false
	}

	if err := r.sendOn(ctx, conn, event); err != nil {
		log.Warn().
			Str("user_id", userID).
			Str("connection_id", conn.id).
			Err(err).
			Msg("live send failed, dropping connection")
		r.UnregisterConn(userID, conn.id)
		return false
	}

	return true
}

// Broadcast pushes an event to every registered connection and returns
// how many deliveries succeeded. Failed entries are unregistered and
// the iteration continues.
func (r *Registry) Broadcast(ctx context.Context, event Event) int {
	r.mu.RLock()
	targets := make(map[string]*connection, len(r.connections))
	for userID, conn := range r.connections {
		targets[userID] = conn
	}
	r.mu.RUnlock()

	delivered := 0
	for userID, conn := range targets {
		if err := r.sendOn(ctx, conn, event); err != nil {
			log.Warn().
				Str("user_id", userID).
				Str("connection_id", conn.id).
				Err(err).
				Msg("broadcast send failed, dropping connection")
			r.UnregisterConn(userID, conn.id)
			continue
		}
		delivered++
	}

	return delivered
}

// Drain closes every connection and stops accepting registrations.
// Called once on shutdown.
func (r *Registry) Drain() {
	r.mu.Lock()
	conns := r.connections
	r.connections = make(map[string]*connection)
	r.closed = true
	r.mu.Unlock()

	for userID, conn := range conns {
		conn.channel.Close()
		log.Debug().Str("user_id", userID).Msg("live connection drained")
	}
}

func (r *Registry) sendOn(ctx context.Context, conn *connection, event Event) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	sendCtx, cancel := context.WithTimeout(ctx, r.sendTimeout)
	defer cancel()

	return conn.channel.Send(sendCtx, data)
}
