// Package relay implements the realtime chat relay: a process-local registry
// mapping each user id to its live WebSocket connection, and room fan-out
// over that registry.
package relay

import (
	"context"
	"fmt"
	"sync"

	"github.com/zavolah/marketplace/internal/logging"
)

// Connection is one live client socket as seen by the registry.
type Connection interface {
	// Send enqueues payload without blocking. It reports false when the
	// frame was dropped (connection closed or its buffer full).
	Send(payload []byte) bool
	// Close tears the connection down. It must be safe to call repeatedly.
	Close() error
}

// MemberSource lists the user ids participating in a room.
type MemberSource interface {
	RoomMembers(ctx context.Context, roomID string) ([]string, error)
}

// Observer receives registry events. *metrics.Metrics satisfies it.
type Observer interface {
	SetRelayConnections(n int)
	RecordRelayFrame(result string)
}

// Frame delivery results reported to the Observer.
const (
	FrameDelivered = "delivered"
	FrameDropped   = "dropped"
	FrameOffline   = "offline"
)

// Registry holds at most one connection per user id.
type Registry struct {
	mu       sync.RWMutex
	conns    map[string]Connection
	members  MemberSource
	logger   *logging.Logger
	observer Observer
}

// Option configures a Registry.
type Option func(*Registry)

// WithObserver attaches metrics.
func WithObserver(o Observer) Option {
	return func(r *Registry) { r.observer = o }
}

// WithLogger sets the logger.
func WithLogger(l *logging.Logger) Option {
	return func(r *Registry) { r.logger = l }
}

// NewRegistry creates an empty registry. members may be nil when room
// fan-out is not used.
func NewRegistry(members MemberSource, opts ...Option) *Registry {
	r := &Registry{
		conns:   make(map[string]Connection),
		members: members,
		logger:  logging.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Register makes conn the current connection for userID. A connection it
// replaces is closed before the new one becomes visible to senders.
func (r *Registry) Register(userID string, conn Connection) {
	r.mu.Lock()
	prev, replaced := r.conns[userID]
	if replaced && prev != conn {
		if err := prev.Close(); err != nil {
			r.logger.WithField("user_id", userID).WithError(err).Debug("close superseded connection")
		}
	}
	r.conns[userID] = conn
	n := len(r.conns)
	r.mu.Unlock()

	r.observeCount(n)
	r.logger.WithFields(map[string]interface{}{
		"user_id":  userID,
		"replaced": replaced,
	}).Debug("relay connection registered")
}

// Unregister removes the entry for userID if any.
func (r *Registry) Unregister(userID string) {
	r.mu.Lock()
	delete(r.conns, userID)
	n := len(r.conns)
	r.mu.Unlock()

	r.observeCount(n)
}

// UnregisterConn removes userID only while conn is still its current
// connection, so a replaced session shutting down cannot evict its successor.
func (r *Registry) UnregisterConn(userID string, conn Connection) bool {
	r.mu.Lock()
	cur, ok := r.conns[userID]
	removed := ok && cur == conn
	if removed {
		delete(r.conns, userID)
	}
	n := len(r.conns)
	r.mu.Unlock()

	if removed {
		r.observeCount(n)
	}
	return removed
}

// Deliver sends payload to userID's current connection. Delivery is
// best-effort and at-most-once: an absent user or a full buffer drops the
// frame silently. It reports whether the frame was enqueued.
func (r *Registry) Deliver(userID string, payload []byte) bool {
	r.mu.RLock()
	conn, ok := r.conns[userID]
	r.mu.RUnlock()

	if !ok {
		r.observeFrame(FrameOffline)
		return false
	}
	if !conn.Send(payload) {
		r.observeFrame(FrameDropped)
		r.logger.WithField("user_id", userID).Debug("relay frame dropped")
		return false
	}
	r.observeFrame(FrameDelivered)
	return true
}

// DeliverToRoom looks up the room's members in the store and delivers
// payload to each connected member except excludeUserID. It returns how
// many frames were enqueued.
func (r *Registry) DeliverToRoom(ctx context.Context, roomID string, payload []byte, excludeUserID string) (int, error) {
	if r.members == nil {
		return 0, fmt.Errorf("relay: no member source configured")
	}

	members, err := r.members.RoomMembers(ctx, roomID)
	if err != nil {
		return 0, fmt.Errorf("list room members: %w", err)
	}

	delivered := 0
	for _, userID := range members {
		if userID == excludeUserID {
			continue
		}
		if r.Deliver(userID, payload) {
			delivered++
		}
	}
	return delivered, nil
}

// Count returns the number of registered users.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.conns)
}

// Connected reports whether userID has a live connection.
func (r *Registry) Connected(userID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.conns[userID]
	return ok
}

// Current returns userID's connection, if any.
func (r *Registry) Current(userID string) (Connection, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.conns[userID]
	return c, ok
}

// CloseAll closes and forgets every connection. Used on shutdown.
func (r *Registry) CloseAll() {
	r.mu.Lock()
	conns := r.conns
	r.conns = make(map[string]Connection)
	r.mu.Unlock()

	for _, c := range conns {
		_ = c.Close()
	}
	r.observeCount(0)
}

func (r *Registry) observeCount(n int) {
	if r.observer != nil {
		r.observer.SetRelayConnections(n)
	}
}

func (r *Registry) observeFrame(result string) {
	if r.observer != nil {
		r.observer.RecordRelayFrame(result)
	}
}
