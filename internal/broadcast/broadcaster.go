// Package broadcast owns the subscription table and fans location events
// out to live sessions. It is a live-delta channel, not a durable log: a
// session that reconnects re-fetches current state through the query
// surface to resynchronize.
package broadcast

import (
	"errors"
	"log/slog"
	"sync"

	"livetrack.cityline.org/internal/logging"
	"livetrack.cityline.org/internal/models"
)

// sessionBuffer is how many undelivered events a session may lag behind
// before deliveries to it are dropped. Delivery is best-effort,
// at-most-once per event per session.
const sessionBuffer = 64

var ErrSessionUnknown = errors.New("session not registered")

// Metrics is the hook set the broadcaster reports through. A nil Metrics
// disables reporting.
type Metrics interface {
	EventPublishedInc()
	EventDroppedInc()
	SessionsSet(n int)
}

// Bridge mirrors published events to an external transport (NATS) for
// out-of-process consumers. Delivery is best-effort.
type Bridge interface {
	PublishEvent(event models.Event) error
}

type session struct {
	id     string
	ch     chan models.Event
	scopes map[Scope]struct{}
}

// Broadcaster maintains the subscription table and delivers events.
// Subscriptions are mutated only through Subscribe/Unsubscribe/DropSession,
// each tied to the owning session's connection lifetime.
type Broadcaster struct {
	logger  *slog.Logger
	metrics Metrics
	bridge  Bridge

	mu       sync.RWMutex
	sessions map[string]*session
	scopes   map[Scope]map[string]*session
}

func NewBroadcaster(logger *slog.Logger) *Broadcaster {
	return &Broadcaster{
		logger:   logger,
		sessions: make(map[string]*session),
		scopes:   make(map[Scope]map[string]*session),
	}
}

// SetMetrics attaches a metrics hook. Call before traffic starts.
func (b *Broadcaster) SetMetrics(m Metrics) {
	b.metrics = m
}

// SetBridge attaches an external event bridge. Call before traffic starts.
func (b *Broadcaster) SetBridge(bridge Bridge) {
	b.bridge = bridge
}

// Register creates the delivery channel for a session. The channel is
// closed by DropSession; callers must drain it until then.
func (b *Broadcaster) Register(sessionID string) <-chan models.Event {
	b.mu.Lock()
	defer b.mu.Unlock()

	if existing, ok := b.sessions[sessionID]; ok {
		return existing.ch
	}

	sess := &session{
		id:     sessionID,
		ch:     make(chan models.Event, sessionBuffer),
		scopes: make(map[Scope]struct{}),
	}
	b.sessions[sessionID] = sess
	b.reportSessions()
	return sess.ch
}

// Subscribe adds a scope for a session. A session may hold multiple scopes
// but at most one subscription per (session, scope) pair.
func (b *Broadcaster) Subscribe(sessionID string, scope Scope) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	sess, ok := b.sessions[sessionID]
	if !ok {
		return ErrSessionUnknown
	}

	if _, dup := sess.scopes[scope]; dup {
		return nil
	}
	sess.scopes[scope] = struct{}{}

	members, ok := b.scopes[scope]
	if !ok {
		members = make(map[string]*session)
		b.scopes[scope] = members
	}
	members[sessionID] = sess
	return nil
}

// Unsubscribe removes one scope for a session. Unknown pairs are no-ops.
func (b *Broadcaster) Unsubscribe(sessionID string, scope Scope) {
	b.mu.Lock()
	defer b.mu.Unlock()

	sess, ok := b.sessions[sessionID]
	if !ok {
		return
	}
	delete(sess.scopes, scope)
	b.removeFromScope(sessionID, scope)
}

// DropSession removes every scope for a session and closes its channel.
// Called on every disconnect path, normal or abnormal; calling it for an
// unknown session is a no-op.
func (b *Broadcaster) DropSession(sessionID string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	sess, ok := b.sessions[sessionID]
	if !ok {
		return
	}

	for scope := range sess.scopes {
		b.removeFromScope(sessionID, scope)
	}
	delete(b.sessions, sessionID)
	close(sess.ch)
	b.reportSessions()
}

// Publish delivers an event to every live session whose scope matches.
// For a single bus, events reach any one subscriber in publish order
// (per-bus publishes are serialized upstream by the ingest gateway's bus
// lock and fan-out happens inside one lock hold). A slow session drops the event
// rather than blocking the publisher; a gone session is simply skipped.
func (b *Broadcaster) Publish(event models.Event) {
	b.mu.RLock()

	delivered := make(map[string]struct{})
	for _, scope := range scopesFor(event) {
		for sessionID, sess := range b.scopes[scope] {
			if _, done := delivered[sessionID]; done {
				continue
			}
			delivered[sessionID] = struct{}{}

			select {
			case sess.ch <- event:
			default:
				// Session buffer full: at-most-once means we drop, not block.
				if b.metrics != nil {
					b.metrics.EventDroppedInc()
				}
			}
		}
	}
	b.mu.RUnlock()

	if b.metrics != nil {
		b.metrics.EventPublishedInc()
	}

	if b.bridge != nil {
		if err := b.bridge.PublishEvent(event); err != nil {
			logging.LogError(b.logger, "bridge publish failed", err,
				slog.String("bus_id", event.BusID),
				slog.String("component", "broadcast"))
		}
	}
}

// SessionCount reports live sessions, for diagnostics and tests.
func (b *Broadcaster) SessionCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.sessions)
}

// removeFromScope deletes the membership entry; caller holds the lock.
func (b *Broadcaster) removeFromScope(sessionID string, scope Scope) {
	members, ok := b.scopes[scope]
	if !ok {
		return
	}
	delete(members, sessionID)
	if len(members) == 0 {
		delete(b.scopes, scope)
	}
}

func (b *Broadcaster) reportSessions() {
	if b.metrics != nil {
		b.metrics.SessionsSet(len(b.sessions))
	}
}
