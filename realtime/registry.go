// Package realtime tracks live user connections and delivers push
// notifications synchronously when the recipient is connected.
package realtime

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

type sessionEntry struct {
	userID      uuid.UUID
	connectedAt time.Time
}

// Registry is the thread-safe bidirectional map of session↔user. It is the
// only mutable shared state in the subsystem; every operation holds the
// lock for the full mutation so the two directions can never diverge, even
// under concurrent connect/disconnect events.
type Registry struct {
	mu             sync.RWMutex
	sessionsByUser map[uuid.UUID]string
	usersBySession map[string]sessionEntry
	log            *zap.SugaredLogger
}

// NewRegistry creates an empty connection registry.
func NewRegistry(log *zap.SugaredLogger) *Registry {
	return &Registry{
		sessionsByUser: make(map[uuid.UUID]string),
		usersBySession: make(map[string]sessionEntry),
		log:            log,
	}
}

// OnConnect records a new session for a user. An unresolvable user (nil
// id) is simply not tracked; the transport layer keeps the connection and
// no error surfaces. A user's newer connection silently evicts the prior
// one: last connection wins.
func (r *Registry) OnConnect(sessionID string, userID uuid.UUID) {
	if sessionID == "" {
		r.log.Warnw("Connect event with empty session id")
		return
	}
	if userID == uuid.Nil {
		r.log.Warnw("Connect event without resolvable user, not tracking", "session_id", sessionID)
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if existing, ok := r.sessionsByUser[userID]; ok && existing != sessionID {
		delete(r.usersBySession, existing)
		r.log.Infow("Replacing existing session for user",
			"user_id", userID,
			"old_session", existing,
			"new_session", sessionID,
		)
	}

	r.sessionsByUser[userID] = sessionID
	r.usersBySession[sessionID] = sessionEntry{userID: userID, connectedAt: time.Now()}

	r.log.Infow("User connected", "user_id", userID, "session_id", sessionID)
	r.log.Debugw("Active connections", "count", len(r.sessionsByUser))
}

// OnDisconnect removes the session's mapping. The user-side entry is only
// removed when it still points at this session, so a stale disconnect
// arriving after the user reconnected does not evict the newer session.
// An unknown session is a no-op.
func (r *Registry) OnDisconnect(sessionID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	entry, ok := r.usersBySession[sessionID]
	if !ok {
		r.log.Debugw("Disconnect for untracked session", "session_id", sessionID)
		return
	}
	delete(r.usersBySession, sessionID)

	if current, ok := r.sessionsByUser[entry.userID]; ok && current == sessionID {
		delete(r.sessionsByUser, entry.userID)
	}

	r.log.Infow("User disconnected", "user_id", entry.userID, "session_id", sessionID)
	r.log.Debugw("Active connections", "count", len(r.sessionsByUser))
}

// IsConnected reports whether the user currently has a live session.
func (r *Registry) IsConnected(userID uuid.UUID) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.sessionsByUser[userID]
	return ok
}

// SessionFor returns the user's current session id, if any.
func (r *Registry) SessionFor(userID uuid.UUID) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	sessionID, ok := r.sessionsByUser[userID]
	return sessionID, ok
}

// ActiveConnectionCount returns the number of tracked user connections.
func (r *Registry) ActiveConnectionCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessionsByUser)
}

// DisconnectUser manually evicts a user's session (administrative use).
// Returns whether a mapping was removed.
func (r *Registry) DisconnectUser(userID uuid.UUID) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	sessionID, ok := r.sessionsByUser[userID]
	if !ok {
		return false
	}
	delete(r.sessionsByUser, userID)
	delete(r.usersBySession, sessionID)

	r.log.Infow("Manually disconnected user", "user_id", userID, "session_id", sessionID)
	return true
}
