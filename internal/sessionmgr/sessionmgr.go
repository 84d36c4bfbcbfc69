// Package sessionmgr implements the Session Manager (C10): the registry of
// live sessions, owning their creation, lookup, and teardown (spec §2 C10,
// §3 "Session" lifecycle: "created on connection accept; destroyed on
// disconnect OR explicit stopSession; cleanup releases all its agents'
// resources and channel buffers").
//
// Grounded on the teacher's internal/sessions store (a mutex-guarded map
// of session id to session state, Create/Get/Delete) generalized from the
// teacher's persistence-backed store interface to an in-process-only map,
// since spec.md's Non-goals exclude "persistent durable state across
// process restarts beyond opt-in snapshotting".
package sessionmgr

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/nexus-contrib/agentmesh/internal/session"
)

// Manager owns every live Session in the process. Different sessions run
// concurrently and independently (spec §5); Manager itself is a single
// coarse mutex guarding the map, not a hot path.
type Manager struct {
	mu       sync.RWMutex
	sessions map[string]*session.Session
	log      *slog.Logger
	metrics  SessionGaugeRecorder
}

// SessionGaugeRecorder is the subset of *observability.Metrics the
// Session Manager reports to. Kept narrow so this package never imports
// internal/observability directly.
type SessionGaugeRecorder interface {
	SetActiveSessions(n int)
}

// New returns an empty Manager. metrics may be nil to disable recording.
func New(log *slog.Logger, metrics ...SessionGaugeRecorder) *Manager {
	if log == nil {
		log = slog.Default()
	}
	var m SessionGaugeRecorder
	if len(metrics) > 0 {
		m = metrics[0]
	}
	return &Manager{sessions: make(map[string]*session.Session), log: log, metrics: m}
}

// Create starts a new Session bound to deps/sink, registers it, and
// returns it already Started (spec §4.9 startSession).
func (m *Manager) Create(userID string, deps session.Deps, sink session.NotificationSink, systemPromptOverride string) (*session.Session, error) {
	sess := session.New(userID, deps, sink)
	if err := sess.Start(systemPromptOverride); err != nil {
		return nil, fmt.Errorf("sessionmgr: start session: %w", err)
	}
	m.mu.Lock()
	m.sessions[sess.ID] = sess
	count := len(m.sessions)
	m.mu.Unlock()
	if m.metrics != nil {
		m.metrics.SetActiveSessions(count)
	}
	m.log.Info("session created", "session_id", sess.ID, "user_id", userID)
	return sess, nil
}

// Get looks up a live session by id.
func (m *Manager) Get(sessionID string) (*session.Session, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	sess, ok := m.sessions[sessionID]
	return sess, ok
}

// Destroy stops sessionID's in-flight turn (if any) and removes it from
// the registry. Idempotent: destroying an unknown id is a no-op.
func (m *Manager) Destroy(sessionID string) {
	m.mu.Lock()
	sess, ok := m.sessions[sessionID]
	delete(m.sessions, sessionID)
	count := len(m.sessions)
	m.mu.Unlock()
	if !ok {
		return
	}
	if m.metrics != nil {
		m.metrics.SetActiveSessions(count)
	}
	sess.Stop()
	m.log.Info("session destroyed", "session_id", sessionID)
}

// Count returns the number of live sessions, for diagnostics/metrics.
func (m *Manager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// Each invokes fn for every live session, for broadcast-style operations.
// fn must not call back into Manager's mutating methods.
func (m *Manager) Each(fn func(*session.Session)) {
	m.mu.RLock()
	snapshot := make([]*session.Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		snapshot = append(snapshot, s)
	}
	m.mu.RUnlock()
	for _, s := range snapshot {
		fn(s)
	}
}
