// Package presence tracks sessions of the legacy presence protocol used by
// older app and robot generations.
//
// The stanza protocol itself is served elsewhere; this table is what the
// HTTP side and the sweeper see of it. Sessions are registered, or
// refreshed, each time an app logs in with an auth code, and the sweeper
// drops the ones that stay quiet.
package presence

import (
	"sort"
	"sync"
	"time"
)

// Session is one legacy client connection.
type Session struct {
	AccountID string    `json:"account_id"`
	Realm     string    `json:"realm"`
	Resource  string    `json:"resource"`
	LastSeen  time.Time `json:"last_seen"`
}

// Table is an in-memory session table keyed by account id.
//
// All public methods are thread-safe.
type Table struct {
	mu       sync.RWMutex
	sessions map[string]*Session
	now      func() time.Time
}

// NewTable creates an empty session table.
func NewTable() *Table {
	return &Table{
		sessions: make(map[string]*Session),
		now:      time.Now,
	}
}

// Register records a session for accountID, replacing any previous one.
func (t *Table) Register(accountID, realm, resource string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.sessions[accountID] = &Session{
		AccountID: accountID,
		Realm:     realm,
		Resource:  resource,
		LastSeen:  t.now(),
	}
}

// ListSilentSessions returns sessions last seen more than threshold ago.
func (t *Table) ListSilentSessions(threshold time.Duration) []Session {
	cutoff := t.now().Add(-threshold)

	t.mu.RLock()
	defer t.mu.RUnlock()

	var silent []Session
	for _, s := range t.sessions {
		if s.LastSeen.Before(cutoff) {
			silent = append(silent, *s)
		}
	}
	return silent
}

// RemoveSession deletes the session for accountID. Removing a missing
// session is a no-op.
func (t *Table) RemoveSession(accountID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.sessions, accountID)
}

// Sessions returns every session ordered by account id.
func (t *Table) Sessions() []Session {
	t.mu.RLock()
	defer t.mu.RUnlock()

	out := make([]Session, 0, len(t.sessions))
	for _, s := range t.sessions {
		out = append(out, *s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].AccountID < out[j].AccountID })
	return out
}

// Len returns the number of sessions.
func (t *Table) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.sessions)
}
