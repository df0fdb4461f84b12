// Package session implements the collaborative session core: the registry
// of live sessions, the hub event loop that serializes every mutation,
// cursor presence tracking, state broadcast fan-out, and the lifecycle
// sweeper that evicts abandoned sessions.
package session

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/algoviz-dev/algoviz/pkg/protocol"
	"github.com/algoviz-dev/algoviz/pkg/state"
)

// Session is one shareable, code-addressed unit of visualization state.
// A Session is owned by the hub goroutine; nothing outside the hub loop
// touches its fields.
type Session struct {
	// Code is the session's opaque identifier. It never changes after
	// creation.
	Code string

	// State is the canonical visualization state, replaced wholesale on
	// each update-session-state event.
	State state.SessionState

	// ReplayLog records state snapshots taken while State.IsPlaying is
	// true. It is cleared atomically when a new algorithm run starts.
	ReplayLog []state.SessionState

	// CreatedAt is when the session was created.
	CreatedAt time.Time

	// LastActivity is bumped on every mutating event touching this
	// session. The sweeper reads it; nothing else does.
	LastActivity time.Time

	// presence maps connection identity to last-known cursor position.
	// order preserves insertion order of the current entries for
	// snapshots.
	presence map[string]protocol.Cursor
	order    []string
}

// NewCode generates a fresh session code: four cryptographically random
// bytes rendered as eight uppercase hexadecimal characters.
func NewCode() string {
	b := make([]byte, 4)
	if _, err := rand.Read(b); err != nil {
		// SECURITY: fatal on entropy failure - guessable codes are dangerous
		panic(fmt.Sprintf("crypto/rand failed: %v", err))
	}
	return strings.ToUpper(hex.EncodeToString(b))
}

// newSession creates a session with the default state and empty presence.
func newSession(code string) *Session {
	now := time.Now()
	return &Session{
		Code:         code,
		State:        state.Default(),
		CreatedAt:    now,
		LastActivity: now,
		presence:     make(map[string]protocol.Cursor),
	}
}

// Touch bumps LastActivity.
func (s *Session) Touch() {
	s.LastActivity = time.Now()
}

// SetCursor inserts or replaces the cursor entry for a connection.
func (s *Session) SetCursor(connID string, x, y float64) {
	if _, ok := s.presence[connID]; !ok {
		s.order = append(s.order, connID)
	}
	s.presence[connID] = protocol.Cursor{ConnectionID: connID, X: x, Y: y}
}

// RemoveCursor deletes a connection's cursor entry. It reports whether an
// entry was actually removed, so callers can skip duplicate broadcasts.
func (s *Session) RemoveCursor(connID string) bool {
	if _, ok := s.presence[connID]; !ok {
		return false
	}
	delete(s.presence, connID)
	for i, id := range s.order {
		if id == connID {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	return true
}

// PresenceCount returns the number of cursor entries.
func (s *Session) PresenceCount() int {
	return len(s.presence)
}

// Cursors returns the presence snapshot in insertion order of the current
// entries. Used to backfill a new subscriber.
func (s *Session) Cursors() []protocol.Cursor {
	out := make([]protocol.Cursor, 0, len(s.presence))
	for _, id := range s.order {
		out = append(out, s.presence[id])
	}
	return out
}

// RecordReplay appends a deep copy of st to the replay log.
func (s *Session) RecordReplay(st state.SessionState) {
	s.ReplayLog = append(s.ReplayLog, st.Clone())
}

// ResetReplay clears the replay log for a new run.
func (s *Session) ResetReplay() {
	s.ReplayLog = nil
}
