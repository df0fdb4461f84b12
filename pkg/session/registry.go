package session

import "log/slog"

// Registry owns the mapping from session code to Session record. It is
// confined to the hub goroutine: no lock, no concurrent access. The HTTP
// surface reaches it through hub operations only.
type Registry struct {
	sessions map[string]*Session
	logger   *slog.Logger

	totalCreated uint64
	totalEvicted uint64
	peak         int
}

// NewRegistry creates an empty registry.
func NewRegistry(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		sessions: make(map[string]*Session),
		logger:   logger.With("component", "registry"),
	}
}

// Create generates a code not currently in use and stores a new session
// with the default state. Collisions in the 32-bit code space are
// negligible but cheap to retry anyway.
func (r *Registry) Create() *Session {
	code := NewCode()
	for _, exists := r.sessions[code]; exists; _, exists = r.sessions[code] {
		code = NewCode()
	}

	sess := newSession(code)
	r.sessions[code] = sess
	r.totalCreated++
	if len(r.sessions) > r.peak {
		r.peak = len(r.sessions)
	}

	r.logger.Info("session created",
		"session_code", code,
		"active_sessions", len(r.sessions))
	return sess
}

// Get looks up a session by code. Pure lookup: it does not bump
// LastActivity, callers touching the session must do that themselves.
func (r *Registry) Get(code string) (*Session, bool) {
	sess, ok := r.sessions[code]
	return sess, ok
}

// Delete removes a session. Deleting an unknown code is a no-op.
func (r *Registry) Delete(code string) {
	if _, ok := r.sessions[code]; !ok {
		return
	}
	delete(r.sessions, code)
	r.totalEvicted++
}

// Len returns the number of live sessions.
func (r *Registry) Len() int {
	return len(r.sessions)
}

// ForEach iterates all sessions. The callback must not add or remove
// registry entries; collect codes and delete after iterating.
func (r *Registry) ForEach(fn func(*Session) bool) {
	for _, sess := range r.sessions {
		if !fn(sess) {
			return
		}
	}
}
