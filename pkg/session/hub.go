package session

import (
	"log/slog"
	"runtime/debug"
	"sync"
	"time"

	"github.com/algoviz-dev/algoviz/pkg/protocol"
	"github.com/algoviz-dev/algoviz/pkg/state"
)

// Subscriber is a connection's outbound half as the hub sees it. Send must
// never block: implementations queue the event for their own write pump.
type Subscriber interface {
	// ID returns the connection identity.
	ID() string

	// Send queues an event for delivery to this connection.
	Send(eventType protocol.EventType, payload any)
}

// HubConfig carries the tunables the hub needs.
type HubConfig struct {
	// SessionTimeout is how long an unattended session survives past its
	// last activity before the sweeper may evict it.
	SessionTimeout time.Duration

	// OpQueueSize is the capacity of the hub's operation channel.
	OpQueueSize int
}

// DefaultHubConfig mirrors the defaults of the original deployment:
// day-long sessions, hourly sweeps scheduled elsewhere.
func DefaultHubConfig() HubConfig {
	return HubConfig{
		SessionTimeout: 24 * time.Hour,
		OpQueueSize:    256,
	}
}

// Hub serializes every session mutation onto a single goroutine. All
// inbound events, the HTTP surface, and sweep firings are posted as
// operations and processed one at a time, so a handler that reads then
// writes a session does so atomically relative to every other handler.
type Hub struct {
	registry *Registry
	config   HubConfig
	logger   *slog.Logger

	ops     chan hubOp
	done    chan struct{}
	stopped chan struct{}
	once    sync.Once

	// Subscription state, owned by the loop. byConn is the reverse index
	// (connection -> session codes) that makes disconnect cleanup
	// proportional to the sessions the connection actually joined.
	subs   map[string]map[string]Subscriber
	byConn map[string]map[string]struct{}

	// Loop-owned counters, snapshotted through HubStats.
	eventsHandled uint64
	peakConns     int
}

type hubOp struct {
	fn    func() error
	reply chan error
}

// NewHub creates a hub over the given registry. Call Run in its own
// goroutine before posting operations.
func NewHub(registry *Registry, config HubConfig, logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	if config.SessionTimeout <= 0 {
		config.SessionTimeout = DefaultHubConfig().SessionTimeout
	}
	if config.OpQueueSize <= 0 {
		config.OpQueueSize = DefaultHubConfig().OpQueueSize
	}
	return &Hub{
		registry: registry,
		config:   config,
		logger:   logger.With("component", "hub"),
		ops:      make(chan hubOp, config.OpQueueSize),
		done:     make(chan struct{}),
		stopped:  make(chan struct{}),
		subs:     make(map[string]map[string]Subscriber),
		byConn:   make(map[string]map[string]struct{}),
	}
}

// Run processes operations until Stop is called. It never exits on a
// handler failure: panics are recovered per operation.
func (h *Hub) Run() {
	defer close(h.stopped)
	for {
		select {
		case op := <-h.ops:
			op.reply <- h.execute(op.fn)
		case <-h.done:
			return
		}
	}
}

// Stop shuts the loop down and waits for it to exit. Operations posted
// afterwards fail with ErrHubStopped. Safe to call more than once.
func (h *Hub) Stop() {
	h.once.Do(func() { close(h.done) })
	<-h.stopped
}

// execute runs one operation with panic recovery so no event can kill the
// loop or leave it wedged.
func (h *Hub) execute(fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			h.logger.Error("hub operation panic",
				"panic", r,
				"stack", string(debug.Stack()))
			err = ErrInternal
		}
	}()
	h.eventsHandled++
	return fn()
}

// call posts an operation and waits for the loop to process it. Event
// order per connection equals call order, which is what gives the
// per-session serialization guarantee.
func (h *Hub) call(fn func() error) error {
	op := hubOp{fn: fn, reply: make(chan error, 1)}
	select {
	case h.ops <- op:
	case <-h.done:
		return ErrHubStopped
	}
	select {
	case err := <-op.reply:
		return err
	case <-h.stopped:
		return ErrHubStopped
	}
}

// =============================================================================
// Session CRUD surface
// =============================================================================

// CreateSession creates a fresh session and returns its code and initial
// state.
func (h *Hub) CreateSession() (string, state.SessionState, error) {
	var code string
	var st state.SessionState
	err := h.call(func() error {
		sess := h.registry.Create()
		code = sess.Code
		st = sess.State.Clone()
		return nil
	})
	return code, st, err
}

// SessionState returns the current state of a session. Pure lookup, no
// activity bump.
func (h *Hub) SessionState(code string) (state.SessionState, error) {
	var st state.SessionState
	err := h.call(func() error {
		sess, ok := h.registry.Get(code)
		if !ok {
			return ErrSessionNotFound
		}
		st = sess.State.Clone()
		return nil
	})
	return st, err
}

// Presence returns a session's cursor snapshot in insertion order.
func (h *Hub) Presence(code string) ([]protocol.Cursor, error) {
	var cursors []protocol.Cursor
	err := h.call(func() error {
		sess, ok := h.registry.Get(code)
		if !ok {
			return ErrSessionNotFound
		}
		cursors = sess.Cursors()
		return nil
	})
	return cursors, err
}

// =============================================================================
// Realtime operations
// =============================================================================

// Join subscribes a connection to a session. On success the joiner - and
// only the joiner - receives the current state and the presence snapshot.
func (h *Hub) Join(sub Subscriber, code string) error {
	return h.call(func() error {
		sess, ok := h.registry.Get(code)
		if !ok {
			return ErrSessionNotFound
		}
		sess.Touch()
		h.subscribe(sub, code)

		sub.Send(protocol.EventSessionState, sess.State.Clone())
		sub.Send(protocol.EventCursorsUpdate, sess.Cursors())

		h.logger.Debug("connection joined session",
			"session_code", code,
			"connection_id", sub.ID(),
			"subscribers", len(h.subs[code]))
		return nil
	})
}

// Leave removes a connection from one session: subscription, presence
// entry, and a cursor-remove broadcast to the remaining subscribers.
// Leaving a session the connection never joined is a no-op.
func (h *Hub) Leave(sub Subscriber, code string) error {
	return h.call(func() error {
		h.removeFromSession(sub.ID(), code)
		return nil
	})
}

// MoveCursor records a cursor position and fans it out to every other
// subscriber of the session. The mover never receives its own echo.
func (h *Hub) MoveCursor(sub Subscriber, code string, x, y float64) error {
	return h.call(func() error {
		sess, ok := h.registry.Get(code)
		if !ok {
			return ErrSessionNotFound
		}
		if !h.subscribed(sub.ID(), code) {
			return ErrNotSubscribed
		}
		sess.Touch()
		sess.SetCursor(sub.ID(), x, y)

		h.broadcastToOthers(code, sub.ID(), protocol.EventCursorMove, protocol.Cursor{
			ConnectionID: sub.ID(),
			X:            x,
			Y:            y,
		})
		return nil
	})
}

// UpdateState replaces a session's state wholesale and fans the new state
// out to every other subscriber. While the submitted state is playing, a
// deep copy is appended to the replay log. Nothing is mutated on failure.
func (h *Hub) UpdateState(sub Subscriber, code string, newState state.SessionState) error {
	return h.call(func() error {
		sess, ok := h.registry.Get(code)
		if !ok {
			return ErrSessionNotFound
		}
		if !h.subscribed(sub.ID(), code) {
			return ErrNotSubscribed
		}
		sess.Touch()
		sess.State = newState
		if newState.IsPlaying {
			sess.RecordReplay(newState)
		}

		h.broadcastToOthers(code, sub.ID(), protocol.EventStateUpdated, sess.State.Clone())
		return nil
	})
}

// StartAlgorithm begins a new run: algorithm and input are set, the step
// position and play flag are reset, and the replay log is cleared. Unlike
// UpdateState, the reset state is broadcast to every subscriber including
// the origin, whose local state must converge with the canonical reset.
func (h *Hub) StartAlgorithm(sub Subscriber, code string, algorithm state.Algorithm, inputData any) error {
	return h.call(func() error {
		sess, ok := h.registry.Get(code)
		if !ok {
			return ErrSessionNotFound
		}
		if !h.subscribed(sub.ID(), code) {
			return ErrNotSubscribed
		}
		sess.Touch()
		sess.State.Algorithm = algorithm
		sess.State.InputData = inputData
		sess.State.CurrentStep = 0
		sess.State.IsPlaying = false
		sess.ResetReplay()

		h.broadcastToAll(code, protocol.EventStateUpdated, sess.State.Clone())

		h.logger.Info("algorithm started",
			"session_code", code,
			"algorithm", algorithm,
			"connection_id", sub.ID())
		return nil
	})
}

// Disconnect removes a connection from every session it joined,
// broadcasting the cursor removal to each session's remaining
// subscribers. Calling it again for the same connection is a no-op.
func (h *Hub) Disconnect(sub Subscriber) {
	_ = h.call(func() error {
		for code := range h.byConn[sub.ID()] {
			h.removeFromSession(sub.ID(), code)
		}
		return nil
	})
}

// =============================================================================
// Subscription bookkeeping (loop-owned)
// =============================================================================

func (h *Hub) subscribe(sub Subscriber, code string) {
	if h.subs[code] == nil {
		h.subs[code] = make(map[string]Subscriber)
	}
	h.subs[code][sub.ID()] = sub

	if h.byConn[sub.ID()] == nil {
		h.byConn[sub.ID()] = make(map[string]struct{})
	}
	h.byConn[sub.ID()][code] = struct{}{}

	if len(h.byConn) > h.peakConns {
		h.peakConns = len(h.byConn)
	}
}

func (h *Hub) subscribed(connID, code string) bool {
	_, ok := h.subs[code][connID]
	return ok
}

// removeFromSession drops one connection from one session. Presence entry
// removal is broadcast once; repeated removals stay silent.
func (h *Hub) removeFromSession(connID, code string) {
	if !h.subscribed(connID, code) {
		return
	}
	delete(h.subs[code], connID)
	if len(h.subs[code]) == 0 {
		delete(h.subs, code)
	}
	delete(h.byConn[connID], code)
	if len(h.byConn[connID]) == 0 {
		delete(h.byConn, connID)
	}

	sess, ok := h.registry.Get(code)
	if !ok {
		return
	}
	if sess.RemoveCursor(connID) {
		h.broadcastToOthers(code, connID, protocol.EventCursorRemove, protocol.CursorRemovePayload{
			ConnectionID: connID,
		})
	}
}

func (h *Hub) broadcastToOthers(code, originID string, eventType protocol.EventType, payload any) {
	for id, sub := range h.subs[code] {
		if id == originID {
			continue
		}
		sub.Send(eventType, payload)
	}
}

func (h *Hub) broadcastToAll(code string, eventType protocol.EventType, payload any) {
	for _, sub := range h.subs[code] {
		sub.Send(eventType, payload)
	}
}

// =============================================================================
// Sweeping and stats
// =============================================================================

// Evicted describes a session removed by a sweep, carrying its replay log
// for optional archival.
type Evicted struct {
	Code      string
	ReplayLog []state.SessionState
}

// Sweep scans the registry once and evicts every session with no
// subscribers, no presence, and no activity within the session timeout. A
// session with anyone still attached is never evicted, however stale.
// Eligible codes are collected first so deletion never disturbs the scan.
func (h *Hub) Sweep() ([]Evicted, error) {
	var evicted []Evicted
	err := h.call(func() error {
		now := time.Now()
		h.registry.ForEach(func(sess *Session) bool {
			if len(h.subs[sess.Code]) > 0 || sess.PresenceCount() > 0 {
				return true
			}
			if now.Sub(sess.LastActivity) <= h.config.SessionTimeout {
				return true
			}
			evicted = append(evicted, Evicted{Code: sess.Code, ReplayLog: sess.ReplayLog})
			return true
		})
		for _, e := range evicted {
			h.registry.Delete(e.Code)
		}
		if len(evicted) > 0 {
			h.logger.Info("swept expired sessions",
				"count", len(evicted),
				"remaining", h.registry.Len())
		}
		return nil
	})
	return evicted, err
}

// Stats is a snapshot of hub counters.
type Stats struct {
	ActiveSessions    int
	ActiveConnections int
	TotalCreated      uint64
	TotalEvicted      uint64
	PeakSessions      int
	PeakConnections   int
	EventsHandled     uint64
}

// HubStats returns aggregated counters, read on the loop for consistency.
func (h *Hub) HubStats() (Stats, error) {
	var st Stats
	err := h.call(func() error {
		st = Stats{
			ActiveSessions:    h.registry.Len(),
			ActiveConnections: len(h.byConn),
			TotalCreated:      h.registry.totalCreated,
			TotalEvicted:      h.registry.totalEvicted,
			PeakSessions:      h.registry.peak,
			PeakConnections:   h.peakConns,
			EventsHandled:     h.eventsHandled,
		}
		return nil
	})
	return st, err
}
