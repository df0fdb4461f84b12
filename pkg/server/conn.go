package server

import (
	"log/slog"
	"sync"
	"time"

	"github.com/eapache/queue"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/algoviz-dev/algoviz/pkg/middleware"
	"github.com/algoviz-dev/algoviz/pkg/protocol"
)

// outbound is one queued server-to-client event.
type outbound struct {
	eventType protocol.EventType
	payload   any
}

// Conn is one websocket connection. Inbound traffic is handled on the
// read pump, outbound traffic on the write pump; the hub only ever sees
// the non-blocking Send side.
type Conn struct {
	id     string
	ws     *websocket.Conn
	server *Server
	logger *slog.Logger

	// Outbox. Send appends under mu and tickles notify; the write pump
	// drains in order. Bounded so one stuck client cannot grow without
	// limit.
	mu     sync.Mutex
	outbox *queue.Queue
	notify chan struct{}

	done     chan struct{}
	closeOne sync.Once
}

func newConn(ws *websocket.Conn, srv *Server) *Conn {
	id := uuid.NewString()
	return &Conn{
		id:     id,
		ws:     ws,
		server: srv,
		logger: srv.logger.With("component", "conn", "connection_id", id),
		outbox: queue.New(),
		notify: make(chan struct{}, 1),
		done:   make(chan struct{}),
	}
}

// ID returns the connection identity.
func (c *Conn) ID() string { return c.id }

// Send queues an event for delivery. It never blocks; if the outbox is
// full the connection is closed as too slow to keep up.
func (c *Conn) Send(eventType protocol.EventType, payload any) {
	c.mu.Lock()
	if c.outbox.Length() >= c.server.config.OutboxSize {
		c.mu.Unlock()
		c.logger.Warn("outbox overflow, dropping connection",
			"limit", c.server.config.OutboxSize)
		c.close()
		return
	}
	c.outbox.Add(outbound{eventType: eventType, payload: payload})
	c.mu.Unlock()

	select {
	case c.notify <- struct{}{}:
	default:
	}
}

// SendError queues an error event with a client-facing message.
func (c *Conn) SendError(message string) {
	c.Send(protocol.EventError, protocol.ErrorPayload{Message: message})
}

func (c *Conn) close() {
	c.closeOne.Do(func() {
		close(c.done)
		c.ws.Close()
	})
}

// run drives both pumps and tears the connection down when either exits.
func (c *Conn) run() {
	middleware.RecordConnectionOpen()
	defer middleware.RecordConnectionClose()

	go c.writePump()
	c.readPump()

	c.close()
	c.server.hub.Disconnect(c)
	c.logger.Debug("connection closed")
}

// readPump reads and dispatches inbound events until the connection
// drops. Each read arms the pong deadline so a silent peer times out.
func (c *Conn) readPump() {
	cfg := c.server.config
	c.ws.SetReadLimit(cfg.MaxMessageSize)
	c.ws.SetReadDeadline(time.Now().Add(cfg.PongTimeout))
	c.ws.SetPongHandler(func(string) error {
		return c.ws.SetReadDeadline(time.Now().Add(cfg.PongTimeout))
	})

	for {
		_, msg, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err,
				websocket.CloseGoingAway,
				websocket.CloseAbnormalClosure,
				websocket.CloseNormalClosure) {
				c.logger.Error("read error", "error", err)
			}
			return
		}
		c.ws.SetReadDeadline(time.Now().Add(cfg.PongTimeout))

		c.server.dispatch(c, msg)
	}
}

// writePump drains the outbox and keeps the heartbeat going. All writes
// to the underlying socket happen here.
func (c *Conn) writePump() {
	pingInterval := c.server.config.PongTimeout * 9 / 10
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.notify:
			if !c.flush() {
				return
			}

		case <-ticker.C:
			c.ws.SetWriteDeadline(time.Now().Add(c.server.config.WriteTimeout))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.close()
				return
			}

		case <-c.done:
			c.ws.SetWriteDeadline(time.Now().Add(time.Second))
			c.ws.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		}
	}
}

// flush writes every queued event. Returns false when the connection is
// no longer writable.
func (c *Conn) flush() bool {
	for {
		c.mu.Lock()
		if c.outbox.Length() == 0 {
			c.mu.Unlock()
			return true
		}
		out := c.outbox.Remove().(outbound)
		c.mu.Unlock()

		data, err := protocol.Encode(out.eventType, out.payload)
		if err != nil {
			c.logger.Error("encode error", "event", out.eventType, "error", err)
			continue
		}

		c.ws.SetWriteDeadline(time.Now().Add(c.server.config.WriteTimeout))
		if err := c.ws.WriteMessage(websocket.TextMessage, data); err != nil {
			c.close()
			return false
		}
		middleware.RecordBroadcast(1)
	}
}
