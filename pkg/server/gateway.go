package server

import (
	"errors"
	"time"

	"github.com/algoviz-dev/algoviz/pkg/middleware"
	"github.com/algoviz-dev/algoviz/pkg/protocol"
	"github.com/algoviz-dev/algoviz/pkg/session"
)

// dispatch routes one inbound websocket message. Malformed input and
// handler failures are reported back to the sender as error events and
// never tear the connection down.
func (s *Server) dispatch(c *Conn, msg []byte) {
	start := time.Now()

	env, err := protocol.DecodeEnvelope(msg)
	if err != nil {
		c.SendError(protocol.MsgInvalidEvent)
		middleware.RecordEvent("invalid", err, time.Since(start))
		return
	}

	switch env.Type {
	case protocol.EventJoinSession:
		err = s.handleJoin(c, env.Payload)
	case protocol.EventLeaveSession:
		err = s.handleLeave(c, env.Payload)
	case protocol.EventCursorMove:
		err = s.handleCursorMove(c, env.Payload)
	case protocol.EventUpdateState:
		err = s.handleUpdateState(c, env.Payload)
	case protocol.EventStartAlgorithm:
		err = s.handleStartAlgorithm(c, env.Payload)
	default:
		c.SendError(protocol.MsgInvalidEvent)
		err = protocol.ErrInvalidPayload
	}

	middleware.RecordEvent(string(env.Type), err, time.Since(start))
}

func (s *Server) handleJoin(c *Conn, payload []byte) error {
	p, err := protocol.DecodeJoin(payload)
	if err != nil {
		c.SendError(protocol.MsgInvalidSessionCode)
		return err
	}
	if !protocol.ValidSessionCode(p.SessionCode) {
		c.SendError(protocol.MsgInvalidSessionCode)
		return protocol.ErrInvalidPayload
	}

	err = s.hub.Join(c, p.SessionCode)
	switch {
	case errors.Is(err, session.ErrSessionNotFound):
		c.SendError(protocol.MsgSessionNotFound)
	case err != nil:
		c.SendError(protocol.MsgJoinFailed)
	}
	return err
}

func (s *Server) handleLeave(c *Conn, payload []byte) error {
	p, err := protocol.DecodeJoin(payload)
	if err != nil {
		c.SendError(protocol.MsgInvalidSessionCode)
		return err
	}
	// Leaving an unknown or never-joined session is silently ignored.
	return s.hub.Leave(c, p.SessionCode)
}

func (s *Server) handleCursorMove(c *Conn, payload []byte) error {
	p, err := protocol.DecodeCursorMove(payload)
	if err != nil {
		c.SendError(protocol.MsgInvalidCursorMove)
		return err
	}

	err = s.hub.MoveCursor(c, p.SessionCode, p.X, p.Y)
	switch {
	case errors.Is(err, session.ErrSessionNotFound):
		c.SendError(protocol.MsgSessionNotFound)
	case err != nil:
		c.SendError(protocol.MsgCursorMoveFailed)
	}
	return err
}

func (s *Server) handleUpdateState(c *Conn, payload []byte) error {
	p, err := protocol.DecodeUpdateState(payload)
	if err != nil {
		c.SendError(protocol.MsgInvalidSessionState)
		return err
	}

	err = s.hub.UpdateState(c, p.SessionCode, p.State)
	switch {
	case errors.Is(err, session.ErrSessionNotFound):
		c.SendError(protocol.MsgSessionNotFound)
	case err != nil:
		c.SendError(protocol.MsgStateUpdateFailed)
	}
	return err
}

func (s *Server) handleStartAlgorithm(c *Conn, payload []byte) error {
	p, err := protocol.DecodeStartAlgorithm(payload)
	if err != nil {
		c.SendError(protocol.MsgInvalidAlgorithm)
		return err
	}

	err = s.hub.StartAlgorithm(c, p.SessionCode, p.Algorithm, p.InputData)
	switch {
	case errors.Is(err, session.ErrSessionNotFound):
		c.SendError(protocol.MsgSessionNotFound)
	case err != nil:
		c.SendError(protocol.MsgStartAlgorithmFailed)
	}
	return err
}
