// Package protocol defines the realtime event protocol spoken between the
// server and its websocket clients. Every message is a JSON envelope with a
// type tag and an opaque payload; decoding and shape validation live here so
// the session core only ever sees well-formed values.
package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"regexp"

	"github.com/bytedance/sonic"

	"github.com/algoviz-dev/algoviz/pkg/state"
)

// EventType tags an envelope with the event it carries.
type EventType string

// Client-to-server events.
const (
	EventJoinSession    EventType = "join-session"
	EventLeaveSession   EventType = "leave-session"
	EventCursorMove     EventType = "cursor-move"
	EventUpdateState    EventType = "update-session-state"
	EventStartAlgorithm EventType = "start-algorithm"
)

// Server-to-client events. EventCursorMove is reused for the cursor
// broadcast sent to the mover's peers.
const (
	EventSessionState  EventType = "session-state"
	EventCursorsUpdate EventType = "cursors-update"
	EventStateUpdated  EventType = "session-state-updated"
	EventCursorRemove  EventType = "cursor-remove"
	EventError         EventType = "error"
)

// Envelope is the wire frame for every event in both directions. The
// payload stays raw until the event type selects a decoder for it.
type Envelope struct {
	Type    EventType       `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// SessionCodeLen is the fixed length of a session code.
const SessionCodeLen = 8

var codePattern = regexp.MustCompile(`^[0-9A-F]{8}$`)

// ValidSessionCode reports whether code is exactly eight uppercase
// hexadecimal characters.
func ValidSessionCode(code string) bool {
	return codePattern.MatchString(code)
}

// Error messages surfaced to clients. They match what the browser client
// expects verbatim.
const (
	MsgInvalidSessionCode   = "Invalid session ID format"
	MsgSessionNotFound      = "Session not found"
	MsgInvalidCursorMove    = "Invalid cursor move data"
	MsgInvalidSessionState  = "Invalid session state data"
	MsgInvalidAlgorithm     = "Invalid algorithm start data"
	MsgInvalidEvent         = "Invalid event format"
	MsgJoinFailed           = "Failed to join session"
	MsgCursorMoveFailed     = "Failed to update cursor position"
	MsgStateUpdateFailed    = "Failed to update session state"
	MsgStartAlgorithmFailed = "Failed to start algorithm"
)

// ErrInvalidPayload is returned by the Decode* helpers when the payload is
// structurally wrong for its event type.
var ErrInvalidPayload = errors.New("protocol: invalid payload")

// JoinPayload is the payload of join-session and leave-session.
type JoinPayload struct {
	SessionCode string `json:"sessionCode"`
}

// CursorMovePayload is the client payload of cursor-move.
type CursorMovePayload struct {
	SessionCode string  `json:"sessionCode"`
	X           float64 `json:"x"`
	Y           float64 `json:"y"`
}

// UpdateStatePayload is the payload of update-session-state.
type UpdateStatePayload struct {
	SessionCode string             `json:"sessionCode"`
	State       state.SessionState `json:"state"`
}

// StartAlgorithmPayload is the payload of start-algorithm.
type StartAlgorithmPayload struct {
	SessionCode string          `json:"sessionCode"`
	Algorithm   state.Algorithm `json:"algorithm"`
	InputData   any             `json:"inputData"`
}

// Cursor is one entry of a presence snapshot and the payload of the
// cursor-move broadcast.
type Cursor struct {
	ConnectionID string  `json:"connectionId"`
	X            float64 `json:"x"`
	Y            float64 `json:"y"`
}

// CursorRemovePayload announces a departed connection to its peers.
type CursorRemovePayload struct {
	ConnectionID string `json:"connectionId"`
}

// ErrorPayload carries an error description to the originating connection.
type ErrorPayload struct {
	Message string `json:"message"`
}

// DecodeEnvelope parses a raw websocket message into an envelope.
func DecodeEnvelope(data []byte) (Envelope, error) {
	var env Envelope
	if err := sonic.Unmarshal(data, &env); err != nil {
		return Envelope{}, fmt.Errorf("protocol: decode envelope: %w", err)
	}
	if env.Type == "" {
		return Envelope{}, fmt.Errorf("protocol: decode envelope: missing type")
	}
	return env, nil
}

// Encode builds the wire bytes for an outbound event.
func Encode(eventType EventType, payload any) ([]byte, error) {
	body, err := sonic.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("protocol: encode %s: %w", eventType, err)
	}
	return sonic.Marshal(Envelope{Type: eventType, Payload: body})
}

// finite reports whether f is a usable coordinate.
func finite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}

// DecodeJoin validates and decodes a join-session or leave-session payload.
func DecodeJoin(payload []byte) (JoinPayload, error) {
	var wire struct {
		SessionCode *string `json:"sessionCode"`
	}
	if err := sonic.Unmarshal(payload, &wire); err != nil || wire.SessionCode == nil {
		return JoinPayload{}, ErrInvalidPayload
	}
	return JoinPayload{SessionCode: *wire.SessionCode}, nil
}

// DecodeCursorMove validates and decodes a cursor-move payload. Coordinates
// must be present and finite.
func DecodeCursorMove(payload []byte) (CursorMovePayload, error) {
	var wire struct {
		SessionCode *string  `json:"sessionCode"`
		X           *float64 `json:"x"`
		Y           *float64 `json:"y"`
	}
	if err := sonic.Unmarshal(payload, &wire); err != nil {
		return CursorMovePayload{}, ErrInvalidPayload
	}
	if wire.SessionCode == nil || wire.X == nil || wire.Y == nil {
		return CursorMovePayload{}, ErrInvalidPayload
	}
	if !finite(*wire.X) || !finite(*wire.Y) {
		return CursorMovePayload{}, ErrInvalidPayload
	}
	return CursorMovePayload{SessionCode: *wire.SessionCode, X: *wire.X, Y: *wire.Y}, nil
}

// DecodeUpdateState validates and decodes an update-session-state payload.
// The state must be structurally present; its contents are opaque.
func DecodeUpdateState(payload []byte) (UpdateStatePayload, error) {
	var wire struct {
		SessionCode *string             `json:"sessionCode"`
		State       *state.SessionState `json:"state"`
	}
	if err := sonic.Unmarshal(payload, &wire); err != nil {
		return UpdateStatePayload{}, ErrInvalidPayload
	}
	if wire.SessionCode == nil || wire.State == nil {
		return UpdateStatePayload{}, ErrInvalidPayload
	}
	return UpdateStatePayload{SessionCode: *wire.SessionCode, State: *wire.State}, nil
}

// DecodeStartAlgorithm validates and decodes a start-algorithm payload. The
// algorithm must be one of the recognized set; input data is opaque and may
// be absent.
func DecodeStartAlgorithm(payload []byte) (StartAlgorithmPayload, error) {
	var wire struct {
		SessionCode *string          `json:"sessionCode"`
		Algorithm   *state.Algorithm `json:"algorithm"`
		InputData   any              `json:"inputData"`
	}
	if err := sonic.Unmarshal(payload, &wire); err != nil {
		return StartAlgorithmPayload{}, ErrInvalidPayload
	}
	if wire.SessionCode == nil || wire.Algorithm == nil || !wire.Algorithm.Valid() {
		return StartAlgorithmPayload{}, ErrInvalidPayload
	}
	return StartAlgorithmPayload{
		SessionCode: *wire.SessionCode,
		Algorithm:   *wire.Algorithm,
		InputData:   wire.InputData,
	}, nil
}
