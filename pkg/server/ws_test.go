package server

import (
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/bytedance/sonic"
	"github.com/gorilla/websocket"

	"github.com/algoviz-dev/algoviz/pkg/protocol"
)

// wsClient wraps a dialed websocket connection for tests.
type wsClient struct {
	t    *testing.T
	conn *websocket.Conn
}

func dialWS(t *testing.T, ts *httptest.Server) *wsClient {
	t.Helper()
	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial %s: %v", url, err)
	}
	t.Cleanup(func() { conn.Close() })
	return &wsClient{t: t, conn: conn}
}

func (c *wsClient) send(eventType protocol.EventType, payload any) {
	c.t.Helper()
	data, err := protocol.Encode(eventType, payload)
	if err != nil {
		c.t.Fatalf("encode %s: %v", eventType, err)
	}
	if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
		c.t.Fatalf("write %s: %v", eventType, err)
	}
}

func (c *wsClient) recv() protocol.Envelope {
	c.t.Helper()
	c.conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := c.conn.ReadMessage()
	if err != nil {
		c.t.Fatalf("read: %v", err)
	}
	env, err := protocol.DecodeEnvelope(data)
	if err != nil {
		c.t.Fatalf("decode: %v", err)
	}
	return env
}

// expect reads until an event of the wanted type arrives.
func (c *wsClient) expect(eventType protocol.EventType) protocol.Envelope {
	c.t.Helper()
	for i := 0; i < 10; i++ {
		env := c.recv()
		if env.Type == eventType {
			return env
		}
	}
	c.t.Fatalf("event %s never arrived", eventType)
	return protocol.Envelope{}
}

func (c *wsClient) join(code string) {
	c.t.Helper()
	c.send(protocol.EventJoinSession, protocol.JoinPayload{SessionCode: code})
	c.expect(protocol.EventSessionState)
	c.expect(protocol.EventCursorsUpdate)
}

func TestWebsocketJoinFlow(t *testing.T) {
	srv, ts := newTestServer(t)
	code, _, _ := srv.hub.CreateSession()

	client := dialWS(t, ts)
	client.send(protocol.EventJoinSession, protocol.JoinPayload{SessionCode: code})

	env := client.expect(protocol.EventSessionState)
	var st map[string]any
	if err := sonic.Unmarshal(env.Payload, &st); err != nil {
		t.Fatalf("unmarshal state: %v", err)
	}
	if st["algorithm"] != "bubbleSort" {
		t.Errorf("algorithm = %v, want bubbleSort", st["algorithm"])
	}

	client.expect(protocol.EventCursorsUpdate)
}

func TestWebsocketJoinUnknownSession(t *testing.T) {
	_, ts := newTestServer(t)

	client := dialWS(t, ts)
	client.send(protocol.EventJoinSession, protocol.JoinPayload{SessionCode: "DEADBEEF"})

	env := client.expect(protocol.EventError)
	var p protocol.ErrorPayload
	if err := sonic.Unmarshal(env.Payload, &p); err != nil {
		t.Fatalf("unmarshal error payload: %v", err)
	}
	if p.Message != protocol.MsgSessionNotFound {
		t.Errorf("message = %q, want %q", p.Message, protocol.MsgSessionNotFound)
	}
}

func TestWebsocketJoinBadCode(t *testing.T) {
	_, ts := newTestServer(t)

	client := dialWS(t, ts)
	client.send(protocol.EventJoinSession, protocol.JoinPayload{SessionCode: "nope"})

	env := client.expect(protocol.EventError)
	var p protocol.ErrorPayload
	sonic.Unmarshal(env.Payload, &p)
	if p.Message != protocol.MsgInvalidSessionCode {
		t.Errorf("message = %q, want %q", p.Message, protocol.MsgInvalidSessionCode)
	}
}

func TestWebsocketCursorFanout(t *testing.T) {
	srv, ts := newTestServer(t)
	code, _, _ := srv.hub.CreateSession()

	mover := dialWS(t, ts)
	watcher := dialWS(t, ts)
	mover.join(code)
	watcher.join(code)

	mover.send(protocol.EventCursorMove, protocol.CursorMovePayload{
		SessionCode: code,
		X:           42,
		Y:           7,
	})

	env := watcher.expect(protocol.EventCursorMove)
	var cursor protocol.Cursor
	if err := sonic.Unmarshal(env.Payload, &cursor); err != nil {
		t.Fatalf("unmarshal cursor: %v", err)
	}
	if cursor.X != 42 || cursor.Y != 7 {
		t.Errorf("cursor = (%v, %v), want (42, 7)", cursor.X, cursor.Y)
	}
	if cursor.ConnectionID == "" {
		t.Error("cursor is missing its connection id")
	}
}

func TestWebsocketStateUpdateFanout(t *testing.T) {
	srv, ts := newTestServer(t)
	code, _, _ := srv.hub.CreateSession()

	updater := dialWS(t, ts)
	watcher := dialWS(t, ts)
	updater.join(code)
	watcher.join(code)

	raw := []byte(`{"sessionCode":"` + code + `","state":{"algorithm":"quickSort","currentStep":2,"totalSteps":8,"isPlaying":true,"inputData":{"array":[3,1]},"steps":[]}}`)
	env := protocol.Envelope{Type: protocol.EventUpdateState, Payload: raw}
	data, _ := sonic.Marshal(env)
	if err := updater.conn.WriteMessage(websocket.TextMessage, data); err != nil {
		t.Fatalf("write: %v", err)
	}

	got := watcher.expect(protocol.EventStateUpdated)
	var st map[string]any
	if err := sonic.Unmarshal(got.Payload, &st); err != nil {
		t.Fatalf("unmarshal state: %v", err)
	}
	if st["algorithm"] != "quickSort" {
		t.Errorf("algorithm = %v, want quickSort", st["algorithm"])
	}
	if st["currentStep"] != float64(2) {
		t.Errorf("currentStep = %v, want 2", st["currentStep"])
	}
}

func TestWebsocketUpdateStateUnknownSession(t *testing.T) {
	srv, ts := newTestServer(t)
	code, _, _ := srv.hub.CreateSession()

	sender := dialWS(t, ts)
	watcher := dialWS(t, ts)
	sender.join(code)
	watcher.join(code)

	raw := []byte(`{"sessionCode":"DEADBEEF","state":{"algorithm":"quickSort","currentStep":0,"totalSteps":0,"isPlaying":false,"inputData":{},"steps":[]}}`)
	data, _ := sonic.Marshal(protocol.Envelope{Type: protocol.EventUpdateState, Payload: raw})
	if err := sender.conn.WriteMessage(websocket.TextMessage, data); err != nil {
		t.Fatalf("write: %v", err)
	}

	env := sender.expect(protocol.EventError)
	var p protocol.ErrorPayload
	if err := sonic.Unmarshal(env.Payload, &p); err != nil {
		t.Fatalf("unmarshal error payload: %v", err)
	}
	if p.Message != protocol.MsgSessionNotFound {
		t.Errorf("message = %q, want %q", p.Message, protocol.MsgSessionNotFound)
	}

	// No broadcast to anyone: a cursor-move through the shared session
	// must be the very next thing the watcher sees.
	sender.send(protocol.EventCursorMove, protocol.CursorMovePayload{SessionCode: code, X: 1, Y: 1})
	got := watcher.recv()
	if got.Type != protocol.EventCursorMove {
		t.Errorf("watcher received %q before the cursor-move, want nothing in between", got.Type)
	}
}

func TestWebsocketStartAlgorithmReachesOrigin(t *testing.T) {
	srv, ts := newTestServer(t)
	code, _, _ := srv.hub.CreateSession()

	origin := dialWS(t, ts)
	origin.join(code)

	origin.send(protocol.EventStartAlgorithm, protocol.StartAlgorithmPayload{
		SessionCode: code,
		Algorithm:   "mergeSort",
		InputData:   map[string]any{"array": []any{float64(2), float64(1)}},
	})

	env := origin.expect(protocol.EventStateUpdated)
	var st map[string]any
	if err := sonic.Unmarshal(env.Payload, &st); err != nil {
		t.Fatalf("unmarshal state: %v", err)
	}
	if st["algorithm"] != "mergeSort" {
		t.Errorf("algorithm = %v, want mergeSort", st["algorithm"])
	}
	if st["isPlaying"] != false {
		t.Errorf("isPlaying = %v, want false", st["isPlaying"])
	}
}

func TestWebsocketInvalidEnvelope(t *testing.T) {
	_, ts := newTestServer(t)

	client := dialWS(t, ts)
	if err := client.conn.WriteMessage(websocket.TextMessage, []byte(`garbage`)); err != nil {
		t.Fatalf("write: %v", err)
	}

	env := client.expect(protocol.EventError)
	var p protocol.ErrorPayload
	sonic.Unmarshal(env.Payload, &p)
	if p.Message != protocol.MsgInvalidEvent {
		t.Errorf("message = %q, want %q", p.Message, protocol.MsgInvalidEvent)
	}
}

func TestWebsocketDisconnectRemovesCursor(t *testing.T) {
	srv, ts := newTestServer(t)
	code, _, _ := srv.hub.CreateSession()

	leaver := dialWS(t, ts)
	watcher := dialWS(t, ts)
	leaver.join(code)
	watcher.join(code)

	leaver.send(protocol.EventCursorMove, protocol.CursorMovePayload{SessionCode: code, X: 1, Y: 1})
	watcher.expect(protocol.EventCursorMove)

	leaver.conn.Close()

	env := watcher.expect(protocol.EventCursorRemove)
	var p protocol.CursorRemovePayload
	if err := sonic.Unmarshal(env.Payload, &p); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if p.ConnectionID == "" {
		t.Error("cursor-remove is missing the connection id")
	}
}
