package signal

import (
	"context"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/dkeye/Guardian/internal/app"
	"github.com/dkeye/Guardian/internal/app/archive"
	"github.com/dkeye/Guardian/internal/app/command"
	"github.com/dkeye/Guardian/internal/app/frames"
	"github.com/dkeye/Guardian/internal/app/logsink"
	"github.com/dkeye/Guardian/internal/app/mirror"
	"github.com/dkeye/Guardian/internal/app/orch"
	"github.com/dkeye/Guardian/internal/codec"
	"github.com/dkeye/Guardian/internal/core"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

var jpegBytes = []byte{0xFF, 0xD8, 0xFF, 0xE0, 0x00, 0x10, 'J', 'F', 'I', 'F', 0x00, 0x01, 0x01, 0x00, 0x00, 0x01}

func newServer(t *testing.T) (*httptest.Server, *orch.Orchestrator) {
	t.Helper()
	return newServerWith(t, Options{})
}

func newServerWith(t *testing.T, opts Options) (*httptest.Server, *orch.Orchestrator) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	rooms := core.NewRoomManager()
	vault, err := archive.NewVault(t.TempDir(), nil)
	if err != nil {
		t.Fatalf("NewVault: %v", err)
	}
	o := &orch.Orchestrator{
		Registry: app.NewRegistry(),
		Rooms:    rooms,
		Policy:   app.DropPolicy{},
		Frames:   frames.NewManager(),
		Mirror:   mirror.New(rooms),
		Commands: command.NewRouter(rooms),
		Archive:  archive.NewArchiver(rooms, vault),
		Logs:     logsink.New(nil),
		Fallback: "8660AC2E",
	}

	ctx, cancel := context.WithCancel(context.Background())
	ctl := NewSignalWSController(o, opts)
	r := gin.New()
	r.GET("/ws", func(c *gin.Context) {
		c.Set("client_token", "test-client")
		ctl.HandleSignal(ctx, c)
	})
	srv := httptest.NewServer(r)
	t.Cleanup(func() {
		cancel()
		srv.Close()
	})
	return srv, o
}

func dial(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	ws, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { ws.Close() })
	return ws
}

func send(t *testing.T, ws *websocket.Conn, v any) {
	t.Helper()
	if err := ws.WriteJSON(v); err != nil {
		t.Fatalf("write: %v", err)
	}
}

// expect reads until an event named name arrives, skipping others.
func expect(t *testing.T, ws *websocket.Conn, name string) map[string]any {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for {
		_ = ws.SetReadDeadline(deadline)
		var msg map[string]any
		if err := ws.ReadJSON(&msg); err != nil {
			t.Fatalf("waiting for %s: %v", name, err)
		}
		if msg["event"] == name {
			return msg
		}
	}
}

func joinAs(t *testing.T, ws *websocket.Conn, room, role string) map[string]any {
	t.Helper()
	send(t, ws, map[string]any{"event": "join", "room": room, "role": role})
	return expect(t, ws, "joined")
}

func TestRelayEndToEnd(t *testing.T) {
	srv, _ := newServer(t)
	kid := dial(t, srv)
	parent := dial(t, srv)

	joined := joinAs(t, kid, "ROOM1", "kid")
	if joined["role"] != "child" || joined["room"] != "ROOM1" {
		t.Fatalf("joined = %v", joined)
	}
	joinAs(t, parent, "ROOM1", "parent")
	if got := expect(t, parent, "status_change"); got["online"] != true {
		t.Fatalf("presence = %v", got)
	}

	send(t, parent, map[string]any{
		"event":   "parent_command",
		"room":    "ROOM1",
		"command": "volume_set",
		"payload": map[string]any{"level": 140},
	})
	cmd := expect(t, kid, "player_control")
	if cmd["command"] != "volume_set" || cmd["volume"] != 100.0 {
		t.Fatalf("player_control = %v", cmd)
	}

	send(t, kid, map[string]any{
		"event":       "state_report",
		"room":        "ROOM1",
		"videoId":     "abc",
		"currentTime": 12.5,
		"isPlaying":   true,
	})
	state := expect(t, parent, "state_report")
	if state["videoId"] != "abc" || state["currentTime"] != 12.5 {
		t.Fatalf("state_report = %v", state)
	}

	send(t, kid, map[string]any{"event": "kid_stream_frame", "room": "ROOM1", "image": "data:image/jpeg;base64,AAAA"})
	frame := expect(t, parent, "live_frame_update")
	if frame["image"] != "data:image/jpeg;base64,AAAA" {
		t.Fatalf("frame = %v", frame)
	}

	bin, err := codec.EncodeBinary(codec.BinaryMessage{Event: "cry_alert", Image: jpegBytes})
	if err != nil {
		t.Fatalf("EncodeBinary: %v", err)
	}
	if err := kid.WriteMessage(websocket.BinaryMessage, bin); err != nil {
		t.Fatalf("write binary: %v", err)
	}
	snap := expect(t, parent, "new_snapshot")
	if url, _ := snap["url"].(string); !strings.HasPrefix(url, "/vault/SNAP_ROOM1_") {
		t.Fatalf("new_snapshot = %v", snap)
	}

	kid.Close()
	if got := expect(t, parent, "status_change"); got["online"] != false {
		t.Fatalf("presence after disconnect = %v", got)
	}
}

func TestLateGuardianSeesState(t *testing.T) {
	srv, _ := newServer(t)
	kid := dial(t, srv)
	joinAs(t, kid, "R", "child")
	send(t, kid, map[string]any{"event": "state_report", "videoId": "abc", "currentTime": 3})
	send(t, kid, map[string]any{"event": "ping"})
	expect(t, kid, "pong")

	parent := dial(t, srv)
	joinAs(t, parent, "R", "guardian")
	if got := expect(t, parent, "state_report"); got["videoId"] != "abc" {
		t.Fatalf("state_report = %v", got)
	}
}

func TestSentinelStateNotForwarded(t *testing.T) {
	srv, _ := newServer(t)
	kid := dial(t, srv)
	parent := dial(t, srv)
	joinAs(t, kid, "R", "child")
	joinAs(t, parent, "R", "guardian")

	send(t, kid, map[string]any{"event": "state_report", "videoId": "undefined"})
	send(t, kid, map[string]any{"event": "state_report", "videoId": "real"})
	if got := expect(t, parent, "state_report"); got["videoId"] != "real" {
		t.Fatalf("first forwarded report = %v, want the real one", got)
	}
}

func TestWhoamiAndFallbackRoom(t *testing.T) {
	srv, _ := newServer(t)
	ws := dial(t, srv)

	send(t, ws, map[string]any{"event": "whoami"})
	if got := expect(t, ws, "whoami"); got["client"] != "test-client" || got["room"] != nil {
		t.Fatalf("whoami before join = %v", got)
	}

	joined := joinAs(t, ws, "  ", "")
	if joined["room"] != "8660AC2E" || joined["role"] != "guardian" {
		t.Fatalf("joined = %v", joined)
	}
	send(t, ws, map[string]any{"event": "whoami"})
	if got := expect(t, ws, "whoami"); got["room"] != "8660AC2E" {
		t.Fatalf("whoami after join = %v", got)
	}
}

func TestBadInputIsAdvisory(t *testing.T) {
	srv, _ := newServer(t)
	ws := dial(t, srv)

	send(t, ws, map[string]any{"event": "join", "room": "R", "role": "admin"})
	if got := expect(t, ws, "error"); got["error"] != "bad_role" {
		t.Fatalf("error = %v", got)
	}
	send(t, ws, map[string]any{"event": "dance"})
	if got := expect(t, ws, "error"); got["error"] != "unknown_event" {
		t.Fatalf("error = %v", got)
	}
	if err := ws.WriteMessage(websocket.TextMessage, []byte("{not json")); err != nil {
		t.Fatalf("write: %v", err)
	}
	// The connection survives all of the above.
	send(t, ws, map[string]any{"event": "ping"})
	expect(t, ws, "pong")
}

func TestLeaveKeepsConnection(t *testing.T) {
	srv, o := newServer(t)
	ws := dial(t, srv)
	joinAs(t, ws, "R", "guardian")
	send(t, ws, map[string]any{"event": "leave"})
	if got := expect(t, ws, "left"); got["was_member"] != true {
		t.Fatalf("left = %v", got)
	}
	if _, ok := o.Rooms.Get("R"); ok {
		t.Fatal("room should be collected after the only member left")
	}
	send(t, ws, map[string]any{"event": "ping"})
	expect(t, ws, "pong")
}

func TestFeedPause(t *testing.T) {
	srv, _ := newServer(t)
	kid := dial(t, srv)
	parent := dial(t, srv)
	joinAs(t, kid, "R", "child")
	joinAs(t, parent, "R", "guardian")

	send(t, parent, map[string]any{"event": "feed", "enabled": false})
	if got := expect(t, parent, "feed"); got["applied"] != true {
		t.Fatalf("feed = %v", got)
	}
	send(t, kid, map[string]any{"event": "kid_stream_frame", "image": "data:x"})
	// The child's pong proves its frame was handled.
	send(t, kid, map[string]any{"event": "ping"})
	expect(t, kid, "pong")

	_ = parent.SetReadDeadline(time.Now().Add(300 * time.Millisecond))
	for {
		var msg map[string]any
		if err := parent.ReadJSON(&msg); err != nil {
			return // timed out with no frame
		}
		if msg["event"] == "live_frame_update" {
			t.Fatal("paused guardian received a frame")
		}
	}
}

func TestOversizedBinaryClosesSender(t *testing.T) {
	srv, o := newServerWith(t, Options{ReadLimit: 4096})
	kid := dial(t, srv)
	parent := dial(t, srv)
	joinAs(t, kid, "BIG", "child")
	joinAs(t, parent, "BIG", "guardian")
	expect(t, parent, "status_change")

	big := append(append([]byte(nil), jpegBytes...), make([]byte, 8192)...)
	bin, err := codec.EncodeBinary(codec.BinaryMessage{Event: "snapshot_upload", Image: big})
	if err != nil {
		t.Fatalf("EncodeBinary: %v", err)
	}
	if err := kid.WriteMessage(websocket.BinaryMessage, bin); err != nil {
		t.Fatalf("write binary: %v", err)
	}

	// The read limit closes the sender before anything is decoded, so the
	// guardian sees the child go offline and never a snapshot.
	_ = parent.SetReadDeadline(time.Now().Add(3 * time.Second))
	for {
		var msg map[string]any
		if err := parent.ReadJSON(&msg); err != nil {
			t.Fatalf("waiting for presence: %v", err)
		}
		switch msg["event"] {
		case "new_snapshot":
			t.Fatalf("oversized snapshot was relayed: %v", msg)
		case "status_change":
			if msg["online"] != false {
				t.Fatalf("presence after oversized message = %v", msg)
			}
			if n := o.Frames.Subscribers("BIG"); n != 1 {
				t.Fatalf("guardian subscription lost: %d", n)
			}
			return
		}
	}
}
