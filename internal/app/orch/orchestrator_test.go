package orch

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/dkeye/Guardian/internal/app"
	"github.com/dkeye/Guardian/internal/app/archive"
	"github.com/dkeye/Guardian/internal/app/command"
	"github.com/dkeye/Guardian/internal/app/frames"
	"github.com/dkeye/Guardian/internal/app/logsink"
	"github.com/dkeye/Guardian/internal/app/mirror"
	"github.com/dkeye/Guardian/internal/core"
	"github.com/dkeye/Guardian/internal/domain"
)

var errFull = errors.New("queue full")

type fakeConn struct {
	mu     sync.Mutex
	sent   []map[string]any
	full   bool
	closed bool
}

func (c *fakeConn) TrySend(m core.Message) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.full {
		return errFull
	}
	var v map[string]any
	if err := json.Unmarshal(m, &v); err != nil {
		return err
	}
	c.sent = append(c.sent, v)
	return nil
}

func (c *fakeConn) Close() {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
}

func (c *fakeConn) events(name string) []map[string]any {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []map[string]any
	for _, m := range c.sent {
		if m["event"] == name {
			out = append(out, m)
		}
	}
	return out
}

func (c *fakeConn) lastEvent(t *testing.T, name string) map[string]any {
	t.Helper()
	evs := c.events(name)
	if len(evs) == 0 {
		t.Fatalf("no %s event received", name)
	}
	return evs[len(evs)-1]
}

type fakeDevices struct {
	mu     sync.Mutex
	status map[string]bool
}

func (d *fakeDevices) SetDeviceStatus(_ context.Context, room string, online bool, _ time.Time) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.status[room] = online
	return nil
}

func (d *fakeDevices) online(room string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.status[room]
}

type memStore struct{ n int }

func (s *memStore) Put(context.Context, domain.Snapshot) (string, error) {
	s.n++
	return "/vault/snap.jpg", nil
}

type harness struct {
	o        *Orchestrator
	devices  *fakeDevices
	canceled map[core.SessionID]int
	mu       sync.Mutex
}

func newHarness(policy app.Policy) *harness {
	rooms := core.NewRoomManager()
	h := &harness{
		devices:  &fakeDevices{status: map[string]bool{}},
		canceled: map[core.SessionID]int{},
	}
	h.o = &Orchestrator{
		Registry: app.NewRegistry(),
		Rooms:    rooms,
		Policy:   policy,
		Frames:   frames.NewManager(),
		Mirror:   mirror.New(rooms),
		Commands: command.NewRouter(rooms),
		Archive:  archive.NewArchiver(rooms, &memStore{}),
		Logs:     logsink.New(nil),
		Devices:  h.devices,
		Fallback: "8660AC2E",
	}
	return h
}

func (h *harness) connect(sid string) *fakeConn {
	conn := &fakeConn{}
	id := core.SessionID(sid)
	h.o.Registry.BindSignal(id, conn, core.NewFrameSlot(), "client-"+sid, func() {
		h.mu.Lock()
		h.canceled[id]++
		h.mu.Unlock()
	})
	return conn
}

func (h *harness) join(t *testing.T, sid, room string, role domain.Role) *fakeConn {
	t.Helper()
	conn := h.connect(sid)
	if _, err := h.o.Join(core.SessionID(sid), room, role); err != nil {
		t.Fatalf("Join %s: %v", sid, err)
	}
	h.o.Welcome(core.SessionID(sid))
	return conn
}

func (h *harness) cancels(sid string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.canceled[core.SessionID(sid)]
}

func TestChildPresence(t *testing.T) {
	h := newHarness(app.DropPolicy{})
	g := h.join(t, "g", "R", domain.RoleGuardian)
	if got := g.lastEvent(t, "status_change"); got["online"] != false {
		t.Fatalf("initial presence = %v, want offline", got)
	}

	h.join(t, "kid", "R", domain.RoleChild)
	got := g.lastEvent(t, "status_change")
	if got["online"] != true || got["kid_id"] != "R" || got["childId"] != "R" {
		t.Fatalf("presence after child join = %v", got)
	}
	if !h.devices.online("R") {
		t.Fatal("device should be stored online")
	}

	h.o.OnDisconnect("kid")
	if got := g.lastEvent(t, "status_change"); got["online"] != false {
		t.Fatalf("presence after child left = %v", got)
	}
	if h.devices.online("R") {
		t.Fatal("device should be stored offline")
	}
}

func TestLateGuardianGetsLatestState(t *testing.T) {
	h := newHarness(app.DropPolicy{})
	h.join(t, "kid", "R", domain.RoleChild)
	if err := h.o.OnStateReport("kid", domain.StateReport{MediaID: "abc", CurrentTime: 42}); err != nil {
		t.Fatalf("OnStateReport: %v", err)
	}

	g := h.join(t, "g", "R", domain.RoleGuardian)
	if got := g.lastEvent(t, "status_change"); got["online"] != true {
		t.Fatalf("presence = %v, want online", got)
	}
	if got := g.lastEvent(t, "state_report"); got["videoId"] != "abc" || got["currentTime"] != 42.0 {
		t.Fatalf("state = %v", got)
	}
}

func TestEmptyRoomFallsBack(t *testing.T) {
	h := newHarness(app.DropPolicy{})
	h.connect("g")
	room, err := h.o.Join("g", "   ", domain.RoleGuardian)
	if err != nil {
		t.Fatalf("Join: %v", err)
	}
	if room.Room().ID != "8660AC2E" {
		t.Fatalf("room = %q, want fallback", room.Room().ID)
	}
}

func TestJoinUnknownSession(t *testing.T) {
	h := newHarness(app.DropPolicy{})
	if _, err := h.o.Join("ghost", "R", domain.RoleChild); !errors.Is(err, ErrUnknownSession) {
		t.Fatalf("err = %v, want ErrUnknownSession", err)
	}
}

func TestRejoinMovesRoom(t *testing.T) {
	h := newHarness(app.DropPolicy{})
	h.join(t, "g", "A", domain.RoleGuardian)
	if _, err := h.o.Join("g", "B", domain.RoleGuardian); err != nil {
		t.Fatalf("Join B: %v", err)
	}
	if _, ok := h.o.Rooms.Get("A"); ok {
		t.Fatal("room A should be collected")
	}
	b, ok := h.o.Rooms.Get("B")
	if !ok || b.MemberCount() != 1 {
		t.Fatal("guardian should sit in B only")
	}
	if h.o.Frames.Subscribers("A") != 0 || h.o.Frames.Subscribers("B") != 1 {
		t.Fatal("frame subscription should follow the guardian")
	}
}

func TestCommandReachesChild(t *testing.T) {
	h := newHarness(app.DropPolicy{})
	kid := h.join(t, "kid", "R", domain.RoleChild)
	h.join(t, "g", "R", domain.RoleGuardian)

	if err := h.o.OnCommand("g", map[string]any{"command": "play"}); err != nil {
		t.Fatalf("OnCommand: %v", err)
	}
	if got := kid.lastEvent(t, "player_control"); got["command"] != "play" {
		t.Fatalf("forwarded = %v", got)
	}
}

func TestCommandBeforeJoin(t *testing.T) {
	h := newHarness(app.DropPolicy{})
	h.connect("g")
	if err := h.o.OnCommand("g", map[string]any{"command": "play"}); !errors.Is(err, ErrNotInRoom) {
		t.Fatalf("err = %v, want ErrNotInRoom", err)
	}
}

func TestKickPolicyDisconnectsSlowGuardian(t *testing.T) {
	h := newHarness(app.KickPolicy{})
	h.join(t, "kid", "R", domain.RoleChild)
	slow := h.join(t, "g", "R", domain.RoleGuardian)
	slow.mu.Lock()
	slow.full = true
	slow.mu.Unlock()

	if err := h.o.OnStateReport("kid", domain.StateReport{MediaID: "abc"}); err != nil {
		t.Fatalf("OnStateReport: %v", err)
	}
	if h.cancels("g") != 1 {
		t.Fatalf("guardian canceled %d times, want 1", h.cancels("g"))
	}
}

func TestDropPolicyKeepsSlowGuardian(t *testing.T) {
	h := newHarness(app.DropPolicy{})
	h.join(t, "kid", "R", domain.RoleChild)
	slow := h.join(t, "g", "R", domain.RoleGuardian)
	slow.mu.Lock()
	slow.full = true
	slow.mu.Unlock()

	if err := h.o.OnStateReport("kid", domain.StateReport{MediaID: "abc"}); err != nil {
		t.Fatalf("OnStateReport: %v", err)
	}
	if h.cancels("g") != 0 {
		t.Fatal("drop policy must not disconnect")
	}
}

func TestFramesAndFeed(t *testing.T) {
	h := newHarness(app.DropPolicy{})
	h.join(t, "kid", "R", domain.RoleChild)
	h.join(t, "g", "R", domain.RoleGuardian)

	st, err := h.o.OnFrame("kid", domain.Frame{Image: "data:x"})
	if err != nil || st.Delivered != 1 {
		t.Fatalf("stats=%+v err=%v", st, err)
	}

	ok, err := h.o.SetFeed("g", false)
	if err != nil || !ok {
		t.Fatalf("SetFeed: %v %v", ok, err)
	}
	st, _ = h.o.OnFrame("kid", domain.Frame{Image: "data:y"})
	if st.Delivered != 0 || st.Muted != 1 {
		t.Fatalf("stats after pausing = %+v", st)
	}
}

func TestSnapshotBroadcast(t *testing.T) {
	h := newHarness(app.DropPolicy{})
	h.join(t, "kid", "R", domain.RoleChild)
	g := h.join(t, "g", "R", domain.RoleGuardian)

	snap, err := h.o.OnSnapshot(context.Background(), "kid", "", "", "data:x")
	if err != nil {
		t.Fatalf("OnSnapshot: %v", err)
	}
	if snap.Room != "R" {
		t.Fatalf("room = %q, want the sender's", snap.Room)
	}
	if got := g.lastEvent(t, "new_snapshot"); got["url"] != "/vault/snap.jpg" {
		t.Fatalf("snapshot event = %v", got)
	}
}

func TestEvictRoom(t *testing.T) {
	h := newHarness(app.DropPolicy{})
	h.join(t, "kid", "R", domain.RoleChild)
	h.join(t, "g", "R", domain.RoleGuardian)

	if n := h.o.EvictRoom("R"); n != 2 {
		t.Fatalf("evicted %d, want 2", n)
	}
	if h.cancels("kid") != 1 || h.cancels("g") != 1 {
		t.Fatal("every member should be disconnected")
	}
	if _, ok := h.o.Rooms.Get("R"); ok {
		t.Fatal("room should be gone")
	}
	if h.devices.online("R") {
		t.Fatal("device should be offline")
	}
	// The transports report their disconnect afterwards.
	h.o.OnDisconnect("kid")
	h.o.OnDisconnect("g")
	if h.o.Registry.Count() != 0 {
		t.Fatalf("registry holds %d connections", h.o.Registry.Count())
	}
}

func TestWhoami(t *testing.T) {
	h := newHarness(app.DropPolicy{})
	h.connect("g")
	if h.o.Whoami("g") != nil {
		t.Fatal("no member before join")
	}
	h.o.Join("g", "R", domain.RoleGuardian)
	m := h.o.Whoami("g")
	if m == nil || m.Room != "R" || m.Client != "client-g" {
		t.Fatalf("Whoami = %+v", m)
	}
}
