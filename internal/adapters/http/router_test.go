package http

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/dkeye/Guardian/internal/app"
	"github.com/dkeye/Guardian/internal/app/archive"
	"github.com/dkeye/Guardian/internal/app/command"
	"github.com/dkeye/Guardian/internal/app/frames"
	"github.com/dkeye/Guardian/internal/app/logsink"
	"github.com/dkeye/Guardian/internal/app/mirror"
	"github.com/dkeye/Guardian/internal/app/orch"
	"github.com/dkeye/Guardian/internal/config"
	"github.com/dkeye/Guardian/internal/core"
	"github.com/dkeye/Guardian/internal/domain"
	"github.com/dkeye/Guardian/internal/store"
	"github.com/gin-gonic/gin"
)

type nopConn struct{}

func (nopConn) TrySend(core.Message) error { return nil }
func (nopConn) Close()                     {}

func setup(t *testing.T) (*gin.Engine, *orch.Orchestrator, *store.Store) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	dir := t.TempDir()

	st, err := store.Open(filepath.Join(dir, "guardian.db"))
	if err != nil {
		t.Fatalf("store.Open: %v", err)
	}
	t.Cleanup(func() { st.Close() })

	vault, err := archive.NewVault(filepath.Join(dir, "vault"), st)
	if err != nil {
		t.Fatalf("NewVault: %v", err)
	}
	rooms := core.NewRoomManager()
	o := &orch.Orchestrator{
		Registry: app.NewRegistry(),
		Rooms:    rooms,
		Policy:   app.DropPolicy{},
		Frames:   frames.NewManager(),
		Mirror:   mirror.New(rooms),
		Commands: command.NewRouter(rooms),
		Archive:  archive.NewArchiver(rooms, vault),
		Logs:     logsink.New(nil),
		Devices:  st,
		Fallback: "8660AC2E",
	}
	cfg := &config.Config{
		Mode:       "test",
		StaticPath: dir,
		VaultDir:   filepath.Join(dir, "vault"),
		Secret:     "test-secret",
	}
	return SetupRouter(context.Background(), cfg, o, st), o, st
}

func connect(t *testing.T, o *orch.Orchestrator, sid string, room domain.RoomID, role domain.Role) {
	t.Helper()
	o.Registry.BindSignal(core.SessionID(sid), nopConn{}, core.NewFrameSlot(), "", func() {})
	if _, err := o.Join(core.SessionID(sid), string(room), role); err != nil {
		t.Fatalf("Join: %v", err)
	}
}

func do(t *testing.T, r http.Handler, method, path string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(method, path, nil))
	var body map[string]any
	if w.Body.Len() > 0 {
		if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
			t.Fatalf("%s %s: decode %q: %v", method, path, w.Body.String(), err)
		}
	}
	return w, body
}

func TestHealthSetsClientCookie(t *testing.T) {
	r, _, _ := setup(t)
	w, body := do(t, r, http.MethodGet, "/healthz")
	if w.Code != http.StatusOK || body["status"] != "ok" {
		t.Fatalf("healthz = %d %v", w.Code, body)
	}
	if len(w.Result().Cookies()) == 0 {
		t.Fatal("session cookie should be set")
	}
}

func TestRoomEndpoints(t *testing.T) {
	r, o, _ := setup(t)
	connect(t, o, "kid", "R", domain.RoleChild)
	connect(t, o, "g", "R", domain.RoleGuardian)

	w, body := do(t, r, http.MethodGet, "/api/rooms")
	if w.Code != http.StatusOK {
		t.Fatalf("rooms = %d", w.Code)
	}
	if rooms := body["rooms"].([]any); len(rooms) != 1 {
		t.Fatalf("rooms = %v", rooms)
	}

	w, body = do(t, r, http.MethodGet, "/api/rooms/R")
	if w.Code != http.StatusOK || body["child_count"] != 1.0 || body["guardian_count"] != 1.0 {
		t.Fatalf("room = %d %v", w.Code, body)
	}

	if w, _ := do(t, r, http.MethodGet, "/api/rooms/R/state"); w.Code != http.StatusNotFound {
		t.Fatalf("state before report = %d, want 404", w.Code)
	}
	if err := o.OnStateReport("kid", domain.StateReport{MediaID: "abc", CurrentTime: 7}); err != nil {
		t.Fatalf("OnStateReport: %v", err)
	}
	w, body = do(t, r, http.MethodGet, "/api/rooms/R/state")
	if w.Code != http.StatusOK || body["videoId"] != "abc" {
		t.Fatalf("state = %d %v", w.Code, body)
	}

	if w, _ := do(t, r, http.MethodGet, "/api/rooms/NOPE"); w.Code != http.StatusNotFound {
		t.Fatalf("unknown room = %d, want 404", w.Code)
	}

	w, body = do(t, r, http.MethodDelete, "/api/rooms/R")
	if w.Code != http.StatusOK || body["evicted"] != 2.0 {
		t.Fatalf("evict = %d %v", w.Code, body)
	}
}

func TestKickMember(t *testing.T) {
	r, o, _ := setup(t)
	kicked := false
	o.Registry.BindSignal("g", nopConn{}, core.NewFrameSlot(), "", func() { kicked = true })
	if _, err := o.Join("g", "R", domain.RoleGuardian); err != nil {
		t.Fatalf("Join: %v", err)
	}

	if w, _ := do(t, r, http.MethodDelete, "/api/rooms/OTHER/members/g"); w.Code != http.StatusNotFound {
		t.Fatalf("kick in wrong room = %d, want 404", w.Code)
	}
	if w, _ := do(t, r, http.MethodDelete, "/api/rooms/R/members/g"); w.Code != http.StatusNoContent {
		t.Fatalf("kick = %d, want 204", w.Code)
	}
	if !kicked {
		t.Fatal("member should have been disconnected")
	}
}

func TestCatalogEndpoints(t *testing.T) {
	r, o, st := setup(t)
	connect(t, o, "kid", "R", domain.RoleChild)

	w, body := do(t, r, http.MethodGet, "/api/devices")
	if w.Code != http.StatusOK {
		t.Fatalf("devices = %d", w.Code)
	}
	devices := body["devices"].([]any)
	if len(devices) != 1 || devices[0].(map[string]any)["status"] != store.StatusOnline {
		t.Fatalf("devices = %v", devices)
	}

	_, err := st.AddSnapshot(context.Background(), store.SnapshotRecord{
		Room: "R", ChildID: "R", File: "SNAP_R_1.jpg", MIME: "image/jpeg", CapturedAt: time.Now(),
	})
	if err != nil {
		t.Fatalf("AddSnapshot: %v", err)
	}
	w, body = do(t, r, http.MethodGet, "/api/snapshots?room=R&limit=5")
	if w.Code != http.StatusOK || len(body["snapshots"].([]any)) != 1 {
		t.Fatalf("snapshots = %d %v", w.Code, body)
	}
	if w, _ := do(t, r, http.MethodGet, "/api/snapshots?limit=-1"); w.Code != http.StatusBadRequest {
		t.Fatalf("bad limit = %d, want 400", w.Code)
	}
}
