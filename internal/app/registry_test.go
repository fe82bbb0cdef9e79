package app

import (
	"testing"

	"github.com/dkeye/Guardian/internal/core"
	"github.com/dkeye/Guardian/internal/domain"
)

type nopConn struct{ closed bool }

func (c *nopConn) TrySend(core.Message) error { return nil }
func (c *nopConn) Close()                     { c.closed = true }

func TestRegistryLifecycle(t *testing.T) {
	r := NewRegistry()
	conn := &nopConn{}
	slot := core.NewFrameSlot()
	canceled := false

	r.BindSignal("s1", conn, slot, "tok", func() { canceled = true })
	if r.Count() != 1 {
		t.Fatalf("count = %d, want 1", r.Count())
	}
	if _, ok := r.GetSession("s1"); ok {
		t.Fatal("session attached before join")
	}

	gotConn, gotSlot, client, ok := r.Connection("s1")
	if !ok || gotConn != conn || gotSlot != slot || client != "tok" {
		t.Fatalf("Connection = %v %v %q %v", gotConn, gotSlot, client, ok)
	}

	sess := core.NewMemberSession(domain.NewMember("s1", "room", domain.RoleGuardian, "tok"), conn, slot)
	if !r.Attach("s1", sess) {
		t.Fatal("Attach failed for bound sid")
	}
	if got, ok := r.GetSession("s1"); !ok || got != sess {
		t.Fatal("GetSession did not return attached session")
	}

	if got, ok := r.Detach("s1"); !ok || got != sess {
		t.Fatal("Detach did not return attached session")
	}
	if _, ok := r.Detach("s1"); ok {
		t.Fatal("second Detach should report nothing")
	}

	if !r.Cancel("s1") || !canceled {
		t.Fatal("Cancel did not invoke cancel func")
	}

	r.Unbind("s1")
	if r.Count() != 0 {
		t.Fatalf("count after unbind = %d", r.Count())
	}
	if r.Attach("s1", sess) {
		t.Fatal("Attach succeeded for unbound sid")
	}
	if r.Cancel("s1") {
		t.Fatal("Cancel succeeded for unbound sid")
	}
}

func TestPolicyByName(t *testing.T) {
	cases := map[string]BackpressureAction{"": NoAction, "drop": NoAction, "kick": KickMember}
	for name, want := range cases {
		p, err := PolicyByName(name)
		if err != nil {
			t.Fatalf("PolicyByName(%q): %v", name, err)
		}
		if got := p.OnBackPressure(nil, nil); got != want {
			t.Errorf("%q: action = %v, want %v", name, got, want)
		}
	}
	if _, err := PolicyByName("bogus"); err == nil {
		t.Fatal("expected error for unknown policy")
	}
}
