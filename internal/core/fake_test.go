package core

import (
	"errors"
	"sync"

	"github.com/dkeye/Guardian/internal/domain"
)

var errFull = errors.New("full")

// fakeConn records what was sent; full makes every TrySend fail.
type fakeConn struct {
	mu     sync.Mutex
	sent   []Message
	full   bool
	closed bool
}

func (c *fakeConn) TrySend(m Message) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.full {
		return errFull
	}
	c.sent = append(c.sent, m)
	return nil
}

func (c *fakeConn) Close() {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
}

func (c *fakeConn) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.sent)
}

func newSession(id string, room domain.RoomID, role domain.Role) (MemberSession, *fakeConn) {
	conn := &fakeConn{}
	return NewMemberSession(domain.NewMember(id, room, role, ""), conn, NewFrameSlot()), conn
}
