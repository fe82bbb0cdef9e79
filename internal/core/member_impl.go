package core

import "github.com/dkeye/Guardian/internal/domain"

// memberSession implements MemberSession by pairing meta + transport.
type memberSession struct {
	meta *domain.Member
	conn SignalConnection
	slot *FrameSlot
}

func NewMemberSession(meta *domain.Member, conn SignalConnection, slot *FrameSlot) MemberSession {
	return &memberSession{meta: meta, conn: conn, slot: slot}
}

func (m *memberSession) ID() SessionID            { return SessionID(m.meta.ID) }
func (m *memberSession) Meta() *domain.Member     { return m.meta }
func (m *memberSession) Signal() SignalConnection { return m.conn }
func (m *memberSession) Slot() *FrameSlot         { return m.slot }
