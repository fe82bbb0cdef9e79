package core

import "github.com/dkeye/Guardian/internal/domain"

type SessionID string

// MemberSession binds domain.Member and its transport endpoint.
// This is what a room stores and fans out to.
type MemberSession interface {
	ID() SessionID
	Meta() *domain.Member
	Signal() SignalConnection
	// Slot is the lossy frame channel of the connection, nil when the
	// transport does not carry frames.
	Slot() *FrameSlot
}
