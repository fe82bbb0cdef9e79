package frames

import (
	"sync"
	"sync/atomic"

	"github.com/dkeye/Guardian/internal/core"
)

type SlotState int32

const (
	SlotStateOk SlotState = iota
	SlotStateMuted
	SlotStateDelete
)

func (s SlotState) String() string {
	switch s {
	case SlotStateOk:
		return "ok"
	case SlotStateMuted:
		return "muted"
	default:
		return "delete"
	}
}

// OutSlot is one guardian's subscription to a room's frames. The
// connection's FrameSlot outlives it, so mu keeps a state change and an
// offer from interleaving: once MarkDelete returns, this relay can no
// longer put a frame into the slot.
type OutSlot struct {
	Slot *core.FrameSlot

	mu    sync.Mutex
	state atomic.Int32 // Zero by default (SlotStateOk)
}

func NewOutSlot(slot *core.FrameSlot) *OutSlot {
	return &OutSlot{Slot: slot}
}

func (s *OutSlot) GetState() SlotState {
	return SlotState(s.state.Load())
}

// offer hands msg to the slot if it is still Ok and returns the state it
// saw.
func (s *OutSlot) offer(msg core.Message) (state SlotState, replaced bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	state = s.GetState()
	if state == SlotStateOk {
		replaced = s.Slot.Offer(msg)
	}
	return state, replaced
}

func (s *OutSlot) MarkOk() {
	s.mu.Lock()
	s.state.Store(int32(SlotStateOk))
	s.mu.Unlock()
}

// MarkMuted also discards the pending frame so unmuting never shows a stale
// image.
func (s *OutSlot) MarkMuted() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.Store(int32(SlotStateMuted))
	s.Slot.Drain()
}

func (s *OutSlot) MarkDelete() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.Store(int32(SlotStateDelete))
	s.Slot.Drain()
}
