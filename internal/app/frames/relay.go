package frames

import (
	"maps"
	"sync"

	"github.com/dkeye/Guardian/internal/core"
	"github.com/dkeye/Guardian/internal/domain"
	"github.com/rs/zerolog"
)

// Stats describes one frame fan-out.
type Stats struct {
	// Delivered counts slots the frame was offered to.
	Delivered int
	// Replaced counts slots where an undelivered frame was overwritten.
	Replaced int
	Muted    int
	Removed  int
}

// Relay fans the frames of one room out to its subscribed guardians.
type Relay struct {
	Room domain.RoomID

	mu       sync.RWMutex
	outSlots map[core.SessionID]*OutSlot
}

func NewRelay(room domain.RoomID) *Relay {
	return &Relay{
		Room:     room,
		outSlots: make(map[core.SessionID]*OutSlot),
	}
}

// forward offers msg to every subscriber. It never blocks: a guardian that
// has not consumed the previous frame simply loses it.
func (r *Relay) forward(msg core.Message, logger *zerolog.Logger) Stats {
	snapshot := make(map[core.SessionID]*OutSlot, len(r.outSlots))
	r.mu.RLock()
	maps.Copy(snapshot, r.outSlots)
	r.mu.RUnlock()

	var st Stats
	dirty := make([]core.SessionID, 0)
	for dstSID, out := range snapshot {
		state, replaced := out.offer(msg)
		switch state {
		case SlotStateDelete:
			dirty = append(dirty, dstSID)
		case SlotStateMuted:
			st.Muted++
		case SlotStateOk:
			if replaced {
				st.Replaced++
			}
			st.Delivered++
		}
	}

	// Cleanup is done outside the RLock.
	if len(dirty) > 0 {
		st.Removed = r.cleanupDeleted(dirty)
		logger.Debug().Int("removed", st.Removed).Msg("swept deleted slots")
	}
	return st
}

// cleanupDeleted only removes slots that are still marked for deletion; a
// guardian may have resubscribed in between.
func (r *Relay) cleanupDeleted(dirty []core.SessionID) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, sid := range dirty {
		if out, ok := r.outSlots[sid]; ok && out.GetState() == SlotStateDelete {
			delete(r.outSlots, sid)
			n++
		}
	}
	return n
}

func (r *Relay) markAllDelete() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, out := range r.outSlots {
		out.MarkDelete()
	}
}

func (r *Relay) AddOutSlot(dst core.SessionID, out *OutSlot) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.outSlots[dst] = out
}

func (r *Relay) outSlot(dst core.SessionID) (*OutSlot, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out, ok := r.outSlots[dst]
	return out, ok
}

// live counts subscribers not marked for deletion.
func (r *Relay) live() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	n := 0
	for _, out := range r.outSlots {
		if out.GetState() != SlotStateDelete {
			n++
		}
	}
	return n
}
