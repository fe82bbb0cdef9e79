// Package frames relays lossy camera frames from a child to the guardians of
// its room. Each guardian holds a single pending frame; newer frames replace
// it and nothing is ever queued or replayed.
package frames

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/dkeye/Guardian/internal/core"
	"github.com/dkeye/Guardian/internal/domain"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

var (
	ErrNotChild = errors.New("frames are accepted from children only")
	ErrNoImage  = errors.New("frame carries no image")
)

const OutboundEvent = "live_frame_update"

// wireFrame carries the child id under both its legacy and its current name.
type wireFrame struct {
	Event string `json:"event"`
	domain.Frame
	ChildID string `json:"childId"`
}

type Manager struct {
	mu     sync.RWMutex
	relays map[domain.RoomID]*Relay

	// idle logs "no subscribers" at most a few times per interval; a child
	// streams at ~6 fps whether anyone watches or not.
	idle zerolog.Logger
}

func NewManager() *Manager {
	return &Manager{
		relays: make(map[domain.RoomID]*Relay),
		idle: log.Sample(&zerolog.BurstSampler{
			Burst:  1,
			Period: 30 * time.Second,
		}).With().Str("module", "frames").Logger(),
	}
}

// Subscribe attaches the guardian's frame slot to its room's relay. A
// repeated subscribe replaces the previous slot.
func (m *Manager) Subscribe(guardian core.MemberSession) *OutSlot {
	meta := guardian.Meta()
	slot := guardian.Slot()
	if slot == nil {
		return nil
	}
	m.mu.Lock()
	relay, ok := m.relays[meta.Room]
	if !ok {
		relay = NewRelay(meta.Room)
		m.relays[meta.Room] = relay
	}
	out := NewOutSlot(slot)
	relay.AddOutSlot(guardian.ID(), out)
	m.mu.Unlock()

	log.Info().
		Str("module", "frames").
		Str("room", string(meta.Room)).
		Str("sid", string(guardian.ID())).
		Msg("subscribed to frames")
	return out
}

// Unsubscribe marks the slot for deletion and drops the relay once nobody
// is left on it.
func (m *Manager) Unsubscribe(room domain.RoomID, sid core.SessionID) {
	m.mu.Lock()
	defer m.mu.Unlock()
	relay, ok := m.relays[room]
	if !ok {
		return
	}
	if out, ok := relay.outSlot(sid); ok {
		out.MarkDelete()
	}
	if relay.live() == 0 {
		delete(m.relays, room)
	}
}

// SetMuted pauses or resumes the live feed of one guardian.
func (m *Manager) SetMuted(room domain.RoomID, sid core.SessionID, muted bool) bool {
	m.mu.RLock()
	relay, ok := m.relays[room]
	m.mu.RUnlock()
	if !ok {
		return false
	}
	out, ok := relay.outSlot(sid)
	if !ok || out.GetState() == SlotStateDelete {
		return false
	}
	if muted {
		out.MarkMuted()
	} else {
		out.MarkOk()
	}
	return true
}

// Ingest encodes frame once and offers it to every guardian of the child's
// room. An empty frame room means the sender's.
func (m *Manager) Ingest(child core.MemberSession, frame domain.Frame) (Stats, error) {
	meta := child.Meta()
	if !meta.IsChild() {
		return Stats{}, ErrNotChild
	}
	if frame.Image == "" {
		return Stats{}, ErrNoImage
	}
	frame.Room = meta.Room
	if frame.ChildID == "" {
		frame.ChildID = string(meta.Room)
	}

	m.mu.RLock()
	relay, ok := m.relays[frame.Room]
	m.mu.RUnlock()
	if !ok {
		m.idle.Info().Str("room", string(frame.Room)).Msg("no subscribers")
		return Stats{}, nil
	}

	data, err := json.Marshal(wireFrame{Event: OutboundEvent, Frame: frame, ChildID: frame.ChildID})
	if err != nil {
		return Stats{}, fmt.Errorf("encode frame: %w", err)
	}
	logger := log.With().
		Str("module", "frames").
		Str("room", string(frame.Room)).
		Logger()
	return relay.forward(core.Message(data), &logger), nil
}

// StopRoom drops the room's relay and every slot on it.
func (m *Manager) StopRoom(room domain.RoomID) {
	m.mu.Lock()
	relay, ok := m.relays[room]
	if ok {
		delete(m.relays, room)
	}
	m.mu.Unlock()
	if !ok {
		return
	}
	relay.markAllDelete()
}

// Subscribers counts live slots of room.
func (m *Manager) Subscribers(room domain.RoomID) int {
	m.mu.RLock()
	relay, ok := m.relays[room]
	m.mu.RUnlock()
	if !ok {
		return 0
	}
	return relay.live()
}
