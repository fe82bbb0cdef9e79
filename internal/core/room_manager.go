package core

import (
	"sort"
	"sync"

	"github.com/dkeye/Guardian/internal/domain"
	"github.com/rs/zerolog/log"
)

// RoomManagerImpl only serialises lookups of the room map; membership
// changes take the per-room lock, so rooms never contend with each other.
type RoomManagerImpl struct {
	mu    sync.RWMutex
	rooms map[domain.RoomID]*roomImpl
}

func NewRoomManager() *RoomManagerImpl {
	return &RoomManagerImpl{rooms: make(map[domain.RoomID]*roomImpl)}
}

func (m *RoomManagerImpl) getOrCreate(id domain.RoomID) *roomImpl {
	m.mu.RLock()
	room, ok := m.rooms[id]
	m.mu.RUnlock()
	if ok {
		return room
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if room, ok = m.rooms[id]; ok {
		return room
	}
	room = newRoom(id)
	m.rooms[id] = room
	log.Info().Str("module", "core.rooms").Str("room", string(id)).Msg("room created")
	return room
}

// forget drops room from the index if it is still the current instance.
func (m *RoomManagerImpl) forget(room *roomImpl) {
	id := room.room.ID
	m.mu.Lock()
	defer m.mu.Unlock()
	if current, ok := m.rooms[id]; ok && current == room {
		delete(m.rooms, id)
		log.Info().Str("module", "core.rooms").Str("room", string(id)).Msg("room collected")
	}
}

func (m *RoomManagerImpl) Join(ms MemberSession) RoomService {
	id := ms.Meta().Room
	for {
		room := m.getOrCreate(id)
		if room.add(ms) {
			return room
		}
		// Emptied between lookup and insert.
		m.forget(room)
	}
}

func (m *RoomManagerImpl) Leave(id domain.RoomID, sid SessionID) (RoomService, bool) {
	m.mu.RLock()
	room, ok := m.rooms[id]
	m.mu.RUnlock()
	if !ok {
		return nil, false
	}
	removed, empty := room.remove(sid)
	if empty {
		m.forget(room)
	}
	return room, removed
}

func (m *RoomManagerImpl) Get(id domain.RoomID) (RoomService, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	room, ok := m.rooms[id]
	if !ok {
		return nil, false
	}
	return room, true
}

func (m *RoomManagerImpl) List() []RoomInfo {
	m.mu.RLock()
	rooms := make([]*roomImpl, 0, len(m.rooms))
	for _, r := range m.rooms {
		rooms = append(rooms, r)
	}
	m.mu.RUnlock()

	out := make([]RoomInfo, 0, len(rooms))
	for _, r := range rooms {
		out = append(out, RoomInfo{
			ID:        r.room.ID,
			Members:   r.MemberCount(),
			Children:  r.Count(domain.RoleChild),
			Guardians: r.Count(domain.RoleGuardian),
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (m *RoomManagerImpl) StopRoom(id domain.RoomID) []MemberSession {
	m.mu.Lock()
	room, ok := m.rooms[id]
	if ok {
		delete(m.rooms, id)
	}
	m.mu.Unlock()
	if !ok {
		return nil
	}
	log.Info().Str("module", "core.rooms").Str("room", string(id)).Msg("room stopped")
	return room.drain()
}
