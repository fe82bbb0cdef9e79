package core

import (
	"sync"

	"github.com/dkeye/Guardian/internal/domain"
	"github.com/rs/zerolog/log"
)

// roomImpl is a threadsafe in-memory room.
// It never closes adapter-owned resources.
type roomImpl struct {
	room  *domain.Room
	mu    sync.RWMutex
	bySID map[SessionID]MemberSession
	// closed is set once the last member leaves; a closed room is never
	// reused, joiners holding a stale pointer go back to the manager.
	closed bool
}

func newRoom(id domain.RoomID) *roomImpl {
	return &roomImpl{
		room:  &domain.Room{ID: id},
		bySID: make(map[SessionID]MemberSession),
	}
}

func (r *roomImpl) Room() *domain.Room { return r.room }

func (r *roomImpl) MemberCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.bySID)
}

func (r *roomImpl) Count(role domain.Role) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	n := 0
	for _, ms := range r.bySID {
		if role == AnyRole || ms.Meta().Role == role {
			n++
		}
	}
	return n
}

func (r *roomImpl) add(ms MemberSession) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return false
	}
	r.bySID[ms.ID()] = ms
	log.Info().
		Str("module", "core.room").
		Str("room", string(r.room.ID)).
		Str("sid", string(ms.ID())).
		Str("role", string(ms.Meta().Role)).
		Msg("member added")
	return true
}

// remove reports whether sid was present and whether the room is now empty.
func (r *roomImpl) remove(sid SessionID) (removed, empty bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.bySID[sid]; ok {
		delete(r.bySID, sid)
		removed = true
		log.Info().Str("module", "core.room").Str("room", string(r.room.ID)).Str("sid", string(sid)).Msg("member removed")
	}
	if len(r.bySID) == 0 {
		r.closed = true
	}
	return removed, r.closed
}

// drain empties and closes the room, returning its former members.
func (r *roomImpl) drain() []MemberSession {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]MemberSession, 0, len(r.bySID))
	for sid, ms := range r.bySID {
		out = append(out, ms)
		delete(r.bySID, sid)
	}
	r.closed = true
	return out
}

func (r *roomImpl) ListByRole(role domain.Role) []MemberSession {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]MemberSession, 0, len(r.bySID))
	for _, ms := range r.bySID {
		if role == AnyRole || ms.Meta().Role == role {
			out = append(out, ms)
		}
	}
	return out
}

// Broadcast holds the read lock for the whole fan-out so a join or leave
// cannot interleave with it. TrySend never blocks, so no I/O happens under
// the lock.
func (r *roomImpl) Broadcast(from SessionID, role domain.Role, data Message) PublishResult {
	r.mu.RLock()
	defer r.mu.RUnlock()
	res := PublishResult{}
	for sid, m := range r.bySID {
		if sid == from {
			continue
		}
		if role != AnyRole && m.Meta().Role != role {
			continue
		}
		if err := m.Signal().TrySend(data); err != nil {
			res.Dropped = append(res.Dropped, m)
			continue
		}
		res.SendTo++
	}
	log.Debug().
		Str("module", "core.room").
		Str("room", string(r.room.ID)).
		Str("from", string(from)).
		Str("role", string(role)).
		Int("sent_to", res.SendTo).
		Int("dropped", len(res.Dropped)).
		Msg("broadcast result")
	return res
}

func (r *roomImpl) MembersSnapshot() []MemberDTO {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]MemberDTO, 0, len(r.bySID))
	for sid, ms := range r.bySID {
		meta := ms.Meta()
		out = append(out, MemberDTO{ID: sid, Role: meta.Role, ConnectedAt: meta.ConnectedAt})
	}
	return out
}
