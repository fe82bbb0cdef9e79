package app

import (
	"sync"

	"github.com/dkeye/Guardian/internal/core"
	"github.com/rs/zerolog/log"
)

// sessionEntry is one live transport connection. Session stays nil until
// the connection joins a room.
type sessionEntry struct {
	Conn    core.SignalConnection
	Slot    *core.FrameSlot
	Client  string
	Session core.MemberSession
	Cancel  func()
}

// Registry indexes connections by session id. Room membership itself lives
// in core.RoomManager; this only knows which room a connection sits in.
type Registry struct {
	mu       sync.RWMutex
	sessions map[core.SessionID]*sessionEntry
}

func NewRegistry() *Registry {
	return &Registry{
		sessions: make(map[core.SessionID]*sessionEntry),
	}
}

func (r *Registry) BindSignal(sid core.SessionID, conn core.SignalConnection, slot *core.FrameSlot, client string, cancel func()) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions[sid] = &sessionEntry{Conn: conn, Slot: slot, Client: client, Cancel: cancel}
	log.Info().Str("module", "app.registry").Str("sid", string(sid)).Str("client", client).Msg("bound signal")
}

// Connection returns the transport pieces needed to build a MemberSession.
func (r *Registry) Connection(sid core.SessionID) (core.SignalConnection, *core.FrameSlot, string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.sessions[sid]
	if !ok {
		return nil, nil, "", false
	}
	return e.Conn, e.Slot, e.Client, true
}

func (r *Registry) Attach(sid core.SessionID, sess core.MemberSession) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.sessions[sid]
	if !ok {
		return false
	}
	e.Session = sess
	log.Info().Str("module", "app.registry").Str("sid", string(sid)).Str("room", string(sess.Meta().Room)).Msg("attached session")
	return true
}

// Detach clears and returns the room session of sid, if any.
func (r *Registry) Detach(sid core.SessionID) (core.MemberSession, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.sessions[sid]
	if !ok || e.Session == nil {
		return nil, false
	}
	sess := e.Session
	e.Session = nil
	log.Info().Str("module", "app.registry").Str("sid", string(sid)).Msg("detached session")
	return sess, true
}

func (r *Registry) GetSession(sid core.SessionID) (core.MemberSession, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if e, ok := r.sessions[sid]; ok && e.Session != nil {
		return e.Session, true
	}
	return nil, false
}

func (r *Registry) Unbind(sid core.SessionID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.sessions, sid)
	log.Info().Str("module", "app.registry").Str("sid", string(sid)).Msg("unbind session")
}

func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

func (r *Registry) Cancel(sid core.SessionID) bool {
	r.mu.RLock()
	e, ok := r.sessions[sid]
	r.mu.RUnlock()
	if !ok {
		return false
	}
	if e.Cancel != nil {
		e.Cancel()
	}
	log.Info().Str("module", "app.registry").Str("sid", string(sid)).Msg("canceled session")
	return true
}
