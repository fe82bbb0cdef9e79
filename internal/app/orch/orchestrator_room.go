package orch

import (
	"context"
	"time"

	"github.com/dkeye/Guardian/internal/core"
	"github.com/dkeye/Guardian/internal/domain"
	"github.com/rs/zerolog/log"
)

const (
	presenceEvent   = "status_change"
	catalogDeadline = 2 * time.Second
)

// presenceMessage names the child under both kid_id and childId.
type presenceMessage struct {
	Event string `json:"event"`
	domain.PresenceEvent
	ChildID string `json:"childId"`
}

func newPresenceMessage(ev domain.PresenceEvent) presenceMessage {
	return presenceMessage{Event: presenceEvent, PresenceEvent: ev, ChildID: ev.ChildID}
}

// Join places the connection sid in a room. A connection sits in at most
// one room, so joining again moves it.
func (o *Orchestrator) Join(sid core.SessionID, rawRoom string, role domain.Role) (core.RoomService, error) {
	conn, slot, client, ok := o.Registry.Connection(sid)
	if !ok {
		return nil, ErrUnknownSession
	}
	if prev, ok := o.Registry.GetSession(sid); ok {
		log.Info().Str("module", "orch").Str("sid", string(sid)).Str("from_room", string(prev.Meta().Room)).Msg("moving to another room")
		o.Leave(sid)
	}

	roomID := domain.NormalizeRoomID(rawRoom, o.Fallback)
	ms := core.NewMemberSession(domain.NewMember(string(sid), roomID, role, client), conn, slot)
	room := o.Rooms.Join(ms)
	o.Registry.Attach(sid, ms)

	log.Info().
		Str("module", "orch").
		Str("sid", string(sid)).
		Str("room", string(roomID)).
		Str("role", string(role)).
		Msg("joined room")

	switch role {
	case domain.RoleChild:
		o.setDeviceStatus(roomID, true)
	case domain.RoleGuardian:
		if o.Frames != nil {
			o.Frames.Subscribe(ms)
		}
	}
	o.announcePresence(room, sid)
	return room, nil
}

// Welcome gives a guardian that just joined the room's presence and the
// last playback state, so its dashboard does not wait for the next report.
// The transport calls it after acknowledging the join.
func (o *Orchestrator) Welcome(sid core.SessionID) {
	guardian, ok := o.Registry.GetSession(sid)
	if !ok || !guardian.Meta().IsGuardian() {
		return
	}
	roomID := guardian.Meta().Room
	room, ok := o.Rooms.Get(roomID)
	if !ok {
		return
	}
	conn := guardian.Signal()
	_ = sendTo(conn, newPresenceMessage(presenceOf(room)))
	if o.Mirror == nil {
		return
	}
	o.Mirror.Replay(guardian)
}

// Leave removes sid from its room. It reports whether sid was in one.
func (o *Orchestrator) Leave(sid core.SessionID) bool {
	ms, ok := o.Registry.Detach(sid)
	if !ok {
		return false
	}
	meta := ms.Meta()
	room, removed := o.Rooms.Leave(meta.Room, sid)
	if !removed {
		return false
	}
	if meta.IsGuardian() && o.Frames != nil {
		o.Frames.Unsubscribe(meta.Room, sid)
	}
	if meta.IsChild() && room.Count(domain.RoleChild) == 0 {
		o.setDeviceStatus(meta.Room, false)
	}

	if room.MemberCount() > 0 {
		o.announcePresence(room, sid)
	} else if _, reopened := o.Rooms.Get(meta.Room); !reopened && o.Mirror != nil {
		o.Mirror.Forget(meta.Room)
	}
	log.Info().Str("module", "orch").Str("sid", string(sid)).Str("room", string(meta.Room)).Msg("left room")
	return true
}

// OnDisconnect runs once the transport of sid is gone.
func (o *Orchestrator) OnDisconnect(sid core.SessionID) {
	o.Leave(sid)
	o.Registry.Unbind(sid)
}

// Kick closes the connection of sid; its transport then reports the
// disconnect.
func (o *Orchestrator) Kick(sid core.SessionID) bool {
	return o.Registry.Cancel(sid)
}

// EvictRoom disconnects everybody in room and returns how many were in it.
func (o *Orchestrator) EvictRoom(id domain.RoomID) int {
	members := o.Rooms.StopRoom(id)
	hadChild := false
	for _, ms := range members {
		if ms.Meta().IsChild() {
			hadChild = true
		}
		o.Registry.Detach(ms.ID())
		o.Registry.Cancel(ms.ID())
	}
	o.forgetRoom(id)
	if hadChild {
		o.setDeviceStatus(id, false)
	}
	log.Info().Str("module", "orch").Str("room", string(id)).Int("members", len(members)).Msg("room evicted")
	return len(members)
}

func (o *Orchestrator) forgetRoom(id domain.RoomID) {
	if o.Frames != nil {
		o.Frames.StopRoom(id)
	}
	if o.Mirror != nil {
		o.Mirror.Forget(id)
	}
}

func presenceOf(room core.RoomService) domain.PresenceEvent {
	id := room.Room().ID
	return domain.PresenceEvent{
		Room:    id,
		ChildID: string(id),
		Online:  room.Count(domain.RoleChild) > 0,
	}
}

// announcePresence tells the guardians of room whether a child is online.
func (o *Orchestrator) announcePresence(room core.RoomService, from core.SessionID) {
	data, err := encodePresence(presenceOf(room))
	if err != nil {
		log.Error().Str("module", "orch").Err(err).Msg("encode presence")
		return
	}
	res := room.Broadcast(from, domain.RoleGuardian, data)
	o.handleDropped(room.Room().ID, res)
}

func encodePresence(ev domain.PresenceEvent) (core.Message, error) {
	return jsonMessage(newPresenceMessage(ev))
}

func (o *Orchestrator) setDeviceStatus(room domain.RoomID, online bool) {
	if o.Devices == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), catalogDeadline)
	defer cancel()
	if err := o.Devices.SetDeviceStatus(ctx, string(room), online, time.Now()); err != nil {
		log.Error().Str("module", "orch").Str("room", string(room)).Bool("online", online).Err(err).Msg("device status not saved")
	}
}
