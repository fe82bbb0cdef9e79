package signal

import (
	"encoding/json"
	"errors"

	"github.com/dkeye/Guardian/internal/app/orch"
	"github.com/dkeye/Guardian/internal/core"
	"github.com/dkeye/Guardian/internal/domain"
	"github.com/rs/zerolog/log"
)

func (ctl *SignalWSController) handleJoin(
	sid core.SessionID,
	conn *WsSignalConn,
	data []byte,
) {
	type joinPayload struct {
		Room string `json:"room"`
		Role string `json:"role"`
	}
	var p joinPayload
	if err := json.Unmarshal(data, &p); err != nil {
		log.Warn().Err(err).Str("module", "signal").Str("sid", string(sid)).Msg("bad join payload")
		ctl.sendError(conn, "bad_payload")
		return
	}
	role, err := domain.ParseRole(p.Role)
	if err != nil {
		log.Warn().Str("module", "signal").Str("sid", string(sid)).Str("role", p.Role).Msg("bad role")
		ctl.sendError(conn, "bad_role")
		return
	}

	log.Info().Str("module", "signal").Str("sid", string(sid)).Str("room", p.Room).Str("role", string(role)).Msg("join")
	room, err := ctl.Orch.Join(sid, p.Room, role)
	if err != nil {
		log.Warn().Err(err).Str("module", "signal").Str("sid", string(sid)).Msg("join failed")
		ctl.sendError(conn, "join_failed")
		return
	}
	resp := struct {
		Event   string           `json:"event"`
		SID     core.SessionID   `json:"sid"`
		Room    domain.RoomID    `json:"room"`
		Role    domain.Role      `json:"role"`
		Members []core.MemberDTO `json:"members"`
		Count   int              `json:"count"`
	}{
		Event:   "joined",
		SID:     sid,
		Room:    room.Room().ID,
		Role:    role,
		Members: room.MembersSnapshot(),
		Count:   room.MemberCount(),
	}
	ctl.sendJSON(conn, resp)
	ctl.Orch.Welcome(sid)
}

// handleLeave leaves the current room; the connection stays open.
func (ctl *SignalWSController) handleLeave(
	sid core.SessionID,
	conn *WsSignalConn,
) {
	log.Info().Str("module", "signal").Str("sid", string(sid)).Msg("leave")
	ok := ctl.Orch.Leave(sid)
	ctl.sendJSON(conn, map[string]any{
		"event":      "left",
		"was_member": ok,
	})
}

// logRejected logs an inbound message the orchestrator refused. Refusals
// caused by the peer's behaviour are warnings; nothing is sent back.
func logRejected(sid core.SessionID, event string, err error) {
	ev := log.Warn()
	if errors.Is(err, orch.ErrNotInRoom) {
		ev = log.Info()
	}
	ev.Err(err).Str("module", "signal").Str("sid", string(sid)).Str("event", event).Msg("message dropped")
}
