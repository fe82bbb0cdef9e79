package signal

import (
	"encoding/json"

	"github.com/dkeye/Guardian/internal/core"
	"github.com/dkeye/Guardian/internal/domain"
	"github.com/rs/zerolog/log"
)

func (ctl *SignalWSController) handlePing(
	conn *WsSignalConn,
) {
	resp := struct {
		Event string `json:"event"`
	}{
		Event: "pong",
	}
	ctl.sendJSON(conn, resp)
}

func (ctl *SignalWSController) handleWhoAmI(
	sid core.SessionID,
	conn *WsSignalConn,
) {
	resp := struct {
		Event  string         `json:"event"`
		SID    core.SessionID `json:"sid"`
		Client string         `json:"client,omitempty"`
		Room   domain.RoomID  `json:"room,omitempty"`
		Role   domain.Role    `json:"role,omitempty"`
	}{
		Event: "whoami",
		SID:   sid,
	}
	if m := ctl.Orch.Whoami(sid); m != nil {
		resp.Client = m.Client
		resp.Room = m.Room
		resp.Role = m.Role
	} else if _, _, client, ok := ctl.Orch.Registry.Connection(sid); ok {
		resp.Client = client
	}
	ctl.sendJSON(conn, resp)
}

// handleFeed lets a guardian pause its live frames without leaving.
func (ctl *SignalWSController) handleFeed(
	sid core.SessionID,
	conn *WsSignalConn,
	data []byte,
) {
	var p struct {
		Enabled bool `json:"enabled"`
	}
	if err := json.Unmarshal(data, &p); err != nil {
		ctl.sendError(conn, "bad_payload")
		return
	}
	ok, err := ctl.Orch.SetFeed(sid, p.Enabled)
	if err != nil {
		logRejected(sid, "feed", err)
		return
	}
	log.Info().Str("module", "signal").Str("sid", string(sid)).Bool("enabled", p.Enabled).Bool("applied", ok).Msg("feed")
	ctl.sendJSON(conn, map[string]any{
		"event":   "feed",
		"enabled": p.Enabled,
		"applied": ok,
	})
}
