package signal

import (
	"context"
	"encoding/json"
	"time"

	"github.com/dkeye/Guardian/internal/core"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

func (ctl *SignalWSController) writePump(ctx context.Context, sid core.SessionID, c *WsSignalConn, slot *core.FrameSlot) {
	ticker := time.NewTicker(ctl.opts.PingPeriod)
	defer ticker.Stop()

	logger := log.With().Str("module", "signal").Str("sid", string(sid)).Logger()
	write := func(data []byte) bool {
		if err := c.conn.SetWriteDeadline(time.Now().Add(ctl.opts.WriteWait)); err != nil {
			logger.Error().Err(err).Msg("writePump set deadline")
			return false
		}
		if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
			logger.Error().Err(err).Msg("writePump write error")
			return false
		}
		return true
	}

	for {
		select {
		case <-ctx.Done():
			logger.Info().Msg("writePump ctx done")
			return
		case data, ok := <-c.send:
			if !ok {
				logger.Info().Msg("writePump channel closed")
				return
			}
			if !write(data) {
				c.Close()
				return
			}
		case frame := <-slot.C():
			if !write(frame) {
				c.Close()
				return
			}
		case <-ticker.C:
			deadline := time.Now().Add(ctl.opts.WriteWait)
			if err := c.conn.WriteControl(websocket.PingMessage, nil, deadline); err != nil {
				logger.Warn().Err(err).Msg("ping failed")
				c.Close()
				return
			}
		}
	}
}

func (ctl *SignalWSController) readPump(ctx context.Context, sid core.SessionID, c *WsSignalConn, kick func()) {
	defer func() {
		log.Info().Str("module", "signal").Str("sid", string(sid)).Msg("readPump closing")
		kick()
		ctl.Orch.OnDisconnect(sid)
		ctl.logRate.Forget(sid)
	}()

	_ = c.conn.SetReadDeadline(time.Now().Add(ctl.opts.PongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(ctl.opts.PongWait))
	})

	for {
		select {
		case <-ctx.Done():
			log.Info().Str("module", "signal").Str("sid", string(sid)).Msg("readPump ctx done")
			return
		default:
		}
		mt, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Warn().Err(err).Str("module", "signal").Str("sid", string(sid)).Msg("readPump read error")
			}
			return
		}
		// Any inbound traffic proves the peer is alive.
		_ = c.conn.SetReadDeadline(time.Now().Add(ctl.opts.PongWait))
		switch mt {
		case websocket.BinaryMessage:
			ctl.handleBinary(ctx, sid, c, data)
		case websocket.TextMessage:
			ctl.handleSignal(ctx, sid, c, data)
		}
	}
}

func (ctl *SignalWSController) handleSignal(ctx context.Context, sid core.SessionID, c *WsSignalConn, data []byte) {
	var env struct {
		Event string `json:"event"`
	}
	if err := json.Unmarshal(data, &env); err != nil {
		log.Warn().Err(err).Str("module", "signal").Str("sid", string(sid)).Msg("bad json")
		return
	}

	switch env.Event {
	case "join":
		ctl.handleJoin(sid, c, data)
	case "leave":
		ctl.handleLeave(sid, c)
	case "ping":
		ctl.handlePing(c)
	case "whoami":
		ctl.handleWhoAmI(sid, c)
	case "feed":
		ctl.handleFeed(sid, c, data)
	case "parent_command":
		ctl.handleCommand(sid, data)
	case "state_report":
		ctl.handleStateReport(sid, data)
	case "kid_stream_frame":
		ctl.handleFrame(sid, data)
	case "snapshot_upload", "cry_alert", "new_snapshot":
		ctl.handleSnapshot(ctx, sid, env.Event, data)
	case "remote_log":
		ctl.handleRemoteLog(sid, data)
	default:
		log.Warn().Str("module", "signal").Str("sid", string(sid)).Str("event", env.Event).Msg("unknown signal")
		ctl.sendError(c, "unknown_event")
	}
}

func (ctl *SignalWSController) sendJSON(c core.SignalConnection, v any) {
	b, err := json.Marshal(v)
	if err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("sendJSON marshal")
		return
	}
	_ = c.TrySend(b)
}

func (ctl *SignalWSController) sendError(c core.SignalConnection, code string) {
	ctl.sendJSON(c, map[string]any{
		"event": "error",
		"error": code,
	})
}
