package signal

import (
	"context"
	"encoding/json"
	"time"

	"github.com/dkeye/Guardian/internal/codec"
	"github.com/dkeye/Guardian/internal/core"
	"github.com/dkeye/Guardian/internal/domain"
	"github.com/rs/zerolog/log"
)

const snapshotDeadline = 10 * time.Second

func (ctl *SignalWSController) handleCommand(sid core.SessionID, data []byte) {
	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		log.Warn().Err(err).Str("module", "signal").Str("sid", string(sid)).Msg("bad command payload")
		return
	}
	delete(raw, "event")
	if err := ctl.Orch.OnCommand(sid, raw); err != nil {
		logRejected(sid, "parent_command", err)
	}
}

type stateReportPayload struct {
	Room        string  `json:"room"`
	VideoID     string  `json:"videoId"`
	MediaID     string  `json:"mediaId"`
	CurrentTime float64 `json:"currentTime"`
	Duration    float64 `json:"duration"`
	Volume      float64 `json:"volume"`
	IsPlaying   bool    `json:"isPlaying"`
	Timestamp   float64 `json:"timestamp"`
}

func (p stateReportPayload) report() domain.StateReport {
	media := p.VideoID
	if media == "" {
		media = p.MediaID
	}
	return domain.StateReport{
		Room:        domain.RoomID(p.Room),
		MediaID:     media,
		CurrentTime: p.CurrentTime,
		Duration:    p.Duration,
		Volume:      p.Volume,
		IsPlaying:   p.IsPlaying,
		Timestamp:   int64(p.Timestamp),
	}
}

func (ctl *SignalWSController) handleStateReport(sid core.SessionID, data []byte) {
	var p stateReportPayload
	if err := json.Unmarshal(data, &p); err != nil {
		log.Warn().Err(err).Str("module", "signal").Str("sid", string(sid)).Msg("bad state report")
		return
	}
	if err := ctl.Orch.OnStateReport(sid, p.report()); err != nil {
		logRejected(sid, "state_report", err)
	}
}

type imagePayload struct {
	Room    string `json:"room"`
	ChildID string `json:"childId"`
	KidID   string `json:"kid_id"`
	Image   string `json:"image"`
}

func (p imagePayload) child() string {
	if p.ChildID != "" {
		return p.ChildID
	}
	return p.KidID
}

func (ctl *SignalWSController) handleFrame(sid core.SessionID, data []byte) {
	var p imagePayload
	if err := json.Unmarshal(data, &p); err != nil {
		log.Warn().Err(err).Str("module", "signal").Str("sid", string(sid)).Msg("bad frame")
		return
	}
	ctl.relayFrame(sid, p.child(), p.Image)
}

func (ctl *SignalWSController) relayFrame(sid core.SessionID, childID, image string) {
	frame := domain.Frame{ChildID: childID, Image: image, Timestamp: time.Now()}
	if _, err := ctl.Orch.OnFrame(sid, frame); err != nil {
		logRejected(sid, "kid_stream_frame", err)
	}
}

func (ctl *SignalWSController) handleSnapshot(ctx context.Context, sid core.SessionID, event string, data []byte) {
	var p imagePayload
	if err := json.Unmarshal(data, &p); err != nil {
		log.Warn().Err(err).Str("module", "signal").Str("sid", string(sid)).Msg("bad snapshot")
		return
	}
	ctl.archive(ctx, sid, event, p.Room, p.child(), p.Image)
}

func (ctl *SignalWSController) archive(ctx context.Context, sid core.SessionID, event, room, childID, image string) {
	ctx, cancel := context.WithTimeout(ctx, snapshotDeadline)
	defer cancel()
	snap, err := ctl.Orch.OnSnapshot(ctx, sid, room, childID, image)
	if err != nil {
		logRejected(sid, event, err)
		return
	}
	log.Info().Str("module", "signal").Str("sid", string(sid)).Str("event", event).Str("url", snap.URL).Msg("snapshot stored")
}

func (ctl *SignalWSController) handleRemoteLog(sid core.SessionID, data []byte) {
	if !ctl.logRate.Allow(sid) {
		return
	}
	var line domain.LogLine
	if err := json.Unmarshal(data, &line); err != nil {
		log.Warn().Err(err).Str("module", "signal").Str("sid", string(sid)).Msg("bad remote log")
		return
	}
	ctl.Orch.OnRemoteLog(sid, line)
}

// handleBinary accepts frames and snapshots as CBOR with raw image bytes,
// which spares the child the base64 overhead.
func (ctl *SignalWSController) handleBinary(ctx context.Context, sid core.SessionID, c *WsSignalConn, data []byte) {
	msg, err := codec.DecodeBinary(data)
	if err != nil {
		log.Warn().Err(err).Str("module", "signal").Str("sid", string(sid)).Msg("bad binary message")
		return
	}
	if len(msg.Image) == 0 {
		log.Warn().Str("module", "signal").Str("sid", string(sid)).Str("event", msg.Event).Msg("binary message without image")
		return
	}
	image := codec.DataURI(msg.Image)
	switch msg.Event {
	case "kid_stream_frame":
		ctl.relayFrame(sid, msg.ChildID, image)
	case "snapshot_upload", "cry_alert", "new_snapshot":
		ctl.archive(ctx, sid, msg.Event, msg.Room, msg.ChildID, image)
	default:
		log.Warn().Str("module", "signal").Str("sid", string(sid)).Str("event", msg.Event).Msg("unknown binary event")
		ctl.sendError(c, "unknown_event")
	}
}
