package orch

import (
	"context"
	"time"

	"github.com/dkeye/Guardian/internal/app/frames"
	"github.com/dkeye/Guardian/internal/core"
	"github.com/dkeye/Guardian/internal/domain"
)

func (o *Orchestrator) session(sid core.SessionID) (core.MemberSession, error) {
	if _, _, _, ok := o.Registry.Connection(sid); !ok {
		return nil, ErrUnknownSession
	}
	ms, ok := o.Registry.GetSession(sid)
	if !ok {
		return nil, ErrNotInRoom
	}
	return ms, nil
}

// OnCommand routes a guardian command to the child of its room.
func (o *Orchestrator) OnCommand(sid core.SessionID, raw map[string]any) error {
	ms, err := o.session(sid)
	if err != nil {
		return err
	}
	res, err := o.Commands.Route(ms, raw)
	if err != nil {
		return err
	}
	o.handleDropped(res.Command.Room, res.Publish)
	return nil
}

// OnStateReport mirrors a child's playback state to the guardians.
func (o *Orchestrator) OnStateReport(sid core.SessionID, report domain.StateReport) error {
	ms, err := o.session(sid)
	if err != nil {
		return err
	}
	res, err := o.Mirror.Ingest(ms, report)
	if err != nil {
		return err
	}
	o.handleDropped(ms.Meta().Room, res)
	return nil
}

// OnFrame relays a live frame. Frames never trigger backpressure.
func (o *Orchestrator) OnFrame(sid core.SessionID, frame domain.Frame) (frames.Stats, error) {
	ms, err := o.session(sid)
	if err != nil {
		return frames.Stats{}, err
	}
	return o.Frames.Ingest(ms, frame)
}

// OnSnapshot archives a snapshot for rawRoom, defaulting to the sender's
// room.
func (o *Orchestrator) OnSnapshot(ctx context.Context, sid core.SessionID, rawRoom, childID, image string) (domain.Snapshot, error) {
	ms, err := o.session(sid)
	if err != nil {
		return domain.Snapshot{}, err
	}
	room := domain.NormalizeRoomID(rawRoom, ms.Meta().Room)
	snap, res, err := o.Archive.Archive(ctx, room, childID, image, time.Now())
	if err != nil {
		return snap, err
	}
	o.handleDropped(room, res)
	return snap, nil
}

// OnRemoteLog records a console line. It works before a join too.
func (o *Orchestrator) OnRemoteLog(sid core.SessionID, line domain.LogLine) {
	var meta *domain.Member
	if ms, ok := o.Registry.GetSession(sid); ok {
		meta = ms.Meta()
	}
	o.Logs.Record(meta, line)
}

// SetFeed pauses or resumes the live frames of a guardian.
func (o *Orchestrator) SetFeed(sid core.SessionID, enabled bool) (bool, error) {
	ms, err := o.session(sid)
	if err != nil {
		return false, err
	}
	if !ms.Meta().IsGuardian() {
		return false, nil
	}
	return o.Frames.SetMuted(ms.Meta().Room, sid, !enabled), nil
}

// Whoami returns the member of sid, nil before a join.
func (o *Orchestrator) Whoami(sid core.SessionID) *domain.Member {
	if ms, ok := o.Registry.GetSession(sid); ok {
		m := *ms.Meta()
		return &m
	}
	return nil
}
