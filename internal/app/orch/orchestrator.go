// Package orch wires the room registry to the relay components and owns the
// connection lifecycle: join, leave, disconnect, presence and backpressure.
package orch

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/dkeye/Guardian/internal/app"
	"github.com/dkeye/Guardian/internal/app/archive"
	"github.com/dkeye/Guardian/internal/app/command"
	"github.com/dkeye/Guardian/internal/app/frames"
	"github.com/dkeye/Guardian/internal/app/logsink"
	"github.com/dkeye/Guardian/internal/app/mirror"
	"github.com/dkeye/Guardian/internal/core"
	"github.com/dkeye/Guardian/internal/domain"
	"github.com/rs/zerolog/log"
)

var (
	ErrUnknownSession = errors.New("unknown session")
	ErrNotInRoom      = errors.New("session has not joined a room")
)

// DeviceCatalog persists child presence; *store.Store satisfies it.
type DeviceCatalog interface {
	SetDeviceStatus(ctx context.Context, room string, online bool, at time.Time) error
}

type Orchestrator struct {
	Registry *app.Registry
	Rooms    core.RoomManager
	Policy   app.Policy
	Frames   *frames.Manager
	Mirror   *mirror.Mirror
	Commands *command.Router
	Archive  *archive.Archiver
	Logs     *logsink.Sink
	// Devices may be nil, presence is then only broadcast.
	Devices  DeviceCatalog
	Fallback domain.RoomID
}

// handleDropped hands every member whose reliable queue overflowed to the
// backpressure policy.
func (o *Orchestrator) handleDropped(room domain.RoomID, res core.PublishResult) {
	if len(res.Dropped) == 0 {
		return
	}
	rs, _ := o.Rooms.Get(room)
	for _, slow := range res.Dropped {
		log.Warn().
			Str("module", "orch").
			Str("room", string(room)).
			Str("sid", string(slow.ID())).
			Msg("send queue full, message dropped")
		if o.Policy == nil {
			continue
		}
		switch o.Policy.OnBackPressure(rs, slow) {
		case app.KickMember:
			o.Kick(slow.ID())
		case app.NoAction:
		}
	}
}

func jsonMessage(v any) (core.Message, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return core.Message(data), nil
}

// sendTo encodes v and queues it for one connection.
func sendTo(conn core.SignalConnection, v any) error {
	data, err := jsonMessage(v)
	if err != nil {
		return err
	}
	return conn.TrySend(data)
}
