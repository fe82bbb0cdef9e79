// Package archive persists high-resolution snapshots and announces them to
// the guardians of the room. Unlike live frames, snapshots are never dropped.
package archive

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/dkeye/Guardian/internal/core"
	"github.com/dkeye/Guardian/internal/domain"
	"github.com/rs/zerolog/log"
)

var ErrNoImage = errors.New("snapshot carries no image")

const OutboundEvent = "new_snapshot"

// Store persists one snapshot and returns the URL it is served under.
type Store interface {
	Put(ctx context.Context, snap domain.Snapshot) (url string, err error)
}

type wireSnapshot struct {
	Event string `json:"event"`
	domain.Snapshot
	ChildID string `json:"childId"`
}

type Archiver struct {
	rooms core.RoomManager
	store Store
}

func NewArchiver(rooms core.RoomManager, store Store) *Archiver {
	return &Archiver{rooms: rooms, store: store}
}

// Archive stores image and broadcasts it to every guardian of room. Nothing
// is broadcast when the store fails.
func (a *Archiver) Archive(ctx context.Context, room domain.RoomID, childID, image string, capturedAt time.Time) (domain.Snapshot, core.PublishResult, error) {
	if image == "" {
		return domain.Snapshot{}, core.PublishResult{}, ErrNoImage
	}
	if childID == "" {
		childID = string(room)
	}
	if capturedAt.IsZero() {
		capturedAt = time.Now()
	}
	snap := domain.Snapshot{
		Room:       room,
		ChildID:    childID,
		Image:      image,
		CapturedAt: capturedAt.UTC(),
	}

	logger := log.With().Str("module", "archive").Str("room", string(room)).Logger()

	url, err := a.store.Put(ctx, snap)
	if err != nil {
		logger.Error().Err(err).Msg("snapshot not stored")
		return snap, core.PublishResult{}, fmt.Errorf("archive %s: %w", room, err)
	}
	snap.URL = url

	data, err := json.Marshal(wireSnapshot{Event: OutboundEvent, Snapshot: snap, ChildID: snap.ChildID})
	if err != nil {
		return snap, core.PublishResult{}, fmt.Errorf("encode snapshot: %w", err)
	}

	var res core.PublishResult
	if r, ok := a.rooms.Get(room); ok {
		res = r.Broadcast("", domain.RoleGuardian, core.Message(data))
	}
	logger.Info().Str("url", url).Int("sent_to", res.SendTo).Msg("snapshot archived")
	return snap, res, nil
}
