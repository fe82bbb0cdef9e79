// Package mirror forwards a child's playback state to the guardians of its
// room and decides how a guardian's local player should catch up.
package mirror

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/dkeye/Guardian/internal/core"
	"github.com/dkeye/Guardian/internal/domain"
	"github.com/rs/zerolog/log"
)

var (
	ErrNotChild      = errors.New("state reports are accepted from children only")
	ErrRoomMismatch  = errors.New("report room does not match sender room")
	ErrSentinelMedia = errors.New("report carries no media id")
)

const OutboundEvent = "state_report"

// wireReport is what guardians receive. mediaId duplicates videoId for
// dashboards that read the newer name.
type wireReport struct {
	Event string `json:"event"`
	domain.StateReport
	MediaID string `json:"mediaId"`
}

// Mirror remembers the last report per room. mu covers remembering and
// fanning out a report as one step, so a Replay can never deliver a report
// older than one a guardian already got from Ingest.
type Mirror struct {
	rooms core.RoomManager

	mu     sync.Mutex
	latest map[domain.RoomID]domain.StateReport
}

func New(rooms core.RoomManager) *Mirror {
	return &Mirror{rooms: rooms, latest: make(map[domain.RoomID]domain.StateReport)}
}

// Ingest accepts a report from a child and forwards it unchanged to every
// guardian of the child's room. An empty report room means the sender's.
func (m *Mirror) Ingest(child core.MemberSession, report domain.StateReport) (core.PublishResult, error) {
	meta := child.Meta()
	if !meta.IsChild() {
		return core.PublishResult{}, ErrNotChild
	}
	if report.Room == "" {
		report.Room = meta.Room
	}
	if report.Room != meta.Room {
		return core.PublishResult{}, fmt.Errorf("%w: %s != %s", ErrRoomMismatch, report.Room, meta.Room)
	}
	if !report.HasMedia() {
		return core.PublishResult{}, ErrSentinelMedia
	}

	data, err := Encode(report)
	if err != nil {
		return core.PublishResult{}, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.latest[report.Room] = report
	room, ok := m.rooms.Get(report.Room)
	if !ok {
		return core.PublishResult{}, nil
	}
	res := room.Broadcast(child.ID(), domain.RoleGuardian, data)
	log.Debug().
		Str("module", "mirror").
		Str("room", string(report.Room)).
		Str("media", report.MediaID).
		Float64("position", report.CurrentTime).
		Int("sent_to", res.SendTo).
		Msg("state forwarded")
	return res, nil
}

// Latest returns the last report accepted for room.
func (m *Mirror) Latest(room domain.RoomID) (domain.StateReport, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.latest[room]
	return r, ok
}

// Replay sends the last report of the guardian's room to that guardian
// alone. A report Ingest forwards concurrently reaches the guardian either
// before the replay (and is the one replayed) or after it.
func (m *Mirror) Replay(guardian core.MemberSession) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	report, ok := m.latest[guardian.Meta().Room]
	if !ok {
		return false
	}
	data, err := Encode(report)
	if err != nil {
		return false
	}
	return guardian.Signal().TrySend(data) == nil
}

// Forget drops the remembered report, used once a room empties.
func (m *Mirror) Forget(room domain.RoomID) {
	m.mu.Lock()
	delete(m.latest, room)
	m.mu.Unlock()
}

// Encode renders report as the outbound state_report event.
func Encode(report domain.StateReport) (core.Message, error) {
	data, err := json.Marshal(wireReport{Event: OutboundEvent, StateReport: report, MediaID: report.MediaID})
	if err != nil {
		return nil, fmt.Errorf("encode state report: %w", err)
	}
	return data, nil
}
