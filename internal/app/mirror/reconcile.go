package mirror

import (
	"math"
	"time"

	"github.com/dkeye/Guardian/internal/domain"
)

// DriftThreshold is the largest position gap a guardian tolerates before it
// seeks to the child's reported position.
const DriftThreshold = 3 * time.Second

// MirrorState is a guardian's local view of the child's player. The zero
// value means nothing is loaded yet.
type MirrorState struct {
	MediaID string
	// Position is the local position in seconds at AnchoredAt.
	Position   float64
	Playing    bool
	AnchoredAt time.Time
	LastSeen   time.Time
}

// PositionAt extrapolates the local position, advancing it while playing.
func (s *MirrorState) PositionAt(now time.Time) float64 {
	if !s.Playing || s.AnchoredAt.IsZero() {
		return s.Position
	}
	return s.Position + now.Sub(s.AnchoredAt).Seconds()
}

// Decision lists what the local player must do for one report.
type Decision struct {
	VideoChanged bool
	MediaID      string
	Play         bool
	Pause        bool
	Seek         bool
	SeekTo       float64
	Drift        float64
}

// Reconcile applies report to state and returns the actions that bring the
// local player in line with the child.
func Reconcile(state *MirrorState, report domain.StateReport, now time.Time) Decision {
	defer func() { state.LastSeen = now }()

	if state.MediaID == "" || state.MediaID != report.MediaID {
		*state = MirrorState{
			MediaID:    report.MediaID,
			Position:   report.CurrentTime,
			Playing:    report.IsPlaying,
			AnchoredAt: now,
		}
		return Decision{
			VideoChanged: true,
			MediaID:      report.MediaID,
			Play:         report.IsPlaying,
			SeekTo:       report.CurrentTime,
		}
	}

	d := Decision{MediaID: report.MediaID}
	switch {
	case report.IsPlaying && !state.Playing:
		d.Play = true
	case !report.IsPlaying && state.Playing:
		d.Pause = true
	}

	local := state.PositionAt(now)
	d.Drift = math.Abs(local - report.CurrentTime)
	if d.Drift > DriftThreshold.Seconds() {
		d.Seek = true
		d.SeekTo = report.CurrentTime
		local = report.CurrentTime
	}

	state.Position = local
	state.Playing = report.IsPlaying
	state.AnchoredAt = now
	return d
}
