package core

import (
	"time"

	"github.com/dkeye/Guardian/internal/domain"
)

// AnyRole disables role filtering in Broadcast.
const AnyRole domain.Role = ""

// PublishResult reports delivery stats/backpressure to orchestrator.
type PublishResult struct {
	SendTo  int
	Dropped []MemberSession
}

// Merge folds other into r.
func (r *PublishResult) Merge(other PublishResult) {
	r.SendTo += other.SendTo
	r.Dropped = append(r.Dropped, other.Dropped...)
}

// MemberDTO is a read-only view for APIs (no transport fields).
type MemberDTO struct {
	ID          SessionID   `json:"id"`
	Role        domain.Role `json:"role"`
	ConnectedAt time.Time   `json:"connected_at"`
}

// RoomService is the core-facing API of a room.
// It owns the membership set but never touches transport resources.
type RoomService interface {
	Room() *domain.Room
	MemberCount() int
	Count(role domain.Role) int
	MembersSnapshot() []MemberDTO
	// ListByRole returns a point-in-time copy, safe to range over while
	// members come and go.
	ListByRole(role domain.Role) []MemberSession
	Broadcast(from SessionID, role domain.Role, data Message) PublishResult
}

type RoomInfo struct {
	ID        domain.RoomID `json:"room"`
	Members   int           `json:"member_count"`
	Children  int           `json:"child_count"`
	Guardians int           `json:"guardian_count"`
}

// RoomManager is the room registry: it owns the room -> members index.
type RoomManager interface {
	// Join inserts ms into the room named by its meta, creating the room
	// when absent.
	Join(ms MemberSession) RoomService
	// Leave removes sid from the room and drops the room once it is empty.
	// The returned room stays readable after removal.
	Leave(id domain.RoomID, sid SessionID) (RoomService, bool)
	Get(id domain.RoomID) (RoomService, bool)
	List() []RoomInfo
	// StopRoom forgets the room and returns whoever was still inside.
	StopRoom(id domain.RoomID) []MemberSession
}
