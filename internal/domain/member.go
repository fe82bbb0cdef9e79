package domain

import (
	"errors"
	"strings"
	"time"
)

// Role decides which side of the routing table a member sits on.
type Role string

const (
	RoleChild    Role = "child"
	RoleGuardian Role = "guardian"
)

var ErrUnknownRole = errors.New("unknown role")

// ParseRole accepts the canonical names and the kid/parent aliases used by
// older portals. An empty role means guardian.
func ParseRole(raw string) (Role, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "child", "kid":
		return RoleChild, nil
	case "guardian", "parent", "":
		return RoleGuardian, nil
	default:
		return "", ErrUnknownRole
	}
}

// Member represents one connection's participation in a room.
// No transport or lifecycle logic here.
type Member struct {
	ID          string    `json:"id"`
	Room        RoomID    `json:"room"`
	Role        Role      `json:"role"`
	Client      string    `json:"client,omitempty"`
	ConnectedAt time.Time `json:"connected_at"`
}

// NewMember binds a connection id to a room and role. The id belongs to the
// transport connection, so a reconnect always arrives with a new one.
func NewMember(id string, room RoomID, role Role, client string) *Member {
	return &Member{
		ID:          id,
		Room:        room,
		Role:        role,
		Client:      client,
		ConnectedAt: time.Now().UTC(),
	}
}

func (m *Member) IsChild() bool    { return m.Role == RoleChild }
func (m *Member) IsGuardian() bool { return m.Role == RoleGuardian }
