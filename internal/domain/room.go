package domain

import "strings"

// RoomID is the opaque, case-sensitive room token shared by a child node
// and the guardians watching it.
type RoomID string

type Room struct {
	ID RoomID
}

// NormalizeRoomID trims the raw token and falls back when nothing is left.
func NormalizeRoomID(raw string, fallback RoomID) RoomID {
	id := strings.TrimSpace(raw)
	if id == "" {
		return fallback
	}
	return RoomID(id)
}
