package domain

import "time"

// Frame is one lossy camera image. Image is a data URI.
type Frame struct {
	Room      RoomID    `json:"room"`
	ChildID   string    `json:"kid_id"`
	Image     string    `json:"image"`
	Timestamp time.Time `json:"-"`
}

// Snapshot is a durable, high-resolution capture.
type Snapshot struct {
	Room       RoomID    `json:"room"`
	ChildID    string    `json:"kid_id"`
	Image      string    `json:"image"`
	URL        string    `json:"url"`
	CapturedAt time.Time `json:"captured_at"`
}

// PresenceEvent is derived from child membership, never stored on its own.
type PresenceEvent struct {
	Room    RoomID `json:"room"`
	ChildID string `json:"kid_id"`
	Online  bool   `json:"online"`
}

// LogLine is a diagnostic line piped from a browser console.
type LogLine struct {
	Level   string `json:"level"`
	Source  string `json:"source"`
	Message string `json:"message"`
}
