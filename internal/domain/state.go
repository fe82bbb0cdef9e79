package domain

import "strings"

// StateReport is the child's playback state at one instant.
type StateReport struct {
	Room        RoomID  `json:"room"`
	MediaID     string  `json:"videoId"`
	CurrentTime float64 `json:"currentTime"`
	Duration    float64 `json:"duration"`
	Volume      float64 `json:"volume"`
	IsPlaying   bool    `json:"isPlaying"`
	// Timestamp is the child's wall clock in unix milliseconds.
	Timestamp int64 `json:"timestamp"`
}

// HasMedia is false for absent ids and for the "undefined"/"null" strings a
// browser produces when it stringifies a missing value.
func (r StateReport) HasMedia() bool {
	switch strings.TrimSpace(r.MediaID) {
	case "", "undefined", "null":
		return false
	}
	return true
}
