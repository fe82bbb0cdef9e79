package command

import (
	"encoding/json"
	"errors"
	"math"
	"strconv"
	"strings"

	"github.com/dkeye/Guardian/internal/domain"
)

var (
	ErrMissingKind    = errors.New("command kind missing")
	ErrUnknownCommand = errors.New("unknown command")
	ErrNoContent      = errors.New("no content identifier")
)

// Keys that belong to the envelope rather than the payload.
var envelopeKeys = map[string]struct{}{
	"event":   {},
	"room":    {},
	"command": {},
	"payload": {},
}

// contentKeys in priority order.
var contentKeys = []string{"videoId", "video_id", "playlistId", "list", "url"}

const defaultVolume = 100

// Normalize extracts the kind and a merged payload from a guardian message.
// Fields may arrive flattened at the top level or nested under "payload";
// exactly one level is de-nested and top-level values win.
func Normalize(raw map[string]any, fallback domain.RoomID) (domain.Command, error) {
	nested, _ := raw["payload"].(map[string]any)

	kind := stringOf(raw["command"])
	if kind == "" && nested != nil {
		kind = stringOf(nested["command"])
	}
	if kind == "" {
		return domain.Command{}, ErrMissingKind
	}

	payload := make(map[string]any, len(raw)+len(nested))
	for k, v := range nested {
		if k == "command" {
			continue
		}
		payload[k] = v
	}
	for k, v := range raw {
		if _, skip := envelopeKeys[k]; skip {
			continue
		}
		payload[k] = v
	}

	cmd := domain.Command{
		Kind:    domain.CommandKind(kind),
		Room:    domain.NormalizeRoomID(stringOf(raw["room"]), fallback),
		Payload: payload,
		Raw:     raw,
	}
	if !cmd.Kind.Known() {
		return cmd, ErrUnknownCommand
	}
	return cmd, nil
}

// ResolveVolume prefers level over volume, defaults to 100 and clamps to
// [0,100].
func ResolveVolume(payload map[string]any) float64 {
	v, ok := numberOf(payload["level"])
	if !ok {
		v, ok = numberOf(payload["volume"])
	}
	if !ok {
		v = defaultVolume
	}
	return math.Min(math.Max(v, 0), 100)
}

// ResolveSeconds returns the relative seek offset, 0 when absent.
func ResolveSeconds(payload map[string]any) float64 {
	v, _ := numberOf(payload["seconds"])
	return v
}

// ResolveContent returns the content id and whether it names a playlist.
func ResolveContent(payload map[string]any) (id string, playlist bool) {
	for _, k := range contentKeys {
		if s := stringOf(payload[k]); s != "" {
			id = s
			break
		}
	}
	playlist = stringOf(payload["type"]) == "playlist" ||
		stringOf(payload["media_type"]) == "playlist" ||
		stringOf(payload["playlistId"]) != ""
	return id, playlist
}

func stringOf(v any) string {
	switch t := v.(type) {
	case string:
		return strings.TrimSpace(t)
	case json.Number:
		return t.String()
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	default:
		return ""
	}
}

func numberOf(v any) (float64, bool) {
	switch t := v.(type) {
	case float64:
		return t, !math.IsNaN(t)
	case float32:
		return float64(t), true
	case int:
		return float64(t), true
	case int64:
		return float64(t), true
	case json.Number:
		f, err := t.Float64()
		return f, err == nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(t), 64)
		return f, err == nil && !math.IsNaN(f)
	default:
		return 0, false
	}
}
