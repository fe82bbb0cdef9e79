// Package command routes guardian commands to the child node of a room.
// Routing is fire-and-forget: nothing waits for the child to act.
package command

import (
	"encoding/json"
	"errors"
	"fmt"
	"maps"

	"github.com/dkeye/Guardian/internal/core"
	"github.com/dkeye/Guardian/internal/domain"
	"github.com/rs/zerolog/log"
)

var ErrNotGuardian = errors.New("commands are accepted from guardians only")

// OutboundEvent is the event name the child portal listens on.
const OutboundEvent = "player_control"

type Result struct {
	Command   domain.Command
	Forwarded map[string]any
	// Delivered counts the children the command was queued for.
	Delivered int
	Publish   core.PublishResult
}

type Router struct {
	rooms core.RoomManager
}

func NewRouter(rooms core.RoomManager) *Router {
	return &Router{rooms: rooms}
}

// Route normalises raw and forwards it to every child of the command's room.
// A command without a room goes to the sender's room.
func (r *Router) Route(sender core.MemberSession, raw map[string]any) (Result, error) {
	meta := sender.Meta()
	if !meta.IsGuardian() {
		return Result{}, ErrNotGuardian
	}
	cmd, err := Normalize(raw, meta.Room)
	if err != nil {
		return Result{Command: cmd}, err
	}

	out, err := forwardShape(cmd)
	if err != nil {
		return Result{Command: cmd}, err
	}
	data, err := json.Marshal(out)
	if err != nil {
		return Result{Command: cmd}, fmt.Errorf("encode %s: %w", cmd.Kind, err)
	}

	res := Result{Command: cmd, Forwarded: out}
	room, ok := r.rooms.Get(cmd.Room)
	if ok {
		res.Publish = room.Broadcast(sender.ID(), domain.RoleChild, core.Message(data))
		res.Delivered = res.Publish.SendTo
	}
	logger := log.With().
		Str("module", "command").
		Str("room", string(cmd.Room)).
		Str("sid", string(sender.ID())).
		Str("command", string(cmd.Kind)).
		Logger()
	if res.Delivered == 0 && len(res.Publish.Dropped) == 0 {
		logger.Info().Msg("no active child")
	} else {
		logger.Info().Int("sent_to", res.Delivered).Msg("command relayed")
	}
	return res, nil
}

// forwardShape keeps the message as the guardian sent it and only writes
// back the values the router resolved.
func forwardShape(cmd domain.Command) (map[string]any, error) {
	out := maps.Clone(cmd.Raw)
	out["event"] = OutboundEvent
	out["command"] = string(cmd.Kind)
	out["room"] = string(cmd.Room)

	switch {
	case cmd.Kind == domain.CmdVolumeSet:
		v := ResolveVolume(cmd.Payload)
		setResolved(out, "volume", v)
		if _, ok := cmd.Payload["level"]; ok {
			setResolved(out, "level", v)
		}
	case cmd.Kind == domain.CmdSeekRelative:
		setResolved(out, "seconds", ResolveSeconds(cmd.Payload))
	case cmd.Kind.LoadsMedia():
		id, playlist := ResolveContent(cmd.Payload)
		if id == "" {
			return nil, ErrNoContent
		}
		if playlist {
			out["listType"] = "playlist"
		}
	}
	return out, nil
}

// setResolved writes key at the top level and, when the guardian nested its
// fields, inside a copy of the payload too so either reading matches.
func setResolved(out map[string]any, key string, v float64) {
	out[key] = v
	if nested, ok := out["payload"].(map[string]any); ok {
		nested = maps.Clone(nested)
		nested[key] = v
		out["payload"] = nested
	}
}
