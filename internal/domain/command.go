package domain

// CommandKind is the closed set of guardian→child commands.
type CommandKind string

const (
	CmdPlay            CommandKind = "play"
	CmdPause           CommandKind = "pause"
	CmdLoadVideo       CommandKind = "load_video"
	CmdPlaylistSync    CommandKind = "playlist_sync"
	CmdPushVideo       CommandKind = "push_video"
	CmdVolumeSet       CommandKind = "volume_set"
	CmdSeekRelative    CommandKind = "seek_relative"
	CmdSeekTo          CommandKind = "seek_to"
	CmdRequestSnapshot CommandKind = "request_snapshot"
	CmdSwitchMode      CommandKind = "switch_mode"
)

var knownCommands = map[CommandKind]struct{}{
	CmdPlay: {}, CmdPause: {}, CmdLoadVideo: {}, CmdPlaylistSync: {}, CmdPushVideo: {},
	CmdVolumeSet: {}, CmdSeekRelative: {}, CmdSeekTo: {}, CmdRequestSnapshot: {}, CmdSwitchMode: {},
}

func (k CommandKind) Known() bool {
	_, ok := knownCommands[k]
	return ok
}

// LoadsMedia reports whether the command switches the child's content.
func (k CommandKind) LoadsMedia() bool {
	return k == CmdLoadVideo || k == CmdPlaylistSync || k == CmdPushVideo
}

// Command is a guardian command after boundary normalisation. Payload holds
// the merged (single-level de-nested) fields; Raw is the message as it
// arrived and is what gets forwarded.
type Command struct {
	Kind    CommandKind
	Room    RoomID
	Payload map[string]any
	Raw     map[string]any
}
