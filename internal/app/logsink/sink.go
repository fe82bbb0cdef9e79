// Package logsink pipes browser console lines into the relay's log.
package logsink

import (
	"strings"
	"unicode/utf8"

	"github.com/dkeye/Guardian/internal/domain"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const maxMessageLen = 4096

type Sink struct {
	logger zerolog.Logger
}

// New returns a sink writing through logger. A zero logger means the global
// one.
func New(logger *zerolog.Logger) *Sink {
	if logger == nil {
		l := log.Logger
		logger = &l
	}
	return &Sink{logger: logger.With().Str("module", "remote").Logger()}
}

// Record writes one console line tagged with the sender. It never fails and
// never panics.
func (s *Sink) Record(member *domain.Member, line domain.LogLine) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().Str("module", "logsink").Interface("panic", r).Msg("remote log dropped")
		}
	}()

	ev := s.logger.WithLevel(levelOf(line.Level))
	if ev == nil {
		return
	}
	if member != nil {
		ev = ev.Str("room", string(member.Room)).
			Str("role", string(member.Role)).
			Str("sid", member.ID)
	}
	source := strings.TrimSpace(line.Source)
	if source == "" {
		source = "unknown"
	}
	msg := line.Message
	if len(msg) > maxMessageLen {
		cut := maxMessageLen
		for cut > 0 && !utf8.RuneStart(msg[cut]) {
			cut--
		}
		msg = msg[:cut] + "…"
	}
	ev.Str("js_level", strings.ToUpper(line.Level)).
		Str("source", source).
		Msg(msg)
}

// levelOf maps console method names onto zerolog levels. Unknown names log
// at info.
func levelOf(level string) zerolog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug", "trace":
		return zerolog.DebugLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error", "fatal":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}
