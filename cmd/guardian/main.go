// Command guardian is a headless guardian: it joins a room, mirrors the
// child's playback and logs what a dashboard would do.
package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/dkeye/Guardian/internal/app/mirror"
	"github.com/dkeye/Guardian/internal/client"
	"github.com/dkeye/Guardian/internal/domain"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: "15:04:05"})

	fs := pflag.NewFlagSet("guardian", pflag.ExitOnError)
	fs.String("url", "ws://localhost:8080/api/ws/signal", "relay signal endpoint")
	fs.String("room", "8660AC2E", "room token of the child")
	fs.Int("retries", client.DefaultMaxRetries, "reconnect attempts before giving up")
	fs.Duration("backoff", client.DefaultBackoff, "linear reconnect backoff step")
	fs.String("log-level", "info", "log level")
	_ = fs.Parse(os.Args[1:])

	v := viper.New()
	v.SetEnvPrefix("guardian")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
	if err := v.BindPFlags(fs); err != nil {
		log.Fatal().Err(err).Msg("bind flags")
	}

	if level, err := zerolog.ParseLevel(v.GetString("log-level")); err == nil {
		zerolog.SetGlobalLevel(level)
	}

	w := &watcher{}
	c := client.New(client.Options{
		URL:        v.GetString("url"),
		Room:       v.GetString("room"),
		Role:       domain.RoleGuardian,
		MaxRetries: v.GetInt("retries"),
		Backoff:    v.GetDuration("backoff"),
	})
	err := c.Run(ctx, w.handle)
	switch {
	case errors.Is(err, context.Canceled):
		log.Info().Msg("bye")
	case err != nil:
		log.Error().Err(err).Msg("guardian stopped")
		os.Exit(1)
	}
}

// watcher keeps the local mirror of the child's player.
type watcher struct {
	state  mirror.MirrorState
	frames int
}

func (w *watcher) handle(ev client.Event) {
	logger := log.With().Str("module", "guardian").Str("event", ev.Name).Logger()
	switch ev.Name {
	case "joined":
		var p struct {
			Room  string `json:"room"`
			Count int    `json:"count"`
		}
		_ = ev.Decode(&p)
		logger.Info().Str("room", p.Room).Int("members", p.Count).Msg("joined")
	case "status_change":
		var p domain.PresenceEvent
		if err := ev.Decode(&p); err == nil {
			logger.Info().Str("kid_id", p.ChildID).Bool("online", p.Online).Msg("presence")
		}
	case "state_report":
		var report domain.StateReport
		if err := ev.Decode(&report); err != nil {
			logger.Warn().Err(err).Msg("bad state report")
			return
		}
		d := mirror.Reconcile(&w.state, report, time.Now())
		switch {
		case d.VideoChanged:
			logger.Info().Str("media", d.MediaID).Float64("at", d.SeekTo).Bool("playing", d.Play).Msg("load video")
		case d.Seek:
			logger.Info().Float64("drift", d.Drift).Float64("to", d.SeekTo).Msg("seek")
		}
		if !d.VideoChanged && d.Play {
			logger.Info().Msg("play")
		}
		if d.Pause {
			logger.Info().Msg("pause")
		}
	case "live_frame_update":
		w.frames++
		if w.frames%100 == 1 {
			logger.Debug().Int("frames", w.frames).Msg("live feed")
		}
	case "new_snapshot":
		var s domain.Snapshot
		if err := ev.Decode(&s); err == nil {
			logger.Info().Str("kid_id", s.ChildID).Str("url", s.URL).Msg("snapshot")
		}
	case "error":
		logger.Warn().RawJSON("payload", ev.Data).Msg("relay error")
	}
}
