package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/pflag"

	router "github.com/dkeye/Guardian/internal/adapters/http"
	"github.com/dkeye/Guardian/internal/app"
	"github.com/dkeye/Guardian/internal/app/archive"
	"github.com/dkeye/Guardian/internal/app/command"
	"github.com/dkeye/Guardian/internal/app/frames"
	"github.com/dkeye/Guardian/internal/app/logsink"
	"github.com/dkeye/Guardian/internal/app/mirror"
	"github.com/dkeye/Guardian/internal/app/orch"
	"github.com/dkeye/Guardian/internal/config"
	"github.com/dkeye/Guardian/internal/core"
	"github.com/dkeye/Guardian/internal/domain"
	"github.com/dkeye/Guardian/internal/store"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// Initialize zerolog global logger early so config.Load can use it.
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: "15:04:05"})
	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	fs := pflag.NewFlagSet("guardian-server", pflag.ExitOnError)
	config.Flags(fs)
	_ = fs.Parse(os.Args[1:])

	cfg, err := config.Load(fs)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}
	setupLogger(cfg)

	db, err := store.Open(cfg.DBPath)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to open store")
	}
	defer db.Close()
	if n, err := db.ResetStatuses(ctx); err != nil {
		log.Error().Err(err).Msg("failed to reset device statuses")
	} else {
		log.Info().Int("devices", n).Msg("device statuses reset")
	}

	vault, err := archive.NewVault(cfg.VaultDir, db)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to open vault")
	}
	policy, err := app.PolicyByName(cfg.Backpressure)
	if err != nil {
		log.Fatal().Err(err).Msg("bad backpressure policy")
	}

	rooms := core.NewRoomManager()
	o := &orch.Orchestrator{
		Registry: app.NewRegistry(),
		Rooms:    rooms,
		Policy:   policy,
		Frames:   frames.NewManager(),
		Mirror:   mirror.New(rooms),
		Commands: command.NewRouter(rooms),
		Archive:  archive.NewArchiver(rooms, vault),
		Logs:     logsink.New(nil),
		Devices:  db,
		Fallback: domain.RoomID(cfg.FallbackRoom),
	}

	r := router.SetupRouter(ctx, cfg, o, db)
	addr := fmt.Sprintf(":%d", cfg.Port)

	srv := &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Info().Str("addr", addr).Msg("Guardian relay started")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("server error")
			cancel()
		}
	}()

	<-ctx.Done()
	log.Info().Msg("Shutting down")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}
	log.Info().Msg("Server exited gracefully")
}

func setupLogger(cfg *config.Config) {
	if cfg.LogFormat == "json" {
		log.Logger = zerolog.New(os.Stderr).With().Timestamp().Logger()
	}
	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		log.Warn().Str("log_level", cfg.LogLevel).Msg("unknown log level, using info")
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)
}
