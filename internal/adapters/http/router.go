package http

import (
	"context"
	"path/filepath"

	"github.com/dkeye/Guardian/internal/adapters/signal"
	"github.com/dkeye/Guardian/internal/app/orch"
	"github.com/dkeye/Guardian/internal/config"
	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

const (
	clientTokenKey = "client_token"
	sessionName    = "GuardianSessions"
)

func genClientToken() string {
	return uuid.NewString()
}

// ClientTokenMiddleware gives every browser a long-lived token kept in the
// signed session cookie. It only tags logs; it is not an identity.
func ClientTokenMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		session := sessions.Default(c)
		token, _ := session.Get(clientTokenKey).(string)
		if token == "" {
			token = genClientToken()
			session.Set(clientTokenKey, token)
			if err := session.Save(); err != nil {
				log.Warn().Err(err).Str("module", "adapters.http").Msg("client token not saved")
			}
		}
		c.Set(clientTokenKey, token)
		c.Next()
	}
}

func SetupRouter(ctx context.Context, cfg *config.Config, o *orch.Orchestrator, catalog Catalog) *gin.Engine {
	if cfg.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	if cfg.Mode == "debug" {
		r.Use(gin.Logger())
	}
	r.Use(gin.Recovery())

	store := cookie.NewStore([]byte(cfg.Secret))
	store.Options(sessions.Options{
		Path:     "/",
		MaxAge:   3600 * 24 * 30,
		HttpOnly: true,
	})
	r.Use(sessions.Sessions(sessionName, store))
	r.Use(ClientTokenMiddleware())

	r.Static("/static", cfg.StaticPath)
	r.Static("/vault", cfg.VaultDir)
	r.GET("/", func(c *gin.Context) {
		c.File(filepath.Join(cfg.StaticPath, "index.html"))
	})

	h := &handlers{orch: o, catalog: catalog}
	r.GET("/healthz", h.health)

	log.Info().Str("module", "adapters.http").Str("static", cfg.StaticPath).Str("vault", cfg.VaultDir).Msg("router setup")

	api := r.Group("/api")
	api.GET("/rooms", h.listRooms)
	api.GET("/rooms/:room", h.getRoom)
	api.GET("/rooms/:room/state", h.getState)
	api.DELETE("/rooms/:room", h.evictRoom)
	api.DELETE("/rooms/:room/members/:id", h.kickMember)
	api.GET("/devices", h.listDevices)
	api.GET("/snapshots", h.listSnapshots)

	ctrl := signal.NewSignalWSController(o, signal.Options{
		ReadLimit:     cfg.ReadLimit,
		PingPeriod:    cfg.PingPeriod,
		PongWait:      cfg.PongWait,
		WriteWait:     cfg.WriteWait,
		SendBuffer:    cfg.SendBuffer,
		LogRate:       cfg.LogRate,
		LogRateWindow: cfg.LogRateWindow,
	})
	api.GET("/ws/signal", func(c *gin.Context) {
		log.Debug().Str("module", "adapters.http").Str("client", c.GetString(clientTokenKey)).Msg("ws signal endpoint hit")
		ctrl.HandleSignal(ctx, c)
	})

	return r
}
