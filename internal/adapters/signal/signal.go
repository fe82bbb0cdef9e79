// Package signal is the websocket transport of the relay. Every connection
// gets a read pump that handles its messages in order and a write pump that
// drains its reliable queue and its single frame slot.
package signal

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/dkeye/Guardian/internal/app/orch"
	"github.com/dkeye/Guardian/internal/core"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

var (
	ErrBackpressure = errors.New("backpressure")
	ErrClosed       = errors.New("connection closed")
)

// Options tune the websocket pumps; zero fields take the defaults below.
type Options struct {
	ReadLimit     int64
	PingPeriod    time.Duration
	PongWait      time.Duration
	WriteWait     time.Duration
	SendBuffer    int
	LogRate       int
	LogRateWindow time.Duration
}

func (o Options) withDefaults() Options {
	if o.ReadLimit <= 0 {
		o.ReadLimit = 2 << 20
	}
	if o.PongWait <= 0 {
		o.PongWait = 60 * time.Second
	}
	if o.PingPeriod <= 0 || o.PingPeriod >= o.PongWait {
		o.PingPeriod = o.PongWait * 9 / 10
	}
	if o.WriteWait <= 0 {
		o.WriteWait = 5 * time.Second
	}
	if o.SendBuffer <= 0 {
		o.SendBuffer = 64
	}
	if o.LogRate <= 0 {
		o.LogRate = 20
	}
	if o.LogRateWindow <= 0 {
		o.LogRateWindow = time.Second
	}
	return o
}

type SignalWSController struct {
	Orch *orch.Orchestrator

	opts    Options
	logRate *SessionRateLimiter
}

func NewSignalWSController(o *orch.Orchestrator, opts Options) *SignalWSController {
	opts = opts.withDefaults()
	return &SignalWSController{
		Orch:    o,
		opts:    opts,
		logRate: NewSessionRateLimiter(opts.LogRate, opts.LogRateWindow),
	}
}

// WsSignalConn is the reliable, ordered half of a connection. Frames bypass
// it through the connection's core.FrameSlot.
type WsSignalConn struct {
	conn *websocket.Conn
	send chan core.Message

	mu     sync.RWMutex
	closed bool
}

func (c *WsSignalConn) TrySend(m core.Message) error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return ErrClosed
	}
	select {
	case c.send <- m:
	default:
		return ErrBackpressure
	}
	return nil
}

func (c *WsSignalConn) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	close(c.send)
	_ = c.conn.Close()
	c.mu.Unlock()
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// HandleSignal upgrades the request and starts the pumps. The session id is
// fresh per connection; the client token only tags the logs.
func (ctl *SignalWSController) HandleSignal(ctx context.Context, c *gin.Context) {
	client := c.GetString("client_token")
	sid := core.SessionID(uuid.NewString())
	log.Info().Str("module", "signal").Str("sid", string(sid)).Str("client", client).Msg("new WS connection")

	ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("ws upgrade")
		return
	}
	ws.SetReadLimit(ctl.opts.ReadLimit)

	conn := &WsSignalConn{
		conn: ws,
		send: make(chan core.Message, ctl.opts.SendBuffer),
	}
	slot := core.NewFrameSlot()

	ctx, cancel := context.WithCancel(ctx)
	kick := func() {
		cancel()
		conn.Close()
	}
	ctl.Orch.Registry.BindSignal(sid, conn, slot, client, kick)

	go ctl.writePump(ctx, sid, conn, slot)
	go ctl.readPump(ctx, sid, conn, kick)
}
