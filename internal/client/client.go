// Package client is a websocket client of the relay with capped, linearly
// backed-off reconnection. It rejoins its room after every reconnect.
package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/dkeye/Guardian/internal/codec"
	"github.com/dkeye/Guardian/internal/domain"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

var (
	ErrGaveUp       = errors.New("gave up reconnecting")
	ErrNotConnected = errors.New("not connected")
)

const (
	DefaultMaxRetries = 15
	DefaultBackoff    = time.Second
	writeWait         = 5 * time.Second
)

type Options struct {
	// URL of the signal endpoint, e.g. ws://host:8080/api/ws/signal.
	URL  string
	Room string
	Role domain.Role
	// MaxRetries caps consecutive failed attempts; the counter resets once
	// a connection is established.
	MaxRetries int
	// Backoff is the linear step: attempt n waits n*Backoff.
	Backoff time.Duration
	Header  http.Header
	Dialer  *websocket.Dialer
}

// Event is one inbound message. Data holds the whole JSON object.
type Event struct {
	Name string
	Data json.RawMessage
}

// Decode unmarshals the event into v.
func (e Event) Decode(v any) error {
	return json.Unmarshal(e.Data, v)
}

type Client struct {
	opts Options

	mu   sync.Mutex
	conn *websocket.Conn
}

func New(opts Options) *Client {
	if opts.MaxRetries <= 0 {
		opts.MaxRetries = DefaultMaxRetries
	}
	if opts.Backoff <= 0 {
		opts.Backoff = DefaultBackoff
	}
	if opts.Role == "" {
		opts.Role = domain.RoleGuardian
	}
	if opts.Dialer == nil {
		opts.Dialer = websocket.DefaultDialer
	}
	return &Client{opts: opts}
}

// Run connects, joins and hands every inbound event to handle until ctx is
// done or the retry budget is spent. handle runs on the reader goroutine.
func (c *Client) Run(ctx context.Context, handle func(Event)) error {
	logger := log.With().Str("module", "client").Str("room", c.opts.Room).Logger()
	failures := 0
	for {
		connected, err := c.session(ctx, handle)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if connected {
			failures = 0
		}
		failures++
		if failures > c.opts.MaxRetries {
			logger.Error().Err(err).Int("attempts", failures-1).Msg("giving up")
			return fmt.Errorf("%w after %d attempts: %v", ErrGaveUp, failures-1, err)
		}
		wait := time.Duration(failures) * c.opts.Backoff
		logger.Warn().Err(err).Int("attempt", failures).Dur("wait", wait).Msg("reconnecting")
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
	}
}

// session runs one connection. connected reports whether the dial and the
// join succeeded.
func (c *Client) session(ctx context.Context, handle func(Event)) (connected bool, err error) {
	ws, _, err := c.opts.Dialer.DialContext(ctx, c.opts.URL, c.opts.Header)
	if err != nil {
		return false, err
	}
	c.mu.Lock()
	c.conn = ws
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		c.conn = nil
		c.mu.Unlock()
		ws.Close()
	}()

	stop := context.AfterFunc(ctx, func() { ws.Close() })
	defer stop()

	if err := c.Send(map[string]any{"event": "join", "room": c.opts.Room, "role": string(c.opts.Role)}); err != nil {
		return false, err
	}
	log.Info().Str("module", "client").Str("room", c.opts.Room).Str("role", string(c.opts.Role)).Msg("connected")

	for {
		_, data, err := ws.ReadMessage()
		if err != nil {
			return true, err
		}
		var env struct {
			Event string `json:"event"`
		}
		if err := json.Unmarshal(data, &env); err != nil {
			log.Warn().Err(err).Str("module", "client").Msg("bad json from relay")
			continue
		}
		handle(Event{Name: env.Event, Data: data})
	}
}

// Send writes v as a JSON text message.
func (c *Client) Send(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return c.write(websocket.TextMessage, data)
}

// SendBinary writes a CBOR frame or snapshot.
func (c *Client) SendBinary(msg codec.BinaryMessage) error {
	data, err := codec.EncodeBinary(msg)
	if err != nil {
		return err
	}
	return c.write(websocket.BinaryMessage, data)
}

func (c *Client) write(mt int, data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil {
		return ErrNotConnected
	}
	_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return c.conn.WriteMessage(mt, data)
}
