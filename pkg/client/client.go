package client

import (
	"context"
	"errors"
	"time"

	P "github.com/cfoust/spheres/pkg/protocol"
	"github.com/cfoust/spheres/pkg/transport"
	"github.com/cfoust/spheres/pkg/utils"

	"github.com/cenkalti/backoff"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"
)

type Key uint8

const (
	KeyEscape Key = iota
	KeyLeft
	KeyRight
)

// Input answers whether a key is held during the current tick.
type Input interface {
	IsKeyDown(key Key) bool
}

// Renderer draws one frame's worth of objects.
type Renderer interface {
	Draw(objects []P.GameObject)
}

type State uint8

const (
	StateIdle State = iota
	StateConnecting
	StateConnected
	// A retry is scheduled.
	StateWaiting
	// Gave up; Start begins again.
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateWaiting:
		return "waiting"
	case StateFailed:
		return "failed"
	}
	return "unknown"
}

type Client struct {
	utils.Session
	*Config

	host   transport.Host
	server transport.Address
	world  *WorldState

	// Text the server has sent us.
	Messages *utils.Topic[string]

	state    State
	deadline time.Time
	retryAt  time.Time
	backoff  *backoff.ExponentialBackOff

	limiter *rate.Limiter
	// The local object changed and has not been sent yet.
	dirty bool
	quit  bool

	now func() time.Time
}

func New(ctx context.Context, host transport.Host, conf *Config) *Client {
	retry := backoff.NewExponentialBackOff()
	retry.InitialInterval = time.Second
	retry.MaxInterval = 30 * time.Second
	retry.MaxElapsedTime = 0

	var limiter *rate.Limiter
	if conf.SendRate > 0 {
		limiter = rate.NewLimiter(rate.Limit(conf.SendRate), 1)
	}

	return &Client{
		Session: utils.NewSession(ctx),
		Config:  conf,
		host:    host,
		server:  transport.JoinAddress(conf.Address, conf.Port),
		world: NewWorldState(P.GameObject{
			Colour: conf.Colour,
		}),
		Messages: utils.NewTopic[string](),
		backoff:  retry,
		limiter:  limiter,
		now:      time.Now,
	}
}

func (c *Client) Logger() zerolog.Logger {
	logger := log.With().
		Str("service", "client").
		Str("session", c.ID()).
		Str("server", string(c.server))
	if id, ok := c.world.Own(); ok {
		logger = logger.Uint32("client", uint32(id))
	}
	return logger.Logger()
}

func (c *Client) State() State {
	return c.state
}

func (c *Client) World() *WorldState {
	return c.world
}

// Objects returns what should be drawn this frame.
func (c *Client) Objects() []P.GameObject {
	return c.world.Objects()
}

func (c *Client) Draw(renderer Renderer) {
	renderer.Draw(c.world.Objects())
}

// Quit reports whether escape has been pressed.
func (c *Client) Quit() bool {
	return c.quit
}

// Start issues a connection attempt. It never waits for the result.
func (c *Client) Start() {
	c.backoff.Reset()
	c.connect()
}

func (c *Client) connect() {
	logger := c.Logger()

	result := c.host.Connect(c.Address, c.Port)
	if !result.Started() {
		logger.Error().Str("result", result.String()).Msg("could not start connection attempt")
		c.state = StateFailed
		return
	}

	logger.Info().Msg("connecting")
	c.state = StateConnecting
	c.deadline = c.now().Add(c.ConnectTimeout)
}

func (c *Client) scheduleRetry() {
	logger := c.Logger()

	if !c.Retry {
		c.state = StateFailed
		return
	}

	wait := c.backoff.NextBackOff()
	if wait == backoff.Stop {
		logger.Error().Msg("giving up on connecting")
		c.state = StateFailed
		return
	}

	logger.Info().Dur("wait", wait).Msg("retrying connection")
	c.state = StateWaiting
	c.retryAt = c.now().Add(wait)
}

func (c *Client) watchdog() {
	now := c.now()

	switch c.state {
	case StateConnecting:
		if c.ConnectTimeout <= 0 || now.Before(c.deadline) {
			return
		}
		logger := c.Logger()
		logger.Warn().Dur("timeout", c.ConnectTimeout).Msg("connection attempt timed out")
		c.host.Disconnect(c.server, transport.ReasonTimeout)
		c.scheduleRetry()
	case StateWaiting:
		if !now.Before(c.retryAt) {
			c.connect()
		}
	}
}

func (c *Client) lost() {
	c.world.Reset()
	c.dirty = false
	c.scheduleRetry()
}

// HandleEvents applies everything the transport has queued.
func (c *Client) HandleEvents() {
	for event := range c.host.Events() {
		logger := c.Logger()

		switch event.Type {
		case transport.EventConnected:
			logger.Info().Msg("Our connection request has been accepted.")
			c.state = StateConnected
			c.backoff.Reset()
		case transport.EventConnectionFailed:
			logger.Warn().Msg("connection attempt failed")
			if c.state == StateConnecting {
				c.scheduleRetry()
			}
		case transport.EventDisconnected:
			switch event.Reason {
			case transport.ReasonFull:
				logger.Error().Msg("The server is full.")
				c.world.Reset()
				c.state = StateFailed
			case transport.ReasonKick:
				logger.Error().Msg("We were kicked.")
				c.world.Reset()
				c.state = StateFailed
			default:
				logger.Warn().Str("reason", event.Reason.String()).Msg("We have been disconnected.")
				c.lost()
			}
		case transport.EventLostConnection:
			logger.Warn().Msg("Connection lost.")
			c.lost()
		case transport.EventReceive:
			c.HandlePacket(event.Data)
		default:
			logger.Debug().Msgf("ignoring %s event", event.Type)
		}
	}
}

// HandlePacket applies one message from the server. Bad packets are logged
// and dropped.
func (c *Client) HandlePacket(data []byte) {
	logger := c.Logger()

	message, err := P.Decode(data)
	if errors.Is(err, P.ErrUnknownMessage) {
		logger.Warn().Err(err).Msg("received a message with an unknown id")
		return
	}
	if err != nil {
		logger.Warn().Err(err).Int("length", len(data)).Msg("dropping malformed message")
		return
	}

	switch message := message.(type) {
	case P.SetClientID:
		if err := c.world.SetID(message.Client); err != nil {
			if errors.Is(err, ErrIDRepeated) {
				logger.Warn().Err(err).Msg("server repeated our client id")
				return
			}
			logger.Error().Err(err).Msg("server sent a second client id")
			return
		}
		logger = c.Logger()
		logger.Info().Msg("received client id")
	case P.ClientData:
		if !c.world.Apply(message.Client, message.Object, c.now()) {
			logger.Debug().Msg("ignoring our own echo")
			return
		}
		logger.Debug().
			Uint32("sender", uint32(message.Client)).
			Stringer("position", message.Object.Position).
			Msg("client data")
	case P.TextMessage:
		logger.Info().Msg(message.Text)
		c.Messages.Publish(message.Text)
	case P.ClientLeft:
		if c.world.Remove(message.Client) {
			logger.Info().Uint32("sender", uint32(message.Client)).Msg("client left")
		}
	}
}

func (c *Client) handleInput(dt time.Duration, input Input) {
	if input.IsKeyDown(KeyEscape) {
		c.quit = true
	}

	left := input.IsKeyDown(KeyLeft)
	right := input.IsKeyDown(KeyRight)
	if !left && !right {
		return
	}

	step := c.Speed * float32(dt.Seconds())
	var dx float32
	if left {
		dx -= step
	}
	if right {
		dx += step
	}

	c.world.Move(dx)
	c.dirty = true
}

// flush sends the local object if it changed and the limiter allows it.
// Changes made while throttled are coalesced into the next send.
func (c *Client) flush() {
	if !c.dirty || c.state != StateConnected {
		return
	}

	id, ok := c.world.Own()
	if !ok {
		return
	}

	if c.limiter != nil && !c.limiter.AllowN(c.now(), 1) {
		return
	}

	c.host.Send(
		P.Encode(P.ClientData{Client: id, Object: c.world.Local()}),
		transport.ReliableOrdered,
		transport.PriorityHigh,
		transport.Everyone(),
	)
	c.dirty = false
}

// Tick runs one frame: drain events, check on the connection, apply input,
// send what changed and forget stale peers. input may be nil.
func (c *Client) Tick(dt time.Duration, input Input) {
	c.HandleEvents()
	c.watchdog()

	if input != nil {
		c.handleInput(dt, input)
	}
	c.flush()

	if c.StaleAfter > 0 {
		for _, id := range c.world.Prune(c.now().Add(-c.StaleAfter)) {
			logger := c.Logger()
			logger.Info().Uint32("sender", uint32(id)).Msg("forgot stale client")
		}
	}
}

// Close says goodbye to the server and releases the transport.
func (c *Client) Close() error {
	c.Cancel()
	if c.state == StateConnected {
		c.host.Disconnect(c.server, transport.ReasonQuit)
	}
	c.state = StateIdle
	return c.host.Close()
}
