// Package client implements the synchronization protocol contract a
// consuming client must follow: local player events become outbound sync
// messages unless echo-suppressed or rate-limited, remote messages become
// local player actions behind the suspend-echo window, and transport
// failures are retried with capped exponential backoff.
package client

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/syncparty/go/internal/party"
	"github.com/mcdev12/syncparty/go/internal/protocol"
)

// Player is the local playback surface the client drives. Implementations
// wrap whatever player technology is in use; the sync rules are the same
// for all of them.
type Player interface {
	Play()
	Pause()
	SeekTo(seconds float64)
	SetRate(rate float64)
	Position() float64
}

// Handlers are optional callbacks for server frames. Nil handlers are
// skipped.
type Handlers struct {
	OnPartyCreated func(protocol.PartyCreated)
	OnJoined       func(protocol.Joined)
	OnParticipants func(protocol.Participants)
	OnVideoInfo    func(protocol.VideoInfo)
	OnError        func(protocol.Error)

	// OnSync observes relayed sync events after they have been applied
	// to the player (if any).
	OnSync func(protocol.Sync)

	// OnConnect fires after every successful transport connection,
	// including reconnects. Re-joining a party after a reconnect is the
	// application's responsibility; there is no session resumption.
	OnConnect func()
}

// Config tunes the client.
type Config struct {
	ServerURL  string
	Username   string
	Controller ControllerConfig

	// KeepAliveInterval is the application-level ping period, kept
	// shorter than the server's probe interval so idle intermediaries do
	// not close the transport.
	KeepAliveInterval time.Duration

	WriteWait time.Duration
}

// DefaultConfig returns the standard client tuning for a server URL.
func DefaultConfig(serverURL, username string) Config {
	return Config{
		ServerURL:         serverURL,
		Username:          username,
		Controller:        DefaultControllerConfig(),
		KeepAliveInterval: 20 * time.Second,
		WriteWait:         10 * time.Second,
	}
}

// Client is a conforming watch-party client over a WebSocket transport.
type Client struct {
	cfg        Config
	clock      clockwork.Clock
	controller *Controller
	player     Player
	handlers   Handlers
	backoff    *Backoff

	mu       sync.Mutex
	ws       *websocket.Conn
	outgoing chan []byte
	done     chan struct{}
}

// New creates a client. The player may be nil for listen-only consumers
// such as roster views; remote playback events are then ignored.
func New(cfg Config, clock clockwork.Clock, player Player, handlers Handlers) *Client {
	return &Client{
		cfg:        cfg,
		clock:      clock,
		controller: NewController(clock, cfg.Controller),
		player:     player,
		handlers:   handlers,
		backoff:    DefaultBackoff(),
	}
}

// Controller exposes the echo-suppression state machine, mainly for
// integration layers that feed native player callbacks in directly.
func (c *Client) Controller() *Controller {
	return c.controller
}

// Run connects and keeps the connection alive until the context is
// cancelled, re-dialing with exponential backoff after every transport
// failure. Heartbeats resume only on a fresh connection.
func (c *Client) Run(ctx context.Context) error {
	for {
		if err := c.connect(); err != nil {
			delay := c.backoff.Next()
			log.Warn().
				Err(err).
				Dur("retry_in", delay).
				Msg("connection failed")
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
				continue
			}
		}

		c.backoff.Reset()
		if c.handlers.OnConnect != nil {
			c.handlers.OnConnect()
		}

		err := c.serve(ctx)
		c.closeTransport()
		if ctx.Err() != nil {
			return ctx.Err()
		}
		log.Warn().Err(err).Msg("connection lost, reconnecting")
	}
}

func (c *Client) connect() error {
	ws, _, err := websocket.DefaultDialer.Dial(c.cfg.ServerURL, nil)
	if err != nil {
		return err
	}

	c.mu.Lock()
	c.ws = ws
	c.outgoing = make(chan []byte, 64)
	c.done = make(chan struct{})
	c.mu.Unlock()

	log.Info().Str("server", c.cfg.ServerURL).Msg("connected")
	return nil
}

// serve pumps the connection until it dies or the context ends.
func (c *Client) serve(ctx context.Context) error {
	c.mu.Lock()
	ws, outgoing, done := c.ws, c.outgoing, c.done
	c.mu.Unlock()

	go c.writePump(ws, outgoing, done)

	readErr := make(chan error, 1)
	go func() {
		for {
			_, frame, err := ws.ReadMessage()
			if err != nil {
				readErr <- err
				return
			}
			c.handleFrame(frame)
		}
	}()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case err := <-readErr:
		return err
	}
}

func (c *Client) writePump(ws *websocket.Conn, outgoing chan []byte, done chan struct{}) {
	ticker := time.NewTicker(c.cfg.KeepAliveInterval)
	defer ticker.Stop()

	for {
		select {
		case frame := <-outgoing:
			ws.SetWriteDeadline(time.Now().Add(c.cfg.WriteWait))
			if err := ws.WriteMessage(websocket.TextMessage, frame); err != nil {
				return
			}
		case <-ticker.C:
			frame, err := protocol.Encode(protocol.Ping{
				Type:      protocol.TypePing,
				Timestamp: c.now(),
			})
			if err != nil {
				continue
			}
			ws.SetWriteDeadline(time.Now().Add(c.cfg.WriteWait))
			if err := ws.WriteMessage(websocket.TextMessage, frame); err != nil {
				return
			}
		case <-done:
			return
		}
	}
}

func (c *Client) closeTransport() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.done != nil {
		select {
		case <-c.done:
		default:
			close(c.done)
		}
	}
	if c.ws != nil {
		c.ws.Close()
	}
}

// handleFrame applies one server frame. Relayed sync events go through the
// suspend-echo window before touching the player.
func (c *Client) handleFrame(frame []byte) {
	// Server frames reuse the same closed variant set; decode by tag.
	var head struct {
		Type protocol.Type `json:"type"`
	}
	if err := json.Unmarshal(frame, &head); err != nil {
		log.Debug().Err(err).Msg("dropping malformed server frame")
		return
	}

	switch head.Type {
	case protocol.TypePartyCreated:
		var m protocol.PartyCreated
		if json.Unmarshal(frame, &m) == nil && c.handlers.OnPartyCreated != nil {
			c.handlers.OnPartyCreated(m)
		}
	case protocol.TypeJoined:
		var m protocol.Joined
		if json.Unmarshal(frame, &m) == nil && c.handlers.OnJoined != nil {
			c.handlers.OnJoined(m)
		}
	case protocol.TypeParticipants:
		var m protocol.Participants
		if json.Unmarshal(frame, &m) == nil && c.handlers.OnParticipants != nil {
			c.handlers.OnParticipants(m)
		}
	case protocol.TypeSync:
		var m protocol.Sync
		if json.Unmarshal(frame, &m) == nil {
			c.applyRemoteSync(m)
			if c.handlers.OnSync != nil {
				c.handlers.OnSync(m)
			}
		}
	case protocol.TypeVideoInfo:
		var m protocol.VideoInfo
		if json.Unmarshal(frame, &m) == nil && c.handlers.OnVideoInfo != nil {
			c.handlers.OnVideoInfo(m)
		}
	case protocol.TypeError:
		var m protocol.Error
		if json.Unmarshal(frame, &m) == nil {
			log.Warn().Str("message", m.Message).Msg("server error")
			if c.handlers.OnError != nil {
				c.handlers.OnError(m)
			}
		}
	case protocol.TypeLeft, protocol.TypePong:
		// Acknowledgments; nothing to apply.
	default:
		log.Debug().Str("type", string(head.Type)).Msg("ignoring unknown server frame")
	}
}

// applyRemoteSync performs the inbound rule: suspend echo first, then
// mutate the player, with the drift policy gating position corrections.
func (c *Client) applyRemoteSync(m protocol.Sync) {
	if c.player == nil {
		return
	}
	c.controller.BeginRemoteApply()

	switch m.Action {
	case protocol.ActionPlay:
		if m.Data.CurrentTime != nil && c.controller.ShouldCorrectDrift(c.player.Position(), *m.Data.CurrentTime) {
			c.player.SeekTo(*m.Data.CurrentTime)
		}
		c.player.Play()
	case protocol.ActionPause:
		if m.Data.CurrentTime != nil && c.controller.ShouldCorrectDrift(c.player.Position(), *m.Data.CurrentTime) {
			c.player.SeekTo(*m.Data.CurrentTime)
		}
		c.player.Pause()
	case protocol.ActionSeek:
		if m.Data.CurrentTime != nil && c.controller.ShouldCorrectDrift(c.player.Position(), *m.Data.CurrentTime) {
			c.player.SeekTo(*m.Data.CurrentTime)
		}
	case protocol.ActionRateChange:
		if m.Data.PlaybackRate != nil {
			c.player.SetRate(*m.Data.PlaybackRate)
		}
	}
}

// LocalEvent applies the outbound rule to a native player event: it is
// sent unless the controller is suspending echo or inside the cooldown
// window. Returns whether the event went out.
func (c *Client) LocalEvent(action protocol.Action, data protocol.SyncData) bool {
	if !c.controller.AllowOutbound() {
		return false
	}
	c.sendMessage(protocol.Sync{
		Type:      protocol.TypeSync,
		Timestamp: c.now(),
		Action:    action,
		Data:      data,
	})
	return true
}

// CreateParty asks the server for a new party.
func (c *Client) CreateParty(password string, persistent bool) {
	c.sendMessage(protocol.CreateParty{
		Type:       protocol.TypeCreateParty,
		Timestamp:  c.now(),
		Username:   c.cfg.Username,
		Password:   password,
		Persistent: persistent,
	})
}

// JoinParty joins an existing party by code.
func (c *Client) JoinParty(code, password string) {
	c.sendMessage(protocol.Join{
		Type:      protocol.TypeJoin,
		Timestamp: c.now(),
		PartyCode: code,
		Username:  c.cfg.Username,
		Password:  password,
	})
}

// LeaveParty leaves the current party.
func (c *Client) LeaveParty() {
	c.sendMessage(protocol.Leave{Type: protocol.TypeLeave, Timestamp: c.now()})
}

// ReportVideo publishes the local video descriptor to the party.
func (c *Client) ReportVideo(video party.VideoInfo) {
	c.sendMessage(protocol.VideoInfo{
		Type:      protocol.TypeVideoInfo,
		Timestamp: c.now(),
		Data:      video,
	})
}

var errNotConnected = errors.New("not connected")

func (c *Client) sendMessage(msg any) error {
	frame, err := protocol.Encode(msg)
	if err != nil {
		return err
	}

	c.mu.Lock()
	outgoing := c.outgoing
	c.mu.Unlock()
	if outgoing == nil {
		return errNotConnected
	}

	select {
	case outgoing <- frame:
		return nil
	default:
		return errors.New("outgoing buffer full")
	}
}

func (c *Client) now() int64 {
	return c.clock.Now().UnixMilli()
}
