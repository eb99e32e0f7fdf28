package relay

import (
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

// Connection lifecycle states. Both the error path and the normal close
// path funnel through teardown, which walks Connected → Leaving → Closed
// exactly once.
const (
	stateConnected int32 = iota
	stateLeaving
	stateClosed
)

// Conn is one live client connection. It owns at most one party
// membership, tracked by the registry under its ID; the Conn itself holds
// no party state.
type Conn struct {
	ID   string
	hub  *Hub
	ws   *websocket.Conn
	send chan []byte

	// done is closed during teardown to stop the write pump. The send
	// channel itself is never closed so late broadcasts cannot panic.
	done  chan struct{}
	state atomic.Int32
}

func newConn(id string, hub *Hub, ws *websocket.Conn) *Conn {
	return &Conn{
		ID:   id,
		hub:  hub,
		ws:   ws,
		send: make(chan []byte, hub.config.SendBufferSize),
		done: make(chan struct{}),
	}
}

// enqueue hands a frame to the write pump without blocking. A connection
// whose buffer is full is skipped; the liveness probe will evict it if it
// is actually dead.
func (c *Conn) enqueue(frame []byte) bool {
	select {
	case c.send <- frame:
		return true
	default:
		log.Warn().
			Str("connection_id", c.ID).
			Msg("send buffer full, frame dropped")
		return false
	}
}

// readPump reads frames from the socket and dispatches them until the
// connection dies. The read deadline is only extended by pong frames, so
// application-level pings do not reset the server's probe timer.
func (c *Conn) readPump() {
	defer c.teardown()

	c.ws.SetReadLimit(c.hub.config.MaxMessageSize)
	c.ws.SetReadDeadline(time.Now().Add(c.hub.config.PongWait))
	c.ws.SetPongHandler(func(string) error {
		c.ws.SetReadDeadline(time.Now().Add(c.hub.config.PongWait))
		return nil
	})

	for {
		_, frame, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				log.Warn().
					Err(err).
					Str("connection_id", c.ID).
					Msg("unexpected close")
			}
			return
		}
		c.hub.handleFrame(c, frame)
	}
}

// writePump drains the send queue and emits the server liveness probe on
// a fixed interval.
func (c *Conn) writePump() {
	ticker := time.NewTicker(c.hub.config.PingInterval)
	defer func() {
		ticker.Stop()
		c.teardown()
	}()

	for {
		select {
		case frame := <-c.send:
			c.ws.SetWriteDeadline(time.Now().Add(c.hub.config.WriteWait))
			if err := c.ws.WriteMessage(websocket.TextMessage, frame); err != nil {
				log.Debug().
					Err(err).
					Str("connection_id", c.ID).
					Msg("write failed")
				return
			}

		case <-ticker.C:
			c.ws.SetWriteDeadline(time.Now().Add(c.hub.config.WriteWait))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				log.Debug().
					Err(err).
					Str("connection_id", c.ID).
					Msg("ping failed")
				return
			}

		case <-c.done:
			c.ws.SetWriteDeadline(time.Now().Add(c.hub.config.WriteWait))
			c.ws.WriteMessage(websocket.CloseMessage, []byte{})
			return
		}
	}
}

// teardown is the single cleanup routine for every exit path. The
// participant record is removed from its party (broadcasting that party's
// membership change), liveness bookkeeping is dropped, and the socket is
// closed. Safe to call from multiple goroutines; only the first caller
// does the work.
func (c *Conn) teardown() {
	if !c.state.CompareAndSwap(stateConnected, stateLeaving) {
		return
	}

	if code, ok := c.hub.registry.LeaveParty(c.ID); ok {
		c.hub.broadcastParticipants(code)
	}
	c.hub.unregister(c)

	close(c.done)
	c.ws.Close()
	c.state.Store(stateClosed)

	log.Info().Str("connection_id", c.ID).Msg("connection closed")
}
