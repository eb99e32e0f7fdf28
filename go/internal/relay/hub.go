package relay

import (
	"context"
	"sync"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/syncparty/go/internal/party"
	"github.com/mcdev12/syncparty/go/internal/protocol"
)

// Hub tracks live connections and relays party broadcasts. Delivery is
// at-most-once, best effort: a recipient whose send buffer is not
// writable is skipped, never queued for retry, and a slow recipient never
// stalls the sender.
type Hub struct {
	registry *party.Registry
	clock    clockwork.Clock
	config   ConnConfig

	mu    sync.RWMutex
	conns map[string]*Conn

	broadcastCh chan broadcastJob
}

type broadcastJob struct {
	code  string
	frame []byte

	// exclude names a connection to skip, typically the originator of a
	// relayed event. Empty delivers to every member.
	exclude string
}

// NewHub creates a hub over the given registry.
func NewHub(registry *party.Registry, clock clockwork.Clock, config ConnConfig) *Hub {
	return &Hub{
		registry:    registry,
		clock:       clock,
		config:      config,
		conns:       make(map[string]*Conn),
		broadcastCh: make(chan broadcastJob, 1024),
	}
}

// Run processes broadcast jobs until the context is cancelled.
func (h *Hub) Run(ctx context.Context) {
	log.Info().Msg("relay hub started")
	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("relay hub shutting down")
			return
		case job := <-h.broadcastCh:
			h.deliver(job)
		}
	}
}

func (h *Hub) register(c *Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.conns[c.ID] = c
}

func (h *Hub) unregister(c *Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.conns, c.ID)
}

// broadcastToAll delivers a frame to every live member of a party,
// including the originator. Used for roster and shared descriptor updates
// so all views stay consistent.
func (h *Hub) broadcastToAll(code string, frame []byte) {
	h.submit(broadcastJob{code: code, frame: frame})
}

// broadcastExcluding delivers a frame to every live member of a party
// except the named connection. Used for relayed sync and video-info events
// where the originator already has local state.
func (h *Hub) broadcastExcluding(code string, frame []byte, exclude string) {
	h.submit(broadcastJob{code: code, frame: frame, exclude: exclude})
}

func (h *Hub) submit(job broadcastJob) {
	select {
	case h.broadcastCh <- job:
	default:
		log.Warn().Str("party_code", job.code).Msg("broadcast queue full, dropping message")
	}
}

func (h *Hub) deliver(job broadcastJob) {
	memberIDs := h.registry.MemberIDs(job.code)
	if len(memberIDs) == 0 {
		return
	}

	h.mu.RLock()
	targets := make([]*Conn, 0, len(memberIDs))
	for _, id := range memberIDs {
		if id == job.exclude {
			continue
		}
		if c, ok := h.conns[id]; ok {
			targets = append(targets, c)
		}
	}
	h.mu.RUnlock()

	for _, c := range targets {
		c.enqueue(job.frame)
	}

	log.Debug().
		Str("party_code", job.code).
		Int("recipients", len(targets)).
		Msg("frame broadcast")
}

// broadcastParticipants pushes the current roster to every member of a
// party. A code whose party no longer exists is a no-op.
func (h *Hub) broadcastParticipants(code string) {
	views, ok := h.registry.ListParticipants(code)
	if !ok {
		return
	}
	frame, err := protocol.Encode(protocol.Participants{
		Type:         protocol.TypeParticipants,
		Timestamp:    h.now(),
		Participants: views,
	})
	if err != nil {
		log.Error().Err(err).Str("party_code", code).Msg("failed to encode roster")
		return
	}
	h.broadcastToAll(code, frame)
}

func (h *Hub) now() int64 {
	return h.clock.Now().UnixMilli()
}

// Stats is a snapshot of hub counters for the stats endpoint.
type Stats struct {
	Connections int `json:"connections"`
}

// Snapshot returns current hub counters.
func (h *Hub) Snapshot() Stats {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return Stats{Connections: len(h.conns)}
}

// CloseAll force-closes every live connection; used on shutdown.
func (h *Hub) CloseAll() {
	h.mu.RLock()
	conns := make([]*Conn, 0, len(h.conns))
	for _, c := range h.conns {
		conns = append(conns, c)
	}
	h.mu.RUnlock()

	for _, c := range conns {
		c.teardown()
	}
}
