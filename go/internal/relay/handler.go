package relay

import (
	"errors"

	"github.com/rs/zerolog/log"

	"github.com/mcdev12/syncparty/go/internal/party"
	"github.com/mcdev12/syncparty/go/internal/protocol"
)

// handleFrame maps one inbound client frame to registry operations and
// outbound frames. Per-message failures are answered with an error frame;
// the connection stays open, and one connection's misbehavior never
// reaches another.
func (h *Hub) handleFrame(c *Conn, frame []byte) {
	msg, err := protocol.Decode(frame)
	if err != nil {
		log.Debug().
			Err(err).
			Str("connection_id", c.ID).
			Msg("rejected inbound frame")
		h.sendError(c, err.Error())
		return
	}

	switch m := msg.(type) {
	case protocol.CreateParty:
		h.handleCreateParty(c, m)
	case protocol.Join:
		h.handleJoin(c, m)
	case protocol.Leave:
		h.handleLeave(c)
	case protocol.Sync:
		h.handleSync(c, m)
	case protocol.VideoInfo:
		h.handleVideoInfo(c, m)
	case protocol.Ping:
		h.send(c, protocol.Pong{Type: protocol.TypePong, Timestamp: h.now()})
	}
}

func (h *Hub) handleCreateParty(c *Conn, m protocol.CreateParty) {
	res, removedFrom := h.registry.CreateParty(c.ID, m.Username, m.Password, m.Persistent)
	if removedFrom != "" {
		h.broadcastParticipants(removedFrom)
	}
	h.send(c, protocol.PartyCreated{
		Type:        protocol.TypePartyCreated,
		Timestamp:   h.now(),
		PartyCode:   res.Code,
		Username:    m.Username,
		HasPassword: res.HasPassword,
		Persistent:  res.Persistent,
	})
}

func (h *Hub) handleJoin(c *Conn, m protocol.Join) {
	res, err := h.registry.JoinParty(m.PartyCode, c.ID, m.Username, m.Password)
	if err != nil {
		h.sendError(c, joinErrorMessage(err))
		return
	}
	if res.RemovedFrom != "" && res.RemovedFrom != res.Code {
		h.broadcastParticipants(res.RemovedFrom)
	}
	h.send(c, protocol.Joined{
		Type:         protocol.TypeJoined,
		Timestamp:    h.now(),
		PartyCode:    res.Code,
		Username:     m.Username,
		Participants: res.Participants,
		Video:        res.Video,
	})
	h.broadcastParticipants(res.Code)
}

// joinErrorMessage maps registry errors to client-facing text. Wrong
// password deliberately leaks nothing about the party's membership.
func joinErrorMessage(err error) string {
	switch {
	case errors.Is(err, party.ErrPartyNotFound):
		return "party not found"
	case errors.Is(err, party.ErrWrongPassword):
		return "wrong password"
	default:
		return "join failed"
	}
}

func (h *Hub) handleLeave(c *Conn) {
	code, ok := h.registry.LeaveParty(c.ID)
	h.send(c, protocol.Left{Type: protocol.TypeLeft, Timestamp: h.now()})
	if ok {
		h.broadcastParticipants(code)
	}
}

func (h *Hub) handleSync(c *Conn, m protocol.Sync) {
	code, ok := h.registry.PartyOf(c.ID)
	if !ok {
		h.sendError(c, "not in a party")
		return
	}
	username, _ := h.registry.UsernameOf(c.ID)

	// The relayed copy keeps the sender's timestamp so receivers can
	// account for latency; only the username is added.
	frame, err := protocol.Encode(protocol.Sync{
		Type:      protocol.TypeSync,
		Timestamp: m.Timestamp,
		Action:    m.Action,
		Data:      m.Data,
		Username:  username,
	})
	if err != nil {
		log.Error().Err(err).Str("connection_id", c.ID).Msg("failed to encode sync")
		return
	}
	h.broadcastExcluding(code, frame, c.ID)
}

func (h *Hub) handleVideoInfo(c *Conn, m protocol.VideoInfo) {
	code, err := h.registry.RecordVideoInfo(c.ID, m.Data)
	if err != nil {
		h.sendError(c, "not in a party")
		return
	}
	username, _ := h.registry.UsernameOf(c.ID)

	frame, err := protocol.Encode(protocol.VideoInfo{
		Type:      protocol.TypeVideoInfo,
		Timestamp: m.Timestamp,
		Data:      m.Data,
		Username:  username,
	})
	if err != nil {
		log.Error().Err(err).Str("connection_id", c.ID).Msg("failed to encode video-info")
		return
	}
	h.broadcastExcluding(code, frame, c.ID)

	// Synced flags may have changed for everyone; refresh the roster.
	h.broadcastParticipants(code)
}

func (h *Hub) send(c *Conn, msg any) {
	frame, err := protocol.Encode(msg)
	if err != nil {
		log.Error().Err(err).Str("connection_id", c.ID).Msg("failed to encode frame")
		return
	}
	c.enqueue(frame)
}

func (h *Hub) sendError(c *Conn, message string) {
	h.send(c, protocol.Error{
		Type:      protocol.TypeError,
		Timestamp: h.now(),
		Message:   message,
	})
}
