package relay

import (
	"encoding/json"
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

// Handler serves WebSocket upgrade requests and the stats endpoint.
type Handler struct {
	hub      *Hub
	upgrader websocket.Upgrader
}

// NewHandler creates an HTTP handler bound to the hub.
func NewHandler(hub *Hub) *Handler {
	return &Handler{
		hub: hub,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  hub.config.ReadBufferSize,
			WriteBufferSize: hub.config.WriteBufferSize,
			CheckOrigin:     hub.config.CheckOrigin,
		},
	}
}

// HandleWS upgrades the request and hands the connection to the hub. The
// client introduces itself afterwards with a create-party or join frame;
// the upgrade itself carries no identity.
func (h *Handler) HandleWS(w http.ResponseWriter, r *http.Request) {
	ws, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Error().Err(err).Msg("websocket upgrade failed")
		return
	}

	c := newConn(uuid.New().String(), h.hub, ws)
	h.hub.register(c)

	go c.writePump()
	go c.readPump()

	log.Info().
		Str("connection_id", c.ID).
		Str("remote_addr", r.RemoteAddr).
		Msg("connection established")
}

// HandleStats reports hub and registry counters.
func (h *Handler) HandleStats(w http.ResponseWriter, r *http.Request) {
	stats := struct {
		Connections int `json:"connections"`
		Parties     int `json:"parties"`
	}{
		Connections: h.hub.Snapshot().Connections,
		Parties:     h.hub.registry.Snapshot().Parties,
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(stats); err != nil {
		log.Error().Err(err).Msg("failed to write stats")
	}
}

// RegisterRoutes registers the relay routes on a mux.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/ws", h.HandleWS)
	mux.HandleFunc("/stats", h.HandleStats)
}
