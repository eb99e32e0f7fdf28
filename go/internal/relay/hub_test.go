package relay

import (
	"testing"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mcdev12/syncparty/go/internal/party"
)

// Delivery is best effort: a recipient whose send buffer is full is
// skipped without stalling the sender or the other recipients.
func TestDeliverSkipsUnwritableRecipient(t *testing.T) {
	clock := clockwork.NewFakeClock()
	registry := party.NewRegistry(clock)
	cfg := DefaultConnConfig()
	cfg.SendBufferSize = 1
	hub := NewHub(registry, clock, cfg)

	res, _ := registry.CreateParty("conn-a", "alice", "", false)
	_, err := registry.JoinParty(res.Code, "conn-b", "bob", "")
	require.NoError(t, err)
	_, err = registry.JoinParty(res.Code, "conn-c", "carol", "")
	require.NoError(t, err)

	// No pumps are running, so queued frames stay put and buffer
	// pressure is controllable.
	conns := make(map[string]*Conn)
	for _, id := range []string{"conn-a", "conn-b", "conn-c"} {
		c := newConn(id, hub, nil)
		hub.register(c)
		conns[id] = c
	}

	// bob's buffer is already full when the broadcast lands.
	require.True(t, conns["conn-b"].enqueue([]byte("stuck")))
	require.False(t, conns["conn-b"].enqueue([]byte("overflow")))

	hub.deliver(broadcastJob{code: res.Code, frame: []byte("event"), exclude: "conn-a"})

	assert.Len(t, conns["conn-a"].send, 0, "excluded originator receives nothing")
	assert.Equal(t, "stuck", string(<-conns["conn-b"].send), "full recipient skipped, queue untouched")
	assert.Equal(t, "event", string(<-conns["conn-c"].send), "writable recipient still delivered")
}
