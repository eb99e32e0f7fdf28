package relay_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mcdev12/syncparty/go/internal/party"
	"github.com/mcdev12/syncparty/go/internal/relay"
)

func startRelay(t *testing.T) (*httptest.Server, *party.Registry) {
	t.Helper()
	return startRelayWithConfig(t, relay.DefaultConnConfig())
}

func startRelayWithConfig(t *testing.T, cfg relay.ConnConfig) (*httptest.Server, *party.Registry) {
	t.Helper()

	clock := clockwork.NewRealClock()
	registry := party.NewRegistry(clock)
	hub := relay.NewHub(registry, clock, cfg)
	handler := relay.NewHandler(hub)

	ctx, cancel := context.WithCancel(context.Background())
	go hub.Run(ctx)

	srv := httptest.NewServer(http.HandlerFunc(handler.HandleWS))
	t.Cleanup(func() {
		srv.Close()
		cancel()
	})
	return srv, registry
}

type wsClient struct {
	t  *testing.T
	ws *websocket.Conn
}

func dial(t *testing.T, srv *httptest.Server) *wsClient {
	t.Helper()

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	ws, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { ws.Close() })
	return &wsClient{t: t, ws: ws}
}

func (c *wsClient) send(v map[string]any) {
	c.t.Helper()
	require.NoError(c.t, c.ws.WriteJSON(v))
}

// recv reads the next frame, failing the test after two seconds.
func (c *wsClient) recv() map[string]any {
	c.t.Helper()

	c.ws.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, frame, err := c.ws.ReadMessage()
	require.NoError(c.t, err)

	var msg map[string]any
	require.NoError(c.t, json.Unmarshal(frame, &msg))
	return msg
}

// expectSilence asserts no frame arrives within the window. The
// connection is unusable afterwards; call last.
func (c *wsClient) expectSilence(window time.Duration) {
	c.t.Helper()

	c.ws.SetReadDeadline(time.Now().Add(window))
	_, frame, err := c.ws.ReadMessage()
	require.Error(c.t, err, "unexpected frame: %s", frame)
}

const codeAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

func TestCreateJoinSyncScenario(t *testing.T) {
	srv, _ := startRelay(t)

	alice := dial(t, srv)
	alice.send(map[string]any{
		"type": "create-party", "timestamp": 1, "username": "alice", "password": "hunter2",
	})
	created := alice.recv()
	require.Equal(t, "party-created", created["type"])
	code := created["partyCode"].(string)
	require.Len(t, code, 6)
	for _, r := range code {
		assert.True(t, strings.ContainsRune(codeAlphabet, r))
	}
	assert.Equal(t, "alice", created["username"])
	assert.Equal(t, true, created["hasPassword"])
	assert.Equal(t, false, created["persistent"])

	bob := dial(t, srv)
	bob.send(map[string]any{
		"type": "join", "timestamp": 2, "partyCode": code, "username": "bob", "password": "hunter2",
	})
	joined := bob.recv()
	require.Equal(t, "joined", joined["type"])
	assert.Equal(t, code, joined["partyCode"])
	require.Len(t, joined["participants"].([]any), 2)

	// Both receive the roster refresh listing two entries.
	aliceRoster := alice.recv()
	require.Equal(t, "participants", aliceRoster["type"])
	assert.Len(t, aliceRoster["participants"].([]any), 2)

	bobRoster := bob.recv()
	require.Equal(t, "participants", bobRoster["type"])
	assert.Len(t, bobRoster["participants"].([]any), 2)

	// alice plays at 120.5; only bob receives the relayed event.
	alice.send(map[string]any{
		"type": "sync", "timestamp": 3, "action": "play",
		"data": map[string]any{"currentTime": 120.5},
	})
	sync := bob.recv()
	require.Equal(t, "sync", sync["type"])
	assert.Equal(t, "play", sync["action"])
	assert.Equal(t, 120.5, sync["data"].(map[string]any)["currentTime"])
	assert.Equal(t, "alice", sync["username"])

	alice.expectSilence(300 * time.Millisecond)
}

func TestJoinWrongPassword(t *testing.T) {
	srv, registry := startRelay(t)

	alice := dial(t, srv)
	alice.send(map[string]any{
		"type": "create-party", "timestamp": 1, "username": "alice", "password": "hunter2",
	})
	code := alice.recv()["partyCode"].(string)

	bob := dial(t, srv)
	bob.send(map[string]any{
		"type": "join", "timestamp": 2, "partyCode": code, "username": "bob", "password": "nope",
	})
	errMsg := bob.recv()
	require.Equal(t, "error", errMsg["type"])
	assert.Equal(t, "wrong password", errMsg["message"])

	views, ok := registry.ListParticipants(code)
	require.True(t, ok)
	assert.Len(t, views, 1, "failed join must not mutate membership")
}

func TestJoinUnknownCode(t *testing.T) {
	srv, _ := startRelay(t)

	bob := dial(t, srv)
	bob.send(map[string]any{
		"type": "join", "timestamp": 1, "partyCode": "ZZZZZZ", "username": "bob",
	})
	errMsg := bob.recv()
	require.Equal(t, "error", errMsg["type"])
	assert.Equal(t, "party not found", errMsg["message"])
}

func TestVideoInfoRelayAndRosterRefresh(t *testing.T) {
	srv, _ := startRelay(t)

	alice := dial(t, srv)
	alice.send(map[string]any{
		"type": "create-party", "timestamp": 1, "username": "alice",
	})
	code := alice.recv()["partyCode"].(string)

	bob := dial(t, srv)
	bob.send(map[string]any{
		"type": "join", "timestamp": 2, "partyCode": code, "username": "bob",
	})
	bob.recv()   // joined
	alice.recv() // participants
	bob.recv()   // participants

	alice.send(map[string]any{
		"type": "video-info", "timestamp": 3,
		"data": map[string]any{"url": "https://example.com/v", "title": "V", "duration": 3600},
	})

	// bob gets the relayed descriptor with the sender's name.
	info := bob.recv()
	require.Equal(t, "video-info", info["type"])
	assert.Equal(t, "alice", info["username"])
	assert.Equal(t, "https://example.com/v", info["data"].(map[string]any)["url"])

	// Everyone gets a roster refresh with recomputed synced flags.
	for name, c := range map[string]*wsClient{"alice": alice, "bob": bob} {
		roster := c.recv()
		require.Equal(t, "participants", roster["type"], "client %s", name)
		byName := make(map[string]map[string]any)
		for _, raw := range roster["participants"].([]any) {
			p := raw.(map[string]any)
			byName[p["username"].(string)] = p
		}
		assert.Equal(t, true, byName["alice"]["synced"])
		assert.Equal(t, false, byName["bob"]["synced"])
	}
}

func TestSyncWithoutParty(t *testing.T) {
	srv, _ := startRelay(t)

	c := dial(t, srv)
	c.send(map[string]any{
		"type": "sync", "timestamp": 1, "action": "pause", "data": map[string]any{},
	})
	errMsg := c.recv()
	require.Equal(t, "error", errMsg["type"])
	assert.Equal(t, "not in a party", errMsg["message"])
}

func TestUnknownTypeAnswered(t *testing.T) {
	srv, _ := startRelay(t)

	c := dial(t, srv)
	c.send(map[string]any{"type": "self-destruct", "timestamp": 1})
	errMsg := c.recv()
	require.Equal(t, "error", errMsg["type"])
	assert.Contains(t, errMsg["message"], "self-destruct")

	// The connection stays open and usable.
	c.send(map[string]any{"type": "ping", "timestamp": 2})
	assert.Equal(t, "pong", c.recv()["type"])
}

func TestMalformedFrameAnswered(t *testing.T) {
	srv, _ := startRelay(t)

	c := dial(t, srv)
	require.NoError(t, c.ws.WriteMessage(websocket.TextMessage, []byte("{not json")))
	errMsg := c.recv()
	require.Equal(t, "error", errMsg["type"])

	c.send(map[string]any{"type": "ping", "timestamp": 1})
	assert.Equal(t, "pong", c.recv()["type"])
}

func TestPingPong(t *testing.T) {
	srv, _ := startRelay(t)

	c := dial(t, srv)
	c.send(map[string]any{"type": "ping", "timestamp": 1})
	pong := c.recv()
	assert.Equal(t, "pong", pong["type"])
	assert.NotZero(t, pong["timestamp"])
}

func TestLeaveBroadcastsRoster(t *testing.T) {
	srv, _ := startRelay(t)

	alice := dial(t, srv)
	alice.send(map[string]any{
		"type": "create-party", "timestamp": 1, "username": "alice",
	})
	code := alice.recv()["partyCode"].(string)

	bob := dial(t, srv)
	bob.send(map[string]any{
		"type": "join", "timestamp": 2, "partyCode": code, "username": "bob",
	})
	bob.recv()   // joined
	alice.recv() // participants
	bob.recv()   // participants

	bob.send(map[string]any{"type": "leave", "timestamp": 3})
	left := bob.recv()
	require.Equal(t, "left", left["type"])

	roster := alice.recv()
	require.Equal(t, "participants", roster["type"])
	assert.Len(t, roster["participants"].([]any), 1)
}

func TestDisconnectActsAsLeave(t *testing.T) {
	srv, _ := startRelay(t)

	alice := dial(t, srv)
	alice.send(map[string]any{
		"type": "create-party", "timestamp": 1, "username": "alice",
	})
	code := alice.recv()["partyCode"].(string)

	bob := dial(t, srv)
	bob.send(map[string]any{
		"type": "join", "timestamp": 2, "partyCode": code, "username": "bob",
	})
	bob.recv()   // joined
	alice.recv() // participants
	bob.recv()   // participants

	// Abrupt close: no leave frame, no explicit error surfaced to alice,
	// just the roster update.
	bob.ws.Close()

	roster := alice.recv()
	require.Equal(t, "participants", roster["type"])
	assert.Len(t, roster["participants"].([]any), 1)
}

func TestNonPersistentPartyDeletedAfterLastDisconnect(t *testing.T) {
	srv, registry := startRelay(t)

	alice := dial(t, srv)
	alice.send(map[string]any{
		"type": "create-party", "timestamp": 1, "username": "alice",
	})
	code := alice.recv()["partyCode"].(string)

	alice.ws.Close()

	require.Eventually(t, func() bool {
		_, ok := registry.ListParticipants(code)
		return !ok
	}, 2*time.Second, 10*time.Millisecond)
}

func TestPersistentPartySurvivesDisconnect(t *testing.T) {
	srv, registry := startRelay(t)

	alice := dial(t, srv)
	alice.send(map[string]any{
		"type": "create-party", "timestamp": 1, "username": "alice", "persistent": true,
	})
	code := alice.recv()["partyCode"].(string)

	alice.ws.Close()

	require.Eventually(t, func() bool {
		return registry.Snapshot().Participants == 0
	}, 2*time.Second, 10*time.Millisecond)

	// The empty persistent party is still joinable.
	bob := dial(t, srv)
	bob.send(map[string]any{
		"type": "join", "timestamp": 2, "partyCode": code, "username": "bob",
	})
	assert.Equal(t, "joined", bob.recv()["type"])
}

func TestUnresponsiveClientEvicted(t *testing.T) {
	cfg := relay.DefaultConnConfig()
	cfg.PingInterval = 50 * time.Millisecond
	cfg.PongWait = 150 * time.Millisecond
	srv, registry := startRelayWithConfig(t, cfg)

	alice := dial(t, srv)
	alice.send(map[string]any{
		"type": "create-party", "timestamp": 1, "username": "alice",
	})
	code := alice.recv()["partyCode"].(string)

	bob := dial(t, srv)
	// bob swallows the server's liveness probes instead of answering
	// them: a socket that is technically open but whose peer is gone.
	bob.ws.SetPingHandler(func(string) error { return nil })
	bob.send(map[string]any{
		"type": "join", "timestamp": 2, "partyCode": code, "username": "bob",
	})
	bob.recv()   // joined
	alice.recv() // participants
	bob.recv()   // participants

	// The probe deadline passes with no pong; the server tears bob down
	// and the survivors get the membership change.
	roster := alice.recv()
	require.Equal(t, "participants", roster["type"])
	assert.Len(t, roster["participants"].([]any), 1)

	// Teardown detaches bob before the roster goes out, so by now the
	// registry reflects the eviction.
	assert.Equal(t, 1, registry.Snapshot().Participants)

	// bob's side of the socket is closed by the server.
	bob.ws.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, _, err := bob.ws.ReadMessage()
	assert.Error(t, err)
}

func TestSwitchingPartiesUpdatesBothRosters(t *testing.T) {
	srv, registry := startRelay(t)

	alice := dial(t, srv)
	alice.send(map[string]any{
		"type": "create-party", "timestamp": 1, "username": "alice",
	})
	first := alice.recv()["partyCode"].(string)

	bob := dial(t, srv)
	bob.send(map[string]any{
		"type": "create-party", "timestamp": 2, "username": "bob",
	})
	second := bob.recv()["partyCode"].(string)
	require.NotEqual(t, first, second)

	// bob abandons his own party for alice's; membership is exclusive.
	bob.send(map[string]any{
		"type": "join", "timestamp": 3, "partyCode": first, "username": "bob",
	})
	joined := bob.recv()
	require.Equal(t, "joined", joined["type"])
	assert.Equal(t, first, joined["partyCode"])

	require.Eventually(t, func() bool {
		_, ok := registry.ListParticipants(second)
		return !ok
	}, 2*time.Second, 10*time.Millisecond, "bob's empty party should be deleted")
}
