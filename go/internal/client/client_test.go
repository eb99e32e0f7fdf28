package client

import (
	"testing"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mcdev12/syncparty/go/internal/protocol"
)

// fakePlayer records mutations and can fire a native callback
// synchronously from Pause, the way a real player element does.
type fakePlayer struct {
	playing  bool
	position float64
	rate     float64
	seeks    []float64

	onPause func()
}

func (p *fakePlayer) Play() { p.playing = true }

func (p *fakePlayer) Pause() {
	p.playing = false
	if p.onPause != nil {
		p.onPause()
	}
}

func (p *fakePlayer) SeekTo(seconds float64) {
	p.position = seconds
	p.seeks = append(p.seeks, seconds)
}

func (p *fakePlayer) SetRate(rate float64) { p.rate = rate }

func (p *fakePlayer) Position() float64 { return p.position }

func newTestClient(t *testing.T, player Player) (*Client, *clockwork.FakeClock) {
	t.Helper()
	clock := clockwork.NewFakeClock()
	cfg := DefaultConfig("ws://localhost:0/ws", "alice")
	return New(cfg, clock, player, Handlers{}), clock
}

func floatPtr(f float64) *float64 { return &f }

func TestRemotePauseDoesNotEchoOutbound(t *testing.T) {
	player := &fakePlayer{playing: true, position: 100}
	c, _ := newTestClient(t, player)

	var echoed bool
	player.onPause = func() {
		// The native pause callback fires synchronously during apply;
		// the outbound rule must swallow it.
		echoed = c.LocalEvent(protocol.ActionPause, protocol.SyncData{CurrentTime: floatPtr(player.position)})
	}

	c.applyRemoteSync(protocol.Sync{
		Type:   protocol.TypeSync,
		Action: protocol.ActionPause,
		Data:   protocol.SyncData{CurrentTime: floatPtr(100.5)},
	})

	assert.False(t, player.playing, "remote pause must reach the player")
	assert.False(t, echoed, "remote pause must not be re-broadcast")
	assert.Equal(t, StateSuspendingEcho, c.Controller().State())
}

func TestRemoteSeekRespectsDriftTolerance(t *testing.T) {
	player := &fakePlayer{position: 100}
	c, _ := newTestClient(t, player)

	// Within tolerance: no visible micro-jump.
	c.applyRemoteSync(protocol.Sync{
		Type:   protocol.TypeSync,
		Action: protocol.ActionSeek,
		Data:   protocol.SyncData{CurrentTime: floatPtr(101)},
	})
	assert.Empty(t, player.seeks)

	// Beyond tolerance: correct the position.
	c.applyRemoteSync(protocol.Sync{
		Type:   protocol.TypeSync,
		Action: protocol.ActionSeek,
		Data:   protocol.SyncData{CurrentTime: floatPtr(150)},
	})
	require.Equal(t, []float64{150}, player.seeks)
	assert.Equal(t, 150.0, player.position)
}

func TestRemotePlayAppliesPositionAndState(t *testing.T) {
	player := &fakePlayer{position: 10}
	c, _ := newTestClient(t, player)

	c.applyRemoteSync(protocol.Sync{
		Type:   protocol.TypeSync,
		Action: protocol.ActionPlay,
		Data:   protocol.SyncData{CurrentTime: floatPtr(120.5)},
	})

	assert.True(t, player.playing)
	assert.Equal(t, 120.5, player.position)
}

func TestRemoteRateChange(t *testing.T) {
	player := &fakePlayer{}
	c, _ := newTestClient(t, player)

	c.applyRemoteSync(protocol.Sync{
		Type:   protocol.TypeSync,
		Action: protocol.ActionRateChange,
		Data:   protocol.SyncData{PlaybackRate: floatPtr(1.5)},
	})

	assert.Equal(t, 1.5, player.rate)
}

func TestLocalEventAfterSuspendWindow(t *testing.T) {
	player := &fakePlayer{position: 100}
	c, clock := newTestClient(t, player)

	c.applyRemoteSync(protocol.Sync{
		Type:   protocol.TypeSync,
		Action: protocol.ActionPause,
		Data:   protocol.SyncData{},
	})
	assert.False(t, c.LocalEvent(protocol.ActionPause, protocol.SyncData{}))

	clock.Advance(DefaultControllerConfig().SuspendWindow * 2)
	assert.True(t, c.LocalEvent(protocol.ActionPlay, protocol.SyncData{}),
		"a genuine local event after the window goes out")
}

func TestNilPlayerIgnoresRemoteSync(t *testing.T) {
	c, _ := newTestClient(t, nil)

	// Listen-only clients simply observe; no panic, no state change.
	c.applyRemoteSync(protocol.Sync{
		Type:   protocol.TypeSync,
		Action: protocol.ActionPlay,
		Data:   protocol.SyncData{CurrentTime: floatPtr(1)},
	})
	assert.Equal(t, StateIdle, c.Controller().State())
}
