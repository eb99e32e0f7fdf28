package client

import (
	"math"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

// State is the sync controller's echo-suppression state.
type State int

const (
	// StateIdle passes local player events through (subject to cooldown).
	StateIdle State = iota

	// StateSuspendingEcho swallows local player events until the suspend
	// deadline passes; the player's native callbacks for a just-applied
	// remote change fire inside this window.
	StateSuspendingEcho
)

// ControllerConfig tunes the sync controller.
type ControllerConfig struct {
	// Cooldown is the minimum gap between outbound events; bursts of
	// rapid native events inside the window are dropped.
	Cooldown time.Duration

	// SuspendWindow is how long local events stay swallowed after a
	// remote event is applied. Never shorter than Cooldown.
	SuspendWindow time.Duration

	// DriftTolerance is the minimum position discrepancy, in seconds,
	// before a remote seek is applied locally. Smaller differences are
	// latency noise, not desynchronization.
	DriftTolerance float64
}

// DefaultControllerConfig returns the standard tuning.
func DefaultControllerConfig() ControllerConfig {
	return ControllerConfig{
		Cooldown:       500 * time.Millisecond,
		SuspendWindow:  time.Second,
		DriftTolerance: 2.0,
	}
}

// Controller implements the protocol contract every conforming client must
// satisfy: echo suppression for remotely-applied changes, an outbound
// cooldown, and the drift policy for position corrections. It is player
// technology agnostic.
type Controller struct {
	mu    sync.Mutex
	clock clockwork.Clock
	cfg   ControllerConfig

	// suspendUntil is the SuspendingEcho deadline; zero (or past) means
	// Idle. The timeout-based auto-clear is this explicit comparison,
	// not a background timer.
	suspendUntil time.Time
	lastOutbound time.Time
}

// NewController creates a controller. A suspend window shorter than the
// cooldown would let an echo escape right after the window closes, so it
// is raised to the cooldown.
func NewController(clock clockwork.Clock, cfg ControllerConfig) *Controller {
	if cfg.SuspendWindow < cfg.Cooldown {
		cfg.SuspendWindow = cfg.Cooldown
	}
	return &Controller{clock: clock, cfg: cfg}
}

// State reports the current echo-suppression state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.clock.Now().Before(c.suspendUntil) {
		return StateSuspendingEcho
	}
	return StateIdle
}

// AllowOutbound decides whether a local player event may be sent. It
// returns false while suspending echo or within the cooldown window of
// the previous outbound event; a true result counts as the new last
// outbound event.
func (c *Controller) AllowOutbound() bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.clock.Now()
	if now.Before(c.suspendUntil) {
		return false
	}
	if !c.lastOutbound.IsZero() && now.Sub(c.lastOutbound) < c.cfg.Cooldown {
		return false
	}
	c.lastOutbound = now
	return true
}

// BeginRemoteApply enters SuspendingEcho before a remote event is applied
// to the local player, so the mutation's own native events are swallowed.
func (c *Controller) BeginRemoteApply() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.suspendUntil = c.clock.Now().Add(c.cfg.SuspendWindow)
}

// ShouldCorrectDrift reports whether a remote position warrants a local
// seek.
func (c *Controller) ShouldCorrectDrift(localPos, remotePos float64) bool {
	return math.Abs(localPos-remotePos) > c.cfg.DriftTolerance
}
