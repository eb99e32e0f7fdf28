package party

import (
	"context"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
)

const (
	// DefaultReapInterval is how often the reaper sweeps for idle parties.
	DefaultReapInterval = time.Hour

	// DefaultIdleThreshold is how long a persistent party may stay empty
	// before it is deleted.
	DefaultIdleThreshold = 24 * time.Hour
)

// Reaper periodically deletes persistent parties that have been empty for
// longer than the idle threshold. Non-persistent parties never reach the
// reaper: the registry deletes them synchronously when they become empty.
type Reaper struct {
	registry  *Registry
	clock     clockwork.Clock
	interval  time.Duration
	threshold time.Duration
}

// NewReaper creates a reaper over the given registry. Zero interval or
// threshold fall back to the defaults.
func NewReaper(registry *Registry, clock clockwork.Clock, interval, threshold time.Duration) *Reaper {
	if interval <= 0 {
		interval = DefaultReapInterval
	}
	if threshold <= 0 {
		threshold = DefaultIdleThreshold
	}
	return &Reaper{
		registry:  registry,
		clock:     clock,
		interval:  interval,
		threshold: threshold,
	}
}

// Run sweeps on the configured interval until the context is cancelled.
func (rp *Reaper) Run(ctx context.Context) {
	log.Info().
		Dur("interval", rp.interval).
		Dur("threshold", rp.threshold).
		Msg("idle reaper started")

	ticker := rp.clock.NewTicker(rp.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("idle reaper shutting down")
			return
		case <-ticker.Chan():
			if n := rp.registry.ReapIdle(rp.threshold); n > 0 {
				log.Info().Int("reaped", n).Msg("idle sweep complete")
			}
		}
	}
}
