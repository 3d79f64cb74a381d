package sqlite

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/mistakeknot/peerlock/internal/core"
	"github.com/mistakeknot/peerlock/internal/storage"
)

// Sweeper runs a background goroutine that periodically evicts instance
// registrations whose heartbeat has gone stale — the automated counterpart
// of a peer calling RemoveInstanceByAddress after a failed health check.
type Sweeper struct {
	store    storage.Registry
	interval time.Duration
	grace    time.Duration // heartbeat grace period
	onEvict  func(core.Instance)
	cancel   context.CancelFunc
	done     chan struct{}
}

// NewSweeper creates a new Sweeper. Call Start() to begin sweeping.
// onEvict, if non-nil, is invoked once per evicted registration.
func NewSweeper(store storage.Registry, interval, grace time.Duration, onEvict func(core.Instance)) *Sweeper {
	return &Sweeper{
		store:    store,
		interval: interval,
		grace:    grace,
		onEvict:  onEvict,
		done:     make(chan struct{}),
	}
}

// Start launches the background sweep goroutine.
func (sw *Sweeper) Start(ctx context.Context) {
	ctx, sw.cancel = context.WithCancel(ctx)

	go func() {
		defer close(sw.done)

		ticker := time.NewTicker(sw.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				sw.runSweep()
			}
		}
	}()
}

// Stop cancels the sweep goroutine and waits for it to finish. A no-op
// when Start was never called.
func (sw *Sweeper) Stop() {
	if sw.cancel == nil {
		return
	}
	sw.cancel()
	<-sw.done
}

func (sw *Sweeper) runSweep() {
	evicted, err := sw.store.SweepStaleInstances(time.Now().Add(-sw.grace))
	if err != nil {
		log.Error().Err(err).Msg("sweeper")
		return
	}
	if len(evicted) == 0 {
		return
	}

	log.Info().Int("count", len(evicted)).Msg("sweeper: evicted stale instance registration(s)")

	if sw.onEvict != nil {
		for _, inst := range evicted {
			sw.onEvict(inst)
		}
	}
}
