package lockmgr

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"
)

// Heartbeater refreshes the manager's registration on a fixed cadence so
// peers (and the sweeper) can tell a live instance from a crashed one.
type Heartbeater struct {
	mgr      *Manager
	interval time.Duration
	cancel   context.CancelFunc
	done     chan struct{}
}

// NewHeartbeater creates a Heartbeater. Call Start() to begin touching.
func NewHeartbeater(mgr *Manager, interval time.Duration) *Heartbeater {
	return &Heartbeater{
		mgr:      mgr,
		interval: interval,
		done:     make(chan struct{}),
	}
}

// Start launches the background heartbeat goroutine.
func (h *Heartbeater) Start(ctx context.Context) {
	ctx, h.cancel = context.WithCancel(ctx)

	go func() {
		defer close(h.done)

		ticker := time.NewTicker(h.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := h.mgr.TouchInstance(); err != nil {
					log.Error().Err(err).Str("instance", h.mgr.InstanceAddress()).Msg("heartbeat")
				}
			}
		}
	}()
}

// Stop cancels the heartbeat goroutine and waits for it to finish. A
// no-op when Start was never called.
func (h *Heartbeater) Stop() {
	if h.cancel == nil {
		return
	}
	h.cancel()
	<-h.done
}
