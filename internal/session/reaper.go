package session

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/sandterm/sandterm/internal/infrastructure/logging"
	"github.com/sandterm/sandterm/internal/infrastructure/monitoring"
)

// Reaper terminates sessions idle beyond a threshold. One sweep runs per
// interval; teardown failures of individual sessions are logged and never
// abort the rest of the sweep.
type Reaper struct {
	registry  *Registry
	interval  time.Duration
	threshold time.Duration
	log       *logging.Logger
	metrics   *monitoring.Metrics

	stop     chan struct{}
	stopOnce sync.Once
	done     chan struct{}
}

// NewReaper creates a reaper for the given registry.
func NewReaper(registry *Registry, interval, threshold time.Duration, log *logging.Logger, metrics *monitoring.Metrics) *Reaper {
	if log == nil {
		log = logging.NewNop()
	}
	return &Reaper{
		registry:  registry,
		interval:  interval,
		threshold: threshold,
		log:       log,
		metrics:   metrics,
		stop:      make(chan struct{}),
		done:      make(chan struct{}),
	}
}

// Start launches the background sweep loop.
func (r *Reaper) Start() {
	go func() {
		defer close(r.done)

		ticker := time.NewTicker(r.interval)
		defer ticker.Stop()

		for {
			select {
			case now := <-ticker.C:
				r.Sweep(context.Background(), now)
			case <-r.stop:
				return
			}
		}
	}()
}

// Stop halts the loop and waits for an in-flight sweep to finish.
func (r *Reaper) Stop() {
	r.stopOnce.Do(func() { close(r.stop) })
	<-r.done
}

// Sweep terminates every session idle past the threshold at the given
// instant and returns how many were reaped.
func (r *Reaper) Sweep(ctx context.Context, now time.Time) int {
	stale := r.registry.ListStale(r.threshold, now)
	for _, sid := range stale {
		r.log.Info("reaping idle session", zap.String("session_id", sid))
		if err := r.registry.Terminate(ctx, sid); err != nil {
			r.log.Error("failed to reap session",
				zap.String("session_id", sid),
				zap.Error(err),
			)
			continue
		}
		if r.metrics != nil {
			r.metrics.SessionsReaped.Inc()
		}
	}
	return len(stale)
}
