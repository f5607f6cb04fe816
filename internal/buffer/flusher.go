package buffer

import (
	"context"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

// Flusher periodically writes back dirty pages once the pool's dirty count
// crosses maxDirty, so a burst of writes doesn't leave an unbounded amount
// of unflushed state (spec §4.E).
type Flusher struct {
	pool     *Pool
	interval time.Duration
	log      zerolog.Logger
}

// NewFlusher builds a background flusher for pool, ticking every interval.
func NewFlusher(pool *Pool, interval time.Duration, log zerolog.Logger) *Flusher {
	return &Flusher{pool: pool, interval: interval, log: log}
}

// Run blocks, flushing dirty pages on each tick until ctx is canceled. Run
// is meant to be launched under an errgroup.Group so its error (always nil
// unless FlushAll fails) propagates to sibling goroutines.
func (f *Flusher) Run(ctx context.Context) error {
	ticker := time.NewTicker(f.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if f.pool.DirtyCount() < f.pool.maxDirty {
				continue
			}
			if err := f.pool.FlushAll(); err != nil {
				f.log.Error().Err(err).Msg("background flush failed")
				return err
			}
		}
	}
}

// Supervisor runs the flusher (and any future background pool maintenance
// task) under a shared errgroup so a failure in one stops the others.
type Supervisor struct {
	group *errgroup.Group
	stop  context.CancelFunc
}

// StartSupervisor launches f.Run under a canceling errgroup derived from
// ctx.
func StartSupervisor(ctx context.Context, f *Flusher) *Supervisor {
	childCtx, cancel := context.WithCancel(ctx)
	g, gctx := errgroup.WithContext(childCtx)
	g.Go(func() error { return f.Run(gctx) })
	return &Supervisor{group: g, stop: cancel}
}

// Stop cancels the flusher and waits for it to exit.
func (s *Supervisor) Stop() error {
	s.stop()
	return s.group.Wait()
}
