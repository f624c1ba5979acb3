package host

import (
	"context"

	"golang.org/x/sync/errgroup"
)

// ThreadPool dispatches numTasks independent calls to onTask(taskIndex),
// blocking until all of them complete. Tasks touch disjoint per-voice
// state, so no synchronization beyond the final join is required. If
// Dispatch returns an error, the caller falls back to serial processing.
type ThreadPool interface {
	Dispatch(numTasks int, onTask func(taskIndex int)) error
}

// ErrgroupThreadPool is the default in-process implementation: one
// goroutine per task via golang.org/x/sync/errgroup. Its Dispatch never
// returns an error (onTask cannot fail), so runTasks takes the serial
// fallback path only for a nil pool or a host pool whose Dispatch errors.
// MaxConcurrency caps how many tasks run at once (0 means unlimited);
// a host's CPU-count-override preference sets it.
type ErrgroupThreadPool struct {
	MaxConcurrency int
}

// Dispatch runs onTask(0..numTasks-1) concurrently (bounded by
// MaxConcurrency if set) and waits for all of them to finish.
func (p *ErrgroupThreadPool) Dispatch(numTasks int, onTask func(taskIndex int)) error {
	if numTasks <= 0 {
		return nil
	}
	g, _ := errgroup.WithContext(context.Background())
	if p.MaxConcurrency > 0 {
		g.SetLimit(p.MaxConcurrency)
	}
	for i := 0; i < numTasks; i++ {
		i := i
		g.Go(func() error {
			onTask(i)
			return nil
		})
	}
	return g.Wait()
}

// runTasks calls pool.Dispatch when a pool is configured, falling back to
// a plain serial loop when pool is nil or Dispatch returns an error --
// the audio thread must always make progress even without a working host
// thread pool.
func runTasks(pool ThreadPool, numTasks int, onTask func(int)) {
	if pool != nil {
		if err := pool.Dispatch(numTasks, onTask); err == nil {
			return
		}
	}
	for i := 0; i < numTasks; i++ {
		onTask(i)
	}
}
