package lockfree

import (
	"sync"
	"time"
)

// WorkSignaller is a futex-style single-bit signal: Signal sets the bit and
// wakes one waiter if the bit was previously clear; WaitUntilSignalled
// atomically clears the bit and returns immediately if it was set, or
// blocks (optionally with a timeout) until Signal is called.
//
// Go has no portable public futex syscall, so this is backed by a
// sync.Mutex/sync.Cond pair rather than a raw atomic wait -- the fast path
// (bit already set) never blocks, which is what matters for the callers in
// this package (the loader thread waking on a new request, the reaper
// waking on a zero refcount).
type WorkSignaller struct {
	mu        sync.Mutex
	cond      *sync.Cond
	signalled bool
}

// NewWorkSignaller creates a ready-to-use signaller.
func NewWorkSignaller() *WorkSignaller {
	s := &WorkSignaller{}
	s.cond = sync.NewCond(&s.mu)
	return s
}

// Signal sets the bit and wakes one waiter.
func (s *WorkSignaller) Signal() {
	s.mu.Lock()
	wasClear := !s.signalled
	s.signalled = true
	s.mu.Unlock()
	if wasClear {
		s.cond.Signal()
	}
}

// WaitUntilSignalled clears the bit and returns true if it was set;
// otherwise blocks until Signal is called or the timeout elapses (timeout
// <= 0 means wait forever).
func (s *WorkSignaller) WaitUntilSignalled(timeout time.Duration) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.signalled {
		s.signalled = false
		return true
	}
	if timeout <= 0 {
		for !s.signalled {
			s.cond.Wait()
		}
		s.signalled = false
		return true
	}

	done := make(chan struct{})
	timedOut := false
	timer := time.AfterFunc(timeout, func() {
		s.mu.Lock()
		timedOut = true
		s.mu.Unlock()
		s.cond.Broadcast()
		close(done)
	})
	defer timer.Stop()

	for !s.signalled && !timedOut {
		s.cond.Wait()
	}
	if s.signalled {
		s.signalled = false
		return true
	}
	return false
}
