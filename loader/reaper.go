package loader

import (
	"time"

	"github.com/cwbudde/floe-core/sample"
)

// Reaper periodically frees assets whose reference counts have dropped to
// zero: dead-listed library nodes with no outstanding reader retains, and
// cached instruments/audio whose count has reached zero. It is meant to run as
// part of the loader thread's own loop so it never races the loader's
// cache mutations under a different lock.
type Reaper struct {
	loader   *Loader
	interval time.Duration
}

// NewReaper returns a reaper bound to loader, sweeping at the given
// interval when run via Run.
func NewReaper(loader *Loader, interval time.Duration) *Reaper {
	return &Reaper{loader: loader, interval: interval}
}

// Run sweeps at r.interval until stop is closed.
func (r *Reaper) Run(stop <-chan struct{}) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			r.RunOnce()
		}
	}
}

// RunOnce performs a single sweep: dead library nodes first, then cached
// instruments with a zero refcount (releasing the AudioData they reference
// in turn), then any AudioData that reached zero on its own.
func (r *Reaper) RunOnce() {
	r.loader.libraries.DeleteRemovedAndUnreferenced(func(*sample.Library) {})

	l := r.loader
	l.mu.Lock()
	defer l.mu.Unlock()

	for id, loaded := range l.instrumentCache {
		if loaded.RefCount() > 0 {
			continue
		}
		delete(l.instrumentCache, id)
		l.InstrumentsLoaded.Add(-1)
		for _, path := range loaded.paths {
			l.releaseAudioLocked(path)
		}
	}

	for path, data := range l.audioCache {
		if data.RefCount() > 0 {
			continue
		}
		delete(l.audioCache, path)
		l.BytesUsed.Add(-int64(data.NumFrames) * int64(data.NumChannels()) * 4)
		l.SamplesLoaded.Add(-1)
	}
}

// releaseAudioLocked drops one reference to the cached audio at path and
// frees it from the cache once it reaches zero. Called with l.mu held.
func (l *Loader) releaseAudioLocked(path string) {
	data, ok := l.audioCache[path]
	if !ok {
		return
	}
	if data.Release() > 0 {
		return
	}
	delete(l.audioCache, path)
	bytes := int64(data.NumFrames) * int64(data.NumChannels()) * 4
	l.BytesUsed.Add(-bytes)
	l.SamplesLoaded.Add(-1)
}
