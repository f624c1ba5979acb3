package loader

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cwbudde/floe-core/internal/lockfree"
	"github.com/cwbudde/floe-core/sample"
)

// LoadedInstrument pairs a resolved Instrument with a reference count: the
// loader's own cache entry holds one reference, and every LoadResult
// delivered with OutcomeSuccess carries one more that belongs to the
// request's caller. Layers add no references of their own, and nothing in
// this package drops the cache's reference (RemoveLibrary included). The
// reaper frees it, and releases the AudioData its regions reference, once
// the count reaches zero.
type LoadedInstrument struct {
	Instrument *sample.Instrument

	refs  lockfree.SimpleRefCount
	paths []string // distinct SourcePath values across Instrument.Regions
}

func newLoadedInstrument(instrument *sample.Instrument, paths []string) *LoadedInstrument {
	li := &LoadedInstrument{Instrument: instrument, paths: paths}
	li.refs.Retain()
	return li
}

// Retain adds a reference. The loader calls it for each successful
// LoadResult it delivers.
func (li *LoadedInstrument) Retain() { li.refs.Retain() }

// Release drops a reference. The reaper frees the instrument once this and
// the loader's own cache reference both reach zero.
func (li *LoadedInstrument) Release() int32 { return li.refs.Release() }

// RefCount returns a racy snapshot of the current count.
func (li *LoadedInstrument) RefCount() int32 { return li.refs.Load() }

// RegionsFor forwards to the wrapped Instrument, satisfying
// layer.InstrumentSource so a layer can build a voice's samplers from a
// LoadedInstrument without this package or that one importing each
// other.
func (li *LoadedInstrument) RegionsFor(note int, velocity01, timbre01 float32) []*sample.Region {
	return li.Instrument.RegionsFor(note, velocity01, timbre01)
}

// Loader runs on its own thread, consuming load requests, decoding audio
// files, and publishing resolved instruments back to callers. It never
// touches the audio thread's state directly.
type Loader struct {
	queue     *lockfree.ThreadsafeQueue[LoadRequest]
	libraries lockfree.AtomicRefList[*sample.Library]
	decoder   sample.AudioFileDecoder

	nextRequestID atomic.Uint64

	mu              sync.Mutex
	latest          map[supersedeKey]RequestId
	audioCache      map[string]*sample.AudioData
	instrumentCache map[sample.InstrumentId]*LoadedInstrument

	// BytesUsed, InstrumentsLoaded and SamplesLoaded are purely
	// observational counters the GUI thread reads with relaxed ordering.
	BytesUsed         atomic.Int64
	InstrumentsLoaded atomic.Int32
	SamplesLoaded     atomic.Int32

	// MaxMemoryBytes is an optional advisory budget (0 disables the
	// check) set from the host's max-memory preference. The reaper
	// doesn't evict retained assets to honor it -- only OverBudget
	// reports the breach, so a host can refuse further load requests
	// until the reaper's normal zero-refcount sweep catches up.
	MaxMemoryBytes atomic.Int64
}

// OverBudget reports whether BytesUsed currently exceeds MaxMemoryBytes.
// Always false while MaxMemoryBytes is unset (0).
func (l *Loader) OverBudget() bool {
	budget := l.MaxMemoryBytes.Load()
	return budget > 0 && l.BytesUsed.Load() > budget
}

// NewLoader returns a loader ready to have libraries added and requests
// sent. decoder is typically sample.WAVDecoder{}.
func NewLoader(decoder sample.AudioFileDecoder) *Loader {
	return &Loader{
		queue:           lockfree.NewThreadsafeQueue[LoadRequest](),
		decoder:         decoder,
		latest:          make(map[supersedeKey]RequestId),
		audioCache:      make(map[string]*sample.AudioData),
		instrumentCache: make(map[sample.InstrumentId]*LoadedInstrument),
	}
}

// AddLibrary makes a library's instruments resolvable by SendLoadRequest.
// Writer-only: call only from the loader thread.
func (l *Loader) AddLibrary(lib *sample.Library) {
	l.libraries.Add(lib)
}

// RemoveLibrary unlinks a library by identity. Instruments already resolved
// from it keep working until the reaper frees them. Writer-only.
func (l *Loader) RemoveLibrary(author, name string) bool {
	return l.libraries.Remove(func(lib *sample.Library) bool {
		a, n := lib.Id()
		return a == author && n == name
	})
}

// SendLoadRequest assigns req a RequestId, records it as the latest
// outstanding request for its (connection, layer) pair, and enqueues it for
// the loader thread. Any previously queued or in-flight request sharing
// that pair that would have succeeded resolves as OutcomeCancelled instead
// of delivering its instrument; one that fails still reports OutcomeError.
// Safe to call from any thread except the audio thread.
func (l *Loader) SendLoadRequest(req LoadRequest) RequestId {
	req.ID = RequestId(l.nextRequestID.Add(1))

	key := supersedeKey{connection: req.Connection, layer: req.LayerIndex}
	l.mu.Lock()
	l.latest[key] = req.ID
	l.mu.Unlock()

	l.queue.Push(req)
	return req.ID
}

// Run processes queued requests until stop is closed. It is meant to be the
// body of the loader's dedicated goroutine.
func (l *Loader) Run(stop <-chan struct{}) {
	for {
		select {
		case <-stop:
			return
		default:
		}
		if !l.queue.Signal().WaitUntilSignalled(200 * time.Millisecond) {
			continue
		}
		l.ProcessPending()
	}
}

// ProcessPending drains and resolves whatever requests are currently
// queued, without blocking. Lets tests and caller-driven loops exercise the
// loader without its own goroutine.
func (l *Loader) ProcessPending() {
	for _, req := range l.queue.DrainAll() {
		l.process(req)
	}
}

func (l *Loader) process(req LoadRequest) {
	result := l.resolve(req)

	key := supersedeKey{connection: req.Connection, layer: req.LayerIndex}
	l.mu.Lock()
	superseded := l.latest[key] != req.ID
	l.mu.Unlock()
	if superseded && result.Outcome == OutcomeSuccess {
		if result.Instrument != nil {
			result.Instrument.Release()
		}
		result = LoadResult{ID: req.ID, Outcome: OutcomeCancelled}
	}

	if req.Callback != nil {
		req.Callback(result)
	}
}

func (l *Loader) resolve(req LoadRequest) LoadResult {
	id := req.instrumentId()

	l.mu.Lock()
	if cached, ok := l.instrumentCache[id]; ok {
		cached.Retain()
		l.mu.Unlock()
		return LoadResult{ID: req.ID, Outcome: OutcomeSuccess, Instrument: cached}
	}
	l.mu.Unlock()

	handle, ok := l.libraries.Find(func(lib *sample.Library) bool {
		a, n := lib.Id()
		return a == req.LibraryAuthor && n == req.LibraryName
	})
	if !ok {
		return LoadResult{ID: req.ID, Outcome: OutcomeError, Err: ErrLibraryNotFound}
	}
	defer handle.Release()
	lib := handle.Value()

	instrument, ok := lib.Instruments[req.InstrumentName]
	if !ok {
		return LoadResult{ID: req.ID, Outcome: OutcomeError, Err: ErrInstrumentNotFound}
	}

	paths, err := l.ensureRegionsDecoded(instrument)
	if err != nil {
		return LoadResult{ID: req.ID, Outcome: OutcomeError, Err: ErrDecodeFailed}
	}

	// newLoadedInstrument's initial ref belongs to the cache entry itself;
	// the caller gets its own on top, so releasing a delivered result never
	// starves the cache.
	loaded := newLoadedInstrument(instrument, paths)
	loaded.Retain()
	l.mu.Lock()
	l.instrumentCache[id] = loaded
	l.mu.Unlock()
	l.InstrumentsLoaded.Add(1)

	return LoadResult{ID: req.ID, Outcome: OutcomeSuccess, Instrument: loaded}
}

// ensureRegionsDecoded decodes any region's audio that is not already
// resident, reusing (and ref-counting) a cache entry when two regions share
// a SourcePath. It returns the distinct paths this instrument now depends
// on, so the reaper can release them when the instrument is freed.
func (l *Loader) ensureRegionsDecoded(instrument *sample.Instrument) ([]string, error) {
	var paths []string
	seen := make(map[string]bool)

	for _, region := range instrument.Regions {
		if region.Audio != nil || region.SourcePath == "" {
			continue
		}

		l.mu.Lock()
		data, cached := l.audioCache[region.SourcePath]
		if cached {
			data.Retain()
		}
		l.mu.Unlock()

		if !cached {
			decoded, err := l.decoder.Decode(region.SourcePath)
			if err != nil {
				return nil, fmt.Errorf("loader: decode %s: %w", region.SourcePath, err)
			}
			l.mu.Lock()
			if existing, raced := l.audioCache[region.SourcePath]; raced {
				existing.Retain()
				data = existing
			} else {
				l.audioCache[region.SourcePath] = decoded
				data = decoded
				l.trackNewAudio(decoded)
			}
			l.mu.Unlock()
		}

		region.Audio = data
		if !seen[region.SourcePath] {
			seen[region.SourcePath] = true
			paths = append(paths, region.SourcePath)
		}
	}

	return paths, nil
}

// trackNewAudio updates the memory-accounting counters for a freshly
// decoded (not cache-reused) AudioData. Called with l.mu held.
func (l *Loader) trackNewAudio(data *sample.AudioData) {
	bytes := int64(data.NumFrames) * int64(data.NumChannels()) * 4
	l.BytesUsed.Add(bytes)
	l.SamplesLoaded.Add(1)
}
