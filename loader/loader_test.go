package loader

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/cwbudde/floe-core/sample"
)

// countingDecoder returns a fresh, tiny AudioData per path and counts how
// many times Decode was actually invoked, so tests can assert dedup.
type countingDecoder struct {
	mu      sync.Mutex
	calls   map[string]int
	failOn  string
}

func newCountingDecoder() *countingDecoder {
	return &countingDecoder{calls: make(map[string]int)}
}

func (d *countingDecoder) Decode(path string) (*sample.AudioData, error) {
	d.mu.Lock()
	d.calls[path]++
	d.mu.Unlock()
	if path == d.failOn {
		return nil, errors.New("synthetic decode failure")
	}
	ch := make([]float32, 100)
	return sample.NewAudioData([][]float32{ch}, 48000), nil
}

func (d *countingDecoder) count(path string) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.calls[path]
}

func testLibrary() *sample.Library {
	lib := sample.NewLibrary("acme", "grand-piano")
	lib.Instruments["Concert A"] = &sample.Instrument{
		Name:   "Concert A",
		Author: "acme",
		Regions: []*sample.Region{
			{RootKey: 60, KeyLow: 0, KeyHigh: 59, VelocityHigh: 1, SourcePath: "a-low.wav"},
			{RootKey: 72, KeyLow: 60, KeyHigh: 127, VelocityHigh: 1, SourcePath: "a-high.wav"},
		},
	}
	lib.Instruments["Concert B"] = &sample.Instrument{
		Name:   "Concert B",
		Author: "acme",
		Regions: []*sample.Region{
			// Shares a-low.wav with Concert A: should be decoded once.
			{RootKey: 60, KeyLow: 0, KeyHigh: 127, VelocityHigh: 1, SourcePath: "a-low.wav"},
		},
	}
	return lib
}

func waitForResult(t *testing.T, ch <-chan LoadResult) LoadResult {
	t.Helper()
	select {
	case r := <-ch:
		return r
	case <-time.After(time.Second):
		t.Fatalf("timed out waiting for a load result")
		return LoadResult{}
	}
}

func TestLoaderResolvesInstrumentAndDecodesRegions(t *testing.T) {
	dec := newCountingDecoder()
	l := NewLoader(dec)
	l.AddLibrary(testLibrary())

	results := make(chan LoadResult, 1)
	l.SendLoadRequest(LoadRequest{
		Connection: 1, LayerIndex: 0,
		LibraryAuthor: "acme", LibraryName: "grand-piano", InstrumentName: "Concert A",
		Callback: func(r LoadResult) { results <- r },
	})
	l.ProcessPending()

	r := waitForResult(t, results)
	if r.Outcome != OutcomeSuccess {
		t.Fatalf("expected success, got outcome %v err %v", r.Outcome, r.Err)
	}
	if r.Instrument == nil || r.Instrument.Instrument.Name != "Concert A" {
		t.Fatalf("expected the resolved Concert A instrument, got %+v", r.Instrument)
	}
	for _, region := range r.Instrument.Instrument.Regions {
		if region.Audio == nil {
			t.Fatalf("expected every region's audio to be decoded")
		}
	}
}

func TestLoaderDedupsSharedSampleAcrossInstruments(t *testing.T) {
	dec := newCountingDecoder()
	l := NewLoader(dec)
	l.AddLibrary(testLibrary())

	done := make(chan struct{}, 2)
	for _, name := range []string{"Concert A", "Concert B"} {
		l.SendLoadRequest(LoadRequest{
			Connection: ConnectionId(1), LayerIndex: 0,
			LibraryAuthor: "acme", LibraryName: "grand-piano", InstrumentName: name,
			Callback: func(LoadResult) { done <- struct{}{} },
		})
	}
	// Both requests target layer 0 on connection 1, so the second
	// supersedes the first and the first resolves as Cancelled. Supersession
	// only changes the delivered outcome, so one drain still decodes both
	// instruments and the dedup count is observable.
	l.ProcessPending()
	<-done

	if got := dec.count("a-low.wav"); got != 1 {
		t.Fatalf("expected a-low.wav to be decoded exactly once across both instruments, got %d", got)
	}
}

func TestLoaderSupersedingRequestCancelsThePrevious(t *testing.T) {
	dec := newCountingDecoder()
	l := NewLoader(dec)
	l.AddLibrary(testLibrary())

	var results []LoadResult
	var mu sync.Mutex
	record := func(r LoadResult) {
		mu.Lock()
		results = append(results, r)
		mu.Unlock()
	}

	// Enqueue A then immediately B on the same (connection, layer) before
	// either is processed: A must resolve Cancelled, B must resolve
	// Success.
	l.SendLoadRequest(LoadRequest{
		Connection: 7, LayerIndex: 1,
		LibraryAuthor: "acme", LibraryName: "grand-piano", InstrumentName: "Concert A",
		Callback: record,
	})
	l.SendLoadRequest(LoadRequest{
		Connection: 7, LayerIndex: 1,
		LibraryAuthor: "acme", LibraryName: "grand-piano", InstrumentName: "Concert B",
		Callback: record,
	})
	l.ProcessPending()

	mu.Lock()
	defer mu.Unlock()
	if len(results) != 2 {
		t.Fatalf("expected both requests to resolve, got %d", len(results))
	}
	if results[0].Outcome != OutcomeCancelled {
		t.Fatalf("expected the superseded request to report Cancelled, got %v", results[0].Outcome)
	}
	if results[1].Outcome != OutcomeSuccess {
		t.Fatalf("expected the superseding request to report Success, got %v", results[1].Outcome)
	}
}

func TestLoaderUnknownLibraryAndInstrumentReportErrors(t *testing.T) {
	dec := newCountingDecoder()
	l := NewLoader(dec)
	l.AddLibrary(testLibrary())

	var got []LoadResult
	cb := func(r LoadResult) { got = append(got, r) }

	l.SendLoadRequest(LoadRequest{LibraryAuthor: "nobody", LibraryName: "nothing", InstrumentName: "x", Callback: cb})
	l.SendLoadRequest(LoadRequest{LibraryAuthor: "acme", LibraryName: "grand-piano", InstrumentName: "Missing", Callback: cb})
	l.ProcessPending()

	if len(got) != 2 {
		t.Fatalf("expected 2 results, got %d", len(got))
	}
	if got[0].Outcome != OutcomeError || got[0].Err != ErrLibraryNotFound {
		t.Fatalf("expected ErrLibraryNotFound, got %+v", got[0])
	}
	if got[1].Outcome != OutcomeError || got[1].Err != ErrInstrumentNotFound {
		t.Fatalf("expected ErrInstrumentNotFound, got %+v", got[1])
	}
}

func TestReaperFreesInstrumentAndAudioOnceUnreferenced(t *testing.T) {
	dec := newCountingDecoder()
	l := NewLoader(dec)
	l.AddLibrary(testLibrary())
	reaper := NewReaper(l, time.Hour)

	var loaded *LoadedInstrument
	l.SendLoadRequest(LoadRequest{
		LibraryAuthor: "acme", LibraryName: "grand-piano", InstrumentName: "Concert A",
		Callback: func(r LoadResult) { loaded = r.Instrument },
	})
	l.ProcessPending()
	if loaded == nil {
		t.Fatalf("expected the instrument to resolve")
	}

	reaper.RunOnce()
	l.mu.Lock()
	_, stillCached := l.instrumentCache[sample.InstrumentId{LibraryAuthor: "acme", LibraryName: "grand-piano", InstrumentName: "Concert A"}]
	l.mu.Unlock()
	if !stillCached {
		t.Fatalf("expected the instrument to remain cached while still referenced")
	}

	// Drop the caller's reference; the cache still holds its own, so the
	// reaper must not free it yet.
	loaded.Release()
	reaper.RunOnce()
	l.mu.Lock()
	_, stillCached = l.instrumentCache[sample.InstrumentId{LibraryAuthor: "acme", LibraryName: "grand-piano", InstrumentName: "Concert A"}]
	l.mu.Unlock()
	if !stillCached {
		t.Fatalf("expected the cache's own reference to keep the instrument alive")
	}

	// Drop the cache's own reference too: with nothing left holding it, the
	// reaper frees the instrument and the audio it decoded.
	loaded.Release()
	reaper.RunOnce()
	l.mu.Lock()
	_, stillCached = l.instrumentCache[sample.InstrumentId{LibraryAuthor: "acme", LibraryName: "grand-piano", InstrumentName: "Concert A"}]
	_, audioCached := l.audioCache["a-low.wav"]
	l.mu.Unlock()
	if stillCached || audioCached {
		t.Fatalf("expected the reaper to free the instrument and its audio once unreferenced")
	}
}
