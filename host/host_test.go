package host

import (
	"errors"
	"testing"

	"github.com/cwbudde/floe-core/layer"
	"github.com/cwbudde/floe-core/loader"
	"github.com/cwbudde/floe-core/sample"
	"github.com/cwbudde/floe-core/voice"
)

func testLibrary() *sample.Library {
	region := &sample.Region{
		RootKey: 60, KeyLow: 0, KeyHigh: 127, VelocityHigh: 1,
		Audio: sample.NewAudioData([][]float32{make([]float32, 1000)}, 48000),
		GainTrim: 1,
	}
	lib := sample.NewLibrary("tester", "lib")
	lib.Instruments["grand"] = &sample.Instrument{Name: "grand", Regions: []*sample.Region{region}}
	return lib
}

func TestBridgeProcessRendersEveryConfiguredLayer(t *testing.T) {
	b := NewBridge(48000, voice.ChunkSize*4, 2, Config{})
	b.Layer(0).Desired.PublishWaveform(uint32(voice.WaveformSine))
	for b.Layer(0).CurrentWaveform == nil {
		b.Process(voice.ChunkSize, nil)
	}
	b.NoteOn(0, 0, 60, 1, 0, 0, 0)

	out := b.Process(voice.ChunkSize*2, nil)
	if len(out) != NumLayers {
		t.Fatalf("expected %d layer buffers, got %d", NumLayers, len(out))
	}
	if out[2] != nil {
		t.Fatalf("expected an unconfigured layer's output buffer to be nil")
	}

	anyNonZero := false
	for _, s := range out[0] {
		if s != 0 {
			anyNonZero = true
			break
		}
	}
	if !anyNonZero {
		t.Fatalf("expected audible output from layer 0 after NoteOn")
	}
}

func TestBridgeProcessRoutesEventsByFrameOffset(t *testing.T) {
	b := NewBridge(48000, voice.ChunkSize*4, 1, Config{})
	b.Layer(0).Desired.PublishWaveform(uint32(voice.WaveformSine))
	for b.Layer(0).CurrentWaveform == nil {
		b.Process(voice.ChunkSize, nil)
	}

	events := []Event{
		{FrameOffset: voice.ChunkSize, Kind: EventNoteOn, NoteOn: NoteOnPayload{
			Layer: 0, Channel: 0, Note: 60, Velocity01: 1, VelToVol01: 1,
		}},
	}
	out := b.Process(voice.ChunkSize*4, events)

	firstChunkSilent := true
	for i := 0; i < voice.ChunkSize*2; i++ {
		if out[0][i] != 0 {
			firstChunkSilent = false
			break
		}
	}
	if !firstChunkSilent {
		t.Fatalf("expected the chunk before the note-on's frame offset to stay silent")
	}

	laterHasSound := false
	for i := voice.ChunkSize * 2; i < len(out[0]); i++ {
		if out[0][i] != 0 {
			laterHasSound = true
			break
		}
	}
	if !laterHasSound {
		t.Fatalf("expected audible output once the note-on's chunk is reached")
	}
}

func TestBridgeResetSilencesActiveVoices(t *testing.T) {
	b := NewBridge(48000, voice.ChunkSize*4, 1, Config{})
	b.NoteOn(0, 0, 60, 1, 0, 0, 0)
	b.Process(voice.ChunkSize, nil)

	b.Reset()
	if len(b.Layer(0).Pool.ActiveVoices()) != 0 {
		t.Fatalf("expected reset to release every active voice")
	}
}

func TestBridgeLoadRequestFlowResolvesAndReleasesConnectionCallbacks(t *testing.T) {
	b := NewBridge(48000, voice.ChunkSize*4, 1, Config{})
	b.Loader().AddLibrary(testLibrary())

	var gotErr error
	var completed loader.LoadResult
	conn := b.OpenConnection(
		func(err error) { gotErr = err },
		func(result loader.LoadResult) { completed = result },
	)

	var fromUserCallback loader.LoadResult
	b.SendLoadRequest(conn, loader.LoadRequest{
		LayerIndex:     0,
		LibraryAuthor:  "tester",
		LibraryName:    "lib",
		InstrumentName: "grand",
		Callback:       func(r loader.LoadResult) { fromUserCallback = r },
	})
	b.Loader().ProcessPending()

	if gotErr != nil {
		t.Fatalf("expected no error from a request resolving successfully, got %v", gotErr)
	}
	if completed.Outcome != loader.OutcomeSuccess {
		t.Fatalf("expected onComplete to observe OutcomeSuccess, got %v", completed.Outcome)
	}
	if fromUserCallback.Outcome != loader.OutcomeSuccess {
		t.Fatalf("expected the request's own callback to still fire after the connection's")
	}
}

func TestBridgeLoadRequestFlowReportsErrorToConnectionSink(t *testing.T) {
	b := NewBridge(48000, voice.ChunkSize*4, 1, Config{})

	var gotErr error
	conn := b.OpenConnection(func(err error) { gotErr = err }, nil)
	b.SendLoadRequest(conn, loader.LoadRequest{
		LayerIndex:     0,
		LibraryAuthor:  "missing",
		LibraryName:    "missing",
		InstrumentName: "missing",
	})
	b.Loader().ProcessPending()

	if gotErr == nil {
		t.Fatalf("expected an error for an unknown library")
	}
	if !errors.Is(gotErr, errLibraryNotFound) {
		t.Fatalf("expected errLibraryNotFound, got %v", gotErr)
	}
}

func TestBridgeTempoChangeUpdatesHostTempoAndFansOutToSyncedLayers(t *testing.T) {
	b := NewBridge(48000, voice.ChunkSize*4, 1, Config{})
	synced := true
	rate := layer.LFOSync1_4
	b.OnParamChange(0, layer.ChangedLayerParams{LFOSynced: &synced, LFOSyncRate: &rate})

	b.OnTempoChange(90)
	if b.hostTempoBPM != 90 {
		t.Fatalf("expected the bridge's host tempo to update, got %v", b.hostTempoBPM)
	}
	if !b.Layer(0).Controller.LFOSynced {
		t.Fatalf("expected the layer's synced flag to be unaffected by a tempo change")
	}
}

type erroringThreadPool struct{}

func (erroringThreadPool) Dispatch(numTasks int, onTask func(int)) error {
	return errors.New("dispatch unavailable")
}

func TestBridgeFallsBackToSerialProcessingWhenThreadPoolDispatchFails(t *testing.T) {
	b := NewBridge(48000, voice.ChunkSize*4, 1, Config{ThreadPool: erroringThreadPool{}})
	b.Layer(0).Desired.PublishWaveform(uint32(voice.WaveformSine))
	for b.Layer(0).CurrentWaveform == nil {
		b.Process(voice.ChunkSize, nil)
	}
	b.NoteOn(0, 0, 60, 1, 0, 0, 0)

	out := b.Process(voice.ChunkSize, nil)
	anyNonZero := false
	for _, s := range out[0] {
		if s != 0 {
			anyNonZero = true
			break
		}
	}
	if !anyNonZero {
		t.Fatalf("expected serial fallback to still render audio when Dispatch errors")
	}
}

type fakePreferenceStore map[PreferenceKey]float64

func (s fakePreferenceStore) Get(key PreferenceKey) (float64, bool) {
	v, ok := s[key]
	return v, ok
}

func TestNewBridgeAppliesCPUCountOverrideToTheDefaultThreadPool(t *testing.T) {
	b := NewBridge(48000, voice.ChunkSize*4, 1, Config{
		Preferences: fakePreferenceStore{PrefCPUCountOverride: 2},
	})

	pool, ok := b.pool.(*ErrgroupThreadPool)
	if !ok {
		t.Fatalf("expected the default ErrgroupThreadPool, got %T", b.pool)
	}
	if pool.MaxConcurrency != 2 {
		t.Fatalf("expected MaxConcurrency 2, got %d", pool.MaxConcurrency)
	}
}

func TestNewBridgeLeavesAHostSuppliedThreadPoolUntouched(t *testing.T) {
	custom := erroringThreadPool{}
	b := NewBridge(48000, voice.ChunkSize*4, 1, Config{
		ThreadPool:  custom,
		Preferences: fakePreferenceStore{PrefCPUCountOverride: 4},
	})

	if _, ok := b.pool.(*ErrgroupThreadPool); ok {
		t.Fatalf("expected the host's own ThreadPool to be left in place")
	}
}

type fakeFileDecoder struct{}

func (fakeFileDecoder) Decode(path string) (*sample.AudioData, error) {
	return sample.NewAudioData([][]float32{make([]float32, 1000)}, 48000), nil
}

func TestNewBridgeAppliesMaxMemoryBytesToTheLoader(t *testing.T) {
	b := NewBridge(48000, voice.ChunkSize*4, 1, Config{
		Decoder:     fakeFileDecoder{},
		Preferences: fakePreferenceStore{PrefMaxMemoryBytes: 10},
	})

	lib := sample.NewLibrary("tester", "lib")
	lib.Instruments["grand"] = &sample.Instrument{
		Name:    "grand",
		Regions: []*sample.Region{{RootKey: 60, KeyLow: 0, KeyHigh: 127, VelocityHigh: 1, SourcePath: "a.wav"}},
	}
	b.Loader().AddLibrary(lib)

	conn := b.OpenConnection(nil, nil)
	b.SendLoadRequest(conn, loader.LoadRequest{
		LayerIndex: 0, LibraryAuthor: "tester", LibraryName: "lib", InstrumentName: "grand",
	})
	b.Loader().ProcessPending()

	if !b.Loader().OverBudget() {
		t.Fatalf("expected decoding a region past the 10-byte budget to report over budget")
	}
}

func TestNewBridgeAppliesDefaultDynamicDataToNoteOnDefaultDynamics(t *testing.T) {
	b := NewBridge(48000, voice.ChunkSize*4, 1, Config{
		Preferences: fakePreferenceStore{PrefDefaultDynamicData: 0.75},
	})
	if b.defaultDynamics01 != 0.75 {
		t.Fatalf("expected the preference to set defaultDynamics01, got %v", b.defaultDynamics01)
	}

	b.Loader().AddLibrary(testLibrary())
	conn := b.OpenConnection(nil, nil)
	b.SendLoadRequest(conn, loader.LoadRequest{
		LayerIndex: 0, LibraryAuthor: "tester", LibraryName: "lib", InstrumentName: "grand",
		Callback: func(r loader.LoadResult) {
			b.Layer(0).Desired.PublishInstrument(&layer.LoadedInstrumentRef{Handle: r.Instrument})
		},
	})
	b.Loader().ProcessPending()
	for b.Layer(0).CurrentInstrument == nil {
		b.Process(voice.ChunkSize, nil)
	}

	b.NoteOnDefaultDynamics(0, 0, 60, 1, 0)
	if len(b.Layer(0).Pool.ActiveVoices()) == 0 {
		t.Fatalf("expected NoteOnDefaultDynamics to start a voice")
	}
}

func TestBridgeErrorNotificationsRecordsOneEntryPerDistinctFailedRequest(t *testing.T) {
	b := NewBridge(48000, voice.ChunkSize*4, 1, Config{})
	conn := b.OpenConnection(nil, nil)

	b.SendLoadRequest(conn, loader.LoadRequest{
		LayerIndex: 0, LibraryAuthor: "missing", LibraryName: "missing", InstrumentName: "missing",
	})
	b.SendLoadRequest(conn, loader.LoadRequest{
		LayerIndex: 0, LibraryAuthor: "also-missing", LibraryName: "also-missing", InstrumentName: "also-missing",
	})
	b.Loader().ProcessPending()

	notes := b.ErrorNotifications()
	if len(notes) != 2 {
		t.Fatalf("expected one notification per distinct request, got %d", len(notes))
	}
	seen := make(map[loader.RequestId]bool)
	for _, n := range notes {
		if seen[n.ID] {
			t.Fatalf("expected each request id to appear at most once, saw %d twice", n.ID)
		}
		seen[n.ID] = true
	}

	b.notifications.record(notes[0].ID, notes[0].Err)
	if got := len(b.ErrorNotifications()); got != 2 {
		t.Fatalf("expected re-recording an already-seen id to be a no-op, got %d entries", got)
	}
}
