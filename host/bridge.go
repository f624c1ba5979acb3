package host

import (
	"sync/atomic"

	"github.com/cwbudde/floe-core/internal/lockfree"
	"github.com/cwbudde/floe-core/layer"
	"github.com/cwbudde/floe-core/loader"
	"github.com/cwbudde/floe-core/sample"
	"github.com/cwbudde/floe-core/voice"
)

// NumLayers is the fixed number of layers a Bridge mixes, matching the
// host's fixed per-instance layer count.
const NumLayers = 3

// Config configures a Bridge's ambient dependencies. NewBridge replaces a
// nil ThreadPool with an ErrgroupThreadPool and a nil Decoder with
// sample.WAVDecoder{}.
type Config struct {
	ThreadPool  ThreadPool
	Decoder     sample.AudioFileDecoder
	Preferences PreferenceStore
}

// Connection is a host-facing handle for one client's load requests. It
// carries the callbacks a Bridge invokes around the loader's own
// callback: errorSink for OutcomeError results, onComplete for every
// result regardless of outcome.
type Connection struct {
	id loader.ConnectionId

	errorSink  func(error)
	onComplete func(loader.LoadResult)
}

// ID returns the connection's identity as seen by the loader.
func (c *Connection) ID() loader.ConnectionId { return c.id }

// Bridge adapts a host's prepare/process/reset callback contract onto the
// layer/voice engine: it owns the fixed set of layers, the loader and its
// reaper, per-layer GUI snapshot publishing, and event dispatch into each
// block at voice.ChunkSize granularity.
type Bridge struct {
	sampleRate   int
	blockSizeMax int

	layers [NumLayers]*layer.Layer
	loader *loader.Loader
	pool   ThreadPool

	nextConnID atomic.Uint64

	meters         [NumLayers]*lockfree.SwapBuffer[layer.MeterSnapshot]
	voiceSnapshots [NumLayers]*lockfree.SwapBuffer[voice.GUISnapshot]

	notifications errorNotifications

	hostTempoBPM      float32
	defaultDynamics01 float32
}

// NewBridge builds a Bridge with numLayers layers (capped at NumLayers),
// each sized for sampleRate and blockSizeMax frames.
func NewBridge(sampleRate, blockSizeMax, numLayers int, cfg Config) *Bridge {
	if numLayers > NumLayers {
		numLayers = NumLayers
	}
	decoder := cfg.Decoder
	if decoder == nil {
		decoder = sample.WAVDecoder{}
	}
	pool := cfg.ThreadPool
	if pool == nil {
		pool = &ErrgroupThreadPool{}
	}

	b := &Bridge{
		sampleRate:        sampleRate,
		blockSizeMax:      blockSizeMax,
		loader:            loader.NewLoader(decoder),
		pool:              pool,
		hostTempoBPM:      120,
		defaultDynamics01: 0.5,
	}
	for i := 0; i < numLayers; i++ {
		b.layers[i] = layer.NewLayer(sampleRate, blockSizeMax)
		b.meters[i] = lockfree.NewSwapBuffer(layer.MeterSnapshot{})
		b.voiceSnapshots[i] = lockfree.NewSwapBuffer(voice.GUISnapshot{})
	}
	applyPreferences(b, cfg.Preferences)
	return b
}

// Layer returns the i'th layer, or nil if i is out of range for this
// Bridge's configured layer count.
func (b *Bridge) Layer(i int) *layer.Layer {
	if i < 0 || i >= NumLayers {
		return nil
	}
	return b.layers[i]
}

// Loader returns the bridge's asynchronous instrument loader, so a host
// can add libraries and drive its goroutine (or call ProcessPending
// directly from its own loading thread).
func (b *Bridge) Loader() *loader.Loader { return b.loader }

// Reset resets every configured layer, matching a host transport reset.
func (b *Bridge) Reset() {
	for _, l := range b.layers {
		if l != nil {
			l.Reset()
		}
	}
}

// OpenConnection registers a new load-request connection. errorSink is
// called (possibly from the loader's goroutine) whenever a request on
// this connection resolves to OutcomeError; onComplete, if set, is called
// for every result regardless of outcome, after errorSink.
func (b *Bridge) OpenConnection(errorSink func(error), onComplete func(loader.LoadResult)) *Connection {
	return &Connection{
		id:         loader.ConnectionId(b.nextConnID.Add(1)),
		errorSink:  errorSink,
		onComplete: onComplete,
	}
}

// CloseConnection is a no-op placeholder for API symmetry: outstanding
// requests on a closed connection still resolve (their callbacks may
// reference data the host has already torn down, which is the host's
// responsibility to avoid by not reusing a Connection after closing it).
func (b *Bridge) CloseConnection(c *Connection) {}

// SendLoadRequest forwards req to the loader on behalf of c, wrapping
// req.Callback so c's errorSink and onComplete observe every result.
func (b *Bridge) SendLoadRequest(c *Connection, req loader.LoadRequest) loader.RequestId {
	req.Connection = c.id
	userCallback := req.Callback
	req.Callback = func(result loader.LoadResult) {
		if result.Outcome == loader.OutcomeError {
			err := loadError(result.Err)
			b.notifications.record(result.ID, err)
			if c.errorSink != nil {
				c.errorSink(err)
			}
		}
		if c.onComplete != nil {
			c.onComplete(result)
		}
		if userCallback != nil {
			userCallback(result)
		}
	}
	return b.loader.SendLoadRequest(req)
}

func loadError(code loader.ErrorCode) error {
	switch code {
	case loader.ErrLibraryNotFound:
		return errLibraryNotFound
	case loader.ErrInstrumentNotFound:
		return errInstrumentNotFound
	case loader.ErrDecodeFailed:
		return errDecodeFailed
	default:
		return errUnknown
	}
}

// OnParamChange fans a parameter change out to layerIndex's layer.
func (b *Bridge) OnParamChange(layerIndex int, changed layer.ChangedLayerParams) {
	if l := b.Layer(layerIndex); l != nil {
		l.OnParamsChanged(changed)
	}
}

// OnTempoChange updates the bridge's host tempo and pushes it to every
// layer with a tempo-synced LFO.
func (b *Bridge) OnTempoChange(bpm float32) {
	b.hostTempoBPM = bpm
	for _, l := range b.layers {
		if l != nil {
			l.OnParamsChanged(layer.ChangedLayerParams{HostTempoBPM: &bpm})
		}
	}
}

// NoteOn starts a note on layerIndex's layer. frameOffset is stored on the
// voice as FramesBeforeStarting, but the voice does not delay its output
// by it: the note sounds from the start of the next chunk the layer
// renders.
func (b *Bridge) NoteOn(layerIndex, channel, note int, velocity01 float32, dynamics01, velToVol01 float32, frameOffset int) {
	if l := b.Layer(layerIndex); l != nil {
		l.NoteOn(channel, note, velocity01, dynamics01, velToVol01, frameOffset)
	}
}

// NoteOff gates matching voices on layerIndex's layer into release.
func (b *Bridge) NoteOff(layerIndex, channel, note int, cc64Triggered bool) {
	if l := b.Layer(layerIndex); l != nil {
		l.NoteOff(channel, note, cc64Triggered)
	}
}

// NoteOnDefaultDynamics starts a note the way NoteOn does, but for a host
// that has no per-note dynamics/timbre control of its own: it fills in
// the default-dynamic-data preference and a neutral (no-op) velocity-to-
// volume curve.
func (b *Bridge) NoteOnDefaultDynamics(layerIndex, channel, note int, velocity01 float32, frameOffset int) {
	b.NoteOn(layerIndex, channel, note, velocity01, b.defaultDynamics01, 1, frameOffset)
}

// Process renders numFrames interleaved stereo frames per layer, applying
// events at voice.ChunkSize boundaries (the finest granularity
// Layer.ProcessBlock exposes internally) and dispatching each layer's
// mixdown across the configured thread pool. It returns one buffer per
// configured layer; summing them is the host's job, since most hosts want
// per-layer metering before the final mix.
func (b *Bridge) Process(numFrames int, events []Event) [][]float32 {
	numChunks := (numFrames + voice.ChunkSize - 1) / voice.ChunkSize

	outs := make([][]float32, NumLayers)
	for i, l := range b.layers {
		if l == nil {
			continue
		}
		outs[i] = make([]float32, numFrames*2)
	}

	chunkStart := 0
	for c := 0; c < numChunks; c++ {
		chunkEnd := chunkStart + voice.ChunkSize
		for _, e := range events {
			if e.FrameOffset >= chunkStart && e.FrameOffset < chunkEnd {
				b.applyEvent(e)
			}
		}

		runTasks(b.pool, NumLayers, func(i int) {
			l := b.layers[i]
			if l == nil {
				return
			}
			chunk := l.ProcessBlock(1)
			copy(outs[i][chunkStart*2:], chunk)
		})

		chunkStart = chunkEnd
	}

	for i, l := range b.layers {
		if l == nil {
			continue
		}
		b.meters[i].Publish(l.Meter.Snapshot())
		b.voiceSnapshots[i].Publish(l.Pool.Snapshot())
	}

	return outs
}

func (b *Bridge) applyEvent(e Event) {
	switch e.Kind {
	case EventNoteOn:
		p := e.NoteOn
		b.NoteOn(p.Layer, p.Channel, p.Note, p.Velocity01, p.Dynamics01, p.VelToVol01, e.FrameOffset)
	case EventNoteOff:
		p := e.NoteOff
		b.NoteOff(p.Layer, p.Channel, p.Note, p.CC64Triggered)
	case EventCC:
		// CC routing beyond sustain (handled by the host calling NoteOff,
		// per Layer.NoteOff's doc comment) is not yet modeled per-layer.
	case EventParamChange:
		// ParamChangePayload names a single linear value by index; mapping
		// that index to a ChangedLayerParams field is host-specific and
		// left to the caller via OnParamChange.
	case EventTempo:
		b.OnTempoChange(e.Tempo.BPM)
	}
}

// MeterSnapshot returns the most recently published peak-meter reading
// for layerIndex. Safe to call from a GUI thread.
func (b *Bridge) MeterSnapshot(layerIndex int) layer.MeterSnapshot {
	if layerIndex < 0 || layerIndex >= NumLayers || b.meters[layerIndex] == nil {
		return layer.MeterSnapshot{}
	}
	return b.meters[layerIndex].Read()
}

// VoiceSnapshot returns the most recently published voice-activity
// reading for layerIndex. Safe to call from a GUI thread.
func (b *Bridge) VoiceSnapshot(layerIndex int) voice.GUISnapshot {
	if layerIndex < 0 || layerIndex >= NumLayers || b.voiceSnapshots[layerIndex] == nil {
		return voice.GUISnapshot{}
	}
	return b.voiceSnapshots[layerIndex].Read()
}

// ErrorNotifications returns every load error recorded so far,
// deduplicated by request id, independent of whether any connection's
// own error_sink is still reachable.
func (b *Bridge) ErrorNotifications() []ErrorNotification {
	return b.notifications.Snapshot()
}
