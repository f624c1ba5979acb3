package layer

import (
	"math"

	"github.com/cwbudde/floe-core/dsp"
	"github.com/cwbudde/floe-core/internal/smooth"
	"github.com/cwbudde/floe-core/sample"
	"github.com/cwbudde/floe-core/voice"
)

const (
	slotVolume smooth.FloatID = iota
	slotPan
	slotEQMix
	numFloatSlots
)

const (
	filterBandA smooth.FilterID = iota
	filterBandB
	numFilterSlots
)

// instrumentSwapFadeMs is how long currently-playing voices fade before
// an instrument change swaps in and playback resumes.
const instrumentSwapFadeMs = 10.0

// VelocityMappingMode selects a fixed "velocity zone" curve applied to
// note-on velocity.
type VelocityMappingMode int

const (
	VelocityMappingOff VelocityMappingMode = iota
	VelocityMapping2Region
	VelocityMapping3Region
)

// ZoneGain returns the fixed-curve gain multiplier for a raw [0,1]
// note-on velocity under mode. The zones scale velocity rather than
// resample it: a 2-region mapping separates "soft" from "hard" playing
// with a single plateau step, a 3-region mapping adds a middle step.
func ZoneGain(mode VelocityMappingMode, velocity01 float32) float32 {
	switch mode {
	case VelocityMapping2Region:
		if velocity01 < 0.5 {
			return 0.7
		}
		return 1.0
	case VelocityMapping3Region:
		switch {
		case velocity01 < 1.0/3.0:
			return 0.55
		case velocity01 < 2.0/3.0:
			return 0.8
		default:
			return 1.0
		}
	default:
		return 1.0
	}
}

// LFOSyncRate is a musical-division enum for tempo-synced LFO rates.
type LFOSyncRate int

const (
	LFOSync1_1 LFOSyncRate = iota
	LFOSync1_2
	LFOSync1_4
	LFOSync1_8
	LFOSync1_16
	LFOSync1_4Dotted
	LFOSync1_8Dotted
	LFOSync1_4Triplet
	LFOSync1_8Triplet
)

// syncRateBeats is how many quarter-note beats one cycle of each synced
// rate spans.
var syncRateBeats = map[LFOSyncRate]float32{
	LFOSync1_1:        4,
	LFOSync1_2:        2,
	LFOSync1_4:        1,
	LFOSync1_8:        0.5,
	LFOSync1_16:       0.25,
	LFOSync1_4Dotted:  1.5,
	LFOSync1_8Dotted:  0.75,
	LFOSync1_4Triplet: 2.0 / 3.0,
	LFOSync1_8Triplet: 1.0 / 3.0,
}

// SyncedLFOHz derives a frequency in Hz from a host tempo and a synced
// rate enum.
func SyncedLFOHz(tempoBPM float32, rate LFOSyncRate) float32 {
	if tempoBPM <= 0 {
		tempoBPM = 120
	}
	beats := syncRateBeats[rate]
	if beats <= 0 {
		beats = 1
	}
	beatsPerSecond := tempoBPM / 60
	cyclesPerSecond := beatsPerSecond / beats
	return cyclesPerSecond
}

// VoiceController holds the layer-wide parameters this layer's voices are
// driven from. Unlike the layer's own smoothed values (volume, pan, EQ),
// the layer does not ramp them itself: filter cutoff/resonance/mix and tune
// changes are pushed into each active voice's own smoothers, which ramp
// them there.
type VoiceController struct {
	TuneSemitones     float32
	FilterCutoff01    float32
	FilterResonance01 float32
	FilterOn          bool
	FilterMix         float32
	FilterType        dsp.SVFType

	VelocityMapping VelocityMappingMode

	LFODestination voice.LFODestination
	LFOShape       dsp.LFOWaveform
	LFOAmount      float32
	LFOSynced      bool
	LFOSyncRate    LFOSyncRate
	LFOUnsyncedHz  float32

	LoopMode       sample.LoopMode
	ReverseEnabled bool
	VolumeEnvOn    bool

	AttackSamples  int
	DecaySamples   int
	Sustain        float32
	ReleaseSamples int
}

// ChangedLayerParams is a sparse "this just changed" view: nil fields
// mean "leave as is". A host typically only sets the handful of fields
// whose on_param_change actually fired this call.
type ChangedLayerParams struct {
	TuneSemitones     *float32
	FilterCutoff01    *float32
	FilterResonance01 *float32
	FilterOn          *bool
	FilterMix         *float32
	FilterType        *dsp.SVFType

	VelocityMapping *VelocityMappingMode

	LFODestination *voice.LFODestination
	LFOShape       *dsp.LFOWaveform
	LFOAmount      *float32
	LFOSynced      *bool
	LFOSyncRate    *LFOSyncRate
	LFOUnsyncedHz  *float32
	HostTempoBPM   *float32

	LoopMode       *sample.LoopMode
	ReverseEnabled *bool
	VolumeEnvOn    *bool

	AttackMs  *float32
	DecayMs   *float32
	Sustain   *float32
	ReleaseMs *float32

	VolumeDB *float32
	Pan      *float32

	EQEnabled *bool
	EQBandA   *EQBandParams
	EQBandB   *EQBandParams
}

// minEnvelopeMs is the floor applied to any envelope-stage millisecond
// value before converting to samples, so a 0 ms attack/decay/release
// never collapses to a zero-sample (instant, click-prone) segment.
const minEnvelopeMs = 0.2

const (
	volumeTransitionMs = 20.0
	panTransitionMs    = 20.0
	filterTransitionMs = 20.0
	tuneTransitionMs   = 20.0
)

func msToSamples(ms float32, sampleRate int) int {
	if ms < minEnvelopeMs {
		ms = minEnvelopeMs
	}
	n := int(ms * float32(sampleRate) / 1000)
	if n < 1 {
		n = 1
	}
	return n
}

// Layer is the per-layer processing unit: a voice pool, its voice
// controller fan-out, smoothed volume/pan, a two-band EQ, a peak meter,
// and the atomic desired-instrument slot.
type Layer struct {
	sampleRate int

	Pool       *voice.VoicePool
	Controller VoiceController
	smooth     *smooth.System
	EQ         *EQ
	Meter      *PeakMeter
	Desired    *DesiredInstrument

	Mute bool
	Solo bool

	CurrentInstrument *LoadedInstrumentRef
	CurrentWaveform   *voice.WaveformKind

	hostTempoBPM float32

	pendingSwap       bool
	swapFadeSamples   int
	swapFadeLeft      int
	pendingKind       string
	pendingInstrument *LoadedInstrumentRef
	pendingWaveform   voice.WaveformKind
}

// NewLayer builds a layer sized for the given sample rate and maximum
// host block size.
func NewLayer(sampleRate, maxBlockSize int) *Layer {
	l := &Layer{
		sampleRate:   sampleRate,
		Pool:         voice.NewVoicePool(sampleRate, maxBlockSize),
		smooth:       smooth.NewSystem(int(numFloatSlots), 0, int(numFilterSlots), maxBlockSize),
		Meter:        NewPeakMeter(sampleRate),
		Desired:      &DesiredInstrument{},
		Controller:   VoiceController{FilterMix: 0, LFOUnsyncedHz: 1, Sustain: 1},
		hostTempoBPM: 120,
	}
	l.EQ = NewEQ(filterBandA, filterBandB, slotEQMix)
	l.smooth.Floats.HardSet(slotVolume, 1)
	l.smooth.Floats.HardSet(slotPan, 0)
	l.smooth.Floats.HardSet(slotEQMix, 0)
	return l
}

// OnParamsChanged fans out a sparse parameter update: voice-controller
// fields take effect on the next voice chunk, smoothed targets ramp,
// envelope ms values convert to samples with the floor applied, and LFO
// rate (synced or free-running) is pushed to every currently active
// voice.
func (l *Layer) OnParamsChanged(p ChangedLayerParams) {
	rate := float32(l.sampleRate)

	if p.TuneSemitones != nil {
		l.Controller.TuneSemitones = *p.TuneSemitones
		for _, v := range l.Pool.ActiveVoices() {
			v.SetPitchOffsetSemitones(l.Controller.TuneSemitones, tuneTransitionMs, rate)
		}
	}

	filterChanged := false
	if p.FilterCutoff01 != nil {
		l.Controller.FilterCutoff01 = *p.FilterCutoff01
		filterChanged = true
	}
	if p.FilterResonance01 != nil {
		l.Controller.FilterResonance01 = *p.FilterResonance01
		filterChanged = true
	}
	if p.FilterOn != nil {
		l.Controller.FilterOn = *p.FilterOn
		if *p.FilterOn {
			l.Controller.FilterMix = 1
		} else {
			l.Controller.FilterMix = 0
		}
		filterChanged = true
	}
	if p.FilterMix != nil {
		l.Controller.FilterMix = *p.FilterMix
		filterChanged = true
	}
	if p.FilterType != nil {
		l.Controller.FilterType = *p.FilterType
		filterChanged = true
	}
	if filterChanged {
		for _, v := range l.Pool.ActiveVoices() {
			v.SetFilterController(l.Controller.FilterCutoff01, l.Controller.FilterResonance01,
				l.Controller.FilterMix, l.Controller.FilterType, filterTransitionMs, rate)
		}
	}

	if p.VelocityMapping != nil {
		l.Controller.VelocityMapping = *p.VelocityMapping
	}
	if p.ReverseEnabled != nil {
		l.Controller.ReverseEnabled = *p.ReverseEnabled
		for _, v := range l.Pool.ActiveVoices() {
			v.SetReverseEnabled(l.Controller.ReverseEnabled)
		}
	}
	if p.LoopMode != nil {
		l.Controller.LoopMode = *p.LoopMode
		for _, v := range l.Pool.ActiveVoices() {
			v.SetLoopMode(l.Controller.LoopMode)
		}
	}
	if p.VolumeEnvOn != nil {
		l.Controller.VolumeEnvOn = *p.VolumeEnvOn
	}

	if p.AttackMs != nil {
		l.Controller.AttackSamples = msToSamples(*p.AttackMs, l.sampleRate)
	}
	if p.DecayMs != nil {
		l.Controller.DecaySamples = msToSamples(*p.DecayMs, l.sampleRate)
	}
	if p.Sustain != nil {
		l.Controller.Sustain = *p.Sustain
	}
	if p.ReleaseMs != nil {
		l.Controller.ReleaseSamples = msToSamples(*p.ReleaseMs, l.sampleRate)
	}
	l.applyEnvelopeToActiveVoices()

	lfoChanged := false
	if p.LFODestination != nil {
		l.Controller.LFODestination = *p.LFODestination
	}
	if p.LFOShape != nil {
		l.Controller.LFOShape = *p.LFOShape
	}
	if p.LFOAmount != nil {
		l.Controller.LFOAmount = *p.LFOAmount
	}
	if p.LFOSynced != nil {
		l.Controller.LFOSynced = *p.LFOSynced
		lfoChanged = true
	}
	if p.LFOSyncRate != nil {
		l.Controller.LFOSyncRate = *p.LFOSyncRate
		lfoChanged = true
	}
	if p.LFOUnsyncedHz != nil {
		l.Controller.LFOUnsyncedHz = *p.LFOUnsyncedHz
		lfoChanged = true
	}
	if p.HostTempoBPM != nil && l.Controller.LFOSynced {
		lfoChanged = true
		l.hostTempoBPM = *p.HostTempoBPM
	}
	if lfoChanged {
		l.applyLFORateToActiveVoices()
	}

	if p.VolumeDB != nil {
		l.smooth.Floats.Set(slotVolume, dbToLinear(*p.VolumeDB), volumeTransitionMs, rate)
	}
	if p.Pan != nil {
		l.smooth.Floats.Set(slotPan, *p.Pan, panTransitionMs, rate)
	}
	if p.EQEnabled != nil {
		l.EQ.SetEnabled(l.smooth.Floats, *p.EQEnabled, rate)
	}
	if p.EQBandA != nil {
		l.EQ.SetBand(l.smooth.Filters, 0, *p.EQBandA, rate)
	}
	if p.EQBandB != nil {
		l.EQ.SetBand(l.smooth.Filters, 1, *p.EQBandB, rate)
	}
}

// Reset silences every active voice instantly, clears any in-flight
// instrument swap fade, and zeroes the meter -- the transport-reset half
// of a host's reset(); CurrentInstrument and smoothed volume/pan/EQ
// targets survive it, matching a DAW transport reset rather than a full
// re-construction.
func (l *Layer) Reset() {
	for _, v := range l.Pool.ActiveVoices() {
		v.EndVoiceInstantly()
		l.Pool.Release(v, v.Note)
	}
	l.pendingSwap = false
	l.pendingInstrument = nil
	l.Meter.Reset()
}

// NoteOn allocates a voice and starts it from the layer's current sound
// source: every region of CurrentInstrument matching (note, velocity,
// dynamics) if an instrument is loaded, otherwise CurrentWaveform if a
// generated waveform is selected, otherwise the voice starts silent.
// dynamics01 doubles as each region's "Dynamics" timbre coordinate;
// velToVol01 blends between unity gain (0) and fully velocity-scaled
// gain (1), then the layer's velocity-zone mapping is applied on top.
func (l *Layer) NoteOn(channel, note int, velocity01, dynamics01, velToVol01 float32, frameOffset int) {
	v := l.Pool.Allocate()

	gain := velToVolGain(velocity01, velToVol01) * ZoneGain(l.Controller.VelocityMapping, velocity01)

	params := voice.NoteStartParams{
		Note:                 note,
		Channel:              channel,
		Velocity:             velocity01,
		FramesBeforeStarting: frameOffset,
		PitchOffsetSemitones: l.Controller.TuneSemitones,
		KeyTracking:          true,
		ReverseEnabled:       l.Controller.ReverseEnabled,
		Pan:                  l.smooth.Floats.Value(slotPan, 0),
		FilterCutoff01:       l.Controller.FilterCutoff01,
		FilterResonance01:    l.Controller.FilterResonance01,
		FilterMix:            l.Controller.FilterMix,
		SourceSampleRate:     l.sampleRate,
	}

	switch {
	case l.CurrentInstrument != nil && l.CurrentInstrument.Handle != nil:
		if src, ok := l.CurrentInstrument.Handle.(InstrumentSource); ok {
			for _, region := range src.RegionsFor(note, velocity01, dynamics01) {
				if region.Audio == nil {
					continue
				}
				params.Samplers = append(params.Samplers, voice.SamplerStart{
					Region: region,
					Audio:  region.Audio,
					Loop:   region.Loop,
					Gain:   gain * region.GainTrim,
				})
				params.SourceSampleRate = region.Audio.SampleRate
			}
		}
	case l.CurrentWaveform != nil:
		wf := *l.CurrentWaveform
		params.Waveform = &wf
	}

	v.Start(params)
	l.Pool.NoteOn(note)
}

// NoteOff gates every voice on this layer matching (channel, note) into
// release. cc64Triggered is accepted for API parity with a host's
// sustain-pedal handling; suppressing the release while the pedal is held
// is the host's concern (it simply doesn't call NoteOff), not this
// layer's.
func (l *Layer) NoteOff(channel, note int, cc64Triggered bool) {
	for _, v := range l.Pool.ActiveVoices() {
		if v.Note == note && v.Channel == channel {
			v.EndVoice()
		}
	}
}

// velToVolGain blends between unity gain (velToVol01=0, velocity has no
// effect on loudness) and fully velocity-scaled gain (velToVol01=1).
func velToVolGain(velocity01, velToVol01 float32) float32 {
	return 1 + velToVol01*(velocity01-1)
}

func (l *Layer) applyEnvelopeToActiveVoices() {
	for _, v := range l.Pool.ActiveVoices() {
		v.VolumeEnv.Sustain = l.Controller.Sustain
		v.VolumeEnv.SetTimes(l.Controller.AttackSamples, l.Controller.DecaySamples, l.Controller.ReleaseSamples)
	}
}

func (l *Layer) applyLFORateToActiveVoices() {
	hz := l.Controller.LFOUnsyncedHz
	if l.Controller.LFOSynced {
		hz = SyncedLFOHz(l.hostTempoBPM, l.Controller.LFOSyncRate)
	}
	for _, v := range l.Pool.ActiveVoices() {
		v.LFO.Waveform = l.Controller.LFOShape
		v.LFO.SetRate(float32(l.sampleRate), hz)
	}
}

func dbToLinear(db float32) float32 {
	return powf(10, db/20)
}

// ConsumeDesiredInstrument checks the atomic desired-instrument slot
// once per block. A waveform or instrument publication fades out every
// currently active voice over instrumentSwapFadeMs; once the fade
// completes the swap takes effect and is exposed via CurrentInstrument or
// CurrentWaveform for the next NoteOn. A "none" result (also what a slot
// nothing was published to yet yields) clears both at once, without a
// fade.
func (l *Layer) ConsumeDesiredInstrument() {
	if l.pendingSwap {
		return
	}
	c := l.Desired.Consume()
	switch c.Kind {
	case "unchanged":
		return
	case "none":
		l.CurrentInstrument = nil
		l.CurrentWaveform = nil
	case "waveform", "instrument":
		l.beginSwap(c)
	}
}

func (l *Layer) beginSwap(c Consumed) {
	l.pendingSwap = true
	l.swapFadeSamples = msToSamples(instrumentSwapFadeMs, l.sampleRate)
	l.swapFadeLeft = l.swapFadeSamples
	for _, v := range l.Pool.ActiveVoices() {
		v.BeginSteal(l.swapFadeSamples)
	}
	l.pendingKind = c.Kind
	l.pendingInstrument = c.Instrument
	l.pendingWaveform = voice.WaveformKind(c.Waveform)
}

// ProcessBlock renders numChunks*voice.ChunkSize interleaved stereo
// frames: mix every active voice, apply the layer volume/pan smoother,
// run the EQ, and feed the peak meter.
func (l *Layer) ProcessBlock(numChunks int) []float32 {
	n := numChunks * voice.ChunkSize
	out := make([]float32, n*2)
	chunkBuf := make([]float32, voice.ChunkSize*2)

	l.ConsumeDesiredInstrument()
	l.advanceSwapFade(n)

	voices := l.Pool.ActiveVoices()

	for c := 0; c < numChunks; c++ {
		l.smooth.ProcessBlock(voice.ChunkSize)

		for i := range chunkBuf {
			chunkBuf[i] = 0
		}
		for _, v := range voices {
			v.ProcessChunk(chunkBuf)
			for i := 0; i < voice.ChunkSize*2; i++ {
				out[c*voice.ChunkSize*2+i] += chunkBuf[i]
			}
		}

		base := c * voice.ChunkSize * 2
		for f := 0; f < voice.ChunkSize; f++ {
			left := out[base+f*2]
			right := out[base+f*2+1]

			vol := l.smooth.Floats.Value(slotVolume, f)
			pan := l.smooth.Floats.Value(slotPan, f)
			left, right = applyLayerPan(left, right, pan)
			left *= vol
			right *= vol

			left, right = l.EQ.Process(l.smooth.Filters, l.smooth.Floats, f, left, right)

			out[base+f*2] = left
			out[base+f*2+1] = right
		}
	}

	l.Meter.ProcessBlock(out)
	l.releaseInactiveVoices(voices)
	return out
}

// releaseInactiveVoices returns every voice ProcessChunk silenced this
// block (envelope reached idle, or a fade-to-zero completed) to the pool,
// so the per-note voice counter stays accurate. ProcessChunk itself only
// clears Voice.Active; it has no reference back to the pool that owns it.
func (l *Layer) releaseInactiveVoices(voices []*voice.Voice) {
	for _, v := range voices {
		if !v.Active {
			l.Pool.Release(v, v.Note)
		}
	}
}

func applyLayerPan(left, right, pan float32) (float32, float32) {
	if pan < -1 {
		pan = -1
	}
	if pan > 1 {
		pan = 1
	}
	lGain := float32(1)
	rGain := float32(1)
	if pan < 0 {
		rGain = 1 + pan
	} else if pan > 0 {
		lGain = 1 - pan
	}
	return left * lGain, right * rGain
}

func (l *Layer) advanceSwapFade(n int) {
	if !l.pendingSwap {
		return
	}
	l.swapFadeLeft -= n
	if l.swapFadeLeft > 0 {
		return
	}
	for _, v := range l.Pool.ActiveVoices() {
		v.EndVoiceInstantly()
		l.Pool.Release(v, v.Note)
	}
	l.pendingSwap = false

	switch l.pendingKind {
	case "waveform":
		wf := l.pendingWaveform
		l.CurrentWaveform = &wf
		l.CurrentInstrument = nil
	case "instrument":
		l.CurrentInstrument = l.pendingInstrument
		l.CurrentWaveform = nil
	}
	l.pendingInstrument = nil
}

func powf(base, exp float32) float32 {
	if base <= 0 {
		return 0
	}
	return float32(math.Pow(float64(base), float64(exp)))
}
