// Package voice implements the per-note playback engine: a VoiceSample
// streams one audio source (sampled region or generated waveform), a
// Voice sums up to four VoiceSamples through its envelope/filter/pan
// chain, and a VoicePool allocates and steals among a fixed 64-slot pool.
package voice

import (
	"math"

	"github.com/cwbudde/floe-core/dsp"
	"github.com/cwbudde/floe-core/internal/smooth"
	"github.com/cwbudde/floe-core/sample"
)

// ChunkSize is the fixed per-voice processing granularity.
const ChunkSize = 64

// MaxVoiceSamples is the most streams a single voice may mix.
const MaxVoiceSamples = 4

// WaveformKind selects a generated (non-sampled) voice-sample source.
type WaveformKind int

const (
	WaveformSine WaveformKind = iota
	WaveformWhiteNoiseMono
	WaveformWhiteNoiseStereo
)

// LFODestination selects which parameter a voice's LFO is routed to.
type LFODestination int

const (
	LFODestNone LFODestination = iota
	LFODestVolume
	LFODestPitch
	LFODestPan
	LFODestFilter
)

// VoiceSample is one contributing stream within a voice.
type VoiceSample struct {
	IsWaveform bool

	Region *sample.Region
	Audio  *sample.AudioData
	Loop   sample.Loop

	Waveform WaveformKind
	phase    float64
	rngState uint32

	Playback sample.PlaybackState
	Active   bool

	// GainID indexes this slot's timbre-crossfade gain in the voice's
	// float smoother bank.
	GainID smooth.FloatID
	// PitchID indexes this slot's pitch-ratio in the voice's double
	// smoother bank.
	PitchID smooth.DoubleID
}

const (
	slotPan smooth.FloatID = iota
	slotCutoff
	slotResonance
	slotFilterMix
	slotGainBase // + [0, MaxVoiceSamples)
	numFloatSlots = slotGainBase + MaxVoiceSamples
)

// SamplerStart describes one sampled VoiceSample at note-on.
type SamplerStart struct {
	Region *sample.Region
	Audio  *sample.AudioData
	Loop   sample.Loop
	Gain   float32
}

// NoteStartParams carries everything a note-on needs to seed a Voice.
type NoteStartParams struct {
	Note               int
	Channel            int
	Velocity           float32
	LFOStartPhase      float32
	FramesBeforeStarting int

	Samplers []SamplerStart
	Waveform *WaveformKind

	PitchOffsetSemitones float32
	KeyTracking          bool
	SourceSampleRate     int
	ReverseEnabled       bool

	Pan             float32
	FilterCutoff01  float32
	FilterResonance01 float32
	FilterMix       float32
}

// Voice is the run-time allocation for a single playing note.
type Voice struct {
	outputSampleRate int

	Note    int
	Channel int
	Velocity float32
	Age      uint64
	ID       uint64

	Samples   [MaxVoiceSamples]VoiceSample
	NumSamples int

	VolumeEnv *dsp.ADSR
	FilterEnv *dsp.ADSR
	Filter    dsp.SVF
	LFO       dsp.LFO
	lfoSmoothed float32

	LFODestination LFODestination
	LFOAmount      float32
	FilterEnvAmount float32

	smooth *smooth.System

	// VolumeFade drives instrument-change/voice-steal crossfades,
	// independent of the volume envelope.
	volumeFade     float32
	volumeFadeStep float32
	volumeFadeTo   float32

	Aftertouch float32

	CurrentGain float32
	FramesBeforeStarting int

	Active bool

	keyTracking      bool
	reverseEnabled   bool
	sourceSampleRate int
	pitchOffset      float32
}

// NewVoice allocates a voice sized for the given output sample rate and
// maximum block size. Nothing here runs on the audio thread's hot path;
// voices are preallocated once by the pool.
func NewVoice(outputSampleRate, maxBlockSize int) *Voice {
	v := &Voice{
		outputSampleRate: outputSampleRate,
		VolumeEnv:        dsp.NewADSR(),
		FilterEnv:        dsp.NewADSR(),
		smooth:           smooth.NewSystem(int(numFloatSlots), MaxVoiceSamples, 0, maxBlockSize),
		Aftertouch:       1,
	}
	return v
}

// Start seeds the voice for a new note. All smoothers are hard-set (no
// ramp) so the voice starts at its target values immediately.
func (v *Voice) Start(p NoteStartParams) {
	v.Note = p.Note
	v.Channel = p.Channel
	v.Velocity = p.Velocity
	v.FramesBeforeStarting = p.FramesBeforeStarting
	v.Active = true
	v.keyTracking = p.KeyTracking
	v.reverseEnabled = p.ReverseEnabled
	v.sourceSampleRate = p.SourceSampleRate
	v.pitchOffset = p.PitchOffsetSemitones

	v.volumeFade = 1
	v.volumeFadeStep = 0
	v.volumeFadeTo = 1
	v.Aftertouch = 1

	v.smooth.Floats.HardSet(slotPan, p.Pan)
	v.smooth.Floats.HardSet(slotCutoff, p.FilterCutoff01)
	v.smooth.Floats.HardSet(slotResonance, p.FilterResonance01)
	v.smooth.Floats.HardSet(slotFilterMix, p.FilterMix)
	v.Filter.Reset()

	v.LFO.SetStartPhase(p.LFOStartPhase)

	v.NumSamples = 0
	for i, s := range p.Samplers {
		if i >= MaxVoiceSamples {
			break
		}
		rootKey := s.Region.RootKey
		note := p.Note
		if !p.KeyTracking {
			note = rootKey
		}
		ratio := SamplerPitchRatio(note, p.PitchOffsetSemitones, rootKey, p.SourceSampleRate, v.outputSampleRate)

		vs := VoiceSample{
			Region:     s.Region,
			Audio:      s.Audio,
			Loop:       s.Loop,
			Active:     true,
			GainID:     slotGainBase + smooth.FloatID(i),
			PitchID:    smooth.DoubleID(i),
		}
		vs.Playback = sample.NewPlaybackState(p.ReverseEnabled, s.Audio.NumFrames, 0)
		v.smooth.Floats.HardSet(vs.GainID, s.Gain)
		v.smooth.Doubles.HardSet(vs.PitchID, ratio)
		v.Samples[i] = vs
		v.NumSamples++
	}
	if p.Waveform != nil {
		vs := VoiceSample{
			IsWaveform: true,
			Waveform:   *p.Waveform,
			Active:     true,
			GainID:     slotGainBase,
			PitchID:    0,
		}
		ratio := SineFrequencyRatio(p.Note, p.PitchOffsetSemitones, v.outputSampleRate)
		v.smooth.Floats.HardSet(vs.GainID, 1)
		v.smooth.Doubles.HardSet(vs.PitchID, ratio)
		v.Samples[0] = vs
		v.NumSamples = 1
	}

	v.VolumeEnv.Gate(true)
	v.FilterEnv.Gate(true)
}

// EndVoice gates both envelopes into release; the voice keeps processing
// until the volume envelope reaches idle.
func (v *Voice) EndVoice() {
	v.VolumeEnv.Gate(false)
	v.FilterEnv.Gate(false)
}

// EndVoiceInstantly resets the voice to silence synchronously. A sample
// stream that runs off the end of a non-looped buffer does not call it:
// only that VoiceSample is marked inactive, and the voice keeps running
// until its volume envelope goes idle or a fade reaches zero.
func (v *Voice) EndVoiceInstantly() {
	v.Active = false
	v.CurrentGain = 0
	v.VolumeEnv.Gate(false)
	v.FilterEnv.Gate(false)
}

// BeginSteal starts a linear fade-out over durationSamples; once the fade
// reaches zero, ProcessChunk marks the voice inactive.
func (v *Voice) BeginSteal(durationSamples int) {
	if durationSamples < 1 {
		durationSamples = 1
	}
	v.volumeFadeTo = 0
	v.volumeFadeStep = (v.volumeFadeTo - v.volumeFade) / float32(durationSamples)
}

// Fading reports whether a steal/instrument-change fade is in progress.
func (v *Voice) Fading() bool {
	return v.volumeFadeStep != 0 && v.volumeFade != v.volumeFadeTo
}

// ProcessChunk renders ChunkSize stereo frames (interleaved, length
// 2*ChunkSize) following the per-chunk pipeline: advance smoothers, LFO,
// mix voice samples, apply envelope, apply fade/aftertouch, pan, filter.
func (v *Voice) ProcessChunk(out []float32) {
	if len(out) < 2*ChunkSize {
		panic("voice: ProcessChunk buffer too small")
	}

	v.smooth.ProcessBlock(ChunkSize)
	v.stepLFO()

	for i := 0; i < ChunkSize; i++ {
		left, right := v.mixSamplesAt(i)

		env := v.VolumeEnv.Process()
		if v.LFODestination == LFODestVolume {
			env *= 1 + v.LFOAmount*v.lfoAt(i)
		}
		left *= env
		right *= env

		if !v.VolumeEnv.Active() {
			v.zeroRemainder(out, i)
			v.Active = false
			return
		}

		v.stepVolumeFade()
		fadeMul := v.volumeFade * v.Aftertouch
		left *= fadeMul
		right *= fadeMul
		if v.volumeFade <= 0 && v.volumeFadeTo == 0 {
			v.zeroRemainder(out, i)
			v.Active = false
			return
		}

		left, right = v.applyPan(left, right, i)
		left, right = v.applyFilter(left, right, i)

		out[i*2] = left
		out[i*2+1] = right
		v.CurrentGain = env
	}
}

func (v *Voice) zeroRemainder(out []float32, from int) {
	for i := from; i < ChunkSize; i++ {
		out[i*2] = 0
		out[i*2+1] = 0
	}
}

func (v *Voice) mixSamplesAt(frame int) (left, right float32) {
	for i := 0; i < v.NumSamples; i++ {
		vs := &v.Samples[i]
		if !vs.Active {
			continue
		}
		gain := v.smooth.Floats.Value(vs.GainID, frame)
		ratio := v.smooth.Doubles.Value(vs.PitchID, frame)
		if v.LFODestination == LFODestPitch {
			ratio *= PitchLFOMultiplier(v.LFOAmount * v.lfoAt(frame))
		}

		var l, r float32
		if vs.IsWaveform {
			l, r = vs.tickWaveform(ratio)
		} else {
			var exhausted bool
			l, r, exhausted = vs.Playback.Advance(vs.Audio, vs.Loop, vs.Region.HasLoop, ratio)
			if exhausted {
				vs.Active = false
			}
		}
		left += l * gain
		right += r * gain
	}
	return left, right
}

func (vs *VoiceSample) tickWaveform(phaseIncrement float64) (float32, float32) {
	vs.phase += phaseIncrement
	if vs.phase >= 1 {
		vs.phase -= math.Floor(vs.phase)
	}
	switch vs.Waveform {
	case WaveformSine:
		s := float32(math.Sin(2 * math.Pi * vs.phase))
		return s, s
	case WaveformWhiteNoiseMono:
		n := nextWhite(&vs.rngState)
		return n, n
	default: // WaveformWhiteNoiseStereo
		l := nextWhite(&vs.rngState)
		r := nextWhite(&vs.rngState)
		return l, r
	}
}

// nextWhite produces a white-noise sample in [-1,1] from a per-stream
// xorshift32 generator. A zero state is seeded lazily with a fixed
// constant, so every stream starts on the same sequence; the stereo
// variant draws left and right from consecutive values.
func nextWhite(state *uint32) float32 {
	if *state == 0 {
		*state = 0x9e3779b9
	}
	x := *state
	x ^= x << 13
	x ^= x >> 17
	x ^= x << 5
	*state = x
	return float32(x)/float32(math.MaxUint32)*2 - 1
}

func (v *Voice) stepLFO() {
	// The LFO's rate is set per sample, so it is ticked once per output
	// frame of the chunk, each tick smoothed with a fixed one-pole at 0.9.
	// The last smoothed value is held for every frame of the chunk (lfoAt
	// ignores its frame argument).
	for i := 0; i < ChunkSize; i++ {
		raw := v.LFO.Tick()
		v.lfoSmoothed += 0.9 * (raw - v.lfoSmoothed)
	}
}

func (v *Voice) lfoAt(int) float32 { return v.lfoSmoothed }

func (v *Voice) stepVolumeFade() {
	if v.volumeFadeStep == 0 {
		return
	}
	v.volumeFade += v.volumeFadeStep
	if (v.volumeFadeStep > 0 && v.volumeFade >= v.volumeFadeTo) ||
		(v.volumeFadeStep < 0 && v.volumeFade <= v.volumeFadeTo) {
		v.volumeFade = v.volumeFadeTo
		v.volumeFadeStep = 0
	}
}

func (v *Voice) applyPan(left, right float32, frame int) (float32, float32) {
	pan := v.smooth.Floats.Value(slotPan, frame)
	if v.LFODestination == LFODestPan {
		pan += v.LFOAmount * v.lfoAt(frame)
	}
	if pan < -1 {
		pan = -1
	}
	if pan > 1 {
		pan = 1
	}
	angle := float64(pan+1) * (math.Pi / 4)
	lGain := float32(math.Cos(angle))
	rGain := float32(math.Sin(angle))
	return left * lGain, right * rGain
}

// SetFilterController pushes a layer-wide filter-knob change into this
// voice's own smoothers: cutoff/resonance/mix ramp rather than jump, and
// the SVF's response type switches immediately (its coefficients are
// cheap linear combinations, so a type change never needs its own ramp).
func (v *Voice) SetFilterController(cutoff01, resonance01, mix float32, kind dsp.SVFType, transitionMs, sampleRate float32) {
	v.Filter.Type = kind
	v.smooth.Floats.Set(slotCutoff, cutoff01, transitionMs, sampleRate)
	v.smooth.Floats.Set(slotResonance, resonance01, transitionMs, sampleRate)
	v.smooth.Floats.Set(slotFilterMix, mix, transitionMs, sampleRate)
}

// SetReverseEnabled updates every active sample's playback direction.
func (v *Voice) SetReverseEnabled(reversed bool) {
	v.reverseEnabled = reversed
	for i := 0; i < v.NumSamples; i++ {
		v.Samples[i].Playback.Reversed = reversed
	}
}

// SetLoopMode updates every active sampled stream's loop mode.
func (v *Voice) SetLoopMode(mode sample.LoopMode) {
	for i := 0; i < v.NumSamples; i++ {
		v.Samples[i].Loop.Mode = mode
	}
}

// SetPitchOffsetSemitones re-derives every sample's pitch ratio for a
// layer-wide tune change and stages the new ratio as a ramp rather than
// a hard jump, so retuning a sustained note doesn't click.
func (v *Voice) SetPitchOffsetSemitones(semitones, transitionMs, sampleRate float32) {
	v.pitchOffset = semitones
	for i := 0; i < v.NumSamples; i++ {
		vs := &v.Samples[i]
		if vs.IsWaveform {
			ratio := SineFrequencyRatio(v.Note, semitones, v.outputSampleRate)
			v.smooth.Doubles.Set(vs.PitchID, ratio, float64(transitionMs), float64(sampleRate))
			continue
		}
		note := v.Note
		if !v.keyTracking {
			note = vs.Region.RootKey
		}
		ratio := SamplerPitchRatio(note, semitones, vs.Region.RootKey, v.sourceSampleRate, v.outputSampleRate)
		v.smooth.Doubles.Set(vs.PitchID, ratio, float64(transitionMs), float64(sampleRate))
	}
}

func (v *Voice) applyFilter(left, right float32, frame int) (float32, float32) {
	mix := v.smooth.Floats.Value(slotFilterMix, frame)
	if mix <= 0 {
		v.Filter.Reset()
		return left, right
	}
	cutoff := v.smooth.Floats.Value(slotCutoff, frame)
	resonance := v.smooth.Floats.Value(slotResonance, frame)
	if v.FilterEnvAmount != 0 {
		cutoff += v.FilterEnvAmount * v.FilterEnv.Process()
	}
	if v.LFODestination == LFODestFilter {
		cutoff += v.LFOAmount * v.lfoAt(frame)
	}
	if cutoff < 0 {
		cutoff = 0
	}
	if cutoff > 1 {
		cutoff = 1
	}
	v.Filter.SetParams(cutoff, resonance, float32(v.outputSampleRate))

	wetL, wetR := v.Filter.Process(left, right)
	return left + (wetL-left)*mix, right + (wetR-right)*mix
}
