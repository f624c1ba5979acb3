// Package sample holds the sample-library data model: decoded audio
// buffers, the region/instrument/library hierarchy that maps them onto
// the keyboard, and the loop-playback algorithm voices stream through.
package sample

import (
	"github.com/cwbudde/floe-core/dsp"
	"github.com/cwbudde/floe-core/internal/lockfree"
)

// frameInterp is the fractional-position interpolator every AudioData read
// goes through. Order 1 (linear) matches what loop playback needs; higher
// orders are available in dsp without touching this call site.
var frameInterp = dsp.NewLagrangeInterpolator(1)

// LoopMode selects how a region's built-in loop wraps at its end point.
type LoopMode int

const (
	LoopStandard LoopMode = iota
	LoopPingPong
)

// Loop is a normalized, bounds-checked loop definition. StartFrame and
// EndFrame are absolute frame indices into the owning AudioData;
// CrossfadeFrames never exceeds min(StartFrame, EndFrame-StartFrame).
type Loop struct {
	StartFrame      int
	EndFrame        int
	CrossfadeFrames int
	Mode            LoopMode
	Locked          bool
}

// Normalize clamps the loop to a valid shape against a buffer of the
// given frame count: end is capped at frameCount, and the crossfade is
// capped so it never reaches past the loop start or before it.
func (l Loop) Normalize(frameCount int) Loop {
	if l.EndFrame > frameCount {
		l.EndFrame = frameCount
	}
	if l.StartFrame < 0 {
		l.StartFrame = 0
	}
	if l.EndFrame <= l.StartFrame {
		l.EndFrame = l.StartFrame + 1
	}
	maxCrossfade := l.StartFrame
	if span := l.EndFrame - l.StartFrame; span < maxCrossfade {
		maxCrossfade = span
	}
	if l.CrossfadeFrames > maxCrossfade {
		l.CrossfadeFrames = maxCrossfade
	}
	if l.CrossfadeFrames < 0 {
		l.CrossfadeFrames = 0
	}
	return l
}

// AudioData is an immutable decoded audio buffer, planar per channel.
// It is created once by the loader and shared by reference; the loader's
// reaper frees it once its SimpleRefCount and every reader retain reach
// zero.
type AudioData struct {
	refs lockfree.SimpleRefCount

	Channels   []([]float32)
	SampleRate int
	NumFrames  int
}

// NewAudioData wraps planar channel data with an initial reference count
// of one (the caller's own).
func NewAudioData(channels [][]float32, sampleRate int) *AudioData {
	d := &AudioData{Channels: channels, SampleRate: sampleRate}
	if len(channels) > 0 {
		d.NumFrames = len(channels[0])
	}
	d.refs.Retain()
	return d
}

// Retain adds a reader reference.
func (d *AudioData) Retain() { d.refs.Retain() }

// Release drops a reader reference, returning the remaining count. The
// caller is expected to hand the asset to the reaper once the count
// reaches zero, not free it directly.
func (d *AudioData) Release() int32 { return int32(d.refs.Release()) }

// RefCount returns the current reference count, for the reaper's periodic
// zero-count sweep. Racy by nature (another thread may retain or release
// concurrently); only meaningful as a snapshot.
func (d *AudioData) RefCount() int32 { return d.refs.Load() }

// NumChannels returns how many channels the buffer carries.
func (d *AudioData) NumChannels() int { return len(d.Channels) }

// FrameAt reads an interpolated stereo frame at a fractional position,
// clamped to the valid range. Mono sources are duplicated to both
// channels.
func (d *AudioData) FrameAt(pos float64) (left, right float32) {
	if d.NumFrames == 0 {
		return 0, 0
	}
	if pos < 0 {
		pos = 0
	}
	maxPos := float64(d.NumFrames - 1)
	if pos > maxPos {
		pos = maxPos
	}
	i0 := int(pos)
	i1 := i0 + 1
	if i1 > d.NumFrames-1 {
		i1 = d.NumFrames - 1
	}
	frac := float32(pos - float64(i0))

	var buf [2]float32
	buf[0], buf[1] = d.Channels[0][i0], d.Channels[0][i1]
	l := frameInterp.Interpolate(buf[:], frac)
	if len(d.Channels) < 2 {
		return l, l
	}
	buf[0], buf[1] = d.Channels[1][i0], d.Channels[1][i1]
	r := frameInterp.Interpolate(buf[:], frac)
	return l, r
}

// Region maps one AudioData onto a subset of the keyboard and velocity
// space inside an Instrument.
type Region struct {
	Audio *AudioData

	// SourcePath names the file Audio was (or should be) decoded from. The
	// loader uses it to dedup decodes across regions and instruments that
	// share a sample; it is empty for regions built directly in memory
	// (synthesized waveforms, tests).
	SourcePath string

	RootKey     int
	KeyLow      int
	KeyHigh     int
	VelocityLow float32
	VelocityHigh float32

	// TimbreLow/TimbreHigh describe a contiguous subinterval of [0,100]
	// on the "Dynamics" timbre knob over which this region crossfades
	// against neighboring regions; zero-width means no crossfade range.
	TimbreLow  float32
	TimbreHigh float32

	Loop     Loop
	HasLoop  bool
	GainTrim float32
}

// Matches reports whether the given note/velocity/timbre triple falls
// within this region's mapping.
func (r *Region) Matches(note int, velocity01 float32, timbre01 float32) bool {
	if note < r.KeyLow || note > r.KeyHigh {
		return false
	}
	if velocity01 < r.VelocityLow || velocity01 > r.VelocityHigh {
		return false
	}
	timbrePct := timbre01 * 100
	if r.TimbreHigh > r.TimbreLow && (timbrePct < r.TimbreLow || timbrePct > r.TimbreHigh) {
		return false
	}
	return true
}

// Instrument is a named collection of Regions.
type Instrument struct {
	Name        string
	Author      string
	Tags        []string
	Folder      string
	Description string
	Regions     []*Region
}

// RegionsFor returns every region whose mapping covers the given
// note/velocity/timbre triple.
func (in *Instrument) RegionsFor(note int, velocity01, timbre01 float32) []*Region {
	var out []*Region
	for _, r := range in.Regions {
		if r.Matches(note, velocity01, timbre01) {
			out = append(out, r)
		}
	}
	return out
}

// InstrumentId identifies an instrument within a library by name.
type InstrumentId struct {
	LibraryAuthor string
	LibraryName   string
	InstrumentName string
}

// IrId identifies an impulse response within a library by name.
type IrId struct {
	LibraryAuthor string
	LibraryName   string
	IrName        string
}

// Library is a named, versioned collection of Instruments and impulse
// responses with a stable (author, name) identity.
type Library struct {
	Author      string
	Name        string
	Version     string
	URL         string
	Path        string
	ContentHash uint64

	Instruments map[string]*Instrument
	Irs         map[string]*AudioData
}

// NewLibrary returns an empty library ready to have instruments added.
func NewLibrary(author, name string) *Library {
	return &Library{
		Author:      author,
		Name:        name,
		Instruments: make(map[string]*Instrument),
		Irs:         make(map[string]*AudioData),
	}
}

// Id returns this library's stable identity pair.
func (lib *Library) Id() (author, name string) { return lib.Author, lib.Name }
