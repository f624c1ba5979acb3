package dsp

import "math"

const (
	lfoTableBits = 8
	lfoTableSize = 1 << lfoTableBits // 256 entries
	lfoTableMask = lfoTableSize - 1
	lfoFracBits  = 32 - lfoTableBits
	lfoFracScale = 1.0 / float32(uint32(1)<<lfoFracBits)
)

// LFOWaveform selects the periodic LFO's shape.
type LFOWaveform int

const (
	LFOSine LFOWaveform = iota
	LFOTriangle
	LFOSawtooth
	LFOSquare
)

var lfoTables [4][lfoTableSize + 1]float32

func init() {
	for i := 0; i <= lfoTableSize; i++ {
		phase := float64(i) / float64(lfoTableSize)
		lfoTables[LFOSine][i] = float32(math.Sin(2 * math.Pi * phase))

		if phase < 0.5 {
			lfoTables[LFOTriangle][i] = float32(-1 + 4*phase)
		} else {
			lfoTables[LFOTriangle][i] = float32(3 - 4*phase)
		}

		lfoTables[LFOSawtooth][i] = float32(2*phase - 1)

		if phase < 0.5 {
			lfoTables[LFOSquare][i] = 1
		} else {
			lfoTables[LFOSquare][i] = -1
		}
	}
}

// LFO is a table-lookup periodic oscillator. Phase is a 32-bit fixed-point
// counter: the top 8 bits index a 256-entry (+1 wrap-guard) table per
// waveform, the bottom 24 bits linearly interpolate to the next entry.
type LFO struct {
	Waveform  LFOWaveform
	phase     uint32
	increment uint32
}

// SetRate computes the per-tick phase increment for the given rate in Hz.
func (l *LFO) SetRate(sampleRate, hz float32) {
	if sampleRate <= 0 {
		l.increment = 0
		return
	}
	cycles := float64(hz) / float64(sampleRate)
	l.increment = uint32(cycles * 4294967296.0) // cycles * 2^32
}

// SetStartPhase seeds the phase counter from a [0,1) starting position.
func (l *LFO) SetStartPhase(phase01 float32) {
	if phase01 < 0 {
		phase01 = 0
	}
	if phase01 >= 1 {
		phase01 = 0
	}
	l.phase = uint32(float64(phase01) * 4294967296.0)
}

// Tick advances the phase by one sample and returns the waveform value in
// [-1,1].
func (l *LFO) Tick() float32 {
	table := &lfoTables[l.Waveform]
	idx := l.phase >> lfoFracBits
	frac := float32(l.phase&((1<<lfoFracBits)-1)) * lfoFracScale

	v0 := table[idx]
	v1 := table[idx+1]
	out := v0 + frac*(v1-v0)

	l.phase += l.increment
	return out
}

// RandomKind selects the non-periodic (random) LFO's motion type.
type RandomKind int

const (
	RandomPerlin RandomKind = iota
	RandomSampleAndHold
	RandomSineInterp
	RandomLorenz
)

// RandomLFO produces non-periodic modulation for destinations that want
// organic motion rather than a strict period. Each instance keeps its own
// history so stereo pairs can be seeded differently and decorrelate.
type RandomLFO struct {
	Kind RandomKind

	rng        uint32
	increment  float32
	phaseAccum float32
	prevTarget float32
	nextTarget float32
	current    float32

	// Lorenz attractor state (chaotic, used only when Kind == RandomLorenz).
	lx, ly, lz float32
}

// NewRandomLFO seeds the generator from an arbitrary integer seed so two
// channels of the same voice can run decorrelated copies. The first held
// value is drawn from the seed, so differently seeded copies differ from
// the first tick on.
func NewRandomLFO(seed uint32) *RandomLFO {
	if seed == 0 {
		seed = 0x9e3779b9
	}
	r := &RandomLFO{rng: seed, lx: 0.1, ly: 0, lz: 0}
	r.current = r.nextUniform()
	r.nextTarget = r.current
	return r
}

// SetRate sets the update rate in Hz relative to sample rate.
func (r *RandomLFO) SetRate(sampleRate, hz float32) {
	if sampleRate <= 0 {
		r.increment = 0
		return
	}
	r.increment = hz / sampleRate
}

func (r *RandomLFO) nextUniform() float32 {
	// xorshift32
	x := r.rng
	x ^= x << 13
	x ^= x >> 17
	x ^= x << 5
	r.rng = x
	return float32(x)*2.3283064e-10*2.0 - 1.0 // uniform in [-1,1]
}

// Tick advances by one sample and returns a value in approximately [-1,1].
func (r *RandomLFO) Tick() float32 {
	switch r.Kind {
	case RandomSampleAndHold:
		r.phaseAccum += r.increment
		if r.phaseAccum >= 1.0 {
			r.phaseAccum -= 1.0
			r.current = r.nextUniform()
		}
		return r.current
	case RandomSineInterp:
		r.phaseAccum += r.increment
		if r.phaseAccum >= 1.0 {
			r.phaseAccum -= 1.0
			r.prevTarget = r.nextTarget
			r.nextTarget = r.nextUniform()
		}
		// Raised-cosine interpolation between two random targets.
		t := r.phaseAccum
		smooth := 0.5 - 0.5*float32(math.Cos(math.Pi*float64(t)))
		return r.prevTarget + smooth*(r.nextTarget-r.prevTarget)
	case RandomLorenz:
		const sigma, rho, beta, dt = 10.0, 28.0, 8.0 / 3.0, 0.002
		dx := sigma * (r.ly - r.lx)
		dy := r.lx*(rho-r.lz) - r.ly
		dz := r.lx*r.ly - beta*r.lz
		r.lx += dt * dx
		r.ly += dt * dy
		r.lz += dt * dz
		return clamp(r.lx/20.0, -1, 1)
	default: // RandomPerlin (approximated with smoothly-interpolated noise octaves)
		r.phaseAccum += r.increment
		if r.phaseAccum >= 1.0 {
			r.phaseAccum -= 1.0
			r.prevTarget = r.nextTarget
			r.nextTarget = r.nextUniform()
		}
		t := r.phaseAccum
		smoothT := t * t * (3 - 2*t)
		return r.prevTarget + smoothT*(r.nextTarget-r.prevTarget)
	}
}

func clamp(v, lo, hi float32) float32 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
