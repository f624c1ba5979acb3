package dsp

import "math"

// SVFType selects which of the state-variable filter's simultaneous outputs
// (or a fixed mix of them) is returned by Process.
type SVFType int

const (
	SVFLowpass SVFType = iota
	SVFBandpass
	SVFHighpass
	SVFUnitGainBandpass
	SVFBandShelving
	SVFNotch
	SVFAllpass
	SVFPeak
)

// SVF is a stereo zero-delay-feedback (topology-preserving transform) state
// variable filter. The per-sample update follows the standard TPT SVF
// derivation (v1/v2/v3 + a1/a2/a3 integrator solve); all eight response
// types are cheap linear combinations of the three core outputs (low,
// band, high), so switching Type never requires re-deriving coefficients.
type SVF struct {
	Type SVFType

	g float32 // frequency coefficient (pre-warped tan(pi*fc/fs))
	k float32 // damping coefficient (1/Q)

	// Per-channel integrator state.
	ic1L, ic2L float32
	ic1R, ic2R float32
}

// SetParams recomputes g/k from a linear-mapped cutoff and skewed resonance.
// cutoffLinear and resonanceLinear are both in [0,1]; sampleRate in Hz.
func (s *SVF) SetParams(cutoffLinear, resonanceLinear, sampleRate float32) {
	hz := LinearToHz(cutoffLinear, 20, sampleRate*0.49)
	q := 0.5 + SkewResonance(resonanceLinear)*17.5 // ~0.5 .. 18
	s.g = float32(math.Tan(math.Pi * float64(hz) / float64(sampleRate)))
	s.k = 1.0 / q
}

// Reset clears filter state. Call whenever the wet/dry mix returns to zero
// so state doesn't step audibly when the filter re-engages.
func (s *SVF) Reset() {
	s.ic1L, s.ic2L, s.ic1R, s.ic2R = 0, 0, 0, 0
}

func (s *SVF) step(input, ic1, ic2 float32) (out, newIc1, newIc2 float32) {
	g, k := s.g, s.k
	a1 := 1.0 / (1.0 + g*(g+k))
	a2 := g * a1
	a3 := g * a2

	v3 := input - ic2
	v1 := a1*ic1 + a2*v3
	v2 := ic2 + a2*ic1 + a3*v3

	lp := v2
	bp := v1
	hp := input - k*v1 - v2

	var y float32
	switch s.Type {
	case SVFLowpass:
		y = lp
	case SVFHighpass:
		y = hp
	case SVFBandpass:
		y = bp
	case SVFUnitGainBandpass:
		y = k * bp
	case SVFNotch:
		y = input - k*bp
	case SVFAllpass:
		y = input - 2*k*bp
	case SVFPeak:
		y = lp - hp
	case SVFBandShelving:
		y = input + k*bp
	default:
		y = lp
	}

	newIc1 = FlushDenormals(2.0*v1 - ic1)
	newIc2 = FlushDenormals(2.0*v2 - ic2)
	return y, newIc1, newIc2
}

// Process filters one stereo frame.
func (s *SVF) Process(l, r float32) (float32, float32) {
	outL, ic1L, ic2L := s.step(l, s.ic1L, s.ic2L)
	s.ic1L, s.ic2L = ic1L, ic2L

	outR, ic1R, ic2R := s.step(r, s.ic1R, s.ic2R)
	s.ic1R, s.ic2R = ic1R, ic2R

	return outL, outR
}
