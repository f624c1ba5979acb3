package dsp

import "math"

// FilterKind selects an RBJ biquad response curve.
type FilterKind int

const (
	FilterLowpass FilterKind = iota
	FilterHighpass
	FilterBandpass
	FilterNotch
	FilterPeak
	FilterLowShelf
	FilterHighShelf
	FilterAllpass
)

// Coeffs holds a normalized (a0==1) biquad coefficient set.
type Coeffs struct {
	B0, B1, B2 float32
	A1, A2     float32
}

// Lerp returns the element-wise linear blend between c and other at t in [0,1].
func (c Coeffs) Lerp(other Coeffs, t float32) Coeffs {
	return Coeffs{
		B0: c.B0 + (other.B0-c.B0)*t,
		B1: c.B1 + (other.B1-c.B1)*t,
		B2: c.B2 + (other.B2-c.B2)*t,
		A1: c.A1 + (other.A1-c.A1)*t,
		A2: c.A2 + (other.A2-c.A2)*t,
	}
}

// DesignRBJ computes RBJ cookbook coefficients for the given kind, center
// frequency (Hz), Q, gain-in-dB (shelf/peak only) and sample rate.
func DesignRBJ(kind FilterKind, freqHz, q, gainDB, sampleRate float32) Coeffs {
	if freqHz < 1 {
		freqHz = 1
	}
	if freqHz > sampleRate*0.49 {
		freqHz = sampleRate * 0.49
	}
	if q < 0.01 {
		q = 0.01
	}

	w0 := 2.0 * math.Pi * float64(freqHz) / float64(sampleRate)
	cosw0 := math.Cos(w0)
	sinw0 := math.Sin(w0)
	alpha := sinw0 / (2.0 * float64(q))
	a := math.Pow(10.0, float64(gainDB)/40.0)

	var b0, b1, b2, a0, a1, a2 float64

	switch kind {
	case FilterHighpass:
		b0 = (1 + cosw0) / 2
		b1 = -(1 + cosw0)
		b2 = (1 + cosw0) / 2
		a0 = 1 + alpha
		a1 = -2 * cosw0
		a2 = 1 - alpha
	case FilterBandpass:
		b0 = sinw0 / 2
		b1 = 0
		b2 = -sinw0 / 2
		a0 = 1 + alpha
		a1 = -2 * cosw0
		a2 = 1 - alpha
	case FilterNotch:
		b0 = 1
		b1 = -2 * cosw0
		b2 = 1
		a0 = 1 + alpha
		a1 = -2 * cosw0
		a2 = 1 - alpha
	case FilterAllpass:
		b0 = 1 - alpha
		b1 = -2 * cosw0
		b2 = 1 + alpha
		a0 = 1 + alpha
		a1 = -2 * cosw0
		a2 = 1 - alpha
	case FilterPeak:
		b0 = 1 + alpha*a
		b1 = -2 * cosw0
		b2 = 1 - alpha*a
		a0 = 1 + alpha/a
		a1 = -2 * cosw0
		a2 = 1 - alpha/a
	case FilterLowShelf:
		sqrtA := math.Sqrt(a)
		beta := sqrtA / float64(q)
		b0 = a * ((a + 1) - (a-1)*cosw0 + beta*sinw0)
		b1 = 2 * a * ((a - 1) - (a+1)*cosw0)
		b2 = a * ((a + 1) - (a-1)*cosw0 - beta*sinw0)
		a0 = (a + 1) + (a-1)*cosw0 + beta*sinw0
		a1 = -2 * ((a - 1) + (a+1)*cosw0)
		a2 = (a + 1) + (a-1)*cosw0 - beta*sinw0
	case FilterHighShelf:
		sqrtA := math.Sqrt(a)
		beta := sqrtA / float64(q)
		b0 = a * ((a + 1) + (a-1)*cosw0 + beta*sinw0)
		b1 = -2 * a * ((a - 1) + (a+1)*cosw0)
		b2 = a * ((a + 1) + (a-1)*cosw0 - beta*sinw0)
		a0 = (a + 1) - (a-1)*cosw0 + beta*sinw0
		a1 = 2 * ((a - 1) - (a+1)*cosw0)
		a2 = (a + 1) - (a-1)*cosw0 - beta*sinw0
	default: // FilterLowpass
		b0 = (1 - cosw0) / 2
		b1 = 1 - cosw0
		b2 = (1 - cosw0) / 2
		a0 = 1 + alpha
		a1 = -2 * cosw0
		a2 = 1 - alpha
	}

	return Coeffs{
		B0: float32(b0 / a0),
		B1: float32(b1 / a0),
		B2: float32(b2 / a0),
		A1: float32(a1 / a0),
		A2: float32(a2 / a0),
	}
}

// RBJBiquad is a stereo RBJ biquad with externally-driven (smoothed)
// coefficients: it does not compute its own coefficients per-block, it just
// applies whatever Coeffs it is given, so the caller (a filter smoother) can
// cross-fade old->new coefficients across a block without clicks.
type RBJBiquad struct {
	xL1, xL2, yL1, yL2 float32
	xR1, xR2, yR1, yR2 float32
}

// Process filters one stereo frame using the given coefficients and
// returns the filtered left and right samples.
func (f *RBJBiquad) Process(c Coeffs, l, r float32) (float32, float32) {
	outL := c.B0*l + c.B1*f.xL1 + c.B2*f.xL2 - c.A1*f.yL1 - c.A2*f.yL2
	f.xL2, f.xL1 = f.xL1, l
	f.yL2, f.yL1 = f.yL1, FlushDenormals(outL)

	outR := c.B0*r + c.B1*f.xR1 + c.B2*f.xR2 - c.A1*f.yR1 - c.A2*f.yR2
	f.xR2, f.xR1 = f.xR1, r
	f.yR2, f.yR1 = f.yR1, FlushDenormals(outR)

	return f.yL1, f.yR1
}

// Reset clears filter state, avoiding a click on type/frequency jumps.
func (f *RBJBiquad) Reset() {
	*f = RBJBiquad{}
}
