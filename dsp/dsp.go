package dsp

import "math"

// LinearToHz maps a linear [0,1] knob position to a frequency in Hz using a
// logarithmic curve between minHz and maxHz.
func LinearToHz(linear float32, minHz float32, maxHz float32) float32 {
	if linear < 0 {
		linear = 0
	}
	if linear > 1 {
		linear = 1
	}
	logMin := math.Log(float64(minHz))
	logMax := math.Log(float64(maxHz))
	return float32(math.Exp(logMin + float64(linear)*(logMax-logMin)))
}

// SkewResonance maps a linear [0,1] resonance knob to a non-linear curve that
// spends most of its range in the subtle, musically useful region and only
// approaches self-oscillation near the top.
func SkewResonance(linear float32) float32 {
	if linear < 0 {
		linear = 0
	}
	if linear > 1 {
		linear = 1
	}
	return linear * linear * (3 - 2*linear)
}

// LagrangeInterpolator provides higher-order fractional delay interpolation
type LagrangeInterpolator struct {
	order int
}

// NewLagrangeInterpolator creates a new Lagrange interpolator
// order: 1 = linear, 3 = cubic
func NewLagrangeInterpolator(order int) *LagrangeInterpolator {
	return &LagrangeInterpolator{
		order: order,
	}
}

// Interpolate performs Lagrange interpolation
// samples: array of samples around the interpolation point
// frac: fractional position (0.0 to 1.0)
func (l *LagrangeInterpolator) Interpolate(samples []float32, frac float32) float32 {
	if l.order == 1 {
		// Linear interpolation
		return samples[0] + frac*(samples[1]-samples[0])
	}

	if l.order == 3 {
		// Cubic (3rd order) Lagrange interpolation
		// Requires 4 points: samples[0], samples[1], samples[2], samples[3]
		// Interpolating between samples[1] and samples[2]
		d := frac
		c0 := samples[1]
		c1 := samples[2] - samples[0]/3.0 - samples[1]/2.0 - samples[3]/6.0
		c2 := samples[0]/2.0 - samples[1] + samples[2]/2.0
		c3 := samples[1]/2.0 - samples[2]/2.0 + (samples[3]-samples[0])/6.0

		return c0 + d*(c1+d*(c2+d*c3))
	}

	// Fallback to linear
	return samples[0] + frac*(samples[1]-samples[0])
}

// FlushDenormals converts denormal numbers to zero to avoid performance issues
func FlushDenormals(x float32) float32 {
	const epsilon = 1e-30
	if x > -epsilon && x < epsilon {
		return 0.0
	}
	return x
}
