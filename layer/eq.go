package layer

import (
	"github.com/cwbudde/floe-core/dsp"
	"github.com/cwbudde/floe-core/internal/smooth"
)

// eqMixTransitionMs is the fixed on/off fade time for the master EQ
// bypass switch.
const eqMixTransitionMs = 4.0

// eqCoeffTransitionMs smooths a band's own frequency/Q/gain/type changes
// so moving an EQ knob never clicks.
const eqCoeffTransitionMs = 20.0

// EQBandParams is what a caller sets for one band.
type EQBandParams struct {
	Kind   dsp.FilterKind
	FreqHz float32
	Q      float32
	GainDB float32
}

type eqBand struct {
	biquad  dsp.RBJBiquad
	coeffID smooth.FilterID
}

// EQ is the layer's two-band biquad EQ with a single on/off mix
// smoother: off fully mixes dry, enabling ramps 0->1 over 4 ms.
type EQ struct {
	bands   [2]eqBand
	mixID   smooth.FloatID
	enabled bool
}

// NewEQ wires an EQ against pre-reserved slots in the layer's smoothing
// system.
func NewEQ(bandA, bandB smooth.FilterID, mixID smooth.FloatID) *EQ {
	return &EQ{bands: [2]eqBand{{coeffID: bandA}, {coeffID: bandB}}, mixID: mixID}
}

// SetBand designs new coefficients for band (0 or 1) and stages a
// crossfade into the filter smoothing bank.
func (e *EQ) SetBand(bank *smooth.FilterBank, band int, p EQBandParams, sampleRate float32) {
	coeffs := dsp.DesignRBJ(p.Kind, p.FreqHz, p.Q, p.GainDB, sampleRate)
	bank.Set(e.bands[band].coeffID, coeffs, eqCoeffTransitionMs, sampleRate)
}

// SetEnabled stages the master mix fade: 0->1 over eqMixTransitionMs when
// turning on, 1->0 over the same window when turning off.
func (e *EQ) SetEnabled(floats *smooth.FloatBank, enabled bool, sampleRate float32) {
	e.enabled = enabled
	target := float32(0)
	if enabled {
		target = 1
	}
	floats.Set(e.mixID, target, eqMixTransitionMs, sampleRate)
}

// Process runs both bands in series on one stereo frame and blends
// against dry by the current mix value.
func (e *EQ) Process(filters *smooth.FilterBank, floats *smooth.FloatBank, frame int, l, r float32) (float32, float32) {
	mix := floats.Value(e.mixID, frame)
	if mix <= 0 {
		return l, r
	}

	wetL, wetR := l, r
	for i := range e.bands {
		c := filters.Coeffs(e.bands[i].coeffID, frame)
		wetL, wetR = e.bands[i].biquad.Process(c, wetL, wetR)
	}

	return l + (wetL-l)*mix, r + (wetR-r)*mix
}

// Reset clears both bands' filter state, avoiding a click on a hard
// sample-rate or bypass-state jump.
func (e *EQ) Reset() {
	for i := range e.bands {
		e.bands[i].biquad.Reset()
	}
}
