package smooth

import "github.com/cwbudde/floe-core/dsp"

// FilterBank owns every filter-coefficient smoothing slot in a layer. A
// filter parameter change doesn't ramp through intermediate frequencies --
// it crossfades the biquad's prior coefficients into the newly designed
// ones over the transition, which avoids the pop a direct coefficient
// jump would cause without requiring per-sample coefficient redesign.
type FilterBank struct {
	mix []*ramp[float32]
	old []dsp.Coeffs
	new []dsp.Coeffs
}

// NewFilterBank preallocates count slots.
func NewFilterBank(count int, blockSize int) *FilterBank {
	b := &FilterBank{
		mix: make([]*ramp[float32], count),
		old: make([]dsp.Coeffs, count),
		new: make([]dsp.Coeffs, count),
	}
	for i := range b.mix {
		b.mix[i] = newRamp[float32](blockSize, 1)
	}
	return b
}

// Set stages a crossfade from the slot's currently-designed coefficients
// to target over transitionMs, effective from the next ProcessBlock.
func (b *FilterBank) Set(id FilterID, target dsp.Coeffs, transitionMs, sampleRate float32) {
	b.old[id] = b.old[id].Lerp(b.new[id], b.mix[id].target)
	b.new[id] = target
	b.mix[id].hardSet(0)
	steps := int(transitionMs * sampleRate / 1000)
	b.mix[id].set(1, steps)
}

// HardSet jumps straight to target with no crossfade.
func (b *FilterBank) HardSet(id FilterID, target dsp.Coeffs) {
	b.new[id] = target
	b.old[id] = target
	b.mix[id].hardSet(1)
}

// ProcessBlock advances every slot's crossfade ramp by n samples.
func (b *FilterBank) ProcessBlock(n int) {
	for _, r := range b.mix {
		r.processBlock(n)
	}
}

// Coeffs returns the blended coefficients for id at the given frame offset.
func (b *FilterBank) Coeffs(id FilterID, frame int) dsp.Coeffs {
	t := b.mix[id].value(frame)
	return b.old[id].Lerp(b.new[id], t)
}

// Active reports whether id is still crossfading.
func (b *FilterBank) Active(id FilterID) bool {
	return b.mix[id].isActive()
}
