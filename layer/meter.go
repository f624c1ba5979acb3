package layer

import "math"

// clipWindowMs is how long a clip indicator stays lit after the last
// over-0dB sample.
const clipWindowMs = 500.0

// peakReleaseMs is the exponential release time constant for the GUI
// peak reading.
const peakReleaseMs = 300.0

// PeakMeter tracks a per-block maximum-of-absolute-value with an
// exponential release between blocks, plus a "clipped recently"
// indicator over a fixed window.
type PeakMeter struct {
	peak float32

	releaseCoefPerSample float32
	clipWindowSamples    int
	clipRemaining        int
}

// NewPeakMeter builds a meter for the given sample rate.
func NewPeakMeter(sampleRate int) *PeakMeter {
	m := &PeakMeter{
		clipWindowSamples: int(clipWindowMs * float32(sampleRate) / 1000),
	}
	m.releaseCoefPerSample = float32(math.Exp(-1.0 / (peakReleaseMs / 1000.0 * float64(sampleRate))))
	return m
}

// ProcessBlock scans an interleaved stereo buffer, updates the held peak
// (instant attack, exponential release) and the clip window.
func (m *PeakMeter) ProcessBlock(interleaved []float32) {
	numFrames := len(interleaved) / 2
	if numFrames == 0 {
		return
	}

	var blockMax float32
	clipped := false
	for _, s := range interleaved {
		a := s
		if a < 0 {
			a = -a
		}
		if a > blockMax {
			blockMax = a
		}
		if a > 1.0 {
			clipped = true
		}
	}

	if blockMax >= m.peak {
		m.peak = blockMax
	} else {
		m.peak *= pow32(m.releaseCoefPerSample, numFrames)
	}

	if clipped {
		m.clipRemaining = m.clipWindowSamples
	} else {
		m.clipRemaining -= numFrames
		if m.clipRemaining < 0 {
			m.clipRemaining = 0
		}
	}
}

func pow32(base float32, exp int) float32 {
	return float32(math.Pow(float64(base), float64(exp)))
}

// Peak returns the current held peak value for GUI display.
func (m *PeakMeter) Peak() float32 { return m.peak }

// ClippingRecently reports whether any sample has exceeded 1.0 within
// the trailing clip window.
func (m *PeakMeter) ClippingRecently() bool { return m.clipRemaining > 0 }

// Reset silences the held peak and clears the clip indicator, for a host
// transport reset.
func (m *PeakMeter) Reset() {
	m.peak = 0
	m.clipRemaining = 0
}

// MeterSnapshot is the plain value struct a layer's meter publishes to its
// GUI-facing swap buffer each block: a read-only copy of PeakMeter's state
// with no pointer back into the audio thread.
type MeterSnapshot struct {
	Peak             float32
	ClippingRecently bool
}

// Snapshot returns the current metering state as a GUI-safe value.
func (m *PeakMeter) Snapshot() MeterSnapshot {
	return MeterSnapshot{Peak: m.peak, ClippingRecently: m.ClippingRecently()}
}
