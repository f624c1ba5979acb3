package voice

import "github.com/cwbudde/algo-approx"

const ln2 = 0.69314718055994530942

// pow2Approx computes 2^x with a fast exponential approximation instead of
// math.Exp2, the same tradeoff the rest of this engine's per-voice,
// per-sample math makes wherever exactness isn't worth the cycles.
func pow2Approx(x float32) float32 {
	return approx.FastExp(x * ln2)
}

// SamplerPitchRatio computes the playback-position step for a sampled
// region: semitone offset from the region's root key, converted to a
// frequency ratio, scaled by the source-to-output sample-rate ratio.
func SamplerPitchRatio(note int, pitchOffsetSemitones float32, rootKey int, sourceSampleRate, outputSampleRate int) float64 {
	semitones := float32(note) + pitchOffsetSemitones - float32(rootKey)
	freqRatio := pow2Approx(semitones / 12.0)
	return float64(freqRatio) * float64(sourceSampleRate) / float64(outputSampleRate)
}

// SineFrequencyRatio computes the per-sample phase increment for a sine
// waveform voice, unrelated to any source sample rate.
func SineFrequencyRatio(note int, pitchOffsetSemitones float32, outputSampleRate int) float64 {
	hz := midiToHz(float32(note) + pitchOffsetSemitones)
	return float64(hz) / float64(outputSampleRate)
}

func midiToHz(note float32) float32 {
	return 440.0 * pow2Approx((note-69.0)/12.0)
}

// PitchLFOMultiplier converts an LFO amount in [-1,1] routed to pitch into
// a multiplicative pitch-ratio factor: +-1 semitone at amount=+-1.
func PitchLFOMultiplier(amount float32) float64 {
	return float64(pow2Approx(amount / 12.0))
}
