package dsp

import "math"

// EnvelopeStage is one of the five ADSR states.
type EnvelopeStage int

const (
	EnvIdle EnvelopeStage = iota
	EnvAttack
	EnvDecay
	EnvSustain
	EnvRelease
)

// ADSR is an exponential-segment attack/decay/sustain/release envelope,
// following the classic target-ratio recurrence (Redmon): each segment is a
// one-pole filter chasing a target just past the true target value, so the
// curve is a genuine exponential rather than a flat asymptote that never
// quite arrives. Attack chases 1+TargetRatioA, decay chases
// Sustain-TargetRatioDR, release chases -TargetRatioDR. The output is
// additionally run through a fixed one-pole smoother so a stage transition
// landing mid-block never produces a stair-step.
type ADSR struct {
	AttackSamples  int
	DecaySamples   int
	Sustain        float32
	ReleaseSamples int
	TargetRatioA   float32
	TargetRatioDR  float32

	stage    EnvelopeStage
	level    float32
	smoothed float32

	attackBase, attackCoef   float32
	decayBase, decayCoef     float32
	releaseBase, releaseCoef float32
}

const envSmoothCoef = 0.10

// NewADSR creates an envelope with sane default target ratios.
func NewADSR() *ADSR {
	e := &ADSR{
		Sustain:       1.0,
		TargetRatioA:  0.3,
		TargetRatioDR: 0.0001,
	}
	e.SetTimes(1, 1, 1)
	return e
}

// SetTimes configures stage lengths in samples and recomputes per-segment
// one-pole coefficients.
func (e *ADSR) SetTimes(attackSamples, decaySamples, releaseSamples int) {
	if attackSamples < 1 {
		attackSamples = 1
	}
	if decaySamples < 1 {
		decaySamples = 1
	}
	if releaseSamples < 1 {
		releaseSamples = 1
	}
	e.AttackSamples = attackSamples
	e.DecaySamples = decaySamples
	e.ReleaseSamples = releaseSamples

	e.attackCoef = calcCoef(attackSamples, e.TargetRatioA)
	e.attackBase = (1.0 + e.TargetRatioA) * (1.0 - e.attackCoef)

	e.decayCoef = calcCoef(decaySamples, e.TargetRatioDR)
	e.decayBase = (e.Sustain - e.TargetRatioDR) * (1.0 - e.decayCoef)

	e.releaseCoef = calcCoef(releaseSamples, e.TargetRatioDR)
	e.releaseBase = -e.TargetRatioDR * (1.0 - e.releaseCoef)
}

func calcCoef(samples int, targetRatio float32) float32 {
	if targetRatio <= 0 {
		targetRatio = 0.0001
	}
	return float32(math.Exp(-math.Log((1.0+float64(targetRatio))/float64(targetRatio)) / float64(samples)))
}

// Gate(true) restarts at Attack from wherever the envelope currently sits;
// Gate(false) moves to Release from any active stage; an idle envelope
// stays idle.
func (e *ADSR) Gate(on bool) {
	if on {
		e.stage = EnvAttack
		return
	}
	if e.stage == EnvIdle {
		return
	}
	e.stage = EnvRelease
}

// Stage reports the current stage.
func (e *ADSR) Stage() EnvelopeStage { return e.stage }

// Active reports whether the envelope is anywhere but Idle.
func (e *ADSR) Active() bool { return e.stage != EnvIdle }

// Process advances the envelope by one sample and returns the level,
// clamped to [0,1] and low-passed to avoid stage-boundary stair-stepping.
func (e *ADSR) Process() float32 {
	switch e.stage {
	case EnvIdle:
		e.level = 0
	case EnvAttack:
		e.level = e.attackBase + e.level*e.attackCoef
		if e.level >= 1.0 {
			e.level = 1.0
			e.stage = EnvDecay
		}
	case EnvDecay:
		e.level = e.decayBase + e.level*e.decayCoef
		if e.level <= e.Sustain {
			e.level = e.Sustain
			e.stage = EnvSustain
		}
	case EnvSustain:
		e.level = e.Sustain
	case EnvRelease:
		e.level = e.releaseBase + e.level*e.releaseCoef
		if e.level <= 1e-5 {
			e.level = 0
			e.stage = EnvIdle
		}
	}

	if e.level < 0 {
		e.level = 0
	}
	if e.level > 1 {
		e.level = 1
	}

	e.smoothed += envSmoothCoef * (e.level - e.smoothed)
	return e.smoothed
}
