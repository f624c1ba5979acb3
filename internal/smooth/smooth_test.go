package smooth

import (
	"testing"

	"github.com/cwbudde/floe-core/dsp"
)

// cutoff smoother 0.2 -> 0.8 over transitionMs=50 at 48kHz should land
// exactly on 0.8 at frame 2400 (50ms * 48000/1000 = 2400 steps), and never
// overshoot along the way.
func TestFloatBankReachesExactTargetAtCompletionSample(t *testing.T) {
	const sr = 48000
	const blockSize = 4096
	b := NewFloatBank(1, blockSize)
	b.HardSet(0, 0.2)

	b.Set(0, 0.8, 50, sr)
	b.ProcessBlock(blockSize) // promotes the pending ramp from this call

	prev := float32(0.2)
	for i := 0; i < 2400; i++ {
		v := b.Value(0, i)
		if v < prev-1e-6 {
			t.Fatalf("frame %d: value decreased (%v -> %v), ramp should be monotonic", i, prev, v)
		}
		if v > 0.8+1e-5 {
			t.Fatalf("frame %d: overshot target: %v", i, v)
		}
		prev = v
	}

	got := b.Value(0, 2399)
	if diff := got - 0.8; diff > 1e-4 || diff < -1e-4 {
		t.Fatalf("expected exact completion at frame 2399 (0-indexed, 2400 steps), got %v", got)
	}
	if got2 := b.Value(0, 5000); got2 != 0.8 {
		t.Fatalf("expected value past completion to stay pinned at target, got %v", got2)
	}
}

func TestFloatBankSetDuringBlockDeferredToNextBlock(t *testing.T) {
	b := NewFloatBank(1, 64)
	b.HardSet(0, 1)
	b.ProcessBlock(64) // no pending ramp yet; current block should stay flat at 1

	for i := 0; i < 64; i++ {
		if v := b.Value(0, i); v != 1 {
			t.Fatalf("frame %d: expected flat 1 before any Set, got %v", i, v)
		}
	}

	b.Set(0, 0, 10, 6400) // 64 steps at this contrived rate
	// Still processing what would be the "current" block from the caller's
	// perspective requires a fresh ProcessBlock call to promote staging.
	b.ProcessBlock(64)
	if v := b.Value(0, 0); v == 1 {
		t.Fatalf("expected ramp to have started moving by frame 0 of the block after Set")
	}
}

func TestFloatBankHardSetCancelsPending(t *testing.T) {
	b := NewFloatBank(1, 64)
	b.HardSet(0, 0)
	b.Set(0, 1, 100, 48000)
	b.HardSet(0, 0.5)
	b.ProcessBlock(64)
	for i := 0; i < 64; i++ {
		if v := b.Value(0, i); v != 0.5 {
			t.Fatalf("frame %d: expected HardSet to cancel the pending ramp, got %v", i, v)
		}
	}
}

func TestDoubleBankTracksIndependentlyOfFloatBank(t *testing.T) {
	b := NewDoubleBank(1, 64)
	b.HardSet(0, 10)
	b.Set(0, 20, 1, 64000) // 64 steps
	b.ProcessBlock(64)
	if v := b.Value(0, 63); v != 20 {
		t.Fatalf("expected double ramp to complete by final frame, got %v", v)
	}
}

func TestFilterBankCrossfadesOldIntoNew(t *testing.T) {
	b := NewFilterBank(1, 64)
	lp := testCoeffs(1)
	hp := testCoeffs(2)
	b.HardSet(0, lp)
	b.Set(0, hp, 1, 64000) // 64 steps
	b.ProcessBlock(64)

	start := b.Coeffs(0, 0)
	if diff := start.B0 - lp.B0; diff > 0.05 || diff < -0.05 {
		t.Fatalf("expected first frame close to old coeffs, got %v want %v", start.B0, lp.B0)
	}
	end := b.Coeffs(0, 63)
	if diff := end.B0 - hp.B0; diff > 1e-3 || diff < -1e-3 {
		t.Fatalf("expected final frame at new coeffs, got %v want %v", end.B0, hp.B0)
	}
}

func testCoeffs(seed float32) dsp.Coeffs {
	return dsp.Coeffs{B0: seed, B1: seed * 2, B2: seed * 3, A1: seed * 4, A2: seed * 5}
}
