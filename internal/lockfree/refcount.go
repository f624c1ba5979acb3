// Package lockfree provides the small set of cross-thread primitives the
// audio core relies on to never block, allocate, or take a mutex on the
// audio thread: a reader-counted reference list, a futex-style work
// signaller, a mutex-backed threadsafe queue for non-realtime paths, and an
// atomic-pointer swap buffer for GUI snapshots.
package lockfree

import "sync/atomic"

// deadBit marks a RefCounter as condemned: the high bit of a 32-bit counter,
// so a reader's retain is a single fetch_add whose result it inspects for
// the bit, rather than a compare-and-swap loop.
const deadBit = uint32(1) << 31

// RefCounter is a reader/writer reference count with a single bit stolen
// for "dead". The owner pays the cost of marking dead (a compare-and-swap
// loop); every
// reader pays only a fetch_add plus a branch.
type RefCounter struct {
	v atomic.Uint32
}

// TryRetain attempts to add a reader reference. It returns false if the
// counter is already marked dead, in which case the increment is reverted.
func (r *RefCounter) TryRetain() bool {
	n := r.v.Add(1)
	if n&deadBit != 0 {
		r.v.Add(^uint32(0)) // undo: fetch_sub(1)
		return false
	}
	return true
}

// Release drops one reader reference.
func (r *RefCounter) Release() uint32 {
	return r.v.Add(^uint32(0))
}

// MarkDead sets the dead bit. Safe to call only from the single writer.
func (r *RefCounter) MarkDead() {
	for {
		old := r.v.Load()
		if old&deadBit != 0 {
			return
		}
		if r.v.CompareAndSwap(old, old|deadBit) {
			return
		}
	}
}

// IsDead reports whether the dead bit is set.
func (r *RefCounter) IsDead() bool {
	return r.v.Load()&deadBit != 0
}

// Readers returns the current reader count, excluding the dead bit.
func (r *RefCounter) Readers() uint32 {
	return r.v.Load() &^ deadBit
}

// SimpleRefCount is a plain atomic reference count for owned assets
// (AudioData, LoadedInstrument): no dead bit, just retain/release down to
// zero, at which point the reaper is signalled to free the asset.
type SimpleRefCount struct {
	v atomic.Int32
}

// Retain increments the count and returns the new value.
func (c *SimpleRefCount) Retain() int32 { return c.v.Add(1) }

// Release decrements the count and returns the new value. The caller frees
// the asset when the returned value is zero.
func (c *SimpleRefCount) Release() int32 { return c.v.Add(-1) }

// Load returns the current count.
func (c *SimpleRefCount) Load() int32 { return c.v.Load() }
