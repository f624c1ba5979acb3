// Package layer implements the per-layer parameter fan-out, EQ, peak
// meter, and instrument-change handling that sits between the host
// bridge and the layer's voice controller.
package layer

import (
	"sync"
	"sync/atomic"

	"github.com/cwbudde/floe-core/sample"
)

// desiredKind discriminates what a DesiredInstrument slot currently holds.
type desiredKind uint64

const (
	desiredNone desiredKind = iota
	desiredWaveform
	desiredInstrument
	desiredConsumed
)

// DesiredInstrument is the layer's atomic "what should be playing" slot.
// The source this is adapted from packed {none, waveform-variant,
// instrument-pointer} into a single atomic word by exploiting pointer
// alignment; that trick only works if the payload type's alignment
// exceeds 1, which isn't something Go's allocator guarantees. This
// implements exactly-once consumption as a proper tagged union: a
// discriminant plus a payload (a waveform variant, or a token into a side
// table), packed into one atomic.Uint64. Publishing none or a waveform is
// a single atomic store. Publishing an instrument takes the side table's
// mutex before its store, and Consume takes the same mutex to claim an
// instrument entry, so the instrument path is not lock-free.
type DesiredInstrument struct {
	word atomic.Uint64

	mu      sync.Mutex
	payload map[uint64]*LoadedInstrumentRef
	nextTok uint64
}

// InstrumentSource is the minimal view a LoadedInstrumentRef's Handle must
// satisfy so a layer can build a voice's samplers from it without this
// package depending on whatever concrete type owns instrument resolution
// (the loader, in practice).
type InstrumentSource interface {
	RegionsFor(note int, velocity01, timbre01 float32) []*sample.Region
}

// LoadedInstrumentRef is the payload a DesiredInstrument slot carries
// when it names a loaded sample instrument rather than a waveform.
type LoadedInstrumentRef struct {
	Retain func()
	Handle any
}

const (
	kindShift   = 62
	waveformMask = (uint64(1) << kindShift) - 1
)

func pack(kind desiredKind, payload uint64) uint64 {
	return uint64(kind)<<kindShift | (payload & waveformMask)
}

func unpack(word uint64) (desiredKind, uint64) {
	return desiredKind(word >> kindShift), word & waveformMask
}

// PublishNone marks the slot as wanting silence / no instrument.
func (d *DesiredInstrument) PublishNone() {
	d.word.Store(pack(desiredNone, 0))
}

// PublishWaveform publishes a built-in waveform variant (small integer,
// no allocation, no side table entry).
func (d *DesiredInstrument) PublishWaveform(variant uint32) {
	d.word.Store(pack(desiredWaveform, uint64(variant)))
}

// PublishInstrument publishes a loaded sample instrument. The side table
// is guarded by d.mu, which Consume also takes when it claims the entry.
func (d *DesiredInstrument) PublishInstrument(ref *LoadedInstrumentRef) {
	d.mu.Lock()
	if d.payload == nil {
		d.payload = make(map[uint64]*LoadedInstrumentRef)
	}
	d.nextTok++
	tok := d.nextTok
	d.payload[tok] = ref
	d.mu.Unlock()

	d.word.Store(pack(desiredInstrument, tok))
}

// Consumed reports the result of a Consume call.
type Consumed struct {
	Kind       string // "none", "waveform", "instrument", "unchanged"
	Waveform   uint32
	Instrument *LoadedInstrumentRef
}

// Consume atomically exchanges the slot for the "consumed" sentinel and
// returns what was published. Calling it again before another Publish*
// call returns {"unchanged"}: the audio thread calls this once per block
// and must see each publication exactly once.
func (d *DesiredInstrument) Consume() Consumed {
	old := d.word.Swap(pack(desiredConsumed, 0))
	kind, payload := unpack(old)

	switch kind {
	case desiredNone:
		return Consumed{Kind: "none"}
	case desiredWaveform:
		return Consumed{Kind: "waveform", Waveform: uint32(payload)}
	case desiredInstrument:
		d.mu.Lock()
		ref := d.payload[payload]
		delete(d.payload, payload)
		d.mu.Unlock()
		return Consumed{Kind: "instrument", Instrument: ref}
	default: // desiredConsumed
		return Consumed{Kind: "unchanged"}
	}
}
