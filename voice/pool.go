package voice

import (
	"sort"
	"sync/atomic"
)

// NumVoices is the hard cap on simultaneously allocated voices.
const NumVoices = 64

// MaxActiveVoices is the soft cap above which the allocator starts
// fading out old voices before resorting to an instant steal.
const MaxActiveVoices = 32

// StealFadeMs is how long a soft-cap steal fades the oldest voice out
// before the pool may reuse its slot.
const StealFadeMs = 10.0

// VoicePool owns the fixed array of playback slots and the GUI-facing
// voices-per-note counters.
type VoicePool struct {
	voices           [NumVoices]*Voice
	nextAge          uint64
	nextID           uint64
	sampleRate       int
	voicesPerNote    [128]atomic.Int32
}

// NewVoicePool preallocates every voice slot.
func NewVoicePool(sampleRate, maxBlockSize int) *VoicePool {
	p := &VoicePool{sampleRate: sampleRate}
	for i := range p.voices {
		p.voices[i] = NewVoice(sampleRate, maxBlockSize)
	}
	return p
}

// Allocate finds a slot for a new note using the allocation policy:
// 1. Any inactive slot, as long as the active count is still under the
//    soft cap -- the extra headroom between the soft cap and the hard
//    pool size exists so a faded-out voice and its replacement can
//    briefly coexist, not so active notes can grow past the soft cap
//    unfaded.
// 2. Once active count >= MaxActiveVoices, fade the oldest non-fading
//    active voice (it keeps sounding, decaying, while still counted
//    active) and claim a fresh inactive slot for the new note.
// 3. If every slot is active (none free even after trying to fade),
//    steal from the oldest quarter by lowest current gain.
func (p *VoicePool) Allocate() *Voice {
	if p.activeCount() < MaxActiveVoices {
		if v := p.firstInactive(); v != nil {
			return p.claim(v)
		}
	}

	if p.activeCount() >= MaxActiveVoices {
		if oldest := p.oldestNonFading(); oldest != nil {
			oldest.BeginSteal(int(StealFadeMs * float64(p.sampleRate) / 1000))
		}
		if v := p.firstInactive(); v != nil {
			return p.claim(v)
		}
	}

	if v := p.stealQuietestOfOldestQuarter(); v != nil {
		v.EndVoiceInstantly()
		return p.claim(v)
	}

	// Every slot is somehow active and the quarter-scan found nothing --
	// should be unreachable with NumVoices > 0, but never return nil to
	// a note-on.
	return p.claim(p.voices[0])
}

func (p *VoicePool) claim(v *Voice) *Voice {
	p.nextID++
	v.ID = p.nextID
	p.nextAge++
	v.Age = p.nextAge
	return v
}

func (p *VoicePool) firstInactive() *Voice {
	for _, v := range p.voices {
		if !v.Active {
			return v
		}
	}
	return nil
}

func (p *VoicePool) activeCount() int {
	n := 0
	for _, v := range p.voices {
		if v.Active {
			n++
		}
	}
	return n
}

func (p *VoicePool) oldestNonFading() *Voice {
	var oldest *Voice
	for _, v := range p.voices {
		if !v.Active || v.Fading() {
			continue
		}
		if oldest == nil || v.Age < oldest.Age {
			oldest = v
		}
	}
	return oldest
}

func (p *VoicePool) stealQuietestOfOldestQuarter() *Voice {
	active := make([]*Voice, 0, NumVoices)
	for _, v := range p.voices {
		if v.Active {
			active = append(active, v)
		}
	}
	if len(active) == 0 {
		return nil
	}
	sort.Slice(active, func(i, j int) bool { return active[i].Age < active[j].Age })

	quarter := len(active) / 4
	if quarter < 1 {
		quarter = 1
	}
	if quarter > len(active) {
		quarter = len(active)
	}

	candidates := active[:quarter]
	quietest := candidates[0]
	for _, v := range candidates[1:] {
		if v.CurrentGain < quietest.CurrentGain {
			quietest = v
		}
	}
	return quietest
}

// Release marks a voice inactive and updates the per-note counter. Call
// once a voice's envelope has reached idle or it has been instantly
// ended.
func (p *VoicePool) Release(v *Voice, note int) {
	v.Active = false
	if note >= 0 && note < len(p.voicesPerNote) {
		if p.voicesPerNote[note].Load() > 0 {
			p.voicesPerNote[note].Add(-1)
		}
	}
}

// NoteOn increments the GUI-facing voices-per-note counter.
func (p *VoicePool) NoteOn(note int) {
	if note >= 0 && note < len(p.voicesPerNote) {
		p.voicesPerNote[note].Add(1)
	}
}

// VoicesForNote reads the voices-per-note counter (relaxed, GUI-facing).
func (p *VoicePool) VoicesForNote(note int) int32 {
	if note < 0 || note >= len(p.voicesPerNote) {
		return 0
	}
	return p.voicesPerNote[note].Load()
}

// ActiveVoices returns every currently-active voice in slot order, for
// the layer to mix after calling ProcessChunk on each.
func (p *VoicePool) ActiveVoices() []*Voice {
	out := make([]*Voice, 0, NumVoices)
	for _, v := range p.voices {
		if v.Active {
			out = append(out, v)
		}
	}
	return out
}

// GUISnapshot is the plain value struct a pool publishes to its GUI-facing
// swap buffer each block: the num-active-voices counter plus a copy of
// the per-note counters, with no pointer back into any live Voice.
type GUISnapshot struct {
	NumActiveVoices int32
	VoicesPerNote   [128]int32
}

// Snapshot reads the current active count and per-note counters as a
// GUI-safe value. Safe to call from any thread; the per-note counters are
// read with relaxed ordering.
func (p *VoicePool) Snapshot() GUISnapshot {
	var s GUISnapshot
	for i := range p.voicesPerNote {
		s.VoicesPerNote[i] = p.voicesPerNote[i].Load()
		s.NumActiveVoices += s.VoicesPerNote[i]
	}
	return s
}
