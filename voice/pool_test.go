package voice

import (
	"testing"

	"github.com/cwbudde/floe-core/sample"
)

func startNote(p *VoicePool, audio *sample.AudioData, region *sample.Region, note int) *Voice {
	v := p.Allocate()
	v.Start(NoteStartParams{
		Note: note, Velocity: 1, SourceSampleRate: 44100, KeyTracking: true,
		Samplers: []SamplerStart{{Region: region, Audio: audio, Gain: 1}},
	})
	p.NoteOn(note)
	return v
}

func TestVoicePoolAllocatesInactiveSlotsFirst(t *testing.T) {
	p := NewVoicePool(48000, ChunkSize)
	region := &sample.Region{RootKey: 60, KeyLow: 0, KeyHigh: 127, VelocityHigh: 1}
	audio := monoRampAudio(44100, 44100)

	seen := make(map[*Voice]bool)
	for i := 0; i < MaxActiveVoices; i++ {
		v := startNote(p, audio, region, 60+i)
		if seen[v] {
			t.Fatalf("expected a distinct slot per allocation under the soft cap")
		}
		seen[v] = true
	}
	if p.activeCount() != MaxActiveVoices {
		t.Fatalf("expected %d active voices, got %d", MaxActiveVoices, p.activeCount())
	}
}

func TestVoicePoolFadesOldestWhenOverSoftCap(t *testing.T) {
	p := NewVoicePool(48000, ChunkSize)
	region := &sample.Region{RootKey: 60, KeyLow: 0, KeyHigh: 127, VelocityHigh: 1}
	audio := monoRampAudio(44100, 44100)

	var first *Voice
	for i := 0; i < MaxActiveVoices; i++ {
		v := startNote(p, audio, region, 60+i)
		if i == 0 {
			first = v
		}
	}
	// The (MaxActiveVoices+1)th note-on should fade the oldest (first)
	// voice rather than instantly stealing it.
	startNote(p, audio, region, 100)

	if !first.Fading() {
		t.Fatalf("expected oldest voice to start fading once over the soft cap")
	}
}

func TestVoicePoolStealsQuietestOfOldestQuarterWhenFull(t *testing.T) {
	p := NewVoicePool(48000, ChunkSize)
	region := &sample.Region{RootKey: 60, KeyLow: 0, KeyHigh: 127, VelocityHigh: 1}
	audio := monoRampAudio(44100, 44100)

	var voices []*Voice
	for i := 0; i < NumVoices; i++ {
		v := startNote(p, audio, region, 60)
		v.CurrentGain = float32(i) * 0.01 // later allocations are "louder"
		voices = append(voices, v)
	}
	if p.activeCount() != NumVoices {
		t.Fatalf("expected pool to be completely full, got %d active", p.activeCount())
	}

	stolen := p.Allocate()
	found := false
	for _, v := range voices[:NumVoices/4] {
		if v == stolen {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected the stolen voice to come from the oldest quarter")
	}
}
