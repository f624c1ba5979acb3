package layer

import (
	"sync"
	"testing"
)

func TestDesiredInstrumentConsumeOnceAfterPublish(t *testing.T) {
	var d DesiredInstrument
	d.PublishWaveform(3)

	got := d.Consume()
	if got.Kind != "waveform" || got.Waveform != 3 {
		t.Fatalf("expected waveform(3), got %+v", got)
	}

	got = d.Consume()
	if got.Kind != "unchanged" {
		t.Fatalf("expected a second Consume with no intervening publish to report unchanged, got %+v", got)
	}
}

func TestDesiredInstrumentPublishInstrumentRoundTrips(t *testing.T) {
	var d DesiredInstrument
	ref := &LoadedInstrumentRef{Handle: "instrument-a"}
	d.PublishInstrument(ref)

	got := d.Consume()
	if got.Kind != "instrument" || got.Instrument != ref {
		t.Fatalf("expected instrument ref round trip, got %+v", got)
	}
}

func TestDesiredInstrumentNoneOverridesEarlierPublish(t *testing.T) {
	var d DesiredInstrument
	d.PublishWaveform(1)
	d.PublishNone()

	got := d.Consume()
	if got.Kind != "none" {
		t.Fatalf("expected most-recent publish (none) to win, got %+v", got)
	}
}

func TestDesiredInstrumentCancellationBySupersession(t *testing.T) {
	// Simulates a LoadRequest for instrument A immediately superseded by
	// one for instrument B on the same layer: only B should ever be
	// observed by Consume.
	var d DesiredInstrument
	refA := &LoadedInstrumentRef{Handle: "A"}
	refB := &LoadedInstrumentRef{Handle: "B"}

	d.PublishInstrument(refA)
	d.PublishInstrument(refB)

	got := d.Consume()
	if got.Kind != "instrument" || got.Instrument != refB {
		t.Fatalf("expected the superseding publish B to win, got %+v", got)
	}
}

func TestDesiredInstrumentConcurrentPublishNeverPanics(t *testing.T) {
	var d DesiredInstrument
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			d.PublishWaveform(uint32(n))
		}(i)
	}
	wg.Wait()
	_ = d.Consume()
}
