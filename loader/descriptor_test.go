package loader

import (
	"errors"
	"testing"

	"github.com/cwbudde/floe-core/sample"
)

type fakeDescriptorReader struct {
	lib *sample.Library
	err error
}

func (f fakeDescriptorReader) ReadLibrary() (*sample.Library, error) {
	return f.lib, f.err
}

func TestLoadLibraryFromDescriptorAddsTheReturnedLibrary(t *testing.T) {
	dec := newCountingDecoder()
	l := NewLoader(dec)

	if err := l.LoadLibraryFromDescriptor(fakeDescriptorReader{lib: testLibrary()}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	results := make(chan LoadResult, 1)
	l.SendLoadRequest(LoadRequest{
		Connection: 1, LayerIndex: 0,
		LibraryAuthor: "acme", LibraryName: "grand-piano", InstrumentName: "Concert A",
		Callback: func(r LoadResult) { results <- r },
	})
	l.ProcessPending()

	r := waitForResult(t, results)
	if r.Outcome != OutcomeSuccess {
		t.Fatalf("expected success, got outcome %v err %v", r.Outcome, r.Err)
	}
}

func TestLoadLibraryFromDescriptorPropagatesReaderError(t *testing.T) {
	l := NewLoader(newCountingDecoder())
	wantErr := errors.New("malformed descriptor")

	err := l.LoadLibraryFromDescriptor(fakeDescriptorReader{err: wantErr})
	if !errors.Is(err, wantErr) {
		t.Fatalf("expected reader error to propagate, got %v", err)
	}

	results := make(chan LoadResult, 1)
	l.SendLoadRequest(LoadRequest{
		Connection: 1, LayerIndex: 0,
		LibraryAuthor: "acme", LibraryName: "grand-piano", InstrumentName: "Concert A",
		Callback: func(r LoadResult) { results <- r },
	})
	l.ProcessPending()

	r := waitForResult(t, results)
	if r.Outcome != OutcomeError || r.Err != ErrLibraryNotFound {
		t.Fatalf("expected library-not-found since nothing was added, got outcome %v err %v", r.Outcome, r.Err)
	}
}
