// Package loader resolves instrument load requests off the audio thread:
// it scans libraries, decodes and caches sample audio, builds
// LoadedInstrument records, and reports results back through a callback.
// Nothing in this package may be called from the audio thread.
package loader

import "github.com/cwbudde/floe-core/sample"

// RequestId identifies a single load request across its lifetime. It is
// assigned by SendLoadRequest and echoed back in the matching LoadResult.
type RequestId uint64

// ConnectionId identifies one host connection. A connection may have at
// most one outstanding request per layer index; a new request on the same
// (connection, layer) supersedes and cancels the previous one.
type ConnectionId uint64

// Outcome classifies how a LoadRequest resolved.
type Outcome int

const (
	OutcomeSuccess Outcome = iota
	OutcomeError
	OutcomeCancelled
)

// ErrorCode names why a request failed, valid when Outcome is OutcomeError.
type ErrorCode int

const (
	ErrNone ErrorCode = iota
	ErrLibraryNotFound
	ErrInstrumentNotFound
	ErrDecodeFailed
)

// LoadResult is delivered to a LoadRequest's Callback exactly once, on the
// loader thread.
type LoadResult struct {
	ID         RequestId
	Outcome    Outcome
	Instrument *LoadedInstrument
	Err        ErrorCode
}

// LoadRequest asks the loader to resolve an instrument by (library, name)
// for a given connection and layer. Callback must not perform heavy work;
// it runs inline on the loader thread.
type LoadRequest struct {
	ID             RequestId
	Connection     ConnectionId
	LayerIndex     int
	LibraryAuthor  string
	LibraryName    string
	InstrumentName string
	Callback       func(LoadResult)
}

func (r LoadRequest) instrumentId() sample.InstrumentId {
	return sample.InstrumentId{
		LibraryAuthor:  r.LibraryAuthor,
		LibraryName:    r.LibraryName,
		InstrumentName: r.InstrumentName,
	}
}

// supersedeKey identifies the (connection, layer) pair the cancellation
// rule is scoped to.
type supersedeKey struct {
	connection ConnectionId
	layer      int
}
