package host

import "errors"

var (
	errLibraryNotFound    = errors.New("host: library not found")
	errInstrumentNotFound = errors.New("host: instrument not found")
	errDecodeFailed       = errors.New("host: sample decode failed")
	errUnknown            = errors.New("host: load request failed")
)
