// Package host bridges an external audio callback (prepare/process/reset)
// into the layer/voice engine: it routes frame-offset events to the right
// layer at chunk granularity, dispatches each layer's per-chunk rendering
// to a thread pool, and exposes the loader's connection-based load API.
package host

// EventKind discriminates an Event's payload.
type EventKind int

const (
	EventNoteOn EventKind = iota
	EventNoteOff
	EventCC
	EventParamChange
	EventTempo
)

// NoteOnPayload starts a note on one layer.
type NoteOnPayload struct {
	Layer      int
	Channel    int
	Note       int
	Velocity01 float32
	Dynamics01 float32
	VelToVol01 float32
}

// NoteOffPayload ends a note on one layer. CC64Triggered marks a note-off
// sent on a sustain-pedal release; Layer.NoteOff accepts the flag but
// releases matching voices either way.
type NoteOffPayload struct {
	Layer         int
	Channel       int
	Note          int
	CC64Triggered bool
}

// CCPayload is a raw MIDI-style control-change value, not yet interpreted
// as a specific parameter.
type CCPayload struct {
	Layer   int
	Channel int
	Number  int
	Value01 float32
}

// ParamChangePayload carries one parameter's new linear [0,1] value.
// Layer is -1 for a global (not per-layer) parameter.
type ParamChangePayload struct {
	Layer          int
	ParamIndex     int
	NewLinearValue float32
}

// TempoPayload reports the host transport's current tempo.
type TempoPayload struct {
	BPM float32
}

// Event is one sample-accurate {frame_offset, payload} tuple from the
// host. Only the field matching Kind is meaningful.
type Event struct {
	FrameOffset int
	Kind        EventKind

	NoteOn      NoteOnPayload
	NoteOff     NoteOffPayload
	CC          CCPayload
	ParamChange ParamChangePayload
	Tempo       TempoPayload
}
