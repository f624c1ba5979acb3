package sample

// PlaybackState tracks the two bits of mutable state a streaming voice
// needs alongside its position: whether it is currently traversing the
// loop backwards, and whether it has entered the loop region at all
// (regions with no loop, or loop-locked-off, never set the latter).
type PlaybackState struct {
	Position    float64
	Reversed    bool
	InLoop      bool
}

// NewPlaybackState seeds position for note-start. If reverse is
// requested, position starts near the end of the buffer rather than the
// start, clamped to at least 1 so there is always a previous sample to
// interpolate against.
func NewPlaybackState(reverse bool, numFrames int, initialOffset float64) PlaybackState {
	if !reverse {
		return PlaybackState{Position: initialOffset}
	}
	pos := float64(numFrames) - initialOffset
	if pos < 1 {
		pos = 1
	}
	return PlaybackState{Position: pos, Reversed: true}
}

// Advance reads one interpolated stereo frame from data at the current
// position, applies loop wrap/crossfade/reverse rules, and moves
// position forward by increment (a pitch ratio; always positive -- the
// sign of the actual step is decided by the Reversed flag). It reports
// whether the stream has run off the end of a non-looped buffer, in
// which case the caller must terminate the voice.
func (s *PlaybackState) Advance(data *AudioData, loop Loop, hasLoop bool, increment float64) (left, right float32, exhausted bool) {
	pos := s.Position

	if hasLoop && pos >= float64(loop.StartFrame) && pos < float64(loop.EndFrame) {
		s.InLoop = true
	}

	left, right = data.FrameAt(pos)

	if hasLoop && s.InLoop && loop.CrossfadeFrames > 0 {
		left, right = s.applyCrossfade(data, loop, pos, left, right)
	}

	s.step(data, loop, hasLoop, increment)

	if !hasLoop || !s.InLoop {
		if pos < 0 || pos >= float64(data.NumFrames) {
			exhausted = true
		}
	}
	return left, right, exhausted
}

// applyCrossfade blends the read sample with the "tail" sample from one
// full loop-length earlier (the material the loop continues with once it
// wraps back to its start), so a loop boundary that isn't zero-crossing
// aligned doesn't click.
func (s *PlaybackState) applyCrossfade(data *AudioData, loop Loop, pos float64, left, right float32) (float32, float32) {
	framesIntoCrossfade := pos - float64(loop.EndFrame-loop.CrossfadeFrames)
	if framesIntoCrossfade < 0 {
		return left, right
	}
	ratio := float32(framesIntoCrossfade / float64(loop.CrossfadeFrames))
	if ratio > 1 {
		ratio = 1
	}

	tailPos := pos - float64(loop.EndFrame-loop.StartFrame)
	if tailPos < 0 {
		return left, right
	}
	tailLeft, tailRight := data.FrameAt(tailPos)

	return left + (tailLeft-left)*ratio, right + (tailRight-right)*ratio
}

func (s *PlaybackState) step(data *AudioData, loop Loop, hasLoop bool, increment float64) {
	if s.Reversed {
		s.Position -= increment
	} else {
		s.Position += increment
	}

	if !hasLoop || !s.InLoop {
		return
	}

	switch loop.Mode {
	case LoopPingPong:
		if !s.Reversed && s.Position >= float64(loop.EndFrame) {
			s.Reversed = true
			s.Position = float64(loop.EndFrame) - (s.Position - float64(loop.EndFrame))
		} else if s.Reversed && s.Position <= float64(loop.StartFrame) {
			s.Reversed = false
			s.Position = float64(loop.StartFrame) + (float64(loop.StartFrame) - s.Position)
		}
	default: // LoopStandard
		if s.Position >= float64(loop.EndFrame) {
			s.Position = float64(loop.StartFrame) + (s.Position - float64(loop.EndFrame))
		}
	}
}
