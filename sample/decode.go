package sample

import (
	"fmt"
	"io"
	"os"

	"github.com/cwbudde/wav"
)

// AudioFileDecoder produces an AudioData from a path. It may block; the
// loader thread is its only caller.
type AudioFileDecoder interface {
	Decode(path string) (*AudioData, error)
}

// WAVDecoder decodes PCM WAV files via the same wav/go-audio stack used
// elsewhere in the module's WAV read/write paths.
type WAVDecoder struct{}

// Decode reads path as a WAV file and returns a planar AudioData.
func (WAVDecoder) Decode(path string) (*AudioData, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("sample: open %s: %w", path, err)
	}
	defer f.Close()
	return decodeWAV(f, path)
}

func decodeWAV(r io.ReadSeeker, path string) (*AudioData, error) {
	dec := wav.NewDecoder(r)
	if !dec.IsValidFile() {
		return nil, fmt.Errorf("sample: invalid wav file: %s", path)
	}
	buf, err := dec.FullPCMBuffer()
	if err != nil {
		return nil, fmt.Errorf("sample: decode %s: %w", path, err)
	}
	if buf == nil || buf.Format == nil || buf.Format.NumChannels < 1 {
		return nil, fmt.Errorf("sample: invalid wav buffer: %s", path)
	}

	numChannels := buf.Format.NumChannels
	frames := len(buf.Data) / numChannels
	channels := make([][]float32, numChannels)
	for c := range channels {
		channels[c] = make([]float32, frames)
	}

	for i := 0; i < frames; i++ {
		for c := 0; c < numChannels; c++ {
			channels[c][i] = buf.Data[i*numChannels+c]
		}
	}

	return NewAudioData(channels, buf.Format.SampleRate), nil
}
