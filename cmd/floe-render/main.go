// Command floe-render renders a single triggered note to a WAV file
// without any external sample library, using a generated waveform as the
// layer's sound source. It exists to exercise host.Bridge end to end the
// way a real host would: open a bridge, trigger a note, pull blocks.
package main

import (
	"flag"
	"fmt"
	"math"
	"os"

	"github.com/cwbudde/floe-core/host"
	"github.com/cwbudde/floe-core/voice"
	"github.com/cwbudde/wav"
	"github.com/go-audio/audio"
)

func main() {
	note := flag.Int("note", 69, "MIDI note number (69 = A4 = 440 Hz)")
	velocity := flag.Int("velocity", 100, "MIDI velocity (0-127)")
	waveformName := flag.String("waveform", "sine", "generated waveform: sine, noise-mono, noise-stereo")
	duration := flag.Float64("duration", 2.0, "duration in seconds")
	decayDBFS := flag.Float64("decay-dbfs", math.Inf(1), "auto-stop when stereo block RMS falls below this dBFS (e.g. -90); disabled by default")
	decayHoldBlocks := flag.Int("decay-hold-blocks", 6, "consecutive below-threshold blocks required to stop in auto-decay mode")
	minDuration := flag.Float64("min-duration", 0.5, "minimum render duration in seconds when using -decay-dbfs")
	maxDuration := flag.Float64("max-duration", 20.0, "maximum render duration in seconds when using -decay-dbfs")
	releaseAfter := flag.Float64("release-after", 0.5, "send note-off after this many seconds in auto-decay mode")
	sampleRate := flag.Int("sample-rate", 48000, "render sample rate in Hz")
	output := flag.String("output", "output.wav", "output WAV file path")
	flag.Parse()

	waveform, err := parseWaveform(*waveformName)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("Rendering note %d, velocity %d, waveform %s, for %.2fs at %d Hz...\n",
		*note, *velocity, *waveformName, *duration, *sampleRate)

	blockSize := voice.ChunkSize * 2
	b := host.NewBridge(*sampleRate, blockSize, 1, host.Config{})
	// Publish the waveform through the same desired-instrument slot a
	// running host would use, and render silent frames until the
	// instrument-swap fade lands before triggering the note (there's
	// nothing playing yet to fade out, but the state machine still walks
	// through it once).
	b.Layer(0).Desired.PublishWaveform(uint32(waveform))
	for b.Layer(0).CurrentWaveform == nil {
		b.Process(blockSize, nil)
	}

	velocity01 := float32(*velocity) / 127
	b.NoteOn(0, 0, *note, velocity01, 1, 1, 0)

	autoStop := !math.IsInf(*decayDBFS, 1)

	var totalFrames int
	if !autoStop {
		totalFrames = int(float64(*sampleRate) * *duration)
		if totalFrames < 1 {
			totalFrames = 1
		}
	}

	samples := make([]float32, 0, totalFrames*2)
	framesRendered := 0

	if autoStop {
		minFrames := int(float64(*sampleRate) * *minDuration)
		maxFrames := int(float64(*sampleRate) * *maxDuration)
		releaseAtFrame := int(float64(*sampleRate) * *releaseAfter)
		if releaseAtFrame < 0 {
			releaseAtFrame = 0
		}
		if maxFrames < minFrames {
			maxFrames = minFrames
		}
		if *decayHoldBlocks < 1 {
			*decayHoldBlocks = 1
		}

		thresholdLin := math.Pow(10.0, *decayDBFS/20.0)
		noteReleased := false
		belowCount := 0
		for framesRendered < maxFrames {
			framesToRender := blockSize
			if framesRendered+framesToRender > maxFrames {
				framesToRender = maxFrames - framesRendered
			}

			var events []host.Event
			if !noteReleased && framesRendered >= releaseAtFrame {
				events = append(events, host.Event{
					Kind:    host.EventNoteOff,
					NoteOff: host.NoteOffPayload{Layer: 0, Channel: 0, Note: *note},
				})
				noteReleased = true
			}

			block := mixDown(b.Process(framesToRender, events))
			samples = append(samples, block...)
			framesRendered += framesToRender

			if framesRendered >= minFrames {
				if stereoRMS(block) < thresholdLin {
					belowCount++
					if belowCount >= *decayHoldBlocks {
						break
					}
				} else {
					belowCount = 0
				}
			}
		}
		totalFrames = framesRendered
		fmt.Printf("Auto-stop at %d frames (%.3fs), threshold %.1f dBFS\n",
			totalFrames, float64(totalFrames)/float64(*sampleRate), *decayDBFS)
	} else {
		for framesRendered < totalFrames {
			framesToRender := blockSize
			if framesRendered+framesToRender > totalFrames {
				framesToRender = totalFrames - framesRendered
			}
			block := mixDown(b.Process(framesToRender, nil))
			samples = append(samples, block...)
			framesRendered += framesToRender
		}
	}

	if err := writeWAV(*output, samples, *sampleRate); err != nil {
		fmt.Fprintf(os.Stderr, "Error writing output: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Successfully wrote %s (%d frames)\n", *output, totalFrames)
}

func parseWaveform(name string) (voice.WaveformKind, error) {
	switch name {
	case "sine":
		return voice.WaveformSine, nil
	case "noise-mono":
		return voice.WaveformWhiteNoiseMono, nil
	case "noise-stereo":
		return voice.WaveformWhiteNoiseStereo, nil
	default:
		return 0, fmt.Errorf("unknown waveform %q", name)
	}
}

// mixDown sums every configured layer's interleaved stereo buffer into a
// single master buffer, the way a host mixes its layers after pulling
// per-layer output from Bridge.Process.
func mixDown(layers [][]float32) []float32 {
	var master []float32
	for _, l := range layers {
		if l == nil {
			continue
		}
		if master == nil {
			master = make([]float32, len(l))
		}
		for i, s := range l {
			master[i] += s
		}
	}
	return master
}

func stereoRMS(interleaved []float32) float64 {
	if len(interleaved) == 0 {
		return 0
	}
	var sum float64
	for _, s := range interleaved {
		v := float64(s)
		sum += v * v
	}
	return math.Sqrt(sum / float64(len(interleaved)))
}

func writeWAV(path string, samples []float32, sampleRate int) error {
	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	numChannels := 2
	encoder := wav.NewEncoder(file, sampleRate, 16, numChannels, 1)
	defer encoder.Close()

	buf := &audio.Float32Buffer{
		Format: &audio.Format{
			SampleRate:  sampleRate,
			NumChannels: numChannels,
		},
		Data:           samples,
		SourceBitDepth: 16,
	}
	return encoder.Write(buf)
}
