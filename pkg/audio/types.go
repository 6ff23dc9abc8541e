package audio

import "time"

// Canonical format for the turn-taking pipeline: 16 kHz mono 16-bit
// little-endian PCM, processed in 20 ms frames.
const (
	SampleRate    = 16000
	Channels      = 1
	BytesPerSec   = SampleRate * Channels * 2
	FrameDuration = 20 * time.Millisecond
	FrameSamples  = SampleRate / 50
	FrameBytes    = FrameSamples * 2
)

// PCMDuration returns the play time of a 16-bit PCM byte slice in the
// canonical format.
func PCMDuration(n int) time.Duration {
	return time.Duration(n) * time.Second / BytesPerSec
}
